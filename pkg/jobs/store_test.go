package jobs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/legalytics/legalytics/pkg/observability/logger"
)

func newTestStore(t *testing.T) (*FileStore, string) {
	t.Helper()
	root := t.TempDir()
	store, err := NewFileStore(root, logger.Nop())
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	return store, root
}

func TestFileStore_SaveLoadRoundTrip(t *testing.T) {
	store, root := newTestStore(t)
	ctx := context.Background()

	job := newJob("echo", map[string]any{"x": float64(5)}, EnqueueOptions{Priority: PriorityUrgent, RetryCount: 2})
	if err := store.Save(ctx, job.record()); err != nil {
		t.Fatalf("save: %v", err)
	}

	if _, err := os.Stat(filepath.Join(root, job.ID+".json")); err != nil {
		t.Fatalf("expected job file on disk: %v", err)
	}

	records, err := store.LoadAll(ctx)
	if err != nil {
		t.Fatalf("load all: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}

	restored, err := jobFromRecord(records[0])
	if err != nil {
		t.Fatalf("job from record: %v", err)
	}
	if restored.ID != job.ID || restored.TaskName != "echo" || restored.Priority != PriorityUrgent {
		t.Fatalf("unexpected restored job: %+v", restored)
	}
	if restored.TaskData["x"] != float64(5) {
		t.Fatalf("expected task data to survive, got %v", restored.TaskData)
	}
}

func TestFileStore_SaveOverwritesPreviousState(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	job := newJob("echo", nil, EnqueueOptions{Priority: PriorityNormal, RetryCount: 3})
	if err := store.Save(ctx, job.record()); err != nil {
		t.Fatalf("save pending: %v", err)
	}

	job.Status = StatusCompleted
	if err := store.Save(ctx, job.record()); err != nil {
		t.Fatalf("save completed: %v", err)
	}

	records, err := store.LoadAll(ctx)
	if err != nil {
		t.Fatalf("load all: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected single snapshot, got %d", len(records))
	}
	if records[0].Status != string(StatusCompleted) {
		t.Fatalf("expected latest state only, got %s", records[0].Status)
	}
}

func TestFileStore_LoadSkipsCorruptFiles(t *testing.T) {
	store, root := newTestStore(t)
	ctx := context.Background()

	job := newJob("echo", nil, EnqueueOptions{Priority: PriorityNormal, RetryCount: 3})
	if err := store.Save(ctx, job.record()); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "broken.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}

	records, err := store.LoadAll(ctx)
	if err != nil {
		t.Fatalf("load all should not fail on corrupt files: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected corrupt file to be skipped, got %d records", len(records))
	}
}

func TestFileStore_DeleteMissingIsNotAnError(t *testing.T) {
	store, _ := newTestStore(t)
	if err := store.Delete(context.Background(), "never-saved"); err != nil {
		t.Fatalf("delete missing: %v", err)
	}
}

func TestFileStore_RejectsUnsafeJobIDs(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"", "  ", "../escape", `..\escape`, "a/b"} {
		rec := &Record{ID: id}
		if err := store.Save(ctx, rec); !errors.Is(err, ErrValidation) {
			t.Fatalf("id %q: expected ErrValidation, got %v", id, err)
		}
	}
}

func TestFileStore_PingFailsWhenRootRemoved(t *testing.T) {
	store, root := newTestStore(t)

	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("ping healthy root: %v", err)
	}
	if err := os.RemoveAll(root); err != nil {
		t.Fatalf("remove root: %v", err)
	}
	if err := store.Ping(context.Background()); err == nil {
		t.Fatal("expected ping to fail after root removal")
	}
}
