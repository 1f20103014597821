package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/legalytics/legalytics/pkg/observability/logger"
)

// Store persists job snapshots keyed by job id. Every state transition is
// written through in full, so the stored snapshot always reflects only the
// latest state with no history.
type Store interface {
	Save(ctx context.Context, rec *Record) error
	LoadAll(ctx context.Context) ([]*Record, error)
	Delete(ctx context.Context, id string) error
	Ping(ctx context.Context) error
}

const jobFileExtension = ".json"

// FileStore keeps one JSON file per job under a root directory, named by job
// id. There is no cross-file transaction guarantee; a crash between two saves
// is possible and accepted.
type FileStore struct {
	root string
	log  logger.Logger
}

// NewFileStore creates the persistence root if needed and returns a store
// over it.
func NewFileStore(root string, log logger.Logger) (*FileStore, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, errors.New("storage root is required")
	}
	if log == nil {
		return nil, errors.New("logger is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root %q: %w", root, err)
	}
	return &FileStore{root: root, log: log}, nil
}

// Save rewrites the job file with the full snapshot, overwriting any previous
// state.
func (s *FileStore) Save(ctx context.Context, rec *Record) error {
	if s == nil {
		return ErrNotInitialized
	}
	if rec == nil {
		return jobsError(ErrValidation, "record is nil")
	}
	path, err := s.jobPath(rec.ID)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", rec.ID, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write job %s: %w", rec.ID, err)
	}
	return nil
}

// LoadAll scans the root directory and deserializes every job file found.
// Corrupt or unreadable files are logged and skipped; they never abort the
// load of the remaining jobs.
func (s *FileStore) LoadAll(ctx context.Context) ([]*Record, error) {
	if s == nil {
		return nil, ErrNotInitialized
	}

	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("read storage root %q: %w", s.root, err)
	}

	records := make([]*Record, 0, len(entries))
	for _, entry := range entries {
		if ctx != nil && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), jobFileExtension) {
			continue
		}

		path := filepath.Join(s.root, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			s.log.Warn("skipping unreadable job file", "file", entry.Name(), "error", err)
			continue
		}

		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			s.log.Warn("skipping corrupt job file", "file", entry.Name(), "error", err)
			continue
		}
		records = append(records, &rec)
	}
	return records, nil
}

// Delete removes the job file. A missing file is not an error.
func (s *FileStore) Delete(ctx context.Context, id string) error {
	if s == nil {
		return ErrNotInitialized
	}
	path, err := s.jobPath(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete job %s: %w", id, err)
	}
	return nil
}

// Ping verifies the storage root is still a reachable directory.
func (s *FileStore) Ping(ctx context.Context) error {
	if s == nil {
		return ErrNotInitialized
	}
	info, err := os.Stat(s.root)
	if err != nil {
		return fmt.Errorf("stat storage root %q: %w", s.root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("storage root %q is not a directory", s.root)
	}
	return nil
}

// jobPath maps a job id to its file, rejecting ids that would escape the root.
func (s *FileStore) jobPath(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", jobsError(ErrValidation, "job id is required")
	}
	if strings.ContainsAny(id, `/\`) || id != filepath.Base(id) {
		return "", jobsError(ErrValidation, "job id is not a valid file name")
	}
	return filepath.Join(s.root, id+jobFileExtension), nil
}
