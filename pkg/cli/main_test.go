package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/legalytics/legalytics/pkg/jobs"
	"github.com/legalytics/legalytics/pkg/version"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCommandSubcommands(t *testing.T) {
	cmd := NewRootCommand()
	want := map[string]bool{"stats": false, "list": false, "cancel": false, "cleanup": false, "version": false}
	for _, sub := range cmd.Commands() {
		name := strings.Fields(sub.Use)[0]
		if _, ok := want[name]; ok {
			want[name] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Fatalf("missing subcommand %q", name)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := runCommand(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}

	var info version.Info
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		t.Fatalf("version output is not JSON: %v\n%s", err, out)
	}
	if info.Service != "legalytics-jobs" {
		t.Fatalf("unexpected service name %q", info.Service)
	}
}

func TestStatsCommandOnEmptyRoot(t *testing.T) {
	out, err := runCommand(t, "stats", "--storage-root", t.TempDir())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}

	var stats jobs.QueueStats
	if err := json.Unmarshal([]byte(out), &stats); err != nil {
		t.Fatalf("stats output is not JSON: %v\n%s", err, out)
	}
	if stats.TotalJobs != 0 {
		t.Fatalf("expected empty root, got %d jobs", stats.TotalJobs)
	}
	if stats.Running {
		t.Fatal("maintenance commands must not start workers")
	}
}

func TestListCommandRejectsInvalidStatus(t *testing.T) {
	_, err := runCommand(t, "list", "--storage-root", t.TempDir(), "--status", "bogus")
	if err == nil {
		t.Fatal("expected error for invalid status filter")
	}
}

func TestCancelCommandUnknownJob(t *testing.T) {
	_, err := runCommand(t, "cancel", "no-such-id", "--storage-root", t.TempDir())
	if err == nil {
		t.Fatal("expected error when cancelling an unknown job")
	}
}

func TestCleanupCommandOnEmptyRoot(t *testing.T) {
	out, err := runCommand(t, "cleanup", "--storage-root", t.TempDir(), "--max-age", "1h")
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if !strings.Contains(out, "removed 0 old jobs") {
		t.Fatalf("unexpected cleanup output: %s", out)
	}
}
