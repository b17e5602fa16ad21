package workspace

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/polytope-vcs/polytope/internal/agent"
)

// TestCheckoutWritesFiles exercises the on-disk projection spec.md §6
// describes: a checked-out workspace's files must round-trip through
// the text agent's WriteToDisk byte-for-byte, and its directories must
// exist as real filesystem directories.
func TestCheckoutWritesFiles(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)
	ctx := context.Background()

	proj, err := m.CreateProject(ctx, "proj1", "", "alice", 0)
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	ws, err := m.CreateWorkspace(ctx, proj.Name, proj.RootHistory, "ws1")
	if err != nil {
		t.Fatalf("CreateWorkspace: %v", err)
	}

	if _, err := m.AddFile(ctx, ws.ID, "alice", "dir", agent.TypeDirectory, mustEncodeDir(t), 1); err != nil {
		t.Fatalf("AddFile dir: %v", err)
	}
	if _, err := m.AddFile(ctx, ws.ID, "alice", "dir/file.txt", agent.TypeText, []byte("hello\n"), 1); err != nil {
		t.Fatalf("AddFile dir/file.txt: %v", err)
	}

	dest := t.TempDir()
	if err := m.Checkout(ctx, ws.ID, dest); err != nil {
		t.Fatalf("Checkout: %v", err)
	}

	fi, err := os.Stat(filepath.Join(dest, "dir"))
	if err != nil || !fi.IsDir() {
		t.Fatalf("dir not materialised as a directory: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(dest, "dir", "file.txt"))
	if err != nil {
		t.Fatalf("ReadFile dir/file.txt: %v", err)
	}
	if string(got) != "hello\n" {
		t.Errorf("dir/file.txt content = %q, want %q", got, "hello\n")
	}
}

// TestDiskStatus exercises the ReadFromDisk side of the FileAgent
// interface: a file edited on disk outside the dirty overlay must be
// reported as diverged from the workspace's effective content.
func TestDiskStatus(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)
	ctx := context.Background()

	proj, err := m.CreateProject(ctx, "proj1", "", "alice", 0)
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	ws, err := m.CreateWorkspace(ctx, proj.Name, proj.RootHistory, "ws1")
	if err != nil {
		t.Fatalf("CreateWorkspace: %v", err)
	}
	if _, err := m.AddFile(ctx, ws.ID, "alice", "file.txt", agent.TypeText, []byte("hello\n"), 1); err != nil {
		t.Fatalf("AddFile: %v", err)
	}

	dest := t.TempDir()
	if err := m.Checkout(ctx, ws.ID, dest); err != nil {
		t.Fatalf("Checkout: %v", err)
	}

	_, dirty, err := m.DiskStatus(ctx, ws.ID, dest, "file.txt")
	if err != nil {
		t.Fatalf("DiskStatus (clean): %v", err)
	}
	if dirty {
		t.Errorf("DiskStatus reported dirty immediately after Checkout")
	}

	if err := os.WriteFile(filepath.Join(dest, "file.txt"), []byte("edited\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	diskContent, dirty, err := m.DiskStatus(ctx, ws.ID, dest, "file.txt")
	if err != nil {
		t.Fatalf("DiskStatus (edited): %v", err)
	}
	if !dirty {
		t.Errorf("DiskStatus did not notice an out-of-band edit")
	}
	if string(diskContent) != "edited\n" {
		t.Errorf("diskContent = %q, want %q", diskContent, "edited\n")
	}
}
