package fsutil

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

func TestOSFileSystem(t *testing.T) {
	fsys := OSFileSystem{}
	dir := filepath.Join(t.TempDir(), "raw", "nested")

	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}

	name := filepath.Join(dir, "session.ndjson")
	w, err := fsys.Create(name)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := w.Write([]byte("line one\n")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if _, err := w.Write([]byte("line two\n")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(name)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if got, want := string(data), "line one\nline two\n"; got != want {
		t.Errorf("file contents = %q, want %q", got, want)
	}
}

func TestOSFileSystemCreateMissingDir(t *testing.T) {
	fsys := OSFileSystem{}
	name := filepath.Join(t.TempDir(), "missing", "session.ndjson")

	if _, err := fsys.Create(name); err == nil {
		t.Error("Expected error creating a file in a missing directory")
	}
}

func TestMemoryFileSystemRoundTrip(t *testing.T) {
	fsys := NewMemoryFileSystem()

	if err := fsys.MkdirAll("data/raw", 0o755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if !fsys.Exists("data/raw") {
		t.Error("Expected data/raw to exist after MkdirAll")
	}
	if !fsys.Exists("data") {
		t.Error("Expected parent directory to exist after MkdirAll")
	}

	w, err := fsys.Create("data/raw/session.ndjson")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := w.Write([]byte("first\n")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	// Writes are visible before Close so tests can observe mid-session
	// flushes.
	data, err := fsys.ReadFile("data/raw/session.ndjson")
	if err != nil {
		t.Fatalf("ReadFile before Close failed: %v", err)
	}
	if string(data) != "first\n" {
		t.Errorf("contents before Close = %q, want %q", data, "first\n")
	}

	if _, err := w.Write([]byte("second\n")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err = fsys.ReadFile("data/raw/session.ndjson")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "first\nsecond\n" {
		t.Errorf("contents = %q, want %q", data, "first\nsecond\n")
	}
}

func TestMemoryFileSystemCreateRequiresDir(t *testing.T) {
	fsys := NewMemoryFileSystem()

	if _, err := fsys.Create("missing/session.ndjson"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Create in missing dir: got %v, want fs.ErrNotExist", err)
	}

	// Root-level files need no directory.
	if _, err := fsys.Create("session.ndjson"); err != nil {
		t.Errorf("Create at root failed: %v", err)
	}
}

func TestMemoryFileSystemWriteAfterClose(t *testing.T) {
	fsys := NewMemoryFileSystem()

	w, err := fsys.Create("session.ndjson")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := w.Write([]byte("late\n")); !errors.Is(err, fs.ErrClosed) {
		t.Errorf("Write after Close: got %v, want fs.ErrClosed", err)
	}
}

func TestMemoryFileSystemCreateTruncates(t *testing.T) {
	fsys := NewMemoryFileSystem()

	w, _ := fsys.Create("session.ndjson")
	w.Write([]byte("old contents\n"))
	w.Close()

	w2, err := fsys.Create("session.ndjson")
	if err != nil {
		t.Fatalf("second Create failed: %v", err)
	}
	w2.Write([]byte("new\n"))

	data, err := fsys.ReadFile("session.ndjson")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "new\n" {
		t.Errorf("contents after re-Create = %q, want %q", data, "new\n")
	}
}

func TestMemoryFileSystemReadMissing(t *testing.T) {
	fsys := NewMemoryFileSystem()

	if _, err := fsys.ReadFile("nope.ndjson"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("ReadFile missing: got %v, want fs.ErrNotExist", err)
	}
	if fsys.Exists("nope.ndjson") {
		t.Error("Exists reported a missing file")
	}
}
