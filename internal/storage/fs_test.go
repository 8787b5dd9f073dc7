package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func tempRoot(t *testing.T) *FS {
	t.Helper()
	dir := t.TempDir()
	fs, err := NewFS(dir)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

func TestWriteAndRead(t *testing.T) {
	s := tempRoot(t)
	content := []byte("---\nkind: email\n---\nHi team\n")
	if err := s.Write("budget.md", content); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("budget.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content mismatch: got %q", got)
	}
}

func TestMove(t *testing.T) {
	s := tempRoot(t)
	_ = s.Write("inbox/mail.md", []byte("data"))
	if err := s.Move("inbox/mail.md", "inbox/processed/mail.md"); err != nil {
		t.Fatalf("Move: %v", err)
	}
	got, err := s.Read("inbox/processed/mail.md")
	if err != nil {
		t.Fatalf("Read after move: %v", err)
	}
	if string(got) != "data" {
		t.Errorf("content = %q", got)
	}
	if _, err := s.Read("inbox/mail.md"); err == nil {
		t.Error("old path should not exist")
	}
}

func TestList_FlatAndSorted(t *testing.T) {
	s := tempRoot(t)
	_ = s.Write("b.md", []byte("b"))
	_ = s.Write("a.md", []byte("a"))
	_ = s.Write("inbox/c.md", []byte("c"))
	_ = s.Write("readme.txt", []byte("not md"))

	files, err := s.List("")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("len = %d, want 2", len(files))
	}
	if files[0].Path != "a.md" || files[1].Path != "b.md" {
		t.Errorf("order = %s, %s", files[0].Path, files[1].Path)
	}
	if files[0].Checksum != Checksum([]byte("a")) {
		t.Errorf("checksum = %s", files[0].Checksum)
	}

	files, err = s.List("inbox")
	if err != nil {
		t.Fatalf("List inbox: %v", err)
	}
	if len(files) != 1 || files[0].Path != filepath.Join("inbox", "c.md") {
		t.Errorf("inbox files = %+v", files)
	}
}

func TestList_MissingDir(t *testing.T) {
	s := tempRoot(t)
	files, err := s.List("nope")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(files) != 0 {
		t.Errorf("files = %+v", files)
	}
}

func TestTraversalBlocked(t *testing.T) {
	s := tempRoot(t)

	cases := []string{
		"../../etc/passwd",
		"../outside.md",
		"/etc/shadow",
	}
	for _, p := range cases {
		if _, err := s.Read(p); err == nil {
			t.Errorf("expected error for path %q", p)
		}
		if err := s.Write(p, []byte("x")); err == nil {
			t.Errorf("expected error for write to %q", p)
		}
		if _, err := s.Abs(p); !errors.Is(err, ErrOutsideRoot) {
			t.Errorf("Abs(%q) err = %v, want ErrOutsideRoot", p, err)
		}
	}
}

func TestAbs_StaysInsideRoot(t *testing.T) {
	s := tempRoot(t)
	for _, p := range []string{"", "inbox/../a.md", "inbox/processed/x.md", "..hidden.md"} {
		abs, err := s.Abs(p)
		if err != nil {
			t.Errorf("Abs(%q): %v", p, err)
			continue
		}
		if rel, _ := filepath.Rel(s.Root(), abs); rel == ".." {
			t.Errorf("Abs(%q) = %s escapes root", p, abs)
		}
	}
}

func TestChecksum(t *testing.T) {
	if Checksum([]byte("a")) == Checksum([]byte("b")) {
		t.Error("distinct content shares a checksum")
	}
	const empty = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got := Checksum(nil); got != empty {
		t.Errorf("Checksum(nil) = %s", got)
	}
}

func TestAtomicWriteLeavesNoTemp(t *testing.T) {
	s := tempRoot(t)
	_ = s.Write("atomic.md", []byte("original"))
	if err := s.Write("atomic.md", []byte("updated")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, _ := s.Read("atomic.md")
	if string(got) != "updated" {
		t.Errorf("expected updated content, got %q", got)
	}

	matches, _ := filepath.Glob(filepath.Join(s.root, tmpPattern))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestNewFS_NonExistentDir(t *testing.T) {
	_, err := NewFS(filepath.Join(t.TempDir(), "missing"))
	if err == nil {
		t.Error("expected error for non-existent dir")
	}
}

func TestNewFS_FileNotDir(t *testing.T) {
	f, _ := os.CreateTemp("", "taskhive-test-*")
	_ = f.Close()
	defer os.Remove(f.Name())
	_, err := NewFS(f.Name())
	if err == nil {
		t.Error("expected error when root is a file")
	}
}
