package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func tempVault(t *testing.T) *FS {
	t.Helper()
	dir := t.TempDir()
	fs, err := NewFS(dir)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

func put(t *testing.T, s *FS, rel, content string) {
	t.Helper()
	abs := filepath.Join(s.root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestRead(t *testing.T) {
	s := tempVault(t)
	put(t, s, "a/b/c.md", "# Hello\nWorld\n")
	got, err := s.Read("a/b/c.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "# Hello\nWorld\n" {
		t.Errorf("content mismatch: got %q", got)
	}
	if _, err := s.Read("missing.md"); err == nil {
		t.Error("expected error reading missing file")
	}
}

func TestList(t *testing.T) {
	s := tempVault(t)
	put(t, s, "a.md", "a")
	put(t, s, "sub/b.md", "b")
	put(t, s, "readme.txt", "not md")
	put(t, s, ".obsidian/workspace.md", "hidden")

	items, err := s.List("")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 2 {
		t.Errorf("len = %d, want 2", len(items))
	}
	for _, it := range items {
		if it.Path == "sub/b.md" && len(it.Checksum) != 64 {
			t.Errorf("checksum = %q", it.Checksum)
		}
	}

	sub, err := s.List("sub")
	if err != nil || len(sub) != 1 || sub[0].Path != "sub/b.md" {
		t.Errorf("List(sub) = %+v, %v", sub, err)
	}
}

func TestExists(t *testing.T) {
	s := tempVault(t)
	ctx := context.Background()
	put(t, s, "here.md", "x")
	_ = os.Mkdir(filepath.Join(s.root, "dir.md"), 0o755)

	cases := map[string]bool{
		"here.md":      true,
		"gone.md":      false,
		"dir.md":       false,
		"../escape.md": false,
	}
	for p, want := range cases {
		got, err := s.Exists(ctx, p)
		if err != nil {
			t.Fatalf("Exists(%q): %v", p, err)
		}
		if got != want {
			t.Errorf("Exists(%q) = %v, want %v", p, got, want)
		}
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := s.Exists(cancelled, "here.md"); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestFindMoved(t *testing.T) {
	s := tempVault(t)
	ctx := context.Background()
	put(t, s, "archive/algebra.md", "moved")
	put(t, s, "index.md", "a")
	put(t, s, "sub/index.md", "b")

	got, ok, err := s.FindMoved(ctx, "math/algebra.md")
	if err != nil || !ok || got != "archive/algebra.md" {
		t.Errorf("FindMoved = %q, %v, %v", got, ok, err)
	}

	// Two candidates: ambiguous, not a move.
	if _, ok, _ := s.FindMoved(ctx, "old/index.md"); ok {
		t.Error("ambiguous base name reported as moved")
	}
	if _, ok, _ := s.FindMoved(ctx, "nowhere.md"); ok {
		t.Error("missing document reported as moved")
	}
}

func TestRel(t *testing.T) {
	s := tempVault(t)
	got, err := s.Rel(filepath.Join(s.root, "a", "b.md"))
	if err != nil || got != "a/b.md" {
		t.Errorf("Rel = %q, %v", got, err)
	}
	if _, err := s.Rel(filepath.Dir(s.root)); err == nil {
		t.Error("expected error for path outside vault")
	}
}

func TestTraversalBlocked(t *testing.T) {
	s := tempVault(t)

	cases := []string{
		"../../etc/passwd",
		"../outside.md",
		"/etc/shadow",
	}
	for _, p := range cases {
		if _, err := s.Read(p); err == nil {
			t.Errorf("expected error for path %q", p)
		}
		if _, err := s.List(p); err == nil {
			t.Errorf("expected error listing %q", p)
		}
	}
}

func TestNewFS_NonExistentDir(t *testing.T) {
	_, err := NewFS("/tmp/ansuz-does-not-exist-" + t.Name())
	if err == nil {
		t.Error("expected error for non-existent dir")
	}
}

func TestNewFS_FileNotDir(t *testing.T) {
	f, _ := os.CreateTemp("", "ansuz-test-*")
	_ = f.Close()
	defer os.Remove(f.Name())
	_, err := NewFS(f.Name())
	if err == nil {
		t.Error("expected error when root is a file")
	}
}
