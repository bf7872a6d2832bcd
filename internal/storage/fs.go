package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/ansuz/internal/checksum"
	"github.com/starford/ansuz/internal/models"
)

// FS implements Provider backed by the local file system.
type FS struct {
	root string // absolute path to vault directory
}

var _ Provider = (*FS)(nil)

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute vault directory.
func (f *FS) Root() string { return f.root }

// Rel converts an absolute path under the root to a vault path.
func (f *FS) Rel(abs string) (string, error) {
	rel, err := filepath.Rel(f.root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("storage: path outside vault: %s", abs)
	}
	return filepath.ToSlash(rel), nil
}

// safePath resolves a relative path against the vault root and rejects
// any result that escapes it (directory traversal).
func (f *FS) safePath(rel string) (string, error) {
	if rel == "" {
		return f.root, nil
	}
	cleaned := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("storage: absolute paths not allowed: %s", rel)
	}
	joined := filepath.Join(f.root, cleaned)
	abs, err := filepath.Abs(joined)
	if err != nil {
		return "", fmt.Errorf("storage: resolve path: %w", err)
	}
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) && abs != f.root {
		return "", fmt.Errorf("storage: path escapes vault root: %s", rel)
	}
	return abs, nil
}

// IsDocument reports whether name is a Markdown document.
func IsDocument(name string) bool {
	return strings.HasSuffix(name, ".md")
}

// hidden directories (.git, .obsidian, .trash) are never part of the vault.
func hidden(name string) bool {
	return len(name) > 1 && strings.HasPrefix(name, ".")
}

// walk calls fn with the vault path of every document under base.
func (f *FS) walk(ctx context.Context, base string, fn func(rel string, d fs.DirEntry, abs string) error) error {
	return filepath.WalkDir(base, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if p != base && hidden(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !IsDocument(d.Name()) {
			return nil
		}
		rel, err := f.Rel(p)
		if err != nil {
			return err
		}
		return fn(rel, d, p)
	})
}

// List walks dir (relative to root) and returns metadata for every .md file.
func (f *FS) List(dir string) ([]models.Document, error) {
	base, err := f.safePath(dir)
	if err != nil {
		return nil, err
	}
	var out []models.Document
	err = f.walk(context.Background(), base, func(rel string, d fs.DirEntry, abs string) error {
		info, err := d.Info()
		if err != nil {
			return err
		}
		data, err := os.ReadFile(abs)
		if err != nil {
			return err
		}
		out = append(out, models.Document{
			Path:      rel,
			Checksum:  checksum.Sum(data),
			UpdatedAt: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	return out, nil
}

// Read returns the raw bytes of a vault file.
func (f *FS) Read(path string) ([]byte, error) {
	abs, err := f.safePath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", path, err)
	}
	return data, nil
}

// Exists reports whether path is a regular file in the vault. Paths that
// escape the root are reported as absent.
func (f *FS) Exists(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	abs, err := f.safePath(path)
	if err != nil {
		return false, nil
	}
	info, err := os.Stat(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("storage: stat %s: %w", path, err)
	}
	return info.Mode().IsRegular(), nil
}

// Candidates returns every document whose base name is name.
func (f *FS) Candidates(ctx context.Context, name string) ([]string, error) {
	var out []string
	err := f.walk(ctx, f.root, func(rel string, d fs.DirEntry, _ string) error {
		if d.Name() == name {
			out = append(out, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: find %s: %w", name, err)
	}
	return out, nil
}

// FindMoved reports the new path of a vanished document when exactly one
// other document carries the same base name.
func (f *FS) FindMoved(ctx context.Context, path string) (string, bool, error) {
	cands, err := f.Candidates(ctx, filepath.Base(filepath.FromSlash(path)))
	if err != nil {
		return "", false, err
	}
	var found []string
	for _, c := range cands {
		if c != path {
			found = append(found, c)
		}
	}
	if len(found) != 1 {
		return "", false, nil
	}
	return found[0], true, nil
}
