package persist

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/ansuz/internal/apperr"
)

// JSONFile keeps each snapshot in its own JSON file. Keys are paths relative
// to the root directory.
type JSONFile struct {
	root string
}

// NewJSONFile returns a backend rooted at dir, creating it when needed.
func NewJSONFile(dir string) (*JSONFile, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("persist: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("persist: mkdir root: %w", err)
	}
	return &JSONFile{root: abs}, nil
}

func (j *JSONFile) path(key string) (string, error) {
	cleaned := filepath.Clean(key)
	if key == "" || filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("persist: invalid key %q", key)
	}
	abs := filepath.Join(j.root, cleaned)
	if !strings.HasPrefix(abs, j.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("persist: key escapes root: %s", key)
	}
	return abs, nil
}

// Load reads the snapshot stored under key.
func (j *JSONFile) Load(_ context.Context, key string) (Snapshot, error) {
	p, err := j.path(key)
	if err != nil {
		return Snapshot{}, err
	}
	b, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return Snapshot{}, fmt.Errorf("persist: load %s: %w", key, apperr.ErrNotFound)
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("persist: load %s: %w", key, err)
	}
	return Decode(b)
}

// Save atomically writes snap: tmp file → fsync → rename.
func (j *JSONFile) Save(ctx context.Context, key string, snap Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := j.path(key)
	if err != nil {
		return err
	}
	b, err := Encode(snap)
	if err != nil {
		return err
	}
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("persist: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".ansuz-tmp-*")
	if err != nil {
		return fmt.Errorf("persist: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(b); err != nil {
		return fmt.Errorf("persist: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("persist: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("persist: close temp: %w", err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		return fmt.Errorf("persist: rename: %w", err)
	}
	success = true
	return nil
}
