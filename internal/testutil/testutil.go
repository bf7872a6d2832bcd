// Package testutil provides shared test helpers: temporary vaults and
// databases, plus in-memory fakes for the engine's collaborators.
package testutil

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/starford/ansuz/internal/algo"
	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/clock"
	"github.com/starford/ansuz/internal/item"
	"github.com/starford/ansuz/internal/persist"
	"github.com/starford/ansuz/internal/storage"
)

// Logger returns a logger that only prints errors.
func Logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// TestSQLite creates a temporary SQLite database that is automatically cleaned up.
func TestSQLite(t *testing.T) *persist.SQLite {
	t.Helper()
	dbFile, err := os.CreateTemp("", "ansuz-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := persist.OpenSQLite(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestVault creates a temporary vault directory with a storage provider.
func TestVault(t *testing.T) (string, *storage.FS) {
	t.Helper()
	vaultDir := t.TempDir()
	fs, err := storage.NewFS(vaultDir)
	if err != nil {
		t.Fatal(err)
	}
	return vaultDir, fs
}

// WriteNote writes content to rel inside dir, creating parent directories.
func WriteNote(t *testing.T, dir, rel, content string) {
	t.Helper()
	p := filepath.Join(dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// Registry returns a registry holding all four algorithms with default
// settings. sink may be nil.
func Registry(t *testing.T, c clock.Clock, active item.Kind, sink algo.ReviewLogSink) *algo.Registry {
	t.Helper()
	var fopts []algo.FSRSOption
	if sink != nil {
		fopts = append(fopts, algo.WithLogSink(sink))
	}
	reg, err := algo.NewRegistry(active,
		algo.NewDefault(c, algo.DefaultDefaultParams()),
		algo.NewSM2(c, algo.DefaultSM2Params()),
		algo.NewAnki(c, algo.DefaultAnkiParams()),
		algo.NewFSRS(c, algo.DefaultFSRSParams(), fopts...),
	)
	if err != nil {
		t.Fatal(err)
	}
	return reg
}

// Docs is an in-memory DocumentExistence. Every path exists unless marked
// missing, moved or failing.
type Docs struct {
	mu      sync.Mutex
	missing map[string]bool
	moved   map[string]string
	failing map[string]bool
}

// NewDocs returns a Docs where everything exists.
func NewDocs() *Docs {
	return &Docs{
		missing: make(map[string]bool),
		moved:   make(map[string]string),
		failing: make(map[string]bool),
	}
}

// Remove marks path as gone.
func (d *Docs) Remove(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.missing[path] = true
}

// Move marks from as gone and reachable at to.
func (d *Docs) Move(from, to string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.missing[from] = true
	d.moved[from] = to
}

// Fail makes existence checks of path return an error.
func (d *Docs) Fail(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failing[path] = true
}

// Exists implements queue.DocumentExistence.
func (d *Docs) Exists(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failing[path] {
		return false, fmt.Errorf("testutil: stat %s: i/o error", path)
	}
	return !d.missing[path], nil
}

// FindMoved implements queue.DocumentExistence.
func (d *Docs) FindMoved(_ context.Context, path string) (string, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	to, ok := d.moved[path]
	return to, ok, nil
}

// MemPersistence keeps encoded snapshots in memory.
type MemPersistence struct {
	mu   sync.Mutex
	data map[string][]byte

	// SaveErr, when set, is returned by Save for FailKey, or for every key
	// when FailKey is empty.
	SaveErr error
	FailKey string
}

var _ persist.Persistence = (*MemPersistence)(nil)

// NewMemPersistence returns an empty MemPersistence.
func NewMemPersistence() *MemPersistence {
	return &MemPersistence{data: make(map[string][]byte)}
}

// Load implements persist.Persistence.
func (m *MemPersistence) Load(_ context.Context, key string) (persist.Snapshot, error) {
	m.mu.Lock()
	b, ok := m.data[key]
	m.mu.Unlock()
	if !ok {
		return persist.Snapshot{}, fmt.Errorf("testutil: load %s: %w", key, apperr.ErrNotFound)
	}
	return persist.Decode(b)
}

// Save implements persist.Persistence.
func (m *MemPersistence) Save(_ context.Context, key string, snap persist.Snapshot) error {
	if m.SaveErr != nil && (m.FailKey == "" || m.FailKey == key) {
		return m.SaveErr
	}
	b, err := persist.Encode(snap)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = b
	return nil
}

// Keys lists the stored keys.
func (m *MemPersistence) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.data))
	for k := range m.data {
		out = append(out, k)
	}
	return out
}

// Sink is an in-memory ReviewLogSink.
type Sink struct {
	mu   sync.Mutex
	rows []algo.LogRow
}

// Append implements algo.ReviewLogSink.
func (s *Sink) Append(r algo.LogRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, r)
	return nil
}

// Rows returns a copy of the appended rows.
func (s *Sink) Rows() []algo.LogRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]algo.LogRow(nil), s.rows...)
}
