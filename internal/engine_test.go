package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/ansuz/internal/item"
	"github.com/starford/ansuz/internal/migrate"
	"github.com/starford/ansuz/internal/store"
)

func testConfig(t *testing.T, backend string) *Config {
	t.Helper()
	root := t.TempDir()
	cfg := NewDefaultConfig()
	cfg.App.LogLevel = slog.LevelError
	cfg.Vault.Path = filepath.Join(root, "vault")
	cfg.Vault.Watch = false
	cfg.Persist.Backend = backend
	if backend == BackendJSON {
		cfg.Persist.Path = filepath.Join(root, "state")
		cfg.Persist.RevlogPath = filepath.Join(root, "revlog.db")
	} else {
		cfg.Persist.Path = filepath.Join(root, "ansuz.db")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}

	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		t.Fatal(err)
	}
	note := "#flashcards #chemistry\nH2O::water\nNaCl::salt\n"
	if err := os.WriteFile(filepath.Join(cfg.Vault.Path, "chem.md"), []byte(note), 0o644); err != nil {
		t.Fatal(err)
	}
	return cfg
}

func runJSON[T any](t *testing.T, fn func(*bytes.Buffer) error) T {
	t.Helper()
	var buf bytes.Buffer
	if err := fn(&buf); err != nil {
		t.Fatal(err)
	}
	var v T
	if err := json.Unmarshal(buf.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	return v
}

func TestCommandsPersistAcrossRuns(t *testing.T) {
	for _, backend := range []string{BackendJSON, BackendSQLite} {
		t.Run(backend, func(t *testing.T) {
			cfg := testConfig(t, backend)
			ctx := context.Background()
			opts := func(buf *bytes.Buffer) []Option {
				return []Option{WithConfig(cfg), WithOutput(buf)}
			}

			q := runJSON[QueueReport](t, func(buf *bytes.Buffer) error { return RunQueue(ctx, opts(buf)...) })
			if q.Algorithm != item.KindFSRS || q.Build.Admitted != 2 {
				t.Fatalf("first queue = %+v", q)
			}
			if len(q.Decks) != 1 || q.Decks[0].Name != "chemistry" {
				t.Errorf("decks = %+v", q.Decks)
			}

			out := runJSON[migrate.Outcome](t, func(buf *bytes.Buffer) error {
				return RunSwitch(ctx, item.KindAnki, opts(buf)...)
			})
			if out.Converted != 2 || out.BackupKey == "" {
				t.Errorf("switch = %+v", out)
			}

			// The saved algorithm wins over algorithm.active on the next run,
			// and items admitted today are not admitted twice.
			q = runJSON[QueueReport](t, func(buf *bytes.Buffer) error { return RunQueue(ctx, opts(buf)...) })
			if q.Algorithm != item.KindAnki || q.Build.Admitted != 0 || q.Status.NewAdded.Cards != 2 {
				t.Errorf("second queue = %+v", q)
			}

			if err := os.Remove(filepath.Join(cfg.Vault.Path, "chem.md")); err != nil {
				t.Fatal(err)
			}
			rep := runJSON[store.PruneReport](t, func(buf *bytes.Buffer) error { return RunPrune(ctx, opts(buf)...) })
			if rep.Items != 2 {
				t.Errorf("prune = %+v", rep)
			}
		})
	}
}

func TestSwitchRejectsUnknownAlgorithm(t *testing.T) {
	cfg := testConfig(t, BackendJSON)
	if err := RunSwitch(context.Background(), "leitner", WithConfig(cfg)); err == nil {
		t.Error("unknown algorithm accepted")
	}
}

func TestCommandsRequireConfig(t *testing.T) {
	if err := RunQueue(context.Background()); err == nil {
		t.Error("missing config accepted")
	}
}
