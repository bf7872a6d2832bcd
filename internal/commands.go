package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/starford/ansuz/internal/item"
	"github.com/starford/ansuz/internal/mcpserver"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/queue"
)

// stderrLogger keeps stdout free for command output and the MCP transport.
func stderrLogger(cfg *Config) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

// withEngine opens the engine, runs fn and persists the result.
func withEngine(ctx context.Context, opts []Option, fn func(*application, *engine) error) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger := stderrLogger(app.config)
	eng, err := openEngine(ctx, app.config, logger, nil)
	if err != nil {
		return err
	}
	defer eng.Close()
	if err := fn(app, eng); err != nil {
		return err
	}
	return eng.svc.Flush(ctx)
}

func (a *application) print(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// RunMCP serves the review tools over stdio until stdin closes.
func RunMCP(ctx context.Context, opts ...Option) error {
	return withEngine(ctx, opts, func(app *application, eng *engine) error {
		if _, err := eng.svc.BuildQueue(ctx); err != nil {
			return fmt.Errorf("build queue: %w", err)
		}
		wctx, cancel := context.WithCancel(ctx)
		defer cancel()
		if app.config.Vault.Watch {
			go func() {
				err := eng.syncer.Watch(wctx, eng.files.Root(), func(string, string) {
					_ = eng.svc.Flush(wctx)
				})
				if err != nil {
					slog.Error("vault watcher stopped", slog.String("error", err.Error()))
				}
			}()
		}
		return mcpserver.New(eng.svc, eng.files, app.version).ServeStdio()
	})
}

// QueueReport is printed by the queue command.
type QueueReport struct {
	Build     queue.BuildReport    `json:"build"`
	Algorithm item.Kind            `json:"algorithm"`
	Decks     []models.DeckSummary `json:"decks"`
	Status    queue.Status         `json:"status"`
}

// RunQueue syncs the vault, rebuilds the queue and prints a summary.
func RunQueue(ctx context.Context, opts ...Option) error {
	return withEngine(ctx, opts, func(app *application, eng *engine) error {
		rep, err := eng.svc.BuildQueue(ctx)
		if err != nil {
			return fmt.Errorf("build queue: %w", err)
		}
		kind, _ := eng.svc.Algorithm()
		return app.print(QueueReport{
			Build:     rep,
			Algorithm: kind,
			Decks:     eng.svc.Decks(),
			Status:    eng.svc.Status(),
		})
	})
}

// RunSwitch converts every item to algorithm to and prints the outcome.
func RunSwitch(ctx context.Context, to item.Kind, opts ...Option) error {
	if !to.Valid() {
		return fmt.Errorf("unknown algorithm %q", to)
	}
	return withEngine(ctx, opts, func(app *application, eng *engine) error {
		out, err := eng.svc.Switch(ctx, to)
		if err != nil {
			return fmt.Errorf("switch algorithm: %w", err)
		}
		return app.print(out)
	})
}

// RunPrune deletes tombstoned items and prints what was removed.
func RunPrune(ctx context.Context, opts ...Option) error {
	return withEngine(ctx, opts, func(app *application, eng *engine) error {
		rep, err := eng.svc.Prune(ctx)
		if err != nil {
			return fmt.Errorf("prune: %w", err)
		}
		return app.print(rep)
	})
}
