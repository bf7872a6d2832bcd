// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/ansuz/internal/api"
	"github.com/starford/ansuz/internal/sse"
)

// queueRefresh is how often a running server rebuilds the queue so items
// falling due and the midnight quota reset are picked up without a client.
const queueRefresh = 15 * time.Minute

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("persist_backend", cfg.Persist.Backend),
		slog.String("persist_path", cfg.Persist.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Event stream for browser clients.
	stream := sse.New(sse.WithLogger(logger))
	defer stream.Close()

	eng, err := openEngine(ctx, cfg, logger, stream.Notify)
	if err != nil {
		return err
	}
	defer eng.Close()
	svc := eng.svc

	if _, err := svc.BuildQueue(ctx); err != nil {
		return fmt.Errorf("build queue: %w", err)
	}

	apiRouter := api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, stream)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Start vault watcher. The service publishes vault.changed itself.
	if cfg.Vault.Watch {
		g.Go(func() error {
			err := eng.syncer.Watch(gCtx, eng.files.Root(), func(kind, path string) {
				if err := svc.Flush(gCtx); err != nil {
					logger.Error("state flush failed", slog.String("error", err.Error()))
				}
				logger.Debug("vault change applied", slog.String("kind", kind), slog.String("path", path))
			})
			if err != nil {
				logger.Error("vault watcher stopped", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// Periodic queue refresh.
	g.Go(func() error {
		t := time.NewTicker(queueRefresh)
		defer t.Stop()
		for {
			select {
			case <-gCtx.Done():
				return nil
			case <-t.C:
				if _, err := svc.BuildQueue(gCtx); err != nil && !errors.Is(err, context.Canceled) {
					logger.Warn("queue refresh failed", slog.String("error", err.Error()))
				}
			}
		}
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	if err := svc.Save(context.Background()); err != nil {
		logger.Error("final state save failed", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown stops the rest of the group once the server has shut down.
var errShutdown = errors.New("shutdown")
