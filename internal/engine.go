package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/starford/ansuz/internal/algo"
	"github.com/starford/ansuz/internal/persist"
	"github.com/starford/ansuz/internal/review"
	"github.com/starford/ansuz/internal/storage"
	"github.com/starford/ansuz/internal/store"
	"github.com/starford/ansuz/internal/vaultsync"
)

// engine is the review service wired to its vault and persistence.
type engine struct {
	svc    *review.Service
	syncer *vaultsync.Syncer
	files  *storage.FS
	closer io.Closer
}

func (e *engine) Close() error {
	if e.closer == nil {
		return nil
	}
	return e.closer.Close()
}

func newApplication(opts []Option) (*application, error) {
	app := &application{version: "dev", out: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// openEngine loads the saved state and reconciles it with the vault. The
// saved algorithm stays active; algorithm.active only seeds a fresh state.
func openEngine(ctx context.Context, cfg *Config, logger *slog.Logger, publish func(review.Event)) (*engine, error) {
	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create vault dir: %w", err)
	}
	files, err := storage.NewFS(cfg.Vault.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	p, sink, closer, err := openPersistence(cfg.Persist)
	if err != nil {
		return nil, err
	}
	e := &engine{files: files, closer: closer}

	opts := []review.Option{
		review.WithFiles(files),
		review.WithBackupDir(cfg.Persist.BackupPath),
		review.WithLogger(logger),
		review.WithAlgorithms(cfg.Algorithm.Settings()),
		review.WithQueueOptions(cfg.Review.QueueOptions()),
		review.WithStoreOptions(
			store.WithTypeTags(cfg.Vault.TypeTags()...),
			store.WithDefaultDeck(cfg.Review.DefaultDeck),
		),
		review.WithTreatUnmatchedAsNew(cfg.Review.TreatUnmatchedAsNew),
	}
	if sink != nil {
		opts = append(opts, review.WithLogSink(sink))
	}
	if publish != nil {
		opts = append(opts, review.WithPublisher(publish))
	}
	svc, err := review.New(p, opts...)
	if err != nil {
		return nil, errors.Join(err, e.Close())
	}
	if err := svc.Load(ctx); err != nil {
		return nil, errors.Join(err, e.Close())
	}
	e.svc = svc

	e.syncer = vaultsync.New(svc, files,
		vaultsync.WithTrackTags(cfg.Vault.TrackTags...),
		vaultsync.WithCardTags(cfg.Vault.CardTags...),
		vaultsync.WithLogger(logger))
	rep, err := e.syncer.Sync(ctx)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("initial sync: %w", err), e.Close())
	}
	logger.Info("Vault synced",
		slog.Int("applied", rep.Applied),
		slog.Int("skipped", rep.Skipped),
		slog.Int("moved", rep.Moved),
		slog.Int("removed", rep.Removed),
		slog.Int("failed", rep.Failed))
	if err := svc.Flush(ctx); err != nil {
		return nil, errors.Join(err, e.Close())
	}
	return e, nil
}

// openPersistence returns the state backend, the FSRS review-log sink (nil
// when none is configured) and the closer of any database it opened.
func openPersistence(c PersistConfig) (persist.Persistence, algo.ReviewLogSink, io.Closer, error) {
	if c.Backend == BackendSQLite {
		db, err := persist.OpenSQLite(c.Path)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("init persistence: %w", err)
		}
		return db, db, db, nil
	}

	jf, err := persist.NewJSONFile(c.Path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init persistence: %w", err)
	}
	if c.RevlogPath == "" {
		return jf, nil, nil, nil
	}
	db, err := persist.OpenSQLite(c.RevlogPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init review log: %w", err)
	}
	return jf, db, db, nil
}
