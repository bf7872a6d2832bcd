// Package migrate switches the active scheduling algorithm and converts every
// stored payload with it, all or nothing.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"

	"github.com/google/uuid"

	"github.com/starford/ansuz/internal/algo"
	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/clock"
	"github.com/starford/ansuz/internal/item"
	"github.com/starford/ansuz/internal/persist"
	"github.com/starford/ansuz/internal/queue"
	"github.com/starford/ansuz/internal/store"
)

// Outcome reports a completed switch.
type Outcome struct {
	From      item.Kind         `json:"from"`
	To        item.Kind         `json:"to"`
	Converted int               `json:"converted"`
	Pruned    store.PruneReport `json:"pruned"`
	BackupKey string            `json:"backup_key,omitempty"`
}

// Check inspects the converted items before the switch is committed.
type Check func(from, to item.Kind, items []*item.RepetitionItem) error

// Commit makes a converted store durable. It runs last, with the store still
// held; an error rolls the switch back.
type Commit func(ctx context.Context, out Outcome) error

// Migrator performs algorithm switches over one store.
type Migrator struct {
	store     *store.Store
	reg       *algo.Registry
	backup    persist.Persistence
	backupDir string
	queue     func() queue.State
	commit    Commit
	clock     clock.Clock
	logger    *slog.Logger
	checks    []Check
}

// Option configures a Migrator.
type Option func(*Migrator)

// WithBackup writes a snapshot of the store to p under dir before converting.
func WithBackup(p persist.Persistence, dir string) Option {
	return func(m *Migrator) {
		m.backup = p
		m.backupDir = dir
	}
}

// WithQueue includes the queue state returned by fn in the backup snapshot.
func WithQueue(fn func() queue.State) Option {
	return func(m *Migrator) { m.queue = fn }
}

// WithCommit sets the final step of a switch.
func WithCommit(c Commit) Option {
	return func(m *Migrator) { m.commit = c }
}

// WithCheck adds a post-conversion check. A failing check rolls back.
func WithCheck(c Check) Option {
	return func(m *Migrator) { m.checks = append(m.checks, c) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Migrator) { m.logger = l }
}

// New returns a Migrator.
func New(s *store.Store, reg *algo.Registry, c clock.Clock, opts ...Option) *Migrator {
	m := &Migrator{store: s, reg: reg, clock: c, logger: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	m.checks = append([]Check{PayloadShape}, m.checks...)
	return m
}

// Switch converts every item to kind to and activates it.
//
// The store is held exclusively for the duration; concurrent holders get
// ErrBusy. On any failure, the commit included, the store is restored from
// the in-memory snapshot taken first and the previous algorithm is active
// again.
func (m *Migrator) Switch(ctx context.Context, to item.Kind) (out Outcome, err error) {
	release, err := m.store.Acquire()
	if err != nil {
		return Outcome{}, err
	}
	defer release()

	from := m.reg.Active().Kind()
	out = Outcome{From: from, To: to}
	if from == to {
		return out, nil
	}
	target, err := m.reg.Get(to)
	if err != nil {
		return out, err
	}
	if !algo.Supported(from, to) {
		return out, fmt.Errorf("migrate: %w: %q -> %q", apperr.ErrUnsupportedConversion, from, to)
	}

	before := m.store.Snapshot()
	if m.backup != nil {
		key := path.Join(m.backupDir, fmt.Sprintf("%s-%s-%s.json", m.clock.Now().Format("20060102T150405"), from, uuid.NewString()))
		snap := persist.Snapshot{Version: persist.Version, Algorithm: from, Store: before, ModifiedAt: m.clock.Now()}
		if m.queue != nil {
			snap.Queue = m.queue()
		}
		if err := m.backup.Save(ctx, key, snap); err != nil {
			return out, fmt.Errorf("migrate: backup: %w", err)
		}
		out.BackupKey = key
	}

	defer func() {
		if err == nil {
			return
		}
		if rerr := m.store.Restore(before); rerr != nil {
			err = errors.Join(err, fmt.Errorf("migrate: restore: %w", rerr))
		}
		if m.reg.Active().Kind() != from {
			if aerr := m.reg.SetActive(from); aerr != nil {
				err = errors.Join(err, aerr)
			}
		}
		m.logger.Error("migrate: switch rolled back",
			slog.String("from", string(from)),
			slog.String("to", string(to)),
			slog.String("error", err.Error()))
	}()

	out.Pruned = m.store.Prune()
	if err = m.store.Verify(); err != nil {
		return out, fmt.Errorf("migrate: verify: %w", err)
	}
	if err = ctx.Err(); err != nil {
		return out, err
	}

	items := m.store.Items()
	if err = target.Import(from, items); err != nil {
		return out, fmt.Errorf("migrate: import: %w", err)
	}
	for _, c := range m.checks {
		if err = c(from, to, items); err != nil {
			return out, err
		}
	}
	if err = m.reg.SetActive(to); err != nil {
		return out, err
	}
	out.Converted = len(items)
	if m.commit != nil {
		if err = m.commit(ctx, out); err != nil {
			out.Converted = 0
			return out, fmt.Errorf("migrate: commit: %w", err)
		}
	}
	m.logger.Info("migrate: switched algorithm",
		slog.String("from", string(from)),
		slog.String("to", string(to)),
		slog.Int("items", len(items)),
		slog.Int("pruned_items", out.Pruned.Items))
	return out, nil
}

// PayloadShape asserts that every item carries exactly the target payload:
// no legacy fields after a switch to FSRS and no FSRS fields after a switch
// away from it.
func PayloadShape(from, to item.Kind, items []*item.RepetitionItem) error {
	for _, it := range items {
		if err := it.Data.Check(); err != nil {
			return fmt.Errorf("migrate: item %d: %w: %w", it.ID, apperr.ErrPostCondition, err)
		}
		if it.Data.Kind != to {
			return fmt.Errorf("migrate: item %d: %w: kind %q, want %q", it.ID, apperr.ErrPostCondition, it.Data.Kind, to)
		}
		if to == item.KindFSRS && it.Data.HasLegacyFields() {
			return fmt.Errorf("migrate: item %d: %w: legacy fields left", it.ID, apperr.ErrPostCondition)
		}
		if from == item.KindFSRS && it.Data.HasFSRSFields() {
			return fmt.Errorf("migrate: item %d: %w: fsrs fields left", it.ID, apperr.ErrPostCondition)
		}
	}
	return nil
}
