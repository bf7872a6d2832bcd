// Package review is the single logical owner of the engine: it serialises
// every mutation of the item store, the queue and the active algorithm, and
// persists the result.
package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/ansuz/internal/algo"
	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/balance"
	"github.com/starford/ansuz/internal/clock"
	"github.com/starford/ansuz/internal/item"
	"github.com/starford/ansuz/internal/migrate"
	"github.com/starford/ansuz/internal/persist"
	"github.com/starford/ansuz/internal/queue"
	"github.com/starford/ansuz/internal/storage"
	"github.com/starford/ansuz/internal/store"
)

// DefaultStateKey is the persistence key of the engine snapshot.
const DefaultStateKey = "ansuz-state.json"

// Event is published after every successful mutation.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Event types.
const (
	EventQueueBuilt   = "queue.built"
	EventItemReviewed = "item.reviewed"
	EventAlgoSwitched = "algorithm.switched"
	EventPruned       = "store.pruned"
	EventVaultChanged = "vault.changed"
)

// AlgorithmSettings selects the active algorithm and holds the settings of
// every algorithm.
type AlgorithmSettings struct {
	Active  item.Kind
	Default algo.DefaultParams
	SM2     algo.SM2Params
	Anki    algo.AnkiParams
	FSRS    algo.FSRSParams
}

// DefaultAlgorithmSettings returns stock settings with FSRS active.
func DefaultAlgorithmSettings() AlgorithmSettings {
	return AlgorithmSettings{
		Active:  item.KindFSRS,
		Default: algo.DefaultDefaultParams(),
		SM2:     algo.DefaultSM2Params(),
		Anki:    algo.DefaultAnkiParams(),
		FSRS:    algo.DefaultFSRSParams(),
	}
}

// Service owns the store, the queue, the algorithm registry and the
// migrator. All exported methods are safe for concurrent use.
type Service struct {
	mu sync.Mutex

	store    *store.Store
	queue    *queue.Queue
	reg      *algo.Registry
	migrator *migrate.Migrator

	persist   persist.Persistence
	stateKey  string
	backupDir string
	files     storage.Provider
	docs      queue.DocumentExistence
	sink      algo.ReviewLogSink
	clock     clock.Clock
	logger    *slog.Logger
	publish   func(Event)

	algos     AlgorithmSettings
	queueOpts queue.Options
	storeOpts []store.Option
	syncOpts  store.SyncOptions

	dirty bool
}

// Option configures a Service.
type Option func(*Service)

// WithFiles sets the vault provider used to resolve documents and render
// prompts. It also serves as the document-existence check unless
// WithDocuments overrides it.
func WithFiles(f storage.Provider) Option {
	return func(s *Service) { s.files = f }
}

// WithDocuments sets the document-existence check used by BuildQueue.
func WithDocuments(d queue.DocumentExistence) Option {
	return func(s *Service) { s.docs = d }
}

// WithStateKey sets the persistence key of the snapshot.
func WithStateKey(key string) Option {
	return func(s *Service) { s.stateKey = key }
}

// WithBackupDir sets the key prefix of pre-switch backups.
func WithBackupDir(dir string) Option {
	return func(s *Service) { s.backupDir = dir }
}

// WithLogSink receives FSRS review-log rows.
func WithLogSink(sink algo.ReviewLogSink) Option {
	return func(s *Service) { s.sink = sink }
}

// WithClock sets the time source.
func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithPublisher receives an Event after every successful mutation.
func WithPublisher(fn func(Event)) Option {
	return func(s *Service) { s.publish = fn }
}

// WithAlgorithms sets the algorithm settings.
func WithAlgorithms(a AlgorithmSettings) Option {
	return func(s *Service) { s.algos = a }
}

// WithQueueOptions sets the queue options.
func WithQueueOptions(o queue.Options) Option {
	return func(s *Service) { s.queueOpts = o }
}

// WithStoreOptions sets the store options (type tags, default deck).
func WithStoreOptions(opts ...store.Option) Option {
	return func(s *Service) { s.storeOpts = opts }
}

// WithTreatUnmatchedAsNew resolves ambiguous card matches by creating new
// cards instead of failing the document.
func WithTreatUnmatchedAsNew(v bool) Option {
	return func(s *Service) { s.syncOpts.TreatUnmatchedAsNew = v }
}

// New builds a Service over persistence p. Call Load before use to pick up
// a saved snapshot.
func New(p persist.Persistence, opts ...Option) (*Service, error) {
	s := &Service{
		persist:   p,
		stateKey:  DefaultStateKey,
		backupDir: "backups",
		clock:     clock.System{},
		logger:    slog.Default(),
		algos:     DefaultAlgorithmSettings(),
		queueOpts: queue.DefaultOptions(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.docs == nil {
		if s.files == nil {
			return nil, errors.New("review: no document source configured")
		}
		s.docs = s.files
	}

	s.store = store.New(s.storeOpts...)

	fopts := []algo.FSRSOption{algo.WithShownTracker(shownTracker{s}), algo.WithLogger(s.logger)}
	if s.sink != nil {
		fopts = append(fopts, algo.WithLogSink(s.sink))
	}
	reg, err := algo.NewRegistry(s.algos.Active,
		algo.NewDefault(s.clock, s.algos.Default),
		algo.NewSM2(s.clock, s.algos.SM2, algo.WithBalancer(balance.New(), s.store.DueHistogram)),
		algo.NewAnki(s.clock, s.algos.Anki),
		algo.NewFSRS(s.clock, s.algos.FSRS, fopts...),
	)
	if err != nil {
		return nil, fmt.Errorf("review: %w", err)
	}
	s.reg = reg
	s.queue = queue.New(s.store, reg, s.docs, s.clock, s.queueOpts, s.logger)
	s.migrator = migrate.New(s.store, reg, s.clock,
		migrate.WithBackup(p, s.backupDir),
		migrate.WithQueue(s.queue.State),
		migrate.WithCommit(s.commitSwitch),
		migrate.WithLogger(s.logger))
	return s, nil
}

// shownTracker exposes the queue's shown-at times to FSRS. It is only
// consulted from inside ReviewID, with the service lock held.
type shownTracker struct{ s *Service }

func (t shownTracker) ShownAt(id int) (time.Time, bool) { return t.s.queue.ShownAt(id) }

// Load restores the saved snapshot. A missing snapshot starts empty. An
// inconsistent snapshot is rejected with ErrConsistency and nothing is
// loaded. The snapshot's algorithm becomes active; call Switch to move to
// another one.
func (s *Service) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.persist.Load(ctx, s.stateKey)
	if errors.Is(err, apperr.ErrNotFound) {
		s.logger.Info("review: no saved state, starting empty", slog.String("key", s.stateKey))
		return nil
	}
	if err != nil {
		return fmt.Errorf("review: load: %w", err)
	}
	empty := s.store.Snapshot()
	if err := s.store.Restore(snap.Store); err != nil {
		return fmt.Errorf("review: load: %w", err)
	}
	if err := s.store.Verify(); err != nil {
		if rerr := s.store.Restore(empty); rerr != nil {
			err = errors.Join(err, rerr)
		}
		return fmt.Errorf("review: load %s: %w", s.stateKey, err)
	}
	s.queue.Restore(snap.Queue)
	if snap.Algorithm != "" {
		if err := s.reg.SetActive(snap.Algorithm); err != nil {
			return fmt.Errorf("review: load: %w", err)
		}
	}
	s.logger.Info("review: state loaded",
		slog.String("algorithm", string(s.reg.Active().Kind())),
		slog.Int("items", s.store.Len()))
	return nil
}

// Save persists the current state.
func (s *Service) Save(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(ctx)
}

// Flush persists the state if anything changed since the last save.
func (s *Service) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return nil
	}
	return s.saveLocked(ctx)
}

func (s *Service) saveLocked(ctx context.Context) error {
	snap := persist.Snapshot{
		Version:    persist.Version,
		Algorithm:  s.reg.Active().Kind(),
		Store:      s.store.Snapshot(),
		Queue:      s.queue.State(),
		ModifiedAt: s.clock.Now(),
	}
	if err := s.persist.Save(ctx, s.stateKey, snap); err != nil {
		return fmt.Errorf("review: save: %w", err)
	}
	s.dirty = false
	return nil
}

func (s *Service) emit(typ string, data any) {
	if s.publish != nil {
		s.publish(Event{Type: typ, Data: data})
	}
}

// Algorithm returns the active algorithm kind and its response options.
func (s *Service) Algorithm() (item.Kind, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.reg.Active()
	return a.Kind(), a.Options()
}

// Switch converts every item to kind to and makes it active.
func (s *Service) Switch(ctx context.Context, to item.Kind) (migrate.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out, err := s.migrator.Switch(ctx, to)
	if err != nil {
		return out, err
	}
	if out.From == out.To {
		return out, nil
	}
	s.emit(EventAlgoSwitched, out)
	return out, nil
}

// commitSwitch persists a converted store from inside the migrator, so a
// failed save rolls the whole switch back.
func (s *Service) commitSwitch(ctx context.Context, _ migrate.Outcome) error {
	before := s.queue.State()
	s.queue.Sweep()
	if err := s.saveLocked(ctx); err != nil {
		s.queue.Restore(before)
		return err
	}
	return nil
}

// Prune deletes tombstoned items and reclaims empty file slots. If the pruned
// store fails verification the prune is undone and the error returned.
func (s *Service) Prune(ctx context.Context) (store.PruneReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	release, err := s.store.Acquire()
	if err != nil {
		return store.PruneReport{}, err
	}
	before := s.store.Snapshot()
	rep := s.store.Prune()
	verr := s.store.Verify()
	if verr != nil {
		if rerr := s.store.Restore(before); rerr != nil {
			verr = errors.Join(verr, rerr)
		}
	}
	release()
	if verr != nil {
		return store.PruneReport{}, fmt.Errorf("review: prune: %w", verr)
	}
	s.queue.Sweep()
	if err := s.saveLocked(ctx); err != nil {
		return rep, err
	}
	s.emit(EventPruned, rep)
	return rep, nil
}
