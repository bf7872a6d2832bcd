// Package vaultsync keeps the review store in step with the Markdown vault:
// a full reconciliation pass on start-up and an fsnotify watcher afterwards.
package vaultsync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/starford/ansuz/internal/checksum"
	"github.com/starford/ansuz/internal/parser"
	"github.com/starford/ansuz/internal/storage"
	"github.com/starford/ansuz/internal/store"
)

// Document is a vault file as the review engine sees it.
type Document struct {
	Path       string
	Tags       []string
	Note       bool // carries a track tag: the whole note is reviewed
	Flashcards bool // carries a card tag: its cards are reviewed
	Cards      []store.CardSource
}

// Tracked reports whether the document takes part in review at all.
func (d Document) Tracked() bool { return d.Note || d.Flashcards }

// Target applies reconciled documents. The review service implements it.
type Target interface {
	TrackedPaths() []string
	ApplyDocument(d Document) error
	RemoveDocument(path string) error
	RenameDocument(oldPath, newPath string) error
}

// EventCallback is called after a watcher-driven change.
// kind is one of "created", "updated", "deleted", "moved".
type EventCallback func(kind string, path string)

// Report summarises one Sync pass.
type Report struct {
	Applied int `json:"applied"`
	Skipped int `json:"skipped"`
	Moved   int `json:"moved"`
	Removed int `json:"removed"`
	Failed  int `json:"failed"`
}

// Syncer reads vault documents and feeds them to a Target.
type Syncer struct {
	target    Target
	files     storage.Provider
	trackTags []string
	cardTags  []string
	logger    *slog.Logger

	mu   sync.Mutex
	sums map[string]string // checksum of the last applied content per path
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithTrackTags sets the tags that put a whole note under review.
func WithTrackTags(tags ...string) Option {
	return func(s *Syncer) { s.trackTags = tags }
}

// WithCardTags sets the tags that put a note's flashcards under review.
func WithCardTags(tags ...string) Option {
	return func(s *Syncer) { s.cardTags = tags }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Syncer) { s.logger = l }
}

// New returns a Syncer. The defaults track "review" notes and "flashcards" cards.
func New(t Target, files storage.Provider, opts ...Option) *Syncer {
	s := &Syncer{
		target:    t,
		files:     files,
		trackTags: []string{"review"},
		cardTags:  []string{"flashcards"},
		logger:    slog.Default(),
		sums:      make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Parse turns raw document bytes into a Document.
func (s *Syncer) Parse(path string, data []byte) (Document, error) {
	res, err := parser.Parse(data)
	if err != nil {
		return Document{}, fmt.Errorf("vaultsync: parse %s: %w", path, err)
	}
	d := Document{
		Path:       path,
		Tags:       res.Tags,
		Note:       parser.HasTag(res.Tags, s.trackTags...),
		Flashcards: parser.HasTag(res.Tags, s.cardTags...),
	}
	if d.Flashcards {
		for _, c := range res.Cards {
			d.Cards = append(d.Cards, store.CardSource{LineNo: c.LineNo, Hash: c.Hash, Faces: c.Faces})
		}
	}
	return d, nil
}

// SyncFile reads, parses and applies one document. Unchanged content is
// skipped; the returned flag reports whether anything was applied.
func (s *Syncer) SyncFile(path string) (bool, error) {
	data, err := s.files.Read(path)
	if err != nil {
		return false, err
	}
	sum := checksum.Sum(data)
	s.mu.Lock()
	same := s.sums[path] == sum
	s.mu.Unlock()
	if same {
		return false, nil
	}

	d, err := s.Parse(path, data)
	if err != nil {
		return false, err
	}
	if err := s.target.ApplyDocument(d); err != nil {
		return false, err
	}
	s.mu.Lock()
	s.sums[path] = sum
	s.mu.Unlock()
	return true, nil
}

// Remove drops a document from the target.
func (s *Syncer) Remove(path string) error {
	s.forget(path)
	return s.target.RemoveDocument(path)
}

// Rename moves a tracked document's history to its new path.
func (s *Syncer) Rename(oldPath, newPath string) error {
	s.forget(oldPath)
	return s.target.RenameDocument(oldPath, newPath)
}

func (s *Syncer) forget(path string) {
	s.mu.Lock()
	delete(s.sums, path)
	s.mu.Unlock()
}

// Sync walks the vault and brings the target up to date:
//   - tracked documents that vanished are first matched against moved files
//   - new/changed files are parsed and applied
//   - tracked documents still missing are removed
func (s *Syncer) Sync(ctx context.Context) (Report, error) {
	var rep Report
	docs, err := s.files.List("")
	if err != nil {
		return rep, err
	}
	disk := make(map[string]string, len(docs))
	for _, d := range docs {
		disk[d.Path] = d.Checksum
	}

	tracked := make(map[string]struct{})
	for _, p := range s.target.TrackedPaths() {
		tracked[p] = struct{}{}
	}
	var missing []string
	for p := range tracked {
		if _, ok := disk[p]; !ok {
			missing = append(missing, p)
		}
	}

	for _, p := range missing {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		newPath, found, err := s.files.FindMoved(ctx, p)
		if err != nil {
			s.logger.Warn("sync: find moved failed", slog.String("path", p), slog.String("error", err.Error()))
		}
		if _, taken := tracked[newPath]; found && !taken {
			if err := s.Rename(p, newPath); err == nil {
				tracked[newPath] = struct{}{}
				rep.Moved++
				s.logger.Debug("sync: moved", slog.String("from", p), slog.String("to", newPath))
				continue
			}
		}
		if err := s.Remove(p); err != nil {
			rep.Failed++
			s.logger.Warn("sync: remove failed", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		rep.Removed++
		s.logger.Debug("sync: removed stale", slog.String("path", p))
	}

	for _, d := range docs {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		applied, err := s.SyncFile(d.Path)
		switch {
		case err != nil:
			rep.Failed++
			s.logger.Warn("sync: apply failed", slog.String("path", d.Path), slog.String("error", err.Error()))
		case applied:
			rep.Applied++
			s.logger.Debug("sync: applied", slog.String("path", d.Path))
		default:
			rep.Skipped++
		}
	}
	return rep, nil
}
