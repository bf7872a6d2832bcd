// Package sse streams review events to browser clients as Server-Sent Events.
//
// Every message carries a sequence id. The stream keeps a short backlog so a
// client reconnecting with Last-Event-ID receives what it missed; a client
// that cannot keep up is disconnected and recovers the same way.
package sse

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/starford/ansuz/internal/queue"
	"github.com/starford/ansuz/internal/review"
)

// StaleEvent tells clients to refetch deck counts.
const StaleEvent = "decks.stale"

// StaleHint is the payload of a decks.stale message. All is set when the
// change may touch every deck.
type StaleHint struct {
	All   bool     `json:"all,omitempty"`
	Decks []string `json:"decks,omitempty"`
}

type message struct {
	id  uint64
	raw []byte
}

type client struct {
	ch chan message
}

// Stream fans engine events out to connected clients.
type Stream struct {
	backlogSize int
	bufferSize  int
	staleDelay  time.Duration
	heartbeat   time.Duration
	logger      *slog.Logger

	mu       sync.Mutex
	seq      uint64
	backlog  []message
	clients  map[*client]struct{}
	stale    map[string]struct{}
	allStale bool
	timer    *time.Timer
	closed   bool
}

// Option configures a Stream.
type Option func(*Stream)

// WithBacklog keeps the last n messages for replay.
func WithBacklog(n int) Option {
	return func(s *Stream) { s.backlogSize = n }
}

// WithClientBuffer sets how many messages a client may lag behind before it
// is disconnected.
func WithClientBuffer(n int) Option {
	return func(s *Stream) { s.bufferSize = n }
}

// WithStaleDelay sets how long deck hints are gathered before one
// decks.stale message goes out.
func WithStaleDelay(d time.Duration) Option {
	return func(s *Stream) { s.staleDelay = d }
}

// WithHeartbeat sets the interval of keep-alive comments on open streams.
func WithHeartbeat(d time.Duration) Option {
	return func(s *Stream) { s.heartbeat = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Stream) { s.logger = l }
}

// New returns an open Stream.
func New(opts ...Option) *Stream {
	s := &Stream{
		backlogSize: 128,
		bufferSize:  64,
		staleDelay:  2 * time.Second,
		heartbeat:   25 * time.Second,
		logger:      slog.Default(),
		clients:     make(map[*client]struct{}),
		stale:       make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.heartbeat <= 0 {
		s.heartbeat = 25 * time.Second
	}
	return s
}

// Notify publishes a review event and schedules the deck hint it implies.
// It matches the review.WithPublisher callback.
func (s *Stream) Notify(ev review.Event) {
	s.Publish(ev.Type, ev.Data)
	switch ev.Type {
	case review.EventItemReviewed:
		if out, ok := ev.Data.(queue.ReviewOutcome); ok && out.Deck != "" {
			s.markStale(out.Deck)
			return
		}
		s.markStale("")
	case review.EventQueueBuilt, review.EventAlgoSwitched, review.EventPruned, review.EventVaultChanged:
		s.markStale("")
	}
}

// Publish sends one message to every client.
func (s *Stream) Publish(typ string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		s.logger.Error("sse: encode event", slog.String("type", typ), slog.String("error", err.Error()))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.seq++
	m := message{id: s.seq, raw: []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", s.seq, typ, payload))}
	s.backlog = append(s.backlog, m)
	if over := len(s.backlog) - s.backlogSize; over > 0 {
		s.backlog = slices.Delete(s.backlog, 0, over)
	}
	for c := range s.clients {
		select {
		case c.ch <- m:
		default:
			s.dropLocked(c)
		}
	}
}

// markStale records deck ("" for every deck) for the next decks.stale hint.
func (s *Stream) markStale(deck string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if deck == "" {
		s.allStale = true
	} else {
		s.stale[deck] = struct{}{}
	}
	if s.timer == nil {
		s.timer = time.AfterFunc(s.staleDelay, s.flushStale)
	}
}

func (s *Stream) flushStale() {
	s.mu.Lock()
	hint := StaleHint{All: s.allStale}
	if !hint.All {
		for d := range s.stale {
			hint.Decks = append(hint.Decks, d)
		}
		slices.Sort(hint.Decks)
	}
	s.stale = make(map[string]struct{})
	s.allStale = false
	s.timer = nil
	s.mu.Unlock()

	s.Publish(StaleEvent, hint)
}

// subscribe registers a client and returns the backlog after lastID.
func (s *Stream) subscribe(lastID uint64) (*client, []message) {
	c := &client{ch: make(chan message, s.bufferSize)}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		close(c.ch)
		return c, nil
	}
	var missed []message
	for _, m := range s.backlog {
		if m.id > lastID {
			missed = append(missed, m)
		}
	}
	s.clients[c] = struct{}{}
	return c, missed
}

func (s *Stream) unsubscribe(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c]; ok {
		s.dropLocked(c)
	}
}

func (s *Stream) dropLocked(c *client) {
	delete(s.clients, c)
	close(c.ch)
}

// Clients returns the number of connected clients.
func (s *Stream) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Close ends every client stream. Later events are discarded.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	for c := range s.clients {
		s.dropLocked(c)
	}
}

// ServeHTTP streams events (GET /api/events). A Last-Event-ID header replays
// the retained messages after that id; without it only new events are sent.
func (s *Stream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	lastID, err := strconv.ParseUint(r.Header.Get("Last-Event-ID"), 10, 64)
	if err != nil {
		lastID = math.MaxUint64
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	c, missed := s.subscribe(lastID)
	defer s.unsubscribe(c)
	for _, m := range missed {
		_, _ = w.Write(m.raw)
	}
	flusher.Flush()

	beat := time.NewTicker(s.heartbeat)
	defer beat.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-beat.C:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case m, ok := <-c.ch:
			if !ok {
				return
			}
			_, _ = w.Write(m.raw)
			flusher.Flush()
		}
	}
}
