package sse

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/starford/ansuz/internal/queue"
	"github.com/starford/ansuz/internal/review"
)

func next(t *testing.T, c *client) string {
	t.Helper()
	select {
	case m, ok := <-c.ch:
		if !ok {
			t.Fatal("client closed")
		}
		return string(m.raw)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
	return ""
}

func hint(t *testing.T, msg string) StaleHint {
	t.Helper()
	if !strings.Contains(msg, "event: "+StaleEvent+"\n") {
		t.Fatalf("not a stale hint: %q", msg)
	}
	_, data, _ := strings.Cut(msg, "data: ")
	var h StaleHint
	if err := json.Unmarshal([]byte(strings.TrimSpace(data)), &h); err != nil {
		t.Fatal(err)
	}
	return h
}

func TestNotifyReviewHintsItsDeck(t *testing.T) {
	s := New(WithStaleDelay(20 * time.Millisecond))
	defer s.Close()
	c, _ := s.subscribe(0)

	s.Notify(review.Event{Type: review.EventItemReviewed, Data: queue.ReviewOutcome{ID: 4, Deck: "biology", Correct: true}})

	msg := next(t, c)
	if !strings.HasPrefix(msg, "id: 1\nevent: item.reviewed\n") || !strings.Contains(msg, `"deck":"biology"`) {
		t.Errorf("message = %q", msg)
	}
	if h := hint(t, next(t, c)); h.All || !reflect.DeepEqual(h.Decks, []string{"biology"}) {
		t.Errorf("hint = %+v", h)
	}
}

func TestStaleHintsCoalesce(t *testing.T) {
	s := New(WithStaleDelay(50 * time.Millisecond))
	defer s.Close()
	c, _ := s.subscribe(0)

	for _, deck := range []string{"spanish", "chemistry", "spanish"} {
		s.Notify(review.Event{Type: review.EventItemReviewed, Data: queue.ReviewOutcome{Deck: deck}})
	}
	for i := 0; i < 3; i++ {
		next(t, c)
	}
	if h := hint(t, next(t, c)); !reflect.DeepEqual(h.Decks, []string{"chemistry", "spanish"}) {
		t.Errorf("hint = %+v", h)
	}
	select {
	case m := <-c.ch:
		t.Errorf("extra message %q", m.raw)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestVaultChangeMarksEveryDeck(t *testing.T) {
	s := New(WithStaleDelay(10 * time.Millisecond))
	defer s.Close()
	c, _ := s.subscribe(0)

	s.Notify(review.Event{Type: review.EventItemReviewed, Data: queue.ReviewOutcome{Deck: "math"}})
	s.Notify(review.Event{Type: review.EventVaultChanged, Data: map[string]string{"path": "a.md"}})
	next(t, c)
	if msg := next(t, c); !strings.Contains(msg, "event: vault.changed") {
		t.Fatalf("message = %q", msg)
	}
	if h := hint(t, next(t, c)); !h.All || len(h.Decks) != 0 {
		t.Errorf("hint = %+v", h)
	}
}

func TestReplayAfterLastEventID(t *testing.T) {
	s := New(WithBacklog(2))
	defer s.Close()
	for i := 1; i <= 3; i++ {
		s.Publish("queue.built", map[string]int{"admitted": i})
	}

	_, missed := s.subscribe(1)
	if len(missed) != 2 || missed[0].id != 2 || missed[1].id != 3 {
		t.Fatalf("missed = %+v", missed)
	}
	// The backlog keeps only the last two messages.
	if _, missed := s.subscribe(0); len(missed) != 2 || missed[0].id != 2 {
		t.Errorf("backlog = %+v", missed)
	}
}

func TestLaggingClientIsDisconnected(t *testing.T) {
	s := New(WithClientBuffer(1))
	defer s.Close()
	slow, _ := s.subscribe(0)

	s.Publish("item.reviewed", map[string]int{"id": 1})
	s.Publish("item.reviewed", map[string]int{"id": 2})

	if s.Clients() != 0 {
		t.Errorf("clients = %d, want 0", s.Clients())
	}
	<-slow.ch
	if _, ok := <-slow.ch; ok {
		t.Error("lagging client not closed")
	}
}

func TestServeHTTPReplaysAndStreams(t *testing.T) {
	s := New()
	defer s.Close()
	s.Publish("queue.built", map[string]int{"admitted": 3})
	s.Publish("item.reviewed", map[string]int{"id": 7})

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	req.Header.Set("Last-Event-ID", "1")
	w := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		s.ServeHTTP(w, req)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for s.Clients() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("handler never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	s.Publish("algorithm.switched", map[string]string{"to": "fsrs"})
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	body := w.Body.String()
	if strings.Contains(body, "event: queue.built") {
		t.Error("message before Last-Event-ID replayed")
	}
	if !strings.Contains(body, "id: 2\nevent: item.reviewed") || !strings.Contains(body, "id: 3\nevent: algorithm.switched") {
		t.Errorf("body = %q", body)
	}
	if got := w.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("content type = %q", got)
	}
	if s.Clients() != 0 {
		t.Error("client not removed after disconnect")
	}
}

func TestCloseEndsStreams(t *testing.T) {
	s := New(WithStaleDelay(time.Hour))
	c, _ := s.subscribe(0)
	s.Notify(review.Event{Type: review.EventPruned, Data: map[string]int{"items": 1}})
	next(t, c)

	s.Close()
	if _, ok := <-c.ch; ok {
		t.Error("client still open after Close")
	}
	s.Publish("item.reviewed", nil)
	if late, _ := s.subscribe(0); late != nil {
		if _, ok := <-late.ch; ok {
			t.Error("subscribe after Close returned an open client")
		}
	}
	s.Close()
}
