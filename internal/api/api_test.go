package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/starford/ansuz/internal/clock"
	"github.com/starford/ansuz/internal/item"
	"github.com/starford/ansuz/internal/migrate"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/queue"
	"github.com/starford/ansuz/internal/review"
	"github.com/starford/ansuz/internal/store"
	"github.com/starford/ansuz/internal/testutil"
	"github.com/starford/ansuz/internal/vaultsync"
)

var testNow = time.Date(2026, 5, 11, 8, 30, 0, 0, time.UTC)

// testEnv builds a seeded engine over a temp vault and mounts the router.
// An empty authToken means disabled mode.
func testEnv(t *testing.T, authToken string) (*review.Service, http.Handler) {
	t.Helper()
	return testEnvWithSSE(t, authToken != "", authToken, nil)
}

func testEnvWithSSE(t *testing.T, authEnabled bool, token string, sseHandler http.Handler) (*review.Service, http.Handler) {
	t.Helper()
	dir, fs := testutil.TestVault(t)
	testutil.WriteNote(t, dir, "geo.md", "#flashcards #geography\nCapital of Peru::Lima\nCapital of Chile::Santiago\n")
	testutil.WriteNote(t, dir, "journal/today.md", "#review\nWrite more.\n")

	algos := review.DefaultAlgorithmSettings()
	svc, err := review.New(testutil.NewMemPersistence(),
		review.WithFiles(fs),
		review.WithClock(clock.NewFixed(testNow)),
		review.WithAlgorithms(algos),
		review.WithStoreOptions(store.WithTypeTags("review", "flashcards")),
		review.WithLogger(testutil.Logger()),
	)
	if err != nil {
		t.Fatalf("review.New: %v", err)
	}
	ctx := context.Background()
	if _, err := vaultsync.New(svc, fs, vaultsync.WithLogger(testutil.Logger())).Sync(ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if _, err := svc.BuildQueue(ctx); err != nil {
		t.Fatalf("BuildQueue: %v", err)
	}
	return svc, NewRouter(svc, authEnabled, token, sseHandler)
}

func do(t *testing.T, router http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return v
}

func TestListDecks(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/decks", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	got := decode[DecksResponse](t, w).Decks
	want := []models.DeckSummary{{Name: "default", New: 1}, {Name: "geography", New: 2}}
	if len(got) != len(want) {
		t.Fatalf("decks = %+v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("deck %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestNextAndReview(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/queue/next?deck=geography", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("next = %d, body = %s", w.Code, w.Body.String())
	}
	next := decode[NextResponse](t, w)
	if next.Done || next.Next == nil {
		t.Fatalf("next = %+v", next)
	}
	if next.Next.Prompt != "Capital of Peru" || next.Next.Answer != "Lima" {
		t.Errorf("prompt/answer = %q / %q", next.Next.Prompt, next.Next.Answer)
	}
	if len(next.Next.Options) != 4 {
		t.Errorf("options = %+v", next.Next.Options)
	}

	id := strconv.Itoa(next.Next.Item.ID)
	w = do(t, router, http.MethodPost, "/items/"+id+"/review", ReviewRequest{Option: "Easy"})
	if w.Code != http.StatusOK {
		t.Fatalf("review = %d, body = %s", w.Code, w.Body.String())
	}
	out := decode[queue.ReviewOutcome](t, w)
	if !out.Correct || out.NextReview <= testNow.UnixMilli() {
		t.Errorf("outcome = %+v", out)
	}

	w = do(t, router, http.MethodGet, "/items/"+id, nil)
	view := decode[models.ItemView](t, w)
	if view.TimesReviewed != 1 || view.Path != "geo.md" || view.Deck != "geography" {
		t.Errorf("item = %+v", view)
	}
}

func TestReviewErrors(t *testing.T) {
	_, router := testEnv(t, "")

	tests := []struct {
		name   string
		target string
		body   any
		want   int
	}{
		{"bad id", "/items/abc/review", ReviewRequest{Option: "Good"}, http.StatusBadRequest},
		{"missing option", "/items/0/review", ReviewRequest{}, http.StatusBadRequest},
		{"unknown option", "/items/0/review", ReviewRequest{Option: "Perfect"}, http.StatusBadRequest},
		{"unknown item", "/items/999/review", ReviewRequest{Option: "Good"}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, http.MethodPost, tt.target, tt.body)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestGetItem_NotFound(t *testing.T) {
	_, router := testEnv(t, "")
	if w := do(t, router, http.MethodGet, "/items/42", nil); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestPreviewItem(t *testing.T) {
	_, router := testEnv(t, "")
	w := do(t, router, http.MethodGet, "/items/0/preview", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	opts := decode[PreviewResponse](t, w).Options
	if len(opts) != 4 || opts[0].Option != "Again" || opts[3].Days < opts[2].Days {
		t.Errorf("preview = %+v", opts)
	}
}

func TestQueueBuildAndStatus(t *testing.T) {
	_, router := testEnv(t, "")

	// Rebuilding the same day admits nothing new.
	w := do(t, router, http.MethodPost, "/queue/build", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("build = %d", w.Code)
	}
	if rep := decode[queue.BuildReport](t, w); rep.Admitted != 0 {
		t.Errorf("rebuild admitted %d", rep.Admitted)
	}

	w = do(t, router, http.MethodGet, "/queue/status", nil)
	st := decode[queue.Status](t, w)
	if st.NewAdded.Cards != 2 || st.NewAdded.Notes != 1 {
		t.Errorf("status = %+v", st)
	}
}

func TestSwitchAlgorithm(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodPost, "/algorithm", SwitchRequest{To: item.KindSM2})
	if w.Code != http.StatusOK {
		t.Fatalf("switch = %d, body = %s", w.Code, w.Body.String())
	}
	out := decode[migrate.Outcome](t, w)
	if out.From != item.KindFSRS || out.To != item.KindSM2 || out.Converted != 3 {
		t.Errorf("outcome = %+v", out)
	}

	w = do(t, router, http.MethodGet, "/algorithm", nil)
	if a := decode[AlgorithmResponse](t, w); a.Active != item.KindSM2 || len(a.Options) != 6 {
		t.Errorf("algorithm = %+v", a)
	}

	if w := do(t, router, http.MethodPost, "/algorithm", SwitchRequest{To: "leitner"}); w.Code != http.StatusBadRequest {
		t.Errorf("unknown algorithm = %d, want 400", w.Code)
	}
}

func TestScheduleExportApply(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodPost, "/items/2/review", ReviewRequest{Option: "Good"})
	if w.Code != http.StatusOK {
		t.Fatalf("review = %d", w.Code)
	}
	w = do(t, router, http.MethodGet, "/schedule?numeric=true", nil)
	tuples := decode[ScheduleResponse](t, w).Tuples
	if len(tuples) != 1 || tuples[0].ID != 2 {
		t.Fatalf("tuples = %+v", tuples)
	}

	tuples[0].Due = "2026-06-01"
	w = do(t, router, http.MethodPost, "/schedule", ScheduleRequest{Tuples: tuples})
	if w.Code != http.StatusOK || decode[ApplyResponse](t, w).Applied != 1 {
		t.Fatalf("apply = %d, body = %s", w.Code, w.Body.String())
	}

	tuples[0].Due = "next week"
	if w := do(t, router, http.MethodPost, "/schedule", ScheduleRequest{Tuples: tuples}); w.Code != http.StatusBadRequest {
		t.Errorf("bad due = %d, want 400", w.Code)
	}
}

func TestPrune(t *testing.T) {
	_, router := testEnv(t, "")
	w := do(t, router, http.MethodPost, "/prune", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("prune = %d", w.Code)
	}
	if rep := decode[store.PruneReport](t, w); rep.Items != 0 {
		t.Errorf("pruned %+v from a clean store", rep)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/decks", nil)
	req.Header.Set("Authorization", "Bearer secret123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("valid token = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	if w := do(t, router, http.MethodGet, "/decks", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("no token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/decks", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

// blockingSSE writes headers and blocks until the request context is done.
var blockingSSE = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	<-r.Context().Done()
})

func TestSSEEvents_AuthProtected(t *testing.T) {
	_, router := testEnvWithSSE(t, true, "secret", blockingSSE)

	if w := do(t, router, http.MethodGet, "/events", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	_, router := testEnvWithSSE(t, true, "tok", blockingSSE)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE with valid token should not 401")
	}
}
