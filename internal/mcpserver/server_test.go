package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/ansuz/internal/clock"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/queue"
	"github.com/starford/ansuz/internal/review"
	"github.com/starford/ansuz/internal/store"
	"github.com/starford/ansuz/internal/testutil"
	"github.com/starford/ansuz/internal/vaultsync"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	dir, fs := testutil.TestVault(t)
	testutil.WriteNote(t, dir, "words.md", "#flashcards #spanish\nperro:::dog\n")

	svc, err := review.New(testutil.NewMemPersistence(),
		review.WithFiles(fs),
		review.WithClock(clock.NewFixed(time.Date(2026, 7, 1, 7, 0, 0, 0, time.UTC))),
		review.WithStoreOptions(store.WithTypeTags("review", "flashcards")),
		review.WithLogger(testutil.Logger()),
	)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if _, err := vaultsync.New(svc, fs, vaultsync.WithLogger(testutil.Logger())).Sync(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.BuildQueue(ctx); err != nil {
		t.Fatal(err)
	}
	return New(svc, fs, "test")
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no in-process "call tool" helper, so the handlers are
	// called directly.
	handlers := map[string]func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error){
		"list_decks":          srv.listDecks,
		"queue_status":        srv.queueStatus,
		"build_queue":         srv.buildQueue,
		"next_item":           srv.nextItem,
		"review_item":         srv.reviewItem,
		"preview_item":        srv.previewItem,
		"read_source":         srv.readSource,
		"get_review_contract": srv.getReviewContract,
	}
	h, ok := handlers[name]
	if !ok {
		t.Fatalf("unknown tool: %s", name)
	}
	result, err := h(ctx, req)
	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestListDecks(t *testing.T) {
	srv := testServer(t)
	var decks []models.DeckSummary
	if err := json.Unmarshal([]byte(resultText(callTool(t, srv, "list_decks", nil))), &decks); err != nil {
		t.Fatal(err)
	}
	if len(decks) != 1 || decks[0].Name != "spanish" || decks[0].New != 2 {
		t.Errorf("decks = %+v", decks)
	}
}

func TestReviewSession(t *testing.T) {
	srv := testServer(t)

	for i := 0; i < 2; i++ {
		r := callTool(t, srv, "next_item", map[string]any{"deck": "spanish"})
		var next models.NextItem
		if err := json.Unmarshal([]byte(resultText(r)), &next); err != nil {
			t.Fatalf("next %d: %v (%q)", i, err, resultText(r))
		}
		// Reversible cards yield both directions.
		wantPrompt := []string{"perro", "dog"}[i]
		if next.Prompt != wantPrompt {
			t.Errorf("prompt %d = %q, want %q", i, next.Prompt, wantPrompt)
		}
		r = callTool(t, srv, "review_item", map[string]any{"id": float64(next.Item.ID), "option": "Easy"})
		if r.IsError {
			t.Fatalf("review: %s", resultText(r))
		}
		var out queue.ReviewOutcome
		_ = json.Unmarshal([]byte(resultText(r)), &out)
		if !out.Correct {
			t.Errorf("outcome = %+v", out)
		}
	}

	r := callTool(t, srv, "next_item", nil)
	if !strings.Contains(resultText(r), "nothing left") {
		t.Errorf("after session: %q", resultText(r))
	}
}

func TestReviewItemErrors(t *testing.T) {
	srv := testServer(t)

	if r := callTool(t, srv, "review_item", map[string]any{"id": float64(0), "option": "Perfect"}); !r.IsError {
		t.Error("expected error for unknown option")
	}
	if r := callTool(t, srv, "review_item", map[string]any{"option": "Good"}); !r.IsError {
		t.Error("expected error for missing id")
	}
	if r := callTool(t, srv, "preview_item", map[string]any{"id": float64(99)}); !r.IsError {
		t.Error("expected error for unknown item")
	}
}

func TestReadSource(t *testing.T) {
	srv := testServer(t)
	if text := resultText(callTool(t, srv, "read_source", map[string]any{"path": "words.md"})); !strings.Contains(text, "perro:::dog") {
		t.Errorf("read = %q", text)
	}
	if r := callTool(t, srv, "read_source", map[string]any{"path": "nope.md"}); !r.IsError {
		t.Error("expected error for missing note")
	}
}

func TestContract(t *testing.T) {
	srv := testServer(t)
	text := resultText(callTool(t, srv, "get_review_contract", nil))
	for _, want := range []string{"Again, Hard, Good, Easy", ":::", "==highlight=="} {
		if !strings.Contains(text, want) {
			t.Errorf("contract missing %q", want)
		}
	}

	res, err := srv.readContractResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil || len(res) != 1 {
		t.Fatalf("resource = %v, %v", res, err)
	}
	if tc, ok := res[0].(mcp.TextResourceContents); !ok || tc.URI != contractURI {
		t.Errorf("resource = %+v", res[0])
	}
}
