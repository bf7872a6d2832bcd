// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Ansuz review tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/review"
	"github.com/starford/ansuz/internal/storage"
)

const contractURI = "ansuz://review-contract"

// Server wraps the MCP server with Ansuz tools.
type Server struct {
	mcp   *server.MCPServer
	svc   *review.Service
	files storage.Provider
}

// New creates a new MCP server with all Ansuz tools registered.
func New(svc *review.Service, files storage.Provider, version string) *Server {
	s := &Server{svc: svc, files: files}

	s.mcp = server.NewMCPServer(
		"Ansuz",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_decks",
		mcp.WithDescription("List decks with the number of new and due items queued today."),
	), s.listDecks)

	s.mcp.AddTool(mcp.NewTool("queue_status",
		mcp.WithDescription("Queue counters: per-deck work, repeat queue, deferred items and today's new-item quota use."),
	), s.queueStatus)

	s.mcp.AddTool(mcp.NewTool("build_queue",
		mcp.WithDescription("Refresh today's queue: admit new items within quota and pick up items that fell due."),
	), s.buildQueue)

	s.mcp.AddTool(mcp.NewTool("next_item",
		mcp.WithDescription("Get the next item to review with its prompt, hidden answer and response options. "+
			"Read the contract first via get_review_contract or the "+contractURI+" resource."),
		mcp.WithString("deck", mcp.Description("Optional deck to restrict to (empty for any)")),
	), s.nextItem)

	s.mcp.AddTool(mcp.NewTool("review_item",
		mcp.WithDescription("Answer an item with one of the response options returned by next_item."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Item ID")),
		mcp.WithString("option", mcp.Required(), mcp.Description("Response option, e.g. Good")),
	), s.reviewItem)

	s.mcp.AddTool(mcp.NewTool("preview_item",
		mcp.WithDescription("Show the interval in days every response option would schedule, without answering."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Item ID")),
	), s.previewItem)

	s.mcp.AddTool(mcp.NewTool("read_source",
		mcp.WithDescription("Read the Markdown note an item comes from."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the note (e.g. folder/note.md)")),
	), s.readSource)

	s.mcp.AddTool(mcp.NewTool("get_review_contract",
		mcp.WithDescription("Returns the review contract: the session loop, the response options of every algorithm and the flashcard syntax."),
	), s.getReviewContract)

	s.mcp.AddResource(
		mcp.NewResource(contractURI, "Review Contract",
			mcp.WithResourceDescription("How to run a review session and write reviewable notes."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readContractResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

// toolError reports engine errors as tool results so the model can react.
func toolError(err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, apperr.ErrBusy):
		return mcp.NewToolResultError("an algorithm switch is in progress, retry shortly")
	default:
		return mcp.NewToolResultError(err.Error())
	}
}

func (s *Server) listDecks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.svc.Decks())
}

func (s *Server) queueStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.svc.Status())
}

func (s *Server) buildQueue(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rep, err := s.svc.BuildQueue(ctx)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(rep)
}

func (s *Server) nextItem(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	next, ok, err := s.svc.Next(req.GetString("deck", ""))
	if err != nil {
		return toolError(err), nil
	}
	if !ok {
		return mcp.NewToolResultText("nothing left to review today"), nil
	}
	return jsonResult(next)
}

func (s *Server) reviewItem(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireInt("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	option, err := req.RequireString("option")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, err := s.svc.Review(ctx, id, option)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(out)
}

func (s *Server) previewItem(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireInt("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	opts, err := s.svc.Preview(id)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(opts)
}

func (s *Server) readSource(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	data, err := s.files.Read(path)
	if err != nil {
		return mcp.NewToolResultError("not found: " + path), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) getReviewContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(ReviewContract), nil
}

func (s *Server) readContractResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      contractURI,
			MIMEType: "text/markdown",
			Text:     ReviewContract,
		},
	}, nil
}
