package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/hyperjump/manualqa/internal/models"
)

const (
	defaultSearchLimit = 5
	maxSearchLimit     = 50
)

// Service is the part of the index service the MCP tools need.
type Service interface {
	Query(ctx context.Context, question string) (*models.QueryResult, error)
	Search(ctx context.Context, q string, limit int) ([]models.SearchHit, error)
	Status(ctx context.Context) (*models.IndexStatus, error)
}

// Handlers implements the MCP tools.
type Handlers struct {
	svc    Service
	logger *zap.Logger
}

// NewHandlers creates tool handlers backed by svc.
func NewHandlers(svc Service, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{svc: svc, logger: logger}
}

// AskManuals handles the ask_manuals tool.
func (h *Handlers) AskManuals(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := request.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError("question argument is required and must be a string"), nil
	}
	req := models.QueryRequest{Question: question}
	if err := req.Normalize(); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := h.svc.Query(ctx, req.Question)
	if err != nil {
		return h.toolError("query failed", err), nil
	}
	return jsonResult(map[string]interface{}{
		"answer":  res.Answer,
		"sources": nonNil(res.Citations),
	})
}

// SearchChunks handles the search_chunks tool.
func (h *Handlers) SearchChunks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	q, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("query argument is required and must be a string"), nil
	}
	limit := request.GetInt("limit", defaultSearchLimit)
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	limit = min(limit, maxSearchLimit)
	hits, err := h.svc.Search(ctx, q, limit)
	if err != nil {
		return h.toolError("search failed", err), nil
	}
	return jsonResult(map[string]interface{}{
		"query":   q,
		"results": nonNil(hits),
	})
}

// IndexStatus handles the index_status tool.
func (h *Handlers) IndexStatus(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := h.svc.Status(ctx)
	if err != nil {
		return h.toolError("status failed", err), nil
	}
	return jsonResult(st)
}

// toolError turns a service error into a tool error result. Not ready is reported as is so agents
// can retry later.
func (h *Handlers) toolError(msg string, err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, models.ErrNotReady):
		return mcp.NewToolResultError(models.ErrNotReady.Error())
	case errors.Is(err, models.ErrEmptyIndex):
		return mcp.NewToolResultError(models.ErrEmptyIndex.Error())
	}
	h.logger.Error(msg, zap.Error(err))
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", msg, err))
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal response: %v", err)), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
