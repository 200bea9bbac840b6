// Package mcp exposes the manual question answering service as Model Context Protocol tools.
package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

// Tool names.
const (
	ToolAskManuals   = "ask_manuals"
	ToolIndexStatus  = "index_status"
	ToolSearchChunks = "search_chunks"
)

// NewServer creates an MCP server with every tool registered.
func NewServer(svc Service, version string, logger *zap.Logger) *mcpserver.MCPServer {
	s := mcpserver.NewMCPServer("manualqa", version, mcpserver.WithToolCapabilities(false))
	RegisterTools(s, svc, logger)
	return s
}

// RegisterTools registers the manual tools on server and returns their handlers.
func RegisterTools(server *mcpserver.MCPServer, svc Service, logger *zap.Logger) *Handlers {
	h := NewHandlers(svc, logger)

	server.AddTool(mcp.Tool{
		Name:        ToolAskManuals,
		Description: "Answer a question from the indexed product manuals. Returns the answer and the manual excerpts it was based on.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"question": map[string]interface{}{
					"type":        "string",
					"description": "Question about the manuals",
				},
			},
			Required: []string{"question"},
		},
	}, h.AskManuals)

	server.AddTool(mcp.Tool{
		Name:        ToolSearchChunks,
		Description: "Search manual passages by keywords and meaning without generating an answer.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search text",
				},
				"limit": map[string]interface{}{
					"type":        "number",
					"description": "Maximum number of passages (default: 5)",
					"default":     defaultSearchLimit,
				},
			},
			Required: []string{"query"},
		},
	}, h.SearchChunks)

	server.AddTool(mcp.Tool{
		Name:        ToolIndexStatus,
		Description: "Report whether the manual index is ready and how many documents and chunks it holds.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, h.IndexStatus)

	return h
}
