// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Palais Contributors

package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/palais-dev/palais/internal/memory"
	"github.com/palais-dev/palais/internal/store"
	palaiserr "github.com/palais-dev/palais/pkg/errors"
)

// MCP tool names exposed to agents.
const (
	ToolMemorySearch = "palais.memory.search"
	ToolMemoryRecall = "palais.memory.recall"
	ToolMemoryStore  = "palais.memory.store"
)

func (s *Server) registerMCPRoute() {
	mcpSrv := NewMCPServer(s.services.Memory(), s.cfg.Version)
	s.router.Handle("/mcp", mcpserver.NewStreamableHTTPServer(mcpSrv))
}

// NewMCPServer builds the MCP server with the memory tools registered.
func NewMCPServer(mem MemoryService, version string) *mcpserver.MCPServer {
	srv := mcpserver.NewMCPServer(
		"palais",
		version,
		mcpserver.WithToolCapabilities(false),
		mcpserver.WithRecovery(),
	)

	tools := &memoryTools{mem: mem}
	srv.AddTool(mcp.NewTool(ToolMemorySearch,
		mcp.WithDescription("Search the knowledge graph by semantic query (embeddings and full-text)"),
		mcp.WithString("query", mcp.Required(), mcp.Description("Natural language search query")),
		mcp.WithNumber("limit", mcp.Description("Max results (default 10)")),
		mcp.WithString("entityType", mcp.Description("Filter by entity type (agent, service, task, error, deployment, decision)")),
	), tools.search)

	srv.AddTool(mcp.NewTool(ToolMemoryRecall,
		mcp.WithDescription("Recall a memory node by ID, including its edges"),
		mcp.WithNumber("nodeId", mcp.Required(), mcp.Description("Memory node ID")),
	), tools.recall)

	srv.AddTool(mcp.NewTool(ToolMemoryStore,
		mcp.WithDescription("Store a new memory node in the knowledge graph"),
		mcp.WithString("type", mcp.Required(), mcp.Description("episodic, semantic, or procedural")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Full content of the memory")),
		mcp.WithString("summary", mcp.Description("Brief summary")),
		mcp.WithString("entityType", mcp.Description("Entity type (agent, service, task, error, deployment, decision)")),
		mcp.WithString("entityId", mcp.Description("Related entity ID")),
		mcp.WithArray("tags", mcp.Description("Tags for categorization"), mcp.Items(map[string]any{"type": "string"})),
	), tools.store)

	return srv
}

type memoryTools struct {
	mem MemoryService
}

func (t *memoryTools) search(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	query, err := stringArg(args, "query", true)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	limit, err := intArg(args, "limit", false)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	entityType, err := stringArg(args, "entityType", false)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	nodes, err := t.mem.Search(ctx, memory.SearchInput{
		Query:      query,
		Limit:      int(limit),
		EntityType: store.EntityType(entityType),
	})
	if err != nil {
		return toolError(ctx, ToolMemorySearch, err), nil
	}
	return toolResult(nonNil(nodes))
}

func (t *memoryTools) recall(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := intArg(req.GetArguments(), "nodeId", true)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	r, err := t.mem.Recall(ctx, id)
	if err != nil {
		return toolError(ctx, ToolMemoryRecall, err), nil
	}
	r.Edges = nonNil(r.Edges)
	return toolResult(r)
}

func (t *memoryTools) store(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	in := memory.NodeInput{CreatedBy: store.CreatorAgent}

	var err error
	fields := []struct {
		key      string
		required bool
		dst      *string
	}{
		{"content", true, &in.Content},
		{"summary", false, &in.Summary},
		{"entityId", false, &in.EntityID},
	}
	for _, f := range fields {
		if *f.dst, err = stringArg(args, f.key, f.required); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}
	kind, err := stringArg(args, "type", true)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	in.Kind = store.NodeKind(kind)
	entityType, err := stringArg(args, "entityType", false)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	in.EntityType = store.EntityType(entityType)
	if in.Tags, err = stringsArg(args, "tags"); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	n, err := t.mem.CreateNode(ctx, in)
	if err != nil {
		return toolError(ctx, ToolMemoryStore, err), nil
	}
	return toolResult(n)
}

func toolResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, palaiserr.Wrap(err, palaiserr.CodeServerInternalFailure, "encoding tool result")
	}
	return mcp.NewToolResultText(string(data)), nil
}

// toolError reports a failed call to the agent. Client errors keep their
// message; server failures are logged and summarised.
func toolError(ctx context.Context, tool string, err error) *mcp.CallToolResult {
	if palaiserr.HTTPStatus(err) >= 500 {
		slog.ErrorContext(ctx, "mcp tool failed", "tool", tool, "code", palaiserr.CodeOf(err), "error", err)
		return mcp.NewToolResultError(tool + " failed")
	}
	return mcp.NewToolResultError(err.Error())
}

func stringArg(args map[string]any, key string, required bool) (string, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		if required {
			return "", palaiserr.Errorf(palaiserr.CodeServerRequestInvalid, "%s is required", key)
		}
		return "", nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", palaiserr.Errorf(palaiserr.CodeServerRequestInvalid, "%s must be a string", key)
	}
	if required && s == "" {
		return "", palaiserr.Errorf(palaiserr.CodeServerRequestInvalid, "%s is required", key)
	}
	return s, nil
}

func intArg(args map[string]any, key string, required bool) (int64, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		if required {
			return 0, palaiserr.Errorf(palaiserr.CodeServerRequestInvalid, "%s is required", key)
		}
		return 0, nil
	}
	var f float64
	switch v := raw.(type) {
	case float64:
		f = v
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, palaiserr.Errorf(palaiserr.CodeServerRequestInvalid, "%s must be a number", key)
		}
		f = parsed
	default:
		return 0, palaiserr.Errorf(palaiserr.CodeServerRequestInvalid, "%s must be a number", key)
	}
	if f != math.Trunc(f) {
		return 0, palaiserr.Errorf(palaiserr.CodeServerRequestInvalid, "%s must be an integer", key)
	}
	return int64(f), nil
}

func stringsArg(args map[string]any, key string) ([]string, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return nil, nil
	}
	switch v := raw.(type) {
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, palaiserr.Errorf(palaiserr.CodeServerRequestInvalid, "%s must be an array of strings", key)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, palaiserr.Errorf(palaiserr.CodeServerRequestInvalid, "%s must be an array of strings", key)
	}
}
