// Package mcp exposes control-path discovery to agents over the Model
// Context Protocol.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jbgalet/adcp/pkg/alias"
	"github.com/jbgalet/adcp/pkg/discover"
	"github.com/jbgalet/adcp/pkg/export"
)

// Server adapts the discovery engine to the Model Context Protocol.
type Server struct {
	mcpServer *server.MCPServer
	engine    *discover.Engine
	resolver  *alias.Resolver
}

// NewServer creates a new MCP server instance over an already-connected
// engine and resolver.
func NewServer(engine *discover.Engine, resolver *alias.Resolver) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"adcp",
			"1.0.0",
		),
		engine:   engine,
		resolver: resolver,
	}
	s.registerResources()
	s.registerTools()
	s.registerPrompts()
	return s
}

// Serve starts the MCP server on stdio.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcpServer)
}

// --- Resources ---

func (s *Server) registerResources() {
	// adcp://shortcuts
	s.mcpServer.AddResource(mcp.NewResource(
		"adcp://shortcuts",
		"Selector Shortcuts",
		mcp.WithResourceDescription("Selector shortcuts for the active language and the DN prefixes they expand to"),
		mcp.WithMIMEType("application/json"),
	), s.handleReadShortcuts)
}

// --- Tools ---

func (s *Server) registerTools() {
	// adcp_search
	s.mcpServer.AddTool(mcp.NewTool(
		"adcp_search",
		mcp.WithDescription("Search directory objects whose name contains the needle. Returns names and labels."),
		mcp.WithString("needle", mcp.Required(), mcp.Description("Substring to match against object names")),
	), s.handleSearch)

	// adcp_graph
	s.mcpServer.AddTool(mcp.NewTool(
		"adcp_graph",
		mcp.WithDescription("Discover control paths from a source selector to a target selector. Returns the merged report graph as JSON."),
		mcp.WithString("source", mcp.Required(), mcp.Description("Source selector: a name, an objectSid, or a shortcut like 'adm_dom'")),
		mcp.WithString("target", mcp.Required(), mcp.Description("Target selector")),
		mcp.WithNumber("max_depth", mcp.Description(fmt.Sprintf("Maximum path length in edges (default %d)", discover.DefaultMaxDepth))),
		mcp.WithBoolean("quick", mcp.Description("Quick mode: one shortest path per pair instead of all simple paths")),
	), s.handleGraph)
}

// --- Prompts ---

func (s *Server) registerPrompts() {
	s.mcpServer.AddPrompt(mcp.NewPrompt(
		"adcp-aware",
		mcp.WithPromptDescription("Provides context about control-path discovery concepts (Selectors, Pairs, Paths)"),
	), s.handleGetPrompt)
}

// --- Handlers ---

func (s *Server) handleReadShortcuts(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	table := alias.Shortcuts[s.resolver.Lang()]

	data, err := json.MarshalIndent(table, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal shortcuts: %w", err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	needle := mcp.ParseString(request, "needle", "")
	if needle == "" {
		return mcp.NewToolResultError("needle is required"), nil
	}

	matches, err := s.resolver.Search(ctx, needle)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search error: %v", err)), nil
	}

	data, err := json.MarshalIndent(matches, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("marshal error: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) handleGraph(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	source := mcp.ParseString(request, "source", "")
	target := mcp.ParseString(request, "target", "")

	opts := discover.DefaultOptions()
	opts.MaxDepth = int(mcp.ParseFloat64(request, "max_depth", float64(discover.DefaultMaxDepth)))
	opts.QuickMode = mcp.ParseBoolean(request, "quick", false)

	result, err := s.engine.Discover(ctx, source, target, opts)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("discovery error: %v", err)), nil
	}

	doc := export.Build(result.Graph, export.Options{})
	payload := struct {
		Status   string           `json:"status"`
		Paths    int              `json:"paths"`
		Warnings int              `json:"warnings"`
		Report   *export.Document `json:"report"`
	}{
		Status:   string(result.Status),
		Paths:    result.Paths,
		Warnings: len(result.Warnings),
		Report:   doc,
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("marshal error: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) handleGetPrompt(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	name := request.Params.Name
	if name != "adcp-aware" {
		return nil, fmt.Errorf("prompt not found: %s", name)
	}

	promptText := `You are interacting with adcp, a control-path discovery tool for
directory-service graphs.

Concepts:
- Selector: how you name endpoints. A full object name, an objectSid, or a
  language shortcut such as 'adm_dom' (domain admins group).
- Pair: one (source, target) combination after selector expansion. A run
  traverses every pair.
- Control path: a cycle-free chain of control relationships (group
  membership, ACL rights, session admin) from source to target.
- Quick mode: one shortest path per pair instead of every simple path.

Use 'adcp_search' to find object names before building selectors. Use
'adcp_graph' to run discovery; large depths can be slow, start with quick
mode when exploring.
`

	return mcp.NewGetPromptResult(
		"adcp-aware",
		[]mcp.PromptMessage{
			mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(promptText)),
		},
	), nil
}
