package mcp

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/graphweave/graphweave/internal/config"
	"github.com/graphweave/graphweave/internal/graph"
	"github.com/graphweave/graphweave/internal/registry"
	"github.com/graphweave/graphweave/internal/storage"
)

// Version is stamped at build time
var Version = "dev"

// Server exposes the indexing pipeline and graph over MCP stdio.
type Server struct {
	mcp      *mcp.Server
	cfg      *config.Config
	backend  graph.Backend
	runs     storage.RunStore // may be nil
	registry *registry.Client // may be nil
	log      *slog.Logger
}

// NewServer creates an MCP server with all tools registered. runs and
// registryClient may be nil; the corresponding tools report that the
// capability is not configured.
func NewServer(cfg *config.Config, backend graph.Backend, runs storage.RunStore, registryClient *registry.Client, log *slog.Logger) *Server {
	srv := &Server{
		cfg:      cfg,
		backend:  backend,
		runs:     runs,
		registry: registryClient,
		log:      log,
		mcp: mcp.NewServer(
			&mcp.Implementation{
				Name:    "graphweave",
				Version: Version,
			},
			nil,
		),
	}
	srv.registerTools()
	return srv
}

// MCPServer returns the underlying MCP server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

func (s *Server) registerTools() {
	s.mcp.AddTool(&mcp.Tool{
		Name:        "index_repository",
		Description: "Index an Elixir repository into the code graph. Walks the tree, parses .ex/.exs/.heex files, extracts modules, functions, macros and calls, and merges them into Neo4j with CONTAINS, CALLS and IMPORTS edges.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"repo_path": {
					"type": "string",
					"description": "Path to the repository to index"
				},
				"repo_name": {
					"type": "string",
					"description": "Repository name used for the graph root node. Defaults to the directory name."
				}
			},
			"required": ["repo_path"]
		}`),
	}, s.handleIndexRepository)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "ingest_scip_index",
		Description: "Ingest a SCIP index file for an already-indexed repository. Upserts precise symbol definitions and promotes references to verified CALLS edges (scip_verified = true), attributing each reference to its enclosing function.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"index_path": {
					"type": "string",
					"description": "Path to the SCIP index file (index.scip)"
				},
				"repo_path": {
					"type": "string",
					"description": "Path to the repository the index was produced from"
				},
				"repo_name": {
					"type": "string",
					"description": "Repository name used for the graph root node. Defaults to the directory name."
				}
			},
			"required": ["index_path", "repo_path"]
		}`),
	}, s.handleIngestScipIndex)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "graph_summary",
		Description: "Summarize the code graph: node counts per label and edge counts per relationship type, including how many CALLS edges are SCIP-verified.",
		InputSchema: json.RawMessage(`{"type": "object"}`),
	}, s.handleGraphSummary)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "list_runs",
		Description: "List recent indexing runs for a repository from the run ledger, newest first.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"repo_name": {
					"type": "string",
					"description": "Repository name to list runs for"
				},
				"limit": {
					"type": "integer",
					"description": "Maximum runs to return (default 10)"
				}
			},
			"required": ["repo_name"]
		}`),
	}, s.handleListRuns)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "list_bundles",
		Description: "List pre-built graph bundles available in the bundle registry, from both the on-demand manifest and the latest weekly release.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"name": {
					"type": "string",
					"description": "Filter bundles by package name (optional)"
				}
			}
		}`),
	}, s.handleListBundles)
}

// jsonResult marshals data to JSON and returns it as a tool result.
func jsonResult(data any) *mcp.CallToolResult {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return errResult("json marshal err=" + err.Error())
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(b)},
		},
	}
}

// errResult returns a tool result indicating an error.
func errResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: msg},
		},
		IsError: true,
	}
}

// parseArgs unmarshals the raw JSON arguments into a map.
func parseArgs(req *mcp.CallToolRequest) (map[string]any, error) {
	if len(req.Params.Arguments) == 0 {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(req.Params.Arguments, &m); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	return m, nil
}

// getStringArg extracts a string argument from parsed args.
func getStringArg(args map[string]any, key string) string {
	v, ok := args[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}

// getIntArg extracts an integer argument with a default value.
func getIntArg(args map[string]any, key string, defaultVal int) int {
	v, ok := args[key]
	if !ok {
		return defaultVal
	}
	f, ok := v.(float64) // JSON numbers decode as float64
	if !ok {
		return defaultVal
	}
	return int(f)
}
