package main

import (
	"context"
	"fmt"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/graphweave/graphweave/internal/logging"
	"github.com/graphweave/graphweave/internal/mcp"
	"github.com/graphweave/graphweave/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP server on stdio",
	Long: `Run the MCP server. Tools are exposed over stdio JSON-RPC, so all
logging goes to stderr. Point an MCP client at this command:

  {"command": "graphweave", "args": ["serve"]}`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	backend, err := openBackend(ctx)
	if err != nil {
		return err
	}
	defer backend.Close(ctx)

	runs, err := storage.NewRunStore(cfg.Storage.PostgresDSN, cfg.Storage.LocalPath, logging.Slog())
	if err != nil {
		logger.WithError(err).Warn("Run ledger unavailable, list_runs disabled")
		runs = nil
	} else {
		defer runs.Close()
	}

	mcp.Version = Version
	srv := mcp.NewServer(cfg, backend, runs, registryClient(), logging.Slog())

	logger.WithField("database", cfg.Neo4j.URI).Info("MCP server listening on stdio")
	if err := srv.MCPServer().Run(ctx, &sdkmcp.StdioTransport{}); err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}
