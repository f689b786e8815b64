package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/graphweave/graphweave/internal/graph"
	"github.com/graphweave/graphweave/internal/ingestion"
	"github.com/graphweave/graphweave/internal/logging"
	"github.com/graphweave/graphweave/internal/storage"
)

var (
	indexWorkers  int
	indexRepoName string
	indexSource   bool
	indexNoLedger bool
)

var indexCmd = &cobra.Command{
	Use:   "index [repository-path]",
	Short: "Index a repository into the code graph",
	Long: `Index an Elixir repository into Neo4j.

This command:
1. Walks the repository and discovers .ex, .exs and .heex files
2. Pre-scans definitions for cross-file call resolution
3. Parses files concurrently and extracts modules, functions, macros and calls
4. Merges File, Function, Class, Macro and Import nodes with CONTAINS,
   CALLS and IMPORTS edges

Examples:
  graphweave index .
  graphweave index ~/src/my_app --workers 16
  graphweave index ~/src/my_app --name my_app --index-source`,
	Args: cobra.ExactArgs(1),
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().IntVarP(&indexWorkers, "workers", "w", 0, "Number of concurrent parsers (default: from config)")
	indexCmd.Flags().StringVarP(&indexRepoName, "name", "n", "", "Repository name for the graph root (default: directory name)")
	indexCmd.Flags().BoolVar(&indexSource, "index-source", false, "Attach source text and docstrings to graph nodes")
	indexCmd.Flags().BoolVar(&indexNoLedger, "no-ledger", false, "Skip writing the run to the local ledger")
}

func runIndex(cmd *cobra.Command, args []string) error {
	startTime := time.Now()
	ctx := context.Background()

	absPath, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("invalid repository path: %w", err)
	}
	repoName := repoNameFor(absPath, indexRepoName)

	workers := cfg.Index.Workers
	if indexWorkers > 0 {
		workers = indexWorkers
	}

	fmt.Printf("GraphWeave index\n")
	fmt.Printf("Repository: %s\n", absPath)
	fmt.Printf("Graph root: %s\n", repoName)
	fmt.Printf("Workers:    %d\n\n", workers)

	backend, err := openBackend(ctx)
	if err != nil {
		return err
	}
	defer backend.Close(ctx)

	var runs storage.RunStore
	if !indexNoLedger {
		runs, err = storage.NewRunStore(cfg.Storage.PostgresDSN, cfg.Storage.LocalPath, logging.Slog())
		if err != nil {
			logger.WithError(err).Warn("Run ledger unavailable, continuing without it")
			runs = nil
		} else {
			defer runs.Close()
		}
	}

	builder := graph.NewBuilder(backend, repoName)
	processor := ingestion.NewProcessor(&ingestion.Config{
		Workers:     workers,
		IndexSource: indexSource || cfg.Index.IndexSource,
	}, builder, runs, logging.Slog())

	fmt.Printf("Processing repository...\n\n")
	result, err := processor.ProcessRepository(ctx, absPath, repoName)
	if err != nil {
		return fmt.Errorf("processing failed: %w", err)
	}

	fmt.Printf("Processing complete\n\n")
	fmt.Printf("Statistics:\n")
	fmt.Printf("  Run ID:     %s\n", result.RunID)
	fmt.Printf("  Duration:   %v\n", result.Duration)
	fmt.Printf("  Files:      %d total (%d parsed, %d failed)\n",
		result.FilesTotal, result.FilesParsed, result.FilesFailed)
	fmt.Printf("  Functions:  %d\n", result.Functions)
	fmt.Printf("  Modules:    %d\n", result.Classes)
	fmt.Printf("  Imports:    %d\n", result.Imports)
	fmt.Printf("  Graph:      %d nodes, %d edges\n\n", result.Nodes, result.Edges)

	if len(result.Errors) > 0 {
		fmt.Printf("Warnings (%d):\n", len(result.Errors))
		for i, err := range result.Errors {
			if i >= 10 {
				fmt.Printf("  ... and %d more\n", len(result.Errors)-10)
				break
			}
			fmt.Printf("  - %v\n", err)
		}
		fmt.Printf("\n")
	}

	fmt.Printf("Total time: %v\n", time.Since(startTime))
	return nil
}
