package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/graphweave/graphweave/internal/ingestion"
	"github.com/graphweave/graphweave/internal/treesitter"
)

var (
	parseIndexSource bool
	parsePretty      bool
)

var parseCmd = &cobra.Command{
	Use:   "parse [path]",
	Short: "Parse sources and print extraction records as JSON",
	Long: `Parse a file or repository and print one JSON record per source
file to stdout, without touching the graph database. Useful for
inspecting what the extractors see.

Examples:
  graphweave parse lib/my_app/worker.ex
  graphweave parse . --pretty
  graphweave parse . --index-source | jq '.functions[].name'`,
	Args: cobra.ExactArgs(1),
	RunE: runParseCmd,
}

func init() {
	parseCmd.Flags().BoolVar(&parseIndexSource, "index-source", false, "Include source text and docstrings in records")
	parseCmd.Flags().BoolVar(&parsePretty, "pretty", false, "Indent JSON output")
}

func runParseCmd(cmd *cobra.Command, args []string) error {
	absPath, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return err
	}

	var files []string
	repoRoot := absPath
	if info.IsDir() {
		files, err = ingestion.WalkSourceFiles(absPath)
		if err != nil {
			return fmt.Errorf("walk repository: %w", err)
		}
	} else {
		files = []string{absPath}
		repoRoot = filepath.Dir(absPath)
	}

	sess := treesitter.NewSession()
	defer sess.Close()

	enc := json.NewEncoder(os.Stdout)
	if parsePretty {
		enc.SetIndent("", "  ")
	}

	opts := treesitter.ParseOptions{IndexSource: parseIndexSource}
	failed := 0
	for _, file := range files {
		res := treesitter.ParseFile(sess, file, opts)
		if res.Err != nil {
			logger.WithError(res.Err).WithField("file", file).Warn("parse failed")
			failed++
			continue
		}
		if rel, err := filepath.Rel(repoRoot, file); err == nil {
			res.Record.Path = filepath.ToSlash(rel)
		}
		if err := enc.Encode(res.Record); err != nil {
			return err
		}
	}

	if failed > 0 {
		fmt.Fprintf(os.Stderr, "%d of %d files failed to parse\n", failed, len(files))
	}
	return nil
}
