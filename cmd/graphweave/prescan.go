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

var prescanCmd = &cobra.Command{
	Use:   "prescan [repository-path]",
	Short: "Print the definition index used for call resolution",
	Long: `Pre-scan a repository and print the definition index as JSON: a map
from function, macro and module names to the files defining them.
This is the index the heuristic call linker resolves cross-file
targets against.`,
	Args: cobra.ExactArgs(1),
	RunE: runPrescan,
}

func runPrescan(cmd *cobra.Command, args []string) error {
	absPath, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("invalid repository path: %w", err)
	}

	files, err := ingestion.WalkSourceFiles(absPath)
	if err != nil {
		return fmt.Errorf("walk repository: %w", err)
	}

	sess := treesitter.NewSession()
	defer sess.Close()

	index := treesitter.PreScanFiles(sess, files)

	// report repo-relative paths, matching graph identities
	for name, paths := range index {
		rel := make([]string, 0, len(paths))
		for _, p := range paths {
			if r, err := filepath.Rel(absPath, p); err == nil {
				rel = append(rel, filepath.ToSlash(r))
			}
		}
		index[name] = rel
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(index)
}
