package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/graphweave/graphweave/internal/logging"
	"github.com/graphweave/graphweave/internal/storage"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs [repo-name]",
	Short: "List recent indexing runs from the ledger",
	Args:  cobra.ExactArgs(1),
	RunE:  runRuns,
}

func init() {
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "l", 10, "Maximum runs to show")
}

func runRuns(cmd *cobra.Command, args []string) error {
	store, err := storage.NewRunStore(cfg.Storage.PostgresDSN, cfg.Storage.LocalPath, logging.Slog())
	if err != nil {
		return fmt.Errorf("open run ledger: %w", err)
	}
	defer store.Close()

	runs, err := store.RecentRuns(context.Background(), args[0], runsLimit)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}

	if len(runs) == 0 {
		fmt.Printf("No runs recorded for %s.\n", args[0])
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tKIND\tSTATUS\tFILES\tNODES\tEDGES\tDURATION\tRUN ID")
	for _, run := range runs {
		duration := run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond)
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%v\t%s\n",
			run.StartedAt.Format(time.RFC3339), run.Kind, run.Status,
			run.Files, run.Nodes, run.Edges, duration, run.ID)
	}
	return w.Flush()
}
