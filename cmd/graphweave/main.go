package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/graphweave/graphweave/internal/config"
	"github.com/graphweave/graphweave/internal/graph"
	"github.com/graphweave/graphweave/internal/logging"
)

var (
	// Version information (set by build flags)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	cfgFile string
	verbose bool
	logger  *logrus.Logger
	cfg     *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "graphweave",
	Short: "GraphWeave - code knowledge graphs for Elixir repositories",
	Long: `GraphWeave parses Elixir and HEEx sources with tree-sitter, builds a
code knowledge graph in Neo4j, and layers SCIP-verified call edges on
top of the heuristic graph.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger = logrus.New()
		logger.SetOutput(os.Stderr)
		if verbose {
			logger.SetLevel(logrus.DebugLevel)
		} else {
			logger.SetLevel(logrus.InfoLevel)
		}

		if err := logging.Initialize(logging.DefaultConfig(verbose)); err != nil {
			logger.WithError(err).Warn("Failed to initialize structured logging")
		}

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			logger.WithError(err).Warn("Failed to load config, using defaults")
			cfg = config.Default()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: .graphweave/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.SetVersionTemplate(`GraphWeave {{.Version}}
Build time: ` + BuildTime + `
Git commit: ` + GitCommit + `
`)

	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(prescanCmd)
	rootCmd.AddCommand(scipCmd)
	rootCmd.AddCommand(bundleCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(consoleCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configureCmd)
}

// openBackend connects to Neo4j using the configured URI and the
// credential chain for the password.
func openBackend(ctx context.Context) (*graph.Neo4jBackend, error) {
	password := cfg.Neo4j.Password
	if password == "" {
		cm := config.NewCredentialManager()
		var err error
		password, err = cm.GetNeo4jPassword()
		if err != nil {
			return nil, err
		}
	}

	backend, err := graph.NewNeo4jBackend(ctx, cfg.Neo4j.URI, cfg.Neo4j.Username, password, cfg.Neo4j.Database)
	if err != nil {
		return nil, fmt.Errorf("connect to Neo4j at %s: %w", cfg.Neo4j.URI, err)
	}
	return backend, nil
}

// repoNameFor returns the graph root name for a repository path.
func repoNameFor(absPath, override string) string {
	if override != "" {
		return override
	}
	return filepath.Base(absPath)
}
