package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/graphweave/graphweave/internal/cache"
	"github.com/graphweave/graphweave/internal/config"
	"github.com/graphweave/graphweave/internal/registry"
)

var bundleOutput string

var bundleCmd = &cobra.Command{
	Use:   "bundle",
	Short: "Work with pre-built graph bundles from the registry",
}

var bundleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List bundles available in the registry",
	Long: `List bundles from both registry sources: the on-demand manifest and
the latest weekly release.`,
	RunE: runBundleList,
}

var bundleGetCmd = &cobra.Command{
	Use:   "get [name]",
	Short: "Download a bundle by package name or full name",
	Long: `Download a bundle. An exact full name (e.g. my_app-1.2.0-abc123)
wins; a bare package name picks the most recently generated match.

Examples:
  graphweave bundle list
  graphweave bundle get phoenix
  graphweave bundle get my_app-1.2.0-abc123 -o /tmp/my_app.cgc`,
	Args: cobra.ExactArgs(1),
	RunE: runBundleGet,
}

func init() {
	bundleGetCmd.Flags().StringVarP(&bundleOutput, "output", "o", "", "Output path (default: <full-name>.cgc in the current directory)")
	bundleCmd.AddCommand(bundleListCmd)
	bundleCmd.AddCommand(bundleGetCmd)
}

func registryClient() *registry.Client {
	token := cfg.Registry.GitHubToken
	if token == "" {
		cm := config.NewCredentialManager()
		token, _ = cm.GetGitHubToken()
	}
	client := registry.NewClient(token, cfg.Registry.Owner, cfg.Registry.Repo, cfg.Registry.RateLimit)

	if cfg.Cache.Directory != "" {
		store, err := cache.Open(filepath.Join(cfg.Cache.Directory, "graphweave.db"))
		if err != nil {
			logger.WithError(err).Warn("Bundle cache unavailable, continuing without it")
		} else {
			client = client.WithCache(store)
		}
	}
	return client
}

func runBundleList(cmd *cobra.Command, args []string) error {
	client := registryClient()
	bundles := client.FetchAvailableBundles(context.Background())

	if len(bundles) == 0 {
		fmt.Println("No bundles available.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tVERSION\tCOMMIT\tSIZE\tGENERATED\tSOURCE")
	for _, b := range bundles {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			b.Name, b.Version, b.Commit, formatSize(b.SizeBytes), b.GeneratedAt, b.Source)
	}
	return w.Flush()
}

func runBundleGet(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	client := registryClient()

	bundle, err := client.FindBundle(ctx, args[0])
	if err != nil {
		return err
	}

	output := bundleOutput
	if output == "" {
		output = bundle.FullName + ".cgc"
	}

	fmt.Printf("Downloading %s (%s) ...\n", bundle.FullName, formatSize(bundle.SizeBytes))

	var downloaded int64
	err = client.Download(ctx, bundle.DownloadURL, output, func(n int) {
		downloaded += int64(n)
		if bundle.SizeBytes > 0 {
			fmt.Printf("\r  %s / %s", formatSize(downloaded), formatSize(bundle.SizeBytes))
		}
	})
	fmt.Println()
	if err != nil {
		return fmt.Errorf("download failed: %w", err)
	}

	fmt.Printf("Saved to %s\n", output)
	return nil
}

func formatSize(bytes int64) string {
	switch {
	case bytes >= 1<<30:
		return fmt.Sprintf("%.1f GiB", float64(bytes)/(1<<30))
	case bytes >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(bytes)/(1<<20))
	case bytes >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(bytes)/(1<<10))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
