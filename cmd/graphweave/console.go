package main

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/pkg/browser"
	"github.com/spf13/cobra"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Open the Neo4j browser for the configured database",
	RunE:  runConsole,
}

func runConsole(cmd *cobra.Command, args []string) error {
	browserURL, err := neo4jBrowserURL(cfg.Neo4j.URI)
	if err != nil {
		return err
	}

	fmt.Printf("Opening %s\n", browserURL)
	if err := browser.OpenURL(browserURL); err != nil {
		return fmt.Errorf("open browser: %w", err)
	}
	return nil
}

// neo4jBrowserURL derives the browser UI address from a bolt URI.
// The browser runs on the HTTP connector, port 7474 by convention.
func neo4jBrowserURL(boltURI string) (string, error) {
	u, err := url.Parse(boltURI)
	if err != nil {
		return "", fmt.Errorf("invalid Neo4j URI %q: %w", boltURI, err)
	}

	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("invalid Neo4j URI %q: no host", boltURI)
	}

	scheme := "http"
	if strings.HasSuffix(u.Scheme, "+s") || u.Scheme == "neo4j+s" || u.Scheme == "bolt+s" {
		scheme = "https"
	}

	return fmt.Sprintf("%s://%s:7474", scheme, host), nil
}
