package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/graphweave/graphweave/internal/config"
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Interactive setup wizard (with OS keychain support)",
	Long: `Walk through GraphWeave configuration step-by-step.

This will configure:
1. Neo4j connection (URI, username, database)
2. Neo4j password (stored in OS keychain by default)
3. GitHub token for the bundle registry (optional)`,
	RunE: runConfigure,
}

func runConfigure(cmd *cobra.Command, args []string) error {
	fmt.Println("GraphWeave configuration")
	fmt.Println()

	reader := bufio.NewReader(os.Stdin)

	homeDir, _ := os.UserHomeDir()
	configPath := filepath.Join(homeDir, ".graphweave", "config.yaml")
	loadedCfg, err := config.Load(configPath)
	if err != nil {
		loadedCfg = config.Default()
	}

	km := config.NewKeyringManager()
	keychainAvailable := km.IsAvailable()
	if !keychainAvailable {
		fmt.Println("OS keychain not available (headless system or Linux without libsecret).")
		fmt.Println("Secrets will be stored in a user-only credentials file instead.")
		fmt.Println()
	}

	// Step 1: Neo4j connection
	fmt.Println("Step 1/3: Neo4j connection")
	loadedCfg.Neo4j.URI = promptDefault(reader, "Neo4j URI", loadedCfg.Neo4j.URI)
	loadedCfg.Neo4j.Username = promptDefault(reader, "Neo4j username", loadedCfg.Neo4j.Username)
	loadedCfg.Neo4j.Database = promptDefault(reader, "Neo4j database", loadedCfg.Neo4j.Database)
	fmt.Println()

	// Step 2: Neo4j password
	fmt.Println("Step 2/3: Neo4j password")
	fmt.Print("Enter Neo4j password (or press Enter to keep current): ")
	password, err := readSecret()
	if err != nil {
		return err
	}
	if password != "" {
		cm := config.NewCredentialManager()
		if err := cm.SaveCredentials(config.Credentials{Neo4jPassword: password}); err != nil {
			return fmt.Errorf("save password: %w", err)
		}
		if keychainAvailable {
			fmt.Println("Saved to keychain.")
		} else {
			fmt.Printf("Saved to %s.\n", cm.GetConfigPath())
		}
	}
	fmt.Println()

	// Step 3: GitHub token (optional)
	fmt.Println("Step 3/3: GitHub token for the bundle registry (optional)")
	fmt.Print("Enter GitHub token (or press Enter to skip): ")
	token, err := readSecret()
	if err != nil {
		return err
	}
	if token != "" {
		cm := config.NewCredentialManager()
		if err := cm.SaveCredentials(config.Credentials{GitHubToken: token}); err != nil {
			return fmt.Errorf("save token: %w", err)
		}
		fmt.Println("Saved.")
	}
	fmt.Println()

	if err := loadedCfg.Save(configPath); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	fmt.Printf("Configuration written to %s\n", configPath)
	return nil
}

func promptDefault(reader *bufio.Reader, label, current string) string {
	fmt.Printf("%s [%s]: ", label, current)
	line, err := reader.ReadString('\n')
	if err != nil {
		return current
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return current
	}
	return line
}

func readSecret() (string, error) {
	if term.IsTerminal(int(syscall.Stdin)) {
		bytes, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(bytes)), nil
	}

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
