package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/graphweave/graphweave/internal/errors"
)

// CredentialManager resolves credentials through a priority chain:
// environment variables, then OS keychain, then config file, then an
// interactive prompt when stdin is a terminal.
type CredentialManager struct {
	keyring    *KeyringManager
	configPath string
}

// Credentials holds secrets stored outside the main config file
type Credentials struct {
	Neo4jPassword string `yaml:"neo4j_password"`
	GitHubToken   string `yaml:"github_token"`
}

// NewCredentialManager creates a new credential manager
func NewCredentialManager() *CredentialManager {
	homeDir, _ := os.UserHomeDir()
	configPath := filepath.Join(homeDir, ".config", "graphweave", "credentials.yaml")

	return &CredentialManager{
		keyring:    NewKeyringManager(),
		configPath: configPath,
	}
}

// GetNeo4jPassword retrieves the Neo4j password using the chain
func (cm *CredentialManager) GetNeo4jPassword() (string, error) {
	// 1. Environment variable (highest priority)
	if password := os.Getenv("NEO4J_PASSWORD"); password != "" {
		return password, nil
	}

	// 2. Keychain
	if cm.keyring.IsAvailable() {
		if password, err := cm.keyring.GetNeo4jPassword(); err == nil && password != "" {
			return password, nil
		}
	}

	// 3. Credentials file
	if creds, err := cm.loadCredentialsFile(); err == nil && creds.Neo4jPassword != "" {
		return creds.Neo4jPassword, nil
	}

	// 4. Interactive prompt
	if isInteractive() {
		fmt.Fprintln(os.Stderr, "Neo4j password not found.")
		fmt.Fprint(os.Stderr, "Enter Neo4j password: ")
		password, err := cm.readSecurely()
		if err != nil {
			return "", err
		}
		if password == "" {
			return "", errors.ConfigError("neo4j password is required")
		}

		if cm.keyring.IsAvailable() {
			if err := cm.keyring.SetNeo4jPassword(password); err == nil {
				fmt.Fprintln(os.Stderr, "Saved to keychain")
			}
		} else if err := cm.saveCredentialsFile(Credentials{Neo4jPassword: password}); err == nil {
			fmt.Fprintf(os.Stderr, "Saved to %s\n", cm.configPath)
		}

		return password, nil
	}

	return "", errors.ConfigErrorf(
		"NEO4J_PASSWORD not found. Set it via:\n"+
			"  1. Environment variable: export NEO4J_PASSWORD=...\n"+
			"  2. Run: graphweave configure (to set up keychain)\n"+
			"  3. Credentials file: %s", cm.configPath)
}

// GetGitHubToken retrieves the GitHub token using the chain. The
// token is optional; anonymous registry access works for public
// bundles, so every miss returns empty rather than an error.
func (cm *CredentialManager) GetGitHubToken() (string, error) {
	// 1. Environment variable (highest priority)
	for _, envVar := range []string{"GITHUB_TOKEN", "GH_TOKEN"} {
		if token := os.Getenv(envVar); token != "" {
			return token, nil
		}
	}

	// 2. Keychain
	if cm.keyring.IsAvailable() {
		if token, err := cm.keyring.GetGitHubToken(); err == nil && token != "" {
			return token, nil
		}
	}

	// 3. Credentials file
	if creds, err := cm.loadCredentialsFile(); err == nil && creds.GitHubToken != "" {
		return creds.GitHubToken, nil
	}

	return "", nil
}

// SaveCredentials saves credentials to the keychain, falling back to
// the credentials file when no keychain is available.
func (cm *CredentialManager) SaveCredentials(creds Credentials) error {
	if cm.keyring.IsAvailable() {
		if creds.Neo4jPassword != "" {
			if err := cm.keyring.SetNeo4jPassword(creds.Neo4jPassword); err != nil {
				return errors.Wrap(err, errors.ErrorTypeConfig, errors.SeverityHigh,
					"failed to save neo4j password to keychain")
			}
		}
		if creds.GitHubToken != "" {
			if err := cm.keyring.SetGitHubToken(creds.GitHubToken); err != nil {
				return errors.Wrap(err, errors.ErrorTypeConfig, errors.SeverityHigh,
					"failed to save github token to keychain")
			}
		}
		return nil
	}

	return cm.saveCredentialsFile(creds)
}

// loadCredentialsFile loads credentials from the credentials file
func (cm *CredentialManager) loadCredentialsFile() (*Credentials, error) {
	data, err := os.ReadFile(cm.configPath)
	if err != nil {
		return nil, err
	}

	var creds Credentials
	if err := yaml.Unmarshal(data, &creds); err != nil {
		return nil, err
	}

	return &creds, nil
}

// saveCredentialsFile writes credentials with user-only permissions
func (cm *CredentialManager) saveCredentialsFile(creds Credentials) error {
	dir := filepath.Dir(cm.configPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(creds)
	if err != nil {
		return err
	}

	return os.WriteFile(cm.configPath, data, 0o600)
}

// readSecurely reads a password/token from stdin without echoing
func (cm *CredentialManager) readSecurely() (string, error) {
	if term.IsTerminal(int(syscall.Stdin)) {
		bytes, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(os.Stderr)
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

// isInteractive returns true if stdin is a terminal (not piped)
func isInteractive() bool {
	return term.IsTerminal(int(syscall.Stdin))
}

// GetConfigPath returns the path to the credentials file
func (cm *CredentialManager) GetConfigPath() string {
	return cm.configPath
}
