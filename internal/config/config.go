package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration settings
type Config struct {
	// Neo4j connection settings
	Neo4j Neo4jConfig `yaml:"neo4j"`

	// Run ledger storage
	Storage StorageConfig `yaml:"storage"`

	// Bundle registry settings
	Registry RegistryConfig `yaml:"registry"`

	// Local cache settings
	Cache CacheConfig `yaml:"cache"`

	// Indexing settings
	Index IndexConfig `yaml:"index"`
}

type Neo4jConfig struct {
	URI      string `yaml:"uri"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

type StorageConfig struct {
	Type        string `yaml:"type"` // "postgres", "sqlite"
	PostgresDSN string `yaml:"postgres_dsn"`
	LocalPath   string `yaml:"local_path"`
}

type RegistryConfig struct {
	Owner       string `yaml:"owner"`
	Repo        string `yaml:"repo"`
	GitHubToken string `yaml:"github_token"`
	RateLimit   int    `yaml:"rate_limit"` // Requests per second
}

type CacheConfig struct {
	Directory string `yaml:"directory"`
}

type IndexConfig struct {
	Workers     int  `yaml:"workers"`
	IndexSource bool `yaml:"index_source"`
}

// Default returns default configuration
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Neo4j: Neo4jConfig{
			URI:      "bolt://localhost:7687",
			Username: "neo4j",
			Database: "neo4j",
		},
		Storage: StorageConfig{
			Type:      "sqlite",
			LocalPath: filepath.Join(homeDir, ".graphweave", "runs.db"),
		},
		Registry: RegistryConfig{
			Owner:     "CodeGraphContext",
			Repo:      "CodeGraphContext",
			RateLimit: 10,
		},
		Cache: CacheConfig{
			Directory: filepath.Join(homeDir, ".graphweave", "cache"),
		},
		Index: IndexConfig{
			Workers: 8,
		},
	}
}

// Load loads configuration from file, environment and defaults
func Load(path string) (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	v.SetConfigType("yaml")

	cfg := Default()
	v.SetDefault("neo4j", cfg.Neo4j)
	v.SetDefault("storage", cfg.Storage)
	v.SetDefault("registry", cfg.Registry)
	v.SetDefault("cache", cfg.Cache)
	v.SetDefault("index", cfg.Index)

	v.SetEnvPrefix("GRAPHWEAVE")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".graphweave")
		v.AddConfigPath(".")
		homeDir, _ := os.UserHomeDir()
		v.AddConfigPath(filepath.Join(homeDir, ".graphweave"))
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// no config file is fine, defaults apply
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// loadEnvFiles loads .env files in order of precedence
func loadEnvFiles() {
	envFiles := []string{
		".env.local",
		".env",
	}

	for _, file := range envFiles {
		if _, err := os.Stat(file); err == nil {
			godotenv.Load(file)
		}
	}

	homeDir, _ := os.UserHomeDir()
	homeEnvFile := filepath.Join(homeDir, ".graphweave", ".env")
	if _, err := os.Stat(homeEnvFile); err == nil {
		godotenv.Load(homeEnvFile)
	}
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(cfg *Config) {
	// Neo4j configuration
	if uri := os.Getenv("NEO4J_URI"); uri != "" {
		cfg.Neo4j.URI = uri
	}
	if user := os.Getenv("NEO4J_USERNAME"); user != "" {
		cfg.Neo4j.Username = user
	}
	if password := os.Getenv("NEO4J_PASSWORD"); password != "" {
		cfg.Neo4j.Password = password
	}
	if database := os.Getenv("NEO4J_DATABASE"); database != "" {
		cfg.Neo4j.Database = database
	}

	// Registry configuration
	for _, envVar := range []string{"GITHUB_TOKEN", "GH_TOKEN"} {
		if token := os.Getenv(envVar); token != "" {
			cfg.Registry.GitHubToken = token
			break
		}
	}
	if owner := os.Getenv("GRAPHWEAVE_REGISTRY_OWNER"); owner != "" {
		cfg.Registry.Owner = owner
	}
	if repo := os.Getenv("GRAPHWEAVE_REGISTRY_REPO"); repo != "" {
		cfg.Registry.Repo = repo
	}
	if rateLimit := os.Getenv("GITHUB_RATE_LIMIT"); rateLimit != "" {
		if rate, err := strconv.Atoi(rateLimit); err == nil {
			cfg.Registry.RateLimit = rate
		}
	}

	// Storage configuration
	if storageType := os.Getenv("STORAGE_TYPE"); storageType != "" {
		cfg.Storage.Type = storageType
	}
	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		cfg.Storage.PostgresDSN = dsn
	}
	if path := os.Getenv("LOCAL_DB_PATH"); path != "" {
		cfg.Storage.LocalPath = expandPath(path)
	}

	// Cache configuration
	if dir := os.Getenv("CACHE_DIRECTORY"); dir != "" {
		cfg.Cache.Directory = expandPath(dir)
	}

	// Indexing configuration
	if workers := os.Getenv("INDEX_WORKERS"); workers != "" {
		if n, err := strconv.Atoi(workers); err == nil && n > 0 {
			cfg.Index.Workers = n
		}
	}
	if indexSource := os.Getenv("INDEX_SOURCE"); indexSource != "" {
		cfg.Index.IndexSource = indexSource == "true" || indexSource == "1"
	}
}

// expandPath expands ~ to home directory
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[1:])
	}
	return path
}

// Save saves configuration to file
func (c *Config) Save(path string) error {
	v := viper.New()
	v.SetConfigType("yaml")

	v.Set("neo4j", c.Neo4j)
	v.Set("storage", c.Storage)
	v.Set("registry", c.Registry)
	v.Set("cache", c.Cache)
	v.Set("index", c.Index)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}
