// Package config loads the engine configuration: collection
// registrations, embedding and LLM endpoints, search tuning, and
// logging. Sources merge in order: built-in defaults, the user config
// file, a project-local file, then environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigFileName is the project-local configuration file.
const ConfigFileName = ".kbengine.yaml"

// envPrefix namespaces the override environment variables.
const envPrefix = "KBENGINE_"

// Config is the complete engine configuration.
type Config struct {
	Version     int               `yaml:"version"`
	DatabasePath string           `yaml:"database_path"`
	Collections []CollectionConfig `yaml:"collections"`
	Search      SearchConfig      `yaml:"search"`
	Embeddings  EmbeddingsConfig  `yaml:"embeddings"`
	LLM         LLMConfig         `yaml:"llm"`
	Logging     LoggingConfig     `yaml:"logging"`
	Sessions    SessionsConfig    `yaml:"sessions"`
}

// CollectionConfig registers one source collection.
type CollectionConfig struct {
	Name     string            `yaml:"name"`
	Path     string            `yaml:"path"`
	Pattern  string            `yaml:"pattern"`
	Provider string            `yaml:"provider"`
	Options  map[string]string `yaml:"options"`
}

// SearchConfig tunes retrieval.
type SearchConfig struct {
	// RRFConstant is the reciprocal-rank-fusion smoothing constant.
	RRFConstant int `yaml:"rrf_constant"`

	// MaxResults caps the default result window.
	MaxResults int `yaml:"max_results"`

	// MinScore is the default inclusive score floor.
	MinScore float64 `yaml:"min_score"`

	// BM25Backend selects the chunk keyword index: "sqlite" (FTS5 in
	// the main database, default) or "bleve" (standalone index file).
	BM25Backend string `yaml:"bm25_backend"`

	// PreferDocs biases ranking toward documentation collections.
	PreferDocs bool `yaml:"prefer_docs"`
}

// EmbeddingsConfig selects the embedding backend.
type EmbeddingsConfig struct {
	Provider string `yaml:"provider"` // ollama | static
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
}

// LLMConfig points at the chat-completion service used for metadata
// generation, query analysis, and workflow planning.
type LLMConfig struct {
	BaseURL   string  `yaml:"base_url"`
	Model     string  `yaml:"model"`
	APIKeyEnv string  `yaml:"api_key_env"` // env var holding the key, never the key itself
	Temperature float64 `yaml:"temperature"`
	MaxTokens int     `yaml:"max_tokens"`
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// LoggingConfig configures slog setup.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json; not applied, the engine log is always JSON
	Path   string `yaml:"path"`   // not applied, the CLI logs to logging.DefaultLogPath()
}

// SessionsConfig tunes the session subsystem.
type SessionsConfig struct {
	TTLSeconds int `yaml:"ttl_seconds"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Version:      1,
		DatabasePath: filepath.Join(dataDir(), "kbengine.db"),
		Search: SearchConfig{
			RRFConstant: 60,
			MaxResults:  10,
			BM25Backend: "sqlite",
		},
		Embeddings: EmbeddingsConfig{
			Provider: "ollama",
			Model:    "nomic-embed-text",
		},
		LLM: LLMConfig{
			BaseURL:        "http://localhost:11434/v1",
			Model:          "llama3.2",
			Temperature:    0.2,
			MaxTokens:      2048,
			TimeoutSeconds: 120,
		},
		Logging:  LoggingConfig{Level: "info", Format: "text"},
		Sessions: SessionsConfig{TTLSeconds: 3600},
	}
}

// Load merges defaults, the user config, the project config under
// projectDir (if any), and environment overrides.
func Load(projectDir string) (*Config, error) {
	cfg := Default()

	if UserConfigExists() {
		if err := mergeFile(cfg, GetUserConfigPath()); err != nil {
			return nil, err
		}
	}
	if projectDir != "" {
		projectPath := filepath.Join(projectDir, ConfigFileName)
		if fileExists(projectPath) {
			if err := mergeFile(cfg, projectPath); err != nil {
				return nil, err
			}
		}
	}
	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func mergeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// applyEnv overrides scalar settings from KBENGINE_* variables.
func applyEnv(cfg *Config) {
	if v := os.Getenv(envPrefix + "DB_PATH"); v != "" {
		cfg.DatabasePath = v
	}
	if v := os.Getenv(envPrefix + "EMBEDDINGS_PROVIDER"); v != "" {
		cfg.Embeddings.Provider = v
	}
	if v := os.Getenv(envPrefix + "EMBEDDINGS_MODEL"); v != "" {
		cfg.Embeddings.Model = v
	}
	if v := os.Getenv(envPrefix + "LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv(envPrefix + "LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv(envPrefix + "LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv(envPrefix + "RRF_CONSTANT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Search.RRFConstant = n
		}
	}
	if v := os.Getenv(envPrefix + "BM25_BACKEND"); v != "" {
		cfg.Search.BM25Backend = v
	}
	if v := os.Getenv(envPrefix + "MAX_RESULTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Search.MaxResults = n
		}
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("database_path must not be empty")
	}
	if c.Search.RRFConstant <= 0 {
		return fmt.Errorf("search.rrf_constant must be positive")
	}
	if c.Search.MaxResults <= 0 {
		return fmt.Errorf("search.max_results must be positive")
	}
	switch strings.ToLower(c.Search.BM25Backend) {
	case "sqlite", "bleve", "":
	default:
		return fmt.Errorf("search.bm25_backend %q is not one of sqlite/bleve", c.Search.BM25Backend)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error", "":
	default:
		return fmt.Errorf("logging.level %q is not one of debug/info/warn/error", c.Logging.Level)
	}
	seen := make(map[string]bool)
	for _, col := range c.Collections {
		if col.Name == "" {
			return fmt.Errorf("collection with empty name")
		}
		if seen[col.Name] {
			return fmt.Errorf("duplicate collection name %q", col.Name)
		}
		seen[col.Name] = true
		if col.Path == "" {
			return fmt.Errorf("collection %q has no path", col.Name)
		}
	}
	return nil
}

// APIKey resolves the LLM API key from the configured environment
// variable; keys are never stored in the config file.
func (c *Config) APIKey() string {
	if c.LLM.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.LLM.APIKeyEnv)
}

// GetUserConfigPath returns the path of the per-user configuration
// file, honoring XDG_CONFIG_HOME.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "kbengine", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "kbengine-config.yaml")
	}
	return filepath.Join(home, ".config", "kbengine", "config.yaml")
}

// GetUserConfigDir returns the directory holding the user config.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists reports whether a user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".kbengine"
	}
	return filepath.Join(home, ".kbengine")
}
