// Package config handles console configuration loading and management.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	apperrors "github.com/flynn-ai/opsconsole/internal/errors"
)

// Environment variables that override file values. Secrets are normally
// supplied this way rather than written to the TOML file.
const (
	EnvAPIKey    = "OPSCONSOLE_REASONING_API_KEY"
	EnvBaseURL   = "OPSCONSOLE_REASONING_BASE_URL"
	EnvRedisAddr = "OPSCONSOLE_REDIS_ADDR"
	EnvStorePath = "OPSCONSOLE_STORE_PATH"
)

// Default returns the default configuration.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".opsconsole")

	return &Config{
		Server: ServerConfig{
			Addr:         ":8787",
			ReadTimeout:  Duration{15 * time.Second},
			WriteTimeout: Duration{2 * time.Minute},
		},
		Reasoning: ReasoningConfig{
			BaseURL:     "https://openrouter.ai/api/v1",
			Model:       "anthropic/claude-3-haiku",
			Timeout:     Duration{30 * time.Second},
			MaxTokens:   1024,
			Temperature: 0.3,
			MaxAttempts: 2,
		},
		Store: StoreConfig{
			Path: filepath.Join(dataDir, "console.db"),
		},
		Audit: AuditConfig{
			Stream: "opsconsole:events",
			MaxLen: 10000,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Features: Features{
			Chat:             true,
			AdvancedClassify: true,
			MCP:              true,
		},
		Snapshot: SnapshotConfig{
			MaxTasks:    30,
			MaxProjects: 20,
			MaxTeam:     20,
		},
	}
}

// DefaultPath returns ~/.opsconsole/config.toml.
func DefaultPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".opsconsole", "config.toml")
}

// Load loads the configuration from the given path.
// If the file doesn't exist, returns defaults.
func Load(configPath string) (*Config, error) {
	cfg := Default()
	configPath = expandHome(configPath)

	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeConfigInvalid,
				fmt.Sprintf("parse %s", configPath), apperrors.CategoryUser)
		}
	case !os.IsNotExist(err):
		return nil, err
	}

	cfg.applyEnv()
	cfg.Store.Path = expandHome(cfg.Store.Path)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save saves the configuration to the given path.
func (c *Config) Save(configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return err
	}

	file, err := os.Create(configPath)
	if err != nil {
		return err
	}
	defer file.Close()

	return toml.NewEncoder(file).Encode(c)
}

// Validate rejects values the pipeline cannot run with.
func (c *Config) Validate() error {
	invalid := func(msg string) error {
		return apperrors.New(apperrors.CodeConfigInvalid, msg, apperrors.CategoryUser)
	}
	if c.Reasoning.Timeout.Duration <= 0 {
		return invalid("reasoning.timeout must be positive")
	}
	if c.Reasoning.MaxAttempts < 1 {
		return invalid("reasoning.max_attempts must be at least 1")
	}
	if c.Store.Path == "" {
		return invalid("store.path is required")
	}
	if c.Snapshot.MaxTasks < 0 || c.Snapshot.MaxProjects < 0 || c.Snapshot.MaxTeam < 0 {
		return invalid("snapshot limits must not be negative")
	}
	return nil
}

// ReasoningEnabled reports whether a reasoning-service credential is configured.
func (c *Config) ReasoningEnabled() bool {
	return strings.TrimSpace(c.Reasoning.APIKey) != ""
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvAPIKey); v != "" {
		c.Reasoning.APIKey = v
	}
	if v := os.Getenv(EnvBaseURL); v != "" {
		c.Reasoning.BaseURL = v
	}
	if v := os.Getenv(EnvRedisAddr); v != "" {
		c.Audit.RedisAddr = v
	}
	if v := os.Getenv(EnvStorePath); v != "" {
		c.Store.Path = v
	}
}

// expandHome expands a leading ~ in a path.
func expandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, path[1:])
}
