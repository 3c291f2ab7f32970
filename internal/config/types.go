// Package config provides configuration types for the console.
package config

import "time"

// Config represents the main console configuration.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Reasoning ReasoningConfig `toml:"reasoning"`
	Store     StoreConfig     `toml:"store"`
	Audit     AuditConfig     `toml:"audit"`
	Log       LogConfig       `toml:"log"`
	Features  Features        `toml:"features"`
	Snapshot  SnapshotConfig  `toml:"snapshot"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr         string   `toml:"addr"`
	ReadTimeout  Duration `toml:"read_timeout"`
	WriteTimeout Duration `toml:"write_timeout"`
}

// ReasoningConfig configures the OpenAI-compatible reasoning service.
// An empty APIKey disables the service and routes every chat to the
// fallback responder.
type ReasoningConfig struct {
	BaseURL     string   `toml:"base_url"`
	Model       string   `toml:"model"`
	APIKey      string   `toml:"api_key"`
	Timeout     Duration `toml:"timeout"`
	MaxTokens   int      `toml:"max_tokens"`
	Temperature float64  `toml:"temperature"`
	MaxAttempts int      `toml:"max_attempts"`
}

// StoreConfig configures the SQLite entity store.
type StoreConfig struct {
	Path string `toml:"path"`
}

// AuditConfig configures the event publisher. An empty RedisAddr
// publishes to the log only.
type AuditConfig struct {
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	Stream        string `toml:"stream"`
	MaxLen        int64  `toml:"max_len"`
}

// LogConfig configures zerolog.
type LogConfig struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // json, console
}

// Features contains feature flags.
type Features struct {
	Chat             bool `toml:"chat"`
	AdvancedClassify bool `toml:"advanced_classify"`
	MCP              bool `toml:"mcp"`
}

// SnapshotConfig bounds the context snapshot sent to the reasoning service.
type SnapshotConfig struct {
	MaxTasks    int `toml:"max_tasks"`
	MaxProjects int `toml:"max_projects"`
	MaxTeam     int `toml:"max_team"`
}

// Duration is a time.Duration that reads from TOML strings like "30s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}
