// Package config loads service configuration from an optional YAML file
// layered over built-in defaults.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/FocuswithJustin/hwpxreport/core/errors"
	"github.com/FocuswithJustin/hwpxreport/core/report"
)

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	// APIKey, when set, is required in X-API-Key on every route except / and /health.
	APIKey    string          `yaml:"api_key"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig bounds job submissions per client address.
// Zero RequestsPerMinute disables the limit.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	Burst             int `yaml:"burst"`
}

// MinAPIKeyLength is the shortest accepted API key.
const MinAPIKeyLength = 16

// StorageConfig controls where durable state lives.
type StorageConfig struct {
	Root     string `yaml:"root"`
	Database string `yaml:"database"`
}

// JobsConfig controls the conversion job lifecycle.
type JobsConfig struct {
	MaxSourceBytes int64         `yaml:"max_source_bytes"`
	TTL            time.Duration `yaml:"ttl"`
	SweepInterval  time.Duration `yaml:"sweep_interval"`
	RenderTimeout  time.Duration `yaml:"render_timeout"`
	Workers        int           `yaml:"workers"`
}

// TemplatesConfig controls the template registry.
type TemplatesConfig struct {
	MaxBytes int64 `yaml:"max_bytes"`
	// DefaultPath, when set, is uploaded at startup and marked default.
	DefaultPath string `yaml:"default_path"`
}

// EngineConfig selects the external converter.
type EngineConfig struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

// LoggingConfig selects log level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the complete service configuration.
type Config struct {
	Server    ServerConfig               `yaml:"server"`
	Storage   StorageConfig              `yaml:"storage"`
	Jobs      JobsConfig                 `yaml:"jobs"`
	Templates TemplatesConfig            `yaml:"templates"`
	Engine    EngineConfig               `yaml:"engine"`
	Styles    map[string]report.Override `yaml:"styles"`
	Logging   LoggingConfig              `yaml:"logging"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8080,
		},
		Storage: StorageConfig{
			Root:     "data",
			Database: "hwpxreport.db",
		},
		Jobs: JobsConfig{
			MaxSourceBytes: 3 << 20,
			TTL:            24 * time.Hour,
			SweepInterval:  time.Hour,
			RenderTimeout:  2 * time.Minute,
			Workers:        3,
		},
		Templates: TemplatesConfig{
			MaxBytes: 20 << 20,
		},
		Engine: EngineConfig{
			Command: "pypandoc-hwpx",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := cfg.decode(data); err != nil {
		return nil, &errors.ParseError{Format: "config", Path: path, Message: err.Error(), Err: err}
	}
	return cfg, cfg.Validate()
}

func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && err != io.EOF {
		return err
	}
	return nil
}

// Validate rejects non-positive limits and durations and unknown style kinds.
func (c *Config) Validate() error {
	positive := []struct {
		field string
		ok    bool
	}{
		{"server.port", c.Server.Port > 0 && c.Server.Port < 65536},
		{"jobs.max_source_bytes", c.Jobs.MaxSourceBytes > 0},
		{"jobs.ttl", c.Jobs.TTL > 0},
		{"jobs.sweep_interval", c.Jobs.SweepInterval > 0},
		{"jobs.render_timeout", c.Jobs.RenderTimeout > 0},
		{"jobs.workers", c.Jobs.Workers > 0},
		{"templates.max_bytes", c.Templates.MaxBytes > 0},
	}
	for _, p := range positive {
		if !p.ok {
			return errors.NewValidation(p.field, "must be positive")
		}
	}
	if c.Server.RateLimit.RequestsPerMinute < 0 || c.Server.RateLimit.Burst < 0 {
		return errors.NewValidation("server.rate_limit", "must not be negative")
	}
	if c.Server.APIKey != "" && len(c.Server.APIKey) < MinAPIKeyLength {
		return errors.NewValidation("server.api_key", fmt.Sprintf("must be at least %d characters", MinAPIKeyLength))
	}
	if c.Storage.Root == "" {
		return errors.NewValidation("storage.root", "is required")
	}
	frag, err := c.StyleFragment()
	if err != nil {
		return err
	}
	_, err = report.Resolve(frag, nil)
	return err
}

// StyleFragment returns the configured style overrides.
func (c *Config) StyleFragment() (report.Fragment, error) {
	return report.FragmentFromNames(c.Styles)
}

// DatabasePath resolves the database file relative to the storage root.
// ":memory:" is passed through.
func (c *Config) DatabasePath() string {
	db := c.Storage.Database
	if db == "" {
		db = "hwpxreport.db"
	}
	if db == ":memory:" || filepath.IsAbs(db) {
		return db
	}
	return filepath.Join(c.Storage.Root, db)
}

// JobsDir is the parent of per-job working areas.
func (c *Config) JobsDir() string {
	return filepath.Join(c.Storage.Root, "jobs")
}

// BlobsDir holds content-addressed template archives.
func (c *Config) BlobsDir() string {
	return filepath.Join(c.Storage.Root, "templates")
}
