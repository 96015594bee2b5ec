// Package config provides configuration management for gantry.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Defaults applied when the corresponding environment variable is unset.
const (
	DefaultPipelinePath = "gantry.yaml"
	DefaultListenAddr   = ":8080"
	DefaultRunTimeout   = 30 * time.Minute
)

// Config holds the application configuration, loaded from environment
// variables.
type Config struct {
	// Workspace is the directory stage commands run in. Defaults to the
	// current working directory.
	Workspace string

	// PipelinePath is the pipeline definition file. When the file does not
	// exist the built-in default pipeline is used.
	PipelinePath string

	// CacheDir is where the filesystem cache store keeps its blobs.
	// Empty means an in-memory cache.
	CacheDir string

	// ListenAddr is the webhook server bind address.
	ListenAddr string

	// WebhookSecret verifies GitHub webhook signatures when non-empty.
	WebhookSecret string

	// GithubToken authenticates GitHub API calls. Empty works for public
	// repositories at a reduced rate limit.
	GithubToken string

	// RunTimeout is the wall-clock budget for a whole run. Deadline expiry
	// fails the currently running stage.
	RunTimeout time.Duration

	// RedpandaBrokers enables distributed mode when non-empty.
	RedpandaBrokers []string

	// PostgresDSN enables Postgres-backed run and cache storage when
	// non-empty.
	PostgresDSN string
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Workspace:     os.Getenv("GANTRY_WORKSPACE"),
		PipelinePath:  os.Getenv("GANTRY_PIPELINE"),
		CacheDir:      os.Getenv("GANTRY_CACHE_DIR"),
		ListenAddr:    os.Getenv("GANTRY_LISTEN_ADDR"),
		WebhookSecret: os.Getenv("GANTRY_WEBHOOK_SECRET"),
		GithubToken:   os.Getenv("GITHUB_TOKEN"),
		PostgresDSN:   os.Getenv("POSTGRES_DSN"),
		RunTimeout:    DefaultRunTimeout,
	}

	if cfg.Workspace == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to determine working directory: %w", err)
		}
		cfg.Workspace = wd
	}
	if cfg.PipelinePath == "" {
		cfg.PipelinePath = DefaultPipelinePath
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = DefaultListenAddr
	}

	if raw := os.Getenv("GANTRY_RUN_TIMEOUT"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid GANTRY_RUN_TIMEOUT %q: %w", raw, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("GANTRY_RUN_TIMEOUT must be positive, got %q", raw)
		}
		cfg.RunTimeout = d
	}

	if raw := os.Getenv("REDPANDA_BROKERS"); raw != "" {
		for _, b := range strings.Split(raw, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.RedpandaBrokers = append(cfg.RedpandaBrokers, b)
			}
		}
	}

	return cfg, nil
}

// MustLoadFromEnv loads configuration and panics on error. Useful for
// initialization in main() where configuration errors should be fatal.
func MustLoadFromEnv() *Config {
	cfg, err := LoadFromEnv()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Distributed reports whether a Redpanda broker is configured.
func (c *Config) Distributed() bool {
	return len(c.RedpandaBrokers) > 0
}
