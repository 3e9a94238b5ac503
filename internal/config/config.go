// Package config provides configuration management for the DocuHelp
// server. Configuration is loaded from environment variables with
// sensible defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
)

const (
	// Default data directory under the user's home.
	DefaultDataDir = ".docuhelp"

	// Database filename inside the data directory.
	DBFilename = "docuhelp.db"
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	LogFormat() string
	DataDir() string
	DBPath() string
	UploadsDir() string
	OpenRouterAPIKey() string
	OpenRouterBaseURL() string
	VLMModel() string
	MaxFrames() int
	MinFrameSeparation() float64
}

type envValues struct {
	Port      int    `env:"DOCUHELP_PORT" envDefault:"8090"`
	LogLevel  string `env:"DOCUHELP_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"DOCUHELP_LOG_FORMAT" envDefault:"json"`
	DataDir   string `env:"DOCUHELP_DATA_DIR"`

	OpenRouterAPIKey  string `env:"OPENROUTER_API_KEY"`
	OpenRouterBaseURL string `env:"DOCUHELP_OPENROUTER_BASE_URL" envDefault:"https://openrouter.ai/api/v1"`
	VLMModel          string `env:"DOCUHELP_VLM_MODEL" envDefault:"google/gemini-2.0-flash-exp:free"`

	MaxFrames          int     `env:"DOCUHELP_MAX_FRAMES" envDefault:"20"`
	MinFrameSeparation float64 `env:"DOCUHELP_MIN_FRAME_SEPARATION" envDefault:"30"`
}

// EnvConfig reads configuration from environment variables
type EnvConfig struct {
	v envValues
}

// New creates a new EnvConfig with defaults and environment variable overrides
func New() (*EnvConfig, error) {
	cfg := &EnvConfig{}
	if err := env.Parse(&cfg.v); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if cfg.v.Port < 1 || cfg.v.Port > 65535 {
		return nil, fmt.Errorf("invalid DOCUHELP_PORT: port must be between 1 and 65535")
	}
	if cfg.v.DataDir == "" {
		cfg.v.DataDir = defaultDataDir()
	}
	if cfg.v.MaxFrames < 1 {
		return nil, fmt.Errorf("invalid DOCUHELP_MAX_FRAMES: must be at least 1")
	}

	return cfg, nil
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.v.Port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.v.LogLevel
}

// LogFormat returns the log output format (json or console)
func (c *EnvConfig) LogFormat() string {
	return c.v.LogFormat
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.v.DataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.v.DataDir, DBFilename)
}

// UploadsDir returns the directory where uploaded videos are stored
func (c *EnvConfig) UploadsDir() string {
	return filepath.Join(c.v.DataDir, "uploads")
}

func (c *EnvConfig) OpenRouterAPIKey() string {
	return c.v.OpenRouterAPIKey
}

func (c *EnvConfig) OpenRouterBaseURL() string {
	return c.v.OpenRouterBaseURL
}

func (c *EnvConfig) VLMModel() string {
	return c.v.VLMModel
}

// MaxFrames returns the upper bound on frames sent to the vision model
func (c *EnvConfig) MaxFrames() int {
	return c.v.MaxFrames
}

// MinFrameSeparation returns the minimum seconds between selected frames
func (c *EnvConfig) MinFrameSeparation() float64 {
	return c.v.MinFrameSeparation
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
