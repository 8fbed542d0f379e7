// Package config loads daemon configuration from an optional YAML file with
// environment variable overrides. Precedence, lowest to highest: built-in
// defaults, the config file, REPTRACK_* environment variables.
package config

import (
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/reptrack/backend/internal/errors"
)

// Duration wraps time.Duration so YAML accepts "30s" and "5m" style values.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds everything the daemon needs to start.
type Config struct {
	APIBaseURL string `yaml:"apiBaseUrl"`
	APIToken   string `yaml:"apiToken"`

	DataDir    string `yaml:"dataDir"`
	ListenAddr string `yaml:"listenAddr"`

	SyncInterval  Duration `yaml:"syncInterval"`
	ProbeInterval Duration `yaml:"probeInterval"`

	LogLevel string `yaml:"logLevel"`

	// StartOnline forces the initial connectivity assumption. The
	// reachability probe corrects it within one interval either way.
	StartOnline bool `yaml:"startOnline"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		APIBaseURL:    "http://localhost:8090",
		DataDir:       defaultDataDir(),
		ListenAddr:    "127.0.0.1:8787",
		SyncInterval:  Duration(5 * time.Minute),
		ProbeInterval: Duration(30 * time.Second),
		LogLevel:      "info",
		StartOnline:   true,
	}
}

// Load reads the configuration file at path when it exists, then applies
// environment overrides. An empty path skips the file entirely.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, apperrors.Wrap(apperrors.ErrConfigInvalid, "failed to read config file", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrConfigInvalid, "failed to parse config file", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays REPTRACK_* environment variables.
func (c *Config) applyEnv() {
	if v := os.Getenv("REPTRACK_API_BASE_URL"); v != "" {
		c.APIBaseURL = v
	}
	if v := os.Getenv("REPTRACK_API_TOKEN"); v != "" {
		c.APIToken = v
	}
	if v := os.Getenv("REPTRACK_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("REPTRACK_LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("REPTRACK_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("REPTRACK_SYNC_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.SyncInterval = Duration(d)
		}
	}
	if v := os.Getenv("REPTRACK_PROBE_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.ProbeInterval = Duration(d)
		}
	}
	if v := os.Getenv("REPTRACK_START_ONLINE"); v != "" {
		c.StartOnline = strings.EqualFold(v, "true") || v == "1"
	}
}

// Validate checks the configuration for values the daemon cannot start with.
func (c *Config) Validate() error {
	if c.APIBaseURL == "" {
		return apperrors.New(apperrors.ErrConfigInvalid, "apiBaseUrl is required")
	}
	if !strings.HasPrefix(c.APIBaseURL, "http://") && !strings.HasPrefix(c.APIBaseURL, "https://") {
		return apperrors.New(apperrors.ErrConfigInvalid, "apiBaseUrl must be an http(s) URL")
	}
	if c.DataDir == "" {
		return apperrors.New(apperrors.ErrConfigInvalid, "dataDir is required")
	}
	if c.ListenAddr == "" {
		return apperrors.New(apperrors.ErrConfigInvalid, "listenAddr is required")
	}
	if c.SyncInterval <= 0 {
		return apperrors.New(apperrors.ErrConfigInvalid, "syncInterval must be positive")
	}
	if c.ProbeInterval <= 0 {
		return apperrors.New(apperrors.ErrConfigInvalid, "probeInterval must be positive")
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return apperrors.New(apperrors.ErrConfigInvalid, "logLevel must be one of debug, info, warn, error")
	}
	return nil
}

func defaultDataDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home + string(os.PathSeparator) + ".reptrack"
	}
	return ".reptrack"
}
