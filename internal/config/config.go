package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/ryanm101/gami/internal/logging"
)

const appName = "gami"

// Config holds application configuration.
type Config struct {
	DataDir     string         `yaml:"data_dir" env:"GAMI_DATA_DIR"`
	DBPath      string         `yaml:"db_path" env:"GAMI_DB"`
	AddonsDir   string         `yaml:"addons_dir" env:"GAMI_ADDONS_DIR"`
	MetricsAddr string         `yaml:"metrics_addr" env:"GAMI_METRICS_ADDR"`
	Fetch       FetchConfig    `yaml:"fetch"`
	Addons      AddonsConfig   `yaml:"addons"`
	Logging     logging.Config `yaml:"logging"`
	Tracing     TracingConfig  `yaml:"tracing"`
}

// FetchConfig tunes the metadata fetch engine.
type FetchConfig struct {
	Workers int           `yaml:"workers" env:"GAMI_FETCH_WORKERS"`
	Timeout time.Duration `yaml:"timeout" env:"GAMI_FETCH_TIMEOUT"`
}

// AddonsConfig bounds calls into addon code.
type AddonsConfig struct {
	CallTimeout time.Duration `yaml:"call_timeout" env:"GAMI_ADDON_CALL_TIMEOUT"`
	ScanTimeout time.Duration `yaml:"scan_timeout" env:"GAMI_ADDON_SCAN_TIMEOUT"`
}

// TracingConfig configures the OTLP exporter.
type TracingConfig struct {
	Endpoint string `yaml:"endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// DefaultConfig returns configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Fetch: FetchConfig{
			Workers: 8,
			Timeout: 30 * time.Second,
		},
		Addons: AddonsConfig{
			CallTimeout: 30 * time.Second,
			ScanTimeout: 5 * time.Minute,
		},
		Logging: logging.DefaultConfig(),
	}
}

// configPaths returns the list of paths to search for config file.
func configPaths() []string {
	paths := []string{
		".gami.yaml",
		".gami.yml",
	}

	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths,
			filepath.Join(dir, appName, "config.yaml"),
			filepath.Join(dir, appName, "config.yml"),
		)
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".gami.yaml"))
	}

	return paths
}

// Load loads configuration from file or returns defaults.
// Priority: env overrides > GAMI_CONFIG > search paths > defaults
func Load() (*Config, error) {
	cfg := DefaultConfig()

	if envPath := os.Getenv("GAMI_CONFIG"); envPath != "" {
		if err := cfg.loadFromFile(envPath); err != nil {
			return nil, err
		}
	} else {
		for _, path := range configPaths() {
			if _, err := os.Stat(path); err == nil {
				if err := cfg.loadFromFile(path); err != nil {
					return nil, err
				}
				break
			}
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // Path comes from the user or a fixed search list
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() error {
	if err := env.Parse(c); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	return nil
}

// GetDataDir returns the base data directory.
func (c *Config) GetDataDir() string {
	if c.DataDir != "" {
		return c.DataDir
	}
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, appName)
	}
	return "." + appName
}

// GetDBPath returns the catalog database path.
func (c *Config) GetDBPath() string {
	if c.DBPath != "" {
		return c.DBPath
	}
	return filepath.Join(c.GetDataDir(), "data.db")
}

// GetAddonsDir returns the root directory holding one subdirectory per addon.
func (c *Config) GetAddonsDir() string {
	if c.AddonsDir != "" {
		return c.AddonsDir
	}
	return filepath.Join(c.GetDataDir(), "addons")
}

// GetFetchWorkers returns the metadata fetch concurrency.
func (c *Config) GetFetchWorkers() int {
	if c.Fetch.Workers > 0 {
		return c.Fetch.Workers
	}
	return 8
}
