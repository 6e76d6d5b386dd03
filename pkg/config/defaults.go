package config

import (
	"time"

	"github.com/filedepot/filedepot/pkg/server"
)

// Default returns the complete default configuration.
func Default() Config {
	cfg := Config{}
	ApplyDefaults(&cfg)
	return cfg
}

// ApplyDefaults fills in zero values with sensible defaults.
// Explicit values from the config file or environment are left alone.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyRepositoryDefaults(&cfg.Repository)
	applyAPIDefaults(cfg)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyServerDefaults(cfg *server.Config) {
	if cfg.Port <= 0 {
		cfg.Port = 5050
	}
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = 3
	}
	if cfg.Timeouts.Shutdown <= 0 {
		cfg.Timeouts.Shutdown = 30 * time.Second
	}
	// Timeouts.Read and Timeouts.Write stay 0: no per-read deadline is
	// the protocol's documented default.
}

func applyRepositoryDefaults(cfg *RepositoryConfig) {
	if cfg.Path == "" {
		cfg.Path = "repo"
	}
}

func applyAPIDefaults(cfg *Config) {
	if cfg.API.Port <= 0 {
		cfg.API.Port = 8080
	}
}
