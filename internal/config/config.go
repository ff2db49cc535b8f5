// Package config loads service configuration by layering defaults, an
// optional YAML file, and TALLYBOARD_-prefixed environment variables.
package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	// Addr is the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// DatabasePath is the SQLite file for the server-side ledger.
	DatabasePath string `koanf:"database_path"`

	// MigrationsPath is a golang-migrate source URL.
	MigrationsPath string `koanf:"migrations_path"`

	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Env selects the zap encoder: dev or prod.
	Env string `koanf:"env"`

	// SyncInterval is the offline queue drain tick.
	SyncInterval time.Duration `koanf:"sync_interval"`
}

func defaults() *Config {
	return &Config{
		Addr:           ":8080",
		DatabasePath:   "tallyboard.db",
		MigrationsPath: "file://migrations",
		LogLevel:       "info",
		Env:            "dev",
		SyncInterval:   15 * time.Second,
	}
}

// Load builds a Config. Precedence (low -> high):
//  1. defaults
//  2. YAML file named by TALLYBOARD_CONFIG, if set
//  3. env vars with prefix TALLYBOARD_ (TALLYBOARD_ADDR -> addr)
func Load() (*Config, error) {
	k := koanf.New(".")

	if path := os.Getenv("TALLYBOARD_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, err
		}
	}

	envProvider := env.Provider("TALLYBOARD_", ".", func(s string) string {
		s = strings.ToLower(s)
		return strings.TrimPrefix(s, "tallyboard_")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, err
	}

	cfg := *defaults()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, err
	}

	if cfg.Addr == "" {
		return nil, errors.New("addr must not be empty")
	}
	if cfg.DatabasePath == "" {
		return nil, errors.New("database_path must not be empty")
	}
	return &cfg, nil
}
