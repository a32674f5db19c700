// Package server implements the main Metridex server logic.
//
// This file defines the Go structs that correspond to the YAML configuration
// file for the server. These structs allow for type-safe parsing of the
// listen address, the corpus backing the bundled queries, the admin
// authentication token and the periodic refresh schedules.

package server

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the top-level structure of the server configuration file.
type Config struct {
	Listen    string          `yaml:"listen"`
	AuthToken string          `yaml:"auth_token"`
	LogLevel  string          `yaml:"log_level"` // "debug", "info", "warn", "error"
	Corpus    CorpusConfig    `yaml:"corpus"`
	Refresh   []RefreshConfig `yaml:"refresh"`
}

// CorpusConfig defines where the artist corpus is read from.
type CorpusConfig struct {
	Type string `yaml:"type"` // "sqlite" or "demo"
	Path string `yaml:"path"`
}

// RefreshConfig defines the periodic rebuild schedule for a single query.
// Each RefreshConfig corresponds to one background worker that rebuilds the
// index of the named query from its corpus source.
type RefreshConfig struct {
	Query    string `yaml:"query"`
	Interval string `yaml:"interval"` // Go duration string, e.g. "15m"
}

// SlogLevel maps the configured log level onto a slog.Level.
// An empty or unknown value falls back to Info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LoadConfig reads and parses the YAML configuration file from the given path.
// It uses Strict Mode (KnownFields) to prevent silent errors due to typos.
// Environment variables in the file are expanded before parsing, so secrets
// like the auth token can be injected as ${METRIDEX_AUTH_TOKEN}.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return &Config{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read configuration file '%s': %w", path, err)
	}

	expandedData := os.ExpandEnv(string(data))

	var config Config
	decoder := yaml.NewDecoder(strings.NewReader(expandedData))
	decoder.KnownFields(true)

	if err := decoder.Decode(&config); err != nil {
		return nil, fmt.Errorf("YAML syntax error in '%s': %w", path, err)
	}

	return &config, nil
}
