package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration loaded from config.yaml.
type Config struct {
	Root       string `yaml:"root"        json:"root"`
	DBPath     string `yaml:"db_path"     json:"-"`
	Workers    int    `yaml:"workers"     json:"workers"`
	LogLevel   string `yaml:"log_level"   json:"-"`
	Schedule   string `yaml:"schedule"    json:"schedule"`
	ScanPaused bool   `yaml:"scan_paused" json:"scan_paused"`
	HTTPAddr   string `yaml:"http_addr"   json:"-"`
	ReportPath string `yaml:"report_path" json:"-"`
}

// applyDefaults fills zero/empty fields with sensible defaults.
// Workers stays 0, meaning one consumer per CPU (at least two).
func (c *Config) applyDefaults() {
	if c.DBPath == "" {
		c.DBPath = "hashscan.db"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Schedule == "" {
		c.Schedule = "0 2 * * *"
	}
	if c.HTTPAddr == "" {
		c.HTTPAddr = ":8080"
	}
}

// Default returns a Config with every default applied.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

// Load reads and parses the YAML config file at path.
// If the file does not exist, Load returns a default Config so the CLI
// works without a config file.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("open config %q: %w", path, err)
	}
	defer f.Close()

	var cfg Config
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	// An empty document decodes as io.EOF and means "all defaults".
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}
	if cfg.Workers < 0 {
		return nil, fmt.Errorf("parse config %q: workers must not be negative, got %d", path, cfg.Workers)
	}
	cfg.applyDefaults()
	return &cfg, nil
}
