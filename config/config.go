// Package config loads the daemon's YAML configuration file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RedisConfig describes the shared redis-server the daemon manages.
type RedisConfig struct {
	Binary string `yaml:"binary"`
	Port   int    `yaml:"port"`
}

// Config is the top-level daemon configuration. Every field has a default,
// so an empty or missing file yields a usable configuration.
type Config struct {
	// ListenAddr is the HTTP bind address for the API server.
	ListenAddr string `yaml:"listen_addr"`
	// DataDir holds the sqlite registry database.
	DataDir string `yaml:"data_dir"`
	// ToolDirs are prepended to PATH, in order, for spawned instances.
	ToolDirs []string `yaml:"tool_dirs"`
	Redis    RedisConfig `yaml:"redis"`
}

// Default returns the configuration used when no file overrides it.
func Default() *Config {
	return &Config{
		ListenAddr: ":8334",
		DataDir:    "./data",
		Redis: RedisConfig{
			Binary: "redis-server",
			Port:   6379,
		},
	}
}

// Load reads the YAML file at path and applies defaults for omitted fields.
// A missing file is not an error; the defaults are returned as-is.
func Load(path string) (*Config, error) {
	cfg := Default()

	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config file %q: %w", path, err)
	}

	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("parse yaml %q: %w", path, err)
	}

	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8334"
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "./data"
	}
	if cfg.Redis.Binary == "" {
		cfg.Redis.Binary = "redis-server"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}

	return cfg, nil
}
