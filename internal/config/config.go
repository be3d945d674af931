package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents <data dir>/config.toml. Every field has a working
// default so a missing file is valid.
type Config struct {
	HTTP HTTPConfig `toml:"http"`
	Log  LogConfig  `toml:"log"`
}

// HTTPConfig configures the local query API listener.
type HTTPConfig struct {
	Addr string `toml:"addr"`
}

// LogConfig configures logging output.
type LogConfig struct {
	Level string `toml:"level"`
}

// Default returns the built-in configuration: loopback-only API, info logs.
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{Addr: "127.0.0.1:8420"},
		Log:  LogConfig{Level: "info"},
	}
}

// Load reads config from the given path. A missing file yields the defaults;
// present fields override them.
func Load(path string) (*Config, error) {
	cfg := Default()
	_, err := toml.DecodeFile(path, cfg)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
