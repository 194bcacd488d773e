// Package config loads the optional server configuration file. Everything
// has a sensible default, so running without a file is the common case.
package config

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"gopkg.in/ini.v1"
)

// Config tunes the server core.
type Config struct {
	// Workers is the size of the control-plane worker pool.
	Workers int
	// MaxClients is the registry's initial capacity; it grows by doubling.
	MaxClients int
	// LogLevel applies to the whole process.
	LogLevel log.Level
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Workers:    8,
		MaxClients: 8,
		LogLevel:   log.InfoLevel,
	}
}

// Load reads an ini file of the form
//
//	[server]
//	workers = 8
//	max_clients = 8
//	log_level = info
//
// An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	file, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}
	sec := file.Section("server")
	cfg.Workers = sec.Key("workers").MustInt(cfg.Workers)
	cfg.MaxClients = sec.Key("max_clients").MustInt(cfg.MaxClients)
	if cfg.Workers < 1 {
		return nil, fmt.Errorf("config %s: workers must be positive", path)
	}
	if cfg.MaxClients < 1 {
		return nil, fmt.Errorf("config %s: max_clients must be positive", path)
	}
	if raw := sec.Key("log_level").MustString(""); raw != "" {
		lvl, err := log.ParseLevel(raw)
		if err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
		cfg.LogLevel = lvl
	}
	return cfg, nil
}
