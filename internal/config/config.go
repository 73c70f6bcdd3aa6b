// Package config loads the ambient settings that sit around the ring core:
// log level/format, metrics, store backend choice and the stabilization
// tick interval. The positional ring-identity arguments (self/entry peer)
// are parsed directly by cmd/peer and are not part of this file, since that
// CLI contract is a separate concern from ambient configuration.
package config

import (
	"time"

	"github.com/BurntSushi/toml"
)

// StoreBackend selects the local-store implementation.
type StoreBackend string

const (
	StoreMap StoreBackend = "map"
	StoreLRU StoreBackend = "lru"
)

// File is the optional TOML config file shape, loaded via --config.
type File struct {
	LogLevel          string        `toml:"log_level"`
	LogJSON           bool          `toml:"log_json"`
	Metrics           bool          `toml:"metrics"`
	MetricsAddr       string        `toml:"metrics_addr"`
	StoreBackend      StoreBackend  `toml:"store_backend"`
	StoreLRUSize      int           `toml:"store_lru_size"`
	StabilizeInterval time.Duration `toml:"stabilize_interval"`
}

// Defaults returns the file's baseline values, used when no --config is
// given and as the base that flags then override.
func Defaults() File {
	return File{
		LogLevel:          "info",
		LogJSON:           false,
		Metrics:           false,
		MetricsAddr:       "127.0.0.1:6060",
		StoreBackend:      StoreMap,
		StoreLRUSize:      4096,
		StabilizeInterval: 500 * time.Millisecond,
	}
}

// Load decodes a TOML file at path on top of Defaults().
func Load(path string) (File, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return File{}, err
	}
	return cfg, nil
}
