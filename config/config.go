// Package config loads the engine configuration from a TOML file.
package config

import (
	"os"

	toml "github.com/pelletier/go-toml"
	"github.com/pkg/errors"
)

// Config holds the tunables of one engine instance.
type Config struct {
	// DataDir is the directory holding the .db and .idx files.
	DataDir string `toml:"data_dir"`

	// RowCacheEntries bounds the per-table row cache. Zero disables it.
	RowCacheEntries int64 `toml:"row_cache_entries"`

	// SyncOnFlush fsyncs data files after every flush. Slower but survives
	// power loss immediately after a commit.
	SyncOnFlush bool `toml:"sync_on_flush"`

	LogLevel string `toml:"log_level"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		DataDir:         "data",
		RowCacheEntries: 4096,
		SyncOnFlush:     false,
		LogLevel:        "info",
	}
}

// Load reads a TOML config file, filling missing fields from Default.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "read config %s", path)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse config %s", path)
	}
	return cfg, nil
}
