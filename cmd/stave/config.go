package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/crotchet/stave/pkg/score"
)

const (
	staveDirName   = ".stave"
	configFileName = "stave.toml"
)

// Storage backend names accepted in stave.toml.
const (
	backendFS     = "fs"
	backendBadger = "badger"
)

// Config is the workspace configuration stored in .stave/stave.toml.
type Config struct {
	// Owner is prepended to bare score names on the command line.
	Owner string      `toml:"owner"`
	Store StoreConfig `toml:"store"`
	Ops   OpsConfig   `toml:"ops"`
}

// StoreConfig selects and tunes the storage backend.
type StoreConfig struct {
	// Backend is "fs" (fan-out files, the default) or "badger".
	Backend string `toml:"backend"`
	// SyncWrites makes badger fsync every write. The fs backend always
	// persists through rename and ignores this.
	SyncWrites bool `toml:"sync_writes"`
}

// OpsConfig controls operation batch decoding.
type OpsConfig struct {
	// Strict rejects batches containing unknown operation kinds. When
	// false, unknown kinds are dropped and the rest of the batch applies.
	Strict bool `toml:"strict"`
}

func defaultConfig(owner, backend string) Config {
	return Config{
		Owner: owner,
		Store: StoreConfig{Backend: backend},
		Ops:   OpsConfig{Strict: true},
	}
}

func (c Config) decodeMode() score.DecodeMode {
	if c.Ops.Strict {
		return score.DecodeStrict
	}
	return score.DecodePermissive
}

// loadConfig reads stave.toml from the given .stave directory. A config
// without a backend gets the fs default.
func loadConfig(staveDir string) (Config, error) {
	var cfg Config
	path := filepath.Join(staveDir, configFileName)
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = backendFS
	}
	return cfg, nil
}

// writeConfig writes stave.toml into the given .stave directory.
func writeConfig(staveDir string, cfg Config) error {
	path := filepath.Join(staveDir, configFileName)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		f.Close()
		return fmt.Errorf("write config %s: encode: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}
