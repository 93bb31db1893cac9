// Package config loads the CLI configuration: a YAML file plus NOTESYNC_*
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the config file looked up when --config is not given.
const FileName = "notesync.yaml"

// Environment variables that override the file.
const (
	EnvStore       = "NOTESYNC_STORE"
	EnvPath        = "NOTESYNC_PATH"
	EnvDebounce    = "NOTESYNC_DEBOUNCE"
	EnvLoadTimeout = "NOTESYNC_LOAD_TIMEOUT"
	EnvPassphrase  = "NOTESYNC_PASSPHRASE"
)

// Config mirrors notesync.yaml.
type Config struct {
	Store    Store    `yaml:"store"`
	Sync     Sync     `yaml:"sync"`
	Identity Identity `yaml:"identity"`
}

type Store struct {
	Adapter string `yaml:"adapter"`
	Path    string `yaml:"path"`
	// Watch follows changes made by other processes (fs adapter only).
	Watch bool `yaml:"watch"`
}

type Sync struct {
	Debounce    time.Duration `yaml:"debounce"`
	LoadTimeout time.Duration `yaml:"load_timeout"`
}

type Identity struct {
	Alias string `yaml:"alias"`
	// PassphraseEnv names the variable holding the passphrase. The passphrase
	// itself is never read from the file.
	PassphraseEnv string `yaml:"passphrase_env"`
	Iterations    int    `yaml:"iterations"`
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(string) (string, bool)

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		Store: Store{Adapter: "fs", Path: ".notesync"},
		Sync: Sync{
			Debounce:    100 * time.Millisecond,
			LoadTimeout: 2 * time.Second,
		},
		Identity: Identity{Alias: "default", PassphraseEnv: EnvPassphrase},
	}
}

// Load reads path over the defaults. A missing file is only an error when
// required is true.
func Load(path string, required bool) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) && !required {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides cfg with any NOTESYNC_* variable that is set.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	if v, ok := envValue(lookup, EnvStore); ok {
		c.Store.Adapter = v
	}
	if v, ok := envValue(lookup, EnvPath); ok {
		c.Store.Path = v
	}
	if err := durationEnv(lookup, EnvDebounce, &c.Sync.Debounce); err != nil {
		return err
	}
	return durationEnv(lookup, EnvLoadTimeout, &c.Sync.LoadTimeout)
}

// Validate rejects values no session can start with.
func (c Config) Validate() error {
	switch c.Store.Adapter {
	case "fs", "sqlite", "memory":
	default:
		return fmt.Errorf("unknown store adapter %q", c.Store.Adapter)
	}
	if c.Store.Adapter != "memory" && c.Store.Path == "" {
		return errors.New("store.path is required")
	}
	if c.Sync.Debounce < 0 || c.Sync.LoadTimeout < 0 {
		return errors.New("sync durations must not be negative")
	}
	if c.Identity.Iterations < 0 {
		return errors.New("identity.iterations must not be negative")
	}
	return nil
}

// Passphrase returns the passphrase from the configured variable.
func (c Config) Passphrase(lookup LookupFunc) (string, bool) {
	name := c.Identity.PassphraseEnv
	if name == "" {
		name = EnvPassphrase
	}
	return envValue(lookup, name)
}

func envValue(lookup LookupFunc, name string) (string, bool) {
	raw, ok := lookup(name)
	if !ok {
		return "", false
	}
	value := strings.TrimSpace(raw)
	return value, value != ""
}

func durationEnv(lookup LookupFunc, name string, dst *time.Duration) error {
	raw, ok := envValue(lookup, name)
	if !ok {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid %s=%q: %w", name, raw, err)
	}
	*dst = d
	return nil
}
