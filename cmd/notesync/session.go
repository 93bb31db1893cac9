package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/aretw0/notesync"
	"github.com/aretw0/notesync/internal/config"
	"github.com/aretw0/notesync/pkg/adapters/sea"
	"github.com/aretw0/notesync/pkg/core"
)

// loadConfig resolves the configuration: --config, else notesync.yaml in the
// store root, then environment, then flags. Relative store paths are taken
// from the directory holding the config file.
func loadConfig() (config.Config, error) {
	path, required := configPath, configPath != ""
	if !required {
		wd, err := os.Getwd()
		if err != nil {
			return config.Config{}, err
		}
		root, err := notesync.FindRoot(wd)
		if err != nil {
			root = wd
		}
		path = filepath.Join(root, config.FileName)
	}

	cfg, err := config.Load(path, required)
	if err != nil {
		return cfg, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	if adapter != "" {
		cfg.Store.Adapter = adapter
	}
	if storePath != "" {
		cfg.Store.Path = storePath
	} else if cfg.Store.Path != "" && !filepath.IsAbs(cfg.Store.Path) {
		cfg.Store.Path = filepath.Join(filepath.Dir(path), cfg.Store.Path)
	}
	return cfg, cfg.Validate()
}

// openSession starts a session and waits until the initial load settles.
// The caller closes it.
func openSession(ctx context.Context, extra ...notesync.Option) (*notesync.Session, core.Snapshot, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, core.Snapshot{}, err
	}

	pass, ok := cfg.Passphrase(os.LookupEnv)
	if !ok {
		return nil, core.Snapshot{}, fmt.Errorf("no passphrase: set %s", cfg.Identity.PassphraseEnv)
	}
	identity := sea.Authenticated(sea.PairFromPassphrase(cfg.Identity.Alias, pass, cfg.Identity.Iterations))

	opts := []notesync.Option{
		notesync.WithAdapter(cfg.Store.Adapter),
		notesync.WithCipher(sea.NewCipher(sea.WithIterations(cfg.Identity.Iterations))),
		notesync.WithDebounce(cfg.Sync.Debounce),
		notesync.WithLoadTimeout(cfg.Sync.LoadTimeout),
		notesync.WithWatch(cfg.Store.Watch),
		notesync.WithLogger(slog.Default()),
	}

	s, err := notesync.New(cfg.Store.Path, identity, append(opts, extra...)...)
	if err != nil {
		return nil, core.Snapshot{}, err
	}
	if err := s.Start(ctx); err != nil {
		s.Close()
		return nil, core.Snapshot{}, err
	}
	snap, err := s.WaitReady(ctx)
	if err != nil {
		s.Close()
		return nil, core.Snapshot{}, err
	}
	return s, snap, nil
}

// find returns note id from snap or core.ErrNotFound.
func find(snap core.Snapshot, id string) (core.Note, error) {
	n, ok := snap.Find(id)
	if !ok {
		return core.Note{}, fmt.Errorf("%w: %s", core.ErrNotFound, id)
	}
	return n, nil
}

