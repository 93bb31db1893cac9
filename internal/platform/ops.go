package platform

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/aretw0/notesync/pkg/adapters/fs"
	"github.com/aretw0/notesync/pkg/adapters/memory"
	"github.com/aretw0/notesync/pkg/adapters/sqlite"
	"github.com/aretw0/notesync/pkg/core"
)

// Init opens the store selected by the options.
// The 'uri' argument is adapter-specific: a directory for "fs", a database
// file for "sqlite", ignored for "memory".
func Init(uri string, opts ...Option) (core.Stream, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return o.open(uri)
}

func (o *options) open(uri string) (core.Stream, error) {
	if o.stream != nil {
		return o.stream, nil
	}

	switch o.adapter {
	case "fs":
		return initFS(uri, o)
	case "sqlite":
		return initSQLite(uri, o)
	case "memory":
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown adapter: %s", o.adapter)
	}
}

// resolvePath applies the dev sandbox to a user supplied path.
func (o *options) resolvePath(path string) string {
	tempDir, _ := o.config["temp_dir"].(bool)
	devSafety := true
	if v, ok := o.config["dev_safety"].(bool); ok {
		devSafety = v
	}

	useTemp := tempDir || (IsDevRun() && devSafety)
	resolved := ResolveStorePath(path, useTemp)

	if useTemp && resolved != path {
		o.log().Warn("running in SAFE MODE (Dev/Test)", "original_path", path, "resolved_path", resolved)
	} else if IsDevRun() && !devSafety {
		o.log().Warn("running in UNSAFE mode (bypassing dev sandbox)", "path", resolved)
	}
	return resolved
}

func (o *options) log() *slog.Logger {
	if o.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return o.logger
}

// initFS handles the initialization logic for the directory adapter.
func initFS(path string, o *options) (core.Stream, error) {
	mustExist, _ := o.config["must_exist"].(bool)
	watch, _ := o.config["watch"].(bool)

	store := fs.NewStore(fs.Config{
		Path:         o.resolvePath(path),
		MustExist:    mustExist,
		Watch:        watch,
		Logger:       o.logger,
		ErrorHandler: o.errorHandler,
	})
	if err := store.Initialize(context.Background()); err != nil {
		return nil, err
	}
	return store, nil
}

func initSQLite(path string, o *options) (core.Stream, error) {
	soul, _ := o.config["soul"].(string)
	if path != ":memory:" {
		path = o.resolvePath(path)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	return sqlite.Open(sqlite.Config{
		Path:   path,
		Soul:   soul,
		Logger: o.logger,
		Clock:  o.clock,
	})
}
