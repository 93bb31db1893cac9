// Package fs is a directory-backed core.Stream. Every key is one JSON file
// under <root>/notes; a tombstone is a file holding null. Changes made by
// other processes are picked up by a supervised fsnotify watcher.
package fs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/lifecycle/pkg/core/supervisor"
	"github.com/aretw0/lifecycle/pkg/core/worker"

	"github.com/aretw0/notesync/pkg/core"
)

const (
	// Ext is the extension of every value file.
	Ext = ".json"

	// DefaultWatchDebounce coalesces the burst of events a single rename produces.
	DefaultWatchDebounce = 50 * time.Millisecond
)

// Config holds the configuration for the directory store.
type Config struct {
	Path         string
	MustExist    bool
	Watch        bool // follow changes made by other processes
	Debounce     time.Duration
	Logger       *slog.Logger
	ErrorHandler func(error)
}

// Store implements core.Stream on top of a directory.
type Store struct {
	Path   string
	dir    string
	config Config

	mu            sync.RWMutex
	subs          map[int]func(core.Event)
	nextSub       int
	known         map[string][]byte
	watcherActive bool
	lastEvent     *time.Time

	deliverMu sync.Mutex

	watchOnce sync.Once
	sup       interface{ Stop(context.Context) error }
	cancel    context.CancelFunc
}

// NewStore creates a directory store. Call Initialize before use.
func NewStore(config Config) *Store {
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	if config.Debounce <= 0 {
		config.Debounce = DefaultWatchDebounce
	}
	return &Store{
		Path:   config.Path,
		dir:    filepath.Join(config.Path, core.NotesPath),
		config: config,
		subs:   make(map[int]func(core.Event)),
		known:  make(map[string][]byte),
	}
}

// Initialize creates the notes directory.
func (s *Store) Initialize(ctx context.Context) error {
	if s.config.MustExist {
		info, err := os.Stat(s.Path)
		if os.IsNotExist(err) {
			return fmt.Errorf("store path does not exist: %s", s.Path)
		}
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return fmt.Errorf("store path is not a directory: %s", s.Path)
		}
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create notes directory: %w", err)
	}
	return nil
}

// Close stops the watcher, if one is running.
func (s *Store) Close() error {
	s.mu.Lock()
	sup, cancel := s.sup, s.cancel
	s.mu.Unlock()
	if sup == nil {
		return nil
	}

	ctx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	err := sup.Stop(ctx)
	cancel()
	return err
}

// SubscribeAll implements core.Stream.
func (s *Store) SubscribeAll(ctx context.Context, fn func(core.Event)) (core.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	events, err := s.scan()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	for _, ev := range events {
		s.known[ev.Key] = ev.Value
	}
	s.mu.Unlock()

	for _, ev := range events {
		fn(ev)
	}

	if s.config.Watch {
		if err := s.startWatcher(); err != nil {
			s.reportError(fmt.Errorf("start watcher: %w", err))
		}
	}

	return core.SubscriptionFunc(func() {
		s.deliverMu.Lock()
		defer s.deliverMu.Unlock()
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}), nil
}

// SnapshotOnce implements core.Stream.
func (s *Store) SnapshotOnce(ctx context.Context, fn func(core.Event)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	events, err := s.scan()
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fn(core.Event{})
		return nil
	}
	for _, ev := range events {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		fn(ev)
	}
	return nil
}

// Read implements core.Stream.
func (s *Store) Read(ctx context.Context, key string) (core.Value, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.filename(key))
	if errors.Is(err, os.ErrNotExist) {
		return core.Tombstone, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

// Write implements core.Stream.
func (s *Store) Write(ctx context.Context, key string, v core.Value) error {
	return s.put(ctx, key, v)
}

// Tombstone implements core.Stream.
func (s *Store) Tombstone(ctx context.Context, key string) error {
	return s.put(ctx, key, core.Tombstone)
}

func (s *Store) put(ctx context.Context, key string, v core.Value) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key == "" {
		return errors.New("empty key")
	}

	data := bytes.TrimSpace(v)
	if len(data) == 0 {
		data = core.Tombstone
	}
	if err := writeFileAtomic(s.filename(key), data, 0o644); err != nil {
		return err
	}
	s.deliver(core.Event{Key: key, Value: slices.Clone(data)})
	return nil
}

// deliver fans ev out unless subscribers already saw this exact value.
func (s *Store) deliver(ev core.Event) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	if prev, ok := s.known[ev.Key]; ok && bytes.Equal(prev, ev.Value) {
		s.mu.Unlock()
		return
	}
	s.known[ev.Key] = ev.Value
	now := time.Now()
	s.lastEvent = &now
	fns := make([]func(core.Event), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(core.Event{Key: ev.Key, Value: slices.Clone(ev.Value)})
	}
}

// refresh re-reads key from disk and delivers it if it changed.
func (s *Store) refresh(key string) {
	data, err := os.ReadFile(s.filename(key))
	switch {
	case errors.Is(err, os.ErrNotExist):
		data = core.Tombstone
	case err != nil:
		s.reportError(fmt.Errorf("read %s: %w", key, err))
		return
	}
	s.deliver(core.Event{Key: key, Value: bytes.TrimSpace(data)})
}

// scan lists every key on disk in lexical order.
func (s *Store) scan() ([]core.Event, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}

	var events []core.Event
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		key, ok := keyFromName(entry.Name())
		if !ok {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			s.config.Logger.Warn("skipping unreadable note file", "name", entry.Name(), "error", err)
			continue
		}
		events = append(events, core.Event{Key: key, Value: bytes.TrimSpace(data)})
	}
	return events, nil
}

func (s *Store) startWatcher() error {
	var err error
	s.watchOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())

		spec := supervisor.Spec{
			Name: "fs-watcher",
			Type: string(worker.TypeGoroutine),
			Factory: func() (worker.Worker, error) {
				return newWatchWorker(s), nil
			},
			Backoff: supervisor.Backoff{
				InitialInterval: 100 * time.Millisecond,
				MaxInterval:     5 * time.Second,
				Multiplier:      2,
				ResetDuration:   time.Minute,
				MaxRestarts:     5,
				MaxDuration:     time.Minute,
			},
			RestartPolicy: supervisor.RestartOnFailure,
		}
		sup := supervisor.New("notesync-fs", supervisor.StrategyOneForOne, spec)
		if err = sup.Start(ctx); err != nil {
			cancel()
			return
		}

		s.mu.Lock()
		s.sup = sup
		s.cancel = cancel
		s.mu.Unlock()
	})
	return err
}

func (s *Store) filename(key string) string {
	return filepath.Join(s.dir, url.PathEscape(key)+Ext)
}

// keyFromName maps a file name back to its key. Temp files and foreign files
// are not keys.
func keyFromName(name string) (string, bool) {
	if strings.HasPrefix(name, TempFilePrefix) || !strings.HasSuffix(name, Ext) {
		return "", false
	}
	key, err := url.PathUnescape(strings.TrimSuffix(name, Ext))
	if err != nil || key == "" {
		return "", false
	}
	return key, true
}

func (s *Store) reportError(err error) {
	s.config.Logger.Error("fs store error", "error", err)
	if s.config.ErrorHandler != nil {
		s.config.ErrorHandler(err)
	}
}

var _ core.Stream = (*Store)(nil)
