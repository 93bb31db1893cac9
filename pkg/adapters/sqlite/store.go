// Package sqlite is a core.Stream backed by a single SQLite table laid out
// like a graph store: (soul, key) -> value. Change delivery is in-process.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/aretw0/notesync/pkg/core"
)

//go:embed schema.sql
var schemaSQL string

// Config holds the configuration for the SQLite store.
type Config struct {
	// Path is the database file. ":memory:" works for tests.
	Path string
	// Soul is the node holding the notes. Defaults to core.NotesPath.
	Soul   string
	Logger *slog.Logger
	Clock  func() time.Time
}

// Store implements core.Stream on SQLite.
type Store struct {
	db     *sql.DB
	soul   string
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	subs    map[int]func(core.Event)
	nextSub int

	deliverMu sync.Mutex
}

// Open creates or opens the database and applies the schema.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, errors.New("database path is required")
	}
	if cfg.Soul == "" {
		cfg.Soul = core.NotesPath
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	db, err := sql.Open("sqlite3", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite has a single writer; one connection also keeps :memory: databases
	// alive across calls.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{
		db:     db,
		soul:   cfg.Soul,
		logger: cfg.Logger.With("component", "sqlite-store"),
		now:    cfg.Clock,
		subs:   make(map[int]func(core.Event)),
	}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SubscribeAll implements core.Stream.
func (s *Store) SubscribeAll(ctx context.Context, fn func(core.Event)) (core.Subscription, error) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	events, err := s.all(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	for _, ev := range events {
		fn(ev)
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
	events, err := s.all(ctx)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fn(core.Event{})
		return nil
	}
	for _, ev := range events {
		fn(ev)
	}
	return nil
}

// Read implements core.Stream.
func (s *Store) Read(ctx context.Context, key string) (core.Value, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM graph WHERE soul = ? AND key = ?`, s.soul, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Tombstone, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return core.Value(value), nil
}

// Write implements core.Stream.
func (s *Store) Write(ctx context.Context, key string, v core.Value) error {
	if v.IsTombstone() {
		v = core.Tombstone
	}
	return s.put(ctx, key, v)
}

// Tombstone implements core.Stream.
func (s *Store) Tombstone(ctx context.Context, key string) error {
	return s.put(ctx, key, core.Tombstone)
}

func (s *Store) put(ctx context.Context, key string, v core.Value) error {
	if key == "" {
		return errors.New("empty key")
	}

	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO graph (soul, key, value, state) VALUES (?, ?, ?, ?)
		ON CONFLICT (soul, key) DO UPDATE SET value = excluded.value, state = excluded.state`,
		s.soul, key, string(v), s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}

	s.mu.Lock()
	fns := make([]func(core.Event), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(core.Event{Key: key, Value: append(core.Value(nil), v...)})
	}
	return nil
}

func (s *Store) all(ctx context.Context) ([]core.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM graph WHERE soul = ? ORDER BY key`, s.soul)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.soul, err)
	}
	defer rows.Close()

	var events []core.Event
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan %s: %w", s.soul, err)
		}
		events = append(events, core.Event{Key: key, Value: core.Value(value)})
	}
	return events, rows.Err()
}

var _ core.Stream = (*Store)(nil)
