// Package session is the caller-facing surface of notesync: a reactive view of
// the collection plus the imperative note operations, bound to one identity.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/notesync/pkg/core"
	"github.com/aretw0/notesync/pkg/envelope"
	"github.com/aretw0/notesync/pkg/mutation"
	"github.com/aretw0/notesync/pkg/reconcile"
)

// Config holds the tunables of a Session. Zero values mean defaults.
type Config struct {
	Logger            *slog.Logger
	Observer          core.Observer
	ErrorHandler      func(error)
	Debounce          time.Duration
	LoadTimeout       time.Duration
	AuthRetryDelay    time.Duration
	DecodeConcurrency int
	Clock             func() time.Time
}

// Session mirrors one identity's notes.
type Session struct {
	stream   core.Stream
	identity core.Identity
	config   Config
	logger   *slog.Logger

	engine   *reconcile.Engine
	pipeline *mutation.Pipeline

	closeOnce sync.Once
}

// New wires the codec, engine and pipeline for identity over stream. The
// cipher is mandatory. Nothing is read until Start.
func New(stream core.Stream, cipher core.Cipher, identity core.Identity, cfg Config) (*Session, error) {
	if stream == nil {
		return nil, errors.New("stream is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}

	var codecOpts []envelope.Option
	if cfg.Clock != nil {
		codecOpts = append(codecOpts, envelope.WithClock(cfg.Clock))
	}
	codec, err := envelope.NewCodec(cipher, identity, codecOpts...)
	if err != nil {
		return nil, err
	}

	// Derived keys must not outlive the credentials they came from.
	if id, ok := identity.(interface{ OnLogout(func()) }); ok {
		if c, ok := cipher.(interface{ Purge() }); ok {
			id.OnLogout(c.Purge)
		}
	}

	s := &Session{
		stream:   stream,
		identity: identity,
		config:   cfg,
		logger:   cfg.Logger.With("component", "session"),
	}

	s.engine, err = reconcile.New(stream, codec,
		reconcile.WithLogger(cfg.Logger),
		reconcile.WithObserver(cfg.Observer),
		reconcile.WithErrorHandler(cfg.ErrorHandler),
		reconcile.WithDebounce(cfg.Debounce),
		reconcile.WithLoadTimeout(cfg.LoadTimeout),
		reconcile.WithDecodeConcurrency(cfg.DecodeConcurrency),
	)
	if err != nil {
		return nil, err
	}

	pipeOpts := []mutation.Option{mutation.WithLogger(cfg.Logger), mutation.WithClock(cfg.Clock)}
	if cfg.AuthRetryDelay > 0 {
		pipeOpts = append(pipeOpts, mutation.WithAuthRetryDelay(cfg.AuthRetryDelay))
	}
	s.pipeline, err = mutation.New(stream, s.engine, codec, identity, pipeOpts...)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Start subscribes to the store. The session stays bound to ctx.
func (s *Session) Start(ctx context.Context) error {
	return s.engine.Start(ctx)
}

// Close stops the session. It is safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.engine.Stop()
		if c, ok := s.stream.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				s.logger.Warn("closing stream", "error", err)
			}
		}
	})
	return nil
}

// Snapshot returns the current {notes, loading} pair.
func (s *Session) Snapshot() core.Snapshot {
	return s.engine.Snapshot()
}

// Subscribe delivers every new snapshot until ctx ends or the session closes.
func (s *Session) Subscribe(ctx context.Context) <-chan core.Snapshot {
	return s.engine.Subscribe(ctx)
}

// WaitReady blocks until the session leaves the loading phase. It fails with
// core.ErrClosed on a session that was never started.
func (s *Session) WaitReady(ctx context.Context) (core.Snapshot, error) {
	if !s.engine.Started() {
		return core.Snapshot{}, core.ErrClosed
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for snap := range s.Subscribe(ctx) {
		if !snap.Loading {
			return snap, nil
		}
	}
	if err := ctx.Err(); err != nil {
		return core.Snapshot{}, err
	}
	return core.Snapshot{}, core.ErrClosed
}

// CreateNote persists a new note and returns it with its id.
func (s *Session) CreateNote(ctx context.Context, f core.Fields) (core.Note, error) {
	n, err := s.pipeline.Create(ctx, f)
	return n, s.report(err)
}

// UpdateNote merges patch into note id.
func (s *Session) UpdateNote(ctx context.Context, id string, patch core.Patch) (core.Note, error) {
	n, err := s.pipeline.Update(ctx, id, patch)
	return n, s.report(err)
}

// DeleteNote removes note id. The local view drops it before the remote write.
func (s *Session) DeleteNote(ctx context.Context, id string) error {
	return s.report(s.pipeline.Delete(ctx, id))
}

// TogglePin flips the pinned flag of note id.
func (s *Session) TogglePin(ctx context.Context, id string) error {
	return s.report(s.pipeline.TogglePin(ctx, id))
}

// ToggleArchive flips the archived flag of note id.
func (s *Session) ToggleArchive(ctx context.Context, id string) error {
	return s.report(s.pipeline.ToggleArchive(ctx, id))
}

// ChangeColor recolors note id.
func (s *Session) ChangeColor(ctx context.Context, id string, c core.Color) error {
	return s.report(s.pipeline.ChangeColor(ctx, id, c))
}

// report hands operation failures to the error handler as well, so callers
// may fire and forget.
func (s *Session) report(err error) error {
	if err != nil && s.config.ErrorHandler != nil {
		s.config.ErrorHandler(err)
	}
	return err
}
