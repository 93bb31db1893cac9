package reconcile

import (
	"log/slog"
	"time"

	"github.com/aretw0/notesync/pkg/core"
)

const (
	// DefaultDebounce coalesces bursts of field-level events into one merge.
	DefaultDebounce = 100 * time.Millisecond

	// DefaultLoadTimeout bounds how long a session may stay in PhaseLoading.
	DefaultLoadTimeout = 3 * time.Second

	// DefaultDecodeConcurrency caps in-flight decodes.
	DefaultDecodeConcurrency = 8

	// DefaultInboxSize is the loop's message buffer.
	DefaultInboxSize = 100
)

type options struct {
	logger            *slog.Logger
	observer          core.Observer
	errorHandler      func(error)
	debounce          time.Duration
	loadTimeout       time.Duration
	decodeConcurrency int
	inboxSize         int
}

// Option configures an Engine.
type Option func(*options)

func defaultOptions() *options {
	return &options{
		logger:            slog.New(slog.DiscardHandler),
		observer:          core.NopObserver{},
		debounce:          DefaultDebounce,
		loadTimeout:       DefaultLoadTimeout,
		decodeConcurrency: DefaultDecodeConcurrency,
		inboxSize:         DefaultInboxSize,
	}
}

// WithLogger sets the logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithObserver attaches a diagnostics observer.
func WithObserver(obs core.Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// WithErrorHandler registers a callback for failures that happen off the
// caller's goroutine (decode panics, subscription probe errors).
func WithErrorHandler(fn func(error)) Option {
	return func(o *options) {
		o.errorHandler = fn
	}
}

// WithDebounce sets the merge window. Zero means default.
func WithDebounce(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.debounce = d
		}
	}
}

// WithLoadTimeout sets the session-wide loading deadline. Zero means default.
func WithLoadTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.loadTimeout = d
		}
	}
}

// WithDecodeConcurrency caps concurrent decodes. Zero means default.
func WithDecodeConcurrency(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.decodeConcurrency = n
		}
	}
}

// WithInboxSize sets the loop's message buffer. Zero means default (100).
func WithInboxSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.inboxSize = n
		}
	}
}
