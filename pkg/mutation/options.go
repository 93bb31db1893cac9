package mutation

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// DefaultAuthRetryDelay is how long Create waits for a late authentication.
const DefaultAuthRetryDelay = 500 * time.Millisecond

// IDPrefix starts every note id.
const IDPrefix = "note_"

type options struct {
	logger         *slog.Logger
	authRetryDelay time.Duration
	now            func() time.Time
	newID          func() (string, error)
}

// Option configures a Pipeline.
type Option func(*options)

func defaultOptions() *options {
	return &options{
		logger:         slog.New(slog.DiscardHandler),
		authRetryDelay: DefaultAuthRetryDelay,
		now:            time.Now,
		newID:          NewID,
	}
}

// NewID returns a fresh note id: the prefix followed by a UUIDv7, so ids sort
// roughly by creation time.
func NewID() (string, error) {
	u, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate note id: %w", err)
	}
	return IDPrefix + u.String(), nil
}

// WithLogger sets the logger for the pipeline.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithAuthRetryDelay sets the single wait Create allows for authentication.
// Negative values are ignored.
func WithAuthRetryDelay(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.authRetryDelay = d
		}
	}
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithIDGenerator replaces NewID.
func WithIDGenerator(fn func() (string, error)) Option {
	return func(o *options) {
		if fn != nil {
			o.newID = fn
		}
	}
}
