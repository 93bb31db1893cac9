package platform

import (
	"log/slog"
	"time"

	"github.com/aretw0/notesync/pkg/core"
)

// options holds the internal configuration for a notesync session.
type options struct {
	stream  core.Stream
	cipher  core.Cipher
	logger  *slog.Logger
	adapter string
	config  map[string]any

	observer          core.Observer
	errorHandler      func(error)
	debounce          time.Duration
	loadTimeout       time.Duration
	authRetryDelay    time.Duration
	decodeConcurrency int
	clock             func() time.Time
}

// Option defines a functional option for configuring notesync.
type Option func(*options)

// defaultOptions returns the default configuration.
func defaultOptions() *options {
	return &options{
		adapter: "fs",
		config:  make(map[string]any),
	}
}

// WithLogger sets the logger shared by every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithStream injects a ready core.Stream (e.g. a relay client or a test
// double). The adapter selection is skipped.
func WithStream(s core.Stream) Option {
	return func(o *options) {
		o.stream = s
	}
}

// WithCipher replaces the default SEA cipher.
func WithCipher(c core.Cipher) Option {
	return func(o *options) {
		o.cipher = c
	}
}

// WithAdapter selects the storage adapter by name: "fs", "sqlite" or "memory".
// Defaults to "fs".
func WithAdapter(name string) Option {
	return func(o *options) {
		o.adapter = name
	}
}

// WithDebounce sets the window in which remote upserts are coalesced.
func WithDebounce(d time.Duration) Option {
	return func(o *options) {
		o.debounce = d
	}
}

// WithLoadTimeout bounds how long the session may stay in the loading phase.
func WithLoadTimeout(d time.Duration) Option {
	return func(o *options) {
		o.loadTimeout = d
	}
}

// WithAuthRetryDelay sets how long a create waits for authentication.
func WithAuthRetryDelay(d time.Duration) Option {
	return func(o *options) {
		o.authRetryDelay = d
	}
}

// WithObserver registers diagnostic hooks.
func WithObserver(obs core.Observer) Option {
	return func(o *options) {
		o.observer = obs
	}
}

// WithErrorHandler receives every failure, including those of operations
// whose errors the caller ignores.
func WithErrorHandler(fn func(error)) Option {
	return func(o *options) {
		o.errorHandler = fn
	}
}

// WithDecodeConcurrency caps the number of in-flight decrypts.
func WithDecodeConcurrency(n int) Option {
	return func(o *options) {
		o.decodeConcurrency = n
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.clock = now
	}
}

// WithWatch makes the fs adapter follow changes made by other processes.
func WithWatch(enabled bool) Option {
	return func(o *options) {
		o.config["watch"] = enabled
	}
}

// WithMustExist ensures the store directory already exists.
func WithMustExist(must bool) Option {
	return func(o *options) {
		o.config["must_exist"] = must
	}
}

// WithForceTemp forces the use of a temporary directory (useful for testing).
func WithForceTemp(force bool) Option {
	return func(o *options) {
		o.config["temp_dir"] = force
	}
}

// WithDevSafety controls the sandbox used when running via `go run`.
// By default (true) the store is re-rooted into a temporary directory.
//
// CAUTION: Only disable this if you are sure your code is safe.
func WithDevSafety(enabled bool) Option {
	return func(o *options) {
		o.config["dev_safety"] = enabled
	}
}

// WithSoul sets the node the sqlite adapter keeps notes under.
func WithSoul(soul string) Option {
	return func(o *options) {
		o.config["soul"] = soul
	}
}
