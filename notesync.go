package notesync

import (
	"log/slog"
	"time"

	"github.com/aretw0/notesync/internal/platform"
	"github.com/aretw0/notesync/pkg/core"
	"github.com/aretw0/notesync/pkg/session"
)

// --- Types ---

// Session is the caller-facing handle on one identity's notes.
type Session = session.Session

// Note is the unit of storage.
type Note = core.Note

// Fields is the plain field set of a note.
type Fields = core.Fields

// Patch is a partial update.
type Patch = core.Patch

// Snapshot is the {notes, loading} pair delivered to subscribers.
type Snapshot = core.Snapshot

// --- Configuration ---

// Option defines a functional option for configuring notesync.
type Option = platform.Option

// WithLogger sets the logger shared by every component.
func WithLogger(logger *slog.Logger) Option {
	return platform.WithLogger(logger)
}

// WithStream injects a custom store (e.g. a relay client or a mock).
func WithStream(s core.Stream) Option {
	return platform.WithStream(s)
}

// WithCipher replaces the default SEA cipher.
func WithCipher(c core.Cipher) Option {
	return platform.WithCipher(c)
}

// WithAdapter selects the storage adapter by name: "fs", "sqlite" or "memory".
func WithAdapter(name string) Option {
	return platform.WithAdapter(name)
}

// WithDebounce sets the window in which remote upserts are coalesced.
func WithDebounce(d time.Duration) Option {
	return platform.WithDebounce(d)
}

// WithLoadTimeout bounds the loading phase.
func WithLoadTimeout(d time.Duration) Option {
	return platform.WithLoadTimeout(d)
}

// WithAuthRetryDelay sets how long a create waits for authentication.
func WithAuthRetryDelay(d time.Duration) Option {
	return platform.WithAuthRetryDelay(d)
}

// WithObserver registers diagnostic hooks.
func WithObserver(obs core.Observer) Option {
	return platform.WithObserver(obs)
}

// WithErrorHandler receives every operation failure.
func WithErrorHandler(fn func(error)) Option {
	return platform.WithErrorHandler(fn)
}

// WithDecodeConcurrency caps the number of in-flight decrypts.
func WithDecodeConcurrency(n int) Option {
	return platform.WithDecodeConcurrency(n)
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return platform.WithClock(now)
}

// WithWatch makes the fs adapter follow changes made by other processes.
func WithWatch(enabled bool) Option {
	return platform.WithWatch(enabled)
}

// WithMustExist ensures the store directory already exists.
func WithMustExist(must bool) Option {
	return platform.WithMustExist(must)
}

// WithForceTemp forces the use of a temporary directory (useful for testing).
func WithForceTemp(force bool) Option {
	return platform.WithForceTemp(force)
}

// WithDevSafety controls the `go run` sandbox.
func WithDevSafety(enabled bool) Option {
	return platform.WithDevSafety(enabled)
}

// WithSoul sets the node the sqlite adapter keeps notes under.
func WithSoul(soul string) Option {
	return platform.WithSoul(soul)
}

// --- Factory ---

// New opens the store at uri and returns a session for identity. Call Start
// on the session to begin mirroring.
func New(uri string, identity core.Identity, opts ...Option) (*Session, error) {
	return platform.New(uri, identity, opts...)
}

// Open opens the store only.
func Open(uri string, opts ...Option) (core.Stream, error) {
	return platform.Init(uri, opts...)
}

// --- Safety & Utils ---

// ResolveStorePath determines the actual store path based on safety rules.
func ResolveStorePath(userPath string, forceTemp bool) string {
	return platform.ResolveStorePath(userPath, forceTemp)
}

// IsDevRun checks if the current process is running via `go run` or `go test`.
func IsDevRun() bool {
	return platform.IsDevRun()
}

// FindRoot looks upwards for a .notesync store or a notesync.yaml file.
func FindRoot(startDir string) (string, error) {
	return platform.FindRoot(startDir)
}
