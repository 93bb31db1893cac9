// Package reconcile turns the remote note stream into a stable, sorted,
// loading-aware collection.
//
// The Engine owns the authoritative map. Every mutation of that map happens on
// a single run loop; remote callbacks, decode results and local requests from
// the mutation pipeline reach it as messages. Two merge paths feed the map:
//
//   - immediate: tombstones and optimistic deletes are applied and published
//     as soon as the loop sees them;
//   - buffered: decoded upserts and optimistic stages wait in a pending buffer
//     until the debounce window closes, then merge all at once.
//
// Each key carries a generation that is bumped by every remote event and every
// local delete for it. Decode results from an older generation are dropped, so
// a tombstone always wins over a decode that was still in flight. Upserts, local
// or remote, are ordered by UpdatedAt alone.
package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/notesync/pkg/core"
)

// Phase is the loading state of a session.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLoading
	PhaseReady
)

func (p Phase) String() string {
	switch p {
	case PhaseLoading:
		return "loading"
	case PhaseReady:
		return "ready"
	default:
		return "idle"
	}
}

// Decoder turns a stored value into note fields. *envelope.Codec satisfies it.
type Decoder interface {
	Decode(ctx context.Context, v core.Value) (core.Fields, error)
}

// Engine is the reconciliation state machine for one session.
type Engine struct {
	stream  core.Stream
	decoder Decoder
	opts    *options
	logger  *slog.Logger

	inbox chan message
	slots chan struct{}
	done  chan struct{}

	lifeMu   sync.Mutex
	started  bool
	stopped  bool
	quit     <-chan struct{}
	cancel   context.CancelFunc
	sub      core.Subscription
	stopOnce sync.Once

	// Published state, guarded by mu.
	mu          sync.RWMutex
	snapshot    core.Snapshot
	stats       EngineState
	subscribers map[int]chan core.Snapshot
	nextSubID   int

	// Loop-owned state. Only run and its helpers touch these.
	notes         map[string]core.Note
	pending       map[string]core.Note
	gens          map[string]uint64
	seenKey       bool
	phase         Phase
	timedOut      bool
	decodeFails   int
	debounceTimer *time.Timer
	timeoutTimer  *time.Timer
}

// New creates an Engine. It does nothing until Start.
func New(stream core.Stream, decoder Decoder, opts ...Option) (*Engine, error) {
	if stream == nil {
		return nil, errors.New("stream is required")
	}
	if decoder == nil {
		return nil, errors.New("decoder is required")
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	closed := make(chan struct{})
	close(closed)

	e := &Engine{
		stream:      stream,
		decoder:     decoder,
		opts:        o,
		logger:      o.logger.With("component", "reconcile"),
		inbox:       make(chan message, o.inboxSize),
		slots:       make(chan struct{}, o.decodeConcurrency),
		done:        make(chan struct{}),
		quit:        closed,
		subscribers: make(map[int]chan core.Snapshot),
		notes:       make(map[string]core.Note),
		pending:     make(map[string]core.Note),
		gens:        make(map[string]uint64),
		snapshot:    core.Snapshot{Notes: []core.Note{}, Loading: true},
	}
	e.stats = EngineState{Phase: PhaseIdle.String()}
	return e, nil
}

// Start subscribes to the stream and enters PhaseLoading. The engine stays
// bound to ctx: cancelling it has the same effect as Stop, minus the wait.
func (e *Engine) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e.lifeMu.Lock()
	if e.started || e.stopped {
		e.lifeMu.Unlock()
		return errors.New("engine already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	e.started = true
	e.cancel = cancel
	e.quit = runCtx.Done()
	e.lifeMu.Unlock()

	e.phase = PhaseLoading
	e.setSnapshot(core.Snapshot{Notes: []core.Note{}, Loading: true})
	e.opts.observer.OnPhase(e.phase.String())
	e.recordStats()

	go e.run(runCtx)

	sub, err := e.stream.SubscribeAll(runCtx, e.onRemote)
	if err != nil {
		e.Stop()
		return err
	}
	e.lifeMu.Lock()
	e.sub = sub
	stopped := e.stopped
	e.lifeMu.Unlock()
	if stopped {
		// Stop raced with SubscribeAll.
		sub.Unsubscribe()
		return core.ErrClosed
	}

	e.probe(runCtx)
	e.logger.Debug("subscribed", "path", core.NotesPath)
	return nil
}

// Stop detaches from the stream, stops both timers and waits for the loop to
// exit. No snapshot is published after Stop returns.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		e.lifeMu.Lock()
		e.stopped = true
		started := e.started
		sub := e.sub
		cancel := e.cancel
		e.lifeMu.Unlock()

		if cancel != nil {
			cancel()
		}
		if sub != nil {
			sub.Unsubscribe()
		}
		if started {
			<-e.done
		} else {
			close(e.done)
		}

		e.mu.Lock()
		for id, ch := range e.subscribers {
			close(ch)
			delete(e.subscribers, id)
		}
		e.stats.Phase = PhaseIdle.String()
		e.mu.Unlock()
		e.logger.Debug("stopped")
	})
}

// Started reports whether Start has been called.
// It stays true after Stop.
func (e *Engine) Started() bool {
	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()
	return e.started
}

// Snapshot returns the latest published state. The returned notes must be
// treated as read-only.
func (e *Engine) Snapshot() core.Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snapshot
}

// Subscribe delivers the current snapshot and then every newer one. Slow
// readers only ever see the latest snapshot. The channel closes when ctx ends
// or the engine stops.
func (e *Engine) Subscribe(ctx context.Context) <-chan core.Snapshot {
	ch := make(chan core.Snapshot, 1)

	e.mu.Lock()
	if e.isStopped() {
		e.mu.Unlock()
		close(ch)
		return ch
	}
	id := e.nextSubID
	e.nextSubID++
	e.subscribers[id] = ch
	ch <- e.snapshot
	e.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-e.done:
		}
		e.mu.Lock()
		if c, ok := e.subscribers[id]; ok {
			close(c)
			delete(e.subscribers, id)
		}
		e.mu.Unlock()
	}()
	return ch
}

func (e *Engine) isStopped() bool {
	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()
	return e.stopped
}

// Lookup returns the freshest local copy of a note: a staged, not yet merged
// version wins over the authoritative one.
func (e *Engine) Lookup(ctx context.Context, id string) (core.Note, bool, error) {
	reply := make(chan lookupResult, 1)
	if err := e.send(ctx, lookupMsg{id: id, reply: reply}); err != nil {
		return core.Note{}, false, err
	}
	select {
	case r := <-reply:
		return r.note, r.ok, nil
	case <-ctx.Done():
		return core.Note{}, false, ctx.Err()
	case <-e.done:
		return core.Note{}, false, core.ErrClosed
	}
}

// Stage applies a local upsert through the buffered path.
func (e *Engine) Stage(ctx context.Context, n core.Note) error {
	return e.roundTrip(ctx, func(ack chan struct{}) message {
		return stageMsg{note: n, ack: ack}
	})
}

// Forget removes a note through the immediate path and publishes before
// returning.
func (e *Engine) Forget(ctx context.Context, id string) error {
	return e.roundTrip(ctx, func(ack chan struct{}) message {
		return forgetMsg{id: id, ack: ack}
	})
}

func (e *Engine) roundTrip(ctx context.Context, build func(chan struct{}) message) error {
	ack := make(chan struct{}, 1)
	if err := e.send(ctx, build(ack)); err != nil {
		return err
	}
	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return core.ErrClosed
	}
}

// send posts a message to the loop.
func (e *Engine) send(ctx context.Context, msg message) error {
	e.lifeMu.Lock()
	running := e.started && !e.stopped
	quit := e.quit
	e.lifeMu.Unlock()
	if !running {
		return core.ErrClosed
	}

	select {
	case e.inbox <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-quit:
		return core.ErrClosed
	}
}

// onRemote is the stream callback. It must never panic and must not block
// once the engine is stopping.
func (e *Engine) onRemote(ev core.Event) {
	e.lifeMu.Lock()
	quit := e.quit
	e.lifeMu.Unlock()

	select {
	case e.inbox <- remoteMsg{ev: ev}:
	case <-quit:
	}
}

func (e *Engine) reportError(err error) {
	if e.opts.errorHandler != nil {
		e.opts.errorHandler(err)
		return
	}
	e.logger.Error("reconcile error", "error", err)
}
