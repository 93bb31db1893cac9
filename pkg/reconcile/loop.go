package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/aretw0/lifecycle"

	"github.com/aretw0/notesync/pkg/core"
	"github.com/aretw0/notesync/pkg/view"
)

type message interface {
	isMessage()
}

type remoteMsg struct {
	ev core.Event
}

type probeMsg struct {
	empty bool
}

type decodedMsg struct {
	key    string
	gen    uint64
	fields core.Fields
	err    error
}

type lookupResult struct {
	note core.Note
	ok   bool
}

type lookupMsg struct {
	id    string
	reply chan<- lookupResult
}

type stageMsg struct {
	note core.Note
	ack  chan<- struct{}
}

type forgetMsg struct {
	id  string
	ack chan<- struct{}
}

func (remoteMsg) isMessage()  {}
func (probeMsg) isMessage()   {}
func (decodedMsg) isMessage() {}
func (lookupMsg) isMessage()  {}
func (stageMsg) isMessage()   {}
func (forgetMsg) isMessage()  {}

// run is the engine's single writer.
func (e *Engine) run(ctx context.Context) {
	defer close(e.done)
	defer e.stopTimers()
	defer func() {
		if recovered := recover(); recovered != nil {
			panicErr := fmt.Errorf("reconcile loop panic: %v", recovered)
			if e.logger.Enabled(ctx, slog.LevelDebug) {
				e.logger.Error("reconcile loop panic", "error", panicErr, "stack", string(debug.Stack()))
			} else {
				e.logger.Error("reconcile loop panic", "error", panicErr)
			}
			e.reportError(panicErr)
		}
	}()

	e.timeoutTimer = time.NewTimer(e.opts.loadTimeout)

	for {
		select {
		case <-ctx.Done():
			return

		case msg := <-e.inbox:
			e.handle(ctx, msg)

		case <-timerC(e.debounceTimer):
			e.debounceTimer = nil
			e.flush()

		case <-timerC(e.timeoutTimer):
			e.timeoutTimer = nil
			e.onTimeout()
		}
		e.recordStats()
	}
}

func timerC(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

func (e *Engine) stopTimers() {
	if e.debounceTimer != nil {
		e.debounceTimer.Stop()
		e.debounceTimer = nil
	}
	if e.timeoutTimer != nil {
		e.timeoutTimer.Stop()
		e.timeoutTimer = nil
	}
}

func (e *Engine) handle(ctx context.Context, msg message) {
	switch m := msg.(type) {
	case remoteMsg:
		e.onEvent(ctx, m.ev)

	case probeMsg:
		if m.empty {
			e.onEmptySignal()
		} else {
			e.seenKey = true
		}

	case decodedMsg:
		e.onDecoded(m)

	case lookupMsg:
		n, ok := e.pending[m.id]
		if !ok {
			n, ok = e.notes[m.id]
		}
		if ok {
			n.Fields = n.Fields.Clone()
		}
		m.reply <- lookupResult{note: n, ok: ok}

	case stageMsg:
		e.stage(m.note)
		m.ack <- struct{}{}

	case forgetMsg:
		e.gens[m.id]++
		if e.remove(m.id) {
			e.publish()
		}
		m.ack <- struct{}{}
	}
}

// onEvent applies one raw delivery from the stream.
func (e *Engine) onEvent(ctx context.Context, ev core.Event) {
	if ev.Empty() {
		e.onEmptySignal()
		return
	}
	e.seenKey = true
	e.gens[ev.Key]++

	if ev.Value.IsTombstone() {
		e.logger.Debug("tombstone", "key", ev.Key)
		e.remove(ev.Key)
		e.markReady()
		e.publish()
		return
	}

	e.decode(ctx, ev.Key, e.gens[ev.Key], ev.Value)
}

func (e *Engine) onEmptySignal() {
	if e.seenKey {
		return
	}
	e.seenKey = true
	e.logger.Debug("store reports no notes")
	e.markReady()
	e.publish()
}

// remove is the immediate path. It reports whether anything was dropped.
func (e *Engine) remove(id string) bool {
	_, inMap := e.notes[id]
	_, inPending := e.pending[id]
	delete(e.notes, id)
	delete(e.pending, id)
	return inMap || inPending
}

// decode runs off the loop and reports back through the inbox.
func (e *Engine) decode(ctx context.Context, key string, gen uint64, v core.Value) {
	value := append(core.Value(nil), v...)

	lifecycle.Go(ctx, func(ctx context.Context) (err error) {
		select {
		case e.slots <- struct{}{}:
		case <-ctx.Done():
			return nil
		}
		defer func() { <-e.slots }()

		defer func() {
			if recovered := recover(); recovered != nil {
				err = fmt.Errorf("decode panic for %s: %v", key, recovered)
			}
			if err != nil {
				e.post(ctx, decodedMsg{key: key, gen: gen, err: &core.DecodeError{Key: key, Reason: "decoder failed", Err: err}})
				err = nil
			}
		}()

		fields, decodeErr := e.decoder.Decode(ctx, value)
		if decodeErr != nil {
			var de *core.DecodeError
			if errors.As(decodeErr, &de) && de.Key == "" {
				de.Key = key
			}
		}
		e.post(ctx, decodedMsg{key: key, gen: gen, fields: fields, err: decodeErr})
		return nil
	}, lifecycle.WithErrorHandler(func(err error) {
		e.reportError(fmt.Errorf("decode %s: %w", key, err))
	}))
}

func (e *Engine) post(ctx context.Context, msg message) {
	select {
	case e.inbox <- msg:
	case <-ctx.Done():
	}
}

func (e *Engine) onDecoded(m decodedMsg) {
	if m.gen != e.gens[m.key] {
		e.logger.Debug("dropping superseded decode", "key", m.key)
		return
	}
	if m.err != nil {
		e.decodeFails++
		e.logger.Warn("skipping undecodable note", "key", m.key, "error", m.err)
		e.opts.observer.OnDecodeFailure(m.key, m.err)
		return
	}
	e.stage(core.Note{ID: m.key, Fields: m.fields})
}

// stage is the buffered path. An older version never replaces a newer one.
func (e *Engine) stage(n core.Note) {
	if cur, ok := e.pending[n.ID]; ok && cur.UpdatedAt > n.UpdatedAt {
		return
	}
	if cur, ok := e.notes[n.ID]; ok && cur.UpdatedAt > n.UpdatedAt {
		return
	}
	e.pending[n.ID] = n

	if e.debounceTimer == nil {
		e.debounceTimer = time.NewTimer(e.opts.debounce)
	} else {
		e.debounceTimer.Reset(e.opts.debounce)
	}
}

// flush merges the whole pending buffer at once.
func (e *Engine) flush() {
	if len(e.pending) == 0 && e.phase == PhaseReady {
		return
	}
	for id, n := range e.pending {
		e.notes[id] = n
	}
	count := len(e.pending)
	clear(e.pending)

	e.markReady()
	e.publish()
	e.logger.Debug("merged pending notes", "count", count, "total", len(e.notes))
}

func (e *Engine) onTimeout() {
	if e.phase != PhaseLoading {
		return
	}
	e.timedOut = true
	e.logger.Info("load timeout reached, showing what has arrived",
		"count", len(e.notes), "pending", len(e.pending), "seen", e.seenKey)
	e.flush()
}

func (e *Engine) markReady() {
	if e.phase == PhaseReady {
		return
	}
	e.phase = PhaseReady
	if e.timeoutTimer != nil {
		e.timeoutTimer.Stop()
		e.timeoutTimer = nil
	}
	e.opts.observer.OnPhase(e.phase.String())
}

// publish projects the authoritative map and hands it to readers.
func (e *Engine) publish() {
	e.setSnapshot(core.Snapshot{
		Notes:   view.Project(e.notes),
		Loading: e.phase != PhaseReady,
	})
}

func (e *Engine) setSnapshot(snap core.Snapshot) {
	e.mu.Lock()
	e.snapshot = snap
	for _, ch := range e.subscribers {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
	e.mu.Unlock()

	e.opts.observer.OnSnapshot(snap)
}

func (e *Engine) recordStats() {
	e.mu.Lock()
	e.stats = EngineState{
		Phase:          e.phase.String(),
		Notes:          len(e.notes),
		Pending:        len(e.pending),
		SeenKey:        e.seenKey,
		TimedOut:       e.timedOut,
		DecodeFailures: e.decodeFails,
		Subscribers:    len(e.subscribers),
	}
	e.mu.Unlock()
}

// probe runs the one-shot emptiness check off the loop.
func (e *Engine) probe(ctx context.Context) {
	lifecycle.Go(ctx, func(ctx context.Context) error {
		return e.stream.SnapshotOnce(ctx, func(ev core.Event) {
			e.post(ctx, probeMsg{empty: ev.Empty()})
		})
	}, lifecycle.WithErrorHandler(func(err error) {
		if ctx.Err() != nil {
			return
		}
		e.reportError(fmt.Errorf("snapshot probe: %w", err))
	}))
}
