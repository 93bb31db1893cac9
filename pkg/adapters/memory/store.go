// Package memory is an in-process core.Stream. Delivery is synchronous: Write
// returns after every subscriber has seen the change.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/aretw0/notesync/pkg/core"
)

// Store keeps every key, tombstones included, the way the graph store does.
type Store struct {
	mu        sync.RWMutex
	values    map[string]core.Value
	subs      map[int]func(core.Event)
	nextSub   int
	failWrite error

	// deliverMu serializes fan-out so Unsubscribe can wait for an in-flight
	// delivery to finish.
	deliverMu sync.Mutex
}

// New creates an empty store.
func New() *Store {
	return &Store{
		values: make(map[string]core.Value),
		subs:   make(map[int]func(core.Event)),
	}
}

// FailWrites makes every later Write and Tombstone return err. Pass nil to
// heal the store.
func (s *Store) FailWrites(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWrite = err
}

// Seed stores values without notifying subscribers.
func (s *Store) Seed(values map[string]core.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range values {
		s.values[k] = clone(v)
	}
}

// Raw returns the stored value for key and whether the key exists.
func (s *Store) Raw(key string) (core.Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return clone(v), ok
}

// Keys lists every stored key, tombstoned ones included.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.values))
}

// SubscribeAll implements core.Stream.
func (s *Store) SubscribeAll(ctx context.Context, fn func(core.Event)) (core.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	replay := s.eventsLocked()
	s.mu.Unlock()

	for _, ev := range replay {
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
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	events := s.eventsLocked()
	s.mu.RUnlock()

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
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	if !ok {
		return core.Tombstone, nil
	}
	return clone(v), nil
}

// Write implements core.Stream.
func (s *Store) Write(ctx context.Context, key string, v core.Value) error {
	return s.put(ctx, key, clone(v))
}

// Tombstone implements core.Stream.
func (s *Store) Tombstone(ctx context.Context, key string) error {
	return s.put(ctx, key, core.Tombstone)
}

func (s *Store) put(ctx context.Context, key string, v core.Value) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	if s.failWrite != nil {
		err := s.failWrite
		s.mu.Unlock()
		return err
	}
	s.values[key] = v
	fns := slices.Collect(maps.Values(s.subs))
	s.mu.Unlock()

	for _, fn := range fns {
		fn(core.Event{Key: key, Value: clone(v)})
	}
	return nil
}

func (s *Store) eventsLocked() []core.Event {
	keys := slices.Sorted(maps.Keys(s.values))
	events := make([]core.Event, 0, len(keys))
	for _, k := range keys {
		events = append(events, core.Event{Key: k, Value: clone(s.values[k])})
	}
	return events
}

func clone(v core.Value) core.Value {
	if v == nil {
		return nil
	}
	return append(core.Value(nil), v...)
}

var _ core.Stream = (*Store)(nil)
