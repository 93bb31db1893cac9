// Package streamtest checks a core.Stream implementation against the
// behavior the reconcile engine relies on.
package streamtest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/notesync/pkg/core"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

// Factory returns a fresh, empty stream for one subtest.
type Factory func(t *testing.T) core.Stream

// Run exercises the whole contract.
func Run(t *testing.T, newStream Factory) {
	t.Run("EmptySnapshotSignalsNoData", func(t *testing.T) {
		s := newStream(t)
		var got []core.Event
		require.NoError(t, s.SnapshotOnce(context.Background(), func(ev core.Event) { got = append(got, ev) }))
		require.Len(t, got, 1)
		assert.True(t, got[0].Empty())
	})

	t.Run("ReadMissingIsTombstone", func(t *testing.T) {
		v, err := newStream(t).Read(context.Background(), "note_missing")
		require.NoError(t, err)
		assert.True(t, v.IsTombstone())
	})

	t.Run("WriteReadTombstone", func(t *testing.T) {
		ctx := context.Background()
		s := newStream(t)

		require.NoError(t, s.Write(ctx, "note_a", core.Value(`"SEA{\"ct\":\"x\"}"`)))
		v, err := s.Read(ctx, "note_a")
		require.NoError(t, err)
		assert.JSONEq(t, `"SEA{\"ct\":\"x\"}"`, string(v))

		require.NoError(t, s.Tombstone(ctx, "note_a"))
		v, err = s.Read(ctx, "note_a")
		require.NoError(t, err)
		assert.True(t, v.IsTombstone())

		// A tombstoned key still exists, so the store is not empty.
		var got []core.Event
		require.NoError(t, s.SnapshotOnce(ctx, func(ev core.Event) { got = append(got, ev) }))
		require.Len(t, got, 1)
		assert.Equal(t, "note_a", got[0].Key)
		assert.True(t, got[0].Value.IsTombstone())
	})

	t.Run("SubscribeReplaysThenFollows", func(t *testing.T) {
		ctx := context.Background()
		s := newStream(t)
		require.NoError(t, s.Write(ctx, "note_a", core.Value(`{"title":"a"}`)))

		rec := &recorder{}
		sub, err := s.SubscribeAll(ctx, rec.add)
		require.NoError(t, err)

		require.Eventually(t, func() bool { return rec.has("note_a", false) }, waitFor, tick)

		require.NoError(t, s.Write(ctx, "note_b", core.Value(`{"title":"b"}`)))
		require.NoError(t, s.Tombstone(ctx, "note_a"))
		require.Eventually(t, func() bool {
			return rec.has("note_b", false) && rec.has("note_a", true)
		}, waitFor, tick)

		sub.Unsubscribe()
		before := rec.len()
		require.NoError(t, s.Write(ctx, "note_c", core.Value(`{"title":"c"}`)))
		assert.Equal(t, before, rec.len(), "no delivery after Unsubscribe")
	})
}

type recorder struct {
	mu     sync.Mutex
	events []core.Event
}

func (r *recorder) add(ev core.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func (r *recorder) has(key string, tombstone bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if ev.Key == key && ev.Value.IsTombstone() == tombstone {
			return true
		}
	}
	return false
}
