package lifecycle_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	nslifecycle "github.com/aretw0/notesync/pkg/adapters/lifecycle"
	"github.com/aretw0/notesync/pkg/core"
)

func TestSource_ForwardsSnapshots(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	in := make(chan core.Snapshot, 2)
	src := nslifecycle.NewSource(in)
	require.NoError(t, src.Start(ctx))

	in <- core.Snapshot{Loading: true}
	in <- core.Snapshot{Notes: []core.Note{{ID: "note_a"}}}
	close(in)

	var got []core.Snapshot
	for ev := range src.Events() {
		snap, ok := ev.(core.Snapshot)
		require.True(t, ok)
		got = append(got, snap)
	}
	require.Len(t, got, 2)
	assert.True(t, got[0].Loading)
	assert.Equal(t, "note_a", got[1].Notes[0].ID)
}

func TestSource_StopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := nslifecycle.NewSource(make(chan core.Snapshot))
	require.NoError(t, src.Start(ctx))
	cancel()

	select {
	case _, ok := <-src.Events():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("events channel not closed after cancel")
	}
}
