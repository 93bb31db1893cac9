package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/notesync/pkg/adapters/sqlite"
	"github.com/aretw0/notesync/pkg/core"
	"github.com/aretw0/notesync/pkg/core/streamtest"
)

func open(t *testing.T, cfg sqlite.Config) *sqlite.Store {
	t.Helper()
	if cfg.Path == "" {
		cfg.Path = filepath.Join(t.TempDir(), "notes.db")
	}
	s, err := sqlite.Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_Contract(t *testing.T) {
	streamtest.Run(t, func(t *testing.T) core.Stream { return open(t, sqlite.Config{}) })
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := sqlite.Open(sqlite.Config{})
	assert.Error(t, err)
}

func TestStore_SoulsAreIsolated(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "shared.db")

	alice := open(t, sqlite.Config{Path: path, Soul: "~alice/notes"})
	require.NoError(t, alice.Write(ctx, "note_a", core.Value(`"x"`)))
	require.NoError(t, alice.Close())

	bob := open(t, sqlite.Config{Path: path, Soul: "~bob/notes"})
	v, err := bob.Read(ctx, "note_a")
	require.NoError(t, err)
	assert.True(t, v.IsTombstone(), "another soul's keys are invisible")
}

func TestStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "notes.db")
	clock := func() time.Time { return time.UnixMilli(42) }

	s := open(t, sqlite.Config{Path: path, Clock: clock})
	require.NoError(t, s.Write(ctx, "note_a", core.Value(`{"title":"kept"}`)))
	require.NoError(t, s.Close())

	s = open(t, sqlite.Config{Path: path})
	v, err := s.Read(ctx, "note_a")
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"kept"}`, string(v))
}

func TestStore_State(t *testing.T) {
	ctx := context.Background()
	s := open(t, sqlite.Config{Clock: func() time.Time { return time.UnixMilli(1700) }})

	require.NoError(t, s.Write(ctx, "note_a", core.Value(`{}`)))
	require.NoError(t, s.Tombstone(ctx, "note_b"))

	st := s.State().(sqlite.StoreState)
	assert.Equal(t, core.NotesPath, st.Soul)
	assert.Equal(t, 2, st.Keys)
	assert.Equal(t, int64(1700), st.LastState)
	assert.Equal(t, "sqlite-store", s.ComponentType())
}
