package fs_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/notesync/pkg/adapters/fs"
	"github.com/aretw0/notesync/pkg/core"
	"github.com/aretw0/notesync/pkg/core/streamtest"
)

func open(t *testing.T, cfg fs.Config) *fs.Store {
	t.Helper()
	if cfg.Path == "" {
		cfg.Path = t.TempDir()
	}
	s := fs.NewStore(cfg)
	require.NoError(t, s.Initialize(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_Contract(t *testing.T) {
	streamtest.Run(t, func(t *testing.T) core.Stream { return open(t, fs.Config{}) })
}

func TestStore_Layout(t *testing.T) {
	ctx := context.Background()
	s := open(t, fs.Config{})

	require.NoError(t, s.Write(ctx, "note_a", core.Value(` {"title":"a"} `)))
	data, err := os.ReadFile(filepath.Join(s.Path, core.NotesPath, "note_a.json"))
	require.NoError(t, err)
	assert.Equal(t, `{"title":"a"}`, string(data))

	require.NoError(t, s.Tombstone(ctx, "note_a"))
	data, err = os.ReadFile(filepath.Join(s.Path, core.NotesPath, "note_a.json"))
	require.NoError(t, err)
	assert.Equal(t, "null", string(data))
}

func TestStore_MustExist(t *testing.T) {
	s := fs.NewStore(fs.Config{Path: filepath.Join(t.TempDir(), "absent"), MustExist: true})
	assert.Error(t, s.Initialize(context.Background()))
}

func TestStore_IgnoresForeignFiles(t *testing.T) {
	s := open(t, fs.Config{})
	dir := filepath.Join(s.Path, core.NotesPath)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("hi"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, fs.TempFilePrefix+"1"), []byte("{}"), 0o644))

	var got []core.Event
	require.NoError(t, s.SnapshotOnce(context.Background(), func(ev core.Event) { got = append(got, ev) }))
	require.Len(t, got, 1)
	assert.True(t, got[0].Empty())
}

func TestStore_OwnWritesDeliveredOnce(t *testing.T) {
	ctx := context.Background()
	s := open(t, fs.Config{Watch: true})

	var got []core.Event
	sub, err := s.SubscribeAll(ctx, func(ev core.Event) { got = append(got, ev) })
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.NoError(t, s.Write(ctx, "note_a", core.Value(`{"title":"a"}`)))
	require.NoError(t, s.Write(ctx, "note_a", core.Value(`{"title":"a"}`)))

	st := s.State().(fs.StoreState)
	assert.Equal(t, 1, st.Keys)
	assert.Equal(t, 1, st.Subscribers)
	assert.Equal(t, "fs-store", s.ComponentType())
	assert.Len(t, got, 1, "an unchanged value is not redelivered")
}
