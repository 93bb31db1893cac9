package session_test

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/aretw0/notesync/pkg/adapters/memory"
	"github.com/aretw0/notesync/pkg/adapters/sea"
	"github.com/aretw0/notesync/pkg/core"
	"github.com/aretw0/notesync/pkg/session"
)

func open(t *testing.T, store core.Stream, cfg session.Config) *session.Session {
	t.Helper()
	id := sea.Authenticated(sea.PairFromPassphrase("alice", "pw", 10))
	s, err := session.New(store, sea.NewCipher(sea.WithIterations(10)), id, cfg)
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNew_FailsFastWithoutCipher(t *testing.T) {
	_, err := session.New(memory.New(), nil, sea.NewIdentity(), session.Config{})
	assert.ErrorIs(t, err, core.ErrNoCipher)
}

func TestSession_WaitReadyBeforeStart(t *testing.T) {
	id := sea.Authenticated(sea.PairFromPassphrase("alice", "pw", 10))
	s, err := session.New(memory.New(), sea.NewCipher(sea.WithIterations(10)), id, session.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	assert.True(t, s.Snapshot().Loading)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = s.WaitReady(ctx)
	assert.ErrorIs(t, err, core.ErrClosed)
	assert.NoError(t, ctx.Err(), "returns without waiting")
}

func TestSession_LogoutDropsDerivedKeys(t *testing.T) {
	ctx := context.Background()
	id := sea.Authenticated(sea.PairFromPassphrase("alice", "pw", 10))
	cipher := sea.NewCipher(sea.WithIterations(10))
	s, err := session.New(memory.New(), cipher, id, session.Config{Debounce: 5 * time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Start(ctx))

	n, err := s.CreateNote(ctx, core.Fields{Title: "secret"})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		got, ok := s.Snapshot().Find(n.ID)
		return ok && got.Title == "secret" && cipher.CachedKeys() > 0
	}, 2*time.Second, 5*time.Millisecond)

	id.Logout()
	assert.Zero(t, cipher.CachedKeys())
}

func TestSession_EmptyThenCreate(t *testing.T) {
	ctx := context.Background()
	s := open(t, memory.New(), session.Config{Debounce: 10 * time.Millisecond})

	snap, err := s.WaitReady(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.Notes)

	n, err := s.CreateNote(ctx, core.Fields{Title: "Groceries"})
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		_, ok := s.Snapshot().Find(n.ID)
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	st := s.State().(session.SessionState)
	assert.True(t, st.Authenticated)
	assert.Equal(t, "ready", st.Engine.Phase)
	assert.Equal(t, "session", s.ComponentType())
}

func TestSession_PinnedFirst(t *testing.T) {
	ctx := context.Background()
	s := open(t, memory.New(), session.Config{Debounce: 10 * time.Millisecond})
	_, err := s.WaitReady(ctx)
	require.NoError(t, err)

	_, err = s.CreateNote(ctx, core.Fields{Title: "A", Pinned: true})
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	_, err = s.CreateNote(ctx, core.Fields{Title: "B"})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		notes := s.Snapshot().Notes
		return len(notes) == 2 && notes[0].Title == "A" && notes[1].Title == "B"
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSession_ErrorHandlerSeesFailures(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	var mu sync.Mutex
	var seen []error
	s := open(t, store, session.Config{ErrorHandler: func(err error) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, err)
	}})

	store.FailWrites(errors.New("relay offline"))
	_, err := s.CreateNote(ctx, core.Fields{Title: "x"})
	require.ErrorIs(t, err, core.ErrRemoteWrite)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 1)
	assert.ErrorIs(t, seen[0], core.ErrRemoteWrite)
}

func TestSession_CloseEndsSubscriptions(t *testing.T) {
	s := open(t, memory.New(), session.Config{})
	ch := s.Subscribe(context.Background())

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	for range ch {
	}
	_, err := s.WaitReady(context.Background())
	assert.ErrorIs(t, err, core.ErrClosed)
}

// notesModel tracks which ids a session has created and deleted.
type notesModel struct {
	s       *session.Session
	live    []string
	deleted map[string]bool
}

func (m *notesModel) create(t *rapid.T) {
	title := rapid.StringMatching(`[a-z]{1,8}`).Draw(t, "title")
	n, err := m.s.CreateNote(context.Background(), core.Fields{Title: title})
	require.NoError(t, err)
	m.live = append(m.live, n.ID)
}

func (m *notesModel) update(t *rapid.T) {
	if len(m.live) == 0 {
		t.Skip("no notes")
	}
	id := rapid.SampledFrom(m.live).Draw(t, "id")
	content := rapid.StringMatching(`[a-z ]{0,12}`).Draw(t, "content")
	_, err := m.s.UpdateNote(context.Background(), id, core.Patch{Content: &content})
	require.NoError(t, err)
}

func (m *notesModel) togglePin(t *rapid.T) {
	if len(m.live) == 0 {
		t.Skip("no notes")
	}
	id := rapid.SampledFrom(m.live).Draw(t, "id")
	require.NoError(t, m.s.TogglePin(context.Background(), id))
}

func (m *notesModel) delete(t *rapid.T) {
	if len(m.live) == 0 {
		t.Skip("no notes")
	}
	i := rapid.IntRange(0, len(m.live)-1).Draw(t, "index")
	id := m.live[i]
	require.NoError(t, m.s.DeleteNote(context.Background(), id))
	m.live = append(m.live[:i], m.live[i+1:]...)
	m.deleted[id] = true
}

func (m *notesModel) touchDeleted(t *rapid.T) {
	if len(m.deleted) == 0 {
		t.Skip("nothing deleted")
	}
	ids := make([]string, 0, len(m.deleted))
	for id := range m.deleted {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	id := rapid.SampledFrom(ids).Draw(t, "id")

	_, err := m.s.UpdateNote(context.Background(), id, core.Patch{Title: core.Ptr("back")})
	require.ErrorIs(t, err, core.ErrNotFound)
	require.NoError(t, m.s.TogglePin(context.Background(), id))
}

func (m *notesModel) check(t *rapid.T) {
	seen := map[string]bool{}
	for _, n := range m.s.Snapshot().Notes {
		if m.deleted[n.ID] {
			t.Fatalf("deleted note %s is visible", n.ID)
		}
		if seen[n.ID] {
			t.Fatalf("duplicate id %s", n.ID)
		}
		seen[n.ID] = true
	}
}

func TestSession_DeletedNotesStayGone(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		id := sea.Authenticated(sea.PairFromPassphrase("alice", "pw", 10))
		s, err := session.New(memory.New(), sea.NewCipher(sea.WithIterations(10)), id,
			session.Config{Debounce: 5 * time.Millisecond})
		require.NoError(t, err)
		defer func() { _ = s.Close() }()
		require.NoError(t, s.Start(context.Background()))
		_, err = s.WaitReady(context.Background())
		require.NoError(t, err)

		m := &notesModel{s: s, deleted: map[string]bool{}}
		t.Repeat(map[string]func(*rapid.T){
			"create":       m.create,
			"update":       m.update,
			"togglePin":    m.togglePin,
			"delete":       m.delete,
			"touchDeleted": m.touchDeleted,
			"":             m.check,
		})

		// Once the buffer drains the snapshot holds exactly the live notes.
		want := slices.Clone(m.live)
		slices.Sort(want)
		require.Eventually(t, func() bool {
			var got []string
			for _, n := range s.Snapshot().Notes {
				got = append(got, n.ID)
			}
			slices.Sort(got)
			return slices.Equal(want, got)
		}, 2*time.Second, 5*time.Millisecond)
		m.check(t)
	})
}
