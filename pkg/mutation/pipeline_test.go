package mutation_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/notesync/pkg/adapters/memory"
	"github.com/aretw0/notesync/pkg/adapters/sea"
	"github.com/aretw0/notesync/pkg/core"
	"github.com/aretw0/notesync/pkg/envelope"
	"github.com/aretw0/notesync/pkg/mutation"
	"github.com/aretw0/notesync/pkg/reconcile"
)

const (
	wait = 2 * time.Second
	tick = 5 * time.Millisecond
)

type snapshots struct {
	mu  sync.Mutex
	all []core.Snapshot
}

func (s *snapshots) OnPhase(string)                {}
func (s *snapshots) OnDecodeFailure(string, error) {}
func (s *snapshots) OnSnapshot(snap core.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.all = append(s.all, snap)
}

func (s *snapshots) list() []core.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Snapshot(nil), s.all...)
}

type harness struct {
	store    *memory.Store
	identity *sea.Identity
	engine   *reconcile.Engine
	pipeline *mutation.Pipeline
	seen     *snapshots
}

func newHarness(t *testing.T, identity *sea.Identity, opts ...mutation.Option) *harness {
	t.Helper()
	return newHarnessWithDebounce(t, identity, 30*time.Millisecond, opts...)
}

func newHarnessWithDebounce(t *testing.T, identity *sea.Identity, debounce time.Duration, opts ...mutation.Option) *harness {
	t.Helper()
	h := &harness{store: memory.New(), identity: identity, seen: &snapshots{}}

	codec, err := envelope.NewCodec(sea.NewCipher(sea.WithIterations(10)), identity)
	require.NoError(t, err)

	h.engine, err = reconcile.New(h.store, codec,
		reconcile.WithDebounce(debounce), reconcile.WithObserver(h.seen))
	require.NoError(t, err)
	require.NoError(t, h.engine.Start(context.Background()))
	t.Cleanup(h.engine.Stop)

	opts = append([]mutation.Option{mutation.WithAuthRetryDelay(10 * time.Millisecond)}, opts...)
	h.pipeline, err = mutation.New(h.store, h.engine, codec, identity, opts...)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return !h.engine.Snapshot().Loading }, wait, tick)
	return h
}

func (h *harness) eventually(t *testing.T, cond func(core.Snapshot) bool) {
	t.Helper()
	require.Eventually(t, func() bool { return cond(h.engine.Snapshot()) }, wait, tick)
}

func alice() *sea.Identity {
	return sea.Authenticated(sea.PairFromPassphrase("alice", "pw", 10))
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := mutation.New(nil, nil, nil, nil)
	assert.Error(t, err)
}

func TestNewID(t *testing.T) {
	a, err := mutation.NewID()
	require.NoError(t, err)
	b, err := mutation.NewID()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(a, mutation.IDPrefix))
	assert.NotEqual(t, a, b)
}

func TestCreate_Groceries(t *testing.T) {
	h := newHarness(t, alice())
	ctx := context.Background()

	n, err := h.pipeline.Create(ctx, core.Fields{Title: "Groceries", Content: "milk"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(n.ID, mutation.IDPrefix))
	assert.Equal(t, n.CreatedAt, n.UpdatedAt)
	assert.Equal(t, core.DefaultColor, n.Color)

	h.eventually(t, func(s core.Snapshot) bool { return len(s.Notes) == 1 })
	got := h.engine.Snapshot().Notes[0]
	assert.Equal(t, n.ID, got.ID)
	assert.Equal(t, "Groceries", got.Title)
	assert.Equal(t, "milk", got.Content)
	assert.False(t, got.Pinned)

	raw, ok := h.store.Raw(n.ID)
	require.True(t, ok)
	assert.Equal(t, envelope.KindEncrypted, envelope.Classify(raw).Kind)
	assert.NotContains(t, string(raw), "Groceries")
}

func TestCreate_Validation(t *testing.T) {
	h := newHarness(t, alice())
	ctx := context.Background()

	_, err := h.pipeline.Create(ctx, core.Fields{Title: "  ", Content: "\n"})
	assert.ErrorIs(t, err, core.ErrEmptyNote)

	_, err = h.pipeline.Create(ctx, core.Fields{Title: "x", Labels: []string{"a", " a "}})
	assert.ErrorIs(t, err, core.ErrDuplicateLabel)

	_, err = h.pipeline.Create(ctx, core.Fields{Title: "x", Color: "#123456"})
	assert.ErrorIs(t, err, core.ErrInvalidColor)

	assert.Empty(t, h.store.Keys(), "nothing invalid reaches the store")
}

func TestCreate_Unauthenticated(t *testing.T) {
	h := newHarness(t, sea.NewIdentity())

	_, err := h.pipeline.Create(context.Background(), core.Fields{Title: "x"})
	assert.ErrorIs(t, err, core.ErrUnauthenticated)
	assert.Empty(t, h.store.Keys())
}

func TestCreate_AuthenticationLandsDuringRetry(t *testing.T) {
	id := sea.NewIdentity()
	h := newHarness(t, id, mutation.WithAuthRetryDelay(100*time.Millisecond))

	go func() {
		time.Sleep(10 * time.Millisecond)
		id.Authenticate(sea.PairFromPassphrase("alice", "pw", 10))
	}()

	_, err := h.pipeline.Create(context.Background(), core.Fields{Title: "late"})
	require.NoError(t, err)
	h.eventually(t, func(s core.Snapshot) bool { return len(s.Notes) == 1 })
}

func TestCreate_DegradesToPlain(t *testing.T) {
	// Authenticated, but the pair carries no private key.
	h := newHarness(t, sea.Authenticated(sea.Pair{Pub: "pub-only"}))

	n, err := h.pipeline.Create(context.Background(), core.Fields{Title: "plain", Labels: []string{"x"}})
	require.NoError(t, err)

	raw, ok := h.store.Raw(n.ID)
	require.True(t, ok)
	assert.Equal(t, envelope.KindPlain, envelope.Classify(raw).Kind)

	// Legacy plain values still decode.
	h.eventually(t, func(s core.Snapshot) bool {
		got, ok := s.Find(n.ID)
		return ok && got.Title == "plain" && len(got.Labels) == 1
	})
}

func TestCreate_RemoteWriteFailure(t *testing.T) {
	h := newHarness(t, alice())
	h.store.FailWrites(errors.New("relay offline"))

	_, err := h.pipeline.Create(context.Background(), core.Fields{Title: "x"})
	assert.ErrorIs(t, err, core.ErrRemoteWrite)
	var werr *core.WriteError
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, "create", werr.Op)

	time.Sleep(60 * time.Millisecond)
	assert.Empty(t, h.engine.Snapshot().Notes)
}

func TestUpdate_RapidEditsCoalesce(t *testing.T) {
	h := newHarness(t, alice())
	ctx := context.Background()

	n, err := h.pipeline.Create(ctx, core.Fields{Title: "draft"})
	require.NoError(t, err)
	h.eventually(t, func(s core.Snapshot) bool { return len(s.Notes) == 1 })
	before := len(h.seen.list())

	_, err = h.pipeline.Update(ctx, n.ID, core.Patch{Title: core.Ptr("A")})
	require.NoError(t, err)
	last, err := h.pipeline.Update(ctx, n.ID, core.Patch{Title: core.Ptr("B")})
	require.NoError(t, err)

	h.eventually(t, func(s core.Snapshot) bool {
		got, ok := s.Find(n.ID)
		return ok && got.Title == "B"
	})
	for _, s := range h.seen.list()[before:] {
		got, ok := s.Find(n.ID)
		if ok {
			assert.NotEqual(t, "A", got.Title, "intermediate edit must not be published")
		}
	}

	assert.Equal(t, n.CreatedAt, last.CreatedAt)
	assert.Greater(t, last.UpdatedAt, n.UpdatedAt)
}

func TestUpdate_StampsStrictlyIncreasing(t *testing.T) {
	frozen := time.UnixMilli(1_000)
	h := newHarness(t, alice(), mutation.WithClock(func() time.Time { return frozen }))
	ctx := context.Background()

	n, err := h.pipeline.Create(ctx, core.Fields{Title: "x"})
	require.NoError(t, err)
	u1, err := h.pipeline.Update(ctx, n.ID, core.Patch{Content: core.Ptr("1")})
	require.NoError(t, err)
	u2, err := h.pipeline.Update(ctx, n.ID, core.Patch{Content: core.Ptr("2")})
	require.NoError(t, err)

	assert.Equal(t, int64(1_000), n.UpdatedAt)
	assert.Equal(t, int64(1_001), u1.UpdatedAt)
	assert.Equal(t, int64(1_002), u2.UpdatedAt)
	assert.Equal(t, int64(1_000), u2.CreatedAt)

	h.eventually(t, func(s core.Snapshot) bool {
		got, ok := s.Find(n.ID)
		return ok && got.Content == "2"
	})
}

func TestUpdate_ReadsStoreWhenNotLocal(t *testing.T) {
	h := newHarness(t, alice())
	ctx := context.Background()

	codec, err := envelope.NewCodec(sea.NewCipher(sea.WithIterations(10)), h.identity)
	require.NoError(t, err)
	v, err := codec.Encode(ctx, core.Fields{Title: "remote", Color: core.DefaultColor, CreatedAt: 5, UpdatedAt: 5})
	require.NoError(t, err)
	h.store.Seed(map[string]core.Value{"note_remote": v})

	n, err := h.pipeline.Update(ctx, "note_remote", core.Patch{Pinned: core.Ptr(true)})
	require.NoError(t, err)
	assert.Equal(t, "remote", n.Title)
	assert.True(t, n.Pinned)
	assert.Equal(t, int64(5), n.CreatedAt)
}

func TestUpdate_Missing(t *testing.T) {
	h := newHarness(t, alice())
	_, err := h.pipeline.Update(context.Background(), "note_nope", core.Patch{Title: core.Ptr("x")})
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestUnauthenticatedUpdateAndDeleteAreNoOps(t *testing.T) {
	h := newHarness(t, sea.NewIdentity())
	ctx := context.Background()

	n, err := h.pipeline.Update(ctx, "note_x", core.Patch{Title: core.Ptr("x")})
	require.NoError(t, err)
	assert.Empty(t, n.ID)
	require.NoError(t, h.pipeline.Delete(ctx, "note_x"))
	assert.Empty(t, h.store.Keys())
}

func TestDelete_IsOptimistic(t *testing.T) {
	h := newHarness(t, alice())
	ctx := context.Background()

	n, err := h.pipeline.Create(ctx, core.Fields{Title: "bye"})
	require.NoError(t, err)
	h.eventually(t, func(s core.Snapshot) bool { return len(s.Notes) == 1 })

	require.NoError(t, h.pipeline.Delete(ctx, n.ID))
	assert.Empty(t, h.engine.Snapshot().Notes, "gone before Delete returns")

	raw, ok := h.store.Raw(n.ID)
	require.True(t, ok)
	assert.True(t, raw.IsTombstone())
}

func TestDelete_FailedTombstoneDoesNotResurrect(t *testing.T) {
	h := newHarness(t, alice())
	ctx := context.Background()

	n, err := h.pipeline.Create(ctx, core.Fields{Title: "stuck"})
	require.NoError(t, err)
	h.eventually(t, func(s core.Snapshot) bool { return len(s.Notes) == 1 })

	h.store.FailWrites(errors.New("relay offline"))
	err = h.pipeline.Delete(ctx, n.ID)
	assert.ErrorIs(t, err, core.ErrRemoteWrite)

	time.Sleep(60 * time.Millisecond)
	assert.Empty(t, h.engine.Snapshot().Notes)
}

func TestToggles(t *testing.T) {
	h := newHarness(t, alice())
	ctx := context.Background()

	older, err := h.pipeline.Create(ctx, core.Fields{Title: "older"})
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	_, err = h.pipeline.Create(ctx, core.Fields{Title: "newer"})
	require.NoError(t, err)
	h.eventually(t, func(s core.Snapshot) bool { return len(s.Notes) == 2 })
	assert.Equal(t, "newer", h.engine.Snapshot().Notes[0].Title)

	require.NoError(t, h.pipeline.TogglePin(ctx, older.ID))
	h.eventually(t, func(s core.Snapshot) bool { return s.Notes[0].ID == older.ID && s.Notes[0].Pinned })

	require.NoError(t, h.pipeline.ChangeColor(ctx, older.ID, "#aecbfa"))
	h.eventually(t, func(s core.Snapshot) bool {
		got, _ := s.Find(older.ID)
		return got.Color == "#aecbfa"
	})

	require.NoError(t, h.pipeline.ToggleArchive(ctx, older.ID))
	h.eventually(t, func(s core.Snapshot) bool {
		got, _ := s.Find(older.ID)
		return got.Archived
	})

	assert.ErrorIs(t, h.pipeline.ChangeColor(ctx, older.ID, "teal"), core.ErrInvalidColor)
	assert.NoError(t, h.pipeline.TogglePin(ctx, "note_unknown"))
	assert.NoError(t, h.pipeline.ToggleArchive(ctx, "note_unknown"))
	assert.NoError(t, h.pipeline.ChangeColor(ctx, "note_unknown", core.DefaultColor))
}

func TestToggles_RightAfterCreate(t *testing.T) {
	h := newHarnessWithDebounce(t, alice(), 200*time.Millisecond)
	ctx := context.Background()

	n, err := h.pipeline.Create(ctx, core.Fields{Title: "fresh"})
	require.NoError(t, err)
	require.NoError(t, h.pipeline.TogglePin(ctx, n.ID))
	require.NoError(t, h.pipeline.ToggleArchive(ctx, n.ID))
	require.NoError(t, h.pipeline.ChangeColor(ctx, n.ID, "#fdcfe8"))

	staged, ok, err := h.engine.Lookup(ctx, n.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, staged.Pinned)
	assert.True(t, staged.Archived)
	assert.Equal(t, core.Color("#fdcfe8"), staged.Color)

	h.eventually(t, func(s core.Snapshot) bool {
		got, ok := s.Find(n.ID)
		return ok && got.Pinned && got.Archived && got.Color == "#fdcfe8"
	})
}

func TestToggles_TwiceWithinDebounceCancelOut(t *testing.T) {
	h := newHarnessWithDebounce(t, alice(), 200*time.Millisecond)
	ctx := context.Background()

	n, err := h.pipeline.Create(ctx, core.Fields{Title: "flip"})
	require.NoError(t, err)
	h.eventually(t, func(s core.Snapshot) bool { _, ok := s.Find(n.ID); return ok })

	require.NoError(t, h.pipeline.TogglePin(ctx, n.ID))
	require.NoError(t, h.pipeline.TogglePin(ctx, n.ID))
	require.NoError(t, h.pipeline.ToggleArchive(ctx, n.ID))
	require.NoError(t, h.pipeline.ToggleArchive(ctx, n.ID))

	staged, ok, err := h.engine.Lookup(ctx, n.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, staged.Pinned)
	assert.False(t, staged.Archived)

	// Wait for the merged edits to land, then check they cancelled out.
	h.eventually(t, func(s core.Snapshot) bool {
		got, ok := s.Find(n.ID)
		return ok && got.UpdatedAt > n.UpdatedAt
	})
	got, ok := h.engine.Snapshot().Find(n.ID)
	require.True(t, ok)
	assert.False(t, got.Pinned)
	assert.False(t, got.Archived)
}

func TestNormalize(t *testing.T) {
	out, err := mutation.Normalize(core.Fields{Title: "  t ", Content: " c ", Labels: []string{" a", "", "b "}})
	require.NoError(t, err)
	assert.Equal(t, "t", out.Title)
	assert.Equal(t, "c", out.Content)
	assert.Equal(t, []string{"a", "b"}, out.Labels)
	assert.Equal(t, core.DefaultColor, out.Color)
}
