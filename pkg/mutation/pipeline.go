// Package mutation turns user intents into encoded writes against the remote
// stream and optimistic patches of the local engine.
package mutation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/aretw0/notesync/pkg/core"
)

// Local is the part of the reconcile engine the pipeline patches.
// *reconcile.Engine satisfies it.
type Local interface {
	Lookup(ctx context.Context, id string) (core.Note, bool, error)
	Stage(ctx context.Context, n core.Note) error
	Forget(ctx context.Context, id string) error
}

// Codec is the envelope codec. *envelope.Codec satisfies it.
type Codec interface {
	Encode(ctx context.Context, f core.Fields) (core.Value, error)
	Decode(ctx context.Context, v core.Value) (core.Fields, error)
}

// Pipeline serializes local intents into remote writes.
type Pipeline struct {
	stream   core.Stream
	local    Local
	codec    Codec
	identity core.Identity
	opts     *options
	logger   *slog.Logger
}

// New creates a Pipeline.
func New(stream core.Stream, local Local, codec Codec, identity core.Identity, opts ...Option) (*Pipeline, error) {
	switch {
	case stream == nil:
		return nil, errors.New("stream is required")
	case local == nil:
		return nil, errors.New("local engine is required")
	case codec == nil:
		return nil, errors.New("codec is required")
	case identity == nil:
		return nil, errors.New("identity is required")
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return &Pipeline{
		stream:   stream,
		local:    local,
		codec:    codec,
		identity: identity,
		opts:     o,
		logger:   o.logger.With("component", "mutation"),
	}, nil
}

// Create validates f, assigns an id and both timestamps, writes the encoded
// note and stages it locally. If the identity is not authenticated yet it
// waits once for the retry delay before giving up with ErrUnauthenticated.
func (p *Pipeline) Create(ctx context.Context, f core.Fields) (core.Note, error) {
	if err := p.awaitAuth(ctx); err != nil {
		return core.Note{}, err
	}

	fields, err := Normalize(f)
	if err != nil {
		return core.Note{}, err
	}

	id, err := p.opts.newID()
	if err != nil {
		return core.Note{}, err
	}

	now := p.opts.now().UnixMilli()
	fields.CreatedAt = now
	fields.UpdatedAt = now
	n := core.Note{ID: id, Fields: fields}

	if err := p.persist(ctx, n, "create"); err != nil {
		return core.Note{}, err
	}
	p.logger.Debug("created", "key", id)
	return n, nil
}

// Update merges patch into the current version of note id. The staged local
// copy is used when there is one; otherwise the note is read from the store.
// It is a silent no-op when the identity is not authenticated.
func (p *Pipeline) Update(ctx context.Context, id string, patch core.Patch) (core.Note, error) {
	if !p.identity.Authenticated() {
		p.logger.Debug("update skipped, not authenticated", "key", id)
		return core.Note{}, nil
	}

	cur, err := p.current(ctx, id)
	if err != nil {
		return core.Note{}, err
	}

	fields, err := Normalize(patch.Apply(cur.Fields))
	if err != nil {
		return core.Note{}, err
	}
	fields.CreatedAt = cur.CreatedAt
	fields.UpdatedAt = max(p.opts.now().UnixMilli(), cur.UpdatedAt+1)
	n := core.Note{ID: id, Fields: fields}

	if err := p.persist(ctx, n, "update"); err != nil {
		return core.Note{}, err
	}
	p.logger.Debug("updated", "key", id)
	return n, nil
}

// Delete removes note id locally first, then writes the tombstone. A rejected
// tombstone is returned as a *core.WriteError; the note is not restored.
func (p *Pipeline) Delete(ctx context.Context, id string) error {
	if !p.identity.Authenticated() {
		p.logger.Debug("delete skipped, not authenticated", "key", id)
		return nil
	}

	if err := p.local.Forget(ctx, id); err != nil {
		return err
	}
	if err := p.stream.Tombstone(ctx, id); err != nil {
		p.logger.Error("tombstone rejected", "key", id, "error", err)
		return &core.WriteError{Key: id, Op: "delete", Err: err}
	}
	p.logger.Debug("deleted", "key", id)
	return nil
}

// TogglePin flips the pinned flag of the freshest local copy of note id,
// staged edits included. Unknown ids are ignored.
func (p *Pipeline) TogglePin(ctx context.Context, id string) error {
	cur, ok, err := p.local.Lookup(ctx, id)
	if err != nil || !ok {
		return err
	}
	_, err = p.Update(ctx, id, core.Patch{Pinned: core.Ptr(!cur.Pinned)})
	return err
}

// ToggleArchive flips the archived flag of the freshest local copy of note
// id. Unknown ids are ignored.
func (p *Pipeline) ToggleArchive(ctx context.Context, id string) error {
	cur, ok, err := p.local.Lookup(ctx, id)
	if err != nil || !ok {
		return err
	}
	_, err = p.Update(ctx, id, core.Patch{Archived: core.Ptr(!cur.Archived)})
	return err
}

// ChangeColor recolors a locally known note. Unknown ids are ignored; colors
// outside the palette are rejected.
func (p *Pipeline) ChangeColor(ctx context.Context, id string, c core.Color) error {
	if !c.Valid() {
		return fmt.Errorf("%w: %q", core.ErrInvalidColor, c)
	}
	_, ok, err := p.local.Lookup(ctx, id)
	if err != nil || !ok {
		return err
	}
	_, err = p.Update(ctx, id, core.Patch{Color: &c})
	return err
}

func (p *Pipeline) awaitAuth(ctx context.Context) error {
	if p.identity.Authenticated() {
		return nil
	}
	p.logger.Debug("waiting for authentication", "delay", p.opts.authRetryDelay)

	t := time.NewTimer(p.opts.authRetryDelay)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
		return ctx.Err()
	}

	if !p.identity.Authenticated() {
		return core.ErrUnauthenticated
	}
	return nil
}

// current returns the freshest known version of id.
func (p *Pipeline) current(ctx context.Context, id string) (core.Note, error) {
	if n, ok, err := p.local.Lookup(ctx, id); err != nil {
		return core.Note{}, err
	} else if ok {
		return n, nil
	}

	v, err := p.stream.Read(ctx, id)
	if err != nil {
		return core.Note{}, fmt.Errorf("read %s: %w", id, err)
	}
	if v.IsTombstone() {
		return core.Note{}, fmt.Errorf("%w: %s", core.ErrNotFound, id)
	}
	fields, err := p.codec.Decode(ctx, v)
	if err != nil {
		return core.Note{}, err
	}
	return core.Note{ID: id, Fields: fields}, nil
}

// persist encodes, writes and stages n. A degraded encode is logged and the
// plain value is written anyway.
func (p *Pipeline) persist(ctx context.Context, n core.Note, op string) error {
	v, err := p.codec.Encode(ctx, n.Fields)
	if err != nil {
		if !errors.Is(err, core.ErrEncodeDegraded) || v == nil {
			return fmt.Errorf("%s %s: %w", op, n.ID, err)
		}
		p.logger.Warn("writing note without encryption", "key", n.ID, "error", err)
	}

	if err := p.stream.Write(ctx, n.ID, v); err != nil {
		p.logger.Error("write rejected", "key", n.ID, "op", op, "error", err)
		return &core.WriteError{Key: n.ID, Op: op, Err: err}
	}
	return p.local.Stage(ctx, n)
}

// Normalize trims text fields and labels, drops blank labels and checks the
// result. Missing colors become the default.
func Normalize(f core.Fields) (core.Fields, error) {
	out := f.Clone()
	out.Title = strings.TrimSpace(out.Title)
	out.Content = strings.TrimSpace(out.Content)

	if out.Color == "" {
		out.Color = core.DefaultColor
	}
	if !out.Color.Valid() {
		return core.Fields{}, fmt.Errorf("%w: %q", core.ErrInvalidColor, out.Color)
	}

	labels := make([]string, 0, len(out.Labels))
	for _, l := range out.Labels {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		if slices.Contains(labels, l) {
			return core.Fields{}, fmt.Errorf("%w: %q", core.ErrDuplicateLabel, l)
		}
		labels = append(labels, l)
	}
	out.Labels = labels

	if out.Empty() {
		return core.Fields{}, core.ErrEmptyNote
	}
	return out, nil
}
