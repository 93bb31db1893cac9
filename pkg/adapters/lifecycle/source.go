package lifecycle

import (
	"context"

	"github.com/aretw0/lifecycle"

	"github.com/aretw0/notesync/pkg/core"
)

type snapshotSource struct {
	snapshots <-chan core.Snapshot
	out       chan lifecycle.Event
}

// NewSource creates a lifecycle.Source that emits session snapshots.
// core.Snapshot satisfies lifecycle.Event through its String method.
func NewSource(snapshots <-chan core.Snapshot) lifecycle.Source {
	return &snapshotSource{
		snapshots: snapshots,
		out:       make(chan lifecycle.Event),
	}
}

func (s *snapshotSource) Events() <-chan lifecycle.Event {
	return s.out
}

func (s *snapshotSource) Start(ctx context.Context) error {
	lifecycle.Go(ctx, func(ctx context.Context) error {
		defer close(s.out)
		for {
			select {
			case <-ctx.Done():
				return nil
			case snap, ok := <-s.snapshots:
				if !ok {
					return nil
				}
				select {
				case s.out <- snap:
				case <-ctx.Done():
					return nil
				}
			}
		}
	})
	return nil
}
