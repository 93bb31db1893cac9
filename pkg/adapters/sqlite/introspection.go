package sqlite

import (
	"context"

	"github.com/aretw0/introspection"
)

// StoreState exposes internal state for observability.
type StoreState struct {
	Soul        string `json:"soul"`
	Keys        int    `json:"keys"`
	Subscribers int    `json:"subscribers"`
	LastState   int64  `json:"last_state,omitempty"`
}

// State implements introspection.Introspectable.
func (s *Store) State() any {
	st := StoreState{Soul: s.soul}

	s.mu.Lock()
	st.Subscribers = len(s.subs)
	s.mu.Unlock()

	row := s.db.QueryRowContext(context.Background(),
		`SELECT COUNT(*), COALESCE(MAX(state), 0) FROM graph WHERE soul = ?`, s.soul)
	if err := row.Scan(&st.Keys, &st.LastState); err != nil {
		s.logger.Debug("state query failed", "error", err)
	}
	return st
}

// ComponentType implements introspection.Component.
func (s *Store) ComponentType() string {
	return "sqlite-store"
}

var _ introspection.Introspectable = (*Store)(nil)
var _ introspection.Component = (*Store)(nil)
