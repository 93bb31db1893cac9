package session

import (
	"github.com/aretw0/introspection"

	"github.com/aretw0/notesync/pkg/reconcile"
)

// SessionState exposes internal state for observability.
type SessionState struct {
	Authenticated bool                  `json:"authenticated"`
	Engine        reconcile.EngineState `json:"engine"`
	Store         any                   `json:"store,omitempty"`
}

// State implements introspection.Introspectable.
func (s *Session) State() any {
	st := SessionState{
		Authenticated: s.identity.Authenticated(),
		Engine:        s.engine.State().(reconcile.EngineState),
	}
	if in, ok := s.stream.(introspection.Introspectable); ok {
		st.Store = in.State()
	}
	return st
}

// ComponentType implements introspection.Component.
func (s *Session) ComponentType() string {
	return "session"
}

var _ introspection.Introspectable = (*Session)(nil)
var _ introspection.Component = (*Session)(nil)
