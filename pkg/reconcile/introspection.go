package reconcile

import (
	"github.com/aretw0/introspection"
)

// EngineState exposes internal state for observability.
type EngineState struct {
	Phase          string `json:"phase"`
	Notes          int    `json:"notes"`
	Pending        int    `json:"pending"`
	SeenKey        bool   `json:"seen_key"`
	TimedOut       bool   `json:"timed_out"`
	DecodeFailures int    `json:"decode_failures"`
	Subscribers    int    `json:"subscribers"`
}

// State implements introspection.Introspectable. Counts are refreshed after
// every message the loop handles.
func (e *Engine) State() any {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s := e.stats
	s.Subscribers = len(e.subscribers)
	return s
}

// ComponentType implements introspection.Component.
func (e *Engine) ComponentType() string {
	return "reconcile-engine"
}

var _ introspection.Introspectable = (*Engine)(nil)
var _ introspection.Component = (*Engine)(nil)
