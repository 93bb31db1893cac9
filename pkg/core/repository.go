package core

import "context"

// Stream is the contract over the external keyed graph store. Implementations
// must not assume any ordering between keys; delivery is only guaranteed to be
// eventual while subscribed.
type Stream interface {
	// SubscribeAll calls fn at least once for every existing key and again on
	// every later change to any key, until the subscription is detached.
	SubscribeAll(ctx context.Context, fn func(Event)) (Subscription, error)

	// SnapshotOnce calls fn exactly once per existing key. An empty store
	// yields a single Event with an empty Key.
	SnapshotOnce(ctx context.Context, fn func(Event)) error

	// Read performs a one-shot read of a single key. Missing keys return a
	// tombstone value and no error.
	Read(ctx context.Context, key string) (Value, error)

	// Write upserts the value stored at key.
	Write(ctx context.Context, key string, v Value) error

	// Tombstone writes the store's null-equivalent at key.
	Tombstone(ctx context.Context, key string) error
}

// Subscription is a live SubscribeAll registration.
type Subscription interface {
	// Unsubscribe detaches synchronously; fn is not called once it returns.
	Unsubscribe()
}

// SubscriptionFunc adapts a function to Subscription.
type SubscriptionFunc func()

func (f SubscriptionFunc) Unsubscribe() { f() }

// KeyMaterial is the secret derived from the authenticated identity. The core
// hands it to the Cipher and never persists it.
type KeyMaterial struct {
	Pub   string
	EPriv string
}

// Identity is the authenticated user context.
type Identity interface {
	Authenticated() bool
	KeyMaterial() (KeyMaterial, bool)
}

// Cipher is the external encryption capability.
type Cipher interface {
	Encrypt(ctx context.Context, plaintext string, km KeyMaterial) (string, error)
	Decrypt(ctx context.Context, ciphertext string, km KeyMaterial) (string, error)
}

// Observer receives diagnostics from a running session. Implementations must
// not block.
type Observer interface {
	OnPhase(phase string)
	OnSnapshot(s Snapshot)
	OnDecodeFailure(key string, err error)
}

// NopObserver ignores everything.
type NopObserver struct{}

func (NopObserver) OnPhase(string)                {}
func (NopObserver) OnSnapshot(Snapshot)           {}
func (NopObserver) OnDecodeFailure(string, error) {}
