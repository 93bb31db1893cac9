// Package notesync is the composition root of the encrypted notes mirror.
//
// It connects the reconcile engine and the mutation pipeline (the domain) with
// a storage adapter and a cipher (the infrastructure), following the
// hexagonal layout of pkg/core ports and pkg/adapters implementations.
//
// A Session subscribes to every note under the identity's namespace, decrypts
// each value, coalesces bursts of remote updates and publishes an ordered
// snapshot: pinned notes first, then most recently updated. Local edits are
// encrypted, written to the store and staged into the same buffer, so the
// caller sees one consistent collection.
//
// Adapters:
//
//   - fs: one JSON file per note under <path>/notes, optionally watched.
//   - sqlite: a single graph(soul, key, value, state) table.
//   - memory: in-process, for tests and demos.
//
// Usage:
//
//	identity := sea.Authenticated(sea.PairFromPassphrase("alice", passphrase, 0))
//	s, err := notesync.New("./notes", identity,
//		notesync.WithAdapter("sqlite"),
//		notesync.WithLogger(logger),
//	)
//	if err != nil {
//		return err
//	}
//	defer s.Close()
//
//	if err := s.Start(ctx); err != nil {
//		return err
//	}
//	snap, err := s.WaitReady(ctx)
package notesync
