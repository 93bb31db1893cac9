package core

import (
	"bytes"
	"fmt"
)

// NotesPath is the sub-path of the identity's private namespace holding notes.
// Each note is stored at NotesPath + "/" + ID.
const NotesPath = "notes"

// Value is a raw JSON value as held by the remote store. It is either a JSON
// string (an encrypted envelope), a JSON object (an encrypted envelope or a
// legacy plain record) or null.
type Value []byte

// Tombstone is the store's null-equivalent.
var Tombstone = Value("null")

// IsTombstone reports whether v marks a deletion.
func (v Value) IsTombstone() bool {
	trimmed := bytes.TrimSpace(v)
	return len(trimmed) == 0 || bytes.Equal(trimmed, Tombstone)
}

// Event is one delivery from the remote stream. An empty Key is the store's
// "nothing here" signal and is distinct from a real key carrying a tombstone.
type Event struct {
	Key   string
	Value Value
}

// Empty reports whether e is the "no data present" signal.
func (e Event) Empty() bool {
	return e.Key == ""
}

// Snapshot is the externally observable state of a session.
type Snapshot struct {
	Notes   []Note `json:"notes"`
	Loading bool   `json:"loading"`
}

// String implements lifecycle.Event.
func (s Snapshot) String() string {
	return fmt.Sprintf("snapshot(notes=%d, loading=%t)", len(s.Notes), s.Loading)
}

// Find returns the note with the given id, if present.
func (s Snapshot) Find(id string) (Note, bool) {
	for _, n := range s.Notes {
		if n.ID == id {
			return n, true
		}
	}
	return Note{}, false
}
