// Package view turns the authoritative note map into the ordered list callers
// see, and filters that list for display.
package view

import (
	"cmp"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/aretw0/notesync/pkg/core"
)

// Project returns the notes of m ordered pinned first, then by UpdatedAt
// descending. Ties fall back to ID so the result never depends on map order.
// The result is never nil.
func Project(m map[string]core.Note) []core.Note {
	out := make([]core.Note, 0, len(m))
	for _, n := range m {
		out = append(out, n)
	}
	slices.SortStableFunc(out, Compare)
	return out
}

// Compare is the projection order.
func Compare(a, b core.Note) int {
	if a.Pinned != b.Pinned {
		if a.Pinned {
			return -1
		}
		return 1
	}
	if c := cmp.Compare(b.UpdatedAt, a.UpdatedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// Query narrows a projected list.
type Query struct {
	// Text is matched case-insensitively against title, content and labels.
	Text string
	// Archived selects the archive instead of the active notes.
	Archived bool
	// Label is a doublestar pattern one of the note's labels must match,
	// e.g. "work/**". Empty matches everything.
	Label string
}

// Filter returns the notes matching q, keeping their order. A malformed
// Label pattern matches nothing.
func Filter(notes []core.Note, q Query) []core.Note {
	text := strings.ToLower(strings.TrimSpace(q.Text))
	out := make([]core.Note, 0, len(notes))

	for _, n := range notes {
		if n.Archived != q.Archived {
			continue
		}
		if q.Label != "" && !matchLabel(n.Labels, q.Label) {
			continue
		}
		if text != "" && !matchText(n, text) {
			continue
		}
		out = append(out, n)
	}
	return out
}

func matchLabel(labels []string, pattern string) bool {
	for _, l := range labels {
		if ok, err := doublestar.Match(pattern, l); err == nil && ok {
			return true
		}
	}
	return false
}

func matchText(n core.Note, text string) bool {
	if strings.Contains(strings.ToLower(n.Title), text) ||
		strings.Contains(strings.ToLower(n.Content), text) {
		return true
	}
	for _, l := range n.Labels {
		if strings.Contains(strings.ToLower(l), text) {
			return true
		}
	}
	return false
}
