// Package core holds the domain types of notesync and the ports its engine
// talks through.
package core

import (
	"slices"
	"strings"
)

// Color is one entry of the fixed note palette, expressed as a hex string.
type Color string

// DefaultColor is the neutral palette entry.
const DefaultColor Color = "#ffffff"

// Palette lists every color a note may carry, in display order.
var Palette = []Color{
	DefaultColor, // white
	"#f28b82",    // light red
	"#fbbc04",    // yellow
	"#fff475",    // light yellow
	"#ccff90",    // light green
	"#a7ffeb",    // light teal
	"#cbf0f8",    // light blue
	"#aecbfa",    // blue
	"#d7aefb",    // purple
	"#fdcfe8",    // pink
	"#e6c9a8",    // brown
	"#e8eaed",    // gray
}

// Valid reports whether c belongs to the palette.
func (c Color) Valid() bool {
	return slices.Contains(Palette, c)
}

// Fields is the plain field set of a note, everything except its ID.
// Timestamps are Unix milliseconds.
type Fields struct {
	Title     string   `json:"title" yaml:"title"`
	Content   string   `json:"content" yaml:"-"`
	Color     Color    `json:"color" yaml:"color"`
	Pinned    bool     `json:"pinned" yaml:"pinned"`
	Archived  bool     `json:"archived" yaml:"archived"`
	Labels    []string `json:"labels" yaml:"labels"`
	CreatedAt int64    `json:"createdAt" yaml:"created_at"`
	UpdatedAt int64    `json:"updatedAt" yaml:"updated_at"`
}

// Note is the unit of storage. ID is the key the note lives under in the
// remote store and never changes.
type Note struct {
	ID string `json:"id" yaml:"id"`
	Fields
}

// Empty reports whether both title and content are blank. Empty notes are
// never persisted.
func (f Fields) Empty() bool {
	return strings.TrimSpace(f.Title) == "" && strings.TrimSpace(f.Content) == ""
}

// Clone returns a copy of f that shares no memory with it.
func (f Fields) Clone() Fields {
	f.Labels = slices.Clone(f.Labels)
	if f.Labels == nil {
		f.Labels = []string{}
	}
	return f
}

// Patch is a partial update. Nil fields are left untouched. There is no way
// to express ID or CreatedAt here: those are owned by the pipeline.
type Patch struct {
	Title    *string
	Content  *string
	Color    *Color
	Pinned   *bool
	Archived *bool
	Labels   *[]string
}

// Apply returns f with every non-nil field of p applied.
func (p Patch) Apply(f Fields) Fields {
	out := f.Clone()
	if p.Title != nil {
		out.Title = *p.Title
	}
	if p.Content != nil {
		out.Content = *p.Content
	}
	if p.Color != nil {
		out.Color = *p.Color
	}
	if p.Pinned != nil {
		out.Pinned = *p.Pinned
	}
	if p.Archived != nil {
		out.Archived = *p.Archived
	}
	if p.Labels != nil {
		out.Labels = slices.Clone(*p.Labels)
	}
	return out
}

// Ptr is a small helper for building patches.
func Ptr[T any](v T) *T {
	return &v
}
