// Package export renders notes as Markdown documents with YAML frontmatter
// and reads them back.
package export

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aretw0/notesync/pkg/core"
)

// Ext is the extension of exported documents.
const Ext = ".md"

var fence = []byte("---")

// frontmatter is the on-disk header. Timestamps are written as UTC instants
// rather than raw milliseconds so the files stay readable.
type frontmatter struct {
	ID       string     `yaml:"id"`
	Title    string     `yaml:"title,omitempty"`
	Color    core.Color `yaml:"color"`
	Pinned   bool       `yaml:"pinned,omitempty"`
	Archived bool       `yaml:"archived,omitempty"`
	Labels   []string   `yaml:"labels,omitempty"`
	Created  time.Time  `yaml:"created"`
	Updated  time.Time  `yaml:"updated"`
}

// Document serializes n to Markdown with frontmatter.
func Document(n core.Note) ([]byte, error) {
	fm := frontmatter{
		ID:       n.ID,
		Title:    n.Title,
		Color:    n.Color,
		Pinned:   n.Pinned,
		Archived: n.Archived,
		Labels:   n.Labels,
		Created:  time.UnixMilli(n.CreatedAt).UTC(),
		Updated:  time.UnixMilli(n.UpdatedAt).UTC(),
	}
	if fm.Color == "" {
		fm.Color = core.DefaultColor
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(fm); err != nil {
		return nil, fmt.Errorf("encode frontmatter for %s: %w", n.ID, err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	buf.WriteString("---\n")

	buf.WriteString(n.Content)
	if n.Content != "" && !strings.HasSuffix(n.Content, "\n") {
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// Parse reads a document produced by Document. A document without
// frontmatter is taken as content only.
func Parse(r io.Reader) (core.Note, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return core.Note{}, err
	}
	data = bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))

	if !bytes.HasPrefix(data, []byte("---\n")) {
		return core.Note{Fields: core.Fields{Content: string(data)}}, nil
	}

	rest := data[len("---\n"):]
	var header, body []byte
	switch {
	case bytes.HasPrefix(rest, fence):
		// empty header
		header, body = nil, rest[len(fence):]
	default:
		i := bytes.Index(rest, []byte("\n---"))
		if i < 0 {
			return core.Note{}, errors.New("frontmatter started but no closing delimiter found")
		}
		header, body = rest[:i+1], rest[i+1+len(fence):]
	}

	var fm frontmatter
	if err := yaml.Unmarshal(header, &fm); err != nil {
		return core.Note{}, fmt.Errorf("failed to parse frontmatter: %w", err)
	}

	content := strings.TrimPrefix(string(body), "\n")
	n := core.Note{
		ID: fm.ID,
		Fields: core.Fields{
			Title:    fm.Title,
			Content:  content,
			Color:    fm.Color,
			Pinned:   fm.Pinned,
			Archived: fm.Archived,
			Labels:   fm.Labels,
		},
	}
	if !fm.Created.IsZero() {
		n.CreatedAt = fm.Created.UnixMilli()
	}
	if !fm.Updated.IsZero() {
		n.UpdatedAt = fm.Updated.UnixMilli()
	}
	return n, nil
}

// WriteDir writes one document per note into dir, named after the note id.
// It returns the number of files written.
func WriteDir(dir string, notes []core.Note) (int, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create export dir: %w", err)
	}
	written := 0
	for _, n := range notes {
		if n.ID == "" || strings.ContainsAny(n.ID, `/\`) {
			return written, fmt.Errorf("invalid note id %q", n.ID)
		}
		data, err := Document(n)
		if err != nil {
			return written, err
		}
		if err := os.WriteFile(filepath.Join(dir, n.ID+Ext), data, 0o644); err != nil {
			return written, fmt.Errorf("write %s: %w", n.ID, err)
		}
		written++
	}
	return written, nil
}
