// Package envelope converts between note fields and the values held by the
// remote store. A stored value is either an encrypted envelope or, for records
// written before encryption existed, the plain field set. Which one arrived is
// decided by looking at the value's shape, never by a type tag.
package envelope

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/aretw0/notesync/pkg/core"
)

// CiphertextMarker prefixes serialized ciphertexts.
const CiphertextMarker = "SEA"

// Kind tags a classified value.
type Kind int

const (
	KindUnknown Kind = iota
	KindEncrypted
	KindPlain
)

func (k Kind) String() string {
	switch k {
	case KindEncrypted:
		return "encrypted"
	case KindPlain:
		return "plain"
	default:
		return "unknown"
	}
}

// noteFields are the member names a legacy plain record may carry.
var noteFields = []string{"title", "content", "color", "pinned", "labels", "archived", "createdAt", "updatedAt"}

// Envelope is the classified form of a stored value.
type Envelope struct {
	Kind Kind

	// Ciphertext is what gets handed to the cipher when Kind is KindEncrypted.
	Ciphertext string

	// Object holds the decoded members when the value was a JSON object,
	// whatever its Kind. It feeds the plain fallback.
	Object map[string]any
}

// ResemblesNote reports whether the value carries at least one recognized
// note member and can therefore be read as a plain record.
func (e Envelope) ResemblesNote() bool {
	if e.Object == nil {
		return false
	}
	for _, name := range noteFields {
		if _, ok := e.Object[name]; ok {
			return true
		}
	}
	return false
}

// Classify inspects v structurally.
func Classify(v core.Value) Envelope {
	trimmed := bytes.TrimSpace(v)
	if len(trimmed) == 0 {
		return Envelope{Kind: KindUnknown}
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return Envelope{Kind: KindUnknown}
		}
		if looksEncrypted(s) {
			return Envelope{Kind: KindEncrypted, Ciphertext: s}
		}
		return Envelope{Kind: KindUnknown}

	case '{':
		obj, err := decodeObject(trimmed)
		if err != nil {
			return Envelope{Kind: KindUnknown}
		}
		env := Envelope{Object: obj}
		_, hasCT := obj["ct"]
		_, hasIV := obj["iv"]
		switch {
		case hasCT || hasIV:
			env.Kind = KindEncrypted
			env.Ciphertext = string(trimmed)
		case env.ResemblesNote():
			env.Kind = KindPlain
		default:
			env.Kind = KindUnknown
		}
		return env
	}

	return Envelope{Kind: KindUnknown}
}

func looksEncrypted(s string) bool {
	return strings.HasPrefix(s, CiphertextMarker) ||
		strings.HasPrefix(s, `{"ct"`) ||
		strings.Contains(s, `"ct"`)
}

func decodeObject(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, err
	}
	return obj, nil
}
