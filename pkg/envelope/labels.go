package envelope

import (
	"encoding/json"
)

// MarshalLabels string-encodes labels the way they travel on the wire.
func MarshalLabels(labels []string) string {
	if labels == nil {
		labels = []string{}
	}
	data, err := json.Marshal(labels)
	if err != nil {
		return "[]"
	}
	return string(data)
}

// UnmarshalLabels accepts the string-encoded form or, for legacy records, a
// native array. Anything malformed degrades to an empty slice.
func UnmarshalLabels(v any) []string {
	switch t := v.(type) {
	case string:
		var out []string
		if err := json.Unmarshal([]byte(t), &out); err != nil || out == nil {
			return []string{}
		}
		return out
	case []string:
		return append([]string{}, t...)
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return []string{}
	}
}
