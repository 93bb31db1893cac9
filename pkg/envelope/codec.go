package envelope

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aretw0/notesync/pkg/core"
)

// record is the plain wire shape. Labels travel string-encoded.
type record struct {
	Title     string `json:"title"`
	Content   string `json:"content"`
	Color     string `json:"color"`
	Pinned    bool   `json:"pinned"`
	Labels    string `json:"labels"`
	Archived  bool   `json:"archived"`
	CreatedAt int64  `json:"createdAt"`
	UpdatedAt int64  `json:"updatedAt"`
}

// Codec encodes and decodes note fields for one identity.
type Codec struct {
	cipher   core.Cipher
	identity core.Identity
	now      func() time.Time
}

// Option configures a Codec.
type Option func(*Codec)

// WithClock overrides the clock used for missing timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCodec creates a Codec. The cipher is mandatory.
func NewCodec(cipher core.Cipher, identity core.Identity, opts ...Option) (*Codec, error) {
	if cipher == nil {
		return nil, core.ErrNoCipher
	}
	if identity == nil {
		return nil, errors.New("identity is required")
	}
	c := &Codec{
		cipher:   cipher,
		identity: identity,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Encode produces the stored value for f. When encryption is not possible the
// plain record is returned together with an error wrapping
// core.ErrEncodeDegraded; that value is still safe to write.
func (c *Codec) Encode(ctx context.Context, f core.Fields) (core.Value, error) {
	plain, err := json.Marshal(record{
		Title:     f.Title,
		Content:   f.Content,
		Color:     string(f.Color),
		Pinned:    f.Pinned,
		Labels:    MarshalLabels(f.Labels),
		Archived:  f.Archived,
		CreatedAt: f.CreatedAt,
		UpdatedAt: f.UpdatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal note: %w", err)
	}

	km, ok := c.identity.KeyMaterial()
	if !ok {
		return plain, fmt.Errorf("%w: no key material", core.ErrEncodeDegraded)
	}
	ciphertext, err := c.cipher.Encrypt(ctx, string(plain), km)
	if err != nil {
		return plain, fmt.Errorf("%w: %v", core.ErrEncodeDegraded, err)
	}

	out, err := json.Marshal(ciphertext)
	if err != nil {
		return plain, fmt.Errorf("%w: %v", core.ErrEncodeDegraded, err)
	}
	return out, nil
}

// Decode turns a stored value back into fields. Failures are *core.DecodeError
// values without a Key; callers that know the key fill it in.
func (c *Codec) Decode(ctx context.Context, v core.Value) (core.Fields, error) {
	env := Classify(v)

	switch env.Kind {
	case KindPlain:
		return c.fromObject(env.Object), nil

	case KindEncrypted:
		fields, err := c.decrypt(ctx, env)
		if err == nil {
			return fields, nil
		}
		if env.ResemblesNote() {
			return c.fromObject(env.Object), nil
		}
		return core.Fields{}, &core.DecodeError{Reason: "decryption failed", Err: err}

	default:
		return core.Fields{}, &core.DecodeError{Reason: "unrecognized payload"}
	}
}

func (c *Codec) decrypt(ctx context.Context, env Envelope) (core.Fields, error) {
	km, ok := c.identity.KeyMaterial()
	if !ok {
		return core.Fields{}, errors.New("no key material")
	}
	plaintext, err := c.cipher.Decrypt(ctx, env.Ciphertext, km)
	if err != nil {
		return core.Fields{}, err
	}

	obj, err := decodeObject([]byte(plaintext))
	if err != nil {
		// Some writers stringify twice.
		var inner string
		if json.Unmarshal([]byte(plaintext), &inner) != nil {
			return core.Fields{}, fmt.Errorf("plaintext is not an object: %w", err)
		}
		if obj, err = decodeObject([]byte(inner)); err != nil {
			return core.Fields{}, fmt.Errorf("plaintext is not an object: %w", err)
		}
	}
	return c.fromObject(obj), nil
}

func (c *Codec) fromObject(obj map[string]any) core.Fields {
	now := c.now().UnixMilli()

	f := core.Fields{
		Title:     stringMember(obj, "title"),
		Content:   stringMember(obj, "content"),
		Color:     core.Color(stringMember(obj, "color")),
		Pinned:    boolMember(obj, "pinned"),
		Archived:  boolMember(obj, "archived"),
		Labels:    UnmarshalLabels(obj["labels"]),
		CreatedAt: int64Member(obj, "createdAt"),
		UpdatedAt: int64Member(obj, "updatedAt"),
	}
	if !f.Color.Valid() {
		f.Color = core.DefaultColor
	}
	if f.CreatedAt == 0 {
		f.CreatedAt = now
	}
	if f.UpdatedAt == 0 {
		f.UpdatedAt = now
	}
	return f
}

func stringMember(obj map[string]any, name string) string {
	s, _ := obj[name].(string)
	return s
}

func boolMember(obj map[string]any, name string) bool {
	b, _ := obj[name].(bool)
	return b
}

func int64Member(obj map[string]any, name string) int64 {
	switch t := obj[name].(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return int64(f)
		}
	case float64:
		return int64(t)
	case string:
		if i, err := strconv.ParseInt(t, 10, 64); err == nil {
			return i
		}
	}
	return 0
}
