// Package sea provides a SEA-style cipher and identity for notesync: AES-GCM
// with a per-message salt and a PBKDF2-derived key, serialized as
// "SEA{"ct":...,"iv":...,"s":...}".
package sea

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/crypto/pbkdf2"

	"github.com/aretw0/notesync/pkg/core"
)

const (
	// Marker prefixes every serialized ciphertext.
	Marker = "SEA"

	// DefaultIterations is the PBKDF2 work factor.
	DefaultIterations = 100000

	// KeySize selects AES-256.
	KeySize = 32

	// DefaultKeyCacheSize bounds the derived keys kept for decryption.
	DefaultKeyCacheSize = 1024

	saltSize = 9
)

var (
	ErrNoKey             = errors.New("sea: empty key material")
	ErrMalformed         = errors.New("sea: malformed ciphertext")
	ErrAuthenticationTag = errors.New("sea: message authentication failed")
)

type payload struct {
	CT string `json:"ct"`
	IV string `json:"iv"`
	S  string `json:"s"`
}

// Cipher implements core.Cipher.
type Cipher struct {
	iterations int
	cacheSize  int
	keys       *lru.Cache[string, []byte]
}

// Option configures a Cipher.
type Option func(*Cipher)

// WithIterations overrides the PBKDF2 work factor. Tests use a small value.
func WithIterations(n int) Option {
	return func(c *Cipher) {
		if n > 0 {
			c.iterations = n
		}
	}
}

// WithKeyCacheSize bounds how many derived keys Decrypt remembers.
func WithKeyCacheSize(n int) Option {
	return func(c *Cipher) {
		if n > 0 {
			c.cacheSize = n
		}
	}
}

// NewCipher creates a Cipher.
func NewCipher(opts ...Option) *Cipher {
	c := &Cipher{
		iterations: DefaultIterations,
		cacheSize:  DefaultKeyCacheSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	// Only fails for a non-positive size.
	c.keys, _ = lru.New[string, []byte](c.cacheSize)
	return c
}

// Purge drops every cached derived key.
func (c *Cipher) Purge() {
	c.keys.Purge()
}

// CachedKeys reports how many derived keys are cached.
func (c *Cipher) CachedKeys() int {
	return c.keys.Len()
}

// Encrypt seals plaintext under a key derived from km and a fresh salt.
func (c *Cipher) Encrypt(ctx context.Context, plaintext string, km core.KeyMaterial) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if km.EPriv == "" {
		return "", ErrNoKey
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("sea: generate salt: %w", err)
	}

	gcm, err := c.aead(pbkdf2.Key([]byte(km.EPriv), salt, c.iterations, KeySize, sha256.New))
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("sea: generate nonce: %w", err)
	}
	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)

	data, err := json.Marshal(payload{
		CT: base64.StdEncoding.EncodeToString(sealed),
		IV: base64.StdEncoding.EncodeToString(nonce),
		S:  base64.StdEncoding.EncodeToString(salt),
	})
	if err != nil {
		return "", err
	}
	return Marker + string(data), nil
}

// Decrypt opens a ciphertext produced by Encrypt. The marker is optional so
// structured payloads stored as bare objects decrypt too.
func (c *Cipher) Decrypt(ctx context.Context, ciphertext string, km core.KeyMaterial) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if km.EPriv == "" {
		return "", ErrNoKey
	}

	var p payload
	if err := json.Unmarshal([]byte(strings.TrimPrefix(ciphertext, Marker)), &p); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	sealed, err1 := base64.StdEncoding.DecodeString(p.CT)
	nonce, err2 := base64.StdEncoding.DecodeString(p.IV)
	salt, err3 := base64.StdEncoding.DecodeString(p.S)
	if err := errors.Join(err1, err2, err3); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	gcm, err := c.aead(c.deriveKey(km, salt))
	if err != nil {
		return "", err
	}
	if len(nonce) != gcm.NonceSize() {
		return "", fmt.Errorf("%w: nonce size %d", ErrMalformed, len(nonce))
	}

	plain, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrAuthenticationTag
	}
	return string(plain), nil
}

func (c *Cipher) aead(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("sea: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("sea: create gcm: %w", err)
	}
	return gcm, nil
}

// deriveKey memoizes PBKDF2 per (key material, salt) for the decrypt path.
// Replayed subscriptions decrypt the same records many times; Encrypt always
// uses a fresh salt and derives directly.
func (c *Cipher) deriveKey(km core.KeyMaterial, salt []byte) []byte {
	sum := sha256.Sum256(append([]byte(km.EPriv+"\x00"), salt...))
	cacheKey := string(sum[:])

	if key, ok := c.keys.Get(cacheKey); ok {
		return key
	}
	key := pbkdf2.Key([]byte(km.EPriv), salt, c.iterations, KeySize, sha256.New)
	c.keys.Add(cacheKey, key)
	return key
}

var _ core.Cipher = (*Cipher)(nil)
