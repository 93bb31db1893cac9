package sea

import (
	"crypto/sha256"
	"encoding/base64"
	"sync"

	"golang.org/x/crypto/pbkdf2"

	"github.com/aretw0/notesync/pkg/core"
)

// Pair is a user's key pair as far as notesync cares about it.
type Pair struct {
	Pub   string
	EPriv string
}

// PairFromPassphrase derives a deterministic pair from an alias and a
// passphrase, so the same credentials always open the same notes.
func PairFromPassphrase(alias, passphrase string, iterations int) Pair {
	if iterations <= 0 {
		iterations = DefaultIterations
	}
	epriv := pbkdf2.Key([]byte(passphrase), []byte("notesync/epriv/"+alias), iterations, KeySize, sha256.New)
	pub := sha256.Sum256(append([]byte(alias+"/"), epriv...))
	return Pair{
		Pub:   base64.RawURLEncoding.EncodeToString(pub[:]),
		EPriv: base64.RawURLEncoding.EncodeToString(epriv),
	}
}

// Identity is a mutable authentication state. Authentication may land after
// the session starts; mutations observe it on every call.
type Identity struct {
	mu       sync.RWMutex
	pair     *Pair
	onLogout []func()
}

// NewIdentity returns an unauthenticated identity.
func NewIdentity() *Identity {
	return &Identity{}
}

// Authenticated returns an identity already holding pair.
func Authenticated(pair Pair) *Identity {
	id := NewIdentity()
	id.Authenticate(pair)
	return id
}

// Authenticate installs the key pair.
func (i *Identity) Authenticate(pair Pair) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.pair = &pair
}

// Logout forgets the key pair and runs the OnLogout hooks.
func (i *Identity) Logout() {
	i.mu.Lock()
	i.pair = nil
	hooks := append([]func(){}, i.onLogout...)
	i.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
}

// OnLogout registers fn to run after every Logout.
func (i *Identity) OnLogout(fn func()) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.onLogout = append(i.onLogout, fn)
}

func (i *Identity) Authenticated() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.pair != nil
}

func (i *Identity) KeyMaterial() (core.KeyMaterial, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.pair == nil || i.pair.EPriv == "" {
		return core.KeyMaterial{}, false
	}
	return core.KeyMaterial{Pub: i.pair.Pub, EPriv: i.pair.EPriv}, true
}

var _ core.Identity = (*Identity)(nil)
