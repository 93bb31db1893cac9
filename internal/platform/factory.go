package platform

import (
	"github.com/aretw0/notesync/pkg/adapters/sea"
	"github.com/aretw0/notesync/pkg/core"
	"github.com/aretw0/notesync/pkg/session"
)

// New opens the store and binds a session for identity on top of it.
//
//	s, err := notesync.New("./notes", identity, notesync.WithAdapter("sqlite"))
func New(uri string, identity core.Identity, opts ...Option) (*session.Session, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	stream, err := o.open(uri)
	if err != nil {
		return nil, err
	}

	cipher := o.cipher
	if cipher == nil {
		cipher = sea.NewCipher()
	}

	s, err := session.New(stream, cipher, identity, session.Config{
		Logger:            o.logger,
		Observer:          o.observer,
		ErrorHandler:      o.errorHandler,
		Debounce:          o.debounce,
		LoadTimeout:       o.loadTimeout,
		AuthRetryDelay:    o.authRetryDelay,
		DecodeConcurrency: o.decodeConcurrency,
		Clock:             o.clock,
	})
	if err != nil {
		if c, ok := stream.(interface{ Close() error }); ok && o.stream == nil {
			_ = c.Close()
		}
		return nil, err
	}
	return s, nil
}
