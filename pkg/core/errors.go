package core

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	ErrUnauthenticated = errors.New("identity is not authenticated")
	ErrDecode          = errors.New("undecodable note payload")
	ErrEncodeDegraded  = errors.New("encryption unavailable, payload left in plain form")
	ErrRemoteWrite     = errors.New("remote write rejected")
	ErrNotFound        = errors.New("note not found")
	ErrEmptyNote       = errors.New("note has neither title nor content")
	ErrDuplicateLabel  = errors.New("duplicate label")
	ErrInvalidColor    = errors.New("color is not part of the palette")
	ErrNoCipher        = errors.New("cipher is required")
	ErrClosed          = errors.New("session is closed")
)

// DecodeError describes a remote record that could not be turned into a note.
type DecodeError struct {
	Key    string
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	msg := fmt.Sprintf("decode %s: %s", e.Key, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// WriteError describes a write or tombstone the remote store did not accept.
type WriteError struct {
	Key string
	Op  string
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Key, e.Err)
}

func (e *WriteError) Is(target error) bool {
	return target == ErrRemoteWrite
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
