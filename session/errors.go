package session

import (
	"errors"
	"fmt"
	"os"
)

var (
	// ErrNotOpen is returned by operations on a Session that has not
	// successfully completed Open.
	ErrNotOpen = fmt.Errorf("session not open: %w", os.ErrInvalid)
	// ErrClosed is returned by operations on a Session after Close.
	ErrClosed = errors.New("session closed")
)

// KeyFormatError reports private key text that could not be parsed.
// It is returned by New, before any network I/O.
type KeyFormatError struct {
	Err error
}

func (e *KeyFormatError) Error() string {
	return "invalid private key: " + e.Err.Error()
}

func (e *KeyFormatError) Unwrap() error {
	return e.Err
}

// ConnectionError reports a failure to establish the SSH connection or its
// SFTP sub-channel. Op is one of "dial", "handshake" or "sftp".
type ConnectionError struct {
	Op   string
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to %s %s: %s", e.Op, e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}
