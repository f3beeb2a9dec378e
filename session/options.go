package session

import (
	"context"
	"log/slog"
	"net"
)

// DialFunc opens the network connection the SSH handshake runs over.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Option configures a Session.
type Option func(*config)

type config struct {
	logger *slog.Logger
	dial   DialFunc
}

// WithLogger enables logging. Sessions are silent without one.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithDialer replaces the default TCP dialer, for example with an in-memory
// listener in tests.
func WithDialer(d DialFunc) Option {
	return func(c *config) {
		c.dial = d
	}
}
