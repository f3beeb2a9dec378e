// Package xnet provides listeners that double as dialers, so an SSH server
// and its clients can be wired together without going through DNS.
package xnet

import (
	"context"
	"fmt"
	"net"

	"google.golang.org/grpc/test/bufconn"
)

// ListenerDialer is a net.Listener that can also dial itself. Dial matches
// session.DialFunc.
type ListenerDialer interface {
	net.Listener
	Dial(ctx context.Context, network, addr string) (net.Conn, error)
}

// SSH max packet size
const memBufferSize = 32 * 1024

type mem struct {
	*bufconn.Listener
}

// NewMem returns an in-memory ListenerDialer. Addresses passed to Dial are
// ignored; every dial reaches this listener.
func NewMem() ListenerDialer {
	return &mem{Listener: bufconn.Listen(memBufferSize)}
}

func (m *mem) Dial(ctx context.Context, network, addr string) (net.Conn, error) {
	return m.Listener.DialContext(ctx)
}

type tcp struct {
	net.Listener
	dialer net.Dialer
}

// NewTCP listens on host with an OS assigned port. Dial always connects to
// that port, whatever address it is given.
func NewTCP(host string) (ListenerDialer, error) {
	l, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", host, err)
	}
	return &tcp{Listener: l}, nil
}

func (t *tcp) Dial(ctx context.Context, network, addr string) (net.Conn, error) {
	return t.dialer.DialContext(ctx, "tcp", t.Addr().String())
}

// Port returns the TCP port of l, or 0 for listeners without one.
func Port(l net.Listener) int {
	if a, ok := l.Addr().(*net.TCPAddr); ok {
		return a.Port
	}
	return 0
}
