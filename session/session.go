// Package session manages one SSH connection and the SFTP sub-channel
// running over it.
//
// A Session is single use: New stores credentials, Open performs the
// handshake and starts the "sftp" subsystem, Close tears both layers down.
// A Session that failed to open or has been closed cannot be opened again.
// Operations block until complete and callers are expected to serialise them.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jpillora/sftppath/session/key"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

type state int

const (
	stateNew state = iota
	stateOpen
	stateFailed
	stateClosed
)

// Session is an SSH connection plus an SFTP client.
type Session struct {
	id     string
	creds  Credentials
	signer ssh.Signer
	config config
	logger *slog.Logger

	mu      sync.Mutex
	state   state
	ssh     *ssh.Client
	sftp    *sftp.Client
	hostKey ssh.PublicKey
}

// New creates a Session without performing any network I/O. Private key text
// in creds is normalised and parsed here; a *KeyFormatError is returned when
// that fails.
func New(creds Credentials, opts ...Option) (*Session, error) {
	s := &Session{
		id:     uuid.NewString(),
		creds:  creds,
		signer: creds.Signer,
	}
	for _, o := range opts {
		o(&s.config)
	}
	if l := s.config.logger; l != nil {
		s.logger = l.With("session", s.id[:8], "addr", creds.Addr())
	}
	if s.signer == nil && strings.TrimSpace(creds.PrivateKey) != "" {
		signer, err := key.ParsePrivateKey(creds.PrivateKey, creds.Passphrase)
		if err != nil {
			return nil, &KeyFormatError{Err: err}
		}
		s.signer = signer
		s.debugf("Parsed %s private key", signer.PublicKey().Type())
	}
	return s, nil
}

// ID returns the identifier attached to this session's log records.
func (s *Session) ID() string {
	return s.id
}

// Addr returns the host:port this session connects to.
func (s *Session) Addr() string {
	return s.creds.Addr()
}

// Signer returns the parsed private key, or nil when none was given.
func (s *Session) Signer() ssh.Signer {
	return s.signer
}

// HostKey returns the host key accepted during Open.
func (s *Session) HostKey() ssh.PublicKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hostKey
}

// Open connects with a background context.
func (s *Session) Open() error {
	return s.OpenContext(context.Background())
}

// OpenContext dials the remote host, performs the SSH handshake and starts the
// SFTP subsystem. Any host key is accepted and recorded. Cancelling ctx, or
// reaching its deadline, aborts the dial and the handshake. Failures are
// reported as *ConnectionError and leave the Session unusable.
func (s *Session) OpenContext(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case stateOpen:
		return errors.New("session already open")
	case stateFailed, stateClosed:
		return fmt.Errorf("session cannot be reopened: %w", ErrClosed)
	}
	// until proven otherwise
	s.state = stateFailed
	addr := s.creds.Addr()
	dial := s.config.dial
	if dial == nil {
		d := &net.Dialer{Timeout: s.creds.Timeout}
		dial = d.DialContext
	}
	conn, err := dial(ctx, "tcp", addr)
	if err != nil {
		s.errorf("Failed to dial (%s)", err)
		return &ConnectionError{Op: "dial", Addr: addr, Err: err}
	}
	if d, ok := ctx.Deadline(); ok {
		conn.SetDeadline(d)
	}
	// cancelling ctx aborts the handshake by closing the connection
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, s.clientConfig())
	if !stop() && err == nil {
		sshConn.Close()
		err = ctx.Err()
	}
	if err != nil {
		conn.Close()
		if cerr := ctx.Err(); cerr != nil && !errors.Is(err, cerr) {
			err = fmt.Errorf("%w: %w", cerr, err)
		}
		s.errorf("Failed to handshake (%s)", err)
		return &ConnectionError{Op: "handshake", Addr: addr, Err: err}
	}
	conn.SetDeadline(time.Time{})
	client := ssh.NewClient(sshConn, chans, reqs)
	sc, err := sftp.NewClient(client)
	if err != nil {
		client.Close()
		s.errorf("Failed to start sftp subsystem (%s)", err)
		return &ConnectionError{Op: "sftp", Addr: addr, Err: err}
	}
	s.ssh = client
	s.sftp = sc
	s.state = stateOpen
	s.infof("Connected as %s (%s)", sshConn.User(), sshConn.ServerVersion())
	return nil
}

func (s *Session) acceptHostKey(hostname string, remote net.Addr, k ssh.PublicKey) error {
	s.hostKey = k
	s.debugf("Accepted %s host key %s for %s", k.Type(), key.Fingerprint(k), hostname)
	return nil
}

// Close closes the SFTP client and then the SSH connection. It returns
// ErrNotOpen when the Session never opened and nil when already closed.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case stateClosed:
		return nil
	case stateOpen:
	default:
		return ErrNotOpen
	}
	s.state = stateClosed
	err := ignoreClosed(s.sftp.Close())
	if cerr := ignoreClosed(s.ssh.Close()); err == nil {
		err = cerr
	}
	s.debugf("Closed")
	return err
}

func ignoreClosed(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func (s *Session) client() (*sftp.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case stateOpen:
		return s.sftp, nil
	case stateClosed:
		return nil, ErrClosed
	}
	return nil, ErrNotOpen
}

// ListDir returns the entry names of the remote directory p.
func (s *Session) ListDir(p string) ([]string, error) {
	c, err := s.client()
	if err != nil {
		return nil, err
	}
	infos, err := c.ReadDir(p)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(infos))
	for _, fi := range infos {
		names = append(names, fi.Name())
	}
	s.debugf("Listed %q (%d entries)", p, len(names))
	return names, nil
}

// Fetch copies the full contents of the remote file p into w.
func (s *Session) Fetch(p string, w io.Writer) (int64, error) {
	c, err := s.client()
	if err != nil {
		return 0, err
	}
	f, err := c.Open(p)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	n, err := io.Copy(w, f)
	if err != nil {
		return n, err
	}
	s.debugf("Fetched %q (%d bytes)", p, n)
	return n, nil
}

// Remove deletes the remote file p.
func (s *Session) Remove(p string) error {
	c, err := s.client()
	if err != nil {
		return err
	}
	if err := c.Remove(p); err != nil {
		return err
	}
	s.debugf("Removed %q", p)
	return nil
}

// logging helpers
func (s *Session) debugf(f string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(fmt.Sprintf(f, args...))
	}
}

func (s *Session) infof(f string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Info(fmt.Sprintf(f, args...))
	}
}

func (s *Session) errorf(f string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Error(fmt.Sprintf(f, args...))
	}
}
