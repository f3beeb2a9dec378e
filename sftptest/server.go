// Package sftptest runs an in-process SSH server that exposes only the
// "sftp" subsystem, rooted at a local directory.
package sftptest

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/jpillora/sftppath/session"
	"github.com/jpillora/sftppath/session/key"
	"github.com/jpillora/sftppath/xnet"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// ServerOption configures a Server.
type ServerOption func(*serverConfig)

type serverConfig struct {
	host     string
	mem      bool
	keySeed  string
	user     string
	password string
	authKeys key.Map
	noAuth   bool
	readOnly bool
	logger   *slog.Logger
}

// ServerWithPassword accepts user with password.
func ServerWithPassword(user, password string) ServerOption {
	return func(c *serverConfig) {
		c.user = user
		c.password = password
	}
}

// ServerWithAuthorizedKey accepts any user presenting k.
func ServerWithAuthorizedKey(k ssh.PublicKey) ServerOption {
	return func(c *serverConfig) {
		if c.authKeys == nil {
			c.authKeys = key.Map{}
		}
		c.authKeys[string(k.Marshal())] = ""
	}
}

// ServerWithAuthorizedKeys accepts any key in m.
func ServerWithAuthorizedKeys(m key.Map) ServerOption {
	return func(c *serverConfig) {
		if c.authKeys == nil {
			c.authKeys = key.Map{}
		}
		for k, v := range m {
			c.authKeys[k] = v
		}
	}
}

// ServerWithNoAuth disables authentication.
func ServerWithNoAuth() ServerOption {
	return func(c *serverConfig) {
		c.noAuth = true
	}
}

// ServerWithMem serves over an in-memory listener instead of TCP. Clients
// must connect through Server.Dial.
func ServerWithMem() ServerOption {
	return func(c *serverConfig) {
		c.mem = true
	}
}

// ServerWithKeySeed derives the ed25519 host key from seed.
func ServerWithKeySeed(seed string) ServerOption {
	return func(c *serverConfig) {
		c.keySeed = seed
	}
}

// ServerWithReadOnly rejects every write, including removals.
func ServerWithReadOnly() ServerOption {
	return func(c *serverConfig) {
		c.readOnly = true
	}
}

func ServerWithLogger(l *slog.Logger) ServerOption {
	return func(c *serverConfig) {
		c.logger = l
	}
}

// Server is an SSH server with the SFTP subsystem as its only service.
type Server struct {
	root      string
	config    serverConfig
	sshConfig *ssh.ServerConfig
	hostKey   ssh.Signer
	conns     atomic.Int64

	mu       sync.Mutex
	listener xnet.ListenerDialer
	cancel   context.CancelFunc
	done     chan struct{}
	active   map[ssh.Conn]struct{}
}

// NewServer creates a Server serving root. Without an auth option the server
// has no way to authenticate anyone, so one is required.
func NewServer(root string, opts ...ServerOption) (*Server, error) {
	c := serverConfig{host: "127.0.0.1", keySeed: "sftptest-host-key"}
	for _, o := range opts {
		o(&c)
	}
	signer, err := key.SignerFromSeed(c.keySeed)
	if err != nil {
		return nil, fmt.Errorf("failed to generate host key: %w", err)
	}
	s := &Server{
		root:    root,
		config:  c,
		hostKey: signer,
		active:  map[ssh.Conn]struct{}{},
	}
	sc := &ssh.ServerConfig{}
	sc.AddHostKey(signer)
	switch {
	case c.noAuth:
		sc.NoClientAuth = true
	case c.password != "" || len(c.authKeys) > 0:
		if c.password != "" {
			sc.PasswordCallback = s.checkPassword
		}
		if len(c.authKeys) > 0 {
			sc.PublicKeyCallback = s.checkKey
		}
	default:
		return nil, errors.New("missing auth option")
	}
	s.sshConfig = sc
	return s, nil
}

func (s *Server) checkPassword(conn ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
	if conn.User() == s.config.user && string(pass) == s.config.password {
		s.debugf("User '%s' authenticated with password", conn.User())
		return nil, nil
	}
	s.debugf("Authentication failed for '%s'", conn.User())
	return nil, errors.New("denied")
}

func (s *Server) checkKey(conn ssh.ConnMetadata, k ssh.PublicKey) (*ssh.Permissions, error) {
	if s.config.authKeys.HasKey(k) {
		s.debugf("User '%s' authenticated with key %s", conn.User(), key.Fingerprint(k))
		return nil, nil
	}
	return nil, errors.New("denied")
}

// Start begins accepting connections in the background. The server stops
// when ctx is cancelled or Stop is called.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return errors.New("server already started")
	}
	var l xnet.ListenerDialer
	if s.config.mem {
		l = xnet.NewMem()
	} else {
		tl, err := xnet.NewTCP(s.config.host)
		if err != nil {
			return err
		}
		l = tl
	}
	s.listener = l
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go func() {
		<-ctx.Done()
		l.Close()
	}()
	go s.serve(l)
	s.infof("Listening on %s (root %s)", l.Addr(), s.root)
	return nil
}

func (s *Server) serve(l net.Listener) {
	defer close(s.done)
	for {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		go s.handleConn(conn)
	}
}

// Stop closes the listener and every open connection.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.listener == nil {
		s.mu.Unlock()
		return nil
	}
	s.cancel()
	for c := range s.active {
		c.Close()
	}
	done := s.done
	s.mu.Unlock()
	<-done
	return nil
}

func (s *Server) handleConn(netConn net.Conn) {
	sshConn, chans, reqs, err := ssh.NewServerConn(netConn, s.sshConfig)
	if err != nil {
		if err != io.EOF {
			s.debugf("Failed to handshake (%s)", err)
		}
		netConn.Close()
		return
	}
	s.conns.Add(1)
	s.mu.Lock()
	s.active[sshConn] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.active, sshConn)
		s.mu.Unlock()
	}()
	s.debugf("New SSH connection from %s (%s)", sshConn.RemoteAddr(), sshConn.ClientVersion())
	go ssh.DiscardRequests(reqs)
	for nc := range chans {
		if nc.ChannelType() != "session" {
			nc.Reject(ssh.UnknownChannelType, "unknown channel type: "+nc.ChannelType())
			continue
		}
		ch, chReqs, err := nc.Accept()
		if err != nil {
			s.errorf("Could not accept channel (%s)", err)
			continue
		}
		go s.handleSession(ch, chReqs)
	}
}

func (s *Server) handleSession(ch ssh.Channel, reqs <-chan *ssh.Request) {
	for req := range reqs {
		ok := req.Type == "subsystem" && subsystemName(req.Payload) == "sftp"
		if req.WantReply {
			req.Reply(ok, nil)
		}
		if !ok {
			s.debugf("Rejected session request %q", req.Type)
			ch.Close()
			continue
		}
		go s.serveSFTP(ch)
	}
}

// subsystemName decodes [uint32 length][name].
func subsystemName(payload []byte) string {
	if len(payload) < 4 {
		return ""
	}
	n := binary.BigEndian.Uint32(payload)
	if uint32(len(payload)-4) != n {
		return ""
	}
	return string(payload[4:])
}

func (s *Server) serveSFTP(ch ssh.Channel) {
	defer ch.Close()
	opts := []sftp.ServerOption{sftp.WithServerWorkingDirectory(s.root)}
	if s.config.readOnly {
		opts = append(opts, sftp.ReadOnly())
	}
	server, err := sftp.NewServer(ch, opts...)
	if err != nil {
		s.errorf("Failed to create SFTP server: %v", err)
		return
	}
	if err := server.Serve(); err != nil && err != io.EOF {
		s.debugf("SFTP server error: %s", err)
	} else {
		s.debugf("SFTP session served")
	}
}

// Dial connects to the server regardless of addr. It can be passed to
// session.WithDialer.
func (s *Server) Dial(ctx context.Context, network, addr string) (net.Conn, error) {
	s.mu.Lock()
	l := s.listener
	s.mu.Unlock()
	if l == nil {
		return nil, errors.New("server not started")
	}
	return l.Dial(ctx, network, addr)
}

// Addr returns host:port. In-memory servers report the configured host and
// port 0.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.Host(), strconv.Itoa(s.Port()))
}

func (s *Server) Host() string {
	return s.config.host
}

func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return 0
	}
	return xnet.Port(s.listener)
}

func (s *Server) HostKey() ssh.PublicKey {
	return s.hostKey.PublicKey()
}

func (s *Server) Root() string {
	return s.root
}

// Connections returns the number of SSH handshakes completed so far.
func (s *Server) Connections() int {
	return int(s.conns.Load())
}

// Credentials returns credentials that reach this server over TCP, using the
// configured password when there is one.
func (s *Server) Credentials() session.Credentials {
	return session.Credentials{
		Hostname: s.Host(),
		Port:     s.Port(),
		Username: s.config.user,
		Password: s.config.password,
	}
}

func (s *Server) debugf(f string, args ...interface{}) {
	if s.config.logger != nil {
		s.config.logger.Debug(fmt.Sprintf(f, args...))
	}
}

func (s *Server) infof(f string, args ...interface{}) {
	if s.config.logger != nil {
		s.config.logger.Info(fmt.Sprintf(f, args...))
	}
}

func (s *Server) errorf(f string, args ...interface{}) {
	if s.config.logger != nil {
		s.config.logger.Error(fmt.Sprintf(f, args...))
	}
}
