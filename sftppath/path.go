package sftppath

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"

	"github.com/jpillora/sftppath/session"
)

// Conn is the remote file interface paths operate on. *session.Session
// implements it.
type Conn interface {
	ListDir(p string) ([]string, error)
	Fetch(p string, w io.Writer) (int64, error)
	Remove(p string) error
	Close() error
}

var _ Conn = (*session.Session)(nil)

// handle is shared by a path and everything derived from it.
type handle struct {
	mu    sync.Mutex
	conn  Conn
	creds session.Credentials
	opts  []session.Option
}

// Path is an immutable remote path. The zero value has no host and no
// credentials.
type Path struct {
	segs segments
	h    *handle
}

// New builds a path from a host name and remote segments. Each argument may
// contain several "/" separated segments; empty and "." segments are dropped
// and an "sftp://" prefix on the first argument is ignored. No network I/O
// happens until an operation needs it.
func New(creds session.Credentials, segs ...string) Path {
	return Path{
		segs: parseSegments(segs...),
		h:    &handle{creds: creds},
	}
}

// Parse parses an "sftp://host/a/b" URL.
func Parse(raw string, creds session.Credentials) (Path, error) {
	if !strings.HasPrefix(raw, scheme) {
		return Path{}, fmt.Errorf("invalid path %q: missing %s scheme", raw, scheme)
	}
	if rest := raw[len(scheme):]; rest == "" || rest[0] == '/' {
		return Path{}, fmt.Errorf("invalid path %q: missing hostname", raw)
	}
	return New(creds, raw), nil
}

// WithConn returns p bound to c. Paths derived from the result share c.
func (p Path) WithConn(c Conn) Path {
	h := p.handle()
	return Path{segs: p.segs, h: &handle{conn: c, creds: h.creds, opts: h.opts}}
}

// WithOptions returns p with options applied to the session it creates.
func (p Path) WithOptions(opts ...session.Option) Path {
	h := p.handle()
	h.mu.Lock()
	defer h.mu.Unlock()
	return Path{segs: p.segs, h: &handle{
		conn:  h.conn,
		creds: h.creds,
		opts:  append(slices.Clip(h.opts), opts...),
	}}
}

func (p Path) handle() *handle {
	if p.h == nil {
		return &handle{}
	}
	return p.h
}

// listKey is Key in the form ListDir expects. The login directory is ".".
func (p Path) listKey() string {
	if k := p.Key(); k != "" {
		return k
	}
	return "."
}

func (p Path) derive(segs segments) Path {
	return Path{segs: segs, h: p.h}
}

// Conn returns the shared connection, opening a session on first use. The
// session connects to Hostname() using the path's credentials. A failed open
// is not cached, so a later call tries again.
func (p Path) Conn() (Conn, error) {
	if p.h == nil {
		return nil, errors.New("path has no credentials")
	}
	h := p.h
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conn != nil {
		return h.conn, nil
	}
	creds := h.creds
	creds.Hostname = p.Hostname()
	if creds.Hostname == "" {
		return nil, errors.New("path has no hostname")
	}
	s, err := session.New(creds, h.opts...)
	if err != nil {
		return nil, err
	}
	if err := s.Open(); err != nil {
		return nil, err
	}
	h.conn = s
	return s, nil
}

// Close closes the shared session. It does nothing when no session was
// created. The closed session stays attached, so paths sharing it fail with
// session.ErrClosed rather than reconnecting.
func (p Path) Close() error {
	if p.h == nil {
		return nil
	}
	h := p.h
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conn == nil {
		return nil
	}
	return h.conn.Close()
}

// Join appends elements, like the "/" operator on local paths. Leading
// slashes never make an element absolute.
func (p Path) Join(elem ...string) Path {
	segs := p.segs
	for _, e := range elem {
		segs = segs.append(strings.TrimLeft(e, "/"))
	}
	return p.derive(segs)
}

// Hostname returns the first segment.
func (p Path) Hostname() string {
	return p.segs.host()
}

// Key returns the remote path relative to the login directory: the segments
// after the host joined by "/", with a trailing "/" when Suffix is empty. A
// host only path has an empty key.
func (p Path) Key() string {
	rem := p.segs.remote()
	if len(rem) == 0 {
		return ""
	}
	k := strings.Join(rem, "/")
	if p.Suffix() == "" {
		k += "/"
	}
	return k
}

// Name returns the last remote segment, or "" for a host only path.
func (p Path) Name() string {
	rem := p.segs.remote()
	if len(rem) == 0 {
		return ""
	}
	return rem[len(rem)-1]
}

// Suffix returns the extension of Name, such as ".txt".
func (p Path) Suffix() string {
	return suffix(p.Name())
}

func (p Path) String() string {
	return scheme + strings.Join(p.segs, "/")
}

// Equal reports whether p and q have the same segments. Sessions are not
// compared.
func (p Path) Equal(q Path) bool {
	return slices.Equal(p.segs, q.segs)
}

// Parent returns p without its last segment. The parent of a host only path
// is the path itself.
func (p Path) Parent() Path {
	return p.derive(p.segs.parent())
}

// Parents returns the ancestors of p, nearest first, ending with the host
// only path.
func (p Path) Parents() []Path {
	var out []Path
	for segs := p.segs; len(segs) > 1; {
		segs = segs.parent()
		out = append(out, p.derive(segs))
	}
	return out
}
