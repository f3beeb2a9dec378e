package sftppath

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"
)

var (
	// ErrMode is returned by Open for modes other than "rb" and "r".
	ErrMode = errors.New("unsupported open mode")
	// ErrReleased is returned by readers used after their Open call returned.
	ErrReleased = errors.New("buffer released")
)

// scoped is a buffer that stops working once released.
type scoped struct {
	buf      bytes.Buffer
	released bool
}

func (s *scoped) Read(b []byte) (int, error) {
	if s.released {
		return 0, ErrReleased
	}
	return s.buf.Read(b)
}

func (s *scoped) release() {
	s.released = true
	s.buf = bytes.Buffer{}
}

// Open downloads the whole file into memory and passes a reader over it to
// fn. Mode "rb" yields raw bytes; "r" also fails reads on invalid UTF-8. The
// buffer is released when Open returns, whether fn returned, failed or
// panicked.
func (p Path) Open(mode string, fn func(io.Reader) error) error {
	switch mode {
	case "rb", "r":
	default:
		return fmt.Errorf("%w %q", ErrMode, mode)
	}
	c, err := p.Conn()
	if err != nil {
		return err
	}
	s := &scoped{}
	defer s.release()
	if _, err := c.Fetch(p.Key(), &s.buf); err != nil {
		return err
	}
	var r io.Reader = s
	if mode == "r" {
		r = transform.NewReader(s, encoding.UTF8Validator)
	}
	return fn(r)
}

// ReadBytes returns the contents of the file.
func (p Path) ReadBytes() ([]byte, error) {
	var b []byte
	err := p.Open("rb", func(r io.Reader) error {
		var err error
		b, err = io.ReadAll(r)
		return err
	})
	return b, err
}

// ReadText returns the contents of the file, which must be valid UTF-8.
func (p Path) ReadText() (string, error) {
	var sb bytes.Buffer
	err := p.Open("r", func(r io.Reader) error {
		_, err := sb.ReadFrom(r)
		return err
	})
	if err != nil {
		return "", err
	}
	return sb.String(), nil
}

// Unlink removes the remote file at Key. Errors from the server, such as a
// missing file, are returned unchanged.
func (p Path) Unlink() error {
	c, err := p.Conn()
	if err != nil {
		return err
	}
	return c.Remove(p.Key())
}

// Mkdir does nothing. Directories cannot be created through a Path.
func (p Path) Mkdir() error {
	return nil
}

// Rmdir always fails. Directories cannot be removed through a Path.
func (p Path) Rmdir() error {
	return fmt.Errorf("rmdir %s: %w", p, errors.ErrUnsupported)
}
