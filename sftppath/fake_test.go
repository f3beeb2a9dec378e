package sftppath_test

import (
	"fmt"
	"io"
	"io/fs"
	"slices"
	"strings"
	"sync"
)

// fakeConn serves a fixed set of files, relative to the login directory, and
// counts calls. Absolute paths are outside of it and never exist.
type fakeConn struct {
	mu       sync.Mutex
	files    map[string]string
	calls    map[string][]string
	listErr  error
	fetchErr error
}

func newFake(files map[string]string) *fakeConn {
	return &fakeConn{files: files, calls: map[string][]string{}}
}

func (f *fakeConn) record(op, p string) {
	f.calls[op] = append(f.calls[op], p)
}

func (f *fakeConn) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls[op])
}

func (f *fakeConn) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += len(c)
	}
	return n
}

func (f *fakeConn) ListDir(p string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("list", p)
	if f.listErr != nil {
		return nil, f.listErr
	}
	if p == "" || strings.HasPrefix(p, "/") {
		return nil, fmt.Errorf("list %q: %w", p, fs.ErrNotExist)
	}
	dir := strings.TrimSuffix(p, "/")
	prefix := ""
	if dir != "." {
		prefix = dir + "/"
	}
	var names []string
	for name := range f.files {
		rest, ok := strings.CutPrefix(name, prefix)
		if !ok {
			continue
		}
		child, _, _ := strings.Cut(rest, "/")
		if !slices.Contains(names, child) {
			names = append(names, child)
		}
	}
	if len(names) == 0 && prefix != "" {
		return nil, fmt.Errorf("list %s: %w", p, fs.ErrNotExist)
	}
	slices.Sort(names)
	return names, nil
}

func (f *fakeConn) Fetch(p string, w io.Writer) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("fetch", p)
	if f.fetchErr != nil {
		return 0, f.fetchErr
	}
	body, ok := f.files[p]
	if !ok {
		return 0, fmt.Errorf("open %s: %w", p, fs.ErrNotExist)
	}
	n, err := io.WriteString(w, body)
	return int64(n), err
}

func (f *fakeConn) Remove(p string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("remove", p)
	if _, ok := f.files[p]; !ok {
		return fmt.Errorf("remove %s: %w", p, fs.ErrNotExist)
	}
	delete(f.files, p)
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("close", "")
	return nil
}
