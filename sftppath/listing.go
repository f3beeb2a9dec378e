package sftppath

import (
	"errors"
	"io/fs"
	"iter"

	mapset "github.com/deckarep/golang-set/v2"
)

// Iterdir lists the direct children of p. The listing is requested each time
// the sequence is ranged over. Errors are yielded once, with a zero Path.
func (p Path) Iterdir() iter.Seq2[Path, error] {
	return func(yield func(Path, error) bool) {
		c, err := p.Conn()
		if err != nil {
			yield(Path{}, err)
			return
		}
		names, err := c.ListDir(p.listKey())
		if err != nil {
			yield(Path{}, err)
			return
		}
		for _, name := range names {
			if name == "." || name == ".." {
				continue
			}
			if !yield(p.Join(name), nil) {
				return
			}
		}
	}
}

// ReadDir collects Iterdir.
func (p Path) ReadDir() ([]Path, error) {
	var out []Path
	for child, err := range p.Iterdir() {
		if err != nil {
			return nil, err
		}
		out = append(out, child)
	}
	return out, nil
}

// Rglob is Iterdir. The pattern is ignored and there is no recursion.
func (p Path) Rglob(pattern string) iter.Seq2[Path, error] {
	return p.Iterdir()
}

// Exists lists the parent of p once and reports whether p is one of its
// entries or an ancestor of one. A missing parent yields false. A host only
// path exists when the login directory can be listed. Other listing errors
// are returned unchanged.
func (p Path) Exists() (bool, error) {
	if len(p.segs) <= 1 {
		c, err := p.Conn()
		if err != nil {
			return false, err
		}
		_, err = c.ListDir(p.listKey())
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return err == nil, err
	}
	seen := mapset.NewThreadUnsafeSet[string]()
	for entry, err := range p.Parent().Iterdir() {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		seen.Add(entry.String())
		for _, a := range entry.Parents() {
			seen.Add(a.String())
		}
	}
	return seen.Contains(p.String()), nil
}

// IsFile reports whether p has a suffix and is listed in its parent. Paths
// without a suffix are never files and need no network I/O.
func (p Path) IsFile() (bool, error) {
	if p.Suffix() == "" {
		return false, nil
	}
	for entry, err := range p.Parent().Iterdir() {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if entry.Equal(p) {
			return true, nil
		}
	}
	return false, nil
}

// IsDir reports whether p has no suffix and exists.
func (p Path) IsDir() (bool, error) {
	if p.Suffix() != "" || len(p.segs) == 0 {
		return false, nil
	}
	return p.Exists()
}
