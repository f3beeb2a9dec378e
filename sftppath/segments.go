package sftppath

import (
	"slices"
	"strings"
)

const scheme = "sftp://"

// segments is a host name followed by remote path components. It never
// contains "", "." or a component with a "/".
type segments []string

func parseSegments(parts ...string) segments {
	var segs segments
	for i, part := range parts {
		if i == 0 {
			part = strings.TrimPrefix(part, scheme)
		}
		segs = segs.append(part)
	}
	return segs
}

// append returns a new slice, leaving s untouched.
func (s segments) append(part string) segments {
	out := slices.Clip(s)
	for _, seg := range strings.Split(part, "/") {
		if seg == "" || seg == "." {
			continue
		}
		out = append(out, seg)
	}
	return out
}

func (s segments) host() string {
	if len(s) == 0 {
		return ""
	}
	return s[0]
}

// remote returns the components after the host.
func (s segments) remote() []string {
	if len(s) < 2 {
		return nil
	}
	return s[1:]
}

func (s segments) parent() segments {
	if len(s) <= 1 {
		return s
	}
	return slices.Clip(s[:len(s)-1])
}

// suffix returns the final extension of name, including the dot, following
// the usual rules: dot files like ".bashrc" and names ending in a dot have
// none.
func suffix(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i <= 0 || i == len(name)-1 {
		return ""
	}
	return name[i:]
}
