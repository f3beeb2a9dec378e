// Package sftppath provides Path, a path-like handle onto a file hierarchy
// on a remote host reached over SFTP.
//
// A Path is a host name followed by remote segments:
//
//	p := sftppath.New(creds, "host.example.com", "dir", "file.txt")
//	p.String()          // sftp://host.example.com/dir/file.txt
//	p.Key()             // dir/file.txt
//	p.Parent().Key()    // dir/
//
// Paths are values. Every path derived from another (Join, Parent, Parents,
// Iterdir) shares the same lazily created session, so walking a tree opens a
// single connection. The session is created the first time a path needs the
// network and lives until Close.
//
// SFTP "stat" is never used. Existence is answered by listing the parent
// directory and a path is considered a directory when its last segment has no
// suffix. Names such as "README" are therefore treated as directories.
package sftppath
