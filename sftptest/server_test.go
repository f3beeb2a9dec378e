package sftptest_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jpillora/sftppath/sftptest"
	"github.com/pkg/sftp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

func dial(t *testing.T, srv *sftptest.Server, user, password string) (*ssh.Client, error) {
	t.Helper()
	conn, err := srv.Dial(context.Background(), "tcp", srv.Addr())
	require.NoError(t, err)
	cfg := &ssh.ClientConfig{
		User:            user,
		Auth:            []ssh.AuthMethod{ssh.Password(password)},
		HostKeyCallback: ssh.FixedHostKey(srv.HostKey()),
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, srv.Addr(), cfg)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return ssh.NewClient(c, chans, reqs), nil
}

func TestServerSFTP(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "hello.txt"), []byte("hi"), 0o644))

	srv, err := sftptest.NewServer(root, sftptest.ServerWithMem(), sftptest.ServerWithPassword("foo", "bar"))
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background()))
	defer srv.Stop()

	client, err := dial(t, srv, "foo", "bar")
	require.NoError(t, err)
	defer client.Close()
	sc, err := sftp.NewClient(client)
	require.NoError(t, err)
	defer sc.Close()

	infos, err := sc.ReadDir(".")
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "hello.txt", infos[0].Name())
	assert.Equal(t, 1, srv.Connections())

	_, err = dial(t, srv, "foo", "wrong")
	assert.Error(t, err)
	assert.Equal(t, 1, srv.Connections())
}

func TestServerRejectsOtherSubsystems(t *testing.T) {
	t.Parallel()
	srv, err := sftptest.NewServer(t.TempDir(), sftptest.ServerWithNoAuth())
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background()))
	defer srv.Stop()
	require.NotZero(t, srv.Port())

	client, err := dial(t, srv, "anyone", "")
	require.NoError(t, err)
	defer client.Close()
	sess, err := client.NewSession()
	require.NoError(t, err)
	defer sess.Close()
	assert.Error(t, sess.RequestSubsystem("shell"))
}

func TestServerRequiresAuth(t *testing.T) {
	t.Parallel()
	_, err := sftptest.NewServer(t.TempDir())
	assert.Error(t, err)
}

func TestServerStopIdempotent(t *testing.T) {
	t.Parallel()
	srv, err := sftptest.NewServer(t.TempDir(), sftptest.ServerWithNoAuth(), sftptest.ServerWithMem())
	require.NoError(t, err)
	require.NoError(t, srv.Stop())
	require.NoError(t, srv.Start(context.Background()))
	require.Error(t, srv.Start(context.Background()))
	require.NoError(t, srv.Stop())
	require.NoError(t, srv.Stop())
}
