package xnet_test

import (
	"context"
	"io"
	"testing"

	"github.com/jpillora/sftppath/xnet"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, ld xnet.ListenerDialer) {
	t.Helper()
	defer ld.Close()
	go func() {
		c, err := ld.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		io.Copy(c, c)
	}()
	conn, err := ld.Dial(context.Background(), "tcp", "ignored.example.com:22")
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte("ping"))
	require.NoError(t, err)
	buf := make([]byte, 4)
	_, err = io.ReadFull(conn, buf)
	require.NoError(t, err)
	require.Equal(t, "ping", string(buf))
}

func TestMem(t *testing.T) {
	t.Parallel()
	ld := xnet.NewMem()
	require.Equal(t, 0, xnet.Port(ld))
	roundTrip(t, ld)
}

func TestTCP(t *testing.T) {
	t.Parallel()
	ld, err := xnet.NewTCP("127.0.0.1")
	require.NoError(t, err)
	require.NotZero(t, xnet.Port(ld))
	roundTrip(t, ld)
}
