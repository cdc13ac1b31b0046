package xport

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDialPlainRoundTrip(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 5)
		if _, err := conn.Read(buf); err != nil {
			return
		}
		conn.Write(buf)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	c, err := Dial(ctx, ln.Addr().String(), Options{DialTimeout: time.Second})
	require.NoError(t, err)
	defer c.Close()
	require.False(t, c.IsTLS())

	_, err = c.Write([]byte("hello"))
	require.NoError(t, err)

	buf := make([]byte, 5)
	_, err = c.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "hello", string(buf))
}

func TestDialRefusedReturnsError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close() // nothing listening now

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err = Dial(ctx, addr, Options{DialTimeout: 500 * time.Millisecond})
	require.Error(t, err)
}

func TestTLSServerNameStripsPort(t *testing.T) {
	require.Equal(t, "example.com", tlsServerName("example.com:443"))
	require.Equal(t, "example.com", tlsServerName("example.com"))
	require.Equal(t, "::1", tlsServerName("[::1]:443"))
}
