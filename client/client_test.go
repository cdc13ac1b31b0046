package client

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cxdb-io/cxdbgo/protocol"
)

// stubServer accepts exactly one connection and lets the test script its
// single response frame.
func stubServer(t *testing.T, respond func(req protocol.Frame) protocol.Frame) (addr string, stop func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		req, err := protocol.ReadFrame(conn)
		if err != nil {
			return
		}
		protocol.WriteFrame(conn, respond(req))
	}()

	return ln.Addr().String(), func() { ln.Close() }
}

func TestHelloOK(t *testing.T) {
	addr, stop := stubServer(t, func(req protocol.Frame) protocol.Frame {
		payload := make([]byte, 10)
		payload[0] = 123
		payload[8] = 1
		return protocol.Frame{MsgType: protocol.MsgHello, ReqID: req.ReqID, Payload: payload}
	})
	defer stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	c, err := Dial(ctx, addr, Options{ClientTag: "test-client"})
	require.NoError(t, err)
	defer c.Close()

	require.Equal(t, uint64(123), c.SessionID())
}

func TestHelloWrongMsgTypeIsRejected(t *testing.T) {
	addr, stop := stubServer(t, func(req protocol.Frame) protocol.Frame {
		// A well-formed but non-HELLO, non-ERROR response must not be
		// accepted as a HELLO reply.
		return protocol.Frame{MsgType: protocol.MsgHeadGet, ReqID: req.ReqID, Payload: make([]byte, 10)}
	})
	defer stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	c, err := Dial(ctx, addr, Options{ClientTag: "test-client"})
	require.Error(t, err)
	require.Nil(t, c)
}

func TestHelloError(t *testing.T) {
	addr, stop := stubServer(t, func(req protocol.Frame) protocol.Frame {
		return protocol.Frame{
			MsgType: protocol.MsgError,
			ReqID:   req.ReqID,
			Payload: protocol.EncodeServerError(404, "not found"),
		}
	})
	defer stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	c, err := Dial(ctx, addr, Options{ClientTag: "test-client"})
	require.Error(t, err)
	require.Nil(t, c)
}
