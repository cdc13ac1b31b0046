// Package client implements a single-connection RPC client: one dialed
// Connection guarded by a mutex, serialising every request/response
// round-trip so at most one request is ever on the wire at a time.
/*
 * Copyright (c) 2018-2023, NVIDIA CORPORATION. All rights reserved.
 */
package client

import (
	"context"
	"crypto/tls"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cxdb-io/cxdbgo/cmn"
	"github.com/cxdb-io/cxdbgo/cmn/debug"
	"github.com/cxdb-io/cxdbgo/protocol"
	"github.com/cxdb-io/cxdbgo/rpc"
	"github.com/cxdb-io/cxdbgo/stats"
	"github.com/cxdb-io/cxdbgo/xport"
)

// Options configures dial and per-request behavior.
type Options struct {
	DialTimeout    time.Duration
	RequestTimeout time.Duration
	ClientTag      string
	TLSConfig      *tls.Config
	Stats          *stats.Tracker // optional; nil disables metrics
}

func (o Options) withDefaults() Options {
	if o.DialTimeout <= 0 {
		o.DialTimeout = 5 * time.Second
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 30 * time.Second
	}
	return o
}

// Client owns one Connection and serialises every round-trip on it. All
// fields below the connection are safe to read without the lock.
type Client struct {
	mu     sync.Mutex
	conn   *xport.Connection
	closed atomic.Bool
	nextID atomic.Uint64 // pre-incremented; first req_id is 1
	sessID atomic.Uint64
	tag    string
	opts   Options
}

// Dial connects to addr, completes the HELLO handshake, and returns a
// ready Client. Any handshake failure closes the underlying connection.
func Dial(ctx context.Context, addr string, opts Options) (*Client, error) {
	opts = opts.withDefaults()
	conn, err := xport.Dial(ctx, addr, xport.Options{DialTimeout: opts.DialTimeout, TLSConfig: opts.TLSConfig})
	if err != nil {
		return nil, err
	}

	c := &Client{conn: conn, tag: opts.ClientTag, opts: opts}

	helloPayload := protocol.EncodeHello(opts.ClientTag)
	frame, err := c.sendRequest(ctx, protocol.MsgHello, helloPayload)
	if err != nil {
		c.Close()
		return nil, err
	}
	if frame.MsgType != protocol.MsgHello {
		c.Close()
		return nil, cmn.NewInvalidResponse("HELLO handshake: unexpected response message type")
	}
	resp, err := protocol.DecodeHelloResponse(frame.Payload)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.sessID.Store(resp.SessionID)
	return c, nil
}

func (c *Client) SessionID() uint64 { return c.sessID.Load() }
func (c *Client) ClientTag() string { return c.tag }
func (c *Client) IsClosed() bool    { return c.closed.Load() }

// Close shuts down the underlying connection. Safe to call more than once.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Close()
}

// sendRequest implements the Client round-trip contract from the
// protocol's send_request: pre-checks, deadline computation, one
// lock-held write+read, and MSG_ERROR translation.
func (c *Client) sendRequest(ctx context.Context, msgType uint16, payload []byte) (protocol.Frame, error) {
	if c.closed.Load() {
		return protocol.Frame{}, cmn.NewClientClosedError()
	}
	if ctx.Err() == context.Canceled {
		return protocol.Frame{}, cmn.NewCancelledError()
	}

	deadline := time.Now().Add(c.opts.RequestTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if !deadline.After(time.Now()) {
		return protocol.Frame{}, cmn.NewTimeoutError()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.conn.SetDeadline(deadline); err != nil {
		return protocol.Frame{}, err
	}
	reqID := c.nextID.Add(1)
	// nextID is only ever incremented here, with c.mu held, so no two
	// in-flight requests on this Client can share a req_id.
	debug.Assert(reqID != 0, "client: req_id wrapped to zero")

	if err := protocol.WriteFrame(c.conn, protocol.Frame{MsgType: msgType, ReqID: reqID, Payload: payload}); err != nil {
		return protocol.Frame{}, err
	}
	resp, err := protocol.ReadFrame(c.conn)
	if err != nil {
		return protocol.Frame{}, err
	}
	c.conn.SetDeadline(time.Time{})

	if resp.MsgType == protocol.MsgError {
		code, detail, derr := protocol.DecodeServerError(resp.Payload)
		if derr != nil {
			return protocol.Frame{}, derr
		}
		return protocol.Frame{}, cmn.NewServerError(code, detail)
	}
	return resp, nil
}

func (c *Client) call(ctx context.Context, op rpc.Op, req, resp any) error {
	start := time.Now()
	payload, err := rpc.Encode(req)
	if err != nil {
		c.observe(op.Name, start, err)
		return err
	}
	frame, err := c.sendRequest(ctx, op.MsgType, payload)
	if err != nil {
		c.observe(op.Name, start, err)
		return err
	}
	if resp == nil || len(frame.Payload) == 0 {
		c.observe(op.Name, start, nil)
		return nil
	}
	err = rpc.Decode(frame.Payload, resp)
	c.observe(op.Name, start, err)
	return err
}

// observe records one completed op's latency and outcome, a no-op when
// the client was dialed without a stats.Tracker.
func (c *Client) observe(op string, start time.Time, err error) {
	if c.opts.Stats == nil {
		return
	}
	kind := ""
	if err != nil {
		var e *cmn.Error
		if errors.As(err, &e) {
			kind = e.Kind.String()
		} else {
			kind = "other"
		}
	}
	c.opts.Stats.ObserveRequest(op, time.Since(start).Seconds(), kind)
}

func (c *Client) CreateContext(ctx context.Context, parentTurnID uint64) (uint64, error) {
	var resp rpc.CreateContextResponse
	err := c.call(ctx, rpc.OpCreateContext, rpc.CreateContextRequest{ParentTurnID: parentTurnID}, &resp)
	return resp.TurnID, err
}

func (c *Client) ForkContext(ctx context.Context, turnID uint64) (uint64, error) {
	var resp rpc.ForkContextResponse
	err := c.call(ctx, rpc.OpForkContext, rpc.ForkContextRequest{TurnID: turnID}, &resp)
	return resp.TurnID, err
}

func (c *Client) GetHead(ctx context.Context, contextID uint64) (uint64, error) {
	var resp rpc.GetHeadResponse
	err := c.call(ctx, rpc.OpGetHead, rpc.GetHeadRequest{ContextID: contextID}, &resp)
	return resp.TurnID, err
}

func (c *Client) AppendTurn(ctx context.Context, parentTurnID uint64, payload []byte) (uint64, error) {
	var resp rpc.AppendTurnResponse
	err := c.call(ctx, rpc.OpAppendTurn, rpc.AppendTurnRequest{ParentTurnID: parentTurnID, Payload: payload}, &resp)
	return resp.TurnID, err
}

func (c *Client) AppendTurnWithFS(ctx context.Context, parentTurnID uint64, payload, rootHash []byte) (uint64, error) {
	var resp rpc.AppendTurnWithFSResponse
	req := rpc.AppendTurnWithFSRequest{ParentTurnID: parentTurnID, Payload: payload, RootHash: rootHash}
	err := c.call(ctx, rpc.OpAppendTurnWithFS, req, &resp)
	return resp.TurnID, err
}

func (c *Client) GetLast(ctx context.Context, contextID uint64, count uint32) ([]uint64, error) {
	var resp rpc.GetLastResponse
	err := c.call(ctx, rpc.OpGetLast, rpc.GetLastRequest{ContextID: contextID, Count: count}, &resp)
	return resp.TurnIDs, err
}

func (c *Client) AttachFS(ctx context.Context, turnID uint64, rootHash []byte) error {
	return c.call(ctx, rpc.OpAttachFS, rpc.AttachFSRequest{TurnID: turnID, RootHash: rootHash}, &rpc.AttachFSResponse{})
}

func (c *Client) PutBlob(ctx context.Context, data []byte) (hash []byte, wasNew bool, err error) {
	var resp rpc.PutBlobResponse
	err = c.call(ctx, rpc.OpPutBlob, rpc.PutBlobRequest{Data: data}, &resp)
	return resp.Hash, resp.WasNew, err
}

func (c *Client) PutBlobIfAbsent(ctx context.Context, hash, data []byte) (wasNew bool, err error) {
	var resp rpc.PutBlobIfAbsentResponse
	err = c.call(ctx, rpc.OpPutBlobIfAbsent, rpc.PutBlobIfAbsentRequest{Hash: hash, Data: data}, &resp)
	return resp.WasNew, err
}
