// Package xport implements the Connection abstraction: a plain or
// TLS-wrapped byte stream with uniform deadline handling, dialed by
// iterating every resolved address in order.
/*
 * Copyright (c) 2018-2023, NVIDIA CORPORATION. All rights reserved.
 */
package xport

import (
	"context"
	"crypto/tls"
	"net"
	"strings"
	"time"

	"github.com/cxdb-io/cxdbgo/cmn"
)

// Connection wraps one net.Conn, plain or TLS, behind a single read/write/
// deadline/close surface so the rest of the stack never branches on the
// underlying transport.
type Connection struct {
	conn net.Conn
	tls  bool
}

func (c *Connection) Read(p []byte) (int, error) {
	n, err := c.conn.Read(p)
	if err != nil {
		return n, cmn.NewIoError(err)
	}
	return n, nil
}

func (c *Connection) Write(p []byte) (int, error) {
	n, err := c.conn.Write(p)
	if err != nil {
		return n, cmn.NewIoError(err)
	}
	return n, nil
}

// SetDeadline applies t uniformly to read and write. A zero Time clears
// any previously set deadline, matching set_deadline(None).
func (c *Connection) SetDeadline(t time.Time) error {
	if err := c.conn.SetDeadline(t); err != nil {
		return cmn.NewIoError(err)
	}
	return nil
}

func (c *Connection) Close() error {
	if err := c.conn.Close(); err != nil {
		return cmn.NewIoError(err)
	}
	return nil
}

func (c *Connection) IsTLS() bool { return c.tls }

// Options configures Dial.
type Options struct {
	DialTimeout time.Duration
	TLSConfig   *tls.Config // nil => plain connection
}

// Dial resolves addr and tries every returned endpoint, in order, within
// DialTimeout, returning the first that accepts. The last error is
// reported on total failure.
func Dial(ctx context.Context, addr string, opts Options) (*Connection, error) {
	timeout := opts.DialTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	addrs, err := net.DefaultResolver.LookupHost(ctx, host)
	if err != nil || len(addrs) == 0 {
		// Fall back to a direct dial of addr itself (e.g. a unix-style or
		// already-literal target the resolver can't enumerate).
		return dialOne(ctx, addr, host, timeout, opts.TLSConfig)
	}

	_, port, _ := net.SplitHostPort(addr)
	var lastErr error
	for _, ip := range addrs {
		target := net.JoinHostPort(ip, port)
		conn, err := dialOne(ctx, target, host, timeout, opts.TLSConfig)
		if err == nil {
			return conn, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func dialOne(ctx context.Context, target, serverName string, timeout time.Duration, tlsCfg *tls.Config) (*Connection, error) {
	dialer := net.Dialer{Timeout: timeout}
	raw, err := dialer.DialContext(ctx, "tcp", target)
	if err != nil {
		return nil, cmn.NewIoError(err)
	}

	if tlsCfg == nil {
		return &Connection{conn: raw}, nil
	}

	cfg := tlsCfg.Clone()
	if cfg.ServerName == "" {
		cfg.ServerName = tlsServerName(serverName)
	}
	tlsConn := tls.Client(raw, cfg)
	if timeout > 0 {
		tlsConn.SetDeadline(time.Now().Add(timeout))
	}
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		raw.Close()
		return nil, cmn.NewTLSError(err)
	}
	tlsConn.SetDeadline(time.Time{})
	return &Connection{conn: tlsConn, tls: true}, nil
}

// tlsServerName strips a bracketed-or-plain port suffix from addr, the
// way the wire handshake derives the SNI host from a dial target.
func tlsServerName(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return strings.Trim(addr, "[]")
}
