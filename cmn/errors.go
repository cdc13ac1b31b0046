// Package cmn holds the error types, debug assertions, and logging that
// every other package in this module builds on.
/*
 * Copyright (c) 2018-2023, NVIDIA CORPORATION. All rights reserved.
 */
package cmn

import (
	"errors"
	"fmt"
	"strings"
)

// Kind identifies the category of a transport/client Error, mirroring the
// variants of the original client's error enum.
type Kind int

const (
	KindIo Kind = iota
	KindTLS
	KindInvalidResponse
	KindServer
	KindTimeout
	KindCancelled
	KindClientClosed
	KindQueueFull
)

func (k Kind) String() string {
	switch k {
	case KindIo:
		return "io"
	case KindTLS:
		return "tls"
	case KindInvalidResponse:
		return "invalid response"
	case KindServer:
		return "server"
	case KindTimeout:
		return "timeout"
	case KindCancelled:
		return "cancelled"
	case KindClientClosed:
		return "client closed"
	case KindQueueFull:
		return "queue full"
	default:
		return "unknown"
	}
}

// Error is the uniform error type returned by xport, rpc, client and
// reconnect. A Server error additionally carries the server's error code
// and detail string from the MSG_ERROR payload.
type Error struct {
	Kind   Kind
	Code   uint32 // valid only when Kind == KindServer
	Detail string // valid only when Kind == KindServer
	Err    error  // wrapped cause, if any
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindServer:
		return fmt.Sprintf("server error %d: %s", e.Code, e.Detail)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s: %v", e.Kind, e.Err)
		}
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	o, ok := target.(*Error)
	return ok && o.Kind == e.Kind
}

func NewIoError(err error) *Error          { return &Error{Kind: KindIo, Err: err} }
func NewTLSError(err error) *Error         { return &Error{Kind: KindTLS, Err: err} }
func NewInvalidResponse(why string) *Error { return &Error{Kind: KindInvalidResponse, Err: errors.New(why)} }
func NewServerError(code uint32, detail string) *Error {
	return &Error{Kind: KindServer, Code: code, Detail: detail}
}
func NewTimeoutError() *Error      { return &Error{Kind: KindTimeout} }
func NewCancelledError() *Error    { return &Error{Kind: KindCancelled} }
func NewClientClosedError() *Error { return &Error{Kind: KindClientClosed} }
func NewQueueFullError() *Error    { return &Error{Kind: KindQueueFull} }

func IsKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}

// connErrSubstrings mirrors the original's case-insensitive substring
// classifier, used as a fallback for errors that don't carry a syscall
// errno (e.g. errors surfaced through net.OpError.Err as plain strings).
var connErrSubstrings = []string{
	"connection reset",
	"connection refused",
	"broken pipe",
	"use of closed network connection",
	"network is unreachable",
	"no route to host",
	"connection timed out",
	"i/o timeout",
}

// IsConnectionError reports whether err represents a transient connection
// failure that justifies a reconnect-and-retry, as opposed to a protocol,
// cancellation, or capacity error that a retry would not fix.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}

	var e *Error
	if errors.As(err, &e) {
		switch e.Kind {
		case KindClientClosed, KindServer, KindTimeout, KindCancelled, KindQueueFull:
			return false
		case KindIo:
			return isConnResetLike(e.Unwrap()) || isConnResetLike(e)
		default:
			return false
		}
	}

	return isConnResetLike(err)
}

func isConnResetLike(err error) bool {
	if err == nil {
		return false
	}
	if oe, ok := asOpError(err); ok {
		return oe
	}
	msg := strings.ToLower(err.Error())
	for _, sub := range connErrSubstrings {
		if strings.Contains(msg, sub) {
			return true
		}
	}
	return false
}
