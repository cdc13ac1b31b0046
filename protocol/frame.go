// Package protocol implements the length-prefixed binary frame codec and
// the wire-level message types shared by every client and server op.
/*
 * Copyright (c) 2018-2023, NVIDIA CORPORATION. All rights reserved.
 */
package protocol

import (
	"encoding/binary"
	"io"

	"github.com/cxdb-io/cxdbgo/cmn"
)

// MaxFrameSize bounds the payload length a Frame may carry. Oversized
// incoming lengths are rejected before any payload read is attempted.
const MaxFrameSize = 16 * 1024 * 1024

// Message types. MsgError may legally answer any request, HELLO included.
const (
	MsgHello uint16 = iota
	MsgError
	MsgCtxCreate
	MsgCtxFork
	MsgHeadGet
	MsgTurnAppend
	MsgTurnAppendFS
	MsgTurnGetLast
	MsgFSAttach
	MsgBlobPut
	MsgBlobPutIfAbsent
)

const headerSize = 4 + 2 + 2 + 8 // len | msg_type | flags | req_id

// Frame is one length-prefixed protocol message.
type Frame struct {
	MsgType uint16
	Flags   uint16
	ReqID   uint64
	Payload []byte
}

// WriteFrame serialises f as a single logical write: header followed by
// the payload verbatim. Callers on a shared stream must serialise calls
// themselves — the codec has no internal locking.
func WriteFrame(w io.Writer, f Frame) error {
	if len(f.Payload) > MaxFrameSize {
		return cmn.NewInvalidResponse("frame payload exceeds MaxFrameSize")
	}

	var hdr [headerSize]byte
	binary.LittleEndian.PutUint32(hdr[0:4], uint32(len(f.Payload)))
	binary.LittleEndian.PutUint16(hdr[4:6], f.MsgType)
	binary.LittleEndian.PutUint16(hdr[6:8], f.Flags)
	binary.LittleEndian.PutUint64(hdr[8:16], f.ReqID)

	if _, err := w.Write(hdr[:]); err != nil {
		return cmn.NewIoError(err)
	}
	if len(f.Payload) > 0 {
		if _, err := w.Write(f.Payload); err != nil {
			return cmn.NewIoError(err)
		}
	}
	return nil
}

// ReadFrame reads exactly one frame from r, validating the length prefix
// before allocating or reading the payload.
func ReadFrame(r io.Reader) (Frame, error) {
	var hdr [headerSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return Frame{}, cmn.NewInvalidResponse("truncated frame header")
		}
		return Frame{}, cmn.NewIoError(err)
	}

	length := binary.LittleEndian.Uint32(hdr[0:4])
	if length > MaxFrameSize {
		return Frame{}, cmn.NewInvalidResponse("frame length exceeds MaxFrameSize")
	}

	f := Frame{
		MsgType: binary.LittleEndian.Uint16(hdr[4:6]),
		Flags:   binary.LittleEndian.Uint16(hdr[6:8]),
		ReqID:   binary.LittleEndian.Uint64(hdr[8:16]),
	}

	if length > 0 {
		f.Payload = make([]byte, length)
		if _, err := io.ReadFull(r, f.Payload); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return Frame{}, cmn.NewInvalidResponse("truncated frame payload")
			}
			return Frame{}, cmn.NewIoError(err)
		}
	}
	return f, nil
}
