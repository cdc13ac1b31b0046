// Package rpc defines the request/response payload shapes for every op on
// the client's RPC surface and encodes/decodes them with MessagePack, the
// same codec the tree-blob format uses on the wire.
/*
 * Copyright (c) 2018-2023, NVIDIA CORPORATION. All rights reserved.
 */
package rpc

import (
	"github.com/vmihailenco/msgpack/v5"

	"github.com/cxdb-io/cxdbgo/cmn"
	"github.com/cxdb-io/cxdbgo/protocol"
)

// CreateContextRequest asks the server to create a fresh conversation
// context, optionally rooted at a parent (0 for none).
type CreateContextRequest struct {
	ParentTurnID uint64 `msgpack:"parent_turn_id"`
}

type CreateContextResponse struct {
	TurnID uint64 `msgpack:"turn_id"`
}

// ForkContextRequest forks an existing context at a given turn.
type ForkContextRequest struct {
	TurnID uint64 `msgpack:"turn_id"`
}

type ForkContextResponse struct {
	TurnID uint64 `msgpack:"turn_id"`
}

type GetHeadRequest struct {
	ContextID uint64 `msgpack:"context_id"`
}

type GetHeadResponse struct {
	TurnID uint64 `msgpack:"turn_id"`
}

type AppendTurnRequest struct {
	ParentTurnID uint64 `msgpack:"parent_turn_id"`
	Payload      []byte `msgpack:"payload"`
}

type AppendTurnResponse struct {
	TurnID uint64 `msgpack:"turn_id"`
}

type AppendTurnWithFSRequest struct {
	ParentTurnID uint64 `msgpack:"parent_turn_id"`
	Payload      []byte `msgpack:"payload"`
	RootHash     []byte `msgpack:"root_hash"`
}

type AppendTurnWithFSResponse struct {
	TurnID uint64 `msgpack:"turn_id"`
}

type GetLastRequest struct {
	ContextID uint64 `msgpack:"context_id"`
	Count     uint32 `msgpack:"count"`
}

type GetLastResponse struct {
	TurnIDs []uint64 `msgpack:"turn_ids"`
}

type AttachFSRequest struct {
	TurnID   uint64 `msgpack:"turn_id"`
	RootHash []byte `msgpack:"root_hash"`
}

type AttachFSResponse struct{}

type PutBlobRequest struct {
	Data []byte `msgpack:"data"`
}

type PutBlobResponse struct {
	Hash   []byte `msgpack:"hash"`
	WasNew bool   `msgpack:"was_new"`
}

type PutBlobIfAbsentRequest struct {
	Hash []byte `msgpack:"hash"`
	Data []byte `msgpack:"data,omitempty"`
}

type PutBlobIfAbsentResponse struct {
	WasNew bool `msgpack:"was_new"`
}

// Encode marshals v with MessagePack, wrapping encode failures as a
// protocol-level InvalidResponse so callers never need to know the codec.
func Encode(v any) ([]byte, error) {
	b, err := msgpack.Marshal(v)
	if err != nil {
		return nil, cmn.NewInvalidResponse("rpc encode: " + err.Error())
	}
	return b, nil
}

// Decode unmarshals payload into v.
func Decode(payload []byte, v any) error {
	if err := msgpack.Unmarshal(payload, v); err != nil {
		return cmn.NewInvalidResponse("rpc decode: " + err.Error())
	}
	return nil
}

// Op names one entry of the client's RPC surface to its wire message type.
type Op struct {
	Name    string
	MsgType uint16
}

var (
	OpCreateContext    = Op{"create_context", protocol.MsgCtxCreate}
	OpForkContext      = Op{"fork_context", protocol.MsgCtxFork}
	OpGetHead          = Op{"get_head", protocol.MsgHeadGet}
	OpAppendTurn       = Op{"append_turn", protocol.MsgTurnAppend}
	OpAppendTurnWithFS = Op{"append_turn_with_fs", protocol.MsgTurnAppendFS}
	OpGetLast          = Op{"get_last", protocol.MsgTurnGetLast}
	OpAttachFS         = Op{"attach_fs", protocol.MsgFSAttach}
	OpPutBlob          = Op{"put_blob", protocol.MsgBlobPut}
	OpPutBlobIfAbsent  = Op{"put_blob_if_absent", protocol.MsgBlobPutIfAbsent}
)
