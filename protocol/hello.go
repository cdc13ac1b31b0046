package protocol

import (
	"encoding/binary"

	"github.com/cxdb-io/cxdbgo/cmn"
)

// ClientVersion is the only HELLO version this client speaks.
const ClientVersion uint16 = 1

// EncodeHello builds the HELLO request payload: version | tag_len | tag |
// meta_len=0. Metadata beyond the zero length is not part of this surface.
func EncodeHello(tag string) []byte {
	buf := make([]byte, 2+2+len(tag)+4)
	binary.LittleEndian.PutUint16(buf[0:2], ClientVersion)
	binary.LittleEndian.PutUint16(buf[2:4], uint16(len(tag)))
	copy(buf[4:4+len(tag)], tag)
	binary.LittleEndian.PutUint32(buf[4+len(tag):], 0)
	return buf
}

// HelloResponse is the decoded HELLO reply.
type HelloResponse struct {
	SessionID     uint64
	ServerVersion uint16
}

// DecodeHelloResponse reads session_id from the first 8 bytes and, when
// present, the server_version that follows. The session id is optional:
// a payload shorter than 8 bytes yields a zero-value HelloResponse rather
// than an error.
func DecodeHelloResponse(payload []byte) (HelloResponse, error) {
	if len(payload) < 8 {
		return HelloResponse{}, nil
	}
	resp := HelloResponse{SessionID: binary.LittleEndian.Uint64(payload[0:8])}
	if len(payload) >= 10 {
		resp.ServerVersion = binary.LittleEndian.Uint16(payload[8:10])
	}
	return resp, nil
}

// EncodeServerError builds the MSG_ERROR payload: code | detail_len | detail.
func EncodeServerError(code uint32, detail string) []byte {
	buf := make([]byte, 4+4+len(detail))
	binary.LittleEndian.PutUint32(buf[0:4], code)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(detail)))
	copy(buf[8:], detail)
	return buf
}

// DecodeServerError parses a MSG_ERROR payload into (code, detail).
func DecodeServerError(payload []byte) (uint32, string, error) {
	if len(payload) < 8 {
		return 0, "", cmn.NewInvalidResponse("ERROR response payload too short")
	}
	code := binary.LittleEndian.Uint32(payload[0:4])
	detailLen := binary.LittleEndian.Uint32(payload[4:8])
	if 8+uint64(detailLen) > uint64(len(payload)) {
		return 0, "", cmn.NewInvalidResponse("ERROR response detail_len out of bounds")
	}
	detail := string(payload[8 : 8+detailLen])
	return code, detail, nil
}
