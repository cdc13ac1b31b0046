package protocol

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	cases := []Frame{
		{MsgType: MsgHello, Flags: 0, ReqID: 1, Payload: nil},
		{MsgType: MsgBlobPut, Flags: 0, ReqID: 42, Payload: []byte("hello world")},
		{MsgType: MsgError, Flags: 0, ReqID: 7, Payload: bytes.Repeat([]byte{0xAB}, 1024)},
	}

	for _, f := range cases {
		var buf bytes.Buffer
		require.NoError(t, WriteFrame(&buf, f))

		got, err := ReadFrame(&buf)
		require.NoError(t, err)
		require.Equal(t, f.MsgType, got.MsgType)
		require.Equal(t, f.Flags, got.Flags)
		require.Equal(t, f.ReqID, got.ReqID)
		require.Equal(t, f.Payload, got.Payload)
	}
}

func TestFrameOversizePayloadRejected(t *testing.T) {
	var buf bytes.Buffer
	err := WriteFrame(&buf, Frame{Payload: make([]byte, MaxFrameSize+1)})
	require.Error(t, err)
}

func TestFrameTruncatedHeader(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader([]byte{1, 2, 3}))
	require.Error(t, err)
}

func TestFrameTruncatedPayload(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, Frame{MsgType: 1, ReqID: 1, Payload: []byte("abcdef")}))
	truncated := buf.Bytes()[:buf.Len()-2]
	_, err := ReadFrame(bytes.NewReader(truncated))
	require.Error(t, err)
}

func TestEncodeHelloPayloadLength(t *testing.T) {
	payload := EncodeHello("test-client")
	require.Len(t, payload, 2+2+len("test-client")+4)
}

func TestHelloResponseDecode(t *testing.T) {
	buf := make([]byte, 10)
	buf[0] = 123
	buf[8] = 1
	resp, err := DecodeHelloResponse(buf)
	require.NoError(t, err)
	require.Equal(t, uint64(123), resp.SessionID)
	require.Equal(t, uint16(1), resp.ServerVersion)
}

func TestHelloResponseDecodeShortPayloadIsZeroValueNotError(t *testing.T) {
	resp, err := DecodeHelloResponse(nil)
	require.NoError(t, err)
	require.Equal(t, HelloResponse{}, resp)

	resp, err = DecodeHelloResponse([]byte{1, 2, 3})
	require.NoError(t, err)
	require.Equal(t, HelloResponse{}, resp)
}

func TestServerErrorRoundTrip(t *testing.T) {
	payload := EncodeServerError(404, "not found")
	code, detail, err := DecodeServerError(payload)
	require.NoError(t, err)
	require.Equal(t, uint32(404), code)
	require.Equal(t, "not found", detail)
}
