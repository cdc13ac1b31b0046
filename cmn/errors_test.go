package cmn

import (
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsConnectionErrorClassifiesKinds(t *testing.T) {
	require.False(t, IsConnectionError(NewClientClosedError()))
	require.False(t, IsConnectionError(NewServerError(1, "x")))
	require.False(t, IsConnectionError(NewTimeoutError()))
	require.False(t, IsConnectionError(NewCancelledError()))
	require.False(t, IsConnectionError(NewQueueFullError()))
}

func TestIsConnectionErrorIoWrapped(t *testing.T) {
	err := NewIoError(&net.OpError{Err: errors.New("connection reset by peer")})
	require.True(t, IsConnectionError(err))
}

func TestIsConnectionErrorSubstringMatch(t *testing.T) {
	require.True(t, IsConnectionError(errors.New("dial tcp: Connection Refused")))
	require.True(t, IsConnectionError(errors.New("use of closed network connection")))
	require.False(t, IsConnectionError(errors.New("invalid argument")))
}

func TestErrorIsMatchesByKind(t *testing.T) {
	err := NewServerError(404, "nope")
	require.True(t, errors.Is(err, &Error{Kind: KindServer}))
	require.False(t, errors.Is(err, &Error{Kind: KindTimeout}))
}
