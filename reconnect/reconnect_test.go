package reconnect

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/cxdb-io/cxdbgo/cmn"
	"github.com/cxdb-io/cxdbgo/stats"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

// fakeConn is a minimal Conn double: GetHead can be scripted to fail N
// times with a connection error before succeeding, letting tests drive
// the reconnect path without a live server.
type fakeConn struct {
	id        uint64
	getHeadFn func(ctx context.Context) (uint64, error)
	closed    atomic.Bool
}

func (f *fakeConn) Close() error              { f.closed.Store(true); return nil }
func (f *fakeConn) SessionID() uint64         { return f.id }
func (f *fakeConn) CreateContext(context.Context, uint64) (uint64, error)    { return 0, nil }
func (f *fakeConn) ForkContext(context.Context, uint64) (uint64, error)      { return 0, nil }
func (f *fakeConn) GetHead(ctx context.Context, contextID uint64) (uint64, error) {
	return f.getHeadFn(ctx)
}
func (f *fakeConn) AppendTurn(context.Context, uint64, []byte) (uint64, error) { return 0, nil }
func (f *fakeConn) AppendTurnWithFS(context.Context, uint64, []byte, []byte) (uint64, error) {
	return 0, nil
}
func (f *fakeConn) GetLast(context.Context, uint64, uint32) ([]uint64, error) { return nil, nil }
func (f *fakeConn) AttachFS(context.Context, uint64, []byte) error           { return nil }
func (f *fakeConn) PutBlob(context.Context, []byte) ([]byte, bool, error)    { return nil, false, nil }
func (f *fakeConn) PutBlobIfAbsent(context.Context, []byte, []byte) (bool, error) {
	return false, nil
}

func TestQueueFullWhenSaturated(t *testing.T) {
	block := make(chan struct{})

	dial := func(ctx context.Context) (Conn, error) {
		return &fakeConn{getHeadFn: func(ctx context.Context) (uint64, error) {
			<-block
			return 1, nil
		}}, nil
	}

	rc, err := New(context.Background(), dial, Config{QueueSize: 1})
	require.NoError(t, err)

	// Job 1 is dequeued by the worker immediately and blocks on <-block,
	// occupying the single worker slot.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		rc.GetHead(context.Background(), 1)
	}()
	time.Sleep(30 * time.Millisecond)

	// Job 2 fills the size-1 queue.
	job2Done := make(chan error, 1)
	go func() { _, e := rc.GetHead(context.Background(), 1); job2Done <- e }()
	time.Sleep(30 * time.Millisecond)

	// Job 3 finds the queue full and must fail immediately.
	_, err = rc.GetHead(context.Background(), 1)
	require.True(t, cmn.IsKind(err, cmn.KindQueueFull))

	close(block)
	wg.Wait()
	require.NoError(t, <-job2Done)
	require.NoError(t, rc.Close())
}

func TestCancellationBeforeEnqueue(t *testing.T) {
	dial := func(ctx context.Context) (Conn, error) {
		return &fakeConn{getHeadFn: func(context.Context) (uint64, error) { return 1, nil }}, nil
	}
	rc, err := New(context.Background(), dial, Config{})
	require.NoError(t, err)
	defer rc.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = rc.GetHead(ctx, 1)
	require.True(t, cmn.IsKind(err, cmn.KindCancelled))
}

func TestReconnectRetriesOnceAfterConnectionError(t *testing.T) {
	var dialCount atomic.Int32
	var callCount atomic.Int32

	dial := func(ctx context.Context) (Conn, error) {
		n := dialCount.Add(1)
		return &fakeConn{id: uint64(n), getHeadFn: func(context.Context) (uint64, error) {
			if callCount.Add(1) == 1 {
				return 0, cmn.NewIoError(errors.New("connection reset by peer"))
			}
			return 99, nil
		}}, nil
	}

	rc, err := New(context.Background(), dial, Config{RetryDelay: time.Millisecond})
	require.NoError(t, err)
	defer rc.Close()

	head, err := rc.GetHead(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, uint64(99), head)
	require.Equal(t, int32(2), dialCount.Load())
}

func TestReconnectIncrementsStatsOnSuccessfulReconnect(t *testing.T) {
	reg := prometheus.NewRegistry()
	tr := stats.NewTracker(reg)

	var dialCount atomic.Int32
	var callCount atomic.Int32
	dial := func(ctx context.Context) (Conn, error) {
		dialCount.Add(1)
		return &fakeConn{getHeadFn: func(context.Context) (uint64, error) {
			if callCount.Add(1) == 1 {
				return 0, cmn.NewIoError(errors.New("connection reset by peer"))
			}
			return 1, nil
		}}, nil
	}

	rc, err := New(context.Background(), dial, Config{RetryDelay: time.Millisecond, Stats: tr})
	require.NoError(t, err)
	defer rc.Close()

	_, err = rc.GetHead(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, float64(1), counterValue(t, tr.ReconnectTotal))
}

func TestReconnectExhaustsRetries(t *testing.T) {
	var dialCount atomic.Int32
	dial := func(ctx context.Context) (Conn, error) {
		n := dialCount.Add(1)
		if n == 1 {
			// initial New() dial succeeds; every later reconnect dial fails.
			return &fakeConn{getHeadFn: func(context.Context) (uint64, error) {
				return 0, cmn.NewIoError(errors.New("connection refused"))
			}}, nil
		}
		return nil, cmn.NewIoError(errors.New("connection refused"))
	}

	rc, err := New(context.Background(), dial, Config{MaxRetries: 2, RetryDelay: time.Millisecond})
	require.NoError(t, err)
	defer rc.Close()

	_, err = rc.GetHead(context.Background(), 1)
	require.Error(t, err)
	require.True(t, cmn.IsConnectionError(err))
	require.Equal(t, int32(3), dialCount.Load()) // 1 initial + 2 retry attempts
}
