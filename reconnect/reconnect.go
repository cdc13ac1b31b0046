// Package reconnect implements ReconnectingClient: a bounded work queue
// draining onto a single worker that transparently redials the
// underlying client on connection errors, with capped exponential
// backoff and full context cancellation support.
/*
 * Copyright (c) 2018-2023, NVIDIA CORPORATION. All rights reserved.
 */
package reconnect

import (
	"context"
	"sync"
	"time"

	"github.com/cxdb-io/cxdbgo/cmn"
	"github.com/cxdb-io/cxdbgo/cmn/nlog"
	"github.com/cxdb-io/cxdbgo/stats"
)

// sleepStep is the granularity at which backoff sleeps and result waits
// poll for cancellation, matching the ≤50ms polling requirement.
const sleepStep = 50 * time.Millisecond

// Conn is the subset of *client.Client the worker drives. It is an
// interface, rather than the concrete type, so the worker loop, backoff,
// and queue discipline can be tested against a fake without a live
// server.
type Conn interface {
	Close() error
	SessionID() uint64
	CreateContext(ctx context.Context, parentTurnID uint64) (uint64, error)
	ForkContext(ctx context.Context, turnID uint64) (uint64, error)
	GetHead(ctx context.Context, contextID uint64) (uint64, error)
	AppendTurn(ctx context.Context, parentTurnID uint64, payload []byte) (uint64, error)
	AppendTurnWithFS(ctx context.Context, parentTurnID uint64, payload, rootHash []byte) (uint64, error)
	GetLast(ctx context.Context, contextID uint64, count uint32) ([]uint64, error)
	AttachFS(ctx context.Context, turnID uint64, rootHash []byte) error
	PutBlob(ctx context.Context, data []byte) (hash []byte, wasNew bool, err error)
	PutBlobIfAbsent(ctx context.Context, hash, data []byte) (wasNew bool, err error)
}

// DialFunc dials a fresh Conn, the abstract connection factory used for
// both the initial connect and every subsequent reconnect attempt.
type DialFunc func(ctx context.Context) (Conn, error)

// Config configures reconnect policy and the bounded queue's capacity.
type Config struct {
	MaxRetries    int
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
	QueueSize     int
	OnReconnect   func(sessionID uint64)
	Stats         *stats.Tracker // optional; nil disables metrics
}

func (c Config) withDefaults() Config {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 5
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 100 * time.Millisecond
	}
	if c.MaxRetryDelay <= 0 {
		c.MaxRetryDelay = 30 * time.Second
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 10_000
	}
	return c
}

// job is one queued unit of work: an opaque call against whatever Client
// is current at the time the worker dequeues it, plus its result channel.
type job struct {
	ctx    context.Context
	fn     func(ctx context.Context, c Conn) (any, error)
	result chan jobResult
}

type jobResult struct {
	val any
	err error
}

// ReconnectingClient wraps a Conn behind a bounded queue and a
// single background worker goroutine.
type ReconnectingClient struct {
	cfg   Config
	dial  DialFunc
	queue chan *job
	done  chan struct{}
	wg    sync.WaitGroup

	mu     sync.Mutex
	cur    Conn
	closed bool
}

// New dials an initial Client via dial and starts the worker.
func New(ctx context.Context, dial DialFunc, cfg Config) (*ReconnectingClient, error) {
	cfg = cfg.withDefaults()
	c, err := dial(ctx)
	if err != nil {
		return nil, err
	}
	rc := &ReconnectingClient{
		cfg:   cfg,
		dial:  dial,
		queue: make(chan *job, cfg.QueueSize),
		done:  make(chan struct{}),
		cur:   c,
	}
	rc.wg.Add(1)
	go rc.run()
	return rc, nil
}

// QueueLength reports the current pending-request depth of the bounded
// queue, for back-pressure observability.
func (rc *ReconnectingClient) QueueLength() int { return len(rc.queue) }

// Close is idempotent: it signals shutdown, joins the worker, closes the
// current client, and drains any requests still in the queue with
// ClientClosed.
func (rc *ReconnectingClient) Close() error {
	rc.mu.Lock()
	if rc.closed {
		rc.mu.Unlock()
		return nil
	}
	rc.closed = true
	rc.mu.Unlock()

	close(rc.done)
	rc.wg.Wait()

	rc.mu.Lock()
	cur := rc.cur
	rc.cur = nil
	rc.mu.Unlock()

	var closeErr error
	if cur != nil {
		closeErr = cur.Close()
	}

	for {
		select {
		case j := <-rc.queue:
			j.result <- jobResult{err: cmn.NewClientClosedError()}
		default:
			return closeErr
		}
	}
}

// enqueue performs the pre-checks and the non-blocking push, then waits
// (with cancellation/deadline polling) for the worker's result.
func (rc *ReconnectingClient) enqueue(ctx context.Context, fn func(context.Context, Conn) (any, error)) (any, error) {
	rc.mu.Lock()
	closed := rc.closed
	rc.mu.Unlock()
	if closed {
		return nil, cmn.NewClientClosedError()
	}
	if ctx.Err() == context.Canceled {
		return nil, cmn.NewCancelledError()
	}
	if deadline, ok := ctx.Deadline(); ok && !deadline.After(time.Now()) {
		return nil, cmn.NewTimeoutError()
	}

	j := &job{ctx: ctx, fn: fn, result: make(chan jobResult, 1)}
	select {
	case rc.queue <- j:
	default:
		return nil, cmn.NewQueueFullError()
	}
	rc.reportQueueDepth()

	return rc.awaitResult(ctx, j)
}

func (rc *ReconnectingClient) awaitResult(ctx context.Context, j *job) (any, error) {
	ticker := time.NewTicker(sleepStep)
	defer ticker.Stop()
	for {
		select {
		case r := <-j.result:
			return r.val, r.err
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return nil, cmn.NewTimeoutError()
			}
			return nil, cmn.NewCancelledError()
		case <-ticker.C:
			if deadline, ok := ctx.Deadline(); ok && !deadline.After(time.Now()) {
				return nil, cmn.NewTimeoutError()
			}
		}
	}
}

func (rc *ReconnectingClient) run() {
	defer rc.wg.Done()
	for {
		select {
		case <-rc.done:
			return
		case j := <-rc.queue:
			rc.reportQueueDepth()
			rc.process(j)
		}
	}
}

// reportQueueDepth is a no-op when rc.cfg.Stats is nil.
func (rc *ReconnectingClient) reportQueueDepth() {
	if rc.cfg.Stats != nil {
		rc.cfg.Stats.QueueDepth.Set(float64(len(rc.queue)))
	}
}

func (rc *ReconnectingClient) process(j *job) {
	if j.ctx.Err() == context.Canceled {
		j.result <- jobResult{err: cmn.NewCancelledError()}
		return
	}
	if deadline, ok := j.ctx.Deadline(); ok && !deadline.After(time.Now()) {
		j.result <- jobResult{err: cmn.NewTimeoutError()}
		return
	}

	rc.mu.Lock()
	cur := rc.cur
	rc.mu.Unlock()
	if cur == nil {
		j.result <- jobResult{err: cmn.NewClientClosedError()}
		return
	}

	val, err := j.fn(j.ctx, cur)
	if err != nil && cmn.IsConnectionError(err) {
		if rerr := rc.reconnect(j.ctx); rerr != nil {
			j.result <- jobResult{err: rerr}
			return
		}
		rc.mu.Lock()
		cur = rc.cur
		rc.mu.Unlock()
		if cur == nil {
			j.result <- jobResult{err: cmn.NewClientClosedError()}
			return
		}
		val, err = j.fn(j.ctx, cur)
	}
	j.result <- jobResult{val: val, err: err}
}

// reconnect retries up to cfg.MaxRetries times, sleeping and doubling the
// delay between attempts, until dial succeeds or retries are exhausted.
func (rc *ReconnectingClient) reconnect(ctx context.Context) error {
	delay := rc.cfg.RetryDelay
	var lastErr error

	for attempt := 0; attempt < rc.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := rc.sleep(ctx, delay); err != nil {
				return err
			}
			delay *= 2
			if delay > rc.cfg.MaxRetryDelay {
				delay = rc.cfg.MaxRetryDelay
			}
		}

		rc.mu.Lock()
		if rc.cur != nil {
			rc.cur.Close()
			rc.cur = nil
		}
		rc.mu.Unlock()

		nc, err := rc.dial(ctx)
		if err != nil {
			lastErr = err
			nlog.Warningf("reconnect attempt %d/%d failed: %v", attempt+1, rc.cfg.MaxRetries, err)
			continue
		}

		rc.mu.Lock()
		rc.cur = nc
		rc.mu.Unlock()

		if rc.cfg.Stats != nil {
			rc.cfg.Stats.ReconnectTotal.Inc()
		}
		if rc.cfg.OnReconnect != nil {
			rc.cfg.OnReconnect(nc.SessionID())
		}
		return nil
	}

	if lastErr == nil {
		lastErr = cmn.NewClientClosedError()
	}
	return lastErr
}

// sleep waits for d in sleepStep increments, honoring shutdown, ctx
// cancellation, and ctx deadline so no single sleep can outlast them by
// more than sleepStep.
func (rc *ReconnectingClient) sleep(ctx context.Context, d time.Duration) error {
	deadline := time.Now().Add(d)
	ticker := time.NewTicker(sleepStep)
	defer ticker.Stop()
	for {
		select {
		case <-rc.done:
			return cmn.NewClientClosedError()
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return cmn.NewTimeoutError()
			}
			return cmn.NewCancelledError()
		case <-ticker.C:
			if ctxDeadline, ok := ctx.Deadline(); ok && !ctxDeadline.After(time.Now()) {
				return cmn.NewTimeoutError()
			}
			if !time.Now().Before(deadline) {
				return nil
			}
		}
	}
}

func castErr(v any, err error) (any, error) { return v, err }

// CreateContext mirrors client.Client's op of the same name.
func (rc *ReconnectingClient) CreateContext(ctx context.Context, parentTurnID uint64) (uint64, error) {
	v, err := rc.enqueue(ctx, func(ctx context.Context, c Conn) (any, error) {
		return castErr(c.CreateContext(ctx, parentTurnID))
	})
	return asUint64(v), err
}

func (rc *ReconnectingClient) ForkContext(ctx context.Context, turnID uint64) (uint64, error) {
	v, err := rc.enqueue(ctx, func(ctx context.Context, c Conn) (any, error) {
		return castErr(c.ForkContext(ctx, turnID))
	})
	return asUint64(v), err
}

func (rc *ReconnectingClient) GetHead(ctx context.Context, contextID uint64) (uint64, error) {
	v, err := rc.enqueue(ctx, func(ctx context.Context, c Conn) (any, error) {
		return castErr(c.GetHead(ctx, contextID))
	})
	return asUint64(v), err
}

func (rc *ReconnectingClient) AppendTurn(ctx context.Context, parentTurnID uint64, payload []byte) (uint64, error) {
	v, err := rc.enqueue(ctx, func(ctx context.Context, c Conn) (any, error) {
		return castErr(c.AppendTurn(ctx, parentTurnID, payload))
	})
	return asUint64(v), err
}

func (rc *ReconnectingClient) AppendTurnWithFS(ctx context.Context, parentTurnID uint64, payload, rootHash []byte) (uint64, error) {
	v, err := rc.enqueue(ctx, func(ctx context.Context, c Conn) (any, error) {
		return castErr(c.AppendTurnWithFS(ctx, parentTurnID, payload, rootHash))
	})
	return asUint64(v), err
}

func (rc *ReconnectingClient) GetLast(ctx context.Context, contextID uint64, count uint32) ([]uint64, error) {
	v, err := rc.enqueue(ctx, func(ctx context.Context, c Conn) (any, error) {
		return castErr(c.GetLast(ctx, contextID, count))
	})
	if v == nil {
		return nil, err
	}
	return v.([]uint64), err
}

func (rc *ReconnectingClient) AttachFS(ctx context.Context, turnID uint64, rootHash []byte) error {
	_, err := rc.enqueue(ctx, func(ctx context.Context, c Conn) (any, error) {
		return nil, c.AttachFS(ctx, turnID, rootHash)
	})
	return err
}

type blobResult struct {
	hash   []byte
	wasNew bool
}

func (rc *ReconnectingClient) PutBlob(ctx context.Context, data []byte) ([]byte, bool, error) {
	v, err := rc.enqueue(ctx, func(ctx context.Context, c Conn) (any, error) {
		hash, wasNew, err := c.PutBlob(ctx, data)
		return blobResult{hash, wasNew}, err
	})
	if v == nil {
		return nil, false, err
	}
	br := v.(blobResult)
	return br.hash, br.wasNew, err
}

func (rc *ReconnectingClient) PutBlobIfAbsent(ctx context.Context, hash, data []byte) (bool, error) {
	v, err := rc.enqueue(ctx, func(ctx context.Context, c Conn) (any, error) {
		wasNew, err := c.PutBlobIfAbsent(ctx, hash, data)
		return wasNew, err
	})
	if v == nil {
		return false, err
	}
	return v.(bool), err
}

func asUint64(v any) uint64 {
	if v == nil {
		return 0
	}
	return v.(uint64)
}
