package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/torosent/kvscope/internal/pool"
)

// MemoryOptions tunes the in-process store. Latency and Fail let tests and
// demos shape round trips without a server.
type MemoryOptions struct {
	PoolSize    int
	PoolTimeout time.Duration
	// Latency is added to every operation while a connection is held.
	Latency time.Duration
	// Fail, when set, is consulted before every operation; a non-nil result
	// fails the operation with KindUnavailable.
	Fail   func(op string) error
	Clock  func() time.Time
	Logger *zap.Logger
}

type memEntry struct {
	fields  map[string]string
	value   string
	expires time.Time
}

var errConnClosed = errors.New("memory store: connection already closed")

// memConn is a checked-out handle; it only gates concurrency.
type memConn struct {
	id     int64
	closed bool
}

func (c *memConn) Connect(context.Context) error { return nil }

func (c *memConn) Close() error {
	if c.closed {
		return errConnClosed
	}
	c.closed = true
	return nil
}

// Memory is a Store kept in process memory.
type Memory struct {
	opts  MemoryOptions
	conns *pool.Pool[*memConn]

	mu   sync.RWMutex
	data map[string]memEntry

	ops    atomic.Int64
	closed atomic.Bool
}

var (
	_ Store        = (*Memory)(nil)
	_ PoolReporter = (*Memory)(nil)
)

// NewMemory returns an empty in-process store.
func NewMemory(opts MemoryOptions) *Memory {
	if opts.PoolSize <= 0 {
		opts.PoolSize = 64
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	var next atomic.Int64
	return &Memory{
		opts: opts,
		conns: pool.New(opts.PoolSize, func() *memConn {
			return &memConn{id: next.Add(1)}
		}),
		data: make(map[string]memEntry),
	}
}

// Ops returns the number of operations served.
func (m *Memory) Ops() int64 { return m.ops.Load() }

// PoolStats exposes the connection gate's counters.
func (m *Memory) PoolStats() pool.Stats { return m.conns.Stats() }

func (m *Memory) do(ctx context.Context, op, key string, fn func(now time.Time) error) error {
	if m.closed.Load() {
		return &Error{Op: op, Key: key, Kind: KindUnavailable, Err: pool.ErrClosed}
	}
	if m.opts.PoolTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.opts.PoolTimeout)
		defer cancel()
	}
	conn, err := m.conns.Get(ctx)
	if err != nil {
		kind := KindUnavailable
		if errors.Is(err, context.DeadlineExceeded) {
			kind = KindTimeout
		}
		return &Error{Op: op, Key: key, Kind: kind, Err: err}
	}
	defer m.release(conn)

	m.ops.Add(1)
	if m.opts.Fail != nil {
		if ferr := m.opts.Fail(op); ferr != nil {
			return &Error{Op: op, Key: key, Kind: KindUnavailable, Err: ferr}
		}
	}
	if m.opts.Latency > 0 {
		timer := time.NewTimer(m.opts.Latency)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return &Error{Op: op, Key: key, Kind: KindTimeout, Err: ctx.Err()}
		}
	}
	return fn(m.opts.Clock())
}

// release returns conn to the pool. A failed close only costs the connection,
// so the operation's own result stands.
func (m *Memory) release(conn *memConn) {
	if err := m.conns.Put(conn, true); err != nil {
		m.opts.Logger.Warn("memory store: release connection",
			zap.Int64("conn", conn.id),
			zap.Error(err),
		)
	}
}

func (m *Memory) lookup(key string, now time.Time) (memEntry, bool) {
	e, ok := m.data[key]
	if !ok {
		return memEntry{}, false
	}
	if !e.expires.IsZero() && !now.Before(e.expires) {
		return memEntry{}, false
	}
	return e, true
}

func (m *Memory) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	var out map[string]string
	err := m.do(ctx, "HGETALL", key, func(now time.Time) error {
		m.mu.RLock()
		defer m.mu.RUnlock()
		e, ok := m.lookup(key, now)
		out = make(map[string]string, len(e.fields))
		if !ok {
			return nil
		}
		if e.fields == nil {
			return &Error{Op: "HGETALL", Key: key, Kind: KindReply, Err: fmt.Errorf("WRONGTYPE key holds a string")}
		}
		for k, v := range e.fields {
			out[k] = v
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (m *Memory) HSet(ctx context.Context, key string, fields map[string]string) error {
	return m.do(ctx, "HSET", key, func(now time.Time) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.hsetLocked(key, fields, now)
	})
}

func (m *Memory) hsetLocked(key string, fields map[string]string, now time.Time) error {
	e, ok := m.lookup(key, now)
	if ok && e.fields == nil {
		return &Error{Op: "HSET", Key: key, Kind: KindReply, Err: fmt.Errorf("WRONGTYPE key holds a string")}
	}
	if !ok {
		e = memEntry{fields: make(map[string]string, len(fields))}
	}
	for k, v := range fields {
		e.fields[k] = v
	}
	m.data[key] = e
	return nil
}

func (m *Memory) Get(ctx context.Context, key string) (string, error) {
	var out string
	err := m.do(ctx, "GET", key, func(now time.Time) error {
		m.mu.RLock()
		defer m.mu.RUnlock()
		e, ok := m.lookup(key, now)
		if !ok {
			return &Error{Op: "GET", Key: key, Kind: KindNotFound}
		}
		if e.fields != nil {
			return &Error{Op: "GET", Key: key, Kind: KindReply, Err: fmt.Errorf("WRONGTYPE key holds a hash")}
		}
		out = e.value
		return nil
	})
	return out, err
}

func (m *Memory) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return m.do(ctx, "SET", key, func(now time.Time) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.setLocked(key, value, ttl, now)
		return nil
	})
}

func (m *Memory) setLocked(key, value string, ttl time.Duration, now time.Time) {
	e := memEntry{value: value}
	if ttl > 0 {
		e.expires = now.Add(ttl)
	}
	m.data[key] = e
}

// WriteBatch applies writes under one lock, as a single round trip.
func (m *Memory) WriteBatch(ctx context.Context, writes []Write) error {
	if len(writes) == 0 {
		return nil
	}
	return m.do(ctx, "PIPELINE", fmt.Sprintf("(%d writes)", len(writes)), func(now time.Time) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		for _, w := range writes {
			if w.Fields != nil {
				if err := m.hsetLocked(w.Key, w.Fields, now); err != nil {
					return err
				}
				continue
			}
			m.setLocked(w.Key, w.Value, w.TTL, now)
		}
		return nil
	})
}

func (m *Memory) Ping(ctx context.Context) error {
	return m.do(ctx, "PING", "", func(time.Time) error { return nil })
}

// Len returns the number of live keys.
func (m *Memory) Len() int {
	now := m.opts.Clock()
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for key := range m.data {
		if _, ok := m.lookup(key, now); ok {
			n++
		}
	}
	return n
}

func (m *Memory) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	return m.conns.Close()
}
