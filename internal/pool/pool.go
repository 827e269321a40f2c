// Package pool provides a bounded connection pool whose callers wait for a
// free connection instead of failing fast.
package pool

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
)

var (
	// ErrClosed is returned by Get after Close.
	ErrClosed = errors.New("pool: closed")
	// ErrExhausted is returned when the caller's context ends while waiting
	// for a free connection.
	ErrExhausted = errors.New("pool: no free connection")
)

// Poolable represents any connection that can be pooled and reused.
type Poolable interface {
	Connect(ctx context.Context) error
	Close() error
}

// Stats is a point-in-time view of pool usage.
type Stats struct {
	Size     int   `json:"size"`
	InUse    int   `json:"in_use"`
	Idle     int   `json:"idle"`
	Created  int64 `json:"created"`
	Reused   int64 `json:"reused"`
	Waits    int64 `json:"waits"`
	Timeouts int64 `json:"timeouts"`
}

// Pool hands out at most size connections at a time.
type Pool[T Poolable] struct {
	size    int
	factory func() T
	slots   chan struct{}
	idle    chan T

	mu     sync.Mutex
	closed bool

	created  atomic.Int64
	reused   atomic.Int64
	waits    atomic.Int64
	timeouts atomic.Int64
}

// New creates a pool of at most size connections built by factory.
func New[T Poolable](size int, factory func() T) *Pool[T] {
	if size <= 0 {
		size = 10 // default size
	}
	return &Pool[T]{
		size:    size,
		factory: factory,
		slots:   make(chan struct{}, size),
		idle:    make(chan T, size),
	}
}

// Get returns an idle connection or connects a new one, waiting while all
// size connections are checked out.
func (p *Pool[T]) Get(ctx context.Context) (T, error) {
	var zero T

	select {
	case p.slots <- struct{}{}:
	default:
		p.waits.Add(1)
		select {
		case p.slots <- struct{}{}:
		case <-ctx.Done():
			p.timeouts.Add(1)
			return zero, fmt.Errorf("%w: %w", ErrExhausted, ctx.Err())
		}
	}

	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		<-p.slots
		return zero, ErrClosed
	}

	select {
	case conn := <-p.idle:
		p.reused.Add(1)
		return conn, nil
	default:
	}

	conn := p.factory()
	if err := conn.Connect(ctx); err != nil {
		<-p.slots
		return zero, fmt.Errorf("pool: connect: %w", err)
	}
	p.created.Add(1)
	return conn, nil
}

// Put returns a connection obtained from Get. Unhealthy connections and
// connections returned after Close are closed instead of reused.
func (p *Pool[T]) Put(conn T, healthy bool) error {
	defer func() { <-p.slots }()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || !healthy {
		return conn.Close()
	}
	select {
	case p.idle <- conn:
		return nil
	default:
		return conn.Close()
	}
}

// Close closes every idle connection. Checked-out connections are closed
// when they are returned.
func (p *Pool[T]) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	var errs []string
	for {
		select {
		case conn := <-p.idle:
			if err := conn.Close(); err != nil {
				errs = append(errs, err.Error())
			}
		default:
			if len(errs) > 0 {
				return fmt.Errorf("pool close errors: %s", strings.Join(errs, "; "))
			}
			return nil
		}
	}
}

// Stats reports current usage.
func (p *Pool[T]) Stats() Stats {
	return Stats{
		Size:     p.size,
		InUse:    len(p.slots),
		Idle:     len(p.idle),
		Created:  p.created.Load(),
		Reused:   p.reused.Load(),
		Waits:    p.waits.Load(),
		Timeouts: p.timeouts.Load(),
	}
}
