package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type mockConn struct {
	connected   bool
	closed      bool
	failConnect bool
}

func (m *mockConn) Connect(ctx context.Context) error {
	if m.failConnect {
		return fmt.Errorf("connection failed")
	}
	m.connected = true
	return nil
}

func (m *mockConn) Close() error {
	m.closed = true
	m.connected = false
	return nil
}

func TestPoolGetPutReuses(t *testing.T) {
	p := New(2, func() *mockConn { return &mockConn{} })
	ctx := context.Background()

	c1, err := p.Get(ctx)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !c1.connected {
		t.Fatal("expected new connection to be connected")
	}
	if err := p.Put(c1, true); err != nil {
		t.Fatalf("Put: %v", err)
	}

	c2, err := p.Get(ctx)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if c2 != c1 {
		t.Fatal("expected idle connection to be reused")
	}
	stats := p.Stats()
	if stats.Created != 1 || stats.Reused != 1 || stats.InUse != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestPoolWaitsForFreeConnection(t *testing.T) {
	p := New(1, func() *mockConn { return &mockConn{} })
	ctx := context.Background()

	held, err := p.Get(ctx)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	got := make(chan *mockConn, 1)
	go func() {
		c, err := p.Get(ctx)
		if err != nil {
			t.Errorf("waiting Get: %v", err)
		}
		got <- c
	}()

	select {
	case <-got:
		t.Fatal("Get returned while the only connection was checked out")
	case <-time.After(50 * time.Millisecond):
	}

	_ = p.Put(held, true)
	select {
	case c := <-got:
		if c != held {
			t.Fatal("expected the released connection")
		}
	case <-time.After(time.Second):
		t.Fatal("waiting Get never returned")
	}
	if p.Stats().Waits != 1 {
		t.Fatalf("expected one wait, got %d", p.Stats().Waits)
	}
}

func TestPoolWaitHonoursContext(t *testing.T) {
	p := New(1, func() *mockConn { return &mockConn{} })
	if _, err := p.Get(context.Background()); err != nil {
		t.Fatalf("Get: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := p.Get(ctx)
	if !errors.Is(err, ErrExhausted) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected ErrExhausted wrapping deadline, got %v", err)
	}
	if p.Stats().Timeouts != 1 {
		t.Fatalf("expected one timeout, got %d", p.Stats().Timeouts)
	}
}

func TestPoolConnectFailureFreesSlot(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	p := New(1, func() *mockConn { return &mockConn{failConnect: fail.Load()} })

	if _, err := p.Get(context.Background()); err == nil {
		t.Fatal("expected connect error")
	}
	fail.Store(false)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := p.Get(ctx); err != nil {
		t.Fatalf("expected slot to be released after failed connect, got %v", err)
	}
}

func TestPoolUnhealthyConnectionIsClosed(t *testing.T) {
	p := New(1, func() *mockConn { return &mockConn{} })
	c, _ := p.Get(context.Background())
	_ = p.Put(c, false)
	if !c.closed {
		t.Fatal("expected unhealthy connection to be closed")
	}
	if p.Stats().Idle != 0 {
		t.Fatal("unhealthy connection must not be pooled")
	}
}

func TestPoolClose(t *testing.T) {
	p := New(3, func() *mockConn { return &mockConn{} })
	ctx := context.Background()
	var conns []*mockConn
	for i := 0; i < 3; i++ {
		c, err := p.Get(ctx)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		conns = append(conns, c)
	}
	_ = p.Put(conns[0], true)
	_ = p.Put(conns[1], true)

	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !conns[0].closed || !conns[1].closed {
		t.Fatal("expected idle connections closed")
	}
	_ = p.Put(conns[2], true)
	if !conns[2].closed {
		t.Fatal("expected connection returned after Close to be closed")
	}
	if _, err := p.Get(ctx); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestPoolConcurrentUseNeverExceedsSize(t *testing.T) {
	const size = 4
	p := New(size, func() *mockConn { return &mockConn{} })
	var inUse, peak atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				c, err := p.Get(context.Background())
				if err != nil {
					t.Errorf("Get: %v", err)
					return
				}
				n := inUse.Add(1)
				for {
					old := peak.Load()
					if n <= old || peak.CompareAndSwap(old, n) {
						break
					}
				}
				time.Sleep(100 * time.Microsecond)
				inUse.Add(-1)
				_ = p.Put(c, true)
			}
		}()
	}
	wg.Wait()
	if peak.Load() > size {
		t.Fatalf("peak concurrent connections %d exceeds size %d", peak.Load(), size)
	}
}
