// Package publish broadcasts aggregator snapshots to a changing set of
// observers on a fixed interval.
package publish

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/torosent/kvscope/internal/metrics"
)

// ErrClosed is returned by Subscribe after the publisher has shut down.
var ErrClosed = errors.New("publish: publisher closed")

const (
	DefaultInterval = 500 * time.Millisecond
	// DefaultMaxMisses is how many consecutive ticks an observer may leave
	// its previous snapshot unread before it is dropped.
	DefaultMaxMisses = 20
)

// Snapshotter produces the snapshot to broadcast.
type Snapshotter interface {
	Snapshot() metrics.Snapshot
}

// Options configure a Publisher.
type Options struct {
	Interval  time.Duration
	MaxMisses int
	Logger    *zap.Logger
}

// Subscription is one observer. C delivers the latest snapshot; it is
// closed when the observer is dropped or the publisher stops.
type Subscription struct {
	C <-chan metrics.Snapshot

	id     uint64
	ch     chan metrics.Snapshot
	p      *Publisher
	misses atomic.Int32
}

// Close detaches the observer. It is safe to call more than once.
func (s *Subscription) Close() {
	s.p.remove(s.id, "unsubscribed")
}

// Publisher ticks every Interval and hands each subscriber the newest
// snapshot without ever blocking on a slow one.
type Publisher struct {
	src  Snapshotter
	opts Options

	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
	closed bool

	ticks atomic.Int64
}

func New(src Snapshotter, opts Options) *Publisher {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.MaxMisses <= 0 {
		opts.MaxMisses = DefaultMaxMisses
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Publisher{src: src, opts: opts, subs: make(map[uint64]*Subscription)}
}

// Subscribe registers a new observer. It receives snapshots from the next tick on.
func (p *Publisher) Subscribe() (*Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}
	p.nextID++
	ch := make(chan metrics.Snapshot, 1)
	sub := &Subscription{C: ch, id: p.nextID, ch: ch, p: p}
	p.subs[sub.id] = sub
	p.opts.Logger.Debug("observer subscribed", zap.Uint64("id", sub.id), zap.Int("observers", len(p.subs)))
	return sub, nil
}

// Len reports the number of registered observers.
func (p *Publisher) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.subs)
}

// Ticks reports how many broadcasts have run.
func (p *Publisher) Ticks() int64 { return p.ticks.Load() }

// Run broadcasts until ctx ends, then closes every subscription.
func (p *Publisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()
	defer p.shutdown()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.Publish()
		}
	}
}

// Publish takes one snapshot and offers it to every observer. An observer
// whose buffer still holds the previous snapshot has it replaced; after
// MaxMisses consecutive misses it is dropped.
func (p *Publisher) Publish() {
	p.mu.RLock()
	if len(p.subs) == 0 || p.closed {
		p.mu.RUnlock()
		p.ticks.Add(1)
		return
	}
	p.mu.RUnlock()

	snap := p.src.Snapshot()
	p.ticks.Add(1)

	var stale []uint64
	p.mu.RLock()
	for id, sub := range p.subs {
		select {
		case sub.ch <- snap:
			sub.misses.Store(0)
			continue
		default:
		}
		// Buffer still full: swap the stale snapshot for the fresh one.
		select {
		case <-sub.ch:
		default:
		}
		select {
		case sub.ch <- snap:
		default:
		}
		if int(sub.misses.Add(1)) >= p.opts.MaxMisses {
			stale = append(stale, id)
		}
	}
	p.mu.RUnlock()

	for _, id := range stale {
		p.remove(id, "observer not reading")
	}
}

func (p *Publisher) remove(id uint64, reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sub, ok := p.subs[id]
	if !ok {
		return
	}
	delete(p.subs, id)
	close(sub.ch)
	p.opts.Logger.Debug("observer removed",
		zap.Uint64("id", id),
		zap.String("reason", reason),
		zap.Int("observers", len(p.subs)),
	)
}

func (p *Publisher) shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	for id, sub := range p.subs {
		delete(p.subs, id)
		close(sub.ch)
	}
}
