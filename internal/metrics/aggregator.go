package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// AggregatorOptions configures an Aggregator. Zero values select defaults.
type AggregatorOptions struct {
	FeedCapacity  int
	RateWindow    time.Duration
	RateSlot      time.Duration
	TimelineWidth time.Duration
	Boundaries    []int64
	Clock         func() time.Time
}

const (
	DefaultFeedCapacity = 500
	DefaultRateWindow   = 5 * time.Second
)

func (o *AggregatorOptions) normalize() {
	if o.FeedCapacity <= 0 {
		o.FeedCapacity = DefaultFeedCapacity
	}
	if o.RateWindow <= 0 {
		o.RateWindow = DefaultRateWindow
	}
	if o.RateSlot <= 0 {
		o.RateSlot = time.Second
	}
	if o.TimelineWidth <= 0 {
		o.TimelineWidth = time.Second
	}
	if len(o.Boundaries) == 0 {
		o.Boundaries = DefaultBoundaries
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
}

// aggState is everything one run accumulates. Reset swaps in a fresh one.
type aggState struct {
	storeRead  *LatencyHistogram
	storeWrite *LatencyHistogram
	overhead   *LatencyHistogram
	endToEnd   *LatencyHistogram
	dist       *DistributionTable
	rate       *RollingRateWindow
	feed       *SampleFeed
	timeline   *Timeline

	requests atomic.Int64
	reads    atomic.Int64
	writes   atomic.Int64
	failures atomic.Int64

	startNanos atomic.Int64
	endNanos   atomic.Int64

	errMu  sync.Mutex
	errors map[string]int64
}

// Aggregator receives samples from many goroutines and produces snapshots.
type Aggregator struct {
	opts  AggregatorOptions
	state atomic.Pointer[aggState]
}

// NewAggregator panics if opts.Boundaries is not strictly increasing.
func NewAggregator(opts AggregatorOptions) *Aggregator {
	opts.normalize()
	if _, err := NewDistributionTable(opts.Boundaries); err != nil {
		panic(err)
	}
	a := &Aggregator{opts: opts}
	a.state.Store(a.newState(time.Time{}))
	return a
}

func (a *Aggregator) newState(start time.Time) *aggState {
	dist, _ := NewDistributionTable(a.opts.Boundaries)
	st := &aggState{
		storeRead:  NewLatencyHistogram(),
		storeWrite: NewLatencyHistogram(),
		overhead:   NewLatencyHistogram(),
		endToEnd:   NewLatencyHistogram(),
		dist:       dist,
		rate:       NewRollingRateWindow(a.opts.RateWindow, a.opts.RateSlot),
		feed:       NewSampleFeed(a.opts.FeedCapacity),
		timeline:   NewTimeline(a.opts.TimelineWidth),
		errors:     make(map[string]int64),
	}
	if !start.IsZero() {
		st.startNanos.Store(start.UnixNano())
		st.rate.Reset(start)
		st.timeline.Reset(start)
	}
	return st
}

// Reset discards every recorded sample and starts a new run at start.
// Samples recorded concurrently land in either the old or the new run.
func (a *Aggregator) Reset(start time.Time) {
	a.state.Store(a.newState(start))
}

// MarkFinished freezes the elapsed time of the current run at end.
func (a *Aggregator) MarkFinished(end time.Time) {
	a.state.Load().endNanos.Store(end.UnixNano())
}

// Record folds one sample into every sub-structure. Failed samples skip the
// latency histograms.
func (a *Aggregator) Record(s Sample) {
	st := a.state.Load()
	now := a.opts.Clock()
	st.startNanos.CompareAndSwap(0, now.UnixNano())

	storeUs := micros(s.StoreLatency)
	totalUs := micros(s.TotalLatency)
	overheadUs := micros(s.Overhead())

	st.requests.Add(1)
	if s.Kind == OpWrite {
		st.writes.Add(1)
	} else {
		st.reads.Add(1)
	}

	entry := FeedEntry{
		Endpoint:   s.Endpoint,
		Kind:       s.Kind.String(),
		StoreUs:    storeUs,
		OverheadUs: overheadUs,
		TotalUs:    totalUs,
		Success:    s.Success,
	}

	if s.Success {
		if s.Kind == OpWrite {
			st.storeWrite.Record(storeUs)
		} else {
			st.storeRead.Record(storeUs)
		}
		st.overhead.Record(overheadUs)
		st.endToEnd.Record(totalUs)
	} else {
		st.failures.Add(1)
		label := ErrorLabel(s.Err)
		entry.Error = label
		st.errMu.Lock()
		st.errors[label]++
		st.errMu.Unlock()
	}

	st.dist.Observe(totalUs)
	st.timeline.Observe(timelineAt(st, now), storeUs, overheadUs, totalUs)
	st.rate.Add(now)

	entry.OffsetMs = now.Sub(time.Unix(0, st.startNanos.Load())).Milliseconds()
	st.feed.Push(entry)
}

// timelineAt places samples recorded after MarkFinished in the run's last
// bucket so the timeline stops growing with wall-clock time.
func timelineAt(st *aggState, now time.Time) time.Time {
	end := st.endNanos.Load()
	if end == 0 || now.UnixNano() < end {
		return now
	}
	last := end - 1
	if start := st.startNanos.Load(); last < start {
		last = start
	}
	return time.Unix(0, last)
}

// Snapshot deep-copies the current state.
func (a *Aggregator) Snapshot() Snapshot {
	st := a.state.Load()
	now := a.opts.Clock()

	snap := Snapshot{
		TakenAt:       now,
		TotalRequests: st.requests.Load(),
		TotalReads:    st.reads.Load(),
		TotalWrites:   st.writes.Load(),
		TotalErrors:   st.failures.Load(),
		StoreRead:     st.storeRead.Summary(),
		StoreWrite:    st.storeWrite.Summary(),
		Overhead:      st.overhead.Summary(),
		EndToEnd:      st.endToEnd.Summary(),
		Timeline:      st.timeline.Buckets(),
		Distribution:  st.dist.Buckets(),
		RecentSamples: st.feed.Entries(),
	}

	if start := st.startNanos.Load(); start != 0 {
		end := now.UnixNano()
		if e := st.endNanos.Load(); e != 0 {
			end = e
		}
		if end > start {
			snap.ElapsedSecs = time.Duration(end - start).Seconds()
		}
	}
	snap.RequestsPerSec = st.rate.Rate(now)
	if snap.ElapsedSecs > 0 {
		snap.AvgRequestsPerSec = float64(snap.TotalRequests) / snap.ElapsedSecs
	}

	st.errMu.Lock()
	if len(st.errors) > 0 {
		snap.Errors = make(map[string]int64, len(st.errors))
		for k, v := range st.errors {
			snap.Errors[k] = v
		}
	}
	st.errMu.Unlock()

	return snap
}
