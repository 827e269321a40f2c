package metrics

import (
	"sync"
	"time"
)

// TimelineBucket holds the averages of one second of the run.
type TimelineBucket struct {
	OffsetMs      int64   `json:"timestamp_ms"`
	Count         int64   `json:"count"`
	AvgStoreUs    float64 `json:"avg_store_us"`
	AvgOverheadUs float64 `json:"avg_overhead_us"`
	AvgTotalUs    float64 `json:"avg_total_us"`
}

type timelineAccum struct {
	index    int64
	count    int64
	store    int64
	overhead int64
	total    int64
}

func (a timelineAccum) bucket(width time.Duration) TimelineBucket {
	b := TimelineBucket{
		OffsetMs: a.index * width.Milliseconds(),
		Count:    a.count,
	}
	if a.count > 0 {
		n := float64(a.count)
		b.AvgStoreUs = float64(a.store) / n
		b.AvgOverheadUs = float64(a.overhead) / n
		b.AvgTotalUs = float64(a.total) / n
	}
	return b
}

// Timeline accumulates running sums per elapsed interval of the run.
// Intervals without samples appear as zero-count buckets.
type Timeline struct {
	width time.Duration

	mu      sync.Mutex
	start   time.Time
	closed  []TimelineBucket
	current timelineAccum
	active  bool
}

// NewTimeline returns a timeline with buckets of width (default one second).
func NewTimeline(width time.Duration) *Timeline {
	if width <= 0 {
		width = time.Second
	}
	return &Timeline{width: width}
}

// Reset drops all buckets and anchors the timeline at start.
func (t *Timeline) Reset(start time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.start = start
	t.closed = nil
	t.current = timelineAccum{}
	t.active = false
}

// Observe adds one sample at time at.
func (t *Timeline) Observe(at time.Time, storeUs, overheadUs, totalUs int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.start.IsZero() {
		t.start = at
	}
	idx := int64(at.Sub(t.start) / t.width)
	if idx < 0 {
		idx = 0
	}

	switch {
	case !t.active:
		for i := int64(0); i < idx; i++ {
			t.closed = append(t.closed, timelineAccum{index: i}.bucket(t.width))
		}
		t.current = timelineAccum{index: idx}
		t.active = true
	case idx > t.current.index:
		t.closed = append(t.closed, t.current.bucket(t.width))
		for i := t.current.index + 1; i < idx; i++ {
			t.closed = append(t.closed, timelineAccum{index: i}.bucket(t.width))
		}
		t.current = timelineAccum{index: idx}
	}
	// A late sample from a slower worker folds into the open bucket.

	t.current.count++
	t.current.store += storeUs
	t.current.overhead += overheadUs
	t.current.total += totalUs
}

// Buckets copies the closed buckets plus the open one.
func (t *Timeline) Buckets() []TimelineBucket {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TimelineBucket, 0, len(t.closed)+1)
	out = append(out, t.closed...)
	if t.active {
		out = append(out, t.current.bucket(t.width))
	}
	return out
}
