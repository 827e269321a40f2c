package metrics

import (
	"sync"

	"github.com/HdrHistogram/hdrhistogram-go"
)

const (
	lowestTrackableUs  = 1
	highestTrackableUs = 60_000_000
	significantFigures = 3
)

// PercentileSet summarises one latency histogram in microseconds.
// NoData is set when nothing was recorded; all other fields are then zero.
type PercentileSet struct {
	Count  int64   `json:"count"`
	MinUs  int64   `json:"min"`
	MeanUs float64 `json:"mean"`
	P50Us  int64   `json:"p50"`
	P95Us  int64   `json:"p95"`
	P99Us  int64   `json:"p99"`
	P999Us int64   `json:"p999"`
	MaxUs  int64   `json:"max"`
	NoData bool    `json:"no_data,omitempty"`
}

// LatencyHistogram is a concurrency-safe HDR histogram of microsecond values.
type LatencyHistogram struct {
	mu   sync.Mutex
	hist *hdrhistogram.Histogram
	min  int64
	max  int64
	sum  int64
}

// NewLatencyHistogram tracks values from 1µs up to 60s with 3 significant figures.
func NewLatencyHistogram() *LatencyHistogram {
	return &LatencyHistogram{
		hist: hdrhistogram.New(lowestTrackableUs, highestTrackableUs, significantFigures),
	}
}

// Record adds one value. Values outside the trackable range are clamped.
func (h *LatencyHistogram) Record(us int64) {
	us = clampMicros(us)

	h.mu.Lock()
	defer h.mu.Unlock()

	_ = h.hist.RecordValue(us)
	if h.hist.TotalCount() == 1 || us < h.min {
		h.min = us
	}
	if us > h.max {
		h.max = us
	}
	h.sum += us
}

// Count returns the number of recorded values.
func (h *LatencyHistogram) Count() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hist.TotalCount()
}

// Summary computes the percentile set. The result satisfies
// min <= p50 <= p95 <= p99 <= p999 <= max.
func (h *LatencyHistogram) Summary() PercentileSet {
	h.mu.Lock()
	defer h.mu.Unlock()

	count := h.hist.TotalCount()
	if count == 0 {
		return PercentileSet{NoData: true}
	}

	set := PercentileSet{
		Count:  count,
		MinUs:  h.min,
		MaxUs:  h.max,
		MeanUs: float64(h.sum) / float64(count),
	}
	// HDR buckets report their upper equivalent value, which can overshoot
	// the exact extremes tracked above.
	floor := h.min
	for _, p := range []struct {
		q   float64
		dst *int64
	}{
		{50, &set.P50Us},
		{95, &set.P95Us},
		{99, &set.P99Us},
		{99.9, &set.P999Us},
	} {
		v := h.hist.ValueAtQuantile(p.q)
		if v < floor {
			v = floor
		}
		if v > h.max {
			v = h.max
		}
		*p.dst = v
		floor = v
	}
	return set
}

func clampMicros(us int64) int64 {
	if us < lowestTrackableUs {
		return lowestTrackableUs
	}
	if us > highestTrackableUs {
		return highestTrackableUs
	}
	return us
}
