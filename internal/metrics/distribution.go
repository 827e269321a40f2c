package metrics

import (
	"fmt"
	"sort"
	"sync"
)

// DefaultBoundaries are the upper edges, in microseconds, of the
// fixed-width latency distribution. Values at or above the last edge land in
// an open-ended overflow bucket.
var DefaultBoundaries = []int64{
	25, 50, 100, 150, 200, 300, 400, 500, 750,
	1000, 1500, 2000, 3000, 5000, 10000, 50000,
}

// DistributionBucket is one non-empty row of the distribution table.
// The range is [RangeStartUs, RangeEndUs); for the overflow bucket
// RangeEndUs is the largest value observed and OpenEnded is set.
type DistributionBucket struct {
	RangeStartUs int64 `json:"range_start"`
	RangeEndUs   int64 `json:"range_end"`
	Count        int64 `json:"count"`
	OpenEnded    bool  `json:"open_ended,omitempty"`
}

// DistributionTable counts latencies into fixed boundary buckets.
type DistributionTable struct {
	bounds []int64

	mu      sync.Mutex
	counts  []int64
	maxSeen int64
}

// NewDistributionTable validates boundaries (positive, strictly increasing)
// and returns an empty table with len(boundaries)+1 buckets.
func NewDistributionTable(boundaries []int64) (*DistributionTable, error) {
	if len(boundaries) == 0 {
		return nil, fmt.Errorf("distribution: at least one boundary is required")
	}
	for i, b := range boundaries {
		if b <= 0 {
			return nil, fmt.Errorf("distribution: boundary %d must be positive, got %d", i, b)
		}
		if i > 0 && b <= boundaries[i-1] {
			return nil, fmt.Errorf("distribution: boundaries must be strictly increasing (%d after %d)", b, boundaries[i-1])
		}
	}
	bounds := append([]int64(nil), boundaries...)
	return &DistributionTable{
		bounds: bounds,
		counts: make([]int64, len(bounds)+1),
	}, nil
}

// Observe counts one value. Each value lands in exactly one bucket.
func (d *DistributionTable) Observe(us int64) {
	if us < 0 {
		us = 0
	}
	idx := sort.Search(len(d.bounds), func(i int) bool { return us < d.bounds[i] })

	d.mu.Lock()
	d.counts[idx]++
	if us > d.maxSeen {
		d.maxSeen = us
	}
	d.mu.Unlock()
}

// Buckets returns the non-empty buckets in ascending order.
func (d *DistributionTable) Buckets() []DistributionBucket {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []DistributionBucket
	for i, c := range d.counts {
		if c == 0 {
			continue
		}
		var start int64
		if i > 0 {
			start = d.bounds[i-1]
		}
		if i == len(d.bounds) {
			out = append(out, DistributionBucket{
				RangeStartUs: start,
				RangeEndUs:   d.maxSeen,
				Count:        c,
				OpenEnded:    true,
			})
			continue
		}
		out = append(out, DistributionBucket{RangeStartUs: start, RangeEndUs: d.bounds[i], Count: c})
	}
	return out
}

// Total returns the sum of all bucket counts.
func (d *DistributionTable) Total() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	var total int64
	for _, c := range d.counts {
		total += c
	}
	return total
}
