package output

import (
	"fmt"
	"io"
	"sort"
	"sync/atomic"

	"github.com/torosent/kvscope/internal/metrics"
)

// ProgressReporter prints a one-line summary for every snapshot it receives.
type ProgressReporter struct {
	snaps    <-chan metrics.Snapshot
	done     chan struct{}
	finished chan struct{}
	writer   io.Writer
	active   int32
	last     atomic.Pointer[metrics.Snapshot]
}

// NewProgressReporter creates a progress reporter reading from snaps.
func NewProgressReporter(snaps <-chan metrics.Snapshot, writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	return &ProgressReporter{
		snaps:    snaps,
		done:     make(chan struct{}),
		finished: make(chan struct{}),
		writer:   writer,
	}
}

// Start begins displaying progress updates in a background goroutine.
func (p *ProgressReporter) Start() {
	if !atomic.CompareAndSwapInt32(&p.active, 0, 1) {
		return // already running
	}
	go p.run()
}

// Stop halts progress updates and ends the line.
func (p *ProgressReporter) Stop() {
	if atomic.CompareAndSwapInt32(&p.active, 1, 0) {
		close(p.done)
		<-p.finished
		fmt.Fprintln(p.writer)
	}
}

// Last returns the most recent snapshot seen, if any.
func (p *ProgressReporter) Last() (metrics.Snapshot, bool) {
	s := p.last.Load()
	if s == nil {
		return metrics.Snapshot{}, false
	}
	return *s, true
}

func (p *ProgressReporter) run() {
	defer close(p.finished)
	for {
		select {
		case snap, ok := <-p.snaps:
			if !ok {
				return
			}
			p.last.Store(&snap)
			fmt.Fprint(p.writer, "\r"+ProgressLine(snap))
		case <-p.done:
			return
		}
	}
}

// ProgressLine formats the compact status line for snap.
func ProgressLine(snap metrics.Snapshot) string {
	line := fmt.Sprintf("Ops: %d | Reads: %d | Writes: %d | Errors: %d | OPS/s: %.1f | P99: %.2fms",
		snap.TotalRequests, snap.TotalReads, snap.TotalWrites, snap.TotalErrors,
		snap.RequestsPerSec, float64(snap.EndToEnd.P99Us)/1000)
	if name, share, ok := topEndpoint(snap.RecentSamples); ok {
		line += fmt.Sprintf(" | Top Endpoint: %s (%.0f%%)", name, share*100)
	}
	return line
}

// topEndpoint returns the most frequent endpoint in the recent feed and its
// share of the feed.
func topEndpoint(entries []metrics.FeedEntry) (string, float64, bool) {
	if len(entries) == 0 {
		return "", 0, false
	}
	counts := make(map[string]int)
	for _, e := range entries {
		counts[e.Endpoint]++
	}
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] == counts[names[j]] {
			return names[i] < names[j]
		}
		return counts[names[i]] > counts[names[j]]
	})
	name := names[0]
	return name, float64(counts[name]) / float64(len(entries)), true
}
