package metrics

import "sync"

// FeedEntry is a compact view of one recent sample.
type FeedEntry struct {
	OffsetMs   int64  `json:"timestamp_ms"`
	Endpoint   string `json:"endpoint"`
	Kind       string `json:"kind"`
	StoreUs    int64  `json:"store_us"`
	OverheadUs int64  `json:"overhead_us"`
	TotalUs    int64  `json:"total_us"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
}

// SampleFeed keeps the most recent entries in insertion order.
type SampleFeed struct {
	mu    sync.Mutex
	buf   []FeedEntry
	next  int
	count int
}

// NewSampleFeed returns a feed holding at most capacity entries.
func NewSampleFeed(capacity int) *SampleFeed {
	if capacity <= 0 {
		capacity = 1
	}
	return &SampleFeed{buf: make([]FeedEntry, capacity)}
}

// Push appends e, evicting the oldest entry when full.
func (f *SampleFeed) Push(e FeedEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buf[f.next] = e
	f.next = (f.next + 1) % len(f.buf)
	if f.count < len(f.buf) {
		f.count++
	}
}

// Entries copies the feed, oldest first.
func (f *SampleFeed) Entries() []FeedEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]FeedEntry, 0, f.count)
	start := (f.next - f.count + len(f.buf)) % len(f.buf)
	for i := 0; i < f.count; i++ {
		out = append(out, f.buf[(start+i)%len(f.buf)])
	}
	return out
}

// Len reports the number of buffered entries.
func (f *SampleFeed) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count
}

// Capacity reports the maximum number of entries.
func (f *SampleFeed) Capacity() int {
	return len(f.buf)
}
