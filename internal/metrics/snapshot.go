package metrics

import "time"

// Snapshot is an immutable, deep-copied view of the aggregator.
// Latencies are microseconds.
type Snapshot struct {
	TakenAt           time.Time            `json:"taken_at"`
	ElapsedSecs       float64              `json:"elapsed_secs"`
	TotalRequests     int64                `json:"total_requests"`
	TotalReads        int64                `json:"total_reads"`
	TotalWrites       int64                `json:"total_writes"`
	TotalErrors       int64                `json:"total_errors"`
	RequestsPerSec    float64              `json:"requests_per_sec"`
	AvgRequestsPerSec float64              `json:"avg_requests_per_sec"`
	StoreRead         PercentileSet        `json:"store_read"`
	StoreWrite        PercentileSet        `json:"store_write"`
	Overhead          PercentileSet        `json:"overhead"`
	EndToEnd          PercentileSet        `json:"e2e"`
	Timeline          []TimelineBucket     `json:"timeline"`
	Distribution      []DistributionBucket `json:"distribution"`
	RecentSamples     []FeedEntry          `json:"recent_samples"`
	Errors            map[string]int64     `json:"errors,omitempty"`
}

// ErrorRate is the share of failed requests, 0 when there were none.
func (s Snapshot) ErrorRate() float64 {
	if s.TotalRequests == 0 {
		return 0
	}
	return float64(s.TotalErrors) / float64(s.TotalRequests)
}

// Elapsed returns ElapsedSecs as a duration.
func (s Snapshot) Elapsed() time.Duration {
	return time.Duration(s.ElapsedSecs * float64(time.Second))
}
