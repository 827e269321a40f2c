package output_test

import (
	"time"

	"github.com/torosent/kvscope/internal/metrics"
	"github.com/torosent/kvscope/internal/output"
	"github.com/torosent/kvscope/internal/threshold"
)

func sampleSnapshot() metrics.Snapshot {
	return metrics.Snapshot{
		TakenAt:           time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		ElapsedSecs:       2,
		TotalRequests:     100,
		TotalReads:        70,
		TotalWrites:       30,
		TotalErrors:       5,
		RequestsPerSec:    48,
		AvgRequestsPerSec: 50,
		StoreRead:         metrics.PercentileSet{Count: 68, MinUs: 100, MeanUs: 420, P50Us: 400, P95Us: 900, P99Us: 1200, P999Us: 1500, MaxUs: 1500},
		StoreWrite:        metrics.PercentileSet{Count: 27, MinUs: 200, MeanUs: 700, P50Us: 650, P95Us: 1400, P99Us: 1900, P999Us: 2100, MaxUs: 2100},
		Overhead:          metrics.PercentileSet{Count: 95, MinUs: 5, MeanUs: 30, P50Us: 25, P95Us: 80, P99Us: 110, P999Us: 150, MaxUs: 150},
		EndToEnd:          metrics.PercentileSet{Count: 95, MinUs: 110, MeanUs: 530, P50Us: 450, P95Us: 1450, P99Us: 1950, P999Us: 2250, MaxUs: 2250},
		Timeline: []metrics.TimelineBucket{
			{OffsetMs: 0, Count: 45, AvgStoreUs: 500, AvgOverheadUs: 30, AvgTotalUs: 530},
			{OffsetMs: 1000, Count: 50, AvgStoreUs: 480, AvgOverheadUs: 28, AvgTotalUs: 508},
		},
		Distribution: []metrics.DistributionBucket{
			{RangeStartUs: 100, RangeEndUs: 150, Count: 10},
			{RangeStartUs: 400, RangeEndUs: 500, Count: 60},
			{RangeStartUs: 2000, RangeEndUs: 3000, Count: 25},
		},
		RecentSamples: []metrics.FeedEntry{
			{OffsetMs: 1900, Endpoint: "GET /api/users/:id", Kind: "read", StoreUs: 400, OverheadUs: 20, TotalUs: 420, Success: true},
			{OffsetMs: 1950, Endpoint: "GET /api/users/:id", Kind: "read", StoreUs: 410, OverheadUs: 22, TotalUs: 432, Success: true},
			{OffsetMs: 1990, Endpoint: "POST /api/users", Kind: "write", StoreUs: 700, OverheadUs: 30, TotalUs: 730, Success: false, Error: "Timeout"},
		},
		Errors: map[string]int64{"Timeout": 3, "Connection Refused": 2},
	}
}

func sampleResults() []threshold.Result {
	return []threshold.Result{
		{
			Threshold: threshold.Threshold{Raw: "e2e:p99 < 5", Metric: "e2e", Aggregate: "p99", Operator: "<", Value: 5},
			Raw:       "e2e:p99 < 5",
			Actual:    1.95,
			Pass:      true,
			Message:   "✓ e2e:p99 < 5: 1.950 < 5.000",
		},
		{
			Threshold: threshold.Threshold{Raw: "errors:rate < 0.01", Metric: "errors", Aggregate: "rate", Operator: "<", Value: 0.01},
			Raw:       "errors:rate < 0.01",
			Actual:    0.05,
			Pass:      false,
			Message:   "✗ errors:rate < 0.01: 0.050 < 0.010",
		},
	}
}

func sampleMetadata() output.ReportMetadata {
	return output.ReportMetadata{
		RunID:        "01HZX0000000000000000000AB",
		Store:        "memory",
		Concurrency:  8,
		DurationSecs: 2,
		ReadPct:      70,
		StartedAt:    time.Date(2026, 1, 2, 3, 4, 3, 0, time.UTC),
	}
}
