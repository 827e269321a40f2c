package promexport

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/torosent/kvscope/internal/metrics"
	"github.com/torosent/kvscope/internal/pool"
)

type fixedSnapshot metrics.Snapshot

func (f fixedSnapshot) Snapshot() metrics.Snapshot { return metrics.Snapshot(f) }

func sampleSnapshot() fixedSnapshot {
	return fixedSnapshot{
		TotalRequests:  4,
		TotalReads:     3,
		TotalWrites:    1,
		TotalErrors:    1,
		RequestsPerSec: 12.5,
		StoreRead:      metrics.PercentileSet{Count: 3, MinUs: 100, MeanUs: 200, P50Us: 200, P95Us: 300, P99Us: 300, P999Us: 300, MaxUs: 300},
		StoreWrite:     metrics.PercentileSet{NoData: true},
		Overhead:       metrics.PercentileSet{Count: 3, MeanUs: 5, P50Us: 5, P95Us: 5, P99Us: 5, P999Us: 5},
		EndToEnd:       metrics.PercentileSet{Count: 3, MeanUs: 205, P50Us: 205, P95Us: 305, P99Us: 305, P999Us: 305},
		Errors:         map[string]int64{"Store timeout": 1},
	}
}

func TestCollectorCounters(t *testing.T) {
	c := NewCollector(sampleSnapshot(), Options{Running: func() bool { return true }})

	expected := `
# HELP kvscope_requests_total Operations issued in the current run
# TYPE kvscope_requests_total counter
kvscope_requests_total{kind="read"} 3
kvscope_requests_total{kind="write"} 1
# HELP kvscope_errors_total Failed operations in the current run by error
# TYPE kvscope_errors_total counter
kvscope_errors_total{error="Store timeout"} 1
# HELP kvscope_benchmark_running 1 while a benchmark is running
# TYPE kvscope_benchmark_running gauge
kvscope_benchmark_running 1
`
	if err := testutil.CollectAndCompare(c, strings.NewReader(expected),
		"kvscope_requests_total", "kvscope_errors_total", "kvscope_benchmark_running"); err != nil {
		t.Fatal(err)
	}
}

func TestCollectorLatencySummaries(t *testing.T) {
	c := NewCollector(sampleSnapshot(), Options{})
	if n := testutil.CollectAndCount(c, "kvscope_latency_microseconds"); n != 4 {
		t.Fatalf("latency series = %d, want 4 stages", n)
	}
	if n := testutil.CollectAndCount(c, "kvscope_benchmark_running"); n != 0 {
		t.Fatalf("running gauge should be absent without a Running func, got %d", n)
	}
}

func TestCollectorPoolGauges(t *testing.T) {
	c := NewCollector(sampleSnapshot(), Options{Pool: func() pool.Stats {
		return pool.Stats{Size: 8, InUse: 3, Waits: 10, Timeouts: 2}
	}})

	expected := `
# HELP kvscope_store_pool_in_use Store connections currently checked out
# TYPE kvscope_store_pool_in_use gauge
kvscope_store_pool_in_use 3
# HELP kvscope_store_pool_timeouts_total Times a caller gave up waiting for a store connection
# TYPE kvscope_store_pool_timeouts_total counter
kvscope_store_pool_timeouts_total 2
`
	if err := testutil.CollectAndCompare(c, strings.NewReader(expected),
		"kvscope_store_pool_in_use", "kvscope_store_pool_timeouts_total"); err != nil {
		t.Fatal(err)
	}
}

func TestHandlerServesTextFormat(t *testing.T) {
	h, err := Handler(NewCollector(sampleSnapshot(), Options{}))
	if err != nil {
		t.Fatalf("Handler: %v", err)
	}
	srv := httptest.NewServer(h)
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	for _, want := range []string{
		`kvscope_requests_per_second 12.5`,
		`kvscope_latency_microseconds{stage="e2e",quantile="0.99"} 305`,
		`go_goroutines`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("scrape output missing %q", want)
		}
	}
}
