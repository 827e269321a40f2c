package dashboard

import (
	"strings"
	"testing"
	"time"

	"github.com/torosent/kvscope/internal/metrics"
)

func TestGaugePercent(t *testing.T) {
	tests := []struct {
		name      string
		cur, peak float64
		want      int
	}{
		{"below floor", 50, 50, 50},
		{"at peak", 400, 400, 100},
		{"half of peak", 200, 400, 50},
		{"zero", 0, 0, 0},
		{"above peak", 500, 400, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := gaugePercent(tt.cur, tt.peak); got != tt.want {
				t.Errorf("gaugePercent(%v, %v) = %d, want %d", tt.cur, tt.peak, got, tt.want)
			}
		})
	}
}

func TestFormatStageText(t *testing.T) {
	snap := metrics.Snapshot{
		StoreRead:  metrics.PercentileSet{Count: 1, P50Us: 1500, P95Us: 2000, P99Us: 2500, P999Us: 3000},
		StoreWrite: metrics.PercentileSet{NoData: true},
		Overhead:   metrics.PercentileSet{Count: 1, P50Us: 10, P95Us: 20, P99Us: 30, P999Us: 40},
		EndToEnd:   metrics.PercentileSet{Count: 1, P50Us: 1510, P95Us: 2020, P99Us: 2530, P999Us: 3040},
	}
	text := formatStageText(snap)
	lines := strings.Split(text, "\n")
	if len(lines) != 5 {
		t.Fatalf("got %d lines, want 5:\n%s", len(lines), text)
	}
	if !strings.Contains(lines[1], "1.50") || !strings.Contains(lines[1], "3.00") {
		t.Errorf("read line = %q", lines[1])
	}
	if !strings.Contains(lines[2], "no samples") {
		t.Errorf("write line = %q, want no samples", lines[2])
	}
	if !strings.Contains(lines[4], "2.53") {
		t.Errorf("e2e line = %q", lines[4])
	}
}

func TestDistributionBars(t *testing.T) {
	labels, values := distributionBars([]metrics.DistributionBucket{
		{RangeStartUs: 100, RangeEndUs: 150, Count: 25},
		{RangeStartUs: 1000, RangeEndUs: 2000, Count: 25},
		{RangeStartUs: 50000, RangeEndUs: 81234, Count: 50, OpenEnded: true},
	})
	wantLabels := []string{"<150us", "<2ms", ">50ms"}
	wantValues := []float64{25, 25, 50}
	for i := range wantLabels {
		if labels[i] != wantLabels[i] {
			t.Errorf("labels[%d] = %q, want %q", i, labels[i], wantLabels[i])
		}
		if values[i] != wantValues[i] {
			t.Errorf("values[%d] = %v, want %v", i, values[i], wantValues[i])
		}
	}

	labels, values = distributionBars(nil)
	if len(labels) != 1 || values[0] != 0 {
		t.Errorf("empty distribution = %v %v", labels, values)
	}
}

func TestFormatFeedRows(t *testing.T) {
	entries := []metrics.FeedEntry{
		{OffsetMs: 1000, Kind: "read", Endpoint: "GET /api/users/:id", StoreUs: 500, TotalUs: 600, Success: true},
		{OffsetMs: 2000, Kind: "write", Endpoint: "POST /api/users", StoreUs: 900, TotalUs: 1000, Error: "Timeout"},
		{OffsetMs: 3000, Kind: "read", Endpoint: "GET /api/products", StoreUs: 300, TotalUs: 350, Success: true},
	}

	rows := formatFeedRows(entries, 2)
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if !strings.Contains(rows[0], "/api/products") {
		t.Errorf("newest entry should be first, got %q", rows[0])
	}
	if !strings.Contains(rows[1], "[Timeout](fg:red)") {
		t.Errorf("failed entry row = %q", rows[1])
	}

	empty := formatFeedRows(nil, 5)
	if len(empty) != 1 || !strings.Contains(empty[0], "No operations") {
		t.Errorf("empty feed rows = %v", empty)
	}
}

func TestFormatErrorRows(t *testing.T) {
	if rows := formatErrorRows(nil); !strings.Contains(rows[0], "No failures") {
		t.Errorf("rows = %v", rows)
	}

	errs := map[string]int64{}
	for i := 0; i < 15; i++ {
		errs[strings.Repeat("e", i+1)] = int64(i)
	}
	rows := formatErrorRows(errs)
	if len(rows) != errorRows {
		t.Fatalf("got %d rows, want %d", len(rows), errorRows)
	}
	if !strings.HasSuffix(rows[0], " 14") {
		t.Errorf("largest count should come first, got %q", rows[0])
	}
}

func TestFormatRunParams(t *testing.T) {
	tests := []struct {
		name     string
		config   RunConfig
		contains []string
		excludes []string
	}{
		{
			name:     "unlimited rate",
			config:   RunConfig{Store: "memory", Concurrency: 10, ReadPct: 70},
			contains: []string{"Store: memory", "Workers: 10", "Reads: 70%", "Rate: unlimited"},
			excludes: []string{"Duration:", "Config:"},
		},
		{
			name:     "rate with model and duration",
			config:   RunConfig{Store: "redis", Concurrency: 4, ReadPct: 0, Rate: 500, ArrivalModel: "poisson", Duration: 30 * time.Second},
			contains: []string{"Store: redis", "Rate: 500/s poisson", "Duration: 30s", "Reads: 0%"},
		},
		{
			name:     "rate defaults to uniform",
			config:   RunConfig{Rate: 10, ConfigFile: "bench.yaml"},
			contains: []string{"Rate: 10/s uniform", "Config: bench.yaml"},
			excludes: []string{"Workers:"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &Dashboard{runConfig: tt.config}
			got := d.formatRunParams()
			for _, want := range tt.contains {
				if !strings.Contains(got, want) {
					t.Errorf("formatRunParams() = %q, missing %q", got, want)
				}
			}
			for _, bad := range tt.excludes {
				if strings.Contains(got, bad) {
					t.Errorf("formatRunParams() = %q, should not contain %q", got, bad)
				}
			}
		})
	}
}

func TestUpdateWidgets(t *testing.T) {
	d := newDashboard(nil, RunConfig{Store: "memory", Concurrency: 2, ReadPct: 50})

	snap := metrics.Snapshot{
		ElapsedSecs:       3,
		TotalRequests:     300,
		TotalReads:        150,
		TotalWrites:       150,
		TotalErrors:       3,
		RequestsPerSec:    120,
		AvgRequestsPerSec: 100,
		EndToEnd:          metrics.PercentileSet{Count: 297, P50Us: 800, P99Us: 2000, MaxUs: 4000},
		StoreRead:         metrics.PercentileSet{NoData: true},
		StoreWrite:        metrics.PercentileSet{NoData: true},
		Overhead:          metrics.PercentileSet{NoData: true},
		Distribution:      []metrics.DistributionBucket{{RangeStartUs: 750, RangeEndUs: 1000, Count: 297}},
		Errors:            map[string]int64{"Timeout": 3},
	}
	d.update(snap)

	if got := d.latencySparkle.Sparklines[0].Data; len(got) != 1 || got[0] != 2 {
		t.Errorf("sparkline data = %v, want [2]", got)
	}
	if d.opsGauge.Percent != 100 {
		t.Errorf("gauge percent = %d, want 100 at the peak", d.opsGauge.Percent)
	}
	if !strings.Contains(d.summaryPara.Text, "Ops: 300 (R 150 / W 150)") {
		t.Errorf("summary = %q", d.summaryPara.Text)
	}
	if !strings.Contains(d.errorList.Rows[0], "Timeout") {
		t.Errorf("error rows = %v", d.errorList.Rows)
	}
	if len(d.distChart.Data) != 1 || d.distChart.Data[0] != 100 {
		t.Errorf("distribution data = %v", d.distChart.Data)
	}
	if d.Last().TotalRequests != 300 {
		t.Error("Last() should return the rendered snapshot")
	}

	// A slower tick keeps the earlier peak.
	snap.RequestsPerSec = 60
	d.update(snap)
	if d.opsGauge.Percent != 50 {
		t.Errorf("gauge percent = %d, want 50", d.opsGauge.Percent)
	}
	if len(d.latencySparkle.Sparklines[0].Data) != 2 {
		t.Error("sparkline should grow per snapshot")
	}
}

func TestUpdateWithoutSamplesKeepsSparkline(t *testing.T) {
	d := newDashboard(nil, RunConfig{})
	d.update(metrics.Snapshot{EndToEnd: metrics.PercentileSet{NoData: true}})
	if got := d.latencySparkle.Sparklines[0].Data; len(got) != 1 || got[0] != 0 {
		t.Errorf("sparkline data = %v, want initial [0]", got)
	}
}
