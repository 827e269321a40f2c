package threshold

import (
	"strings"
	"testing"

	"github.com/torosent/kvscope/internal/metrics"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		want      Threshold
		wantError bool
	}{
		{
			name:  "e2e p99",
			input: "e2e:p99 < 5",
			want: Threshold{
				Metric:    "e2e",
				Aggregate: "p99",
				Operator:  "<",
				Value:     5,
				Raw:       "e2e:p99 < 5",
			},
		},
		{
			name:  "error rate",
			input: "errors:rate < 0.01",
			want: Threshold{
				Metric:    "errors",
				Aggregate: "rate",
				Operator:  "<",
				Value:     0.01,
				Raw:       "errors:rate < 0.01",
			},
		},
		{
			name:  "store read p999 with <=",
			input: "store_read:p999 <= 10",
			want: Threshold{
				Metric:    "store_read",
				Aggregate: "p999",
				Operator:  "<=",
				Value:     10,
				Raw:       "store_read:p999 <= 10",
			},
		},
		{
			name:  "requests rate with >",
			input: "requests:rate > 1000",
			want: Threshold{
				Metric:    "requests",
				Aggregate: "rate",
				Operator:  ">",
				Value:     1000,
				Raw:       "requests:rate > 1000",
			},
		},
		{
			name:  "surrounding whitespace and no spaces",
			input: "  overhead:avg<0.5 ",
			want: Threshold{
				Metric:    "overhead",
				Aggregate: "avg",
				Operator:  "<",
				Value:     0.5,
				Raw:       "overhead:avg<0.5",
			},
		},
		{name: "empty string", input: "", wantError: true},
		{name: "missing operator", input: "e2e:p95 500", wantError: true},
		{name: "unknown metric", input: "http_req_duration:p95 < 500", wantError: true},
		{name: "unknown aggregate", input: "e2e:p90 < 5", wantError: true},
		{name: "percentile on counter", input: "errors:p95 < 5", wantError: true},
		{name: "rate on latency", input: "store_write:rate < 5", wantError: true},
		{name: "bad operator", input: "e2e:p95 << 5", wantError: true},
		{name: "not a number", input: "e2e:p95 < abc", wantError: true},
		{name: "two dots", input: "e2e:p95 < 1.2.3", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if (err != nil) != tt.wantError {
				t.Fatalf("Parse() error = %v, wantError %v", err, tt.wantError)
			}
			if !tt.wantError && got != tt.want {
				t.Errorf("Parse() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseMultiple(t *testing.T) {
	tests := []struct {
		name      string
		input     []string
		wantCount int
		wantError bool
	}{
		{
			name:      "multiple valid thresholds",
			input:     []string{"e2e:p95 < 5", "errors:rate < 0.01", "requests:rate > 100"},
			wantCount: 3,
		},
		{name: "empty slice", input: []string{}},
		{
			name:      "one valid, one invalid",
			input:     []string{"e2e:p95 < 5", "invalid threshold"},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMultiple(tt.input)
			if (err != nil) != tt.wantError {
				t.Fatalf("ParseMultiple() error = %v, wantError %v", err, tt.wantError)
			}
			if !tt.wantError && len(got) != tt.wantCount {
				t.Errorf("ParseMultiple() returned %d thresholds, want %d", len(got), tt.wantCount)
			}
		})
	}
}

func TestParseMultipleReportsIndex(t *testing.T) {
	_, err := ParseMultiple([]string{"e2e:p95 < 5", "bogus"})
	if err == nil || !strings.Contains(err.Error(), "threshold[1]") {
		t.Fatalf("err = %v, want mention of threshold[1]", err)
	}
}

func sampleSnapshot() metrics.Snapshot {
	return metrics.Snapshot{
		TotalRequests:     1000,
		TotalReads:        700,
		TotalWrites:       300,
		TotalErrors:       20,
		RequestsPerSec:    180,
		AvgRequestsPerSec: 200,
		StoreRead: metrics.PercentileSet{
			Count: 690, MinUs: 100, MeanUs: 450, P50Us: 400,
			P95Us: 900, P99Us: 1500, P999Us: 3000, MaxUs: 4000,
		},
		StoreWrite: metrics.PercentileSet{
			Count: 290, MinUs: 200, MeanUs: 800, P50Us: 700,
			P95Us: 1800, P99Us: 2500, P999Us: 5000, MaxUs: 6000,
		},
		Overhead: metrics.PercentileSet{
			Count: 980, MinUs: 5, MeanUs: 40, P50Us: 30,
			P95Us: 90, P99Us: 150, P999Us: 400, MaxUs: 700,
		},
		EndToEnd: metrics.PercentileSet{
			Count: 980, MinUs: 120, MeanUs: 600, P50Us: 500,
			P95Us: 1900, P99Us: 2600, P999Us: 5200, MaxUs: 6500,
		},
	}
}

func TestEvaluator(t *testing.T) {
	snap := sampleSnapshot()

	tests := []struct {
		name       string
		thresholds []string
		wantPass   []bool
	}{
		{
			name:       "all thresholds pass",
			thresholds: []string{"e2e:p99 < 3", "errors:rate < 0.05", "requests:rate > 50"},
			wantPass:   []bool{true, true, true},
		},
		{
			name:       "some thresholds fail",
			thresholds: []string{"e2e:p99 < 2", "errors:rate < 0.01", "requests:rate > 50"},
			wantPass:   []bool{false, false, true},
		},
		{
			name:       "stage percentiles",
			thresholds: []string{"store_read:p50 < 0.5", "store_write:p95 < 2", "overhead:p999 <= 0.4"},
			wantPass:   []bool{true, true, true},
		},
		{
			name:       "avg min and max",
			thresholds: []string{"e2e:avg < 0.7", "e2e:max < 6", "store_read:min >= 0.1"},
			wantPass:   []bool{true, false, true},
		},
		{
			name:       "counts",
			thresholds: []string{"errors:count < 50", "requests:count >= 1000", "store_write:count == 290"},
			wantPass:   []bool{true, true, true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			thresholds, err := ParseMultiple(tt.thresholds)
			if err != nil {
				t.Fatalf("ParseMultiple() error = %v", err)
			}

			results := NewEvaluator(thresholds).Evaluate(snap)
			if len(results) != len(tt.wantPass) {
				t.Fatalf("got %d results, want %d", len(results), len(tt.wantPass))
			}
			for i, result := range results {
				if result.Pass != tt.wantPass[i] {
					t.Errorf("threshold[%d] %q: got pass=%v, want %v (actual=%.3f)",
						i, result.Raw, result.Pass, tt.wantPass[i], result.Actual)
				}
			}
		})
	}
}

func TestEvaluatorNoThresholds(t *testing.T) {
	if got := NewEvaluator(nil).Evaluate(sampleSnapshot()); got != nil {
		t.Errorf("Evaluate() = %v, want nil", got)
	}
}

func TestEvaluatorEmptyHistogram(t *testing.T) {
	snap := sampleSnapshot()
	snap.StoreWrite = metrics.PercentileSet{NoData: true}

	thresholds, err := ParseMultiple([]string{"store_write:p99 < 100", "store_write:count == 0"})
	if err != nil {
		t.Fatal(err)
	}
	results := NewEvaluator(thresholds).Evaluate(snap)
	if results[0].Pass {
		t.Error("latency threshold on an empty histogram should fail")
	}
	if !strings.Contains(results[0].Message, "no samples") {
		t.Errorf("message = %q", results[0].Message)
	}
	if !results[1].Pass {
		t.Errorf("count threshold on an empty histogram should pass, got %q", results[1].Message)
	}
	if AllPassed(results) {
		t.Error("AllPassed() = true, want false")
	}
}

func TestAllPassed(t *testing.T) {
	tests := []struct {
		name    string
		results []Result
		want    bool
	}{
		{"none", nil, true},
		{"all pass", []Result{{Pass: true}, {Pass: true}}, true},
		{"one fails", []Result{{Pass: true}, {Pass: false}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AllPassed(tt.results); got != tt.want {
				t.Errorf("AllPassed() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCompareValues(t *testing.T) {
	tests := []struct {
		name     string
		actual   float64
		operator string
		expected float64
		want     bool
	}{
		{"less than true", 50, "<", 100, true},
		{"less than false", 100, "<", 50, false},
		{"less than equal", 100, "<", 100, false},
		{"less than or equal true", 50, "<=", 100, true},
		{"less than or equal equal", 100, "<=", 100, true},
		{"less than or equal false", 150, "<=", 100, false},
		{"greater than true", 150, ">", 100, true},
		{"greater than false", 50, ">", 100, false},
		{"greater than equal", 100, ">", 100, false},
		{"greater than or equal true", 150, ">=", 100, true},
		{"greater than or equal equal", 100, ">=", 100, true},
		{"greater than or equal false", 50, ">=", 100, false},
		{"equal true", 100, "==", 100, true},
		{"equal false", 100, "==", 101, false},
		{"equal with floating point precision", 100.0000000001, "==", 100, true},
		{"unknown operator", 1, "!=", 2, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := compareValues(tt.actual, tt.operator, tt.expected)
			if got != tt.want {
				t.Errorf("compareValues(%.2f, %s, %.2f) = %v, want %v",
					tt.actual, tt.operator, tt.expected, got, tt.want)
			}
		})
	}
}

func TestExtractMetricValue(t *testing.T) {
	snap := sampleSnapshot()

	tests := []struct {
		name      string
		threshold Threshold
		want      float64
		wantError bool
	}{
		{"e2e p50", Threshold{Metric: "e2e", Aggregate: "p50"}, 0.5, false},
		{"e2e p95", Threshold{Metric: "e2e", Aggregate: "p95"}, 1.9, false},
		{"e2e p99", Threshold{Metric: "e2e", Aggregate: "p99"}, 2.6, false},
		{"e2e p999", Threshold{Metric: "e2e", Aggregate: "p999"}, 5.2, false},
		{"store_read avg", Threshold{Metric: "store_read", Aggregate: "avg"}, 0.45, false},
		{"store_read mean", Threshold{Metric: "store_read", Aggregate: "mean"}, 0.45, false},
		{"store_write min", Threshold{Metric: "store_write", Aggregate: "min"}, 0.2, false},
		{"overhead max", Threshold{Metric: "overhead", Aggregate: "max"}, 0.7, false},
		{"overhead count", Threshold{Metric: "overhead", Aggregate: "count"}, 980, false},
		{"errors rate", Threshold{Metric: "errors", Aggregate: "rate"}, 0.02, false},
		{"errors count", Threshold{Metric: "errors", Aggregate: "count"}, 20, false},
		{"requests rate", Threshold{Metric: "requests", Aggregate: "rate"}, 200, false},
		{"requests count", Threshold{Metric: "requests", Aggregate: "count"}, 1000, false},
		{"unsupported metric", Threshold{Metric: "invalid_metric", Aggregate: "p95"}, 0, true},
		{"unsupported aggregate for errors", Threshold{Metric: "errors", Aggregate: "p95"}, 0, true},
		{"unsupported aggregate for requests", Threshold{Metric: "requests", Aggregate: "max"}, 0, true},
		{"unsupported latency aggregate", Threshold{Metric: "e2e", Aggregate: "rate"}, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractMetricValue(tt.threshold, snap)
			if (err != nil) != tt.wantError {
				t.Fatalf("extractMetricValue() error = %v, wantError %v", err, tt.wantError)
			}
			if !tt.wantError && !compareValues(got, "==", tt.want) {
				t.Errorf("extractMetricValue() = %v, want %v", got, tt.want)
			}
		})
	}
}
