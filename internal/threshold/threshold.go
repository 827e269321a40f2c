package threshold

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/torosent/kvscope/internal/metrics"
)

// Threshold represents a performance assertion that can pass or fail.
type Threshold struct {
	Metric    string  // e.g., "e2e", "store_read", "errors"
	Aggregate string  // e.g., "p95", "p999", "avg", "max", "rate"
	Operator  string  // e.g., "<", "<=", ">", ">=", "=="
	Value     float64 // The threshold value to compare against
	Raw       string  // Original threshold string for display
}

// Result represents the outcome of evaluating a threshold.
type Result struct {
	Threshold Threshold `json:"-"`
	Raw       string    `json:"threshold"`
	Actual    float64   `json:"actual"`
	Pass      bool      `json:"pass"`
	Message   string    `json:"message"`
}

// Evaluator evaluates thresholds against a snapshot.
type Evaluator struct {
	thresholds []Threshold
}

// NewEvaluator creates a new threshold evaluator.
func NewEvaluator(thresholds []Threshold) *Evaluator {
	return &Evaluator{
		thresholds: thresholds,
	}
}

// Evaluate checks all thresholds against the provided snapshot.
func (e *Evaluator) Evaluate(snap metrics.Snapshot) []Result {
	if len(e.thresholds) == 0 {
		return nil
	}

	results := make([]Result, 0, len(e.thresholds))
	for _, t := range e.thresholds {
		results = append(results, e.evaluateOne(t, snap))
	}
	return results
}

// AllPassed reports whether every result passed.
func AllPassed(results []Result) bool {
	for _, r := range results {
		if !r.Pass {
			return false
		}
	}
	return true
}

func (e *Evaluator) evaluateOne(t Threshold, snap metrics.Snapshot) Result {
	actual, err := extractMetricValue(t, snap)
	if err != nil {
		return Result{
			Threshold: t,
			Raw:       t.Raw,
			Pass:      false,
			Message:   fmt.Sprintf("✗ %s: %v", t.Raw, err),
		}
	}

	pass := compareValues(actual, t.Operator, t.Value)
	status := "✓"
	if !pass {
		status = "✗"
	}

	return Result{
		Threshold: t,
		Raw:       t.Raw,
		Actual:    actual,
		Pass:      pass,
		Message:   fmt.Sprintf("%s %s: %.3f %s %.3f", status, t.Raw, actual, t.Operator, t.Value),
	}
}

var thresholdPattern = regexp.MustCompile(`^([a-z0-9_]+):([a-z0-9]+)\s*([<>=!]+)\s*([0-9.]+)$`)

// Parse parses a threshold string into a Threshold struct.
// Supported formats:
//   - "e2e:p99 < 5"            (latency percentile in ms; also store_read, store_write, overhead)
//   - "store_read:avg < 1"     (mean latency in ms)
//   - "overhead:max < 2"       (max latency in ms)
//   - "store_write:count > 0"  (samples in that histogram)
//   - "errors:rate < 0.01"     (error rate as decimal)
//   - "errors:count < 10"      (error count)
//   - "requests:rate > 1000"   (average operations per second)
//   - "requests:count > 5000"  (operations issued)
func Parse(s string) (Threshold, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Threshold{}, fmt.Errorf("empty threshold string")
	}

	matches := thresholdPattern.FindStringSubmatch(s)
	if matches == nil {
		return Threshold{}, fmt.Errorf("invalid threshold format: %q (expected format: metric:aggregate operator value, e.g., 'e2e:p99 < 5')", s)
	}

	metric := matches[1]
	aggregate := matches[2]
	operator := matches[3]
	valueStr := matches[4]

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return Threshold{}, fmt.Errorf("invalid threshold value %q: %v", valueStr, err)
	}

	if !isValidMetric(metric) {
		return Threshold{}, fmt.Errorf("unsupported metric: %q (supported: %s)", metric, strings.Join(validMetrics, ", "))
	}
	if !isValidAggregate(metric, aggregate) {
		return Threshold{}, fmt.Errorf("unsupported aggregate %q for %s", aggregate, metric)
	}
	if !isValidOperator(operator) {
		return Threshold{}, fmt.Errorf("unsupported operator: %q (supported: <, <=, >, >=, ==)", operator)
	}

	return Threshold{
		Metric:    metric,
		Aggregate: aggregate,
		Operator:  operator,
		Value:     value,
		Raw:       s,
	}, nil
}

// ParseMultiple parses multiple threshold strings.
func ParseMultiple(thresholds []string) ([]Threshold, error) {
	if len(thresholds) == 0 {
		return nil, nil
	}

	result := make([]Threshold, 0, len(thresholds))
	var errors []string

	for i, s := range thresholds {
		t, err := Parse(s)
		if err != nil {
			errors = append(errors, fmt.Sprintf("threshold[%d]: %v", i, err))
			continue
		}
		result = append(result, t)
	}

	if len(errors) > 0 {
		return nil, fmt.Errorf("threshold parsing errors: %s", strings.Join(errors, "; "))
	}

	return result, nil
}

var (
	validMetrics      = []string{"store_read", "store_write", "overhead", "e2e", "errors", "requests"}
	latencyAggregates = []string{"p50", "p95", "p99", "p999", "avg", "mean", "min", "max", "count"}
	counterAggregates = []string{"rate", "count"}
)

func isValidMetric(metric string) bool {
	return contains(validMetrics, metric)
}

func isValidAggregate(metric, aggregate string) bool {
	switch metric {
	case "errors", "requests":
		return contains(counterAggregates, aggregate)
	default:
		return contains(latencyAggregates, aggregate)
	}
}

func isValidOperator(operator string) bool {
	return contains([]string{"<", "<=", ">", ">=", "=="}, operator)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func extractMetricValue(t Threshold, snap metrics.Snapshot) (float64, error) {
	switch t.Metric {
	case "store_read":
		return extractLatencyMetric(t.Aggregate, snap.StoreRead)
	case "store_write":
		return extractLatencyMetric(t.Aggregate, snap.StoreWrite)
	case "overhead":
		return extractLatencyMetric(t.Aggregate, snap.Overhead)
	case "e2e":
		return extractLatencyMetric(t.Aggregate, snap.EndToEnd)
	case "errors":
		return extractErrorMetric(t.Aggregate, snap)
	case "requests":
		return extractRequestMetric(t.Aggregate, snap)
	default:
		return 0, fmt.Errorf("unknown metric: %s", t.Metric)
	}
}

// extractLatencyMetric reports milliseconds. A histogram with no samples
// fails every latency assertion except count.
func extractLatencyMetric(aggregate string, p metrics.PercentileSet) (float64, error) {
	if aggregate == "count" {
		return float64(p.Count), nil
	}
	if p.NoData {
		return 0, fmt.Errorf("no samples recorded")
	}
	ms := func(us int64) float64 { return float64(us) / 1000 }
	switch aggregate {
	case "p50":
		return ms(p.P50Us), nil
	case "p95":
		return ms(p.P95Us), nil
	case "p99":
		return ms(p.P99Us), nil
	case "p999":
		return ms(p.P999Us), nil
	case "avg", "mean":
		return p.MeanUs / 1000, nil
	case "min":
		return ms(p.MinUs), nil
	case "max":
		return ms(p.MaxUs), nil
	default:
		return 0, fmt.Errorf("unsupported latency aggregate %q", aggregate)
	}
}

func extractErrorMetric(aggregate string, snap metrics.Snapshot) (float64, error) {
	switch aggregate {
	case "count":
		return float64(snap.TotalErrors), nil
	case "rate":
		return snap.ErrorRate(), nil
	default:
		return 0, fmt.Errorf("unsupported aggregate %q for errors (use 'count' or 'rate')", aggregate)
	}
}

func extractRequestMetric(aggregate string, snap metrics.Snapshot) (float64, error) {
	switch aggregate {
	case "count":
		return float64(snap.TotalRequests), nil
	case "rate":
		return snap.AvgRequestsPerSec, nil
	default:
		return 0, fmt.Errorf("unsupported aggregate %q for requests (use 'count' or 'rate')", aggregate)
	}
}

func compareValues(actual float64, operator string, expected float64) bool {
	// Handle floating point comparison with small epsilon
	epsilon := 1e-9

	switch operator {
	case "<":
		return actual < expected
	case "<=":
		return actual <= expected || math.Abs(actual-expected) < epsilon
	case ">":
		return actual > expected
	case ">=":
		return actual >= expected || math.Abs(actual-expected) < epsilon
	case "==":
		return math.Abs(actual-expected) < epsilon
	default:
		return false
	}
}
