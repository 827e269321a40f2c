package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/torosent/kvscope/internal/metrics"
	"github.com/torosent/kvscope/internal/threshold"
)

// ReportMetadata describes the run a report was produced for.
type ReportMetadata struct {
	RunID        string    `json:"run_id,omitempty"`
	Store        string    `json:"store"`
	Concurrency  int       `json:"concurrency"`
	DurationSecs float64   `json:"duration_secs"`
	ReadPct      int       `json:"read_pct"`
	Rate         int       `json:"rate,omitempty"`
	ArrivalModel string    `json:"arrival_model,omitempty"`
	StartedAt    time.Time `json:"started_at"`
}

// ThresholdSummary counts passed and failed thresholds.
type ThresholdSummary struct {
	Total   int                   `json:"total"`
	Passed  int                   `json:"passed"`
	Failed  int                   `json:"failed"`
	Results []ThresholdResultJSON `json:"results"`
}

// ThresholdResultJSON is one evaluated threshold in machine-readable form.
type ThresholdResultJSON struct {
	Threshold string  `json:"threshold"`
	Metric    string  `json:"metric"`
	Aggregate string  `json:"aggregate"`
	Operator  string  `json:"operator"`
	Expected  float64 `json:"expected"`
	Actual    float64 `json:"actual"`
	Pass      bool    `json:"pass"`
}

// Report is the document written by the JSON and YAML printers.
type Report struct {
	Run        ReportMetadata    `json:"run"`
	Metrics    metrics.Snapshot  `json:"metrics"`
	Thresholds *ThresholdSummary `json:"thresholds,omitempty"`
}

// Summarize converts evaluated thresholds; it returns nil for none.
func Summarize(results []threshold.Result) *ThresholdSummary {
	if len(results) == 0 {
		return nil
	}
	s := &ThresholdSummary{
		Total:   len(results),
		Results: make([]ThresholdResultJSON, len(results)),
	}
	for i, tr := range results {
		s.Results[i] = ThresholdResultJSON{
			Threshold: tr.Threshold.Raw,
			Metric:    tr.Threshold.Metric,
			Aggregate: tr.Threshold.Aggregate,
			Operator:  tr.Threshold.Operator,
			Expected:  tr.Threshold.Value,
			Actual:    tr.Actual,
			Pass:      tr.Pass,
		}
		if tr.Pass {
			s.Passed++
		} else {
			s.Failed++
		}
	}
	return s
}

// NewReport bundles a final snapshot with its run metadata.
func NewReport(snap metrics.Snapshot, results []threshold.Result, meta ReportMetadata) Report {
	return Report{Run: meta, Metrics: snap, Thresholds: Summarize(results)}
}

// stage pairs a histogram with its display name.
type stage struct {
	Name string
	Set  metrics.PercentileSet
}

func stages(snap metrics.Snapshot) []stage {
	return []stage{
		{"Store read", snap.StoreRead},
		{"Store write", snap.StoreWrite},
		{"Overhead", snap.Overhead},
		{"End-to-end", snap.EndToEnd},
	}
}

// PrintReport outputs a human-readable summary report.
func PrintReport(w io.Writer, snap metrics.Snapshot, results []threshold.Result) {
	fmt.Fprintln(w, "\n--- Benchmark Results ---")
	fmt.Fprintf(w, "Total Operations:  %d\n", snap.TotalRequests)
	fmt.Fprintf(w, "Reads:             %d\n", snap.TotalReads)
	fmt.Fprintf(w, "Writes:            %d\n", snap.TotalWrites)
	fmt.Fprintf(w, "Errors:            %d (%.2f%%)\n", snap.TotalErrors, snap.ErrorRate()*100)
	fmt.Fprintf(w, "Duration:          %s\n", snap.Elapsed().Round(time.Millisecond))
	fmt.Fprintf(w, "Ops/sec (avg):     %.2f\n", snap.AvgRequestsPerSec)
	fmt.Fprintf(w, "Ops/sec (recent):  %.2f\n", snap.RequestsPerSec)

	fmt.Fprintln(w, "\nLatency (ms):")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "  Stage\tCount\tMin\tMean\tP50\tP95\tP99\tP99.9\tMax\t")
	for _, s := range stages(snap) {
		if s.Set.NoData {
			fmt.Fprintf(tw, "  %s\t0\t-\t-\t-\t-\t-\t-\t-\t\n", s.Name)
			continue
		}
		p := s.Set
		fmt.Fprintf(tw, "  %s\t%d\t%s\t%.3f\t%s\t%s\t%s\t%s\t%s\t\n",
			s.Name, p.Count, ms(p.MinUs), p.MeanUs/1000, ms(p.P50Us), ms(p.P95Us), ms(p.P99Us), ms(p.P999Us), ms(p.MaxUs))
	}
	_ = tw.Flush()

	if len(snap.Distribution) > 0 {
		fmt.Fprintln(w, "\nEnd-to-end Distribution:")
		total := int64(0)
		for _, b := range snap.Distribution {
			total += b.Count
		}
		for _, b := range snap.Distribution {
			fmt.Fprintf(w, "  %-18s %8d  %5.1f%%\n", bucketLabel(b), b.Count, percent(b.Count, total))
		}
	}

	if rows := metrics.FlattenErrors(snap.Errors); len(rows) > 0 {
		fmt.Fprintln(w, "\nErrors:")
		for _, row := range rows {
			fmt.Fprintf(w, "  %s: %d\n", row.Label, row.Count)
		}
	}

	if len(results) > 0 {
		fmt.Fprintln(w, "\nThresholds:")
		for _, r := range results {
			fmt.Fprintf(w, "  %s\n", r.Message)
		}
	}
}

// PrintJSONReport outputs a JSON-formatted report.
func PrintJSONReport(w io.Writer, report Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

// PrintYAMLReport outputs the same document as PrintJSONReport in YAML. The
// JSON form is decoded first so that both share field names.
func PrintYAMLReport(w io.Writer, report Report) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(report); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	var doc any
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		return fmt.Errorf("decode report: %w", err)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("write yaml: %w", err)
	}
	return enc.Close()
}

func ms(us int64) string {
	return fmt.Sprintf("%.3f", float64(us)/1000)
}

func percent(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}

// bucketLabel renders a distribution row as a microsecond range.
func bucketLabel(b metrics.DistributionBucket) string {
	if b.OpenEnded {
		return fmt.Sprintf(">= %dus", b.RangeStartUs)
	}
	return fmt.Sprintf("%d-%dus", b.RangeStartUs, b.RangeEndUs)
}
