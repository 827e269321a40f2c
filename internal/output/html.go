package output

import (
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/torosent/kvscope/internal/metrics"
	"github.com/torosent/kvscope/internal/threshold"
)

// HTMLReportData contains all data needed for the HTML report template.
type HTMLReportData struct {
	GeneratedAt      string
	Snapshot         metrics.Snapshot
	Stages           []stage
	Distribution     []distributionRow
	Errors           []metrics.ErrorCount
	ThresholdSummary *ThresholdSummary
	TimelineJSON     string
	Metadata         ReportMetadata
}

type distributionRow struct {
	Label   string
	Count   int64
	Percent float64
}

// timelinePoint is the chart-friendly form of one timeline bucket.
type timelinePoint struct {
	Seconds    float64 `json:"t"`
	OpsPerSec  float64 `json:"ops"`
	StoreMs    float64 `json:"store"`
	OverheadMs float64 `json:"overhead"`
	TotalMs    float64 `json:"total"`
}

func timelinePoints(buckets []metrics.TimelineBucket) []timelinePoint {
	points := make([]timelinePoint, 0, len(buckets))
	width := 1.0
	if len(buckets) > 1 {
		width = float64(buckets[1].OffsetMs-buckets[0].OffsetMs) / 1000
	}
	for _, b := range buckets {
		points = append(points, timelinePoint{
			Seconds:    float64(b.OffsetMs) / 1000,
			OpsPerSec:  float64(b.Count) / width,
			StoreMs:    b.AvgStoreUs / 1000,
			OverheadMs: b.AvgOverheadUs / 1000,
			TotalMs:    b.AvgTotalUs / 1000,
		})
	}
	return points
}

// GenerateHTMLReport generates a standalone HTML report with embedded charts.
func GenerateHTMLReport(w io.Writer, snap metrics.Snapshot, thresholdResults []threshold.Result, metadata ReportMetadata) error {
	timelineJSON, err := json.Marshal(timelinePoints(snap.Timeline))
	if err != nil {
		return fmt.Errorf("failed to marshal timeline: %w", err)
	}

	var total int64
	for _, b := range snap.Distribution {
		total += b.Count
	}
	dist := make([]distributionRow, 0, len(snap.Distribution))
	for _, b := range snap.Distribution {
		dist = append(dist, distributionRow{Label: bucketLabel(b), Count: b.Count, Percent: percent(b.Count, total)})
	}

	data := HTMLReportData{
		GeneratedAt:      time.Now().Format(time.RFC3339),
		Snapshot:         snap,
		Stages:           stages(snap),
		Distribution:     dist,
		Errors:           metrics.FlattenErrors(snap.Errors),
		ThresholdSummary: Summarize(thresholdResults),
		TimelineJSON:     string(timelineJSON),
		Metadata:         metadata,
	}

	tmpl, err := template.New("report").Funcs(template.FuncMap{
		"formatDuration": func(d time.Duration) string {
			return d.Round(time.Millisecond).String()
		},
		"formatFloat": func(f float64) string {
			return fmt.Sprintf("%.2f", f)
		},
		"formatMs": func(us int64) string {
			return ms(us)
		},
		"formatMeanMs": func(us float64) string {
			return fmt.Sprintf("%.3f", us/1000)
		},
		"formatPercent": func(part, total int64) string {
			return fmt.Sprintf("%.1f", percent(part, total))
		},
	}).Parse(htmlTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}

	if err := tmpl.Execute(w, data); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}

	return nil
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>kvscope Benchmark Report</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif;
            background: #f3f5f8;
            color: #1f2937;
            line-height: 1.6;
            padding: 20px;
        }
        .container {
            max-width: 1400px;
            margin: 0 auto;
            background: white;
            border-radius: 8px;
            box-shadow: 0 2px 8px rgba(0,0,0,0.1);
            overflow: hidden;
        }
        header {
            background: linear-gradient(135deg, #0f766e 0%, #1e3a8a 100%);
            color: white;
            padding: 30px 40px;
        }
        header h1 { font-size: 2rem; margin-bottom: 10px; }
        header .meta { opacity: 0.9; font-size: 0.9rem; }
        .content { padding: 40px; }
        .grid {
            display: grid;
            grid-template-columns: repeat(auto-fit, minmax(220px, 1fr));
            gap: 20px;
            margin-bottom: 40px;
        }
        .card {
            background: #f8f9fa;
            border-radius: 8px;
            padding: 20px;
            border-left: 4px solid #0f766e;
        }
        .card h3 {
            font-size: 0.9rem;
            color: #6b7280;
            text-transform: uppercase;
            letter-spacing: 0.5px;
            margin-bottom: 10px;
        }
        .card .value { font-size: 2rem; font-weight: bold; }
        .card .subvalue { font-size: 0.85rem; color: #6b7280; margin-top: 5px; }
        .card.error { border-left-color: #ef4444; }
        .section { margin-bottom: 40px; }
        .section h2 {
            font-size: 1.5rem;
            margin-bottom: 20px;
            padding-bottom: 10px;
            border-bottom: 2px solid #e5e7eb;
        }
        .chart-container {
            border-radius: 8px;
            padding: 20px;
            margin-bottom: 30px;
            border: 1px solid #e5e7eb;
        }
        .chart-container h3 { font-size: 1.1rem; margin-bottom: 15px; color: #4b5563; }
        .chart { width: 100%; height: 300px; }
        table { width: 100%; border-collapse: collapse; }
        th, td { text-align: left; padding: 12px; border-bottom: 1px solid #e5e7eb; }
        td.num, th.num { text-align: right; font-variant-numeric: tabular-nums; }
        th {
            background: #f8f9fa;
            font-weight: 600;
            color: #4b5563;
            font-size: 0.9rem;
            text-transform: uppercase;
            letter-spacing: 0.5px;
        }
        tr:hover { background: #f8f9fa; }
        .badge {
            display: inline-block;
            padding: 4px 12px;
            border-radius: 12px;
            font-size: 0.85rem;
            font-weight: 600;
        }
        .badge-success { background: #d1fae5; color: #065f46; }
        .badge-error { background: #fee2e2; color: #991b1b; }
        .bar { background: #0f766e; height: 10px; border-radius: 5px; }
        .no-data { text-align: center; padding: 40px; color: #6b7280; font-style: italic; }
    </style>
    <script src="https://cdn.jsdelivr.net/npm/uplot@1.6.24/dist/uPlot.iife.min.js"></script>
    <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/uplot@1.6.24/dist/uPlot.min.css">
</head>
<body>
    <div class="container">
        <header>
            <h1>kvscope Benchmark Report</h1>
            <div class="meta">Store: {{.Metadata.Store}} | Concurrency: {{.Metadata.Concurrency}} | Read share: {{.Metadata.ReadPct}}%{{if .Metadata.Rate}} | Rate: {{.Metadata.Rate}}/s ({{.Metadata.ArrivalModel}}){{end}}</div>
            <div class="meta">{{if .Metadata.RunID}}Run {{.Metadata.RunID}} | {{end}}Generated: {{.GeneratedAt}} | Duration: {{formatDuration .Snapshot.Elapsed}}</div>
        </header>

        <div class="content">
            <div class="grid">
                <div class="card">
                    <h3>Total Operations</h3>
                    <div class="value">{{.Snapshot.TotalRequests}}</div>
                    <div class="subvalue">{{.Snapshot.TotalReads}} reads / {{.Snapshot.TotalWrites}} writes</div>
                </div>
                <div class="card error">
                    <h3>Errors</h3>
                    <div class="value">{{.Snapshot.TotalErrors}}</div>
                    <div class="subvalue">{{formatPercent .Snapshot.TotalErrors .Snapshot.TotalRequests}}%</div>
                </div>
                <div class="card">
                    <h3>Ops/sec</h3>
                    <div class="value">{{formatFloat .Snapshot.AvgRequestsPerSec}}</div>
                    <div class="subvalue">recent {{formatFloat .Snapshot.RequestsPerSec}}</div>
                </div>
                <div class="card">
                    <h3>End-to-end P99</h3>
                    <div class="value">{{formatMs .Snapshot.EndToEnd.P99Us}} ms</div>
                    <div class="subvalue">p50 {{formatMs .Snapshot.EndToEnd.P50Us}} ms</div>
                </div>
            </div>

            {{if .Snapshot.Timeline}}
            <div class="section">
                <h2>Performance Over Time</h2>
                <div class="chart-container">
                    <h3>Operations Per Second</h3>
                    <div id="ops-chart" class="chart"></div>
                </div>
                <div class="chart-container">
                    <h3>Average Latency by Stage (ms)</h3>
                    <div id="latency-chart" class="chart"></div>
                </div>
            </div>
            {{end}}

            <div class="section">
                <h2>Latency Breakdown (ms)</h2>
                <table>
                    <thead>
                        <tr>
                            <th>Stage</th>
                            <th class="num">Count</th>
                            <th class="num">Min</th>
                            <th class="num">Mean</th>
                            <th class="num">P50</th>
                            <th class="num">P95</th>
                            <th class="num">P99</th>
                            <th class="num">P99.9</th>
                            <th class="num">Max</th>
                        </tr>
                    </thead>
                    <tbody>
                        {{range .Stages}}
                        <tr>
                            <td><strong>{{.Name}}</strong></td>
                            {{if .Set.NoData}}
                            <td class="num">0</td>
                            <td class="no-data" colspan="7">no samples</td>
                            {{else}}
                            <td class="num">{{.Set.Count}}</td>
                            <td class="num">{{formatMs .Set.MinUs}}</td>
                            <td class="num">{{formatMeanMs .Set.MeanUs}}</td>
                            <td class="num">{{formatMs .Set.P50Us}}</td>
                            <td class="num">{{formatMs .Set.P95Us}}</td>
                            <td class="num">{{formatMs .Set.P99Us}}</td>
                            <td class="num">{{formatMs .Set.P999Us}}</td>
                            <td class="num">{{formatMs .Set.MaxUs}}</td>
                            {{end}}
                        </tr>
                        {{end}}
                    </tbody>
                </table>
            </div>

            {{if .Distribution}}
            <div class="section">
                <h2>End-to-end Distribution</h2>
                <table>
                    <thead>
                        <tr><th>Range</th><th class="num">Count</th><th class="num">Share</th><th></th></tr>
                    </thead>
                    <tbody>
                        {{range .Distribution}}
                        <tr>
                            <td>{{.Label}}</td>
                            <td class="num">{{.Count}}</td>
                            <td class="num">{{formatFloat .Percent}}%</td>
                            <td style="width: 40%"><div class="bar" style="width: {{formatFloat .Percent}}%"></div></td>
                        </tr>
                        {{end}}
                    </tbody>
                </table>
            </div>
            {{end}}

            {{if .ThresholdSummary}}
            <div class="section">
                <h2>Thresholds ({{.ThresholdSummary.Passed}}/{{.ThresholdSummary.Total}} Passed)</h2>
                <table>
                    <thead>
                        <tr>
                            <th>Threshold</th>
                            <th>Metric</th>
                            <th>Expected</th>
                            <th>Actual</th>
                            <th>Status</th>
                        </tr>
                    </thead>
                    <tbody>
                        {{range .ThresholdSummary.Results}}
                        <tr>
                            <td>{{.Threshold}}</td>
                            <td>{{.Metric}} ({{.Aggregate}})</td>
                            <td>{{.Operator}} {{formatFloat .Expected}}</td>
                            <td>{{formatFloat .Actual}}</td>
                            <td>
                                {{if .Pass}}
                                <span class="badge badge-success">✓ PASS</span>
                                {{else}}
                                <span class="badge badge-error">✗ FAIL</span>
                                {{end}}
                            </td>
                        </tr>
                        {{end}}
                    </tbody>
                </table>
            </div>
            {{end}}

            {{if .Errors}}
            <div class="section">
                <h2>Error Breakdown</h2>
                <table>
                    <thead><tr><th>Error</th><th class="num">Count</th></tr></thead>
                    <tbody>
                        {{range .Errors}}
                        <tr><td>{{.Label}}</td><td class="num">{{.Count}}</td></tr>
                        {{end}}
                    </tbody>
                </table>
            </div>
            {{end}}
        </div>
    </div>

    {{if .Snapshot.Timeline}}
    <script>
        const timelineJSON = {{.TimelineJSON}};
        const timeline = JSON.parse(timelineJSON);

        if (timeline && timeline.length > 0) {
            const seconds = timeline.map(d => d.t);

            new uPlot({
                title: "Operations Per Second",
                width: document.getElementById('ops-chart').offsetWidth,
                height: 300,
                scales: { x: { time: false } },
                series: [
                    { label: "Time (s)" },
                    { label: "Ops/s", stroke: "#0f766e", fill: "rgba(15, 118, 110, 0.1)", width: 2 }
                ],
                axes: [{ label: "Time (seconds)" }, { label: "Ops/sec" }]
            }, [seconds, timeline.map(d => d.ops)], document.getElementById('ops-chart'));

            new uPlot({
                title: "Average Latency by Stage",
                width: document.getElementById('latency-chart').offsetWidth,
                height: 300,
                scales: { x: { time: false } },
                series: [
                    { label: "Time (s)" },
                    { label: "Store", stroke: "#1e3a8a", width: 2 },
                    { label: "Overhead", stroke: "#f59e0b", width: 2 },
                    { label: "Total", stroke: "#ef4444", width: 2 }
                ],
                axes: [{ label: "Time (seconds)" }, { label: "Latency (ms)" }]
            }, [seconds, timeline.map(d => d.store), timeline.map(d => d.overhead), timeline.map(d => d.total)],
               document.getElementById('latency-chart'));
        }
    </script>
    {{end}}
</body>
</html>
`
