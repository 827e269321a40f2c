// Package dashboard renders benchmark snapshots as a live terminal UI.
package dashboard

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"

	"github.com/torosent/kvscope/internal/metrics"
)

const (
	historyLen  = 100
	feedRows    = 12
	errorRows   = 10
	minGaugeMax = 100.0
)

// RunConfig holds the benchmark parameters shown in the header.
type RunConfig struct {
	Store        string        // Store backend name
	Concurrency  int           // Number of workers
	Duration     time.Duration // Run length
	ReadPct      int           // Share of reads
	Rate         int           // Operations per second (0 = unlimited)
	ArrivalModel string        // uniform or poisson
	ConfigFile   string        // Path to config file if used
}

// Dashboard renders a live terminal UI for benchmark snapshots.
type Dashboard struct {
	snaps        <-chan metrics.Snapshot
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownFunc func()
	wg           sync.WaitGroup
	mu           sync.Mutex

	// Widgets
	grid           *ui.Grid
	latencySparkle *widgets.SparklineGroup
	stagePara      *widgets.Paragraph
	opsGauge       *widgets.Gauge
	errorList      *widgets.List
	feedList       *widgets.List
	summaryPara    *widgets.Paragraph
	distChart      *widgets.BarChart
	latencyHistory []float64
	peakOps        float64
	last           metrics.Snapshot
	runConfig      RunConfig
}

// New initialises the terminal and creates a Dashboard fed by snaps.
// shutdownFunc runs when the user presses q or Ctrl+C.
func New(snaps <-chan metrics.Snapshot, cfg RunConfig, shutdownFunc func()) (*Dashboard, error) {
	if err := ui.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize termui: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	d := newDashboard(snaps, cfg)
	d.ctx = ctx
	d.cancel = cancel
	d.shutdownFunc = shutdownFunc
	d.setupGrid()

	return d, nil
}

func newDashboard(snaps <-chan metrics.Snapshot, cfg RunConfig) *Dashboard {
	d := &Dashboard{
		snaps:          snaps,
		latencyHistory: make([]float64, 0, historyLen),
		runConfig:      cfg,
	}
	d.initWidgets()
	return d
}

// initWidgets initializes all dashboard widgets.
func (d *Dashboard) initWidgets() {
	sparkline := widgets.NewSparkline()
	sparkline.Title = "End-to-end P99 (ms)"
	sparkline.LineColor = ui.ColorGreen
	sparkline.Data = []float64{0}

	d.latencySparkle = widgets.NewSparklineGroup(sparkline)
	d.latencySparkle.Title = "Real-time Latency"
	d.latencySparkle.BorderStyle.Fg = ui.ColorCyan

	d.stagePara = widgets.NewParagraph()
	d.stagePara.Title = "Latency by Stage (ms)"
	d.stagePara.Text = "Waiting for data..."
	d.stagePara.BorderStyle.Fg = ui.ColorCyan

	d.opsGauge = widgets.NewGauge()
	d.opsGauge.Title = "Operations Per Second"
	d.opsGauge.Percent = 0
	d.opsGauge.BarColor = ui.ColorBlue
	d.opsGauge.BorderStyle.Fg = ui.ColorCyan
	d.opsGauge.LabelStyle = ui.NewStyle(ui.ColorWhite)

	d.errorList = widgets.NewList()
	d.errorList.Title = "Errors"
	d.errorList.Rows = []string{"No failures"}
	d.errorList.TextStyle = ui.NewStyle(ui.ColorYellow)
	d.errorList.BorderStyle.Fg = ui.ColorCyan

	d.feedList = widgets.NewList()
	d.feedList.Title = "Recent Operations"
	d.feedList.Rows = []string{"Awaiting data"}
	d.feedList.TextStyle = ui.NewStyle(ui.ColorCyan)
	d.feedList.BorderStyle.Fg = ui.ColorCyan

	d.summaryPara = widgets.NewParagraph()
	d.summaryPara.Title = "Benchmark"
	d.summaryPara.Text = "Initializing..."
	d.summaryPara.BorderStyle.Fg = ui.ColorCyan

	d.distChart = widgets.NewBarChart()
	d.distChart.Title = "End-to-end Distribution (%)"
	d.distChart.BarWidth = 6
	d.distChart.BarColors = []ui.Color{ui.ColorGreen}
	d.distChart.NumFormatter = func(v float64) string { return fmt.Sprintf("%.0f", v) }
	d.distChart.BorderStyle.Fg = ui.ColorCyan
}

// setupGrid configures the layout grid.
func (d *Dashboard) setupGrid() {
	termWidth, termHeight := ui.TerminalDimensions()

	d.grid = ui.NewGrid()
	d.grid.SetRect(0, 0, termWidth, termHeight)

	d.grid.Set(
		ui.NewRow(0.14,
			ui.NewCol(0.6, d.summaryPara),
			ui.NewCol(0.4, d.opsGauge),
		),
		ui.NewRow(0.26,
			ui.NewCol(0.55, d.latencySparkle),
			ui.NewCol(0.45, d.stagePara),
		),
		ui.NewRow(0.25,
			ui.NewCol(1.0, d.distChart),
		),
		ui.NewRow(0.35,
			ui.NewCol(0.65, d.feedList),
			ui.NewCol(0.35, d.errorList),
		),
	)
}

// Start begins the dashboard update loop.
func (d *Dashboard) Start() {
	d.wg.Add(1)
	go d.run()
}

// Stop stops the dashboard and restores the terminal.
func (d *Dashboard) Stop() {
	d.cancel()
	d.wg.Wait()
	ui.Close()
	// Give terminal time to restore
	time.Sleep(100 * time.Millisecond)
}

// Last returns the most recent snapshot rendered.
func (d *Dashboard) Last() metrics.Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

// run is the main dashboard update loop.
func (d *Dashboard) run() {
	defer d.wg.Done()

	uiEvents := ui.PollEvents()
	snaps := d.snaps

	d.render()

	for {
		select {
		case <-d.ctx.Done():
			return
		case e := <-uiEvents:
			switch e.ID {
			case "q", "<C-c>":
				if d.shutdownFunc != nil {
					d.shutdownFunc()
				}
				// Stop cancels the context.
			case "<Resize>":
				payload := e.Payload.(ui.Resize)
				d.mu.Lock()
				d.grid.SetRect(0, 0, payload.Width, payload.Height)
				d.mu.Unlock()
				ui.Clear()
				d.render()
			}
		case snap, ok := <-snaps:
			if !ok {
				// Keep the last frame on screen until Stop.
				snaps = nil
				continue
			}
			d.update(snap)
			d.render()
		}
	}
}

// update refreshes all widget data from snap.
func (d *Dashboard) update(snap metrics.Snapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.last = snap

	if !snap.EndToEnd.NoData {
		p99 := float64(snap.EndToEnd.P99Us) / 1000
		d.latencyHistory = append(d.latencyHistory, p99)
		if len(d.latencyHistory) > historyLen {
			d.latencyHistory = d.latencyHistory[1:]
		}
		d.latencySparkle.Sparklines[0].Data = d.latencyHistory
		d.latencySparkle.Title = fmt.Sprintf(
			"Real-time Latency | P99: %.2fms | P50: %.2fms | Max: %.2fms",
			p99,
			float64(snap.EndToEnd.P50Us)/1000,
			float64(snap.EndToEnd.MaxUs)/1000,
		)
	}

	ops := snap.RequestsPerSec
	if ops > d.peakOps {
		d.peakOps = ops
	}
	d.opsGauge.Percent = gaugePercent(ops, d.peakOps)
	d.opsGauge.Label = fmt.Sprintf("%.1f ops/s (avg %.1f)", ops, snap.AvgRequestsPerSec)

	d.summaryPara.Text = fmt.Sprintf(
		"%s\nElapsed: %s | Ops: %d (R %d / W %d) | Errors: %d (%.2f%%)",
		d.formatRunParams(),
		snap.Elapsed().Round(time.Second),
		snap.TotalRequests,
		snap.TotalReads,
		snap.TotalWrites,
		snap.TotalErrors,
		snap.ErrorRate()*100,
	)

	d.stagePara.Text = formatStageText(snap)
	labels, values := distributionBars(snap.Distribution)
	d.distChart.Labels = labels
	d.distChart.Data = values
	d.feedList.Rows = formatFeedRows(snap.RecentSamples, feedRows)
	d.errorList.Rows = formatErrorRows(snap.Errors)
}

// render draws all widgets to the screen.
func (d *Dashboard) render() {
	d.mu.Lock()
	defer d.mu.Unlock()

	ui.Render(d.grid)
}

// gaugePercent scales cur against the peak seen so far, with a floor so a
// slow start does not pin the gauge at 100.
func gaugePercent(cur, peak float64) int {
	if peak < minGaugeMax {
		peak = minGaugeMax
	}
	pct := int(cur / peak * 100)
	if pct > 100 {
		pct = 100
	}
	if pct < 0 {
		pct = 0
	}
	return pct
}

func formatStageText(snap metrics.Snapshot) string {
	rows := []struct {
		name string
		set  metrics.PercentileSet
	}{
		{"Read ", snap.StoreRead},
		{"Write", snap.StoreWrite},
		{"Ovhd ", snap.Overhead},
		{"E2E  ", snap.EndToEnd},
	}
	lines := make([]string, 0, len(rows)+1)
	lines = append(lines, "       P50     P95     P99   P99.9")
	for _, r := range rows {
		if r.set.NoData {
			lines = append(lines, fmt.Sprintf("%s  [no samples](fg:white)", r.name))
			continue
		}
		lines = append(lines, fmt.Sprintf("%s %7.2f %7.2f %7.2f %7.2f",
			r.name,
			float64(r.set.P50Us)/1000,
			float64(r.set.P95Us)/1000,
			float64(r.set.P99Us)/1000,
			float64(r.set.P999Us)/1000,
		))
	}
	return strings.Join(lines, "\n")
}

// distributionBars returns one bar per non-empty bucket, valued as a share
// of all samples.
func distributionBars(buckets []metrics.DistributionBucket) ([]string, []float64) {
	var total int64
	for _, b := range buckets {
		total += b.Count
	}
	if total == 0 {
		return []string{"-"}, []float64{0}
	}
	labels := make([]string, 0, len(buckets))
	values := make([]float64, 0, len(buckets))
	for _, b := range buckets {
		labels = append(labels, shortRange(b))
		values = append(values, float64(b.Count)/float64(total)*100)
	}
	return labels, values
}

func shortRange(b metrics.DistributionBucket) string {
	if b.OpenEnded {
		return ">" + shortMicros(b.RangeStartUs)
	}
	return "<" + shortMicros(b.RangeEndUs)
}

func shortMicros(us int64) string {
	if us >= 1000 && us%1000 == 0 {
		return fmt.Sprintf("%dms", us/1000)
	}
	return fmt.Sprintf("%dus", us)
}

// formatFeedRows lists the newest entries first.
func formatFeedRows(entries []metrics.FeedEntry, limit int) []string {
	if len(entries) == 0 {
		return []string{"[No operations yet](fg:green)"}
	}
	rows := make([]string, 0, limit)
	for i := len(entries) - 1; i >= 0 && len(rows) < limit; i-- {
		e := entries[i]
		status := "[ok](fg:green)"
		if !e.Success {
			status = fmt.Sprintf("[%s](fg:red)", e.Error)
		}
		rows = append(rows, fmt.Sprintf("%8.2fs %-5s %-24s store %6.2fms total %6.2fms %s",
			float64(e.OffsetMs)/1000,
			e.Kind,
			e.Endpoint,
			float64(e.StoreUs)/1000,
			float64(e.TotalUs)/1000,
			status,
		))
	}
	return rows
}

func formatErrorRows(errs map[string]int64) []string {
	rows := metrics.FlattenErrors(errs)
	if len(rows) == 0 {
		return []string{"[No failures](fg:green)"}
	}
	if len(rows) > errorRows {
		rows = rows[:errorRows]
	}
	formatted := make([]string, 0, len(rows))
	for _, row := range rows {
		formatted = append(formatted, fmt.Sprintf("[%s](fg:red) %d", row.Label, row.Count))
	}
	return formatted
}

// formatRunParams formats the benchmark parameters for display.
func (d *Dashboard) formatRunParams() string {
	var parts []string

	if d.runConfig.Store != "" {
		parts = append(parts, fmt.Sprintf("Store: %s", d.runConfig.Store))
	}

	if d.runConfig.Concurrency > 0 {
		parts = append(parts, fmt.Sprintf("Workers: %d", d.runConfig.Concurrency))
	}

	parts = append(parts, fmt.Sprintf("Reads: %d%%", d.runConfig.ReadPct))

	if d.runConfig.Rate > 0 {
		model := d.runConfig.ArrivalModel
		if model == "" {
			model = "uniform"
		}
		parts = append(parts, fmt.Sprintf("Rate: %d/s %s", d.runConfig.Rate, model))
	} else {
		parts = append(parts, "Rate: unlimited")
	}

	if d.runConfig.Duration > 0 {
		parts = append(parts, fmt.Sprintf("Duration: %s", d.runConfig.Duration))
	}

	// Config file (only show if used)
	if d.runConfig.ConfigFile != "" {
		parts = append(parts, fmt.Sprintf("Config: %s", d.runConfig.ConfigFile))
	}

	return strings.Join(parts, " | ")
}
