package lens

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/go-analyze/bulk"
	"github.com/go-analyze/charts"

	"github.com/CoroLens/go-coro-lens/yieldtrace"
)

// reportChartMaxRows bounds the bar chart to the busiest coroutines.
const reportChartMaxRows = 10

// TraceReport summarizes the recorded coroutine sessions of one run.
type TraceReport struct {
	GeneratedAt     time.Time        `json:"generated_at"`
	SessionCount    int              `json:"session_count"`
	SuspensionCount int              `json:"suspension_count"`
	Coroutines      []CoroutineStats `json:"coroutines"`
}

// CoroutineStats aggregates all activations of one coroutine.
type CoroutineStats struct {
	Ident           string `json:"ident"`            // file:line qualified name
	Kind            string `json:"kind,omitempty"`   // invocation kind
	ActivationCount int    `json:"activation_count"` // how many times it was entered
	SuspensionCount int    `json:"suspension_count"` // line updates across all activations
	DistinctLines   int    `json:"distinct_lines"`   // unique suspension lines reached
	MaxDepth        int    `json:"max_suspensions"`  // most suspensions in one activation
}

// BuildTraceReport aggregates sessions into per-coroutine statistics, ordered
// by suspension count descending.
func BuildTraceReport(sessions []yieldtrace.Session) TraceReport {
	byIdent := bulk.SliceToGroupsBy(func(s yieldtrace.Session) string {
		return s.Ident()
	}, sessions)

	report := TraceReport{
		GeneratedAt:  time.Now(),
		SessionCount: len(sessions),
		Coroutines:   make([]CoroutineStats, 0, len(byIdent)),
	}
	for _, ident := range bulk.MapKeysSlice(byIdent) {
		group := byIdent[ident]
		stats := CoroutineStats{
			Ident:           ident,
			Kind:            group[0].Entry.Kind,
			ActivationCount: len(group),
		}
		lines := make(map[int]bool)
		for _, s := range group {
			stats.SuspensionCount += len(s.Lines)
			stats.MaxDepth = max(stats.MaxDepth, len(s.Lines))
			for _, line := range s.Lines {
				lines[line] = true
			}
		}
		stats.DistinctLines = len(lines)
		report.SuspensionCount += stats.SuspensionCount
		report.Coroutines = append(report.Coroutines, stats)
	}
	slices.SortFunc(report.Coroutines, func(a, b CoroutineStats) int {
		if c := b.SuspensionCount - a.SuspensionCount; c != 0 {
			return c
		}
		return strings.Compare(a.Ident, b.Ident)
	})
	return report
}

// WriteTraceReportJSON writes the report as indented JSON.
func (r TraceReport) WriteTraceReportJSON(path string) error {
	encoded, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("report encoding failure: %w", err)
	}
	if err := os.WriteFile(path, encoded, 0644); err != nil {
		return fmt.Errorf("report write failure: %w", err)
	}
	return nil
}

// WriteTraceReportChart renders the suspension activity chart, with the image
// format selected by the file suffix (png, jpg, svg).
func (r TraceReport) WriteTraceReportChart(path string) error {
	var outputType string
	if strings.HasSuffix(path, ".png") {
		outputType = charts.ChartOutputPNG
	} else if strings.HasSuffix(path, ".jpg") || strings.HasSuffix(path, ".jpeg") {
		outputType = charts.ChartOutputJPG
	} else if strings.HasSuffix(path, ".svg") {
		outputType = charts.ChartOutputSVG
	} else {
		return fmt.Errorf("unhandled chart file type: %s", path)
	}

	painterOpt := charts.PainterOptions{
		OutputFormat: outputType,
		Width:        1024,
		Height:       768,
	}
	if buf, err := renderTraceChart(painterOpt, r); err != nil {
		return fmt.Errorf("render chart failed: %w", err)
	} else if err = os.WriteFile(path, buf, 0644); err != nil {
		return fmt.Errorf("write chart file failed: %w", err)
	}
	return nil
}

// RenderTraceChartPNG renders the chart to PNG bytes, for embedding.
func RenderTraceChartPNG(report TraceReport) ([]byte, error) {
	return renderTraceChart(charts.PainterOptions{
		OutputFormat: charts.ChartOutputPNG,
		Width:        1024,
		Height:       768,
	}, report)
}

func renderTraceChart(painterOpt charts.PainterOptions, report TraceReport) ([]byte, error) {
	rows := report.Coroutines
	if len(rows) > reportChartMaxRows {
		rows = rows[:reportChartMaxRows]
	}
	// reverse so the busiest coroutine renders at the top
	values := make([]float64, len(rows))
	labels := make([]string, len(rows))
	for i, stats := range rows {
		j := len(rows) - 1 - i
		values[j] = float64(stats.SuspensionCount)
		labels[j] = stats.Ident
	}

	p := charts.NewPainter(painterOpt)
	opt := charts.NewHorizontalBarChartOptionWithData([][]float64{values})
	opt.Title.Text = "Coroutine Suspension Activity"
	opt.YAxis.Labels = labels
	opt.SeriesList[0].Label.Show = charts.Ptr(true)
	if err := p.HorizontalBarChart(opt); err != nil {
		return nil, err
	}
	return p.Bytes()
}
