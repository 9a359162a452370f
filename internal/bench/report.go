package bench

import (
	"fmt"
	"io"
	"time"

	"racedash/internal/backend"
)

// Report collects the three dashboard scenarios.
type Report struct {
	GeneratedAt time.Time
	Dataset     int // bytes
	Sequential  *Run
	Parallel    *Run
	Warming     *Warming
}

// MarkdownReport writes benchmark results as Markdown.
type MarkdownReport struct {
	w io.Writer
}

func NewMarkdownReport(w io.Writer) *MarkdownReport {
	return &MarkdownReport{w: w}
}

// Write renders the whole report.
func (m *MarkdownReport) Write(r *Report) {
	m.WriteHeader("Full dashboard load", r)
	if r.Sequential != nil {
		m.WriteRun(r.Sequential)
	}
	if r.Parallel != nil {
		m.WriteRun(r.Parallel)
	}
	if r.Warming != nil {
		m.WriteWarming(r.Warming)
	}
	m.WriteSummary(r)
}

func (m *MarkdownReport) WriteHeader(title string, r *Report) {
	fmt.Fprintf(m.w, "# %s\n\n", title)
	fmt.Fprintf(m.w, "Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintf(m.w, "- **Dataset:** %d bytes\n\n", r.Dataset)
}

// WriteRun writes one scenario with its per-chart table.
func (m *MarkdownReport) WriteRun(run *Run) {
	s := run.Summary()
	fmt.Fprintf(m.w, "## %s\n\n", run.Name)
	fmt.Fprintf(m.w, "- **Stats:** %s\n", formatStats(run))
	fmt.Fprintf(m.w, "- **Charts loaded:** %d/%d\n", s.N, len(run.Charts))
	fmt.Fprintf(m.w, "- **Total time:** %.3fs\n", run.Total.Seconds())
	if s.N > 0 {
		fmt.Fprintf(m.w, "- **Chart time:** mean %.3fs, min %.3fs, max %.3fs, std dev %.3fs\n",
			s.Mean, s.Min, s.Max, s.StdDev)
	}
	fmt.Fprintf(m.w, "- **Efficiency:** %.1fx\n", run.Efficiency())
	fmt.Fprintln(m.w)

	fmt.Fprintln(m.w, "| Chart | Time | Result |")
	fmt.Fprintln(m.w, "|-------|------|--------|")
	for _, c := range run.Charts {
		fmt.Fprintf(m.w, "| %s | %.3fs | %s |\n", c.Chart, c.Duration.Seconds(), result(c))
	}
	fmt.Fprintln(m.w)
}

// WriteWarming writes the cold and warm passes and the speedup.
func (m *MarkdownReport) WriteWarming(w *Warming) {
	m.WriteRun(w.Cold)
	m.WriteRun(w.Warm)
	fmt.Fprintln(m.w, "## Cache effectiveness")
	fmt.Fprintln(m.w)
	fmt.Fprintf(m.w, "- **Cold:** %.3fs\n", w.Cold.Total.Seconds())
	fmt.Fprintf(m.w, "- **Warm:** %.3fs\n", w.Warm.Total.Seconds())
	fmt.Fprintf(m.w, "- **Speedup:** %.1fx\n", w.Speedup())
	fmt.Fprintln(m.w)
}

func (m *MarkdownReport) WriteSummary(r *Report) {
	fmt.Fprintln(m.w, "## Summary")
	fmt.Fprintln(m.w)
	fmt.Fprintln(m.w, "| Scenario | Total | Loaded | Failed |")
	fmt.Fprintln(m.w, "|----------|-------|--------|--------|")
	for _, run := range r.runs() {
		fmt.Fprintf(m.w, "| %s | %.2fs | %d | %d |\n",
			run.Name, run.Total.Seconds(), len(run.Succeeded()), len(run.Failed()))
	}
	fmt.Fprintln(m.w)
}

func (r *Report) runs() []*Run {
	var out []*Run
	for _, run := range []*Run{r.Sequential, r.Parallel} {
		if run != nil {
			out = append(out, run)
		}
	}
	if r.Warming != nil {
		out = append(out, r.Warming.Cold, r.Warming.Warm)
	}
	return out
}

func formatStats(run *Run) string {
	if run.StatsErr != nil {
		return fmt.Sprintf("failed after %.3fs (%s)", run.StatsTime.Seconds(), backend.DisplayMessage(run.StatsErr))
	}
	return fmt.Sprintf("%.3fs", run.StatsTime.Seconds())
}

func result(c ChartTiming) string {
	switch {
	case c.Err != nil:
		return "failed: " + backend.DisplayMessage(c.Err)
	case c.Cached:
		return "ok (cached)"
	default:
		return "ok"
	}
}
