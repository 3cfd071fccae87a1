package engine

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/rcrowley/go-metrics"
)

// runMetrics tracks latency and counts for the whole run, segmented by
// verification outcome the way the teacher's metricsDef segments by
// rate-change. This domain has no interactive rate-change feature, so
// outcome is the natural segmentation axis for the summary table.
type runMetrics struct {
	mu        sync.RWMutex
	registry  metrics.Registry
	start     time.Time
	total     *metricsItem
	byOutcome map[Outcome]*metricsItem
	busy      metrics.Counter
}

type metricsItem struct {
	started  metrics.Counter
	finished metrics.Timer
}

func newRunMetrics() *runMetrics {
	r := metrics.NewRegistry()
	return &runMetrics{
		registry:  r,
		start:     time.Now(),
		total:     newMetricsItem(r, "total"),
		byOutcome: map[Outcome]*metricsItem{},
		busy:      metrics.GetOrRegisterCounter("busy", r),
	}
}

func newMetricsItem(r metrics.Registry, name string) *metricsItem {
	return &metricsItem{
		started:  metrics.GetOrRegisterCounter(name+".started", r),
		finished: metrics.GetOrRegisterTimer(name+".finished", r),
	}
}

func (m *runMetrics) logStart() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.total.started.Inc(1)
	m.busy.Inc(1)
}

func (m *runMetrics) logFinish(outcome Outcome, elapsed time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.busy.Dec(1)
	m.total.finished.Update(elapsed)
	item, ok := m.byOutcome[outcome]
	if !ok {
		item = newMetricsItem(m.registry, "outcome."+outcome.String())
		m.byOutcome[outcome] = item
	}
	item.started.Inc(1)
	item.finished.Update(elapsed)
}

// Summary writes a tabwriter-rendered table of totals and per-outcome
// breakdowns, in the teacher's blaster/stats.go String() style.
func (m *runMetrics) Summary(w io.Writer) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Summary")
	fmt.Fprintln(tw, "=======")
	fmt.Fprintf(tw, "Duration:\t%s\n", time.Since(m.start).Round(time.Second))
	fmt.Fprintf(tw, "Started:\t%d\n", m.total.started.Count())
	fmt.Fprintf(tw, "Finished:\t%d\n", m.total.finished.Count())
	if m.total.finished.Count() > 0 {
		fmt.Fprintf(tw, "Mean latency:\t%.1f ms\n", m.total.finished.Mean()/1e6)
		fmt.Fprintf(tw, "95th percentile:\t%.1f ms\n", m.total.finished.Percentile(0.95)/1e6)
	}

	var outcomes []Outcome
	for o := range m.byOutcome {
		outcomes = append(outcomes, o)
	}
	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i] < outcomes[j] })

	for _, o := range outcomes {
		item := m.byOutcome[o]
		fmt.Fprintln(tw, strings.Repeat("-", len(o.String())))
		pct := 0.0
		if m.total.finished.Count() > 0 {
			pct = 100 * float64(item.finished.Count()) / float64(m.total.finished.Count())
		}
		fmt.Fprintf(tw, "%s:\t%d (%.0f%%)\n", o, item.finished.Count(), pct)
	}
	tw.Flush()
}
