package store

import (
	"fmt"

	"github.com/VictoriaMetrics/metrics"
)

// storeMetrics holds the per-store counters and gauges exposed over
// VictoriaMetrics/metrics's global default set, namespaced by the
// store's label so multiple stores in one process don't collide.
type storeMetrics struct {
	commitsTotal        *metrics.Counter
	rollbacksTotal      *metrics.Counter
	conflictsTotal      *metrics.Counter
	compactionRuns      *metrics.Counter
	compactionReclaimed *metrics.Counter
	syncsTotal          *metrics.Counter
	syncFailuresTotal   *metrics.Counter
	liveSnapshots       *metrics.Gauge
}

// newStoreMetrics registers the store's counters and a live-snapshot
// gauge backed by liveFn, which the caller supplies once its clock
// exists (VictoriaMetrics gauges are pull-based: the callback is
// invoked whenever the process's metrics page is scraped).
func newStoreMetrics(label string, liveFn func() float64) *storeMetrics {
	tag := fmt.Sprintf(`{store=%q}`, label)
	return &storeMetrics{
		commitsTotal:        metrics.GetOrCreateCounter("triplecore_commits_total" + tag),
		rollbacksTotal:      metrics.GetOrCreateCounter("triplecore_rollbacks_total" + tag),
		conflictsTotal:      metrics.GetOrCreateCounter("triplecore_conflicts_total" + tag),
		compactionRuns:      metrics.GetOrCreateCounter("triplecore_compaction_runs_total" + tag),
		compactionReclaimed: metrics.GetOrCreateCounter("triplecore_compaction_reclaimed_total" + tag),
		syncsTotal:          metrics.GetOrCreateCounter("triplecore_syncs_total" + tag),
		syncFailuresTotal:   metrics.GetOrCreateCounter("triplecore_sync_failures_total" + tag),
		liveSnapshots:       metrics.GetOrCreateGauge("triplecore_live_snapshots"+tag, liveFn),
	}
}
