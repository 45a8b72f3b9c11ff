// Package metrics exposes run-level counters on the health listener's
// /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BackupRuns counts pipeline runs by kind and terminal status.
	BackupRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "backup_runs_total",
		Help: "Backup pipeline runs by kind and outcome.",
	}, []string{"kind", "status"})

	// BackupDuration observes end-to-end run time per kind.
	BackupDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "backup_run_duration_seconds",
		Help:    "End-to-end backup run duration.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
	}, []string{"kind"})

	// ArtifactBytes records the size of the last artifact per kind and
	// form ("raw" or "compressed").
	ArtifactBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "backup_artifact_bytes",
		Help: "Size of the most recent backup artifact.",
	}, []string{"kind", "form"})

	// RestoreRuns counts restore invocations by kind and outcome.
	RestoreRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "restore_runs_total",
		Help: "Restore workflow runs by kind and outcome.",
	}, []string{"kind", "status"})
)
