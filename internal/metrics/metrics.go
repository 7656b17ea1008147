// Package metrics provides Prometheus metrics for the vault gateway.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	remoteCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vaultgw_remote_calls_total",
			Help: "Remote store calls by operation and outcome",
		},
		[]string{"op", "outcome"},
	)

	remoteRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vaultgw_remote_retries_total",
			Help: "Retried remote store calls by operation",
		},
		[]string{"op"},
	)

	foldersCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vaultgw_folders_created_total",
			Help: "Folders created by the folder resolver",
		},
	)

	exportEntriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vaultgw_export_entries_total",
			Help: "Archive entries written by outcome (ok, placeholder, truncated)",
		},
		[]string{"outcome"},
	)

	exportBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vaultgw_export_bytes_total",
			Help: "Uncompressed bytes streamed into archives",
		},
	)

	exportDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vaultgw_export_duration_seconds",
			Help:    "Archive export duration in seconds",
			Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"status"},
	)

	tokenRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vaultgw_token_refreshes_total",
			Help: "Silent access token refreshes by persistence result",
		},
		[]string{"result"},
	)
)

// RecordRemoteCall counts one remote call; err decides the outcome label.
func RecordRemoteCall(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	remoteCallsTotal.WithLabelValues(op, outcome).Inc()
}

// RecordRetry counts one retry of op.
func RecordRetry(op string) {
	remoteRetriesTotal.WithLabelValues(op).Inc()
}

// RecordFolderCreated counts one folder created by the resolver.
func RecordFolderCreated() {
	foldersCreatedTotal.Inc()
}

// RecordExportEntry counts one archive entry with the given outcome.
func RecordExportEntry(outcome string, bytes int64) {
	exportEntriesTotal.WithLabelValues(outcome).Inc()
	if bytes > 0 {
		exportBytesTotal.Add(float64(bytes))
	}
}

// RecordExport observes a finished export.
func RecordExport(status string, d time.Duration) {
	exportDuration.WithLabelValues(status).Observe(d.Seconds())
}

// RecordTokenRefresh counts one silent refresh; persisted reports whether
// the new token reached the credential store.
func RecordTokenRefresh(persisted bool) {
	result := "persisted"
	if !persisted {
		result = "unpersisted"
	}
	tokenRefreshesTotal.WithLabelValues(result).Inc()
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
