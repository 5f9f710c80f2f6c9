package persistence

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Status label values of operation metrics.
const (
	statusSuccess  = "success"
	statusConflict = "conflict"
	statusError    = "error"
)

var (
	operationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "docstore_persistence_operation_duration_seconds",
		Help:    "Duration of persistence operations in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 18), // 100us to ~13s
	}, []string{"store", "operation", "status"})

	operationTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docstore_persistence_operation_total",
		Help: "Total number of persistence operations",
	}, []string{"store", "operation", "status"})

	writeEntriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docstore_persistence_write_entries_total",
		Help: "Total number of document and index entries committed",
	}, []string{"store", "kind"})

	streamItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docstore_persistence_stream_items_total",
		Help: "Total number of items yielded by read streams",
	}, []string{"store", "stream"})

	checkpointLogPages = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "docstore_persistence_checkpoint_log_pages",
		Help: "Number of write-ahead log pages observed by the last checkpoint",
	}, []string{"store"})

	checkpointRemainingPages = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "docstore_persistence_checkpoint_remaining_pages",
		Help: "Number of write-ahead log pages not reclaimed by the last checkpoint",
	}, []string{"store"})
)

func statusOf(err error) string {
	if err == nil {
		return statusSuccess
	} else if IsConflict(err) {
		return statusConflict
	}
	return statusError
}
