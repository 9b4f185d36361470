package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	TransportRetries = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "docmirror", Name: "transport_retries_total", Help: "Number of retried HTTP attempts."},
	)
	PagesFetched = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "docmirror", Name: "crawl_pages_fetched_total", Help: "Number of folder listing pages fetched."},
	)
	EntriesClassified = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "docmirror", Name: "crawl_entries_classified_total", Help: "Number of listing entries by classification."},
		[]string{"kind"},
	)
	RecordsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "docmirror", Name: "reconcile_records_created_total", Help: "Number of document versions created by reconciliation."},
	)
	ExportsCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "docmirror", Name: "exports_total", Help: "Number of export jobs by outcome."},
		[]string{"outcome"},
	)
	ExportDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "docmirror",
			Name:      "export_duration_seconds",
			Help:      "Wall-clock duration of export jobs from request to downloaded bytes.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(TransportRetries)
	reg.MustRegister(PagesFetched)
	reg.MustRegister(EntriesClassified)
	reg.MustRegister(RecordsCreated)
	reg.MustRegister(ExportsCompleted)
	reg.MustRegister(ExportDuration)
}
