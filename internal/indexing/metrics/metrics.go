package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FetchesTotal tracks lookup requests per credential and outcome
	FetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bitmap_fetches_total",
			Help: "Total number of lookup requests",
		},
		[]string{"credential", "outcome"},
	)

	// BlocksProcessed tracks terminally processed blocks per outcome
	BlocksProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bitmap_blocks_processed_total",
			Help: "Total number of blocks processed to a terminal outcome",
		},
		[]string{"outcome"},
	)

	// RetriesTotal tracks retry attempts after transient failures
	RetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bitmap_retries_total",
			Help: "Total number of retry attempts",
		},
	)

	// DeferredTotal tracks blocks deferred after the retry ceiling
	DeferredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bitmap_deferred_total",
			Help: "Total number of blocks deferred to a later refill",
		},
	)

	// QueueDepth tracks queue sizes
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bitmap_queue_depth",
			Help: "Current depth of the work queues",
		},
		[]string{"queue"},
	)

	// LastProcessedBlock tracks the durable progress marker
	LastProcessedBlock = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bitmap_last_processed_block",
			Help: "Highest contiguous block processed",
		},
	)

	// LiveHeight tracks the watermark from the live feed
	LiveHeight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bitmap_live_height",
			Help: "Latest block height seen on the live feed",
		},
	)

	// CredentialRequests tracks daily usage per credential
	CredentialRequests = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bitmap_credential_requests_today",
			Help: "Requests charged to a credential since its last daily reset",
		},
		[]string{"credential"},
	)
)
