package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PasteCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sealbin_paste_created_total",
		Help: "no. of pastes stored",
	})
	PasteRetrieved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sealbin_paste_retrieved_total",
		Help: "no. of successful paste retrievals",
	})
	PasteNotFound = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sealbin_paste_not_found_total",
		Help: "no. of retrievals for unknown, expired or consumed ids",
	})
	PasteDeleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sealbin_paste_deleted_total",
			Help: "no. of pastes removed, by cause",
		},
		[]string{"cause"},
	)
	PasteRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sealbin_paste_rejected_total",
			Help: "no. of create requests rejected by the store",
		},
		[]string{"reason"},
	)
	StoreEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sealbin_store_entries",
		Help: "resident entries in the store",
	})
	StoreBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sealbin_store_bytes",
		Help: "resident payload bytes in the store",
	})
	SweepCycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sealbin_sweep_cycles_total",
		Help: "no. of reaper sweep cycles",
	})
	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sealbin_sweep_duration_seconds",
		Help:    "reaper sweep duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
	})
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sealbin_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sealbin_rate_limit_hits_total",
			Help: "no. of rate limit violations",
		},
		[]string{"endpoint"},
	)
	RecentErrorRatePercent = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sealbin_recent_error_rate_percent",
		Help: "5min rolling avg error rate percentage",
	})
)

// Deletion causes.
const (
	CauseExpired  = "expired"
	CauseConsumed = "consumed"
	CauseOwner    = "owner"
)
