package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SettlementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "intentgate_settlements_total",
		Help: "Settlement attempts by kind and outcome code",
	}, []string{"kind", "outcome"})

	SettlementLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "intentgate_settlement_seconds",
		Help:    "Settlement latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	TradedVolume = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "intentgate_traded_units_total",
		Help: "Asset units settled, by settlement kind",
	}, []string{"kind"})

	PermitTransfers = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "intentgate_permit_transfers_total",
		Help: "Witness-bound permit transfers by outcome code",
	}, []string{"outcome"})

	NoncesInvalidated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "intentgate_nonce_invalidations_total",
		Help: "Owner-initiated nonce word invalidations",
	})

	ContractSignatureChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "intentgate_eip1271_checks_total",
		Help: "Contract signature checks by result (valid, invalid, error, cached)",
	}, []string{"result"})

	StoreConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "intentgate_store_conflicts_total",
		Help: "Optimistic transaction conflicts that triggered a retry",
	}, []string{"backend"})

	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "intentgate_events_published_total",
		Help: "Events delivered to sinks",
	}, []string{"event", "sink"})

	LatencyBucket = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "intentgate_http_latency_seconds",
		Help:    "Request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})
)
