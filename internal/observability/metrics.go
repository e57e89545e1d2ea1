package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RidesCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ridebid", Name: "rides_created_total", Help: "Total ride requests created"})
	RideTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ridebid", Name: "ride_transitions_total", Help: "Ride state transitions applied"},
		[]string{"to"},
	)
	BidsPlacedTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ridebid", Name: "bids_placed_total", Help: "Total bids placed"})
	BidAcceptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ridebid", Name: "bid_accepts_total", Help: "Accept attempts by outcome"},
		[]string{"outcome"},
	)
	AcceptLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "ridebid",
		Name:      "accept_latency_seconds",
		Help:      "Latency of the accept protocol including the per-ride section wait",
		Buckets:   prometheus.DefBuckets,
	})

	StreamClients         = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "ridebid", Name: "stream_clients", Help: "Connected event-stream subscribers"})
	StreamEventsDelivered = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ridebid", Name: "stream_events_delivered_total", Help: "Events delivered to subscribers"})
	StreamEventsDropped   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ridebid", Name: "stream_events_dropped_total", Help: "Events dropped for slow subscribers"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ridebid", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ridebid",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
