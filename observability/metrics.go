package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "profilebook_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "profilebook_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Hub metrics
	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "profilebook_connections_active",
			Help: "Live websocket connections",
		},
	)

	Deliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "profilebook_deliveries_total",
			Help: "Push attempts by outcome",
		},
		[]string{"kind", "outcome"}, // outcome is "delivered", "missed" or "evicted"
	)

	DeliveryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "profilebook_delivery_duration_seconds",
			Help:    "Time spent fanning one event out to a subject",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		},
	)

	// Business metrics
	MessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "profilebook_messages_sent_total",
			Help: "Total direct messages persisted",
		},
	)

	NotificationsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "profilebook_notifications_created_total",
			Help: "Total notifications persisted",
		},
	)

	MessagesCensored = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "profilebook_messages_censored_total",
			Help: "Messages rewritten by moderation",
		},
	)
)
