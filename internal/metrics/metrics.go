package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Push outcome labels
const (
	OutcomeDelivered = "delivered"
	OutcomeRejected  = "rejected"
	OutcomeError     = "error"
)

// Metrics groups the Prometheus instruments of the dispatcher.
// Registered once at startup via New() against a caller-owned registry.
type Metrics struct {
	Invocations   *prometheus.CounterVec
	Pushes        *prometheus.CounterVec
	Recipients    prometheus.Histogram
	TokenExchange *prometheus.HistogramVec
	PushLatency   prometheus.Histogram
}

// New registers all instruments with reg and returns them
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wallpaper_notifications_total",
			Help: "Wallpaper notification invocations by result.",
		}, []string{"result"}),

		Pushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wallpaper_pushes_total",
			Help: "Individual push gateway calls by outcome.",
		}, []string{"outcome"}),

		Recipients: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "wallpaper_notification_recipients",
			Help:    "Number of recipients resolved per invocation.",
			Buckets: []float64{0, 1, 2, 3, 5, 10},
		}),

		TokenExchange: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "oauth_token_exchange_seconds",
			Help:    "Latency of the service-account token exchange.",
			Buckets: prometheus.DefBuckets,
		}, []string{"result"}),

		PushLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "wallpaper_push_seconds",
			Help:    "Latency of a single push gateway call.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		m.Invocations,
		m.Pushes,
		m.Recipients,
		m.TokenExchange,
		m.PushLatency,
	)

	return m
}
