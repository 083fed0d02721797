package responder

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors updated by responders.
// One Metrics value is shared by every responder of a server.
type Metrics struct {
	// Requests counts decoded render_hints requests.
	Requests prometheus.Counter

	// Results counts per-hint results, labelled by result code.
	Results *prometheus.CounterVec

	// ReplyErrors counts replies that could not be published.
	ReplyErrors prometheus.Counter

	// Subscribers tracks started, not yet closed responders.
	Subscribers prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg creates unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Requests: f.NewCounter(prometheus.CounterOpts{
			Namespace: "renderhints",
			Name:      "requests_total",
			Help:      "Render hint requests received.",
		}),
		Results: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "renderhints",
			Name:      "hint_results_total",
			Help:      "Per-track render hint results sent.",
		}, []string{"result"}),
		ReplyErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: "renderhints",
			Name:      "reply_errors_total",
			Help:      "Replies that could not be published.",
		}),
		Subscribers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "renderhints",
			Name:      "subscribers",
			Help:      "Subscribers currently being answered.",
		}),
	}
}
