package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var OptimizerRuns = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "dispatch_optimizer_runs_total",
	Help: "counter of route optimization runs by strategy and outcome",
}, []string{"strategy", "outcome"})

var ETARecalcs = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "dispatch_eta_recalcs_total",
	Help: "counter of ETA recalculation evaluations, labelled applied or skipped",
}, []string{"result"})

var WebhookDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "dispatch_webhook_deliveries_total",
	Help: "counter of outbound webhook delivery attempts by event and outcome",
}, []string{"event", "outcome"})

var PushSends = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "dispatch_push_sends_total",
	Help: "counter of push notification sends by outcome",
}, []string{"outcome"})

var LiveSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "dispatch_live_subscribers",
	Help: "gauge of currently connected route event stream subscribers",
})

var LiveEvictions = promauto.NewCounter(prometheus.CounterOpts{
	Name: "dispatch_live_evictions_total",
	Help: "counter of route event stream subscribers evicted for slow writes",
})

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
