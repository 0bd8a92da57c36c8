// Package metric instruments the feed pipeline with Prometheus metrics,
// exposed by the web server on /metrics.
package metric

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dashcal_feed_fetch_total",
		Help: "Feed fetch attempts by outcome",
	}, []string{"result"})

	parseFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dashcal_feed_parse_failures_total",
		Help: "Fetched documents that were not valid iCalendar",
	})

	skippedRules = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dashcal_recurrence_rules_skipped_total",
		Help: "Recurrence rule strings that failed to parse and were skipped",
	})

	cycleDuration = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dashcal_feed_cycle_duration_seconds",
		Help: "Duration of the last fetch/normalize/expand cycle",
	})

	cycleEvents = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dashcal_feed_cycle_events",
		Help: "Event count produced by the last fetch/normalize/expand cycle",
	})
)

// ObserveFetch records one fetch attempt; result is "ok" or an error
// category.
func ObserveFetch(result string) {
	fetchTotal.WithLabelValues(result).Inc()
}

// ObserveParseFailure records one unparseable feed document.
func ObserveParseFailure() {
	parseFailures.Inc()
}

// ObserveSkippedRules records recurrence rules skipped during one cycle.
func ObserveSkippedRules(n int) {
	if n > 0 {
		skippedRules.Add(float64(n))
	}
}

// ObserveCycle records the duration and yield of one completed cycle.
func ObserveCycle(d time.Duration, events int) {
	cycleDuration.Set(d.Seconds())
	cycleEvents.Set(float64(events))
}

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
