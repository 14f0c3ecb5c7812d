package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/loykin/patiently/internal/queue"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK    atomic.Bool
	gatherer atomic.Value // prometheus.Gatherer

	queueJobs = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "patiently",
			Subsystem: "queue",
			Name:      "jobs",
			Help:      "Job records currently present, by effective status.",
		}, []string{"status"},
	)
	queueOutstanding = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "patiently",
			Subsystem: "queue",
			Name:      "outstanding",
			Help:      "Jobs that are waiting or running.",
		},
	)
	monitorRefreshes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "patiently",
			Subsystem: "monitor",
			Name:      "refreshes_total",
			Help:      "Number of times the monitor listed the queue.",
		},
	)
	queueAnomalies = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "patiently",
			Subsystem: "queue",
			Name:      "anomalies_total",
			Help:      "Records the monitor could not classify.",
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
// When r is also a Gatherer it becomes the source for WriteTextfile and Handler.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{queueJobs, queueOutstanding, monitorRefreshes, queueAnomalies}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	if g, ok := r.(prometheus.Gatherer); ok {
		gatherer.Store(g)
	}
	regOK.Store(true)
	return nil
}

func currentGatherer() prometheus.Gatherer {
	if g, ok := gatherer.Load().(prometheus.Gatherer); ok {
		return g
	}
	return prometheus.DefaultGatherer
}

// Handler serves the registered metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(currentGatherer(), promhttp.HandlerOpts{})
}

// WriteTextfile atomically writes the registered metrics in the text
// exposition format, for node_exporter's textfile collector.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, currentGatherer())
}

// Below are lightweight helpers; they no-op if Register hasn't been called.

// SetStatusCounts publishes one tally of the queue.
func SetStatusCounts(counts map[queue.Status]int) {
	if !regOK.Load() {
		return
	}
	outstanding := 0
	for _, st := range queue.Statuses {
		n := counts[st]
		queueJobs.WithLabelValues(st.String()).Set(float64(n))
		if !st.IsTerminal() {
			outstanding += n
		}
	}
	queueOutstanding.Set(float64(outstanding))
}

func IncRefresh() {
	if regOK.Load() {
		monitorRefreshes.Inc()
	}
}

func AddAnomalies(n int) {
	if regOK.Load() && n > 0 {
		queueAnomalies.Add(float64(n))
	}
}
