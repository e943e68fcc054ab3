package offline

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the coordinator's Prometheus collectors.
type Metrics struct {
	requests  *prometheus.CounterVec
	refreshes *prometheus.CounterVec
	installs  *prometheus.CounterVec
	pruned    prometheus.Counter
}

func newMetrics() *Metrics {
	return &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "creatorstudio",
			Subsystem: "offline",
			Name:      "requests_total",
			Help:      "Intercepted requests by outcome (hit, miss, passthrough, unavailable).",
		}, []string{"outcome"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "creatorstudio",
			Subsystem: "offline",
			Name:      "refreshes_total",
			Help:      "Live fetches by write-back result (stored, skipped, failed).",
		}, []string{"result"}),
		installs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "creatorstudio",
			Subsystem: "offline",
			Name:      "installs_total",
			Help:      "Install attempts by status.",
		}, []string{"status"}),
		pruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "creatorstudio",
			Subsystem: "offline",
			Name:      "generations_pruned_total",
			Help:      "Stale generations deleted on activation.",
		}),
	}
}

func (m *Metrics) register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.requests, m.refreshes, m.installs, m.pruned} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
