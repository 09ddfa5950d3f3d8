package capability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	hits          prometheus.Counter
	misses        prometheus.Counter
	uncached      prometheus.Counter
	probes        prometheus.Counter
	probeFailures *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer, entries func() float64) *metrics {
	f := promauto.With(reg)

	m := &metrics{
		hits: f.NewCounter(prometheus.CounterOpts{
			Namespace: "capcache",
			Subsystem: "capability",
			Name:      "cache_hits_total",
			Help:      "Lookups answered from the capability cache.",
		}),
		misses: f.NewCounter(prometheus.CounterOpts{
			Namespace: "capcache",
			Subsystem: "capability",
			Name:      "cache_misses_total",
			Help:      "Lookups that required a probe.",
		}),
		uncached: f.NewCounter(prometheus.CounterOpts{
			Namespace: "capcache",
			Subsystem: "capability",
			Name:      "uncached_lookups_total",
			Help:      "Lookups made while hashing is unavailable.",
		}),
		probes: f.NewCounter(prometheus.CounterOpts{
			Namespace: "capcache",
			Subsystem: "capability",
			Name:      "probes_total",
			Help:      "Capability probes executed against a connection.",
		}),
		probeFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "capcache",
			Subsystem: "capability",
			Name:      "probe_failures_total",
			Help:      "Capability queries that fell back to defaults.",
		}, []string{"query"}),
	}

	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "capcache",
		Subsystem: "capability",
		Name:      "cache_entries",
		Help:      "Records currently held by the capability cache.",
	}, entries)

	return m
}
