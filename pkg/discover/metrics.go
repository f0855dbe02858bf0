package discover

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// AdcpQueriesTotal counts traversal queries issued to the graph store
	AdcpQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adcp_queries_total",
			Help: "Traversal queries issued to the graph store",
		},
		[]string{"mode"},
	)

	// AdcpPathsTotal counts control paths accepted into reports
	AdcpPathsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "adcp_paths_total",
			Help: "Control paths accepted into reports",
		},
	)

	// AdcpPairFailuresTotal counts source/target pairs dropped on channel failure
	AdcpPairFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "adcp_pair_failures_total",
			Help: "Source/target pairs dropped after a query channel failure",
		},
	)

	// AdcpRunSeconds observes end-to-end discovery run duration
	AdcpRunSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "adcp_run_seconds",
			Help:    "End-to-end discovery run duration",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
	)
)

func init() {
	prometheus.MustRegister(AdcpQueriesTotal)
	prometheus.MustRegister(AdcpPathsTotal)
	prometheus.MustRegister(AdcpPairFailuresTotal)
	prometheus.MustRegister(AdcpRunSeconds)
}
