package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(providerCallsLatencyMs)
}

var providerCallsLatencyMs = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "enrichment_provider_calls_latency_ms",
		Help:    "Enrichment provider call latency distribution in milliseconds.",
		Buckets: []float64{10, 25, 50, 100, 200, 400, 800, 1600, 3000, 5000, 10000},
	},
	[]string{"provider", "model", "success"}, // provider: 'embedding', 'caption', 'image_vector'
)

func ObserveProviderCall(provider, model string, latencyMs int, success bool) {
	providerCallsLatencyMs.WithLabelValues(norm(provider), norm(model), strconv.FormatBool(success)).
		Observe(float64(latencyMs))
}
