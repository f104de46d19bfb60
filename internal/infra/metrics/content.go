package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(contentRequestsTotal) }

var contentRequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "content_source_requests_total",
		Help: "Image source lookups by source and result (ok/error/fallback).",
	},
	[]string{"source", "result"},
)

func IncContentRequest(source, result string) {
	contentRequestsTotal.WithLabelValues(norm(source), norm(result)).Inc()
}
