package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pscheid92/forumcast/internal/platform/version"
)

const namespace = "forumcast"

// Set is every metric forumcast exports, registered on one registry.
type Set struct {
	Registry *prometheus.Registry

	HTTP   *HTTPMetrics
	Hub    *HubMetrics
	Events *EventMetrics
	Redis  *RedisMetrics
	DB     *DBMetrics
}

// New builds a registry with runtime and process collectors, the build_info gauge for info,
// and every component's metrics.
func New(info version.Info) *Set {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{Namespace: namespace}),
	)
	RegisterBuildInfo(reg, info)

	return &Set{
		Registry: reg,
		HTTP:     NewHTTPMetrics(reg),
		Hub:      NewHubMetrics(reg),
		Events:   NewEventMetrics(reg),
		Redis:    NewRedisMetrics(reg),
		DB:       NewDBMetrics(reg),
	}
}

// Handler serves reg in the Prometheus text or OpenMetrics format and counts its own scrapes.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.InstrumentMetricHandler(reg, promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		Registry:          reg,
		EnableOpenMetrics: true,
	}))
}
