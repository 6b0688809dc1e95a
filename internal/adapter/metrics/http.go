package metrics

import (
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics covers the REST surface. Labels use the echo route pattern, never the raw path.
type HTTPMetrics struct {
	Duration *prometheus.HistogramVec
	Requests *prometheus.CounterVec
	InFlight prometheus.Gauge
	Errors   *prometheus.CounterVec
}

var requestLabels = []string{"method", "route", "status"}

func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	opts := func(name, help string) prometheus.Opts {
		return prometheus.Opts{Namespace: namespace, Subsystem: "http", Name: name, Help: help}
	}

	m := &HTTPMetrics{
		Duration: prometheus.NewHistogramVec(withBuckets(
			opts("request_duration_seconds", "REST request latency by route."),
		), requestLabels),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts(
			opts("requests_total", "REST requests by route and status."),
		), requestLabels),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts(
			opts("in_flight_requests", "REST requests being served right now."),
		)),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts(
			opts("errors_total", "Error responses by error type."),
		), []string{"type"}),
	}
	reg.MustRegister(m.Duration, m.Requests, m.InFlight, m.Errors)
	return m
}

// withBuckets widens Opts into HistogramOpts with sub-millisecond to 10s buckets.
func withBuckets(o prometheus.Opts) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace: o.Namespace,
		Subsystem: o.Subsystem,
		Name:      o.Name,
		Help:      o.Help,
		Buckets:   prometheus.ExponentialBucketsRange(0.0005, 10, 12),
	}
}

// tracked is false for scrapes, health checks and the websocket upgrade. The upgrade's
// duration would be the whole connection lifetime.
func tracked(route string) bool {
	switch {
	case route == "/metrics", route == "/api/v3/ws":
		return false
	case strings.HasPrefix(route, "/health/"):
		return false
	}
	return true
}

// Middleware records every tracked request once its handler and the error middleware are done.
func (m *HTTPMetrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			route := c.Path()
			if !tracked(route) {
				return next(c)
			}

			m.InFlight.Inc()
			timer := prometheus.NewTimer(nil)
			err := next(c)
			elapsed := timer.ObserveDuration()
			m.InFlight.Dec()

			labels := prometheus.Labels{
				"method": c.Request().Method,
				"route":  route,
				"status": strconv.Itoa(c.Response().Status),
			}
			m.Duration.With(labels).Observe(elapsed.Seconds())
			m.Requests.With(labels).Inc()
			return err
		}
	}
}
