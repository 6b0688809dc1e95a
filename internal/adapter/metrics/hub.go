package metrics

import "github.com/prometheus/client_golang/prometheus"

// HubMetrics holds Prometheus metrics for the room broadcast hub.
type HubMetrics struct {
	ActiveConnections prometheus.Gauge
	ActiveRooms       prometheus.Gauge
	JoinsTotal        *prometheus.CounterVec
	BroadcastsTotal   *prometheus.CounterVec
	DeliveriesTotal   prometheus.Counter
	PrunedTotal       prometheus.Counter
	CommandTimeouts   prometheus.Counter
	FanoutDuration    prometheus.Histogram
}

// NewHubMetrics creates and registers hub metrics on the given registry.
func NewHubMetrics(reg prometheus.Registerer) *HubMetrics {
	m := &HubMetrics{
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "active_connections",
			Help:      "Number of registered websocket connections.",
		}),
		ActiveRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "active_rooms",
			Help:      "Number of rooms with at least one member.",
		}),
		JoinsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "joins_total",
			Help:      "Total number of room joins, by room kind.",
		}, []string{"kind"}),
		BroadcastsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "broadcasts_total",
			Help:      "Total number of broadcasts, by room kind.",
		}, []string{"kind"}),
		DeliveriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "deliveries_total",
			Help:      "Total number of payloads queued to connections.",
		}),
		PrunedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "pruned_connections_total",
			Help:      "Total number of connections disconnected because delivery failed.",
		}),
		CommandTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "command_timeouts_total",
			Help:      "Total number of hub commands that timed out.",
		}),
		FanoutDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "fanout_duration_seconds",
			Help:      "Time spent queueing one broadcast to all members.",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1},
		}),
	}

	reg.MustRegister(
		m.ActiveConnections, m.ActiveRooms, m.JoinsTotal, m.BroadcastsTotal,
		m.DeliveriesTotal, m.PrunedTotal, m.CommandTimeouts, m.FanoutDuration,
	)
	return m
}
