package metrics

import "github.com/prometheus/client_golang/prometheus"

// EventMetrics tracks the Redis event ingress.
type EventMetrics struct {
	Received *prometheus.CounterVec
	Failed   *prometheus.CounterVec
}

func NewEventMetrics(reg prometheus.Registerer) *EventMetrics {
	m := &EventMetrics{
		Received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "received_total",
			Help:      "Total number of events received from the ingress channel, by room kind.",
		}, []string{"kind"}),
		Failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "failed_total",
			Help:      "Total number of ingress events that could not be delivered, by reason.",
		}, []string{"reason"}),
	}

	reg.MustRegister(m.Received, m.Failed)
	return m
}
