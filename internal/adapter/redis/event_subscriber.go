package redis

import (
	"context"
	"encoding/json"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pscheid92/forumcast/internal/adapter/metrics"
	"github.com/pscheid92/forumcast/internal/domain"
)

type broadcaster interface {
	Broadcast(ctx context.Context, msg domain.BroadcastMessage) (domain.DeliveryReport, error)
	BroadcastAll(ctx context.Context, payload []byte, exclude domain.ConnectionID) (domain.DeliveryReport, error)
}

// EventSubscriber is the event ingress: every domain.Event published on the channel is handed
// to the local hub. Membership is never shared between processes; each instance delivers to its
// own connections.
type EventSubscriber struct {
	rdb     *goredis.Client
	channel string
	hub     broadcaster
	metrics *metrics.EventMetrics
}

// NewEventSubscriber creates the ingress. m may be nil.
func NewEventSubscriber(rdb *goredis.Client, channel string, hub broadcaster, m *metrics.EventMetrics) *EventSubscriber {
	return &EventSubscriber{rdb: rdb, channel: channel, hub: hub, metrics: m}
}

// Start blocks until ctx is cancelled or the subscription closes.
func (s *EventSubscriber) Start(ctx context.Context) {
	consume(ctx, s.rdb, s.channel, s.handle)
}

func (s *EventSubscriber) handle(ctx context.Context, raw string) {
	var event domain.Event
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		slog.Warn("Dropping malformed event", "error", err)
		s.failed("malformed")
		return
	}
	if len(event.Payload) == 0 || string(event.Payload) == "null" {
		slog.Warn("Dropping event without payload")
		s.failed("empty_payload")
		return
	}

	kind := "all"
	var (
		report domain.DeliveryReport
		err    error
	)
	if event.Room == nil {
		report, err = s.hub.BroadcastAll(ctx, event.Payload, event.Exclude)
	} else {
		if verr := event.Room.Validate(); verr != nil {
			slog.Warn("Dropping event for invalid room", "room", event.Room.String(), "error", verr)
			s.failed("invalid_room")
			return
		}
		kind = string(event.Room.Kind)
		report, err = s.hub.Broadcast(ctx, domain.BroadcastMessage{
			Room:    *event.Room,
			Payload: event.Payload,
			Exclude: event.Exclude,
		})
	}
	if err != nil {
		slog.Error("Failed to broadcast event", "kind", kind, "error", err)
		s.failed("hub")
		return
	}

	if s.metrics != nil {
		s.metrics.Received.WithLabelValues(kind).Inc()
	}
	slog.Debug("Event delivered", "kind", kind, "attempted", report.Attempted, "delivered", report.Delivered, "pruned", report.Pruned)
}

func (s *EventSubscriber) failed(reason string) {
	if s.metrics != nil {
		s.metrics.Failed.WithLabelValues(reason).Inc()
	}
}
