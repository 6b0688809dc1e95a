package hub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/forumcast/internal/adapter/metrics"
	"github.com/pscheid92/forumcast/internal/domain"
)

const (
	commandTimeout  = 5 * time.Second
	stopTimeout     = 10 * time.Second
	commandCapacity = 256
)

// Sink receives payloads for one connection. Send must not block: it either queues the
// payload or fails. Close must return promptly and may be called more than once.
type Sink interface {
	Send(payload []byte) error
	Close(reason string)
}

// Stats is a point-in-time count of connections and non-empty rooms.
type Stats struct {
	Connections int `json:"connections"`
	Rooms       int `json:"rooms"`
}

type member struct {
	id   domain.ConnectionID
	sink Sink
}

type lookupResult struct {
	session Session
	found   bool
}

// hubCmd is the command interface for the Hub actor.
type hubCmd interface{ isHubCmd() }

type baseHubCmd struct{}

func (baseHubCmd) isHubCmd() {}

type registerCmd struct {
	baseHubCmd
	session *Session
	reply   chan error
}

type unregisterCmd struct {
	baseHubCmd
	id    domain.ConnectionID
	reply chan bool
}

type joinCmd struct {
	baseHubCmd
	key       domain.RoomKey
	id        domain.ConnectionID
	exclusive bool
	reply     chan error
}

type leaveCmd struct {
	baseHubCmd
	key   domain.RoomKey
	id    domain.ConnectionID
	reply chan bool
}

type removeConnectionCmd struct {
	baseHubCmd
	id    domain.ConnectionID
	reply chan []domain.RoomKey
}

// snapshotCmd copies the members of one room, or of every session when room is nil.
type snapshotCmd struct {
	baseHubCmd
	room  *domain.RoomKey
	reply chan []member
}

type lookupCmd struct {
	baseHubCmd
	id    domain.ConnectionID
	reply chan lookupResult
}

type roomsOfCmd struct {
	baseHubCmd
	id    domain.ConnectionID
	reply chan []domain.RoomKey
}

type roomSizeCmd struct {
	baseHubCmd
	key   domain.RoomKey
	reply chan int
}

type statsCmd struct {
	baseHubCmd
	reply chan Stats
}

type stopCmd struct {
	baseHubCmd
	reason string
}

// Hub owns the connection registry and the room index. All reads and mutations of either go
// through the run goroutine; fan-out happens on the caller's goroutine.
type Hub struct {
	cmdCh    chan hubCmd
	clock    clockwork.Clock
	registry *connectionRegistry
	rooms    *roomIndex
	metrics  *metrics.HubMetrics
	done     chan struct{}
	stopOnce sync.Once
}

// New starts a hub. hubMetrics may be nil.
func New(clock clockwork.Clock, hubMetrics *metrics.HubMetrics) *Hub {
	h := &Hub{
		cmdCh:    make(chan hubCmd, commandCapacity),
		clock:    clock,
		registry: newConnectionRegistry(),
		rooms:    newRoomIndex(),
		metrics:  hubMetrics,
		done:     make(chan struct{}),
	}
	go h.run()
	return h
}

// call sends a command and waits for its reply. Both steps are bounded by commandTimeout and ctx.
func call[T any](ctx context.Context, h *Hub, build func(reply chan T) hubCmd) (T, error) {
	var zero T
	reply := make(chan T, 1)

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case h.cmdCh <- build(reply):
	case <-h.done:
		return zero, domain.ErrHubStopped
	case <-ctx.Done():
		return zero, fmt.Errorf("hub command: %w", ctx.Err())
	case <-timer.Chan():
		return zero, h.timeoutError()
	}

	select {
	case v := <-reply:
		return v, nil
	case <-h.done:
		return zero, domain.ErrHubStopped
	case <-ctx.Done():
		return zero, fmt.Errorf("hub command: %w", ctx.Err())
	case <-timer.Chan():
		return zero, h.timeoutError()
	}
}

func (h *Hub) timeoutError() error {
	if h.metrics != nil {
		h.metrics.CommandTimeouts.Inc()
	}
	slog.Warn("Hub command timed out", "timeout", commandTimeout, "queue_depth", len(h.cmdCh))
	return fmt.Errorf("hub command timed out after %v", commandTimeout)
}

// Register makes the connection a broadcast target. userID is zero for anonymous connections.
func (h *Hub) Register(ctx context.Context, id domain.ConnectionID, sink Sink, userID int64) error {
	session := &Session{ID: id, Sink: sink, UserID: userID, ConnectedAt: h.clock.Now()}
	err, callErr := call(ctx, h, func(reply chan error) hubCmd {
		return registerCmd{session: session, reply: reply}
	})
	if callErr != nil {
		return callErr
	}
	return err
}

// Unregister removes the connection from every room and closes its sink. Calling it for an
// unknown or already removed connection is a no-op.
func (h *Hub) Unregister(id domain.ConnectionID) {
	_, err := call(context.Background(), h, func(reply chan bool) hubCmd {
		return unregisterCmd{id: id, reply: reply}
	})
	if err != nil && !errors.Is(err, domain.ErrHubStopped) {
		slog.Error("Failed to unregister connection", "connection_id", id, "error", err)
	}
}

// Lookup returns a copy of the connection's session.
func (h *Hub) Lookup(ctx context.Context, id domain.ConnectionID) (Session, error) {
	res, err := call(ctx, h, func(reply chan lookupResult) hubCmd {
		return lookupCmd{id: id, reply: reply}
	})
	if err != nil {
		return Session{}, err
	}
	if !res.found {
		return Session{}, domain.ErrUnknownConnection
	}
	return res.session, nil
}

// Join adds the connection to the room. Joining a room twice is a no-op that still succeeds.
func (h *Hub) Join(ctx context.Context, key domain.RoomKey, id domain.ConnectionID) (domain.JoinAck, error) {
	return h.join(ctx, key, id, false)
}

// JoinExclusive leaves every room whose kind conflicts with key.Kind and joins key, as one step.
func (h *Hub) JoinExclusive(ctx context.Context, key domain.RoomKey, id domain.ConnectionID) (domain.JoinAck, error) {
	return h.join(ctx, key, id, true)
}

func (h *Hub) join(ctx context.Context, key domain.RoomKey, id domain.ConnectionID, exclusive bool) (domain.JoinAck, error) {
	if err := key.Validate(); err != nil {
		return domain.JoinAck{}, err
	}
	err, callErr := call(ctx, h, func(reply chan error) hubCmd {
		return joinCmd{key: key, id: id, exclusive: exclusive, reply: reply}
	})
	if callErr != nil {
		return domain.JoinAck{}, callErr
	}
	if err != nil {
		return domain.JoinAck{}, err
	}
	return domain.JoinAck{Joined: true}, nil
}

// Leave removes the connection from the room. Leaving a room the connection is not in is a no-op.
func (h *Hub) Leave(ctx context.Context, key domain.RoomKey, id domain.ConnectionID) error {
	if err := key.Validate(); err != nil {
		return err
	}
	_, err := call(ctx, h, func(reply chan bool) hubCmd {
		return leaveCmd{key: key, id: id, reply: reply}
	})
	return err
}

// RemoveConnection drops every room membership of the connection and returns the rooms it left.
// The connection itself stays registered.
func (h *Hub) RemoveConnection(ctx context.Context, id domain.ConnectionID) ([]domain.RoomKey, error) {
	return call(ctx, h, func(reply chan []domain.RoomKey) hubCmd {
		return removeConnectionCmd{id: id, reply: reply}
	})
}

// RoomsOf lists the rooms the connection is a member of.
func (h *Hub) RoomsOf(ctx context.Context, id domain.ConnectionID) ([]domain.RoomKey, error) {
	return call(ctx, h, func(reply chan []domain.RoomKey) hubCmd {
		return roomsOfCmd{id: id, reply: reply}
	})
}

func (h *Hub) RoomSize(ctx context.Context, key domain.RoomKey) (int, error) {
	return call(ctx, h, func(reply chan int) hubCmd {
		return roomSizeCmd{key: key, reply: reply}
	})
}

func (h *Hub) Stats(ctx context.Context) (Stats, error) {
	return call(ctx, h, func(reply chan Stats) hubCmd {
		return statsCmd{reply: reply}
	})
}

// Broadcast queues msg.Payload to every member of msg.Room except msg.Exclude. Members whose
// queue rejects the payload are unregistered; their failure never fails the broadcast.
func (h *Hub) Broadcast(ctx context.Context, msg domain.BroadcastMessage) (domain.DeliveryReport, error) {
	if err := msg.Room.Validate(); err != nil {
		return domain.DeliveryReport{}, err
	}
	room := msg.Room
	members, err := call(ctx, h, func(reply chan []member) hubCmd {
		return snapshotCmd{room: &room, reply: reply}
	})
	if err != nil {
		return domain.DeliveryReport{}, err
	}
	return h.fanout(members, msg.Payload, msg.Exclude, string(room.Kind)), nil
}

// BroadcastAll queues payload to every registered connection except exclude.
func (h *Hub) BroadcastAll(ctx context.Context, payload []byte, exclude domain.ConnectionID) (domain.DeliveryReport, error) {
	members, err := call(ctx, h, func(reply chan []member) hubCmd {
		return snapshotCmd{reply: reply}
	})
	if err != nil {
		return domain.DeliveryReport{}, err
	}
	return h.fanout(members, payload, exclude, "all"), nil
}

func (h *Hub) fanout(members []member, payload []byte, exclude domain.ConnectionID, kind string) domain.DeliveryReport {
	start := h.clock.Now()

	var report domain.DeliveryReport
	var dead []domain.ConnectionID
	for _, m := range members {
		if m.id == exclude {
			continue
		}
		report.Attempted++
		err := m.sink.Send(payload)
		switch {
		case err == nil:
			report.Delivered++
		case errors.Is(err, ErrSinkClosed):
			// Unregistered after the snapshot was taken.
			slog.Debug("Skipping closed connection", "connection_id", m.id)
		default:
			slog.Warn("Disconnecting unresponsive connection", "connection_id", m.id, "error", err)
			dead = append(dead, m.id)
		}
	}

	for _, id := range dead {
		h.Unregister(id)
	}
	report.Pruned = len(dead)

	if h.metrics != nil {
		h.metrics.BroadcastsTotal.WithLabelValues(kind).Inc()
		h.metrics.DeliveriesTotal.Add(float64(report.Delivered))
		h.metrics.PrunedTotal.Add(float64(report.Pruned))
		h.metrics.FanoutDuration.Observe(h.clock.Since(start).Seconds())
	}
	return report
}

// Stop closes every connection with a close frame and stops the actor. Blocks until the actor
// exits or stopTimeout passes. Safe to call more than once.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		timeout := h.clock.NewTimer(stopTimeout)
		defer timeout.Stop()

		select {
		case h.cmdCh <- stopCmd{reason: "server shutting down"}:
		case <-h.done:
			return
		case <-timeout.Chan():
			slog.Error("Hub stop command could not be queued", "timeout", stopTimeout)
			return
		}

		select {
		case <-h.done:
			slog.Info("Hub stopped gracefully")
		case <-timeout.Chan():
			slog.Warn("Hub stop timeout exceeded", "timeout", stopTimeout)
		}
	})
}

func (h *Hub) run() {
	defer close(h.done)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Hub panic recovered", "panic", r)
			h.closeAll("internal error")
		}
	}()

	for cmd := range h.cmdCh {
		switch c := cmd.(type) {
		case registerCmd:
			c.reply <- h.handleRegister(c.session)
		case unregisterCmd:
			c.reply <- h.handleUnregister(c.id)
		case joinCmd:
			c.reply <- h.handleJoin(c)
		case leaveCmd:
			left := h.rooms.leave(c.key, c.id)
			h.updateGauges()
			c.reply <- left
		case removeConnectionCmd:
			removed := h.rooms.removeConnection(c.id)
			h.updateGauges()
			c.reply <- removed
		case snapshotCmd:
			c.reply <- h.snapshot(c.room)
		case lookupCmd:
			s, ok := h.registry.get(c.id)
			if ok {
				c.reply <- lookupResult{session: *s, found: true}
			} else {
				c.reply <- lookupResult{}
			}
		case roomsOfCmd:
			c.reply <- h.rooms.roomsOf(c.id)
		case roomSizeCmd:
			c.reply <- h.rooms.size(c.key)
		case statsCmd:
			c.reply <- Stats{Connections: h.registry.count(), Rooms: h.rooms.roomCount()}
		case stopCmd:
			h.handleStop(c.reason)
			return
		default:
			slog.Warn("Hub received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
		}
	}
}

func (h *Hub) handleRegister(s *Session) error {
	if !h.registry.add(s) {
		return domain.ErrConnectionExists
	}
	h.updateGauges()
	slog.Debug("Connection registered", "connection_id", s.ID, "user_id", s.UserID, "total_connections", h.registry.count())
	return nil
}

func (h *Hub) handleUnregister(id domain.ConnectionID) bool {
	s, ok := h.registry.remove(id)
	if !ok {
		return false
	}
	rooms := h.rooms.removeConnection(id)
	s.Sink.Close("")
	h.updateGauges()
	slog.Debug("Connection unregistered", "connection_id", id, "rooms_left", len(rooms), "remaining_connections", h.registry.count())
	return true
}

func (h *Hub) handleJoin(c joinCmd) error {
	if _, ok := h.registry.get(c.id); !ok {
		return domain.ErrUnknownConnection
	}
	if c.exclusive {
		for _, left := range h.rooms.leaveKinds(c.id, c.key.Kind.Conflicts()) {
			if left != c.key {
				slog.Debug("Left conflicting room", "connection_id", c.id, "room", left.String())
			}
		}
	}
	if h.rooms.join(c.key, c.id) && h.metrics != nil {
		h.metrics.JoinsTotal.WithLabelValues(string(c.key.Kind)).Inc()
	}
	h.updateGauges()
	return nil
}

func (h *Hub) snapshot(room *domain.RoomKey) []member {
	if room == nil {
		members := make([]member, 0, h.registry.count())
		for id, s := range h.registry.sessions {
			members = append(members, member{id: id, sink: s.Sink})
		}
		return members
	}

	ids := h.rooms.snapshot(*room)
	members := make([]member, 0, len(ids))
	for _, id := range ids {
		s, ok := h.registry.get(id)
		if !ok {
			// Unreachable while unregister cleans the index; never deliver to a ghost.
			slog.Error("Room member missing from registry", "connection_id", id, "room", room.String())
			continue
		}
		members = append(members, member{id: id, sink: s.Sink})
	}
	return members
}

func (h *Hub) handleStop(reason string) {
	slog.Info("Hub shutting down", "connections", h.registry.count(), "rooms", h.rooms.roomCount())
	h.closeAll(reason)
}

// closeAll empties both indexes and closes every sink concurrently, so one stalled peer
// cannot hold up the rest.
func (h *Hub) closeAll(reason string) {
	sinks := make([]Sink, 0, h.registry.count())
	for id, s := range h.registry.sessions {
		sinks = append(sinks, s.Sink)
		h.rooms.removeConnection(id)
		delete(h.registry.sessions, id)
	}
	h.updateGauges()

	var wg sync.WaitGroup
	for _, sink := range sinks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sink.Close(reason)
		}()
	}
	wg.Wait()
}

func (h *Hub) updateGauges() {
	if h.metrics == nil {
		return
	}
	h.metrics.ActiveConnections.Set(float64(h.registry.count()))
	h.metrics.ActiveRooms.Set(float64(h.rooms.roomCount()))
}
