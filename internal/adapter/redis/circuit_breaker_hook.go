package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/pscheid92/forumcast/internal/adapter/metrics"
)

var errBreakerOpen = fmt.Errorf("redis circuit breaker open: %w", circuitbreaker.ErrOpen)

// CircuitBreakerHook is a goredis.Hook that stops sending commands to an unhealthy Redis.
// While open, single-key GETs are answered from the last value the hook saw for that key.
type CircuitBreakerHook struct {
	cb   circuitbreaker.CircuitBreaker[any]
	last *lastValues
}

var _ goredis.Hook = (*CircuitBreakerHook)(nil)

// NewCircuitBreakerHook opens at a 60% failure rate over at least 5 calls in 10s, waits 30s
// before letting a trial call through, and closes after one trial succeeds. m may be nil.
func NewCircuitBreakerHook(m *metrics.RedisMetrics, clock clockwork.Clock) *CircuitBreakerHook {
	return newCircuitBreakerHook(30*time.Second, m, clock)
}

func newCircuitBreakerHook(openFor time.Duration, m *metrics.RedisMetrics, clock clockwork.Clock) *CircuitBreakerHook {
	cb := circuitbreaker.NewBuilder[any]().
		WithFailureRateThreshold(0.6, 5, 10*time.Second).
		WithDelay(openFor).
		WithSuccessThreshold(1).
		OnStateChanged(func(e circuitbreaker.StateChangedEvent) {
			slog.Warn("Redis circuit breaker changed state", "from", e.OldState.String(), "to", e.NewState.String())
			if m != nil {
				m.CircuitStateChanges.WithLabelValues(e.NewState.String()).Inc()
				m.CircuitBreakerState.Set(stateGauge(e.NewState))
			}
		}).
		Build()

	return &CircuitBreakerHook{cb: cb, last: newLastValues(clock)}
}

// stateGauge encodes closed, half-open and open as 0, 1 and 2.
func stateGauge(state circuitbreaker.State) float64 {
	switch state {
	case circuitbreaker.ClosedState:
		return 0
	case circuitbreaker.HalfOpenState:
		return 1
	case circuitbreaker.OpenState:
		return 2
	}
	return -1
}

// record feeds one outcome to the breaker. A Nil reply is a successful miss.
func (h *CircuitBreakerHook) record(err error) bool {
	if err != nil && !errors.Is(err, goredis.Nil) {
		h.cb.RecordError(err)
		return false
	}
	h.cb.RecordSuccess()
	return true
}

func (h *CircuitBreakerHook) DialHook(next goredis.DialHook) goredis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		if !h.cb.TryAcquirePermit() {
			return nil, errBreakerOpen
		}
		conn, err := next(ctx, network, addr)
		if !h.record(err) {
			return nil, fmt.Errorf("redis dial through circuit breaker: %w", err)
		}
		return conn, nil
	}
}

func (h *CircuitBreakerHook) ProcessHook(next goredis.ProcessHook) goredis.ProcessHook {
	return func(ctx context.Context, cmd goredis.Cmder) error {
		// A write or delete makes the remembered value stale whether or not it reaches Redis.
		if keys := overwrittenKeys(cmd); len(keys) > 0 {
			h.last.drop(keys...)
		}

		if !h.cb.TryAcquirePermit() {
			return h.answerWhileOpen(cmd)
		}

		err := next(ctx, cmd)
		if !h.record(err) {
			return fmt.Errorf("redis %s through circuit breaker: %w", cmd.Name(), err)
		}
		if get, ok := singleGet(cmd); ok {
			if value, err := get.Result(); err == nil && value != "" {
				h.last.put(cmd.Args()[1], value)
			} else {
				h.last.drop(cmd.Args()[1])
			}
		}
		return err
	}
}

func (h *CircuitBreakerHook) ProcessPipelineHook(next goredis.ProcessPipelineHook) goredis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []goredis.Cmder) error {
		for _, cmd := range cmds {
			if keys := overwrittenKeys(cmd); len(keys) > 0 {
				h.last.drop(keys...)
			}
		}
		if !h.cb.TryAcquirePermit() {
			return errBreakerOpen
		}
		err := next(ctx, cmds)
		if !h.record(err) {
			return fmt.Errorf("redis pipeline through circuit breaker: %w", err)
		}
		return err
	}
}

func (h *CircuitBreakerHook) answerWhileOpen(cmd goredis.Cmder) error {
	get, ok := singleGet(cmd)
	if !ok {
		return errBreakerOpen
	}
	value, ok := h.last.get(cmd.Args()[1])
	if !ok {
		return fmt.Errorf("%w, no recent value for key", errBreakerOpen)
	}
	slog.Debug("Answering GET from last known value", "component", "redis")
	get.SetVal(value)
	return nil
}

func singleGet(cmd goredis.Cmder) (*goredis.StringCmd, bool) {
	if cmd.Name() != "get" || len(cmd.Args()) != 2 {
		return nil, false
	}
	get, ok := cmd.(*goredis.StringCmd)
	return get, ok
}

// overwrittenKeys lists the keys whose remembered value cmd invalidates.
func overwrittenKeys(cmd goredis.Cmder) []any {
	args := cmd.Args()
	if len(args) < 2 {
		return nil
	}
	switch cmd.Name() {
	case "del", "unlink":
		return args[1:]
	case "set", "setex", "psetex", "setnx", "getdel", "getex", "getset",
		"expire", "pexpire", "expireat", "pexpireat":
		return args[1:2]
	}
	return nil
}

// State reports the breaker state for health checks and tests.
func (h *CircuitBreakerHook) State() circuitbreaker.State {
	return h.cb.State()
}
