package httpserver

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

const (
	connectionsPerSecond = 10.0
	connectionBurst      = 20

	clientSweepInterval = 5 * time.Minute
	clientIdleTimeout   = 10 * time.Minute
)

// LimitReason describes why a connection was rejected.
type LimitReason string

const (
	LimitReasonGlobal LimitReason = "global_limit"
	LimitReasonPerIP  LimitReason = "per_ip_limit"
	LimitReasonRate   LimitReason = "rate_limit"
)

// clientAdmission is what the limiter remembers about one remote IP.
type clientAdmission struct {
	open     int
	upgrades *rate.Limiter
	lastSeen time.Time
}

// ConnectionLimits gates websocket upgrades. One lock covers the instance-wide count and
// the per-IP table, so an admission either takes both slots or neither.
type ConnectionLimits struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	active  int64
	max     int64
	perIP   int
	rate    rate.Limit
	burst   int
	clients map[string]*clientAdmission
	sweepAt time.Time
}

func NewConnectionLimits(globalMax int64, perIPMax int, perSecond float64, burst int, clock clockwork.Clock) *ConnectionLimits {
	return &ConnectionLimits{
		clock:   clock,
		max:     globalMax,
		perIP:   perIPMax,
		rate:    rate.Limit(perSecond),
		burst:   burst,
		clients: make(map[string]*clientAdmission),
		sweepAt: clock.Now().Add(clientSweepInterval),
	}
}

// Acquire spends one upgrade token for ip and then takes a global and a per-IP slot.
// A rejected upgrade still spends its token.
func (l *ConnectionLimits) Acquire(ip string) (bool, LimitReason) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if now.After(l.sweepAt) {
		l.sweep(now)
		l.sweepAt = now.Add(clientSweepInterval)
	}

	client := l.clients[ip]
	if client == nil {
		client = &clientAdmission{upgrades: rate.NewLimiter(l.rate, l.burst)}
		l.clients[ip] = client
	}
	client.lastSeen = now

	switch {
	case !client.upgrades.AllowN(now, 1):
		return false, LimitReasonRate
	case l.active >= l.max:
		return false, LimitReasonGlobal
	case client.open >= l.perIP:
		return false, LimitReasonPerIP
	}
	l.active++
	client.open++
	return true, ""
}

// Release returns the slots taken by a successful Acquire. The client entry stays until it
// has been idle long enough that its upgrade budget is full again.
func (l *ConnectionLimits) Release(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	client := l.clients[ip]
	if client == nil || client.open == 0 {
		return
	}
	client.open--
	client.lastSeen = l.clock.Now()
	l.active--
}

// Usage reports the websocket connections currently held against the global cap.
func (l *ConnectionLimits) Usage() (active, limit int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active, l.max
}

// sweep must be called with mu held. Clients holding a connection are never dropped.
func (l *ConnectionLimits) sweep(now time.Time) {
	cutoff := now.Add(-clientIdleTimeout)
	for ip, client := range l.clients {
		if client.open == 0 && client.lastSeen.Before(cutoff) {
			delete(l.clients, ip)
		}
	}
}

func (l *ConnectionLimits) trackedClients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}
