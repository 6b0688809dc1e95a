package hub

import (
	"time"

	"github.com/pscheid92/forumcast/internal/domain"
)

// Session is one registered connection. UserID is zero for anonymous connections.
type Session struct {
	ID          domain.ConnectionID
	Sink        Sink
	UserID      int64
	ConnectedAt time.Time
}

// connectionRegistry tracks live sessions. Owned by the hub actor.
type connectionRegistry struct {
	sessions map[domain.ConnectionID]*Session
}

func newConnectionRegistry() *connectionRegistry {
	return &connectionRegistry{sessions: make(map[domain.ConnectionID]*Session)}
}

func (r *connectionRegistry) add(s *Session) bool {
	if _, exists := r.sessions[s.ID]; exists {
		return false
	}
	r.sessions[s.ID] = s
	return true
}

func (r *connectionRegistry) remove(id domain.ConnectionID) (*Session, bool) {
	s, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	delete(r.sessions, id)
	return s, true
}

func (r *connectionRegistry) get(id domain.ConnectionID) (*Session, bool) {
	s, ok := r.sessions[id]
	return s, ok
}

func (r *connectionRegistry) count() int {
	return len(r.sessions)
}
