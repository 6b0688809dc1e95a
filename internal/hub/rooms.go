package hub

import "github.com/pscheid92/forumcast/internal/domain"

type connectionSet map[domain.ConnectionID]struct{}

type roomSet map[domain.RoomKey]struct{}

// roomIndex keeps room membership in both directions. members and memberships always describe
// the same set of (room, connection) pairs. Not safe for concurrent use; the hub actor owns it.
type roomIndex struct {
	members     map[domain.RoomKey]connectionSet
	memberships map[domain.ConnectionID]roomSet
}

func newRoomIndex() *roomIndex {
	return &roomIndex{
		members:     make(map[domain.RoomKey]connectionSet),
		memberships: make(map[domain.ConnectionID]roomSet),
	}
}

// join adds the pair and reports whether it was new.
func (ri *roomIndex) join(key domain.RoomKey, id domain.ConnectionID) bool {
	conns, ok := ri.members[key]
	if !ok {
		conns = make(connectionSet)
		ri.members[key] = conns
	}
	if _, exists := conns[id]; exists {
		return false
	}
	conns[id] = struct{}{}

	rooms, ok := ri.memberships[id]
	if !ok {
		rooms = make(roomSet)
		ri.memberships[id] = rooms
	}
	rooms[key] = struct{}{}
	return true
}

// leave removes the pair and reports whether it existed. Empty entries are dropped on both sides.
func (ri *roomIndex) leave(key domain.RoomKey, id domain.ConnectionID) bool {
	conns, ok := ri.members[key]
	if !ok {
		return false
	}
	if _, exists := conns[id]; !exists {
		return false
	}
	delete(conns, id)
	if len(conns) == 0 {
		delete(ri.members, key)
	}

	if rooms, ok := ri.memberships[id]; ok {
		delete(rooms, key)
		if len(rooms) == 0 {
			delete(ri.memberships, id)
		}
	}
	return true
}

// leaveKinds removes the connection from every room of the given kinds.
func (ri *roomIndex) leaveKinds(id domain.ConnectionID, kinds []domain.RoomKind) []domain.RoomKey {
	var left []domain.RoomKey
	for key := range ri.memberships[id] {
		for _, kind := range kinds {
			if key.Kind == kind {
				left = append(left, key)
				break
			}
		}
	}
	for _, key := range left {
		ri.leave(key, id)
	}
	return left
}

// removeConnection drops every membership of id using the reverse index, so the cost is
// proportional to the number of rooms the connection is in.
func (ri *roomIndex) removeConnection(id domain.ConnectionID) []domain.RoomKey {
	rooms, ok := ri.memberships[id]
	if !ok {
		return nil
	}
	removed := make([]domain.RoomKey, 0, len(rooms))
	for key := range rooms {
		conns := ri.members[key]
		delete(conns, id)
		if len(conns) == 0 {
			delete(ri.members, key)
		}
		removed = append(removed, key)
	}
	delete(ri.memberships, id)
	return removed
}

func (ri *roomIndex) snapshot(key domain.RoomKey) []domain.ConnectionID {
	conns := ri.members[key]
	if len(conns) == 0 {
		return nil
	}
	ids := make([]domain.ConnectionID, 0, len(conns))
	for id := range conns {
		ids = append(ids, id)
	}
	return ids
}

func (ri *roomIndex) roomsOf(id domain.ConnectionID) []domain.RoomKey {
	rooms := ri.memberships[id]
	if len(rooms) == 0 {
		return nil
	}
	keys := make([]domain.RoomKey, 0, len(rooms))
	for key := range rooms {
		keys = append(keys, key)
	}
	return keys
}

func (ri *roomIndex) size(key domain.RoomKey) int {
	return len(ri.members[key])
}

func (ri *roomIndex) roomCount() int {
	return len(ri.members)
}
