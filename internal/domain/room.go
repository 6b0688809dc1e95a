package domain

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// ConnectionID identifies one live transport session.
type ConnectionID = uuid.UUID

type RoomKind string

const (
	RoomUserInbox RoomKind = "user"
	RoomCommunity RoomKind = "community"
	RoomMod       RoomKind = "mod"
	RoomPost      RoomKind = "post"
)

func (k RoomKind) Valid() bool {
	switch k {
	case RoomUserInbox, RoomCommunity, RoomMod, RoomPost:
		return true
	default:
		return false
	}
}

// Conflicts returns the room kinds a connection leaves when it joins a room of kind k
// exclusively. Community and post rooms exclude each other so one event is not delivered
// twice through both.
func (k RoomKind) Conflicts() []RoomKind {
	switch k {
	case RoomCommunity, RoomPost:
		return []RoomKind{RoomCommunity, RoomPost}
	case RoomUserInbox, RoomMod:
		return []RoomKind{k}
	default:
		return nil
	}
}

// RoomKey identifies a broadcast scope. EntityID is a user id for inbox rooms, a community id
// for community and mod rooms, and a post id for post rooms.
type RoomKey struct {
	Kind     RoomKind `json:"kind"`
	EntityID int64    `json:"id"`
}

func NewRoomKey(kind RoomKind, entityID int64) (RoomKey, error) {
	key := RoomKey{Kind: kind, EntityID: entityID}
	if err := key.Validate(); err != nil {
		return RoomKey{}, err
	}
	return key, nil
}

func (k RoomKey) Validate() error {
	if !k.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidRoomKey, k.Kind)
	}
	if k.EntityID <= 0 {
		return fmt.Errorf("%w: entity id must be positive, got %d", ErrInvalidRoomKey, k.EntityID)
	}
	return nil
}

func (k RoomKey) String() string {
	return string(k.Kind) + ":" + strconv.FormatInt(k.EntityID, 10)
}

// BroadcastMessage is a payload addressed to one room. Exclude, when set, is skipped even if
// it is a member.
type BroadcastMessage struct {
	Room    RoomKey
	Payload []byte
	Exclude ConnectionID
}

// DeliveryReport summarizes one fan-out. Pruned counts members whose queue rejected the payload
// and were disconnected as a result.
type DeliveryReport struct {
	Attempted int `json:"attempted"`
	Delivered int `json:"delivered"`
	Pruned    int `json:"pruned"`
}

// JoinAck is returned to the caller of a join operation.
type JoinAck struct {
	Joined bool `json:"joined"`
}
