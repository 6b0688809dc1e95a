package app

import (
	"context"
	"fmt"

	"github.com/pscheid92/forumcast/internal/domain"
)

type roomHub interface {
	Join(ctx context.Context, key domain.RoomKey, id domain.ConnectionID) (domain.JoinAck, error)
	JoinExclusive(ctx context.Context, key domain.RoomKey, id domain.ConnectionID) (domain.JoinAck, error)
	Leave(ctx context.Context, key domain.RoomKey, id domain.ConnectionID) error
}

// Rooms decides who may join which room and forwards admitted joins to the hub.
type Rooms struct {
	hub        roomHub
	moderators domain.ModeratorRepository
	exclusive  bool
}

// NewRooms creates the room service. With exclusive set, joining a community or post room
// leaves the connection's other community and post rooms, and joining an inbox or mod room
// leaves the previous room of the same kind.
func NewRooms(hub roomHub, moderators domain.ModeratorRepository, exclusive bool) *Rooms {
	return &Rooms{hub: hub, moderators: moderators, exclusive: exclusive}
}

// UserJoin subscribes the connection to a user's inbox. userID zero means the caller's own inbox.
func (r *Rooms) UserJoin(ctx context.Context, caller *domain.Identity, userID int64, conn domain.ConnectionID) (domain.JoinAck, error) {
	if caller != nil && userID == 0 {
		userID = caller.UserID
	}
	return r.join(ctx, caller, domain.RoomKey{Kind: domain.RoomUserInbox, EntityID: userID}, conn)
}

func (r *Rooms) CommunityJoin(ctx context.Context, caller *domain.Identity, communityID int64, conn domain.ConnectionID) (domain.JoinAck, error) {
	return r.join(ctx, caller, domain.RoomKey{Kind: domain.RoomCommunity, EntityID: communityID}, conn)
}

func (r *Rooms) ModJoin(ctx context.Context, caller *domain.Identity, communityID int64, conn domain.ConnectionID) (domain.JoinAck, error) {
	return r.join(ctx, caller, domain.RoomKey{Kind: domain.RoomMod, EntityID: communityID}, conn)
}

func (r *Rooms) PostJoin(ctx context.Context, caller *domain.Identity, postID int64, conn domain.ConnectionID) (domain.JoinAck, error) {
	return r.join(ctx, caller, domain.RoomKey{Kind: domain.RoomPost, EntityID: postID}, conn)
}

// Leave needs no authorization: a connection may always drop its own subscriptions.
func (r *Rooms) Leave(ctx context.Context, key domain.RoomKey, conn domain.ConnectionID) error {
	if err := r.hub.Leave(ctx, key, conn); err != nil {
		return fmt.Errorf("leave %s: %w", key, err)
	}
	return nil
}

func (r *Rooms) join(ctx context.Context, caller *domain.Identity, key domain.RoomKey, conn domain.ConnectionID) (domain.JoinAck, error) {
	if err := key.Validate(); err != nil {
		// An anonymous UserJoin without a target is a login problem, not a bad room.
		if key.Kind == domain.RoomUserInbox && caller == nil {
			return domain.JoinAck{}, domain.ErrNotAuthenticated
		}
		return domain.JoinAck{}, err
	}
	if err := r.Authorize(ctx, caller, key); err != nil {
		return domain.JoinAck{}, err
	}

	var (
		ack domain.JoinAck
		err error
	)
	if r.exclusive {
		ack, err = r.hub.JoinExclusive(ctx, key, conn)
	} else {
		ack, err = r.hub.Join(ctx, key, conn)
	}
	if err != nil {
		return domain.JoinAck{}, fmt.Errorf("join %s: %w", key, err)
	}
	return ack, nil
}

// Authorize is the single policy for room admission.
//
//	user:      authenticated and joining their own inbox
//	mod:       authenticated admin, or moderator of the community
//	community: anyone
//	post:      anyone
func (r *Rooms) Authorize(ctx context.Context, caller *domain.Identity, key domain.RoomKey) error {
	switch key.Kind {
	case domain.RoomUserInbox:
		if caller == nil {
			return domain.ErrNotAuthenticated
		}
		if caller.UserID != key.EntityID {
			return domain.ErrNotAuthorized
		}
		return nil
	case domain.RoomMod:
		if caller == nil {
			return domain.ErrNotAuthenticated
		}
		if caller.Admin {
			return nil
		}
		isMod, err := r.moderators.IsModerator(ctx, key.EntityID, caller.UserID)
		if err != nil {
			return fmt.Errorf("moderator lookup: %w", err)
		}
		if !isMod {
			return domain.ErrNotAuthorized
		}
		return nil
	case domain.RoomCommunity, domain.RoomPost:
		return nil
	default:
		return domain.ErrInvalidRoomKey
	}
}
