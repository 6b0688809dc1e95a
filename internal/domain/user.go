package domain

import "context"

type User struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Admin bool   `json:"admin"`
}

// Identity is a resolved caller. A nil *Identity means an anonymous caller.
type Identity struct {
	UserID int64
	Name   string
	Admin  bool
}

type UserRepository interface {
	GetByID(ctx context.Context, userID int64) (*User, error)
}

type ModeratorRepository interface {
	IsModerator(ctx context.Context, communityID, userID int64) (bool, error)
}

// IdentityResolver turns a bearer token into an Identity.
type IdentityResolver interface {
	Resolve(ctx context.Context, token string) (*Identity, error)
}
