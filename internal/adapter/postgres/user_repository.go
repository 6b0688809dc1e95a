package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/pscheid92/forumcast/internal/domain"
)

type UserRepo struct {
	db DBTX
}

var _ domain.UserRepository = (*UserRepo)(nil)

func NewUserRepo(db DBTX) *UserRepo {
	return &UserRepo{db: db}
}

func (r *UserRepo) GetByID(ctx context.Context, userID int64) (*domain.User, error) {
	var user domain.User
	err := r.db.QueryRow(ctx, getUserByID, userID).Scan(&user.ID, &user.Name, &user.Admin)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by ID: %w", err)
	}
	return &user, nil
}

type ModeratorRepo struct {
	db DBTX
}

var _ domain.ModeratorRepository = (*ModeratorRepo)(nil)

func NewModeratorRepo(db DBTX) *ModeratorRepo {
	return &ModeratorRepo{db: db}
}

func (r *ModeratorRepo) IsModerator(ctx context.Context, communityID, userID int64) (bool, error) {
	var ok bool
	if err := r.db.QueryRow(ctx, isModerator, communityID, userID).Scan(&ok); err != nil {
		return false, fmt.Errorf("failed to check moderator: %w", err)
	}
	return ok, nil
}
