package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/pscheid92/forumcast/internal/domain"
)

type TaglineRepo struct {
	db DBTX
}

var _ domain.TaglineRepository = (*TaglineRepo)(nil)

func NewTaglineRepo(db DBTX) *TaglineRepo {
	return &TaglineRepo{db: db}
}

func (r *TaglineRepo) Create(ctx context.Context, content string) (*domain.Tagline, error) {
	var t domain.Tagline
	if err := r.db.QueryRow(ctx, createTagline, content).Scan(&t.ID, &t.Content); err != nil {
		return nil, fmt.Errorf("failed to create tagline: %w", err)
	}
	return &t, nil
}

func (r *TaglineRepo) Read(ctx context.Context, id int32) (*domain.Tagline, error) {
	var t domain.Tagline
	err := r.db.QueryRow(ctx, readTagline, id).Scan(&t.ID, &t.Content)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrTaglineNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read tagline: %w", err)
	}
	return &t, nil
}

func (r *TaglineRepo) Update(ctx context.Context, id int32, content string) (*domain.Tagline, error) {
	var t domain.Tagline
	err := r.db.QueryRow(ctx, updateTagline, id, content).Scan(&t.ID, &t.Content)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrTaglineNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update tagline: %w", err)
	}
	return &t, nil
}

func (r *TaglineRepo) Delete(ctx context.Context, id int32) error {
	tag, err := r.db.Exec(ctx, deleteTagline, id)
	if err != nil {
		return fmt.Errorf("failed to delete tagline: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTaglineNotFound
	}
	return nil
}

func (r *TaglineRepo) GetAll(ctx context.Context) ([]domain.Tagline, error) {
	rows, err := r.db.Query(ctx, listTaglines)
	if err != nil {
		return nil, fmt.Errorf("failed to list taglines: %w", err)
	}

	taglines, err := pgx.CollectRows(rows, pgx.RowToStructByPos[domain.Tagline])
	if err != nil {
		return nil, fmt.Errorf("failed to scan taglines: %w", err)
	}
	return taglines, nil
}

func (r *TaglineRepo) GetRandom(ctx context.Context) (*domain.Tagline, error) {
	var t domain.Tagline
	err := r.db.QueryRow(ctx, randomTagline).Scan(&t.ID, &t.Content)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrTaglineNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get random tagline: %w", err)
	}
	return &t, nil
}
