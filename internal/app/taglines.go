package app

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/pscheid92/forumcast/internal/domain"
)

const maxTaglineLength = 500

// ErrInvalidTagline is returned for empty or oversized tagline content.
var ErrInvalidTagline = fmt.Errorf("tagline content must be 1 to %d characters", maxTaglineLength)

type Taglines struct {
	repo domain.TaglineRepository
}

func NewTaglines(repo domain.TaglineRepository) *Taglines {
	return &Taglines{repo: repo}
}

// List returns every tagline. Only administrators may list.
func (t *Taglines) List(ctx context.Context, caller *domain.Identity) ([]domain.Tagline, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	taglines, err := t.repo.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list taglines: %w", err)
	}
	return taglines, nil
}

// Random returns one tagline for the site banner. Public.
func (t *Taglines) Random(ctx context.Context) (*domain.Tagline, error) {
	return t.repo.GetRandom(ctx)
}

func (t *Taglines) Get(ctx context.Context, caller *domain.Identity, id int32) (*domain.Tagline, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	return t.repo.Read(ctx, id)
}

func (t *Taglines) Create(ctx context.Context, caller *domain.Identity, content string) (*domain.Tagline, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	content, err := normalizeTagline(content)
	if err != nil {
		return nil, err
	}
	return t.repo.Create(ctx, content)
}

func (t *Taglines) Update(ctx context.Context, caller *domain.Identity, id int32, content string) (*domain.Tagline, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	content, err := normalizeTagline(content)
	if err != nil {
		return nil, err
	}
	return t.repo.Update(ctx, id, content)
}

func (t *Taglines) Delete(ctx context.Context, caller *domain.Identity, id int32) error {
	if err := requireAdmin(caller); err != nil {
		return err
	}
	return t.repo.Delete(ctx, id)
}

func requireAdmin(caller *domain.Identity) error {
	if caller == nil {
		return domain.ErrNotAuthenticated
	}
	if !caller.Admin {
		return domain.ErrNotAnAdmin
	}
	return nil
}

func normalizeTagline(content string) (string, error) {
	content = strings.TrimSpace(content)
	if n := utf8.RuneCountInString(content); n == 0 || n > maxTaglineLength {
		return "", ErrInvalidTagline
	}
	return content, nil
}
