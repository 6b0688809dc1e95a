package app

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/pscheid92/forumcast/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mock TaglineRepository ---

type mockTaglineRepo struct {
	createFn    func(ctx context.Context, content string) (*domain.Tagline, error)
	readFn      func(ctx context.Context, id int32) (*domain.Tagline, error)
	updateFn    func(ctx context.Context, id int32, content string) (*domain.Tagline, error)
	deleteFn    func(ctx context.Context, id int32) error
	getAllFn    func(ctx context.Context) ([]domain.Tagline, error)
	getRandomFn func(ctx context.Context) (*domain.Tagline, error)
}

func (m *mockTaglineRepo) Create(ctx context.Context, content string) (*domain.Tagline, error) {
	if m.createFn != nil {
		return m.createFn(ctx, content)
	}
	return &domain.Tagline{ID: 1, Content: content}, nil
}

func (m *mockTaglineRepo) Read(ctx context.Context, id int32) (*domain.Tagline, error) {
	if m.readFn != nil {
		return m.readFn(ctx, id)
	}
	return nil, domain.ErrTaglineNotFound
}

func (m *mockTaglineRepo) Update(ctx context.Context, id int32, content string) (*domain.Tagline, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, id, content)
	}
	return &domain.Tagline{ID: id, Content: content}, nil
}

func (m *mockTaglineRepo) Delete(ctx context.Context, id int32) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

func (m *mockTaglineRepo) GetAll(ctx context.Context) ([]domain.Tagline, error) {
	if m.getAllFn != nil {
		return m.getAllFn(ctx)
	}
	return nil, nil
}

func (m *mockTaglineRepo) GetRandom(ctx context.Context) (*domain.Tagline, error) {
	if m.getRandomFn != nil {
		return m.getRandomFn(ctx)
	}
	return nil, domain.ErrTaglineNotFound
}

var storedTaglines = []domain.Tagline{
	{ID: 1, Content: "Welcome aboard"},
	{ID: 2, Content: "Be excellent to each other"},
}

func TestTaglines_ListAdminGate(t *testing.T) {
	repo := &mockTaglineRepo{
		getAllFn: func(context.Context) ([]domain.Tagline, error) { return storedTaglines, nil },
	}
	svc := NewTaglines(repo)

	t.Run("admin gets the complete list", func(t *testing.T) {
		got, err := svc.List(context.Background(), admin)
		require.NoError(t, err)
		assert.Equal(t, storedTaglines, got)
	})

	t.Run("non-admin is rejected", func(t *testing.T) {
		got, err := svc.List(context.Background(), alice)
		assert.ErrorIs(t, err, domain.ErrNotAnAdmin)
		assert.Nil(t, got)
	})

	t.Run("anonymous is rejected", func(t *testing.T) {
		_, err := svc.List(context.Background(), nil)
		assert.ErrorIs(t, err, domain.ErrNotAuthenticated)
	})
}

func TestTaglines_ListRepositoryError(t *testing.T) {
	dbErr := errors.New("timeout")
	svc := NewTaglines(&mockTaglineRepo{
		getAllFn: func(context.Context) ([]domain.Tagline, error) { return nil, dbErr },
	})

	_, err := svc.List(context.Background(), admin)
	assert.ErrorIs(t, err, dbErr)
}

func TestTaglines_RandomIsPublic(t *testing.T) {
	svc := NewTaglines(&mockTaglineRepo{
		getRandomFn: func(context.Context) (*domain.Tagline, error) { return &storedTaglines[1], nil },
	})

	got, err := svc.Random(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Be excellent to each other", got.Content)
}

func TestTaglines_CreateValidatesContent(t *testing.T) {
	var stored string
	svc := NewTaglines(&mockTaglineRepo{
		createFn: func(_ context.Context, content string) (*domain.Tagline, error) {
			stored = content
			return &domain.Tagline{ID: 3, Content: content}, nil
		},
	})
	ctx := context.Background()

	got, err := svc.Create(ctx, admin, "  Hello forum  ")
	require.NoError(t, err)
	assert.Equal(t, "Hello forum", stored)
	assert.Equal(t, int32(3), got.ID)

	_, err = svc.Create(ctx, admin, "   ")
	assert.ErrorIs(t, err, ErrInvalidTagline)

	_, err = svc.Create(ctx, admin, strings.Repeat("ä", maxTaglineLength+1))
	assert.ErrorIs(t, err, ErrInvalidTagline)

	_, err = svc.Create(ctx, admin, strings.Repeat("ä", maxTaglineLength))
	assert.NoError(t, err)
}

func TestTaglines_MutationsRequireAdmin(t *testing.T) {
	svc := NewTaglines(&mockTaglineRepo{})
	ctx := context.Background()

	_, err := svc.Create(ctx, alice, "hi")
	assert.ErrorIs(t, err, domain.ErrNotAnAdmin)
	_, err = svc.Update(ctx, alice, 1, "hi")
	assert.ErrorIs(t, err, domain.ErrNotAnAdmin)
	assert.ErrorIs(t, svc.Delete(ctx, alice, 1), domain.ErrNotAnAdmin)
	_, err = svc.Get(ctx, nil, 1)
	assert.ErrorIs(t, err, domain.ErrNotAuthenticated)
}

func TestTaglines_UpdateAndDelete(t *testing.T) {
	var deleted int32
	svc := NewTaglines(&mockTaglineRepo{
		deleteFn: func(_ context.Context, id int32) error {
			deleted = id
			return nil
		},
	})
	ctx := context.Background()

	got, err := svc.Update(ctx, admin, 2, "Updated")
	require.NoError(t, err)
	assert.Equal(t, domain.Tagline{ID: 2, Content: "Updated"}, *got)

	require.NoError(t, svc.Delete(ctx, admin, 2))
	assert.Equal(t, int32(2), deleted)

	_, err = svc.Get(ctx, admin, 9)
	assert.ErrorIs(t, err, domain.ErrTaglineNotFound)
}
