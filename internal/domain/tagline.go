package domain

import "context"

// Tagline is a rotating site message.
type Tagline struct {
	ID      int32  `json:"id"`
	Content string `json:"content"`
}

type TaglineRepository interface {
	Create(ctx context.Context, content string) (*Tagline, error)
	Read(ctx context.Context, id int32) (*Tagline, error)
	Update(ctx context.Context, id int32, content string) (*Tagline, error)
	Delete(ctx context.Context, id int32) error
	GetAll(ctx context.Context) ([]Tagline, error)
	GetRandom(ctx context.Context) (*Tagline, error)
}
