package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Queries are annotated with "-- name:" so MetricsTracer can label them.
const (
	getUserByID = `-- name: GetUserByID
SELECT id, name, admin FROM users WHERE id = $1`

	isModerator = `-- name: IsModerator
SELECT EXISTS (
    SELECT 1 FROM community_moderator WHERE community_id = $1 AND user_id = $2
)`

	createTagline = `-- name: CreateTagline
INSERT INTO tagline (content) VALUES ($1) RETURNING id, content`

	readTagline = `-- name: ReadTagline
SELECT id, content FROM tagline WHERE id = $1`

	updateTagline = `-- name: UpdateTagline
UPDATE tagline SET content = $2, updated = NOW() WHERE id = $1 RETURNING id, content`

	deleteTagline = `-- name: DeleteTagline
DELETE FROM tagline WHERE id = $1`

	listTaglines = `-- name: ListTaglines
SELECT id, content FROM tagline ORDER BY id`

	randomTagline = `-- name: RandomTagline
SELECT id, content FROM tagline ORDER BY random() LIMIT 1`
)
