package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/tern/v2/migrate"
)

//go:embed schemas/*.sql
var schemaFiles embed.FS

const (
	schemaVersionTable = "public.schema_version"
	unlockTimeout      = 5 * time.Second
)

// PoolOptions tunes the pool. Zero sizes keep the pgxpool defaults; a nil Tracer records nothing.
type PoolOptions struct {
	MaxConns int32
	MinConns int32
	Tracer   pgx.QueryTracer
}

// Connect opens a pool and pings it once.
func Connect(ctx context.Context, databaseURL string, opts PoolOptions) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	if opts.MaxConns > 0 {
		poolCfg.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 {
		poolCfg.MinConns = min(opts.MinConns, poolCfg.MaxConns)
	}
	if opts.Tracer != nil {
		poolCfg.ConnConfig.Tracer = opts.Tracer
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Info("Database connected",
		"host", poolCfg.ConnConfig.Host,
		"database", poolCfg.ConnConfig.Database,
		"sslmode", sslMode(databaseURL),
		"min_conns", poolCfg.MinConns,
		"max_conns", poolCfg.MaxConns,
	)
	return pool, nil
}

func sslMode(databaseURL string) string {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "unknown"
	}
	if mode := strings.ToLower(u.Query().Get("sslmode")); mode != "" {
		return mode
	}
	return "prefer (default)"
}

// Migrate applies the embedded schema and returns the resulting version. Instances starting
// together serialize on an advisory lock keyed by the version table name.
func Migrate(ctx context.Context, pool *pgxpool.Pool) (int32, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to acquire connection for migration: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock(hashtext($1))", schemaVersionTable); err != nil {
		return 0, fmt.Errorf("failed to acquire migration lock: %w", err)
	}
	defer func() {
		unlockCtx, cancel := context.WithTimeout(context.Background(), unlockTimeout)
		defer cancel()
		if _, err := conn.Exec(unlockCtx, "SELECT pg_advisory_unlock(hashtext($1))", schemaVersionTable); err != nil {
			slog.Error("Failed to release migration lock", "error", err)
		}
	}()

	return migrateSchema(ctx, conn.Conn())
}

func migrateSchema(ctx context.Context, conn *pgx.Conn) (int32, error) {
	schemas, err := fs.Sub(schemaFiles, "schemas")
	if err != nil {
		return 0, fmt.Errorf("failed to read migrations: %w", err)
	}

	migrator, err := migrate.NewMigrator(ctx, conn, schemaVersionTable)
	if err != nil {
		return 0, fmt.Errorf("failed to create migrator: %w", err)
	}
	if err := migrator.LoadMigrations(schemas); err != nil {
		return 0, fmt.Errorf("failed to load migrations: %w", err)
	}
	migrator.OnStart = func(sequence int32, name, direction, _ string) {
		slog.Info("Applying migration", "sequence", sequence, "name", name, "direction", direction)
	}

	// The version table only exists after the first run.
	from, err := migrator.GetCurrentVersion(ctx)
	if err != nil {
		slog.Debug("No schema version recorded yet", "error", err)
		from = 0
	}
	if err := migrator.Migrate(ctx); err != nil {
		return 0, fmt.Errorf("failed to migrate database: %w", err)
	}

	to := int32(len(migrator.Migrations))
	if from == to {
		slog.Debug("Schema up to date", "version", to)
	} else {
		slog.Info("Schema migrated", "from", from, "to", to)
	}
	return to, nil
}
