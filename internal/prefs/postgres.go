package prefs

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS scene_preferences (
	pref_key   TEXT PRIMARY KEY,
	pos_x      DOUBLE PRECISION NOT NULL,
	pos_y      DOUBLE PRECISION NOT NULL,
	width      DOUBLE PRECISION NOT NULL,
	height     DOUBLE PRECISION NOT NULL,
	expanded   BOOLEAN NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresStore keeps preferences in the scene_preferences table.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresStore connects a pool and pings it.
func NewPostgresStore(ctx context.Context, dsn string, logger *zap.Logger) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgresStore{pool: pool, logger: logger}, nil
}

// EnsureSchema creates the preferences table if it is missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create scene_preferences: %w", err)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, key string) (Preferences, error) {
	var p Preferences
	err := s.pool.QueryRow(ctx,
		`SELECT pos_x, pos_y, width, height, expanded FROM scene_preferences WHERE pref_key = $1`,
		key,
	).Scan(&p.X, &p.Y, &p.Width, &p.Height, &p.Expanded)
	if errors.Is(err, pgx.ErrNoRows) {
		return Preferences{}, ErrNotFound
	}
	if err != nil {
		return Preferences{}, fmt.Errorf("failed to load preferences %q: %w", key, err)
	}
	return p, nil
}

func (s *PostgresStore) Save(ctx context.Context, key string, p Preferences) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO scene_preferences (pref_key, pos_x, pos_y, width, height, expanded, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (pref_key) DO UPDATE SET
			pos_x = EXCLUDED.pos_x,
			pos_y = EXCLUDED.pos_y,
			width = EXCLUDED.width,
			height = EXCLUDED.height,
			expanded = EXCLUDED.expanded,
			updated_at = now()`,
		key, p.X, p.Y, p.Width, p.Height, p.Expanded,
	)
	if err != nil {
		return fmt.Errorf("failed to save preferences %q: %w", key, err)
	}
	s.logger.Debug("preferences saved", zap.String("key", key))
	return nil
}

// Close releases the pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}
