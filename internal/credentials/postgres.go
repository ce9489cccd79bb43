package credentials

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS provider_connections (
	user_id        TEXT NOT NULL,
	provider       TEXT NOT NULL,
	team_id        TEXT NOT NULL DEFAULT '',
	access_token   TEXT NOT NULL,
	refresh_token  TEXT NOT NULL DEFAULT '',
	expires_at     TIMESTAMPTZ,
	scope          TEXT NOT NULL DEFAULT '',
	team_name      TEXT NOT NULL DEFAULT '',
	provider_user  TEXT NOT NULL DEFAULT '',
	updated_at     TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (user_id, provider, team_id)
);
`

// PostgresStore backs the credential store with a shared database, for
// deployments where the sqlite file is not an option.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to the given DSN and ensures the schema.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect credential db: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply credential schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Upsert stores or replaces the connection for its (user, provider, team).
func (s *PostgresStore) Upsert(ctx context.Context, conn *Connection) error {
	if conn == nil || conn.UserID == "" || conn.Provider == "" {
		return fmt.Errorf("invalid connection")
	}
	var expires *time.Time
	if !conn.ExpiresAt.IsZero() {
		expires = &conn.ExpiresAt
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO provider_connections
			(user_id, provider, team_id, access_token, refresh_token, expires_at, scope, team_name, provider_user, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (user_id, provider, team_id) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			expires_at = EXCLUDED.expires_at,
			scope = EXCLUDED.scope,
			team_name = EXCLUDED.team_name,
			provider_user = EXCLUDED.provider_user,
			updated_at = EXCLUDED.updated_at`,
		conn.UserID, conn.Provider, conn.TeamID, conn.AccessToken, conn.RefreshToken,
		expires, conn.Scope, conn.TeamName, conn.ProviderUser, time.Now())
	if err != nil {
		return fmt.Errorf("upsert connection: %w", err)
	}
	return nil
}

// Lookup returns the most recently updated connection for the user and
// provider across teams, or (nil, nil) when none exists.
func (s *PostgresStore) Lookup(ctx context.Context, userID, provider string) (*Connection, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT user_id, provider, team_id, access_token, refresh_token, expires_at, scope, team_name, provider_user, updated_at
		FROM provider_connections
		WHERE user_id = $1 AND provider = $2
		ORDER BY updated_at DESC
		LIMIT 1`, userID, provider)

	var conn Connection
	var expires *time.Time
	err := row.Scan(&conn.UserID, &conn.Provider, &conn.TeamID, &conn.AccessToken,
		&conn.RefreshToken, &expires, &conn.Scope, &conn.TeamName, &conn.ProviderUser, &conn.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup connection: %w", err)
	}
	if expires != nil {
		conn.ExpiresAt = *expires
	}
	return &conn, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
