package credentials

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS provider_connections (
	user_id        TEXT NOT NULL,
	provider       TEXT NOT NULL,
	team_id        TEXT NOT NULL DEFAULT '',
	access_token   TEXT NOT NULL,
	refresh_token  TEXT NOT NULL DEFAULT '',
	expires_at     INTEGER NOT NULL DEFAULT 0,
	scope          TEXT NOT NULL DEFAULT '',
	team_name      TEXT NOT NULL DEFAULT '',
	provider_user  TEXT NOT NULL DEFAULT '',
	updated_at     INTEGER NOT NULL,
	PRIMARY KEY (user_id, provider, team_id)
);
`

// SQLiteStore is the default local credential store.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and creates if needed) the credential database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("create credential dir: %w", err)
	}
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open credential db: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply credential schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Upsert stores or replaces the connection for its (user, provider, team).
func (s *SQLiteStore) Upsert(ctx context.Context, conn *Connection) error {
	if conn == nil || conn.UserID == "" || conn.Provider == "" {
		return fmt.Errorf("invalid connection")
	}
	var expires int64
	if !conn.ExpiresAt.IsZero() {
		expires = conn.ExpiresAt.UnixMilli()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO provider_connections
			(user_id, provider, team_id, access_token, refresh_token, expires_at, scope, team_name, provider_user, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, provider, team_id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at,
			scope = excluded.scope,
			team_name = excluded.team_name,
			provider_user = excluded.provider_user,
			updated_at = excluded.updated_at`,
		conn.UserID, conn.Provider, conn.TeamID, conn.AccessToken, conn.RefreshToken,
		expires, conn.Scope, conn.TeamName, conn.ProviderUser, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert connection: %w", err)
	}
	return nil
}

// Lookup returns the most recently updated connection for the user and
// provider across teams, or (nil, nil) when none exists.
func (s *SQLiteStore) Lookup(ctx context.Context, userID, provider string) (*Connection, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, provider, team_id, access_token, refresh_token, expires_at, scope, team_name, provider_user, updated_at
		FROM provider_connections
		WHERE user_id = ? AND provider = ?
		ORDER BY updated_at DESC
		LIMIT 1`, userID, provider)

	var conn Connection
	var expires, updated int64
	err := row.Scan(&conn.UserID, &conn.Provider, &conn.TeamID, &conn.AccessToken,
		&conn.RefreshToken, &expires, &conn.Scope, &conn.TeamName, &conn.ProviderUser, &updated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup connection: %w", err)
	}
	if expires > 0 {
		conn.ExpiresAt = time.UnixMilli(expires)
	}
	conn.UpdatedAt = time.UnixMilli(updated)
	return &conn, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }
