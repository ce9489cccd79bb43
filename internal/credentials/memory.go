package credentials

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used in tests and for ad-hoc runs
// without persistence.
type MemoryStore struct {
	mu    sync.Mutex
	conns map[string]*Connection
}

// NewMemoryStore creates an empty in-memory credential store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{conns: make(map[string]*Connection)}
}

func memKey(userID, provider, teamID string) string {
	return userID + "\x00" + provider + "\x00" + teamID
}

// Upsert stores or replaces the connection for its (user, provider, team).
func (s *MemoryStore) Upsert(_ context.Context, conn *Connection) error {
	cp := *conn
	cp.UpdatedAt = time.Now()
	s.mu.Lock()
	s.conns[memKey(conn.UserID, conn.Provider, conn.TeamID)] = &cp
	s.mu.Unlock()
	return nil
}

// Lookup returns the most recently updated connection for the user and
// provider, or (nil, nil) when none exists.
func (s *MemoryStore) Lookup(_ context.Context, userID, provider string) (*Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *Connection
	for _, c := range s.conns {
		if c.UserID == userID && c.Provider == provider {
			if best == nil || c.UpdatedAt.After(best.UpdatedAt) {
				best = c
			}
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
