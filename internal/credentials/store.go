// Package credentials manages provider OAuth credential records keyed by
// (user, provider[, team]). Records persist outside the process; runs and
// approvals do not.
package credentials

import (
	"context"
	"time"
)

// Provider identifiers.
const (
	ProviderGoogle = "google"
	ProviderSlack  = "slack"
)

// Connection is one stored OAuth credential bundle.
type Connection struct {
	UserID       string    `json:"userId"`
	Provider     string    `json:"provider"`
	TeamID       string    `json:"teamId,omitempty"`
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken,omitempty"`
	ExpiresAt    time.Time `json:"expiresAt,omitempty"`
	Scope        string    `json:"scope,omitempty"`
	TeamName     string    `json:"teamName,omitempty"`
	ProviderUser string    `json:"providerUser,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Usable reports whether the connection can back a provider call.
// Expired tokens count as missing; there is no refresh-on-expiry, the
// user re-authorizes instead. A 60-second grace margin is applied.
func (c *Connection) Usable(now time.Time) bool {
	if c == nil || c.AccessToken == "" {
		return false
	}
	if c.ExpiresAt.IsZero() {
		return true
	}
	return now.Before(c.ExpiresAt.Add(-60 * time.Second))
}

// Store persists provider connections. Upsert overwrites the record for
// the same (user, provider, team) tuple. Lookup returns (nil, nil) when
// no record exists.
type Store interface {
	Upsert(ctx context.Context, conn *Connection) error
	Lookup(ctx context.Context, userID, provider string) (*Connection, error)
	Close() error
}
