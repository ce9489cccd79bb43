package credentials

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestUsable(t *testing.T) {
	now := time.Now()

	var nilConn *Connection
	if nilConn.Usable(now) {
		t.Fatal("nil connection must not be usable")
	}
	if (&Connection{}).Usable(now) {
		t.Fatal("empty access token must not be usable")
	}
	c := &Connection{AccessToken: "tok"}
	if !c.Usable(now) {
		t.Fatal("token without expiry should be usable")
	}
	c.ExpiresAt = now.Add(-time.Minute)
	if c.Usable(now) {
		t.Fatal("expired token must count as missing")
	}
	c.ExpiresAt = now.Add(30 * time.Second)
	if c.Usable(now) {
		t.Fatal("token inside the grace margin must count as missing")
	}
	c.ExpiresAt = now.Add(10 * time.Minute)
	if !c.Usable(now) {
		t.Fatal("future token should be usable")
	}
}

func TestSQLiteUpsertAndLookup(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "creds.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	got, err := store.Lookup(ctx, "u1", ProviderGoogle)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got != nil {
		t.Fatal("expected nil for missing connection")
	}

	err = store.Upsert(ctx, &Connection{
		UserID:      "u1",
		Provider:    ProviderGoogle,
		AccessToken: "tok-1",
		Scope:       "gmail.readonly",
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err = store.Lookup(ctx, "u1", ProviderGoogle)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got == nil || got.AccessToken != "tok-1" {
		t.Fatalf("unexpected connection: %+v", got)
	}

	// Repeated OAuth completion overwrites the same tuple.
	err = store.Upsert(ctx, &Connection{
		UserID:      "u1",
		Provider:    ProviderGoogle,
		AccessToken: "tok-2",
	})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	got, _ = store.Lookup(ctx, "u1", ProviderGoogle)
	if got.AccessToken != "tok-2" {
		t.Fatalf("upsert did not overwrite: %+v", got)
	}
}

func TestSQLiteTeamsAreSeparate(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "creds.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	for _, team := range []string{"T1", "T2"} {
		err := store.Upsert(ctx, &Connection{
			UserID:      "u1",
			Provider:    ProviderSlack,
			TeamID:      team,
			AccessToken: "tok-" + team,
		})
		if err != nil {
			t.Fatalf("upsert %s: %v", team, err)
		}
	}

	got, err := store.Lookup(ctx, "u1", ProviderSlack)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got == nil || got.AccessToken == "" {
		t.Fatal("expected a slack connection")
	}
}

func TestSQLiteExpiryRoundTrip(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "creds.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	exp := time.Now().Add(time.Hour).Truncate(time.Millisecond)
	err = store.Upsert(ctx, &Connection{
		UserID: "u1", Provider: ProviderGoogle, AccessToken: "t", ExpiresAt: exp,
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, _ := store.Lookup(ctx, "u1", ProviderGoogle)
	if !got.ExpiresAt.Equal(exp) {
		t.Fatalf("expiry mangled: want %v got %v", exp, got.ExpiresAt)
	}
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if got, _ := store.Lookup(ctx, "u", ProviderSlack); got != nil {
		t.Fatal("expected nil before upsert")
	}
	_ = store.Upsert(ctx, &Connection{UserID: "u", Provider: ProviderSlack, AccessToken: "x"})
	got, _ := store.Lookup(ctx, "u", ProviderSlack)
	if got == nil || got.AccessToken != "x" {
		t.Fatalf("unexpected: %+v", got)
	}
}
