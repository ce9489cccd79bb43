package cli

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/cliniq/clawd/internal/config"
)

func TestSplitBrokers(t *testing.T) {
	if got := splitBrokers(""); got != nil {
		t.Fatalf("expected nil for empty input, got %v", got)
	}
	got := splitBrokers("kafka-1:9092, kafka-2:9092,,")
	if len(got) != 2 || got[0] != "kafka-1:9092" || got[1] != "kafka-2:9092" {
		t.Fatalf("unexpected brokers: %v", got)
	}
}

func TestOpenCredentialStoreSQLite(t *testing.T) {
	cfg := &config.Config{}
	cfg.Store.SQLitePath = filepath.Join(t.TempDir(), "nested", "credentials.db")

	store, closeStore, err := openCredentialStore(context.Background(), cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer closeStore()
	if store == nil {
		t.Fatal("expected a store")
	}
}
