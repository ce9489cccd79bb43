package events

import (
	"testing"

	"github.com/cliniq/clawd/internal/runstore"
)

func TestNewKafkaMirrorDisabledWithoutBrokers(t *testing.T) {
	if m := NewKafkaMirror(nil, "clawd.run-events"); m != nil {
		t.Fatal("expected nil mirror when no brokers configured")
	}
}

func TestNilMirrorIsSafe(t *testing.T) {
	var m *KafkaMirror
	m.Publish("run_x", runstore.Event{Message: "hello"})
	if err := m.Close(); err != nil {
		t.Fatalf("close on nil mirror: %v", err)
	}
}
