// Package events mirrors run events to Kafka so other systems can
// follow assistant activity without holding an SSE connection open.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/cliniq/clawd/internal/runstore"
)

type record struct {
	runID string
	event runstore.Event
}

// KafkaMirror publishes run events to one topic, keyed by run id.
// Publish never blocks the run: records are queued on a buffered
// channel and dropped with a log line when the queue is full.
type KafkaMirror struct {
	writer *kafka.Writer
	queue  chan record
	done   chan struct{}
}

// NewKafkaMirror starts the mirror. Returns nil when brokers is empty,
// and a nil *KafkaMirror is a valid no-op mirror.
func NewKafkaMirror(brokers []string, topic string) *KafkaMirror {
	if len(brokers) == 0 {
		return nil
	}
	m := &KafkaMirror{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 250 * time.Millisecond,
			RequiredAcks: kafka.RequireOne,
		},
		queue: make(chan record, 256),
		done:  make(chan struct{}),
	}
	go m.pump()
	return m
}

// Publish implements runstore.Mirror.
func (m *KafkaMirror) Publish(runID string, evt runstore.Event) {
	if m == nil {
		return
	}
	select {
	case m.queue <- record{runID: runID, event: evt}:
	default:
		slog.Warn("kafka mirror queue full, dropping event", "runId", runID)
	}
}

func (m *KafkaMirror) pump() {
	for r := range m.queue {
		payload, err := json.Marshal(map[string]any{
			"runId": r.runID,
			"event": r.event,
		})
		if err != nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = m.writer.WriteMessages(ctx, kafka.Message{
			Key:   []byte(r.runID),
			Value: payload,
		})
		cancel()
		if err != nil {
			slog.Warn("kafka mirror write failed", "runId", r.runID, "error", err)
		}
	}
	close(m.done)
}

// Close drains the queue and shuts the writer down.
func (m *KafkaMirror) Close() error {
	if m == nil {
		return nil
	}
	close(m.queue)
	<-m.done
	return m.writer.Close()
}
