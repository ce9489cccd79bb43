package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/cliniq/clawd/internal/runstore"
)

// handleStream serves the run event stream over SSE. The snapshot of
// already-emitted events is replayed first, then live envelopes until
// the run reaches a terminal state or the client disconnects.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")

	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	// Subscribe before taking the snapshot: an event emitted between the
	// two shows up in both, and replayed duplicates are cheaper than gaps.
	// The other order can miss a terminal envelope entirely.
	ch, unsub := s.runs.Subscribe(runID)
	defer unsub()

	status, events, ok := s.runs.Snapshot(runID)
	if !ok {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-transform")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	write := func(eventName string, data any) {
		payload, err := json.Marshal(data)
		if err != nil {
			return
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventName, payload)
		flusher.Flush()
	}

	write("hello", map[string]any{"runId": runID, "status": status})
	for i := range events {
		write("event", runstore.Envelope{Type: "event", RunID: runID, Event: &events[i]})
	}

	for {
		select {
		case env, open := <-ch:
			if !open {
				return
			}
			write(env.Type, env)
		case <-r.Context().Done():
			return
		}
	}
}
