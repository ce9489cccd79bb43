// Package runstore holds in-process run state: status, event log, and
// live subscribers. Runs are ephemeral; nothing here survives a restart.
package runstore

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the run lifecycle state.
type Status string

const (
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// Level is the severity of a run event.
type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Event is one timestamped trace entry in a run.
type Event struct {
	TS      int64          `json:"ts"`
	Level   Level          `json:"level"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// Envelope is what subscribers receive: a live event, or a terminal
// done/failed notification.
type Envelope struct {
	Type   string `json:"type"` // "event", "done", "failed"
	RunID  string `json:"runId"`
	Event  *Event `json:"event,omitempty"`
	Output any    `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Run is one end-to-end execution of a user prompt.
type Run struct {
	ID          string  `json:"id"`
	Prompt      string  `json:"prompt"`
	Status      Status  `json:"status"`
	CreatedAt   int64   `json:"createdAt"`
	Events      []Event `json:"events"`
	FinalOutput any     `json:"finalOutput,omitempty"`
	Error       string  `json:"error,omitempty"`

	subs   map[int]chan Envelope
	nextID int
}

// Mirror receives a copy of every event for out-of-process export.
// Publish must not block the caller for long; implementations buffer.
type Mirror interface {
	Publish(runID string, evt Event)
}

// Store is the process-wide run registry.
type Store struct {
	mu     sync.Mutex
	runs   map[string]*Run
	mirror Mirror
	now    func() time.Time
}

// NewStore creates an empty run registry. Mirror may be nil.
func NewStore(mirror Mirror) *Store {
	return &Store{
		runs:   make(map[string]*Run),
		mirror: mirror,
		now:    time.Now,
	}
}

// Create allocates a new running run for the given prompt.
func (s *Store) Create(prompt string) *Run {
	run := &Run{
		ID:        "run_" + uuid.NewString(),
		Prompt:    prompt,
		Status:    StatusRunning,
		CreatedAt: s.now().UnixMilli(),
		subs:      make(map[int]chan Envelope),
	}
	s.mu.Lock()
	s.runs[run.ID] = run
	s.mu.Unlock()
	return run
}

// Get returns a copy of the run, or nil if unknown. The copy is
// detached from the live record: the executor goroutine keeps writing
// status, events and output under the store lock, so the raw pointer
// never leaves this package after creation.
func (s *Store) Get(runID string) *Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return nil
	}
	cp := &Run{
		ID:          run.ID,
		Prompt:      run.Prompt,
		Status:      run.Status,
		CreatedAt:   run.CreatedAt,
		FinalOutput: run.FinalOutput,
		Error:       run.Error,
	}
	cp.Events = make([]Event, len(run.Events))
	copy(cp.Events, run.Events)
	return cp
}

// Snapshot returns a copy of the run's event log, in emission order.
func (s *Store) Snapshot(runID string) (Status, []Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return "", nil, false
	}
	events := make([]Event, len(run.Events))
	copy(events, run.Events)
	return run.Status, events, true
}

// Emit appends an event to the run and fans it out to live subscribers.
// Unknown runs are a no-op. Subscriber channels are buffered and sends
// are non-blocking: a stuck subscriber drops events, never the emitter.
func (s *Store) Emit(runID string, level Level, message string, data map[string]any) {
	s.mu.Lock()
	run, ok := s.runs[runID]
	if !ok {
		s.mu.Unlock()
		return
	}
	evt := Event{TS: s.now().UnixMilli(), Level: level, Message: message, Data: data}
	run.Events = append(run.Events, evt)
	env := Envelope{Type: "event", RunID: runID, Event: &evt}
	s.fanOutLocked(run, env)
	s.mu.Unlock()

	if s.mirror != nil {
		s.mirror.Publish(runID, evt)
	}
}

// Finish marks the run done with its final output. Calling it on a run
// that already reached a terminal state is an idempotent no-op.
func (s *Store) Finish(runID string, output any) {
	s.terminal(runID, StatusDone, output, "")
}

// Fail marks the run failed. Idempotent like Finish.
func (s *Store) Fail(runID string, errMsg string) {
	s.terminal(runID, StatusFailed, nil, errMsg)
}

func (s *Store) terminal(runID string, status Status, output any, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok || run.Status != StatusRunning {
		return
	}
	run.Status = status
	env := Envelope{RunID: runID}
	if status == StatusDone {
		run.FinalOutput = output
		env.Type = "done"
		env.Output = output
	} else {
		run.Error = errMsg
		env.Type = "failed"
		env.Error = errMsg
	}
	s.fanOutLocked(run, env)
	for id, ch := range run.subs {
		close(ch)
		delete(run.subs, id)
	}
}

// Subscribe registers a listener for future envelopes of a run. The
// returned channel is closed when the run reaches a terminal state or
// the unsubscribe function is called. Subscribing to an unknown or
// already-terminal run returns a closed channel and a no-op unsubscribe.
func (s *Store) Subscribe(runID string) (<-chan Envelope, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok || run.Status != StatusRunning {
		ch := make(chan Envelope)
		close(ch)
		return ch, func() {}
	}
	id := run.nextID
	run.nextID++
	ch := make(chan Envelope, 64)
	run.subs[id] = ch
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := run.subs[id]; ok {
			close(c)
			delete(run.subs, id)
		}
	}
}

func (s *Store) fanOutLocked(run *Run, env Envelope) {
	for _, ch := range run.subs {
		select {
		case ch <- env:
		default:
		}
	}
}
