// Package approval provides one-shot approval tokens gating side-effecting
// actions. An approval is keyed by (run, action, entity id) and is consumed
// atomically: the second consume for the same key fails.
package approval

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Payload is the client-submitted approval body plus a server timestamp.
type Payload map[string]any

// Ledger is the process-wide approval store.
type Ledger struct {
	mu      sync.Mutex
	pending map[string]Payload
	now     func() time.Time
}

// NewLedger creates an empty approval ledger.
func NewLedger() *Ledger {
	return &Ledger{
		pending: make(map[string]Payload),
		now:     time.Now,
	}
}

func key(runID, action, entityID string) string {
	return fmt.Sprintf("%s:%s:%s", runID, action, entityID)
}

// pickEntityID derives the entity id from the payload's own identifier
// fields: first of id, draftId, messageId; empty string when absent.
func pickEntityID(payload Payload) string {
	for _, k := range []string{"id", "draftId", "messageId"} {
		if v, ok := payload[k]; ok {
			if s := strings.TrimSpace(fmt.Sprintf("%v", v)); s != "" && s != "<nil>" {
				return s
			}
		}
	}
	return ""
}

// Set stores an approval payload, overwriting any prior pending approval
// under the same key. It returns the derived entity id and the full key.
func (l *Ledger) Set(runID, action string, payload Payload) (entityID, fullKey string) {
	entityID = pickEntityID(payload)
	stored := Payload{"ts": l.now().UnixMilli()}
	for k, v := range payload {
		stored[k] = v
	}
	stored["id"] = entityID

	fullKey = key(runID, action, entityID)
	l.mu.Lock()
	l.pending[fullKey] = stored
	l.mu.Unlock()
	return entityID, fullKey
}

// Get is a non-destructive read. Returns nil when absent.
func (l *Ledger) Get(runID, action, entityID string) Payload {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pending[key(runID, action, entityID)]
}

// Consume returns the payload and deletes it in one step. A nil result
// means "not approved or already used"; callers must reject the action.
func (l *Ledger) Consume(runID, action, entityID string) Payload {
	k := key(runID, action, entityID)
	l.mu.Lock()
	defer l.mu.Unlock()
	v, ok := l.pending[k]
	if !ok {
		return nil
	}
	delete(l.pending, k)
	return v
}

// KeysForRun lists pending approval keys for one run. Operator debugging
// only: it leaks internal key structure and must stay off user-facing
// surfaces.
func (l *Ledger) KeysForRun(runID string) []string {
	prefix := runID + ":"
	l.mu.Lock()
	defer l.mu.Unlock()
	var keys []string
	for k := range l.pending {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys
}

// ExpectedKey exposes key construction for debug output.
func ExpectedKey(runID, action, entityID string) string {
	return key(runID, action, entityID)
}
