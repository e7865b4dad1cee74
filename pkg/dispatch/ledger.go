package dispatch

import (
	"context"
	"sync"
	"time"
)

// Ledger is the idempotency record behind dispatch. BeginCall is the
// atomic gate: it returns true exactly once per threat, no matter how
// many times the same threat is redelivered.
type Ledger interface {
	BeginCall(ctx context.Context, threatID string) (bool, error)
	RecordCallOutcome(ctx context.Context, threatID, status, outcome string) error
	CallRecord(ctx context.Context, threatID string) (status, outcome string, attempted bool, err error)

	Notified(ctx context.Context, threatID string) (map[string]struct{}, error)
	RecordNotification(ctx context.Context, threatID, recipient string) error
}

type callEntry struct {
	status  string
	outcome string
	at      time.Time
}

// MemoryLedger is the in-process Ledger used when no database is
// configured. State does not survive a restart.
type MemoryLedger struct {
	mu       sync.Mutex
	calls    map[string]*callEntry
	notified map[string]map[string]struct{}
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		calls:    make(map[string]*callEntry),
		notified: make(map[string]map[string]struct{}),
	}
}

func (l *MemoryLedger) BeginCall(_ context.Context, threatID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.calls[threatID]; ok {
		return false, nil
	}
	l.calls[threatID] = &callEntry{status: "pending", at: time.Now().UTC()}
	return true, nil
}

func (l *MemoryLedger) RecordCallOutcome(_ context.Context, threatID, status, outcome string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.calls[threatID]
	if !ok {
		entry = &callEntry{at: time.Now().UTC()}
		l.calls[threatID] = entry
	}
	entry.status = status
	entry.outcome = outcome
	return nil
}

func (l *MemoryLedger) CallRecord(_ context.Context, threatID string) (string, string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.calls[threatID]
	if !ok {
		return "", "", false, nil
	}
	return entry.status, entry.outcome, true, nil
}

func (l *MemoryLedger) Notified(_ context.Context, threatID string) (map[string]struct{}, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[string]struct{}, len(l.notified[threatID]))
	for id := range l.notified[threatID] {
		out[id] = struct{}{}
	}
	return out, nil
}

func (l *MemoryLedger) RecordNotification(_ context.Context, threatID, recipient string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.notified[threatID] == nil {
		l.notified[threatID] = make(map[string]struct{})
	}
	l.notified[threatID][recipient] = struct{}{}
	return nil
}
