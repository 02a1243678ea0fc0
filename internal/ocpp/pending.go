package ocpp

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/charging-platform/central-system/internal/metrics"
)

// CallOutcome is the terminal state of one outbound CALL.
type CallOutcome struct {
	Payload json.RawMessage
	Err     error
}

type waiter struct {
	ch    chan CallOutcome
	timer *time.Timer
}

// PendingCalls correlates outbound CALL messageIds with their responses.
// Each waiter resolves or rejects exactly once; the deadline timer rejects
// with ErrTimeout.
type PendingCalls struct {
	mu      sync.Mutex
	waiters map[string]*waiter
	closed  bool
}

// NewPendingCalls returns an empty registry.
func NewPendingCalls() *PendingCalls {
	return &PendingCalls{waiters: make(map[string]*waiter)}
}

// Register arms a waiter for messageID with a single-shot deadline. The
// returned channel receives exactly one CallOutcome.
func (p *PendingCalls) Register(messageID string, timeout time.Duration) (<-chan CallOutcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrConnectionClosed
	}
	if _, exists := p.waiters[messageID]; exists {
		return nil, ErrDuplicateMessageID
	}

	w := &waiter{ch: make(chan CallOutcome, 1)}
	w.timer = time.AfterFunc(timeout, func() {
		if p.take(messageID) != nil {
			metrics.CallTimeouts.Inc()
			w.ch <- CallOutcome{Err: ErrTimeout}
		}
	})
	p.waiters[messageID] = w
	return w.ch, nil
}

// Resolve delivers a CALLRESULT payload. Returns false when no waiter
// matched (late or unknown response).
func (p *PendingCalls) Resolve(messageID string, payload json.RawMessage) bool {
	w := p.take(messageID)
	if w == nil {
		return false
	}
	w.timer.Stop()
	w.ch <- CallOutcome{Payload: payload}
	return true
}

// Reject fails a waiter with err. Returns false when no waiter matched.
func (p *PendingCalls) Reject(messageID string, err error) bool {
	w := p.take(messageID)
	if w == nil {
		return false
	}
	w.timer.Stop()
	w.ch <- CallOutcome{Err: err}
	return true
}

// FailAll rejects every pending waiter and refuses new registrations.
// Called on session teardown.
func (p *PendingCalls) FailAll(err error) {
	p.mu.Lock()
	waiters := p.waiters
	p.waiters = make(map[string]*waiter)
	p.closed = true
	p.mu.Unlock()

	for _, w := range waiters {
		w.timer.Stop()
		w.ch <- CallOutcome{Err: err}
	}
}

// Count reports the number of in-flight calls.
func (p *PendingCalls) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.waiters)
}

// take removes and returns the waiter, or nil if absent.
func (p *PendingCalls) take(messageID string) *waiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	w, ok := p.waiters[messageID]
	if !ok {
		return nil
	}
	delete(p.waiters, messageID)
	return w
}
