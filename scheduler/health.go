package scheduler

import (
	"sync"
	"time"
)

// circuit breaker states, mirroring a classic closed/open/half-open machine.
const (
	circuitClosed = iota
	circuitOpen
	circuitHalfOpen
)

type artifactBreaker struct {
	state       int
	failures    int
	successes   int
	nextAttempt time.Time
}

// FailureTracker records load_heavy outcomes per artifact and opens a
// circuit for artifacts that fail repeatedly, so a policy can avoid
// re-admitting an artifact that is simply broken (a missing file, a
// corrupt header) on every single tick. It is not part of the Policy
// contract itself; wrap a Policy with NewFailureAwarePolicy to apply it.
type FailureTracker struct {
	mu             sync.Mutex
	breakers       map[int64]*artifactBreaker
	openAfter      int
	halfOpenAfter  time.Duration
	closeAfter     int
	clock          Clock
}

// NewFailureTracker builds a tracker that opens an artifact's circuit after
// openAfter consecutive load failures, retries it (half-open) after
// halfOpenAfter has elapsed, and fully closes the circuit after closeAfter
// consecutive successes.
func NewFailureTracker(openAfter int, halfOpenAfter time.Duration, closeAfter int, clock Clock) *FailureTracker {
	if openAfter <= 0 {
		openAfter = 5
	}
	if closeAfter <= 0 {
		closeAfter = 3
	}
	if clock == nil {
		clock = NewRealClock()
	}
	return &FailureTracker{breakers: make(map[int64]*artifactBreaker), openAfter: openAfter, halfOpenAfter: halfOpenAfter, closeAfter: closeAfter, clock: clock}
}

func (t *FailureTracker) breaker(id int64) *artifactBreaker {
	b, ok := t.breakers[id]
	if !ok {
		b = &artifactBreaker{}
		t.breakers[id] = b
	}
	return b
}

// RecordFailure marks a load_heavy failure for id, opening its circuit once
// openAfter consecutive failures have accumulated.
func (t *FailureTracker) RecordFailure(id int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	b := t.breaker(id)
	b.failures++
	b.successes = 0
	if b.failures >= t.openAfter && b.state != circuitOpen {
		b.state = circuitOpen
		b.nextAttempt = t.clock.Now().Add(t.halfOpenAfter)
	}
}

// RecordSuccess marks a successful load for id, eventually closing its
// circuit after closeAfter consecutive successes.
func (t *FailureTracker) RecordSuccess(id int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	b := t.breaker(id)
	b.failures = 0
	b.successes++
	if b.state == circuitHalfOpen && b.successes >= t.closeAfter {
		b.state = circuitClosed
	}
}

// Admissible reports whether id may currently be admitted: closed or
// half-open circuits are admissible, open ones are not until their
// half-open deadline has passed.
func (t *FailureTracker) Admissible(id int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	b, ok := t.breakers[id]
	if !ok {
		return true
	}
	switch b.state {
	case circuitOpen:
		if !t.clock.Now().Before(b.nextAttempt) {
			b.state = circuitHalfOpen
			return true
		}
		return false
	default:
		return true
	}
}

// FailureAwarePolicy wraps a Policy so that artifacts whose circuit is open
// are excluded from the waiting pool before the wrapped policy chooses among
// them.
type FailureAwarePolicy struct {
	inner   Policy
	tracker *FailureTracker
}

// NewFailureAwarePolicy adapts inner to skip artifacts the tracker currently
// considers unhealthy.
func NewFailureAwarePolicy(inner Policy, tracker *FailureTracker) *FailureAwarePolicy {
	return &FailureAwarePolicy{inner: inner, tracker: tracker}
}

func (p *FailureAwarePolicy) InitialSchedule(view View, maxConcurrency int) []int64 {
	return p.inner.InitialSchedule(view, maxConcurrency)
}

func (p *FailureAwarePolicy) Schedule(view View) Decision {
	filtered := view
	filtered.Waiting = nil
	for _, a := range view.Waiting {
		if p.tracker.Admissible(a.ID) {
			filtered.Waiting = append(filtered.Waiting, a)
		}
	}
	return p.inner.Schedule(filtered)
}
