package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func TestFailureTrackerOpensAfterThreshold(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	tr := NewFailureTracker(3, time.Second, 2, clock)
	require.True(t, tr.Admissible(1), "artifact with no history should be admissible")
	tr.RecordFailure(1)
	tr.RecordFailure(1)
	assert.True(t, tr.Admissible(1), "still admissible before threshold")
	tr.RecordFailure(1)
	assert.False(t, tr.Admissible(1), "circuit should open after 3 consecutive failures")
}

func TestFailureTrackerHalfOpensAfterDelay(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	tr := NewFailureTracker(1, time.Minute, 1, clock)
	tr.RecordFailure(1)
	require.False(t, tr.Admissible(1), "circuit should open immediately after crossing threshold")
	clock.now = clock.now.Add(2 * time.Minute)
	assert.True(t, tr.Admissible(1), "circuit should half-open once the retry deadline passed")
}

func TestFailureTrackerRecoversAfterSuccesses(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	tr := NewFailureTracker(1, time.Minute, 2, clock)
	tr.RecordFailure(1)
	clock.now = clock.now.Add(2 * time.Minute)
	tr.Admissible(1) // transitions to half-open
	tr.RecordSuccess(1)
	tr.RecordSuccess(1)
	assert.True(t, tr.Admissible(1), "circuit should close after enough successes")
}

func TestFailureAwarePolicyExcludesOpenCircuits(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	tr := NewFailureTracker(1, time.Hour, 1, clock)
	tr.RecordFailure(2) // open circuit for artifact 2

	inner := NewDefaultPolicy(nil)
	p := NewFailureAwarePolicy(inner, tr)
	view := View{
		Loaded:  artifacts(1),
		Waiting: artifacts(2, 3),
	}
	for i := 0; i < 20; i++ {
		d := p.Schedule(view)
		assert.Falsef(t, d.HasPair && d.AdmitID == 2, "artifact with open circuit should never be admitted")
	}
}
