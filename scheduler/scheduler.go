// Package scheduler implements the pluggable policies that decide which
// artifacts the engine keeps in its working set. Policies are pure
// functions over a read-only View of engine state; they must not retain
// references to it across calls.
package scheduler

import (
	"time"

	"github.com/spindle-dl/spindle/model"
)

// Clock abstracts wall time so the FailureTracker's cooldown can be tested
// without sleeping.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// NewRealClock returns the wall-clock Clock used outside tests.
func NewRealClock() Clock { return realClock{} }

// View exposes the engine state a policy needs: which artifacts are
// currently loaded (in the working set), which are waiting, and how many
// times each has ever been admitted.
type View struct {
	Loaded      []model.Artifact
	Waiting     []model.Artifact
	SchedCount  map[int64]int
	MaxConcurrency int
}

// SchedCountOf is a convenience accessor defaulting to 0 for unseen ids.
func (v View) SchedCountOf(id int64) int { return v.SchedCount[id] }

// Decision is the result of a reschedule step.
type Decision struct {
	Marker   model.Marker // MarkerNone (skip tick) or MarkerHalt
	EvictID  int64
	AdmitID  int64
	HasPair  bool
}

// Policy is implemented by a scheduling strategy. InitialSchedule seeds the
// working set; Schedule is consulted on every reschedule tick.
type Policy interface {
	// InitialSchedule returns exactly maxConcurrency artifact ids (repeats
	// allowed) to populate the working set at startup.
	InitialSchedule(view View, maxConcurrency int) []int64
	// Schedule returns a Decision: a Halt marker to terminate the engine, a
	// (evict, admit) pair, or the None marker to skip this tick.
	Schedule(view View) Decision
}
