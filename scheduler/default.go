package scheduler

import (
	"math/rand"
	"time"

	"github.com/spindle-dl/spindle/model"
)

// DefaultPolicy implements uniform round-robin scheduling with cold-start
// bias: initial placement samples uniformly with replacement, and every
// reschedule tick evicts a uniformly random loaded artifact while admitting
// a waiting one weighted toward artifacts that have never run.
type DefaultPolicy struct {
	rng *rand.Rand
}

// NewDefaultPolicy constructs a DefaultPolicy. A nil rng seeds its own
// source from wall time.
func NewDefaultPolicy(rng *rand.Rand) *DefaultPolicy {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &DefaultPolicy{rng: rng}
}

func (p *DefaultPolicy) InitialSchedule(view View, maxConcurrency int) []int64 {
	all := append(append([]model.Artifact{}, view.Loaded...), view.Waiting...)
	if len(all) == 0 {
		return nil
	}
	ids := make([]int64, len(all))
	for i, a := range all {
		ids[i] = a.ID
	}
	return uniformSampleWithReplacement(p.rng, ids, maxConcurrency)
}

func (p *DefaultPolicy) Schedule(view View) Decision {
	if len(view.Loaded) == 0 || len(view.Waiting) == 0 {
		return Decision{Marker: model.MarkerNone}
	}
	evictID := uniformChoice(p.rng, view.Loaded).ID

	weights := make([]float64, len(view.Waiting))
	for i, a := range view.Waiting {
		weights[i] = schedCountWeight(view.SchedCountOf(a.ID))
	}
	admitID := view.Waiting[weightedChoice(p.rng, weights)].ID

	return Decision{EvictID: evictID, AdmitID: admitID, HasPair: true}
}
