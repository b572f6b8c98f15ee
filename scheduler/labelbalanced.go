package scheduler

import (
	"math/rand"
	"sort"
	"time"

	"github.com/spindle-dl/spindle/model"
)

// LabelBalancedPolicy distributes the working set evenly across artifact
// labels: initial placement gives every label an equal budget (remainder
// slots go to the labels earliest in natural order), and every reschedule
// tick evicts uniformly at random while admitting from whichever label is
// currently the working set's minority.
type LabelBalancedPolicy struct {
	rng      *rand.Rand
	label    model.LabelFunc
	labelOf  map[int64]string
}

// NewLabelBalancedPolicy precomputes each artifact's label so later
// Schedule/InitialSchedule calls need not invoke label for ids outside the
// view they are given.
func NewLabelBalancedPolicy(dataset model.Dataset, label model.LabelFunc, rng *rand.Rand) *LabelBalancedPolicy {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	labelOf := make(map[int64]string, len(dataset.Artifacts))
	for _, a := range dataset.Artifacts {
		labelOf[a.ID] = label(a)
	}
	return &LabelBalancedPolicy{rng: rng, label: label, labelOf: labelOf}
}

func (p *LabelBalancedPolicy) bucketsFor(artifacts []model.Artifact) (order []string, byLabel map[string][]model.Artifact) {
	byLabel = make(map[string][]model.Artifact)
	for _, a := range artifacts {
		l := p.labelOf[a.ID]
		if _, ok := byLabel[l]; !ok {
			order = append(order, l)
		}
		byLabel[l] = append(byLabel[l], a)
	}
	sort.Strings(order)
	return order, byLabel
}

func (p *LabelBalancedPolicy) InitialSchedule(view View, maxConcurrency int) []int64 {
	all := append(append([]model.Artifact{}, view.Loaded...), view.Waiting...)
	order, byLabel := p.bucketsFor(all)
	if len(order) == 0 {
		return nil
	}
	base := maxConcurrency / len(order)
	extra := maxConcurrency % len(order)

	var ids []int64
	for i, l := range order {
		budget := base
		if i < extra {
			budget++
		}
		bucket := byLabel[l]
		if len(bucket) == 0 || budget == 0 {
			continue
		}
		bucketIDs := make([]int64, len(bucket))
		for j, a := range bucket {
			bucketIDs[j] = a.ID
		}
		ids = append(ids, uniformSampleWithReplacement(p.rng, bucketIDs, budget)...)
	}
	return ids
}

// MinorityLabel returns the label with the smallest count among loaded,
// breaking ties by natural (sorted) label order.
func MinorityLabel(loaded []model.Artifact, labelOf map[int64]string) string {
	order, byLabel := (&LabelBalancedPolicy{labelOf: labelOf}).bucketsFor(loaded)
	best := ""
	bestCount := -1
	for _, l := range order {
		c := len(byLabel[l])
		if bestCount == -1 || c < bestCount {
			bestCount = c
			best = l
		}
	}
	return best
}

func (p *LabelBalancedPolicy) Schedule(view View) Decision {
	if len(view.Loaded) == 0 || len(view.Waiting) == 0 {
		return Decision{Marker: model.MarkerNone}
	}
	evictID := uniformChoice(p.rng, view.Loaded).ID

	minority := MinorityLabel(view.Loaded, p.labelOf)
	var candidates []model.Artifact
	for _, a := range view.Waiting {
		if p.labelOf[a.ID] == minority {
			candidates = append(candidates, a)
		}
	}
	if len(candidates) == 0 {
		// No waiting artifact carries the minority label; fall back to the
		// full waiting set rather than stalling admission.
		candidates = view.Waiting
	}

	weights := make([]float64, len(candidates))
	for i, a := range candidates {
		weights[i] = schedCountWeight(view.SchedCountOf(a.ID))
	}
	admitID := candidates[weightedChoice(p.rng, weights)].ID

	return Decision{EvictID: evictID, AdmitID: admitID, HasPair: true}
}
