package config

import (
	"hash/fnv"
	"strings"
)

// RolloutEvaluator determines which config version should be active for a
// given artifact label, based on the rollout strategy of the latest applied
// configuration. A label not yet included in a staged rollout falls back to
// the previous version, if any.
type RolloutEvaluator struct{ Store *VersionedStore }

func NewRolloutEvaluator(store *VersionedStore) *RolloutEvaluator {
	return &RolloutEvaluator{Store: store}
}

// ActiveVersionForLabel returns the version number that should be considered
// active for the given artifact label. Returns 0 if no versions exist.
func (r *RolloutEvaluator) ActiveVersionForLabel(label string) int64 {
	head, ok := r.Store.Head()
	if !ok {
		return 0
	}
	spec := head.Spec
	if spec == nil || spec.Rollout == nil || spec.Rollout.Mode == "full" {
		return head.Version
	}
	switch spec.Rollout.Mode {
	case "percentage":
		if spec.Rollout.Percentage >= 100 {
			return head.Version
		}
		if spec.Rollout.Percentage <= 0 {
			return previousOrHead(head)
		}
		h := fnv.New32a()
		_, _ = h.Write([]byte(strings.ToLower(label)))
		v := h.Sum32() % 100
		if int(v) < spec.Rollout.Percentage {
			return head.Version
		}
		return previousOrHead(head)
	case "cohort":
		lowered := strings.ToLower(label)
		for _, l := range spec.Rollout.CohortLabels {
			if strings.ToLower(l) == lowered {
				return head.Version
			}
		}
		return previousOrHead(head)
	default:
		return head.Version
	}
}

func previousOrHead(head *VersionedConfig) int64 {
	if head.Parent != 0 {
		return head.Parent
	}
	return head.Version
}
