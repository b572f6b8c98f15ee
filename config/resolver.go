package config

import "time"

// Resolver performs layered configuration resolution.
// Merge semantics:
//   * Precedence: later layers in LayerPrecedenceOrder() override earlier ones.
//   * Section pointers: nil means "no contribution"; non-nil overlays field-wise.
//   * Scalars: a higher layer's value overwrites the lower one only when it is
//     non-zero, except RescheduleRules.Interval/GrabOnEvict,
//     Collection.Compression and the RetryPolicy fields, which are copied as
//     given whenever their section is present.
//   * Slices: if higher layer slice is non-empty it replaces lower slice entirely.
//   * Maps: merged by key; higher layer entries overwrite conflicting keys.
// The resolver never mutates the input specs.
type Resolver struct{}

// NewResolver constructs a new Resolver.
func NewResolver() *Resolver { return &Resolver{} }

// Resolve merges the provided specs (indexed by layer constant) into a final EngineConfigSpec.
func (r *Resolver) Resolve(layerSpecs map[int]*EngineConfigSpec) *EngineConfigSpec {
	final := &EngineConfigSpec{}
	for _, layer := range LayerPrecedenceOrder() {
		spec := layerSpecs[layer]
		if spec == nil {
			continue
		}
		mergeSpecs(final, spec)
	}
	return final
}

func mergeSpecs(dst, src *EngineConfigSpec) {
	if src.Global != nil {
		if dst.Global == nil {
			dst.Global = &GlobalConfigSection{}
		}
		mergeGlobal(dst.Global, src.Global)
	}
	if src.Scheduling != nil {
		if dst.Scheduling == nil {
			dst.Scheduling = &SchedulingConfigSection{}
		}
		mergeScheduling(dst.Scheduling, src.Scheduling)
	}
	if src.Sampling != nil {
		if dst.Sampling == nil {
			dst.Sampling = &SamplingConfigSection{}
		}
		mergeSampling(dst.Sampling, src.Sampling)
	}
	if src.Collection != nil {
		if dst.Collection == nil {
			dst.Collection = &CollectionConfigSection{}
		}
		mergeCollection(dst.Collection, src.Collection)
	}
	if src.Policies != nil {
		if dst.Policies == nil {
			dst.Policies = &PoliciesConfigSection{}
		}
		mergePolicies(dst.Policies, src.Policies)
	}
	if src.Rollout != nil {
		dst.Rollout = cloneRollout(src.Rollout)
	}
}

func mergeGlobal(dst, src *GlobalConfigSection) {
	if src.MaxConcurrency != 0 || dst.MaxConcurrency == 0 {
		dst.MaxConcurrency = src.MaxConcurrency
	}
	if src.Timeout != 0 || dst.Timeout == 0 {
		dst.Timeout = src.Timeout
	}
	if src.LoggingLevel != "" {
		dst.LoggingLevel = src.LoggingLevel
	}
	if src.RetryPolicy != nil {
		if dst.RetryPolicy == nil {
			dst.RetryPolicy = &RetryPolicySpec{}
		}
		dst.RetryPolicy.MaxRetries = src.RetryPolicy.MaxRetries
		dst.RetryPolicy.InitialDelay = src.RetryPolicy.InitialDelay
		dst.RetryPolicy.BackoffFactor = src.RetryPolicy.BackoffFactor
	}
}

func mergeScheduling(dst, src *SchedulingConfigSection) {
	if src.ArtifactRules != nil {
		if dst.ArtifactRules == nil {
			dst.ArtifactRules = make(map[string]*ArtifactSchedulingRule, len(src.ArtifactRules))
		}
		for k, v := range src.ArtifactRules {
			if v == nil {
				continue
			}
			dst.ArtifactRules[k] = cloneArtifactRule(v)
		}
	}
	if src.RescheduleRules != nil {
		if dst.RescheduleRules == nil {
			dst.RescheduleRules = &RescheduleRuleConfig{}
		}
		dst.RescheduleRules.Interval = src.RescheduleRules.Interval
		dst.RescheduleRules.GrabOnEvict = src.RescheduleRules.GrabOnEvict
	}
	if src.AdmissionRate != nil {
		if dst.AdmissionRate == nil {
			dst.AdmissionRate = &AdmissionRateConfig{}
		}
		if src.AdmissionRate.DefaultDelay != 0 || dst.AdmissionRate.DefaultDelay == 0 {
			dst.AdmissionRate.DefaultDelay = src.AdmissionRate.DefaultDelay
		}
		if src.AdmissionRate.LabelDelays != nil {
			if dst.AdmissionRate.LabelDelays == nil {
				dst.AdmissionRate.LabelDelays = make(map[string]time.Duration, len(src.AdmissionRate.LabelDelays))
			}
			for k, v := range src.AdmissionRate.LabelDelays {
				dst.AdmissionRate.LabelDelays[k] = v
			}
		}
	}
}

func mergeSampling(dst, src *SamplingConfigSection) {
	if src.QFine != 0 {
		dst.QFine = src.QFine
	}
	if src.QualityThreshold != 0 || dst.QualityThreshold == 0 {
		dst.QualityThreshold = src.QualityThreshold
	}
	if len(src.SampleSteps) > 0 {
		dst.SampleSteps = cloneStringSlice(src.SampleSteps)
	}
	if src.ConditionalActions != nil {
		if dst.ConditionalActions == nil {
			dst.ConditionalActions = make(map[string]string, len(src.ConditionalActions))
		}
		for k, v := range src.ConditionalActions {
			dst.ConditionalActions[k] = v
		}
	}
}

func mergeCollection(dst, src *CollectionConfigSection) {
	if src.DefaultFormat != "" {
		dst.DefaultFormat = src.DefaultFormat
	}
	dst.Compression = src.Compression
	if src.RoutingRules != nil {
		if dst.RoutingRules == nil {
			dst.RoutingRules = make(map[string]string, len(src.RoutingRules))
		}
		for k, v := range src.RoutingRules {
			dst.RoutingRules[k] = v
		}
	}
	if len(src.QualityGates) > 0 {
		dst.QualityGates = cloneStringSlice(src.QualityGates)
	}
	if src.FlushDelay != 0 {
		dst.FlushDelay = src.FlushDelay
	}
}

func mergePolicies(dst, src *PoliciesConfigSection) {
	if src.SchedulingRules != nil {
		cloned := make([]*PolicyRuleSpec, 0, len(src.SchedulingRules))
		for _, r := range src.SchedulingRules {
			if r == nil {
				continue
			}
			cr := *r
			cloned = append(cloned, &cr)
		}
		dst.SchedulingRules = cloned
	}
	if src.EnabledFlags != nil {
		if dst.EnabledFlags == nil {
			dst.EnabledFlags = make(map[string]bool, len(src.EnabledFlags))
		}
		for k, v := range src.EnabledFlags {
			dst.EnabledFlags[k] = v
		}
	}
}

func cloneArtifactRule(r *ArtifactSchedulingRule) *ArtifactSchedulingRule {
	if r == nil {
		return nil
	}
	c := *r
	if len(r.Labels) > 0 {
		c.Labels = cloneStringSlice(r.Labels)
	}
	return &c
}

func cloneRollout(r *RolloutSpec) *RolloutSpec {
	if r == nil {
		return nil
	}
	c := *r
	if len(r.CohortLabels) > 0 {
		c.CohortLabels = cloneStringSlice(r.CohortLabels)
	}
	if len(r.CohortLabelGlobs) > 0 {
		c.CohortLabelGlobs = cloneStringSlice(r.CohortLabelGlobs)
	}
	return &c
}

func cloneStringSlice(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
