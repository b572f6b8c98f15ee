// Package config provides layered, versioned configuration for an engine:
// sections merge low-to-high priority into one effective spec, every applied
// spec is retained in an append-only version log, and a dry-run simulation
// step estimates a candidate's impact before it is committed.
package config

import "time"

// EngineConfigSpec is the canonical hierarchical configuration payload.
// Layers merge and overlay partial specs to produce a final runtime config.
type EngineConfigSpec struct {
	Global     *GlobalConfigSection     `json:"global,omitempty"`
	Scheduling *SchedulingConfigSection `json:"scheduling,omitempty"`
	Sampling   *SamplingConfigSection   `json:"sampling,omitempty"`
	Collection *CollectionConfigSection `json:"collection,omitempty"`
	Policies   *PoliciesConfigSection   `json:"policies,omitempty"`
	Rollout    *RolloutSpec             `json:"rollout,omitempty"`
}

// GlobalConfigSection captures cross-cutting limits applied to the entire engine.
type GlobalConfigSection struct {
	MaxConcurrency int              `json:"max_concurrency,omitempty"`
	Timeout        time.Duration    `json:"timeout,omitempty"`
	RetryPolicy    *RetryPolicySpec `json:"retry_policy,omitempty"`
	LoggingLevel   string           `json:"logging_level,omitempty"`
}

// RetryPolicySpec holds retry settings for load_heavy invocations. The
// resolver merges them and validation rejects negative values; no engine
// component reads them, so load_heavy is not retried.
type RetryPolicySpec struct {
	MaxRetries    int           `json:"max_retries,omitempty"`
	InitialDelay  time.Duration `json:"initial_delay,omitempty"`
	BackoffFactor float64       `json:"backoff_factor,omitempty"`
}

// SchedulingConfigSection drives working-set admission and rotation.
type SchedulingConfigSection struct {
	ArtifactRules map[string]*ArtifactSchedulingRule `json:"artifact_rules,omitempty"`
	RescheduleRules *RescheduleRuleConfig             `json:"reschedule_rules,omitempty"`
	AdmissionRate   *AdmissionRateConfig              `json:"admission_rate,omitempty"`
}

// ArtifactSchedulingRule tailors admission for artifacts sharing a label.
type ArtifactSchedulingRule struct {
	Labels         []string      `json:"labels,omitempty"`
	MaxConcurrency int           `json:"max_concurrency,omitempty"`
	MinInterval    time.Duration `json:"min_interval,omitempty"`
}

// RescheduleRuleConfig governs how often the reschedule loop ticks.
type RescheduleRuleConfig struct {
	Interval    time.Duration `json:"interval,omitempty"`
	GrabOnEvict bool          `json:"grab_on_evict,omitempty"`
}

// AdmissionRateConfig throttles how often a given artifact may be re-admitted.
type AdmissionRateConfig struct {
	DefaultDelay time.Duration            `json:"default_delay,omitempty"`
	LabelDelays  map[string]time.Duration `json:"label_delays,omitempty"`
}

// SamplingConfigSection contains FineSampler tuning directives.
type SamplingConfigSection struct {
	QFine              int               `json:"q_fine,omitempty"`
	QualityThreshold   float64           `json:"quality_threshold,omitempty"`
	SampleSteps        []string          `json:"sample_steps,omitempty"`
	ConditionalActions map[string]string `json:"conditional_actions,omitempty"`
}

// CollectionConfigSection configures collector and stream-writer output.
type CollectionConfigSection struct {
	DefaultFormat string            `json:"default_format,omitempty"`
	Compression   bool              `json:"compression,omitempty"`
	RoutingRules  map[string]string `json:"routing_rules,omitempty"`
	QualityGates  []string          `json:"quality_gates,omitempty"`
	FlushDelay    time.Duration     `json:"flush_delay,omitempty"`
}

// PoliciesConfigSection captures dynamic scheduling rules tied to runtime configuration.
type PoliciesConfigSection struct {
	SchedulingRules []*PolicyRuleSpec `json:"scheduling_rules,omitempty"`
	EnabledFlags    map[string]bool   `json:"enabled_flags,omitempty"`
}

// PolicyRuleSpec represents a single dynamic rule.
type PolicyRuleSpec struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	Priority  int       `json:"priority,omitempty"`
	Condition string    `json:"condition,omitempty"`
	Action    string    `json:"action,omitempty"`
	Enabled   bool      `json:"enabled,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// RolloutSpec declares how a configuration change is rolled out across
// artifact labels.
type RolloutSpec struct {
	Mode             string   `json:"mode"` // full|percentage|cohort
	Percentage       int      `json:"percentage,omitempty"`
	CohortLabels     []string `json:"cohort_labels,omitempty"`
	CohortLabelGlobs []string `json:"cohort_label_globs,omitempty"`
}

// VersionedConfig records a committed configuration along with metadata.
type VersionedConfig struct {
	Version     int64             `json:"version"`
	Spec        *EngineConfigSpec `json:"spec"`
	Hash        string            `json:"hash"`
	AppliedAt   time.Time         `json:"applied_at"`
	Actor       string            `json:"actor"`
	Parent      int64             `json:"parent"`
	DiffSummary string            `json:"diff_summary,omitempty"`
}

// ApplyOptions control how a configuration change is processed.
type ApplyOptions struct {
	Actor        string `json:"actor"`
	DryRun       bool   `json:"dry_run"`
	Force        bool   `json:"force"`
	RolloutStage bool   `json:"rollout_stage"`
}
