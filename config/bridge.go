package config

import (
	"time"

	"github.com/spindle-dl/spindle/internal/telemetry/policy"
)

// ApplyTo overlays the resolved spec's fields onto dst, leaving fields the
// spec leaves unset (nil EngineConfigSpec sections, zero values within a
// present section) untouched; the one exception is GrabOnEvict, copied
// whenever RescheduleRules is present, even when false. Callers fill dst
// from engine.NewConfig()'s tunables and call this before supplying the
// capability callbacks, which the layered spec has no way to express.
func (spec *EngineConfigSpec) ApplyTo(dst *EngineTarget) {
	if spec == nil || dst == nil {
		return
	}
	if g := spec.Global; g != nil {
		if g.MaxConcurrency > 0 {
			dst.MaxConcurrency = g.MaxConcurrency
		}
	}
	if sc := spec.Scheduling; sc != nil {
		if sc.RescheduleRules != nil {
			if sc.RescheduleRules.Interval > 0 {
				dst.TReschedule = sc.RescheduleRules.Interval
			}
			dst.GrabOnEvict = sc.RescheduleRules.GrabOnEvict
		}
	}
	if sa := spec.Sampling; sa != nil {
		if sa.QFine > 0 {
			dst.QFine = sa.QFine
		}
	}
	if co := spec.Collection; co != nil {
		if co.FlushDelay > 0 {
			dst.FlushDelay = co.FlushDelay
		}
	}
}

// EngineTarget is the minimal set of engine.Config fields the layered
// config subsystem is authorized to drive. It mirrors engine.Config's
// scheduling-relevant fields without importing the engine package, which
// would create an import cycle (engine imports nothing from config, but a
// future adapters package bridges the two explicitly).
type EngineTarget struct {
	MaxConcurrency int
	QFine          int
	TReschedule    time.Duration
	GrabOnEvict    bool
	FlushDelay     time.Duration
}

// TelemetryPolicyFrom derives a policy.TelemetryPolicy from the policies
// section of a resolved spec, falling back to policy.Default for anything
// the spec leaves unset.
func TelemetryPolicyFrom(spec *EngineConfigSpec) policy.TelemetryPolicy {
	p := policy.Default()
	if spec == nil || spec.Policies == nil {
		return p.Normalize()
	}
	for _, rule := range spec.Policies.SchedulingRules {
		if rule == nil || !rule.Enabled {
			continue
		}
		switch rule.Action {
		case "rotor_min_samples":
			if n, ok := parsePositiveInt(rule.Condition); ok {
				p.Health.RotorMinSamples = n
			}
		}
	}
	return p.Normalize()
}

func parsePositiveInt(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	if n <= 0 {
		return 0, false
	}
	return n, true
}
