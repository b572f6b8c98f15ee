// Package policy centralizes runtime-tunable telemetry knobs for the engine
// facade, which holds them by value in its Config.
package policy

import "time"

// TelemetryPolicy centralizes runtime-tunable telemetry knobs. It is a plain
// value type; nothing swaps it at runtime. All durations are expected to be
// positive; Normalize replaces zero values with the defaults in Default().
type TelemetryPolicy struct {
    Health  HealthPolicy
    Tracing TracingPolicy
    Events  EventBusPolicy
}

type HealthPolicy struct {
    ProbeTTL                      time.Duration
    RotorMinSamples               int
    RotorDegradedRatio            float64
    RotorUnhealthyRatio           float64
    SideChannelDegradedBacklog    int
    SideChannelUnhealthyBacklog   int
}

type TracingPolicy struct {
    SamplePercent          float64
    ErrorBoostPercent      float64
    LatencyBoostThresholdMs int64
    LatencyBoostPercent    float64
}

type EventBusPolicy struct {
    MaxSubscriberBuffer int
}

// Default returns a TelemetryPolicy populated with the current heuristics previously
// hard-coded in engine.go (Iteration 4). Adjust carefully; downstream alerting may
// assume these semantics.
func Default() TelemetryPolicy {
    return TelemetryPolicy{
        Health: HealthPolicy{
            ProbeTTL:                    2 * time.Second,
            RotorMinSamples:             10,
            RotorDegradedRatio:          0.50,
            RotorUnhealthyRatio:         0.80,
            SideChannelDegradedBacklog:  256,
            SideChannelUnhealthyBacklog: 512,
        },
        Tracing: TracingPolicy{SamplePercent: 20},
        Events:  EventBusPolicy{MaxSubscriberBuffer: 1024},
    }
}

// Normalize ensures sane bounds without mutating original; returns a cleaned copy.
func (p TelemetryPolicy) Normalize() TelemetryPolicy {
    c := p
    if c.Health.ProbeTTL <= 0 { c.Health.ProbeTTL = 2 * time.Second }
    if c.Health.RotorMinSamples <= 0 { c.Health.RotorMinSamples = 10 }
    if c.Health.RotorDegradedRatio <= 0 { c.Health.RotorDegradedRatio = 0.50 }
    if c.Health.RotorUnhealthyRatio <= 0 { c.Health.RotorUnhealthyRatio = 0.80 }
    if c.Health.SideChannelDegradedBacklog <= 0 { c.Health.SideChannelDegradedBacklog = 256 }
    if c.Health.SideChannelUnhealthyBacklog <= 0 { c.Health.SideChannelUnhealthyBacklog = 512 }
    if c.Tracing.SamplePercent < 0 { c.Tracing.SamplePercent = 0 }
    if c.Tracing.SamplePercent > 100 { c.Tracing.SamplePercent = 100 }
    if c.Events.MaxSubscriberBuffer <= 0 { c.Events.MaxSubscriberBuffer = 1024 }
    return c
}

