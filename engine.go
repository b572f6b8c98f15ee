// Package engine is the public facade: it wires the dataset, the
// user-supplied capability callbacks, a scheduler policy, and the ambient
// telemetry stack into one running worker-pool engine, and exposes the
// consumer-facing API (Get/Pause/SendMessage/Running) described by the
// component design.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spindle-dl/spindle/capability"
	"github.com/spindle-dl/spindle/internal/rotor"
	"github.com/spindle-dl/spindle/internal/telemetry/policy"
	"github.com/spindle-dl/spindle/model"
	"github.com/spindle-dl/spindle/scheduler"
	"github.com/spindle-dl/spindle/telemetry/events"
	"github.com/spindle-dl/spindle/telemetry/health"
	"github.com/spindle-dl/spindle/telemetry/metrics"
	"github.com/spindle-dl/spindle/telemetry/tracing"
)

// Config is the full set of knobs a caller supplies to start an Engine.
type Config struct {
	MaxConcurrency         int
	QFine                  int
	QOut                   int
	TReschedule            time.Duration
	GrabOnEvict            bool
	EnableMessages         bool
	EnableCheckpoints      bool
	VisualizationBufferCap int

	Load    capability.HeavyLoaderFunc
	Sample  capability.FineSamplerFunc
	Collate capability.CollateFunc
	Policy  scheduler.Policy

	// FailureTracker, if set, receives every eviction's load_heavy outcome.
	// Pass the same tracker to scheduler.NewFailureAwarePolicy when building
	// Policy so that repeated load failures actually stop an artifact from
	// being re-admitted.
	FailureTracker *scheduler.FailureTracker

	// Tracer wraps load_heavy invocations and reschedule ticks in
	// OpenTelemetry spans. Build one with tracing.New(serviceName); nil
	// disables tracing.
	Tracer *tracing.Tracer

	MetricsProvider metrics.Provider
	Log             *slog.Logger
	TelemetryPolicy policy.TelemetryPolicy
}

func (c *Config) setDefaults() {
	if c.Log == nil {
		c.Log = slog.Default()
	}
	if c.MetricsProvider == nil {
		c.MetricsProvider = metrics.NewNoopProvider()
	}
	empty := policy.TelemetryPolicy{}
	if c.TelemetryPolicy == empty {
		c.TelemetryPolicy = policy.Default()
	}
	c.TelemetryPolicy = c.TelemetryPolicy.Normalize()
}

// NewConfig returns a Config populated with every default named in the
// external interface table: MaxConcurrency=10, QFine=100, QOut=10000,
// TReschedule=10s, GrabOnEvict=true, EnableMessages=true,
// EnableCheckpoints=true.
func NewConfig() Config {
	return Config{
		MaxConcurrency:    10,
		QFine:             100,
		QOut:              10000,
		TReschedule:       10 * time.Second,
		GrabOnEvict:       true,
		EnableMessages:    true,
		EnableCheckpoints: true,
	}
}

// Engine ties the scheduling/concurrency core to the telemetry stack and
// exposes the stable consumer API.
type Engine struct {
	core *rotor.Engine
	cfg  Config

	bus  events.Bus
	health *health.Evaluator
}

// New validates cfg and constructs an Engine over dataset. It does not start
// any workers; call Start for that.
func New(dataset model.Dataset, cfg Config) (*Engine, error) {
	cfg.setDefaults()

	core, err := rotor.New(dataset, rotor.Config{
		MaxConcurrency:         cfg.MaxConcurrency,
		QFine:                  cfg.QFine,
		QOut:                   cfg.QOut,
		TReschedule:            cfg.TReschedule,
		GrabOnEvict:            cfg.GrabOnEvict,
		EnableMessages:         cfg.EnableMessages,
		EnableCheckpoints:      cfg.EnableCheckpoints,
		VisualizationBufferCap: cfg.VisualizationBufferCap,
		Load:                   cfg.Load,
		Sample:                 cfg.Sample,
		Collate:                cfg.Collate,
		Policy:                 cfg.Policy,
		FailureTracker:         cfg.FailureTracker,
		Tracer:                 cfg.Tracer,
		Log:                    cfg.Log,
	})
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	e := &Engine{core: core, cfg: cfg, bus: events.NewBus(cfg.MetricsProvider)}
	e.health = health.NewEvaluator(cfg.TelemetryPolicy.Health.ProbeTTL, health.ProbeFunc(e.rotorProbe))
	return e, nil
}

// Start runs the initial schedule (blocking until every initially-admitted
// artifact's heavy region has loaded or its load has failed; it does not wait
// for a first fine sample) and launches the reschedule loop.
func (e *Engine) Start() {
	e.core.Start()
	_ = e.bus.Publish(events.Event{Category: events.CategoryRotor, Type: "engine_started", Fields: map[string]any{
		"warmup_ms": e.core.WarmupDuration().Milliseconds(),
	}})
}

// Get accumulates up to batchSize fine samples, collates them, and returns
// the batch. See the component design for the exact blocking/draining
// semantics across the running/finished transition.
func (e *Engine) Get(batchSize int, transform any) (batch any, marker model.Marker, err error) {
	return e.core.Get(batchSize, transform)
}

// Pause is a hard, idempotent shutdown of every worker in the engine.
func (e *Engine) Pause() {
	e.core.Pause()
	_ = e.bus.Publish(events.Event{Category: events.CategoryRotor, Type: "engine_paused"})
}

// SendMessage addresses msg to artifact id. Only the most recently sent
// message is ever delivered, and only at the moment that artifact is next
// admitted to the working set.
func (e *Engine) SendMessage(id int64, msg model.Message) { e.core.SendMessage(id, msg) }

// Running reports whether the engine has not yet signaled finish.
func (e *Engine) Running() bool { return e.core.Running() }

// SchedCount returns how many times artifact id has been admitted.
func (e *Engine) SchedCount(id int64) int { return e.core.SchedCount(id) }

// LostOnEvictCount reports how many buffered samples were dropped because
// the shared output queue was full at the moment of a grab-on-evict drain.
func (e *Engine) LostOnEvictCount() uint64 { return e.core.LostOnEvictCount() }

// VisualizationSamples returns the bounded history of data-free sample
// shadows retained for post-hoc inspection.
func (e *Engine) VisualizationSamples() []model.FineSample { return e.core.VisualizationSamples() }

// Events returns the engine's telemetry event bus, for callers that want to
// subscribe to lifecycle and error events.
func (e *Engine) Events() events.Bus { return e.bus }

// HealthSnapshot evaluates (or returns a cached evaluation of) the engine's
// health probes.
func (e *Engine) HealthSnapshot(ctx context.Context) health.Snapshot {
	return e.health.Evaluate(ctx)
}

// rotorProbe reports degraded once the lost-on-evict counter climbs past the
// configured backlog thresholds, unhealthy past the unhealthy threshold.
func (e *Engine) rotorProbe(ctx context.Context) health.ProbeResult {
	lost := e.core.LostOnEvictCount()
	switch {
	case lost >= uint64(e.cfg.TelemetryPolicy.Health.SideChannelUnhealthyBacklog):
		return health.Unhealthy("rotor", fmt.Sprintf("lost_on_evict=%d", lost))
	case lost >= uint64(e.cfg.TelemetryPolicy.Health.SideChannelDegradedBacklog):
		return health.Degraded("rotor", fmt.Sprintf("lost_on_evict=%d", lost))
	default:
		return health.Healthy("rotor")
	}
}
