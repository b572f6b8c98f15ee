// Package fine implements the FineSampler: once its heavy region has
// arrived, it continuously produces fine samples into a bounded per-artifact
// queue until evicted or until the caller's sample function signals
// end-of-stream.
package fine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spindle-dl/spindle/capability"
	"github.com/spindle-dl/spindle/internal/heavy"
	"github.com/spindle-dl/spindle/internal/register"
	"github.com/spindle-dl/spindle/model"
	"github.com/spindle-dl/spindle/telemetry/tracing"
)

// State is the FineSampler's lifecycle stage.
type State int

const (
	StateStarting State = iota
	StateStreaming
	StateDrained
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateStreaming:
		return "streaming"
	case StateDrained:
		return "drained"
	case StateTerminated:
		return "terminated"
	default:
		return "starting"
	}
}

type checkpointPublisherKey struct{}

// CheckpointPublisher returns the function a sample callback can call to
// publish a new checkpoint value for the artifact it is sampling. Absent a
// publisher in ctx (e.g. in a unit test), it is a no-op.
func CheckpointPublisher(ctx context.Context) func(model.Checkpoint) {
	if f, ok := ctx.Value(checkpointPublisherKey{}).(func(model.Checkpoint)); ok {
		return f
	}
	return func(model.Checkpoint) {}
}

// Sampler runs one artifact's load-then-stream lifecycle in its own
// goroutine. All exported accessors are safe to call concurrently with Start
// and with the running goroutine.
type Sampler struct {
	Artifact         model.Artifact
	priorCheckpoint  model.Checkpoint
	lastMsg          model.Message
	qFine            int
	load             capability.HeavyLoaderFunc
	sample           capability.FineSamplerFunc
	log              *slog.Logger

	out        chan model.FineSample
	heavyReady chan struct{}
	done       chan struct{}

	status     register.Last[State]
	checkpoint register.Last[model.Checkpoint]
	loadErr    register.Last[error]

	heavy model.HeavyRegion
}

// New constructs a FineSampler for artifact. priorCheckpoint and lastMsg are
// fixed for this sampler's entire lifetime: they are what the artifact's
// previous occupant (if any) left behind, consumed exactly once at
// admission.
func New(artifact model.Artifact, priorCheckpoint model.Checkpoint, lastMsg model.Message, qFine int, load capability.HeavyLoaderFunc, sample capability.FineSamplerFunc, log *slog.Logger) *Sampler {
	return &Sampler{
		Artifact:        artifact,
		priorCheckpoint: priorCheckpoint,
		lastMsg:         lastMsg,
		qFine:           qFine,
		load:            load,
		sample:          sample,
		log:             log,
		out:             make(chan model.FineSample, qFine),
		heavyReady:      make(chan struct{}),
		done:            make(chan struct{}),
	}
}

// Out is the bounded per-artifact queue of produced samples.
func (s *Sampler) Out() <-chan model.FineSample { return s.out }

// HeavyReady closes once the heavy region has arrived (Starting→Streaming)
// or loading has failed.
func (s *Sampler) HeavyReady() <-chan struct{} { return s.heavyReady }

// Done closes when the sampler's goroutine has exited, terminally.
func (s *Sampler) Done() <-chan struct{} { return s.done }

// Status returns the sampler's last-published lifecycle state, or
// StateStarting if nothing has been published yet.
func (s *Sampler) Status() State {
	st, ok := s.status.Get()
	if !ok {
		return StateStarting
	}
	return st
}

// LoadErr returns the error load_heavy failed with, if any.
func (s *Sampler) LoadErr() error {
	err, _ := s.loadErr.Get()
	return err
}

// Checkpoint returns the latest checkpoint this sampler has published.
func (s *Sampler) Checkpoint() (model.Checkpoint, bool) { return s.checkpoint.Get() }

// Start launches the sampler's goroutine. ctx governs the sampler's entire
// lifetime; canceling it forcibly terminates the sampler and its loader,
// same as an eviction.
func (s *Sampler) Start(ctx context.Context) {
	go s.run(ctx)
}

func (s *Sampler) run(ctx context.Context) {
	defer close(s.done)
	s.status.Set(StateStarting)

	spanCtx, span := tracing.FromContext(ctx).StartLoadHeavy(ctx, s.Artifact.ID)
	loadStart := time.Now()

	delivery := make(chan heavy.Result, 1)
	go heavy.Run(spanCtx, s.Artifact, s.lastMsg, s.priorCheckpoint, s.load, delivery, s.log)

	select {
	case <-ctx.Done():
		tracing.EndLoadHeavy(span, time.Since(loadStart), ctx.Err())
		return
	case result := <-delivery:
		close(s.heavyReady)
		tracing.EndLoadHeavy(span, time.Since(loadStart), result.Err)
		if result.Err != nil {
			s.loadErr.Set(result.Err)
			s.status.Set(StateTerminated)
			return
		}
		s.heavy = result.Region
	}

	publish := func(cp model.Checkpoint) { s.checkpoint.Set(cp) }
	sampleCtx := context.WithValue(ctx, checkpointPublisherKey{}, publish)

	s.status.Set(StateStreaming)
	for callCount := 0; ; callCount++ {
		sample, ok, err := s.callSample(sampleCtx, callCount)
		if err != nil {
			if s.log != nil {
				s.log.Error("fine sampler callback panicked, terminating sampler", "artifact_id", s.Artifact.ID, "error", err)
			}
			s.status.Set(StateTerminated)
			return
		}
		if !ok {
			s.status.Set(StateDrained)
			<-ctx.Done()
			return
		}
		sample.ArtifactID = s.Artifact.ID
		select {
		case s.out <- sample:
		case <-ctx.Done():
			return
		}
	}
}

// callSample invokes the user's sample function, converting a panic into an
// error so that a broken callback kills only this sampler.
func (s *Sampler) callSample(ctx context.Context, callCount int) (sample model.FineSample, ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sample_fine panicked: %v", r)
		}
	}()
	sample, ok = s.sample(ctx, callCount, s.heavy, s.lastMsg)
	return sample, ok, nil
}
