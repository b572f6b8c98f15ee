// Package rotor implements the Engine: it owns the working set of
// FineSamplers, drains their per-artifact queues into one bounded output
// queue, and runs the periodic reschedule loop that rotates which artifacts
// are open.
package rotor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spindle-dl/spindle/capability"
	"github.com/spindle-dl/spindle/internal/fine"
	"github.com/spindle-dl/spindle/internal/sidechannel"
	"github.com/spindle-dl/spindle/model"
	"github.com/spindle-dl/spindle/scheduler"
	"github.com/spindle-dl/spindle/telemetry/tracing"
)

// Config bundles everything the engine needs to run: worker-pool sizing,
// queue capacities, reschedule cadence, and the user-supplied capabilities.
type Config struct {
	MaxConcurrency int
	QFine          int
	QOut           int
	TReschedule    time.Duration
	GrabOnEvict    bool
	EnableMessages bool
	EnableCheckpoints bool
	// VisualizationBufferCap bounds the data-free shadow-sample history kept
	// for post-hoc visualization. 0 disables the buffer entirely.
	VisualizationBufferCap int

	Load     capability.HeavyLoaderFunc
	Sample   capability.FineSamplerFunc
	Collate  capability.CollateFunc
	Policy   scheduler.Policy

	// Tracer wraps load_heavy invocations and reschedule ticks in spans. Nil
	// disables tracing entirely.
	Tracer *tracing.Tracer

	// FailureTracker, if set, is fed every eviction's load outcome so a
	// FailureAwarePolicy wrapping Policy can see it. The engine does not
	// construct one itself: callers that want circuit-breaking wrap their
	// chosen Policy with scheduler.NewFailureAwarePolicy and pass the same
	// *FailureTracker here.
	FailureTracker *scheduler.FailureTracker

	Log *slog.Logger
}

func (c *Config) setDefaults() {
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = 10
	}
	if c.QFine <= 0 {
		c.QFine = 100
	}
	if c.QOut <= 0 {
		c.QOut = 10000
	}
	if c.TReschedule <= 0 {
		c.TReschedule = 10 * time.Second
	}
	if c.Log == nil {
		c.Log = slog.Default()
	}
}

func (c Config) validate() error {
	if c.Load == nil {
		return fmt.Errorf("rotor: Load callback is required")
	}
	if c.Sample == nil {
		return fmt.Errorf("rotor: Sample callback is required")
	}
	if c.Policy == nil {
		return fmt.Errorf("rotor: Policy is required")
	}
	return nil
}

type handle struct {
	sampler *fine.Sampler
	cancel  context.CancelFunc
	done    chan struct{} // closed once forwarder goroutine exits
}

// Engine is the core concurrency and scheduling engine described by the
// working-set model: it is generic over the three capability contracts
// (load_heavy, sample_fine, scheduling) supplied in Config.
type Engine struct {
	cfg     Config
	dataset model.Dataset
	byID    map[int64]model.Artifact

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	working    map[int64]*handle
	schedCount map[int64]int

	side *sidechannel.Store

	out chan model.FineSample

	finished   atomic.Bool
	finishedCh chan struct{}
	closeOnce  sync.Once
	pauseOnce  sync.Once

	warmupDuration time.Duration

	visMu  sync.Mutex
	visBuf []model.FineSample

	wg sync.WaitGroup

	lostOnEvict atomic.Uint64
}

// New constructs an Engine over dataset. It does not start any workers;
// call Start for that.
func New(dataset model.Dataset, cfg Config) (*Engine, error) {
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	byID := make(map[int64]model.Artifact, len(dataset.Artifacts))
	for _, a := range dataset.Artifacts {
		byID[a.ID] = a
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		cfg:        cfg,
		dataset:    dataset,
		byID:       byID,
		ctx:        ctx,
		cancel:     cancel,
		working:    make(map[int64]*handle),
		schedCount: make(map[int64]int),
		side:       sidechannel.New(sidechannel.Config{}),
		out:        make(chan model.FineSample, cfg.QOut),
		finishedCh: make(chan struct{}),
	}, nil
}

// Start runs the initial_schedule, waits until every initial sampler has
// received its heavy region, failed to load it, or exited, then launches the
// reschedule loop. It does not wait for any sampler's first fine sample. The warmup wait is what makes Start block; callers that
// want a non-blocking start should invoke it from their own goroutine.
func (e *Engine) Start() {
	view := e.snapshotView()
	ids := e.cfg.Policy.InitialSchedule(view, e.cfg.MaxConcurrency)

	start := time.Now()
	var warmup sync.WaitGroup
	e.mu.Lock()
	for _, id := range ids {
		artifact, ok := e.byID[id]
		if !ok {
			continue
		}
		h := e.admitLocked(artifact)
		warmup.Add(1)
		go func(h *handle) {
			defer warmup.Done()
			select {
			case <-h.sampler.HeavyReady():
			case <-h.sampler.Done():
			case <-e.ctx.Done():
			}
		}(h)
	}
	e.mu.Unlock()
	warmup.Wait()
	e.warmupDuration = time.Since(start)

	e.wg.Add(1)
	go e.rescheduleLoop()
}

// WarmupDuration reports how long initial admission took, for diagnostics.
func (e *Engine) WarmupDuration() time.Duration { return e.warmupDuration }

// admitLocked constructs and starts a sampler for artifact, consuming its
// stored message and checkpoint, and registers it in the working set. The
// caller must hold e.mu.
func (e *Engine) admitLocked(artifact model.Artifact) *handle {
	var lastMsg model.Message
	if e.cfg.EnableMessages {
		lastMsg, _ = e.side.TakeMessage(artifact.ID)
	}
	var checkpoint model.Checkpoint
	if e.cfg.EnableCheckpoints {
		checkpoint, _ = e.side.Checkpoint(artifact.ID)
	}

	sctx, scancel := context.WithCancel(e.ctx)
	sctx = tracing.ContextWithTracer(sctx, e.cfg.Tracer)
	s := fine.New(artifact, checkpoint, lastMsg, e.cfg.QFine, e.cfg.Load, e.cfg.Sample, e.cfg.Log)
	h := &handle{sampler: s, cancel: scancel, done: make(chan struct{})}
	e.working[artifact.ID] = h
	e.schedCount[artifact.ID]++

	s.Start(sctx)
	go e.forward(sctx, h)
	return h
}

// forward moves samples from one sampler's queue into the shared output
// queue. Both the receive from the sampler and the send to the output queue
// are blocking selects keyed off the sampler's context, so there is no
// busy-wait anywhere in the data path: backpressure and idling are both
// ordinary channel blocking.
func (e *Engine) forward(ctx context.Context, h *handle) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			return
		case sample, ok := <-h.sampler.Out():
			if !ok {
				return
			}
			select {
			case e.out <- sample:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (e *Engine) rescheduleLoop() {
	defer e.wg.Done()
	ticker := time.NewTicker(e.cfg.TReschedule)
	defer ticker.Stop()
	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			if e.finished.Load() {
				continue
			}
			e.rescheduleTick()
		}
	}
}

// rescheduleTick runs one reschedule step: consult the policy, then apply
// whatever decision it returns.
func (e *Engine) rescheduleTick() {
	_, span := tracing.FromContext(e.ctx).StartReschedule(e.ctx)

	view := e.snapshotView()
	decision := e.cfg.Policy.Schedule(view)

	switch decision.Marker {
	case model.MarkerHalt:
		tracing.EndReschedule(span, 0, 0, true)
		e.haltLocked()
		return
	case model.MarkerNone:
		if !decision.HasPair {
			tracing.EndReschedule(span, 0, 0, false)
			return
		}
	}

	e.mu.Lock()
	evictHandle, evictOK := e.working[decision.EvictID]
	_, admitInW := e.working[decision.AdmitID]
	e.mu.Unlock()

	if !evictOK || (admitInW && decision.AdmitID != decision.EvictID) {
		e.cfg.Log.Error("scheduler invariant violated, terminating engine",
			"evict_id", decision.EvictID, "admit_id", decision.AdmitID)
		tracing.EndReschedule(span, decision.EvictID, decision.AdmitID, true)
		// Pause waits for this loop to exit, so it cannot run on this goroutine.
		go e.Pause()
		return
	}

	e.evict(decision.EvictID, evictHandle)

	e.mu.Lock()
	artifact, ok := e.byID[decision.AdmitID]
	if !ok {
		e.mu.Unlock()
		tracing.EndReschedule(span, decision.EvictID, decision.AdmitID, false)
		return
	}
	e.admitLocked(artifact)
	e.mu.Unlock()
	tracing.EndReschedule(span, decision.EvictID, decision.AdmitID, false)
}

// evict tears down the sampler for id: if configured, best-effort drains its
// buffered samples into the output queue, captures its last checkpoint,
// then forcibly cancels it and removes it from the working set.
func (e *Engine) evict(id int64, h *handle) {
	e.mu.Lock()
	delete(e.working, id)
	e.mu.Unlock()

	// Only record an outcome once load_heavy has actually settled; an
	// artifact evicted mid-load (Status still Starting) produced neither a
	// success nor a failure yet.
	if e.cfg.FailureTracker != nil && h.sampler.Status() != fine.StateStarting {
		if err := h.sampler.LoadErr(); err != nil {
			e.cfg.FailureTracker.RecordFailure(id)
		} else {
			e.cfg.FailureTracker.RecordSuccess(id)
		}
	}

	if e.cfg.GrabOnEvict {
		e.drainInto(h)
	}

	if e.cfg.EnableCheckpoints {
		if cp, ok := h.sampler.Checkpoint(); ok {
			e.side.CaptureCheckpoint(id, cp)
		}
	}

	h.cancel()
	<-h.done
}

// drainInto moves whatever is currently buffered in h's queue into the
// engine's output queue, non-blocking on both ends: a full output queue
// means the remainder is lost and counted as a LostOnEvict warning rather
// than blocking eviction indefinitely.
func (e *Engine) drainInto(h *handle) {
	for {
		select {
		case sample, ok := <-h.sampler.Out():
			if !ok {
				return
			}
			select {
			case e.out <- sample:
			default:
				e.lostOnEvict.Add(1)
				e.cfg.Log.Warn("sample lost on evict: output queue full", "artifact_id", h.sampler.Artifact.ID)
			}
		default:
			return
		}
	}
}

// LostOnEvictCount reports how many samples have been dropped because the
// output queue was full at the moment of a grab-on-evict drain.
func (e *Engine) LostOnEvictCount() uint64 { return e.lostOnEvict.Load() }

// haltLocked performs the policy-requested clean shutdown: every sampler in
// the working set is torn down (no more samples will be produced), but the
// output queue is left untouched so Get can continue draining whatever was
// already queued.
func (e *Engine) haltLocked() {
	e.mu.Lock()
	handles := make([]*handle, 0, len(e.working))
	for id, h := range e.working {
		handles = append(handles, h)
		delete(e.working, id)
	}
	e.mu.Unlock()

	for _, h := range handles {
		h.cancel()
		<-h.done
	}

	e.finished.Store(true)
	e.closeOnce.Do(func() { close(e.finishedCh) })
}

// snapshotView builds the read-only state a scheduler policy consults:
// which artifacts are loaded, which are waiting, and admission counts.
func (e *Engine) snapshotView() scheduler.View {
	e.mu.Lock()
	defer e.mu.Unlock()

	loaded := make([]model.Artifact, 0, len(e.working))
	for id := range e.working {
		loaded = append(loaded, e.byID[id])
	}
	waiting := make([]model.Artifact, 0, len(e.dataset.Artifacts)-len(e.working))
	for _, a := range e.dataset.Artifacts {
		if _, ok := e.working[a.ID]; !ok {
			waiting = append(waiting, a)
		}
	}
	counts := make(map[int64]int, len(e.schedCount))
	for id, c := range e.schedCount {
		counts[id] = c
	}
	return scheduler.View{Loaded: loaded, Waiting: waiting, SchedCount: counts, MaxConcurrency: e.cfg.MaxConcurrency}
}

// Running reports whether the engine has not yet signaled finish.
func (e *Engine) Running() bool { return !e.finished.Load() }

// Finished reports whether the engine has transitioned to its terminal
// state, irrevocably.
func (e *Engine) Finished() bool { return e.finished.Load() }

// SendMessage addresses msg to artifact id; only the most recently sent
// message per artifact is ever delivered, and only at the moment that
// artifact is next admitted.
func (e *Engine) SendMessage(id int64, msg model.Message) {
	if !e.cfg.EnableMessages {
		return
	}
	e.side.SendMessage(id, msg)
}

// SchedCount returns how many times id has been admitted to the working set.
func (e *Engine) SchedCount(id int64) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.schedCount[id]
}

// Get accumulates up to the given batch size from the output queue and
// collates it. While the engine is running, Get blocks (no busy-wait)
// until either the batch fills or the engine finishes mid-accumulation, in
// which case the partial batch is returned. Once the engine has finished,
// Get returns samples one at a time until the queue empties, then reports
// end of stream via the returned marker.
func (e *Engine) Get(batchSize int, transform any) (batch any, marker model.Marker, err error) {
	if e.finished.Load() {
		select {
		case sample, ok := <-e.out:
			if !ok {
				return nil, model.MarkerEndOfStream, nil
			}
			return e.collate([]model.FineSample{sample}, transform)
		default:
			return nil, model.MarkerEndOfStream, nil
		}
	}

	samples := make([]model.FineSample, 0, batchSize)
	for len(samples) < batchSize {
		select {
		case sample := <-e.out:
			samples = append(samples, sample)
		case <-e.finishedCh:
			samples = append(samples, e.drainRemaining(batchSize-len(samples))...)
			if len(samples) == 0 {
				return nil, model.MarkerEndOfStream, nil
			}
			return e.collate(samples, transform)
		}
	}
	return e.collate(samples, transform)
}

func (e *Engine) drainRemaining(n int) []model.FineSample {
	out := make([]model.FineSample, 0, n)
	for len(out) < n {
		select {
		case sample, ok := <-e.out:
			if !ok {
				return out
			}
			out = append(out, sample)
		default:
			return out
		}
	}
	return out
}

func (e *Engine) collate(samples []model.FineSample, transform any) (any, model.Marker, error) {
	batch, err := e.cfg.Collate(samples, transform)
	e.appendShadow(samples)
	return batch, model.MarkerNone, err
}

// appendShadow retains a data-free shadow of every consumed sample for
// post-hoc visualization, bounded by VisualizationBufferCap (0 disables it
// entirely rather than growing without limit).
func (e *Engine) appendShadow(samples []model.FineSample) {
	if e.cfg.VisualizationBufferCap <= 0 {
		return
	}
	e.visMu.Lock()
	defer e.visMu.Unlock()
	for _, s := range samples {
		e.visBuf = append(e.visBuf, s.Shadow())
	}
	if over := len(e.visBuf) - e.cfg.VisualizationBufferCap; over > 0 {
		e.visBuf = e.visBuf[over:]
	}
}

// VisualizationSamples returns a copy of the retained shadow-sample history.
func (e *Engine) VisualizationSamples() []model.FineSample {
	e.visMu.Lock()
	defer e.visMu.Unlock()
	cp := make([]model.FineSample, len(e.visBuf))
	copy(cp, e.visBuf)
	return cp
}

// Pause is a hard cancel: every worker is recursively terminated. It is
// idempotent.
func (e *Engine) Pause() {
	e.pauseOnce.Do(func() {
		e.cancel()
		e.mu.Lock()
		handles := make([]*handle, 0, len(e.working))
		for _, h := range e.working {
			handles = append(handles, h)
		}
		e.working = make(map[int64]*handle)
		e.mu.Unlock()
		for _, h := range handles {
			<-h.done
		}
		e.wg.Wait()
		e.finished.Store(true)
		e.closeOnce.Do(func() { close(e.finishedCh) })
		e.side.Close()
	})
}
