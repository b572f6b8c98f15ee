package engine

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/spindle-dl/spindle/model"
	"github.com/spindle-dl/spindle/scheduler"
	"github.com/spindle-dl/spindle/telemetry/tracing"
)

// selfEvictPolicy admits every waiting artifact initially, then fires one
// reschedule decision per tick that evicts and immediately re-admits the
// next id in its fixed sequence, so each eviction can be observed
// deterministically without needing extra waiting artifacts to admit in
// their place.
type selfEvictPolicy struct {
	ids []int64

	mu  sync.Mutex
	idx int
}

func (p *selfEvictPolicy) InitialSchedule(view scheduler.View, maxConcurrency int) []int64 {
	ids := make([]int64, 0, len(view.Waiting))
	for _, a := range view.Waiting {
		ids = append(ids, a.ID)
	}
	return ids
}

func (p *selfEvictPolicy) Schedule(view scheduler.View) scheduler.Decision {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.idx >= len(p.ids) {
		return scheduler.Decision{}
	}
	id := p.ids[p.idx]
	p.idx++
	return scheduler.Decision{HasPair: true, EvictID: id, AdmitID: id}
}

func smallDataset(t *testing.T, n int) model.Dataset {
	t.Helper()
	artifacts := make([]model.Artifact, 0, n)
	for i := 0; i < n; i++ {
		artifacts = append(artifacts, model.Artifact{ID: int64(i + 1)})
	}
	ds, err := model.NewDataset("test", artifacts)
	if err != nil {
		t.Fatalf("NewDataset failed: %v", err)
	}
	return ds
}

func TestEngineEndToEnd(t *testing.T) {
	ds := smallDataset(t, 3)
	cfg := NewConfig()
	cfg.MaxConcurrency = 2
	cfg.Policy = scheduler.NewDefaultPolicy(rand.New(rand.NewSource(1)))
	cfg.Load = func(ctx context.Context, artifact model.Artifact, lastMsg model.Message, checkpoint model.Checkpoint) (model.HeavyRegion, error) {
		return artifact.ID, nil
	}
	cfg.Sample = func(ctx context.Context, callCount int, heavy model.HeavyRegion, lastMsg model.Message) (model.FineSample, bool) {
		if callCount >= 2 {
			return model.FineSample{}, false
		}
		return model.FineSample{Payload: heavy, ArtifactID: heavy.(int64)}, true
	}
	cfg.Collate = func(samples []model.FineSample, transform any) (any, error) {
		return samples, nil
	}

	eng, err := New(ds, cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	eng.Start()

	total := 0
	for {
		batch, marker, err := eng.Get(2, nil)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if marker == model.MarkerEndOfStream {
			break
		}
		if batch != nil {
			total += len(batch.([]model.FineSample))
		}
		if total >= 6 {
			eng.Pause()
		}
	}

	if total == 0 {
		t.Fatalf("expected at least one sample to be collected")
	}

	snap := eng.HealthSnapshot(context.Background())
	if snap.Overall == "" {
		t.Fatalf("expected a non-empty health status")
	}
}

// TestEngineWithTracerAndFailureTrackerConfigured confirms a caller can wire
// both the tracer and the circuit breaker through the facade without
// reaching into the engine's internals, and that a failing loader actually
// opens the circuit the tracker reports.
func TestEngineWithTracerAndFailureTrackerConfigured(t *testing.T) {
	ds := smallDataset(t, 2)
	cfg := NewConfig()
	cfg.MaxConcurrency = 2
	cfg.TReschedule = 15 * time.Millisecond
	tracker := scheduler.NewFailureTracker(1, time.Hour, 1, scheduler.NewRealClock())
	cfg.Policy = scheduler.NewFailureAwarePolicy(&selfEvictPolicy{ids: []int64{1, 2}}, tracker)
	cfg.FailureTracker = tracker
	cfg.Tracer = tracing.New("spindle-engine-test")
	cfg.Load = func(ctx context.Context, artifact model.Artifact, lastMsg model.Message, checkpoint model.Checkpoint) (model.HeavyRegion, error) {
		if artifact.ID == 1 {
			return nil, context.DeadlineExceeded
		}
		return artifact.ID, nil
	}
	cfg.Sample = func(ctx context.Context, callCount int, heavy model.HeavyRegion, lastMsg model.Message) (model.FineSample, bool) {
		if callCount >= 1 {
			return model.FineSample{}, false
		}
		return model.FineSample{Payload: heavy}, true
	}
	cfg.Collate = func(samples []model.FineSample, transform any) (any, error) {
		return samples, nil
	}

	eng, err := New(ds, cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer eng.Pause()
	eng.Start()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && tracker.Admissible(1) {
		time.Sleep(5 * time.Millisecond)
	}
	if tracker.Admissible(1) {
		t.Fatalf("expected artifact 1's circuit to be open after its load_heavy failed on eviction")
	}
	if !tracker.Admissible(2) {
		t.Fatalf("expected artifact 2 to remain admissible after a successful load")
	}
}

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()
	if cfg.MaxConcurrency != 10 {
		t.Fatalf("expected MaxConcurrency=10 got %d", cfg.MaxConcurrency)
	}
	if cfg.QFine != 100 || cfg.QOut != 10000 {
		t.Fatalf("expected QFine=100 QOut=10000, got %d/%d", cfg.QFine, cfg.QOut)
	}
	if !cfg.GrabOnEvict || !cfg.EnableMessages || !cfg.EnableCheckpoints {
		t.Fatalf("expected all boolean defaults true")
	}
}
