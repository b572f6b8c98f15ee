package config

import "testing"

func TestApplyDryRun(t *testing.T) {
	store := NewVersionedStore()
	applier := NewApplier(store, NewSimulator())
	candidate := &EngineConfigSpec{Global: &GlobalConfigSection{MaxConcurrency: 5}}
	res, err := applier.Apply(nil, candidate, ApplyOptions{Actor: "tester", DryRun: true})
	if err != nil {
		t.Fatalf("dry run failed: %v", err)
	}
	if res.Version != 0 {
		t.Fatalf("expected version 0 for dry run got %d", res.Version)
	}
	if _, ok := store.Head(); ok {
		t.Fatalf("store should remain empty after dry run")
	}
}

func TestApplyCommit(t *testing.T) {
	store := NewVersionedStore()
	applier := NewApplier(store, NewSimulator())
	candidate := &EngineConfigSpec{
		Global:   &GlobalConfigSection{MaxConcurrency: 5},
		Policies: &PoliciesConfigSection{SchedulingRules: []*PolicyRuleSpec{{ID: "r1"}}},
	}
	res, err := applier.Apply(nil, candidate, ApplyOptions{Actor: "tester"})
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if res.Version != 1 {
		t.Fatalf("expected version 1 got %d", res.Version)
	}
	if res.SimImpact == nil || !res.SimImpact.Acceptable {
		t.Fatalf("expected acceptable simulation impact")
	}
}

func TestApplySimulationReject(t *testing.T) {
	store := NewVersionedStore()
	applier := NewApplier(store, NewSimulator())
	var rules []*PolicyRuleSpec
	for i := 0; i < 25; i++ {
		rules = append(rules, &PolicyRuleSpec{ID: itoa64(int64(i))})
	}
	candidate := &EngineConfigSpec{Policies: &PoliciesConfigSection{SchedulingRules: rules}}
	_, err := applier.Apply(nil, candidate, ApplyOptions{Actor: "tester"})
	if err == nil {
		t.Fatalf("expected simulation rejection")
	}
	res, err := applier.Apply(nil, candidate, ApplyOptions{Actor: "tester", Force: true})
	if err != nil || res.Version != 1 {
		t.Fatalf("forced apply failed: %v", err)
	}
}

func TestRollback(t *testing.T) {
	store := NewVersionedStore()
	applier := NewApplier(store, NewSimulator())
	first := &EngineConfigSpec{Global: &GlobalConfigSection{MaxConcurrency: 1}}
	second := &EngineConfigSpec{Global: &GlobalConfigSection{MaxConcurrency: 2}}
	_, _ = applier.Apply(nil, first, ApplyOptions{Actor: "a"})
	_, _ = applier.Apply(first, second, ApplyOptions{Actor: "b"})
	res, err := applier.Rollback(1, "rollback-actor")
	if err != nil {
		t.Fatalf("rollback failed: %v", err)
	}
	if res.Version != 3 {
		t.Fatalf("expected new version 3 after rollback got %d", res.Version)
	}
}

func TestApplyEmitsEventsAndMetrics(t *testing.T) {
	store := NewVersionedStore()
	applier := NewApplier(store, NewSimulator())
	collector := &InMemoryCollector{}
	dispatcher := NewDispatcher()
	dispatcher.Register(collector)
	applier.Dispatcher = dispatcher
	metrics := &InMemoryMetrics{}
	applier.Metrics = metrics

	candidate := &EngineConfigSpec{Global: &GlobalConfigSection{MaxConcurrency: 3}}
	if _, err := applier.Apply(nil, candidate, ApplyOptions{Actor: "tester"}); err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if len(collector.Events) != 1 || collector.Events[0].Type != "apply" {
		t.Fatalf("expected one apply event, got %+v", collector.Events)
	}
	if metrics.ApplySuccess != 1 {
		t.Fatalf("expected ApplySuccess=1 got %d", metrics.ApplySuccess)
	}
	if metrics.ActiveVer != 1 {
		t.Fatalf("expected ActiveVer=1 got %d", metrics.ActiveVer)
	}
}
