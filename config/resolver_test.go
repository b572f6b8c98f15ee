package config

import (
	"testing"
	"time"
)

func TestResolverBasicPrecedence(t *testing.T) {
	r := NewResolver()
	layers := map[int]*EngineConfigSpec{
		LayerGlobal: {
			Global:     &GlobalConfigSection{MaxConcurrency: 5, LoggingLevel: "info"},
			Scheduling: &SchedulingConfigSection{AdmissionRate: &AdmissionRateConfig{DefaultDelay: 100 * time.Millisecond}},
		},
		LayerEnvironment: {
			Global: &GlobalConfigSection{MaxConcurrency: 10},
		},
		LayerArtifact: {
			Global:     &GlobalConfigSection{LoggingLevel: "debug"},
			Scheduling: &SchedulingConfigSection{AdmissionRate: &AdmissionRateConfig{DefaultDelay: 50 * time.Millisecond}},
		},
	}
	final := r.Resolve(layers)
	if final.Global == nil || final.Scheduling == nil || final.Scheduling.AdmissionRate == nil {
		t.Fatalf("expected merged sections to be non-nil")
	}
	if final.Global.MaxConcurrency != 10 {
		t.Fatalf("expected MaxConcurrency=10 got %d", final.Global.MaxConcurrency)
	}
	if final.Global.LoggingLevel != "debug" {
		t.Fatalf("expected LoggingLevel=debug got %s", final.Global.LoggingLevel)
	}
	if final.Scheduling.AdmissionRate.DefaultDelay != 50*time.Millisecond {
		t.Fatalf("expected DefaultDelay=50ms got %s", final.Scheduling.AdmissionRate.DefaultDelay)
	}
}

func TestResolverMapMerging(t *testing.T) {
	r := NewResolver()
	global := &EngineConfigSpec{Scheduling: &SchedulingConfigSection{ArtifactRules: map[string]*ArtifactSchedulingRule{
		"tumor": {MaxConcurrency: 1},
	}}}
	dataset := &EngineConfigSpec{Scheduling: &SchedulingConfigSection{ArtifactRules: map[string]*ArtifactSchedulingRule{
		"tumor":  {MaxConcurrency: 3},
		"normal": {MaxConcurrency: 2},
	}}}
	final := r.Resolve(map[int]*EngineConfigSpec{LayerGlobal: global, LayerDataset: dataset})
	if got := final.Scheduling.ArtifactRules["tumor"].MaxConcurrency; got != 3 {
		t.Fatalf("expected override concurrency 3 got %d", got)
	}
	if _, ok := final.Scheduling.ArtifactRules["normal"]; !ok {
		t.Fatalf("expected normal rule to be present")
	}
	global.Scheduling.ArtifactRules["tumor"].MaxConcurrency = 99
	if final.Scheduling.ArtifactRules["tumor"].MaxConcurrency == 99 {
		t.Fatalf("final structure mutated after source change")
	}
}

func TestResolverSliceReplacement(t *testing.T) {
	r := NewResolver()
	specA := &EngineConfigSpec{Sampling: &SamplingConfigSection{SampleSteps: []string{"a", "b"}}}
	specB := &EngineConfigSpec{Sampling: &SamplingConfigSection{SampleSteps: []string{"x"}}}
	final := r.Resolve(map[int]*EngineConfigSpec{LayerGlobal: specA, LayerArtifact: specB})
	if len(final.Sampling.SampleSteps) != 1 || final.Sampling.SampleSteps[0] != "x" {
		t.Fatalf("expected slice replacement by higher layer")
	}
	specB.Sampling.SampleSteps[0] = "mutated"
	if final.Sampling.SampleSteps[0] == "mutated" {
		t.Fatalf("expected cloning of slice to prevent mutation propagation")
	}
}
