package config

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestEngineConfigSpecZeroValue(t *testing.T) {
	var spec EngineConfigSpec
	if spec.Global != nil || spec.Scheduling != nil || spec.Policies != nil {
		b, _ := json.Marshal(spec)
		t.Fatalf("expected zero-value pointers to be nil, got %s", string(b))
	}
}

func TestVersionedConfigBasicMarshal(t *testing.T) {
	vc := &VersionedConfig{
		Version:   1,
		Spec:      &EngineConfigSpec{Global: &GlobalConfigSection{MaxConcurrency: 10}},
		Hash:      "deadbeef",
		AppliedAt: time.Unix(100, 0),
		Actor:     "tester",
		Parent:    0,
	}
	data, err := json.Marshal(vc)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if len(data) == 0 {
		t.Fatalf("expected non-empty json output")
	}
	if !strings.Contains(string(data), `"version":1`) {
		t.Fatalf("expected version field in output: %s", string(data))
	}
}
