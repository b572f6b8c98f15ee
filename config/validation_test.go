package config

import "testing"

func TestValidateSpec(t *testing.T) {
	if err := ValidateSpec(&EngineConfigSpec{Global: &GlobalConfigSection{MaxConcurrency: 1}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ValidateSpec(&EngineConfigSpec{Global: &GlobalConfigSection{MaxConcurrency: -1}}); err != ErrNegativeConcurrency {
		t.Fatalf("expected negative concurrency error, got %v", err)
	}
	if err := ValidateSpec(&EngineConfigSpec{Rollout: &RolloutSpec{Mode: "percentage", Percentage: 101}}); err != ErrPercentageOutOfRange {
		t.Fatalf("expected percentage out of range error, got %v", err)
	}
	if err := ValidateSpec(&EngineConfigSpec{Rollout: &RolloutSpec{Mode: "invalid"}}); err != ErrInvalidRolloutMode {
		t.Fatalf("expected invalid mode error, got %v", err)
	}
	if err := ValidateSpec(&EngineConfigSpec{Global: &GlobalConfigSection{RetryPolicy: &RetryPolicySpec{MaxRetries: -1}}}); err != ErrNegativeRetryConfig {
		t.Fatalf("expected negative retry config error, got %v", err)
	}
}
