package config

import "errors"

// Validation errors.
var (
	ErrInvalidRolloutMode   = errors.New("config: invalid rollout mode")
	ErrPercentageOutOfRange = errors.New("config: rollout percentage out of range")
	ErrNegativeConcurrency  = errors.New("config: negative max concurrency")
	ErrNegativeRetryConfig  = errors.New("config: negative retry config")
)

// ValidateSpec performs structural and semantic validation. A failure here
// is a ConfigInvalid condition: callers should refuse the candidate rather
// than apply it.
func ValidateSpec(spec *EngineConfigSpec) error {
	if spec == nil {
		return errors.New("config: nil spec")
	}
	if spec.Rollout != nil {
		mode := spec.Rollout.Mode
		if mode == "" {
			mode = "full"
		}
		switch mode {
		case "full":
		case "percentage":
			if spec.Rollout.Percentage < 0 || spec.Rollout.Percentage > 100 {
				return ErrPercentageOutOfRange
			}
		case "cohort":
		default:
			return ErrInvalidRolloutMode
		}
	}
	if spec.Global != nil {
		if spec.Global.MaxConcurrency < 0 {
			return ErrNegativeConcurrency
		}
		if spec.Global.RetryPolicy != nil {
			if spec.Global.RetryPolicy.MaxRetries < 0 || spec.Global.RetryPolicy.InitialDelay < 0 {
				return ErrNegativeRetryConfig
			}
		}
	}
	return nil
}
