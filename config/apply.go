package config

import (
	"errors"
	"time"
)

// Applier orchestrates validation, optional simulation, commit, and rollback.
type Applier struct {
	Store      *VersionedStore
	Simulator  *Simulator
	Dispatcher *Dispatcher
	Metrics    MetricsRecorder
}

func NewApplier(store *VersionedStore, sim *Simulator) *Applier {
	return &Applier{Store: store, Simulator: sim}
}

func (a *Applier) emit(e ChangeEvent) {
	if a.Dispatcher != nil {
		a.Dispatcher.Emit(e)
	}
}

// ApplyResult captures the outcome of an apply attempt.
type ApplyResult struct {
	Version   int64
	Hash      string
	SimImpact *SimulationImpact
}

var ErrSimulationRejected = errors.New("config: simulation rejected change")

// Apply executes the pipeline: validate -> simulate (if configured) ->
// commit (unless dry-run) -> return result.
func (a *Applier) Apply(current *EngineConfigSpec, candidate *EngineConfigSpec, opts ApplyOptions) (*ApplyResult, error) {
	if err := ValidateSpec(candidate); err != nil {
		a.emit(ChangeEvent{Type: "validation_error", Actor: opts.Actor, Error: err, Timestamp: time.Now().UTC()})
		if a.Metrics != nil {
			a.Metrics.IncApplyFailure()
		}
		return nil, err
	}
	var impact *SimulationImpact
	if a.Simulator != nil {
		impact = a.Simulator.Simulate(current, candidate)
		if !impact.Acceptable && !opts.Force && !opts.DryRun {
			a.emit(ChangeEvent{Type: "simulation_reject", Actor: opts.Actor, Error: ErrSimulationRejected, Timestamp: time.Now().UTC()})
			if a.Metrics != nil {
				a.Metrics.IncApplyFailure()
			}
			return nil, ErrSimulationRejected
		}
	}
	if opts.DryRun {
		return &ApplyResult{Version: 0, SimImpact: impact}, nil
	}
	parent := a.Store.NextVersion() - 1
	vc, err := a.Store.Append(candidate, opts.Actor, "", parent)
	if err != nil {
		a.emit(ChangeEvent{Type: "append_error", Actor: opts.Actor, Error: err, Timestamp: time.Now().UTC()})
		if a.Metrics != nil {
			a.Metrics.IncApplyFailure()
		}
		return nil, err
	}
	a.emit(ChangeEvent{Type: "apply", Version: vc.Version, Hash: vc.Hash, Actor: opts.Actor, Timestamp: vc.AppliedAt})
	if a.Metrics != nil {
		a.Metrics.IncApplySuccess()
		a.Metrics.SetActiveVersion(vc.Version)
	}
	return &ApplyResult{Version: vc.Version, Hash: vc.Hash, SimImpact: impact}, nil
}

// Rollback re-applies a previous version's spec as a new version with a
// rollback diff summary.
func (a *Applier) Rollback(targetVersion int64, actor string) (*ApplyResult, error) {
	vc, ok := a.Store.Get(targetVersion)
	if !ok {
		return nil, errors.New("config: target version not found")
	}
	parent := a.Store.NextVersion() - 1
	newVC, err := a.Store.Append(vc.Spec, actor, "rollback("+itoa64(targetVersion)+")", parent)
	if err != nil {
		a.emit(ChangeEvent{Type: "append_error", Actor: actor, Error: err, Timestamp: time.Now().UTC()})
		return nil, err
	}
	a.emit(ChangeEvent{Type: "rollback", Version: newVC.Version, Hash: newVC.Hash, Actor: actor, Timestamp: newVC.AppliedAt})
	if a.Metrics != nil {
		a.Metrics.IncRollback()
		a.Metrics.SetActiveVersion(newVC.Version)
	}
	return &ApplyResult{Version: newVC.Version, Hash: newVC.Hash}, nil
}

func itoa64(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
