// Package capability defines the narrow function-shaped interfaces a caller
// plugs into the engine. Dynamic dispatch over user-supplied loaders,
// samplers and schedulers is expressed as these capability contracts rather
// than as open interface hierarchies, so a caller can supply a bare function
// for each one.
package capability

import (
	"context"

	"github.com/spindle-dl/spindle/model"
)

// HeavyLoaderFunc opens an artifact and materializes its heavy region. It is
// called at most once per sampler lifetime; an error here kills the sampler.
type HeavyLoaderFunc func(ctx context.Context, artifact model.Artifact, lastMsg model.Message, checkpoint model.Checkpoint) (model.HeavyRegion, error)

// FineSamplerFunc extracts one fine sample from an already-loaded heavy
// region. ok is false to signal end-of-stream; the sampler then idles
// (Drained) rather than terminating. ctx carries the checkpoint publisher
// the callback may use to record its progress (see fine.CheckpointPublisher).
type FineSamplerFunc func(ctx context.Context, callCount int, heavy model.HeavyRegion, lastMsg model.Message) (sample model.FineSample, ok bool)

// CollateFunc folds a batch of fine samples (plus an optional transform) into
// the value returned from the consumer-facing batch API. It must be pure: it
// receives the samples by value and the engine nils out payloads afterward.
type CollateFunc func(samples []model.FineSample, transform any) (batch any, err error)
