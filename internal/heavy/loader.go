// Package heavy implements the one-shot worker that opens a single artifact
// and materializes its heavy region.
package heavy

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/spindle-dl/spindle/capability"
	"github.com/spindle-dl/spindle/model"
)

type randKey struct{}

// RandFromContext returns the per-loader RNG seeded for this invocation, for
// load implementations that need reproducible-enough jitter without sharing
// a package-level generator across goroutines.
func RandFromContext(ctx context.Context) *rand.Rand {
	if r, ok := ctx.Value(randKey{}).(*rand.Rand); ok {
		return r
	}
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

// Result is what a HeavyLoader places on its one-slot delivery channel: a
// successfully materialized region, or the error load_heavy failed with.
type Result struct {
	Region model.HeavyRegion
	Err    error
}

// Run loads exactly one artifact and posts the outcome to delivery, then
// returns. delivery must be buffered with capacity 1: Run sends
// non-blockingly and logs (rather than blocks) if the slot is somehow
// already occupied, since that would indicate the parent already gave up on
// this loader.
func Run(ctx context.Context, artifact model.Artifact, lastMsg model.Message, checkpoint model.Checkpoint, load capability.HeavyLoaderFunc, delivery chan<- Result, log *slog.Logger) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	ctx = context.WithValue(ctx, randKey{}, rng)

	region, err := load(ctx, artifact, lastMsg, checkpoint)
	result := Result{Region: region, Err: err}

	select {
	case delivery <- result:
	default:
		if log != nil {
			log.Warn("heavy loader delivery slot occupied, dropping result", "artifact_id", artifact.ID)
		}
	}
}
