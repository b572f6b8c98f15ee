// Package collector implements the external-facing consumer that drains the
// engine's batch API, routes results per a configured mode, and terminates
// the engine cleanly once the caller's finished hook says to stop.
package collector

import (
	"log/slog"
	"sync"
	"time"

	"github.com/spindle-dl/spindle/model"
)

// Mode selects how a collector routes processed pieces.
type Mode int

const (
	// ModeSaveAll appends every processed piece to a per-artifact list.
	ModeSaveAll Mode = iota
	// ModeAccumulate folds every processed piece into a per-artifact
	// running value via the Accumulate hook.
	ModeAccumulate
	// ModeStreamToFile forwards every processed piece's row to a
	// StreamWriter.
	ModeStreamToFile
)

// Engine is the subset of the core engine the collector depends on, kept
// narrow so collector tests can supply a fake.
type Engine interface {
	Get(batchSize int, transform any) (batch any, marker model.Marker, err error)
	Pause()
}

// RowFormatter renders a processed piece as the row string a StreamWriter
// will append for its artifact, when running in ModeStreamToFile.
type RowFormatter func(piece model.ProcessedPiece) string

// Sink is the destination for ModeStreamToFile: send(artifactID, row).
type Sink interface {
	Send(artifactID int64, row string)
}

// Config configures a Collector.
type Config struct {
	Engine  Engine
	Mode    Mode
	Process func(batch any) ([]model.ProcessedPiece, error)
	// Accumulate folds a new piece into the artifact's running value.
	// Associativity is not required. Used only in ModeAccumulate.
	Accumulate func(prev any, piece model.ProcessedPiece, artifact int64) any
	// FinishedCollecting is polled at PollInterval; once it returns true the
	// collector pauses the engine, keeps consuming until the engine reports
	// end of stream, then snapshots its results and returns.
	FinishedCollecting func() bool
	PollInterval       time.Duration
	BatchSize          int
	Transform          any
	RowFormatter       RowFormatter
	Sink               Sink
	Log                *slog.Logger
}

func (c *Config) setDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 1
	}
	if c.Log == nil {
		c.Log = slog.Default()
	}
}

// Results is the final snapshot a Collector run returns.
type Results struct {
	SaveAll     map[int64][]model.ProcessedPiece
	Accumulated map[int64]any
}

// Collector drives an Engine to completion, applying the configured mode to
// every piece it processes.
type Collector struct {
	cfg Config

	mu      sync.Mutex
	saveAll map[int64][]model.ProcessedPiece
	accum   map[int64]any
}

// New constructs a Collector from cfg.
func New(cfg Config) *Collector {
	cfg.setDefaults()
	return &Collector{
		cfg:     cfg,
		saveAll: make(map[int64][]model.ProcessedPiece),
		accum:   make(map[int64]any),
	}
}

// Run drives the collector loop until the engine reports end of stream or
// FinishedCollecting signals completion, whichever comes first, pauses the
// engine, and returns the accumulated results.
func (c *Collector) Run() Results {
	stopPoll := make(chan struct{})
	var once sync.Once
	stop := func() { once.Do(func() { close(stopPoll) }) }

	if c.cfg.FinishedCollecting != nil {
		go func() {
			ticker := time.NewTicker(c.cfg.PollInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if c.cfg.FinishedCollecting() {
						c.cfg.Engine.Pause()
						return
					}
				case <-stopPoll:
					return
				}
			}
		}()
	}
	defer stop()

	for {
		batch, marker, err := c.cfg.Engine.Get(c.cfg.BatchSize, c.cfg.Transform)
		if err != nil {
			c.cfg.Log.Error("collector: engine.Get failed", "error", err)
			continue
		}
		if marker == model.MarkerEndOfStream {
			break
		}
		pieces, err := c.cfg.Process(batch)
		if err != nil {
			c.cfg.Log.Error("collector: process hook failed", "error", err)
			continue
		}
		c.route(pieces)
	}

	res := c.snapshot()
	c.cfg.Engine.Pause()
	return res
}

func (c *Collector) route(pieces []model.ProcessedPiece) {
	switch c.cfg.Mode {
	case ModeSaveAll:
		c.mu.Lock()
		for _, p := range pieces {
			id := p.Source.ArtifactID
			c.saveAll[id] = append(c.saveAll[id], p)
		}
		c.mu.Unlock()
	case ModeAccumulate:
		c.mu.Lock()
		for _, p := range pieces {
			id := p.Source.ArtifactID
			c.accum[id] = c.cfg.Accumulate(c.accum[id], p, id)
		}
		c.mu.Unlock()
	case ModeStreamToFile:
		if c.cfg.Sink == nil || c.cfg.RowFormatter == nil {
			return
		}
		for _, p := range pieces {
			c.cfg.Sink.Send(p.Source.ArtifactID, c.cfg.RowFormatter(p))
		}
	}
}

func (c *Collector) snapshot() Results {
	c.mu.Lock()
	defer c.mu.Unlock()
	saveAll := make(map[int64][]model.ProcessedPiece, len(c.saveAll))
	for k, v := range c.saveAll {
		cp := make([]model.ProcessedPiece, len(v))
		copy(cp, v)
		saveAll[k] = cp
	}
	accum := make(map[int64]any, len(c.accum))
	for k, v := range c.accum {
		accum[k] = v
	}
	return Results{SaveAll: saveAll, Accumulated: accum}
}
