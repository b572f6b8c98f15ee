// Package sidechannel holds the per-artifact checkpoint and message state
// that must survive a sampler's eviction and be handed to whatever sampler
// is next admitted for the same artifact.
package sidechannel

import (
	"bufio"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/spindle-dl/spindle/internal/register"
	"github.com/spindle-dl/spindle/model"
)

// Config controls optional audit persistence of checkpoint writes. Nothing
// here is required for correctness within a run — the working set is not
// persisted across process restarts — but an append-only log of captured
// checkpoints is useful forensics when a run is killed mid-flight.
type Config struct {
	AuditLogPath     string
	FlushInterval    time.Duration
}

// Store holds the live checkpoint and message registers, keyed by artifact
// id, plus an optional background audit log of every checkpoint captured on
// eviction.
type Store struct {
	checkpoints *register.Store[model.Checkpoint]
	messages    *register.Store[model.Message]

	auditCh chan auditEntry
	wg      sync.WaitGroup
	closeAudit func()
}

type auditEntry struct {
	artifactID int64
	at         time.Time
}

// New constructs a Store. If cfg.AuditLogPath is empty, no audit log is
// started.
func New(cfg Config) *Store {
	s := &Store{
		checkpoints: register.NewStore[model.Checkpoint](),
		messages:    register.NewStore[model.Message](),
	}
	if cfg.AuditLogPath != "" {
		s.auditCh = make(chan auditEntry, 256)
		s.wg.Add(1)
		go s.auditLoop(cfg)
		s.closeAudit = func() { close(s.auditCh) }
	}
	return s
}

// Close stops the audit log goroutine, if one was started, flushing any
// buffered entries first.
func (s *Store) Close() {
	if s.closeAudit != nil {
		s.closeAudit()
		s.wg.Wait()
	}
}

// CaptureCheckpoint records cp as the latest checkpoint for id, for handoff
// to whatever sampler is admitted for id next, and best-effort audits the
// capture.
func (s *Store) CaptureCheckpoint(id int64, cp model.Checkpoint) {
	s.checkpoints.Set(id, cp)
	if s.auditCh != nil {
		select {
		case s.auditCh <- auditEntry{artifactID: id, at: time.Now()}:
		default:
		}
	}
}

// Checkpoint returns the stored checkpoint for id, or MarkerNone-equivalent
// absence (ok=false) if none was ever captured.
func (s *Store) Checkpoint(id int64) (model.Checkpoint, bool) { return s.checkpoints.Get(id) }

// SendMessage records msg as the latest message addressed to id; only the
// most recent value will be delivered.
func (s *Store) SendMessage(id int64, msg model.Message) { s.messages.Set(id, msg) }

// TakeMessage returns and clears the latest message addressed to id. Called
// exactly once, at admission, for the sampler about to be constructed for
// id — the bug in the system this was modeled on fetched a message using
// the wrong artifact id entirely; this always fetches by id.
func (s *Store) TakeMessage(id int64) (model.Message, bool) { return s.messages.Take(id) }

func (s *Store) auditLoop(cfg Config) {
	defer s.wg.Done()
	interval := cfg.FlushInterval
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	buf := make([]auditEntry, 0, 64)
	flush := func() {
		if len(buf) == 0 {
			return
		}
		f, err := os.OpenFile(cfg.AuditLogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			buf = buf[:0]
			return
		}
		w := bufio.NewWriter(f)
		for _, e := range buf {
			_, _ = fmt.Fprintf(w, "%s artifact_id=%d checkpoint_captured\n", e.at.Format(time.RFC3339Nano), e.artifactID)
		}
		_ = w.Flush()
		_ = f.Close()
		buf = buf[:0]
	}
	for {
		select {
		case e, ok := <-s.auditCh:
			if !ok {
				flush()
				return
			}
			buf = append(buf, e)
			if len(buf) >= 64 {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
