package sidechannel

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCheckpointHandoff(t *testing.T) {
	s := New(Config{})
	defer s.Close()
	if _, ok := s.Checkpoint(1); ok {
		t.Fatalf("expected no checkpoint before any capture")
	}
	s.CaptureCheckpoint(1, "cp-a")
	s.CaptureCheckpoint(1, "cp-b")
	cp, ok := s.Checkpoint(1)
	if !ok || cp != "cp-b" {
		t.Fatalf("expected latest checkpoint 'cp-b', got %v ok=%v", cp, ok)
	}
}

func TestMessageTakenExactlyOnceByCorrectID(t *testing.T) {
	s := New(Config{})
	defer s.Close()
	s.SendMessage(7, "hello-7")
	s.SendMessage(8, "hello-8")

	msg, ok := s.TakeMessage(7)
	if !ok || msg != "hello-7" {
		t.Fatalf("expected message for artifact 7, got %v ok=%v", msg, ok)
	}
	if _, ok := s.TakeMessage(7); ok {
		t.Fatalf("expected message for 7 to be consumed exactly once")
	}
	msg8, ok := s.TakeMessage(8)
	if !ok || msg8 != "hello-8" {
		t.Fatalf("expected message for artifact 8 unaffected by taking 7's message, got %v ok=%v", msg8, ok)
	}
}

func TestOnlyMostRecentMessageDelivered(t *testing.T) {
	s := New(Config{})
	defer s.Close()
	s.SendMessage(1, "first")
	s.SendMessage(1, "second")
	s.SendMessage(1, "third")
	msg, ok := s.TakeMessage(1)
	if !ok || msg != "third" {
		t.Fatalf("expected only the most recent message delivered, got %v", msg)
	}
}

func TestAuditLogRecordsCheckpointCaptures(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.log")
	s := New(Config{AuditLogPath: path, FlushInterval: 10 * time.Millisecond})
	s.CaptureCheckpoint(1, "cp")
	s.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected audit log file to be written: %v", err)
	}
	if len(data) == 0 {
		t.Fatalf("expected non-empty audit log")
	}
}
