package training

import (
	"testing"
	"time"
)

// TestHistoryRecordScore tests per-epoch score recording
func TestHistoryRecordScore(t *testing.T) {
	h := NewHistory()

	if err := h.RecordScore("acc", 0.5); err == nil {
		t.Error("Expected error recording into an empty history")
	}

	h.NewEpoch(0)
	if err := h.RecordScore("acc", 0.5); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := h.RecordScore("loss", 1.2); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	h.NewEpoch(1)
	if err := h.RecordScore("acc", 0.75); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if h.Len() != 2 {
		t.Fatalf("Expected 2 epochs, got %d", h.Len())
	}

	accs := h.Scores("acc")
	if len(accs) != 2 || accs[0] != 0.5 || accs[1] != 0.75 {
		t.Errorf("Expected acc series [0.5 0.75], got %v", accs)
	}

	// loss missing in epoch 1 is simply skipped
	if losses := h.Scores("loss"); len(losses) != 1 {
		t.Errorf("Expected 1 loss entry, got %d", len(losses))
	}

	last, err := h.Last()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if last.Epoch != 1 {
		t.Errorf("Expected last epoch 1, got %d", last.Epoch)
	}
}

// TestHistoryDuration tests duration stamping
func TestHistoryDuration(t *testing.T) {
	h := NewHistory()
	h.SetDuration(time.Second) // no open epoch, no-op

	h.NewEpoch(0)
	h.SetDuration(2 * time.Second)

	last, err := h.Last()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if last.Duration != 2*time.Second {
		t.Errorf("Expected duration 2s, got %v", last.Duration)
	}
}
