package checkpoint

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestPhaseRank(t *testing.T) {
	tests := []struct {
		phase Phase
		want  int
	}{
		{PhaseInitializing, 0},
		{PhaseExtracting, 1},
		{PhaseVerifying, 2},
		{PhaseCompleted, 3},
		{Phase("INITIALIZE"), -1},
		{Phase(""), -1},
	}

	for _, tt := range tests {
		t.Run(string(tt.phase), func(t *testing.T) {
			if got := tt.phase.Rank(); got != tt.want {
				t.Errorf("Rank() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestAdvance(t *testing.T) {
	t.Run("forward one step at a time", func(t *testing.T) {
		s := NewState("doc")
		if err := s.SetPageCount(0, 0, ""); err != nil {
			t.Fatal(err)
		}
		for _, next := range []Phase{PhaseExtracting, PhaseVerifying, PhaseCompleted} {
			if err := s.Advance(next); err != nil {
				t.Fatalf("Advance(%s) unexpected error: %v", next, err)
			}
		}
		if s.Phase != PhaseCompleted {
			t.Errorf("Phase = %q, want %q", s.Phase, PhaseCompleted)
		}
	})

	t.Run("skip rejected", func(t *testing.T) {
		s := NewState("doc")
		if err := s.Advance(PhaseVerifying); !errors.Is(err, ErrPhaseSkip) {
			t.Errorf("Advance() error = %v, want ErrPhaseSkip", err)
		}
	})

	t.Run("regression rejected", func(t *testing.T) {
		s := NewState("doc")
		s.Phase = PhaseVerifying
		for _, back := range []Phase{PhaseInitializing, PhaseExtracting, PhaseVerifying} {
			if err := s.Advance(back); !errors.Is(err, ErrPhaseRegression) {
				t.Errorf("Advance(%s) error = %v, want ErrPhaseRegression", back, err)
			}
		}
	})

	t.Run("extracting needs every group", func(t *testing.T) {
		s := NewState("doc")
		if err := s.SetPageCount(20, 2, ""); err != nil {
			t.Fatal(err)
		}
		s.Phase = PhaseExtracting
		if err := s.RecordGroup("1", json.RawMessage(`{}`)); err != nil {
			t.Fatal(err)
		}
		if err := s.Advance(PhaseVerifying); err == nil {
			t.Error("expected error leaving EXTRACTING with group 2 outstanding")
		}
		if err := s.RecordGroup("2", json.RawMessage(`{}`)); err != nil {
			t.Fatal(err)
		}
		if err := s.Advance(PhaseVerifying); err != nil {
			t.Errorf("Advance() unexpected error: %v", err)
		}
	})

	t.Run("unknown phase", func(t *testing.T) {
		s := NewState("doc")
		if err := s.Advance(Phase("DONE")); !errors.Is(err, ErrUnknownPhase) {
			t.Errorf("Advance() error = %v, want ErrUnknownPhase", err)
		}
	})
}

func TestSetPageCountOnce(t *testing.T) {
	s := NewState("doc")
	if err := s.SetPageCount(91, 10, "fp"); err != nil {
		t.Fatalf("SetPageCount() unexpected error: %v", err)
	}
	if err := s.SetPageCount(50, 5, "fp"); err == nil {
		t.Error("expected error on second SetPageCount")
	}
	if s.TotalPages != 91 || s.TotalGroups != 10 {
		t.Errorf("totals changed: %d pages / %d groups", s.TotalPages, s.TotalGroups)
	}
}

func TestRecordGroup(t *testing.T) {
	s := NewState("doc")
	if err := s.SetPageCount(30, 3, ""); err != nil {
		t.Fatal(err)
	}
	s.InFlight = "2"

	if err := s.RecordGroup("2", json.RawMessage(`{"g":2}`)); err != nil {
		t.Fatalf("RecordGroup() unexpected error: %v", err)
	}
	if s.InFlight != "" {
		t.Errorf("InFlight = %q, want cleared", s.InFlight)
	}
	if err := s.RecordGroup("2", json.RawMessage(`{"g":2}`)); err == nil {
		t.Error("expected error recording group 2 twice")
	}
	if err := s.RecordGroup("4", json.RawMessage(`{}`)); err == nil {
		t.Error("expected error for group outside range")
	}
	if err := s.RecordGroup("two", json.RawMessage(`{}`)); err == nil {
		t.Error("expected error for non-numeric group id")
	}
	if len(s.Segments) != len(s.CompletedGroups) {
		t.Errorf("segments (%d) and groups (%d) out of step", len(s.Segments), len(s.CompletedGroups))
	}
}

func TestAllGroupsCompletedDegenerate(t *testing.T) {
	s := NewState("empty.pdf")
	if err := s.SetPageCount(0, 0, ""); err != nil {
		t.Fatal(err)
	}
	if !s.AllGroupsCompleted() {
		t.Error("a zero-group document has nothing outstanding")
	}
}
