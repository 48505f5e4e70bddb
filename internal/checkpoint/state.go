package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Phase is one stage of the extraction pipeline.
type Phase string

const (
	PhaseInitializing Phase = "INITIALIZING"
	PhaseExtracting   Phase = "EXTRACTING"
	PhaseVerifying    Phase = "VERIFYING"
	PhaseCompleted    Phase = "COMPLETED"
)

var phaseOrder = []Phase{PhaseInitializing, PhaseExtracting, PhaseVerifying, PhaseCompleted}

var (
	// ErrPhaseRegression is returned when a transition would move the phase backward.
	ErrPhaseRegression = errors.New("phase regression")
	// ErrPhaseSkip is returned when a transition would skip a phase.
	ErrPhaseSkip = errors.New("phase skip")
	// ErrUnknownPhase is returned for a phase outside the enum.
	ErrUnknownPhase = errors.New("unknown phase")
)

// Rank returns the position of the phase in the pipeline, or -1 if unknown.
func (p Phase) Rank() int {
	return slices.Index(phaseOrder, p)
}

// Valid reports whether p is one of the known phases.
func (p Phase) Valid() bool {
	return p.Rank() >= 0
}

// DisplayName returns a human-readable name for the phase
func (p Phase) DisplayName() string {
	switch p {
	case PhaseInitializing:
		return "Initializing"
	case PhaseExtracting:
		return "Extracting"
	case PhaseVerifying:
		return "Verifying"
	case PhaseCompleted:
		return "Completed"
	default:
		return string(p)
	}
}

// State is the durable progress record of one document run.
//
// CompletedGroups and Segments grow together: the segment at position k is
// the result of the group at position k of CompletedGroups.
type State struct {
	SchemaVersion     int               `json:"schema_version"`
	Document          string            `json:"document"`
	RunID             string            `json:"run_id"`
	Phase             Phase             `json:"phase"`
	CompletedGroups   []string          `json:"completed_groups"`
	Segments          []json.RawMessage `json:"segments"`
	TotalGroups       int               `json:"total_groups"`
	TotalPages        int               `json:"total_pages"`
	PagesCounted      bool              `json:"pages_counted"`
	ConfigFingerprint string            `json:"config_fingerprint,omitempty"`
	InitArtifact      json.RawMessage   `json:"init_artifact,omitempty"`
	InFlight          string            `json:"in_flight,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// NewState returns a fresh state for the given document.
func NewState(document string) *State {
	now := time.Now().UTC()
	return &State{
		SchemaVersion:   SchemaVersion,
		Document:        document,
		RunID:           uuid.New().String(),
		Phase:           PhaseInitializing,
		CompletedGroups: []string{},
		Segments:        []json.RawMessage{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// IsCompleted reports whether the group id has been recorded as done.
func (s *State) IsCompleted(groupID string) bool {
	return slices.Contains(s.CompletedGroups, groupID)
}

// AllGroupsCompleted reports whether every group 1..TotalGroups is recorded.
func (s *State) AllGroupsCompleted() bool {
	for i := 1; i <= s.TotalGroups; i++ {
		if !s.IsCompleted(strconv.Itoa(i)) {
			return false
		}
	}
	return true
}

// SetPageCount records the page and group totals. It may only be called once.
func (s *State) SetPageCount(pages, groups int, fingerprint string) error {
	if s.PagesCounted {
		return fmt.Errorf("page count already recorded (%d pages, %d groups)", s.TotalPages, s.TotalGroups)
	}
	if pages < 0 || groups < 0 {
		return fmt.Errorf("invalid page count: %d pages, %d groups", pages, groups)
	}
	s.TotalPages = pages
	s.TotalGroups = groups
	s.PagesCounted = true
	s.ConfigFingerprint = fingerprint
	return nil
}

// RecordGroup appends a completed group and its segment, clearing the
// in-flight marker when it names the same group.
func (s *State) RecordGroup(groupID string, segment json.RawMessage) error {
	idx, err := strconv.Atoi(groupID)
	if err != nil || idx < 1 || idx > s.TotalGroups {
		return fmt.Errorf("group %q outside 1..%d", groupID, s.TotalGroups)
	}
	if s.IsCompleted(groupID) {
		return fmt.Errorf("group %s already completed", groupID)
	}
	s.CompletedGroups = append(s.CompletedGroups, groupID)
	s.Segments = append(s.Segments, segment)
	if s.InFlight == groupID {
		s.InFlight = ""
	}
	return nil
}

// Advance moves the state to the next phase. Only single forward steps are
// accepted, and EXTRACTING cannot be left while groups are outstanding.
func (s *State) Advance(next Phase) error {
	if !next.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownPhase, next)
	}
	cur := s.Phase.Rank()
	switch {
	case next.Rank() <= cur:
		return fmt.Errorf("%w: %s -> %s", ErrPhaseRegression, s.Phase, next)
	case next.Rank() > cur+1:
		return fmt.Errorf("%w: %s -> %s", ErrPhaseSkip, s.Phase, next)
	}
	if s.Phase == PhaseExtracting && !s.AllGroupsCompleted() {
		return fmt.Errorf("cannot leave %s: %d of %d groups completed",
			s.Phase, len(s.CompletedGroups), s.TotalGroups)
	}
	s.Phase = next
	return nil
}

// Validate checks the structural invariants of a loaded state.
func (s *State) Validate() error {
	if !s.Phase.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownPhase, s.Phase)
	}
	if len(s.Segments) != len(s.CompletedGroups) {
		return fmt.Errorf("segments (%d) and completed_groups (%d) differ in length",
			len(s.Segments), len(s.CompletedGroups))
	}
	if s.TotalPages < 0 || s.TotalGroups < 0 {
		return fmt.Errorf("negative totals: %d pages, %d groups", s.TotalPages, s.TotalGroups)
	}
	if s.Phase != PhaseInitializing && !s.PagesCounted {
		return fmt.Errorf("phase %s without a recorded page count", s.Phase)
	}
	seen := make(map[string]bool, len(s.CompletedGroups))
	for _, id := range s.CompletedGroups {
		idx, err := strconv.Atoi(id)
		if err != nil || idx < 1 || idx > s.TotalGroups {
			return fmt.Errorf("completed group %q outside 1..%d", id, s.TotalGroups)
		}
		if seen[id] {
			return fmt.Errorf("completed group %q recorded twice", id)
		}
		seen[id] = true
	}
	if s.Phase.Rank() > PhaseExtracting.Rank() && !s.AllGroupsCompleted() {
		return fmt.Errorf("phase %s with %d of %d groups completed",
			s.Phase, len(s.CompletedGroups), s.TotalGroups)
	}
	return nil
}
