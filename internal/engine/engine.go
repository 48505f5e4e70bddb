// Package engine drives a document through the checkpointed indexing
// phases, resuming from the last saved state after any failure.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/itsmostafa/resilindex/internal/checkpoint"
	"github.com/itsmostafa/resilindex/internal/pacing"
	"github.com/itsmostafa/resilindex/internal/retry"
)

// DefaultPaceInterval is the minimum gap between group extractions.
const DefaultPaceInterval = 500 * time.Millisecond

// ConfigMismatchError is returned when a checkpoint was produced with
// settings that differ from the current run.
type ConfigMismatchError struct {
	Document string
	Stored   string
	Current  string
}

func (e *ConfigMismatchError) Error() string {
	return fmt.Sprintf("checkpoint for %s was created with different settings (fingerprint %s, now %s); reset it to start over",
		e.Document, e.Stored, e.Current)
}

// Options configures an Engine. Zero fields take defaults.
type Options struct {
	Store  *checkpoint.Store
	Retry  *retry.Wrapper
	Pacer  pacing.Pacer
	Logger *slog.Logger
	// Progress, when set, is called after every saved step.
	Progress func(Progress)
}

// Progress reports how far a run has got.
type Progress struct {
	Document    string
	Phase       checkpoint.Phase
	DoneGroups  int
	TotalGroups int
}

// Result is the outcome of a completed run.
type Result struct {
	// Structure is the merged document structure.
	Structure json.RawMessage
	// State is the final persisted state.
	State *checkpoint.State
	// Resumed is true when an existing checkpoint was picked up.
	Resumed bool
}

// Engine runs the phase state machine for one document at a time. It
// assumes it is the only writer of the checkpoint.
type Engine struct {
	collab   Collaborators
	store    *checkpoint.Store
	retry    *retry.Wrapper
	pacer    pacing.Pacer
	logger   *slog.Logger
	progress func(Progress)
}

// New creates an Engine.
func New(collab Collaborators, opts Options) (*Engine, error) {
	if err := collab.validate(); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "engine")

	e := &Engine{
		collab:   collab,
		store:    opts.Store,
		retry:    opts.Retry,
		pacer:    opts.Pacer,
		logger:   logger,
		progress: opts.Progress,
	}
	if e.store == nil {
		e.store = checkpoint.NewStore(checkpoint.DefaultDir)
	}
	if e.retry == nil {
		e.retry = retry.New(retry.DefaultPolicy(), retry.WithLogger(logger))
	}
	if e.pacer == nil {
		e.pacer = pacing.Interval(DefaultPaceInterval)
	}
	return e, nil
}

// Store returns the checkpoint store the engine writes to.
func (e *Engine) Store() *checkpoint.Store {
	return e.store
}

// DocumentID returns the checkpoint identifier for doc.
func DocumentID(doc Document) string {
	if doc.Name != "" {
		return doc.Name
	}
	return filepath.Base(doc.Path)
}

// Run advances the document from its persisted phase to COMPLETED and
// returns the merged structure. Any error leaves the last saved state in
// place; calling Run again resumes from it.
func (e *Engine) Run(ctx context.Context, doc Document, cfg RunConfig) (Result, error) {
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}
	id := DocumentID(doc)
	doc.Name = id
	logger := e.logger.With("document", id)

	resumed, err := e.store.Exists(id)
	if err != nil {
		return Result{}, err
	}
	state, err := e.store.Load(id)
	if err != nil {
		return Result{}, err
	}

	fingerprint := cfg.Fingerprint()
	if state.PagesCounted && state.ConfigFingerprint != "" && state.ConfigFingerprint != fingerprint {
		return Result{}, &ConfigMismatchError{Document: id, Stored: state.ConfigFingerprint, Current: fingerprint}
	}

	if resumed {
		logger.Info("resuming from checkpoint",
			"phase", state.Phase,
			"completed_groups", len(state.CompletedGroups),
			"total_groups", state.TotalGroups)
	}
	e.report(state)
	if state.InFlight != "" {
		logger.Warn("previous run stopped during a group; it will be extracted again", "group", state.InFlight)
	}

	for {
		if state.PagesCounted {
			doc.TotalPages = state.TotalPages
		}
		doc.InitArtifact = state.InitArtifact

		switch state.Phase {
		case checkpoint.PhaseInitializing:
			if err := e.initialize(ctx, state, &doc, cfg, fingerprint); err != nil {
				return Result{}, err
			}
			if err := e.advance(state, checkpoint.PhaseExtracting, logger); err != nil {
				return Result{}, err
			}

		case checkpoint.PhaseExtracting:
			if err := e.extractGroups(ctx, state, doc, cfg); err != nil {
				return Result{}, err
			}
			if err := e.advance(state, checkpoint.PhaseVerifying, logger); err != nil {
				return Result{}, err
			}

		case checkpoint.PhaseVerifying:
			structure, err := e.verify(ctx, state, doc, cfg)
			if err != nil {
				return Result{}, err
			}
			if err := e.advance(state, checkpoint.PhaseCompleted, logger); err != nil {
				return Result{}, err
			}
			return Result{Structure: structure, State: state, Resumed: resumed}, nil

		case checkpoint.PhaseCompleted:
			// Already done; rebuild the structure from the stored segments
			logger.Info("document already completed, re-running verification")
			structure, err := e.verify(ctx, state, doc, cfg)
			if err != nil {
				return Result{}, err
			}
			return Result{Structure: structure, State: state, Resumed: resumed}, nil

		default:
			return Result{}, fmt.Errorf("%w: %q", checkpoint.ErrUnknownPhase, state.Phase)
		}
	}
}

// initialize counts pages once and runs TOC initialization.
func (e *Engine) initialize(ctx context.Context, state *checkpoint.State, doc *Document, cfg RunConfig, fingerprint string) error {
	if !state.PagesCounted {
		pages, err := e.collab.Pages.CountPages(ctx, *doc)
		if err != nil {
			return fmt.Errorf("count pages: %w", err)
		}
		groups := GroupCount(pages, cfg.GroupSize)
		if err := state.SetPageCount(pages, groups, fingerprint); err != nil {
			return err
		}
		if err := e.store.Save(state); err != nil {
			return err
		}
		doc.TotalPages = pages
		e.logger.Info("counted pages", "document", doc.Name, "pages", pages, "groups", groups)
	}

	artifact, err := retry.Do(ctx, e.retry, "init toc", func(ctx context.Context) (json.RawMessage, error) {
		return e.collab.TOC.InitTOC(ctx, *doc, cfg)
	})
	if err != nil {
		return fmt.Errorf("init toc: %w", err)
	}
	state.InitArtifact = artifact
	doc.InitArtifact = artifact
	return nil
}

func (e *Engine) verify(ctx context.Context, state *checkpoint.State, doc Document, cfg RunConfig) (json.RawMessage, error) {
	segments := make([]json.RawMessage, len(state.Segments))
	copy(segments, state.Segments)

	structure, err := retry.Do(ctx, e.retry, "verify and merge", func(ctx context.Context) (json.RawMessage, error) {
		return e.collab.Verifier.VerifyAndMerge(ctx, doc, segments, cfg)
	})
	if err != nil {
		return nil, fmt.Errorf("verify and merge: %w", err)
	}
	return structure, nil
}

// advance moves to the next phase and persists it before any work in the
// new phase starts.
func (e *Engine) advance(state *checkpoint.State, next checkpoint.Phase, logger *slog.Logger) error {
	prev := state.Phase
	if err := state.Advance(next); err != nil {
		return err
	}
	if err := e.store.Save(state); err != nil {
		return err
	}
	logger.Info("phase complete", "from", prev.DisplayName(), "to", next.DisplayName())
	e.report(state)
	return nil
}

func (e *Engine) report(state *checkpoint.State) {
	if e.progress == nil {
		return
	}
	e.progress(Progress{
		Document:    state.Document,
		Phase:       state.Phase,
		DoneGroups:  len(state.CompletedGroups),
		TotalGroups: state.TotalGroups,
	})
}

// IsResumable reports whether err leaves a checkpoint that a later run can
// continue from. Corrupt or mismatched checkpoints need operator action.
func IsResumable(err error) bool {
	var corrupt *checkpoint.CorruptStateError
	var mismatch *ConfigMismatchError
	switch {
	case err == nil:
		return false
	case errors.As(err, &corrupt), errors.As(err, &mismatch), errors.Is(err, checkpoint.ErrLocked):
		return false
	}
	return true
}
