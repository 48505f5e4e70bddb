package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/itsmostafa/resilindex/internal/checkpoint"
	"github.com/itsmostafa/resilindex/internal/retry"
)

// GroupCount returns the number of groups of size pages needed to cover
// total pages.
func GroupCount(total, size int) int {
	if total <= 0 || size <= 0 {
		return 0
	}
	return (total + size - 1) / size
}

// GroupPages returns the inclusive 1-based page range covered by group id.
func GroupPages(id GroupID, size, total int) (first, last int, err error) {
	idx, err := id.Index()
	if err != nil {
		return 0, 0, err
	}
	if size <= 0 || idx > GroupCount(total, size) {
		return 0, 0, fmt.Errorf("group %s outside 1..%d", id, GroupCount(total, size))
	}
	first = (idx-1)*size + 1
	last = min(idx*size, total)
	return first, last, nil
}

// extractGroups runs every outstanding group in ascending order, saving
// after each one. Completed groups are skipped without a call.
func (e *Engine) extractGroups(ctx context.Context, state *checkpoint.State, doc Document, cfg RunConfig) error {
	for i := 1; i <= state.TotalGroups; i++ {
		id := NewGroupID(i)
		if state.IsCompleted(id.String()) {
			e.logger.Debug("skipping completed group", "group", i)
			continue
		}

		if err := e.pacer.Wait(ctx); err != nil {
			return fmt.Errorf("waiting to extract group %s: %w", id, err)
		}

		// Mark the group before calling out so an interrupted call is visible on resume
		state.InFlight = id.String()
		if err := e.store.Save(state); err != nil {
			return err
		}

		e.logger.Info("extracting group", "group", i, "total", state.TotalGroups)
		segment, err := retry.Do(ctx, e.retry, "extract group "+id.String(),
			func(ctx context.Context) (json.RawMessage, error) {
				return e.collab.Groups.ExtractGroup(ctx, doc, id, cfg)
			})
		if err != nil {
			return fmt.Errorf("extract group %s: %w", id, err)
		}

		if err := state.RecordGroup(id.String(), segment); err != nil {
			return err
		}
		if err := e.store.Save(state); err != nil {
			return err
		}
		e.report(state)
	}
	return nil
}
