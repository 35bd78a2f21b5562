package transfer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/iim0663418/cardstore/internal/dedup"
	"github.com/iim0663418/cardstore/internal/types"
	"github.com/iim0663418/cardstore/internal/version"
)

// Outcome reports the result of applying one conflict resolution. Outcomes
// are always reported per conflict, never collapsed into one aggregate flag.
type Outcome struct {
	Index      int                    `json:"index"`
	Resolution types.ImportResolution `json:"resolution"`
	CardID     string                 `json:"card_id,omitempty"`
	Applied    bool                   `json:"applied"`
	Skipped    bool                   `json:"skipped,omitempty"`
	Error      string                 `json:"error,omitempty"`
}

// ApplyResult reports per-conflict outcomes plus the fate of the
// non-conflicted remainder of the package
type ApplyResult struct {
	Outcomes []Outcome `json:"outcomes"`
	Imported int       `json:"imported"` // Non-conflicted records persisted
	Applied  int       `json:"applied"`
	Failed   int       `json:"failed"`
	Skipped  int       `json:"skipped"`
}

// ResolveAndImport applies caller-chosen resolutions to a pending import.
// Resolutions align positionally with the pending conflicts; a conflict left
// without a resolution fails the whole call before anything is written.
//
// skip drops the incoming record. replace deletes the existing record and
// inserts the incoming one. keep_both assigns the incoming record a fresh ID.
// merge keeps the existing record, overwriting its fields in place only when
// the incoming record is strictly newer. version hands the pair to the
// duplicate detector for a snapshot-and-bump update.
//
// Each resolution is applied independently; a failure applying one is
// reported in its outcome and does not abort the siblings.
func (m *Manager) ResolveAndImport(ctx context.Context, pending *PendingImport, resolutions []types.ImportResolution) (*ApplyResult, error) {
	if pending == nil || pending.Package == nil {
		return nil, fmt.Errorf("%w: no pending import", types.ErrInvalidPackage)
	}
	if len(resolutions) < len(pending.Conflicts) {
		return nil, fmt.Errorf("%w: %d conflicts, %d resolutions", types.ErrMissingResolution, len(pending.Conflicts), len(resolutions))
	}
	for i, r := range resolutions[:len(pending.Conflicts)] {
		if !r.IsValid() {
			return nil, fmt.Errorf("%w: resolution %d: %q", types.ErrMissingResolution, i, r)
		}
	}

	result := &ApplyResult{}
	conflicted := make(map[string]bool, len(pending.Conflicts))
	for _, c := range pending.Conflicts {
		conflicted[c.Incoming.ID] = true
	}

	for i, conflict := range pending.Conflicts {
		outcome := m.applyResolution(ctx, conflict, resolutions[i])
		outcome.Index = i
		switch {
		case outcome.Skipped:
			result.Skipped++
		case outcome.Applied:
			result.Applied++
		default:
			result.Failed++
		}
		result.Outcomes = append(result.Outcomes, outcome)
	}

	for _, rec := range pending.Package.Records {
		if conflicted[rec.ID] {
			continue
		}
		if err := m.persistIncoming(ctx, rec, "imported"); err != nil {
			return result, err
		}
		result.Imported++
	}

	return result, nil
}

func (m *Manager) applyResolution(ctx context.Context, conflict types.Conflict, resolution types.ImportResolution) Outcome {
	outcome := Outcome{Resolution: resolution, CardID: conflict.Incoming.ID}

	var err error
	switch resolution {
	case types.ResolveSkip:
		outcome.Skipped = true
		outcome.CardID = conflict.Existing.ID
		return outcome

	case types.ResolveReplace:
		err = m.applyReplace(ctx, conflict)

	case types.ResolveKeepBoth:
		renamed := conflict.Incoming.Clone()
		renamed.ID = uuid.NewString()
		outcome.CardID = renamed.ID
		err = m.persistIncoming(ctx, renamed, "imported (kept alongside "+conflict.Existing.ID+")")

	case types.ResolveMerge:
		outcome.CardID = conflict.Existing.ID
		err = m.applyMerge(ctx, conflict)

	case types.ResolveVersion:
		outcome.CardID = conflict.Existing.ID
		detector := dedup.NewDetector(m.store, m.versions)
		_, err = detector.Resolve(ctx, conflict.Incoming, types.ActionVersion, conflict.Existing.ID)
	}

	if err != nil {
		outcome.Error = err.Error()
		return outcome
	}
	outcome.Applied = true
	return outcome
}

func (m *Manager) applyReplace(ctx context.Context, conflict types.Conflict) error {
	if conflict.Existing.ID != conflict.Incoming.ID {
		if err := m.store.DeleteCard(ctx, conflict.Existing.ID); err != nil {
			return fmt.Errorf("failed to delete replaced card %s: %w", conflict.Existing.ID, err)
		}
	}
	return m.persistIncoming(ctx, conflict.Incoming, "imported (replaced "+conflict.Existing.ID+")")
}

// applyMerge keeps the existing record. Fields are overwritten in place only
// when the incoming copy is strictly newer by timestamp.
func (m *Manager) applyMerge(ctx context.Context, conflict types.Conflict) error {
	if !conflict.Incoming.ModifiedAt.After(conflict.Existing.ModifiedAt) {
		return nil
	}

	existing, err := m.store.GetCard(ctx, conflict.Existing.ID)
	if err != nil {
		return fmt.Errorf("failed to load card %s: %w", conflict.Existing.ID, err)
	}
	if existing == nil {
		return fmt.Errorf("merge target %s: %w", conflict.Existing.ID, types.ErrNotFound)
	}

	existing.Fields = types.CopyFields(conflict.Incoming.Fields)
	existing.Version = version.Increment(existing.Version, types.BumpMinor)
	existing.ModifiedAt = time.Now().UTC()

	if _, err := m.versions.AppendHistory(ctx, existing.ID, existing.Version, existing.Fields, "conflict resolved (merge): incoming newer, fields replaced"); err != nil {
		return err
	}
	if err := m.store.PutCard(ctx, existing); err != nil {
		return fmt.Errorf("failed to update card %s: %w", existing.ID, err)
	}
	return nil
}
