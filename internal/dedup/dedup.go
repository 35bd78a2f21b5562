// Package dedup classifies incoming cards as new or duplicate using the
// content fingerprint index, and applies the caller's chosen resolution.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/iim0663418/cardstore/internal/fingerprint"
	"github.com/iim0663418/cardstore/internal/storage"
	"github.com/iim0663418/cardstore/internal/types"
	"github.com/iim0663418/cardstore/internal/version"
)

// Detector finds and resolves duplicate cards
type Detector struct {
	store    storage.Storage
	versions *version.Manager
}

// NewDetector creates a duplicate detector backed by the given store
func NewDetector(store storage.Storage, versions *version.Manager) *Detector {
	return &Detector{store: store, versions: versions}
}

// Suggestion is one recommended-or-not action for a detected duplicate
type Suggestion struct {
	Action      types.DuplicateAction `json:"action"`
	Recommended bool                  `json:"recommended"`
}

// Detection is the result of classifying one incoming card
type Detection struct {
	IsDuplicate bool                 `json:"is_duplicate"`
	Fingerprint fingerprint.Result   `json:"-"`
	Digest      string               `json:"fingerprint"`
	Degraded    bool                 `json:"degraded,omitempty"`
	Matches     []*types.CardRecord  `json:"matches,omitempty"`
	Suggestions []Suggestion         `json:"suggestions"`
}

// Detect computes the incoming card's fingerprint and looks up existing
// records sharing it. Degraded fingerprints never match, so generation
// failure degrades to "treat as unique" rather than failing the caller.
func (d *Detector) Detect(ctx context.Context, incoming *types.CardRecord) (*Detection, error) {
	fp := fingerprint.Generate(incoming.Fields)

	det := &Detection{
		Fingerprint: fp,
		Digest:      fp.Value,
		Degraded:    fp.Degraded,
	}
	if fp.Degraded {
		det.Suggestions = suggestions(0)
		return det, nil
	}

	matches, err := d.store.FindByFingerprint(ctx, fp.Value)
	if err != nil {
		return nil, fmt.Errorf("fingerprint lookup failed: %w", err)
	}

	// The incoming card itself may already be stored
	filtered := matches[:0]
	for _, m := range matches {
		if m.ID != incoming.ID {
			filtered = append(filtered, m)
		}
	}

	det.IsDuplicate = len(filtered) > 0
	det.Matches = filtered
	det.Suggestions = suggestions(len(filtered))
	return det, nil
}

// suggestions applies the recommendation rule: skip is recommended when
// exactly one match exists; version whenever any match exists.
func suggestions(matches int) []Suggestion {
	return []Suggestion{
		{Action: types.ActionSkip, Recommended: matches == 1},
		{Action: types.ActionOverwrite, Recommended: false},
		{Action: types.ActionVersion, Recommended: matches > 0},
	}
}

// ResolveResult reports the outcome of applying a duplicate action
type ResolveResult struct {
	Action  types.DuplicateAction `json:"action"`
	CardID  string                `json:"card_id"`
	Created bool                  `json:"created"`
	Version string                `json:"version,omitempty"`
}

// Resolve applies the chosen action for an incoming duplicate.
//
// skip returns the existing card's ID without mutating the store.
// overwrite replaces the existing card's fields in place; the version manager
// still records a snapshot, so overwrite never bypasses history.
// version updates the existing card with a minor version bump when an
// existing ID is given, otherwise creates a new card.
func (d *Detector) Resolve(ctx context.Context, incoming *types.CardRecord, action types.DuplicateAction, existingID string) (*ResolveResult, error) {
	switch action {
	case types.ActionSkip:
		return d.resolveSkip(ctx, incoming, existingID)
	case types.ActionOverwrite:
		return d.resolveOverwrite(ctx, incoming, existingID)
	case types.ActionVersion:
		return d.resolveVersion(ctx, incoming, existingID)
	}
	return nil, fmt.Errorf("%w: %q", types.ErrUnknownAction, action)
}

func (d *Detector) resolveSkip(ctx context.Context, incoming *types.CardRecord, existingID string) (*ResolveResult, error) {
	if existingID == "" {
		det, err := d.Detect(ctx, incoming)
		if err != nil {
			return nil, err
		}
		if len(det.Matches) == 0 {
			return nil, fmt.Errorf("skip: no existing duplicate to keep: %w", types.ErrNotFound)
		}
		existingID = det.Matches[0].ID
	}
	return &ResolveResult{Action: types.ActionSkip, CardID: existingID}, nil
}

func (d *Detector) resolveOverwrite(ctx context.Context, incoming *types.CardRecord, existingID string) (*ResolveResult, error) {
	if existingID == "" {
		return nil, fmt.Errorf("overwrite requires an existing card id")
	}
	existing, err := d.store.GetCard(ctx, existingID)
	if err != nil {
		return nil, fmt.Errorf("failed to load card %s: %w", existingID, err)
	}
	if existing == nil {
		return nil, fmt.Errorf("overwrite target %s: %w", existingID, types.ErrNotFound)
	}

	existing.Fields = types.CopyFields(incoming.Fields)
	existing.ModifiedAt = time.Now().UTC()

	if _, err := d.versions.AppendHistory(ctx, existing.ID, existing.Version, existing.Fields, "overwritten by duplicate resolution"); err != nil {
		return nil, err
	}
	if err := d.store.PutCard(ctx, existing); err != nil {
		return nil, fmt.Errorf("failed to overwrite card %s: %w", existingID, err)
	}
	return &ResolveResult{Action: types.ActionOverwrite, CardID: existing.ID, Version: existing.Version}, nil
}

func (d *Detector) resolveVersion(ctx context.Context, incoming *types.CardRecord, existingID string) (*ResolveResult, error) {
	if existingID == "" {
		return d.createNew(ctx, incoming)
	}

	existing, err := d.store.GetCard(ctx, existingID)
	if err != nil {
		return nil, fmt.Errorf("failed to load card %s: %w", existingID, err)
	}
	if existing == nil {
		return nil, fmt.Errorf("version target %s: %w", existingID, types.ErrNotFound)
	}

	// Snapshot the prior state before replacing it, so the history shows
	// both sides of the version bump
	if _, err := d.versions.AppendHistory(ctx, existing.ID, existing.Version, existing.Fields, "backup before version update"); err != nil {
		return nil, err
	}

	existing.Fields = types.CopyFields(incoming.Fields)
	existing.Version = version.Increment(existing.Version, types.BumpMinor)
	existing.ModifiedAt = time.Now().UTC()

	if _, err := d.versions.AppendHistory(ctx, existing.ID, existing.Version, existing.Fields, "updated as new version of duplicate"); err != nil {
		return nil, err
	}
	if err := d.store.PutCard(ctx, existing); err != nil {
		return nil, fmt.Errorf("failed to update card %s: %w", existingID, err)
	}
	return &ResolveResult{Action: types.ActionVersion, CardID: existing.ID, Version: existing.Version}, nil
}

func (d *Detector) createNew(ctx context.Context, incoming *types.CardRecord) (*ResolveResult, error) {
	card := incoming.Clone()
	if card.ID == "" {
		card.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if card.CreatedAt.IsZero() {
		card.CreatedAt = now
	}
	card.ModifiedAt = now
	if card.Version == "" {
		card.Version = version.InitialVersion
	}

	if err := d.store.PutCard(ctx, card); err != nil {
		return nil, fmt.Errorf("failed to create card: %w", err)
	}
	if _, err := d.versions.AppendHistory(ctx, card.ID, card.Version, card.Fields, "created"); err != nil {
		return nil, err
	}
	return &ResolveResult{Action: types.ActionVersion, CardID: card.ID, Created: true, Version: card.Version}, nil
}

// BatchResult carries one card's detection outcome within a batch
type BatchResult struct {
	Index     int        `json:"index"`
	CardID    string     `json:"card_id,omitempty"`
	Detection *Detection `json:"detection,omitempty"`
	Err       error      `json:"-"`
	Error     string     `json:"error,omitempty"`
}

// DetectBatch applies Detect per card, isolating per-item failures so one
// bad record does not abort the batch.
func (d *Detector) DetectBatch(ctx context.Context, incoming []*types.CardRecord) []BatchResult {
	results := make([]BatchResult, 0, len(incoming))
	for i, card := range incoming {
		res := BatchResult{Index: i, CardID: card.ID}
		det, err := d.Detect(ctx, card)
		if err != nil {
			res.Err = err
			res.Error = err.Error()
		} else {
			res.Detection = det
		}
		results = append(results, res)
	}
	return results
}

// Stats aggregates duplicate metrics across the whole store
func (d *Detector) Stats(ctx context.Context) (*types.Statistics, error) {
	cards, err := d.store.ListCards(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list cards: %w", err)
	}

	groups := make(map[string]int)
	for _, card := range cards {
		fp := fingerprint.Generate(card.Fields)
		if !fp.Degraded {
			groups[fp.Value]++
		}
	}

	stats := &types.Statistics{TotalCards: len(cards), UniqueFingerprints: len(groups)}
	for _, n := range groups {
		if n > 1 {
			stats.DuplicateGroups++
			stats.DuplicateCards += n - 1
		}
	}
	return stats, nil
}
