package dedup

import (
	"context"
	"fmt"
	"sort"

	"github.com/iim0663418/cardstore/internal/fingerprint"
	"github.com/iim0663418/cardstore/internal/types"
)

// DefaultMaxDuplicates bounds deletions per fingerprint group per run.
// The cap limits accidental-data-loss blast radius, and it is per group,
// not per run (see DESIGN.md).
const DefaultMaxDuplicates = 10

// CleanupOptions configures a duplicate cleanup run
type CleanupOptions struct {
	DryRun        bool // Report the plan without mutating the store
	MaxDuplicates int  // Max deletions per fingerprint group (0 = default)
}

// GroupPlan is the cleanup decision for one fingerprint group
type GroupPlan struct {
	Fingerprint string   `json:"fingerprint"`
	KeepID      string   `json:"keep_id"`
	DeleteIDs   []string `json:"delete_ids"`
	Truncated   bool     `json:"truncated,omitempty"` // Group had more duplicates than the cap
}

// CleanupResult reports per-group plans, per-item failures, and aggregates
type CleanupResult struct {
	Groups  []GroupPlan       `json:"groups"`
	Deleted int               `json:"deleted"`
	Planned int               `json:"planned"`
	Errors  map[string]string `json:"errors,omitempty"` // card ID -> failure
}

// Cleanup groups all cards by fingerprint. Within each group of more than
// one card it keeps the most recently modified and deletes up to
// MaxDuplicates of the rest. Per-item delete failures are collected rather
// than aborting the run.
func (d *Detector) Cleanup(ctx context.Context, opts CleanupOptions) (*CleanupResult, error) {
	maxDup := opts.MaxDuplicates
	if maxDup <= 0 {
		maxDup = DefaultMaxDuplicates
	}

	cards, err := d.store.ListCards(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list cards: %w", err)
	}

	groups := make(map[string][]*types.CardRecord)
	for _, card := range cards {
		fp := fingerprint.Generate(card.Fields)
		if fp.Degraded {
			continue
		}
		groups[fp.Value] = append(groups[fp.Value], card)
	}

	// Stable group order for deterministic reports
	fps := make([]string, 0, len(groups))
	for fp, group := range groups {
		if len(group) > 1 {
			fps = append(fps, fp)
		}
	}
	sort.Strings(fps)

	result := &CleanupResult{Errors: make(map[string]string)}
	for _, fp := range fps {
		group := groups[fp]
		sort.Slice(group, func(i, j int) bool {
			return group[i].ModifiedAt.After(group[j].ModifiedAt)
		})

		plan := GroupPlan{Fingerprint: fp, KeepID: group[0].ID}
		candidates := group[1:]
		if len(candidates) > maxDup {
			candidates = candidates[:maxDup]
			plan.Truncated = true
		}
		for _, card := range candidates {
			plan.DeleteIDs = append(plan.DeleteIDs, card.ID)
		}
		result.Planned += len(plan.DeleteIDs)
		result.Groups = append(result.Groups, plan)

		if opts.DryRun {
			continue
		}
		for _, id := range plan.DeleteIDs {
			if err := d.store.DeleteCard(ctx, id); err != nil {
				result.Errors[id] = err.Error()
				continue
			}
			result.Deleted++
		}
	}

	if len(result.Errors) == 0 {
		result.Errors = nil
	}
	return result, nil
}
