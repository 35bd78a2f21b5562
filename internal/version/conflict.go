package version

import (
	"context"
	"fmt"

	"github.com/iim0663418/cardstore/internal/types"
)

// Resolution reports the outcome of a two-way snapshot conflict
type Resolution struct {
	Strategy types.MergeStrategy   `json:"strategy"`
	Winner   string                `json:"winner"` // "local", "remote", or "merged"
	Snapshot types.VersionSnapshot `json:"snapshot"`
}

// ResolveConflict reconciles two divergent snapshots of one card.
//
// StrategyLatest picks the snapshot with the more recent timestamp outright.
// StrategyMerge unions the field maps with local values taking precedence on
// key collisions; fields present only in remote are added. Local precedence
// is kept even when remote is newer (see DESIGN.md).
//
// Either strategy appends a history entry whose change description states a
// conflict was resolved, so the history stays searchable for conflict events.
// Snapshots failing integrity validation are rejected as merge input.
func (m *Manager) ResolveConflict(ctx context.Context, cardID string, local, remote types.VersionSnapshot, strategy types.MergeStrategy) (*Resolution, error) {
	if !ValidateIntegrity(local) {
		return nil, fmt.Errorf("local snapshot for %s failed integrity check", cardID)
	}
	if !ValidateIntegrity(remote) {
		return nil, fmt.Errorf("remote snapshot for %s failed integrity check", cardID)
	}

	var res Resolution
	switch strategy {
	case types.StrategyLatest:
		res = resolveLatest(local, remote)
	case types.StrategyMerge:
		res = resolveMerge(local, remote)
	default:
		return nil, fmt.Errorf("unknown merge strategy: %s", strategy)
	}

	desc := fmt.Sprintf("conflict resolved (%s): %s wins", strategy, res.Winner)
	snap, err := m.AppendHistory(ctx, cardID, res.Snapshot.Version, res.Snapshot.Data, desc)
	if err != nil {
		return nil, err
	}
	res.Snapshot = snap
	return &res, nil
}

func resolveLatest(local, remote types.VersionSnapshot) Resolution {
	if remote.Timestamp.After(local.Timestamp) {
		return Resolution{Strategy: types.StrategyLatest, Winner: "remote", Snapshot: remote}
	}
	return Resolution{Strategy: types.StrategyLatest, Winner: "local", Snapshot: local}
}

func resolveMerge(local, remote types.VersionSnapshot) Resolution {
	merged := types.CopyFields(remote.Data)
	for k, v := range local.Data {
		merged[k] = v
	}

	ver := local.Version
	if remote.Timestamp.After(local.Timestamp) {
		ver = remote.Version
	}

	snap := types.VersionSnapshot{
		Version:  ver,
		Data:     merged,
		Checksum: Checksum(merged),
	}
	return Resolution{Strategy: types.StrategyMerge, Winner: "merged", Snapshot: snap}
}
