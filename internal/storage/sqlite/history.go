package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/iim0663418/cardstore/internal/types"
)

// GetVersionHistory loads a card's snapshots ordered oldest to newest.
// A card with no history returns an empty slice, not an error.
func (s *SQLiteStorage) GetVersionHistory(ctx context.Context, id string) (types.VersionHistory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT version, data, change_description, timestamp, checksum
		FROM version_snapshots WHERE card_id = ? ORDER BY position
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get version history for %s: %w", id, err)
	}
	defer rows.Close()

	var history types.VersionHistory
	for rows.Next() {
		var snap types.VersionSnapshot
		var dataJSON string
		if err := rows.Scan(&snap.Version, &dataJSON, &snap.ChangeDescription, &snap.Timestamp, &snap.Checksum); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot for %s: %w", id, err)
		}
		if err := json.Unmarshal([]byte(dataJSON), &snap.Data); err != nil {
			return nil, fmt.Errorf("failed to unmarshal snapshot data for %s: %w", id, err)
		}
		history = append(history, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history for %s: %w", id, err)
	}
	return history, nil
}

// SaveVersionHistory replaces a card's history atomically. Positions are
// reassigned from the slice order so eviction renumbers cleanly.
func (s *SQLiteStorage) SaveVersionHistory(ctx context.Context, id string, history types.VersionHistory) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM version_snapshots WHERE card_id = ?`, id); err != nil {
		return fmt.Errorf("failed to clear history for %s: %w", id, err)
	}

	for pos, snap := range history {
		dataJSON, err := json.Marshal(snap.Data)
		if err != nil {
			return fmt.Errorf("failed to marshal snapshot data for %s: %w", id, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO version_snapshots (card_id, position, version, data, change_description, timestamp, checksum)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, id, pos, snap.Version, string(dataJSON), snap.ChangeDescription, snap.Timestamp, snap.Checksum)
		if err != nil {
			return fmt.Errorf("failed to insert snapshot %d for %s: %w", pos, id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit history for %s: %w", id, err)
	}
	return nil
}
