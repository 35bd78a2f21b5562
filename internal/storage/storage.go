// Package storage defines the interface for card storage backends.
package storage

import (
	"context"

	"github.com/iim0663418/cardstore/internal/types"
)

// Storage defines the interface for card storage backends.
// All calls are atomic; concurrent writers are serialized by the backend
// (sqlite busy-timeout) or the caller (store-directory lock).
type Storage interface {
	// Cards
	GetCard(ctx context.Context, id string) (*types.CardRecord, error) // nil, nil when absent
	PutCard(ctx context.Context, card *types.CardRecord) error         // insert or replace
	DeleteCard(ctx context.Context, id string) error
	ListCards(ctx context.Context) ([]*types.CardRecord, error)

	// Fingerprint index. Fingerprints are recomputed on every put so the
	// index always reflects current normalization rules.
	FindByFingerprint(ctx context.Context, fp string) ([]*types.CardRecord, error)

	// Version history
	GetVersionHistory(ctx context.Context, id string) (types.VersionHistory, error)
	SaveVersionHistory(ctx context.Context, id string, history types.VersionHistory) error

	// Metadata (for internal state like last import hashes)
	SetMetadata(ctx context.Context, key, value string) error
	GetMetadata(ctx context.Context, key string) (string, error)

	// Lifecycle
	Close() error
	Path() string
}
