// Package transfer packages cards for transport between devices and unpacks
// incoming transfer files, orchestrating duplicate detection, conflict
// classification, and resolution application on import.
package transfer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/iim0663418/cardstore/internal/fingerprint"
	"github.com/iim0663418/cardstore/internal/storage"
	"github.com/iim0663418/cardstore/internal/types"
	"github.com/iim0663418/cardstore/internal/version"
)

// Manager orchestrates export and import of transfer packages
type Manager struct {
	store         storage.Storage
	versions      *version.Manager
	kdfIterations int
}

// NewManager creates a transfer manager. kdfIterations below the minimum
// are raised to it at seal time.
func NewManager(store storage.Storage, versions *version.Manager, kdfIterations int) *Manager {
	if kdfIterations < MinKDFIterations {
		kdfIterations = MinKDFIterations
	}
	return &Manager{store: store, versions: versions, kdfIterations: kdfIterations}
}

// ExportOptions configures an export
type ExportOptions struct {
	CardIDs  []string // Explicit selection; empty means the entire store
	Password string   // Non-empty enables encryption
}

// Export collects records, builds a transfer package, and serializes it.
// With a password the serialized package is sealed in an encrypted envelope.
func (m *Manager) Export(ctx context.Context, opts ExportOptions) ([]byte, error) {
	var records []*types.CardRecord
	if len(opts.CardIDs) == 0 {
		all, err := m.store.ListCards(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to collect records: %w", err)
		}
		records = all
	} else {
		for _, id := range opts.CardIDs {
			card, err := m.store.GetCard(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("failed to load card %s: %w", id, err)
			}
			if card == nil {
				return nil, fmt.Errorf("export card %s: %w", id, types.ErrNotFound)
			}
			records = append(records, card)
		}
	}

	pkg := types.TransferPackage{
		Version:   types.TransferFormatVersion,
		Timestamp: time.Now().UTC(),
		Records:   records,
	}
	plaintext, err := json.Marshal(pkg)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize package: %w", err)
	}

	if opts.Password == "" {
		return plaintext, nil
	}

	env, err := Seal(plaintext, opts.Password, m.kdfIterations)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize envelope: %w", err)
	}
	return data, nil
}

// ImportResult is returned by Import. When NeedsResolution is set, nothing
// has been persisted; the caller must decide resolutions and call
// ResolveAndImport with the pending data.
type ImportResult struct {
	NeedsResolution bool             `json:"needs_resolution"`
	Conflicts       []types.Conflict `json:"conflicts,omitempty"`
	Pending         *PendingImport   `json:"-"`
	Imported        int              `json:"imported"`
	Total           int              `json:"total"`
}

// PendingImport carries a validated package whose conflicts await resolution
type PendingImport struct {
	Package   *types.TransferPackage `json:"package"`
	Conflicts []types.Conflict       `json:"conflicts"`
}

// Import reads transfer bytes, decrypts when necessary, validates the
// package schema, and detects conflicts. Conflict-free imports persist
// immediately; otherwise nothing is written and the caller gets the pending
// data back. Malformed packages are rejected atomically.
func (m *Manager) Import(ctx context.Context, data []byte, password string) (*ImportResult, error) {
	plaintext, err := m.unwrap(data, password)
	if err != nil {
		return nil, err
	}

	pkg, err := parsePackage(plaintext)
	if err != nil {
		return nil, err
	}

	conflicts, err := m.DetectConflicts(ctx, pkg.Records)
	if err != nil {
		return nil, err
	}

	if len(conflicts) > 0 {
		return &ImportResult{
			NeedsResolution: true,
			Conflicts:       conflicts,
			Pending:         &PendingImport{Package: pkg, Conflicts: conflicts},
			Total:           len(pkg.Records),
		}, nil
	}

	for _, rec := range pkg.Records {
		if err := m.persistIncoming(ctx, rec, "imported"); err != nil {
			return nil, err
		}
	}

	// The audit hash is advisory; the records are already persisted, so a
	// metadata write failure must not report the import as failed
	sum := sha256.Sum256(plaintext)
	_ = m.store.SetMetadata(ctx, "last_import_hash", hex.EncodeToString(sum[:]))

	return &ImportResult{Imported: len(pkg.Records), Total: len(pkg.Records)}, nil
}

// unwrap decrypts the payload when it looks encrypted. An encrypted payload
// without a password fails with ErrPasswordRequired rather than guessing.
func (m *Manager) unwrap(data []byte, password string) ([]byte, error) {
	var env types.EncryptedEnvelope
	if err := json.Unmarshal(data, &env); err == nil && env.Algorithm != "" {
		if password == "" {
			return nil, types.ErrPasswordRequired
		}
		return Open(&env, password)
	}
	return data, nil
}

// parsePackage validates the transfer package schema: version present,
// records a list, every record carrying id, kind, and a name field.
func parsePackage(plaintext []byte) (*types.TransferPackage, error) {
	var pkg types.TransferPackage
	if err := json.Unmarshal(plaintext, &pkg); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidPackage, err)
	}
	if pkg.Version == "" {
		return nil, fmt.Errorf("%w: missing version", types.ErrInvalidPackage)
	}
	if pkg.Records == nil {
		return nil, fmt.Errorf("%w: missing records", types.ErrInvalidPackage)
	}
	for i, rec := range pkg.Records {
		if rec == nil {
			return nil, fmt.Errorf("%w: record %d is null", types.ErrInvalidPackage, i)
		}
		if err := rec.Validate(); err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", types.ErrInvalidPackage, i, err)
		}
	}
	return &pkg, nil
}

// DetectConflicts pairs each incoming record with an existing record,
// matching by ID first and then by normalized name+email identity.
func (m *Manager) DetectConflicts(ctx context.Context, records []*types.CardRecord) ([]types.Conflict, error) {
	var conflicts []types.Conflict
	for _, rec := range records {
		existing, err := m.store.GetCard(ctx, rec.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to look up card %s: %w", rec.ID, err)
		}
		if existing == nil {
			existing, err = m.findByIdentity(ctx, rec)
			if err != nil {
				return nil, err
			}
		}
		if existing == nil {
			continue
		}
		conflicts = append(conflicts, types.Conflict{
			Incoming: rec,
			Existing: existing,
			Kind:     classify(rec, existing),
		})
	}
	return conflicts, nil
}

func (m *Manager) findByIdentity(ctx context.Context, rec *types.CardRecord) (*types.CardRecord, error) {
	fp := fingerprint.Generate(rec.Fields)
	if fp.Degraded {
		return nil, nil
	}
	matches, err := m.store.FindByFingerprint(ctx, fp.Value)
	if err != nil {
		return nil, fmt.Errorf("fingerprint lookup failed: %w", err)
	}
	for _, match := range matches {
		if match.ID != rec.ID {
			return match, nil
		}
	}
	return nil, nil
}

// classify compares IDs first, then modification timestamps. An ID collision
// is duplicate_id regardless of content; identity matches under different IDs
// are strictly newer or older by timestamp, with data_mismatch reserved for
// same-instant divergence.
func classify(incoming, existing *types.CardRecord) types.ConflictKind {
	switch {
	case incoming.ID == existing.ID:
		return types.ConflictDuplicateID
	case incoming.ModifiedAt.After(existing.ModifiedAt):
		return types.ConflictNewerVersion
	case incoming.ModifiedAt.Before(existing.ModifiedAt):
		return types.ConflictOlderVersion
	case cmp.Equal(incoming.Fields, existing.Fields):
		return types.ConflictDuplicateID
	default:
		return types.ConflictDataMismatch
	}
}

// persistIncoming writes an incoming record and its initial history entry
func (m *Manager) persistIncoming(ctx context.Context, rec *types.CardRecord, changeDescription string) error {
	card := rec.Clone()
	now := time.Now().UTC()
	if card.CreatedAt.IsZero() {
		card.CreatedAt = now
	}
	if card.ModifiedAt.IsZero() {
		card.ModifiedAt = now
	}
	if card.Version == "" {
		card.Version = version.InitialVersion
	}
	if err := m.store.PutCard(ctx, card); err != nil {
		return fmt.Errorf("failed to persist card %s: %w", card.ID, err)
	}
	if _, err := m.versions.AppendHistory(ctx, card.ID, card.Version, card.Fields, changeDescription); err != nil {
		return err
	}
	return nil
}
