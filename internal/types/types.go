// Package types defines core data structures for the cardstore engine.
package types

import (
	"fmt"
	"time"
)

// CardRecord represents one stored business card
type CardRecord struct {
	ID         string            `json:"id"`
	Kind       CardKind          `json:"kind"`
	Fields     map[string]string `json:"fields"`
	CreatedAt  time.Time         `json:"created_at"`
	ModifiedAt time.Time         `json:"modified_at"`
	Version    string            `json:"version"`
}

// Validate checks if the record has valid field values
func (c *CardRecord) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("id is required")
	}
	if !c.Kind.IsValid() {
		return fmt.Errorf("invalid card kind: %s", c.Kind)
	}
	if c.Fields["name"] == "" {
		return fmt.Errorf("name field is required")
	}
	return nil
}

// Clone returns a deep copy of the record
func (c *CardRecord) Clone() *CardRecord {
	clone := *c
	clone.Fields = CopyFields(c.Fields)
	return &clone
}

// CopyFields returns a copy of a field map
func CopyFields(fields map[string]string) map[string]string {
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}

// CardKind identifies the layout template a card was created from
type CardKind string

const (
	KindPersonal          CardKind = "personal"
	KindPersonalBilingual CardKind = "personal-bilingual"
	KindOfficial          CardKind = "official"
	KindOfficialBilingual CardKind = "official-bilingual"
	KindEvent             CardKind = "event"
	KindEventBilingual    CardKind = "event-bilingual"
)

// IsValid checks if the card kind value is valid
func (k CardKind) IsValid() bool {
	switch k {
	case KindPersonal, KindPersonalBilingual, KindOfficial, KindOfficialBilingual, KindEvent, KindEventBilingual:
		return true
	}
	return false
}

// VersionSnapshot is an immutable, checksummed copy of a card's fields at one version
type VersionSnapshot struct {
	Version           string            `json:"version"`
	Data              map[string]string `json:"data"`
	ChangeDescription string            `json:"change_description"`
	Timestamp         time.Time         `json:"timestamp"`
	Checksum          string            `json:"checksum"`
}

// VersionHistory is an ordered (oldest to newest) list of snapshots for one card
type VersionHistory []VersionSnapshot

// DefaultHistoryCap bounds how many snapshots are retained per card.
// Appending beyond the cap evicts the oldest entries first.
const DefaultHistoryCap = 50

// ConflictKind classifies how an incoming record relates to an existing one
type ConflictKind string

const (
	ConflictDuplicateID  ConflictKind = "duplicate_id"
	ConflictNewerVersion ConflictKind = "newer_version"
	ConflictOlderVersion ConflictKind = "older_version"
	ConflictDataMismatch ConflictKind = "data_mismatch"
)

// IsValid checks if the conflict kind value is valid
func (k ConflictKind) IsValid() bool {
	switch k {
	case ConflictDuplicateID, ConflictNewerVersion, ConflictOlderVersion, ConflictDataMismatch:
		return true
	}
	return false
}

// Conflict pairs an incoming record with the existing record it collides with.
// Conflicts are transient: produced and consumed within a single import.
type Conflict struct {
	Incoming *CardRecord  `json:"incoming"`
	Existing *CardRecord  `json:"existing"`
	Kind     ConflictKind `json:"kind"`
}

// DuplicateAction is the caller's choice for handling a detected duplicate
type DuplicateAction string

const (
	ActionSkip      DuplicateAction = "skip"
	ActionOverwrite DuplicateAction = "overwrite"
	ActionVersion   DuplicateAction = "version"
)

// IsValid checks if the duplicate action value is valid
func (a DuplicateAction) IsValid() bool {
	switch a {
	case ActionSkip, ActionOverwrite, ActionVersion:
		return true
	}
	return false
}

// ImportResolution is the caller's choice for resolving one import conflict
type ImportResolution string

const (
	ResolveSkip     ImportResolution = "skip"
	ResolveReplace  ImportResolution = "replace"
	ResolveKeepBoth ImportResolution = "keep_both"
	ResolveMerge    ImportResolution = "merge"
	ResolveVersion  ImportResolution = "version"
)

// IsValid checks if the import resolution value is valid
func (r ImportResolution) IsValid() bool {
	switch r {
	case ResolveSkip, ResolveReplace, ResolveKeepBoth, ResolveMerge, ResolveVersion:
		return true
	}
	return false
}

// MergeStrategy selects how two divergent snapshots of one card are reconciled
type MergeStrategy string

const (
	StrategyLatest MergeStrategy = "latest"
	StrategyMerge  MergeStrategy = "merge"
)

// IsValid checks if the merge strategy value is valid
func (s MergeStrategy) IsValid() bool {
	switch s {
	case StrategyLatest, StrategyMerge:
		return true
	}
	return false
}

// VersionBump selects which part of a MAJOR.MINOR version to increment
type VersionBump string

const (
	BumpMajor VersionBump = "major"
	BumpMinor VersionBump = "minor"
)

// IsValid checks if the version bump value is valid
func (b VersionBump) IsValid() bool {
	switch b {
	case BumpMajor, BumpMinor:
		return true
	}
	return false
}

// TransferPackage is the plaintext wire format for cross-device record transfer
type TransferPackage struct {
	Version   string        `json:"version"`
	Timestamp time.Time     `json:"timestamp"`
	Records   []*CardRecord `json:"records"`
}

// TransferFormatVersion is the package schema version written on export
const TransferFormatVersion = "1.0"

// EncryptedEnvelope wraps a serialized TransferPackage under password-based
// authenticated encryption. Salt and IV are freshly randomized per export.
type EncryptedEnvelope struct {
	Ciphertext []byte `json:"ciphertext"`
	Salt       []byte `json:"salt"`
	IV         []byte `json:"iv"`
	Algorithm  string `json:"algorithm"`
	Iterations int    `json:"iterations"`
}

// EnvelopeAlgorithm is the only cipher the engine emits or accepts
const EnvelopeAlgorithm = "AES-GCM"

// Statistics provides aggregate duplicate metrics for the store
type Statistics struct {
	TotalCards         int `json:"total_cards"`
	UniqueFingerprints int `json:"unique_fingerprints"`
	DuplicateGroups    int `json:"duplicate_groups"`
	DuplicateCards     int `json:"duplicate_cards"`
}
