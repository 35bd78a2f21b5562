// Package version maintains the bounded, checksummed snapshot history of each
// card and resolves two-way conflicts between divergent snapshots.
package version

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/iim0663418/cardstore/internal/storage"
	"github.com/iim0663418/cardstore/internal/types"
)

// InitialVersion is assigned when no prior version exists or the prior
// version is malformed. Malformed input is treated as "no prior version",
// never as an error.
const InitialVersion = "1.0"

// Manager maintains version histories for cards in a store
type Manager struct {
	store      storage.Storage
	historyCap int
}

// NewManager creates a version manager with the given history cap.
// A cap of zero or less falls back to the default.
func NewManager(store storage.Storage, historyCap int) *Manager {
	if historyCap <= 0 {
		historyCap = types.DefaultHistoryCap
	}
	return &Manager{store: store, historyCap: historyCap}
}

// Increment bumps a MAJOR.MINOR version string. Major bumps zero the minor
// part ("1.2" -> "2.0"); minor bumps increment it ("1.2" -> "1.3").
// Missing or malformed input resets to InitialVersion.
func Increment(current string, bump types.VersionBump) string {
	major, minor, ok := parseVersion(current)
	if !ok {
		return InitialVersion
	}
	switch bump {
	case types.BumpMajor:
		return fmt.Sprintf("%d.0", major+1)
	case types.BumpMinor:
		return fmt.Sprintf("%d.%d", major, minor+1)
	}
	return InitialVersion
}

func parseVersion(v string) (major, minor int, ok bool) {
	parts := strings.Split(strings.TrimSpace(v), ".")
	if len(parts) != 2 {
		return 0, 0, false
	}
	major, err := strconv.Atoi(parts[0])
	if err != nil || major < 0 {
		return 0, 0, false
	}
	minor, err = strconv.Atoi(parts[1])
	if err != nil || minor < 0 {
		return 0, 0, false
	}
	return major, minor, true
}

// Checksum computes the integrity digest over the canonical serialization of
// a snapshot's data. Key order is sorted so formatting variants of the same
// data always produce the same digest.
func Checksum(data map[string]string) string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		// JSON-encode each element so delimiter characters in values
		// cannot collide with the framing
		kb, _ := json.Marshal(k)
		vb, _ := json.Marshal(data[k])
		b.Write(kb)
		b.WriteByte(':')
		b.Write(vb)
		b.WriteByte('\n')
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// NewSnapshot copies fields, computes the checksum, and stamps the timestamp.
// Snapshotting identical fields twice yields identical checksums.
func NewSnapshot(version string, fields map[string]string, changeDescription string) types.VersionSnapshot {
	data := types.CopyFields(fields)
	return types.VersionSnapshot{
		Version:           version,
		Data:              data,
		ChangeDescription: changeDescription,
		Timestamp:         time.Now().UTC(),
		Checksum:          Checksum(data),
	}
}

// ValidateIntegrity recomputes a snapshot's checksum and compares. It returns
// false on mismatch or a missing checksum and never panics, since it must be
// safe to run on arbitrary stored data.
func ValidateIntegrity(snap types.VersionSnapshot) bool {
	if snap.Checksum == "" {
		return false
	}
	return Checksum(snap.Data) == snap.Checksum
}

// AppendHistory loads a card's history, appends a snapshot of the given
// fields, evicts the oldest entries beyond the cap, and persists.
func (m *Manager) AppendHistory(ctx context.Context, cardID, version string, fields map[string]string, changeDescription string) (types.VersionSnapshot, error) {
	history, err := m.store.GetVersionHistory(ctx, cardID)
	if err != nil {
		return types.VersionSnapshot{}, fmt.Errorf("failed to load history for %s: %w", cardID, err)
	}

	snap := NewSnapshot(version, fields, changeDescription)
	history = append(history, snap)
	if len(history) > m.historyCap {
		history = history[len(history)-m.historyCap:]
	}

	if err := m.store.SaveVersionHistory(ctx, cardID, history); err != nil {
		return types.VersionSnapshot{}, fmt.Errorf("failed to save history for %s: %w", cardID, err)
	}
	return snap, nil
}

// History returns a card's snapshot history, oldest first
func (m *Manager) History(ctx context.Context, cardID string) (types.VersionHistory, error) {
	return m.store.GetVersionHistory(ctx, cardID)
}
