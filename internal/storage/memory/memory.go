// Package memory implements the storage interface using in-memory data
// structures. This is designed for --no-db mode and for tests that should
// not touch the filesystem.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/iim0663418/cardstore/internal/fingerprint"
	"github.com/iim0663418/cardstore/internal/types"
)

// MemoryStorage implements the Storage interface using in-memory maps
type MemoryStorage struct {
	mu sync.RWMutex // Protects all maps

	cards     map[string]*types.CardRecord
	byFP      map[string]map[string]bool // fingerprint -> set of card IDs
	histories map[string]types.VersionHistory
	metadata  map[string]string

	closed bool
}

// New creates a new in-memory storage backend
func New() *MemoryStorage {
	return &MemoryStorage{
		cards:     make(map[string]*types.CardRecord),
		byFP:      make(map[string]map[string]bool),
		histories: make(map[string]types.VersionHistory),
		metadata:  make(map[string]string),
	}
}

// GetCard retrieves a card by ID. Returns nil, nil when the card does not exist.
func (m *MemoryStorage) GetCard(_ context.Context, id string) (*types.CardRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	card, ok := m.cards[id]
	if !ok {
		return nil, nil
	}
	return card.Clone(), nil
}

// PutCard inserts or replaces a card and refreshes the fingerprint index
func (m *MemoryStorage) PutCard(_ context.Context, card *types.CardRecord) error {
	if err := card.Validate(); err != nil {
		return fmt.Errorf("invalid card: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.unindex(card.ID)
	m.cards[card.ID] = card.Clone()

	fp := fingerprint.Generate(card.Fields)
	if !fp.Degraded {
		if m.byFP[fp.Value] == nil {
			m.byFP[fp.Value] = make(map[string]bool)
		}
		m.byFP[fp.Value][card.ID] = true
	}
	return nil
}

// DeleteCard removes a card, its index entry, and its history
func (m *MemoryStorage) DeleteCard(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.cards[id]; !ok {
		return fmt.Errorf("delete card %s: %w", id, types.ErrNotFound)
	}
	m.unindex(id)
	delete(m.cards, id)
	delete(m.histories, id)
	return nil
}

// ListCards returns all cards ordered by ID for stable output
func (m *MemoryStorage) ListCards(_ context.Context) ([]*types.CardRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cards := make([]*types.CardRecord, 0, len(m.cards))
	for _, card := range m.cards {
		cards = append(cards, card.Clone())
	}
	sort.Slice(cards, func(i, j int) bool { return cards[i].ID < cards[j].ID })
	return cards, nil
}

// FindByFingerprint returns all cards sharing a content fingerprint,
// newest modification first.
func (m *MemoryStorage) FindByFingerprint(_ context.Context, fp string) ([]*types.CardRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := m.byFP[fp]
	if len(ids) == 0 {
		return nil, nil
	}

	cards := make([]*types.CardRecord, 0, len(ids))
	for id := range ids {
		if card, ok := m.cards[id]; ok {
			cards = append(cards, card.Clone())
		}
	}
	sort.Slice(cards, func(i, j int) bool {
		return cards[i].ModifiedAt.After(cards[j].ModifiedAt)
	})
	return cards, nil
}

// GetVersionHistory returns a copy of a card's snapshot history
func (m *MemoryStorage) GetVersionHistory(_ context.Context, id string) (types.VersionHistory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return cloneHistory(m.histories[id]), nil
}

// SaveVersionHistory replaces a card's snapshot history
func (m *MemoryStorage) SaveVersionHistory(_ context.Context, id string, history types.VersionHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.histories[id] = cloneHistory(history)
	return nil
}

// cloneHistory copies a history including each snapshot's data map, so
// callers can never mutate stored state through a returned snapshot.
func cloneHistory(history types.VersionHistory) types.VersionHistory {
	out := make(types.VersionHistory, len(history))
	for i, snap := range history {
		snap.Data = types.CopyFields(snap.Data)
		out[i] = snap
	}
	return out
}

// SetMetadata stores an internal key-value pair
func (m *MemoryStorage) SetMetadata(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metadata[key] = value
	return nil
}

// GetMetadata retrieves an internal key-value pair. Missing keys return "".
func (m *MemoryStorage) GetMetadata(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.metadata[key], nil
}

// Close marks the storage closed
func (m *MemoryStorage) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Path returns a placeholder path for the in-memory backend
func (m *MemoryStorage) Path() string {
	return ":memory:"
}

// unindex removes a card's current fingerprint index entry.
// Caller must hold the write lock.
func (m *MemoryStorage) unindex(id string) {
	old, ok := m.cards[id]
	if !ok {
		return
	}
	fp := fingerprint.Generate(old.Fields)
	if ids := m.byFP[fp.Value]; ids != nil {
		delete(ids, id)
		if len(ids) == 0 {
			delete(m.byFP, fp.Value)
		}
	}
}
