// Package cardstore provides a minimal public API for embedding the card
// engine in other Go programs.
//
// Most callers should use the card CLI. This package exports the essential
// types and constructors for programmatic access to the store and the
// identity/versioning/transfer engine.
package cardstore

import (
	"os"
	"path/filepath"

	"github.com/iim0663418/cardstore/internal/dedup"
	"github.com/iim0663418/cardstore/internal/storage"
	"github.com/iim0663418/cardstore/internal/storage/memory"
	"github.com/iim0663418/cardstore/internal/storage/sqlite"
	"github.com/iim0663418/cardstore/internal/transfer"
	"github.com/iim0663418/cardstore/internal/types"
	"github.com/iim0663418/cardstore/internal/version"
)

// Core types for working with cards
type (
	CardRecord       = types.CardRecord
	CardKind         = types.CardKind
	VersionSnapshot  = types.VersionSnapshot
	VersionHistory   = types.VersionHistory
	Conflict         = types.Conflict
	ConflictKind     = types.ConflictKind
	DuplicateAction  = types.DuplicateAction
	ImportResolution = types.ImportResolution
	MergeStrategy    = types.MergeStrategy
	TransferPackage  = types.TransferPackage
	ExportOptions    = transfer.ExportOptions
)

// Card kind constants
const (
	KindPersonal          = types.KindPersonal
	KindPersonalBilingual = types.KindPersonalBilingual
	KindOfficial          = types.KindOfficial
	KindOfficialBilingual = types.KindOfficialBilingual
	KindEvent             = types.KindEvent
	KindEventBilingual    = types.KindEventBilingual
)

// Storage provides the minimal interface for embedding
type Storage = storage.Storage

// Engine bundles the three engine components over one store
type Engine struct {
	Store     Storage
	Versions  *version.Manager
	Detector  *dedup.Detector
	Transfers *transfer.Manager
}

// NewEngine wires the engine components over a store with default settings
func NewEngine(store Storage) *Engine {
	versions := version.NewManager(store, types.DefaultHistoryCap)
	return &Engine{
		Store:     store,
		Versions:  versions,
		Detector:  dedup.NewDetector(store, versions),
		Transfers: transfer.NewManager(store, versions, transfer.MinKDFIterations),
	}
}

// NewSQLiteStorage opens a card SQLite database for programmatic access
func NewSQLiteStorage(dbPath string) (Storage, error) {
	return sqlite.New(dbPath)
}

// NewMemoryStorage creates an in-memory store, useful for tests
func NewMemoryStorage() Storage {
	return memory.New()
}

// FindStorePath discovers the card database path using the standard order:
//  1. $CARDSTORE_DB environment variable
//  2. .cardstore/*.db in current directory or ancestors
//  3. ~/.cardstore/cards.db (fallback, only if it exists)
//
// Returns empty string if nothing is found.
func FindStorePath() string {
	if envDB := os.Getenv("CARDSTORE_DB"); envDB != "" {
		return envDB
	}

	if found := findStoreInTree(); found != "" {
		return found
	}

	if home, err := os.UserHomeDir(); err == nil {
		defaultDB := filepath.Join(home, ".cardstore", "cards.db")
		if _, err := os.Stat(defaultDB); err == nil {
			return defaultDB
		}
	}

	return ""
}

// findStoreInTree walks up the directory tree looking for .cardstore/*.db
func findStoreInTree() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		storeDir := filepath.Join(dir, ".cardstore")
		if info, err := os.Stat(storeDir); err == nil && info.IsDir() {
			matches, err := filepath.Glob(filepath.Join(storeDir, "*.db"))
			if err == nil && len(matches) > 0 {
				return matches[0]
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}
