package transfer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/iim0663418/cardstore/internal/storage"
	"github.com/iim0663418/cardstore/internal/storage/memory"
	"github.com/iim0663418/cardstore/internal/types"
	"github.com/iim0663418/cardstore/internal/version"
)

func newTestManager() (*Manager, *memory.MemoryStorage) {
	store := memory.New()
	return NewManager(store, version.NewManager(store, 10), MinKDFIterations), store
}

func importCard(id, name, email string, modified time.Time) *types.CardRecord {
	return &types.CardRecord{
		ID:         id,
		Kind:       types.KindPersonal,
		Fields:     map[string]string{"name": name, "email": email},
		CreatedAt:  modified,
		ModifiedAt: modified,
		Version:    "1.0",
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	src, srcStore := newTestManager()
	ctx := context.Background()

	now := time.Now().UTC()
	for _, card := range []*types.CardRecord{
		importCard("c1", "吳志明~Wu Chih-Ming", "wu@example.com", now),
		importCard("c2", "Chen Mei-Ling", "chen@example.com", now),
	} {
		if err := srcStore.PutCard(ctx, card); err != nil {
			t.Fatal(err)
		}
	}

	data, err := src.Export(ctx, ExportOptions{})
	if err != nil {
		t.Fatal(err)
	}

	dst, dstStore := newTestManager()
	result, err := dst.Import(ctx, data, "")
	if err != nil {
		t.Fatal(err)
	}
	if result.NeedsResolution {
		t.Fatal("fresh store cannot have conflicts")
	}
	if result.Imported != 2 || result.Total != 2 {
		t.Errorf("imported %d/%d, want 2/2", result.Imported, result.Total)
	}

	card, err := dstStore.GetCard(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if card == nil || card.Fields["name"] != "吳志明~Wu Chih-Ming" {
		t.Errorf("record did not survive transfer: %+v", card)
	}

	// Each imported record gets an initial history entry
	history, err := dstStore.GetVersionHistory(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 {
		t.Errorf("history length = %d, want 1", len(history))
	}

	// The import is recorded for later auditing
	hash, err := dstStore.GetMetadata(ctx, "last_import_hash")
	if err != nil {
		t.Fatal(err)
	}
	if len(hash) != 64 {
		t.Errorf("last_import_hash = %q", hash)
	}
}

func TestExportSelectedIDs(t *testing.T) {
	m, store := newTestManager()
	ctx := context.Background()

	now := time.Now().UTC()
	for _, card := range []*types.CardRecord{
		importCard("c1", "Wu", "wu@example.com", now),
		importCard("c2", "Chen", "chen@example.com", now),
	} {
		if err := store.PutCard(ctx, card); err != nil {
			t.Fatal(err)
		}
	}

	data, err := m.Export(ctx, ExportOptions{CardIDs: []string{"c2"}})
	if err != nil {
		t.Fatal(err)
	}
	var pkg types.TransferPackage
	if err := json.Unmarshal(data, &pkg); err != nil {
		t.Fatal(err)
	}
	if len(pkg.Records) != 1 || pkg.Records[0].ID != "c2" {
		t.Errorf("unexpected selection: %+v", pkg.Records)
	}
	if pkg.Version != types.TransferFormatVersion {
		t.Errorf("format version = %q", pkg.Version)
	}

	if _, err := m.Export(ctx, ExportOptions{CardIDs: []string{"missing"}}); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown id, got %v", err)
	}
}

func TestEncryptedTransfer(t *testing.T) {
	src, srcStore := newTestManager()
	ctx := context.Background()

	if err := srcStore.PutCard(ctx, importCard("c1", "Wu", "wu@example.com", time.Now().UTC())); err != nil {
		t.Fatal(err)
	}

	data, err := src.Export(ctx, ExportOptions{Password: "transfer-pw"})
	if err != nil {
		t.Fatal(err)
	}

	dst, dstStore := newTestManager()

	// Encrypted payload without a password is rejected, not guessed at
	if _, err := dst.Import(ctx, data, ""); !errors.Is(err, types.ErrPasswordRequired) {
		t.Errorf("expected ErrPasswordRequired, got %v", err)
	}

	if _, err := dst.Import(ctx, data, "wrong-pw"); !errors.Is(err, types.ErrDecryptionFailed) {
		t.Errorf("expected ErrDecryptionFailed, got %v", err)
	}
	if cards, _ := dstStore.ListCards(ctx); len(cards) != 0 {
		t.Error("failed decryption must not persist anything")
	}

	result, err := dst.Import(ctx, data, "transfer-pw")
	if err != nil {
		t.Fatal(err)
	}
	if result.Imported != 1 {
		t.Errorf("imported = %d", result.Imported)
	}
}

func TestImportRejectsMalformedPackages(t *testing.T) {
	m, store := newTestManager()
	ctx := context.Background()

	valid := importCard("ok", "Wu", "wu@example.com", time.Now().UTC())
	invalid := &types.CardRecord{ID: "bad", Kind: "nonsense", Fields: map[string]string{"name": "X"}}

	tests := []struct {
		name string
		data []byte
	}{
		{"not json", []byte("not a package")},
		{"missing version", mustJSON(t, map[string]any{"records": []*types.CardRecord{valid}})},
		{"missing records", mustJSON(t, map[string]any{"version": "1.0"})},
		{"invalid record", mustJSON(t, map[string]any{"version": "1.0", "records": []*types.CardRecord{valid, invalid}})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := m.Import(ctx, tt.data, ""); !errors.Is(err, types.ErrInvalidPackage) {
				t.Errorf("expected ErrInvalidPackage, got %v", err)
			}
		})
	}

	// Rejection is atomic: the valid record in the mixed package stayed out
	if cards, _ := store.ListCards(ctx); len(cards) != 0 {
		t.Error("rejected package must not partially persist")
	}
}

// metadataFailStore simulates an audit-metadata write failure after the
// records themselves persisted fine
type metadataFailStore struct {
	storage.Storage
}

func (s metadataFailStore) SetMetadata(context.Context, string, string) error {
	return errors.New("metadata table unavailable")
}

func TestImportSurvivesMetadataFailure(t *testing.T) {
	ctx := context.Background()
	inner := memory.New()
	store := metadataFailStore{Storage: inner}
	m := NewManager(store, version.NewManager(store, 10), MinKDFIterations)

	pkg := types.TransferPackage{
		Version:   types.TransferFormatVersion,
		Timestamp: time.Now().UTC(),
		Records:   []*types.CardRecord{importCard("c1", "Wu", "wu@example.com", time.Now().UTC())},
	}

	result, err := m.Import(ctx, mustJSON(t, pkg), "")
	if err != nil {
		t.Fatalf("import failed on advisory metadata write: %v", err)
	}
	if result.Imported != 1 {
		t.Errorf("imported = %d, want 1", result.Imported)
	}
	if card, _ := inner.GetCard(ctx, "c1"); card == nil {
		t.Error("record missing despite successful import result")
	}
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestClassifyConflicts(t *testing.T) {
	now := time.Now().UTC()
	existing := importCard("e1", "Wu", "wu@example.com", now)

	sameFields := importCard("e2", "Wu", "wu@example.com", now)
	sameFields.Fields = types.CopyFields(existing.Fields)

	diverged := importCard("e3", "Wu", "wu@example.com", now)
	diverged.Fields["title"] = "CTO"

	tests := []struct {
		name     string
		incoming *types.CardRecord
		want     types.ConflictKind
	}{
		{"same id", importCard("e1", "Wu", "other@example.com", now.Add(time.Hour)), types.ConflictDuplicateID},
		{"incoming newer", importCard("e2", "Wu", "wu@example.com", now.Add(time.Minute)), types.ConflictNewerVersion},
		{"incoming older", importCard("e2", "Wu", "wu@example.com", now.Add(-time.Minute)), types.ConflictOlderVersion},
		{"same instant same data", sameFields, types.ConflictDuplicateID},
		{"same instant diverged data", diverged, types.ConflictDataMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify(tt.incoming, existing); got != tt.want {
				t.Errorf("classify() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestImportDetectsFingerprintCollision(t *testing.T) {
	m, store := newTestManager()
	ctx := context.Background()

	base := time.Now().UTC()
	if err := store.PutCard(ctx, importCard("local-1", "吳志明~Wu Chih-Ming", "wu@example.com", base)); err != nil {
		t.Fatal(err)
	}

	// Record #2 collides with local-1 by identity despite its foreign ID
	pkg := types.TransferPackage{
		Version:   types.TransferFormatVersion,
		Timestamp: base,
		Records: []*types.CardRecord{
			importCard("remote-1", "Chen", "chen@example.com", base),
			importCard("remote-2", "吳志明~Wu Chih-Ming", "wu@example.com", base.Add(time.Hour)),
			importCard("remote-3", "Lin", "lin@example.com", base),
		},
	}
	data := mustJSON(t, pkg)

	result, err := m.Import(ctx, data, "")
	if err != nil {
		t.Fatal(err)
	}
	if !result.NeedsResolution {
		t.Fatal("expected needs-resolution result")
	}
	if len(result.Conflicts) != 1 {
		t.Fatalf("expected exactly one conflict, got %d", len(result.Conflicts))
	}
	c := result.Conflicts[0]
	if c.Incoming.ID != "remote-2" || c.Existing.ID != "local-1" {
		t.Errorf("conflict pairs %s with %s", c.Incoming.ID, c.Existing.ID)
	}
	if c.Kind != types.ConflictNewerVersion {
		t.Errorf("conflict kind = %s", c.Kind)
	}

	// Nothing is persisted while resolution is pending
	cards, err := store.ListCards(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(cards) != 1 {
		t.Errorf("store has %d cards while pending, want 1", len(cards))
	}
	if result.Pending == nil {
		t.Fatal("pending import data missing")
	}
}

func TestResolveAndImportVersion(t *testing.T) {
	m, store := newTestManager()
	ctx := context.Background()

	base := time.Now().UTC()
	if err := store.PutCard(ctx, importCard("local-1", "Wu Chih-Ming", "wu@example.com", base)); err != nil {
		t.Fatal(err)
	}
	before, err := store.GetVersionHistory(ctx, "local-1")
	if err != nil {
		t.Fatal(err)
	}

	incoming := importCard("remote-2", "Wu Chih-Ming", "wu@example.com", base.Add(time.Hour))
	incoming.Fields["title"] = "Director"
	pkg := types.TransferPackage{
		Version:   types.TransferFormatVersion,
		Timestamp: base,
		Records: []*types.CardRecord{
			importCard("remote-1", "Chen", "chen@example.com", base),
			incoming,
			importCard("remote-3", "Lin", "lin@example.com", base),
		},
	}

	result, err := m.Import(ctx, mustJSON(t, pkg), "")
	if err != nil {
		t.Fatal(err)
	}
	if !result.NeedsResolution {
		t.Fatal("expected pending conflicts")
	}

	applied, err := m.ResolveAndImport(ctx, result.Pending, []types.ImportResolution{types.ResolveVersion})
	if err != nil {
		t.Fatal(err)
	}
	if applied.Applied != 1 || applied.Failed != 0 {
		t.Errorf("applied/failed = %d/%d", applied.Applied, applied.Failed)
	}
	if applied.Imported != 2 {
		t.Errorf("non-conflicted imports = %d, want 2", applied.Imported)
	}

	card, err := store.GetCard(ctx, "local-1")
	if err != nil {
		t.Fatal(err)
	}
	if card.Version != "1.1" {
		t.Errorf("version = %s, want minor bump to 1.1", card.Version)
	}
	if card.Fields["title"] != "Director" {
		t.Error("incoming fields were not applied")
	}

	after, err := store.GetVersionHistory(ctx, "local-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(after)-len(before) != 2 {
		t.Errorf("history grew by %d entries, want 2", len(after)-len(before))
	}

	cards, err := store.ListCards(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(cards) != 3 {
		t.Errorf("store has %d cards, want 3", len(cards))
	}
}

func TestResolveAndImportRequiresResolutions(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()

	now := time.Now().UTC()
	pending := &PendingImport{
		Package: &types.TransferPackage{Version: types.TransferFormatVersion, Records: []*types.CardRecord{}},
		Conflicts: []types.Conflict{
			{Incoming: importCard("a", "Wu", "wu@example.com", now), Existing: importCard("b", "Wu", "wu@example.com", now), Kind: types.ConflictDataMismatch},
		},
	}

	if _, err := m.ResolveAndImport(ctx, pending, nil); !errors.Is(err, types.ErrMissingResolution) {
		t.Errorf("short resolution list: got %v", err)
	}
	if _, err := m.ResolveAndImport(ctx, pending, []types.ImportResolution{"discard"}); !errors.Is(err, types.ErrMissingResolution) {
		t.Errorf("invalid resolution: got %v", err)
	}
}

func TestResolveAndImportPerConflictStrategies(t *testing.T) {
	ctx := context.Background()
	base := time.Now().UTC()

	setup := func(t *testing.T) (*Manager, *memory.MemoryStorage, *PendingImport) {
		t.Helper()
		m, store := newTestManager()
		if err := store.PutCard(ctx, importCard("local-1", "Wu", "wu@example.com", base)); err != nil {
			t.Fatal(err)
		}
		incoming := importCard("remote-1", "Wu", "wu@example.com", base.Add(time.Hour))
		incoming.Fields["phone"] = "555-0100"
		pkg := &types.TransferPackage{
			Version: types.TransferFormatVersion,
			Records: []*types.CardRecord{incoming},
		}
		conflicts, err := m.DetectConflicts(ctx, pkg.Records)
		if err != nil {
			t.Fatal(err)
		}
		if len(conflicts) != 1 {
			t.Fatalf("setup expected one conflict, got %d", len(conflicts))
		}
		return m, store, &PendingImport{Package: pkg, Conflicts: conflicts}
	}

	t.Run("skip", func(t *testing.T) {
		m, store, pending := setup(t)
		result, err := m.ResolveAndImport(ctx, pending, []types.ImportResolution{types.ResolveSkip})
		if err != nil {
			t.Fatal(err)
		}
		if result.Skipped != 1 {
			t.Errorf("skipped = %d", result.Skipped)
		}
		cards, _ := store.ListCards(ctx)
		if len(cards) != 1 || cards[0].ID != "local-1" {
			t.Errorf("store after skip: %+v", cards)
		}
	})

	t.Run("replace", func(t *testing.T) {
		m, store, pending := setup(t)
		if _, err := m.ResolveAndImport(ctx, pending, []types.ImportResolution{types.ResolveReplace}); err != nil {
			t.Fatal(err)
		}
		if card, _ := store.GetCard(ctx, "local-1"); card != nil {
			t.Error("replaced card should be gone")
		}
		card, _ := store.GetCard(ctx, "remote-1")
		if card == nil || card.Fields["phone"] != "555-0100" {
			t.Errorf("incoming card missing after replace: %+v", card)
		}
	})

	t.Run("keep both", func(t *testing.T) {
		m, store, pending := setup(t)
		result, err := m.ResolveAndImport(ctx, pending, []types.ImportResolution{types.ResolveKeepBoth})
		if err != nil {
			t.Fatal(err)
		}
		cards, _ := store.ListCards(ctx)
		if len(cards) != 2 {
			t.Fatalf("store has %d cards, want both", len(cards))
		}
		newID := result.Outcomes[0].CardID
		if newID == "remote-1" || newID == "local-1" {
			t.Errorf("kept copy must get a fresh id, got %q", newID)
		}
		if card, _ := store.GetCard(ctx, newID); card == nil {
			t.Errorf("renamed card %s not found", newID)
		}
	})

	t.Run("merge newer incoming", func(t *testing.T) {
		m, store, pending := setup(t)
		if _, err := m.ResolveAndImport(ctx, pending, []types.ImportResolution{types.ResolveMerge}); err != nil {
			t.Fatal(err)
		}
		card, _ := store.GetCard(ctx, "local-1")
		if card == nil {
			t.Fatal("existing card must survive a merge")
		}
		if card.Fields["phone"] != "555-0100" {
			t.Error("newer incoming fields should win the merge")
		}
		if card.Version != "1.1" {
			t.Errorf("merge should bump the minor version, got %s", card.Version)
		}
	})

	t.Run("merge older incoming leaves existing intact", func(t *testing.T) {
		m, store := newTestManager()
		if err := store.PutCard(ctx, importCard("local-1", "Wu", "wu@example.com", base)); err != nil {
			t.Fatal(err)
		}
		incoming := importCard("remote-1", "Wu", "wu@example.com", base.Add(-time.Hour))
		incoming.Fields["phone"] = "555-0100"
		pkg := &types.TransferPackage{Version: types.TransferFormatVersion, Records: []*types.CardRecord{incoming}}
		conflicts, err := m.DetectConflicts(ctx, pkg.Records)
		if err != nil {
			t.Fatal(err)
		}
		pending := &PendingImport{Package: pkg, Conflicts: conflicts}
		if _, err := m.ResolveAndImport(ctx, pending, []types.ImportResolution{types.ResolveMerge}); err != nil {
			t.Fatal(err)
		}
		card, _ := store.GetCard(ctx, "local-1")
		if card.Fields["phone"] != "" || card.Version != "1.0" {
			t.Errorf("stale incoming must not change the card: v%s %+v", card.Version, card.Fields)
		}
	})
}
