package nodeindex_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/bowlofstew/nimbus.io/pkg/config"
	"github.com/bowlofstew/nimbus.io/pkg/nodeindex"
)

func newTestStore(t *testing.T) *nodeindex.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "node-index.db")
	store, err := nodeindex.New(config.NodeIndexConfig{Path: path})
	if err != nil {
		t.Fatalf("nodeindex.New: %v", err)
	}
	return store
}

func TestRecordArchiveThenStatAndListMatch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.RecordArchive(ctx, 1, "reports/q1.csv", 1000, 4096); err != nil {
		t.Fatalf("RecordArchive: %v", err)
	}

	stat, err := store.Stat(ctx, 1, "reports/q1.csv")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if stat == nil || stat.Size != 4096 || stat.Timestamp != 1000 {
		t.Fatalf("unexpected stat: %+v", stat)
	}

	keys, err := store.ListMatch(ctx, 1, "reports/")
	if err != nil {
		t.Fatalf("ListMatch: %v", err)
	}
	if len(keys) != 1 || keys[0] != "reports/q1.csv" {
		t.Fatalf("unexpected listmatch result: %v", keys)
	}
}

func TestStatMissingKeyReturnsNil(t *testing.T) {
	store := newTestStore(t)
	stat, err := store.Stat(context.Background(), 1, "nope")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if stat != nil {
		t.Fatalf("expected nil stat for missing key, got %+v", stat)
	}
}

func TestSizeLookupNoPriorRowReturnsZero(t *testing.T) {
	store := newTestStore(t)
	size, err := store.SizeLookup(context.Background(), 1, "never-archived")
	if err != nil {
		t.Fatalf("SizeLookup: %v", err)
	}
	if size != 0 {
		t.Fatalf("expected 0, got %d", size)
	}
}

func TestRecordDestroyTombstonesAndHidesFromListMatch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.RecordArchive(ctx, 1, "to-delete", 1000, 512); err != nil {
		t.Fatalf("RecordArchive: %v", err)
	}
	if err := store.RecordDestroy(ctx, 1, "to-delete", 2000); err != nil {
		t.Fatalf("RecordDestroy: %v", err)
	}

	stat, err := store.Stat(ctx, 1, "to-delete")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if stat != nil {
		t.Fatalf("expected nil stat after destroy, got %+v", stat)
	}

	size, err := store.SizeLookup(ctx, 1, "to-delete")
	if err != nil {
		t.Fatalf("SizeLookup: %v", err)
	}
	if size != 0 {
		t.Fatalf("expected 0 after destroy, got %d", size)
	}

	keys, err := store.ListMatch(ctx, 1, "to-delete")
	if err != nil {
		t.Fatalf("ListMatch: %v", err)
	}
	if len(keys) != 0 {
		t.Fatalf("expected no keys after destroy, got %v", keys)
	}
}

func TestReArchiveAfterDestroyIsVisibleAgain(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.RecordArchive(ctx, 1, "k", 1000, 10); err != nil {
		t.Fatalf("RecordArchive: %v", err)
	}
	if err := store.RecordDestroy(ctx, 1, "k", 2000); err != nil {
		t.Fatalf("RecordDestroy: %v", err)
	}
	if err := store.RecordArchive(ctx, 1, "k", 3000, 20); err != nil {
		t.Fatalf("re-archive RecordArchive: %v", err)
	}

	stat, err := store.Stat(ctx, 1, "k")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if stat == nil || stat.Size != 20 || stat.Timestamp != 3000 {
		t.Fatalf("unexpected stat after re-archive: %+v", stat)
	}
}
