package storage

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"autosearch/models"
)

func TestMemoryStoreReplaceIsIsolated(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	snap := models.Snapshot{"a": {ID: "a", Title: "first"}}
	if err := store.Replace(ctx, "vans", snap); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	// Mutating the caller's map must not leak into the store.
	snap["b"] = models.Listing{ID: "b"}

	got, err := store.Load(ctx, "vans")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("Load returned %d listings; want 1", len(got))
	}

	got["c"] = models.Listing{ID: "c"}
	again, _ := store.Load(ctx, "vans")
	if len(again) != 1 {
		t.Errorf("Load result aliases stored state")
	}
}

func TestMemoryStorePartitionsBySearch(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	store.Replace(ctx, "vans", models.Snapshot{"x": {ID: "x", Search: "vans"}})
	store.Replace(ctx, "golf", models.Snapshot{"x": {ID: "x", Search: "golf"}, "y": {ID: "y", Search: "golf"}})
	store.Replace(ctx, "vans", models.Snapshot{})

	vans, _ := store.Load(ctx, "vans")
	golf, _ := store.Load(ctx, "golf")
	if len(vans) != 0 {
		t.Errorf("vans has %d listings; want 0", len(vans))
	}
	if len(golf) != 2 {
		t.Errorf("golf has %d listings; want 2", len(golf))
	}

	all, _ := store.All(ctx)
	if len(all) != 2 || all[0].Search != "golf" {
		t.Errorf("All = %+v", all)
	}
}

func TestMemoryStoreUnknownSearchIsEmpty(t *testing.T) {
	snap, err := NewMemoryStore().Load(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if snap == nil || len(snap) != 0 {
		t.Errorf("Load = %v; want an empty non-nil snapshot", snap)
	}
}

func TestMemoryStoreClear(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.Replace(ctx, "a", models.Snapshot{"1": {ID: "1"}, "2": {ID: "2"}})
	store.Replace(ctx, "b", models.Snapshot{"3": {ID: "3"}})

	n, err := store.Clear(ctx)
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if n != 3 {
		t.Errorf("Clear removed %d; want 3", n)
	}
	all, _ := store.All(ctx)
	if len(all) != 0 {
		t.Errorf("store still holds %d listings", len(all))
	}
}

func TestCSVWriterWritesListings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "listings.csv")
	w, err := NewCSVWriter(path)
	if err != nil {
		t.Fatalf("NewCSVWriter: %v", err)
	}

	seen := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	err = w.WriteListings([]models.Listing{
		{Search: "vans", ID: "a1", Title: "Multivan, Highline", Make: "VW", Model: "T5",
			Price: 15990, Year: 2012, Kilometers: 180000, FirstSeen: seen, LastSeen: seen},
	})
	if err != nil {
		t.Fatalf("WriteListings: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows; want header + 1", len(rows))
	}
	if rows[0][0] != "search" || rows[1][2] != "Multivan, Highline" || rows[1][5] != "15990" {
		t.Errorf("unexpected rows: %v", rows)
	}
	if rows[1][10] != "2024-03-01T12:00:00Z" {
		t.Errorf("first_seen = %q", rows[1][10])
	}
}
