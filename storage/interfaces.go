package storage

import (
	"context"

	"autosearch/models"
)

// SnapshotStore persists one snapshot per search. Replace must be atomic for
// its search key: readers see either the old or the new snapshot, never a mix.
type SnapshotStore interface {
	// Load returns the last committed snapshot of search, or an empty
	// snapshot if none was ever committed.
	Load(ctx context.Context, search string) (models.Snapshot, error)
	Replace(ctx context.Context, search string, snap models.Snapshot) error
	// All returns every persisted listing of every search.
	All(ctx context.Context) ([]models.Listing, error)
	// Clear deletes all persisted state and returns how many listings it held.
	Clear(ctx context.Context) (int, error)
	Close() error
}

// ListingExporter is the interface for writing persisted listings out of the
// store.
type ListingExporter interface {
	WriteListings(listings []models.Listing) error
	Close() error
}
