package storage

import (
	"context"
	"sort"
	"sync"

	"autosearch/models"
)

// MemoryStore keeps snapshots in process memory. State is lost on restart;
// it backs tests and dry runs.
type MemoryStore struct {
	mu    sync.RWMutex
	snaps map[string]models.Snapshot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snaps: make(map[string]models.Snapshot)}
}

func (m *MemoryStore) Load(_ context.Context, search string) (models.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copySnapshot(m.snaps[search]), nil
}

func (m *MemoryStore) Replace(_ context.Context, search string, snap models.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps[search] = copySnapshot(snap)
	return nil
}

func (m *MemoryStore) All(_ context.Context) ([]models.Listing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	searches := make([]string, 0, len(m.snaps))
	for s := range m.snaps {
		searches = append(searches, s)
	}
	sort.Strings(searches)

	var out []models.Listing
	for _, s := range searches {
		out = append(out, m.snaps[s].Listings()...)
	}
	return out, nil
}

func (m *MemoryStore) Clear(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, snap := range m.snaps {
		n += len(snap)
	}
	m.snaps = make(map[string]models.Snapshot)
	return n, nil
}

func (m *MemoryStore) Close() error { return nil }

func copySnapshot(in models.Snapshot) models.Snapshot {
	out := make(models.Snapshot, len(in))
	for id, l := range in {
		out[id] = l
	}
	return out
}

var _ SnapshotStore = (*MemoryStore)(nil)
