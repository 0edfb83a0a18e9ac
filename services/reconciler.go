package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"autosearch/metrics"
	"autosearch/models"
	"autosearch/storage"
	"autosearch/utils"
)

// ErrCommit wraps snapshot store failures. A cycle that fails to commit must
// not notify.
var ErrCommit = errors.New("snapshot commit failed")

// Reconcile diffs the fresh listings of search against its previous snapshot.
// The next snapshot is exactly the fresh set; listings already known keep
// their FirstSeen. Added and removed are ordered by identifier.
func Reconcile(search string, fresh []models.Listing, previous models.Snapshot, now time.Time) (added, removed []models.Listing, next models.Snapshot) {
	next = make(models.Snapshot, len(fresh))
	for _, l := range fresh {
		if _, dup := next[l.ID]; dup {
			continue
		}
		l.Search = search
		l.LastSeen = now
		if old, ok := previous[l.ID]; ok {
			l.FirstSeen = old.FirstSeen
		} else {
			l.FirstSeen = now
			added = append(added, l)
		}
		next[l.ID] = l
	}

	for _, id := range previous.IDs() {
		if _, ok := next[id]; !ok {
			removed = append(removed, previous[id])
		}
	}

	sort.Slice(added, func(i, j int) bool { return added[i].ID < added[j].ID })
	return added, removed, next
}

// FetchOutcome is the result of the fetch phase of one cycle: either the
// complete set of listings, possibly empty, or the error that stopped it.
type FetchOutcome struct {
	Listings []models.Listing
	Err      error
}

func Fetched(listings []models.Listing) FetchOutcome { return FetchOutcome{Listings: listings} }

func FetchFailed(err error) FetchOutcome { return FetchOutcome{Err: err} }

// Engine is the only writer of persisted snapshots.
type Engine struct {
	store   storage.SnapshotStore
	logger  *utils.Logger
	metrics *metrics.Metrics
	now     func() time.Time
	onPhase func(search string, p Phase)

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewEngine creates an Engine committing to store. m may be nil.
func NewEngine(store storage.SnapshotStore, m *metrics.Metrics, logger *utils.Logger) *Engine {
	return &Engine{
		store:   store,
		logger:  logger,
		metrics: m,
		now:     time.Now,
		locks:   make(map[string]*sync.Mutex),
	}
}

func (e *Engine) lock(search string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[search]
	if !ok {
		l = &sync.Mutex{}
		e.locks[search] = l
	}
	return l
}

func (e *Engine) phase(search string, p Phase) {
	if e.onPhase != nil {
		e.onPhase(search, p)
	}
}

// Apply reconciles outcome against the committed snapshot of search and
// commits the new snapshot. A failed outcome returns its error untouched and
// leaves the snapshot alone. The returned result is nil whenever err is not.
func (e *Engine) Apply(ctx context.Context, search string, outcome FetchOutcome) (*models.ReconcileResult, error) {
	if outcome.Err != nil {
		return nil, outcome.Err
	}

	l := e.lock(search)
	l.Lock()
	defer l.Unlock()

	previous, err := e.store.Load(ctx, search)
	if err != nil {
		return nil, fmt.Errorf("%w: load %s: %w", ErrCommit, search, err)
	}

	e.phase(search, PhaseReconciling)
	now := e.now()
	added, removed, next := Reconcile(search, outcome.Listings, previous, now)

	e.phase(search, PhaseCommitting)
	if err := e.store.Replace(ctx, search, next); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCommit, search, err)
	}
	e.metrics.SetSnapshotSize(search, len(next))

	result := &models.ReconcileResult{
		CycleID:   uuid.NewString(),
		Search:    search,
		Added:     added,
		Removed:   removed,
		Unchanged: len(next) - len(added),
		At:        now,
	}
	e.logger.Debug("[engine] %s: committed %d listings (cycle %s)", search, len(next), result.CycleID)
	return result, nil
}
