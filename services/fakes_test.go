package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"autosearch/models"
	"autosearch/storage"
	"autosearch/utils"
)

var (
	errTransient = errors.New("connection reset")
	errPermanent = errors.New("layout changed")
)

func newTestLogger() *utils.Logger { return utils.NewLoggerTo(io.Discard, false) }

func exact(id string) models.RawListing {
	return models.RawListing{ID: id, Title: "Title " + id, URL: "https://x.test/angebote/" + id, Make: "VW", Model: "T5", Exact: true}
}

func recommended(id string) models.RawListing {
	r := exact(id)
	r.Exact = false
	return r
}

// fakeFetcher serves pages keyed by model. Errors are consumed one per call
// before any page is served. When block is set, calls for blockOnly (or for
// every search if blockOnly is empty) wait on it.
type fakeFetcher struct {
	mu        sync.Mutex
	pages     map[string][]*models.ResultPage
	errs      []error
	calls     int
	block     chan struct{}
	blockOnly string
	called    chan struct{}
}

func newFakeFetcher(records ...models.RawListing) *fakeFetcher {
	return &fakeFetcher{pages: map[string][]*models.ResultPage{
		"": {{Records: records, Total: len(records)}},
	}}
}

func (f *fakeFetcher) Fetch(ctx context.Context, spec models.FilterSpec, model string, page int) (*models.ResultPage, error) {
	f.mu.Lock()
	f.calls++
	called, block := f.called, f.block
	if f.blockOnly != "" && spec.Name != f.blockOnly {
		block = nil
	}
	var err error
	if len(f.errs) > 0 {
		err, f.errs = f.errs[0], f.errs[1:]
	}
	pages := f.pages[model]
	f.mu.Unlock()

	if called != nil {
		select {
		case called <- struct{}{}:
		default:
		}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if page-1 >= len(pages) {
		return nil, fmt.Errorf("unexpected page %d for model %q", page, model)
	}
	return pages[page-1], nil
}

func (f *fakeFetcher) setRecords(records ...models.RawListing) {
	f.setPages(&models.ResultPage{Records: records, Total: len(records)})
}

func (f *fakeFetcher) setPages(pages ...*models.ResultPage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[""] = pages
}

func (f *fakeFetcher) failWith(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs = append(f.errs, errs...)
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recordingNotifier struct {
	mu      sync.Mutex
	results []*models.ReconcileResult
	errs    []string
	fail    error
}

func (n *recordingNotifier) Notify(_ context.Context, r *models.ReconcileResult) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.results = append(n.results, r)
	return n.fail
}

func (n *recordingNotifier) NotifyError(_ context.Context, search, summary string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errs = append(n.errs, search+": "+summary)
	return nil
}

func (n *recordingNotifier) counts() (int, int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.results), len(n.errs)
}

// countingStore wraps a MemoryStore, counts commits and can fail them.
type countingStore struct {
	*storage.MemoryStore
	mu          sync.Mutex
	replaces    int
	failReplace error
}

func newCountingStore() *countingStore {
	return &countingStore{MemoryStore: storage.NewMemoryStore()}
}

func (s *countingStore) Replace(ctx context.Context, search string, snap models.Snapshot) error {
	s.mu.Lock()
	fail := s.failReplace
	if fail == nil {
		s.replaces++
	}
	s.mu.Unlock()
	if fail != nil {
		return fail
	}
	return s.MemoryStore.Replace(ctx, search, snap)
}

func (s *countingStore) commits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replaces
}

func testRetry() utils.RetryConfig {
	return utils.RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		Retryable:   func(err error) bool { return errors.Is(err, errTransient) },
	}
}

type harness struct {
	fetcher  *fakeFetcher
	store    *countingStore
	notifier *recordingNotifier
	engine   *Engine
	runner   *CycleRunner
}

func newHarness(fetcher *fakeFetcher) *harness {
	return newHarnessWith(fetcher, CycleConfig{MaxPages: 3, Retry: testRetry()})
}

func newHarnessWith(fetcher *fakeFetcher, cfg CycleConfig) *harness {
	h := &harness{
		fetcher:  fetcher,
		store:    newCountingStore(),
		notifier: &recordingNotifier{},
	}
	logger := newTestLogger()
	h.engine = NewEngine(h.store, nil, logger)
	h.runner = NewCycleRunner(fetcher, NewNormalizer(logger), h.engine, h.notifier,
		cfg, nil, logger)
	return h
}

func (h *harness) snapshotIDs(search string) []string {
	snap, _ := h.store.Load(context.Background(), search)
	return snap.IDs()
}

func ids(listings []models.Listing) []string {
	out := make([]string, 0, len(listings))
	for _, l := range listings {
		out = append(out, l.ID)
	}
	return out
}

func equalIDs(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

var vans = models.FilterSpec{Name: "vans", Make: "VW"}
