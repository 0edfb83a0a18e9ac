package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"autosearch/metrics"
	"autosearch/models"
	"autosearch/utils"
)

// Phase is the state of a search's cycle. A cycle walks Idle → Fetching →
// Normalizing → Reconciling → Committing → Notifying → Idle; a fetch or
// commit failure goes straight back to Idle.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseFetching
	PhaseNormalizing
	PhaseReconciling
	PhaseCommitting
	PhaseNotifying
)

func (p Phase) String() string {
	switch p {
	case PhaseFetching:
		return "fetching"
	case PhaseNormalizing:
		return "normalizing"
	case PhaseReconciling:
		return "reconciling"
	case PhaseCommitting:
		return "committing"
	case PhaseNotifying:
		return "notifying"
	default:
		return "idle"
	}
}

// ErrTooManyPages fails a fetch whose results run past CycleConfig.MaxPages.
// The truncated set is never reconciled; the search has to be narrowed.
var ErrTooManyPages = errors.New("result set exceeds the page limit")

// CycleConfig bounds the fetch phase of a cycle.
type CycleConfig struct {
	// MaxPages caps the result pages read per model. Hitting it with more
	// pages left fails the fetch with ErrTooManyPages.
	MaxPages int
	Retry    utils.RetryConfig
}

// CycleRunner executes one fetch → normalize → reconcile → commit → notify
// pass for a search. It does not serialize cycles itself; the Engine and the
// Scheduler do.
type CycleRunner struct {
	fetcher    Fetcher
	normalizer *Normalizer
	engine     *Engine
	notifier   Notifier
	metrics    *metrics.Metrics
	logger     *utils.Logger
	cfg        CycleConfig

	mu     sync.RWMutex
	phases map[string]Phase
}

// NewCycleRunner wires the cycle's collaborators. m may be nil.
func NewCycleRunner(fetcher Fetcher, normalizer *Normalizer, engine *Engine, notifier Notifier,
	cfg CycleConfig, m *metrics.Metrics, logger *utils.Logger) *CycleRunner {
	if cfg.MaxPages < 1 {
		cfg.MaxPages = 1
	}
	r := &CycleRunner{
		fetcher:    fetcher,
		normalizer: normalizer,
		engine:     engine,
		notifier:   notifier,
		metrics:    m,
		logger:     logger,
		cfg:        cfg,
		phases:     make(map[string]Phase),
	}
	engine.onPhase = r.setPhase
	return r
}

// Phase reports the current phase of search.
func (r *CycleRunner) Phase(search string) Phase {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.phases[search]
}

func (r *CycleRunner) setPhase(search string, p Phase) {
	r.mu.Lock()
	r.phases[search] = p
	r.mu.Unlock()
	r.metrics.SetPhase(search, int(p))
	r.logger.Debug("[cycle] %s: %s", search, p)
}

// Run executes one cycle of f. On error nothing was committed or notified.
// A notification failure after a successful commit is logged and does not
// fail the cycle, since the delta is already durable.
func (r *CycleRunner) Run(ctx context.Context, f models.FilterSpec) (*models.ReconcileResult, error) {
	defer r.setPhase(f.Name, PhaseIdle)
	start := time.Now()

	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("search %q: %w", f.Name, err)
	}

	r.setPhase(f.Name, PhaseFetching)
	records, fetchErr := r.fetchAll(ctx, f)

	outcome := FetchFailed(fetchErr)
	if fetchErr == nil {
		r.setPhase(f.Name, PhaseNormalizing)
		listings, anomalies := r.normalizer.Normalize(f.Name, records, start)
		r.metrics.Anomalies(f.Name, anomalies)
		outcome = Fetched(listings)
	}

	result, err := r.engine.Apply(ctx, f.Name, outcome)
	if err != nil {
		return nil, err
	}

	r.setPhase(f.Name, PhaseNotifying)
	r.metrics.Delta(f.Name, len(result.Added), len(result.Removed))
	if !result.Empty() {
		if err := r.notifier.Notify(ctx, result); err != nil {
			r.logger.Error("[cycle] %s: notification failed: %v", f.Name, err)
		}
	}

	r.logger.Info("[cycle] %s: %d found, %d new, %d unchanged, %d removed (%s)",
		f.Name, len(result.Added)+result.Unchanged, len(result.Added), result.Unchanged,
		len(result.Removed), time.Since(start).Round(time.Millisecond))
	return result, nil
}

// fetchAll reads every page of every model of f. Any page failing after
// retries fails the whole fetch: a partial result set must never be
// reconciled.
func (r *CycleRunner) fetchAll(ctx context.Context, f models.FilterSpec) ([]models.RawListing, error) {
	var records []models.RawListing

	for _, model := range f.ModelQueries() {
		for page := 1; page <= r.cfg.MaxPages; page++ {
			var res *models.ResultPage
			op := fmt.Sprintf("fetch %s page %d", f.Name, page)
			if model != "" {
				op = fmt.Sprintf("fetch %s %s page %d", f.Name, model, page)
			}
			err := r.cfg.Retry.Do(ctx, op, func(ctx context.Context) error {
				var err error
				res, err = r.fetcher.Fetch(ctx, f, model, page)
				if err != nil {
					r.metrics.FetchDone(f.Name, "error")
				} else {
					r.metrics.FetchDone(f.Name, "ok")
				}
				return err
			})
			if err != nil {
				return nil, err
			}

			records = append(records, res.Records...)
			if !res.HasMore {
				break
			}
			if page == r.cfg.MaxPages {
				return nil, fmt.Errorf("%s: %w (%d); narrow the search or raise MAX_PAGES", op, ErrTooManyPages, r.cfg.MaxPages)
			}
		}
	}
	return records, nil
}
