package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"autosearch/metrics"
	"autosearch/models"
	"autosearch/utils"
)

var (
	// ErrCycleInFlight is returned when a cycle for the same search is
	// already running.
	ErrCycleInFlight = errors.New("cycle already in flight")
	// ErrUnknownSearch is returned by Trigger for a search that is not
	// scheduled.
	ErrUnknownSearch = errors.New("unknown search")
)

// Cycler runs a single cycle of one search.
type Cycler interface {
	Run(ctx context.Context, f models.FilterSpec) (*models.ReconcileResult, error)
}

// SchedulerConfig controls shutdown and error escalation.
type SchedulerConfig struct {
	// ShutdownGrace bounds how long in-flight cycles may keep running once
	// shutdown has begun.
	ShutdownGrace time.Duration
	// EscalationThreshold is the number of consecutive failed cycles after
	// which one extra escalation notice is sent. Zero disables it.
	EscalationThreshold int
}

// Scheduler runs every search on its own interval, at most one cycle per
// search at a time.
type Scheduler struct {
	runner   Cycler
	notifier Notifier
	metrics  *metrics.Metrics
	logger   *utils.Logger
	cfg      SchedulerConfig

	inflight *utils.KeySet

	mu       sync.Mutex
	searches map[string]models.Search
	streaks  map[string]int
}

func NewScheduler(runner Cycler, notifier Notifier, cfg SchedulerConfig, m *metrics.Metrics, logger *utils.Logger) *Scheduler {
	return &Scheduler{
		runner:   runner,
		notifier: notifier,
		metrics:  m,
		logger:   logger,
		cfg:      cfg,
		inflight: utils.NewKeySet(),
		searches: make(map[string]models.Search),
		streaks:  make(map[string]int),
	}
}

// Run schedules searches until ctx is cancelled. Each search runs once
// immediately and then on every tick of its interval. After cancellation no
// new cycle starts; running cycles get ShutdownGrace to finish before their
// context is cancelled too. A panicking search loop stops every loop the same
// way and its panic is returned as an error. Run returns once every cycle has
// ended.
func (s *Scheduler) Run(ctx context.Context, searches []models.Search) error {
	s.mu.Lock()
	for _, search := range searches {
		s.searches[search.Filter.Name] = search
	}
	s.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)

	// gctx ends on shutdown or when a loop fails; either way running cycles
	// get ShutdownGrace before cycleCtx is cancelled.
	cycleCtx, cancelCycles := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelCycles()
	stop := context.AfterFunc(gctx, func() {
		s.logger.Info("[scheduler] Shutdown requested, waiting up to %s for running cycles", s.cfg.ShutdownGrace)
		time.AfterFunc(s.cfg.ShutdownGrace, cancelCycles)
	})
	defer stop()

	s.logger.Info("[scheduler] Starting %d search(es)", len(searches))

	for _, search := range searches {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("[scheduler] %s: loop panicked: %v", search.Filter.Name, r)
					err = fmt.Errorf("search %q: loop panicked: %v", search.Filter.Name, r)
				}
			}()
			s.loop(gctx, cycleCtx, search)
			return nil
		})
	}
	err := g.Wait()

	s.logger.Info("[scheduler] All searches stopped")
	return err
}

func (s *Scheduler) loop(ctx, cycleCtx context.Context, search models.Search) {
	name := search.Filter.Name
	interval := search.Interval
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	s.logger.Info("[scheduler] %s: every %s", name, interval)

	s.tick(cycleCtx, search)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			s.tick(cycleCtx, search)
			// Drop a tick that fired while the cycle was running.
			select {
			case <-ticker.C:
			default:
			}
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, search models.Search) {
	if _, err := s.runOnce(ctx, search); errors.Is(err, ErrCycleInFlight) {
		s.logger.Debug("[scheduler] %s: previous cycle still running, tick skipped", search.Filter.Name)
	}
}

// Trigger runs one cycle of the named search now, on the caller's
// goroutine. It returns ErrCycleInFlight without doing anything if a cycle
// of that search is already running.
func (s *Scheduler) Trigger(ctx context.Context, name string) (*models.ReconcileResult, error) {
	s.mu.Lock()
	search, ok := s.searches[name]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSearch, name)
	}
	return s.runOnce(ctx, search)
}

// Register adds searches that Trigger may run without starting their loops.
func (s *Scheduler) Register(searches ...models.Search) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, search := range searches {
		s.searches[search.Filter.Name] = search
	}
}

func (s *Scheduler) runOnce(ctx context.Context, search models.Search) (*models.ReconcileResult, error) {
	name := search.Filter.Name
	if !s.inflight.Add(name) {
		return nil, ErrCycleInFlight
	}
	defer s.inflight.Remove(name)

	result, err := s.runner.Run(ctx, search.Filter)
	s.record(ctx, name, err)
	return result, err
}

// Streak returns the number of consecutive failed cycles of search.
func (s *Scheduler) Streak(search string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streaks[search]
}

func (s *Scheduler) record(ctx context.Context, name string, err error) {
	s.mu.Lock()
	if err == nil {
		prev := s.streaks[name]
		s.streaks[name] = 0
		s.mu.Unlock()
		if prev > 0 {
			s.logger.Info("[scheduler] %s: recovered after %d failed cycle(s)", name, prev)
		}
		s.metrics.CycleFinished(name, "success")
		return
	}
	s.streaks[name]++
	streak := s.streaks[name]
	s.mu.Unlock()

	s.metrics.CycleFinished(name, outcomeLabel(err))

	if errors.Is(err, context.Canceled) {
		s.logger.Warn("[scheduler] %s: cycle cancelled during shutdown", name)
		return
	}
	s.logger.Error("[scheduler] %s: cycle failed (%d in a row): %v", name, streak, err)

	if nerr := s.notifier.NotifyError(ctx, name, err.Error()); nerr != nil {
		s.logger.Error("[scheduler] %s: error notification failed: %v", name, nerr)
	}
	if s.cfg.EscalationThreshold > 0 && streak == s.cfg.EscalationThreshold {
		msg := fmt.Sprintf("%d consecutive cycles of %q have failed. Last error: %v", streak, name, err)
		if nerr := s.notifier.NotifyError(ctx, name, msg); nerr != nil {
			s.logger.Error("[scheduler] %s: escalation notification failed: %v", name, nerr)
		}
	}
}

func outcomeLabel(err error) string {
	var fe *models.FieldError
	switch {
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, ErrCommit):
		return "commit_error"
	case errors.As(err, &fe):
		return "invalid"
	default:
		return "fetch_error"
	}
}
