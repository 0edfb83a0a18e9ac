package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"autosearch/utils"
)

// Metrics holds the poller's Prometheus collectors on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	cycles       *prometheus.CounterVec
	added        *prometheus.CounterVec
	removed      *prometheus.CounterVec
	fetches      *prometheus.CounterVec
	anomalies    *prometheus.CounterVec
	phase        *prometheus.GaugeVec
	snapshotSize *prometheus.GaugeVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autosearch_cycles_total",
			Help: "Reconciliation cycles by search and outcome",
		}, []string{"search", "outcome"}),
		added: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autosearch_listings_added_total",
			Help: "Listings reported as new",
		}, []string{"search"}),
		removed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autosearch_listings_removed_total",
			Help: "Listings reported as gone",
		}, []string{"search"}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autosearch_fetch_requests_total",
			Help: "Result page requests by search and result",
		}, []string{"search", "result"}),
		anomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autosearch_normalization_anomalies_total",
			Help: "Exact-match records dropped for lacking an identifier",
		}, []string{"search"}),
		phase: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "autosearch_cycle_phase",
			Help: "Current cycle phase (0 idle, 1 fetching, 2 normalizing, 3 reconciling, 4 committing, 5 notifying)",
		}, []string{"search"}),
		snapshotSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "autosearch_snapshot_listings",
			Help: "Listings in the last committed snapshot",
		}, []string{"search"}),
	}
	m.registry.MustRegister(m.cycles, m.added, m.removed, m.fetches, m.anomalies, m.phase, m.snapshotSize)
	return m
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) CycleFinished(search, outcome string) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(search, outcome).Inc()
}

func (m *Metrics) Delta(search string, added, removed int) {
	if m == nil {
		return
	}
	m.added.WithLabelValues(search).Add(float64(added))
	m.removed.WithLabelValues(search).Add(float64(removed))
}

func (m *Metrics) FetchDone(search, result string) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(search, result).Inc()
}

func (m *Metrics) Anomalies(search string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.anomalies.WithLabelValues(search).Add(float64(n))
}

func (m *Metrics) SetPhase(search string, phase int) {
	if m == nil {
		return
	}
	m.phase.WithLabelValues(search).Set(float64(phase))
}

func (m *Metrics) SetSnapshotSize(search string, n int) {
	if m == nil {
		return
	}
	m.snapshotSize.WithLabelValues(search).Set(float64(n))
}

// Start serves /metrics on port in the background. The returned server is
// shut down by the caller.
func (m *Metrics) Start(port string, logger *utils.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: ":" + port, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("[metrics] server stopped: %v", err)
		}
	}()
	logger.Info("[metrics] Serving /metrics on :%s", port)
	return srv
}
