package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for a scrape run. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	Registry             *prometheus.Registry
	PassesTotal          *prometheus.CounterVec
	CategoriesExported   prometheus.Counter
	RecordsExtracted     *prometheus.CounterVec
	ScrollCycles         prometheus.Histogram
	ConnectivityFailures prometheus.Counter
	InterstitialTimeouts prometheus.Counter
	SinkErrorsTotal      *prometheus.CounterVec
	RemainingCategories  prometheus.Gauge
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	passes := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ever_scraper_passes_total",
			Help: "Scrape passes by outcome.",
		},
		[]string{"outcome"},
	)
	exported := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ever_scraper_categories_exported_total",
			Help: "Category artifacts written.",
		},
	)
	records := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ever_scraper_records_extracted_total",
			Help: "Product records extracted by card shape.",
		},
		[]string{"shape"},
	)
	scrolls := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ever_scraper_scroll_cycles",
			Help:    "Infinite-scroll cycles needed per category.",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100, 200, 500},
		},
	)
	connectivity := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ever_scraper_connectivity_failures_total",
			Help: "Browser driver connectivity failures.",
		},
	)
	interstitial := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ever_scraper_interstitial_timeouts_total",
			Help: "Passes abandoned because the branch modal did not close.",
		},
	)
	sinkErrors := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ever_scraper_sink_errors_total",
			Help: "Secondary record sink failures.",
		},
		[]string{"sink"},
	)
	remaining := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ever_scraper_remaining_categories",
			Help: "Categories still to export in this run.",
		},
	)

	registry.MustRegister(passes, exported, records, scrolls, connectivity, interstitial, sinkErrors, remaining)

	return &Metrics{
		Registry:             registry,
		PassesTotal:          passes,
		CategoriesExported:   exported,
		RecordsExtracted:     records,
		ScrollCycles:         scrolls,
		ConnectivityFailures: connectivity,
		InterstitialTimeouts: interstitial,
		SinkErrorsTotal:      sinkErrors,
		RemainingCategories:  remaining,
	}
}

func (m *Metrics) IncPass(outcome string) {
	if m == nil {
		return
	}
	m.PassesTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncExported() {
	if m == nil {
		return
	}
	m.CategoriesExported.Inc()
}

func (m *Metrics) AddRecords(shape string, n int) {
	if m == nil {
		return
	}
	m.RecordsExtracted.WithLabelValues(shape).Add(float64(n))
}

func (m *Metrics) ObserveScrollCycles(n int) {
	if m == nil {
		return
	}
	m.ScrollCycles.Observe(float64(n))
}

func (m *Metrics) IncConnectivityFailure() {
	if m == nil {
		return
	}
	m.ConnectivityFailures.Inc()
}

func (m *Metrics) IncInterstitialTimeout() {
	if m == nil {
		return
	}
	m.InterstitialTimeouts.Inc()
}

func (m *Metrics) IncSinkError(sink string) {
	if m == nil {
		return
	}
	m.SinkErrorsTotal.WithLabelValues(sink).Inc()
}

func (m *Metrics) SetRemaining(n int) {
	if m == nil {
		return
	}
	m.RemainingCategories.Set(float64(n))
}
