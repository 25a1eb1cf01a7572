// Package metrics exposes harvest counters for Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/nggdpp/ndc-harvester/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ndc_harvester"

// Metrics holds the harvester's collectors. A nil *Metrics records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	batches       *prometheus.CounterVec
	records       *prometheus.CounterVec
	notices       *prometheus.CounterVec
	batchDuration *prometheus.HistogramVec
	fetchErrors   prometheus.Counter
	jobsRunning   prometheus.Gauge
	lastHarvest   *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg. When reg is nil a
// private registry is used.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{gatherer: reg}
	m.batches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "batches_total",
		Help:      "Source files processed by normalizer and outcome",
	}, []string{"normalizer", "status"})
	m.records = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "records_total",
		Help:      "Records emitted by normalizer",
	}, []string{"normalizer"})
	m.notices = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notices_total",
		Help:      "Processing notices attached to emitted records",
	}, []string{"normalizer"})
	m.batchDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "batch_duration_seconds",
		Help:      "Time spent fetching and normalizing one source file",
		Buckets:   prometheus.DefBuckets,
	}, []string{"normalizer"})
	m.fetchErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fetch_errors_total",
		Help:      "Source files that could not be fetched",
	})
	m.jobsRunning = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "jobs_running",
		Help:      "Harvest jobs currently running",
	})
	m.lastHarvest = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_harvest_timestamp_seconds",
		Help:      "Unix timestamp of the last completed harvest per collection",
	}, []string{"collection"})

	reg.MustRegister(
		m.batches, m.records, m.notices, m.batchDuration,
		m.fetchErrors, m.jobsRunning, m.lastHarvest,
	)
	return m
}

// ObserveBatch records one finished batch.
func (m *Metrics) ObserveBatch(b *models.Batch, elapsed time.Duration) {
	if m == nil || b == nil || b.Meta == nil {
		return
	}
	normalizer := b.Meta.Normalizer
	if normalizer == "" {
		normalizer = "none"
	}
	status := "ok"
	if b.Meta.Failed() {
		status = "failed"
		for _, e := range b.Meta.ErrorList {
			if e.Kind == models.ErrorKindFetch {
				m.fetchErrors.Inc()
				break
			}
		}
	}
	m.batches.WithLabelValues(normalizer, status).Inc()
	m.records.WithLabelValues(normalizer).Add(float64(len(b.Records)))
	m.notices.WithLabelValues(normalizer).Add(float64(b.NoticeCount()))
	m.batchDuration.WithLabelValues(normalizer).Observe(elapsed.Seconds())
}

// JobStarted and JobFinished track running jobs.
func (m *Metrics) JobStarted() {
	if m != nil {
		m.jobsRunning.Inc()
	}
}

func (m *Metrics) JobFinished(collectionID string) {
	if m == nil {
		return
	}
	m.jobsRunning.Dec()
	if collectionID != "" {
		m.lastHarvest.WithLabelValues(collectionID).SetToCurrentTime()
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
