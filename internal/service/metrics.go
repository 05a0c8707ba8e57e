package service

import (
	"time"

	"github.com/cloo-solutions/newsvec/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "newsvec"

// Metrics holds the core's prometheus collectors. A nil *Metrics records nothing.
type Metrics struct {
	ingestTotal        *prometheus.CounterVec
	ingestChunks       prometheus.Counter
	operationDuration  *prometheus.HistogramVec
	storeErrors        *prometheus.CounterVec
	enrichmentDegrades prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		ingestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "ingest_total",
			Help:      "Ingest calls by outcome.",
		}, []string{"outcome"}),
		ingestChunks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "ingest_chunks_total",
			Help:      "Chunk records written by accepted ingests.",
		}),
		operationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "search_duration_seconds",
			Help:      "Latency of retrieval operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		storeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "store_errors_total",
			Help:      "Vector store failures by operation.",
		}, []string{"operation"}),
		enrichmentDegrades: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "enrichment_degraded_total",
			Help:      "Documents enriched without keywords because extraction failed.",
		}),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{
			m.ingestTotal, m.ingestChunks, m.operationDuration, m.storeErrors, m.enrichmentDegrades,
		} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) ingested(status domain.IngestStatus, chunks int) {
	if m == nil {
		return
	}
	m.ingestTotal.WithLabelValues(string(status)).Inc()
	if chunks > 0 {
		m.ingestChunks.Add(float64(chunks))
	}
}

func (m *Metrics) observe(operation string, started time.Time) {
	if m == nil {
		return
	}
	m.operationDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

func (m *Metrics) storeError(operation string) {
	if m == nil {
		return
	}
	m.storeErrors.WithLabelValues(operation).Inc()
}

func (m *Metrics) enrichmentDegraded() {
	if m == nil {
		return
	}
	m.enrichmentDegrades.Inc()
}
