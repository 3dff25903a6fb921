// Package metrics holds the Prometheus collectors of the server and the simulator.
// Collectors live on their own registry so tests can create as many as they need.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "stationlog"

type Metrics struct {
	Registry *prometheus.Registry

	BatchesIngested   *prometheus.CounterVec
	RowsInserted      *prometheus.CounterVec
	IngestDuration    prometheus.Histogram
	HTTPRequests      *prometheus.CounterVec
	HTTPDuration      *prometheus.HistogramVec
	ExportsTotal      *prometheus.CounterVec
	SimulatorSends    *prometheus.CounterVec
	LastIngestUnixSec prometheus.Gauge
}

// New registers every collector on a fresh registry, plus the Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		BatchesIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_ingested_total",
			Help:      "Ingestion batches by source and outcome.",
		}, []string{"source", "outcome"}),
		RowsInserted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_inserted_total",
			Help:      "Measurement rows committed, by source.",
		}, []string{"source"}),
		IngestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_duration_seconds",
			Help:      "Time spent storing one batch.",
			Buckets:   prometheus.DefBuckets,
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern and status code.",
		}, []string{"route", "code"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		ExportsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exports_total",
			Help:      "CSV exports by outcome.",
		}, []string{"outcome"}),
		SimulatorSends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "simulator_sends_total",
			Help:      "Simulated batches sent, by transport and outcome.",
		}, []string{"transport", "outcome"}),
		LastIngestUnixSec: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_ingest_timestamp_seconds",
			Help:      "Unix time of the last committed batch.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.BatchesIngested,
		m.RowsInserted,
		m.IngestDuration,
		m.HTTPRequests,
		m.HTTPDuration,
		m.ExportsTotal,
		m.SimulatorSends,
		m.LastIngestUnixSec,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
