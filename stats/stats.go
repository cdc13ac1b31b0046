// Package stats tracks RPC-surface counters and gauges, adapted from the
// teacher's statsd-style tracker to push the same values through
// Prometheus client metrics instead.
/*
 * Copyright (c) 2018-2023, NVIDIA CORPORATION. All rights reserved.
 */
package stats

import "github.com/prometheus/client_golang/prometheus"

// Tracker mirrors the pack's coreStats idiom: one struct grouping the
// counters and gauges a client/server process reports, registered
// against a single Prometheus registry at construction.
type Tracker struct {
	RequestsTotal   *prometheus.CounterVec
	RequestErrors   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	BytesUploaded   prometheus.Counter
	BlobsDeduped    prometheus.Counter
	ReconnectTotal  prometheus.Counter
	QueueDepth      prometheus.Gauge
}

// NewTracker builds and registers a Tracker on reg. Passing nil uses the
// default global registry.
func NewTracker(reg prometheus.Registerer) *Tracker {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	t := &Tracker{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cxdb",
			Name:      "requests_total",
			Help:      "Total RPC requests issued, by op.",
		}, []string{"op"}),
		RequestErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cxdb",
			Name:      "request_errors_total",
			Help:      "Total RPC request failures, by op and error kind.",
		}, []string{"op", "kind"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cxdb",
			Name:      "request_duration_seconds",
			Help:      "RPC round-trip latency, by op.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		BytesUploaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cxdb",
			Name:      "bytes_uploaded_total",
			Help:      "Total novel blob bytes pushed by the uploader.",
		}),
		BlobsDeduped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cxdb",
			Name:      "blobs_deduped_total",
			Help:      "Total blob puts that the server reported as already stored.",
		}),
		ReconnectTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cxdb",
			Name:      "reconnect_total",
			Help:      "Total successful reconnect attempts.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cxdb",
			Name:      "reconnect_queue_depth",
			Help:      "Current depth of the reconnecting client's bounded queue.",
		}),
	}

	reg.MustRegister(t.RequestsTotal, t.RequestErrors, t.RequestDuration,
		t.BytesUploaded, t.BlobsDeduped, t.ReconnectTotal, t.QueueDepth)
	return t
}

// ObserveRequest records one completed op's outcome and latency.
func (t *Tracker) ObserveRequest(op string, seconds float64, errKind string) {
	t.RequestsTotal.WithLabelValues(op).Inc()
	t.RequestDuration.WithLabelValues(op).Observe(seconds)
	if errKind != "" {
		t.RequestErrors.WithLabelValues(op, errKind).Inc()
	}
}

// ObserveUpload records one blob upload outcome.
func (t *Tracker) ObserveUpload(bytesWritten int64, wasNew bool) {
	if wasNew {
		t.BytesUploaded.Add(float64(bytesWritten))
		return
	}
	t.BlobsDeduped.Inc()
}
