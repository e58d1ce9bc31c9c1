// Package metrics exposes Prometheus instrumentation for the capture
// pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "capture_active_sessions",
		Help: "Number of capture sessions currently running.",
	})

	ChunksPersisted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "capture_chunks_persisted_total",
		Help: "Encoded chunks durably written to the local store.",
	})

	BytesEncoded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "capture_encoded_bytes_total",
		Help: "Compressed bytes produced by the encoder.",
	})

	StorageFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "capture_storage_failures_total",
		Help: "Chunk store write failures, including retried ones.",
	})

	SessionsFinalized = promauto.NewCounter(prometheus.CounterOpts{
		Name: "capture_sessions_finalized_total",
		Help: "Sessions successfully reassembled, uploaded and cleared.",
	})
)
