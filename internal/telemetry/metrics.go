/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// API
	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clipdeck_api_requests_total",
		Help: "HTTP requests by method, route and status.",
	}, []string{"method", "endpoint", "status"})

	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "clipdeck_api_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})

	APIActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "clipdeck_api_active_connections",
		Help: "In-flight HTTP requests.",
	})

	APIWebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "clipdeck_api_websocket_connections",
		Help: "Open event stream websockets.",
	})

	// Editor
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "clipdeck_sessions_active",
		Help: "Open editor sessions.",
	})

	ProbeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clipdeck_probe_total",
		Help: "Media probes by result.",
	}, []string{"result"})

	ProbeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "clipdeck_probe_duration_seconds",
		Help:    "Media probe latency.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8},
	})

	WaveformTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clipdeck_waveform_total",
		Help: "Waveform analyses by result.",
	}, []string{"result"})

	WaveformCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clipdeck_waveform_cache_total",
		Help: "Waveform cache lookups by result (hit, miss, error).",
	}, []string{"result"})

	// Export
	ExportTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clipdeck_export_total",
		Help: "Exports by path (original, copy, reencode) and result.",
	}, []string{"path", "result"})

	ExportTierFallbackTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clipdeck_export_tier_fallback_total",
		Help: "Exports that fell back from stream copy to re-encode.",
	})

	ExportDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "clipdeck_export_duration_seconds",
		Help:    "Export latency by final path.",
		Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	}, []string{"path"})

	EngineInitialized = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "clipdeck_engine_initialized",
		Help: "1 once the transcoding engine has been constructed.",
	})

	HandoffTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clipdeck_handoff_total",
		Help: "Hand-off channel operations by op (put, take) and result.",
	}, []string{"op", "result"})
)

// Handler exposes metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

var (
	// Database
	DatabaseQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "clipdeck_database_query_duration_seconds",
		Help:    "Database operation latency by operation and table.",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"operation", "table"})

	DatabaseErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clipdeck_database_errors_total",
		Help: "Database operation errors by operation.",
	}, []string{"operation"})

	DatabaseConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "clipdeck_database_connections_active",
		Help: "Open database connections.",
	})
)
