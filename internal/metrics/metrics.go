// Prism - Virtual Library Proxy for Emby-compatible Media Servers
// Copyright 2026 The Prism Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/prism-media/prism

// Package metrics exposes Prometheus instrumentation for the proxy:
// request routing, cache efficiency, upstream health, merge fan-outs, and
// background cover generation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Proxy request metrics.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prism_requests_total",
			Help: "Total proxied requests by handling interceptor and status",
		},
		[]string{"handler", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "prism_request_duration_seconds",
			Help:    "Proxied request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"handler"},
	)

	// Response cache metrics.
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "prism_response_cache_hits_total",
			Help: "Response cache hits",
		},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "prism_response_cache_misses_total",
			Help: "Response cache misses",
		},
	)

	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "prism_response_cache_entries",
			Help: "Current response cache size",
		},
	)

	// Upstream client metrics.
	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prism_upstream_requests_total",
			Help: "Upstream requests by outcome",
		},
		[]string{"outcome"},
	)

	UpstreamDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "prism_upstream_request_duration_seconds",
			Help:    "Upstream request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Circuit breaker state: 0 closed, 1 half-open, 2 open.
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "prism_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prism_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// Merge fan-out metrics.
	MergeOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prism_merge_operations_total",
			Help: "Merge operations by kind (listing, seasons, episodes)",
		},
		[]string{"kind"},
	)

	MergeBatchesFetched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "prism_merge_batches_fetched_total",
			Help: "Exhaustive-pagination batches fetched for merge listings",
		},
	)

	// Auth gate metrics.
	AuthDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prism_auth_decisions_total",
			Help: "Access gate decisions by outcome (allow, redirect, deny)",
		},
		[]string{"outcome"},
	)

	// WebSocket relay metrics.
	WebSocketSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "prism_websocket_sessions",
			Help: "Currently relayed WebSocket sessions",
		},
	)

	// Background cover generation metrics.
	CoverGenerations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prism_cover_generations_total",
			Help: "Cover generation attempts by outcome",
		},
		[]string{"outcome"},
	)
)
