// Copyright (C) 2026 Lumi Study (dev@lumistudy.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides metrics and instrumentation for the tutor.
//
// # Description
//
// This package implements Prometheus metrics for monitoring explanation
// streaming operations. Metrics include:
//   - Request counters (by endpoint, status, error type)
//   - Answer cache hit/miss counters
//   - Generation attempt counters and latency histograms
//   - Stream duration histograms and active stream gauges
//   - Pause/resume/interruption counters
//
// # Integration
//
// Metrics are exposed via /metrics endpoint. Use with Prometheus + Grafana
// for dashboards and alerting.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

// Namespace for all metrics
const metricsNamespace = "lumitutor"

// Subsystem for streaming metrics
const streamingSubsystem = "streaming"

// TutorMetrics holds all Prometheus metrics for explanation streaming.
//
// # Description
//
// Provides counters, histograms, and gauges for monitoring streaming
// performance, cache effectiveness, and generation reliability. Initialize
// once at startup via InitMetrics().
//
// # Thread Safety
//
// All operations are thread-safe.
type TutorMetrics struct {
	// RequestsTotal counts tutor requests by endpoint and status.
	// Labels: endpoint (ask_question, follow_up, interrupt, ...), status (success, error)
	RequestsTotal *prometheus.CounterVec

	// ErrorsTotal counts errors by type and endpoint.
	// Labels: endpoint, error_code (validation, generation_failed, session_expired, ...)
	ErrorsTotal *prometheus.CounterVec

	// CacheLookupsTotal counts answer cache lookups by outcome.
	// Labels: outcome (hit, miss)
	CacheLookupsTotal *prometheus.CounterVec

	// GenerationAttemptsTotal counts LLM generation attempts by kind and outcome.
	// Labels: kind (answer, follow_up, clarification), outcome (success, error)
	GenerationAttemptsTotal *prometheus.CounterVec

	// GenerationDurationSeconds measures wall-clock time of one generation call.
	// Labels: kind (answer, follow_up, clarification)
	GenerationDurationSeconds *prometheus.HistogramVec

	// StreamDurationSeconds measures total explanation stream duration.
	// Labels: status (success, error, paused)
	StreamDurationSeconds *prometheus.HistogramVec

	// ChunksEmittedTotal counts content chunks delivered to clients.
	ChunksEmittedTotal prometheus.Counter

	// ActiveStreams tracks currently streaming explanations.
	ActiveStreams prometheus.Gauge

	// ActiveSessions tracks currently live tutoring sessions.
	ActiveSessions prometheus.Gauge

	// PausesTotal counts pause requests by source.
	// Labels: source (client, interruption)
	PausesTotal *prometheus.CounterVec

	// ResumesTotal counts resumed explanations.
	ResumesTotal prometheus.Counter

	// InterruptionsTotal counts clarification interruptions by mode.
	// Labels: mode (brief, detailed)
	InterruptionsTotal *prometheus.CounterVec

	// ClientDisconnectsTotal counts websocket disconnections.
	ClientDisconnectsTotal prometheus.Counter
}

// DefaultMetrics is the singleton instance of TutorMetrics.
// Initialized by InitMetrics().
var DefaultMetrics *TutorMetrics

// InitMetrics initializes the default metrics instance.
//
// # Description
//
// Creates and registers all Prometheus metrics. Should be called once
// at application startup, after Prometheus registry is available.
//
// # Outputs
//
//   - *TutorMetrics: The initialized metrics instance.
//
// # Limitations
//
//   - Panics if called twice (duplicate registration).
//
// # Assumptions
//
//   - Prometheus default registry is available.
func InitMetrics() *TutorMetrics {
	DefaultMetrics = &TutorMetrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: streamingSubsystem,
				Name:      "requests_total",
				Help:      "Total number of tutor requests by endpoint and status",
			},
			[]string{"endpoint", "status"},
		),

		ErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: streamingSubsystem,
				Name:      "errors_total",
				Help:      "Total errors by type and endpoint",
			},
			[]string{"endpoint", "error_code"},
		),

		CacheLookupsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: streamingSubsystem,
				Name:      "cache_lookups_total",
				Help:      "Total answer cache lookups by outcome",
			},
			[]string{"outcome"},
		),

		GenerationAttemptsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: streamingSubsystem,
				Name:      "generation_attempts_total",
				Help:      "Total LLM generation attempts by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),

		GenerationDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: streamingSubsystem,
				Name:      "generation_duration_seconds",
				Help:      "Wall-clock duration of one generation call in seconds",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60},
			},
			[]string{"kind"},
		),

		StreamDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: streamingSubsystem,
				Name:      "stream_duration_seconds",
				Help:      "Total explanation stream duration in seconds",
				Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"status"},
		),

		ChunksEmittedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: streamingSubsystem,
				Name:      "chunks_emitted_total",
				Help:      "Total content chunks delivered to clients",
			},
		),

		ActiveStreams: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: streamingSubsystem,
				Name:      "active_streams",
				Help:      "Number of explanations currently streaming",
			},
		),

		ActiveSessions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: streamingSubsystem,
				Name:      "active_sessions",
				Help:      "Number of live tutoring sessions",
			},
		),

		PausesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: streamingSubsystem,
				Name:      "pauses_total",
				Help:      "Total pause requests by source",
			},
			[]string{"source"},
		),

		ResumesTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: streamingSubsystem,
				Name:      "resumes_total",
				Help:      "Total resumed explanations",
			},
		),

		InterruptionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: streamingSubsystem,
				Name:      "interruptions_total",
				Help:      "Total clarification interruptions by mode",
			},
			[]string{"mode"},
		),

		ClientDisconnectsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: streamingSubsystem,
				Name:      "client_disconnects_total",
				Help:      "Total websocket disconnections",
			},
		),
	}

	return DefaultMetrics
}

// =============================================================================
// Error Codes
// =============================================================================

// ErrorCode represents a categorized error type for metrics.
type ErrorCode string

const (
	// ErrorCodeValidation indicates request validation failure.
	ErrorCodeValidation ErrorCode = "validation"

	// ErrorCodeSessionExpired indicates the session TTL lapsed mid-operation.
	ErrorCodeSessionExpired ErrorCode = "session_expired"

	// ErrorCodeNoSession indicates no session could be resolved for the request.
	ErrorCodeNoSession ErrorCode = "no_session"

	// ErrorCodeGenerationFailed indicates the LLM never produced a usable answer.
	ErrorCodeGenerationFailed ErrorCode = "generation_failed"

	// ErrorCodeStreaming indicates a failure while emitting explanation events.
	ErrorCodeStreaming ErrorCode = "streaming"

	// ErrorCodeRateLimited indicates the caller exceeded the request quota.
	ErrorCodeRateLimited ErrorCode = "rate_limited"

	// ErrorCodeInternal indicates internal server error.
	ErrorCodeInternal ErrorCode = "internal"

	// ErrorCodeClientDisconnect indicates the client disconnected.
	ErrorCodeClientDisconnect ErrorCode = "client_disconnect"
)

// =============================================================================
// Endpoint Names
// =============================================================================

// Endpoint represents a tutor endpoint for metrics labeling.
type Endpoint string

const (
	// EndpointAskQuestion is the initial question endpoint (WS or HTTP).
	EndpointAskQuestion Endpoint = "ask_question"

	// EndpointFollowUp is the follow-up question endpoint.
	EndpointFollowUp Endpoint = "follow_up"

	// EndpointPause is the pause_explanation endpoint.
	EndpointPause Endpoint = "pause"

	// EndpointResume is the resume_explanation endpoint.
	EndpointResume Endpoint = "resume"

	// EndpointInterrupt is the interrupt_explanation endpoint.
	EndpointInterrupt Endpoint = "interrupt"

	// EndpointSession covers session lifecycle requests.
	EndpointSession Endpoint = "session"
)

// =============================================================================
// Helper Methods
// =============================================================================

// RecordRequest records a completed tutor request.
func (m *TutorMetrics) RecordRequest(endpoint Endpoint, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.RequestsTotal.WithLabelValues(string(endpoint), status).Inc()
}

// RecordError records an error by endpoint and code.
func (m *TutorMetrics) RecordError(endpoint Endpoint, code ErrorCode) {
	m.ErrorsTotal.WithLabelValues(string(endpoint), string(code)).Inc()
}

// RecordCacheLookup records an answer cache lookup outcome.
func (m *TutorMetrics) RecordCacheLookup(hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.CacheLookupsTotal.WithLabelValues(outcome).Inc()
}

// RecordGeneration records one generation call with its duration.
func (m *TutorMetrics) RecordGeneration(kind string, seconds float64, success bool) {
	outcome := "success"
	if !success {
		outcome = "error"
	}
	m.GenerationAttemptsTotal.WithLabelValues(kind, outcome).Inc()
	m.GenerationDurationSeconds.WithLabelValues(kind).Observe(seconds)
}

// RecordChunk increments the emitted chunk counter.
func (m *TutorMetrics) RecordChunk() {
	m.ChunksEmittedTotal.Inc()
}

// StreamStarted increments the active streams gauge.
func (m *TutorMetrics) StreamStarted() {
	m.ActiveStreams.Inc()
}

// StreamEnded decrements the active streams gauge and records the duration.
func (m *TutorMetrics) StreamEnded(seconds float64, status string) {
	m.ActiveStreams.Dec()
	m.StreamDurationSeconds.WithLabelValues(status).Observe(seconds)
}

// SessionOpened increments the active sessions gauge.
func (m *TutorMetrics) SessionOpened() {
	m.ActiveSessions.Inc()
}

// SessionClosed decrements the active sessions gauge.
func (m *TutorMetrics) SessionClosed() {
	m.ActiveSessions.Dec()
}

// RecordPause records a pause request. Source is "client" for explicit
// pause_explanation messages and "interruption" for arbiter-driven pauses.
func (m *TutorMetrics) RecordPause(source string) {
	m.PausesTotal.WithLabelValues(source).Inc()
}

// RecordResume records a resumed explanation.
func (m *TutorMetrics) RecordResume() {
	m.ResumesTotal.Inc()
}

// RecordInterruption records a clarification interruption by response mode.
func (m *TutorMetrics) RecordInterruption(mode string) {
	m.InterruptionsTotal.WithLabelValues(mode).Inc()
}

// RecordClientDisconnect increments the client disconnect counter.
func (m *TutorMetrics) RecordClientDisconnect() {
	m.ClientDisconnectsTotal.Inc()
}
