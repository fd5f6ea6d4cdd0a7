// SPDX-FileCopyrightText: Copyright 2026 The kokoro-auth Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics holds the Prometheus instruments exported by kokoro-auth.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "kokoro_auth"

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics groups the counters recorded by the auth flows. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	// TokenGrants counts /oauth/token outcomes by grant type and error code.
	TokenGrants *prometheus.CounterVec
	// SessionValidations counts session lookups by result.
	SessionValidations *prometheus.CounterVec
	// ConnectLinks counts connect callbacks by provider and outcome.
	ConnectLinks *prometheus.CounterVec
	// SyncEnqueueFailures counts post-link sync jobs that could not be queued.
	SyncEnqueueFailures *prometheus.CounterVec
}

// New creates the counters and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TokenGrants: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_grants_total",
			Help:      "Token endpoint requests by grant type and result.",
		}, []string{"grant_type", "result"}),
		SessionValidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_validations_total",
			Help:      "Session token validations by result.",
		}, []string{"result"}),
		ConnectLinks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connect_links_total",
			Help:      "External account connect callbacks by provider and outcome.",
		}, []string{"provider", "outcome"}),
		SyncEnqueueFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_enqueue_failures_total",
			Help:      "Sync jobs that could not be queued after an account was linked.",
		}, []string{"provider"}),
	}
	reg.MustRegister(m.TokenGrants, m.SessionValidations, m.ConnectLinks, m.SyncEnqueueFailures)
	return m
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// TokenGrant records the result of a token request. result is "success" or
// the OAuth error code.
func (m *Metrics) TokenGrant(grantType, result string) {
	if m == nil {
		return
	}
	m.TokenGrants.WithLabelValues(grantType, result).Inc()
}

// SessionValidation records a session validation result.
func (m *Metrics) SessionValidation(result string) {
	if m == nil {
		return
	}
	m.SessionValidations.WithLabelValues(result).Inc()
}

// ConnectLink records a connect callback outcome.
func (m *Metrics) ConnectLink(provider, outcome string) {
	if m == nil {
		return
	}
	m.ConnectLinks.WithLabelValues(provider, outcome).Inc()
}

// SyncEnqueueFailure records a failed sync enqueue.
func (m *Metrics) SyncEnqueueFailure(provider string) {
	if m == nil {
		return
	}
	m.SyncEnqueueFailures.WithLabelValues(provider).Inc()
}
