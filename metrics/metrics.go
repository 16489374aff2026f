// Package metrics provides Prometheus metrics for tokenproxy.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Refresh kinds.
const (
	KindExpiry = "expiry"
	KindForced = "forced"
)

// Result labels for metrics.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultEmpty   = "empty"
)

const namespace = "tokenproxy"

// Metrics holds the collectors. A nil *Metrics records nothing.
type Metrics struct {
	// TokenRefresh counts token issuer calls.
	TokenRefresh *prometheus.CounterVec

	// DownstreamRequests counts downstream calls by final status.
	DownstreamRequests *prometheus.CounterVec

	// UnauthorizedRetries counts 401-triggered retries.
	UnauthorizedRetries prometheus.Counter

	// RateLimitRejected counts requests rejected by the rate limiter.
	RateLimitRejected prometheus.Counter
}

// New creates the collectors and registers them on registerer.
func New(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		TokenRefresh: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "token",
				Name:      "refresh_total",
				Help:      "Total number of token issuer calls",
			},
			[]string{"kind", "result"},
		),
		DownstreamRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "downstream",
				Name:      "requests_total",
				Help:      "Total number of downstream requests",
			},
			[]string{"method", "status"},
		),
		UnauthorizedRetries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "downstream",
				Name:      "unauthorized_retries_total",
				Help:      "Total number of retries after downstream 401",
			},
		),
		RateLimitRejected: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ratelimit",
				Name:      "rejected_total",
				Help:      "Total number of requests rejected by rate limit",
			},
		),
	}

	registerer.MustRegister(
		m.TokenRefresh,
		m.DownstreamRequests,
		m.UnauthorizedRetries,
		m.RateLimitRejected,
	)

	return m
}

// RecordRefresh counts one issuer call.
func (m *Metrics) RecordRefresh(kind, result string) {
	if m == nil {
		return
	}
	m.TokenRefresh.WithLabelValues(kind, result).Inc()
}

// RecordDownstream counts one downstream call. status 0 means transport error.
func (m *Metrics) RecordDownstream(method string, status int) {
	if m == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.DownstreamRequests.WithLabelValues(method, label).Inc()
}

// RecordUnauthorizedRetry counts one 401-triggered retry.
func (m *Metrics) RecordUnauthorizedRetry() {
	if m == nil {
		return
	}
	m.UnauthorizedRetries.Inc()
}

// RecordRateLimitRejected counts one rejected request.
func (m *Metrics) RecordRateLimitRejected() {
	if m == nil {
		return
	}
	m.RateLimitRejected.Inc()
}
