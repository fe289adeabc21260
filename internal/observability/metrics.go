// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ideaboard Contributors

package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Label values shared by the recorders.
const (
	TransportHTTP = "http"
	TransportGRPC = "grpc"

	CodeKindReset = "password_reset"
	CodeKindEmail = "email_verification"
)

// Metrics holds the service counters. A nil *Metrics records nothing.
type Metrics struct {
	RequestsTotal      *prometheus.CounterVec
	AuthAttemptsTotal  *prometheus.CounterVec
	CodesIssuedTotal   *prometheus.CounterVec
	CodesConsumedTotal *prometheus.CounterVec
	TokensIssuedTotal  prometheus.Counter
	MailFailuresTotal  *prometheus.CounterVec
}

// NewMetrics creates the counters and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ideaboard_requests_total",
				Help: "Total number of requests by transport and status",
			},
			[]string{"transport", "status"},
		),
		AuthAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ideaboard_auth_attempts_total",
				Help: "Total number of credential checks by result",
			},
			[]string{"result"},
		),
		CodesIssuedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ideaboard_codes_issued_total",
				Help: "Total number of verification codes issued by kind",
			},
			[]string{"kind"},
		),
		CodesConsumedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ideaboard_codes_consumed_total",
				Help: "Total number of code consumption attempts by kind and result",
			},
			[]string{"kind", "result"},
		),
		TokensIssuedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ideaboard_tokens_issued_total",
				Help: "Total number of session tokens issued",
			},
		),
		MailFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ideaboard_mail_failures_total",
				Help: "Total number of failed mail deliveries by kind",
			},
			[]string{"kind"},
		),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.AuthAttemptsTotal,
		m.CodesIssuedTotal,
		m.CodesConsumedTotal,
		m.TokensIssuedTotal,
		m.MailFailuresTotal,
	)
	return m
}

// RecordRequest counts one finished request.
func (m *Metrics) RecordRequest(transport, status string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(transport, status).Inc()
}

// RecordAuthAttempt counts one credential check. result is "success",
// "failure" or "error".
func (m *Metrics) RecordAuthAttempt(result string) {
	if m == nil {
		return
	}
	m.AuthAttemptsTotal.WithLabelValues(result).Inc()
}

// RecordCodeIssued counts one issued code of kind.
func (m *Metrics) RecordCodeIssued(kind string) {
	if m == nil {
		return
	}
	m.CodesIssuedTotal.WithLabelValues(kind).Inc()
}

// RecordCodeConsumed counts one consumption attempt of kind.
func (m *Metrics) RecordCodeConsumed(kind, result string) {
	if m == nil {
		return
	}
	m.CodesConsumedTotal.WithLabelValues(kind, result).Inc()
}

// RecordTokenIssued counts one minted token.
func (m *Metrics) RecordTokenIssued() {
	if m == nil {
		return
	}
	m.TokensIssuedTotal.Inc()
}

// RecordMailFailure counts one undelivered or dropped message of kind.
func (m *Metrics) RecordMailFailure(kind string) {
	if m == nil {
		return
	}
	m.MailFailuresTotal.WithLabelValues(kind).Inc()
}
