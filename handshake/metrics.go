// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package handshake

import "github.com/prometheus/client_golang/prometheus"

// Verification outcomes recorded by Metrics.
const (
	resultConnected    = "connected"
	resultRejected     = "rejected"
	resultExpired      = "expired"
	resultNotFound     = "not_found"
	resultInvalidState = "invalid_state"
	resultError        = "error"
)

// Metrics counts handshake activity. A nil *Metrics records nothing.
type Metrics struct {
	challengesIssued prometheus.Counter
	verifications    *prometheus.CounterVec
	sessionsSwept    prometheus.Counter
}

// NewMetrics creates the handshake collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		challengesIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "oaep",
			Subsystem: "handshake",
			Name:      "challenges_issued_total",
			Help:      "Connection challenges issued in response to connection requests.",
		}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oaep",
			Subsystem: "handshake",
			Name:      "verifications_total",
			Help:      "Connection responses verified, by result.",
		}, []string{"result"}),
		sessionsSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "oaep",
			Subsystem: "handshake",
			Name:      "sessions_swept_total",
			Help:      "Sessions removed by expiry sweeps.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.challengesIssued, m.verifications, m.sessionsSwept)
	}
	return m
}

func (m *Metrics) challengeIssued() {
	if m == nil {
		return
	}
	m.challengesIssued.Inc()
}

func (m *Metrics) verification(result string) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(result).Inc()
}

func (m *Metrics) swept(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sessionsSwept.Add(float64(n))
}
