// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Status constants for authentication metrics.
const (
	StatusSuccess             = "success"
	StatusInvalidCredentials  = "invalid_credentials"
	StatusLocked              = "locked"
	StatusExpired             = "expired"
	StatusFingerprintMismatch = "fingerprint_mismatch"
	StatusTokenInvalid        = "token_invalid"
	StatusTokenExpired        = "token_expired"
	StatusError               = "error"
)

// Logins is the counter for login attempts.
// Use RegisterMetrics to register this with a Prometheus registry.
var Logins = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "gatehouse_logins_total",
		Help: "Total number of login attempts by status",
	},
	[]string{"status"},
)

// SessionValidations is the counter for session validations.
// Use RegisterMetrics to register this with a Prometheus registry.
var SessionValidations = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "gatehouse_session_validations_total",
		Help: "Total number of session validations by status",
	},
	[]string{"status"},
)

// RememberResumes is the counter for remember-token resume attempts.
// Use RegisterMetrics to register this with a Prometheus registry.
var RememberResumes = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "gatehouse_remember_resumes_total",
		Help: "Total number of remember-token resume attempts by status",
	},
	[]string{"status"},
)

// RecordsSwept is the counter for expired records removed by the janitor.
// Use RegisterMetrics to register this with a Prometheus registry.
var RecordsSwept = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "gatehouse_records_swept_total",
		Help: "Total number of expired records removed by kind",
	},
	[]string{"kind"},
)

// RegisterMetrics registers auth package metrics with the given Prometheus
// registry. Must be called at startup to make metrics available on /metrics.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(Logins)
	reg.MustRegister(SessionValidations)
	reg.MustRegister(RememberResumes)
	reg.MustRegister(RecordsSwept)
}

// RecordLogin increments the login counter with the given status.
func RecordLogin(status string) {
	Logins.WithLabelValues(status).Inc()
}

// RecordSessionValidation increments the session validation counter.
func RecordSessionValidation(status string) {
	SessionValidations.WithLabelValues(status).Inc()
}

// RecordRememberResume increments the remember resume counter.
func RecordRememberResume(status string) {
	RememberResumes.WithLabelValues(status).Inc()
}

// RecordSwept adds to the swept-records counter for the given kind.
func RecordSwept(kind string, count int64) {
	if count > 0 {
		RecordsSwept.WithLabelValues(kind).Add(float64(count))
	}
}
