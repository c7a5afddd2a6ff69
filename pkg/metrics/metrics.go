// Copyright (c) 2025 Siggi.io
//
// This file is part of CredentialServer.
//
// CredentialServer is free software licensed under the
// GNU Affero General Public License v3.0 (AGPL-3.0).
// See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

// Package metrics provides Prometheus instrumentation for credential
// ceremonies, storage backends, and the HTTP surface.
package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the Prometheus namespace for all server metrics
	Namespace = "credentialserver"

	// Label names
	LabelType       = "type"
	LabelNamespace  = "namespace"
	LabelBackend    = "backend"
	LabelStatus     = "status"
	LabelOperation  = "operation"
	LabelMethod     = "method"
	LabelStatusCode = "status_code"

	// Status values
	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusError   = "error"
)

var (
	// RegistrationsTotal counts credential registration ceremonies by
	// mechanism and outcome.
	RegistrationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "registrations_total",
			Help:      "Total number of credential registration ceremonies by type and status",
		},
		[]string{LabelType, LabelNamespace, LabelStatus},
	)

	// LoginsTotal counts login ceremonies by mechanism and outcome.
	LoginsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "logins_total",
			Help:      "Total number of login ceremonies by type and status",
		},
		[]string{LabelType, LabelNamespace, LabelStatus},
	)

	// StorageOperationDuration tracks how long user reads and saves
	// take per backend.
	StorageOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "storage",
			Name:      "operation_duration_seconds",
			Help:      "Duration of storage operations in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{LabelOperation, LabelBackend},
	)

	// HTTPRequestsTotal counts HTTP requests by method and status code.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method and status code",
		},
		[]string{LabelMethod, LabelStatusCode},
	)

	// HTTPRequestDuration tracks the duration of HTTP requests in seconds.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{LabelMethod},
	)

	// enabled tracks whether metrics collection is enabled
	enabled atomic.Bool
)

func init() {
	enabled.Store(true)
}

// SetEnabled toggles metrics collection at runtime.
func SetEnabled(on bool) {
	enabled.Store(on)
}

// IsEnabled reports whether metrics collection is enabled.
func IsEnabled() bool {
	return enabled.Load()
}

// RecordCeremony counts one finished ceremony.
func RecordCeremony(registration bool, typ, namespace, status string) {
	if !enabled.Load() {
		return
	}
	if registration {
		RegistrationsTotal.WithLabelValues(typ, namespace, status).Inc()
	} else {
		LoginsTotal.WithLabelValues(typ, namespace, status).Inc()
	}
}

// RecordStorageOperation observes one user read or save against a
// storage backend.
func RecordStorageOperation(operation, backend string, duration float64) {
	if !enabled.Load() {
		return
	}
	StorageOperationDuration.WithLabelValues(operation, backend).Observe(duration)
}

// RecordHTTPRequest records one served HTTP request.
func RecordHTTPRequest(method, statusCode string, duration float64) {
	if !enabled.Load() {
		return
	}
	HTTPRequestsTotal.WithLabelValues(method, statusCode).Inc()
	HTTPRequestDuration.WithLabelValues(method).Observe(duration)
}
