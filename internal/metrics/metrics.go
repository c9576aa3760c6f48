// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

// Package metrics exposes Prometheus collectors for the state engine.
//
// Recording functions are no-ops until Init has been called, so packages
// can record unconditionally.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "tofu_vault_backend"

// Default histogram buckets for operation duration (in seconds)
var defaultBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30}

type collectorSet struct {
	registry *prometheus.Registry

	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	fragmentsWritten  prometheus.Counter
	staleDeleted      prometheus.Counter
	probeAttempts     *prometheus.CounterVec
	requestsTotal     *prometheus.CounterVec
}

var (
	mu      sync.RWMutex
	current *collectorSet
)

// Init creates and registers the collectors, replacing any from an earlier
// call.
func Init(namespace string) {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	cs := &collectorSet{
		registry: registry,

		operationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Total number of state and lock operations",
			},
			[]string{"operation", "result"},
		),

		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of state and lock operations",
				Buckets:   defaultBuckets,
			},
			[]string{"operation"},
		),

		fragmentsWritten: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fragments_written_total",
				Help:      "Total number of state fragments written to the secret store",
			},
		),

		staleDeleted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stale_fragments_deleted_total",
				Help:      "Total number of fragments left over from longer states that were deleted",
			},
		),

		probeAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chunk_probe_attempts_total",
				Help:      "Total number of chunk size probing writes",
			},
			[]string{"outcome"},
		),

		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests by route and status code",
			},
			[]string{"route", "code"},
		),
	}

	registry.MustRegister(
		cs.operationsTotal,
		cs.operationDuration,
		cs.fragmentsWritten,
		cs.staleDeleted,
		cs.probeAttempts,
		cs.requestsTotal,
	)

	mu.Lock()
	current = cs
	mu.Unlock()
}

func get() *collectorSet {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// Registry returns the registry created by Init, or nil.
func Registry() *prometheus.Registry {
	if cs := get(); cs != nil {
		return cs.registry
	}
	return nil
}

// Handler returns an HTTP handler serving the registered metrics.
func Handler() http.Handler {
	cs := get()
	if cs == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(cs.registry, promhttp.HandlerOpts{})
}

// ObserveOperation records the outcome and duration of an operation that
// started at start. It takes a pointer so it can be deferred before the
// error is known.
func ObserveOperation(op string, start time.Time, errp *error) {
	cs := get()
	if cs == nil {
		return
	}
	result := "ok"
	if errp != nil && *errp != nil {
		result = "error"
	}
	cs.operationsTotal.WithLabelValues(op, result).Inc()
	cs.operationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// FragmentsWritten counts n fragments written.
func FragmentsWritten(n int) {
	if cs := get(); cs != nil {
		cs.fragmentsWritten.Add(float64(n))
	}
}

// StaleFragmentDeleted counts one stale fragment deleted.
func StaleFragmentDeleted() {
	if cs := get(); cs != nil {
		cs.staleDeleted.Inc()
	}
}

// ProbeAttempt counts one chunk size probing write.
func ProbeAttempt(accepted bool) {
	cs := get()
	if cs == nil {
		return
	}
	outcome := "rejected"
	if accepted {
		outcome = "accepted"
	}
	cs.probeAttempts.WithLabelValues(outcome).Inc()
}

// ObserveRequest counts one HTTP request answered with status.
func ObserveRequest(route string, status int) {
	if cs := get(); cs != nil {
		cs.requestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
	}
}
