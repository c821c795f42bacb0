// Copyright (C) 2024 the rhub contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package metrics holds the hub's Prometheus instrumentation: gauges for
// the current memory usage/budget/worker count, and counters for the
// load, eviction, lock-timeout, and deadlock events the rest of the module
// reports.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultListen is the default bind address for the /metrics endpoint.
const DefaultListen = "127.0.0.1:9233"

// Metrics is the struct that owns the registered collectors. Run Init()
// before using it.
type Metrics struct {
	Listen string

	memoryUsage  prometheus.Gauge
	memoryBudget prometheus.Gauge
	workerCount  prometheus.Gauge

	loadsTotal     *prometheus.CounterVec // by outcome: success, failed
	evictionsTotal prometheus.Counter
	lockTimeouts   *prometheus.CounterVec // by package: graph, reslock
	deadlocks      prometheus.Counter
}

// Init registers every collector. Calling Init twice on the same process
// would panic via prometheus.MustRegister; callers should build one
// Metrics per process.
func (obj *Metrics) Init() error {
	if obj.Listen == "" {
		obj.Listen = DefaultListen
	}

	obj.memoryUsage = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rhub_memory_usage_bytes",
		Help: "Current estimated bytes held by loaded resources.",
	})
	prometheus.MustRegister(obj.memoryUsage)

	obj.memoryBudget = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rhub_memory_budget_bytes",
		Help: "Current memory budget in bytes.",
	})
	prometheus.MustRegister(obj.memoryBudget)

	obj.workerCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rhub_worker_count",
		Help: "Current number of live worker goroutines.",
	})
	prometheus.MustRegister(obj.workerCount)

	obj.loadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rhub_loads_total",
		Help: "Number of resource loads, by outcome.",
	}, []string{"outcome"}) // "success", "failed"
	prometheus.MustRegister(obj.loadsTotal)

	obj.evictionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rhub_evictions_total",
		Help: "Number of resources evicted by budget enforcement.",
	})
	prometheus.MustRegister(obj.evictionsTotal)

	obj.lockTimeouts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rhub_lock_timeouts_total",
		Help: "Number of lock-acquisition timeouts, by source package.",
	}, []string{"source"})
	prometheus.MustRegister(obj.lockTimeouts)

	obj.deadlocks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rhub_deadlocks_detected_total",
		Help: "Number of lock attempts rejected by deadlock prevention.",
	})
	prometheus.MustRegister(obj.deadlocks)

	return nil
}

// Start runs an HTTP server exposing /metrics in a goroutine.
func (obj *Metrics) Start() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: obj.Listen, Handler: mux}
	go server.ListenAndServe()
	return nil
}

// SetMemoryUsage records the current memory usage gauge.
func (obj *Metrics) SetMemoryUsage(bytes int64) {
	if obj == nil {
		return
	}
	obj.memoryUsage.Set(float64(bytes))
}

// SetMemoryBudget records the current memory budget gauge.
func (obj *Metrics) SetMemoryBudget(bytes int64) {
	if obj == nil {
		return
	}
	obj.memoryBudget.Set(float64(bytes))
}

// SetWorkerCount records the current worker count gauge.
func (obj *Metrics) SetWorkerCount(n int) {
	if obj == nil {
		return
	}
	obj.workerCount.Set(float64(n))
}

// IncLoadSuccess increments the successful-load counter.
func (obj *Metrics) IncLoadSuccess() {
	if obj == nil {
		return
	}
	obj.loadsTotal.WithLabelValues("success").Inc()
}

// IncLoadFailed increments the failed-load counter.
func (obj *Metrics) IncLoadFailed() {
	if obj == nil {
		return
	}
	obj.loadsTotal.WithLabelValues("failed").Inc()
}

// IncEvictions adds n to the eviction counter.
func (obj *Metrics) IncEvictions(n int) {
	if obj == nil || n <= 0 {
		return
	}
	obj.evictionsTotal.Add(float64(n))
}

// IncLockTimeout increments the lock-timeout counter for source.
func (obj *Metrics) IncLockTimeout(source string) {
	if obj == nil {
		return
	}
	obj.lockTimeouts.WithLabelValues(source).Inc()
}

// IncDeadlock increments the deadlock-detected counter.
func (obj *Metrics) IncDeadlock() {
	if obj == nil {
		return
	}
	obj.deadlocks.Inc()
}
