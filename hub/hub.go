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

// Package hub implements the resource hub facade: a type registry-backed
// cache over the coordinated DAG, with synchronous and asynchronous
// prioritized loading, dependency management, cascading unload, and
// budget-driven LRU eviction.
package hub

import (
	"context"
	"runtime"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/jshub/rhub/graph"
	"github.com/jshub/rhub/metrics"
	"github.com/jshub/rhub/resource"
	"github.com/jshub/rhub/wpool"
	"github.com/jshub/rhub/xerr"
)

// DefaultTimeout is used for every internal graph/node operation that
// isn't given a more specific one.
const DefaultTimeout = 25 * time.Millisecond

// Config configures a Hub at construction time, following a
// struct-plus-constructor idiom rather than a mutable zero value.
type Config struct {
	// Registry supplies the typeId -> Factory mapping. Required.
	Registry *resource.Registry

	// Workers is the initial worker pool size. Defaults to
	// runtime.NumCPU() when <= 0, and is never allowed to reach zero.
	Workers int

	// MemoryBudget is the initial memory budget in bytes. Zero means no
	// budget is enforced (EnforceMemoryBudget always returns 0).
	MemoryBudget int64

	// Timeout is the default per-operation lock timeout.
	Timeout time.Duration

	// LoadRate and LoadBurst configure the token-bucket limiter guarding
	// LoadAsync/Preload enqueue. Zero LoadRate disables throttling.
	LoadRate  rate.Limit
	LoadBurst int

	// Metrics is optional; a nil value disables instrumentation.
	Metrics *metrics.Metrics

	// Logf receives diagnostic messages. Defaults to a no-op.
	Logf func(format string, v ...interface{})
}

// Hub is the resource hub facade (C4).
type Hub struct {
	g        *graph.Graph
	registry *resource.Registry
	pool     *wpool.Pool

	loadLimiter *rate.Limiter

	budgetMu sync.Mutex
	budget   int64

	shutdownMu   sync.Mutex
	shuttingDown bool

	timeout time.Duration
	metrics *metrics.Metrics
	Logf    func(format string, v ...interface{})
}

// New builds a Hub from cfg. Init-style validation happens here rather
// than in a separate Init() method since Hub has no useful zero value (it
// must own a running worker pool from construction).
func New(cfg Config) *Hub {
	if cfg.Registry == nil {
		cfg.Registry = resource.NewRegistry()
	}
	workers := cfg.Workers
	if workers < 1 {
		workers = runtime.NumCPU()
		if workers < 1 {
			workers = 1
		}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	logf := cfg.Logf
	if logf == nil {
		logf = func(string, ...interface{}) {}
	}

	h := &Hub{
		g:        graph.NewGraph("hub", graph.WithDefaultTimeout(timeout), graph.WithLogf(logf), graph.WithMetrics(cfg.Metrics)),
		registry: cfg.Registry,
		pool:     wpool.New(workers),
		budget:   cfg.MemoryBudget,
		timeout:  timeout,
		metrics:  cfg.Metrics,
		Logf:     logf,
	}
	if cfg.LoadRate > 0 {
		h.loadLimiter = rate.NewLimiter(cfg.LoadRate, cfg.LoadBurst)
	}
	h.metrics.SetMemoryBudget(h.budget)
	h.metrics.SetWorkerCount(h.pool.WorkerCount())
	return h
}

func (h *Hub) isShuttingDown() bool {
	h.shutdownMu.Lock()
	defer h.shutdownMu.Unlock()
	return h.shuttingDown
}

// ensureNode returns the resource stored at key and whether this call
// created its node. The registry's Factory is only invoked on the path
// that actually creates the node; an already-cached key is fetched
// without touching the registry at all.
func (h *Hub) ensureNode(typeID string, key graph.Key) (*resource.Resource, bool, error) {
	has, err := h.g.HasNode(key, h.timeout)
	if err != nil {
		return nil, false, err
	}
	if has {
		var existing *resource.Resource
		err = h.g.WithNodeRead(key, h.timeout, func(p interface{}) error {
			existing, _ = p.(*resource.Resource)
			return nil
		})
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}

	res, ferr := h.registry.Construct(typeID, string(key))
	if ferr != nil {
		return nil, false, ferr
	}

	_, created, err := h.g.AddNode(key, res, h.timeout)
	if err != nil {
		return nil, false, err
	}
	if created {
		return res, true, nil
	}

	// Another goroutine created the node between our HasNode check and
	// AddNode; fetch what actually landed instead of the Resource we just
	// constructed (and discard).
	var existing *resource.Resource
	err = h.g.WithNodeRead(key, h.timeout, func(p interface{}) error {
		existing, _ = p.(*resource.Resource)
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// driveLoaded ensures res is loaded (or retried from LoadingFailed),
// taking one reference on behalf of the caller, touching the node's
// access timestamp in the same write-locked step.
func (h *Hub) driveLoaded(key graph.Key, res *resource.Resource) error {
	return h.g.WithNodeWrite(key, h.timeout, func(payload interface{}, set func(interface{})) error {
		return res.Load()
	})
}

// Load synchronously loads (or attaches an additional reference to) the
// resource identified by typeId/id, constructing it via the registry on
// first use. The very first load of a key takes an extra reference on the
// cache's own behalf, so the resource's reference count never drops below
// 1 while it sits in the cache: dropping the returned Handle only gives
// back the caller's own share (see Handle.Release), and the hub's cache
// hold is released only by an explicit Unload or eviction.
func (h *Hub) Load(typeID, id string) (*Handle, error) {
	if h.isShuttingDown() {
		return &Handle{}, ErrShuttingDown
	}
	key := graph.Key(id)

	res, created, err := h.ensureNode(typeID, key)
	if err != nil {
		h.metrics.IncLoadFailed()
		return &Handle{}, err
	}

	if created {
		if err := h.driveLoaded(key, res); err != nil {
			h.metrics.IncLoadFailed()
			return &Handle{TypeID: typeID, ID: id, res: res}, err
		}
	}

	if err := h.driveLoaded(key, res); err != nil {
		h.metrics.IncLoadFailed()
		return &Handle{TypeID: typeID, ID: id, res: res}, err
	}

	h.metrics.IncLoadSuccess()
	h.EnforceMemoryBudget()
	return &Handle{TypeID: typeID, ID: id, res: res}, nil
}

// LoadAsync enqueues a prioritized load. If the resource is already
// Loaded, cb is invoked synchronously on the calling goroutine; otherwise
// the request is enqueued and a worker drives it, invoking cb on the
// worker goroutine without any lock held.
func (h *Hub) LoadAsync(typeID, id string, priority wpool.Priority, cb func(*Handle, error)) {
	if h.isShuttingDown() {
		if cb != nil {
			cb(&Handle{}, ErrShuttingDown)
		}
		return
	}
	if h.loadLimiter != nil {
		h.loadLimiter.Wait(context.Background())
	}

	key := graph.Key(id)
	if h.alreadyLoaded(key) {
		handle, err := h.Load(typeID, id)
		if cb != nil {
			cb(handle, err)
		}
		return
	}

	h.pool.Submit(wpool.Job{
		Priority: priority,
		Run: func(ctx context.Context) {
			handle, err := h.Load(typeID, id)
			if cb != nil {
				cb(handle, err)
			}
		},
	})
}

// alreadyLoaded reports whether key names an existing node whose resource
// is currently Loaded, without constructing or loading anything. It
// drives LoadAsync's fast path: when true, the caller goes through Load
// directly (taking its own reference the same way the synchronous path
// does) instead of enqueueing a worker job.
func (h *Hub) alreadyLoaded(key graph.Key) bool {
	has, err := h.g.HasNode(key, h.timeout)
	if err != nil || !has {
		return false
	}
	var res *resource.Resource
	err = h.g.WithNodeRead(key, h.timeout, func(payload interface{}) error {
		res, _ = payload.(*resource.Resource)
		return nil
	})
	return err == nil && res != nil && res.State() == resource.Loaded
}

// Preload enqueues one load request per (typeID, id) pair with no
// callback; it is the bulk warm-the-cache entry point.
func (h *Hub) Preload(typeIDs, ids []string, priority wpool.Priority) {
	n := len(typeIDs)
	if len(ids) < n {
		n = len(ids)
	}
	for i := 0; i < n; i++ {
		h.LoadAsync(typeIDs[i], ids[i], priority, nil)
	}
}

// AddDependency inserts an edge dependent -> dependency, meaning dependent
// depends on dependency. It reports false on cycle rejection.
func (h *Hub) AddDependency(dependent, dependency string) (bool, error) {
	err := h.g.AddEdge(graph.Key(dependent), graph.Key(dependency), h.timeout)
	if err == graph.ErrCycleDetected {
		return false, nil
	}
	if err != nil {
		return false, xerr.Wrapf(err, "add_dependency(%s, %s)", dependent, dependency)
	}
	return true, nil
}

// RemoveDependency removes the edge dependent -> dependency if present.
func (h *Hub) RemoveDependency(dependent, dependency string) (bool, error) {
	return h.g.RemoveEdge(graph.Key(dependent), graph.Key(dependency), h.timeout)
}
