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

package hub

import "github.com/jshub/rhub/resource"

// WorkerCount returns the current number of live worker goroutines.
func (h *Hub) WorkerCount() int {
	return h.pool.WorkerCount()
}

// SetWorkerCount resizes the worker pool. A count below 1 is rejected
// with ErrInvalidWorkerCount; the pool may never be driven to zero.
func (h *Hub) SetWorkerCount(n int) error {
	if n < 1 {
		return ErrInvalidWorkerCount
	}
	h.pool.Resize(n)
	h.metrics.SetWorkerCount(h.pool.WorkerCount())
	return nil
}

// QuiesceWorkers shrinks the pool to a single worker, for tests that need
// to observe the queue without concurrent drain. It is a thin wrapper
// over the pool's Resize kept as a distinct, self-documenting testing
// hook; unlike SetWorkerCount it does not update the worker-count metric.
func (h *Hub) QuiesceWorkers() {
	h.pool.Resize(1)
}

// ResumeWorkers restores the pool to n workers after QuiesceWorkers.
func (h *Hub) ResumeWorkers(n int) {
	if n < 1 {
		n = 1
	}
	h.pool.Resize(n)
}

// Shutdown is idempotent: it marks the hub as shutting down (so further
// loads fail fast with ErrShuttingDown), stops the worker
// pool (in-flight jobs finish, queued-but-unstarted jobs are dropped), and
// clears every node from the graph.
func (h *Hub) Shutdown() {
	h.shutdownMu.Lock()
	if h.shuttingDown {
		h.shutdownMu.Unlock()
		return
	}
	h.shuttingDown = true
	h.shutdownMu.Unlock()

	h.pool.Shutdown()

	keys, _ := h.g.Keys(h.timeout)
	for _, k := range keys {
		h.g.WithNodeRead(k, h.timeout, func(payload interface{}) error {
			if res, ok := payload.(*resource.Resource); ok {
				res.ForceUnloaded()
			}
			return nil
		})
		h.g.RemoveNode(k, h.timeout)
	}
}
