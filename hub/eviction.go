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

import (
	"sort"
	"time"

	"github.com/jshub/rhub/graph"
	"github.com/jshub/rhub/resource"
)

// SetMemoryBudget sets the memory budget in bytes. A budget of 0 disables
// enforcement (EnforceMemoryBudget always reports 0 evicted).
func (h *Hub) SetMemoryBudget(bytes int64) {
	h.budgetMu.Lock()
	h.budget = bytes
	h.budgetMu.Unlock()
	h.metrics.SetMemoryBudget(bytes)
}

// MemoryBudget returns the current memory budget in bytes.
func (h *Hub) MemoryBudget() int64 {
	h.budgetMu.Lock()
	defer h.budgetMu.Unlock()
	return h.budget
}

// MemoryUsage sums EstimatedBytes() across every currently-Loaded
// resource in the graph.
func (h *Hub) MemoryUsage() int64 {
	keys, err := h.g.Keys(h.timeout)
	if err != nil {
		return 0
	}
	var total int64
	for _, k := range keys {
		var res *resource.Resource
		_ = h.g.WithNodeRead(k, h.timeout, func(payload interface{}) error {
			res, _ = payload.(*resource.Resource)
			return nil
		})
		if res != nil {
			total += res.EstimatedBytes()
		}
	}
	return total
}

type evictionCandidate struct {
	key        graph.Key
	res        *resource.Resource
	lastAccess time.Time
	bytes      int64
}

// EnforceMemoryBudget evicts Loaded, unreferenced-beyond-the-cache, leaf
// (no incoming edges) resources in least-recently-accessed order until
// memory usage is at or below the budget, or candidates are exhausted.
// Concurrent callers that cannot acquire the budget mutex immediately
// return 0, since another goroutine is already enforcing.
func (h *Hub) EnforceMemoryBudget() int {
	if !h.budgetMu.TryLock() {
		return 0
	}
	defer h.budgetMu.Unlock()

	budget := h.budget
	if budget <= 0 {
		return 0
	}

	usage := h.MemoryUsage()
	if usage <= budget {
		return 0
	}
	toFree := usage - budget

	candidates := h.collectCandidates()
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].lastAccess.Equal(candidates[j].lastAccess) {
			return candidates[i].key < candidates[j].key
		}
		return candidates[i].lastAccess.Before(candidates[j].lastAccess)
	})

	var freed int64
	evicted := 0
	for _, c := range candidates {
		if freed >= toFree {
			break
		}
		ok, bytes := h.evictCandidate(c)
		if ok {
			freed += bytes
			evicted++
		}
	}
	h.metrics.IncEvictions(evicted)
	h.metrics.SetMemoryUsage(h.MemoryUsage())
	return evicted
}

// collectCandidates enumerates nodes whose resource is Loaded, has
// reference count exactly 1, and has no incoming edges.
func (h *Hub) collectCandidates() []evictionCandidate {
	keys, err := h.g.Keys(h.timeout)
	if err != nil {
		return nil
	}
	var out []evictionCandidate
	for _, k := range keys {
		var res *resource.Resource
		_ = h.g.WithNodeRead(k, h.timeout, func(payload interface{}) error {
			res, _ = payload.(*resource.Resource)
			return nil
		})
		if res == nil || res.State() != resource.Loaded || res.RefCount() != 1 {
			continue
		}
		dependents, err := h.g.Dependents(k, h.timeout)
		if err != nil || len(dependents) > 0 {
			continue
		}
		last, err := h.g.LastAccess(k, h.timeout)
		if err != nil {
			continue
		}
		out = append(out, evictionCandidate{key: k, res: res, lastAccess: last, bytes: res.EstimatedBytes()})
	}
	return out
}

// evictCandidate re-checks eligibility under the node's write lock before
// evicting, since the snapshot gathered by collectCandidates may be stale.
func (h *Hub) evictCandidate(c evictionCandidate) (bool, int64) {
	var evicted bool
	var bytes int64
	_ = h.g.WithNodeWrite(c.key, h.timeout, func(payload interface{}, set func(interface{})) error {
		res, _ := payload.(*resource.Resource)
		if res == nil || res.State() != resource.Loaded || res.RefCount() != 1 {
			return nil
		}
		bytes = res.EstimatedBytes()
		if err := res.Unload(); err != nil {
			h.Logf("hub: evict(%s): unloadImpl error: %v", c.key, err)
		}
		evicted = true
		return nil
	})
	if evicted {
		h.g.RemoveNode(c.key, h.timeout)
	}
	return evicted, bytes
}
