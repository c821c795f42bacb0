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

package graph

import (
	"time"

	"github.com/jshub/rhub/util/trylock"
)

// snapshot copies the forward adjacency and key set under the graph's
// shared lock and releases it before returning, per the "metadata reads
// take the graph mutex shared, extract a snapshot, then drop it" protocol.
func (g *Graph) snapshot(timeout time.Duration) (keys []Key, forward map[Key]map[Key]struct{}, ok bool) {
	if !g.checkLock(trylock.RLock(&g.mu, g.timeout(timeout))) {
		return nil, nil, false
	}
	defer g.mu.RUnlock()

	keys = make([]Key, 0, len(g.nodes))
	forward = make(map[Key]map[Key]struct{}, len(g.forward))
	for k := range g.nodes {
		keys = append(keys, k)
	}
	for from, tos := range g.forward {
		cp := make(map[Key]struct{}, len(tos))
		for to := range tos {
			cp[to] = struct{}{}
		}
		forward[from] = cp
	}
	return keys, forward, true
}

// TopologicalSort returns a topological order of the graph's nodes using
// Kahn's algorithm over a lock-released snapshot of the adjacency. An
// empty graph, or a snapshot that (only possible under a racing invariant
// violation) exhibits a cycle, both yield an empty, non-error result.
func (g *Graph) TopologicalSort(timeout time.Duration) ([]Key, error) {
	keys, forward, ok := g.snapshot(timeout)
	if !ok {
		return nil, ErrLockTimeout
	}

	indegree := make(map[Key]int, len(keys))
	for _, k := range keys {
		indegree[k] = 0
	}
	for _, tos := range forward {
		for to := range tos {
			indegree[to]++
		}
	}

	var queue []Key
	for _, k := range keys {
		if indegree[k] == 0 {
			queue = append(queue, k)
		}
	}
	// deterministic order among equally-ready nodes
	sortKeySlice(queue)

	var order []Key
	remaining := indegree
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		order = append(order, v)
		var freed []Key
		for n := range forward[v] {
			remaining[n]--
			if remaining[n] == 0 {
				freed = append(freed, n)
			}
		}
		sortKeySlice(freed)
		queue = append(queue, freed...)
		sortKeySlice(queue)
	}

	if len(order) != len(keys) {
		return []Key{}, nil // cycle present in the snapshot
	}
	return order, nil
}

func sortKeySlice(ks []Key) {
	for i := 1; i < len(ks); i++ {
		for j := i; j > 0 && ks[j] < ks[j-1]; j-- {
			ks[j], ks[j-1] = ks[j-1], ks[j]
		}
	}
}

// Visitor receives a node's key and a read-locked snapshot of its payload
// at the moment it is visited. It is invoked without any lock held.
type Visitor func(key Key, payload interface{})

// BFS performs a breadth-first traversal starting at start, following
// outgoing edges. Each node's payload is read under its own read lock
// (acquired and released per-step) before the visitor is invoked.
func (g *Graph) BFS(start Key, timeout time.Duration, visit Visitor) error {
	return g.traverse(start, timeout, visit, false)
}

// DFS performs a depth-first traversal starting at start, following
// outgoing edges.
func (g *Graph) DFS(start Key, timeout time.Duration, visit Visitor) error {
	return g.traverse(start, timeout, visit, true)
}

func (g *Graph) traverse(start Key, timeout time.Duration, visit Visitor, depthFirst bool) error {
	_, forward, ok := g.snapshot(timeout)
	if !ok {
		return ErrLockTimeout
	}
	if _, exists := forward[start]; !exists {
		return ErrNodeNotFound
	}

	seen := map[Key]bool{start: true}
	frontier := []Key{start}

	for len(frontier) > 0 {
		var v Key
		if depthFirst {
			v = frontier[len(frontier)-1]
			frontier = frontier[:len(frontier)-1]
		} else {
			v = frontier[0]
			frontier = frontier[1:]
		}

		payload, err := g.readPayload(v, timeout)
		if err != nil {
			return err
		}
		visit(v, payload)

		next := sortedKeys(forward[v])
		for _, n := range next {
			if !seen[n] {
				seen[n] = true
				frontier = append(frontier, n)
			}
		}
	}
	return nil
}

func (g *Graph) readPayload(key Key, timeout time.Duration) (interface{}, error) {
	if !g.checkLock(trylock.RLock(&g.mu, g.timeout(timeout))) {
		return nil, ErrLockTimeout
	}
	n, ok := g.nodes[key]
	g.mu.RUnlock()
	if !ok {
		return nil, ErrNodeNotFound
	}
	if !g.checkLock(trylock.RLock(&n.mu, g.timeout(timeout))) {
		return nil, ErrLockTimeout
	}
	defer n.mu.RUnlock()
	return n.payload, nil
}

// PathExists reports whether there is a directed path from -> to in the
// current graph, searched over a lock-released snapshot of the adjacency.
// It is used by the resource lock protocol to decide, ahead of any node
// acquisition, whether taking a given lock would violate the DAG-derived
// safe lock ordering.
func (g *Graph) PathExists(from, to Key, timeout time.Duration) (bool, error) {
	_, forward, ok := g.snapshot(timeout)
	if !ok {
		return false, ErrLockTimeout
	}
	if from == to {
		return true, nil
	}
	seen := make(map[Key]bool)
	stack := []Key{from}
	for len(stack) > 0 {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[v] {
			continue
		}
		seen[v] = true
		if v == to {
			return true, nil
		}
		for n := range forward[v] {
			if !seen[n] {
				stack = append(stack, n)
			}
		}
	}
	return false, nil
}

// ConnectedComponents returns the weakly-connected components of the
// graph, treating edges as undirected for the purpose of grouping. This is
// a diagnostic convenience beyond the minimum C1 contract.
func (g *Graph) ConnectedComponents(timeout time.Duration) ([][]Key, error) {
	keys, forward, ok := g.snapshot(timeout)
	if !ok {
		return nil, ErrLockTimeout
	}
	undirected := make(map[Key]map[Key]struct{}, len(keys))
	for _, k := range keys {
		undirected[k] = make(map[Key]struct{})
	}
	for from, tos := range forward {
		for to := range tos {
			undirected[from][to] = struct{}{}
			undirected[to][from] = struct{}{}
		}
	}

	sortKeySlice(keys)
	seen := make(map[Key]bool, len(keys))
	var components [][]Key
	for _, start := range keys {
		if seen[start] {
			continue
		}
		var component []Key
		stack := []Key{start}
		seen[start] = true
		for len(stack) > 0 {
			v := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			component = append(component, v)
			for n := range undirected[v] {
				if !seen[n] {
					seen[n] = true
					stack = append(stack, n)
				}
			}
		}
		sortKeySlice(component)
		components = append(components, component)
	}
	return components, nil
}
