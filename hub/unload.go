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
	"github.com/jshub/rhub/graph"
	"github.com/jshub/rhub/resource"
	"github.com/jshub/rhub/xerr"
)

// Unload drops the hub's reference to id. Without cascade, it refuses
// (returning false, ErrWouldOrphanDependents) if id still has dependents
// in the graph. With cascade, it computes {id} union id's transitive
// dependencies (everything id depends on, directly or indirectly),
// topologically sorts that subgraph (dependents before what they depend
// on, matching TopologicalSort's order), and walks it in that order,
// unloading each node only once it currently has no remaining dependents
// — which id's own removal is what makes its former dependencies eligible
// in turn.
func (h *Hub) Unload(id string, cascade bool) (bool, error) {
	key := graph.Key(id)

	has, err := h.g.HasNode(key, h.timeout)
	if err != nil {
		return false, err
	}
	if !has {
		return false, nil
	}

	if !cascade {
		dependents, err := h.g.Dependents(key, h.timeout)
		if err != nil {
			return false, err
		}
		if len(dependents) > 0 {
			return false, ErrWouldOrphanDependents
		}
		return h.unloadOne(key)
	}

	order, err := h.cascadeOrder(key)
	if err != nil {
		return false, err
	}

	var combined error
	for _, k := range order {
		dependents, err := h.g.Dependents(k, h.timeout)
		if err != nil {
			combined = xerr.Append(combined, err)
			continue
		}
		if len(dependents) > 0 {
			// Still referenced by something outside this cascade (or not
			// yet reached by it); leave it loaded.
			continue
		}
		if _, err := h.unloadOne(k); err != nil {
			combined = xerr.Append(combined, err)
		}
	}
	return combined == nil, combined
}

// cascadeOrder returns start plus its transitive dependencies (the nodes
// start depends on, directly or indirectly), in dependents-before-
// dependencies order so that by the time a dependency is visited, the
// dependent that was keeping it alive has already been unloaded and its
// edge removed.
func (h *Hub) cascadeOrder(start graph.Key) ([]graph.Key, error) {
	subgraph := map[graph.Key]bool{start: true}
	frontier := []graph.Key{start}
	for len(frontier) > 0 {
		k := frontier[0]
		frontier = frontier[1:]
		deps, err := h.g.Dependencies(k, h.timeout)
		if err != nil {
			return nil, err
		}
		for _, d := range deps {
			if !subgraph[d] {
				subgraph[d] = true
				frontier = append(frontier, d)
			}
		}
	}

	full, err := h.g.TopologicalSort(h.timeout)
	if err != nil {
		return nil, err
	}
	var filtered []graph.Key
	for _, k := range full {
		if subgraph[k] {
			filtered = append(filtered, k)
		}
	}
	return filtered, nil
}

// unloadOne unloads and removes a single node's resource, forcing it to
// Unloaded even if unloadImpl errors, then erases the node from the graph.
func (h *Hub) unloadOne(key graph.Key) (bool, error) {
	var res *resource.Resource
	err := h.g.WithNodeRead(key, h.timeout, func(payload interface{}) error {
		res, _ = payload.(*resource.Resource)
		return nil
	})
	if err != nil {
		return false, err
	}
	if res == nil {
		return false, nil
	}

	unloadErr := res.Unload()
	if res.State() == resource.Unloaded && res.RefCount() == 0 {
		if _, err := h.g.RemoveNode(key, h.timeout); err != nil {
			return false, xerr.Append(unloadErr, err)
		}
	}
	return unloadErr == nil, unloadErr
}
