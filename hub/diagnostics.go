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
)

// HasResource reports whether id currently has a node in the hub.
func (h *Hub) HasResource(id string) bool {
	has, err := h.g.HasNode(graph.Key(id), h.timeout)
	return err == nil && has
}

// IsLoaded reports whether id's resource is currently in state Loaded.
func (h *Hub) IsLoaded(id string) bool {
	var res *resource.Resource
	err := h.g.WithNodeRead(graph.Key(id), h.timeout, func(payload interface{}) error {
		res, _ = payload.(*resource.Resource)
		return nil
	})
	return err == nil && res != nil && res.State() == resource.Loaded
}

// DependenciesOf returns id's direct dependencies (its outgoing edges).
func (h *Hub) DependenciesOf(id string) ([]string, error) {
	keys, err := h.g.Dependencies(graph.Key(id), h.timeout)
	if err != nil {
		return nil, err
	}
	return keysToStrings(keys), nil
}

// DependentsOf returns id's direct dependents (its incoming edges).
func (h *Hub) DependentsOf(id string) ([]string, error) {
	keys, err := h.g.Dependents(graph.Key(id), h.timeout)
	if err != nil {
		return nil, err
	}
	return keysToStrings(keys), nil
}

func keysToStrings(keys []graph.Key) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = string(k)
	}
	return out
}

// Stats is a diagnostic snapshot of the hub's current state, beyond the
// core getters named by the external interface.
type Stats struct {
	NumNodes     int
	NumEdges     int
	MemoryUsage  int64
	MemoryBudget int64
	WorkerCount  int
	Components   [][]string
}

// Stats returns a point-in-time diagnostic snapshot.
func (h *Hub) Stats() Stats {
	n, _ := h.g.NumNodes(h.timeout)
	e, _ := h.g.NumEdges(h.timeout)
	components, _ := h.g.ConnectedComponents(h.timeout)
	comp := make([][]string, len(components))
	for i, c := range components {
		comp[i] = keysToStrings(c)
	}
	return Stats{
		NumNodes:     n,
		NumEdges:     e,
		MemoryUsage:  h.MemoryUsage(),
		MemoryBudget: h.MemoryBudget(),
		WorkerCount:  h.WorkerCount(),
		Components:   comp,
	}
}
