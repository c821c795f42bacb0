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

// Handle is a caller's reference to a loaded (or loading/failed) resource.
// An empty Handle (zero value) is returned on UnknownType and ShuttingDown
// failures, per the error-handling design: those are surfaced via the
// Handle's own observable state rather than only an error return.
type Handle struct {
	TypeID string
	ID     string

	res *resource.Resource
}

// State returns the underlying resource's lifecycle state. An empty
// Handle reports Unloaded.
func (h *Handle) State() resource.State {
	if h == nil || h.res == nil {
		return resource.Unloaded
	}
	return h.res.State()
}

// RefCount returns the underlying resource's reference count.
func (h *Handle) RefCount() int {
	if h == nil || h.res == nil {
		return 0
	}
	return h.res.RefCount()
}

// Valid reports whether this Handle actually refers to a resource.
func (h *Handle) Valid() bool {
	return h != nil && h.res != nil
}

// Release gives back the reference this Handle represents. It never
// unloads the resource itself: the hub's cache takes its own extra
// reference on first load (see Hub.Load) and keeps it until an explicit
// Unload or eviction decides otherwise, so the count this decrements
// never reaches the threshold that would trigger unloadImpl. Calling
// Release on an empty Handle is a no-op.
func (h *Handle) Release() error {
	if h == nil || h.res == nil {
		return nil
	}
	return h.res.Unload()
}
