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

package resource

import (
	"fmt"
	"sync"
)

// Capability is the set of type-specific hooks a resource needs: how big
// it is once loaded, and how to load and unload it. No inheritance graph
// is required, just a struct of closures injected by the type registry at
// construction time.
type Capability struct {
	// EstimatedBytes reports the resource's memory footprint once
	// loaded. It is only consulted while the resource is Loaded.
	EstimatedBytes func() int64

	// Load performs the actual load work. A non-nil error moves the
	// resource to LoadingFailed.
	Load func() error

	// Unload performs the actual unload work. Its error is reported to
	// the caller, but the resource is forced to Unloaded regardless, so
	// a throwing/failing unload never wedges the hub.
	Unload func() error
}

// Resource is a typed, stateful, reference-counted unit of loadable data.
// All state and refcount transitions are serialized by an internal mutex,
// independent of whatever graph/node locks a caller layers on top.
type Resource struct {
	TypeID string
	ID     string

	mu       sync.Mutex
	state    State
	refCount int
	cap      Capability
}

// New constructs a resource in the Unloaded state with the given
// capability set.
func New(typeID, id string, cap Capability) *Resource {
	return &Resource{
		TypeID: typeID,
		ID:     id,
		state:  Unloaded,
		cap:    cap,
	}
}

// String renders the resource as "TypeID[ID]".
func (r *Resource) String() string {
	return fmt.Sprintf("%s[%s]", r.TypeID, r.ID)
}

// State returns the resource's current lifecycle state.
func (r *Resource) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// RefCount returns the current reference count.
func (r *Resource) RefCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refCount
}

// EstimatedBytes returns the resource's memory footprint if it is
// currently Loaded, and 0 otherwise — only Loaded resources count against
// a memory budget.
func (r *Resource) EstimatedBytes() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != Loaded || r.cap.EstimatedBytes == nil {
		return 0
	}
	return r.cap.EstimatedBytes()
}

// Load drives the resource towards Loaded, per the state machine in the
// package doc. If the resource is already Loaded, this is an additional
// reference: the refcount increases and loadImpl is not invoked again. A
// resource in LoadingFailed may be retried freely.
func (r *Resource) Load() error {
	r.mu.Lock()
	switch r.state {
	case Unloaded, LoadingFailed:
		r.state = Loading
	case Loaded:
		r.refCount++
		r.mu.Unlock()
		return nil
	case Loading, Unloading:
		r.mu.Unlock()
		return fmt.Errorf("%w: Load while %s", ErrInvalidTransition, r.state)
	default:
		r.mu.Unlock()
		return ErrInvalidTransition
	}
	r.mu.Unlock()

	// loadImpl runs without the resource's own mutex held, so concurrent
	// RefCount()/State() reads on other resources (and, if the caller
	// layers a node lock on top, concurrent metadata reads elsewhere in
	// the graph) are never blocked on this one's load.
	var err error
	if r.cap.Load != nil {
		err = func() (err error) {
			defer func() {
				if p := recover(); p != nil {
					err = fmt.Errorf("resource: loadImpl panicked: %v", p)
				}
			}()
			return r.cap.Load()
		}()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.state = LoadingFailed
		return err
	}
	r.state = Loaded
	r.refCount++
	return nil
}

// Unload drops one reference. When the refcount transitions from 1 to 0
// for a currently-loaded resource, unloadImpl runs and the resource moves
// to Unloaded via Unloading. If the refcount remains above 0, this is a
// no-op beyond the decrement.
//
// cascade is not passed here: the hub is responsible for deciding whether
// a resource with active dependents may be unloaded at all; by the time
// Unload is called, that decision has already been made.
func (r *Resource) Unload() error {
	r.mu.Lock()
	if r.state != Loaded {
		r.mu.Unlock()
		return fmt.Errorf("%w: Unload while %s", ErrInvalidTransition, r.state)
	}
	if r.refCount > 1 {
		r.refCount--
		r.mu.Unlock()
		return nil
	}
	r.refCount = 0
	r.state = Unloading
	r.mu.Unlock()

	var err error
	if r.cap.Unload != nil {
		err = func() (err error) {
			defer func() {
				if p := recover(); p != nil {
					err = fmt.Errorf("resource: unloadImpl panicked: %v", p)
				}
			}()
			return r.cap.Unload()
		}()
	}

	// Force Unloaded regardless of unloadImpl's outcome: an unload that
	// panics or errors must never wedge the hub. The caller (hub) is
	// expected to log err.
	r.mu.Lock()
	r.state = Unloaded
	r.mu.Unlock()
	return err
}

// ForceUnloaded resets the resource to Unloaded and zeroes its refcount
// without invoking unloadImpl. The hub calls it during Shutdown on every
// node's resource, whatever its state, before removing the node.
func (r *Resource) ForceUnloaded() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = Unloaded
	r.refCount = 0
}
