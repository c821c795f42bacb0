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

// Package resource implements the typed resource lifecycle state machine
// (Unloaded -> Loading -> {Loaded, LoadingFailed}, Loaded -> Unloading ->
// Unloaded), reference counting, and the process-wide type registry that
// constructs resources from a capability set rather than from an
// inheritance hierarchy.
package resource

import "errors"

// State is a point in the resource lifecycle state machine.
type State int

const (
	// Unloaded is the initial and resting state: no load is pending and
	// nothing needs to be unloaded.
	Unloaded State = iota
	// Loading means a loadImpl call is in flight.
	Loading
	// Loaded means the last loadImpl succeeded and no completed unload
	// has followed.
	Loaded
	// LoadingFailed means loadImpl returned failure or panicked; a retry
	// is a normal next step.
	LoadingFailed
	// Unloading means an unloadImpl call is in flight.
	Unloading
)

func (s State) String() string {
	switch s {
	case Unloaded:
		return "Unloaded"
	case Loading:
		return "Loading"
	case Loaded:
		return "Loaded"
	case LoadingFailed:
		return "LoadingFailed"
	case Unloading:
		return "Unloading"
	default:
		return "State(?)"
	}
}

// ErrInvalidTransition is returned when an operation would move a resource
// through a transition not named in the state machine.
var ErrInvalidTransition = errors.New("resource: invalid state transition")
