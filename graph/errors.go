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

import "errors"

// Sentinel errors returned by Graph operations. These are values, never
// panics: a well-formed call into this package never terminates the
// process.
var (
	// ErrLockTimeout is returned when a try_lock could not be acquired
	// within the caller-supplied timeout.
	ErrLockTimeout = errors.New("graph: lock timeout")

	// ErrCycleDetected is returned when an edge insertion would close a
	// cycle, including the degenerate case of a self-loop.
	ErrCycleDetected = errors.New("graph: cycle detected")

	// ErrNodeNotFound is returned when an operation references a key that
	// has no node in the graph.
	ErrNodeNotFound = errors.New("graph: node not found")

	// ErrNodeExists is returned by the strict node-creation path when a
	// node with the given key is already present.
	ErrNodeExists = errors.New("graph: node already exists")

	// ErrInvalidIntent is returned when an unrecognized Intent value is
	// passed to Reserve.
	ErrInvalidIntent = errors.New("graph: invalid intent")
)
