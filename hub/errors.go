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

import "errors"

var (
	// ErrShuttingDown is returned by Load, and passed to the callback of
	// LoadAsync (and so Preload), once Shutdown has started. Other
	// operations do not check for shutdown.
	ErrShuttingDown = errors.New("hub: shutting down")

	// ErrWouldOrphanDependents is returned by Unload(cascade=false) when
	// the target node still has dependents.
	ErrWouldOrphanDependents = errors.New("hub: node has dependents")

	// ErrInvalidWorkerCount is returned by SetWorkerCount(0) and negative
	// counts; the worker pool may never be driven to zero.
	ErrInvalidWorkerCount = errors.New("hub: worker count must be >= 1")
)
