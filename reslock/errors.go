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

package reslock

import "errors"

var (
	// ErrDeadlockDetected is returned when granting the requested lock
	// would violate the DAG-derived safe lock ordering, or when the
	// wait-for intersection check finds a cycle between threads.
	ErrDeadlockDetected = errors.New("reslock: deadlock detected")

	// ErrLockTimeout is returned when the underlying node lock could not
	// be acquired within the caller's timeout.
	ErrLockTimeout = errors.New("reslock: lock timeout")

	// ErrInvalidUpgrade is returned by Handle.Upgrade when the handle
	// wasn't created with mode Upgrade in status Shared.
	ErrInvalidUpgrade = errors.New("reslock: handle is not upgradable")

	// ErrAlreadyReleased is returned by Handle.Release when called on an
	// already-released handle.
	ErrAlreadyReleased = errors.New("reslock: handle already released")
)
