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

import "strconv"

// Intent describes why a caller is touching a node: a plain metadata read,
// a claim on a single node's payload, or a claim that the graph's adjacency
// around that node is about to change. The resource lock protocol (package
// reslock) maps its own lock modes onto these three.
type Intent int

const (
	// IntentRead signals a non-exclusive read of a node's payload.
	IntentRead Intent = iota
	// IntentNodeModify signals an exclusive claim on a single node.
	IntentNodeModify
	// IntentGraphStructure signals an advisory intent to mutate the
	// adjacency around a node; it is the strongest intent.
	IntentGraphStructure
)

// String renders the intent in the package's stringer-generated style.
func (i Intent) String() string {
	switch i {
	case IntentRead:
		return "Read"
	case IntentNodeModify:
		return "NodeModify"
	case IntentGraphStructure:
		return "GraphStructure"
	default:
		return "Intent(" + strconv.Itoa(int(i)) + ")"
	}
}

// CallbackStatus is the status delivered to a node's registered callbacks
// when its lock state changes.
type CallbackStatus int

const (
	// StatusAcquired means the reservation succeeded.
	StatusAcquired CallbackStatus = iota
	// StatusReleased means a held reservation was released.
	StatusReleased
	// StatusPreempted means the node is being removed out from under any
	// holder.
	StatusPreempted
	// StatusBackgroundWait means a structural mutation is in progress
	// elsewhere in the graph and node lockers should back off.
	StatusBackgroundWait
	// StatusFailed means the reservation attempt could not be satisfied
	// (e.g. it timed out).
	StatusFailed
)

func (s CallbackStatus) String() string {
	switch s {
	case StatusAcquired:
		return "Acquired"
	case StatusReleased:
		return "Released"
	case StatusPreempted:
		return "Preempted"
	case StatusBackgroundWait:
		return "BackgroundWait"
	case StatusFailed:
		return "Failed"
	default:
		return "CallbackStatus(" + strconv.Itoa(int(s)) + ")"
	}
}

// Callback is notified of lock-status transitions for the intent it was
// registered under.
type Callback func(status CallbackStatus)
