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

// Package reslock implements the higher-level resource lock protocol:
// shared/exclusive/upgrade/intention locks on graph nodes, layered on top
// of package graph's node-level intents, with deadlock prevention driven
// by the dependency DAG.
package reslock

import "github.com/jshub/rhub/graph"

// Mode is the lock mode a caller requests.
type Mode int

const (
	// Shared allows multiple concurrent readers.
	Shared Mode = iota
	// Exclusive allows a single writer and no readers.
	Exclusive
	// Upgrade enters as Shared but may later be promoted to Exclusive.
	Upgrade
	// Intention is advisory: it signals intent to lock descendants and
	// maps to a GraphStructure intent on the underlying node.
	Intention
)

func (m Mode) String() string {
	switch m {
	case Shared:
		return "Shared"
	case Exclusive:
		return "Exclusive"
	case Upgrade:
		return "Upgrade"
	case Intention:
		return "Intention"
	default:
		return "Mode(?)"
	}
}

// Status is a lock handle's observable status.
type Status int

const (
	Unlocked Status = iota
	StatusShared
	StatusExclusive
	StatusIntention
	StatusPending
)

func (s Status) String() string {
	switch s {
	case Unlocked:
		return "Unlocked"
	case StatusShared:
		return "Shared"
	case StatusExclusive:
		return "Exclusive"
	case StatusIntention:
		return "Intention"
	case StatusPending:
		return "Pending"
	default:
		return "Status(?)"
	}
}

// intentFor maps a lock Mode onto the graph-level Intent used to actually
// acquire the underlying node lock. Upgrade acquires as a read lock — it
// "enters as Shared" per its definition above — and is only later promoted
// to an exclusive node lock by Handle.Upgrade.
func intentFor(m Mode) graph.Intent {
	switch m {
	case Exclusive:
		return graph.IntentNodeModify
	case Intention:
		return graph.IntentGraphStructure
	default: // Shared, Upgrade
		return graph.IntentRead
	}
}
