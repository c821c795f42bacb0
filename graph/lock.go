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

import (
	"time"

	"github.com/jshub/rhub/util/trylock"
)

// WithNodeRead acquires key's node lock for reading within timeout, runs
// fn with the current payload, and releases the lock before returning. The
// graph lock is never held during fn.
func (g *Graph) WithNodeRead(key Key, timeout time.Duration, fn func(payload interface{}) error) error {
	n, err := g.lookup(key, timeout)
	if err != nil {
		return err
	}
	if !g.checkLock(trylock.RLock(&n.mu, g.timeout(timeout))) {
		return ErrLockTimeout
	}
	defer n.mu.RUnlock()
	return fn(n.payload)
}

// WithNodeWrite acquires key's node lock exclusively within timeout, runs
// fn with the current payload and a setter to replace it, and updates the
// last-access timestamp on return.
func (g *Graph) WithNodeWrite(key Key, timeout time.Duration, fn func(payload interface{}, set func(interface{})) error) error {
	n, err := g.lookup(key, timeout)
	if err != nil {
		return err
	}
	if !g.checkLock(trylock.Lock(&n.mu, g.timeout(timeout))) {
		return ErrLockTimeout
	}
	defer n.mu.Unlock()
	set := func(p interface{}) { n.payload = p }
	err = fn(n.payload, set)
	n.lastAccess = time.Now()
	return err
}

func (g *Graph) lookup(key Key, timeout time.Duration) (*Node, error) {
	if !g.checkLock(trylock.RLock(&g.mu, g.timeout(timeout))) {
		return nil, ErrLockTimeout
	}
	n, ok := g.nodes[key]
	g.mu.RUnlock()
	if !ok {
		return nil, ErrNodeNotFound
	}
	return n, nil
}

// Touch updates key's last-access timestamp to now, under the node's write
// lock, and returns the new value.
func (g *Graph) Touch(key Key, timeout time.Duration) (time.Time, error) {
	n, err := g.lookup(key, timeout)
	if err != nil {
		return time.Time{}, err
	}
	if !g.checkLock(trylock.Lock(&n.mu, g.timeout(timeout))) {
		return time.Time{}, ErrLockTimeout
	}
	defer n.mu.Unlock()
	n.lastAccess = time.Now()
	return n.lastAccess, nil
}

// LastAccess returns key's last-access timestamp.
func (g *Graph) LastAccess(key Key, timeout time.Duration) (time.Time, error) {
	n, err := g.lookup(key, timeout)
	if err != nil {
		return time.Time{}, err
	}
	if !g.checkLock(trylock.RLock(&n.mu, g.timeout(timeout))) {
		return time.Time{}, ErrLockTimeout
	}
	defer n.mu.RUnlock()
	return n.lastAccess, nil
}

// RegisterNodeCallback registers cb to receive lock-status notifications
// for intent on key's node. A caller owns at most one callback per intent
// on a given node; registering again for the same intent replaces it.
func (g *Graph) RegisterNodeCallback(key Key, intent Intent, cb Callback, timeout time.Duration) error {
	n, err := g.lookup(key, timeout)
	if err != nil {
		return err
	}
	n.callbackMu.Lock()
	defer n.callbackMu.Unlock()
	n.callbacks[intent] = cb
	return nil
}

// UnregisterNodeCallback removes the callback registered under intent on
// key's node, if any. Removal matches by intent, not callback identity.
func (g *Graph) UnregisterNodeCallback(key Key, intent Intent, timeout time.Duration) error {
	n, err := g.lookup(key, timeout)
	if err != nil {
		return err
	}
	n.callbackMu.Lock()
	defer n.callbackMu.Unlock()
	delete(n.callbacks, intent)
	return nil
}

// Reservation is a held claim on a node, acquired via Graph.Reserve. Call
// Release exactly once to give it up.
type Reservation struct {
	node     *Node
	intent   Intent
	released bool
}

// Release gives up the reservation and notifies the node's registered
// callback (if any) for this intent with StatusReleased. Calling Release
// more than once is a no-op.
func (r *Reservation) Release() {
	if r.released {
		return
	}
	r.released = true
	switch r.intent {
	case IntentRead:
		r.node.mu.RUnlock()
	case IntentNodeModify, IntentGraphStructure:
		r.node.mu.Unlock()
	}
	r.node.notifyIntent(r.intent, StatusReleased)
}

// Reserve claims key's node under the given intent within timeout.
// IntentRead maps to the node's read lock, IntentNodeModify and
// IntentGraphStructure both map to its write lock (GraphStructure is the
// advisory "I am about to touch adjacency around this node" claim used by
// the resource lock protocol's Intention mode). On success, the node's
// registered callback for this intent (if any) is notified with
// StatusAcquired; on timeout, with StatusFailed.
func (g *Graph) Reserve(key Key, intent Intent, timeout time.Duration) (*Reservation, error) {
	n, err := g.lookup(key, timeout)
	if err != nil {
		return nil, err
	}

	var acquired bool
	switch intent {
	case IntentRead:
		acquired = trylock.RLock(&n.mu, g.timeout(timeout))
	case IntentNodeModify, IntentGraphStructure:
		acquired = trylock.Lock(&n.mu, g.timeout(timeout))
	default:
		return nil, ErrInvalidIntent
	}

	if !g.checkLock(acquired) {
		n.notifyIntent(intent, StatusFailed)
		return nil, ErrLockTimeout
	}
	n.notifyIntent(intent, StatusAcquired)
	return &Reservation{node: n, intent: intent}, nil
}
