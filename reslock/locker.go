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

import (
	"sort"
	"sync"
	"time"

	"github.com/jshub/rhub/graph"
)

// Metrics receives notifications for the two failure modes this package
// guards against. *metrics.Metrics satisfies this.
type Metrics interface {
	IncLockTimeout(source string)
	IncDeadlock()
}

// Owner identifies the logical "thread" requesting a lock. Go has no
// stable goroutine identity to key off of, so callers supply their own
// stable token per logical actor (a worker-pool slot id, a request id,
// whatever is appropriate for the caller).
type Owner string

// DefaultTimeout mirrors graph.DefaultTimeout for lock acquisition calls
// that don't specify their own.
const DefaultTimeout = graph.DefaultTimeout

// Locker implements the resource lock protocol over a *graph.Graph: it
// maps Shared/Exclusive/Upgrade/Intention onto the graph's node intents
// and prevents deadlock using the graph's edges as a lock ordering.
type Locker struct {
	g *graph.Graph

	// lockGraphMu is the "lock-graph mutex" that serializes the deadlock
	// checks and the thread->keys/holders bookkeeping. It is separate
	// from the DAG's own graph mutex. It is not a leaf: the path check in
	// deadlockCheckLocked calls graph.PathExists, which takes the graph's
	// read lock (bounded by the caller's timeout) while lockGraphMu is
	// held. No node lock is taken while it is held.
	lockGraphMu sync.Mutex
	ownerKeys   map[Owner]map[graph.Key]struct{}
	holders     map[graph.Key]map[Owner]struct{}

	history *History
	metrics Metrics
}

// Option configures a Locker at construction time.
type Option func(*Locker)

// WithHistory enables the optional bounded lock-history log at the given
// capacity.
func WithHistory(capacity int) Option {
	return func(l *Locker) { l.history = NewHistory(capacity) }
}

// WithMetrics wires a Metrics sink that gets one IncDeadlock() call per
// rejected circular-wait acquisition and one IncLockTimeout("reslock")
// call per failed lock acquisition.
func WithMetrics(m Metrics) Option {
	return func(l *Locker) { l.metrics = m }
}

// NewLocker builds a Locker over g.
func NewLocker(g *graph.Graph, opts ...Option) *Locker {
	l := &Locker{
		g:         g,
		ownerKeys: make(map[Owner]map[graph.Key]struct{}),
		holders:   make(map[graph.Key]map[Owner]struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LockHistory returns the retained lock-history entries, or nil if history
// wasn't enabled.
func (l *Locker) LockHistory() []HistoryEntry {
	return l.history.Entries()
}

// Handle is a held resource lock.
type Handle struct {
	locker   *Locker
	key      graph.Key
	owner    Owner
	mode     Mode
	status   Status
	res      *graph.Reservation
	released bool
}

// Key returns the locked key.
func (h *Handle) Key() graph.Key { return h.key }

// Status returns the handle's current observable status.
func (h *Handle) Status() Status { return h.status }

// Mode returns the mode the handle was created with.
func (h *Handle) Mode() Mode { return h.mode }

// deadlockCheckLocked runs both deadlock-prevention checks (reverse-order
// acquisition and wait-for intersection), assuming the caller already
// holds lockGraphMu.
func (l *Locker) deadlockCheckLocked(owner Owner, key graph.Key, timeout time.Duration) error {
	held := l.ownerKeys[owner]

	// Check 1: would acquiring key create a reverse-order acquisition
	// against something owner already holds?
	for y := range held {
		if y == key {
			continue
		}
		ok, err := l.g.PathExists(key, y, timeout)
		if err != nil {
			return err
		}
		if ok {
			l.reportDeadlock()
			return ErrDeadlockDetected
		}
	}

	// Check 2: wait-for intersection. Does some other owner U hold key
	// while also holding something T (owner) already holds?
	for u := range l.holders[key] {
		if u == owner {
			continue
		}
		for y := range l.ownerKeys[u] {
			if _, ok := held[y]; ok {
				l.reportDeadlock()
				return ErrDeadlockDetected
			}
		}
	}
	return nil
}

func (l *Locker) reportDeadlock() {
	if l.metrics != nil {
		l.metrics.IncDeadlock()
	}
}

func (l *Locker) reportLockTimeout() {
	if l.metrics != nil {
		l.metrics.IncLockTimeout("reslock")
	}
}

func (l *Locker) recordAttemptLocked(owner Owner, key graph.Key) {
	if l.ownerKeys[owner] == nil {
		l.ownerKeys[owner] = make(map[graph.Key]struct{})
	}
	l.ownerKeys[owner][key] = struct{}{}
	if l.holders[key] == nil {
		l.holders[key] = make(map[Owner]struct{})
	}
	l.holders[key][owner] = struct{}{}
}

func (l *Locker) rollbackLocked(owner Owner, key graph.Key) {
	delete(l.ownerKeys[owner], key)
	if len(l.ownerKeys[owner]) == 0 {
		delete(l.ownerKeys, owner)
	}
	delete(l.holders[key], owner)
	if len(l.holders[key]) == 0 {
		delete(l.holders, key)
	}
}

// Lock acquires key under mode on behalf of owner, within timeout (0 uses
// DefaultTimeout).
func (l *Locker) Lock(owner Owner, key graph.Key, mode Mode, timeout time.Duration) (*Handle, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	l.history.record(HistoryEntry{Action: "attempt", Key: key, Owner: owner, Mode: mode})

	l.lockGraphMu.Lock()
	if err := l.deadlockCheckLocked(owner, key, timeout); err != nil {
		l.lockGraphMu.Unlock()
		l.history.record(HistoryEntry{Action: "fail", Key: key, Owner: owner, Mode: mode})
		return nil, err
	}
	l.recordAttemptLocked(owner, key)
	l.lockGraphMu.Unlock()

	res, err := l.g.Reserve(key, intentFor(mode), timeout)
	if err != nil {
		l.lockGraphMu.Lock()
		l.rollbackLocked(owner, key)
		l.lockGraphMu.Unlock()
		l.history.record(HistoryEntry{Action: "fail", Key: key, Owner: owner, Mode: mode})
		if err == graph.ErrLockTimeout {
			l.reportLockTimeout()
			return nil, ErrLockTimeout
		}
		return nil, err
	}

	status := StatusShared
	switch mode {
	case Exclusive:
		status = StatusExclusive
	case Intention:
		status = StatusIntention
	}

	h := &Handle{locker: l, key: key, owner: owner, mode: mode, status: status, res: res}
	l.history.record(HistoryEntry{Action: "acquire", Key: key, Owner: owner, Mode: mode})
	return h, nil
}

// Release gives up the handle. It is safe to call more than once; the
// second and subsequent calls return ErrAlreadyReleased.
func (h *Handle) Release() error {
	if h.released {
		return ErrAlreadyReleased
	}
	h.released = true
	h.res.Release()

	l := h.locker
	l.lockGraphMu.Lock()
	l.rollbackLocked(h.owner, h.key)
	l.lockGraphMu.Unlock()

	h.status = Unlocked
	l.history.record(HistoryEntry{Action: "release", Key: h.key, Owner: h.owner, Mode: h.mode})
	return nil
}

// Upgrade promotes a Shared handle created with mode Upgrade to Exclusive.
// It releases the shared node lock and attempts an exclusive acquisition
// within timeout; on failure it attempts to reacquire the shared lock on a
// best-effort basis and returns the failure.
func (h *Handle) Upgrade(timeout time.Duration) error {
	if h.mode != Upgrade || h.status != StatusShared {
		return ErrInvalidUpgrade
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	l := h.locker

	h.res.Release() // give up the shared node lock
	h.status = StatusPending

	res, err := l.g.Reserve(h.key, graph.IntentNodeModify, timeout)
	if err != nil {
		// best effort: try to get the shared lock back
		if back, rerr := l.g.Reserve(h.key, graph.IntentRead, timeout); rerr == nil {
			h.res = back
			h.status = StatusShared
		} else {
			h.res = nil
			h.status = Unlocked
		}
		l.history.record(HistoryEntry{Action: "upgrade-fail", Key: h.key, Owner: h.owner, Mode: h.mode})
		if err == graph.ErrLockTimeout {
			l.reportLockTimeout()
			return ErrLockTimeout
		}
		return err
	}

	h.res = res
	h.status = StatusExclusive
	l.history.record(HistoryEntry{Action: "upgrade", Key: h.key, Owner: h.owner, Mode: h.mode})
	return nil
}

// LockAll acquires every key in keys under mode on behalf of owner. It
// computes a safe acquisition order from the induced subgraph of keys (a
// restriction of the DAG's topological order if that subgraph is acyclic,
// else a deterministic key-sorted order), then acquires sequentially; any
// failure releases everything already acquired, in reverse order.
func (l *Locker) LockAll(owner Owner, keys []graph.Key, mode Mode, timeout time.Duration) ([]*Handle, error) {
	order := l.safeOrder(keys, timeout)

	handles := make([]*Handle, 0, len(order))
	for _, key := range order {
		h, err := l.Lock(owner, key, mode, timeout)
		if err != nil {
			for i := len(handles) - 1; i >= 0; i-- {
				handles[i].Release()
			}
			return nil, err
		}
		handles = append(handles, h)
	}
	return handles, nil
}

func (l *Locker) safeOrder(keys []graph.Key, timeout time.Duration) []graph.Key {
	full, err := l.g.TopologicalSort(timeout)
	if err == nil && len(full) > 0 {
		want := make(map[graph.Key]bool, len(keys))
		for _, k := range keys {
			want[k] = true
		}
		ordered := make([]graph.Key, 0, len(keys))
		seen := make(map[graph.Key]bool, len(keys))
		for _, k := range full {
			if want[k] {
				ordered = append(ordered, k)
				seen[k] = true
			}
		}
		if len(ordered) == len(keys) {
			return ordered
		}
	}
	// fallback: deterministic key-sorted order
	out := make([]graph.Key, len(keys))
	copy(out, keys)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
