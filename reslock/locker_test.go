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
	"testing"
	"time"

	"github.com/jshub/rhub/graph"
)

type fakeMetrics struct {
	lockTimeouts map[string]int
	deadlocks    int
}

func (f *fakeMetrics) IncLockTimeout(source string) {
	if f.lockTimeouts == nil {
		f.lockTimeouts = make(map[string]int)
	}
	f.lockTimeouts[source]++
}

func (f *fakeMetrics) IncDeadlock() { f.deadlocks++ }

func newTestGraph(t *testing.T, keys ...graph.Key) *graph.Graph {
	t.Helper()
	g := graph.NewGraph("t")
	for _, k := range keys {
		if _, _, err := g.AddNode(k, nil, 0); err != nil {
			t.Fatalf("AddNode(%s): %v", k, err)
		}
	}
	return g
}

func TestLockSharedAllowsConcurrentReaders(t *testing.T) {
	g := newTestGraph(t, "a")
	l := NewLocker(g)

	h1, err := l.Lock("t1", "a", Shared, 0)
	if err != nil {
		t.Fatalf("t1 lock: %v", err)
	}
	h2, err := l.Lock("t2", "a", Shared, 0)
	if err != nil {
		t.Fatalf("t2 lock: %v", err)
	}
	h1.Release()
	h2.Release()
}

func TestLockExclusiveExcludesReaders(t *testing.T) {
	g := newTestGraph(t, "a")
	l := NewLocker(g)

	h1, err := l.Lock("t1", "a", Exclusive, 0)
	if err != nil {
		t.Fatalf("t1 lock: %v", err)
	}
	defer h1.Release()

	if _, err := l.Lock("t2", "a", Shared, 5*time.Millisecond); err != ErrLockTimeout {
		t.Fatalf("expected ErrLockTimeout, got %v", err)
	}
}

// A wired Metrics sink observes one IncLockTimeout("reslock") per rejected
// contended acquisition.
func TestLockTimeoutReportsMetrics(t *testing.T) {
	g := newTestGraph(t, "a")
	m := &fakeMetrics{}
	l := NewLocker(g, WithMetrics(m))

	h1, err := l.Lock("t1", "a", Exclusive, 0)
	if err != nil {
		t.Fatalf("t1 lock: %v", err)
	}
	defer h1.Release()

	if _, err := l.Lock("t2", "a", Shared, 5*time.Millisecond); err != ErrLockTimeout {
		t.Fatalf("expected ErrLockTimeout, got %v", err)
	}
	if got := m.lockTimeouts["reslock"]; got != 1 {
		t.Fatalf("expected 1 reslock lock timeout reported, got %d", got)
	}
}

func TestDeadlockPathCheckRejectsReverseOrder(t *testing.T) {
	// x -> y (x depends on y)
	g := newTestGraph(t, "x", "y")
	if err := g.AddEdge("x", "y", 0); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}
	m := &fakeMetrics{}
	l := NewLocker(g, WithMetrics(m))

	hy, err := l.Lock("A", "y", Exclusive, 0)
	if err != nil {
		t.Fatalf("A lock y: %v", err)
	}
	defer hy.Release()

	// A now holds y and attempts x; since x -> y exists, this is a
	// reverse-order acquisition and must be rejected before any timeout.
	if _, err := l.Lock("A", "x", Exclusive, 50*time.Millisecond); err != ErrDeadlockDetected {
		t.Fatalf("expected ErrDeadlockDetected, got %v", err)
	}
	if m.deadlocks != 1 {
		t.Fatalf("expected 1 deadlock reported, got %d", m.deadlocks)
	}
}

func TestDeadlockWaitForIntersectionCheck(t *testing.T) {
	g := newTestGraph(t, "p", "q")
	l := NewLocker(g)

	hap, err := l.Lock("A", "p", Shared, 0)
	if err != nil {
		t.Fatalf("A lock p: %v", err)
	}
	defer hap.Release()

	haq, err := l.Lock("A", "q", Shared, 0)
	if err != nil {
		t.Fatalf("A lock q: %v", err)
	}
	defer haq.Release()

	hbq, err := l.Lock("B", "q", Shared, 0)
	if err != nil {
		t.Fatalf("B lock q: %v", err)
	}
	defer hbq.Release()

	// B already holds q, same as A. B now wants p, which A holds: A and B
	// both hold q, and A additionally holds p, so granting p to B would
	// close a wait-for cycle between A and B.
	if _, err := l.Lock("B", "p", Shared, 50*time.Millisecond); err != ErrDeadlockDetected {
		t.Fatalf("expected ErrDeadlockDetected, got %v", err)
	}
}

func TestUpgradeHappyPath(t *testing.T) {
	g := newTestGraph(t, "a")
	l := NewLocker(g)

	h, err := l.Lock("t1", "a", Upgrade, 0)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	if h.Status() != StatusShared {
		t.Fatalf("expected Shared after Upgrade-mode acquisition, got %v", h.Status())
	}
	if err := h.Upgrade(0); err != nil {
		t.Fatalf("Upgrade: %v", err)
	}
	if h.Status() != StatusExclusive {
		t.Fatalf("expected Exclusive after promotion, got %v", h.Status())
	}
	h.Release()
}

func TestUpgradeRejectedForWrongMode(t *testing.T) {
	g := newTestGraph(t, "a")
	l := NewLocker(g)

	h, err := l.Lock("t1", "a", Shared, 0)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	defer h.Release()
	if err := h.Upgrade(0); err != ErrInvalidUpgrade {
		t.Fatalf("expected ErrInvalidUpgrade, got %v", err)
	}
}

func TestUpgradeContendedReacquiresShared(t *testing.T) {
	g := newTestGraph(t, "a")
	l := NewLocker(g)

	h, err := l.Lock("t1", "a", Upgrade, 0)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	defer h.Release()

	other, err := l.Lock("t2", "a", Shared, 0)
	if err != nil {
		t.Fatalf("t2 lock: %v", err)
	}
	defer other.Release()

	if err := h.Upgrade(5 * time.Millisecond); err != ErrLockTimeout {
		t.Fatalf("expected ErrLockTimeout, got %v", err)
	}
	if h.Status() != StatusShared {
		t.Fatalf("expected fallback to Shared after failed upgrade, got %v", h.Status())
	}
}

func TestReleaseTwiceErrors(t *testing.T) {
	g := newTestGraph(t, "a")
	l := NewLocker(g)
	h, err := l.Lock("t1", "a", Exclusive, 0)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	if err := h.Release(); err != nil {
		t.Fatalf("first release: %v", err)
	}
	if err := h.Release(); err != ErrAlreadyReleased {
		t.Fatalf("expected ErrAlreadyReleased, got %v", err)
	}
}

func TestLockAllUsesTopologicalOrderAndRollsBackOnFailure(t *testing.T) {
	g := newTestGraph(t, "x", "y", "z")
	if err := g.AddEdge("x", "y", 0); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}
	l := NewLocker(g)

	// z is exclusively held by another owner, so LockAll must fail and
	// release whatever it already acquired.
	hz, err := l.Lock("other", "z", Exclusive, 0)
	if err != nil {
		t.Fatalf("other lock z: %v", err)
	}
	defer hz.Release()

	if _, err := l.LockAll("A", []graph.Key{"x", "y", "z"}, Shared, 5*time.Millisecond); err == nil {
		t.Fatalf("expected LockAll to fail")
	}

	// nothing should remain held by A
	if _, err := l.Lock("B", "x", Exclusive, 0); err != nil {
		t.Fatalf("x should be free after rollback: %v", err)
	}
	if _, err := l.Lock("B", "y", Exclusive, 0); err != nil {
		t.Fatalf("y should be free after rollback: %v", err)
	}
}

func TestLockAllSucceeds(t *testing.T) {
	g := newTestGraph(t, "x", "y", "z")
	if err := g.AddEdge("x", "y", 0); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}
	l := NewLocker(g)

	handles, err := l.LockAll("A", []graph.Key{"z", "y", "x"}, Shared, 0)
	if err != nil {
		t.Fatalf("LockAll: %v", err)
	}
	if len(handles) != 3 {
		t.Fatalf("expected 3 handles, got %d", len(handles))
	}
	for _, h := range handles {
		h.Release()
	}
}

func TestHistoryRecordsAttemptsAndReleases(t *testing.T) {
	g := newTestGraph(t, "a")
	l := NewLocker(g, WithHistory(16))

	h, err := l.Lock("t1", "a", Exclusive, 0)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	h.Release()

	entries := l.LockHistory()
	if len(entries) < 3 { // attempt, acquire, release
		t.Fatalf("expected at least 3 history entries, got %d", len(entries))
	}
	if entries[0].Action != "attempt" {
		t.Fatalf("expected first entry to be attempt, got %s", entries[0].Action)
	}
}
