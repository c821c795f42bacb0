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

package graph_test

import (
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"

	"github.com/jshub/rhub/graph"
)

func mustAddNode(t *testing.T, g *graph.Graph, key graph.Key) {
	t.Helper()
	if _, _, err := g.AddNode(key, nil, 0); err != nil {
		t.Fatalf("AddNode(%s): %v", key, err)
	}
}

func TestAddNodeIdempotent(t *testing.T) {
	g := graph.NewGraph("t")
	n1, created1, err := g.AddNode("a", 1, 0)
	if err != nil || !created1 {
		t.Fatalf("first AddNode: %v created=%v", err, created1)
	}
	n2, created2, err := g.AddNode("a", 2, 0)
	if err != nil || created2 {
		t.Fatalf("second AddNode: %v created=%v", err, created2)
	}
	if n1 != n2 {
		t.Fatalf("expected same node pointer")
	}
}

func TestAddNodeStrictRejectsDuplicate(t *testing.T) {
	g := graph.NewGraph("t")
	mustAddNode(t, g, "a")
	if _, err := g.AddNodeStrict("a", nil, 0); err != graph.ErrNodeExists {
		t.Fatalf("expected ErrNodeExists, got %v", err)
	}
}

func TestSelfLoopRejected(t *testing.T) {
	g := graph.NewGraph("t")
	mustAddNode(t, g, "a")
	if err := g.AddEdge("a", "a", 0); err != graph.ErrCycleDetected {
		t.Fatalf("expected ErrCycleDetected for self-loop, got %v", err)
	}
}

// TestCycleRejection matches end-to-end scenario S2: A->B, B->C exist;
// adding C->A must fail and leave the original two edges intact.
func TestCycleRejection(t *testing.T) {
	g := graph.NewGraph("t")
	mustAddNode(t, g, "A")
	mustAddNode(t, g, "B")
	mustAddNode(t, g, "C")
	if err := g.AddEdge("A", "B", 0); err != nil {
		t.Fatal(err)
	}
	if err := g.AddEdge("B", "C", 0); err != nil {
		t.Fatal(err)
	}

	if err := g.AddEdge("C", "A", 0); err != graph.ErrCycleDetected {
		t.Fatalf("expected ErrCycleDetected, got %v", err)
	}

	if ok, _ := g.HasEdge("C", "A", 0); ok {
		t.Fatalf("rejected edge must not be present")
	}
	if n, _ := g.NumEdges(0); n != 2 {
		t.Fatalf("expected exactly 2 edges, got %d", n)
	}

	order, err := g.TopologicalSort(0)
	if err != nil {
		t.Fatal(err)
	}
	want := []graph.Key{"A", "B", "C"}
	if len(order) != len(want) {
		t.Fatalf("topo order = %v, want %v\n%s", order, want, spew.Sdump(order))
	}
	for i, k := range want {
		if order[i] != k {
			t.Fatalf("topo order = %v, want %v\n%s", order, want, spew.Sdump(order))
		}
	}
}

func TestAdjacencySymmetry(t *testing.T) {
	g := graph.NewGraph("t")
	mustAddNode(t, g, "a")
	mustAddNode(t, g, "b")
	if err := g.AddEdge("a", "b", 0); err != nil {
		t.Fatal(err)
	}
	deps, _ := g.Dependencies("a", 0)
	if len(deps) != 1 || deps[0] != "b" {
		t.Fatalf("Dependencies(a) = %v", deps)
	}
	dependents, _ := g.Dependents("b", 0)
	if len(dependents) != 1 || dependents[0] != "a" {
		t.Fatalf("Dependents(b) = %v", dependents)
	}
}

func TestRemoveEdgeRoundTrip(t *testing.T) {
	g := graph.NewGraph("t")
	mustAddNode(t, g, "a")
	mustAddNode(t, g, "b")

	before, _ := g.TopologicalSort(0)

	if err := g.AddEdge("a", "b", 0); err != nil {
		t.Fatal(err)
	}
	if ok, err := g.RemoveEdge("a", "b", 0); err != nil || !ok {
		t.Fatalf("RemoveEdge: ok=%v err=%v", ok, err)
	}

	after, _ := g.TopologicalSort(0)
	if len(before) != len(after) {
		t.Fatalf("round trip changed topological order: %v vs %v", before, after)
	}
	deps, _ := g.Dependencies("a", 0)
	if len(deps) != 0 {
		t.Fatalf("expected no dependencies after round trip, got %v", deps)
	}
}

func TestRemoveNodeFiresHooksAndPreempt(t *testing.T) {
	g := graph.NewGraph("t")
	mustAddNode(t, g, "a")

	var preempted bool
	if err := g.RegisterNodeCallback("a", graph.IntentNodeModify, func(s graph.CallbackStatus) {
		if s == graph.StatusPreempted {
			preempted = true
		}
	}, 0); err != nil {
		t.Fatal(err)
	}

	var removedKey graph.Key
	unregister := g.OnNodeRemoved(func(k graph.Key) { removedKey = k })
	defer unregister()

	ok, err := g.RemoveNode("a", 0)
	if err != nil || !ok {
		t.Fatalf("RemoveNode: ok=%v err=%v", ok, err)
	}
	if !preempted {
		t.Fatalf("expected StatusPreempted notification")
	}
	if removedKey != "a" {
		t.Fatalf("expected node-removed hook with key a, got %v", removedKey)
	}
	if has, _ := g.HasNode("a", 0); has {
		t.Fatalf("node should be gone")
	}
}

func TestEmptyGraphTopologicalSort(t *testing.T) {
	g := graph.NewGraph("t")
	order, err := g.TopologicalSort(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(order) != 0 {
		t.Fatalf("expected empty order, got %v", order)
	}
}

func TestLockTimeoutSurfaces(t *testing.T) {
	g := graph.NewGraph("t")
	mustAddNode(t, g, "a")

	res, err := g.Reserve("a", graph.IntentNodeModify, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer res.Release()

	if _, err := g.Reserve("a", graph.IntentNodeModify, 5*time.Millisecond); err != graph.ErrLockTimeout {
		t.Fatalf("expected ErrLockTimeout while node is held exclusively, got %v", err)
	}
}

type fakeLockMetrics struct{ timeouts map[string]int }

func (f *fakeLockMetrics) IncLockTimeout(source string) {
	if f.timeouts == nil {
		f.timeouts = make(map[string]int)
	}
	f.timeouts[source]++
}

// A wired LockMetrics sink observes one IncLockTimeout("graph") per failed
// acquisition anywhere in the package.
func TestLockTimeoutReportsMetrics(t *testing.T) {
	m := &fakeLockMetrics{}
	g := graph.NewGraph("t", graph.WithMetrics(m))
	mustAddNode(t, g, "a")

	res, err := g.Reserve("a", graph.IntentNodeModify, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer res.Release()

	if _, err := g.Reserve("a", graph.IntentNodeModify, 5*time.Millisecond); err != graph.ErrLockTimeout {
		t.Fatalf("expected ErrLockTimeout, got %v", err)
	}
	if got := m.timeouts["graph"]; got != 1 {
		t.Fatalf("expected 1 graph lock timeout reported, got %d\n%s", got, spew.Sdump(m.timeouts))
	}
}
