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

package wpool

import "container/heap"

// priorityQueue orders Jobs by descending Priority, FIFO among ties via
// seq. It is not safe for concurrent use; callers (Pool) serialize access
// with their own mutex.
type priorityQueue struct {
	h *jobHeap
}

func newPriorityQueue() *priorityQueue {
	h := &jobHeap{}
	heap.Init(h)
	return &priorityQueue{h: h}
}

func (q *priorityQueue) Push(j Job) {
	heap.Push(q.h, j)
}

func (q *priorityQueue) Pop() (Job, bool) {
	if q.h.Len() == 0 {
		return Job{}, false
	}
	return heap.Pop(q.h).(Job), true
}

func (q *priorityQueue) Len() int {
	return q.h.Len()
}

type jobHeap []Job

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority // higher priority first
	}
	return h[i].seq < h[j].seq // FIFO among equal priority
}

func (h jobHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *jobHeap) Push(x interface{}) {
	*h = append(*h, x.(Job))
}

func (h *jobHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
