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

// Package wpool implements a resizable worker pool: goroutines pull Jobs
// off a shared priority queue and run them, always preferring the
// highest-priority ready job with FIFO tiebreak among equal priorities.
package wpool

import (
	"context"
	"sync"
)

// Priority is a job's scheduling priority; higher runs first.
type Priority int

const (
	Lowest Priority = iota
	Low
	Normal
	High
	Highest
)

// Job is a unit of work submitted to a Pool.
type Job struct {
	Priority Priority
	Run      func(ctx context.Context)
	seq      uint64
}

// Pool runs submitted Jobs on a bounded, resizable set of goroutines.
type Pool struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   *priorityQueue
	nextSeq uint64

	target int // desired worker count
	live   int // currently running worker goroutines

	ctx    context.Context
	cancel context.CancelFunc

	wg sync.WaitGroup
}

// New builds a Pool with the given number of initially-live workers.
// Workers is clamped to at least 1.
func New(workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		queue:  newPriorityQueue(),
		target: workers,
		ctx:    ctx,
		cancel: cancel,
	}
	p.cond = sync.NewCond(&p.mu)

	p.mu.Lock()
	for i := 0; i < workers; i++ {
		p.startWorkerLocked()
	}
	p.mu.Unlock()
	return p
}

// startWorkerLocked spawns one worker goroutine. Caller holds p.mu.
func (p *Pool) startWorkerLocked() {
	p.live++
	p.wg.Add(1)
	go p.workerLoop()
}

// workerLoop waits for work or a shrink/shutdown signal. A worker exits
// when the pool is shutting down, or when live exceeds target (the most
// recently woken excess worker retires).
func (p *Pool) workerLoop() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for p.queue.Len() == 0 && p.ctx.Err() == nil && p.live <= p.target {
			p.cond.Wait()
		}
		if p.ctx.Err() != nil {
			p.live--
			p.mu.Unlock()
			return
		}
		if p.live > p.target {
			p.live--
			p.mu.Unlock()
			return
		}
		job, ok := p.queue.Pop()
		p.mu.Unlock()
		if !ok {
			continue
		}
		if job.Run != nil {
			job.Run(p.ctx)
		}
	}
}

// Submit enqueues job to run on the next available worker.
func (p *Pool) Submit(job Job) {
	p.mu.Lock()
	job.seq = p.nextSeq
	p.nextSeq++
	p.queue.Push(job)
	p.mu.Unlock()
	p.cond.Signal()
}

// Resize grows or shrinks the target number of live workers to n (clamped
// to at least 1). Growing spawns new goroutines immediately; shrinking
// lets the excess workers retire the next time they wake with nothing to
// do or notice live > target.
func (p *Pool) Resize(n int) {
	if n < 1 {
		n = 1
	}
	p.mu.Lock()
	p.target = n
	for p.live < p.target {
		p.startWorkerLocked()
	}
	p.mu.Unlock()
	p.cond.Broadcast()
}

// WorkerCount returns the current number of live worker goroutines.
func (p *Pool) WorkerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.live
}

// Shutdown cancels the pool and waits for all live workers to exit. It is
// idempotent.
func (p *Pool) Shutdown() {
	p.cancel()
	p.cond.Broadcast()
	p.wg.Wait()
}

// QueueLen reports how many jobs are currently queued.
func (p *Pool) QueueLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.Len()
}
