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

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolRunsAllJobs(t *testing.T) {
	p := New(4)
	defer p.Shutdown()

	var n int64
	var wg sync.WaitGroup
	wg.Add(20)
	for i := 0; i < 20; i++ {
		p.Submit(Job{Priority: Normal, Run: func(ctx context.Context) {
			atomic.AddInt64(&n, 1)
			wg.Done()
		}})
	}
	wg.Wait()
	if atomic.LoadInt64(&n) != 20 {
		t.Fatalf("expected 20 jobs run, got %d", n)
	}
}

func TestPoolPrefersHigherPriority(t *testing.T) {
	p := New(1)
	defer p.Shutdown()

	// Block the single worker so jobs queue up before we submit more.
	block := make(chan struct{})
	p.Submit(Job{Priority: Normal, Run: func(ctx context.Context) { <-block }})
	time.Sleep(10 * time.Millisecond) // let it pick up the blocker

	var order []string
	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(2)
	p.Submit(Job{Priority: Low, Run: func(ctx context.Context) {
		mu.Lock()
		order = append(order, "low")
		mu.Unlock()
		wg.Done()
	}})
	p.Submit(Job{Priority: High, Run: func(ctx context.Context) {
		mu.Lock()
		order = append(order, "high")
		mu.Unlock()
		wg.Done()
	}})
	close(block)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "high" {
		t.Fatalf("expected high before low, got %v", order)
	}
}

func TestResizeGrowsAndShrinks(t *testing.T) {
	p := New(2)
	defer p.Shutdown()

	p.Resize(5)
	time.Sleep(10 * time.Millisecond)
	if got := p.WorkerCount(); got != 5 {
		t.Fatalf("expected 5 workers, got %d", got)
	}

	p.Resize(1)
	time.Sleep(20 * time.Millisecond)
	if got := p.WorkerCount(); got != 1 {
		t.Fatalf("expected 1 worker after shrink, got %d", got)
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	p := New(2)
	p.Shutdown()
	p.Shutdown()
}
