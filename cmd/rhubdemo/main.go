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

// Command rhubdemo drives a small rhub.Hub from the command line: it
// registers a couple of toy resource types, loads a batch of demo
// resources under a memory budget, optionally wires some dependencies
// between them, and prints a report of what ended up loaded or evicted.
package main

import (
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/alexflint/go-arg"
	"github.com/google/uuid"

	"github.com/jshub/rhub/hub"
	"github.com/jshub/rhub/metrics"
	"github.com/jshub/rhub/resource"
	"github.com/jshub/rhub/wpool"
)

type args struct {
	Meshes     int    `arg:"--meshes" default:"6" help:"number of demo 'mesh' resources to load"`
	Textures   int    `arg:"--textures" default:"4" help:"number of demo 'texture' resources to load"`
	Budget     int64  `arg:"--budget" default:"2048" help:"memory budget in bytes"`
	Workers    int    `arg:"--workers" default:"4" help:"worker pool size"`
	Chain      bool   `arg:"--chain" help:"make each mesh depend on a randomly chosen loaded texture"`
	MetricsURL string `arg:"--metrics-addr" help:"if set, serve Prometheus metrics on this address (e.g. :9090)"`
}

func (args) Description() string {
	return "rhubdemo exercises the resource hub: toy loads, dependencies, and budget eviction."
}

func meshFactory(id string) resource.Capability {
	return resource.Capability{
		EstimatedBytes: func() int64 { return 300 },
		Load: func() error {
			time.Sleep(time.Duration(5+rand.Intn(10)) * time.Millisecond)
			return nil
		},
		Unload: func() error { return nil },
	}
}

func textureFactory(id string) resource.Capability {
	return resource.Capability{
		EstimatedBytes: func() int64 { return 150 },
		Load: func() error {
			time.Sleep(time.Duration(2+rand.Intn(5)) * time.Millisecond)
			return nil
		},
		Unload: func() error { return nil },
	}
}

func main() {
	var a args
	arg.MustParse(&a)

	registry := resource.NewRegistry()
	mustRegister(registry, "mesh", meshFactory)
	mustRegister(registry, "texture", textureFactory)

	var m *metrics.Metrics
	if a.MetricsURL != "" {
		m = &metrics.Metrics{Listen: a.MetricsURL}
		if err := m.Init(); err != nil {
			fmt.Fprintf(os.Stderr, "rhubdemo: metrics init: %v\n", err)
			os.Exit(1)
		}
		if err := m.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "rhubdemo: metrics start: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("serving metrics on %s\n", a.MetricsURL)
	}

	h := hub.New(hub.Config{
		Registry:     registry,
		Workers:      a.Workers,
		MemoryBudget: a.Budget,
		Metrics:      m,
		Logf:         func(format string, v ...interface{}) { fmt.Printf("rhubdemo: "+format+"\n", v...) },
	})
	defer h.Shutdown()

	textureIDs := make([]string, 0, a.Textures)
	for i := 0; i < a.Textures; i++ {
		id := "texture-" + uuid.NewString()[:8]
		if _, err := h.Load("texture", id); err != nil {
			fmt.Fprintf(os.Stderr, "rhubdemo: load %s: %v\n", id, err)
			continue
		}
		textureIDs = append(textureIDs, id)
	}

	done := make(chan struct{}, a.Meshes)
	for i := 0; i < a.Meshes; i++ {
		id := "mesh-" + uuid.NewString()[:8]
		priority := wpool.Normal
		if i == 0 {
			priority = wpool.Highest
		}
		h.LoadAsync("mesh", id, priority, func(handle *hub.Handle, err error) {
			defer func() { done <- struct{}{} }()
			if err != nil {
				fmt.Fprintf(os.Stderr, "rhubdemo: async load %s: %v\n", id, err)
				return
			}
			if a.Chain && len(textureIDs) > 0 {
				dep := textureIDs[rand.Intn(len(textureIDs))]
				if ok, err := h.AddDependency(id, dep); err != nil {
					fmt.Fprintf(os.Stderr, "rhubdemo: add_dependency(%s, %s): %v\n", id, dep, err)
				} else if !ok {
					fmt.Printf("rhubdemo: %s -> %s would cycle, skipped\n", id, dep)
				}
			}
		})
	}
	for i := 0; i < a.Meshes; i++ {
		<-done
	}

	evicted := h.EnforceMemoryBudget()

	fmt.Println("--- report ---")
	fmt.Printf("workers: %d\n", h.WorkerCount())
	fmt.Printf("memory usage: %d / %d bytes\n", h.MemoryUsage(), h.MemoryBudget())
	fmt.Printf("evicted this run: %d\n", evicted)
	stats := h.Stats()
	fmt.Printf("nodes: %d  edges: %d  connected components: %d\n", stats.NumNodes, stats.NumEdges, len(stats.Components))
}

func mustRegister(registry *resource.Registry, typeID string, factory resource.Factory) {
	if err := registry.Register(typeID, factory); err != nil {
		fmt.Fprintf(os.Stderr, "rhubdemo: register %s: %v\n", typeID, err)
		os.Exit(1)
	}
}
