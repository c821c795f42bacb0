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

package resource_test

import (
	"errors"
	"testing"

	"github.com/jshub/rhub/resource"
)

func TestLifecycleHappyPath(t *testing.T) {
	loads := 0
	r := resource.New("mesh", "cube", resource.Capability{
		EstimatedBytes: func() int64 { return 100 },
		Load:           func() error { loads++; return nil },
		Unload:         func() error { return nil },
	})

	if r.State() != resource.Unloaded {
		t.Fatalf("expected Unloaded, got %v", r.State())
	}
	if err := r.Load(); err != nil {
		t.Fatal(err)
	}
	if r.State() != resource.Loaded || r.RefCount() != 1 {
		t.Fatalf("after first load: state=%v refcount=%d", r.State(), r.RefCount())
	}
	if loads != 1 {
		t.Fatalf("expected loadImpl called once, got %d", loads)
	}

	// Additional load on an already-loaded resource increments refcount
	// without calling loadImpl again.
	if err := r.Load(); err != nil {
		t.Fatal(err)
	}
	if r.RefCount() != 2 || loads != 1 {
		t.Fatalf("after second load: refcount=%d loads=%d", r.RefCount(), loads)
	}

	if err := r.Unload(); err != nil {
		t.Fatal(err)
	}
	if r.State() != resource.Loaded || r.RefCount() != 1 {
		t.Fatalf("after first unload: state=%v refcount=%d", r.State(), r.RefCount())
	}

	if err := r.Unload(); err != nil {
		t.Fatal(err)
	}
	if r.State() != resource.Unloaded || r.RefCount() != 0 {
		t.Fatalf("after second unload: state=%v refcount=%d", r.State(), r.RefCount())
	}
}

func TestLoadFailureTransitionsToLoadingFailed(t *testing.T) {
	boom := errors.New("boom")
	fail := true
	r := resource.New("mesh", "cube", resource.Capability{
		Load: func() error {
			if fail {
				return boom
			}
			return nil
		},
	})
	if err := r.Load(); err != boom {
		t.Fatalf("expected boom, got %v", err)
	}
	if r.State() != resource.LoadingFailed {
		t.Fatalf("expected LoadingFailed, got %v", r.State())
	}
	if r.RefCount() != 0 {
		t.Fatalf("failed load must not increment refcount, got %d", r.RefCount())
	}

	// Retry from LoadingFailed succeeds.
	fail = false
	_ = r.Load()
	if r.State() != resource.Loaded {
		t.Fatalf("expected Loaded after successful retry, got %v", r.State())
	}
}

func TestUnloadThatErrorsStillForcesUnloaded(t *testing.T) {
	boom := errors.New("boom")
	r := resource.New("mesh", "cube", resource.Capability{
		Load:   func() error { return nil },
		Unload: func() error { return boom },
	})
	_ = r.Load()
	err := r.Unload()
	if err != boom {
		t.Fatalf("expected Unload to surface boom, got %v", err)
	}
	if r.State() != resource.Unloaded {
		t.Fatalf("expected Unloaded despite unloadImpl error, got %v", r.State())
	}
}

func TestEstimatedBytesOnlyCountsWhenLoaded(t *testing.T) {
	r := resource.New("mesh", "cube", resource.Capability{
		EstimatedBytes: func() int64 { return 100 },
		Load:           func() error { return nil },
		Unload:         func() error { return nil },
	})
	if got := r.EstimatedBytes(); got != 0 {
		t.Fatalf("unloaded resource should report 0 bytes, got %d", got)
	}
	_ = r.Load()
	if got := r.EstimatedBytes(); got != 100 {
		t.Fatalf("loaded resource should report 100 bytes, got %d", got)
	}
	_ = r.Unload()
	if got := r.EstimatedBytes(); got != 0 {
		t.Fatalf("unloaded resource should report 0 bytes again, got %d", got)
	}
}

func TestRegistryRejectsDuplicateRegistration(t *testing.T) {
	reg := resource.NewRegistry()
	factory := func(id string) resource.Capability { return resource.Capability{} }
	if err := reg.Register("mesh", factory); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register("mesh", factory); !errors.Is(err, resource.ErrTypeAlreadyRegistered) {
		t.Fatalf("expected ErrTypeAlreadyRegistered, got %v", err)
	}
}

func TestRegistryConstructUnknownType(t *testing.T) {
	reg := resource.NewRegistry()
	if _, err := reg.Construct("mesh", "cube"); !errors.Is(err, resource.ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
}

func TestRegistryConstructRunsFactoryWithoutLock(t *testing.T) {
	reg := resource.NewRegistry()
	reentered := false
	if err := reg.Register("mesh", func(id string) resource.Capability {
		// A factory that looks at the registry's other types must not
		// deadlock: the registry lock is released before the factory
		// runs.
		reentered = len(reg.Types()) == 1
		return resource.Capability{}
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := reg.Construct("mesh", "cube"); err != nil {
		t.Fatal(err)
	}
	if !reentered {
		t.Fatalf("factory should have observed the registry without deadlocking")
	}
}
