package feed

import (
	"sync"
	"testing"
)

func TestRegistryGetOrCreateConcurrent(t *testing.T) {
	reg := NewRegistry(0, 0)

	const n = 32
	instances := make([]*Room, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			room, _ := reg.GetOrCreate("r1")
			instances[i] = room
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		if instances[i] != instances[0] {
			t.Fatalf("goroutine %d observed a different room instance", i)
		}
	}
	if reg.Len() != 1 {
		t.Fatalf("registry holds %d rooms, want 1", reg.Len())
	}
}

func TestRegistryRemoveIfEmpty(t *testing.T) {
	reg := NewRegistry(0, 0)
	rec := &recorder{}

	room, created := reg.GetOrCreate("r1")
	if !created {
		t.Fatalf("expected fresh room")
	}
	room.Join("c1", "alice", rec.deliver)

	if reg.RemoveIfEmpty("r1") {
		t.Fatalf("room with members must not be removed")
	}

	room.Leave("c1", rec.deliver)
	if !reg.RemoveIfEmpty("r1") {
		t.Fatalf("empty room should be removed")
	}
	if reg.RemoveIfEmpty("r1") {
		t.Fatalf("second removal should be a no-op")
	}
	if reg.Len() != 0 {
		t.Fatalf("registry holds %d rooms, want 0", reg.Len())
	}
}

func TestRegistryRemovedRoomNotResurrected(t *testing.T) {
	reg := NewRegistry(0, 0)
	rec := &recorder{}

	stale, _ := reg.GetOrCreate("r1")
	reg.RemoveIfEmpty("r1")

	// A join racing against teardown sees ErrRoomGone instead of reviving
	// the removed instance.
	if _, _, err := stale.Join("c1", "alice", rec.deliver); err != ErrRoomGone {
		t.Fatalf("join on removed room: err = %v, want ErrRoomGone", err)
	}

	fresh, created := reg.GetOrCreate("r1")
	if !created {
		t.Fatalf("expected a fresh room after removal")
	}
	if fresh == stale {
		t.Fatalf("registry handed back the removed instance")
	}
	if _, _, err := fresh.Join("c1", "alice", rec.deliver); err != nil {
		t.Fatalf("join on fresh room: %v", err)
	}
}
