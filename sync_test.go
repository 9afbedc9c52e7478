package vkcore

import (
	"testing"

	vk "github.com/vulkan-go/vulkan"
)

func TestFenceManagerRequestFenceReusesPool(t *testing.T) {
	f := &fenceManager{free: []vk.Fence{vk.Fence(1), vk.Fence(2)}}

	got, err := f.requestFence()
	if err != nil {
		t.Fatalf("requestFence from a pre-populated pool returned an error: %v", err)
	}
	if got != vk.Fence(2) {
		t.Fatalf("requestFence:\nhave %v\nwant the last pooled fence (2)", got)
	}
	if len(f.free) != 1 {
		t.Fatalf("requestFence did not drain the free list:\nhave %d entries\nwant 1", len(f.free))
	}
}

func TestFenceManagerRecycle(t *testing.T) {
	f := &fenceManager{}
	f.recycle(vk.Fence(3), vk.NullFence, vk.Fence(4))
	if len(f.free) != 2 {
		t.Fatalf("recycle:\nhave %d pooled fences\nwant 2 (null dropped)", len(f.free))
	}

	got, err := f.requestFence()
	if err != nil {
		t.Fatalf("requestFence after recycle returned an error: %v", err)
	}
	if got != vk.Fence(4) {
		t.Fatalf("requestFence after recycle:\nhave %v\nwant 4", got)
	}
}

func TestSemaphoreManagerRecyclePool(t *testing.T) {
	m := &semaphoreManager{}
	m.recycle(vk.Semaphore(42))
	if len(m.recycled) != 1 {
		t.Fatalf("recycle did not add to the pool:\nhave %d entries\nwant 1", len(m.recycled))
	}

	got, err := m.requestSemaphore()
	if err != nil {
		t.Fatalf("requestSemaphore from a non-empty recycled pool returned an error: %v", err)
	}
	if got != vk.Semaphore(42) {
		t.Fatalf("requestSemaphore:\nhave %v\nwant the recycled semaphore (42)", got)
	}
	if len(m.recycled) != 0 {
		t.Fatal("requestSemaphore did not drain the recycled entry it returned")
	}
}

func TestSemaphoreManagerRecycleIgnoresNull(t *testing.T) {
	m := &semaphoreManager{}
	m.recycle(vk.NullSemaphore)
	if len(m.recycled) != 0 {
		t.Fatal("recycle should not pool vk.NullSemaphore")
	}
}

func TestTimelineSemaphoreNextMonotonic(t *testing.T) {
	tl := &timelineSemaphore{}
	a := tl.next()
	b := tl.next()
	c := tl.next()
	if a != 1 || b != 2 || c != 3 {
		t.Fatalf("timelineSemaphore.next sequence:\nhave %d, %d, %d\nwant 1, 2, 3", a, b, c)
	}
}

func TestEventManagerReset(t *testing.T) {
	m := &eventManager{events: []vk.Event{vk.Event(1), vk.Event(2)}, count: 2}
	m.reset()
	if m.count != 0 {
		t.Fatalf("eventManager.reset did not zero count:\nhave %d\nwant 0", m.count)
	}
	if len(m.events) != 2 {
		t.Fatal("eventManager.reset should not discard the pooled events, only the in-use count")
	}
}
