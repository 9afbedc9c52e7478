package vkcore

import (
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
)

// fenceManager pools fences used to gate GPU progress. Fences handed
// out ride a frame context's wait list; once that frame has waited and
// reset them they recycle here rather than being destroyed, since
// vkResetFences is far cheaper than vkDestroyFence+vkCreateFence every
// frame.
type fenceManager struct {
	device vk.Device
	free []vk.Fence
	all []vk.Fence
}

func newFenceManager(device vk.Device) *fenceManager {
	return &fenceManager{device: device}
}

func (f *fenceManager) requestFence() (vk.Fence, error) {
	if n := len(f.free); n > 0 {
		fence := f.free[n-1]
		f.free = f.free[:n-1]
		return fence, nil
	}
	var fence vk.Fence
	ret := vk.CreateFence(f.device, &vk.FenceCreateInfo{SType: vk.StructureTypeFenceCreateInfo}, nil, &fence)
	if isError(ret) {
		return vk.NullFence, newError(ret)
	}
	f.all = append(f.all, fence)
	return fence, nil
}

// recycle returns already-waited, already-reset fences to the pool.
func (f *fenceManager) recycle(fences ...vk.Fence) {
	for _, fence := range fences {
		if fence != vk.NullFence {
			f.free = append(f.free, fence)
		}
	}
}

func (f *fenceManager) destroy() {
	for _, fence := range f.all {
		vk.DestroyFence(f.device, fence, nil)
	}
	f.all = nil
	f.free = nil
}

// semaphoreManager pools binary semaphores, recycling them across
// frames unless externally held. A semaphore handed out to a caller
// that signals a WSI present, for instance, is never returned here --
// the swapchain owns it instead.
type semaphoreManager struct {
	device vk.Device
	recycled []vk.Semaphore
}

func newSemaphoreManager(device vk.Device) *semaphoreManager {
	return &semaphoreManager{device: device}
}

func (m *semaphoreManager) requestSemaphore() (vk.Semaphore, error) {
	if n := len(m.recycled); n > 0 {
		s := m.recycled[n-1]
		m.recycled = m.recycled[:n-1]
		return s, nil
	}
	var s vk.Semaphore
	ret := vk.CreateSemaphore(m.device, &vk.SemaphoreCreateInfo{SType: vk.StructureTypeSemaphoreCreateInfo}, nil, &s)
	if isError(ret) {
		return vk.NullSemaphore, newError(ret)
	}
	return s, nil
}

// recycle returns a semaphore known to be signaled-and-consumed (i.e.
// its wait has already completed) back to the pool.
func (m *semaphoreManager) recycle(s vk.Semaphore) {
	if s != vk.NullSemaphore {
		m.recycled = append(m.recycled, s)
	}
}

func (m *semaphoreManager) destroy() {
	for _, s := range m.recycled {
		vk.DestroySemaphore(m.device, s, nil)
	}
	m.recycled = nil
}

// timelineSemaphore wraps a single timeline semaphore plus the device's
// current monotonic counter for one queue, backing the timeline
// watermark per queue bookkeeping the per-frame context and submission
// assembly consult on every signal.
type timelineSemaphore struct {
	semaphore vk.Semaphore
	counter uint64
}

func newTimelineSemaphore(device vk.Device) (*timelineSemaphore, error) {
	typeInfo := vk.SemaphoreTypeCreateInfo{
		SType: vk.StructureTypeSemaphoreTypeCreateInfo,
		SemaphoreType: vk.SemaphoreTypeTimeline,
		InitialValue: 0,
	}
	var s vk.Semaphore
	ret := vk.CreateSemaphore(device, &vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
		PNext: unsafe.Pointer(&typeInfo),
	}, nil, &s)
	if isError(ret) {
		return nil, newError(ret)
	}
	return &timelineSemaphore{semaphore: s}, nil
}

// next advances and returns the counter value the next signal should
// target.
func (t *timelineSemaphore) next() uint64 {
	t.counter++
	return t.counter
}

func (t *timelineSemaphore) destroy(device vk.Device) {
	if t.semaphore != vk.NullSemaphore {
		vk.DestroySemaphore(device, t.semaphore, nil)
	}
}

// eventManager pools vk.Event objects, the least-used sync primitive
// in the core (GPU-side wait/signal within a queue). Modeled the same
// way as fenceManager.
type eventManager struct {
	device vk.Device
	events []vk.Event
	count uint32
}

func newEventManager(device vk.Device) *eventManager {
	return &eventManager{device: device}
}

func (m *eventManager) requestEvent() (vk.Event, error) {
	if m.count < uint32(len(m.events)) {
		e := m.events[m.count]
		m.count++
		return e, nil
	}
	var e vk.Event
	ret := vk.CreateEvent(m.device, &vk.EventCreateInfo{SType: vk.StructureTypeEventCreateInfo}, nil, &e)
	if isError(ret) {
		return vk.NullEvent, newError(ret)
	}
	m.events = append(m.events, e)
	m.count++
	return e, nil
}

func (m *eventManager) reset() { m.count = 0 }

func (m *eventManager) destroy() {
	for _, e := range m.events {
		vk.DestroyEvent(m.device, e, nil)
	}
	m.events = nil
}
