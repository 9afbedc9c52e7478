package vkcore

import (
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
)

// Domain classifies where a Buffer's or Image's backing memory lives.
// Device-domain allocations are never host-mapped; every other domain is
// persistently mapped for the lifetime of the resource.
type Domain int

const (
	DomainDevice Domain = iota
	DomainHost
	DomainHostCached
	DomainLinkedDeviceHost
)

func (d Domain) hostVisible() bool {
	return d == DomainHost || d == DomainHostCached || d == DomainLinkedDeviceHost
}

// allocation is the record an allocator hands back for one buffer/image
// binding. Nothing in this package interprets its contents beyond the
// fields listed here.
type allocation struct {
	memory vk.DeviceMemory
	offset vk.DeviceSize
	size vk.DeviceSize
	mapped unsafe.Pointer // non-nil iff persistently mapped
	memoryType uint32
}

// Allocator is the boundary behind which a real GPU memory suballocator
// (a VMA-like library) lives. vkcore ships a single direct
// implementation (directAllocator) that calls vkAllocateMemory
// per-resource; hosts that bring their own suballocator implement this
// interface instead.
type Allocator interface {
	AllocateBuffer(device vk.Device, buffer vk.Buffer, domain Domain) (allocation, error)
	AllocateImage(device vk.Device, image vk.Image, domain Domain) (allocation, error)
	Map(alloc allocation) (unsafe.Pointer, error)
	Unmap(alloc allocation)
	FreeBuffer(device vk.Device, alloc allocation)
	FreeImage(device vk.Device, alloc allocation)
}

// directAllocator is the default Allocator: one vkAllocateMemory call
// per resource, no suballocation, no pooling.
type directAllocator struct {
	memProps vk.PhysicalDeviceMemoryProperties
}

func newDirectAllocator(memProps vk.PhysicalDeviceMemoryProperties) *directAllocator {
	return &directAllocator{memProps: memProps}
}

func (a *directAllocator) requiredFlags(domain Domain) vk.MemoryPropertyFlagBits {
	switch domain {
	case DomainDevice:
		return vk.MemoryPropertyDeviceLocalBit
	case DomainHostCached:
		return vk.MemoryPropertyFlagBits(vk.MemoryPropertyHostVisibleBit) | vk.MemoryPropertyFlagBits(vk.MemoryPropertyHostCachedBit)
	default: // DomainHost, DomainLinkedDeviceHost
		return vk.MemoryPropertyFlagBits(vk.MemoryPropertyHostVisibleBit) | vk.MemoryPropertyFlagBits(vk.MemoryPropertyHostCoherentBit)
	}
}

func (a *directAllocator) AllocateBuffer(device vk.Device, buffer vk.Buffer, domain Domain) (allocation, error) {
	var reqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(device, buffer, &reqs)
	reqs.Deref()

	idx, ok := findMemoryTypeFallback(a.memProps, reqs.MemoryTypeBits, a.requiredFlags(domain))
	if !ok {
		return allocation{}, &VkError{Kind: ErrorKindAllocationFailed}
	}
	var mem vk.DeviceMemory
	ret := vk.AllocateMemory(device, &vk.MemoryAllocateInfo{
		SType: vk.StructureTypeMemoryAllocateInfo,
		AllocationSize: reqs.Size,
		MemoryTypeIndex: idx,
	}, nil, &mem)
	if isError(ret) {
		return allocation{}, newError(ret)
	}
	if ret := vk.BindBufferMemory(device, buffer, mem, 0); isError(ret) {
		vk.FreeMemory(device, mem, nil)
		return allocation{}, newError(ret)
	}

	alloc := allocation{memory: mem, size: reqs.Size, memoryType: idx}
	if domain.hostVisible() {
		var p unsafe.Pointer
		if ret := vk.MapMemory(device, mem, 0, vk.DeviceSize(vk.WholeSize), 0, &p); isError(ret) {
			return allocation{}, newError(ret)
		}
		alloc.mapped = p
	}
	return alloc, nil
}

func (a *directAllocator) AllocateImage(device vk.Device, image vk.Image, domain Domain) (allocation, error) {
	var reqs vk.MemoryRequirements
	vk.GetImageMemoryRequirements(device, image, &reqs)
	reqs.Deref()

	idx, ok := findMemoryTypeFallback(a.memProps, reqs.MemoryTypeBits, a.requiredFlags(domain))
	if !ok {
		return allocation{}, &VkError{Kind: ErrorKindAllocationFailed}
	}
	var mem vk.DeviceMemory
	ret := vk.AllocateMemory(device, &vk.MemoryAllocateInfo{
		SType: vk.StructureTypeMemoryAllocateInfo,
		AllocationSize: reqs.Size,
		MemoryTypeIndex: idx,
	}, nil, &mem)
	if isError(ret) {
		return allocation{}, newError(ret)
	}
	if ret := vk.BindImageMemory(device, image, mem, 0); isError(ret) {
		vk.FreeMemory(device, mem, nil)
		return allocation{}, newError(ret)
	}
	alloc := allocation{memory: mem, size: reqs.Size, memoryType: idx}
	if domain.hostVisible() {
		var p unsafe.Pointer
		if ret := vk.MapMemory(device, mem, 0, vk.DeviceSize(vk.WholeSize), 0, &p); isError(ret) {
			return allocation{}, newError(ret)
		}
		alloc.mapped = p
	}
	return alloc, nil
}

func (a *directAllocator) Map(alloc allocation) (unsafe.Pointer, error) { return alloc.mapped, nil }
func (a *directAllocator) Unmap(alloc allocation) {}

func (a *directAllocator) FreeBuffer(device vk.Device, alloc allocation) {
	if alloc.memory != vk.NullDeviceMemory {
		vk.FreeMemory(device, alloc.memory, nil)
	}
}

func (a *directAllocator) FreeImage(device vk.Device, alloc allocation) {
	if alloc.memory != vk.NullDeviceMemory {
		vk.FreeMemory(device, alloc.memory, nil)
	}
}

// freeAllocationBuffer and freeAllocationImage are resolved through the
// owning Device at destroy-list drain time; see
// frameContext.drainDestroyLists. They are package-level vars so tests
// can stub them without threading a Device through every
// destroyedBuffer/destroyedImage record. Kept as two vars, not one,
// since a pooling Allocator may free buffer- and image-backed memory
// through distinct paths.
var freeAllocationBuffer = func(allocation) {}
var freeAllocationImage = func(allocation) {}
