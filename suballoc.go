package vkcore

import (
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
)

// bufferKind identifies which of the Device's four suballocation
// pools (vbo/ibo/ubo/staging) a bufferBlock was carved from.
type bufferKind int

const (
	bufferKindVBO bufferKind = iota
	bufferKindIBO
	bufferKindUBO
	bufferKindStaging
	bufferKindCount
)

func (k bufferKind) usage() vk.BufferUsageFlags {
	switch k {
	case bufferKindVBO:
		return vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit) | vk.BufferUsageFlags(vk.BufferUsageTransferDstBit)
	case bufferKindIBO:
		return vk.BufferUsageFlags(vk.BufferUsageIndexBufferBit) | vk.BufferUsageFlags(vk.BufferUsageTransferDstBit)
	case bufferKindUBO:
		return vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit) | vk.BufferUsageFlags(vk.BufferUsageTransferDstBit)
	default: // staging
		return vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit)
	}
}

// bufferBlock is the linear suballocation unit: one large buffer
// carved into bump allocations. A block is owned by exactly one
// active recording context at a time and returned to the device pool
// when exhausted.
type bufferBlock struct {
	kind bufferKind

	gpuBuffer vk.Buffer
	// cpuBuffer differs from gpuBuffer only for DomainDevice staging
	// blocks mirrored through a host-visible shadow; for host-visible
	// pools (ubo/staging) it is the same handle.
	cpuBuffer vk.Buffer
	alloc allocation
	hostPointer unsafe.Pointer

	size vk.DeviceSize
	offset vk.DeviceSize
	alignment vk.DeviceSize

	// spillSize is the padding applied to each allocation out of a UBO
	// block so that a dynamic-offset rebind is always alignment-safe,
	// "Uniform allocations are padded to the pool's spill_size
	// to guarantee dynamic-offset safety."
	spillSize vk.DeviceSize
}

// alignUp rounds size up to the next multiple of align, which must be
// a power of two.
func alignUp(size, align vk.DeviceSize) vk.DeviceSize {
	if align == 0 {
		return size
	}
	return (size + align - 1) &^ (align - 1)
}

// reset rewinds the block's bump pointer to zero without touching the
// underlying buffer, used when a block is recycled whole rather than
// DMA-reconciled.
func (b *bufferBlock) reset() { b.offset = 0 }

// allocate carves `size` bytes (padded to spillSize for UBO blocks) out
// of the block's remaining space, returning the host pointer (if
// host-visible) and device offset, or ok=false on overflow.
func (b *bufferBlock) allocate(size vk.DeviceSize) (offset vk.DeviceSize, ptr unsafe.Pointer, ok bool) {
	want := size
	if b.kind == bufferKindUBO && b.spillSize > 0 {
		want = alignUp(size, b.spillSize)
	} else {
		want = alignUp(size, b.alignment)
	}
	aligned := alignUp(b.offset, b.alignment)
	if aligned+want > b.size {
		return 0, nil, false
	}
	offset = aligned
	b.offset = aligned + want
	if b.hostPointer != nil {
		ptr = unsafe.Add(b.hostPointer, uintptr(offset))
	}
	return offset, ptr, true
}

func (b *bufferBlock) exhausted() bool { return b.offset >= b.size }
func (b *bufferBlock) full() bool { return b.offset == 0 } // never allocated from this cycle: trivially reusable whole

// bufferPool owns the Device-side free list of bufferBlocks for one
// kind, handing out and reclaiming full-sized blocks: a buffer-block
// recycle list per pool (vbo/ibo/ubo/staging). On overflow a fresh
// block is requested from the Device's matching pool.
type bufferPool struct {
	kind bufferKind
	blockSize vk.DeviceSize
	alignment vk.DeviceSize
	spillSize vk.DeviceSize
	domain Domain
	free []*bufferBlock
}

func newBufferPool(kind bufferKind, blockSize, alignment, spillSize vk.DeviceSize, domain Domain) *bufferPool {
	return &bufferPool{kind: kind, blockSize: blockSize, alignment: alignment, spillSize: spillSize, domain: domain}
}

// recycle returns a block to the free list, resetting its bump
// pointer. This pool never shrinks or merges partial blocks; the
// partially-full / DMA-reconcile path is handled by the caller
// (CommandBuffer) before the block ever reaches here.
func (p *bufferPool) recycle(b *bufferBlock) {
	b.reset()
	p.free = append(p.free, b)
}

// acquire pops a recycled block if one is free, or signals the caller
// to allocate a fresh one (native vkCreateBuffer + allocator bind),
// which is wired into Device.requestBufferBlock (device.go) since it
// needs the vk.Device handle and Allocator this package-level type
// deliberately doesn't carry.
func (p *bufferPool) acquire() (*bufferBlock, bool) {
	if n := len(p.free); n > 0 {
		b := p.free[n-1]
		p.free = p.free[:n-1]
		return b, true
	}
	return nil, false
}
