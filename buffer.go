package vkcore

import (
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
)

// BufferMisc carries the boolean creation toggles for a Buffer.
type BufferMisc uint32

const (
	BufferMiscZeroInitialize BufferMisc = 1 << iota
)

// BufferCreateInfo is the hashable, caller-facing description of a
// Buffer. SharingOwners is the set of queue roles that may touch the
// resource; Device derives EXCLUSIVE vs CONCURRENT sharing from its
// length.
type BufferCreateInfo struct {
	Domain Domain
	Size vk.DeviceSize
	Usage vk.BufferUsageFlags
	SharingOwners []QueueType
	Misc BufferMisc

	// Initial, when non-nil, is uploaded at creation time; when nil and
	// Misc has BufferMiscZeroInitialize set, a zero fill is staged
	// instead.
	Initial []byte
}

func (info BufferCreateInfo) sharingMode() vk.SharingMode {
	if len(info.SharingOwners) > 1 {
		return vk.SharingModeConcurrent
	}
	return vk.SharingModeExclusive
}

func (info BufferCreateInfo) needsUpload() bool {
	return info.Domain == DomainDevice && (info.Initial != nil || info.Misc&BufferMiscZeroInitialize != 0)
}

// Buffer is a ref-counted wrapper over a raw vk.Buffer plus its
// backing allocation.
//
// Invariant: if info.Domain is host-visible the allocation is
// persistently mapped and mappedPointer is non-nil; if Device, it is
// never mapped.
type Buffer struct {
	refCount

	cookie Cookie
	device vk.Device
	info BufferCreateInfo

	handle vk.Buffer
	alloc allocation
}

func (b *Buffer) Cookie() Cookie { return b.cookie }
func (b *Buffer) Handle() vk.Buffer { return b.handle }
func (b *Buffer) Size() vk.DeviceSize { return b.info.Size }
func (b *Buffer) Domain() Domain { return b.info.Domain }
func (b *Buffer) Info() BufferCreateInfo { return b.info }

// mappedPointer returns the persistent host mapping for a host-visible
// buffer, or nil for a Device-domain buffer.
func (b *Buffer) mappedPointer() unsafe.Pointer { return b.alloc.mapped }

// possibleBufferStages derives the pipeline-stage and access masks a
// buffer's usage flags imply, for acquire barriers and upload-visibility
// semaphore waits.
func possibleBufferStages(usage vk.BufferUsageFlags) (vk.PipelineStageFlags, vk.AccessFlags) {
	var stages vk.PipelineStageFlags
	var access vk.AccessFlags
	u := vk.BufferUsageFlagBits(usage)
	if u&vk.BufferUsageVertexBufferBit != 0 {
		stages |= vk.PipelineStageFlags(vk.PipelineStageVertexInputBit)
		access |= vk.AccessFlags(vk.AccessVertexAttributeReadBit)
	}
	if u&vk.BufferUsageIndexBufferBit != 0 {
		stages |= vk.PipelineStageFlags(vk.PipelineStageVertexInputBit)
		access |= vk.AccessFlags(vk.AccessIndexReadBit)
	}
	if u&vk.BufferUsageUniformBufferBit != 0 {
		stages |= vk.PipelineStageFlags(vk.PipelineStageVertexShaderBit) | vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit) |
			vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit)
		access |= vk.AccessFlags(vk.AccessUniformReadBit)
	}
	if u&vk.BufferUsageStorageBufferBit != 0 || u&vk.BufferUsageStorageTexelBufferBit != 0 {
		stages |= vk.PipelineStageFlags(vk.PipelineStageVertexShaderBit) | vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit) |
			vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit)
		access |= vk.AccessFlags(vk.AccessShaderReadBit) | vk.AccessFlags(vk.AccessShaderWriteBit)
	}
	if u&vk.BufferUsageUniformTexelBufferBit != 0 {
		stages |= vk.PipelineStageFlags(vk.PipelineStageVertexShaderBit) | vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit) |
			vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit)
		access |= vk.AccessFlags(vk.AccessShaderReadBit)
	}
	if u&vk.BufferUsageIndirectBufferBit != 0 {
		stages |= vk.PipelineStageFlags(vk.PipelineStageDrawIndirectBit)
		access |= vk.AccessFlags(vk.AccessIndirectCommandReadBit)
	}
	if u&vk.BufferUsageTransferSrcBit != 0 {
		stages |= vk.PipelineStageFlags(vk.PipelineStageTransferBit)
		access |= vk.AccessFlags(vk.AccessTransferReadBit)
	}
	if u&vk.BufferUsageTransferDstBit != 0 {
		stages |= vk.PipelineStageFlags(vk.PipelineStageTransferBit)
		access |= vk.AccessFlags(vk.AccessTransferWriteBit)
	}
	return stages, access
}

// BufferViewCreateInfo is the hashable description of a typed view
// over a buffer range.
type BufferViewCreateInfo struct {
	Format vk.Format
	Offset vk.DeviceSize
	Range vk.DeviceSize
}

type BufferView struct {
	refCount

	cookie Cookie
	device vk.Device
	buffer Handle[*Buffer]
	info BufferViewCreateInfo
	handle vk.BufferView
}

func (v *BufferView) Cookie() Cookie { return v.cookie }
func (v *BufferView) Handle() vk.BufferView { return v.handle }
func (v *BufferView) Buffer() *Buffer { return v.buffer.Get() }
