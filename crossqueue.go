package vkcore

import (
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
)

// stagingUpload holds the transient pieces a buffer/image creation's
// upload threads through its cross-queue choreography: the host-visible
// staging buffer and its allocation record.
type stagingUpload struct {
	buffer vk.Buffer
	alloc allocation
	size vk.DeviceSize
}

// createStagingBuffer builds a host-visible, exclusive, transfer-owned
// buffer of size `size` and writes `data` into it, or zero-fills it when
// data is nil and zeroInit is true.
func createStagingBuffer(device vk.Device, allocator Allocator, size vk.DeviceSize, data []byte, zeroInit bool) (stagingUpload, error) {
	var handle vk.Buffer
	ret := vk.CreateBuffer(device, &vk.BufferCreateInfo{
		SType: vk.StructureTypeBufferCreateInfo,
		Size: size,
		Usage: vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit),
		SharingMode: vk.SharingModeExclusive,
	}, nil, &handle)
	if isError(ret) {
		return stagingUpload{}, newError(ret)
	}
	alloc, err := allocator.AllocateBuffer(device, handle, DomainHost)
	if err != nil {
		vk.DestroyBuffer(device, handle, nil)
		return stagingUpload{}, err
	}
	if alloc.mapped != nil {
		if len(data) > 0 {
			dst := unsafe.Slice((*byte)(alloc.mapped), size)
			copy(dst, data)
		} else if zeroInit {
			dst := unsafe.Slice((*byte)(alloc.mapped), size)
			for i := range dst {
				dst[i] = 0
			}
		}
	}
	return stagingUpload{buffer: handle, alloc: alloc, size: size}, nil
}

// bufferCreationPlan is what CreateBuffer (device.go) assembles before
// handing off to the cross-queue choreography: everything needed to
// decide which upload branch to take.
type bufferCreationPlan struct {
	info BufferCreateInfo
	buffer vk.Buffer
	concurrent bool
	ownerFamilies []uint32 // deduplicated, only meaningful if concurrent
	soleOwner QueueType
}

// uploadBufferContents stages a device-local buffer's initial contents:
// the staging buffer is created, a transfer-queue copy recorded, and
// (depending on sharing mode) either a barrier to BOTTOM_OF_PIPE with
// cross-queue semaphores, or a queue-family ownership release+acquire
// pair. The staging buffer is simply left to deferred destruction; no
// partial state survives a failure.
func (d *Device) uploadBufferContents(plan bufferCreationPlan, data []byte, zeroInit bool) error {
	staging, err := createStagingBuffer(d.device, d.allocator, plan.info.Size, data, zeroInit)
	if err != nil {
		return err
	}
	d.deferDestroyBuffer(staging.buffer, staging.alloc)

	transferCB, err := d.requestInternalCommandBuffer(QueueTransfer)
	if err != nil {
		return err
	}
	vk.CmdCopyBuffer(transferCB, staging.buffer, plan.buffer, 1, []vk.BufferCopy{{SrcOffset: 0, DstOffset: 0, Size: plan.info.Size}})

	if plan.concurrent {
		barrier := vk.BufferMemoryBarrier{
			SType: vk.StructureTypeBufferMemoryBarrier,
			SrcAccessMask: vk.AccessFlags(vk.AccessTransferWriteBit),
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Buffer: plan.buffer,
			Size: vk.DeviceSize(vk.WholeSize),
		}
		vk.CmdPipelineBarrier(transferCB, vk.PipelineStageFlags(vk.PipelineStageTransferBit),
			vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit), 0, 0, nil, 1, []vk.BufferMemoryBarrier{barrier}, 0, nil)
		stages, _ := possibleBufferStages(plan.info.Usage)
		return d.submitVisible(transferCB, plan.info.SharingOwners, stages)
	}

	owner := plan.soleOwner
	if owner == QueueTransfer {
		return d.submitInternal(QueueTransfer, transferCB, nil)
	}

	// EXCLUSIVE, owner != transfer: release on transfer, acquire on owner.
	release := vk.BufferMemoryBarrier{
		SType: vk.StructureTypeBufferMemoryBarrier,
		SrcAccessMask: vk.AccessFlags(vk.AccessTransferWriteBit),
		SrcQueueFamilyIndex: d.families.family(QueueTransfer),
		DstQueueFamilyIndex: d.families.family(owner),
		Buffer: plan.buffer,
		Size: vk.DeviceSize(vk.WholeSize),
	}
	vk.CmdPipelineBarrier(transferCB, vk.PipelineStageFlags(vk.PipelineStageTransferBit),
		vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit), 0, 0, nil, 1, []vk.BufferMemoryBarrier{release}, 0, nil)

	sem, err := d.semaphores.requestSemaphore()
	if err != nil {
		return err
	}
	if err := d.submitWithSignal(QueueTransfer, transferCB, sem); err != nil {
		return err
	}

	acquireCB, err := d.requestInternalCommandBuffer(owner)
	if err != nil {
		return err
	}
	stages, access := possibleBufferStages(plan.info.Usage)
	acquire := vk.BufferMemoryBarrier{
		SType: vk.StructureTypeBufferMemoryBarrier,
		DstAccessMask: access,
		SrcQueueFamilyIndex: d.families.family(QueueTransfer),
		DstQueueFamilyIndex: d.families.family(owner),
		Buffer: plan.buffer,
		Size: vk.DeviceSize(vk.WholeSize),
	}
	vk.CmdPipelineBarrier(acquireCB, vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit), stages, 0, 0, nil, 1, []vk.BufferMemoryBarrier{acquire}, 0, nil)
	return d.submitWithWait(owner, acquireCB, sem, vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit))
}

// imageStagingRegion describes one mip level's slice of an image
// staging buffer.
type imageStagingRegion struct {
	offset vk.DeviceSize
	size vk.DeviceSize
	width, height, depth uint32
	level uint32
}

// imageStagingLayout lays out level data in a staging buffer: levels
// are consecutive with 16-byte alignment between them, layers packed
// tightly within a level. Returns the per-level regions and the total
// buffer size.
func imageStagingLayout(info ImageCreateInfo, levels uint32) ([]imageStagingRegion, vk.DeviceSize) {
	texel := formatTexelSize(info.Format)
	layers := vk.DeviceSize(maxu32(info.Layers, 1))
	regions := make([]imageStagingRegion, 0, levels)
	var offset vk.DeviceSize
	w, h, d := info.Extent.Width, info.Extent.Height, maxu32(info.Extent.Depth, 1)
	for level := uint32(0); level < levels; level++ {
		size := texel * vk.DeviceSize(w) * vk.DeviceSize(h) * vk.DeviceSize(d) * layers
		offset = alignUp(offset, 16)
		regions = append(regions, imageStagingRegion{
			offset: offset, size: size, width: w, height: h, depth: d, level: level,
		})
		offset += size
		if w > 1 {
			w /= 2
		}
		if h > 1 {
			h /= 2
		}
		if d > 1 {
			d /= 2
		}
	}
	return regions, offset
}

// imageCreationPlan bundles what uploadImageContents needs: the
// layout-choreography table keyed on (sharing, generate_mips,
// transfer-queue ≡ graphics-queue).
type imageCreationPlan struct {
	info ImageCreateInfo
	image vk.Image
	concurrent bool
	soleOwner QueueType
	initialLayout vk.ImageLayout
}

// uploadImageContents stages a device-local image's base level and
// walks it to its steady-state layout, branching on sharing mode,
// whether mips must be generated, and whether the transfer and graphics
// queues happen to share a family.
func (d *Device) uploadImageContents(plan imageCreationPlan, data []byte) error {
	aspect := imageAspect(plan.info.Format)
	sameFamily := d.families.sharesFamily(QueueTransfer, QueueGraphics)
	generateMips := plan.info.generatesMips()

	// With mip generation only the base level is staged; otherwise the
	// caller may provide the whole chain (levels consecutive, tightly
	// packed), repacked below into the staging buffer's aligned layout.
	stagedLevels := plan.info.Levels
	if generateMips {
		stagedLevels = 1
	}
	regions, total := imageStagingLayout(plan.info, stagedLevels)
	if len(data) > 0 && vk.DeviceSize(len(data)) < total {
		// Not enough data for the full chain: stage the base level only.
		regions, total = imageStagingLayout(plan.info, 1)
	}
	staging, err := createStagingBuffer(d.device, d.allocator, total, nil, true)
	if err != nil {
		return err
	}
	d.deferDestroyBuffer(staging.buffer, staging.alloc)

	if staging.alloc.mapped != nil && len(data) > 0 {
		dst := unsafe.Slice((*byte)(staging.alloc.mapped), total)
		var src vk.DeviceSize
		for _, r := range regions {
			n := r.size
			if remaining := vk.DeviceSize(len(data)) - src; remaining < n {
				n = remaining
			}
			copy(dst[r.offset:r.offset+n], data[src:src+n])
			src += r.size
		}
	}

	copies := make([]vk.BufferImageCopy, len(regions))
	for i, r := range regions {
		copies[i] = vk.BufferImageCopy{
			BufferOffset: r.offset,
			ImageSubresource: vk.ImageSubresourceLayers{
				AspectMask: aspect, MipLevel: r.level, BaseArrayLayer: 0, LayerCount: maxu32(plan.info.Layers, 1),
			},
			ImageExtent: vk.Extent3D{Width: r.width, Height: r.height, Depth: r.depth},
		}
	}

	transferCB, err := d.requestInternalCommandBuffer(QueueTransfer)
	if err != nil {
		return err
	}
	toDst := vk.ImageMemoryBarrier{
		SType: vk.StructureTypeImageMemoryBarrier,
		DstAccessMask: vk.AccessFlags(vk.AccessTransferWriteBit),
		OldLayout: vk.ImageLayoutUndefined,
		NewLayout: vk.ImageLayoutTransferDstOptimal,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image: plan.image,
		SubresourceRange: vk.ImageSubresourceRange{AspectMask: aspect, LevelCount: plan.info.Levels, LayerCount: plan.info.Layers},
	}
	vk.CmdPipelineBarrier(transferCB, vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit), vk.PipelineStageFlags(vk.PipelineStageTransferBit),
		0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{toDst})
	vk.CmdCopyBufferToImage(transferCB, staging.buffer, plan.image, vk.ImageLayoutTransferDstOptimal, uint32(len(copies)), copies)

	switch {
	case plan.concurrent && !generateMips:
		toFinal := vk.ImageMemoryBarrier{
			SType: vk.StructureTypeImageMemoryBarrier, SrcAccessMask: vk.AccessFlags(vk.AccessTransferWriteBit),
			OldLayout: vk.ImageLayoutTransferDstOptimal, NewLayout: plan.initialLayout,
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored, DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Image: plan.image, SubresourceRange: vk.ImageSubresourceRange{AspectMask: aspect, LevelCount: plan.info.Levels, LayerCount: plan.info.Layers},
		}
		vk.CmdPipelineBarrier(transferCB, vk.PipelineStageFlags(vk.PipelineStageTransferBit), vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit),
			0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{toFinal})
		stages, _ := possibleStagesFromUsage(plan.info.Usage)
		return d.submitVisible(transferCB, plan.info.SharingOwners, stages)

	case plan.concurrent && generateMips && sameFamily:
		d.recordMipChain(transferCB, plan.image, plan.info, aspect, plan.initialLayout)
		stages, _ := possibleStagesFromUsage(plan.info.Usage)
		return d.submitVisible(transferCB, plan.info.SharingOwners, stages)

	case plan.concurrent && generateMips && !sameFamily:
		sem, err := d.semaphores.requestSemaphore()
		if err != nil {
			return err
		}
		toSrc := vk.ImageMemoryBarrier{
			SType: vk.StructureTypeImageMemoryBarrier, SrcAccessMask: vk.AccessFlags(vk.AccessTransferWriteBit),
			OldLayout: vk.ImageLayoutTransferDstOptimal, NewLayout: vk.ImageLayoutTransferDstOptimal,
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored, DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Image: plan.image, SubresourceRange: vk.ImageSubresourceRange{AspectMask: aspect, BaseMipLevel: 0, LevelCount: 1, LayerCount: plan.info.Layers},
		}
		vk.CmdPipelineBarrier(transferCB, vk.PipelineStageFlags(vk.PipelineStageTransferBit), vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit),
			0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{toSrc})
		if err := d.submitWithSignal(QueueTransfer, transferCB, sem); err != nil {
			return err
		}
		graphicsCB, err := d.requestInternalCommandBuffer(QueueGraphics)
		if err != nil {
			return err
		}
		d.recordMipChain(graphicsCB, plan.image, plan.info, aspect, plan.initialLayout)
		return d.submitWithWait(QueueGraphics, graphicsCB, sem, vk.PipelineStageFlags(vk.PipelineStageTransferBit))

	case !plan.concurrent && plan.soleOwner == QueueGraphics && sameFamily:
		if generateMips {
			d.recordMipChain(transferCB, plan.image, plan.info, aspect, plan.initialLayout)
		} else {
			toFinal := vk.ImageMemoryBarrier{
				SType: vk.StructureTypeImageMemoryBarrier, SrcAccessMask: vk.AccessFlags(vk.AccessTransferWriteBit),
				OldLayout: vk.ImageLayoutTransferDstOptimal, NewLayout: plan.initialLayout,
				SrcQueueFamilyIndex: vk.QueueFamilyIgnored, DstQueueFamilyIndex: vk.QueueFamilyIgnored,
				Image: plan.image, SubresourceRange: vk.ImageSubresourceRange{AspectMask: aspect, LevelCount: plan.info.Levels, LayerCount: plan.info.Layers},
			}
			vk.CmdPipelineBarrier(transferCB, vk.PipelineStageFlags(vk.PipelineStageTransferBit), vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit),
				0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{toFinal})
		}
		return d.submitInternal(QueueTransfer, transferCB, nil)

	case plan.soleOwner == QueueGraphics:
		sem, err := d.semaphores.requestSemaphore()
		if err != nil {
			return err
		}
		release := vk.ImageMemoryBarrier{
			SType: vk.StructureTypeImageMemoryBarrier, SrcAccessMask: vk.AccessFlags(vk.AccessTransferWriteBit),
			OldLayout: vk.ImageLayoutTransferDstOptimal, NewLayout: vk.ImageLayoutTransferDstOptimal,
			SrcQueueFamilyIndex: d.families.family(QueueTransfer), DstQueueFamilyIndex: d.families.family(QueueGraphics),
			Image: plan.image, SubresourceRange: vk.ImageSubresourceRange{AspectMask: aspect, LevelCount: plan.info.Levels, LayerCount: plan.info.Layers},
		}
		vk.CmdPipelineBarrier(transferCB, vk.PipelineStageFlags(vk.PipelineStageTransferBit), vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit),
			0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{release})
		if err := d.submitWithSignal(QueueTransfer, transferCB, sem); err != nil {
			return err
		}
		graphicsCB, err := d.requestInternalCommandBuffer(QueueGraphics)
		if err != nil {
			return err
		}
		acquire := vk.ImageMemoryBarrier{
			SType: vk.StructureTypeImageMemoryBarrier, DstAccessMask: vk.AccessFlags(vk.AccessTransferReadBit) | vk.AccessFlags(vk.AccessTransferWriteBit),
			OldLayout: vk.ImageLayoutTransferDstOptimal, NewLayout: vk.ImageLayoutTransferDstOptimal,
			SrcQueueFamilyIndex: d.families.family(QueueTransfer), DstQueueFamilyIndex: d.families.family(QueueGraphics),
			Image: plan.image, SubresourceRange: vk.ImageSubresourceRange{AspectMask: aspect, LevelCount: plan.info.Levels, LayerCount: plan.info.Layers},
		}
		vk.CmdPipelineBarrier(graphicsCB, vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit), vk.PipelineStageFlags(vk.PipelineStageTransferBit),
			0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{acquire})
		if generateMips {
			d.recordMipChain(graphicsCB, plan.image, plan.info, aspect, plan.initialLayout)
		} else {
			final := vk.ImageMemoryBarrier{
				SType: vk.StructureTypeImageMemoryBarrier, SrcAccessMask: vk.AccessFlags(vk.AccessTransferWriteBit),
				OldLayout: vk.ImageLayoutTransferDstOptimal, NewLayout: plan.initialLayout,
				SrcQueueFamilyIndex: vk.QueueFamilyIgnored, DstQueueFamilyIndex: vk.QueueFamilyIgnored,
				Image: plan.image, SubresourceRange: vk.ImageSubresourceRange{AspectMask: aspect, LevelCount: plan.info.Levels, LayerCount: plan.info.Layers},
			}
			vk.CmdPipelineBarrier(graphicsCB, vk.PipelineStageFlags(vk.PipelineStageTransferBit), vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit),
				0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{final})
		}
		return d.submitWithWait(QueueGraphics, graphicsCB, sem, vk.PipelineStageFlags(vk.PipelineStageTransferBit))

	default:
		// EXCLUSIVE, owner is neither graphics nor transfer: transfer ->
		// graphics (mips) -> target queue, two queue-family transitions in
		// sequence.
		sem1, err := d.semaphores.requestSemaphore()
		if err != nil {
			return err
		}
		release1 := vk.ImageMemoryBarrier{
			SType: vk.StructureTypeImageMemoryBarrier, SrcAccessMask: vk.AccessFlags(vk.AccessTransferWriteBit),
			OldLayout: vk.ImageLayoutTransferDstOptimal, NewLayout: vk.ImageLayoutTransferDstOptimal,
			SrcQueueFamilyIndex: d.families.family(QueueTransfer), DstQueueFamilyIndex: d.families.family(QueueGraphics),
			Image: plan.image, SubresourceRange: vk.ImageSubresourceRange{AspectMask: aspect, LevelCount: plan.info.Levels, LayerCount: plan.info.Layers},
		}
		vk.CmdPipelineBarrier(transferCB, vk.PipelineStageFlags(vk.PipelineStageTransferBit), vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit),
			0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{release1})
		if err := d.submitWithSignal(QueueTransfer, transferCB, sem1); err != nil {
			return err
		}

		graphicsCB, err := d.requestInternalCommandBuffer(QueueGraphics)
		if err != nil {
			return err
		}
		acquire1 := vk.ImageMemoryBarrier{
			SType: vk.StructureTypeImageMemoryBarrier, DstAccessMask: vk.AccessFlags(vk.AccessTransferReadBit) | vk.AccessFlags(vk.AccessTransferWriteBit),
			OldLayout: vk.ImageLayoutTransferDstOptimal, NewLayout: vk.ImageLayoutTransferDstOptimal,
			SrcQueueFamilyIndex: d.families.family(QueueTransfer), DstQueueFamilyIndex: d.families.family(QueueGraphics),
			Image: plan.image, SubresourceRange: vk.ImageSubresourceRange{AspectMask: aspect, LevelCount: plan.info.Levels, LayerCount: plan.info.Layers},
		}
		vk.CmdPipelineBarrier(graphicsCB, vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit), vk.PipelineStageFlags(vk.PipelineStageTransferBit),
			0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{acquire1})
		if generateMips {
			d.recordMipChain(graphicsCB, plan.image, plan.info, aspect, vk.ImageLayoutTransferSrcOptimal)
		}
		sem2, err := d.semaphores.requestSemaphore()
		if err != nil {
			return err
		}
		release2 := vk.ImageMemoryBarrier{
			SType: vk.StructureTypeImageMemoryBarrier, SrcAccessMask: vk.AccessFlags(vk.AccessTransferWriteBit),
			OldLayout: vk.ImageLayoutTransferSrcOptimal, NewLayout: vk.ImageLayoutTransferSrcOptimal,
			SrcQueueFamilyIndex: d.families.family(QueueGraphics), DstQueueFamilyIndex: d.families.family(plan.soleOwner),
			Image: plan.image, SubresourceRange: vk.ImageSubresourceRange{AspectMask: aspect, LevelCount: plan.info.Levels, LayerCount: plan.info.Layers},
		}
		vk.CmdPipelineBarrier(graphicsCB, vk.PipelineStageFlags(vk.PipelineStageTransferBit), vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit),
			0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{release2})
		if err := d.submitWithWaitAndSignal(QueueGraphics, graphicsCB, sem1, vk.PipelineStageFlags(vk.PipelineStageTransferBit), sem2); err != nil {
			return err
		}

		targetCB, err := d.requestInternalCommandBuffer(plan.soleOwner)
		if err != nil {
			return err
		}
		stages, _ := possibleStagesFromUsage(plan.info.Usage)
		acquire2 := vk.ImageMemoryBarrier{
			SType: vk.StructureTypeImageMemoryBarrier, DstAccessMask: vk.AccessFlags(vk.AccessMemoryReadBit),
			OldLayout: vk.ImageLayoutTransferSrcOptimal, NewLayout: plan.initialLayout,
			SrcQueueFamilyIndex: d.families.family(QueueGraphics), DstQueueFamilyIndex: d.families.family(plan.soleOwner),
			Image: plan.image, SubresourceRange: vk.ImageSubresourceRange{AspectMask: aspect, LevelCount: plan.info.Levels, LayerCount: plan.info.Layers},
		}
		vk.CmdPipelineBarrier(targetCB, vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit), stages,
			0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{acquire2})
		return d.submitWithWait(plan.soleOwner, targetCB, sem2, vk.PipelineStageFlags(vk.PipelineStageTransferBit))
	}
}

// recordMipChain blits an already-copied base level down the mip
// pyramid, one per-level barrier ahead of each blit, then transitions
// every level to initialLayout.
func (d *Device) recordMipChain(cb vk.CommandBuffer, image vk.Image, info ImageCreateInfo, aspect vk.ImageAspectFlags, initialLayout vk.ImageLayout) {
	toSrc := vk.ImageMemoryBarrier{
		SType: vk.StructureTypeImageMemoryBarrier, SrcAccessMask: vk.AccessFlags(vk.AccessTransferWriteBit), DstAccessMask: vk.AccessFlags(vk.AccessTransferReadBit),
		OldLayout: vk.ImageLayoutTransferDstOptimal, NewLayout: vk.ImageLayoutTransferSrcOptimal,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored, DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image: image, SubresourceRange: vk.ImageSubresourceRange{AspectMask: aspect, BaseMipLevel: 0, LevelCount: 1, LayerCount: info.Layers},
	}
	vk.CmdPipelineBarrier(cb, vk.PipelineStageFlags(vk.PipelineStageTransferBit), vk.PipelineStageFlags(vk.PipelineStageTransferBit),
		0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{toSrc})

	w, h := int32(info.Extent.Width), int32(info.Extent.Height)
	for level := uint32(1); level < info.Levels; level++ {
		prep := vk.ImageMemoryBarrier{
			SType: vk.StructureTypeImageMemoryBarrier, DstAccessMask: vk.AccessFlags(vk.AccessTransferWriteBit),
			OldLayout: vk.ImageLayoutUndefined, NewLayout: vk.ImageLayoutTransferDstOptimal,
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored, DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Image: image, SubresourceRange: vk.ImageSubresourceRange{AspectMask: aspect, BaseMipLevel: level, LevelCount: 1, LayerCount: info.Layers},
		}
		vk.CmdPipelineBarrier(cb, vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit), vk.PipelineStageFlags(vk.PipelineStageTransferBit),
			0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{prep})

		srcW, srcH := w, h
		if w > 1 {
			w /= 2
		}
		if h > 1 {
			h /= 2
		}
		blit := vk.ImageBlit{
			SrcSubresource: vk.ImageSubresourceLayers{AspectMask: aspect, MipLevel: level - 1, LayerCount: info.Layers},
			DstSubresource: vk.ImageSubresourceLayers{AspectMask: aspect, MipLevel: level, LayerCount: info.Layers},
		}
		blit.SrcOffsets[1] = vk.Offset3D{X: srcW, Y: srcH, Z: 1}
		blit.DstOffsets[1] = vk.Offset3D{X: w, Y: h, Z: 1}
		vk.CmdBlitImage(cb, image, vk.ImageLayoutTransferSrcOptimal, image, vk.ImageLayoutTransferDstOptimal, 1, []vk.ImageBlit{blit}, vk.FilterLinear)

		toSrcLevel := vk.ImageMemoryBarrier{
			SType: vk.StructureTypeImageMemoryBarrier, SrcAccessMask: vk.AccessFlags(vk.AccessTransferWriteBit), DstAccessMask: vk.AccessFlags(vk.AccessTransferReadBit),
			OldLayout: vk.ImageLayoutTransferDstOptimal, NewLayout: vk.ImageLayoutTransferSrcOptimal,
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored, DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Image: image, SubresourceRange: vk.ImageSubresourceRange{AspectMask: aspect, BaseMipLevel: level, LevelCount: 1, LayerCount: info.Layers},
		}
		vk.CmdPipelineBarrier(cb, vk.PipelineStageFlags(vk.PipelineStageTransferBit), vk.PipelineStageFlags(vk.PipelineStageTransferBit),
			0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{toSrcLevel})
	}

	final := vk.ImageMemoryBarrier{
		SType: vk.StructureTypeImageMemoryBarrier, SrcAccessMask: vk.AccessFlags(vk.AccessTransferReadBit) | vk.AccessFlags(vk.AccessTransferWriteBit),
		OldLayout: vk.ImageLayoutTransferSrcOptimal, NewLayout: initialLayout,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored, DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image: image, SubresourceRange: vk.ImageSubresourceRange{AspectMask: aspect, LevelCount: info.Levels, LayerCount: info.Layers},
	}
	vk.CmdPipelineBarrier(cb, vk.PipelineStageFlags(vk.PipelineStageTransferBit), vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit),
		0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{final})
}
