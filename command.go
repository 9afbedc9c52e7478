package vkcore

import (
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
)

// dirtyCategory is an 8-bit mask recording which state categories need
// re-emitting before the next draw: static-state, pipeline, viewport,
// scissor, depth-bias, stencil-reference, static-vertex-layout,
// push-constants.
type dirtyCategory uint8

const (
	dirtyStaticState dirtyCategory = 1 << iota
	dirtyPipeline
	dirtyViewport
	dirtyScissor
	dirtyDepthBias
	dirtyStencilReference
	dirtyStaticVertexLayout
	dirtyPushConstants
	dirtyAll = dirtyStaticState | dirtyPipeline | dirtyViewport | dirtyScissor |
		dirtyDepthBias | dirtyStencilReference | dirtyStaticVertexLayout | dirtyPushConstants
)

// resourceBinding is what the command buffer tracks per (set, binding)
// slot before a descriptor flush hashes it: resource cookie, a
// secondary cookie for a paired sampler, the float-vs-integer view
// variant, image layout, and the dynamic offset.
type resourceBinding struct {
	buffer *Buffer
	bufferView *BufferView
	image *ImageView
	sampler *Sampler
	dynamicOffset uint32
	fpVariant bool
	layout vk.ImageLayout
	valid bool
}

// CommandBufferSavedState snapshots viewport, scissor, static state, and
// push constants so a caller can restore them after a nested pass of
// unrelated draws.
type CommandBufferSavedState struct {
	viewport vk.Viewport
	scissor vk.Rect2D
	state PipelineState
	pushConstants [128]byte
	pushSize uint32
}

// CommandBuffer wraps one open vk.CommandBuffer recording. It is
// single-threaded by contract: its internal state belongs to the
// recorder alone and needs no external synchronization.
type CommandBuffer struct {
	device vk.Device
	handle vk.CommandBuffer
	queue QueueType
	thread int
	secondary bool

	dirty dirtyCategory
	dirtySets uint32
	dirtySetsDynamic uint32
	dirtyVBOs uint32

	state PipelineState
	program *Program
	viewport vk.Viewport
	scissor vk.Rect2D

	renderPass *RenderPass
	framebuffer vk.Framebuffer
	subpass uint32
	currentContents vk.SubpassContents
	inRenderPass bool

	attributes []VertexAttribute
	bindings []VertexBinding
	vboBuffers [16]*Buffer
	vboOffsets [16]vk.DeviceSize

	indexBuffer vk.Buffer
	indexOffset vk.DeviceSize
	indexType vk.IndexType

	patchControlPoints uint32
	usesSwapchain bool

	bindingSets [MaxDescriptorSets][32]resourceBinding
	allocatedSets [MaxDescriptorSets]vk.DescriptorSet

	specConstantWords []uint32
	blendConstants [4]float32
	blendConstantsUsed bool

	pushConstants [128]byte
	pushSize uint32

	// held transient blocks, one per kind. A block is owned by exactly
	// one active recording context at a time.
	held [bufferKindCount]*bufferBlock

	submitted bool

	device_ *Device // back-reference for pool/allocator access
}

func (cb *CommandBuffer) markDirty(d dirtyCategory) { cb.dirty |= d }
func (cb *CommandBuffer) clearDirty(d dirtyCategory) { cb.dirty &^= d }
func (cb *CommandBuffer) isDirty(d dirtyCategory) bool { return cb.dirty&d != 0 }

// --- State setters ---

func (cb *CommandBuffer) SetDepthTest(enable, write bool) {
	cb.state.SetDepthTest(enable)
	cb.state.SetDepthWrite(write)
	cb.markDirty(dirtyStaticState)
}

func (cb *CommandBuffer) SetDepthCompare(op vk.CompareOp) {
	cb.state.SetDepthCompare(op)
	cb.markDirty(dirtyStaticState)
}

func (cb *CommandBuffer) SetBlendEnable(enable bool) {
	cb.state.SetBlendEnable(enable)
	cb.markDirty(dirtyStaticState)
}

func (cb *CommandBuffer) SetCullMode(mode vk.CullModeFlagBits) {
	cb.state.SetCullMode(mode)
	cb.markDirty(dirtyStaticState)
}

func (cb *CommandBuffer) SetFrontFace(ccw bool) {
	cb.state.SetFrontFaceCCW(ccw)
	cb.markDirty(dirtyStaticState)
}

func (cb *CommandBuffer) SetTopology(t vk.PrimitiveTopology) {
	cb.state.SetTopology(t)
	cb.markDirty(dirtyStaticState)
}

func (cb *CommandBuffer) SetPrimitiveRestart(v bool) {
	cb.state.SetPrimitiveRestart(v)
	cb.markDirty(dirtyStaticState)
}

func (cb *CommandBuffer) SetStencilOps(enable bool) {
	cb.state.SetStencilEnable(enable)
	cb.markDirty(dirtyStaticState)
}

func (cb *CommandBuffer) SetStencilReference(ref uint32) {
	vk.CmdSetStencilReference(cb.handle, vk.StencilFaceFlags(vk.StencilFrontAndBack), ref)
	cb.clearDirty(dirtyStencilReference)
}

func (cb *CommandBuffer) SetDepthBias(constant, slope float32) {
	vk.CmdSetDepthBias(cb.handle, constant, 0, slope)
	cb.clearDirty(dirtyDepthBias)
}

func (cb *CommandBuffer) SetViewport(vp vk.Viewport) {
	cb.viewport = vp
	cb.markDirty(dirtyViewport)
}

func (cb *CommandBuffer) SetScissor(s vk.Rect2D) {
	cb.scissor = s
	cb.markDirty(dirtyScissor)
}

func (cb *CommandBuffer) SetVertexAttribute(loc, binding uint32, format vk.Format, offset uint32) {
	cb.attributes = append(cb.attributes, VertexAttribute{Location: loc, Binding: binding, Format: format, Offset: offset})
	cb.markDirty(dirtyStaticVertexLayout)
}

func (cb *CommandBuffer) SetVertexBinding(binding uint32, stride uint32, rate vk.VertexInputRate) {
	cb.bindings = append(cb.bindings, VertexBinding{Binding: binding, Stride: stride, Rate: rate})
	cb.markDirty(dirtyStaticVertexLayout)
}

func (cb *CommandBuffer) SetSpecConstants(words []uint32) {
	cb.specConstantWords = append([]uint32(nil), words...)
	cb.markDirty(dirtyPipeline)
}

func (cb *CommandBuffer) SetConservativeRaster(v bool) {
	cb.state.SetConservativeRaster(v)
	cb.markDirty(dirtyStaticState)
}

func (cb *CommandBuffer) SetWireframe(v bool) {
	cb.state.SetWireframe(v)
	cb.markDirty(dirtyStaticState)
}

func (cb *CommandBuffer) SetDepthBiasEnable(v bool) {
	cb.state.SetDepthBiasEnable(v)
	cb.markDirty(dirtyStaticState)
}

func (cb *CommandBuffer) SetAlphaToCoverage(v bool) {
	cb.state.SetAlphaToCoverage(v)
	cb.markDirty(dirtyStaticState)
}

func (cb *CommandBuffer) SetAlphaToOne(v bool) {
	cb.state.SetAlphaToOne(v)
	cb.markDirty(dirtyStaticState)
}

func (cb *CommandBuffer) SetSampleShading(v bool) {
	cb.state.SetSampleShading(v)
	cb.markDirty(dirtyStaticState)
}

// SetBlendConstants folds the four constant factors into the pipeline
// fingerprint, so new values select a different pipeline variant. The
// values are not written into the built pipeline's color-blend state
// and are not set dynamically either.
func (cb *CommandBuffer) SetBlendConstants(constants [4]float32) {
	cb.blendConstants = constants
	cb.blendConstantsUsed = true
	cb.markDirty(dirtyPipeline)
}

// SetPatchControlPoints enables tessellation state on the next pipeline
// build. Zero disables it.
func (cb *CommandBuffer) SetPatchControlPoints(n uint32) {
	if cb.patchControlPoints != n {
		cb.patchControlPoints = n
		cb.markDirty(dirtyPipeline)
	}
}

func (cb *CommandBuffer) PushConstants(data []byte) {
	n := copy(cb.pushConstants[:], data)
	cb.pushSize = uint32(n)
	cb.markDirty(dirtyPushConstants)
}

// --- Program binding ---

func (cb *CommandBuffer) SetProgram(p *Program) {
	if cb.program != p {
		cb.program = p
		cb.markDirty(dirtyPipeline)
	}
}

// --- Resource binders ---

func (cb *CommandBuffer) SetSampler(set, binding uint32, s *Sampler) {
	cb.bindingSets[set][binding].sampler = s
	cb.bindingSets[set][binding].valid = true
	cb.dirtySets |= 1 << set
}

func (cb *CommandBuffer) SetTexture(set, binding uint32, view *ImageView, fpVariant bool, layout vk.ImageLayout) {
	b := &cb.bindingSets[set][binding]
	b.image = view
	b.fpVariant = fpVariant
	b.layout = layout
	b.valid = true
	cb.dirtySets |= 1 << set
}

// SetUniformBuffer binds a dynamic-offset uniform buffer. Rebinding the
// same buffer with a new offset rides the cheap dynamic-only rebind
// path instead of a full descriptor rehash.
func (cb *CommandBuffer) SetUniformBuffer(set, binding uint32, buf *Buffer, dynamicOffset uint32) {
	b := &cb.bindingSets[set][binding]
	sameBuffer := b.buffer == buf
	b.buffer = buf
	b.dynamicOffset = dynamicOffset
	b.valid = true
	if sameBuffer {
		cb.dirtySetsDynamic |= 1 << set
	} else {
		cb.dirtySets |= 1 << set
	}
}

func (cb *CommandBuffer) SetStorageBuffer(set, binding uint32, buf *Buffer) {
	b := &cb.bindingSets[set][binding]
	b.buffer = buf
	b.valid = true
	cb.dirtySets |= 1 << set
}

func (cb *CommandBuffer) SetBufferView(set, binding uint32, bv *BufferView) {
	b := &cb.bindingSets[set][binding]
	b.bufferView = bv
	b.valid = true
	cb.dirtySets |= 1 << set
}

// SetStorageTexture binds a storage image, which is always accessed in
// GENERAL layout.
func (cb *CommandBuffer) SetStorageTexture(set, binding uint32, view *ImageView) {
	cb.SetTexture(set, binding, view, true, vk.ImageLayoutGeneral)
}

// SetSeparateTexture binds a sampled image with no paired sampler; the
// shader supplies one through a separate sampler binding.
func (cb *CommandBuffer) SetSeparateTexture(set, binding uint32, view *ImageView, fpVariant bool) {
	cb.SetTexture(set, binding, view, fpVariant, vk.ImageLayoutShaderReadOnlyOptimal)
}

// SetInputAttachment binds one subpass input attachment. The layout
// must match what the current render pass transitioned the attachment
// to (SHADER_READ_ONLY_OPTIMAL, or GENERAL for feedback loops).
func (cb *CommandBuffer) SetInputAttachment(set, binding uint32, view *ImageView, layout vk.ImageLayout) {
	cb.SetTexture(set, binding, view, true, layout)
}

// --- Descriptor flush ---

func (cb *CommandBuffer) bindingKeysForSet(set uint32) []bindingKey {
	var keys []bindingKey
	for binding, b := range cb.bindingSets[set] {
		if !b.valid {
			continue
		}
		key := bindingKey{slot: uint32(binding), variantIsFP: b.fpVariant, layout: b.layout}
		if b.buffer != nil {
			key.cookie = b.buffer.Cookie()
		}
		if b.image != nil {
			key.cookie = b.image.Cookie()
		}
		if b.sampler != nil {
			key.secondaryCookie = b.sampler.Cookie()
		}
		if b.bufferView != nil {
			key.cookie = b.bufferView.Cookie()
		}
		keys = append(keys, key)
	}
	return keys
}

// flushDescriptorSets splits dirty set handling in two: a full rehash
// for dirtySets, and a cheaper offset-only rebind for dirtySetsDynamic
// (a uniform buffer rebound at the same cookie with a new dynamic
// offset). Keeping the two apart avoids rehashing and rewriting a
// whole descriptor set just to change one offset.
func (cb *CommandBuffer) flushDescriptorSets() error {
	if cb.program == nil {
		return nil
	}
	layout := cb.program.Layout()
	mask := layout.DescriptorSetMask
	setUpdate := mask & cb.dirtySets
	for set := uint32(0); set < MaxDescriptorSets; set++ {
		if setUpdate&(1<<set) == 0 {
			continue
		}
		alloc := cb.device_.descriptorAllocatorFor(cb.program, set)
		if alloc.bindless {
			// Bindless sets skip the per-thread temporal cache entirely
			// and are rewritten on every dirty flush, since their
			// whole point is a variable-length array that the cache
			// key scheme (fixed per-binding hashing) cannot address.
			dset, err := alloc.allocateBindless(bindlessCountForSet(layout.SetLayout[set]))
			if err != nil {
				return err
			}
			cb.device_.writeDescriptorSet(dset, cb.bindingSets[set][:], &layout.SetLayout[set])
			cb.allocatedSets[set] = dset
			cb.bindSet(set, cb.allocatedSets[set])
			continue
		}

		keys := cb.bindingKeysForSet(set)
		hash := hashBindings(keys)
		if dset, ok := alloc.resolve(cb.thread, hash); ok {
			cb.allocatedSets[set] = dset
		} else {
			dset, pool, err := alloc.allocateFresh(cb.thread)
			if err != nil {
				return err
			}
			cb.device_.writeDescriptorSet(dset, cb.bindingSets[set][:], &layout.SetLayout[set])
			alloc.insert(cb.thread, hash, dset, pool)
			cb.allocatedSets[set] = dset
		}
		cb.bindSet(set, cb.allocatedSets[set])
	}

	dynamicUpdate := mask & cb.dirtySetsDynamic &^ setUpdate
	for set := uint32(0); set < MaxDescriptorSets; set++ {
		if dynamicUpdate&(1<<set) == 0 {
			continue
		}
		cb.bindSet(set, cb.allocatedSets[set])
	}

	cb.dirtySets = 0
	cb.dirtySetsDynamic = 0
	return nil
}

func (cb *CommandBuffer) bindSet(set uint32, dset vk.DescriptorSet) {
	offsets := cb.dynamicOffsetsForSet(set)
	bindPoint := vk.PipelineBindPointGraphics
	if cb.program != nil && cb.program.IsCompute() {
		bindPoint = vk.PipelineBindPointCompute
	}
	vk.CmdBindDescriptorSets(cb.handle, bindPoint, cb.program.PipelineLayout(), set, 1,
		[]vk.DescriptorSet{dset}, uint32(len(offsets)), offsets)
}

func (cb *CommandBuffer) dynamicOffsetsForSet(set uint32) []uint32 {
	var offsets []uint32
	for _, b := range cb.bindingSets[set] {
		if b.valid && b.buffer != nil {
			offsets = append(offsets, b.dynamicOffset)
		}
	}
	return offsets
}

// --- Pipeline resolution ---

func (cb *CommandBuffer) resolvePipeline() (vk.Pipeline, error) {
	material := pipelineKeyMaterial{
		state: cb.state,
		programDigest: uint64(cb.program.Cookie()),
		subpassIndex: cb.subpass,
		attributes: cb.attributes,
		bindings: cb.bindings,
		specConstantWords: cb.specConstantWords,
		blendConstants: cb.blendConstants,
		blendConstantsUsed: cb.blendConstantsUsed,
		patchControlPoints: cb.patchControlPoints,
	}
	if cb.renderPass != nil {
		material.compatibleRPHash = cb.renderPass.compatibleHash
	}
	fp := pipelineFingerprint(material)
	if pipe, ok := cb.program.lookupPipeline(fp); ok {
		return pipe, nil
	}

	specInfo := buildSpecInfo(cb.specConstantWords, cb.program.Layout().SpecConstantMask)

	if cb.program.IsCompute() {
		pipe, err := buildComputePipeline(cb.device, cb.device_.pipelineCache, cb.program, specInfo)
		if err != nil {
			return vk.NullPipeline, err
		}
		cb.program.storePipeline(fp, pipe)
		return pipe, nil
	}

	writeMasks := make([]vk.ColorComponentFlags, cb.renderPass.colorCount)
	for i := range writeMasks {
		writeMasks[i] = vk.ColorComponentFlags(vk.ColorComponentRBit) | vk.ColorComponentFlags(vk.ColorComponentGBit) |
			vk.ColorComponentFlags(vk.ColorComponentBBit) | vk.ColorComponentFlags(vk.ColorComponentABit)
	}
	var perStageSpec map[ShaderStage]*vk.SpecializationInfo
	if specInfo != nil {
		perStageSpec = map[ShaderStage]*vk.SpecializationInfo{StageVertex: specInfo, StageFragment: specInfo}
	}
	pipe, err := buildGraphicsPipeline(cb.device, cb.device_.pipelineCache, graphicsPipelineBuildInfo{
		state: cb.state,
		program: cb.program,
		renderPass: cb.renderPass.handle,
		subpass: cb.subpass,
		colorCount: cb.renderPass.colorCount,
		writeMasks: writeMasks,
		attributes: cb.attributes,
		bindings: cb.bindings,
		specInfo: perStageSpec,
		tessPatchControlPoints: cb.patchControlPoints,
	})
	if err != nil {
		return vk.NullPipeline, err
	}
	cb.program.storePipeline(fp, pipe)
	return pipe, nil
}

// flushState resolves a pipeline if dirty, binds it, updates
// viewport/scissor/push-constants and vertex buffer bindings if dirty,
// and flushes descriptor sets -- called immediately before every
// draw/dispatch. Depth bias and stencil reference are not flushed here;
// SetDepthBias and SetStencilReference record them directly.
func (cb *CommandBuffer) flushState() error {
	assertf(cb.program != nil, "vkcore: draw/dispatch issued with no bound program")

	if cb.isDirty(dirtyStaticState | dirtyPipeline | dirtyStaticVertexLayout) {
		pipe, err := cb.resolvePipeline()
		if err != nil {
			return err
		}
		bindPoint := vk.PipelineBindPointGraphics
		if cb.program.IsCompute() {
			bindPoint = vk.PipelineBindPointCompute
		}
		vk.CmdBindPipeline(cb.handle, bindPoint, pipe)
		cb.clearDirty(dirtyStaticState | dirtyPipeline | dirtyStaticVertexLayout)
	}
	if cb.isDirty(dirtyViewport) {
		vk.CmdSetViewport(cb.handle, 0, 1, []vk.Viewport{cb.viewport})
		cb.clearDirty(dirtyViewport)
	}
	if cb.isDirty(dirtyScissor) {
		vk.CmdSetScissor(cb.handle, 0, 1, []vk.Rect2D{cb.scissor})
		cb.clearDirty(dirtyScissor)
	}
	if cb.isDirty(dirtyPushConstants) && cb.pushSize > 0 {
		vk.CmdPushConstants(cb.handle, cb.program.PipelineLayout(), cb.program.Layout().PushConstantStages,
			0, cb.pushSize, unsafe.Pointer(&cb.pushConstants[0]))
		cb.clearDirty(dirtyPushConstants)
	}
	cb.flushVBOBindings()
	return cb.flushDescriptorSets()
}

// --- Draw / dispatch ---

func (cb *CommandBuffer) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) error {
	if err := cb.flushState(); err != nil {
		return err
	}
	vk.CmdDraw(cb.handle, vertexCount, instanceCount, firstVertex, firstInstance)
	return nil
}

func (cb *CommandBuffer) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) error {
	assertf(cb.indexBuffer != vk.NullBuffer, "vkcore: indexed draw with no bound index buffer")
	if err := cb.flushState(); err != nil {
		return err
	}
	vk.CmdDrawIndexed(cb.handle, indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
	return nil
}

func (cb *CommandBuffer) DrawIndirect(buf *Buffer, offset vk.DeviceSize, count, stride uint32) error {
	if err := cb.flushState(); err != nil {
		return err
	}
	vk.CmdDrawIndirect(cb.handle, buf.Handle(), offset, count, stride)
	return nil
}

func (cb *CommandBuffer) DrawIndexedIndirect(buf *Buffer, offset vk.DeviceSize, count, stride uint32) error {
	assertf(cb.indexBuffer != vk.NullBuffer, "vkcore: indexed draw with no bound index buffer")
	if err := cb.flushState(); err != nil {
		return err
	}
	vk.CmdDrawIndexedIndirect(cb.handle, buf.Handle(), offset, count, stride)
	return nil
}

// SetIndexBuffer binds an index buffer for subsequent indexed draws.
func (cb *CommandBuffer) SetIndexBuffer(buf *Buffer, offset vk.DeviceSize, indexType vk.IndexType) {
	if cb.indexBuffer == buf.Handle() && cb.indexOffset == offset && cb.indexType == indexType {
		return
	}
	cb.indexBuffer = buf.Handle()
	cb.indexOffset = offset
	cb.indexType = indexType
	vk.CmdBindIndexBuffer(cb.handle, cb.indexBuffer, offset, indexType)
}

func (cb *CommandBuffer) Dispatch(x, y, z uint32) error {
	if err := cb.flushState(); err != nil {
		return err
	}
	vk.CmdDispatch(cb.handle, x, y, z)
	return nil
}

// --- Transfer ops ---

func (cb *CommandBuffer) CopyBuffer(dst, src *Buffer, regions []vk.BufferCopy) {
	vk.CmdCopyBuffer(cb.handle, src.Handle(), dst.Handle(), uint32(len(regions)), regions)
}

func (cb *CommandBuffer) CopyImage(dst, src *Image, regions []vk.ImageCopy, srcLayout, dstLayout vk.ImageLayout) {
	vk.CmdCopyImage(cb.handle, src.Handle(), srcLayout, dst.Handle(), dstLayout, uint32(len(regions)), regions)
}

func (cb *CommandBuffer) CopyBufferToImage(dst *Image, src *Buffer, layout vk.ImageLayout, regions []vk.BufferImageCopy) {
	vk.CmdCopyBufferToImage(cb.handle, src.Handle(), dst.Handle(), layout, uint32(len(regions)), regions)
}

func (cb *CommandBuffer) CopyImageToBuffer(dst *Buffer, src *Image, layout vk.ImageLayout, regions []vk.BufferImageCopy) {
	vk.CmdCopyImageToBuffer(cb.handle, src.Handle(), layout, dst.Handle(), uint32(len(regions)), regions)
}

// UpdateBuffer records a small inline write. The destination must carry
// TRANSFER_DST usage; data must stay under the native 64 KiB limit.
func (cb *CommandBuffer) UpdateBuffer(dst *Buffer, offset vk.DeviceSize, data []byte) {
	assertf(dst.info.Usage&vk.BufferUsageFlags(vk.BufferUsageTransferDstBit) != 0,
		"vkcore: update_buffer on a buffer created without TRANSFER_DST usage")
	assertf(len(data) <= 65536 && len(data)%4 == 0,
		"vkcore: update_buffer data must be 4-byte-aligned and at most 64 KiB")
	vk.CmdUpdateBuffer(cb.handle, dst.Handle(), offset, vk.DeviceSize(len(data)), (*uint32)(unsafe.Pointer(&data[0])))
}

func (cb *CommandBuffer) BlitImage(dst, src *Image, regions []vk.ImageBlit, srcLayout, dstLayout vk.ImageLayout, filter vk.Filter) {
	vk.CmdBlitImage(cb.handle, src.Handle(), srcLayout, dst.Handle(), dstLayout, uint32(len(regions)), regions, filter)
}

func (cb *CommandBuffer) FillBuffer(dst *Buffer, offset, size vk.DeviceSize, data uint32) {
	vk.CmdFillBuffer(cb.handle, dst.Handle(), offset, size, data)
}

func (cb *CommandBuffer) ClearColorImage(img *Image, layout vk.ImageLayout, color *vk.ClearColorValue, ranges []vk.ImageSubresourceRange) {
	vk.CmdClearColorImage(cb.handle, img.Handle(), layout, color, uint32(len(ranges)), ranges)
}

func (cb *CommandBuffer) ClearDepthStencilImage(img *Image, layout vk.ImageLayout, value *vk.ClearDepthStencilValue, ranges []vk.ImageSubresourceRange) {
	vk.CmdClearDepthStencilImage(cb.handle, img.Handle(), layout, value, uint32(len(ranges)), ranges)
}

// BarrierPrepareGenerateMipmap transitions the base level from
// baseLayout to TRANSFER_SRC and every remaining level to TRANSFER_DST,
// the required state before GenerateMipmap runs its blit chain.
func (cb *CommandBuffer) BarrierPrepareGenerateMipmap(img *Image, baseLayout vk.ImageLayout, srcStage vk.PipelineStageFlags, srcAccess vk.AccessFlags) {
	aspect := imageAspect(img.info.Format)
	barriers := []vk.ImageMemoryBarrier{
		{
			SType: vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask: srcAccess,
			DstAccessMask: vk.AccessFlags(vk.AccessTransferReadBit),
			OldLayout: baseLayout,
			NewLayout: vk.ImageLayoutTransferSrcOptimal,
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Image: img.handle,
			SubresourceRange: vk.ImageSubresourceRange{AspectMask: aspect, BaseMipLevel: 0, LevelCount: 1, LayerCount: img.info.Layers},
		},
		{
			SType: vk.StructureTypeImageMemoryBarrier,
			DstAccessMask: vk.AccessFlags(vk.AccessTransferWriteBit),
			OldLayout: vk.ImageLayoutUndefined,
			NewLayout: vk.ImageLayoutTransferDstOptimal,
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Image: img.handle,
			SubresourceRange: vk.ImageSubresourceRange{AspectMask: aspect, BaseMipLevel: 1, LevelCount: img.info.Levels - 1, LayerCount: img.info.Layers},
		},
	}
	if img.info.Levels <= 1 {
		barriers = barriers[:1]
	}
	vk.CmdPipelineBarrier(cb.handle, srcStage, vk.PipelineStageFlags(vk.PipelineStageTransferBit),
		0, 0, nil, 0, nil, uint32(len(barriers)), barriers)
}

// GenerateMipmap runs the blit chain down the image's mip pyramid. The
// caller must have issued BarrierPrepareGenerateMipmap (or equivalent
// barriers) first: level 0 in TRANSFER_SRC, the rest in TRANSFER_DST.
// Each produced level is flipped to TRANSFER_SRC before feeding the
// next blit; all levels end in TRANSFER_SRC.
func (cb *CommandBuffer) GenerateMipmap(img *Image) {
	ext := img.info.Extent
	aspect := imageAspect(img.info.Format)
	w, h := int32(ext.Width), int32(ext.Height)
	for level := uint32(1); level < img.info.Levels; level++ {
		srcW, srcH := w, h
		if srcW > 1 {
			w /= 2
		}
		if srcH > 1 {
			h /= 2
		}
		blit := vk.ImageBlit{
			SrcSubresource: vk.ImageSubresourceLayers{AspectMask: aspect, MipLevel: level - 1, LayerCount: img.info.Layers},
			DstSubresource: vk.ImageSubresourceLayers{AspectMask: aspect, MipLevel: level, LayerCount: img.info.Layers},
		}
		blit.SrcOffsets[1] = vk.Offset3D{X: srcW, Y: srcH, Z: 1}
		blit.DstOffsets[1] = vk.Offset3D{X: w, Y: h, Z: 1}
		cb.BlitImage(img, img, []vk.ImageBlit{blit}, vk.ImageLayoutTransferSrcOptimal, vk.ImageLayoutTransferDstOptimal, vk.FilterLinear)

		cb.ImageBarrier(img, vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutTransferSrcOptimal,
			vk.PipelineStageFlags(vk.PipelineStageTransferBit), vk.PipelineStageFlags(vk.PipelineStageTransferBit),
			vk.AccessFlags(vk.AccessTransferWriteBit), vk.AccessFlags(vk.AccessTransferReadBit), level, 1)
	}
}

// --- Barrier ops ---

func (cb *CommandBuffer) FullBarrier() {
	cb.Barrier(vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit), vk.AccessFlags(vk.AccessMemoryWriteBit),
		vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit),
		vk.AccessFlags(vk.AccessMemoryReadBit)|vk.AccessFlags(vk.AccessMemoryWriteBit))
}

// PixelBarrier orders color-attachment writes against fragment-shader
// reads, the barrier a feedback read of the current render target needs.
func (cb *CommandBuffer) PixelBarrier() {
	vk.CmdPipelineBarrier(cb.handle,
		vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit), vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit),
		vk.DependencyFlags(vk.DependencyByRegionBit), 1, []vk.MemoryBarrier{{SType: vk.StructureTypeMemoryBarrier,
			SrcAccessMask: vk.AccessFlags(vk.AccessColorAttachmentWriteBit), DstAccessMask: vk.AccessFlags(vk.AccessInputAttachmentReadBit)}},
		0, nil, 0, nil)
}

// Barrier records a global memory barrier between the given stage and
// access scopes.
func (cb *CommandBuffer) Barrier(srcStage vk.PipelineStageFlags, srcAccess vk.AccessFlags, dstStage vk.PipelineStageFlags, dstAccess vk.AccessFlags) {
	assertf(!cb.inRenderPass, "vkcore: barrier issued inside a render pass")
	vk.CmdPipelineBarrier(cb.handle, srcStage, dstStage,
		0, 1, []vk.MemoryBarrier{{SType: vk.StructureTypeMemoryBarrier,
			SrcAccessMask: srcAccess, DstAccessMask: dstAccess}},
		0, nil, 0, nil)
}

func (cb *CommandBuffer) BufferBarrier(buf *Buffer, srcStage, dstStage vk.PipelineStageFlags, srcAccess, dstAccess vk.AccessFlags) {
	assertf(!cb.inRenderPass, "vkcore: barrier issued inside a render pass")
	barrier := vk.BufferMemoryBarrier{
		SType: vk.StructureTypeBufferMemoryBarrier,
		SrcAccessMask: srcAccess,
		DstAccessMask: dstAccess,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Buffer: buf.Handle(),
		Size: vk.DeviceSize(vk.WholeSize),
	}
	vk.CmdPipelineBarrier(cb.handle, srcStage, dstStage, 0, 0, nil, 1, []vk.BufferMemoryBarrier{barrier}, 0, nil)
}

func (cb *CommandBuffer) ImageBarrier(img *Image, oldLayout, newLayout vk.ImageLayout, srcStage, dstStage vk.PipelineStageFlags, srcAccess, dstAccess vk.AccessFlags, baseLevel, levelCount uint32) {
	assertf(!cb.inRenderPass || img.transient, "vkcore: barrier issued inside a render pass for a non-transient image")
	barrier := vk.ImageMemoryBarrier{
		SType: vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask: srcAccess,
		DstAccessMask: dstAccess,
		OldLayout: oldLayout,
		NewLayout: newLayout,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image: img.handle,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: imageAspect(img.info.Format), BaseMipLevel: baseLevel, LevelCount: levelCount,
			BaseArrayLayer: 0, LayerCount: img.info.Layers,
		},
	}
	vk.CmdPipelineBarrier(cb.handle, srcStage, dstStage, 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
}

func (cb *CommandBuffer) QueueFamilyReleaseBarrier(img *Image, oldLayout, newLayout vk.ImageLayout, srcFamily, dstFamily uint32, srcStage vk.PipelineStageFlags, srcAccess vk.AccessFlags) {
	barrier := vk.ImageMemoryBarrier{
		SType: vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask: srcAccess,
		OldLayout: oldLayout,
		NewLayout: newLayout,
		SrcQueueFamilyIndex: srcFamily,
		DstQueueFamilyIndex: dstFamily,
		Image: img.handle,
		SubresourceRange: vk.ImageSubresourceRange{AspectMask: imageAspect(img.info.Format), LevelCount: img.info.Levels, LayerCount: img.info.Layers},
	}
	vk.CmdPipelineBarrier(cb.handle, srcStage, vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit), 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
}

func (cb *CommandBuffer) QueueFamilyAcquireBarrier(img *Image, oldLayout, newLayout vk.ImageLayout, srcFamily, dstFamily uint32, dstStage vk.PipelineStageFlags, dstAccess vk.AccessFlags) {
	barrier := vk.ImageMemoryBarrier{
		SType: vk.StructureTypeImageMemoryBarrier,
		DstAccessMask: dstAccess,
		OldLayout: oldLayout,
		NewLayout: newLayout,
		SrcQueueFamilyIndex: srcFamily,
		DstQueueFamilyIndex: dstFamily,
		Image: img.handle,
		SubresourceRange: vk.ImageSubresourceRange{AspectMask: imageAspect(img.info.Format), LevelCount: img.info.Levels, LayerCount: img.info.Layers},
	}
	vk.CmdPipelineBarrier(cb.handle, vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit), dstStage, 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
}

func (cb *CommandBuffer) WaitEvents(events []vk.Event, srcStage, dstStage vk.PipelineStageFlags) {
	vk.CmdWaitEvents(cb.handle, uint32(len(events)), events, srcStage, dstStage, 0, nil, 0, nil, 0, nil)
}

func (cb *CommandBuffer) SignalEvent(e vk.Event, stage vk.PipelineStageFlags) {
	vk.CmdSetEvent(cb.handle, e, stage)
}

// --- Render pass lifecycle ---

// renderPassBeginArgs bundles what beginRenderPassResolved needs beyond
// the already-resolved RenderPass/Framebuffer: clear values and the
// extent used to initialize viewport/scissor clipped to the framebuffer.
type renderPassBeginArgs struct {
	renderPass *RenderPass
	framebuffer vk.Framebuffer
	width, height uint32
	clearValues []vk.ClearValue
	contents vk.SubpassContents
	usesSwapchain bool
}

// BeginRenderPass resolves info against the device's render-pass and
// framebuffer caches, assembles clear values, and starts recording the
// pass with viewport/scissor defaulted to the framebuffer extent.
func (cb *CommandBuffer) BeginRenderPass(info *RenderPassInfo, contents vk.SubpassContents) error {
	rp, err := cb.device_.requestRenderPass(info)
	if err != nil {
		return err
	}
	fb, width, height, err := cb.device_.requestFramebuffer(rp, info)
	if err != nil {
		return err
	}
	cb.beginRenderPassResolved(renderPassBeginArgs{
		renderPass: rp,
		framebuffer: fb,
		width: width,
		height: height,
		clearValues: assembleClearValues(info),
		contents: contents,
		usesSwapchain: info.usesSwapchain(),
	})
	return nil
}

func (cb *CommandBuffer) beginRenderPassResolved(args renderPassBeginArgs) {
	assertf(!cb.inRenderPass, "vkcore: render pass begun twice")
	cb.renderPass = args.renderPass
	cb.framebuffer = args.framebuffer
	cb.subpass = 0
	cb.inRenderPass = true
	cb.currentContents = args.contents
	if args.usesSwapchain {
		cb.usesSwapchain = true
	}

	vk.CmdBeginRenderPass(cb.handle, &vk.RenderPassBeginInfo{
		SType: vk.StructureTypeRenderPassBeginInfo,
		RenderPass: args.renderPass.handle,
		Framebuffer: args.framebuffer,
		RenderArea: vk.Rect2D{Extent: vk.Extent2D{Width: args.width, Height: args.height}},
		ClearValueCount: uint32(len(args.clearValues)),
		PClearValues: args.clearValues,
	}, args.contents)

	vpY, vpHeight := negateViewportHeight(float32(args.width), float32(args.height), 0, 0)
	cb.viewport = vk.Viewport{Y: vpY, Width: float32(args.width), Height: vpHeight, MinDepth: 0, MaxDepth: 1}
	cb.scissor = vk.Rect2D{Extent: vk.Extent2D{Width: args.width, Height: args.height}}
	cb.dirty = dirtyAll
}

func (cb *CommandBuffer) NextSubpass(contents vk.SubpassContents) {
	assertf(cb.inRenderPass, "vkcore: next_subpass called outside a render pass")
	assertf(cb.currentContents != vk.SubpassContentsSecondaryCommandBuffers,
		"vkcore: next_subpass invalid while primary buffer holds secondary-command-buffer contents")
	vk.CmdNextSubpass(cb.handle, contents)
	cb.subpass++
	cb.currentContents = contents
	cb.dirty = dirtyAll
}

func (cb *CommandBuffer) EndRenderPass() {
	assertf(cb.inRenderPass, "vkcore: end_render_pass called outside a render pass")
	vk.CmdEndRenderPass(cb.handle)
	cb.inRenderPass = false
	cb.renderPass = nil
	cb.framebuffer = vk.NullFramebuffer
}

// --- Save / restore ---

func (cb *CommandBuffer) SaveState() CommandBufferSavedState {
	return CommandBufferSavedState{
		viewport: cb.viewport,
		scissor: cb.scissor,
		state: cb.state,
		pushConstants: cb.pushConstants,
		pushSize: cb.pushSize,
	}
}

// RestoreState sets dirty bits only where the restored value differs
// from the current one, so save/mutate/restore round-trips back to the
// same dirty-mask pattern as before the save.
func (cb *CommandBuffer) RestoreState(s CommandBufferSavedState) {
	if cb.viewport != s.viewport {
		cb.viewport = s.viewport
		cb.markDirty(dirtyViewport)
	}
	if cb.scissor != s.scissor {
		cb.scissor = s.scissor
		cb.markDirty(dirtyScissor)
	}
	if cb.state != s.state {
		cb.state = s.state
		cb.markDirty(dirtyStaticState)
	}
	if cb.pushConstants != s.pushConstants || cb.pushSize != s.pushSize {
		cb.pushConstants = s.pushConstants
		cb.pushSize = s.pushSize
		cb.markDirty(dirtyPushConstants)
	}
}

// --- Transient allocation ---

// allocateTransient carves from the held block of the given kind,
// requesting a fresh one from the Device's pool on overflow. Uniform
// allocations pad to the pool's spill size so dynamic offsets stay aligned.
func (cb *CommandBuffer) allocateTransient(kind bufferKind, size vk.DeviceSize) (buf *Buffer, offset vk.DeviceSize, ptr unsafe.Pointer, err error) {
	block := cb.held[kind]
	if block == nil || block.exhausted() {
		if block != nil {
			cb.device_.recycleOrScheduleBlock(kind, block)
		}
		block, err = cb.device_.requestBufferBlock(kind)
		if err != nil {
			return nil, 0, nil, err
		}
		cb.held[kind] = block
	}
	off, p, ok := block.allocate(size)
	if !ok {
		cb.device_.recycleOrScheduleBlock(kind, block)
		block, err = cb.device_.requestBufferBlock(kind)
		if err != nil {
			return nil, 0, nil, err
		}
		cb.held[kind] = block
		off, p, ok = block.allocate(size)
		assertf(ok, "vkcore: transient allocation of %d bytes exceeds pool block size", size)
	}
	return cb.device_.bufferForBlock(block), off, p, nil
}

// AllocateVertexData carves `size` bytes from the held VBO block and
// binds it at `binding`.
func (cb *CommandBuffer) AllocateVertexData(binding uint32, size vk.DeviceSize) (unsafe.Pointer, error) {
	buf, offset, ptr, err := cb.allocateTransient(bufferKindVBO, size)
	if err != nil {
		return nil, err
	}
	cb.vboBuffers[binding] = buf
	cb.vboOffsets[binding] = offset
	cb.dirtyVBOs |= 1 << binding
	return ptr, nil
}

// AllocateIndexData carves `size` bytes from the held IBO block and
// binds the result as the current index buffer.
func (cb *CommandBuffer) AllocateIndexData(size vk.DeviceSize, indexType vk.IndexType) (unsafe.Pointer, error) {
	buf, offset, ptr, err := cb.allocateTransient(bufferKindIBO, size)
	if err != nil {
		return nil, err
	}
	cb.SetIndexBuffer(buf, offset, indexType)
	return ptr, nil
}

func (cb *CommandBuffer) AllocateUniformData(set, binding uint32, size vk.DeviceSize) (unsafe.Pointer, error) {
	buf, offset, ptr, err := cb.allocateTransient(bufferKindUBO, size)
	if err != nil {
		return nil, err
	}
	cb.SetUniformBuffer(set, binding, buf, uint32(offset))
	return ptr, nil
}

func (cb *CommandBuffer) AllocateStagingData(size vk.DeviceSize) (vk.Buffer, vk.DeviceSize, unsafe.Pointer, error) {
	buf, offset, ptr, err := cb.allocateTransient(bufferKindStaging, size)
	if err != nil {
		return vk.NullBuffer, 0, nil, err
	}
	return buf.Handle(), offset, ptr, nil
}

// flushVBOBindings binds every dirty vertex buffer binding, issuing one
// vkCmdBindVertexBuffers call per binding, then clears the dirty mask.
func (cb *CommandBuffer) flushVBOBindings() {
	if cb.dirtyVBOs == 0 {
		return
	}
	for b := uint32(0); b < 16; b++ {
		if cb.dirtyVBOs&(1<<b) == 0 {
			continue
		}
		buf := cb.vboBuffers[b]
		if buf == nil {
			continue
		}
		vk.CmdBindVertexBuffers(cb.handle, b, 1, []vk.Buffer{buf.Handle()}, []vk.DeviceSize{cb.vboOffsets[b]})
	}
	cb.dirtyVBOs = 0
}

// --- Secondary command buffers ---

// RequestSecondary returns a secondary recorder bound to the current
// framebuffer/render-pass/subpass with inherited viewport/scissor. The
// primary's current subpass contents must be SecondaryCommandBuffers at
// submit time; ExecuteSecondaries's assert enforces this.
func (cb *CommandBuffer) RequestSecondary(threadIndex int, subpass uint32) (*CommandBuffer, error) {
	assertf(cb.inRenderPass, "vkcore: request_secondary called outside a render pass")
	sec, err := cb.device_.allocateCommandBuffer(cb.queue, threadIndex, true)
	if err != nil {
		return nil, err
	}
	inherit := vk.CommandBufferInheritanceInfo{
		SType: vk.StructureTypeCommandBufferInheritanceInfo,
		RenderPass: cb.renderPass.handle,
		Subpass: subpass,
		Framebuffer: cb.framebuffer,
	}
	ret := vk.BeginCommandBuffer(sec.handle, &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageRenderPassContinueBit),
		PInheritanceInfo: []vk.CommandBufferInheritanceInfo{inherit},
	})
	if isError(ret) {
		return nil, newError(ret)
	}
	sec.renderPass = cb.renderPass
	sec.framebuffer = cb.framebuffer
	sec.subpass = subpass
	sec.inRenderPass = true
	sec.viewport = cb.viewport
	sec.scissor = cb.scissor
	sec.dirty = dirtyAll
	return sec, nil
}

// ExecuteSecondaries ends each secondary recorder and stitches it into
// this primary. The current subpass contents must have been entered as
// SECONDARY_COMMAND_BUFFERS.
func (cb *CommandBuffer) ExecuteSecondaries(secondaries ...*CommandBuffer) error {
	assertf(cb.currentContents == vk.SubpassContentsSecondaryCommandBuffers,
		"vkcore: execute-secondaries requires secondary-command-buffer subpass contents")
	handles := make([]vk.CommandBuffer, 0, len(secondaries))
	for _, sec := range secondaries {
		assertf(sec.secondary, "vkcore: primary command buffer passed to ExecuteSecondaries")
		for kind, block := range sec.held {
			if block != nil {
				cb.device_.recycleOrScheduleBlock(bufferKind(kind), block)
				sec.held[kind] = nil
			}
		}
		if ret := vk.EndCommandBuffer(sec.handle); isError(ret) {
			return newError(ret)
		}
		handles = append(handles, sec.handle)
	}
	if len(handles) == 0 {
		return nil
	}
	vk.CmdExecuteCommands(cb.handle, uint32(len(handles)), handles)
	cb.device_.mu.Lock()
	for _, sec := range secondaries {
		cb.device_.cbPool.recycle(sec)
	}
	cb.device_.mu.Unlock()
	return nil
}
