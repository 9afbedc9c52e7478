package vkcore

import vk "github.com/vulkan-go/vulkan"

// ImageMisc mirrors BufferMisc for the image-specific toggles: mip
// generation and zero-initialization. The view-format reinterpretation
// mode is the separate ViewFormats field.
type ImageMisc uint32

const (
	ImageMiscGenerateMips ImageMisc = 1 << iota
	ImageMiscZeroInitialize
)

// ViewFormats selects how Image exposes format reinterpretation:
// Compatible sets the mutable-format flag broadly; Custom attaches an
// explicit format-list for the allowed reinterpretations only.
type ViewFormats int

const (
	ViewFormatsNone ViewFormats = iota
	ViewFormatsCompatible
	ViewFormatsCustom
)

// ImageLayoutFamily is the two-state layout regime an image lives in:
// Optimal (driver-preferred layouts per access) or General (one
// layout for all).
type ImageLayoutFamily int

const (
	ImageLayoutOptimal ImageLayoutFamily = iota
	ImageLayoutGeneral
)

// ImageCreateInfo is the hashable, caller-facing description of an
// Image. Levels == 0 requests the full mip chain.
type ImageCreateInfo struct {
	Domain Domain
	Format vk.Format
	Extent vk.Extent3D
	Levels uint32
	Layers uint32
	Samples vk.SampleCountFlagBits
	Type vk.ImageType
	Usage vk.ImageUsageFlags

	SharingOwners []QueueType
	Misc ImageMisc
	LayoutFamily ImageLayoutFamily
	ViewFormats ViewFormats
	CustomViewFormats []vk.Format

	// Initial is row-major host data for the base level, staged through
	// a transfer-queue copy at creation time. Nil means no upload.
	Initial []byte
}

func (info ImageCreateInfo) sharingMode() vk.SharingMode {
	if len(info.SharingOwners) > 1 {
		return vk.SharingModeConcurrent
	}
	return vk.SharingModeExclusive
}

// tiling reports LINEAR+PREINITIALIZED for host-visible domains and
// OPTIMAL+UNDEFINED otherwise.
func (info ImageCreateInfo) tiling() (vk.ImageTiling, vk.ImageLayout) {
	if info.Domain == DomainHost || info.Domain == DomainHostCached {
		return vk.ImageTilingLinear, vk.ImageLayoutPreinitialized
	}
	return vk.ImageTilingOptimal, vk.ImageLayoutUndefined
}

func (info ImageCreateInfo) generatesMips() bool {
	return info.Misc&ImageMiscGenerateMips != 0
}

// fullMipLevels is the chain length down to 1x1 for the info's extent,
// the value a zero Levels field resolves to.
func (info ImageCreateInfo) fullMipLevels() uint32 {
	size := info.Extent.Width
	if info.Extent.Height > size {
		size = info.Extent.Height
	}
	if info.Extent.Depth > size {
		size = info.Extent.Depth
	}
	levels := uint32(1)
	for size > 1 {
		size >>= 1
		levels++
	}
	return levels
}

// Image is a ref-counted wrapper over a raw vk.Image plus its backing
// allocation. swapchainLayout is non-UNDEFINED iff this image is
// swapchain-owned and therefore does not own its own memory (see
// destroyedImage.owns in frame.go).
type Image struct {
	refCount

	cookie Cookie
	device vk.Device
	info ImageCreateInfo

	handle vk.Image
	alloc allocation

	swapchainLayout vk.ImageLayout

	// possibleStages/possibleAccess are the pipeline-stage and access
	// masks this image's usage flags imply, consumed by the cross-queue
	// barrier choreography when computing dstStageMask/dstAccessMask on
	// acquires.
	possibleStages vk.PipelineStageFlags
	possibleAccess vk.AccessFlags

	// transient marks an image created with TRANSIENT_ATTACHMENT usage.
	// A transient image is never touched by a pipeline barrier outside
	// of render-pass scope.
	transient bool
}

func (img *Image) Cookie() Cookie { return img.cookie }
func (img *Image) Handle() vk.Image { return img.handle }
func (img *Image) Info() ImageCreateInfo { return img.info }
func (img *Image) Transient() bool { return img.transient }
func (img *Image) IsSwapchainOwned() bool { return img.swapchainLayout != vk.ImageLayoutUndefined }

// possibleStagesFromUsage derives the stage/access mask pair an
// image's usage flag set implies, for acquire barriers and
// upload-visibility semaphore waits.
func possibleStagesFromUsage(usage vk.ImageUsageFlags) (vk.PipelineStageFlags, vk.AccessFlags) {
	var stages vk.PipelineStageFlags
	var access vk.AccessFlags
	u := vk.ImageUsageFlagBits(usage)
	if u&vk.ImageUsageSampledBit != 0 {
		stages |= vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit) | vk.PipelineStageFlags(vk.PipelineStageVertexShaderBit)
		access |= vk.AccessFlags(vk.AccessShaderReadBit)
	}
	if u&vk.ImageUsageStorageBit != 0 {
		stages |= vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit)
		access |= vk.AccessFlags(vk.AccessShaderReadBit) | vk.AccessFlags(vk.AccessShaderWriteBit)
	}
	if u&vk.ImageUsageColorAttachmentBit != 0 {
		stages |= vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)
		access |= vk.AccessFlags(vk.AccessColorAttachmentReadBit) | vk.AccessFlags(vk.AccessColorAttachmentWriteBit)
	}
	if u&vk.ImageUsageDepthStencilAttachmentBit != 0 {
		stages |= vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit) | vk.PipelineStageFlags(vk.PipelineStageLateFragmentTestsBit)
		access |= vk.AccessFlags(vk.AccessDepthStencilAttachmentReadBit) | vk.AccessFlags(vk.AccessDepthStencilAttachmentWriteBit)
	}
	if u&vk.ImageUsageTransferSrcBit != 0 {
		stages |= vk.PipelineStageFlags(vk.PipelineStageTransferBit)
		access |= vk.AccessFlags(vk.AccessTransferReadBit)
	}
	if u&vk.ImageUsageTransferDstBit != 0 {
		stages |= vk.PipelineStageFlags(vk.PipelineStageTransferBit)
		access |= vk.AccessFlags(vk.AccessTransferWriteBit)
	}
	return stages, access
}

// formatTexelSize returns the byte size of one texel for the formats the
// zero-initialize staging path supports; unknown formats fall back to 4.
func formatTexelSize(format vk.Format) vk.DeviceSize {
	switch format {
	case vk.FormatR8Unorm, vk.FormatR8Uint, vk.FormatR8Sint, vk.FormatS8Uint:
		return 1
	case vk.FormatR8g8Unorm, vk.FormatR16Sfloat, vk.FormatR16Uint, vk.FormatD16Unorm:
		return 2
	case vk.FormatR16g16b16a16Sfloat, vk.FormatR32g32Sfloat, vk.FormatD32SfloatS8Uint:
		return 8
	case vk.FormatR32g32b32Sfloat:
		return 12
	case vk.FormatR32g32b32a32Sfloat:
		return 16
	default:
		return 4
	}
}

// imageAspect returns the aspect mask implied by a format, distinguishing
// combined depth-stencil formats from pure color/depth ones -- needed by
// both ImageView variant synthesis (Device.CreateImageView) and render pass attachment
// description (renderpass.go).
func imageAspect(format vk.Format) vk.ImageAspectFlags {
	switch format {
	case vk.FormatD16Unorm, vk.FormatD32Sfloat, vk.FormatX8D24UnormPack32:
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	case vk.FormatD16UnormS8Uint, vk.FormatD24UnormS8Uint, vk.FormatD32SfloatS8Uint:
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit) | vk.ImageAspectFlags(vk.ImageAspectStencilBit)
	case vk.FormatS8Uint:
		return vk.ImageAspectFlags(vk.ImageAspectStencilBit)
	default:
		return vk.ImageAspectFlags(vk.ImageAspectColorBit)
	}
}

func isDepthStencilFormat(format vk.Format) bool {
	aspect := imageAspect(format)
	return aspect&vk.ImageAspectFlags(vk.ImageAspectDepthBit) != 0 || aspect&vk.ImageAspectFlags(vk.ImageAspectStencilBit) != 0
}

func hasCombinedDepthStencil(format vk.Format) bool {
	aspect := imageAspect(format)
	return aspect&vk.ImageAspectFlags(vk.ImageAspectDepthBit) != 0 && aspect&vk.ImageAspectFlags(vk.ImageAspectStencilBit) != 0
}

// ImageViewCreateInfo describes one logical view over an Image.
type ImageViewCreateInfo struct {
	Format vk.Format
	BaseLevel uint32
	Levels uint32
	BaseLayer uint32
	Layers uint32
	ViewType vk.ImageViewType
	// RenderTarget requests the additional per-layer render-target
	// view array.
	RenderTarget bool
}

// ImageView holds up to five distinct native view objects over the
// same Image: default (all aspects), depth-only, stencil-only,
// unorm-reinterpret, srgb-reinterpret, plus a per-layer render-target
// view array. The variant chosen at sampler-bind time depends on the
// integer-vs-float nature of the shader sampler.
type ImageView struct {
	refCount

	cookie Cookie
	device vk.Device
	image Handle[*Image]
	info ImageViewCreateInfo

	defaultView vk.ImageView
	depthView vk.ImageView
	stencilView vk.ImageView
	unormView vk.ImageView
	srgbView vk.ImageView
	renderTargets []vk.ImageView // one per layer, only if info.RenderTarget
}

func (v *ImageView) Cookie() Cookie { return v.cookie }
func (v *ImageView) Image() *Image { return v.image.Get() }
func (v *ImageView) DefaultView() vk.ImageView { return v.defaultView }

// Float returns the view variant appropriate for a float-typed shader
// sampler binding; Integer does the same for an integer-typed one.
// The aux views exist so the command buffer recorder's descriptor flush
// can pick the right one without creating a fresh view per draw.
func (v *ImageView) Float() vk.ImageView { return v.defaultView }
func (v *ImageView) Integer() vk.ImageView {
	if v.unormView != vk.NullImageView {
		return v.unormView
	}
	return v.defaultView
}
func (v *ImageView) DepthOnly() vk.ImageView {
	if v.depthView != vk.NullImageView {
		return v.depthView
	}
	return v.defaultView
}
func (v *ImageView) StencilOnly() vk.ImageView {
	if v.stencilView != vk.NullImageView {
		return v.stencilView
	}
	return v.defaultView
}
func (v *ImageView) RenderTargetLayer(layer uint32) vk.ImageView {
	if int(layer) < len(v.renderTargets) {
		return v.renderTargets[layer]
	}
	return v.defaultView
}

// SamplerCreateInfo is the hashable create-info for a Sampler: a thin
// wrapper that builds the native create-info from this hashable one.
type SamplerCreateInfo struct {
	MagFilter vk.Filter
	MinFilter vk.Filter
	MipmapMode vk.SamplerMipmapMode
	AddressModeU vk.SamplerAddressMode
	AddressModeV vk.SamplerAddressMode
	AddressModeW vk.SamplerAddressMode
	MipLodBias float32
	AnisotropyEnable bool
	MaxAnisotropy float32
	CompareEnable bool
	CompareOp vk.CompareOp
	MinLod float32
	MaxLod float32
	BorderColor vk.BorderColor
}

type Sampler struct {
	refCount

	cookie Cookie
	device vk.Device
	info SamplerCreateInfo
	handle vk.Sampler
}

func (s *Sampler) Cookie() Cookie { return s.cookie }
func (s *Sampler) Handle() vk.Sampler { return s.handle }
func (s *Sampler) Info() SamplerCreateInfo { return s.info }
