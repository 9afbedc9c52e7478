package vkcore

import (
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
)

// Device is the top-level facade: it owns frame contexts, resource
// lifetimes, queue submission, descriptor/pipeline caches, and
// cross-queue synchronization. Instance, physical device and logical
// device creation, along with WSI surface/swapchain setup, stay outside
// this package; callers hand in already-created handles and ingest
// swapchain images through InitSwapchain/InitExternalSwapchain.
type Device struct {
	instance vk.Instance
	gpu vk.PhysicalDevice
	device vk.Device
	memProps vk.PhysicalDeviceMemoryProperties
	limits vk.PhysicalDeviceLimits

	families *queueFamilies
	allocator Allocator
	cookies CookieAllocator

	log *deviceLog

	options *DeviceOptions
	threadCount int
	timeline bool

	fences *fenceManager
	semaphores *semaphoreManager
	events *eventManager
	timelines [queueTypeCount]*timelineSemaphore

	pipelineCache vk.PipelineCache

	// mu is the coarse device lock: caches, destruction lists, submission
	// queues and buffer pools all sit behind it, per the single-lock
	// discipline the frame contexts and resource creators rely on.
	mu sync.Mutex
	frames []*frameContext
	frameIndex int
	// frameCounter is the outstanding-command-buffer count the frame-drain
	// wait spins on: incremented when a buffer is handed out, decremented
	// when it is submitted.
	frameCounter int32

	bufferPools [bufferKindCount]*bufferPool
	blockBuffers map[vk.Buffer]*Buffer
	// cbPool recycles CommandBuffer wrappers: the structs carry large
	// binding tables, so reuse beats reallocation every request.
	cbPool *pool[*CommandBuffer]

	// descMu guards the descriptor-set-allocator registry, a separate
	// lock from mu since draw-time descriptor flush must not contend
	// with resource creation elsewhere.
	descMu sync.Mutex
	descRegistry *descriptorAllocatorRegistry

	// progMu guards the program/shader deletion lists specifically.
	progMu sync.Mutex

	renderPassCache map[uint64]*RenderPass
	framebuffers *framebufferCache
	transientAttachments *transientAttachmentCache

	batches [queueTypeCount]*submissionBatch
	pendingWaits [queueTypeCount][]waitSemaphore

	swapchainImages []*Image
	swapchainViews []*ImageView
	swapchainFormat vk.Format
	swapchainExtent vk.Extent2D
	swapchainRenderPass *RenderPass
	swapchainIndex int

	// WSI handoff state: the acquire semaphore the host's swapchain
	// acquisition signaled, and the release semaphore the last
	// swapchain-touching submission signals for the present to wait on.
	wsiAcquire vk.Semaphore
	wsiAcquireConsumed bool
	wsiRelease vk.Semaphore

	queueLockFn, queueUnlockFn func()
}

// NewDevice builds the Device facade over an already-created instance,
// physical device and logical device. Queue family discovery,
// allocator setup, sync-primitive managers, buffer pools and the
// initial ring of frame contexts are all assembled here; nothing about
// instance/device creation happens in this package.
func NewDevice(instance vk.Instance, gpu vk.PhysicalDevice, device vk.Device, opts *DeviceOptions) (*Device, error) {
	if opts == nil {
		opts = DefaultDeviceOptions()
	}

	families := discoverQueueFamilies(gpu)
	families.resolve(device)

	var memProps vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(gpu, &memProps)
	memProps.Deref()

	var props vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(gpu, &props)
	props.Deref()
	props.Limits.Deref()

	logger, err := newDeviceLog(opts.LogWriters)
	if err != nil {
		return nil, err
	}

	if len(opts.InstanceExtensions) > 0 {
		if actual, err := instanceExtensions(); err == nil {
			if missing := newExtensionSet(opts.InstanceExtensions, actual).Missing(); len(missing) > 0 {
				logger.warn.Printf("requested instance extensions not reported by platform: %v", missing)
			}
		}
	}
	if actual, err := deviceExtensions(gpu); err == nil {
		if missing := newExtensionSet(opts.DeviceExtensions, actual).Missing(); len(missing) > 0 {
			logger.warn.Printf("requested device extensions not reported by gpu: %v", missing)
		}
	}
	if len(opts.ValidationLayers) > 0 {
		if actual, err := validationLayers(); err == nil {
			if missing := newExtensionSet(opts.ValidationLayers, actual).Missing(); len(missing) > 0 {
				logger.warn.Printf("requested validation layers not reported by instance: %v", missing)
			}
		}
	}

	d := &Device{
		instance: instance,
		gpu: gpu,
		device: device,
		memProps: memProps,
		limits: props.Limits,
		families: families,
		allocator: newDirectAllocator(memProps),
		log: logger,
		options: opts,
		threadCount: opts.threadCount(),
		timeline: opts.hasTimelineSemaphores(),

		fences: newFenceManager(device),
		semaphores: newSemaphoreManager(device),
		events: newEventManager(device),

		blockBuffers: make(map[vk.Buffer]*Buffer),
		cbPool: newPool(func() *CommandBuffer { return &CommandBuffer{} }),
		descRegistry: newDescriptorAllocatorRegistry(),
		renderPassCache: make(map[uint64]*RenderPass),
		framebuffers: newFramebufferCache(device),
		transientAttachments: newTransientAttachmentCache(),
	}

	freeAllocationBuffer = func(a allocation) { d.allocator.FreeBuffer(d.device, a) }
	freeAllocationImage = func(a allocation) { d.allocator.FreeImage(d.device, a) }

	for q := QueueGraphics; q < queueTypeCount; q++ {
		d.batches[q] = newSubmissionBatch()
		if d.timeline {
			ts, err := newTimelineSemaphore(device)
			if err != nil {
				return nil, err
			}
			d.timelines[q] = ts
		}
	}

	uboAlign := vk.DeviceSize(props.Limits.MinUniformBufferOffsetAlignment)
	if uboAlign == 0 {
		uboAlign = 256
	}
	d.bufferPools[bufferKindVBO] = newBufferPool(bufferKindVBO, 4<<20, 16, 0, DomainHost)
	d.bufferPools[bufferKindIBO] = newBufferPool(bufferKindIBO, 4<<20, 16, 0, DomainHost)
	d.bufferPools[bufferKindUBO] = newBufferPool(bufferKindUBO, 1<<20, uboAlign, uboAlign, DomainHost)
	d.bufferPools[bufferKindStaging] = newBufferPool(bufferKindStaging, 4<<20, 16, 0, DomainHost)

	if err := d.InitFrameContexts(opts.ringSize()); err != nil {
		return nil, err
	}

	logger.info.Printf("device initialized: ring=%d threads=%d timeline=%t descriptorIndexing=%t imagelessFramebuffer=%t",
		opts.ringSize(), opts.threadCount(), d.timeline, opts.hasDescriptorIndexing(), opts.hasImagelessFramebuffer())

	var cache vk.PipelineCache
	if ret := vk.CreatePipelineCache(device, &vk.PipelineCacheCreateInfo{SType: vk.StructureTypePipelineCacheCreateInfo}, nil, &cache); isError(ret) {
		return nil, newError(ret)
	}
	d.pipelineCache = cache

	return d, nil
}

// --- Frame pacing ---

func (d *Device) drainFrameCounter() {
	for atomic.LoadInt32(&d.frameCounter) != 0 {
		runtime.Gosched()
	}
}

// FlushFrame submits any accumulated but unsent batch on every queue,
// the `flush_frame` entry point.
func (d *Device) FlushFrame() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for q := QueueGraphics; q < queueTypeCount; q++ {
		if err := d.flushBatchLocked(q); err != nil {
			return err
		}
	}
	return nil
}

// EndFrameContext flushes pending submissions for the frame just
// recorded without advancing the ring index.
func (d *Device) EndFrameContext() error {
	return d.FlushFrame()
}

// WaitIdle drains in-flight work and blocks until the device is
// genuinely idle. One of the only three places allowed to block
// indefinitely.
func (d *Device) WaitIdle() error {
	d.drainFrameCounter()
	if err := d.FlushFrame(); err != nil {
		return err
	}
	if err := newError(vk.DeviceWaitIdle(d.device)); err != nil {
		return err
	}
	// Device-idle is the one point every handed-out event is known
	// unreferenced, so the whole pool can be reused.
	d.mu.Lock()
	d.events.reset()
	d.mu.Unlock()
	return nil
}

// RequestPipelineEvent hands out a pooled vk.Event for
// CommandBuffer.SignalEvent / WaitEvents use. Events recycle at
// WaitIdle rather than per frame.
func (d *Device) RequestPipelineEvent() (vk.Event, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.events.requestEvent()
}

// NextFrameContext implements the five-step frame-pacing procedure:
// drain outstanding command buffers, flush pending submissions, age
// the temporal caches, advance the ring index, then wait on the new
// slot's watermark and drain its destruction lists.
func (d *Device) NextFrameContext() error {
	d.drainFrameCounter()
	if err := d.FlushFrame(); err != nil {
		return err
	}

	d.mu.Lock()
	cur := d.frames[d.frameIndex]
	if expired := d.framebuffers.beginFrame(); len(expired) > 0 {
		cur.destroy.framebuffers = append(cur.destroy.framebuffers, expired...)
	}
	d.mu.Unlock()

	d.descMu.Lock()
	for _, alloc := range d.descRegistry.byKey {
		for t := 0; t < d.threadCount; t++ {
			alloc.beginFrame(t)
		}
	}
	d.descMu.Unlock()

	d.mu.Lock()
	d.frameIndex = (d.frameIndex + 1) % len(d.frames)
	next := d.frames[d.frameIndex]
	timeline := d.timeline
	err := next.begin(func() []waitTarget {
		if !timeline {
			return nil
		}
		targets := make([]waitTarget, 0, queueTypeCount)
		for q := QueueGraphics; q < queueTypeCount; q++ {
			targets = append(targets, waitTarget{timeline: d.timelines[q].semaphore, value: next.timelineWatermark[q]})
		}
		return targets
	})
	if err == nil {
		// The GPU is past everything this slot submitted on its previous
		// cycle, so its buffer blocks, fences, and consumed semaphores
		// can return to their pools.
		blockLists := [bufferKindCount][]*bufferBlock{next.vboRecycle, next.iboRecycle, next.uboRecycle, next.stagingRecycle}
		for kind, blocks := range blockLists {
			for _, b := range blocks {
				d.bufferPools[bufferKind(kind)].recycle(b)
			}
		}
		next.vboRecycle, next.iboRecycle, next.uboRecycle, next.stagingRecycle = nil, nil, nil, nil

		d.fences.recycle(next.recycleFences...)
		next.recycleFences = next.recycleFences[:0]
		for _, s := range next.recycleSemaphores {
			d.semaphores.recycle(s)
		}
		next.recycleSemaphores = next.recycleSemaphores[:0]
	}
	d.mu.Unlock()
	return err
}

// InitFrameContexts (re)builds the ring of frame contexts to size n,
// tearing down any previous ring first.
func (d *Device) InitFrameContexts(n int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n <= 0 {
		n = 2
	}
	for _, fc := range d.frames {
		fc.teardown()
	}
	d.frames = make([]*frameContext, n)
	for i := range d.frames {
		d.frames[i] = newFrameContext(d.device, d.threadCount, d.families)
	}
	d.frameIndex = 0
	return nil
}

// --- Swapchain ingestion ---

func (d *Device) initSwapchainImages(images []vk.Image, width, height uint32, format vk.Format) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.swapchainImages = nil
	d.swapchainViews = nil
	d.swapchainFormat = format
	d.swapchainExtent = vk.Extent2D{Width: width, Height: height}

	for _, raw := range images {
		img := &Image{
			cookie: d.cookies.NewCookie(),
			device: d.device,
			handle: raw,
			info: ImageCreateInfo{
				Format: format,
				Extent: vk.Extent3D{Width: width, Height: height, Depth: 1},
				Levels: 1, Layers: 1, Samples: vk.SampleCount1Bit, Type: vk.ImageType2d,
				Usage: vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
			},
			swapchainLayout: vk.ImageLayoutUndefined,
		}
		img.initRefCount(true, func() {})

		var viewHandle vk.ImageView
		ret := vk.CreateImageView(d.device, &vk.ImageViewCreateInfo{
			SType: vk.StructureTypeImageViewCreateInfo,
			Image: raw, ViewType: vk.ImageViewType2d, Format: format,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit), LevelCount: 1, LayerCount: 1,
			},
		}, nil, &viewHandle)
		if isError(ret) {
			return newError(ret)
		}
		view := &ImageView{cookie: d.cookies.NewCookie(), device: d.device, image: NewHandle(img), defaultView: viewHandle}
		view.initRefCount(true, func() {})

		d.swapchainImages = append(d.swapchainImages, img)
		d.swapchainViews = append(d.swapchainViews, view)
	}

	if len(d.swapchainViews) == 0 {
		return nil
	}
	rpInfo := &RenderPassInfo{
		Color: []AttachmentInfo{{View: d.swapchainViews[0], Swapchain: true}},
		ClearMask: 1,
		StoreMask: 1,
	}
	rp, err := buildRenderPass(d.device, rpInfo)
	if err != nil {
		return err
	}
	d.swapchainRenderPass = rp
	d.renderPassCache[rp.fullHash] = rp
	return nil
}

func (d *Device) InitSwapchain(images []vk.Image, width, height uint32, format vk.Format) error {
	return d.initSwapchainImages(images, width, height, format)
}

func (d *Device) InitExternalSwapchain(handles []vk.Image, width, height uint32, format vk.Format) error {
	return d.initSwapchainImages(handles, width, height, format)
}

func (d *Device) GetSwapchainView(index int) *ImageView {
	d.mu.Lock()
	defer d.mu.Unlock()
	if index < 0 || index >= len(d.swapchainViews) {
		return nil
	}
	return d.swapchainViews[index]
}

// GetCurrentSwapchainView returns the view for the swapchain image most
// recently handed in via SetAcquireSemaphore.
func (d *Device) GetCurrentSwapchainView() *ImageView {
	d.mu.Lock()
	index := d.swapchainIndex
	d.mu.Unlock()
	return d.GetSwapchainView(index)
}

// SwapchainRenderPassStyle selects which attachments a swapchain render
// pass carries alongside the backbuffer.
type SwapchainRenderPassStyle int

const (
	SwapchainRenderPassColorOnly SwapchainRenderPassStyle = iota
	SwapchainRenderPassDepth
	SwapchainRenderPassDepthStencil
)

// GetSwapchainRenderPassInfo assembles a RenderPassInfo targeting the
// current swapchain image, cleared to clearColor, with an optional
// transient depth or depth-stencil attachment per style.
func (d *Device) GetSwapchainRenderPassInfo(style SwapchainRenderPassStyle, clearColor [4]float32) (*RenderPassInfo, error) {
	view := d.GetCurrentSwapchainView()
	if view == nil {
		return nil, &VkError{Kind: ErrorKindUnsupportedFeature}
	}
	info := &RenderPassInfo{
		Color: []AttachmentInfo{{View: view, Swapchain: true}},
		ClearMask: 1,
		StoreMask: 1,
	}
	info.ClearColors[0] = clearColor

	if style != SwapchainRenderPassColorOnly {
		format := d.GetDefaultDepthFormat()
		if style == SwapchainRenderPassDepthStencil {
			format = d.GetDefaultDepthStencilFormat()
		}
		d.mu.Lock()
		extent := d.swapchainExtent
		d.mu.Unlock()
		depth, err := d.GetTransientAttachment(extent.Width, extent.Height, format, vk.SampleCount1Bit, 1)
		if err != nil {
			return nil, err
		}
		info.DepthStencil = &AttachmentInfo{View: depth, Transient: true}
		info.OpFlags |= AttachmentOpDepthStencilClear
		info.ClearDepth = 1
	}
	return info, nil
}

// GetSwapchainRenderPass resolves the render pass the given style's
// RenderPassInfo lowers to, through the device cache.
func (d *Device) GetSwapchainRenderPass(style SwapchainRenderPassStyle) *RenderPass {
	info, err := d.GetSwapchainRenderPassInfo(style, [4]float32{})
	if err != nil {
		d.mu.Lock()
		defer d.mu.Unlock()
		return d.swapchainRenderPass
	}
	rp, err := d.requestRenderPass(info)
	if err != nil {
		return nil
	}
	return rp
}

// SetAcquireSemaphore records which swapchain image the WSI collaborator
// acquired and the semaphore its acquisition signals; the next
// swapchain-touching submission waits on it at color-attachment output.
func (d *Device) SetAcquireSemaphore(index int, sem vk.Semaphore) {
	d.mu.Lock()
	d.swapchainIndex = index
	d.wsiAcquire = sem
	d.wsiAcquireConsumed = false
	d.mu.Unlock()
}

// ConsumeReleaseSemaphore hands the present-wait semaphore signaled by
// the last swapchain-touching submission to the caller, which owns it
// until the present completes. NullSemaphore when nothing signaled one.
func (d *Device) ConsumeReleaseSemaphore() vk.Semaphore {
	d.mu.Lock()
	s := d.wsiRelease
	d.wsiRelease = vk.NullSemaphore
	d.mu.Unlock()
	return s
}

// --- Format queries ---

func (d *Device) ImageFormatIsSupported(format vk.Format, tiling vk.ImageTiling, features vk.FormatFeatureFlags) bool {
	var fprops vk.FormatProperties
	vk.GetPhysicalDeviceFormatProperties(d.gpu, format, &fprops)
	fprops.Deref()
	if tiling == vk.ImageTilingLinear {
		return fprops.LinearTilingFeatures&features == features
	}
	return fprops.OptimalTilingFeatures&features == features
}

func (d *Device) GetDefaultDepthFormat() vk.Format {
	for _, f := range []vk.Format{vk.FormatD32Sfloat, vk.FormatX8D24UnormPack32, vk.FormatD16Unorm} {
		if d.ImageFormatIsSupported(f, vk.ImageTilingOptimal, vk.FormatFeatureFlags(vk.FormatFeatureDepthStencilAttachmentBit)) {
			return f
		}
	}
	return vk.FormatD16Unorm
}

func (d *Device) GetDefaultDepthStencilFormat() vk.Format {
	for _, f := range []vk.Format{vk.FormatD24UnormS8Uint, vk.FormatD32SfloatS8Uint, vk.FormatD16UnormS8Uint} {
		if d.ImageFormatIsSupported(f, vk.ImageTilingOptimal, vk.FormatFeatureFlags(vk.FormatFeatureDepthStencilAttachmentBit)) {
			return f
		}
	}
	return vk.FormatD24UnormS8Uint
}

// GetTransientAttachment returns a recycled render-target view for the
// given shape, creating the backing transient image on first use.
func (d *Device) GetTransientAttachment(width, height uint32, format vk.Format, samples vk.SampleCountFlagBits, layers uint32) (*ImageView, error) {
	if layers == 0 {
		layers = 1
	}
	key := transientAttachmentKey{width: width, height: height, layers: layers, format: format, samples: samples}
	d.mu.Lock()
	if view, ok := d.transientAttachments.get(key); ok {
		d.mu.Unlock()
		return view, nil
	}
	d.mu.Unlock()

	usage := vk.ImageUsageFlags(vk.ImageUsageTransientAttachmentBit) | vk.ImageUsageFlags(vk.ImageUsageInputAttachmentBit)
	if isDepthStencilFormat(format) {
		usage |= vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit)
	} else {
		usage |= vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit)
	}
	img, err := d.CreateImage(ImageCreateInfo{
		Domain: DomainDevice, Format: format,
		Extent: vk.Extent3D{Width: width, Height: height, Depth: 1},
		Levels: 1, Layers: layers, Samples: samples, Type: vk.ImageType2d, Usage: usage,
	})
	if err != nil {
		return nil, err
	}
	viewType := vk.ImageViewType2d
	if layers > 1 {
		viewType = vk.ImageViewType2dArray
	}
	view, err := d.CreateImageView(img, ImageViewCreateInfo{Format: format, ViewType: viewType})
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.transientAttachments.put(key, view)
	d.mu.Unlock()
	return view, nil
}

// --- Render pass & framebuffer resolution ---

// requestRenderPass resolves info against the device's render-pass
// cache by full hash, building and inserting the native pass on a miss.
func (d *Device) requestRenderPass(info *RenderPassInfo) (*RenderPass, error) {
	_, full := renderPassHashes(info)
	d.mu.Lock()
	defer d.mu.Unlock()
	if rp, ok := d.renderPassCache[full]; ok {
		return rp, nil
	}
	rp, err := buildRenderPass(d.device, info)
	if err != nil {
		return nil, err
	}
	d.renderPassCache[rp.fullHash] = rp
	return rp, nil
}

// requestFramebuffer resolves the framebuffer for (render pass,
// attachment views) against the temporal cache, returning it along with
// the render area both were sized to.
func (d *Device) requestFramebuffer(rp *RenderPass, info *RenderPassInfo) (vk.Framebuffer, uint32, uint32, error) {
	views := info.views()
	width, height := info.extent()
	key := framebufferKey(rp.compatibleHash, views)

	d.mu.Lock()
	if fb, ok := d.framebuffers.get(key); ok {
		d.mu.Unlock()
		return fb, width, height, nil
	}
	d.mu.Unlock()

	layers := info.NumLayers
	if layers == 0 {
		layers = 1
	}
	fb, err := buildFramebuffer(d.device, rp.handle, views, width, height, layers)
	if err != nil {
		return vk.NullFramebuffer, 0, 0, err
	}
	d.mu.Lock()
	d.framebuffers.put(key, fb)
	d.mu.Unlock()
	return fb, width, height, nil
}

// --- Pipeline cache blob ---

func (d *Device) InitPipelineCache(blob []byte) error {
	var props vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(d.gpu, &props)
	props.Deref()

	valid := len(blob) >= 16
	for i := 0; valid && i < 16; i++ {
		if blob[i] != props.PipelineCacheUUID[i] {
			valid = false
		}
	}
	if !valid && len(blob) > 0 && d.log != nil {
		d.log.warn.Printf("pipeline cache blob rejected: UUID prefix does not match this device")
	}

	createInfo := vk.PipelineCacheCreateInfo{SType: vk.StructureTypePipelineCacheCreateInfo}
	if valid && len(blob) > 16 {
		createInfo.InitialDataSize = uint(len(blob) - 16)
		createInfo.PInitialData = unsafe.Pointer(&blob[16])
	}

	var cache vk.PipelineCache
	if ret := vk.CreatePipelineCache(d.device, &createInfo, nil, &cache); isError(ret) {
		return newError(ret)
	}

	d.mu.Lock()
	old := d.pipelineCache
	d.pipelineCache = cache
	d.mu.Unlock()
	if old != vk.NullPipelineCache {
		vk.DestroyPipelineCache(d.device, old, nil)
	}
	return nil
}

func (d *Device) GetPipelineCacheData() []byte {
	d.mu.Lock()
	cache := d.pipelineCache
	d.mu.Unlock()

	var size uint
	vk.GetPipelineCacheData(d.device, cache, &size, nil)
	if size == 0 {
		return nil
	}
	var props vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(d.gpu, &props)
	props.Deref()
	data := make([]byte, 16+size)
	copy(data, props.PipelineCacheUUID[:])
	vk.GetPipelineCacheData(d.device, cache, &size, unsafe.Pointer(&data[16]))
	return data[:16+size]
}

// dumpCheckpoints is a conservative device-lost diagnostic hook.
// VK_NV_device_diagnostic_checkpoints' functions are not confirmed
// present in the vulkan-go binding this module is built against, so
// rather than guess at unverified symbol names this only logs the
// event; a host with a binding that carries CmdSetCheckpointNV /
// GetQueueCheckpointDataNV can extend this once confirmed.
func (d *Device) dumpCheckpoints(queue QueueType) {
	if d.log != nil {
		d.log.error.Printf("device lost on %s queue; no checkpoint data available", queue)
	}
}

func (d *Device) SetQueueLock(lock, unlock func()) {
	d.mu.Lock()
	d.queueLockFn, d.queueUnlockFn = lock, unlock
	d.mu.Unlock()
}

// --- Queue submission core ---

// flushBatchLocked must be called with d.mu held. It lowers the queue's
// accumulated batch to a native submit, preferring a single timeline
// signal when timeline semaphores are enabled, otherwise a fence plus
// whatever binary semaphores the batch already carries.
func (d *Device) flushBatchLocked(queue QueueType) error {
	batch := d.batches[queue]
	if batch.empty() {
		return nil
	}

	if batch.touchesSwapchain {
		if d.wsiAcquire != vk.NullSemaphore && !d.wsiAcquireConsumed {
			batch.addWait(d.wsiAcquire, vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit), 0)
			batch.consumedWSIAcquire = true
			d.wsiAcquireConsumed = true
		}
		release, err := d.semaphores.requestSemaphore()
		if err != nil {
			return err
		}
		batch.addSignal(release, 0)
		d.wsiRelease = release
	}

	var fence vk.Fence
	if d.timeline {
		value := d.timelines[queue].next()
		batch.addSignal(d.timelines[queue].semaphore, value)
	} else {
		var err error
		fence, err = d.fences.requestFence()
		if err != nil {
			return err
		}
	}

	info, tl := batch.nativeSubmitInfo(d.timeline)
	if tl != nil {
		info.PNext = unsafe.Pointer(tl)
	}

	if d.queueLockFn != nil {
		d.queueLockFn()
	}
	ret := vk.QueueSubmit(d.families.queue(queue), 1, []vk.SubmitInfo{info}, fence)
	if d.queueUnlockFn != nil {
		d.queueUnlockFn()
	}

	d.batches[queue] = newSubmissionBatch()
	if isError(ret) {
		if ret == vk.ErrorDeviceLost {
			d.dumpCheckpoints(queue)
		}
		return newError(ret)
	}

	cur := d.frames[d.frameIndex]
	if d.timeline {
		cur.timelineWatermark[queue] = d.timelines[queue].counter
	} else if fence != vk.NullFence {
		cur.waitFences = append(cur.waitFences, fence)
	}
	// Binary wait semaphores are consumed by this submit; recycle them
	// once this frame's GPU work completes. The WSI acquire stays owned
	// by the host's swapchain.
	for _, w := range batch.waits {
		if w.value == 0 && w.semaphore != d.wsiAcquire && w.semaphore != vk.NullSemaphore {
			cur.recycleSemaphores = append(cur.recycleSemaphores, w.semaphore)
		}
	}
	return nil
}

func (d *Device) RequestCommandBuffer() (*CommandBuffer, error) {
	return d.allocateCommandBuffer(QueueGraphics, 0, false)
}

func (d *Device) RequestCommandBufferForThread(threadIndex int, queue QueueType) (*CommandBuffer, error) {
	return d.allocateCommandBuffer(queue, threadIndex, false)
}

func (d *Device) allocateCommandBuffer(queue QueueType, threadIndex int, secondary bool) (*CommandBuffer, error) {
	level := vk.CommandBufferLevelPrimary
	if secondary {
		level = vk.CommandBufferLevelSecondary
	}

	d.mu.Lock()
	pool := d.frames[d.frameIndex].commandPools[threadIndex][queue]
	d.mu.Unlock()

	handles := make([]vk.CommandBuffer, 1)
	ret := vk.AllocateCommandBuffers(d.device, &vk.CommandBufferAllocateInfo{
		SType: vk.StructureTypeCommandBufferAllocateInfo, CommandPool: pool, Level: level, CommandBufferCount: 1,
	}, handles)
	if isError(ret) {
		return nil, newError(ret)
	}
	// Secondary buffers begin recording in RequestSecondary, where the
	// render-pass inheritance info is known.
	if !secondary {
		if ret := vk.BeginCommandBuffer(handles[0], &vk.CommandBufferBeginInfo{SType: vk.StructureTypeCommandBufferBeginInfo}); isError(ret) {
			return nil, newError(ret)
		}
		// Secondaries ride inside a primary and never hit the drain
		// counter themselves.
		atomic.AddInt32(&d.frameCounter, 1)
	}
	d.mu.Lock()
	d.frames[d.frameIndex].commandBuffersIssued++
	cb := d.cbPool.acquire()
	d.mu.Unlock()

	*cb = CommandBuffer{device: d.device, handle: handles[0], queue: queue, thread: threadIndex, secondary: secondary, device_: d}
	return cb, nil
}

// Submit ends a primary command buffer's recording and queues it for
// native submission: pending cross-queue waits are attached, then the
// batch is flushed immediately.
func (d *Device) Submit(cb *CommandBuffer) error {
	assertf(!cb.submitted, "vkcore: command buffer submitted twice")
	cb.submitted = true
	if ret := vk.EndCommandBuffer(cb.handle); isError(ret) {
		return newError(ret)
	}

	// Held transient blocks are done recording into; hand them back for
	// flush-and-recycle once this frame completes.
	for kind, block := range cb.held {
		if block != nil {
			d.recycleOrScheduleBlock(bufferKind(kind), block)
			cb.held[kind] = nil
		}
	}

	d.mu.Lock()
	batch := d.batches[cb.queue]
	for _, w := range d.pendingWaits[cb.queue] {
		batch.addWait(w.semaphore, w.stageMask, w.value)
	}
	d.pendingWaits[cb.queue] = d.pendingWaits[cb.queue][:0]
	batch.addCommandBuffer(cb.handle)
	if cb.usesSwapchain {
		batch.touchesSwapchain = true
	}
	err := d.flushBatchLocked(cb.queue)
	d.cbPool.recycle(cb)
	d.mu.Unlock()

	atomic.AddInt32(&d.frameCounter, -1)
	return err
}

func (d *Device) SubmitEmpty(queue QueueType) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.flushBatchLocked(queue)
}

// AddWaitSemaphore stores a semaphore against the next submission to
// the target queue; cross-queue ordering rides on these deferred waits.
func (d *Device) AddWaitSemaphore(queue QueueType, sem vk.Semaphore, stage vk.PipelineStageFlags) {
	d.mu.Lock()
	d.pendingWaits[queue] = append(d.pendingWaits[queue], waitSemaphore{semaphore: sem, stageMask: stage})
	d.mu.Unlock()
}

// --- Internal submission helpers for cross-queue resource uploads ---

func (d *Device) requestInternalCommandBuffer(queue QueueType) (vk.CommandBuffer, error) {
	cb, err := d.allocateCommandBuffer(queue, 0, false)
	if err != nil {
		return vk.NullCommandBuffer, err
	}
	// Only the raw handle is recorded into; the wrapper can recycle now.
	handle := cb.handle
	d.mu.Lock()
	d.cbPool.recycle(cb)
	d.mu.Unlock()
	return handle, nil
}

func (d *Device) endAndSubmit(queue QueueType, cb vk.CommandBuffer, waits []waitSemaphore, signals []signalSemaphore) error {
	if ret := vk.EndCommandBuffer(cb); isError(ret) {
		return newError(ret)
	}
	d.mu.Lock()
	batch := d.batches[queue]
	for _, w := range waits {
		batch.addWait(w.semaphore, w.stageMask, w.value)
	}
	for _, s := range signals {
		batch.addSignal(s.semaphore, s.value)
	}
	batch.addCommandBuffer(cb)
	err := d.flushBatchLocked(queue)
	d.mu.Unlock()

	atomic.AddInt32(&d.frameCounter, -1)
	return err
}

func (d *Device) submitInternal(queue QueueType, cb vk.CommandBuffer, _ error) error {
	return d.endAndSubmit(queue, cb, nil, nil)
}

func (d *Device) submitWithSignal(queue QueueType, cb vk.CommandBuffer, sem vk.Semaphore) error {
	return d.endAndSubmit(queue, cb, nil, []signalSemaphore{{semaphore: sem}})
}

func (d *Device) submitWithWait(queue QueueType, cb vk.CommandBuffer, sem vk.Semaphore, stage vk.PipelineStageFlags) error {
	return d.endAndSubmit(queue, cb, []waitSemaphore{{semaphore: sem, stageMask: stage}}, nil)
}

func (d *Device) submitWithWaitAndSignal(queue QueueType, cb vk.CommandBuffer, waitSem vk.Semaphore, waitStage vk.PipelineStageFlags, signalSem vk.Semaphore) error {
	return d.endAndSubmit(queue, cb, []waitSemaphore{{semaphore: waitSem, stageMask: waitStage}}, []signalSemaphore{{semaphore: signalSem}})
}

// submitVisible implements the staging-submission fan-out: the transfer
// command buffer is submitted once, signaling one semaphore per other
// queue that needs to see the upload; each of those semaphores is
// stashed as a wait on that queue's next submission, at the stages the
// resource's usage makes possible.
func (d *Device) submitVisible(cb vk.CommandBuffer, owners []QueueType, waitStages vk.PipelineStageFlags) error {
	if ret := vk.EndCommandBuffer(cb); isError(ret) {
		return newError(ret)
	}

	d.mu.Lock()
	seen := map[QueueType]bool{}
	var signals []signalSemaphore
	for _, t := range owners {
		if t == QueueTransfer || seen[t] {
			continue
		}
		seen[t] = true
		sem, err := d.semaphores.requestSemaphore()
		if err != nil {
			d.mu.Unlock()
			return err
		}
		signals = append(signals, signalSemaphore{semaphore: sem})
		d.pendingWaits[t] = append(d.pendingWaits[t], waitSemaphore{semaphore: sem, stageMask: waitStages})
	}
	batch := d.batches[QueueTransfer]
	for _, s := range signals {
		batch.addSignal(s.semaphore, s.value)
	}
	batch.addCommandBuffer(cb)
	err := d.flushBatchLocked(QueueTransfer)
	d.mu.Unlock()

	atomic.AddInt32(&d.frameCounter, -1)
	return err
}

// --- Buffer block pool plumbing (consumed by CommandBuffer's transient
// allocators) ---

func (d *Device) requestBufferBlock(kind bufferKind) (*bufferBlock, error) {
	d.mu.Lock()
	if block, ok := d.bufferPools[kind].acquire(); ok {
		d.mu.Unlock()
		return block, nil
	}
	d.mu.Unlock()
	return d.createBufferBlock(kind)
}

func (d *Device) createBufferBlock(kind bufferKind) (*bufferBlock, error) {
	d.mu.Lock()
	pool := d.bufferPools[kind]
	d.mu.Unlock()

	var handle vk.Buffer
	ret := vk.CreateBuffer(d.device, &vk.BufferCreateInfo{
		SType: vk.StructureTypeBufferCreateInfo, Size: pool.blockSize, Usage: kind.usage(), SharingMode: vk.SharingModeExclusive,
	}, nil, &handle)
	if isError(ret) {
		return nil, newError(ret)
	}
	alloc, err := d.allocator.AllocateBuffer(d.device, handle, pool.domain)
	if err != nil {
		vk.DestroyBuffer(d.device, handle, nil)
		return nil, err
	}

	buf := &Buffer{
		cookie: d.cookies.NewCookie(), device: d.device, handle: handle, alloc: alloc,
		info: BufferCreateInfo{Domain: pool.domain, Size: pool.blockSize, Usage: kind.usage()},
	}
	buf.initRefCount(true, func() { d.deferDestroyBuffer(handle, alloc) })

	d.mu.Lock()
	d.blockBuffers[handle] = buf
	d.mu.Unlock()

	return &bufferBlock{
		kind: kind, gpuBuffer: handle, cpuBuffer: handle, alloc: alloc, hostPointer: alloc.mapped,
		size: pool.blockSize, alignment: pool.alignment, spillSize: pool.spillSize,
	}, nil
}

func (d *Device) bufferForBlock(block *bufferBlock) *Buffer {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.blockBuffers[block.gpuBuffer]
}

func (d *Device) recycleOrScheduleBlock(kind bufferKind, block *bufferBlock) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if block.full() {
		// Never allocated from this cycle: straight back to the pool, no
		// frame deferral needed.
		d.bufferPools[kind].recycle(block)
		return
	}
	// Partially written and host-backed: flush the mapped range so the
	// GPU sees the writes even on non-coherent memory, then let the
	// frame return the block once its submissions complete.
	if block.hostPointer != nil {
		vk.FlushMappedMemoryRanges(d.device, 1, []vk.MappedMemoryRange{{
			SType: vk.StructureTypeMappedMemoryRange,
			Memory: block.alloc.memory,
			Offset: block.alloc.offset,
			Size: vk.DeviceSize(vk.WholeSize),
		}})
	}
	cur := d.frames[d.frameIndex]
	switch kind {
	case bufferKindVBO:
		cur.vboRecycle = append(cur.vboRecycle, block)
	case bufferKindIBO:
		cur.iboRecycle = append(cur.iboRecycle, block)
	case bufferKindUBO:
		cur.uboRecycle = append(cur.uboRecycle, block)
	default:
		cur.stagingRecycle = append(cur.stagingRecycle, block)
	}
}

// --- Deferred destruction ---

func (d *Device) deferDestroyBuffer(buf vk.Buffer, alloc allocation) {
	d.mu.Lock()
	fr := &d.frames[d.frameIndex].destroy
	fr.buffers = append(fr.buffers, destroyedBuffer{buffer: buf, alloc: alloc})
	d.mu.Unlock()
}

func (d *Device) deferDestroyImage(img vk.Image, alloc allocation, owns bool) {
	d.mu.Lock()
	fr := &d.frames[d.frameIndex].destroy
	fr.images = append(fr.images, destroyedImage{image: img, alloc: alloc, owns: owns})
	d.mu.Unlock()
}

func (d *Device) deferDestroyImageView(v *ImageView) {
	d.mu.Lock()
	fr := &d.frames[d.frameIndex].destroy
	fr.imageViews = append(fr.imageViews, v.defaultView)
	for _, aux := range []vk.ImageView{v.depthView, v.stencilView, v.unormView, v.srgbView} {
		if aux != vk.NullImageView {
			fr.imageViews = append(fr.imageViews, aux)
		}
	}
	fr.imageViews = append(fr.imageViews, v.renderTargets...)
	d.mu.Unlock()
}

func (d *Device) deferDestroyBufferView(v vk.BufferView) {
	d.mu.Lock()
	fr := &d.frames[d.frameIndex].destroy
	fr.bufferViews = append(fr.bufferViews, v)
	d.mu.Unlock()
}

func (d *Device) deferDestroySampler(s vk.Sampler) {
	d.mu.Lock()
	fr := &d.frames[d.frameIndex].destroy
	fr.samplers = append(fr.samplers, s)
	d.mu.Unlock()
}

func (d *Device) deferDestroyShader(s *Shader) {
	d.progMu.Lock()
	d.mu.Lock()
	fr := &d.frames[d.frameIndex].destroy
	fr.shaders = append(fr.shaders, s)
	d.mu.Unlock()
	d.progMu.Unlock()
}

func (d *Device) deferDestroyProgram(p *Program) {
	for _, sh := range p.shaders {
		sh.release()
	}
	d.progMu.Lock()
	d.mu.Lock()
	fr := &d.frames[d.frameIndex].destroy
	fr.programs = append(fr.programs, p)
	d.mu.Unlock()
	d.progMu.Unlock()
}

// --- Resource creation: buffers ---

func soleOwner(owners []QueueType) QueueType {
	if len(owners) == 1 {
		return owners[0]
	}
	return QueueGraphics
}

func (d *Device) dedupFamilies(owners []QueueType) []uint32 {
	seen := map[uint32]bool{}
	var out []uint32
	for _, o := range owners {
		f := d.families.family(o)
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}

func maxu32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}

func finalLayoutFor(usage vk.ImageUsageFlags) vk.ImageLayout {
	u := vk.ImageUsageFlagBits(usage)
	switch {
	case u&vk.ImageUsageDepthStencilAttachmentBit != 0:
		return vk.ImageLayoutDepthStencilAttachmentOptimal
	case u&vk.ImageUsageColorAttachmentBit != 0:
		return vk.ImageLayoutColorAttachmentOptimal
	case u&vk.ImageUsageSampledBit != 0:
		return vk.ImageLayoutShaderReadOnlyOptimal
	default:
		return vk.ImageLayoutGeneral
	}
}

func (d *Device) CreateBuffer(info BufferCreateInfo) (*Buffer, error) {
	usage := info.Usage | vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit) | vk.BufferUsageFlags(vk.BufferUsageTransferDstBit)
	createInfo := vk.BufferCreateInfo{
		SType: vk.StructureTypeBufferCreateInfo, Size: info.Size, Usage: usage, SharingMode: info.sharingMode(),
	}
	var families []uint32
	if info.sharingMode() == vk.SharingModeConcurrent {
		families = d.dedupFamilies(info.SharingOwners)
		createInfo.QueueFamilyIndexCount = uint32(len(families))
		createInfo.PQueueFamilyIndices = families
	}

	var handle vk.Buffer
	if ret := vk.CreateBuffer(d.device, &createInfo, nil, &handle); isError(ret) {
		return nil, newError(ret)
	}
	alloc, err := d.allocator.AllocateBuffer(d.device, handle, info.Domain)
	if err != nil {
		vk.DestroyBuffer(d.device, handle, nil)
		return nil, err
	}

	buf := &Buffer{cookie: d.cookies.NewCookie(), device: d.device, info: info, handle: handle, alloc: alloc}
	buf.initRefCount(true, func() { d.deferDestroyBuffer(handle, alloc) })

	if info.needsUpload() {
		plan := bufferCreationPlan{
			info: info, buffer: handle,
			concurrent: info.sharingMode() == vk.SharingModeConcurrent,
			ownerFamilies: families,
			soleOwner: soleOwner(info.SharingOwners),
		}
		if err := d.uploadBufferContents(plan, info.Initial, info.Misc&BufferMiscZeroInitialize != 0); err != nil {
			return nil, err
		}
	} else if info.Domain.hostVisible() && len(info.Initial) > 0 && alloc.mapped != nil {
		dst := unsafe.Slice((*byte)(alloc.mapped), info.Size)
		copy(dst, info.Initial)
	}
	return buf, nil
}

func (d *Device) CreateBufferView(buf *Buffer, info BufferViewCreateInfo) (*BufferView, error) {
	var handle vk.BufferView
	ret := vk.CreateBufferView(d.device, &vk.BufferViewCreateInfo{
		SType: vk.StructureTypeBufferViewCreateInfo, Buffer: buf.Handle(), Format: info.Format, Offset: info.Offset, Range: info.Range,
	}, nil, &handle)
	if isError(ret) {
		return nil, newError(ret)
	}
	buf.retain()
	bv := &BufferView{cookie: d.cookies.NewCookie(), device: d.device, buffer: NewHandle(buf), info: info, handle: handle}
	bv.initRefCount(true, func() {
		d.deferDestroyBufferView(handle)
		buf.release()
	})
	return bv, nil
}

// --- Resource creation: images ---

func (d *Device) CreateImage(info ImageCreateInfo) (*Image, error) {
	tiling, initialLayout := info.tiling()
	usage := info.Usage | vk.ImageUsageFlags(vk.ImageUsageTransferSrcBit) | vk.ImageUsageFlags(vk.ImageUsageTransferDstBit)

	// Levels == 0 requests the full chain down to 1x1.
	if info.Levels == 0 {
		info.Levels = info.fullMipLevels()
	}
	info.Layers = maxu32(info.Layers, 1)

	createInfo := vk.ImageCreateInfo{
		SType: vk.StructureTypeImageCreateInfo, ImageType: info.Type, Format: info.Format, Extent: info.Extent,
		MipLevels: info.Levels, ArrayLayers: info.Layers, Samples: info.Samples,
		Tiling: tiling, Usage: usage, SharingMode: info.sharingMode(), InitialLayout: initialLayout,
	}

	var formatList vk.ImageFormatListCreateInfo
	switch info.ViewFormats {
	case ViewFormatsCompatible:
		createInfo.Flags = vk.ImageCreateFlags(vk.ImageCreateMutableFormatBit)
	case ViewFormatsCustom:
		if len(info.CustomViewFormats) > 0 {
			createInfo.Flags = vk.ImageCreateFlags(vk.ImageCreateMutableFormatBit)
			formatList = vk.ImageFormatListCreateInfo{
				SType: vk.StructureTypeImageFormatListCreateInfo,
				ViewFormatCount: uint32(len(info.CustomViewFormats)), PViewFormats: info.CustomViewFormats,
			}
			createInfo.PNext = unsafe.Pointer(&formatList)
		}
	}

	var families []uint32
	if info.sharingMode() == vk.SharingModeConcurrent {
		families = d.dedupFamilies(info.SharingOwners)
		createInfo.QueueFamilyIndexCount = uint32(len(families))
		createInfo.PQueueFamilyIndices = families
	}

	var handle vk.Image
	if ret := vk.CreateImage(d.device, &createInfo, nil, &handle); isError(ret) {
		return nil, newError(ret)
	}
	alloc, err := d.allocator.AllocateImage(d.device, handle, info.Domain)
	if err != nil {
		vk.DestroyImage(d.device, handle, nil)
		return nil, err
	}

	stages, access := possibleStagesFromUsage(usage)
	img := &Image{
		cookie: d.cookies.NewCookie(), device: d.device, info: info, handle: handle, alloc: alloc,
		possibleStages: stages, possibleAccess: access,
		transient: usage&vk.ImageUsageFlags(vk.ImageUsageTransientAttachmentBit) != 0,
	}
	img.initRefCount(true, func() { d.deferDestroyImage(handle, alloc, true) })

	if info.Domain == DomainDevice && (len(info.Initial) > 0 || info.Misc&ImageMiscZeroInitialize != 0) {
		steadyLayout := finalLayoutFor(usage)
		if info.LayoutFamily == ImageLayoutGeneral {
			steadyLayout = vk.ImageLayoutGeneral
		}
		plan := imageCreationPlan{
			info: info, image: handle,
			concurrent: info.sharingMode() == vk.SharingModeConcurrent,
			soleOwner: soleOwner(info.SharingOwners),
			initialLayout: steadyLayout,
		}
		if err := d.uploadImageContents(plan, info.Initial); err != nil {
			return nil, err
		}
	}
	return img, nil
}

func (d *Device) CreateLinearHostImage(info ImageCreateInfo) (*Image, error) {
	info.Domain = DomainHost
	return d.CreateImage(info)
}

func unormEquivalent(format vk.Format) (vk.Format, bool) {
	switch format {
	case vk.FormatR8g8b8a8Srgb:
		return vk.FormatR8g8b8a8Unorm, true
	case vk.FormatB8g8r8a8Srgb:
		return vk.FormatB8g8r8a8Unorm, true
	default:
		return 0, false
	}
}

func srgbEquivalent(format vk.Format) (vk.Format, bool) {
	switch format {
	case vk.FormatR8g8b8a8Unorm:
		return vk.FormatR8g8b8a8Srgb, true
	case vk.FormatB8g8r8a8Unorm:
		return vk.FormatB8g8r8a8Srgb, true
	default:
		return 0, false
	}
}

// CreateImageView builds the default view plus whichever of the four
// aux variants apply: depth/stencil split views when the image has a
// combined depth-stencil aspect, unorm/srgb reinterpretations when the
// image allows view-format reinterpretation, and a per-layer
// render-target array when requested.
func (d *Device) CreateImageView(img *Image, info ImageViewCreateInfo) (*ImageView, error) {
	aspect := imageAspect(img.info.Format)
	levels := info.Levels
	if levels == 0 {
		levels = img.info.Levels - info.BaseLevel
	}
	layers := info.Layers
	if layers == 0 {
		layers = img.info.Layers - info.BaseLayer
	}

	mkView := func(format vk.Format, aspectMask vk.ImageAspectFlags, vt vk.ImageViewType, baseLayer, layerCount uint32) (vk.ImageView, error) {
		var v vk.ImageView
		ret := vk.CreateImageView(d.device, &vk.ImageViewCreateInfo{
			SType: vk.StructureTypeImageViewCreateInfo, Image: img.Handle(), ViewType: vt, Format: format,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask: aspectMask, BaseMipLevel: info.BaseLevel, LevelCount: levels,
				BaseArrayLayer: baseLayer, LayerCount: layerCount,
			},
		}, nil, &v)
		if isError(ret) {
			return vk.NullImageView, newError(ret)
		}
		return v, nil
	}

	defaultView, err := mkView(info.Format, aspect, info.ViewType, info.BaseLayer, layers)
	if err != nil {
		return nil, err
	}
	view := &ImageView{cookie: d.cookies.NewCookie(), device: d.device, image: NewHandle(img), info: info, defaultView: defaultView}

	if hasCombinedDepthStencil(img.info.Format) {
		if v, err := mkView(info.Format, vk.ImageAspectFlags(vk.ImageAspectDepthBit), info.ViewType, info.BaseLayer, layers); err == nil {
			view.depthView = v
		}
		if v, err := mkView(info.Format, vk.ImageAspectFlags(vk.ImageAspectStencilBit), info.ViewType, info.BaseLayer, layers); err == nil {
			view.stencilView = v
		}
	}
	if img.info.ViewFormats != ViewFormatsNone {
		if f, ok := unormEquivalent(info.Format); ok {
			if v, err := mkView(f, aspect, info.ViewType, info.BaseLayer, layers); err == nil {
				view.unormView = v
			}
		}
		if f, ok := srgbEquivalent(info.Format); ok {
			if v, err := mkView(f, aspect, info.ViewType, info.BaseLayer, layers); err == nil {
				view.srgbView = v
			}
		}
	}
	if info.RenderTarget {
		rts := make([]vk.ImageView, layers)
		for i := uint32(0); i < layers; i++ {
			v, err := mkView(info.Format, aspect, vk.ImageViewType2d, info.BaseLayer+i, 1)
			if err != nil {
				return nil, err
			}
			rts[i] = v
		}
		view.renderTargets = rts
	}

	img.retain()
	view.initRefCount(true, func() {
		d.deferDestroyImageView(view)
		img.release()
	})
	return view, nil
}

func (d *Device) CreateSampler(info SamplerCreateInfo) (*Sampler, error) {
	anisotropy := vk.False
	if info.AnisotropyEnable {
		anisotropy = vk.True
	}
	compare := vk.False
	if info.CompareEnable {
		compare = vk.True
	}
	var handle vk.Sampler
	ret := vk.CreateSampler(d.device, &vk.SamplerCreateInfo{
		SType: vk.StructureTypeSamplerCreateInfo,
		MagFilter: info.MagFilter, MinFilter: info.MinFilter, MipmapMode: info.MipmapMode,
		AddressModeU: info.AddressModeU, AddressModeV: info.AddressModeV, AddressModeW: info.AddressModeW,
		MipLodBias: info.MipLodBias, AnisotropyEnable: vk.Bool32(anisotropy), MaxAnisotropy: info.MaxAnisotropy,
		CompareEnable: vk.Bool32(compare), CompareOp: info.CompareOp, MinLod: info.MinLod, MaxLod: info.MaxLod,
		BorderColor: info.BorderColor,
	}, nil, &handle)
	if isError(ret) {
		return nil, newError(ret)
	}
	s := &Sampler{cookie: d.cookies.NewCookie(), device: d.device, info: info, handle: handle}
	s.initRefCount(true, func() { d.deferDestroySampler(handle) })
	return s, nil
}

// --- Shaders, programs, descriptor-set-layout plumbing ---

func (d *Device) CreateShader(code []byte, stage ShaderStage, layout ResourceLayout) (*Shader, error) {
	var module vk.ShaderModule
	ret := vk.CreateShaderModule(d.device, &vk.ShaderModuleCreateInfo{
		SType: vk.StructureTypeShaderModuleCreateInfo, CodeSize: uint(len(code)), PCode: sliceUint32(code),
	}, nil, &module)
	if isError(ret) {
		return nil, newError(ret)
	}
	sh := &Shader{cookie: d.cookies.NewCookie(), device: d.device, digest: hashSPIRV(code), stage: stage, layout: layout, module: module}
	sh.initRefCount(true, func() { d.deferDestroyShader(sh) })
	return sh, nil
}

// buildSetLayoutBindings derives one vk.DescriptorSetLayoutBinding per
// occupied slot from one set's per-kind bit masks, assigning
// dynamic-offset descriptor types to uniform and storage buffers since
// the command recorder always threads a dynamic offset through
// CmdBindDescriptorSets for buffer bindings.
func buildSetLayoutBindings(rl DescriptorSetBindings, vis [32]vk.ShaderStageFlags) []vk.DescriptorSetLayoutBinding {
	var bindings []vk.DescriptorSetLayoutBinding
	for slot := uint32(0); slot < 32; slot++ {
		mask := uint32(1) << slot
		var dtype vk.DescriptorType
		present := false
		switch {
		case rl.UniformBufferMask&mask != 0:
			dtype, present = vk.DescriptorTypeUniformBufferDynamic, true
		case rl.StorageBufferMask&mask != 0:
			dtype, present = vk.DescriptorTypeStorageBufferDynamic, true
		case rl.SampledBufferMask&mask != 0:
			dtype, present = vk.DescriptorTypeUniformTexelBuffer, true
		case rl.SamplerMask&mask != 0:
			dtype, present = vk.DescriptorTypeSampler, true
		case rl.InputAttachmentMask&mask != 0:
			dtype, present = vk.DescriptorTypeInputAttachment, true
		case rl.StorageImageMask&mask != 0:
			dtype, present = vk.DescriptorTypeStorageImage, true
		case rl.SeparateImageMask&mask != 0:
			dtype, present = vk.DescriptorTypeSampledImage, true
		case rl.SampledImageMask&mask != 0:
			dtype, present = vk.DescriptorTypeCombinedImageSampler, true
		}
		if !present {
			continue
		}
		count := uint32(rl.ArraySizes[slot])
		if count == 0 {
			count = 1
		}
		stages := vis[slot]
		if stages == 0 {
			stages = vk.ShaderStageFlags(vk.ShaderStageAllBit)
		}
		bindings = append(bindings, vk.DescriptorSetLayoutBinding{Binding: slot, DescriptorType: dtype, DescriptorCount: count, StageFlags: stages})
	}
	return bindings
}

// descriptorAllocatorForBindingsLocked must be called with descMu held.
func (d *Device) descriptorAllocatorForBindingsLocked(bindings []vk.DescriptorSetLayoutBinding, bindless bool) (*descriptorSetAllocator, error) {
	key := layoutKey(bindings)
	if alloc, ok := d.descRegistry.byKey[key]; ok {
		return alloc, nil
	}
	var flags vk.DescriptorSetLayoutCreateFlags
	if bindless {
		flags = vk.DescriptorSetLayoutCreateFlags(vk.DescriptorSetLayoutCreateUpdateAfterBindPoolBitExt)
	}
	var setLayout vk.DescriptorSetLayout
	ret := vk.CreateDescriptorSetLayout(d.device, &vk.DescriptorSetLayoutCreateInfo{
		SType: vk.StructureTypeDescriptorSetLayoutCreateInfo, Flags: flags,
		BindingCount: uint32(len(bindings)), PBindings: bindings,
	}, nil, &setLayout)
	if isError(ret) {
		return nil, newError(ret)
	}
	alloc := newDescriptorSetAllocator(d.device, setLayout, bindings, bindless, d.threadCount)
	d.descRegistry.byKey[key] = alloc
	return alloc, nil
}

// descriptorAllocatorFor resolves the allocator for one (program, set)
// pair, recomputing the same deterministic binding list the program's
// own set-layout creation used so both land on the same registry key.
func (d *Device) descriptorAllocatorFor(program *Program, set uint32) *descriptorSetAllocator {
	bindings := buildSetLayoutBindings(program.layout.SetLayout[set], program.layout.StageVisibility[set])
	bindless := d.options.hasDescriptorIndexing() && program.layout.BindlessSetMask&(1<<set) != 0

	d.descMu.Lock()
	defer d.descMu.Unlock()
	alloc, err := d.descriptorAllocatorForBindingsLocked(bindings, bindless)
	if err != nil {
		return nil
	}
	return alloc
}

// writeDescriptorSet writes every valid binding in one
// vkUpdateDescriptorSets call, selecting the descriptor type from the
// same masks buildSetLayoutBindings used and the image-view variant
// from each binding's fp-vs-integer flag.
func (d *Device) writeDescriptorSet(dset vk.DescriptorSet, bindings []resourceBinding, layout *DescriptorSetBindings) {
	var writes []vk.WriteDescriptorSet
	for slot, b := range bindings {
		if !b.valid {
			continue
		}
		mask := uint32(1) << uint(slot)
		w := vk.WriteDescriptorSet{SType: vk.StructureTypeWriteDescriptorSet, DstSet: dset, DstBinding: uint32(slot), DescriptorCount: 1}
		switch {
		case layout.UniformBufferMask&mask != 0:
			w.DescriptorType = vk.DescriptorTypeUniformBufferDynamic
			w.PBufferInfo = []vk.DescriptorBufferInfo{{Buffer: b.buffer.Handle(), Offset: 0, Range: vk.DeviceSize(vk.WholeSize)}}
		case layout.StorageBufferMask&mask != 0:
			w.DescriptorType = vk.DescriptorTypeStorageBufferDynamic
			w.PBufferInfo = []vk.DescriptorBufferInfo{{Buffer: b.buffer.Handle(), Offset: 0, Range: vk.DeviceSize(vk.WholeSize)}}
		case layout.SampledBufferMask&mask != 0:
			w.DescriptorType = vk.DescriptorTypeUniformTexelBuffer
			w.PTexelBufferView = []vk.BufferView{b.bufferView.Handle()}
		case layout.SamplerMask&mask != 0:
			w.DescriptorType = vk.DescriptorTypeSampler
			w.PImageInfo = []vk.DescriptorImageInfo{{Sampler: b.sampler.Handle()}}
		case layout.InputAttachmentMask&mask != 0:
			w.DescriptorType = vk.DescriptorTypeInputAttachment
			w.PImageInfo = []vk.DescriptorImageInfo{{ImageView: viewForBinding(b), ImageLayout: b.layout}}
		case layout.StorageImageMask&mask != 0:
			w.DescriptorType = vk.DescriptorTypeStorageImage
			w.PImageInfo = []vk.DescriptorImageInfo{{ImageView: viewForBinding(b), ImageLayout: b.layout}}
		case layout.SeparateImageMask&mask != 0:
			w.DescriptorType = vk.DescriptorTypeSampledImage
			w.PImageInfo = []vk.DescriptorImageInfo{{ImageView: viewForBinding(b), ImageLayout: b.layout}}
		case layout.SampledImageMask&mask != 0:
			w.DescriptorType = vk.DescriptorTypeCombinedImageSampler
			var sampler vk.Sampler
			if b.sampler != nil {
				sampler = b.sampler.Handle()
			}
			w.PImageInfo = []vk.DescriptorImageInfo{{Sampler: sampler, ImageView: viewForBinding(b), ImageLayout: b.layout}}
		default:
			continue
		}
		writes = append(writes, w)
	}
	if len(writes) == 0 {
		return
	}
	vk.UpdateDescriptorSets(d.device, uint32(len(writes)), writes, 0, nil)
}

func viewForBinding(b resourceBinding) vk.ImageView {
	if b.image == nil {
		return vk.NullImageView
	}
	if b.fpVariant {
		return b.image.Float()
	}
	return b.image.Integer()
}

// buildProgram resolves or creates the per-set descriptor-set layouts
// and assembles the pipeline layout, shared by CreateGraphicsProgram
// and CreateComputeProgram.
func (d *Device) buildProgram(p *Program) error {
	var activeLayouts []vk.DescriptorSetLayout
	highest := -1
	for set := uint32(0); set < MaxDescriptorSets; set++ {
		if p.layout.DescriptorSetMask&(1<<set) == 0 {
			continue
		}
		bindings := buildSetLayoutBindings(p.layout.SetLayout[set], p.layout.StageVisibility[set])
		bindless := d.options.hasDescriptorIndexing() && p.layout.BindlessSetMask&(1<<set) != 0

		d.descMu.Lock()
		alloc, err := d.descriptorAllocatorForBindingsLocked(bindings, bindless)
		d.descMu.Unlock()
		if err != nil {
			return err
		}
		p.setLayouts[set] = alloc.setLayout
		if int(set) > highest {
			highest = int(set)
		}
	}
	for set := 0; set <= highest; set++ {
		// A gap below the highest active set still needs a (valid, empty)
		// layout in the pipeline layout's set list.
		if p.setLayouts[set] == vk.NullDescriptorSetLayout {
			d.descMu.Lock()
			alloc, err := d.descriptorAllocatorForBindingsLocked(nil, false)
			d.descMu.Unlock()
			if err != nil {
				return err
			}
			p.setLayouts[set] = alloc.setLayout
		}
		activeLayouts = append(activeLayouts, p.setLayouts[set])
	}

	createInfo := vk.PipelineLayoutCreateInfo{
		SType: vk.StructureTypePipelineLayoutCreateInfo, SetLayoutCount: uint32(len(activeLayouts)), PSetLayouts: activeLayouts,
	}
	var pushRange vk.PushConstantRange
	if p.layout.PushConstantSize > 0 {
		pushRange = vk.PushConstantRange{StageFlags: p.layout.PushConstantStages, Offset: 0, Size: p.layout.PushConstantSize}
		createInfo.PushConstantRangeCount = 1
		createInfo.PPushConstantRanges = []vk.PushConstantRange{pushRange}
	}

	var pipelineLayout vk.PipelineLayout
	if ret := vk.CreatePipelineLayout(d.device, &createInfo, nil, &pipelineLayout); isError(ret) {
		return newError(ret)
	}
	p.pipelineLayout = pipelineLayout
	return nil
}

func (d *Device) CreateGraphicsProgram(shaders map[ShaderStage]*Shader) (*Program, error) {
	layout := buildProgramLayout(shaders)
	p := &Program{cookie: d.cookies.NewCookie(), device: d.device, shaders: shaders, layout: layout, pipelines: make(map[uint64]vk.Pipeline)}
	if err := d.buildProgram(p); err != nil {
		return nil, err
	}
	for _, sh := range shaders {
		sh.retain()
	}
	p.initRefCount(true, func() { d.deferDestroyProgram(p) })
	return p, nil
}

func (d *Device) CreateComputeProgram(shader *Shader) (*Program, error) {
	shaders := map[ShaderStage]*Shader{StageCompute: shader}
	layout := buildProgramLayout(shaders)
	p := &Program{cookie: d.cookies.NewCookie(), device: d.device, shaders: shaders, layout: layout, pipelines: make(map[uint64]vk.Pipeline), isCompute: true}
	if err := d.buildProgram(p); err != nil {
		return nil, err
	}
	shader.retain()
	p.initRefCount(true, func() { d.deferDestroyProgram(p) })
	return p, nil
}

// --- Host mapping ---

func (d *Device) MapHostBuffer(buf *Buffer) (unsafe.Pointer, error) {
	if !buf.info.Domain.hostVisible() {
		return nil, &VkError{Kind: ErrorKindUnsupportedFeature}
	}
	return buf.mappedPointer(), nil
}

// UnmapHostBuffer is a no-op: host-visible allocations stay persistently
// mapped for the lifetime of the Buffer (directAllocator.AllocateBuffer
// maps once at creation).
func (d *Device) UnmapHostBuffer(buf *Buffer) {}

func (d *Device) MapLinearHostImage(img *Image) (unsafe.Pointer, vk.DeviceSize, error) {
	if img.alloc.mapped == nil {
		return nil, 0, &VkError{Kind: ErrorKindUnsupportedFeature}
	}
	var layout vk.SubresourceLayout
	vk.GetImageSubresourceLayout(d.device, img.handle, &vk.ImageSubresource{AspectMask: imageAspect(img.info.Format)}, &layout)
	layout.Deref()
	return img.alloc.mapped, layout.RowPitch, nil
}

func (d *Device) MapLinearHostImageAndSync(img *Image) (unsafe.Pointer, vk.DeviceSize, error) {
	ptr, pitch, err := d.MapLinearHostImage(img)
	if err != nil {
		return nil, 0, err
	}
	ranges := []vk.MappedMemoryRange{{SType: vk.StructureTypeMappedMemoryRange, Memory: img.alloc.memory, Offset: 0, Size: vk.DeviceSize(vk.WholeSize)}}
	vk.InvalidateMappedMemoryRanges(d.device, 1, ranges)
	return ptr, pitch, nil
}

// --- Queue-family discovery, exposed so a caller can build its own
// vk.DeviceCreateInfo before NewDevice is ever called ---

type QueueFamilies = queueFamilies

func DiscoverQueueFamilies(gpu vk.PhysicalDevice) *QueueFamilies {
	return discoverQueueFamilies(gpu)
}

func (qf *queueFamilies) DeviceQueueCreateInfos() []vk.DeviceQueueCreateInfo {
	return qf.createInfos()
}

// Destroy tears down every frame context, pool, and cache root owned by
// this Device. The caller still owns (and must destroy) the instance,
// physical device and logical device handles themselves.
func (d *Device) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, fc := range d.frames {
		fc.teardown()
	}
	d.descMu.Lock()
	for _, alloc := range d.descRegistry.byKey {
		alloc.destroy()
	}
	d.descMu.Unlock()

	for _, rp := range d.renderPassCache {
		vk.DestroyRenderPass(d.device, rp.handle, nil)
	}
	for _, v := range d.swapchainViews {
		vk.DestroyImageView(d.device, v.defaultView, nil)
	}

	d.fences.destroy()
	d.semaphores.destroy()
	d.events.destroy()
	for q := QueueGraphics; q < queueTypeCount; q++ {
		if d.timelines[q] != nil {
			d.timelines[q].destroy(d.device)
		}
	}
	if d.pipelineCache != vk.NullPipelineCache {
		vk.DestroyPipelineCache(d.device, d.pipelineCache, nil)
	}
	if d.log != nil {
		d.log.close()
	}
}
