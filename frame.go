package vkcore

import vk "github.com/vulkan-go/vulkan"

// destroyLists accumulates everything a frameContext must tear down
// once the GPU is known to be done with it: framebuffers, samplers,
// image views, buffer views, images, buffers, semaphores, events,
// programs, shaders. Each list holds the raw native
// handle plus whatever allocation record it owns, never a Handle[T]
// (the ref-counted wrapper has already dropped to zero by the time
// something lands here).
type destroyLists struct {
	framebuffers []vk.Framebuffer
	samplers []vk.Sampler
	imageViews []vk.ImageView
	bufferViews []vk.BufferView
	images []destroyedImage
	buffers []destroyedBuffer
	semaphores []vk.Semaphore
	events []vk.Event
	programs []*Program
	shaders []*Shader
}

type destroyedImage struct {
	image vk.Image
	alloc allocation
	owns bool // false for swapchain images, which own no memory
}

type destroyedBuffer struct {
	buffer vk.Buffer
	alloc allocation
}

func (d *destroyLists) empty() bool {
	return len(d.framebuffers) == 0 && len(d.samplers) == 0 && len(d.imageViews) == 0 &&
		len(d.bufferViews) == 0 && len(d.images) == 0 && len(d.buffers) == 0 &&
		len(d.semaphores) == 0 && len(d.events) == 0 && len(d.programs) == 0 && len(d.shaders) == 0
}

// frameContext is one ring slot of per-frame bookkeeping. Exactly
// ringSize of these exist
// on a Device; Begin is invoked only when the ring index wraps back to
// this slot, at which point it must wait for the GPU to have finished
// everything this slot submitted the last time it was current, then
// drain its destroy lists.
type frameContext struct {
	device vk.Device

	// commandPools[threadIndex][queueType], partitioned so recording
	// from distinct threads never contends on a single pool.
	commandPools [][queueTypeCount]vk.CommandPool
	// commandBuffersIssued counts buffers handed out this ring cycle.
	commandBuffersIssued int

	destroy destroyLists

	recycleFences []vk.Fence
	recycleSemaphores []vk.Semaphore

	waitFences []vk.Fence

	// timeline watermark per queue: the counter value this frame's last
	// submission on that queue signaled, so Begin knows what to wait
	// for before reusing this slot's resources.
	timelineWatermark [queueTypeCount]uint64

	vboRecycle []*bufferBlock
	iboRecycle []*bufferBlock
	uboRecycle []*bufferBlock
	stagingRecycle []*bufferBlock
}

func newFrameContext(device vk.Device, threadCount int, families *queueFamilies) *frameContext {
	fc := &frameContext{
		device: device,
		commandPools: make([][queueTypeCount]vk.CommandPool, threadCount),
	}
	for t := 0; t < threadCount; t++ {
		for q := QueueGraphics; q < queueTypeCount; q++ {
			vk.CreateCommandPool(device, &vk.CommandPoolCreateInfo{
				SType: vk.StructureTypeCommandPoolCreateInfo,
				QueueFamilyIndex: families.family(q),
				Flags: vk.CommandPoolCreateFlags(vk.CommandPoolCreateTransientBit),
			}, nil, &fc.commandPools[t][q])
		}
	}
	return fc
}

// begin is called exactly when the ring index wraps back to this slot:
// wait on the timeline/fence watermark from this slot's prior use, then
// destroy/recycle everything pending, then reset command pools so
// recording can start fresh.
func (fc *frameContext) begin(waitValues func() []waitTarget) error {
	for _, w := range waitValues() {
		if w.timeline != vk.NullSemaphore {
			wait := vk.SemaphoreWaitInfo{
				SType: vk.StructureTypeSemaphoreWaitInfo,
				SemaphoreCount: 1,
				PSemaphores: []vk.Semaphore{w.timeline},
				PValues: []uint64{w.value},
			}
			if ret := vk.WaitSemaphores(fc.device, &wait, vk.MaxUint64); isError(ret) {
				return newError(ret)
			}
		}
	}
	if len(fc.waitFences) > 0 {
		if ret := vk.WaitForFences(fc.device, uint32(len(fc.waitFences)), fc.waitFences, vk.True, vk.MaxUint64); isError(ret) {
			return newError(ret)
		}
		vk.ResetFences(fc.device, uint32(len(fc.waitFences)), fc.waitFences)
		// Waited and reset: stage for return to the device's fence pool.
		fc.recycleFences = append(fc.recycleFences, fc.waitFences...)
		fc.waitFences = fc.waitFences[:0]
	}

	fc.drainDestroyLists()
	fc.commandBuffersIssued = 0

	for t := range fc.commandPools {
		for q := range fc.commandPools[t] {
			vk.ResetCommandPool(fc.device, fc.commandPools[t][q], 0)
		}
	}
	return nil
}

// waitTarget is one timeline semaphore + value this frame slot must
// reach completion of before it is safe to reuse.
type waitTarget struct {
	timeline vk.Semaphore
	value uint64
}

// drainDestroyLists actually calls the native destroy functions. Order
// matters: framebuffers reference views, views reference images/buffers,
// so children are destroyed before parents.
func (fc *frameContext) drainDestroyLists() {
	d := &fc.destroy
	for _, fb := range d.framebuffers {
		vk.DestroyFramebuffer(fc.device, fb, nil)
	}
	for _, s := range d.samplers {
		vk.DestroySampler(fc.device, s, nil)
	}
	for _, v := range d.imageViews {
		vk.DestroyImageView(fc.device, v, nil)
	}
	for _, v := range d.bufferViews {
		vk.DestroyBufferView(fc.device, v, nil)
	}
	for _, im := range d.images {
		if im.owns {
			vk.DestroyImage(fc.device, im.image, nil)
			freeAllocationImage(im.alloc)
		}
	}
	for _, b := range d.buffers {
		vk.DestroyBuffer(fc.device, b.buffer, nil)
		freeAllocationBuffer(b.alloc)
	}
	for _, s := range d.semaphores {
		vk.DestroySemaphore(fc.device, s, nil)
	}
	for _, e := range d.events {
		vk.DestroyEvent(fc.device, e, nil)
	}
	for _, p := range d.programs {
		p.destroyPipelines(fc.device)
	}
	for _, s := range d.shaders {
		if s.module != vk.NullShaderModule {
			vk.DestroyShaderModule(fc.device, s.module, nil)
		}
	}
	*d = destroyLists{}
}

func (fc *frameContext) teardown() {
	fc.drainDestroyLists()
	for t := range fc.commandPools {
		for q := range fc.commandPools[t] {
			if fc.commandPools[t][q] != vk.NullCommandPool {
				vk.DestroyCommandPool(fc.device, fc.commandPools[t][q], nil)
			}
		}
	}
}
