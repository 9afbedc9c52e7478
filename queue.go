package vkcore

import vk "github.com/vulkan-go/vulkan"

// QueueType enumerates the three queue roles whose submissions and
// timeline watermarks track independently: graphics, compute and
// (async) transfer. A device with no dedicated transfer or compute
// family simply aliases that QueueType's family index onto graphics.
type QueueType int

const (
	QueueGraphics QueueType = iota
	QueueCompute
	QueueTransfer
	queueTypeCount
)

func (t QueueType) String() string {
	switch t {
	case QueueGraphics:
		return "graphics"
	case QueueCompute:
		return "compute"
	case QueueTransfer:
		return "transfer"
	default:
		return "unknown"
	}
}

// queueInfo binds one logical QueueType to a physical queue
// family/queue index pair.
type queueInfo struct {
	family uint32
	index uint32
	queue vk.Queue
}

// queueFamilies discovers and binds the graphics/compute/transfer queue
// families on a physical device, preferring a dedicated (non-graphics)
// family for compute and transfer when the hardware exposes one: a
// family whose flag set lacks the graphics/compute bits wins over one
// that merely also supports the role.
type queueFamilies struct {
	properties []vk.QueueFamilyProperties
	bound [queueTypeCount]queueInfo
}

func discoverQueueFamilies(gpu vk.PhysicalDevice) *queueFamilies {
	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(gpu, &count, nil)
	props := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(gpu, &count, props)
	for i := range props {
		props[i].Deref()
	}

	qf := &queueFamilies{properties: props}
	qf.bound[QueueGraphics] = findFamily(props, vk.QueueFlags(vk.QueueGraphicsBit), 0)
	qf.bound[QueueCompute] = findFamily(props, vk.QueueFlags(vk.QueueComputeBit), vk.QueueFlags(vk.QueueGraphicsBit))
	qf.bound[QueueTransfer] = findFamily(props, vk.QueueFlags(vk.QueueTransferBit), vk.QueueFlags(vk.QueueGraphicsBit)|vk.QueueFlags(vk.QueueComputeBit))

	// Fall back to the graphics family for any role the GPU has no
	// dedicated family for.
	for t := QueueGraphics; t < queueTypeCount; t++ {
		if qf.bound[t].family == invalidFamily {
			qf.bound[t] = qf.bound[QueueGraphics]
		}
	}
	return qf
}

const invalidFamily = ^uint32(0)

// findFamily prefers a family that has `want` but none of `avoidIfAlone`
// (a dedicated family), falling back to any family with `want` set.
func findFamily(props []vk.QueueFamilyProperties, want, avoidIfAlone vk.QueueFlags) queueInfo {
	best := invalidFamily
	for i, p := range props {
		if p.QueueFlags&want != want {
			continue
		}
		if p.QueueFlags&avoidIfAlone == 0 {
			return queueInfo{family: uint32(i)}
		}
		if best == invalidFamily {
			best = uint32(i)
		}
	}
	if best == invalidFamily {
		return queueInfo{family: invalidFamily}
	}
	return queueInfo{family: best}
}

// createInfos assembles one vk.DeviceQueueCreateInfo per distinct
// family index actually used; a family shared by two roles is requested
// once.
func (qf *queueFamilies) createInfos() []vk.DeviceQueueCreateInfo {
	seen := map[uint32]bool{}
	var infos []vk.DeviceQueueCreateInfo
	priority := []float32{1.0}
	for t := QueueGraphics; t < queueTypeCount; t++ {
		f := qf.bound[t].family
		if seen[f] {
			continue
		}
		seen[f] = true
		infos = append(infos, vk.DeviceQueueCreateInfo{
			SType: vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: f,
			QueueCount: 1,
			PQueuePriorities: priority,
		})
	}
	return infos
}

func (qf *queueFamilies) resolve(device vk.Device) {
	for t := QueueGraphics; t < queueTypeCount; t++ {
		var q vk.Queue
		vk.GetDeviceQueue(device, qf.bound[t].family, qf.bound[t].index, &q)
		qf.bound[t].queue = q
	}
}

func (qf *queueFamilies) family(t QueueType) uint32 { return qf.bound[t].family }
func (qf *queueFamilies) queue(t QueueType) vk.Queue { return qf.bound[t].queue }

// sharesFamily reports whether two queue roles resolved to the same
// physical family, the condition the upload barrier choreography
// branches on.
func (qf *queueFamilies) sharesFamily(a, b QueueType) bool {
	return qf.bound[a].family == qf.bound[b].family
}

// --- Submission assembly ---

// waitSemaphore pairs a semaphore with the pipeline stage(s) a batch
// must reach before consuming it, and (for timeline semaphores) the
// counter value being waited on.
type waitSemaphore struct {
	semaphore vk.Semaphore
	stageMask vk.PipelineStageFlags
	value uint64 // only meaningful for timeline semaphores
}

type signalSemaphore struct {
	semaphore vk.Semaphore
	value uint64
}

// submissionBatch accumulates one vkQueueSubmit's worth of work, sized
// to typical batch counts (≤4 waits, ≤4 signals, ≤8 command buffers);
// Go has no stack-allocated slice equivalent, so these are preallocated
// with that capacity instead to avoid repeated heap growth per append.
type submissionBatch struct {
	waits []waitSemaphore
	signals []signalSemaphore
	commands []vk.CommandBuffer

	touchesSwapchain bool
	consumedWSIAcquire bool
}

func newSubmissionBatch() *submissionBatch {
	return &submissionBatch{
		waits: make([]waitSemaphore, 0, 4),
		signals: make([]signalSemaphore, 0, 4),
		commands: make([]vk.CommandBuffer, 0, 8),
	}
}

func (b *submissionBatch) addWait(s vk.Semaphore, stage vk.PipelineStageFlags, value uint64) {
	b.waits = append(b.waits, waitSemaphore{semaphore: s, stageMask: stage, value: value})
}

func (b *submissionBatch) addSignal(s vk.Semaphore, value uint64) {
	b.signals = append(b.signals, signalSemaphore{semaphore: s, value: value})
}

func (b *submissionBatch) addCommandBuffer(cb vk.CommandBuffer) {
	b.commands = append(b.commands, cb)
}

func (b *submissionBatch) empty() bool {
	return len(b.commands) == 0 && len(b.waits) == 0 && len(b.signals) == 0
}

// nativeSubmitInfo lowers a submissionBatch to the vk.SubmitInfo plus an
// optional vk.TimelineSemaphoreSubmitInfo pNext chain carrying the wait
// and signal values, returned only when useTimeline is set. It allocates
// no semaphores or fences: Device.flushBatchLocked adds the semaphores to
// the batch before lowering it and passes any fence to vkQueueSubmit.
func (b *submissionBatch) nativeSubmitInfo(useTimeline bool) (vk.SubmitInfo, *vk.TimelineSemaphoreSubmitInfo) {
	waitSems := make([]vk.Semaphore, len(b.waits))
	waitStages := make([]vk.PipelineStageFlags, len(b.waits))
	waitValues := make([]uint64, len(b.waits))
	for i, w := range b.waits {
		waitSems[i] = w.semaphore
		waitStages[i] = w.stageMask
		waitValues[i] = w.value
	}
	signalSems := make([]vk.Semaphore, len(b.signals))
	signalValues := make([]uint64, len(b.signals))
	for i, s := range b.signals {
		signalSems[i] = s.semaphore
		signalValues[i] = s.value
	}

	info := vk.SubmitInfo{
		SType: vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount: uint32(len(waitSems)),
		PWaitSemaphores: waitSems,
		PWaitDstStageMask: waitStages,
		CommandBufferCount: uint32(len(b.commands)),
		PCommandBuffers: b.commands,
		SignalSemaphoreCount: uint32(len(signalSems)),
		PSignalSemaphores: signalSems,
	}

	if !useTimeline {
		return info, nil
	}
	tl := &vk.TimelineSemaphoreSubmitInfo{
		SType: vk.StructureTypeTimelineSemaphoreSubmitInfo,
		WaitSemaphoreValueCount: uint32(len(waitValues)),
		PWaitSemaphoreValues: waitValues,
		SignalSemaphoreValueCount: uint32(len(signalValues)),
		PSignalSemaphoreValues: signalValues,
	}
	return info, tl
}
