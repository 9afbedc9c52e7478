package vkcore

import (
	"testing"

	vk "github.com/vulkan-go/vulkan"
)

func TestQueueTypeString(t *testing.T) {
	for _, x := range [...]struct {
		t    QueueType
		want string
	}{
		{QueueGraphics, "graphics"},
		{QueueCompute, "compute"},
		{QueueTransfer, "transfer"},
		{queueTypeCount, "unknown"},
	} {
		if got := x.t.String(); got != x.want {
			t.Fatalf("QueueType(%d).String:\nhave %q\nwant %q", x.t, got, x.want)
		}
	}
}

func TestFindFamilyPrefersDedicated(t *testing.T) {
	props := []vk.QueueFamilyProperties{
		{QueueFlags: vk.QueueFlags(vk.QueueGraphicsBit) | vk.QueueFlags(vk.QueueComputeBit)},
		{QueueFlags: vk.QueueFlags(vk.QueueTransferBit)},
	}
	got := findFamily(props, vk.QueueFlags(vk.QueueTransferBit), vk.QueueFlags(vk.QueueGraphicsBit)|vk.QueueFlags(vk.QueueComputeBit))
	if got.family != 1 {
		t.Fatalf("findFamily did not prefer the dedicated transfer family:\nhave %d\nwant 1", got.family)
	}
}

func TestFindFamilyFallsBackToShared(t *testing.T) {
	props := []vk.QueueFamilyProperties{
		{QueueFlags: vk.QueueFlags(vk.QueueGraphicsBit) | vk.QueueFlags(vk.QueueComputeBit)},
	}
	got := findFamily(props, vk.QueueFlags(vk.QueueComputeBit), vk.QueueFlags(vk.QueueGraphicsBit))
	if got.family != 0 {
		t.Fatalf("findFamily did not fall back to the only matching family:\nhave %d\nwant 0", got.family)
	}
}

func TestFindFamilyNoneMatches(t *testing.T) {
	props := []vk.QueueFamilyProperties{
		{QueueFlags: vk.QueueFlags(vk.QueueGraphicsBit)},
	}
	got := findFamily(props, vk.QueueFlags(vk.QueueComputeBit), 0)
	if got.family != invalidFamily {
		t.Fatalf("findFamily with no matching family:\nhave %d\nwant invalidFamily", got.family)
	}
}

func TestQueueFamiliesCreateInfosDeduplicates(t *testing.T) {
	qf := &queueFamilies{}
	qf.bound[QueueGraphics] = queueInfo{family: 0}
	qf.bound[QueueCompute] = queueInfo{family: 0}
	qf.bound[QueueTransfer] = queueInfo{family: 1}

	infos := qf.createInfos()
	if len(infos) != 2 {
		t.Fatalf("createInfos did not dedup shared families:\nhave %d entries\nwant 2", len(infos))
	}
	seen := map[uint32]bool{}
	for _, info := range infos {
		seen[info.QueueFamilyIndex] = true
	}
	if !seen[0] || !seen[1] {
		t.Fatalf("createInfos families:\nhave %v\nwant {0, 1}", seen)
	}
}

func TestQueueFamiliesSharesFamily(t *testing.T) {
	qf := &queueFamilies{}
	qf.bound[QueueGraphics] = queueInfo{family: 2}
	qf.bound[QueueCompute] = queueInfo{family: 2}
	qf.bound[QueueTransfer] = queueInfo{family: 3}

	if !qf.sharesFamily(QueueGraphics, QueueCompute) {
		t.Fatal("sharesFamily(graphics, compute) should be true when both resolved to family 2")
	}
	if qf.sharesFamily(QueueGraphics, QueueTransfer) {
		t.Fatal("sharesFamily(graphics, transfer) should be false; they resolved to different families")
	}
}

func TestSubmissionBatchEmpty(t *testing.T) {
	b := newSubmissionBatch()
	if !b.empty() {
		t.Fatal("a freshly created submissionBatch should be empty")
	}
	b.addCommandBuffer(vk.CommandBuffer(1))
	if b.empty() {
		t.Fatal("submissionBatch.empty() returned true after adding a command buffer")
	}
}

func TestSubmissionBatchAccumulate(t *testing.T) {
	b := newSubmissionBatch()
	b.addWait(vk.Semaphore(1), vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit), 5)
	b.addSignal(vk.Semaphore(2), 6)
	b.addCommandBuffer(vk.CommandBuffer(3))

	if len(b.waits) != 1 || b.waits[0].value != 5 {
		t.Fatalf("addWait did not record the wait correctly: %+v", b.waits)
	}
	if len(b.signals) != 1 || b.signals[0].value != 6 {
		t.Fatalf("addSignal did not record the signal correctly: %+v", b.signals)
	}
	if len(b.commands) != 1 || b.commands[0] != vk.CommandBuffer(3) {
		t.Fatalf("addCommandBuffer did not record the command buffer correctly: %+v", b.commands)
	}
}

func TestSubmissionBatchNativeSubmitInfoNonTimeline(t *testing.T) {
	b := newSubmissionBatch()
	b.addWait(vk.Semaphore(1), vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit), 0)
	b.addSignal(vk.Semaphore(2), 0)
	b.addCommandBuffer(vk.CommandBuffer(3))

	info, tl := b.nativeSubmitInfo(false)
	if tl != nil {
		t.Fatal("nativeSubmitInfo(false) returned a non-nil timeline chain")
	}
	if info.WaitSemaphoreCount != 1 || info.SignalSemaphoreCount != 1 || info.CommandBufferCount != 1 {
		t.Fatalf("nativeSubmitInfo counts:\nhave wait=%d signal=%d cmd=%d\nwant 1 1 1",
			info.WaitSemaphoreCount, info.SignalSemaphoreCount, info.CommandBufferCount)
	}
}

func TestSubmissionBatchNativeSubmitInfoTimeline(t *testing.T) {
	b := newSubmissionBatch()
	b.addWait(vk.Semaphore(1), vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit), 10)
	b.addSignal(vk.Semaphore(2), 11)

	_, tl := b.nativeSubmitInfo(true)
	if tl == nil {
		t.Fatal("nativeSubmitInfo(true) returned a nil timeline chain")
	}
	if tl.WaitSemaphoreValueCount != 1 || tl.PWaitSemaphoreValues[0] != 10 {
		t.Fatalf("timeline wait values:\nhave %v\nwant [10]", tl.PWaitSemaphoreValues)
	}
	if tl.SignalSemaphoreValueCount != 1 || tl.PSignalSemaphoreValues[0] != 11 {
		t.Fatalf("timeline signal values:\nhave %v\nwant [11]", tl.PSignalSemaphoreValues)
	}
}
