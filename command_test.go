package vkcore

import (
	"testing"

	vk "github.com/vulkan-go/vulkan"
)

func TestDirtyCategoryMarkClear(t *testing.T) {
	var cb CommandBuffer
	if cb.isDirty(dirtyPipeline) {
		t.Fatal("fresh CommandBuffer reports dirtyPipeline set")
	}
	cb.markDirty(dirtyPipeline)
	if !cb.isDirty(dirtyPipeline) {
		t.Fatal("markDirty(dirtyPipeline) did not set the bit")
	}
	if cb.isDirty(dirtyViewport) {
		t.Fatal("markDirty(dirtyPipeline) set an unrelated bit")
	}
	cb.clearDirty(dirtyPipeline)
	if cb.isDirty(dirtyPipeline) {
		t.Fatal("clearDirty(dirtyPipeline) did not clear the bit")
	}
}

func TestSetProgramOnlyDirtiesOnChange(t *testing.T) {
	var cb CommandBuffer
	p1 := &Program{cookie: 1}
	p2 := &Program{cookie: 2}

	cb.SetProgram(p1)
	if !cb.isDirty(dirtyPipeline) {
		t.Fatal("SetProgram to a new program did not mark dirtyPipeline")
	}
	cb.clearDirty(dirtyPipeline)

	cb.SetProgram(p1)
	if cb.isDirty(dirtyPipeline) {
		t.Fatal("SetProgram with the same program re-marked dirtyPipeline")
	}

	cb.SetProgram(p2)
	if !cb.isDirty(dirtyPipeline) {
		t.Fatal("SetProgram to a different program did not mark dirtyPipeline")
	}
}

func TestSetUniformBufferDirtyTracking(t *testing.T) {
	var cb CommandBuffer
	buf := &Buffer{cookie: 1}

	cb.SetUniformBuffer(0, 2, buf, 16)
	if cb.dirtySets&1 == 0 {
		t.Fatal("first SetUniformBuffer did not mark dirtySets for a new binding")
	}
	cb.dirtySets = 0

	// Rebinding the same buffer at a new dynamic offset should only
	// touch dirtySetsDynamic, not dirtySets.
	cb.SetUniformBuffer(0, 2, buf, 32)
	if cb.dirtySets != 0 {
		t.Fatal("rebinding the same buffer at a new offset marked dirtySets")
	}
	if cb.dirtySetsDynamic&1 == 0 {
		t.Fatal("rebinding the same buffer at a new offset did not mark dirtySetsDynamic")
	}

	// Rebinding a different buffer must go through the full dirtySets path.
	cb.dirtySetsDynamic = 0
	other := &Buffer{cookie: 2}
	cb.SetUniformBuffer(0, 2, other, 32)
	if cb.dirtySets&1 == 0 {
		t.Fatal("rebinding a different buffer did not mark dirtySets")
	}
}

func TestBindingKeysForSet(t *testing.T) {
	var cb CommandBuffer
	buf := &Buffer{cookie: 5}
	smp := &Sampler{cookie: 9}

	cb.SetUniformBuffer(1, 0, buf, 0)
	cb.SetSampler(1, 3, smp)

	keys := cb.bindingKeysForSet(1)
	if len(keys) != 2 {
		t.Fatalf("bindingKeysForSet:\nhave %d keys\nwant 2", len(keys))
	}
	var sawBuffer, sawSampler bool
	for _, k := range keys {
		switch k.slot {
		case 0:
			sawBuffer = k.cookie == Cookie(5)
		case 3:
			sawSampler = k.secondaryCookie == Cookie(9)
		}
	}
	if !sawBuffer {
		t.Fatal("bindingKeysForSet did not surface the uniform buffer's cookie")
	}
	if !sawSampler {
		t.Fatal("bindingKeysForSet did not surface the sampler's cookie")
	}

	// An empty set produces no keys at all.
	if got := cb.bindingKeysForSet(2); len(got) != 0 {
		t.Fatalf("bindingKeysForSet on an untouched set:\nhave %d\nwant 0", len(got))
	}
}

func TestSaveRestoreStateRoundTrip(t *testing.T) {
	var cb CommandBuffer
	cb.viewport = vk.Viewport{Width: 800, Height: 600}
	cb.scissor = vk.Rect2D{Extent: vk.Extent2D{Width: 800, Height: 600}}
	cb.state.SetDepthTest(true)
	cb.pushSize = 4
	cb.pushConstants[0] = 0xAB

	saved := cb.SaveState()

	cb.viewport = vk.Viewport{Width: 1, Height: 1}
	cb.state.SetDepthTest(false)
	cb.pushSize = 8
	cb.dirty = 0

	cb.RestoreState(saved)

	if cb.viewport != saved.viewport {
		t.Fatal("RestoreState did not restore the viewport")
	}
	if cb.state != saved.state {
		t.Fatal("RestoreState did not restore the static state")
	}
	if cb.pushSize != saved.pushSize {
		t.Fatal("RestoreState did not restore pushSize")
	}
	if !cb.isDirty(dirtyViewport) || !cb.isDirty(dirtyStaticState) || !cb.isDirty(dirtyPushConstants) {
		t.Fatal("RestoreState did not mark the categories that actually changed")
	}

	// Restoring identical state a second time should mark nothing dirty.
	cb.dirty = 0
	cb.RestoreState(saved)
	if cb.dirty != 0 {
		t.Fatal("RestoreState with no actual differences marked bits dirty anyway")
	}
}

func TestSetBlendConstantsDirtiesPipeline(t *testing.T) {
	var cb CommandBuffer
	cb.SetBlendConstants([4]float32{0.5, 0.5, 0.5, 1})
	if !cb.isDirty(dirtyPipeline) {
		t.Fatal("SetBlendConstants did not mark dirtyPipeline")
	}
	if !cb.blendConstantsUsed {
		t.Fatal("SetBlendConstants did not flag the constants as participating in the fingerprint")
	}
}

func TestSetPatchControlPointsDirtyOnChange(t *testing.T) {
	var cb CommandBuffer
	cb.SetPatchControlPoints(3)
	if !cb.isDirty(dirtyPipeline) {
		t.Fatal("SetPatchControlPoints did not mark dirtyPipeline")
	}
	cb.clearDirty(dirtyPipeline)
	cb.SetPatchControlPoints(3)
	if cb.isDirty(dirtyPipeline) {
		t.Fatal("SetPatchControlPoints with an unchanged value re-marked dirtyPipeline")
	}
}

func TestStorageAndSeparateTextureBinders(t *testing.T) {
	var cb CommandBuffer
	view := &ImageView{cookie: Cookie(3)}

	cb.SetStorageTexture(0, 1, view)
	b := cb.bindingSets[0][1]
	if !b.valid || b.layout != vk.ImageLayoutGeneral {
		t.Fatal("SetStorageTexture should bind in GENERAL layout")
	}

	cb.SetSeparateTexture(0, 2, view, false)
	b = cb.bindingSets[0][2]
	if !b.valid || b.layout != vk.ImageLayoutShaderReadOnlyOptimal || b.fpVariant {
		t.Fatal("SetSeparateTexture should bind read-only with the requested variant")
	}

	if cb.dirtySets&1 == 0 {
		t.Fatal("texture binders did not mark set 0 dirty")
	}
}
