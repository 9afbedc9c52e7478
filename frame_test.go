package vkcore

import (
	"testing"

	vk "github.com/vulkan-go/vulkan"
)

func TestDestroyListsEmpty(t *testing.T) {
	var d destroyLists
	if !d.empty() {
		t.Fatal("a freshly zeroed destroyLists should report empty()==true")
	}
	d.samplers = append(d.samplers, vk.Sampler(1))
	if d.empty() {
		t.Fatal("destroyLists with a pending sampler reported empty()==true")
	}
}

func TestDestroyListsEmptyChecksEveryField(t *testing.T) {
	fields := []func(*destroyLists){
		func(d *destroyLists) { d.framebuffers = append(d.framebuffers, vk.Framebuffer(1)) },
		func(d *destroyLists) { d.imageViews = append(d.imageViews, vk.ImageView(1)) },
		func(d *destroyLists) { d.bufferViews = append(d.bufferViews, vk.BufferView(1)) },
		func(d *destroyLists) { d.images = append(d.images, destroyedImage{}) },
		func(d *destroyLists) { d.buffers = append(d.buffers, destroyedBuffer{}) },
		func(d *destroyLists) { d.semaphores = append(d.semaphores, vk.Semaphore(1)) },
		func(d *destroyLists) { d.events = append(d.events, vk.Event(1)) },
		func(d *destroyLists) { d.programs = append(d.programs, &Program{}) },
		func(d *destroyLists) { d.shaders = append(d.shaders, &Shader{}) },
	}
	for i, touch := range fields {
		var d destroyLists
		touch(&d)
		if d.empty() {
			t.Fatalf("field index %d: destroyLists.empty() did not notice a pending entry", i)
		}
	}
}

func TestFrameContextDrainDestroyListsNoopWhenEmpty(t *testing.T) {
	var dev vk.Device
	fc := &frameContext{device: dev}
	// With every destroy list empty, drainDestroyLists must not touch
	// the driver at all and must reset the lists to their zero value.
	fc.drainDestroyLists()
	if !fc.destroy.empty() {
		t.Fatal("drainDestroyLists left a non-empty destroy list after draining")
	}
}
