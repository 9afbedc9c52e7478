package vkcore

import (
	"testing"

	vk "github.com/vulkan-go/vulkan"
)

func TestHashBindingsDeterministic(t *testing.T) {
	keys := []bindingKey{
		{cookie: 1, slot: 0, layout: vk.ImageLayoutShaderReadOnlyOptimal},
		{cookie: 2, secondaryCookie: 3, variantIsFP: true, slot: 1},
	}
	a := hashBindings(keys)
	b := hashBindings(keys)
	if a != b {
		t.Fatalf("hashBindings not deterministic:\nhave %d\nwant %d", b, a)
	}

	keys2 := make([]bindingKey, len(keys))
	copy(keys2, keys)
	keys2[0].variantIsFP = !keys2[0].variantIsFP
	if hashBindings(keys2) == a {
		t.Fatal("hashBindings did not change with variantIsFP flipped")
	}
}

func TestLayoutKeyDeterministic(t *testing.T) {
	bindings := []vk.DescriptorSetLayoutBinding{
		{Binding: 0, DescriptorType: vk.DescriptorTypeUniformBufferDynamic, DescriptorCount: 1, StageFlags: vk.ShaderStageFlags(vk.ShaderStageVertexBit)},
		{Binding: 1, DescriptorType: vk.DescriptorTypeCombinedImageSampler, DescriptorCount: 1, StageFlags: vk.ShaderStageFlags(vk.ShaderStageFragmentBit)},
	}
	k1 := layoutKey(bindings)
	k2 := layoutKey(bindings)
	if k1 != k2 {
		t.Fatal("layoutKey not deterministic for identical bindings")
	}

	other := []vk.DescriptorSetLayoutBinding{
		{Binding: 0, DescriptorType: vk.DescriptorTypeUniformBufferDynamic, DescriptorCount: 1, StageFlags: vk.ShaderStageFlags(vk.ShaderStageVertexBit)},
	}
	if layoutKey(other) == k1 {
		t.Fatal("layoutKey collided for two different binding lists")
	}
}

func TestBindlessCountForSet(t *testing.T) {
	var rl DescriptorSetBindings
	if got := bindlessCountForSet(rl); got != 1 {
		t.Fatalf("bindlessCountForSet with no arrays:\nhave %d\nwant 1", got)
	}
	rl.ArraySizes[3] = 16
	rl.ArraySizes[5] = 64
	if got := bindlessCountForSet(rl); got != 64 {
		t.Fatalf("bindlessCountForSet:\nhave %d\nwant 64", got)
	}
}

func TestDescriptorSetAllocatorTemporalCache(t *testing.T) {
	var dev vk.Device
	a := newDescriptorSetAllocator(dev, vk.NullDescriptorSetLayout, nil, false, 1)

	if _, ok := a.resolve(0, 42); ok {
		t.Fatal("resolve on an empty allocator returned ok=true")
	}

	a.insert(0, 42, vk.DescriptorSet(7), 0)
	set, ok := a.resolve(0, 42)
	if !ok || set != vk.DescriptorSet(7) {
		t.Fatalf("resolve after insert:\nhave %v, %t\nwant 7, true", set, ok)
	}

	// begin_frame moves current into previous; a lookup should still
	// hit (from previous) and get promoted back into current.
	a.beginFrame(0)
	set, ok = a.resolve(0, 42)
	if !ok || set != vk.DescriptorSet(7) {
		t.Fatal("resolve did not find the entry carried over into `previous`")
	}
	if _, promoted := a.perThread[0][42]; !promoted {
		t.Fatal("resolve from `previous` did not promote the entry into `current`")
	}

	// Two more begin_frames with nothing touching the key in between: the
	// first moves it back into previous, the second ages it out.
	a.beginFrame(0)
	a.beginFrame(0)
	if _, ok := a.resolve(0, 42); ok {
		t.Fatal("entry survived two begin_frame cycles with no re-touch")
	}
}

func TestDescriptorPoolTypesAggregation(t *testing.T) {
	var dev vk.Device
	bindings := []vk.DescriptorSetLayoutBinding{
		{DescriptorType: vk.DescriptorTypeCombinedImageSampler, DescriptorCount: 2},
		{DescriptorType: vk.DescriptorTypeCombinedImageSampler, DescriptorCount: 1},
		{DescriptorType: vk.DescriptorTypeUniformBufferDynamic, DescriptorCount: 1},
	}
	a := newDescriptorSetAllocator(dev, vk.NullDescriptorSetLayout, bindings, false, 1)
	sizes := a.poolTypes()
	totals := map[vk.DescriptorType]uint32{}
	for _, s := range sizes {
		totals[s.Type] = s.DescriptorCount
	}
	if got := totals[vk.DescriptorTypeCombinedImageSampler]; got != 3*descriptorsPerPool {
		t.Fatalf("combined-image-sampler total:\nhave %d\nwant %d", got, 3*descriptorsPerPool)
	}
	if got := totals[vk.DescriptorTypeUniformBufferDynamic]; got != descriptorsPerPool {
		t.Fatalf("uniform-buffer-dynamic total:\nhave %d\nwant %d", got, descriptorsPerPool)
	}
}
