package vkcore

import (
	"testing"

	vk "github.com/vulkan-go/vulkan"
)

func TestHashSPIRVDeterministic(t *testing.T) {
	code := []byte{0x03, 0x02, 0x23, 0x07, 0x00, 0x00, 0x01, 0x00}
	a := hashSPIRV(code)
	b := hashSPIRV(code)
	if a != b {
		t.Fatalf("hashSPIRV not deterministic:\nhave %d\nwant %d", b, a)
	}
	other := append([]byte{}, code...)
	other[0]++
	if hashSPIRV(other) == a {
		t.Fatal("hashSPIRV collided for two different byte slices")
	}
}

func TestShaderStageVk(t *testing.T) {
	for _, x := range [...]struct {
		stage ShaderStage
		want  vk.ShaderStageFlagBits
	}{
		{StageVertex, vk.ShaderStageVertexBit},
		{StageFragment, vk.ShaderStageFragmentBit},
		{StageCompute, vk.ShaderStageComputeBit},
	} {
		if got := x.stage.vk(); got != x.want {
			t.Fatalf("ShaderStage(%d).vk:\nhave %v\nwant %v", x.stage, got, x.want)
		}
	}
}

func TestBuildProgramLayoutUnion(t *testing.T) {
	var vsLayout ResourceLayout
	vsLayout.Sets[0].UniformBufferMask = 1
	vsLayout.InputAttributeMask = 0x3
	vsLayout.PushConstantSize = 16
	vs := &Shader{stage: StageVertex, layout: vsLayout}

	var fsLayout ResourceLayout
	fsLayout.Sets[0].SampledImageMask = 2
	fsLayout.RenderTargetMask = 0x1
	fsLayout.PushConstantSize = 8
	fs := &Shader{stage: StageFragment, layout: fsLayout}

	layout := buildProgramLayout(map[ShaderStage]*Shader{StageVertex: vs, StageFragment: fs})

	if layout.DescriptorSetMask&1 == 0 {
		t.Fatal("buildProgramLayout: set 0 not marked present")
	}
	if layout.SetLayout[0].UniformBufferMask != 1 {
		t.Fatalf("UniformBufferMask:\nhave %d\nwant 1", layout.SetLayout[0].UniformBufferMask)
	}
	if layout.SetLayout[0].SampledImageMask != 2 {
		t.Fatalf("SampledImageMask:\nhave %d\nwant 2", layout.SetLayout[0].SampledImageMask)
	}
	if layout.InputAttributeMask != 0x3 {
		t.Fatalf("InputAttributeMask:\nhave %#x\nwant 0x3", layout.InputAttributeMask)
	}
	if layout.RenderTargetMask != 0x1 {
		t.Fatalf("RenderTargetMask:\nhave %#x\nwant 0x1", layout.RenderTargetMask)
	}
	// The vertex shader's push-constant size (16) dominates the max,
	// but both stages contributed to PushConstantStages.
	if layout.PushConstantSize != 16 {
		t.Fatalf("PushConstantSize:\nhave %d\nwant 16", layout.PushConstantSize)
	}
	wantStages := vk.ShaderStageFlags(vk.ShaderStageVertexBit) | vk.ShaderStageFlags(vk.ShaderStageFragmentBit)
	if layout.PushConstantStages != wantStages {
		t.Fatalf("PushConstantStages:\nhave %#x\nwant %#x", layout.PushConstantStages, wantStages)
	}

	stageFlags := layout.StageVisibility[0][0]
	if stageFlags&vk.ShaderStageFlags(vk.ShaderStageVertexBit) == 0 {
		t.Fatal("binding 0 (uniform buffer, vertex) missing from StageVisibility")
	}
	stageFlags1 := layout.StageVisibility[0][1]
	if stageFlags1&vk.ShaderStageFlags(vk.ShaderStageFragmentBit) == 0 {
		t.Fatal("binding 1 (sampled image, fragment) missing from StageVisibility")
	}
}

func TestProgramPipelineMemoization(t *testing.T) {
	p := &Program{}
	if _, ok := p.lookupPipeline(99); ok {
		t.Fatal("lookupPipeline on a fresh Program returned ok=true")
	}
	p.storePipeline(99, vk.Pipeline(123))
	pipe, ok := p.lookupPipeline(99)
	if !ok || pipe != vk.Pipeline(123) {
		t.Fatalf("lookupPipeline after store:\nhave %v, %t\nwant 123, true", pipe, ok)
	}
}

func TestBuildProgramLayoutMultiSet(t *testing.T) {
	var vsLayout ResourceLayout
	vsLayout.Sets[0].UniformBufferMask = 1
	vs := &Shader{stage: StageVertex, layout: vsLayout}

	var fsLayout ResourceLayout
	fsLayout.Sets[2].SampledImageMask = 1 << 4
	fsLayout.Sets[2].ArraySizes[4] = 8
	fs := &Shader{stage: StageFragment, layout: fsLayout}

	layout := buildProgramLayout(map[ShaderStage]*Shader{StageVertex: vs, StageFragment: fs})

	if layout.DescriptorSetMask != 0b101 {
		t.Fatalf("DescriptorSetMask:\nhave %#b\nwant 0b101 (sets 0 and 2)", layout.DescriptorSetMask)
	}
	if layout.SetLayout[2].SampledImageMask != 1<<4 {
		t.Fatal("set 2's sampled-image mask did not survive the union")
	}
	if layout.SetLayout[2].ArraySizes[4] != 8 {
		t.Fatal("set 2's array size did not survive the union")
	}
	if layout.SetLayout[0].SampledImageMask != 0 {
		t.Fatal("set 0 picked up bindings that belong to set 2")
	}
	if layout.StageVisibility[2][4]&vk.ShaderStageFlags(vk.ShaderStageFragmentBit) == 0 {
		t.Fatal("set 2 binding 4 missing fragment stage visibility")
	}
	if layout.StageVisibility[0][0]&vk.ShaderStageFlags(vk.ShaderStageVertexBit) == 0 {
		t.Fatal("set 0 binding 0 missing vertex stage visibility")
	}
}
