package vkcore

import (
	"testing"

	vk "github.com/vulkan-go/vulkan"
)

func TestPipelineStateBits(t *testing.T) {
	var s PipelineState
	s.SetDepthTest(true)
	s.SetDepthWrite(true)
	if !s.bit(stateBitDepthTest) || !s.bit(stateBitDepthWrite) {
		t.Fatal("SetDepthTest/SetDepthWrite did not set their bits")
	}
	s.SetDepthTest(false)
	if s.bit(stateBitDepthTest) {
		t.Fatal("SetDepthTest(false) left the bit set")
	}
	if !s.bit(stateBitDepthWrite) {
		t.Fatal("SetDepthTest(false) clobbered an unrelated bit")
	}

	s.SetDepthCompare(vk.CompareOpGreater)
	if got := s.bits(stateBitDepthCompareShift, 3); got != uint32(vk.CompareOpGreater) {
		t.Fatalf("SetDepthCompare:\nhave %d\nwant %d", got, vk.CompareOpGreater)
	}

	s.SetCullMode(vk.CullModeBackBit)
	if got := s.cullMode(); got != vk.CullModeBackBit {
		t.Fatalf("SetCullMode(Back): cullMode:\nhave %v\nwant %v", got, vk.CullModeBackBit)
	}
	s.SetCullMode(vk.CullModeFrontAndBack)
	if got := s.cullMode(); got != vk.CullModeFrontAndBack {
		t.Fatalf("SetCullMode(FrontAndBack): cullMode:\nhave %v\nwant %v", got, vk.CullModeFrontAndBack)
	}

	s.SetTopology(vk.PrimitiveTopologyTriangleStrip)
	if got := s.topology(); got != vk.PrimitiveTopologyTriangleStrip {
		t.Fatalf("SetTopology: topology:\nhave %v\nwant %v", got, vk.PrimitiveTopologyTriangleStrip)
	}
}

func TestPipelineFingerprintDeterministic(t *testing.T) {
	k := pipelineKeyMaterial{
		programDigest: 42,
		compatibleRPHash: 7,
		subpassIndex: 1,
		attributes: []VertexAttribute{{Location: 0, Binding: 0, Format: vk.FormatR32g32b32Sfloat, Offset: 0}},
		bindings: []VertexBinding{{Binding: 0, Stride: 12, Rate: vk.VertexInputRateVertex}},
	}
	k.state.SetDepthTest(true)
	k.state.SetCullMode(vk.CullModeBackBit)

	a := pipelineFingerprint(k)
	b := pipelineFingerprint(k)
	if a != b {
		t.Fatalf("pipelineFingerprint not deterministic:\nhave %d\nwant %d", b, a)
	}

	k2 := k
	k2.subpassIndex = 2
	if pipelineFingerprint(k2) == a {
		t.Fatal("pipelineFingerprint did not change with subpassIndex")
	}

	k3 := k
	k3.blendConstantsUsed = true
	k3.blendConstants = [4]float32{1, 0, 0, 1}
	if pipelineFingerprint(k3) == a {
		t.Fatal("pipelineFingerprint did not change with blend constants")
	}
}

func TestVkBoolFrontFacePolygonMode(t *testing.T) {
	if vkBool(true) != vk.True || vkBool(false) != vk.False {
		t.Fatal("vkBool mapping is wrong")
	}
	if frontFace(true) != vk.FrontFaceCounterClockwise || frontFace(false) != vk.FrontFaceClockwise {
		t.Fatal("frontFace mapping is wrong")
	}
	if polygonMode(true) != vk.PolygonModeLine || polygonMode(false) != vk.PolygonModeFill {
		t.Fatal("polygonMode mapping is wrong")
	}
}

func TestPipelineFingerprintPatchControlPoints(t *testing.T) {
	base := pipelineKeyMaterial{programDigest: 1, compatibleRPHash: 2}
	a := pipelineFingerprint(base)
	base.patchControlPoints = 3
	if pipelineFingerprint(base) == a {
		t.Fatal("fingerprint did not move with patch control points")
	}
}

func TestBuildSpecInfo(t *testing.T) {
	if got := buildSpecInfo(nil, 0xFF); got != nil {
		t.Fatal("buildSpecInfo with no words should return nil")
	}
	if got := buildSpecInfo([]uint32{1, 2}, 0); got != nil {
		t.Fatal("buildSpecInfo with an empty mask should return nil")
	}

	si := buildSpecInfo([]uint32{7, 8, 9}, 0b101)
	if si == nil {
		t.Fatal("buildSpecInfo returned nil for a populated mask")
	}
	if si.MapEntryCount != 2 {
		t.Fatalf("spec map entries:\nhave %d\nwant 2 (bits 0 and 2)", si.MapEntryCount)
	}
	if si.PMapEntries[0].ConstantID != 0 || si.PMapEntries[1].ConstantID != 2 {
		t.Fatal("spec map entries did not follow the mask's set bits")
	}
	if si.DataSize != 8 {
		t.Fatalf("spec data size:\nhave %d\nwant 8", si.DataSize)
	}
}
