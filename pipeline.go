package vkcore

import (
	"hash/fnv"
	"math"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
)

// PipelineState packs all static render state into five 32-bit words so
// the pipeline fingerprint can hash it as raw integers and equality is
// a plain struct compare.
type PipelineState struct {
	Words [5]uint32
}

// Bit layout within Words[0]: static render state.
const (
	stateBitDepthTest = iota
	stateBitDepthWrite
	stateBitDepthCompareShift = 2 // 3 bits: vk.CompareOp
	stateBitBlendEnable = 5
	stateBitCullModeShift = 6 // 2 bits: none/front/back
	stateBitFrontFaceCCW = 8
	stateBitTopologyShift = 9 // 4 bits: vk.PrimitiveTopology
	stateBitWireframe = 13
	stateBitDepthBiasEnable = 14
	stateBitStencilEnable = 15
	stateBitPrimitiveRestart = 16
	stateBitAlphaToCoverage = 17
	stateBitAlphaToOne = 18
	stateBitSampleShading = 19
	stateBitConservativeRaster = 20
)

func (s *PipelineState) setBit(bit int, v bool) {
	if v {
		s.Words[0] |= 1 << bit
	} else {
		s.Words[0] &^= 1 << bit
	}
}
func (s *PipelineState) bit(bit int) bool { return s.Words[0]&(1<<bit) != 0 }

func (s *PipelineState) setBits(shift, width int, v uint32) {
	mask := uint32(1<<width-1) << shift
	s.Words[0] = (s.Words[0] &^ mask) | ((v << shift) & mask)
}
func (s *PipelineState) bits(shift, width int) uint32 {
	return (s.Words[0] >> shift) & (1<<width - 1)
}

func (s *PipelineState) SetDepthTest(v bool) { s.setBit(stateBitDepthTest, v) }
func (s *PipelineState) SetDepthWrite(v bool) { s.setBit(stateBitDepthWrite, v) }
func (s *PipelineState) SetDepthCompare(op vk.CompareOp) {
	s.setBits(stateBitDepthCompareShift, 3, uint32(op))
}
func (s *PipelineState) SetBlendEnable(v bool) { s.setBit(stateBitBlendEnable, v) }
func (s *PipelineState) SetCullMode(mode vk.CullModeFlagBits) {
	var v uint32
	switch mode {
	case vk.CullModeFrontBit:
		v = 1
	case vk.CullModeBackBit:
		v = 2
	case vk.CullModeFrontAndBack:
		v = 3
	}
	s.setBits(stateBitCullModeShift, 2, v)
}
func (s *PipelineState) SetFrontFaceCCW(v bool) { s.setBit(stateBitFrontFaceCCW, v) }
func (s *PipelineState) SetTopology(t vk.PrimitiveTopology) {
	s.setBits(stateBitTopologyShift, 4, uint32(t))
}
func (s *PipelineState) SetWireframe(v bool) { s.setBit(stateBitWireframe, v) }
func (s *PipelineState) SetDepthBiasEnable(v bool) { s.setBit(stateBitDepthBiasEnable, v) }
func (s *PipelineState) SetStencilEnable(v bool) { s.setBit(stateBitStencilEnable, v) }
func (s *PipelineState) SetPrimitiveRestart(v bool) { s.setBit(stateBitPrimitiveRestart, v) }
func (s *PipelineState) SetAlphaToCoverage(v bool) { s.setBit(stateBitAlphaToCoverage, v) }
func (s *PipelineState) SetAlphaToOne(v bool) { s.setBit(stateBitAlphaToOne, v) }
func (s *PipelineState) SetSampleShading(v bool) { s.setBit(stateBitSampleShading, v) }
func (s *PipelineState) SetConservativeRaster(v bool) { s.setBit(stateBitConservativeRaster, v) }

func (s *PipelineState) cullMode() vk.CullModeFlagBits {
	switch s.bits(stateBitCullModeShift, 2) {
	case 1:
		return vk.CullModeFrontBit
	case 2:
		return vk.CullModeBackBit
	case 3:
		return vk.CullModeFrontAndBack
	default:
		return vk.CullModeNone
	}
}

func (s *PipelineState) topology() vk.PrimitiveTopology {
	return vk.PrimitiveTopology(s.bits(stateBitTopologyShift, 4))
}

// VertexAttribute describes one vertex shader input attribute.
type VertexAttribute struct {
	Location uint32
	Binding uint32
	Format vk.Format
	Offset uint32
}

// VertexBinding describes the stride and input rate for one vertex
// buffer binding.
type VertexBinding struct {
	Binding uint32
	Stride uint32
	Rate vk.VertexInputRate
}

// pipelineKeyMaterial bundles everything that folds into the 64-bit
// pipeline fingerprint besides the packed PipelineState: the bound
// program's identity, the compatible render-pass hash, the subpass
// index, the vertex attribute/binding tables, spec-constant words,
// tessellation control points, and (conditionally) blend constants.
type pipelineKeyMaterial struct {
	state PipelineState
	programDigest uint64
	compatibleRPHash uint64
	subpassIndex uint32
	attributes []VertexAttribute
	bindings []VertexBinding
	specConstantWords []uint32
	blendConstants [4]float32
	blendConstantsUsed bool
	patchControlPoints uint32
}

// pipelineFingerprint is a pure function of the material above, so any
// two command buffers that reach identical extracted state compute the
// identical fingerprint and land on the same memoized pipeline.
func pipelineFingerprint(k pipelineKeyMaterial) uint64 {
	h := fnv.New64a()
	for _, w := range k.state.Words {
		writeUint32(h, w)
	}
	writeUint64(h, k.programDigest)
	writeUint64(h, k.compatibleRPHash)
	writeUint32(h, k.subpassIndex)
	for _, a := range k.attributes {
		writeUint32(h, a.Location)
		writeUint32(h, a.Binding)
		writeUint32(h, uint32(a.Format))
		writeUint32(h, a.Offset)
	}
	for _, b := range k.bindings {
		writeUint32(h, b.Binding)
		writeUint32(h, b.Stride)
		writeUint32(h, uint32(b.Rate))
	}
	for _, w := range k.specConstantWords {
		writeUint32(h, w)
	}
	if k.blendConstantsUsed {
		for _, f := range k.blendConstants {
			writeUint32(h, math.Float32bits(f))
		}
	}
	writeUint32(h, k.patchControlPoints)
	return h.Sum64()
}

// buildSpecInfo lowers the bound spec-constant words to a native
// vk.SpecializationInfo, one map entry per bit set in the program's
// spec-constant mask. Returns nil when the program declares none.
func buildSpecInfo(words []uint32, mask uint32) *vk.SpecializationInfo {
	if mask == 0 || len(words) == 0 {
		return nil
	}
	var entries []vk.SpecializationMapEntry
	data := make([]byte, 0, len(words)*4)
	for i := uint32(0); i < 32 && int(i) < len(words); i++ {
		if mask&(1<<i) == 0 {
			continue
		}
		entries = append(entries, vk.SpecializationMapEntry{
			ConstantID: i,
			Offset: uint32(len(data)),
			Size: 4,
		})
		w := words[i]
		data = append(data, byte(w), byte(w>>8), byte(w>>16), byte(w>>24))
	}
	if len(entries) == 0 {
		return nil
	}
	return &vk.SpecializationInfo{
		MapEntryCount: uint32(len(entries)),
		PMapEntries: entries,
		DataSize: uint(len(data)),
		PData: unsafe.Pointer(&data[0]),
	}
}

// buildComputePipeline lowers one compute shader plus optional spec info
// to a native pipeline.
func buildComputePipeline(device vk.Device, cache vk.PipelineCache, program *Program, specInfo *vk.SpecializationInfo) (vk.Pipeline, error) {
	sh := program.Shader(StageCompute)
	stage := vk.PipelineShaderStageCreateInfo{
		SType: vk.StructureTypePipelineShaderStageCreateInfo,
		Stage: vk.ShaderStageComputeBit,
		Module: sh.Module(),
		PName: safeString("main"),
	}
	if specInfo != nil {
		stage.PSpecializationInfo = []vk.SpecializationInfo{*specInfo}
	}

	info := vk.ComputePipelineCreateInfo{
		SType: vk.StructureTypeComputePipelineCreateInfo,
		Stage: stage,
		Layout: program.PipelineLayout(),
	}
	pipelines := make([]vk.Pipeline, 1)
	ret := vk.CreateComputePipelines(device, cache, 1, []vk.ComputePipelineCreateInfo{info}, nil, pipelines)
	if isError(ret) {
		return vk.NullPipeline, newError(ret)
	}
	return pipelines[0], nil
}

// graphicsPipelineBuildInfo is every piece of context a graphics
// pipeline build needs beyond the fingerprint material: render pass
// handle, color attachment count (to intersect against the program's
// render-target mask), and per-attachment write masks.
type graphicsPipelineBuildInfo struct {
	state PipelineState
	program *Program
	renderPass vk.RenderPass
	subpass uint32
	colorCount int
	writeMasks []vk.ColorComponentFlags // len == colorCount
	attributes []VertexAttribute
	bindings []VertexBinding
	specInfo map[ShaderStage]*vk.SpecializationInfo
	tessPatchControlPoints uint32
}

// buildGraphicsPipeline lowers the full graphics state to a native
// pipeline: dynamic viewport/scissor, blend attachments gated by the program's
// render-target mask and per-attachment write mask, depth-stencil from
// pass+static state, vertex input from the attribute/binding tables,
// rasterization (cull/front-face/wireframe/depth-bias-enable),
// multisample, optional tessellation, dynamic state list always
// including VIEWPORT+SCISSOR and conditionally DEPTH_BIAS/stencil
// states.
func buildGraphicsPipeline(device vk.Device, cache vk.PipelineCache, info graphicsPipelineBuildInfo) (vk.Pipeline, error) {
	var stages []vk.PipelineShaderStageCreateInfo
	for _, stage := range []ShaderStage{StageVertex, StageFragment} {
		sh := info.program.Shader(stage)
		if sh == nil {
			continue
		}
		s := vk.PipelineShaderStageCreateInfo{
			SType: vk.StructureTypePipelineShaderStageCreateInfo,
			Stage: stage.vk(),
			Module: sh.Module(),
			PName: safeString("main"),
		}
		if si, ok := info.specInfo[stage]; ok {
			s.PSpecializationInfo = si
		}
		stages = append(stages, s)
	}

	bindingDescs := make([]vk.VertexInputBindingDescription, len(info.bindings))
	for i, b := range info.bindings {
		bindingDescs[i] = vk.VertexInputBindingDescription{Binding: b.Binding, Stride: b.Stride, InputRate: b.Rate}
	}
	attrDescs := make([]vk.VertexInputAttributeDescription, len(info.attributes))
	for i, a := range info.attributes {
		attrDescs[i] = vk.VertexInputAttributeDescription{Location: a.Location, Binding: a.Binding, Format: a.Format, Offset: a.Offset}
	}
	vertexInput := vk.PipelineVertexInputStateCreateInfo{
		SType: vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount: uint32(len(bindingDescs)),
		PVertexBindingDescriptions: bindingDescs,
		VertexAttributeDescriptionCount: uint32(len(attrDescs)),
		PVertexAttributeDescriptions: attrDescs,
	}

	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType: vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology: info.state.topology(),
		PrimitiveRestartEnable: vkBool(info.state.bit(stateBitPrimitiveRestart)),
	}

	rasterization := vk.PipelineRasterizationStateCreateInfo{
		SType: vk.StructureTypePipelineRasterizationStateCreateInfo,
		CullMode: vk.CullModeFlags(info.state.cullMode()),
		FrontFace: frontFace(info.state.bit(stateBitFrontFaceCCW)),
		PolygonMode: polygonMode(info.state.bit(stateBitWireframe)),
		DepthBiasEnable: vkBool(info.state.bit(stateBitDepthBiasEnable)),
		DepthClampEnable: vk.False,
		RasterizerDiscardEnable: vk.False,
		LineWidth: 1.0,
	}

	multisample := vk.PipelineMultisampleStateCreateInfo{
		SType: vk.StructureTypePipelineMultisampleStateCreateInfo,
		RasterizationSamples: vk.SampleCount1Bit,
		AlphaToCoverageEnable: vkBool(info.state.bit(stateBitAlphaToCoverage)),
		AlphaToOneEnable: vkBool(info.state.bit(stateBitAlphaToOne)),
		SampleShadingEnable: vkBool(info.state.bit(stateBitSampleShading)),
		MinSampleShading: 1.0,
	}

	rtMask := info.program.Layout().RenderTargetMask
	blendAttachments := make([]vk.PipelineColorBlendAttachmentState, info.colorCount)
	for i := 0; i < info.colorCount; i++ {
		write := vk.ColorComponentFlags(vk.ColorComponentRBit) | vk.ColorComponentFlags(vk.ColorComponentGBit) |
			vk.ColorComponentFlags(vk.ColorComponentBBit) | vk.ColorComponentFlags(vk.ColorComponentABit)
		if i < len(info.writeMasks) {
			write = info.writeMasks[i]
		}
		if rtMask&(1<<i) == 0 {
			write = 0
		}
		blendAttachments[i] = vk.PipelineColorBlendAttachmentState{
			BlendEnable: vkBool(info.state.bit(stateBitBlendEnable)),
			ColorWriteMask: write,
		}
	}
	colorBlend := vk.PipelineColorBlendStateCreateInfo{
		SType: vk.StructureTypePipelineColorBlendStateCreateInfo,
		AttachmentCount: uint32(len(blendAttachments)),
		PAttachments: blendAttachments,
	}

	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType: vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable: vkBool(info.state.bit(stateBitDepthTest)),
		DepthWriteEnable: vkBool(info.state.bit(stateBitDepthWrite)),
		DepthCompareOp: vk.CompareOp(info.state.bits(stateBitDepthCompareShift, 3)),
		StencilTestEnable: vkBool(info.state.bit(stateBitStencilEnable)),
	}

	viewportState := vk.PipelineViewportStateCreateInfo{
		SType: vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount: 1,
	}

	dynamicStates := []vk.DynamicState{vk.DynamicStateViewport, vk.DynamicStateScissor}
	if info.state.bit(stateBitDepthBiasEnable) {
		dynamicStates = append(dynamicStates, vk.DynamicStateDepthBias)
	}
	if info.state.bit(stateBitStencilEnable) {
		dynamicStates = append(dynamicStates,
			vk.DynamicStateStencilCompareMask, vk.DynamicStateStencilReference, vk.DynamicStateStencilWriteMask)
	}
	dynamicState := vk.PipelineDynamicStateCreateInfo{
		SType: vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates: dynamicStates,
	}

	gfxInfo := vk.GraphicsPipelineCreateInfo{
		SType: vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount: uint32(len(stages)),
		PStages: stages,
		PVertexInputState: &vertexInput,
		PInputAssemblyState: &inputAssembly,
		PViewportState: &viewportState,
		PRasterizationState: &rasterization,
		PMultisampleState: &multisample,
		PColorBlendState: &colorBlend,
		PDepthStencilState: &depthStencil,
		PDynamicState: &dynamicState,
		Layout: info.program.PipelineLayout(),
		RenderPass: info.renderPass,
		Subpass: info.subpass,
	}
	if info.tessPatchControlPoints > 0 {
		tess := vk.PipelineTessellationStateCreateInfo{
			SType: vk.StructureTypePipelineTessellationStateCreateInfo,
			PatchControlPoints: info.tessPatchControlPoints,
		}
		gfxInfo.PTessellationState = &tess
	}

	pipelines := make([]vk.Pipeline, 1)
	ret := vk.CreateGraphicsPipelines(device, cache, 1, []vk.GraphicsPipelineCreateInfo{gfxInfo}, nil, pipelines)
	if isError(ret) {
		return vk.NullPipeline, newError(ret)
	}
	return pipelines[0], nil
}

func vkBool(v bool) vk.Bool32 {
	if v {
		return vk.True
	}
	return vk.False
}

func frontFace(ccw bool) vk.FrontFace {
	if ccw {
		return vk.FrontFaceCounterClockwise
	}
	return vk.FrontFaceClockwise
}

func polygonMode(wireframe bool) vk.PolygonMode {
	if wireframe {
		return vk.PolygonModeLine
	}
	return vk.PolygonModeFill
}
