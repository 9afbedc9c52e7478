package vkcore

import (
	"hash/fnv"
	"sync"

	vk "github.com/vulkan-go/vulkan"
)

// ShaderStage enumerates the pipeline stages a Shader may occupy. Kept
// small and explicit rather than reusing vk.ShaderStageFlagBits
// directly so ProgramLayout's stage-visibility masks stay a plain
// vk.ShaderStageFlags indexed by this type.
type ShaderStage int

const (
	StageVertex ShaderStage = iota
	StageFragment
	StageCompute
	stageCount
)

func (s ShaderStage) vk() vk.ShaderStageFlagBits {
	switch s {
	case StageVertex:
		return vk.ShaderStageVertexBit
	case StageFragment:
		return vk.ShaderStageFragmentBit
	default:
		return vk.ShaderStageComputeBit
	}
}

// MaxDescriptorSets is how many descriptor sets a shader's reflection
// and a program's pipeline layout can address.
const MaxDescriptorSets = 8

// DescriptorSetBindings is one descriptor set's slice of a shader's
// reflection: per-kind binding masks plus array sizes.
type DescriptorSetBindings struct {
	SampledImageMask uint32
	StorageImageMask uint32
	UniformBufferMask uint32
	StorageBufferMask uint32
	SampledBufferMask uint32
	InputAttachmentMask uint32
	SamplerMask uint32
	SeparateImageMask uint32
	FPMask uint32 // floating-point-aspect mask, vs. integer

	ArraySizes [32]uint8
}

// bindingMask is the union of every occupied binding slot in the set.
func (b DescriptorSetBindings) bindingMask() uint32 {
	return b.SampledImageMask | b.StorageImageMask | b.UniformBufferMask |
		b.StorageBufferMask | b.SampledBufferMask | b.InputAttachmentMask |
		b.SamplerMask | b.SeparateImageMask
}

// ResourceLayout is the reflection summary of one SPIR-V module:
// per-set binding masks for every resource kind plus array sizes,
// push-constant size, spec-constant mask, and the two stage-specific
// masks (vertex input attributes, fragment render targets). vkcore does
// not ship a SPIR-V parser; callers supply a ResourceLayout alongside
// the bytecode the way a build step would.
type ResourceLayout struct {
	Sets [MaxDescriptorSets]DescriptorSetBindings

	PushConstantSize uint32
	SpecConstantMask uint32

	// InputAttributeMask is only meaningful for StageVertex.
	InputAttributeMask uint32
	// RenderTargetMask is only meaningful for StageFragment.
	RenderTargetMask uint32

	// BindlessSetMask has bit i set when set i is a runtime-sized
	// (update-after-bind) array set.
	BindlessSetMask uint32
}

// Shader is SPIR-V bytecode plus its reflected layout. Shaders are
// immutable after creation; destruction is deferred to a frame
// boundary.
type Shader struct {
	refCount

	cookie Cookie
	device vk.Device

	digest uint64
	stage ShaderStage
	layout ResourceLayout
	module vk.ShaderModule
}

func (s *Shader) Cookie() Cookie { return s.cookie }
func (s *Shader) Digest() uint64 { return s.digest }
func (s *Shader) Stage() ShaderStage { return s.stage }
func (s *Shader) Layout() ResourceLayout { return s.layout }
func (s *Shader) Module() vk.ShaderModule { return s.module }

// hashSPIRV digests the raw SPIR-V bytes. FNV-1a, the same
// non-cryptographic fingerprint style used for every other hash in
// this package.
func hashSPIRV(code []byte) uint64 {
	h := fnv.New64a()
	h.Write(code)
	return h.Sum64()
}

// ProgramLayout is the per-set union of a Program's per-stage
// ResourceLayouts: a combined descriptor-set mask, per-(set,binding)
// stage-visibility masks, the combined push-constant range, and the
// combined spec-constant mask.
type ProgramLayout struct {
	DescriptorSetMask uint32
	// StageVisibility[set][binding] is the OR of every stage's
	// ShaderStageFlagBits that references that binding.
	StageVisibility [MaxDescriptorSets][32]vk.ShaderStageFlags

	SetLayout [MaxDescriptorSets]DescriptorSetBindings

	PushConstantSize uint32
	PushConstantStages vk.ShaderStageFlags
	SpecConstantMask uint32

	RenderTargetMask uint32
	InputAttributeMask uint32
	BindlessSetMask uint32
}

// buildProgramLayout unions the per-stage layouts set by set, asserting
// that the stages agree on array sizes. A set lands in
// DescriptorSetMask only when some stage actually binds into it.
func buildProgramLayout(shaders map[ShaderStage]*Shader) ProgramLayout {
	var layout ProgramLayout
	for stage, sh := range shaders {
		rl := sh.layout
		for set := 0; set < MaxDescriptorSets; set++ {
			sb := rl.Sets[set]
			combined := &layout.SetLayout[set]
			combined.SampledImageMask |= sb.SampledImageMask
			combined.StorageImageMask |= sb.StorageImageMask
			combined.UniformBufferMask |= sb.UniformBufferMask
			combined.StorageBufferMask |= sb.StorageBufferMask
			combined.SampledBufferMask |= sb.SampledBufferMask
			combined.InputAttachmentMask |= sb.InputAttachmentMask
			combined.SamplerMask |= sb.SamplerMask
			combined.SeparateImageMask |= sb.SeparateImageMask
			combined.FPMask |= sb.FPMask
			for i, n := range sb.ArraySizes {
				if n != 0 {
					assertf(combined.ArraySizes[i] == 0 || combined.ArraySizes[i] == n,
						"vkcore: shader stage %v disagrees on array size at set %d binding %d", stage, set, i)
					combined.ArraySizes[i] = n
				}
			}

			active := sb.bindingMask()
			if active != 0 {
				layout.DescriptorSetMask |= 1 << set
			}
			for b := 0; b < 32; b++ {
				if active&(1<<b) != 0 {
					layout.StageVisibility[set][b] |= vk.ShaderStageFlags(stage.vk())
				}
			}
		}

		if rl.PushConstantSize > layout.PushConstantSize {
			layout.PushConstantSize = rl.PushConstantSize
		}
		if rl.PushConstantSize > 0 {
			layout.PushConstantStages |= vk.ShaderStageFlags(stage.vk())
		}
		layout.SpecConstantMask |= rl.SpecConstantMask
		layout.BindlessSetMask |= rl.BindlessSetMask
		if stage == StageVertex {
			layout.InputAttributeMask = rl.InputAttributeMask
		}
		if stage == StageFragment {
			layout.RenderTargetMask = rl.RenderTargetMask
		}
	}
	return layout
}

// Program is a fixed stage-to-Shader map plus its combined
// ProgramLayout. The pipelines map memoizes every pipeline variant
// ever built for this program, keyed by fingerprint, so a variant
// built for one command buffer is reused by all.
type Program struct {
	refCount

	cookie Cookie
	device vk.Device

	shaders map[ShaderStage]*Shader
	layout ProgramLayout

	pipelineLayout vk.PipelineLayout
	setLayouts [MaxDescriptorSets]vk.DescriptorSetLayout

	mu sync.Mutex
	pipelines map[uint64]vk.Pipeline
	isCompute bool
}

func (p *Program) Cookie() Cookie { return p.cookie }
func (p *Program) Layout() ProgramLayout { return p.layout }
func (p *Program) PipelineLayout() vk.PipelineLayout { return p.pipelineLayout }
func (p *Program) IsCompute() bool { return p.isCompute }
func (p *Program) Shader(stage ShaderStage) *Shader { return p.shaders[stage] }

// lookupPipeline resolves a fingerprint to its memoized handle,
// guarded by the program's own lock rather than the device lock so
// draw-time lookups never contend with resource creation.
func (p *Program) lookupPipeline(fingerprint uint64) (vk.Pipeline, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pipe, ok := p.pipelines[fingerprint]
	return pipe, ok
}

func (p *Program) storePipeline(fingerprint uint64, pipe vk.Pipeline) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pipelines == nil {
		p.pipelines = make(map[uint64]vk.Pipeline)
	}
	p.pipelines[fingerprint] = pipe
}

// destroyPipelines tears down every memoized pipeline plus the pipeline
// layout, called from frameContext.drainDestroyLists once the
// Program's ref count reaches zero and its destruction has been
// deferred to a frame boundary. It does not touch p.setLayouts: those
// handles are owned by the device's descriptor-set-allocator registry,
// shared across every program with an identically-shaped set, and are
// torn down once with that registry rather than per program.
func (p *Program) destroyPipelines(device vk.Device) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, pipe := range p.pipelines {
		vk.DestroyPipeline(device, pipe, nil)
	}
	p.pipelines = nil
	if p.pipelineLayout != vk.NullPipelineLayout {
		vk.DestroyPipelineLayout(device, p.pipelineLayout, nil)
	}
}
