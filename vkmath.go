package vkcore

import (
	"unsafe"

	lin "github.com/xlab/linmath"
)

// clipCorrection maps GL clip space onto Vulkan's: Y flipped, depth
// compressed from [-1, 1] to [0, 1]. Column-major, matching lin.Mat4x4.
var clipCorrection = lin.Mat4x4{
	{1, 0, 0, 0},
	{0, -1, 0, 0},
	{0, 0, 0.5, 0},
	{0, 0, 0.5, 1},
}

// CorrectedProjection writes clipCorrection * proj into dst, for
// callers whose projection matrix was authored against the GL
// convention, which is the common case for ported content.
func CorrectedProjection(dst, proj *lin.Mat4x4) {
	dst.Mult(&clipCorrection, proj)
}

// PushProjection clip-corrects proj and writes the result into the
// push-constant block at offset 0, the usual home of a camera matrix.
func (cb *CommandBuffer) PushProjection(proj *lin.Mat4x4) {
	var m lin.Mat4x4
	CorrectedProjection(&m, proj)
	cb.PushConstants(unsafe.Slice((*byte)(unsafe.Pointer(&m)), unsafe.Sizeof(m)))
}

// negateViewportHeight applies the same Y-flip at the viewport level
// instead of the projection level (VK_KHR_maintenance1 style), which is
// what CommandBuffer.BeginRenderPass uses by default since it avoids
// rewriting every draw call's projection matrix.
func negateViewportHeight(width, height, x, y float32) (vpY, vpHeight float32) {
	return y + height, -height
}
