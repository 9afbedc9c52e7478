// Package platform wraps GLFW window/surface creation behind
// vkcore.SurfaceProvider, the external WSI collaborator vkcore's core
// package keeps out of its own import graph.
package platform

import (
	"fmt"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/vulkan-go/vulkan"
)

// Surface owns a GLFW window and lazily creates the vk.Surface backing
// it.
type Surface struct {
	window *glfw.Window
	surface vk.Surface
}

// NewSurface wraps an already-created GLFW window. GLFW initialization
// and window creation (glfw.Init, glfw.CreateWindow) stay the caller's
// responsibility.
func NewSurface(window *glfw.Window) *Surface {
	return &Surface{window: window}
}

// VulkanSurface creates the native surface on first call and caches
// it.
func (s *Surface) VulkanSurface(instance vk.Instance) (vk.Surface, error) {
	if s.surface != vk.NullSurface {
		return s.surface, nil
	}
	ret, err := s.window.CreateWindowSurface(instance, nil)
	if err != nil {
		return vk.NullSurface, fmt.Errorf("platform: create window surface: %w", err)
	}
	s.surface = vk.SurfaceFromPointer(ret)
	return s.surface, nil
}

// FramebufferSize reports the window's current drawable size in pixels.
func (s *Surface) FramebufferSize() (width, height int) {
	return s.window.GetFramebufferSize()
}

// RequiredInstanceExtensions lists the instance extensions GLFW needs
// to create a surface for this window.
func (s *Surface) RequiredInstanceExtensions() []string {
	return s.window.GetRequiredInstanceExtensions()
}

// Window exposes the underlying *glfw.Window for callers that need GLFW
// APIs this package doesn't wrap (input polling, resize callbacks).
func (s *Surface) Window() *glfw.Window { return s.window }
