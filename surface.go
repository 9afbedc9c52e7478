package vkcore

import vk "github.com/vulkan-go/vulkan"

// SurfaceProvider is the WSI collaborator vkcore consumes but never
// creates: instance/device creation and surface/swapchain setup stay
// outside this package, so the core depends only on this interface
// rather than importing a windowing toolkit directly. The platform
// package implements it over *glfw.Window.
type SurfaceProvider interface {
	// VulkanSurface creates (or returns the cached) vk.Surface for the
	// given instance.
	VulkanSurface(instance vk.Instance) (vk.Surface, error)
	// FramebufferSize reports the current drawable size in pixels.
	FramebufferSize() (width, height int)
	// RequiredInstanceExtensions lists the instance extensions the
	// surface toolkit needs enabled.
	RequiredInstanceExtensions() []string
}
