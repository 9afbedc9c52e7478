package platform

import (
	"testing"

	vk "github.com/vulkan-go/vulkan"
)

func TestVulkanSurfaceCachesWithoutTouchingWindow(t *testing.T) {
	// A nil *glfw.Window would panic if VulkanSurface ever dereferenced
	// it; this only passes if the cached branch returns before doing so.
	s := &Surface{surface: vk.Surface(42)}
	got, err := s.VulkanSurface(vk.Instance(1))
	if err != nil {
		t.Fatalf("VulkanSurface on an already-cached surface returned an error: %v", err)
	}
	if got != vk.Surface(42) {
		t.Fatalf("VulkanSurface:\nhave %v\nwant the cached surface (42)", got)
	}
}
