package vkcore

import (
	"testing"

	vk "github.com/vulkan-go/vulkan"
)

func TestImageCreateInfoTiling(t *testing.T) {
	info := ImageCreateInfo{Domain: DomainDevice}
	tiling, layout := info.tiling()
	if tiling != vk.ImageTilingOptimal || layout != vk.ImageLayoutUndefined {
		t.Fatalf("device image tiling:\nhave %v/%v\nwant OPTIMAL/UNDEFINED", tiling, layout)
	}

	info.Domain = DomainHost
	tiling, layout = info.tiling()
	if tiling != vk.ImageTilingLinear || layout != vk.ImageLayoutPreinitialized {
		t.Fatalf("host image tiling:\nhave %v/%v\nwant LINEAR/PREINITIALIZED", tiling, layout)
	}
}

func TestImageCreateInfoFullMipLevels(t *testing.T) {
	cases := []struct {
		w, h uint32
		want uint32
	}{
		{1, 1, 1},
		{2, 2, 2},
		{256, 256, 9},
		{2048, 2048, 12},
		{2048, 1, 12},
		{640, 480, 10},
	}
	for _, tc := range cases {
		info := ImageCreateInfo{Extent: vk.Extent3D{Width: tc.w, Height: tc.h, Depth: 1}}
		if got := info.fullMipLevels(); got != tc.want {
			t.Errorf("fullMipLevels(%dx%d):\nhave %d\nwant %d", tc.w, tc.h, got, tc.want)
		}
	}
}

func TestPossibleStagesFromUsage(t *testing.T) {
	stages, access := possibleStagesFromUsage(vk.ImageUsageFlags(vk.ImageUsageSampledBit))
	if stages&vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit) == 0 {
		t.Fatal("sampled usage did not imply fragment-shader stage")
	}
	if access&vk.AccessFlags(vk.AccessShaderReadBit) == 0 {
		t.Fatal("sampled usage did not imply SHADER_READ access")
	}

	stages, access = possibleStagesFromUsage(vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit))
	if stages&vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit) == 0 ||
		stages&vk.PipelineStageFlags(vk.PipelineStageLateFragmentTestsBit) == 0 {
		t.Fatal("depth usage did not imply early+late fragment test stages")
	}
	if access&vk.AccessFlags(vk.AccessDepthStencilAttachmentWriteBit) == 0 {
		t.Fatal("depth usage did not imply attachment write access")
	}
}

func TestImageAspectClassification(t *testing.T) {
	if imageAspect(vk.FormatR8g8b8a8Unorm) != vk.ImageAspectFlags(vk.ImageAspectColorBit) {
		t.Fatal("color format should map to COLOR aspect")
	}
	if imageAspect(vk.FormatD32Sfloat) != vk.ImageAspectFlags(vk.ImageAspectDepthBit) {
		t.Fatal("depth format should map to DEPTH aspect")
	}
	combined := imageAspect(vk.FormatD24UnormS8Uint)
	if combined&vk.ImageAspectFlags(vk.ImageAspectDepthBit) == 0 || combined&vk.ImageAspectFlags(vk.ImageAspectStencilBit) == 0 {
		t.Fatal("combined depth-stencil format should map to DEPTH|STENCIL aspect")
	}

	if !isDepthStencilFormat(vk.FormatD16Unorm) || isDepthStencilFormat(vk.FormatR8g8b8a8Unorm) {
		t.Fatal("isDepthStencilFormat misclassified a format")
	}
	if !hasCombinedDepthStencil(vk.FormatD32SfloatS8Uint) || hasCombinedDepthStencil(vk.FormatD32Sfloat) {
		t.Fatal("hasCombinedDepthStencil misclassified a format")
	}
}

func TestFormatTexelSize(t *testing.T) {
	cases := []struct {
		format vk.Format
		want vk.DeviceSize
	}{
		{vk.FormatR8Unorm, 1},
		{vk.FormatD16Unorm, 2},
		{vk.FormatR8g8b8a8Unorm, 4},
		{vk.FormatR32g32Sfloat, 8},
		{vk.FormatR32g32b32a32Sfloat, 16},
	}
	for _, tc := range cases {
		if got := formatTexelSize(tc.format); got != tc.want {
			t.Errorf("formatTexelSize(%v):\nhave %d\nwant %d", tc.format, got, tc.want)
		}
	}
}

func TestImageViewVariantFallbacks(t *testing.T) {
	v := &ImageView{defaultView: vk.ImageView(1)}
	if v.Float() != vk.ImageView(1) || v.Integer() != vk.ImageView(1) {
		t.Fatal("view variants should fall back to the default view")
	}
	if v.DepthOnly() != vk.ImageView(1) || v.StencilOnly() != vk.ImageView(1) {
		t.Fatal("aux depth/stencil variants should fall back to the default view")
	}
	if v.RenderTargetLayer(3) != vk.ImageView(1) {
		t.Fatal("missing render-target layer should fall back to the default view")
	}

	v.unormView = vk.ImageView(2)
	if v.Integer() != vk.ImageView(2) {
		t.Fatal("Integer() should prefer the unorm-reinterpret view when present")
	}
	v.renderTargets = []vk.ImageView{vk.ImageView(5), vk.ImageView(6)}
	if v.RenderTargetLayer(1) != vk.ImageView(6) {
		t.Fatal("RenderTargetLayer did not index the per-layer array")
	}
}

func TestImageSwapchainOwnership(t *testing.T) {
	img := &Image{}
	if img.IsSwapchainOwned() {
		t.Fatal("image with UNDEFINED swapchainLayout reported swapchain-owned")
	}
	img.swapchainLayout = vk.ImageLayoutPresentSrc
	if !img.IsSwapchainOwned() {
		t.Fatal("image with a swapchain layout should report swapchain-owned")
	}
}
