package vkcore

import (
	"testing"

	vk "github.com/vulkan-go/vulkan"
)

func TestRenderPassInfoSubpasses(t *testing.T) {
	info := &RenderPassInfo{Color: []AttachmentInfo{{}, {}}}
	sps := info.subpasses()
	if len(sps) != 1 {
		t.Fatalf("subpasses() with none configured:\nhave %d\nwant 1", len(sps))
	}
	if len(sps[0].ColorAttachments) != 2 {
		t.Fatalf("defaultSubpass: ColorAttachments:\nhave %d\nwant 2", len(sps[0].ColorAttachments))
	}

	custom := []SubpassInfo{{ColorAttachments: []uint32{0}}}
	info.Subpasses = custom
	if got := info.subpasses(); len(got) != 1 || len(got[0].ColorAttachments) != 1 {
		t.Fatal("subpasses() did not return the explicitly configured list")
	}
}

func TestRenderPassInfoAttachmentCountAndDepthIndex(t *testing.T) {
	info := &RenderPassInfo{Color: []AttachmentInfo{{}, {}}}
	if n := info.attachmentCount(); n != 2 {
		t.Fatalf("attachmentCount without depth:\nhave %d\nwant 2", n)
	}
	if idx := info.depthIndex(); idx != -1 {
		t.Fatalf("depthIndex without depth:\nhave %d\nwant -1", idx)
	}

	info.DepthStencil = &AttachmentInfo{}
	if n := info.attachmentCount(); n != 3 {
		t.Fatalf("attachmentCount with depth:\nhave %d\nwant 3", n)
	}
	if idx := info.depthIndex(); idx != 2 {
		t.Fatalf("depthIndex with depth:\nhave %d\nwant 2", idx)
	}
	if got := info.attachment(2); got != *info.DepthStencil {
		t.Fatal("attachment(depthIndex) did not return the depth attachment")
	}
}

func TestRenderPassHashesExcludeOrIncludeOps(t *testing.T) {
	info := &RenderPassInfo{Color: []AttachmentInfo{{}}}
	formats := []vk.Format{vk.FormatR8g8b8a8Unorm}
	samples := []vk.SampleCountFlagBits{vk.SampleCount1Bit}
	subpasses := info.subpasses()

	baseCompat := renderPassCompatibleHash(info, formats, samples, subpasses)
	baseFull := renderPassFullHash(info, formats, samples, subpasses)

	// Changing load/store/clear masks must not move the compatible hash...
	info.ClearMask = 1
	info.StoreMask = 1
	if got := renderPassCompatibleHash(info, formats, samples, subpasses); got != baseCompat {
		t.Fatalf("compatible hash changed with clear/store masks:\nhave %d\nwant %d", got, baseCompat)
	}
	// ...but must move the full hash.
	if got := renderPassFullHash(info, formats, samples, subpasses); got == baseFull {
		t.Fatal("full hash did not change with clear/store masks")
	}

	// Changing the attachment format must move both.
	info2 := &RenderPassInfo{Color: []AttachmentInfo{{}}}
	formats2 := []vk.Format{vk.FormatR8g8b8a8Srgb}
	if got := renderPassCompatibleHash(info2, formats2, samples, subpasses); got == baseCompat {
		t.Fatal("compatible hash did not change with attachment format")
	}
}

func TestSynthesizeDependenciesSwapchainExternal(t *testing.T) {
	info := &RenderPassInfo{Color: []AttachmentInfo{{Swapchain: true}}}
	subpasses := info.subpasses()
	deps, _ := synthesizeDependencies(info, subpasses)
	if len(deps) != 1 {
		t.Fatalf("synthesizeDependencies for a single swapchain color pass:\nhave %d deps\nwant 1", len(deps))
	}
	d := deps[0]
	if d.SrcSubpass != vk.SubpassExternal || d.DstSubpass != 0 {
		t.Fatalf("swapchain dependency: src/dst:\nhave %d/%d\nwant EXTERNAL/0", d.SrcSubpass, d.DstSubpass)
	}
}

func TestSynthesizeDependenciesSelfFeedback(t *testing.T) {
	info := &RenderPassInfo{
		Color: []AttachmentInfo{{}},
		Subpasses: []SubpassInfo{
			{ColorAttachments: []uint32{0}, InputAttachments: []uint32{0}},
		},
	}
	deps, layouts := synthesizeDependencies(info, info.subpasses())
	var sawSelf bool
	for _, d := range deps {
		if d.SrcSubpass == 0 && d.DstSubpass == 0 {
			sawSelf = true
		}
	}
	if !sawSelf {
		t.Fatal("expected a self-dependency for an attachment used as both color and input in one subpass")
	}
	if layouts[0][0] != vk.ImageLayoutGeneral {
		t.Fatalf("feedback attachment layout:\nhave %v\nwant GENERAL", layouts[0][0])
	}
}

func TestSynthesizeDependenciesLayoutTable(t *testing.T) {
	info := &RenderPassInfo{
		Color: []AttachmentInfo{{}, {}},
		DepthStencil: &AttachmentInfo{},
		Subpasses: []SubpassInfo{
			{ColorAttachments: []uint32{0, 1}, DepthStencil: true},
			{ColorAttachments: []uint32{1}, InputAttachments: []uint32{0}, DepthStencil: true, DepthStencilReadOnly: true},
		},
	}
	_, layouts := synthesizeDependencies(info, info.subpasses())

	if layouts[0][0] != vk.ImageLayoutColorAttachmentOptimal || layouts[0][1] != vk.ImageLayoutColorAttachmentOptimal {
		t.Fatal("first subpass color writes should land on COLOR_ATTACHMENT_OPTIMAL")
	}
	if layouts[0][2] != vk.ImageLayoutDepthStencilAttachmentOptimal {
		t.Fatal("first subpass depth write should land on DEPTH_STENCIL_ATTACHMENT_OPTIMAL")
	}
	if layouts[1][0] != vk.ImageLayoutShaderReadOnlyOptimal {
		t.Fatalf("input-only use in the second subpass:\nhave %v\nwant SHADER_READ_ONLY_OPTIMAL", layouts[1][0])
	}
	if layouts[1][2] != vk.ImageLayoutDepthStencilReadOnlyOptimal {
		t.Fatal("read-only depth in the second subpass should land on DEPTH_STENCIL_READ_ONLY_OPTIMAL")
	}

	// refLayout prefers the walked layout and falls back only when a
	// slot stayed UNDEFINED.
	if refLayout(layouts, 1, 1, vk.ImageLayoutGeneral) != vk.ImageLayoutColorAttachmentOptimal {
		t.Fatal("refLayout did not prefer the walked layout over the fallback")
	}
	empty := [][]vk.ImageLayout{{vk.ImageLayoutUndefined}}
	if refLayout(empty, 0, 0, vk.ImageLayoutShaderReadOnlyOptimal) != vk.ImageLayoutShaderReadOnlyOptimal {
		t.Fatal("refLayout did not fall back for an untouched slot")
	}
}

func TestFramebufferKeyAndCacheAging(t *testing.T) {
	a := &ImageView{cookie: Cookie(1)}
	b := &ImageView{cookie: Cookie(2)}

	k1 := framebufferKey(100, []*ImageView{a, b})
	k2 := framebufferKey(100, []*ImageView{a, b})
	if k1 != k2 {
		t.Fatal("framebufferKey is not deterministic for the same views")
	}
	k3 := framebufferKey(100, []*ImageView{a})
	if k3 == k1 {
		t.Fatal("framebufferKey did not change when a view was dropped")
	}

	var dev vk.Device
	c := newFramebufferCache(dev)
	c.put(k1, vk.Framebuffer(1))
	if fb, ok := c.get(k1); !ok || fb != vk.Framebuffer(1) {
		t.Fatal("framebufferCache.get after put failed")
	}
	for i := 0; i < framebufferRetentionFrames; i++ {
		c.beginFrame()
	}
	expired := c.beginFrame()
	if len(expired) != 1 || expired[0] != vk.Framebuffer(1) {
		t.Fatalf("expected the stale entry to age out:\nhave %v", expired)
	}
	if _, ok := c.get(k1); ok {
		t.Fatal("aged-out entry is still present in the cache")
	}
}

func TestTransientAttachmentCache(t *testing.T) {
	c := newTransientAttachmentCache()
	key := transientAttachmentKey{width: 256, height: 256, layers: 1, format: vk.FormatR8g8b8a8Unorm, samples: vk.SampleCount1Bit}
	if _, ok := c.get(key); ok {
		t.Fatal("get on empty cache returned ok=true")
	}
	view := &ImageView{cookie: Cookie(5)}
	c.put(key, view)
	got, ok := c.get(key)
	if !ok || got != view {
		t.Fatal("get after put did not return the stored view")
	}
}

func testAttachmentView(format vk.Format, width, height uint32) *ImageView {
	img := &Image{info: ImageCreateInfo{
		Format: format,
		Extent: vk.Extent3D{Width: width, Height: height, Depth: 1},
		Levels: 1, Layers: 1, Samples: vk.SampleCount1Bit,
	}}
	return &ImageView{image: NewHandle(img)}
}

func TestRenderPassInfoExtentAndViews(t *testing.T) {
	info := &RenderPassInfo{
		Color: []AttachmentInfo{{View: testAttachmentView(vk.FormatR8g8b8a8Unorm, 800, 600)}},
		DepthStencil: &AttachmentInfo{View: testAttachmentView(vk.FormatD32Sfloat, 640, 480)},
	}
	if got := len(info.views()); got != 2 {
		t.Fatalf("views():\nhave %d\nwant 2", got)
	}
	w, h := info.extent()
	if w != 640 || h != 480 {
		t.Fatalf("extent() should be the per-attachment minimum:\nhave %dx%d\nwant 640x480", w, h)
	}
}

func TestRenderPassInfoUsesSwapchain(t *testing.T) {
	info := &RenderPassInfo{Color: []AttachmentInfo{{}}}
	if info.usesSwapchain() {
		t.Fatal("usesSwapchain true with no swapchain attachment")
	}
	info.Color = append(info.Color, AttachmentInfo{Swapchain: true})
	if !info.usesSwapchain() {
		t.Fatal("usesSwapchain false with a swapchain attachment present")
	}
}

func TestRenderPassHashesFromViews(t *testing.T) {
	mk := func() *RenderPassInfo {
		return &RenderPassInfo{
			Color: []AttachmentInfo{{View: testAttachmentView(vk.FormatB8g8r8a8Unorm, 256, 256)}},
		}
	}
	a := mk()
	b := mk()
	aCompat, aFull := renderPassHashes(a)
	bCompat, bFull := renderPassHashes(b)
	if aCompat != bCompat || aFull != bFull {
		t.Fatal("renderPassHashes differ for structurally identical infos")
	}

	b.ClearMask = 1
	bCompat, bFull = renderPassHashes(b)
	if bCompat != aCompat {
		t.Fatal("compatible hash moved with the clear mask")
	}
	if bFull == aFull {
		t.Fatal("full hash did not move with the clear mask")
	}
}

func TestAssembleClearValues(t *testing.T) {
	info := &RenderPassInfo{
		Color: []AttachmentInfo{
			{View: testAttachmentView(vk.FormatB8g8r8a8Unorm, 64, 64)},
			{View: testAttachmentView(vk.FormatB8g8r8a8Unorm, 64, 64)},
		},
		DepthStencil: &AttachmentInfo{View: testAttachmentView(vk.FormatD32Sfloat, 64, 64)},
		ClearMask: 0b01,
		OpFlags: AttachmentOpDepthStencilClear,
		ClearDepth: 1,
	}
	info.ClearColors[0] = [4]float32{0.1, 0.2, 0.3, 1}

	values := assembleClearValues(info)
	if len(values) != 3 {
		t.Fatalf("assembleClearValues length:\nhave %d\nwant 3 (one slot per attachment)", len(values))
	}
}
