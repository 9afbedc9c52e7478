package vkcore

import (
	"hash/fnv"

	vk "github.com/vulkan-go/vulkan"
)

// AttachmentOpFlags are the per-attachment clear/load/store bits that
// pack into a RenderPassInfo.
type AttachmentOpFlags uint32

const (
	AttachmentOpClear AttachmentOpFlags = 1 << iota
	AttachmentOpLoad
	AttachmentOpStore
	AttachmentOpDepthStencilClear
	AttachmentOpTransientLoad
	AttachmentOpTransientStore
)

// AttachmentInfo is one color or depth-stencil slot in a RenderPassInfo,
// carrying the view it renders into plus the bits needed to classify
// it (transient, swapchain-owned).
type AttachmentInfo struct {
	View *ImageView
	Transient bool
	Swapchain bool
}

// SubpassRole classifies how one attachment participates in a subpass:
// color, resolve, input, or depth. The layout-inference walk observes
// each attachment's role per subpass to pick its running layout.
type SubpassRole int

const (
	RoleUnused SubpassRole = iota
	RoleColor
	RoleResolve
	RoleInput
	RoleDepth
)

// SubpassInfo lists, for one subpass, the role every attachment index
// plays (RoleUnused if it doesn't participate), plus whether the depth
// attachment (if any) is read-only in this subpass.
type SubpassInfo struct {
	ColorAttachments []uint32
	ResolveAttachments []uint32
	InputAttachments []uint32
	DepthStencil bool
	DepthStencilReadOnly bool
}

// RenderPassInfo is the high-level description a native render pass,
// its subpass dependencies and its framebuffer are synthesized from.
type RenderPassInfo struct {
	Color []AttachmentInfo
	DepthStencil *AttachmentInfo

	OpFlags AttachmentOpFlags
	ClearMask uint32 // bit i set => Color[i] clears
	LoadMask uint32
	StoreMask uint32
	MultiviewMask uint32
	BaseLayer uint32
	NumLayers uint32

	// ClearColors[i] is consumed iff ClearMask has bit i set;
	// ClearDepth/ClearStencil iff OpFlags carries
	// AttachmentOpDepthStencilClear.
	ClearColors [8][4]float32
	ClearDepth float32
	ClearStencil uint32

	Subpasses []SubpassInfo
}

// defaultSubpass is used when Subpasses is empty: a single subpass that
// writes all color attachments and, if present, read-writes the depth
// attachment.
func (info *RenderPassInfo) defaultSubpass() SubpassInfo {
	sp := SubpassInfo{ColorAttachments: make([]uint32, len(info.Color))}
	for i := range info.Color {
		sp.ColorAttachments[i] = uint32(i)
	}
	sp.DepthStencil = info.DepthStencil != nil
	return sp
}

func (info *RenderPassInfo) subpasses() []SubpassInfo {
	if len(info.Subpasses) == 0 {
		return []SubpassInfo{info.defaultSubpass()}
	}
	return info.Subpasses
}

func (info *RenderPassInfo) attachment(i int) AttachmentInfo {
	if i < len(info.Color) {
		return info.Color[i]
	}
	return *info.DepthStencil
}

func (info *RenderPassInfo) attachmentCount() int {
	n := len(info.Color)
	if info.DepthStencil != nil {
		n++
	}
	return n
}

// depthIndex is the attachment index the depth/stencil slot occupies
// (always last), or -1 if there is none.
func (info *RenderPassInfo) depthIndex() int {
	if info.DepthStencil == nil {
		return -1
	}
	return len(info.Color)
}

func (info *RenderPassInfo) usesSwapchain() bool {
	for _, a := range info.Color {
		if a.Swapchain {
			return true
		}
	}
	return false
}

// views lists every attached ImageView in attachment-index order.
func (info *RenderPassInfo) views() []*ImageView {
	out := make([]*ImageView, 0, info.attachmentCount())
	for _, a := range info.Color {
		out = append(out, a.View)
	}
	if info.DepthStencil != nil {
		out = append(out, info.DepthStencil.View)
	}
	return out
}

// extent is the largest render area every attachment can cover: the
// minimum of the attached images' dimensions.
func (info *RenderPassInfo) extent() (width, height uint32) {
	width, height = ^uint32(0), ^uint32(0)
	for _, v := range info.views() {
		e := v.Image().Info().Extent
		if e.Width < width {
			width = e.Width
		}
		if e.Height < height {
			height = e.Height
		}
	}
	if width == ^uint32(0) {
		width, height = 0, 0
	}
	return width, height
}

// assembleClearValues produces the clear-value array vkCmdBeginRenderPass
// consumes: one color clear per attachment whose clear bit is set, and a
// depth-stencil clear when requested. Entries for non-cleared attachments
// are present but zero, since the array is indexed by attachment.
func assembleClearValues(info *RenderPassInfo) []vk.ClearValue {
	n := info.attachmentCount()
	values := make([]vk.ClearValue, n)
	for i := range info.Color {
		if info.ClearMask&(1<<i) != 0 && i < len(info.ClearColors) {
			c := info.ClearColors[i]
			values[i] = vk.NewClearValue([]float32{c[0], c[1], c[2], c[3]})
		}
	}
	if info.DepthStencil != nil && info.OpFlags&AttachmentOpDepthStencilClear != 0 {
		values[info.depthIndex()] = vk.NewClearDepthStencil(info.ClearDepth, info.ClearStencil)
	}
	return values
}

// describeAttachment builds one vk.AttachmentDescription: loadOp/storeOp
// derivation from the clear/load/store masks, with the transient and
// swapchain special cases layered on top.
func describeAttachment(idx int, a AttachmentInfo, info *RenderPassInfo, format vk.Format, samples vk.SampleCountFlagBits) vk.AttachmentDescription {
	clear := info.ClearMask&(1<<idx) != 0
	load := info.LoadMask&(1<<idx) != 0
	store := info.StoreMask&(1<<idx) != 0

	loadOp := vk.AttachmentLoadOpDontCare
	switch {
	case clear:
		loadOp = vk.AttachmentLoadOpClear
	case load:
		loadOp = vk.AttachmentLoadOpLoad
	}
	storeOp := vk.AttachmentStoreOpDontCare
	if store {
		storeOp = vk.AttachmentStoreOpStore
	}

	initial := vk.ImageLayoutUndefined
	final := vk.ImageLayoutUndefined

	if a.Transient {
		initial = vk.ImageLayoutUndefined
		if info.OpFlags&AttachmentOpTransientStore == 0 {
			storeOp = vk.AttachmentStoreOpDontCare
		}
	}
	if a.Swapchain {
		final = vk.ImageLayoutPresentSrc
		if load {
			initial = vk.ImageLayoutPresentSrc
		} else {
			initial = vk.ImageLayoutUndefined
		}
	} else if isDepthStencilFormat(format) {
		final = vk.ImageLayoutDepthStencilAttachmentOptimal
	} else {
		final = vk.ImageLayoutColorAttachmentOptimal
	}

	return vk.AttachmentDescription{
		Format: format,
		Samples: samples,
		LoadOp: loadOp,
		StoreOp: storeOp,
		StencilLoadOp: vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout: initial,
		FinalLayout: final,
	}
}

// layoutTracker carries the running layout of each attachment through
// the subpass walk, attachment by attachment.
type layoutTracker struct {
	current []vk.ImageLayout
	firstUse []bool
}

func newLayoutTracker(n int) *layoutTracker {
	lt := &layoutTracker{current: make([]vk.ImageLayout, n), firstUse: make([]bool, n)}
	for i := range lt.current {
		lt.current[i] = vk.ImageLayoutUndefined
	}
	return lt
}

// renderPassDependency is one synthesized vk.SubpassDependency plus the
// metadata needed to recompute full vs. compatible hashes.
type renderPassDependency struct {
	dep vk.SubpassDependency
}

// synthesizeDependencies walks the subpasses in order, producing the
// per-(subpass, attachment) layout table the attachment references bake
// in, plus the synthesized dependencies: self-dependencies for
// attachments used as both color/depth and input within the same
// subpass (feedback loops, which force the GENERAL layout), intra-pass
// BY_REGION dependencies between consecutive subpasses, and external
// dependencies for first-use layout transitions (including the implicit
// swapchain bottom-of-pipe one). layouts[subpass][attachment] is
// UNDEFINED for attachments the subpass does not use.
func synthesizeDependencies(info *RenderPassInfo, subpasses []SubpassInfo) ([]vk.SubpassDependency, [][]vk.ImageLayout) {
	n := info.attachmentCount()
	lt := newLayoutTracker(n)
	var deps []vk.SubpassDependency
	layouts := make([][]vk.ImageLayout, len(subpasses))
	for i := range layouts {
		layouts[i] = make([]vk.ImageLayout, n)
		for j := range layouts[i] {
			layouts[i][j] = vk.ImageLayoutUndefined
		}
	}

	roleOf := func(sp SubpassInfo, idx uint32) (SubpassRole, bool) {
		for _, c := range sp.ColorAttachments {
			if c == idx {
				return RoleColor, true
			}
		}
		for _, r := range sp.ResolveAttachments {
			if r == idx {
				return RoleResolve, true
			}
		}
		for _, in := range sp.InputAttachments {
			if in == idx {
				return RoleInput, true
			}
		}
		if sp.DepthStencil && int(idx) == info.depthIndex() {
			return RoleDepth, true
		}
		return RoleUnused, false
	}

	for spIdx, sp := range subpasses {
		usedAsWrite := map[uint32]bool{}
		usedAsInput := map[uint32]bool{}
		for _, c := range sp.ColorAttachments {
			usedAsWrite[c] = true
		}
		if sp.DepthStencil && !sp.DepthStencilReadOnly {
			usedAsWrite[uint32(info.depthIndex())] = true
		}
		for _, in := range sp.InputAttachments {
			usedAsInput[in] = true
		}

		for idx := uint32(0); idx < uint32(n); idx++ {
			role, used := roleOf(sp, idx)
			if !used {
				continue
			}
			var target vk.ImageLayout
			switch role {
			case RoleColor, RoleResolve:
				if usedAsInput[idx] {
					target = vk.ImageLayoutGeneral
				} else {
					target = vk.ImageLayoutColorAttachmentOptimal
				}
			case RoleDepth:
				if usedAsInput[idx] {
					target = vk.ImageLayoutGeneral
				} else if sp.DepthStencilReadOnly {
					target = vk.ImageLayoutDepthStencilReadOnlyOptimal
				} else {
					target = vk.ImageLayoutDepthStencilAttachmentOptimal
				}
			case RoleInput:
				if lt.current[idx] == vk.ImageLayoutGeneral {
					target = vk.ImageLayoutGeneral
				} else {
					target = vk.ImageLayoutShaderReadOnlyOptimal
				}
			}

			// Self-dependency: this attachment is both written and read
			// (as input) within the same subpass.
			if usedAsWrite[idx] && usedAsInput[idx] {
				deps = append(deps, vk.SubpassDependency{
					SrcSubpass: uint32(spIdx),
					DstSubpass: uint32(spIdx),
					SrcStageMask: vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
					DstStageMask: vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit),
					SrcAccessMask: vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
					DstAccessMask: vk.AccessFlags(vk.AccessInputAttachmentReadBit),
					DependencyFlags: vk.DependencyFlags(vk.DependencyByRegionBit),
				})
			}

			if !lt.firstUse[idx] {
				lt.firstUse[idx] = true
				a := info.attachment(int(idx))
				needsExternal := lt.current[idx] != target
				if a.Swapchain {
					deps = append(deps, vk.SubpassDependency{
						SrcSubpass: vk.SubpassExternal,
						DstSubpass: uint32(spIdx),
						SrcStageMask: vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit),
						DstStageMask: vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
						SrcAccessMask: 0,
						DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
						DependencyFlags: 0,
					})
				} else if needsExternal {
					deps = append(deps, vk.SubpassDependency{
						SrcSubpass: vk.SubpassExternal,
						DstSubpass: uint32(spIdx),
						SrcStageMask: vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit),
						DstStageMask: vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
						SrcAccessMask: 0,
						DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
						DependencyFlags: 0,
					})
				}
			} else if lt.current[idx] != target {
				deps = append(deps, vk.SubpassDependency{
					SrcSubpass: uint32(spIdx - 1),
					DstSubpass: uint32(spIdx),
					SrcStageMask: vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
					DstStageMask: vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit) | vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
					SrcAccessMask: vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
					DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentReadBit) | vk.AccessFlags(vk.AccessInputAttachmentReadBit),
					DependencyFlags: vk.DependencyFlags(vk.DependencyByRegionBit),
				})
			}
			lt.current[idx] = target
			layouts[spIdx][idx] = target
		}
	}
	return deps, layouts
}

// refLayout picks the walked layout for one (subpass, attachment)
// reference, falling back to the role's natural layout when the walk
// never touched the slot.
func refLayout(layouts [][]vk.ImageLayout, subpass int, attachment uint32, fallback vk.ImageLayout) vk.ImageLayout {
	if l := layouts[subpass][attachment]; l != vk.ImageLayoutUndefined {
		return l
	}
	return fallback
}

// RenderPass wraps the native object plus the two hashes
// define: compatible (pipeline-interchangeable) and full (cache key).
type RenderPass struct {
	handle vk.RenderPass
	compatibleHash uint64
	fullHash uint64
	colorCount int
	hasDepth bool
}

// renderPassCompatibleHash is the structural fingerprint sufficient for
// pipeline compatibility: attachment formats, sample counts, subpass
// structure, multiview mask, and the transient/swapchain bit-set.
// renderPassFullHash additionally folds in load/store/clear behavior and
// keys the actual native-object cache.
func renderPassCompatibleHash(info *RenderPassInfo, formats []vk.Format, samples []vk.SampleCountFlagBits, subpasses []SubpassInfo) uint64 {
	h := fnv.New64a()
	for i, f := range formats {
		writeUint32(h, uint32(f))
		writeUint32(h, uint32(samples[i]))
		var bits uint32
		if info.attachment(i).Transient {
			bits |= 1
		}
		if info.attachment(i).Swapchain {
			bits |= 2
		}
		writeUint32(h, bits)
	}
	for _, sp := range subpasses {
		writeUint32(h, uint32(len(sp.ColorAttachments)))
		for _, c := range sp.ColorAttachments {
			writeUint32(h, c)
		}
		for _, in := range sp.InputAttachments {
			writeUint32(h, in)
		}
		if sp.DepthStencil {
			writeUint32(h, 1)
		}
	}
	writeUint32(h, info.MultiviewMask)
	return h.Sum64()
}

func renderPassFullHash(info *RenderPassInfo, formats []vk.Format, samples []vk.SampleCountFlagBits, subpasses []SubpassInfo) uint64 {
	h := fnv.New64a()
	compat := renderPassCompatibleHash(info, formats, samples, subpasses)
	writeUint64(h, compat)
	writeUint32(h, info.ClearMask)
	writeUint32(h, info.LoadMask)
	writeUint32(h, info.StoreMask)
	writeUint32(h, uint32(info.OpFlags))
	return h.Sum64()
}

func writeUint32(h interface{ Write([]byte) (int, error) }, v uint32) {
	h.Write([]byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)})
}

func writeUint64(h interface{ Write([]byte) (int, error) }, v uint64) {
	h.Write([]byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24), byte(v >> 32), byte(v >> 40), byte(v >> 48), byte(v >> 56)})
}

// renderPassHashes computes both hashes for info without creating any
// native object, so Device.requestRenderPass can consult its cache
// before committing to a build.
func renderPassHashes(info *RenderPassInfo) (compatible, full uint64) {
	subpasses := info.subpasses()
	n := info.attachmentCount()
	formats := make([]vk.Format, n)
	samples := make([]vk.SampleCountFlagBits, n)
	for i := 0; i < n; i++ {
		a := info.attachment(i)
		formats[i] = a.View.Image().Info().Format
		samples[i] = a.View.Image().Info().Samples
	}
	return renderPassCompatibleHash(info, formats, samples, subpasses),
		renderPassFullHash(info, formats, samples, subpasses)
}

// buildRenderPass lowers a RenderPassInfo to a native vk.RenderPass. It
// does not itself cache; the Device's renderPassCache (device.go) is
// keyed by fullHash.
func buildRenderPass(device vk.Device, info *RenderPassInfo) (*RenderPass, error) {
	subpasses := info.subpasses()
	n := info.attachmentCount()
	formats := make([]vk.Format, n)
	samples := make([]vk.SampleCountFlagBits, n)
	descs := make([]vk.AttachmentDescription, n)

	for i := 0; i < n; i++ {
		a := info.attachment(i)
		format := a.View.Image().Info().Format
		smp := a.View.Image().Info().Samples
		formats[i] = format
		samples[i] = smp
		descs[i] = describeAttachment(i, a, info, format, smp)
	}

	// The layout walk decides what each reference bakes in: a plain
	// color write stays COLOR_ATTACHMENT_OPTIMAL, but a feedback
	// attachment (color and input in the same subpass) lands on GENERAL
	// for both references.
	deps, layouts := synthesizeDependencies(info, subpasses)

	nativeSubpasses := make([]vk.SubpassDescription, len(subpasses))
	// refs must outlive the loop building nativeSubpasses since Vulkan
	// create-info structs hold raw slice pointers.
	var allRefs [][]vk.AttachmentReference
	for i, sp := range subpasses {
		colorRefs := make([]vk.AttachmentReference, len(sp.ColorAttachments))
		for j, c := range sp.ColorAttachments {
			colorRefs[j] = vk.AttachmentReference{Attachment: c, Layout: refLayout(layouts, i, c, vk.ImageLayoutColorAttachmentOptimal)}
		}
		inputRefs := make([]vk.AttachmentReference, len(sp.InputAttachments))
		for j, in := range sp.InputAttachments {
			inputRefs[j] = vk.AttachmentReference{Attachment: in, Layout: refLayout(layouts, i, in, vk.ImageLayoutShaderReadOnlyOptimal)}
		}
		allRefs = append(allRefs, colorRefs, inputRefs)

		desc := vk.SubpassDescription{
			PipelineBindPoint: vk.PipelineBindPointGraphics,
			ColorAttachmentCount: uint32(len(colorRefs)),
			InputAttachmentCount: uint32(len(inputRefs)),
		}
		if len(colorRefs) > 0 {
			desc.PColorAttachments = colorRefs
		}
		if len(inputRefs) > 0 {
			desc.PInputAttachments = inputRefs
		}
		if sp.DepthStencil {
			fallback := vk.ImageLayoutDepthStencilAttachmentOptimal
			if sp.DepthStencilReadOnly {
				fallback = vk.ImageLayoutDepthStencilReadOnlyOptimal
			}
			ref := vk.AttachmentReference{
				Attachment: uint32(info.depthIndex()),
				Layout: refLayout(layouts, i, uint32(info.depthIndex()), fallback),
			}
			desc.PDepthStencilAttachment = &ref
		}
		nativeSubpasses[i] = desc
	}

	// An attachment whose first use already needs GENERAL (feedback)
	// cannot keep a non-UNDEFINED initial layout in another family.
	for idx := 0; idx < n; idx++ {
		for sp := range subpasses {
			l := layouts[sp][idx]
			if l == vk.ImageLayoutUndefined {
				continue
			}
			if l == vk.ImageLayoutGeneral && descs[idx].InitialLayout != vk.ImageLayoutUndefined {
				descs[idx].InitialLayout = vk.ImageLayoutGeneral
			}
			break
		}
	}

	var handle vk.RenderPass
	ret := vk.CreateRenderPass(device, &vk.RenderPassCreateInfo{
		SType: vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(n),
		PAttachments: descs,
		SubpassCount: uint32(len(nativeSubpasses)),
		PSubpasses: nativeSubpasses,
		DependencyCount: uint32(len(deps)),
		PDependencies: deps,
	}, nil, &handle)
	if isError(ret) {
		return nil, newError(ret)
	}

	depthCount := 0
	if info.DepthStencil != nil {
		depthCount = 1
	}
	return &RenderPass{
		handle: handle,
		compatibleHash: renderPassCompatibleHash(info, formats, samples, subpasses),
		fullHash: renderPassFullHash(info, formats, samples, subpasses),
		colorCount: len(info.Color),
		hasDepth: depthCount == 1,
	}, nil
}

// --- Framebuffer cache ---

// framebufferCacheEntry pairs a native framebuffer with the frame index
// it was last touched, backing a temporal LRU with a small retention
// ring.
type framebufferCacheEntry struct {
	framebuffer vk.Framebuffer
	lastUsed uint64
}

const framebufferRetentionFrames = 8

// framebufferCache is keyed by the compatible render-pass hash XORed
// with each attached view's cookie.
type framebufferCache struct {
	device vk.Device
	frame uint64
	byKey map[uint64]*framebufferCacheEntry
}

func newFramebufferCache(device vk.Device) *framebufferCache {
	return &framebufferCache{device: device, byKey: make(map[uint64]*framebufferCacheEntry)}
}

func framebufferKey(compatibleHash uint64, views []*ImageView) uint64 {
	key := compatibleHash
	for _, v := range views {
		key ^= uint64(v.Cookie())
	}
	return key
}

// beginFrame ages out entries untouched for framebufferRetentionFrames
// cycles. Expired native handles are appended to the current frame's
// destroy list by the caller (Device.NextFrameContext), not here.
func (c *framebufferCache) beginFrame() []vk.Framebuffer {
	var expired []vk.Framebuffer
	c.frame++
	for key, e := range c.byKey {
		if c.frame-e.lastUsed > framebufferRetentionFrames {
			expired = append(expired, e.framebuffer)
			delete(c.byKey, key)
		}
	}
	return expired
}

func (c *framebufferCache) get(key uint64) (vk.Framebuffer, bool) {
	e, ok := c.byKey[key]
	if !ok {
		return vk.NullFramebuffer, false
	}
	e.lastUsed = c.frame
	return e.framebuffer, true
}

func (c *framebufferCache) put(key uint64, fb vk.Framebuffer) {
	c.byKey[key] = &framebufferCacheEntry{framebuffer: fb, lastUsed: c.frame}
}

// buildFramebuffer synthesizes one vk.Framebuffer from a compatible
// render pass and its attachment views, at the given extent.
func buildFramebuffer(device vk.Device, rp vk.RenderPass, views []*ImageView, width, height, layers uint32) (vk.Framebuffer, error) {
	handles := make([]vk.ImageView, len(views))
	for i, v := range views {
		handles[i] = v.DefaultView()
	}
	var fb vk.Framebuffer
	ret := vk.CreateFramebuffer(device, &vk.FramebufferCreateInfo{
		SType: vk.StructureTypeFramebufferCreateInfo,
		RenderPass: rp,
		AttachmentCount: uint32(len(handles)),
		PAttachments: handles,
		Width: width,
		Height: height,
		Layers: layers,
	}, nil, &fb)
	if isError(ret) {
		return vk.NullFramebuffer, newError(ret)
	}
	return fb, nil
}

// transientAttachmentCache hands out recycled render-target Images,
// keyed by (width, height, format, samples, layers) since a transient
// attachment's contents never need to persist across uses.
type transientAttachmentKey struct {
	width, height, layers uint32
	format vk.Format
	samples vk.SampleCountFlagBits
}

type transientAttachmentCache struct {
	byKey map[transientAttachmentKey]*ImageView
}

func newTransientAttachmentCache() *transientAttachmentCache {
	return &transientAttachmentCache{byKey: make(map[transientAttachmentKey]*ImageView)}
}

func (c *transientAttachmentCache) get(key transientAttachmentKey) (*ImageView, bool) {
	view, ok := c.byKey[key]
	return view, ok
}

func (c *transientAttachmentCache) put(key transientAttachmentKey, view *ImageView) {
	c.byKey[key] = view
}
