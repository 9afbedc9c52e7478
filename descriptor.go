package vkcore

import (
	"hash/fnv"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"

	"github.com/andewx/vkcore/internal/bitset"
)

// descriptorSetAge names the two generations of the temporal cache:
// two bucket arrays (current/previous); beginFrame swaps them and
// clears the now-previous; lookups check both; inserts always land in
// current.
type descriptorSetAge int

const (
	ageCurrent descriptorSetAge = iota
	agePrevious
)

// descriptorSetEntry is one temporal-hashmap slot: a cached set handle
// plus which pool it was plucked from (so recycling the pool's
// vacant-bin bookkeeping stays correct).
type descriptorSetEntry struct {
	set vk.DescriptorSet
	pool int
}

// descriptorPool is one native vk.DescriptorPool of a fixed 16-set
// capacity: on a cache miss one of its sets is plucked from the
// vacant bin, and a fresh pool is created once every existing one is
// exhausted.
const descriptorsPerPool = 16

type descriptorPool struct {
	handle vk.DescriptorPool
	vacant []vk.DescriptorSet
}

// descriptorSetAllocator exists once per unique (descriptor-set-layout
// shape, per-binding stage-visibility) pair. Per-thread state is the
// temporal hashmap; bindless sets (runtime-sized arrays) skip the
// cache entirely.
type descriptorSetAllocator struct {
	device vk.Device
	setLayout vk.DescriptorSetLayout
	bindings []vk.DescriptorSetLayoutBinding
	bindless bool

	// perThread[threadIndex] is the current generation of the hashmap
	// described above; previous[threadIndex] is the generation before it.
	perThread []map[uint64]descriptorSetEntry
	previous []map[uint64]descriptorSetEntry
	pools [][]*descriptorPool // pools[threadIndex]

	// bindlessBlocks backs the no-cache path: a factory for oversized
	// pools and variable-count allocations, keyed only by requested
	// array length since there is nothing else to hash. Each block
	// batches bindlessBlockSize sets into one native pool and tracks
	// which slots are handed out with a bitset rather than allocating a
	// fresh single-set pool per call.
	bindlessBlocks map[uint32][]*bindlessBlock
}

// bindlessBlockSize is how many variable-count descriptor sets one
// native vk.DescriptorPool batches for a given array length, amortizing
// pool creation the way the fixed-size descriptorPool does for
// non-bindless sets (descriptorsPerPool).
const bindlessBlockSize = 16

type bindlessBlock struct {
	pool vk.DescriptorPool
	sets []vk.DescriptorSet
	occ *bitset.Set
	// age counts beginFrame generations since the block last handed a
	// set out; at two generations the GPU is past every user and the
	// whole block recycles.
	age int
}

func newDescriptorSetAllocator(device vk.Device, layout vk.DescriptorSetLayout, bindings []vk.DescriptorSetLayoutBinding, bindless bool, threadCount int) *descriptorSetAllocator {
	a := &descriptorSetAllocator{
		device: device,
		setLayout: layout,
		bindings: bindings,
		bindless: bindless,
	}
	if bindless {
		a.bindlessBlocks = make(map[uint32][]*bindlessBlock)
		return a
	}
	a.perThread = make([]map[uint64]descriptorSetEntry, threadCount)
	a.previous = make([]map[uint64]descriptorSetEntry, threadCount)
	a.pools = make([][]*descriptorPool, threadCount)
	for t := range a.perThread {
		a.perThread[t] = make(map[uint64]descriptorSetEntry)
		a.previous[t] = make(map[uint64]descriptorSetEntry)
	}
	return a
}

// beginFrame ages current into previous -- called from
// Device.NextFrameContext for every live allocator in the registry.
func (a *descriptorSetAllocator) beginFrame(threadIndex int) {
	if a.bindless {
		// Bindless blocks are not per-thread; age them once per frame.
		if threadIndex != 0 {
			return
		}
		for _, blocks := range a.bindlessBlocks {
			for _, blk := range blocks {
				blk.age++
				if blk.age >= 2 && blk.occ.Rem() < blk.occ.Len() {
					blk.occ.Clear()
				}
			}
		}
		return
	}
	a.previous[threadIndex] = a.perThread[threadIndex]
	a.perThread[threadIndex] = make(map[uint64]descriptorSetEntry, len(a.previous[threadIndex]))
}

func (a *descriptorSetAllocator) poolTypes() []vk.DescriptorPoolSize {
	counts := map[vk.DescriptorType]uint32{}
	for _, b := range a.bindings {
		counts[b.DescriptorType] += b.DescriptorCount * descriptorsPerPool
	}
	sizes := make([]vk.DescriptorPoolSize, 0, len(counts))
	for t, c := range counts {
		sizes = append(sizes, vk.DescriptorPoolSize{Type: t, DescriptorCount: c})
	}
	return sizes
}

func (a *descriptorSetAllocator) newPool(threadIndex int) (*descriptorPool, error) {
	var handle vk.DescriptorPool
	ret := vk.CreateDescriptorPool(a.device, &vk.DescriptorPoolCreateInfo{
		SType: vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets: descriptorsPerPool,
		PoolSizeCount: uint32(len(a.poolTypes())),
		PPoolSizes: a.poolTypes(),
	}, nil, &handle)
	if isError(ret) {
		return nil, newError(ret)
	}
	layouts := make([]vk.DescriptorSetLayout, descriptorsPerPool)
	for i := range layouts {
		layouts[i] = a.setLayout
	}
	sets := make([]vk.DescriptorSet, descriptorsPerPool)
	ret = vk.AllocateDescriptorSets(a.device, &vk.DescriptorSetAllocateInfo{
		SType: vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool: handle,
		DescriptorSetCount: descriptorsPerPool,
		PSetLayouts: layouts,
	}, &sets[0])
	if isError(ret) {
		vk.DestroyDescriptorPool(a.device, handle, nil)
		return nil, newError(ret)
	}
	p := &descriptorPool{handle: handle, vacant: sets}
	a.pools[threadIndex] = append(a.pools[threadIndex], p)
	return p, nil
}

// allocateFresh plucks a vacant set from the current pool, creating a
// new 16-set pool if every existing one is exhausted.
func (a *descriptorSetAllocator) allocateFresh(threadIndex int) (vk.DescriptorSet, int, error) {
	pools := a.pools[threadIndex]
	for i := len(pools) - 1; i >= 0; i-- {
		if n := len(pools[i].vacant); n > 0 {
			set := pools[i].vacant[n-1]
			pools[i].vacant = pools[i].vacant[:n-1]
			return set, i, nil
		}
	}
	p, err := a.newPool(threadIndex)
	if err != nil {
		return vk.NullDescriptorSet, 0, err
	}
	idx := len(a.pools[threadIndex]) - 1
	set := p.vacant[len(p.vacant)-1]
	p.vacant = p.vacant[:len(p.vacant)-1]
	return set, idx, nil
}

// bindingKey is the per-binding identity the descriptor flush hashes:
// resource cookie, a secondary cookie for a paired sampler, the
// float-vs-integer view variant, the image layout, and the slot.
type bindingKey struct {
	cookie Cookie
	secondaryCookie Cookie
	variantIsFP bool
	layout vk.ImageLayout
	slot uint32
}

// hashBindings folds a set's binding keys into the fingerprint the
// temporal cache is keyed by.
func hashBindings(keys []bindingKey) uint64 {
	h := fnv.New64a()
	for _, k := range keys {
		writeUint64(h, uint64(k.cookie))
		writeUint64(h, uint64(k.secondaryCookie))
		if k.variantIsFP {
			h.Write([]byte{1})
		} else {
			h.Write([]byte{0})
		}
		writeUint32(h, uint32(k.layout))
		writeUint32(h, k.slot)
	}
	return h.Sum64()
}

// resolve looks the fingerprint up in both generations: a hit returns
// the existing handle for re-bind (promoting it to the current
// generation); a miss returns ok=false so the caller writes
// descriptors into a freshly-allocated set.
func (a *descriptorSetAllocator) resolve(threadIndex int, hash uint64) (vk.DescriptorSet, bool) {
	if e, ok := a.perThread[threadIndex][hash]; ok {
		return e.set, true
	}
	if e, ok := a.previous[threadIndex][hash]; ok {
		a.perThread[threadIndex][hash] = e
		return e.set, true
	}
	return vk.NullDescriptorSet, false
}

func (a *descriptorSetAllocator) insert(threadIndex int, hash uint64, set vk.DescriptorSet, pool int) {
	a.perThread[threadIndex][hash] = descriptorSetEntry{set: set, pool: pool}
}

// allocateBindless hands out a variable-count set outside the cache
// entirely, batching sets into oversized update-after-bind pools.
func (a *descriptorSetAllocator) allocateBindless(count uint32) (vk.DescriptorSet, error) {
	for _, blk := range a.bindlessBlocks[count] {
		if idx, ok := blk.occ.Search(); ok {
			blk.occ.Set(idx)
			blk.age = 0
			return blk.sets[idx], nil
		}
	}

	descriptorCounts := make([]uint32, bindlessBlockSize)
	for i := range descriptorCounts {
		descriptorCounts[i] = count
	}
	variableInfo := vk.DescriptorSetVariableDescriptorCountAllocateInfo{
		SType: vk.StructureTypeDescriptorSetVariableDescriptorCountAllocateInfoExt,
		DescriptorSetCount: bindlessBlockSize,
		PDescriptorCounts: descriptorCounts,
	}
	poolSize := vk.DescriptorPoolSize{Type: vk.DescriptorTypeSampledImage, DescriptorCount: count * bindlessBlockSize}
	var pool vk.DescriptorPool
	ret := vk.CreateDescriptorPool(a.device, &vk.DescriptorPoolCreateInfo{
		SType: vk.StructureTypeDescriptorPoolCreateInfo,
		Flags: vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateUpdateAfterBindBitExt),
		MaxSets: bindlessBlockSize,
		PoolSizeCount: 1,
		PPoolSizes: []vk.DescriptorPoolSize{poolSize},
	}, nil, &pool)
	if isError(ret) {
		return vk.NullDescriptorSet, newError(ret)
	}
	layouts := make([]vk.DescriptorSetLayout, bindlessBlockSize)
	for i := range layouts {
		layouts[i] = a.setLayout
	}
	sets := make([]vk.DescriptorSet, bindlessBlockSize)
	allocInfo := vk.DescriptorSetAllocateInfo{
		SType: vk.StructureTypeDescriptorSetAllocateInfo,
		PNext: unsafe.Pointer(&variableInfo),
		DescriptorPool: pool,
		DescriptorSetCount: bindlessBlockSize,
		PSetLayouts: layouts,
	}
	ret = vk.AllocateDescriptorSets(a.device, &allocInfo, &sets[0])
	if isError(ret) {
		vk.DestroyDescriptorPool(a.device, pool, nil)
		return vk.NullDescriptorSet, newError(ret)
	}

	blk := &bindlessBlock{pool: pool, sets: sets, occ: bitset.New(bindlessBlockSize)}
	blk.occ.Set(0)
	a.bindlessBlocks[count] = append(a.bindlessBlocks[count], blk)
	return sets[0], nil
}

func (a *descriptorSetAllocator) destroy() {
	for _, perThread := range a.pools {
		for _, p := range perThread {
			vk.DestroyDescriptorPool(a.device, p.handle, nil)
		}
	}
	for _, blocks := range a.bindlessBlocks {
		for _, blk := range blocks {
			vk.DestroyDescriptorPool(a.device, blk.pool, nil)
		}
	}
	if a.setLayout != vk.NullDescriptorSetLayout {
		vk.DestroyDescriptorSetLayout(a.device, a.setLayout, nil)
	}
}

// descriptorAllocatorRegistry maps layout fingerprints to their
// allocators, protected by its own dedicated lock (Device.descMu),
// distinct from the main device lock.
type descriptorAllocatorRegistry struct {
	byKey map[uint64]*descriptorSetAllocator
}

func newDescriptorAllocatorRegistry() *descriptorAllocatorRegistry {
	return &descriptorAllocatorRegistry{byKey: make(map[uint64]*descriptorSetAllocator)}
}

// bindlessCountForSet is the variable-descriptor-count a bindless set's
// allocation requests: the largest declared array size among its
// bindings, since a set flagged bindless carries exactly one
// UNSIZED_ARRAY-style binding in this reflection model.
func bindlessCountForSet(rl DescriptorSetBindings) uint32 {
	var max uint32
	for _, n := range rl.ArraySizes {
		if uint32(n) > max {
			max = uint32(n)
		}
	}
	if max == 0 {
		max = 1
	}
	return max
}

// layoutKey fingerprints a (descriptor-set-layout shape,
// stage-visibility) pair for the registry lookup.
func layoutKey(bindings []vk.DescriptorSetLayoutBinding) uint64 {
	h := fnv.New64a()
	for _, b := range bindings {
		writeUint32(h, b.Binding)
		writeUint32(h, uint32(b.DescriptorType))
		writeUint32(h, b.DescriptorCount)
		writeUint32(h, uint32(b.StageFlags))
	}
	return h.Sum64()
}
