package vkcore

import vk "github.com/vulkan-go/vulkan"

// instanceExtensions lists the instance extensions the platform
// reports.
func instanceExtensions() ([]string, error) {
	var count uint32
	ret := vk.EnumerateInstanceExtensionProperties("", &count, nil)
	if isError(ret) {
		return nil, newError(ret)
	}
	list := make([]vk.ExtensionProperties, count)
	ret = vk.EnumerateInstanceExtensionProperties("", &count, list)
	if isError(ret) {
		return nil, newError(ret)
	}
	names := make([]string, 0, count)
	for _, ext := range list {
		ext.Deref()
		names = append(names, vk.ToString(ext.ExtensionName[:]))
	}
	return names, nil
}

// deviceExtensions lists the extensions a physical device reports.
func deviceExtensions(gpu vk.PhysicalDevice) ([]string, error) {
	var count uint32
	ret := vk.EnumerateDeviceExtensionProperties(gpu, "", &count, nil)
	if isError(ret) {
		return nil, newError(ret)
	}
	list := make([]vk.ExtensionProperties, count)
	ret = vk.EnumerateDeviceExtensionProperties(gpu, "", &count, list)
	if isError(ret) {
		return nil, newError(ret)
	}
	names := make([]string, 0, count)
	for _, ext := range list {
		ext.Deref()
		names = append(names, vk.ToString(ext.ExtensionName[:]))
	}
	return names, nil
}

// validationLayers lists the instance validation layers the platform
// reports.
func validationLayers() ([]string, error) {
	var count uint32
	ret := vk.EnumerateInstanceLayerProperties(&count, nil)
	if isError(ret) {
		return nil, newError(ret)
	}
	list := make([]vk.LayerProperties, count)
	ret = vk.EnumerateInstanceLayerProperties(&count, list)
	if isError(ret) {
		return nil, newError(ret)
	}
	names := make([]string, 0, count)
	for _, layer := range list {
		layer.Deref()
		names = append(names, vk.ToString(layer.LayerName[:]))
	}
	return names, nil
}

// extensionSet resolves a wanted extension/layer list against what's
// actually available, shared by the instance-extension, device-extension
// and validation-layer call sites.
type extensionSet struct {
	wanted []string
	actual []string
	enabled []string
	missing []string
}

func newExtensionSet(wanted, actual []string) *extensionSet {
	enabled, _ := checkExisting(actual, wanted)
	missing := make([]string, 0, len(wanted)-len(enabled))
	enabledSet := make(map[string]bool, len(enabled))
	for _, e := range enabled {
		enabledSet[e] = true
	}
	for _, w := range wanted {
		if !enabledSet[w] {
			missing = append(missing, w)
		}
	}
	return &extensionSet{wanted: wanted, actual: actual, enabled: enabled, missing: missing}
}

func (e *extensionSet) Enabled() []string { return e.enabled }
func (e *extensionSet) Missing() []string { return e.missing }

// findMemoryType locates a memory type index compatible with typeBits
// that also carries the required property flags; findMemoryTypeFallback
// retries with the requirements relaxed to zero on a miss.
func findMemoryType(props vk.PhysicalDeviceMemoryProperties, typeBits uint32, required vk.MemoryPropertyFlagBits) (uint32, bool) {
	for i := uint32(0); i < vk.MaxMemoryTypes; i++ {
		if typeBits&(1<<i) == 0 {
			continue
		}
		props.MemoryTypes[i].Deref()
		flags := props.MemoryTypes[i].PropertyFlags
		if flags&vk.MemoryPropertyFlags(required) == vk.MemoryPropertyFlags(required) {
			return i, true
		}
	}
	return 0, false
}

func findMemoryTypeFallback(props vk.PhysicalDeviceMemoryProperties, typeBits uint32, required vk.MemoryPropertyFlagBits) (uint32, bool) {
	if idx, ok := findMemoryType(props, typeBits, required); ok {
		return idx, true
	}
	if required != 0 {
		return findMemoryType(props, typeBits, 0)
	}
	return 0, false
}
