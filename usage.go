package vkcore

import "fmt"

// Usage is a named, data-driven property bag: a Device configuration is
// expressed as named string/int/bool/float properties rather than a
// fixed struct, so unrecognized or optional feature toggles degrade to
// "absent" instead of a compile error.
type Usage struct {
	Name string
	StringProps map[string]string
	IntProps map[string]int
	BoolProps map[string]bool
	FloatProps map[string]float32
	Linked *Usage
}

// NewUsage allocates an empty Usage with maps pre-sized to defaultSize.
func NewUsage(name string, defaultSize int) *Usage {
	return &Usage{
		Name: name,
		StringProps: make(map[string]string, defaultSize),
		IntProps: make(map[string]int, defaultSize),
		BoolProps: make(map[string]bool, defaultSize),
		FloatProps: make(map[string]float32, defaultSize),
	}
}

func (u *Usage) HasNext() bool { return u.Linked != nil }

func (u *Usage) GetLinkedUsage() (*Usage, error) {
	if !u.HasNext() {
		return nil, fmt.Errorf("vkcore: usage %q has no linked usage", u.Name)
	}
	return u.Linked, nil
}

// DeviceOptions configures NewDevice. It is built out of Usage records
// (one named "Core" holding the scalar knobs, plus named feature-toggle
// Usages) so that the configuration surface composes instead of being
// one monolithic struct with every field mandatory.
type DeviceOptions struct {
	// Core carries scalar knobs: IntProps["RingSize"], IntProps["ThreadCount"],
	// BoolProps["TimelineSemaphores"], BoolProps["DescriptorIndexing"],
	// BoolProps["ImagelessFramebuffer"], BoolProps["ConservativeRaster"].
	Core *Usage

	// InstanceExtensions / DeviceExtensions / ValidationLayers are the
	// wanted (not strictly required) extension/layer name lists, resolved
	// against what the platform actually reports via checkExisting.
	InstanceExtensions []string
	DeviceExtensions []string
	ValidationLayers []string

	// LogWriters, when nil, falls back to the on-disk
	// info_log.txt/warn_log.txt/error_log.txt convention.
	LogWriters *LogWriters
}

func DefaultDeviceOptions() *DeviceOptions {
	core := NewUsage("Core", 8)
	core.IntProps["RingSize"] = 2
	core.IntProps["ThreadCount"] = 1
	core.BoolProps["TimelineSemaphores"] = true
	core.BoolProps["DescriptorIndexing"] = false
	core.BoolProps["ImagelessFramebuffer"] = false
	core.BoolProps["ConservativeRaster"] = false
	return &DeviceOptions{
		Core: core,
		DeviceExtensions: []string{"VK_KHR_swapchain"},
	}
}

func (o *DeviceOptions) ringSize() int {
	if o == nil || o.Core == nil {
		return 2
	}
	if v, ok := o.Core.IntProps["RingSize"]; ok && v > 0 {
		return v
	}
	return 2
}

func (o *DeviceOptions) threadCount() int {
	if o == nil || o.Core == nil {
		return 1
	}
	if v, ok := o.Core.IntProps["ThreadCount"]; ok && v > 0 {
		return v
	}
	return 1
}

func (o *DeviceOptions) hasTimelineSemaphores() bool {
	return o != nil && o.Core != nil && o.Core.BoolProps["TimelineSemaphores"]
}

func (o *DeviceOptions) hasImagelessFramebuffer() bool {
	return o != nil && o.Core != nil && o.Core.BoolProps["ImagelessFramebuffer"]
}

func (o *DeviceOptions) hasDescriptorIndexing() bool {
	return o != nil && o.Core != nil && o.Core.BoolProps["DescriptorIndexing"]
}
