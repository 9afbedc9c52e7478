package vkcore

import (
	"testing"

	vk "github.com/vulkan-go/vulkan"
)

func TestDomainHostVisible(t *testing.T) {
	for _, x := range [...]struct {
		d    Domain
		want bool
	}{
		{DomainDevice, false},
		{DomainHost, true},
		{DomainHostCached, true},
		{DomainLinkedDeviceHost, true},
	} {
		if got := x.d.hostVisible(); got != x.want {
			t.Fatalf("Domain(%d).hostVisible:\nhave %t\nwant %t", x.d, got, x.want)
		}
	}
}

func TestDirectAllocatorRequiredFlags(t *testing.T) {
	a := newDirectAllocator(vk.PhysicalDeviceMemoryProperties{})

	if got := a.requiredFlags(DomainDevice); got != vk.MemoryPropertyDeviceLocalBit {
		t.Fatalf("requiredFlags(DomainDevice):\nhave %v\nwant %v", got, vk.MemoryPropertyDeviceLocalBit)
	}

	wantHost := vk.MemoryPropertyFlagBits(vk.MemoryPropertyHostVisibleBit) | vk.MemoryPropertyFlagBits(vk.MemoryPropertyHostCoherentBit)
	if got := a.requiredFlags(DomainHost); got != wantHost {
		t.Fatalf("requiredFlags(DomainHost):\nhave %v\nwant %v", got, wantHost)
	}
	if got := a.requiredFlags(DomainLinkedDeviceHost); got != wantHost {
		t.Fatalf("requiredFlags(DomainLinkedDeviceHost):\nhave %v\nwant %v", got, wantHost)
	}

	wantHostCached := vk.MemoryPropertyFlagBits(vk.MemoryPropertyHostVisibleBit) | vk.MemoryPropertyFlagBits(vk.MemoryPropertyHostCachedBit)
	if got := a.requiredFlags(DomainHostCached); got != wantHostCached {
		t.Fatalf("requiredFlags(DomainHostCached):\nhave %v\nwant %v", got, wantHostCached)
	}
}

func TestDirectAllocatorFreeBufferIgnoresNullMemory(t *testing.T) {
	a := newDirectAllocator(vk.PhysicalDeviceMemoryProperties{})
	var dev vk.Device
	// Must not panic or call into the driver for a zero-value allocation.
	a.FreeBuffer(dev, allocation{})
	a.FreeImage(dev, allocation{})
}

func TestDirectAllocatorMapReturnsMappedPointer(t *testing.T) {
	a := newDirectAllocator(vk.PhysicalDeviceMemoryProperties{})
	alloc := allocation{}
	p, err := a.Map(alloc)
	if err != nil {
		t.Fatalf("Map returned an error: %v", err)
	}
	if p != alloc.mapped {
		t.Fatal("Map did not return the allocation's mapped pointer")
	}
}
