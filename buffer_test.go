package vkcore

import (
	"testing"

	vk "github.com/vulkan-go/vulkan"
)

func TestBufferCreateInfoSharingMode(t *testing.T) {
	cases := []struct {
		name string
		owners []QueueType
		want vk.SharingMode
	}{
		{"no owners", nil, vk.SharingModeExclusive},
		{"single owner", []QueueType{QueueGraphics}, vk.SharingModeExclusive},
		{"two owners", []QueueType{QueueGraphics, QueueCompute}, vk.SharingModeConcurrent},
		{"three owners", []QueueType{QueueGraphics, QueueCompute, QueueTransfer}, vk.SharingModeConcurrent},
	}
	for _, tc := range cases {
		info := BufferCreateInfo{SharingOwners: tc.owners}
		if got := info.sharingMode(); got != tc.want {
			t.Errorf("%s: sharingMode\nhave %v\nwant %v", tc.name, got, tc.want)
		}
	}
}

func TestBufferCreateInfoNeedsUpload(t *testing.T) {
	info := BufferCreateInfo{Domain: DomainDevice}
	if info.needsUpload() {
		t.Fatal("device buffer with no initial data and no zero-init should not upload")
	}
	info.Initial = []byte{1, 2, 3, 4}
	if !info.needsUpload() {
		t.Fatal("device buffer with initial data must upload")
	}

	info = BufferCreateInfo{Domain: DomainDevice, Misc: BufferMiscZeroInitialize}
	if !info.needsUpload() {
		t.Fatal("device buffer with zero-init must upload")
	}

	info = BufferCreateInfo{Domain: DomainHost, Initial: []byte{1}}
	if info.needsUpload() {
		t.Fatal("host-visible buffer never goes through the staging upload")
	}
}

func TestPossibleBufferStages(t *testing.T) {
	stages, access := possibleBufferStages(vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit) | vk.BufferUsageFlags(vk.BufferUsageIndexBufferBit))
	if stages&vk.PipelineStageFlags(vk.PipelineStageVertexInputBit) == 0 {
		t.Fatal("vertex/index usage did not imply VERTEX_INPUT stage")
	}
	if access&vk.AccessFlags(vk.AccessVertexAttributeReadBit) == 0 || access&vk.AccessFlags(vk.AccessIndexReadBit) == 0 {
		t.Fatal("vertex/index usage did not imply attribute/index read access")
	}

	stages, access = possibleBufferStages(vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit))
	if stages&vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit) == 0 {
		t.Fatal("uniform usage did not imply fragment-shader stage")
	}
	if access&vk.AccessFlags(vk.AccessUniformReadBit) == 0 {
		t.Fatal("uniform usage did not imply UNIFORM_READ access")
	}

	stages, access = possibleBufferStages(vk.BufferUsageFlags(vk.BufferUsageIndirectBufferBit))
	if stages != vk.PipelineStageFlags(vk.PipelineStageDrawIndirectBit) {
		t.Fatalf("indirect usage stages:\nhave %x\nwant DRAW_INDIRECT only", stages)
	}
	if access != vk.AccessFlags(vk.AccessIndirectCommandReadBit) {
		t.Fatalf("indirect usage access:\nhave %x\nwant INDIRECT_COMMAND_READ only", access)
	}

	if stages, access = possibleBufferStages(0); stages != 0 || access != 0 {
		t.Fatal("zero usage produced non-zero stages or access")
	}
}

func TestBufferAccessors(t *testing.T) {
	info := BufferCreateInfo{Domain: DomainHost, Size: 512, Usage: vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit)}
	b := &Buffer{cookie: Cookie(7), info: info}
	if b.Cookie() != Cookie(7) {
		t.Fatal("Cookie accessor mismatch")
	}
	if b.Size() != 512 {
		t.Fatal("Size accessor mismatch")
	}
	if b.Domain() != DomainHost {
		t.Fatal("Domain accessor mismatch")
	}
	if b.Info().Usage != info.Usage {
		t.Fatal("Info accessor mismatch")
	}
	if b.mappedPointer() != nil {
		t.Fatal("mappedPointer should be nil with no allocation mapping")
	}
}
