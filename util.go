package vkcore

import "unsafe"


// safeString null-terminates a Go string for passing into a PName /
// PApplicationName style *int8 field. Centralized here since nearly
// every create-info in this package needs one.
func safeString(s string) string {
	if len(s) == 0 || s[len(s)-1] != 0 {
		return s + "\x00"
	}
	return s
}

// safeStrings null-terminates a whole extension/layer-name list for
// PpEnabledExtensionNames-style fields.
func safeStrings(list []string) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = safeString(s)
	}
	return out
}

// sliceUint32 reinterprets a SPIR-V byte blob as the uint32 words
// Vulkan's PCode expects.
func sliceUint32(data []byte) []uint32 {
	if len(data) == 0 {
		return nil
	}
	const wordSize = 4
	words := make([]uint32, (len(data)+wordSize-1)/wordSize)
	copy(unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), len(words)*wordSize), data)
	return words
}

// checkExisting intersects a wanted extension/layer list against the
// ones actually reported by the platform, returning the usable subset
// and a count of what's missing.
func checkExisting(actual, wanted []string) (usable []string, missing int) {
	set := make(map[string]bool, len(actual))
	for _, a := range actual {
		set[a] = true
	}
	for _, w := range wanted {
		if set[w] {
			usable = append(usable, w)
		} else {
			missing++
		}
	}
	return usable, missing
}
