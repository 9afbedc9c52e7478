package vkcore

import (
	"fmt"
	"runtime"

	vk "github.com/vulkan-go/vulkan"
)

// ErrorKind classifies a failure so callers can distinguish a
// precondition violation from a genuine allocation failure without
// parsing error strings.
type ErrorKind int

const (
	ErrorKindNone ErrorKind = iota
	ErrorKindAllocationFailed
	ErrorKindUnsupportedFormat
	ErrorKindUnsupportedFeature
	ErrorKindDeviceLost
	ErrorKindInternal
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorKindAllocationFailed:
		return "allocation failed"
	case ErrorKindUnsupportedFormat:
		return "unsupported format"
	case ErrorKindUnsupportedFeature:
		return "unsupported feature"
	case ErrorKindDeviceLost:
		return "device lost"
	case ErrorKindInternal:
		return "internal error"
	default:
		return "none"
	}
}

// VkError wraps a native vk.Result with the kind of failure it
// represents and the call-site stack frame.
type VkError struct {
	Kind ErrorKind
	Result vk.Result
	Frame string
}

func (e *VkError) Error() string {
	if e.Frame != "" {
		return fmt.Sprintf("vkcore: %s (vk.Result=%d) at %s", e.Kind, e.Result, e.Frame)
	}
	return fmt.Sprintf("vkcore: %s (vk.Result=%d)", e.Kind, e.Result)
}

func isError(ret vk.Result) bool {
	return ret != vk.Success
}

func kindForResult(ret vk.Result) ErrorKind {
	switch ret {
	case vk.ErrorOutOfHostMemory, vk.ErrorOutOfDeviceMemory:
		return ErrorKindAllocationFailed
	case vk.ErrorFormatNotSupported:
		return ErrorKindUnsupportedFormat
	case vk.ErrorFeatureNotPresent, vk.ErrorExtensionNotPresent:
		return ErrorKindUnsupportedFeature
	case vk.ErrorDeviceLost:
		return ErrorKindDeviceLost
	default:
		return ErrorKindInternal
	}
}

// newError builds a classified error from a vk.Result, capturing the
// caller's frame, or nil when ret is vk.Success.
func newError(ret vk.Result) error {
	if ret == vk.Success {
		return nil
	}
	frame := ""
	if pc, file, line, ok := runtime.Caller(1); ok {
		fn := runtime.FuncForPC(pc)
		name := "?"
		if fn != nil {
			name = fn.Name()
		}
		frame = fmt.Sprintf("%s (%s:%d)", name, file, line)
	}
	return &VkError{Kind: kindForResult(ret), Result: ret, Frame: frame}
}

// orPanic panics with err when it is non-nil. Finalizers run before the
// panic unwinds so a failed creation path still cleans up. The
// programmer-error assertions (render pass begun twice, barrier issued
// inside a render pass, ...) go through assertf below, not orPanic.
func orPanic(err error, finalizers ...func()) {
	if err != nil {
		for _, fn := range finalizers {
			fn()
		}
		panic(err)
	}
}

// checkErr recovers a panic into *err, used at the boundary of internal
// recursive helpers that are allowed to assert internally but must
// surface a normal error to the Device's public API.
func checkErr(err *error) {
	if v := recover(); v != nil {
		switch e := v.(type) {
		case error:
			*err = e
		default:
			*err = fmt.Errorf("%+v", v)
		}
	}
}

// checkErrStack is checkErr plus a captured stack trace, for paths where
// the recovered panic is logged rather than just returned.
func checkErrStack(err *error) {
	if v := recover(); v != nil {
		stack := make([]byte, 32*1024)
		n := runtime.Stack(stack, false)
		switch event := v.(type) {
		case error:
			*err = fmt.Errorf("%s\n%s", event.Error(), stack[:n])
		default:
			*err = fmt.Errorf("%+v\n%s", v, stack[:n])
		}
	}
}

// debugAsserts gates the programmer-error asserts without needing a
// separate build configuration.
var debugAsserts = true

func assertf(cond bool, format string, args ...interface{}) {
	if debugAsserts && !cond {
		panic(fmt.Sprintf(format, args...))
	}
}
