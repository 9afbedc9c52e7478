package vkcore

import (
	"strings"
	"testing"

	vk "github.com/vulkan-go/vulkan"
)

func TestErrorKindString(t *testing.T) {
	for _, x := range [...]struct {
		kind ErrorKind
		want string
	}{
		{ErrorKindNone, "none"},
		{ErrorKindAllocationFailed, "allocation failed"},
		{ErrorKindUnsupportedFormat, "unsupported format"},
		{ErrorKindUnsupportedFeature, "unsupported feature"},
		{ErrorKindDeviceLost, "device lost"},
		{ErrorKindInternal, "internal error"},
	} {
		if got := x.kind.String(); got != x.want {
			t.Fatalf("ErrorKind(%d).String:\nhave %q\nwant %q", x.kind, got, x.want)
		}
	}
}

func TestIsError(t *testing.T) {
	if isError(vk.Success) {
		t.Fatal("isError(vk.Success) returned true")
	}
	if !isError(vk.ErrorDeviceLost) {
		t.Fatal("isError(vk.ErrorDeviceLost) returned false")
	}
}

func TestKindForResult(t *testing.T) {
	for _, x := range [...]struct {
		ret  vk.Result
		want ErrorKind
	}{
		{vk.ErrorOutOfHostMemory, ErrorKindAllocationFailed},
		{vk.ErrorOutOfDeviceMemory, ErrorKindAllocationFailed},
		{vk.ErrorFormatNotSupported, ErrorKindUnsupportedFormat},
		{vk.ErrorFeatureNotPresent, ErrorKindUnsupportedFeature},
		{vk.ErrorExtensionNotPresent, ErrorKindUnsupportedFeature},
		{vk.ErrorDeviceLost, ErrorKindDeviceLost},
		{vk.ErrorInitializationFailed, ErrorKindInternal},
	} {
		if got := kindForResult(x.ret); got != x.want {
			t.Fatalf("kindForResult(%v):\nhave %v\nwant %v", x.ret, got, x.want)
		}
	}
}

func TestNewErrorNilOnSuccess(t *testing.T) {
	if err := newError(vk.Success); err != nil {
		t.Fatalf("newError(vk.Success) returned non-nil: %v", err)
	}
}

func TestNewErrorClassifiesAndFrames(t *testing.T) {
	err := newError(vk.ErrorDeviceLost)
	if err == nil {
		t.Fatal("newError(vk.ErrorDeviceLost) returned nil")
	}
	vkErr, ok := err.(*VkError)
	if !ok {
		t.Fatalf("newError returned %T, want *VkError", err)
	}
	if vkErr.Kind != ErrorKindDeviceLost {
		t.Fatalf("VkError.Kind:\nhave %v\nwant %v", vkErr.Kind, ErrorKindDeviceLost)
	}
	if vkErr.Frame == "" {
		t.Fatal("newError did not capture a caller frame")
	}
	if !strings.Contains(vkErr.Error(), "device lost") {
		t.Fatalf("VkError.Error() = %q, want it to mention %q", vkErr.Error(), "device lost")
	}
}

func TestOrPanicRunsFinalizersAndPanics(t *testing.T) {
	var ran bool
	defer func() {
		if recover() == nil {
			t.Fatal("orPanic with a non-nil error did not panic")
		}
		if !ran {
			t.Fatal("orPanic did not run its finalizer before panicking")
		}
	}()
	orPanic(newError(vk.ErrorDeviceLost), func() { ran = true })
}

func TestOrPanicNoopOnNil(t *testing.T) {
	orPanic(nil, func() { t.Fatal("finalizer ran despite a nil error") })
}

func TestCheckErrRecoversIntoErr(t *testing.T) {
	var err error
	func() {
		defer checkErr(&err)
		panic(newError(vk.ErrorDeviceLost))
	}()
	if err == nil {
		t.Fatal("checkErr did not capture the panicked error")
	}
}

func TestCheckErrRecoversNonErrorPanic(t *testing.T) {
	var err error
	func() {
		defer checkErr(&err)
		panic("plain string panic")
	}()
	if err == nil || !strings.Contains(err.Error(), "plain string panic") {
		t.Fatalf("checkErr did not wrap a non-error panic value: %v", err)
	}
}

func TestCheckErrStackIncludesTrace(t *testing.T) {
	var err error
	func() {
		defer checkErrStack(&err)
		panic(newError(vk.ErrorDeviceLost))
	}()
	if err == nil {
		t.Fatal("checkErrStack did not capture the panicked error")
	}
	if !strings.Contains(err.Error(), "\n") {
		t.Fatal("checkErrStack did not append a stack trace")
	}
}

func TestAssertfPanicsWhenFalse(t *testing.T) {
	old := debugAsserts
	debugAsserts = true
	defer func() { debugAsserts = old }()

	defer func() {
		if recover() == nil {
			t.Fatal("assertf(false, ...) did not panic with debugAsserts true")
		}
	}()
	assertf(false, "invariant violated: %d", 7)
}

func TestAssertfNoopWhenTrue(t *testing.T) {
	old := debugAsserts
	debugAsserts = true
	defer func() { debugAsserts = old }()
	assertf(true, "never shown")
}

func TestAssertfDisabled(t *testing.T) {
	old := debugAsserts
	debugAsserts = false
	defer func() { debugAsserts = old }()
	assertf(false, "should not panic while debugAsserts is false")
}
