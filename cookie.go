package vkcore

import "sync/atomic"

// CookieAllocator hands out process-unique, monotonically increasing
// 64-bit identifiers, one per Device, used as the identity key in every
// pipeline/descriptor-set/framebuffer hasher so that lookups stay stable
// across pointer churn.
type CookieAllocator struct {
	next uint64
}

// NewCookie returns the next cookie value. Zero is never issued so that
// a zero-valued Cookie field reliably means "uninitialized".
func (c *CookieAllocator) NewCookie() Cookie {
	return Cookie(atomic.AddUint64(&c.next, 1))
}

// Cookie is a process-unique identifier for a resource, used as a hash
// key so that pipeline/descriptor/framebuffer caches key off identity
// rather than a Go pointer (which the garbage collector may relocate
// logically, and which is reused once a resource is freed).
type Cookie uint64
