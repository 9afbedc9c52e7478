package vkcore

import "sync/atomic"

// RefCounted is the intrusive ref-counting contract every pooled
// resource implements: retain bumps a counter, release decrements it
// and, on the zero transition, runs the resource's deleter exactly once.
// The deleter is what pushes the raw GPU handle onto the current frame's
// destroy list.
type RefCounted interface {
	retain()
	release()
}

// refCount is embedded by every Buffer/Image/ImageView/Sampler/BufferView
// wrapper. It is a plain (non-atomic) counter when internalSync is false
// and an atomic one when it is true. Every wrapper the Device creates
// passes true; the Device has no single-threaded mode.
type refCount struct {
	n int32
	internalSync bool
	deleter func()
}

func (r *refCount) initRefCount(internalSync bool, deleter func()) {
	r.n = 1
	r.internalSync = internalSync
	r.deleter = deleter
}

func (r *refCount) retain() {
	if r.internalSync {
		atomic.AddInt32(&r.n, 1)
		return
	}
	r.n++
}

func (r *refCount) release() {
	var remaining int32
	if r.internalSync {
		remaining = atomic.AddInt32(&r.n, -1)
	} else {
		r.n--
		remaining = r.n
	}
	if remaining == 0 && r.deleter != nil {
		r.deleter()
	}
}

// Handle[T] is a reference-counted pointer to a pooled resource. Copying
// a Handle does not copy the resource; call Retain to produce a second
// owning reference and Release to drop one. Ref-counting is what lets an
// ImageView's borrow of its Image outlive the caller's own Image handle
// being dropped mid-frame.
type Handle[T RefCounted] struct {
	obj T
}

// NewHandle wraps obj in a fresh, single-owner Handle.
func NewHandle[T RefCounted](obj T) Handle[T] {
	return Handle[T]{obj: obj}
}

// Get returns the underlying object without affecting its ref count.
func (h Handle[T]) Get() T {
	return h.obj
}

// IsValid reports whether the handle was ever assigned an object, the
// Go equivalent of a convertible-to-bool null handle.
func (h Handle[T]) IsValid() bool {
	var zero T
	return any(h.obj) != any(zero)
}

// Retain produces a second owning Handle over the same object.
func (h Handle[T]) Retain() Handle[T] {
	h.obj.retain()
	return h
}

// Release drops this Handle's ownership. The Handle must not be used
// afterward.
func (h Handle[T]) Release() {
	h.obj.release()
}

// pool[T] is a simple free-list object pool: objects released back to
// it are reused by acquire rather than reallocated.
type pool[T any] struct {
	free []T
	new func() T
}

func newPool[T any](newFn func() T) *pool[T] {
	return &pool[T]{new: newFn}
}

func (p *pool[T]) acquire() T {
	if n := len(p.free); n > 0 {
		v := p.free[n-1]
		p.free = p.free[:n-1]
		return v
	}
	return p.new()
}

func (p *pool[T]) recycle(v T) {
	p.free = append(p.free, v)
}
