// Package compute is the parallel compute backend the simulation runs on.
// Kernels are grouped into named programs, read and write typed device
// buffers through declared slots, and execute as workgroups on a
// goroutine pool owned by a Device.
package compute

import (
	"fmt"
	"sync/atomic"
)

var nextBufferID atomic.Uint64

// Handle is the untyped view of a buffer used for slot binding.
type Handle interface {
	Name() string
	Len() int
	Released() bool
	bufferID() uint64
}

// Buffer is an owning handle to a typed device buffer. Once released it is
// poisoned: every later access, including a second Release, panics with
// ErrReleased.
type Buffer[T any] struct {
	name     string
	id       uint64
	data     []T
	released bool
}

// NewBuffer allocates a zeroed buffer of n elements.
func NewBuffer[T any](name string, n int) *Buffer[T] {
	if n < 0 {
		panic(fmt.Sprintf("compute: negative buffer length %d for %q", n, name))
	}
	return &Buffer[T]{
		name: name,
		id:   nextBufferID.Add(1),
		data: make([]T, n),
	}
}

// NewBufferFrom allocates a buffer holding a copy of src.
func NewBufferFrom[T any](name string, src []T) *Buffer[T] {
	b := NewBuffer[T](name, len(src))
	copy(b.data, src)
	return b
}

func (b *Buffer[T]) mustLive(op string) {
	if b.released {
		panic(fmt.Errorf("compute: %s on buffer %q: %w", op, b.name, ErrReleased))
	}
}

func (b *Buffer[T]) bufferID() uint64 { return b.id }

// Name returns the debug name given at allocation.
func (b *Buffer[T]) Name() string { return b.name }

// Len returns the element count.
func (b *Buffer[T]) Len() int {
	b.mustLive("Len")
	return len(b.data)
}

// Released reports whether the buffer has been released.
func (b *Buffer[T]) Released() bool { return b.released }

// Data returns the backing slice for host-side access between dispatches.
func (b *Buffer[T]) Data() []T {
	b.mustLive("Data")
	return b.data
}

// SetData uploads src into the start of the buffer.
func (b *Buffer[T]) SetData(src []T) {
	b.mustLive("SetData")
	if len(src) > len(b.data) {
		panic(fmt.Sprintf("compute: SetData of %d elements into buffer %q of %d", len(src), b.name, len(b.data)))
	}
	copy(b.data, src)
}

// GetData reads the buffer back into a fresh slice. It is a diagnostic
// readback and must only be called between steps.
func (b *Buffer[T]) GetData() []T {
	b.mustLive("GetData")
	out := make([]T, len(b.data))
	copy(out, b.data)
	return out
}

// Fill sets every element to v.
func (b *Buffer[T]) Fill(v T) {
	b.mustLive("Fill")
	for i := range b.data {
		b.data[i] = v
	}
}

// Release frees the buffer and poisons the handle.
func (b *Buffer[T]) Release() {
	b.mustLive("Release")
	b.released = true
	b.data = nil
}
