package compute

import "errors"

var (
	// ErrKernelNotFound is returned by Program.FindKernel for an unknown kernel name.
	ErrKernelNotFound = errors.New("kernel not found")
	// ErrReleased is the panic value for any access to a released buffer.
	ErrReleased = errors.New("buffer used after release")
	// ErrUnbound is the panic value when a dispatch has an empty slot.
	ErrUnbound = errors.New("kernel slot not bound")
	// ErrAliased is the panic value when one buffer is bound for reading and writing in the same dispatch.
	ErrAliased = errors.New("buffer bound for read and write in one dispatch")
	// ErrUnknownSlot is the panic value for SetBuffer on a slot the kernel does not declare.
	ErrUnknownSlot = errors.New("kernel has no such slot")
	// ErrSlotType is the panic value when a kernel reads a slot as the wrong element type.
	ErrSlotType = errors.New("slot element type mismatch")
)
