package compute

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// Access describes how a kernel uses a buffer slot.
type Access uint8

const (
	Read Access = iota
	Write
	ReadWrite
)

func (a Access) writes() bool { return a != Read }

// Slot declares a named buffer binding point of a kernel.
type Slot struct {
	Name   string
	Access Access
}

// Group identifies one workgroup of a dispatch.
type Group struct {
	ID    [3]int // workgroup index
	Size  [3]int // threads per workgroup
	Count [3]int // workgroups in the dispatch
}

// Base returns the global thread index of the group's first X thread.
func (g Group) Base() int { return g.ID[0] * g.Size[0] }

// KernelFunc executes one workgroup.
type KernelFunc func(g Group, a *Args)

// KernelSpec describes a kernel entry point of a program.
type KernelSpec struct {
	Name      string
	GroupSize [3]int
	Slots     []Slot
	Fn        KernelFunc
}

// Program is a named set of kernels sharing one uniform block.
type Program struct {
	name     string
	kernels  map[string]*Kernel
	ints     map[string]int
	floats   map[string]float32
	vectors  map[string]mgl32.Vec4
	matrices map[string]mgl32.Mat4
	mat3s    map[string]mgl32.Mat3
}

// NewProgram builds a program from its kernel entry points.
func NewProgram(name string, specs ...KernelSpec) *Program {
	p := &Program{
		name:     name,
		kernels:  make(map[string]*Kernel, len(specs)),
		ints:     make(map[string]int),
		floats:   make(map[string]float32),
		vectors:  make(map[string]mgl32.Vec4),
		matrices: make(map[string]mgl32.Mat4),
		mat3s:    make(map[string]mgl32.Mat3),
	}
	for _, s := range specs {
		size := s.GroupSize
		for i := range size {
			if size[i] <= 0 {
				size[i] = 1
			}
		}
		s.GroupSize = size
		p.kernels[s.Name] = &Kernel{
			program: p,
			spec:    s,
			bound:   make(map[string]Handle, len(s.Slots)),
		}
	}
	return p
}

// Name returns the program name.
func (p *Program) Name() string { return p.name }

// FindKernel looks up a kernel by entry point name.
func (p *Program) FindKernel(name string) (*Kernel, error) {
	k, ok := p.kernels[name]
	if !ok {
		return nil, fmt.Errorf("program %q: %q: %w", p.name, name, ErrKernelNotFound)
	}
	return k, nil
}

// SetInt sets an integer uniform shared by every kernel of the program.
func (p *Program) SetInt(name string, v int) { p.ints[name] = v }

// SetFloat sets a scalar uniform.
func (p *Program) SetFloat(name string, v float32) { p.floats[name] = v }

// SetVector sets a four-component vector uniform.
func (p *Program) SetVector(name string, v mgl32.Vec4) { p.vectors[name] = v }

// SetMatrix sets a 4x4 matrix uniform.
func (p *Program) SetMatrix(name string, m mgl32.Mat4) { p.matrices[name] = m }

// SetMatrix3 sets a 3x3 matrix uniform.
func (p *Program) SetMatrix3(name string, m mgl32.Mat3) { p.mat3s[name] = m }

// SetVector3 sets a vector uniform with w = 0.
func (p *Program) SetVector3(name string, v mgl32.Vec3) { p.vectors[name] = v.Vec4(0) }

// SetInts packs three integers into a vector uniform, read back with Args.Ints.
func (p *Program) SetInts(name string, x, y, z int) {
	p.vectors[name] = mgl32.Vec4{float32(x), float32(y), float32(z), 0}
}

// Kernel is a dispatchable entry point with its current slot bindings.
type Kernel struct {
	program *Program
	spec    KernelSpec
	bound   map[string]Handle
}

// Name returns the entry point name.
func (k *Kernel) Name() string { return k.spec.Name }

// GroupSize returns the thread count per workgroup.
func (k *Kernel) GroupSize() [3]int { return k.spec.GroupSize }

// Groups returns the number of X workgroups needed to cover n threads.
func (k *Kernel) Groups(n int) int {
	size := k.spec.GroupSize[0]
	return (n + size - 1) / size
}

// SetBuffer binds a buffer to a declared slot.
func (k *Kernel) SetBuffer(slot string, h Handle) {
	for _, s := range k.spec.Slots {
		if s.Name == slot {
			k.bound[slot] = h
			return
		}
	}
	panic(fmt.Errorf("compute: %s.%s slot %q: %w", k.program.name, k.spec.Name, slot, ErrUnknownSlot))
}

// validate checks the bindings before a dispatch.
func (k *Kernel) validate() {
	writers := make(map[uint64]string)
	for _, s := range k.spec.Slots {
		h, ok := k.bound[s.Name]
		if !ok || h == nil {
			panic(fmt.Errorf("compute: %s.%s slot %q: %w", k.program.name, k.spec.Name, s.Name, ErrUnbound))
		}
		if h.Released() {
			panic(fmt.Errorf("compute: %s.%s slot %q buffer %q: %w", k.program.name, k.spec.Name, s.Name, h.Name(), ErrReleased))
		}
		if s.Access.writes() {
			if other, dup := writers[h.bufferID()]; dup {
				panic(fmt.Errorf("compute: %s.%s slots %q and %q share buffer %q: %w",
					k.program.name, k.spec.Name, other, s.Name, h.Name(), ErrAliased))
			}
			writers[h.bufferID()] = s.Name
		}
	}
	for _, s := range k.spec.Slots {
		if s.Access.writes() {
			continue
		}
		h := k.bound[s.Name]
		if other, dup := writers[h.bufferID()]; dup {
			panic(fmt.Errorf("compute: %s.%s slots %q and %q share buffer %q: %w",
				k.program.name, k.spec.Name, s.Name, other, h.Name(), ErrAliased))
		}
	}
}

// Args gives a running workgroup access to bound buffers and uniforms.
type Args struct {
	kernel *Kernel
}

// Slice returns the backing data of the buffer bound to slot.
func Slice[T any](a *Args, slot string) []T {
	h, ok := a.kernel.bound[slot]
	if !ok {
		panic(fmt.Errorf("compute: %s slot %q: %w", a.kernel.spec.Name, slot, ErrUnbound))
	}
	b, ok := h.(*Buffer[T])
	if !ok {
		panic(fmt.Errorf("compute: %s slot %q holds %T: %w", a.kernel.spec.Name, slot, h, ErrSlotType))
	}
	return b.data
}

// Int returns an integer uniform, zero if unset.
func (a *Args) Int(name string) int { return a.kernel.program.ints[name] }

// Float returns a scalar uniform.
func (a *Args) Float(name string) float32 { return a.kernel.program.floats[name] }

// Vector returns a four-component vector uniform.
func (a *Args) Vector(name string) mgl32.Vec4 { return a.kernel.program.vectors[name] }

// Vector3 returns the xyz part of a vector uniform.
func (a *Args) Vector3(name string) mgl32.Vec3 { return a.kernel.program.vectors[name].Vec3() }

// Matrix returns a 4x4 matrix uniform.
func (a *Args) Matrix(name string) mgl32.Mat4 { return a.kernel.program.matrices[name] }

// Matrix3 returns a 3x3 matrix uniform.
func (a *Args) Matrix3(name string) mgl32.Mat3 { return a.kernel.program.mat3s[name] }

// Ints returns a vector uniform set by SetInts.
func (a *Args) Ints(name string) [3]int {
	v := a.kernel.program.vectors[name]
	return [3]int{int(v[0]), int(v[1]), int(v[2])}
}
