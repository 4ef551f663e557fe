// Package spatial builds a uniform-grid neighbor index over a particle
// buffer. Each build hashes points to cells, sorts the (hash, index)
// pairs, records one [start, end) range per cell and rearranges the points
// into cell order.
package spatial

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/pthm-cable/sand/bitonic"
	"github.com/pthm-cable/sand/compute"
	"github.com/pthm-cable/sand/particle"
)

// BlockSize is the workgroup size of the grid kernels.
const BlockSize = 32

const (
	ProgramName     = "GridSearch"
	KernelBuild     = "build-grid"
	KernelClear     = "clear-indices"
	KernelIndices   = "build-indices"
	KernelRearrange = "rearrange"
)

// Sentinel pads the entry buffer up to a power of two. It sorts last.
const Sentinel = math.MaxUint32

var (
	ErrResolution   = errors.New("grid resolution must be positive on every axis")
	ErrCellSize     = errors.New("grid cell size must be positive")
	ErrTooManyCells = errors.New("grid cell count exceeds hash range")
	ErrNoPoints     = errors.New("grid needs at least one point")
)

// Entry pairs a cell hash (Key) with a point index (Value).
type Entry = bitonic.KeyValue

// Params fixes the grid geometry.
type Params struct {
	CellSize   float32
	Resolution [3]int
}

// Cells returns the total cell count.
func (p Params) Cells() int { return p.Resolution[0] * p.Resolution[1] * p.Resolution[2] }

// Validate checks the geometry.
func (p Params) Validate() error {
	if p.CellSize <= 0 {
		return fmt.Errorf("cell size %g: %w", p.CellSize, ErrCellSize)
	}
	for _, r := range p.Resolution {
		if r <= 0 {
			return fmt.Errorf("resolution %v: %w", p.Resolution, ErrResolution)
		}
	}
	if uint64(p.Resolution[0])*uint64(p.Resolution[1])*uint64(p.Resolution[2]) >= Sentinel {
		return fmt.Errorf("resolution %v: %w", p.Resolution, ErrTooManyCells)
	}
	return nil
}

// ResolutionFor returns the per-axis cell count covering size.
func ResolutionFor(size mgl32.Vec3, cellSize float32) [3]int {
	var r [3]int
	for i := 0; i < 3; i++ {
		r[i] = max(1, int(math.Ceil(float64(size[i]/cellSize))))
	}
	return r
}

// Grid is a fixed-resolution neighbor index over a fixed number of points.
// It owns its entry, range and sort buffers.
type Grid struct {
	dev       *compute.Device
	program   *compute.Program
	build     *compute.Kernel
	clear     *compute.Kernel
	indices   *compute.Kernel
	rearrange *compute.Kernel

	params  Params
	count   int
	entries *compute.Buffer[Entry]
	ranges  *compute.Buffer[CellRange]
	sorter  *bitonic.Sorter
	inverse mgl32.Mat4
}

// NewGrid allocates a grid for exactly count points.
func NewGrid(dev *compute.Device, name string, count int, p Params) (*Grid, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("spatial: %s: %w", name, err)
	}
	if count <= 0 {
		return nil, fmt.Errorf("spatial: %s: %w", name, ErrNoPoints)
	}

	g := &Grid{
		dev:     dev,
		program: NewProgram(),
		params:  p,
		count:   count,
		inverse: mgl32.Ident4(),
	}
	var err error
	for _, k := range []struct {
		name string
		dst  **compute.Kernel
	}{
		{KernelBuild, &g.build},
		{KernelClear, &g.clear},
		{KernelIndices, &g.indices},
		{KernelRearrange, &g.rearrange},
	} {
		if *k.dst, err = g.program.FindKernel(k.name); err != nil {
			return nil, fmt.Errorf("spatial: %s: %w", name, err)
		}
	}

	padded := bitonic.NextPowerOfTwo(count)
	if g.sorter, err = bitonic.NewSorter(dev, padded); err != nil {
		return nil, fmt.Errorf("spatial: %s: %w", name, err)
	}
	g.entries = compute.NewBuffer[Entry](name+".entries", padded)
	g.ranges = compute.NewBuffer[CellRange](name+".ranges", p.Cells())
	return g, nil
}

// Params returns the grid geometry.
func (g *Grid) Params() Params { return g.params }

// Count returns the number of points the grid indexes.
func (g *Grid) Count() int { return g.count }

// Ranges returns the cell-range table.
func (g *Grid) Ranges() *compute.Buffer[CellRange] { return g.ranges }

// Inverse returns the world-to-grid transform of the last build.
func (g *Grid) Inverse() mgl32.Mat4 { return g.inverse }

// Lookup returns a host-side view of the current table. Only valid until
// the next Build.
func (g *Grid) Lookup() Lookup {
	return Lookup{
		Ranges:   g.ranges.Data(),
		Inverse:  g.inverse,
		CellSize: g.params.CellSize,
		Res:      g.params.Resolution,
	}
}

// Build re-indexes points under transform, which places the grid origin in
// world space. On return points.Live holds the points in cell order.
func (g *Grid) Build(points *compute.PingPong[particle.State], transform mgl32.Mat4) {
	if n := points.Len(); n != g.count {
		panic(fmt.Sprintf("spatial: grid for %d points given %d", g.count, n))
	}
	g.inverse = transform.Inv()
	padded := g.entries.Len()
	cells := g.params.Cells()

	g.program.SetInt("_Count", g.count)
	g.program.SetInt("_Padded", padded)
	g.program.SetInt("_Cells", cells)
	g.program.SetFloat("_CellSize", g.params.CellSize)
	res := g.params.Resolution
	g.program.SetInts("_Resolution", res[0], res[1], res[2])
	g.program.SetMatrix("_InvTransform", g.inverse)

	g.build.SetBuffer("Points", points.Live())
	g.build.SetBuffer("Entries", g.entries)
	g.dev.Dispatch(g.build, g.build.Groups(padded), 1, 1)

	g.sorter.Sort(g.entries)

	g.clear.SetBuffer("Ranges", g.ranges)
	g.dev.Dispatch(g.clear, g.clear.Groups(cells), 1, 1)

	g.indices.SetBuffer("Entries", g.entries)
	g.indices.SetBuffer("Ranges", g.ranges)
	g.dev.Dispatch(g.indices, g.indices.Groups(g.count), 1, 1)

	g.rearrange.SetBuffer("Entries", g.entries)
	g.rearrange.SetBuffer("Src", points.Live())
	g.rearrange.SetBuffer("Dst", points.Scratch())
	g.dev.Dispatch(g.rearrange, g.rearrange.Groups(g.count), 1, 1)
	points.Swap()
}

// Entries reads the sorted entries back, without padding.
func (g *Grid) Entries() []Entry { return g.entries.GetData()[:g.count] }

// CellRanges reads the cell-range table back.
func (g *Grid) CellRanges() []CellRange { return g.ranges.GetData() }

// Release frees every buffer the grid owns.
func (g *Grid) Release() {
	g.entries.Release()
	g.ranges.Release()
	g.sorter.Release()
}
