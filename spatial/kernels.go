package spatial

import (
	"github.com/pthm-cable/sand/compute"
	"github.com/pthm-cable/sand/particle"
)

var blockSize = [3]int{BlockSize, 1, 1}

// NewProgram returns the grid program.
func NewProgram() *compute.Program {
	return compute.NewProgram(ProgramName,
		compute.KernelSpec{
			Name:      KernelBuild,
			GroupSize: blockSize,
			Slots: []compute.Slot{
				{Name: "Points", Access: compute.Read},
				{Name: "Entries", Access: compute.Write},
			},
			Fn: buildGrid,
		},
		compute.KernelSpec{
			Name:      KernelClear,
			GroupSize: blockSize,
			Slots:     []compute.Slot{{Name: "Ranges", Access: compute.Write}},
			Fn:        clearIndices,
		},
		compute.KernelSpec{
			Name:      KernelIndices,
			GroupSize: blockSize,
			Slots: []compute.Slot{
				{Name: "Entries", Access: compute.Read},
				{Name: "Ranges", Access: compute.Write},
			},
			Fn: buildIndices,
		},
		compute.KernelSpec{
			Name:      KernelRearrange,
			GroupSize: blockSize,
			Slots: []compute.Slot{
				{Name: "Entries", Access: compute.Read},
				{Name: "Src", Access: compute.Read},
				{Name: "Dst", Access: compute.Write},
			},
			Fn: rearrange,
		},
	)
}

func threads(g compute.Group, n int) (int, int) {
	start := g.Base()
	return start, min(start+g.Size[0], n)
}

func buildGrid(g compute.Group, a *compute.Args) {
	points := compute.Slice[particle.State](a, "Points")
	entries := compute.Slice[Entry](a, "Entries")
	count := a.Int("_Count")
	cellSize := a.Float("_CellSize")
	res := a.Ints("_Resolution")
	inv := a.Matrix("_InvTransform")

	start, end := threads(g, a.Int("_Padded"))
	for i := start; i < end; i++ {
		if i >= count {
			entries[i] = Entry{Key: Sentinel, Value: Sentinel}
			continue
		}
		c := CellCoord(points[i].Position, inv, cellSize, res)
		entries[i] = Entry{Key: Hash(c, res), Value: uint32(i)}
	}
}

func clearIndices(g compute.Group, a *compute.Args) {
	ranges := compute.Slice[CellRange](a, "Ranges")
	start, end := threads(g, a.Int("_Cells"))
	for i := start; i < end; i++ {
		ranges[i] = CellRange{}
	}
}

// buildIndices opens a range wherever the hash changes from its
// predecessor and closes the predecessor's range at the same position.
func buildIndices(g compute.Group, a *compute.Args) {
	entries := compute.Slice[Entry](a, "Entries")
	ranges := compute.Slice[CellRange](a, "Ranges")
	count := a.Int("_Count")

	start, end := threads(g, count)
	for i := start; i < end; i++ {
		cell := entries[i].Key
		if i == 0 {
			ranges[cell].Start = 0
		} else if prev := entries[i-1].Key; prev != cell {
			ranges[cell].Start = uint32(i)
			ranges[prev].End = uint32(i)
		}
		if i == count-1 {
			ranges[cell].End = uint32(count)
		}
	}
}

func rearrange(g compute.Group, a *compute.Args) {
	entries := compute.Slice[Entry](a, "Entries")
	src := compute.Slice[particle.State](a, "Src")
	dst := compute.Slice[particle.State](a, "Dst")

	start, end := threads(g, a.Int("_Count"))
	for i := start; i < end; i++ {
		dst[i] = src[entries[i].Value]
	}
}
