package spatial

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// CellRange is the [Start, End) slice of the sorted point array that falls
// in one cell. Empty cells hold {0, 0}.
type CellRange struct {
	Start uint32
	End   uint32
}

// Empty reports whether the range holds no points.
func (r CellRange) Empty() bool { return r.End <= r.Start }

// CellCoord maps a point to its integer cell, clamped to the grid. inverse
// takes world coordinates into the grid frame.
func CellCoord(p mgl32.Vec3, inverse mgl32.Mat4, cellSize float32, res [3]int) [3]int {
	local := mgl32.TransformCoordinate(p, inverse)
	var c [3]int
	for i := 0; i < 3; i++ {
		v := int(math.Floor(float64(local[i] / cellSize)))
		c[i] = min(max(v, 0), res[i]-1)
	}
	return c
}

// Hash flattens a cell coordinate to x + y*rx + z*rx*ry.
func Hash(c [3]int, res [3]int) uint32 {
	return uint32(c[0] + c[1]*res[0] + c[2]*res[0]*res[1])
}

// Lookup is a read-only view of a built grid for neighbor queries inside
// kernels.
type Lookup struct {
	Ranges   []CellRange
	Inverse  mgl32.Mat4
	CellSize float32
	Res      [3]int
}

// Cell returns the clamped cell of p.
func (l Lookup) Cell(p mgl32.Vec3) [3]int {
	return CellCoord(p, l.Inverse, l.CellSize, l.Res)
}

// ForEachNeighbor calls fn with the sorted index of every point in the cell
// containing p and its 26 neighbors. Cells outside the grid are skipped.
func (l Lookup) ForEachNeighbor(p mgl32.Vec3, fn func(i int)) {
	c := l.Cell(p)
	for z := max(c[2]-1, 0); z <= min(c[2]+1, l.Res[2]-1); z++ {
		for y := max(c[1]-1, 0); y <= min(c[1]+1, l.Res[1]-1); y++ {
			for x := max(c[0]-1, 0); x <= min(c[0]+1, l.Res[0]-1); x++ {
				r := l.Ranges[Hash([3]int{x, y, z}, l.Res)]
				for i := r.Start; i < r.End; i++ {
					fn(int(i))
				}
			}
		}
	}
}

// Covers reports whether p lies within one cell of the grid volume. Points
// farther out clamp to border cells but cannot reach their contents.
func (l Lookup) Covers(p mgl32.Vec3) bool {
	local := mgl32.TransformCoordinate(p, l.Inverse)
	for i := 0; i < 3; i++ {
		if local[i] < -l.CellSize || local[i] > float32(l.Res[i]+1)*l.CellSize {
			return false
		}
	}
	return true
}
