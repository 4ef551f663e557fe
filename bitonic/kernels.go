package bitonic

import "github.com/pthm-cable/sand/compute"

const (
	// BlockSize is the element count sorted inside one workgroup.
	BlockSize = 512
	// TransposeBlockSize is the tile edge of the transpose kernel.
	TransposeBlockSize = 16

	ProgramName     = "BitonicSort"
	KernelSort      = "BitonicSort"
	KernelTranspose = "MatrixTranspose"
)

// KeyValue is one sortable pair. Sorting is by Key only.
type KeyValue struct {
	Key   uint32
	Value uint32
}

// NewProgram returns the sort program.
func NewProgram() *compute.Program {
	return compute.NewProgram(ProgramName,
		compute.KernelSpec{
			Name:      KernelSort,
			GroupSize: [3]int{BlockSize, 1, 1},
			Slots:     []compute.Slot{{Name: "Data", Access: compute.ReadWrite}},
			Fn:        sortBlock,
		},
		compute.KernelSpec{
			Name:      KernelTranspose,
			GroupSize: [3]int{TransposeBlockSize, TransposeBlockSize, 1},
			Slots: []compute.Slot{
				{Name: "Input", Access: compute.Read},
				{Name: "Data", Access: compute.Write},
			},
			Fn: transposeRows,
		},
	)
}

// sortBlock runs the bitonic merge steps of one level over a block of
// _BlockSize elements held in group-shared memory.
//
// Element i takes its partner i^j when the pair (i&^j, i|j) is out of order
// for the direction selected by _LevelMask.
func sortBlock(g compute.Group, a *compute.Args) {
	data := compute.Slice[KeyValue](a, "Data")
	block := a.Int("_BlockSize")
	level := a.Int("_Level")
	levelMask := a.Int("_LevelMask")

	base := g.ID[0] * block
	shared := make([]KeyValue, block)
	next := make([]KeyValue, block)
	copy(shared, data[base:base+block])

	for j := level >> 1; j > 0; j >>= 1 {
		for i := 0; i < block; i++ {
			lo, hi := shared[i&^j], shared[i|j]
			if (lo.Key <= hi.Key) == ((levelMask & (base + i)) != 0) {
				next[i] = shared[i^j]
			} else {
				next[i] = shared[i]
			}
		}
		shared, next = next, shared
	}

	copy(data[base:base+block], shared)
}

// transposeRows transposes a _Width x _Height row-major matrix. Each
// workgroup handles TransposeBlockSize rows of the input.
func transposeRows(g compute.Group, a *compute.Args) {
	in := compute.Slice[KeyValue](a, "Input")
	out := compute.Slice[KeyValue](a, "Data")
	width := a.Int("_Width")
	height := a.Int("_Height")

	y0 := g.ID[0] * g.Size[1]
	for y := y0; y < min(y0+g.Size[1], height); y++ {
		row := in[y*width : (y+1)*width]
		for x, kv := range row {
			out[x*height+y] = kv
		}
	}
}
