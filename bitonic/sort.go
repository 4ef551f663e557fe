// Package bitonic sorts (key, value) pairs with a bitonic network on the
// compute backend. Lengths must be powers of two; callers pad with
// maximum-key sentinels.
package bitonic

import (
	"errors"
	"fmt"

	"github.com/pthm-cable/sand/compute"
)

var (
	ErrNotPowerOfTwo = errors.New("sort length is not a power of two")
	ErrTooLarge      = errors.New("sort length exceeds BlockSize squared")
)

// Sorter sorts buffers of one fixed length. It owns a scratch buffer of the
// same length for the transpose passes.
type Sorter struct {
	dev       *compute.Device
	program   *compute.Program
	sort      *compute.Kernel
	transpose *compute.Kernel

	n       int
	block   int
	scratch *compute.Buffer[KeyValue]
}

// IsPowerOfTwo reports whether n is a positive power of two.
func IsPowerOfTwo(n int) bool { return n > 0 && n&(n-1) == 0 }

// NextPowerOfTwo returns the smallest power of two >= n.
func NextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// NewSorter prepares a sorter for buffers of exactly n elements.
func NewSorter(dev *compute.Device, n int) (*Sorter, error) {
	if !IsPowerOfTwo(n) {
		return nil, fmt.Errorf("bitonic: length %d: %w", n, ErrNotPowerOfTwo)
	}
	if n > BlockSize*BlockSize {
		return nil, fmt.Errorf("bitonic: length %d: %w", n, ErrTooLarge)
	}

	program := NewProgram()
	sortK, err := program.FindKernel(KernelSort)
	if err != nil {
		return nil, fmt.Errorf("bitonic: %w", err)
	}
	transposeK, err := program.FindKernel(KernelTranspose)
	if err != nil {
		return nil, fmt.Errorf("bitonic: %w", err)
	}

	return &Sorter{
		dev:       dev,
		program:   program,
		sort:      sortK,
		transpose: transposeK,
		n:         n,
		block:     min(BlockSize, n),
		scratch:   compute.NewBuffer[KeyValue]("bitonic.scratch", n),
	}, nil
}

// Len returns the buffer length this sorter accepts.
func (s *Sorter) Len() int { return s.n }

// Sort orders data ascending by key in place.
func (s *Sorter) Sort(data *compute.Buffer[KeyValue]) {
	if data.Len() != s.n {
		panic(fmt.Sprintf("bitonic: sorter for %d elements given %d", s.n, data.Len()))
	}

	block := s.block
	width := block
	height := s.n / block
	s.program.SetInt("_BlockSize", block)

	// Levels that fit inside a block are sorted row by row.
	for level := 2; level <= block; level <<= 1 {
		s.setConstants(level, level, height, width)
		s.sort.SetBuffer("Data", data)
		s.dev.Dispatch(s.sort, s.n/block, 1, 1)
	}

	// Larger levels sort columns of the transposed matrix, then rows again.
	for level := block << 1; level <= s.n; level <<= 1 {
		s.setConstants(level/block, (level&^s.n)/block, width, height)
		s.transpose.SetBuffer("Input", data)
		s.transpose.SetBuffer("Data", s.scratch)
		s.dev.Dispatch(s.transpose, ceilDiv(height, TransposeBlockSize), 1, 1)
		s.sort.SetBuffer("Data", s.scratch)
		s.dev.Dispatch(s.sort, s.n/block, 1, 1)

		s.setConstants(block, level, height, width)
		s.transpose.SetBuffer("Input", s.scratch)
		s.transpose.SetBuffer("Data", data)
		s.dev.Dispatch(s.transpose, ceilDiv(width, TransposeBlockSize), 1, 1)
		s.sort.SetBuffer("Data", data)
		s.dev.Dispatch(s.sort, s.n/block, 1, 1)
	}
}

func (s *Sorter) setConstants(level, levelMask, width, height int) {
	s.program.SetInt("_Level", level)
	s.program.SetInt("_LevelMask", levelMask)
	s.program.SetInt("_Width", width)
	s.program.SetInt("_Height", height)
}

// Release frees the scratch buffer.
func (s *Sorter) Release() {
	s.scratch.Release()
}

func ceilDiv(a, b int) int { return (a + b - 1) / b }
