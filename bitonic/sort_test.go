package bitonic

import (
	"errors"
	"math/rand"
	"sort"
	"testing"

	"github.com/pthm-cable/sand/compute"
)

func TestSortPermutationAndOrder(t *testing.T) {
	dev := compute.NewDevice(4)
	defer dev.Close()

	rng := rand.New(rand.NewSource(7))
	tests := []struct {
		name   string
		n      int
		keyMax uint32
	}{
		{"single", 1, 10},
		{"pair", 2, 10},
		{"small block", 64, 1000},
		{"one block", BlockSize, 1 << 20},
		{"two blocks", 2 * BlockSize, 1 << 20},
		{"many duplicates", 4096, 8},
		{"wide", 16384, 1 << 30},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			in := make([]KeyValue, tc.n)
			for i := range in {
				in[i] = KeyValue{Key: uint32(rng.Int63n(int64(tc.keyMax))), Value: uint32(i)}
			}
			buf := compute.NewBufferFrom("data", in)
			s, err := NewSorter(dev, tc.n)
			if err != nil {
				t.Fatalf("NewSorter: %v", err)
			}
			defer s.Release()

			s.Sort(buf)
			out := buf.GetData()

			for i := 1; i < len(out); i++ {
				if out[i-1].Key > out[i].Key {
					t.Fatalf("not sorted at %d: %d > %d", i, out[i-1].Key, out[i].Key)
				}
			}

			// Values are unique, so each must appear exactly once with its key.
			seen := make([]bool, tc.n)
			for _, kv := range out {
				if seen[kv.Value] {
					t.Fatalf("value %d duplicated", kv.Value)
				}
				seen[kv.Value] = true
				if in[kv.Value].Key != kv.Key {
					t.Fatalf("value %d carries key %d, want %d", kv.Value, kv.Key, in[kv.Value].Key)
				}
			}
		})
	}
}

func TestSortMatchesStdlib(t *testing.T) {
	dev := compute.NewDevice(0)
	defer dev.Close()

	const n = 2048
	rng := rand.New(rand.NewSource(99))
	in := make([]KeyValue, n)
	for i := range in {
		in[i] = KeyValue{Key: rng.Uint32(), Value: uint32(i)}
	}
	want := make([]uint32, n)
	for i, kv := range in {
		want[i] = kv.Key
	}
	sort.Slice(want, func(i, j int) bool { return want[i] < want[j] })

	buf := compute.NewBufferFrom("data", in)
	s, err := NewSorter(dev, n)
	if err != nil {
		t.Fatal(err)
	}
	s.Sort(buf)
	for i, kv := range buf.GetData() {
		if kv.Key != want[i] {
			t.Fatalf("key[%d] = %d, want %d", i, kv.Key, want[i])
		}
	}
}

func TestNewSorterRejectsBadLengths(t *testing.T) {
	dev := compute.NewDevice(1)
	tests := []struct {
		n    int
		want error
	}{
		{0, ErrNotPowerOfTwo},
		{3, ErrNotPowerOfTwo},
		{1000, ErrNotPowerOfTwo},
		{BlockSize * BlockSize * 2, ErrTooLarge},
	}
	for _, tc := range tests {
		_, err := NewSorter(dev, tc.n)
		if !errors.Is(err, tc.want) {
			t.Errorf("n=%d: expected %v, got %v", tc.n, tc.want, err)
		}
	}
}

func TestNextPowerOfTwo(t *testing.T) {
	tests := []struct{ in, want int }{
		{0, 1}, {1, 1}, {2, 2}, {3, 4}, {500, 512}, {513, 1024},
	}
	for _, tc := range tests {
		if got := NextPowerOfTwo(tc.in); got != tc.want {
			t.Errorf("NextPowerOfTwo(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
