package terrain

import (
	"errors"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestFlatField(t *testing.T) {
	f, err := Flat(8, mgl32.Vec3{10, 0, 10}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(f.Samples()) != 64 {
		t.Fatalf("expected 64 samples, got %d", len(f.Samples()))
	}
	for i, s := range f.Samples() {
		if s.Height != 2 || !s.Normal.ApproxEqual(mgl32.Vec3{0, 1, 0}) {
			t.Fatalf("sample %d = %+v", i, s)
		}
	}
}

func TestSlopeNormal(t *testing.T) {
	// h = x/2 rises along +X, so the normal tips toward -X.
	f, err := NewField(16, mgl32.Vec3{15, 0, 15}, func(x, z float32) float32 { return x / 2 })
	if err != nil {
		t.Fatal(err)
	}
	want := mgl32.Vec3{-0.5, 1, 0}.Normalize()
	for _, s := range f.Samples() {
		if !s.Normal.ApproxEqualThreshold(want, 1e-5) {
			t.Fatalf("normal %v, want %v", s.Normal, want)
		}
	}
}

func TestLookup(t *testing.T) {
	size := mgl32.Vec3{4, 0, 4}
	f, _ := NewField(5, size, func(x, z float32) float32 { return x + 10*z })

	tests := []struct {
		x, z   float32
		want   float32
		inside bool
	}{
		{0, 0, 0, true},
		{1.1, 0, 1.1, true},
		{3.9, 2, 23.9, true},
		{4, 4, 44, true},
		{-0.1, 2, 0, false},
		{2, 4.5, 0, false},
	}
	for _, tc := range tests {
		s, ok := Lookup(f.Samples(), f.Resolution(), size, tc.x, tc.z)
		if ok != tc.inside {
			t.Errorf("(%g,%g): inside = %v", tc.x, tc.z, ok)
			continue
		}
		if ok && math.Abs(float64(s.Height-tc.want)) > 1e-5 {
			t.Errorf("(%g,%g): height %g, want %g", tc.x, tc.z, s.Height, tc.want)
		}
	}
}

func TestLookupContinuousAcrossMidpoint(t *testing.T) {
	// Quadratic slope: the height between samples must not step at the
	// cell midpoint.
	size := mgl32.Vec3{8, 0, 8}
	f, err := NewField(9, size, func(x, z float32) float32 { return x * x / 4 })
	if err != nil {
		t.Fatal(err)
	}

	const eps = 1e-3
	for _, mid := range []float32{0.5, 2.5, 6.5} {
		a, _ := Lookup(f.Samples(), f.Resolution(), size, mid-eps, 3)
		b, _ := Lookup(f.Samples(), f.Resolution(), size, mid+eps, 3)
		if d := math.Abs(float64(b.Height - a.Height)); d > 0.01 {
			t.Errorf("x=%g: height jumps by %g across the midpoint", mid, d)
		}
		if d := b.Normal.Sub(a.Normal).Len(); d > 0.01 {
			t.Errorf("x=%g: normal jumps by %g across the midpoint", mid, d)
		}
		if l := a.Normal.Len(); math.Abs(float64(l-1)) > 1e-5 {
			t.Errorf("x=%g: normal length %g, want 1", mid, l)
		}
	}

	// Halfway between samples at x=2 (h=1) and x=3 (h=2.25)
	s, _ := Lookup(f.Samples(), f.Resolution(), size, 2.5, 3)
	if math.Abs(float64(s.Height-1.625)) > 1e-5 {
		t.Errorf("midpoint height %g, want 1.625", s.Height)
	}
}

func TestNoiseField(t *testing.T) {
	p := NoiseParams{Seed: 42, Scale: 0.2, Octaves: 4, Lacunarity: 2, Gain: 0.5, Amplitude: 3}
	a, err := NewNoise(32, mgl32.Vec3{20, 3, 20}, p)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := NewNoise(32, mgl32.Vec3{20, 3, 20}, p)

	var lo, hi float32 = math.MaxFloat32, -math.MaxFloat32
	for i, s := range a.Samples() {
		if s != b.Samples()[i] {
			t.Fatal("same seed should give the same field")
		}
		lo, hi = min(lo, s.Height), max(hi, s.Height)
	}
	if lo < 0 || hi > 3 {
		t.Errorf("heights [%g, %g] outside [0, 3]", lo, hi)
	}
	if hi-lo < 0.1 {
		t.Errorf("expected varied terrain, got range %g", hi-lo)
	}
}

func TestResolutionError(t *testing.T) {
	if _, err := Flat(1, mgl32.Vec3{1, 1, 1}, 0); !errors.Is(err, ErrResolution) {
		t.Errorf("expected ErrResolution, got %v", err)
	}
}
