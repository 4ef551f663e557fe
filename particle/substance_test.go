package particle

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func near(a, b, tol float64) bool { return math.Abs(a-b) <= tol*math.Max(1, math.Abs(b)) }

func TestSubstanceMass(t *testing.T) {
	const radius, density = 0.04, 2000.0
	tests := []struct {
		layout   Layout
		count    int
		elemSize float64
	}{
		{LayoutSimple, 1, radius},
		{LayoutTetrahedron, 4, radius * 0.5},
	}
	for _, tc := range tests {
		s, err := NewSubstance(tc.layout, radius, density, 0.05)
		if err != nil {
			t.Fatalf("%v: %v", tc.layout, err)
		}
		if len(s.Elements) != tc.count {
			t.Errorf("%v: expected %d elements, got %d", tc.layout, tc.count, len(s.Elements))
		}
		want := float64(tc.count) * 4.0 / 3.0 * math.Pi * math.Pow(tc.elemSize, 3) * density
		if !near(float64(s.TotalMass), want, 1e-5) {
			t.Errorf("%v: total mass %g, want %g", tc.layout, s.TotalMass, want)
		}
	}
}

func TestCubeMassMixesElementSizes(t *testing.T) {
	s, err := NewSubstance(LayoutCube, 0.1, 1000, 0.05)
	if err != nil {
		t.Fatal(err)
	}
	want := float64(ElementMass(0.1, 1000) + 8*ElementMass(0.03, 1000))
	if !near(float64(s.TotalMass), want, 1e-5) {
		t.Errorf("total mass %g, want %g", s.TotalMass, want)
	}
}

func TestCenterOfMassIsMeanOffset(t *testing.T) {
	elems := []Element{
		{Radius: 0.1, Mass: 1, Offset: mgl32.Vec3{1, 0, 0}},
		{Radius: 0.1, Mass: 9, Offset: mgl32.Vec3{0, 2, 0}},
		{Radius: 0.1, Mass: 5, Offset: mgl32.Vec3{0, 0, 3}},
	}
	got := CenterOfMass(elems)
	want := mgl32.Vec3{1.0 / 3, 2.0 / 3, 1}
	if !got.ApproxEqualThreshold(want, 1e-6) {
		t.Errorf("center of mass %v, want %v", got, want)
	}

	for _, l := range []Layout{LayoutSimple, LayoutTetrahedron, LayoutCube} {
		s, _ := NewSubstance(l, 0.04, 2000, 0.05)
		if s.CenterOfMass.Len() > 1e-7 {
			t.Errorf("%v: symmetric layout should center at origin, got %v", l, s.CenterOfMass)
		}
	}
}

func TestInertiaTensor(t *testing.T) {
	t.Run("single sphere", func(t *testing.T) {
		s, err := NewSubstance(LayoutSimple, 0.5, 10, 0)
		if err != nil {
			t.Fatal(err)
		}
		want := 0.4 * float64(s.TotalMass) * 0.25
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				exp := 0.0
				if i == j {
					exp = want
				}
				if !near(float64(s.Inertia.At(i, j)), exp, 1e-5) {
					t.Errorf("I[%d][%d] = %g, want %g", i, j, s.Inertia.At(i, j), exp)
				}
			}
		}
	})

	t.Run("parallel axis", func(t *testing.T) {
		elems := []Element{{Radius: 0, Mass: 2, Offset: mgl32.Vec3{1, 0, 0}}}
		I := InertiaTensor(elems)
		// A point mass on the x axis has no moment about x and m*d^2 about y and z.
		if math.Abs(float64(I.At(0, 0))) > 1e-6 || !near(float64(I.At(1, 1)), 2, 1e-6) || !near(float64(I.At(2, 2)), 2, 1e-6) {
			t.Errorf("unexpected tensor %v", I)
		}
	})

	t.Run("inverse", func(t *testing.T) {
		for _, l := range []Layout{LayoutSimple, LayoutTetrahedron, LayoutCube} {
			s, err := NewSubstance(l, 0.1, 2000, 0.05)
			if err != nil {
				t.Fatalf("%v: %v", l, err)
			}
			prod := s.Inertia.Mul3(s.InverseInertia)
			if !prod.ApproxEqualThreshold(mgl32.Ident3(), 1e-3) {
				t.Errorf("%v: I * I^-1 = %v", l, prod)
			}
		}
	})
}

func TestNewSubstanceErrors(t *testing.T) {
	if _, err := NewSubstance(LayoutSimple, 0, 2000, 0); !errors.Is(err, ErrBadMaterial) {
		t.Errorf("expected ErrBadMaterial, got %v", err)
	}
	if _, err := NewSubstance(Layout(42), 0.1, 2000, 0); !errors.Is(err, ErrUnknownLayout) {
		t.Errorf("expected ErrUnknownLayout, got %v", err)
	}
	if _, err := NewSubstanceFromElements(LayoutSimple, 1, 1, 0, nil); !errors.Is(err, ErrSingular) {
		t.Errorf("expected ErrSingular, got %v", err)
	}
}

func TestParseLayout(t *testing.T) {
	tests := []struct {
		in   string
		want Layout
		ok   bool
	}{
		{"simple", LayoutSimple, true},
		{"Tetrahedron", LayoutTetrahedron, true},
		{"CUBE", LayoutCube, true},
		{"sphere", 0, false},
	}
	for _, tc := range tests {
		got, err := ParseLayout(tc.in)
		if (err == nil) != tc.ok || (tc.ok && got != tc.want) {
			t.Errorf("ParseLayout(%q) = %v, %v", tc.in, got, err)
		}
	}
}

func TestBoundingRadius(t *testing.T) {
	s, _ := NewSubstance(LayoutCube, 0.1, 2000, 0.05)
	want := 0.1*1.3 + 0.03
	if !near(float64(s.BoundingRadius), want, 1e-5) {
		t.Errorf("bounding radius %g, want %g", s.BoundingRadius, want)
	}
}

func TestGenerators(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	center := mgl32.Vec3{1, 2, 3}

	for _, s := range GenerateSphere(2000, center, 5, rng) {
		if s.Position.Sub(center).Len() > 5+1e-5 {
			t.Fatalf("sphere sample outside radius: %v", s.Position)
		}
		if s.Velocity != (mgl32.Vec3{}) || s.Orientation != IdentityOrientation {
			t.Fatalf("expected particle at rest, got %+v", s)
		}
	}

	for _, s := range GenerateCube(2000, center, 2, rng) {
		d := s.Position.Sub(center)
		if math.Abs(float64(d[0])) > 1 || math.Abs(float64(d[1])) > 1 || math.Abs(float64(d[2])) > 1 {
			t.Fatalf("cube sample outside cube: %v", s.Position)
		}
	}

	pts := GeneratePoint(3, center)
	if len(pts) != 3 || pts[2].Position != center {
		t.Errorf("unexpected point generator output %v", pts)
	}

	samples := []mgl32.Vec3{{0, 0, 0}, {1, 0, 0}}
	got := GenerateFromSamples(samples, mgl32.Translate3D(0, 5, 0))
	if got[1].Position != (mgl32.Vec3{1, 5, 0}) {
		t.Errorf("expected transformed sample, got %v", got[1].Position)
	}
}

func TestSetRelease(t *testing.T) {
	sub, _ := NewSubstance(LayoutSimple, 0.1, 2000, 0.05)
	set := NewSet("sand", GeneratePoint(8, mgl32.Vec3{}), sub)
	if set.Len() != 8 {
		t.Fatalf("expected 8 particles, got %d", set.Len())
	}
	set.Release()
	if !set.Buffers().Live().Released() {
		t.Error("live buffer should be released")
	}
	if sub.ElementBuffer().Released() {
		t.Error("releasing a set must not release its substance")
	}
}

func TestRotationRoundTrip(t *testing.T) {
	var s State
	q := mgl32.QuatRotate(0.7, mgl32.Vec3{0, 1, 0})
	s.SetRotation(q)
	if !s.Rotation().ApproxEqual(q) {
		t.Errorf("rotation %v, want %v", s.Rotation(), q)
	}
}
