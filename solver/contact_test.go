package solver

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestOverlapOf(t *testing.T) {
	tests := []struct {
		name    string
		pb      mgl32.Vec3
		overlap float32
		ok      bool
	}{
		{"apart", mgl32.Vec3{3, 0, 0}, 0, false},
		{"touching", mgl32.Vec3{2, 0, 0}, 0, false},
		{"overlapping", mgl32.Vec3{1.5, 0, 0}, 0.5, true},
		{"coincident", mgl32.Vec3{}, 2, true},
	}
	for _, tc := range tests {
		n, overlap, ok := overlapOf(mgl32.Vec3{}, 1, tc.pb, 1)
		if ok != tc.ok || math.Abs(float64(overlap-tc.overlap)) > 1e-6 {
			t.Errorf("%s: overlap %g ok %v", tc.name, overlap, ok)
		}
		if ok && math.Abs(float64(n.Len()-1)) > 1e-6 {
			t.Errorf("%s: normal %v not unit", tc.name, n)
		}
	}
}

func TestContactForce(t *testing.T) {
	c := contactParams{Contact: Contact{Stiffness: 1000, NormalDamping: 10, TangentialDamping: 50}, Mu: 0.5}
	n := mgl32.Vec3{1, 0, 0}

	t.Run("spring", func(t *testing.T) {
		f := contactForce(n, 0.01, mgl32.Vec3{}, c)
		if !f.ApproxEqual(mgl32.Vec3{-10, 0, 0}) {
			t.Errorf("expected -10 along x, got %v", f)
		}
	})

	t.Run("no attraction when separating fast", func(t *testing.T) {
		f := contactForce(n, 0.001, mgl32.Vec3{-5, 0, 0}, c)
		if f.Len() != 0 {
			t.Errorf("expected zero force, got %v", f)
		}
	})

	t.Run("friction capped by coulomb", func(t *testing.T) {
		f := contactForce(n, 0.01, mgl32.Vec3{0, 10, 0}, c)
		// Normal 10 N, viscous 500 N, so the cap of 5 N applies.
		if math.Abs(float64(f[1]+5)) > 1e-4 {
			t.Errorf("expected tangential -5, got %v", f)
		}
	})

	t.Run("viscous below cap", func(t *testing.T) {
		f := contactForce(n, 0.01, mgl32.Vec3{0, 0, 0.01}, c)
		if math.Abs(float64(f[2]+0.5)) > 1e-4 {
			t.Errorf("expected tangential -0.5, got %v", f)
		}
	})
}

func TestForceAccumulateTorque(t *testing.T) {
	var f Force
	f.accumulate(mgl32.Vec3{0, 1, 0}, mgl32.Vec3{1, 0, 0})
	if !f.Torque.ApproxEqual(mgl32.Vec3{0, 0, 1}) {
		t.Errorf("expected torque +z, got %v", f.Torque)
	}
}
