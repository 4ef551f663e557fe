package telemetry

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/pthm-cable/sand/particle"
	"github.com/pthm-cable/sand/solver"
)

func TestPercentile(t *testing.T) {
	tests := []struct {
		name   string
		sorted []float64
		p      float64
		want   float64
	}{
		{"empty slice", []float64{}, 0.5, 0},
		{"single element", []float64{5.0}, 0.5, 5.0},
		{"p0", []float64{1, 2, 3, 4, 5}, 0.0, 1.0},
		{"p100", []float64{1, 2, 3, 4, 5}, 1.0, 5.0},
		{"p50 odd", []float64{1, 2, 3, 4, 5}, 0.5, 3.0},
		{"p50 even", []float64{1, 2, 3, 4}, 0.5, 2.5},
		{"p10", []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, 0.1, 1.9},
		{"p90", []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, 0.9, 9.1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Percentile(tt.sorted, tt.p)
			if math.Abs(got-tt.want) > 0.001 {
				t.Errorf("Percentile(%v, %v) = %v, want %v", tt.sorted, tt.p, got, tt.want)
			}
		})
	}
}

func TestComputeDistribution(t *testing.T) {
	values := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	mean, std, _, p50, _ := ComputeDistribution(values)
	if math.Abs(mean-5) > 1e-9 {
		t.Errorf("mean = %v, want 5", mean)
	}
	if math.Abs(std-2) > 1e-9 {
		t.Errorf("std = %v, want 2", std)
	}
	if math.Abs(p50-4.5) > 1e-9 {
		t.Errorf("p50 = %v, want 4.5", p50)
	}
	// Input must stay unsorted
	if values[0] != 2 || values[7] != 9 || values[4] != 5 {
		t.Errorf("input modified: %v", values)
	}

	if m, s, _, _, _ := ComputeDistribution(nil); m != 0 || s != 0 {
		t.Errorf("empty distribution = %v, %v", m, s)
	}
}

func testSubstance(t *testing.T) *particle.Substance {
	t.Helper()
	sub, err := particle.NewSubstance(particle.LayoutSimple, 0.5, 1000, 0.1)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(sub.Release)
	return sub
}

func TestMeasureEnergy(t *testing.T) {
	sub := testSubstance(t)
	m := float64(sub.TotalMass)
	g := mgl32.Vec3{0, -10, 0}

	states := []particle.State{
		{Position: mgl32.Vec3{0, 2, 0}, Velocity: mgl32.Vec3{3, 0, 4}, Orientation: particle.IdentityOrientation},
		{Position: mgl32.Vec3{1, 0, 0}, Orientation: particle.IdentityOrientation, AngularVelocity: mgl32.Vec3{0, 0, 2}},
	}

	e := MeasureEnergy(states, sub, g)
	if want := 0.5 * m * 25; math.Abs(e.Kinetic-want)/want > 1e-5 {
		t.Errorf("kinetic = %v, want %v", e.Kinetic, want)
	}
	if want := m * 20; math.Abs(e.Potential-want)/want > 1e-5 {
		t.Errorf("potential = %v, want %v", e.Potential, want)
	}
	if want := 0.5 * float64(sub.Inertia.At(2, 2)) * 4; math.Abs(e.Rotational-want)/want > 1e-5 {
		t.Errorf("rotational = %v, want %v", e.Rotational, want)
	}
	if math.Abs(e.Total()-(e.Kinetic+e.Rotational+e.Potential)) > 1e-9 {
		t.Error("Total does not sum terms")
	}

	if got := MeasureEnergy(nil, sub, g); got != (Energy{}) {
		t.Errorf("empty energy = %+v", got)
	}
}

func TestWindowStatsSample(t *testing.T) {
	sub := testSubstance(t)
	states := []particle.State{
		{Position: mgl32.Vec3{0, 1, 0}, Velocity: mgl32.Vec3{1, 0, 0}},
		{Position: mgl32.Vec3{0, 3, 0}, Velocity: mgl32.Vec3{0, 3, 0}},
		{Position: mgl32.Vec3{50, 2, 0}},
	}
	for i := range states {
		states[i].Orientation = particle.IdentityOrientation
	}

	var ws WindowStats
	ws.Sample(states, sub, mgl32.Vec3{0, -9.81, 0}, mgl32.Vec3{-10, -10, -10}, mgl32.Vec3{10, 10, 10})

	if ws.Particles != 3 {
		t.Errorf("particles = %d, want 3", ws.Particles)
	}
	if ws.Escaped != 1 {
		t.Errorf("escaped = %d, want 1", ws.Escaped)
	}
	if ws.SpeedMax != 3 {
		t.Errorf("speed max = %v, want 3", ws.SpeedMax)
	}
	if ws.HeightMin != 1 || ws.HeightMax != 3 || math.Abs(ws.HeightMean-2) > 1e-6 {
		t.Errorf("heights = %v/%v/%v", ws.HeightMin, ws.HeightMean, ws.HeightMax)
	}

	ws.SampleForces(
		[]solver.Force{{Force: mgl32.Vec3{3, 4, 0}}, {}},
		nil,
		[]solver.Force{{Force: mgl32.Vec3{0, 2, 0}}},
	)
	if ws.ParticleForceMean != 2.5 || ws.ObjectForceMean != 0 || ws.TerrainForceMean != 2 {
		t.Errorf("force means = %v/%v/%v", ws.ParticleForceMean, ws.ObjectForceMean, ws.TerrainForceMean)
	}
}
