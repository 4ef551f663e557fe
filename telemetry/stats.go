package telemetry

import (
	"log/slog"
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl32"
	"gonum.org/v1/gonum/blas/blas32"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/pthm-cable/sand/particle"
	"github.com/pthm-cable/sand/solver"
)

// WindowStats holds aggregated statistics for a window of steps.
type WindowStats struct {
	WindowStartStep uint64  `csv:"-"`
	WindowEndStep   uint64  `csv:"window_end"`
	SimTimeSec      float64 `csv:"sim_time"`
	MeanDt          float64 `csv:"mean_dt"`
	ClampedSteps    int     `csv:"clamped_steps"` // steps where dt hit the maximum

	Particles int  `csv:"particles"`
	Objects   int  `csv:"objects"`
	Terrain   bool `csv:"terrain"`

	// Energy (sampled at window end)
	KineticEnergy    float64 `csv:"kinetic_energy"`
	RotationalEnergy float64 `csv:"rotational_energy"`
	PotentialEnergy  float64 `csv:"potential_energy"`

	// Speed distribution
	SpeedMean float64 `csv:"speed_mean"`
	SpeedStd  float64 `csv:"speed_std"`
	SpeedP10  float64 `csv:"speed_p10"`
	SpeedP50  float64 `csv:"speed_p50"`
	SpeedP90  float64 `csv:"speed_p90"`
	SpeedMax  float64 `csv:"speed_max"`

	// Pile shape
	HeightMean float64 `csv:"height_mean"`
	HeightMin  float64 `csv:"height_min"`
	HeightMax  float64 `csv:"height_max"`
	Escaped    int     `csv:"escaped"` // particles outside the field grid

	// Mean contact force magnitude per particle, by source
	ParticleForceMean float64 `csv:"particle_force_mean"`
	ObjectForceMean   float64 `csv:"object_force_mean"`
	TerrainForceMean  float64 `csv:"terrain_force_mean"`
}

// Percentile calculates the p-th percentile of a sorted slice.
// p should be in [0, 1]. Returns 0 if slice is empty.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}

	// Linear interpolation
	idx := p * float64(n-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// ComputeDistribution calculates mean, population std, and percentiles.
func ComputeDistribution(values []float64) (mean, std, p10, p50, p90 float64) {
	n := len(values)
	if n == 0 {
		return 0, 0, 0, 0, 0
	}

	mean = stat.Mean(values, nil)
	std = math.Sqrt(stat.MomentAbout(2, values, mean, nil))

	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	p10 = Percentile(sorted, 0.10)
	p50 = Percentile(sorted, 0.50)
	p90 = Percentile(sorted, 0.90)

	return mean, std, p10, p50, p90
}

// Energy is the mechanical energy of a particle set.
type Energy struct {
	Kinetic    float64
	Rotational float64
	Potential  float64 // relative to the plane through the origin normal to gravity
}

// Total returns the sum of all terms.
func (e Energy) Total() float64 { return e.Kinetic + e.Rotational + e.Potential }

// MeasureEnergy computes the energy of states made of sub under gravity g.
func MeasureEnergy(states []particle.State, sub *particle.Substance, g mgl32.Vec3) Energy {
	if len(states) == 0 {
		return Energy{}
	}
	m := float64(sub.TotalMass)

	// Interleaved xyz velocities so the squared norm is one dot product
	vel := make([]float32, 3*len(states))
	var rot, pot float64
	for i, s := range states {
		copy(vel[3*i:], s.Velocity[:])

		// Body-frame angular velocity against the body inertia
		w := s.Rotation().Conjugate().Rotate(s.AngularVelocity)
		rot += float64(w.Dot(sub.Inertia.Mul3x1(w)))

		pot -= float64(g.Dot(s.Position))
	}
	v := blas32.Vector{N: len(vel), Inc: 1, Data: vel}

	return Energy{
		Kinetic:    0.5 * m * float64(blas32.Dot(v, v)),
		Rotational: 0.5 * rot,
		Potential:  m * pot,
	}
}

// forceMean returns the mean magnitude of the force terms.
func forceMean(forces []solver.Force) float64 {
	if len(forces) == 0 {
		return 0
	}
	mags := make([]float64, len(forces))
	for i, f := range forces {
		mags[i] = float64(f.Force.Len())
	}
	return stat.Mean(mags, nil)
}

// Sample fills the state-derived fields of ws from a step readback.
// lo and hi bound the field grid; particles outside it count as escaped.
func (ws *WindowStats) Sample(states []particle.State, sub *particle.Substance, g mgl32.Vec3, lo, hi mgl32.Vec3) {
	ws.Particles = len(states)
	if len(states) == 0 {
		return
	}

	e := MeasureEnergy(states, sub, g)
	ws.KineticEnergy = e.Kinetic
	ws.RotationalEnergy = e.Rotational
	ws.PotentialEnergy = e.Potential

	speeds := make([]float64, len(states))
	heights := make([]float64, len(states))
	ws.Escaped = 0
	for i, s := range states {
		speeds[i] = float64(s.Velocity.Len())
		heights[i] = float64(s.Position.Y())
		if !inside(s.Position, lo, hi) {
			ws.Escaped++
		}
	}
	ws.SpeedMean, ws.SpeedStd, ws.SpeedP10, ws.SpeedP50, ws.SpeedP90 = ComputeDistribution(speeds)
	ws.SpeedMax = floats.Max(speeds)

	ws.HeightMean = stat.Mean(heights, nil)
	ws.HeightMin = floats.Min(heights)
	ws.HeightMax = floats.Max(heights)
}

// SampleForces fills the contact force fields from the solver readbacks.
func (ws *WindowStats) SampleForces(particles, objects, terrain []solver.Force) {
	ws.ParticleForceMean = forceMean(particles)
	ws.ObjectForceMean = forceMean(objects)
	ws.TerrainForceMean = forceMean(terrain)
}

func inside(p, lo, hi mgl32.Vec3) bool {
	for i := 0; i < 3; i++ {
		if p[i] < lo[i] || p[i] >= hi[i] {
			return false
		}
	}
	return true
}

// LogValue implements slog.LogValuer for structured logging.
func (s WindowStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Uint64("window_start", s.WindowStartStep),
		slog.Uint64("window_end", s.WindowEndStep),
		slog.Float64("sim_time", s.SimTimeSec),
		slog.Float64("mean_dt", s.MeanDt),
		slog.Int("clamped_steps", s.ClampedSteps),
		slog.Int("particles", s.Particles),
		slog.Int("objects", s.Objects),
		slog.Bool("terrain", s.Terrain),
		slog.Float64("kinetic_energy", s.KineticEnergy),
		slog.Float64("rotational_energy", s.RotationalEnergy),
		slog.Float64("potential_energy", s.PotentialEnergy),
		slog.Float64("speed_mean", s.SpeedMean),
		slog.Float64("speed_p90", s.SpeedP90),
		slog.Float64("speed_max", s.SpeedMax),
		slog.Float64("height_mean", s.HeightMean),
		slog.Int("escaped", s.Escaped),
		slog.Float64("object_force_mean", s.ObjectForceMean),
		slog.Float64("terrain_force_mean", s.TerrainForceMean),
	)
}

// LogStats logs the window stats using slog.
func (s WindowStats) LogStats() {
	slog.Info("stats",
		"window_end", s.WindowEndStep,
		"sim_time", s.SimTimeSec,
		"mean_dt", s.MeanDt,
		"particles", s.Particles,
		"kinetic_energy", s.KineticEnergy,
		"rotational_energy", s.RotationalEnergy,
		"potential_energy", s.PotentialEnergy,
		"speed_mean", s.SpeedMean,
		"speed_p50", s.SpeedP50,
		"speed_p90", s.SpeedP90,
		"speed_max", s.SpeedMax,
		"height_mean", s.HeightMean,
		"height_max", s.HeightMax,
		"escaped", s.Escaped,
		"particle_force_mean", s.ParticleForceMean,
		"object_force_mean", s.ObjectForceMean,
		"terrain_force_mean", s.TerrainForceMean,
	)
}
