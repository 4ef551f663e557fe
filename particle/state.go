package particle

import (
	"math/rand"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/pthm-cable/sand/compute"
)

// State is the per-particle dynamic state.
type State struct {
	Position        mgl32.Vec3
	Velocity        mgl32.Vec3
	Orientation     mgl32.Vec4 // quaternion x, y, z, w
	AngularVelocity mgl32.Vec3
}

// IdentityOrientation is the unrotated quaternion in State layout.
var IdentityOrientation = mgl32.Vec4{0, 0, 0, 1}

// Rotation returns the orientation as a quaternion.
func (s State) Rotation() mgl32.Quat {
	return mgl32.Quat{W: s.Orientation[3], V: s.Orientation.Vec3()}
}

// SetRotation stores q as the orientation.
func (s *State) SetRotation(q mgl32.Quat) {
	s.Orientation = mgl32.Vec4{q.V[0], q.V[1], q.V[2], q.W}
}

func atRest(p mgl32.Vec3) State {
	return State{Position: p, Orientation: IdentityOrientation}
}

// GeneratePoint places n particles at p.
func GeneratePoint(n int, p mgl32.Vec3) []State {
	out := make([]State, n)
	for i := range out {
		out[i] = atRest(p)
	}
	return out
}

// GenerateSphere fills a ball uniformly.
func GenerateSphere(n int, center mgl32.Vec3, radius float32, rng *rand.Rand) []State {
	out := make([]State, n)
	for i := range out {
		out[i] = atRest(center.Add(insideUnitSphere(rng).Mul(radius)))
	}
	return out
}

// GenerateCube fills an axis-aligned cube of edge size uniformly.
func GenerateCube(n int, center mgl32.Vec3, size float32, rng *rand.Rand) []State {
	out := make([]State, n)
	for i := range out {
		p := mgl32.Vec3{rng.Float32() - 0.5, rng.Float32() - 0.5, rng.Float32() - 0.5}
		out[i] = atRest(center.Add(p.Mul(size)))
	}
	return out
}

// GenerateFromSamples seeds one particle per surface sample, mapped by
// transform.
func GenerateFromSamples(samples []mgl32.Vec3, transform mgl32.Mat4) []State {
	out := make([]State, len(samples))
	for i, s := range samples {
		out[i] = atRest(mgl32.TransformCoordinate(s, transform))
	}
	return out
}

func insideUnitSphere(rng *rand.Rand) mgl32.Vec3 {
	for {
		p := mgl32.Vec3{
			2*rng.Float32() - 1,
			2*rng.Float32() - 1,
			2*rng.Float32() - 1,
		}
		if p.LenSqr() <= 1 {
			return p
		}
	}
}

// Set is one instance of a granular material: an owned state buffer pair
// and a borrowed substance.
type Set struct {
	Substance *Substance
	state     *compute.PingPong[State]
}

// NewSet uploads the initial states.
func NewSet(name string, states []State, substance *Substance) *Set {
	return &Set{
		Substance: substance,
		state:     compute.NewPingPong(name, states),
	}
}

// Len returns the particle count.
func (s *Set) Len() int { return s.state.Len() }

// Buffers returns the ping-pong pair. Only the pipeline writes to it.
func (s *Set) Buffers() *compute.PingPong[State] { return s.state }

// Live returns the buffer holding current state.
func (s *Set) Live() *compute.Buffer[State] { return s.state.Live() }

// States reads the live buffer back.
func (s *Set) States() []State { return s.state.Live().GetData() }

// Release frees the state buffers. The substance is left alone.
func (s *Set) Release() { s.state.Release() }
