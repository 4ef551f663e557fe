package solver

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/pthm-cable/sand/compute"
	"github.com/pthm-cable/sand/particle"
)

// Pose is a rigid placement.
type Pose struct {
	Position mgl32.Vec3
	Rotation mgl32.Quat
}

// IdentityPose is the placement at the origin without rotation.
var IdentityPose = Pose{Rotation: mgl32.QuatIdent()}

// Mat4 returns the local-to-world transform.
func (p Pose) Mat4() mgl32.Mat4 {
	return mgl32.Translate3D(p.Position[0], p.Position[1], p.Position[2]).Mul4(p.Rotation.Mat4())
}

// Object is a rigid collider represented by surface sample particles. The
// local samples are immutable; the world-space sample set is rewritten by
// the solver whenever the pose changes.
type Object struct {
	Name      string
	Substance *particle.Substance // sample radius and friction

	local   *compute.Buffer[mgl32.Vec3]
	samples *particle.Set
	lo, hi  mgl32.Vec3
}

// NewObject builds a collider from surface samples in its local frame. The
// substance is borrowed. The solver places the samples on the first step.
func NewObject(name string, local []mgl32.Vec3, substance *particle.Substance) (*Object, error) {
	if len(local) == 0 {
		return nil, fmt.Errorf("solver: object %q: %w", name, ErrNoSamples)
	}
	lo, hi := local[0], local[0]
	for _, p := range local[1:] {
		for i := 0; i < 3; i++ {
			lo[i] = min(lo[i], p[i])
			hi[i] = max(hi[i], p[i])
		}
	}
	return &Object{
		Name:      name,
		Substance: substance,
		local:     compute.NewBufferFrom(name+".local", local),
		samples:   particle.NewSet(name+".samples", particle.GenerateFromSamples(local, mgl32.Ident4()), substance),
		lo:        lo,
		hi:        hi,
	}, nil
}

// Len returns the sample count.
func (o *Object) Len() int { return o.local.Len() }

// Bounds returns the local bounding box of the samples.
func (o *Object) Bounds() (lo, hi mgl32.Vec3) { return o.lo, o.hi }

// Samples returns the world-space sample set.
func (o *Object) Samples() *particle.Set { return o.samples }

// SampleRadius is the contact radius of each sample.
func (o *Object) SampleRadius() float32 { return o.Substance.BoundingRadius }

// Release frees the object's buffers. The substance is left alone.
func (o *Object) Release() {
	o.local.Release()
	o.samples.Release()
}
