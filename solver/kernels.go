package solver

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/pthm-cable/sand/compute"
	"github.com/pthm-cable/sand/particle"
	"github.com/pthm-cable/sand/spatial"
	"github.com/pthm-cable/sand/terrain"
)

const (
	ProgramName = "MolecularDynamics"

	KernelParticle        = "particle-particle"
	KernelObjectTransform = "object-transform"
	KernelObject          = "object-collision"
	KernelTerrain         = "terrain-collision"
	KernelClearForce      = "clear-force"
	KernelIntegrate       = "integrate"
)

// NewProgram returns the pipeline program with blockSize threads per group.
func NewProgram(blockSize int) *compute.Program {
	size := [3]int{blockSize, 1, 1}
	r := func(name string) compute.Slot { return compute.Slot{Name: name, Access: compute.Read} }
	w := func(name string) compute.Slot { return compute.Slot{Name: name, Access: compute.Write} }

	return compute.NewProgram(ProgramName,
		compute.KernelSpec{
			Name:      KernelParticle,
			GroupSize: size,
			Slots:     []compute.Slot{r("Particles"), r("Elements"), r("Grid"), w("Forces")},
			Fn:        particleCollision,
		},
		compute.KernelSpec{
			Name:      KernelObjectTransform,
			GroupSize: size,
			Slots:     []compute.Slot{r("Local"), w("Samples")},
			Fn:        objectTransform,
		},
		compute.KernelSpec{
			Name:      KernelObject,
			GroupSize: size,
			Slots: []compute.Slot{
				r("Particles"), r("Elements"), r("Samples"), r("SampleGrid"),
				{Name: "Forces", Access: compute.ReadWrite},
			},
			Fn: objectCollision,
		},
		compute.KernelSpec{
			Name:      KernelTerrain,
			GroupSize: size,
			Slots:     []compute.Slot{r("Particles"), r("Elements"), r("Terrain"), w("Forces")},
			Fn:        terrainCollision,
		},
		compute.KernelSpec{
			Name:      KernelClearForce,
			GroupSize: size,
			Slots:     []compute.Slot{w("Forces")},
			Fn:        clearForce,
		},
		compute.KernelSpec{
			Name:      KernelIntegrate,
			GroupSize: size,
			Slots: []compute.Slot{
				r("Particles"), r("ParticleForces"), r("ObjectForces"), r("TerrainForces"), w("Out"),
			},
			Fn: integrate,
		},
	)
}

func threads(g compute.Group, n int) (int, int) {
	start := g.Base()
	return start, min(start+g.Size[0], n)
}

func bodyOf(s particle.State, com mgl32.Vec3) body {
	return body{
		pos:    s.Position,
		vel:    s.Velocity,
		angVel: s.AngularVelocity,
		rot:    s.Rotation(),
		com:    com,
	}
}

func contactUniforms(a *compute.Args) Contact {
	return Contact{
		Stiffness:         a.Float("_Stiffness"),
		NormalDamping:     a.Float("_NormalDamping"),
		TangentialDamping: a.Float("_TangentialDamping"),
	}
}

func particleCollision(g compute.Group, a *compute.Args) {
	states := compute.Slice[particle.State](a, "Particles")
	elems := compute.Slice[particle.Element](a, "Elements")
	forces := compute.Slice[Force](a, "Forces")
	look := spatial.Lookup{
		Ranges:   compute.Slice[spatial.CellRange](a, "Grid"),
		Inverse:  a.Matrix("_GridInv"),
		CellSize: a.Float("_GridCellSize"),
		Res:      a.Ints("_GridResolution"),
	}
	contact := contactUniforms(a)
	com := a.Vector3("_CenterOfMass")
	reach := 2 * a.Float("_BoundingRadius")

	start, end := threads(g, a.Int("_Count"))
	for i := start; i < end; i++ {
		self := bodyOf(states[i], com)
		var f Force
		look.ForEachNeighbor(self.pos, func(j int) {
			if j == i {
				return
			}
			other := bodyOf(states[j], com)
			if other.pos.Sub(self.pos).LenSqr() > reach*reach {
				return
			}
			for _, ea := range elems {
				ca, armA := self.element(ea.Offset)
				for _, eb := range elems {
					cb, armB := other.element(eb.Offset)
					n, overlap, ok := overlapOf(ca, ea.Radius, cb, eb.Radius)
					if !ok {
						continue
					}
					ra := armA.Add(n.Mul(ea.Radius))
					rb := armB.Sub(n.Mul(eb.Radius))
					vrel := self.pointVelocity(ra).Sub(other.pointVelocity(rb))
					c := contactParams{Contact: contact, Mu: (ea.Mu + eb.Mu) / 2}
					f.accumulate(contactForce(n, overlap, vrel, c), ra)
				}
			}
		})
		forces[i] = f
	}
}

// objectTransform places the local samples under _Pose. The sample
// velocity is the displacement since _PrevPose over the step.
func objectTransform(g compute.Group, a *compute.Args) {
	local := compute.Slice[mgl32.Vec3](a, "Local")
	samples := compute.Slice[particle.State](a, "Samples")
	pose := a.Matrix("_Pose")
	prev := a.Matrix("_PrevPose")
	invDt := a.Float("_InvDt")

	start, end := threads(g, len(local))
	for i := start; i < end; i++ {
		p := mgl32.TransformCoordinate(local[i], pose)
		old := mgl32.TransformCoordinate(local[i], prev)
		samples[i] = particle.State{
			Position:    p,
			Velocity:    p.Sub(old).Mul(invDt),
			Orientation: particle.IdentityOrientation,
		}
	}
}

func objectCollision(g compute.Group, a *compute.Args) {
	states := compute.Slice[particle.State](a, "Particles")
	elems := compute.Slice[particle.Element](a, "Elements")
	samples := compute.Slice[particle.State](a, "Samples")
	forces := compute.Slice[Force](a, "Forces")
	look := spatial.Lookup{
		Ranges:   compute.Slice[spatial.CellRange](a, "SampleGrid"),
		Inverse:  a.Matrix("_ObjGridInv"),
		CellSize: a.Float("_ObjCellSize"),
		Res:      a.Ints("_ObjResolution"),
	}
	contact := contactUniforms(a)
	com := a.Vector3("_CenterOfMass")
	sampleRadius := a.Float("_SampleRadius")
	sampleMu := a.Float("_SampleMu")
	reach := a.Float("_BoundingRadius") + sampleRadius

	start, end := threads(g, a.Int("_Count"))
	for i := start; i < end; i++ {
		self := bodyOf(states[i], com)
		if !look.Covers(self.pos) {
			continue
		}
		var f Force
		look.ForEachNeighbor(self.pos, func(j int) {
			s := samples[j]
			if s.Position.Sub(self.pos).LenSqr() > reach*reach {
				return
			}
			for _, e := range elems {
				c, arm := self.element(e.Offset)
				n, overlap, ok := overlapOf(c, e.Radius, s.Position, sampleRadius)
				if !ok {
					continue
				}
				ra := arm.Add(n.Mul(e.Radius))
				vrel := self.pointVelocity(ra).Sub(s.Velocity)
				cp := contactParams{Contact: contact, Mu: (e.Mu + sampleMu) / 2}
				f.accumulate(contactForce(n, overlap, vrel, cp), ra)
			}
		})
		forces[i].Force = forces[i].Force.Add(f.Force)
		forces[i].Torque = forces[i].Torque.Add(f.Torque)
	}
}

// terrainCollision treats the nearest height sample as a plane through the
// ground point with the sample normal.
func terrainCollision(g compute.Group, a *compute.Args) {
	states := compute.Slice[particle.State](a, "Particles")
	elems := compute.Slice[particle.Element](a, "Elements")
	field := compute.Slice[terrain.Sample](a, "Terrain")
	forces := compute.Slice[Force](a, "Forces")
	origin := a.Vector3("_TerrainOrigin")
	size := a.Vector3("_TerrainSize")
	res := a.Int("_TerrainRes")
	c := contactParams{Contact: contactUniforms(a), Mu: a.Float("_TerrainFriction")}
	com := a.Vector3("_CenterOfMass")

	start, end := threads(g, a.Int("_Count"))
	for i := start; i < end; i++ {
		self := bodyOf(states[i], com)
		var f Force
		for _, e := range elems {
			center, arm := self.element(e.Offset)
			rel := center.Sub(origin)
			s, ok := terrain.Lookup(field, res, size, rel[0], rel[2])
			if !ok {
				continue
			}
			ground := mgl32.Vec3{center[0], origin[1] + s.Height, center[2]}
			overlap := e.Radius - center.Sub(ground).Dot(s.Normal)
			if overlap <= 0 {
				continue
			}
			n := s.Normal.Mul(-1)
			ra := arm.Add(n.Mul(e.Radius))
			f.accumulate(contactForce(n, overlap, self.pointVelocity(ra), c), ra)
		}
		forces[i] = f
	}
}

func clearForce(g compute.Group, a *compute.Args) {
	forces := compute.Slice[Force](a, "Forces")
	start, end := threads(g, len(forces))
	for i := start; i < end; i++ {
		forces[i] = Force{}
	}
}

// integrate advances one semi-implicit Euler step: velocity from the summed
// forces first, then position from the new velocity.
func integrate(g compute.Group, a *compute.Args) {
	in := compute.Slice[particle.State](a, "Particles")
	pf := compute.Slice[Force](a, "ParticleForces")
	of := compute.Slice[Force](a, "ObjectForces")
	tf := compute.Slice[Force](a, "TerrainForces")
	out := compute.Slice[particle.State](a, "Out")
	gravity := a.Vector3("_Gravity")
	dt := a.Float("_Dt")
	invMass := a.Float("_InvMass")
	invInertia := a.Matrix3("_InvInertia")

	start, end := threads(g, a.Int("_Count"))
	for i := start; i < end; i++ {
		s := in[i]
		force := pf[i].Force.Add(of[i].Force).Add(tf[i].Force)
		torque := pf[i].Torque.Add(of[i].Torque).Add(tf[i].Torque)

		acc := force.Mul(invMass).Add(gravity)
		v := s.Velocity.Add(acc.Mul(dt))
		x := s.Position.Add(v.Mul(dt))

		q := s.Rotation()
		rot := q.Mat4().Mat3()
		worldInv := rot.Mul3(invInertia).Mul3(rot.Transpose())
		w := s.AngularVelocity.Add(worldInv.Mul3x1(torque).Mul(dt))
		q = q.Add(mgl32.Quat{V: w}.Mul(q).Scale(0.5 * dt)).Normalize()

		next := particle.State{Position: x, Velocity: v, AngularVelocity: w}
		next.SetRotation(q)
		out[i] = next
	}
}
