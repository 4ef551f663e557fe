package solver

import "github.com/go-gl/mathgl/mgl32"

// Force is the accumulated force and torque on one particle from one
// collision source.
type Force struct {
	Force  mgl32.Vec3
	Torque mgl32.Vec3
}

// contactParams are the coefficients of one contact pair.
type contactParams struct {
	Contact
	Mu float32
}

// overlapOf tests two spheres. n points from a to b.
func overlapOf(pa mgl32.Vec3, ra float32, pb mgl32.Vec3, rb float32) (n mgl32.Vec3, overlap float32, ok bool) {
	d := pb.Sub(pa)
	dist := d.Len()
	overlap = ra + rb - dist
	if overlap <= 0 {
		return mgl32.Vec3{}, 0, false
	}
	if dist < 1e-7 {
		return mgl32.Vec3{0, 1, 0}, overlap, true
	}
	return d.Mul(1 / dist), overlap, true
}

// contactForce returns the force on body a for a contact with normal n
// (a toward b), penetration overlap and relative velocity vrel = va - vb
// at the contact point.
func contactForce(n mgl32.Vec3, overlap float32, vrel mgl32.Vec3, c contactParams) mgl32.Vec3 {
	vn := vrel.Dot(n)
	fn := c.Stiffness*overlap + c.NormalDamping*vn
	if fn <= 0 {
		return mgl32.Vec3{}
	}
	f := n.Mul(-fn)

	vt := vrel.Sub(n.Mul(vn))
	speed := vt.Len()
	if speed > 1e-7 {
		ft := min(c.TangentialDamping*speed, c.Mu*fn)
		f = f.Sub(vt.Mul(ft / speed))
	}
	return f
}

// body is a particle's pose and velocity as seen by the contact kernels.
type body struct {
	pos, vel, angVel mgl32.Vec3
	rot              mgl32.Quat
	com              mgl32.Vec3
}

// element returns the world center of an element and its lever arm about
// the center of mass.
func (b body) element(offset mgl32.Vec3) (center, arm mgl32.Vec3) {
	return b.pos.Add(b.rot.Rotate(offset)), b.rot.Rotate(offset.Sub(b.com))
}

// pointVelocity is the velocity of a material point at lever arm r.
func (b body) pointVelocity(r mgl32.Vec3) mgl32.Vec3 {
	return b.vel.Add(b.angVel.Cross(r))
}

// accumulate adds f applied at lever arm r.
func (f *Force) accumulate(force, r mgl32.Vec3) {
	f.Force = f.Force.Add(force)
	f.Torque = f.Torque.Add(r.Cross(force))
}
