// Package systems contains ECS systems for the simulation.
package systems

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/sand/components"
	"github.com/pthm-cable/sand/solver"
)

// KinematicSystem scripts the motion of solver objects. Each entity owns
// one solver registration; Update turns anchors plus motion components
// into the pose list a solver step consumes.
type KinematicSystem struct {
	mapper *ecs.Map3[components.Anchor, components.Transform, components.Collider]
	filter ecs.Filter3[components.Anchor, components.Transform, components.Collider]
	spins  *ecs.Map[components.Spin]
	sways  *ecs.Map[components.Sway]
	drives *ecs.Map[components.Drive]

	poses []solver.Pose
}

// NewKinematicSystem creates a new kinematic system.
func NewKinematicSystem(w *ecs.World) *KinematicSystem {
	return &KinematicSystem{
		mapper: ecs.NewMap3[components.Anchor, components.Transform, components.Collider](w),
		filter: *ecs.NewFilter3[components.Anchor, components.Transform, components.Collider](w),
		spins:  ecs.NewMap[components.Spin](w),
		sways:  ecs.NewMap[components.Sway](w),
		drives: ecs.NewMap[components.Drive](w),
	}
}

// Spawn creates an entity for a registered object. spin and sway may be nil.
func (s *KinematicSystem) Spawn(c components.Collider, a components.Anchor, spin *components.Spin, sway *components.Sway) ecs.Entity {
	t := components.Transform{Position: a.Position, Rotation: a.Rotation}
	e := s.mapper.NewEntity(&a, &t, &c)
	if spin != nil {
		sp := *spin
		sp.Axis = unitOr(sp.Axis, mgl32.Vec3{0, 1, 0})
		s.spins.Add(e, &sp)
	}
	if sway != nil {
		sw := *sway
		sw.Axis = unitOr(sw.Axis, mgl32.Vec3{1, 0, 0})
		s.sways.Add(e, &sw)
	}
	s.drives.Add(e, &components.Drive{})

	for len(s.poses) <= c.Slot {
		s.poses = append(s.poses, solver.IdentityPose)
	}
	s.poses[c.Slot] = solver.Pose{Position: t.Position, Rotation: t.Rotation}
	return e
}

func unitOr(v, fallback mgl32.Vec3) mgl32.Vec3 {
	if v.Len() == 0 {
		return fallback
	}
	return v.Normalize()
}

// Nudge adds to the user drive of the object in slot.
func (s *KinematicSystem) Nudge(slot int, offset mgl32.Vec3, yaw float32) bool {
	query := s.filter.Query()
	for query.Next() {
		_, _, c := query.Get()
		if c.Slot != slot {
			continue
		}
		d := s.drives.Get(query.Entity())
		d.Offset = d.Offset.Add(offset)
		d.Yaw += yaw
		query.Close()
		return true
	}
	return false
}

// Update evaluates every object's pose at simulation time t (seconds) and
// returns them indexed by solver slot. The slice is reused between calls.
func (s *KinematicSystem) Update(t float32) []solver.Pose {
	query := s.filter.Query()
	for query.Next() {
		anchor, tr, c := query.Get()
		e := query.Entity()

		pos := anchor.Position
		rot := anchor.Rotation

		if s.sways.Has(e) {
			sw := s.sways.Get(e)
			phase := 2 * math.Pi * float64(sw.Frequency) * float64(t)
			pos = pos.Add(sw.Axis.Mul(sw.Amplitude * float32(math.Sin(phase))))
		}
		if s.spins.Has(e) {
			sp := s.spins.Get(e)
			rot = mgl32.QuatRotate(sp.Rate*t, sp.Axis).Mul(rot)
		}
		if d := s.drives.Get(e); d != nil {
			pos = pos.Add(d.Offset)
			if d.Yaw != 0 {
				rot = mgl32.QuatRotate(d.Yaw, mgl32.Vec3{0, 1, 0}).Mul(rot)
			}
		}

		tr.Position = pos
		tr.Rotation = rot.Normalize()
		s.poses[c.Slot] = solver.Pose{Position: tr.Position, Rotation: tr.Rotation}
	}
	return s.poses
}

// Poses returns the poses computed by the last Update.
func (s *KinematicSystem) Poses() []solver.Pose { return s.poses }
