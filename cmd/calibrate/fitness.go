package main

import (
	"fmt"
	"math"
	"sync"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/pthm-cable/sand/compute"
	"github.com/pthm-cable/sand/config"
	"github.com/pthm-cable/sand/particle"
	"github.com/pthm-cable/sand/solver"
	"github.com/pthm-cable/sand/terrain"
)

// dropGrains is the number of grains dropped side by side; it is also the
// block size of the drop pipeline.
const dropGrains = 4

// penetrationLimit is the deepest acceptable overlap, as a fraction of the
// grain radius.
const penetrationLimit = 0.1

// DropResult summarizes one drop test.
type DropResult struct {
	Restitution    float64 // rebound speed over impact speed
	MaxPenetration float64 // deepest overlap over grain radius
	Rebounded      bool    // every grain left the ground before the run ended
}

// DropEvaluator drops single grains onto flat terrain with gravity off and
// measures how much normal speed survives the contact.
type DropEvaluator struct {
	cfg     *config.Config
	workers int

	mu         sync.Mutex
	lastResult DropResult
}

// NewDropEvaluator creates an evaluator for the calibrate section of cfg.
func NewDropEvaluator(cfg *config.Config, workers int) *DropEvaluator {
	return &DropEvaluator{cfg: cfg, workers: workers}
}

// LastResult returns the drop result from the most recent Evaluate call.
func (de *DropEvaluator) LastResult() DropResult {
	de.mu.Lock()
	defer de.mu.Unlock()
	return de.lastResult
}

// Evaluate returns the fitness of a contact (lower = better): squared
// restitution error plus a penalty for overlaps deeper than
// penetrationLimit.
func (de *DropEvaluator) Evaluate(contact solver.Contact) float64 {
	res, err := de.Drop(contact)
	if err != nil {
		return math.Inf(1)
	}
	de.mu.Lock()
	de.lastResult = res
	de.mu.Unlock()
	return Fitness(res, de.cfg.Calibrate.TargetRestitution)
}

// Fitness scores a drop result against the target restitution.
func Fitness(res DropResult, target float64) float64 {
	diff := res.Restitution - target
	f := diff * diff
	if over := res.MaxPenetration - penetrationLimit; over > 0 {
		f += 100 * over * over
	}
	if !res.Rebounded && target > 0 {
		f += 1
	}
	return f
}

// Drop runs the drop test with the given contact coefficients.
func (de *DropEvaluator) Drop(contact solver.Contact) (DropResult, error) {
	p := de.cfg.Particles
	cal := de.cfg.Calibrate
	radius := float32(p.Radius)

	sub, err := particle.NewSubstance(particle.LayoutSimple, radius, float32(p.Density), float32(p.Mu))
	if err != nil {
		return DropResult{}, err
	}
	defer sub.Release()

	pc := de.cfg.Pipeline()
	pc.Gravity = mgl32.Vec3{}
	pc.BlockSize = dropGrains
	pc.FieldCenter = mgl32.Vec3{}
	pc.Contact = contact

	dev := compute.NewDevice(de.workers)
	defer dev.Close()
	s, err := solver.New(dev, pc)
	if err != nil {
		return DropResult{}, err
	}
	defer s.Release()

	field, err := terrain.Flat(8, mgl32.Vec3{8, 1, 8}, 0)
	if err != nil {
		return DropResult{}, err
	}
	if err := s.SetTerrain(field, mgl32.Vec3{-4, 0, -4}); err != nil {
		return DropResult{}, err
	}

	// Grains start just clear of the ground, a full cell apart. The field
	// grid reorders the set every step, so grains are tracked by x slot.
	speed := float32(cal.DropSpeed)
	spacing := pc.FieldCellSize * 2
	states := make([]particle.State, dropGrains)
	for i := range states {
		states[i] = particle.State{
			Position:    mgl32.Vec3{(float32(i) - 1.5) * spacing, radius * 1.01, 0},
			Velocity:    mgl32.Vec3{0, -speed, 0},
			Orientation: particle.IdentityOrientation,
		}
	}
	set := particle.NewSet("drop", states, sub)
	defer set.Release()
	if err := s.SetMainParticles(set); err != nil {
		return DropResult{}, err
	}

	var (
		res       DropResult
		touched   int
		left      int
		rebound   float64
		done      [dropGrains]bool
		inContact [dropGrains]bool
	)
	for step := 0; step < cal.Steps && left < dropGrains; step++ {
		s.Step(solver.Frame{Time: pc.MaxTimestep})
		for _, st := range set.States() {
			i := int(math.Round(float64(st.Position.X()/spacing + 1.5)))
			if i < 0 || i >= dropGrains || done[i] {
				continue
			}
			y := st.Position.Y()
			if pen := float64((radius - y) / radius); pen > res.MaxPenetration {
				res.MaxPenetration = pen
			}
			switch {
			case y < radius && !inContact[i]:
				inContact[i] = true
				touched++
			case y >= radius && inContact[i]:
				done[i] = true
				left++
				rebound += math.Max(float64(st.Velocity.Y()), 0)
			}
		}
	}

	if touched == 0 {
		return DropResult{}, fmt.Errorf("no grain reached the ground in %d steps", cal.Steps)
	}
	res.Rebounded = left == dropGrains
	res.Restitution = rebound / float64(dropGrains) / float64(speed)
	return res, nil
}

// AnalyticRestitution is the restitution of a linear spring-dashpot
// contact with stiffness k, damping c and mass m.
func AnalyticRestitution(k, c, m float64) float64 {
	zeta := c / (2 * math.Sqrt(k*m))
	if zeta >= 1 {
		return 0
	}
	return math.Exp(-math.Pi * zeta / math.Sqrt(1-zeta*zeta))
}
