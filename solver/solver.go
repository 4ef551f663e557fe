// Package solver advances a granular particle set one step at a time
// against rigid objects and terrain. Each step rebuilds the field grid,
// accumulates contact forces from each collision source into its own
// buffer and integrates with a clamped timestep.
package solver

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/pthm-cable/sand/compute"
	"github.com/pthm-cable/sand/particle"
	"github.com/pthm-cable/sand/spatial"
	"github.com/pthm-cable/sand/terrain"
)

// Phase names reported to a PhaseRecorder.
const (
	PhaseFieldGrid = "field_grid"
	PhaseParticles = "particle_collision"
	PhaseObjects   = "object_collision"
	PhaseTerrain   = "terrain_collision"
	PhaseIntegrate = "integrate"
)

var (
	ErrNoParticles  = errors.New("particle set is empty")
	ErrBlockSize    = errors.New("particle count not divisible by block size")
	ErrCellTooSmall = errors.New("grid cell smaller than the contact reach")
	ErrNoSamples    = errors.New("object has no surface samples")
	ErrTerrainSize  = errors.New("terrain sample count does not match resolution")
	ErrConfig       = errors.New("invalid solver config")
)

// PhaseRecorder receives the name of each pipeline phase as it starts.
type PhaseRecorder interface {
	StartPhase(name string)
}

// Frame is the input of one step.
type Frame struct {
	Time float32 // wall time since the previous step
	// Poses holds the current pose of each registered object, in
	// registration order. Objects without an entry keep their last pose.
	Poses []Pose
}

// StepInfo describes a completed step.
type StepInfo struct {
	Step    uint64
	Dt      float32
	Objects int
	Terrain bool
}

type objectSlot struct {
	obj      *Object
	grid     *spatial.Grid
	origin   mgl32.Mat4 // grid corner in the object frame
	pose     Pose
	built    Pose
	hasBuilt bool
	moved    bool
}

type terrainSlot struct {
	samples *compute.Buffer[terrain.Sample]
	res     int
	size    mgl32.Vec3
	origin  mgl32.Vec3
}

// Solver owns the force buffers, the field grid, one grid per object and
// the uploaded terrain. It borrows the particle set and the objects.
type Solver struct {
	cfg     Config
	dev     *compute.Device
	program *compute.Program

	particleK  *compute.Kernel
	transformK *compute.Kernel
	objectK    *compute.Kernel
	terrainK   *compute.Kernel
	clearK     *compute.Kernel
	integrateK *compute.Kernel

	main           *particle.Set
	fieldGrid      *spatial.Grid
	particleForces *compute.Buffer[Force]
	objectForces   *compute.Buffer[Force]
	terrainForces  *compute.Buffer[Force]

	objects []*objectSlot
	terrain *terrainSlot

	phases PhaseRecorder
	step   uint64

	warnedMain    bool
	warnedObjects bool
	warnedTerrain bool
}

// New creates a solver. A missing kernel is reported as an error.
func New(dev *compute.Device, cfg Config) (*Solver, error) {
	if cfg.BlockSize <= 0 || cfg.MaxTimestep <= 0 || cfg.FieldCellSize <= 0 || cfg.ObjectCellSize <= 0 {
		return nil, fmt.Errorf("solver: block %d timestep %g cells %g/%g: %w",
			cfg.BlockSize, cfg.MaxTimestep, cfg.FieldCellSize, cfg.ObjectCellSize, ErrConfig)
	}
	s := &Solver{
		cfg:     cfg,
		dev:     dev,
		program: NewProgram(cfg.BlockSize),
	}
	for _, k := range []struct {
		name string
		dst  **compute.Kernel
	}{
		{KernelParticle, &s.particleK},
		{KernelObjectTransform, &s.transformK},
		{KernelObject, &s.objectK},
		{KernelTerrain, &s.terrainK},
		{KernelClearForce, &s.clearK},
		{KernelIntegrate, &s.integrateK},
	} {
		var err error
		if *k.dst, err = s.program.FindKernel(k.name); err != nil {
			return nil, fmt.Errorf("solver: %w", err)
		}
	}
	return s, nil
}

// Config returns the solver settings.
func (s *Solver) Config() Config { return s.cfg }

// SetPhaseRecorder installs a hook called at the start of every phase.
func (s *Solver) SetPhaseRecorder(r PhaseRecorder) { s.phases = r }

// Timestep returns the step length used for a given frame time.
func (s *Solver) Timestep(frameTime float32) float32 {
	return min(s.cfg.MaxTimestep, frameTime)
}

// fieldParams returns the geometry of the world-fixed grid.
func (s *Solver) fieldParams() spatial.Params {
	return spatial.Params{
		CellSize:   s.cfg.FieldCellSize,
		Resolution: spatial.ResolutionFor(s.cfg.FieldSize, s.cfg.FieldCellSize),
	}
}

// FieldTransform places the field grid corner so the grid is centered on
// FieldCenter.
func (s *Solver) FieldTransform() mgl32.Mat4 {
	corner := s.cfg.FieldCenter.Sub(s.cfg.FieldSize.Mul(0.5))
	return mgl32.Translate3D(corner[0], corner[1], corner[2])
}

// SetMainParticles registers the set the pipeline advances.
func (s *Solver) SetMainParticles(set *particle.Set) error {
	n := set.Len()
	if n == 0 {
		return fmt.Errorf("solver: %w", ErrNoParticles)
	}
	if n%s.cfg.BlockSize != 0 {
		return fmt.Errorf("solver: %d particles, block %d: %w", n, s.cfg.BlockSize, ErrBlockSize)
	}
	if reach := 2 * set.Substance.BoundingRadius; s.cfg.FieldCellSize < reach {
		return fmt.Errorf("solver: field cell %g < %g: %w", s.cfg.FieldCellSize, reach, ErrCellTooSmall)
	}
	for _, o := range s.objects {
		if err := s.checkObjectCell(set.Substance, o.obj); err != nil {
			return err
		}
	}

	grid, err := spatial.NewGrid(s.dev, "field", n, s.fieldParams())
	if err != nil {
		return fmt.Errorf("solver: %w", err)
	}
	s.releaseMain()
	s.main = set
	s.fieldGrid = grid
	s.particleForces = compute.NewBuffer[Force]("forces.particle", n)
	s.objectForces = compute.NewBuffer[Force]("forces.object", n)
	s.terrainForces = compute.NewBuffer[Force]("forces.terrain", n)
	s.warnedMain = false
	return nil
}

func (s *Solver) checkObjectCell(main *particle.Substance, o *Object) error {
	if reach := main.BoundingRadius + o.SampleRadius(); s.cfg.ObjectCellSize < reach {
		return fmt.Errorf("solver: object %q cell %g < %g: %w", o.Name, s.cfg.ObjectCellSize, reach, ErrCellTooSmall)
	}
	return nil
}

// AddObject registers a collider and returns its index in Frame.Poses.
func (s *Solver) AddObject(o *Object, pose Pose) (int, error) {
	if s.main != nil {
		if err := s.checkObjectCell(s.main.Substance, o); err != nil {
			return 0, err
		}
	}
	lo, hi := o.Bounds()
	margin := o.SampleRadius() + s.cfg.ObjectCellSize
	corner := lo.Sub(mgl32.Vec3{margin, margin, margin})
	params := spatial.Params{
		CellSize:   s.cfg.ObjectCellSize,
		Resolution: spatial.ResolutionFor(hi.Sub(lo).Add(mgl32.Vec3{2 * margin, 2 * margin, 2 * margin}), s.cfg.ObjectCellSize),
	}
	grid, err := spatial.NewGrid(s.dev, o.Name, o.Len(), params)
	if err != nil {
		return 0, fmt.Errorf("solver: object %q: %w", o.Name, err)
	}
	s.objects = append(s.objects, &objectSlot{
		obj:    o,
		grid:   grid,
		origin: mgl32.Translate3D(corner[0], corner[1], corner[2]),
		pose:   pose,
	})
	s.warnedObjects = false
	return len(s.objects) - 1, nil
}

// Objects returns the number of registered colliders.
func (s *Solver) Objects() int { return len(s.objects) }

// SetTerrain uploads a height field whose (0, 0) corner sits at origin.
// It replaces any previous terrain.
func (s *Solver) SetTerrain(p terrain.Provider, origin mgl32.Vec3) error {
	res := p.Resolution()
	samples := p.Samples()
	if res < 2 || len(samples) != res*res {
		return fmt.Errorf("solver: %d samples at resolution %d: %w", len(samples), res, ErrTerrainSize)
	}
	if s.terrain != nil {
		s.terrain.samples.Release()
	}
	s.terrain = &terrainSlot{
		samples: compute.NewBufferFrom("terrain", samples),
		res:     res,
		size:    p.Size(),
		origin:  origin,
	}
	s.warnedTerrain = false
	return nil
}

func (s *Solver) phase(name string) {
	if s.phases != nil {
		s.phases.StartPhase(name)
	}
}

// Step advances the main particle set by one timestep. State must only be
// read between calls.
func (s *Solver) Step(frame Frame) StepInfo {
	if s.main == nil {
		if !s.warnedMain {
			slog.Warn("solver step skipped", "reason", "no main particle set registered")
			s.warnedMain = true
		}
		return StepInfo{Step: s.step}
	}

	dt := s.Timestep(frame.Time)
	n := s.main.Len()
	groups := n / s.cfg.BlockSize
	sub := s.main.Substance
	states := s.main.Buffers()

	s.program.SetInt("_Count", n)
	s.program.SetVector3("_CenterOfMass", sub.CenterOfMass)
	s.program.SetFloat("_BoundingRadius", sub.BoundingRadius)
	s.program.SetFloat("_Stiffness", s.cfg.Contact.Stiffness)
	s.program.SetFloat("_NormalDamping", s.cfg.Contact.NormalDamping)
	s.program.SetFloat("_TangentialDamping", s.cfg.Contact.TangentialDamping)

	s.phase(PhaseFieldGrid)
	s.fieldGrid.Build(states, s.FieldTransform())

	s.phase(PhaseParticles)
	s.particlePhase(groups)

	s.phase(PhaseObjects)
	s.objectPhase(frame, dt, groups)

	s.phase(PhaseTerrain)
	s.terrainPhase(groups)

	s.phase(PhaseIntegrate)
	s.program.SetVector3("_Gravity", s.cfg.Gravity)
	s.program.SetFloat("_Dt", dt)
	s.program.SetFloat("_InvMass", 1/sub.TotalMass)
	s.program.SetMatrix3("_InvInertia", sub.InverseInertia)
	s.integrateK.SetBuffer("Particles", states.Live())
	s.integrateK.SetBuffer("ParticleForces", s.particleForces)
	s.integrateK.SetBuffer("ObjectForces", s.objectForces)
	s.integrateK.SetBuffer("TerrainForces", s.terrainForces)
	s.integrateK.SetBuffer("Out", states.Scratch())
	s.dev.Dispatch(s.integrateK, groups, 1, 1)
	states.Swap()

	s.step++
	return StepInfo{
		Step:    s.step,
		Dt:      dt,
		Objects: len(s.objects),
		Terrain: s.terrain != nil,
	}
}

func (s *Solver) particlePhase(groups int) {
	grid := s.fieldGrid.Params()
	s.program.SetMatrix("_GridInv", s.fieldGrid.Inverse())
	s.program.SetFloat("_GridCellSize", grid.CellSize)
	s.program.SetInts("_GridResolution", grid.Resolution[0], grid.Resolution[1], grid.Resolution[2])

	s.particleK.SetBuffer("Particles", s.main.Live())
	s.particleK.SetBuffer("Elements", s.main.Substance.ElementBuffer())
	s.particleK.SetBuffer("Grid", s.fieldGrid.Ranges())
	s.particleK.SetBuffer("Forces", s.particleForces)
	s.dev.Dispatch(s.particleK, groups, 1, 1)
}

func (s *Solver) clear(forces *compute.Buffer[Force]) {
	s.clearK.SetBuffer("Forces", forces)
	s.dev.Dispatch(s.clearK, s.clearK.Groups(forces.Len()), 1, 1)
}

func (s *Solver) objectPhase(frame Frame, dt float32, groups int) {
	s.clear(s.objectForces)
	if len(s.objects) == 0 {
		if !s.warnedObjects {
			slog.Warn("object phase skipped", "reason", "no collision objects registered")
			s.warnedObjects = true
		}
		return
	}

	for i, pose := range frame.Poses {
		if i < len(s.objects) {
			s.objects[i].pose = pose
		}
	}

	for _, o := range s.objects {
		s.placeObject(o, dt)

		params := o.grid.Params()
		s.program.SetMatrix("_ObjGridInv", o.grid.Inverse())
		s.program.SetFloat("_ObjCellSize", params.CellSize)
		s.program.SetInts("_ObjResolution", params.Resolution[0], params.Resolution[1], params.Resolution[2])
		s.program.SetFloat("_SampleRadius", o.obj.SampleRadius())
		s.program.SetFloat("_SampleMu", o.obj.Substance.Mu)

		s.objectK.SetBuffer("Particles", s.main.Live())
		s.objectK.SetBuffer("Elements", s.main.Substance.ElementBuffer())
		s.objectK.SetBuffer("Samples", o.obj.Samples().Live())
		s.objectK.SetBuffer("SampleGrid", o.grid.Ranges())
		s.objectK.SetBuffer("Forces", s.objectForces)
		s.dev.Dispatch(s.objectK, groups, 1, 1)
	}
}

// placeObject rewrites the world samples and re-sorts the object grid when
// the pose changed, and once more after it stops so sample velocities
// return to zero.
func (s *Solver) placeObject(o *objectSlot, dt float32) {
	changed := !o.hasBuilt || o.pose != o.built
	if !changed && !o.moved {
		return
	}
	prev := o.built
	if !o.hasBuilt {
		prev = o.pose
	}

	s.program.SetMatrix("_Pose", o.pose.Mat4())
	s.program.SetMatrix("_PrevPose", prev.Mat4())
	invDt := float32(0)
	if dt > 0 {
		invDt = 1 / dt
	}
	s.program.SetFloat("_InvDt", invDt)

	samples := o.obj.Samples().Buffers()
	s.transformK.SetBuffer("Local", o.obj.local)
	s.transformK.SetBuffer("Samples", samples.Live())
	s.dev.Dispatch(s.transformK, s.transformK.Groups(o.obj.Len()), 1, 1)

	o.grid.Build(samples, o.pose.Mat4().Mul4(o.origin))
	o.built = o.pose
	o.hasBuilt = true
	o.moved = changed
}

func (s *Solver) terrainPhase(groups int) {
	if s.terrain == nil {
		if !s.warnedTerrain {
			slog.Warn("terrain phase skipped", "reason", "no terrain registered")
			s.warnedTerrain = true
		}
		s.clear(s.terrainForces)
		return
	}

	t := s.terrain
	s.program.SetVector3("_TerrainOrigin", t.origin)
	s.program.SetVector3("_TerrainSize", t.size)
	s.program.SetInt("_TerrainRes", t.res)
	s.program.SetFloat("_TerrainFriction", s.cfg.TerrainFriction)

	s.terrainK.SetBuffer("Particles", s.main.Live())
	s.terrainK.SetBuffer("Elements", s.main.Substance.ElementBuffer())
	s.terrainK.SetBuffer("Terrain", t.samples)
	s.terrainK.SetBuffer("Forces", s.terrainForces)
	s.dev.Dispatch(s.terrainK, groups, 1, 1)
}

// ParticleForces reads back the particle-particle forces of the last step.
func (s *Solver) ParticleForces() []Force { return s.particleForces.GetData() }

// ObjectForces reads back the object forces of the last step.
func (s *Solver) ObjectForces() []Force { return s.objectForces.GetData() }

// TerrainForces reads back the terrain forces of the last step.
func (s *Solver) TerrainForces() []Force { return s.terrainForces.GetData() }

// FieldGrid returns the world-fixed grid, nil before SetMainParticles.
func (s *Solver) FieldGrid() *spatial.Grid { return s.fieldGrid }

func (s *Solver) releaseMain() {
	if s.fieldGrid == nil {
		return
	}
	s.fieldGrid.Release()
	s.particleForces.Release()
	s.objectForces.Release()
	s.terrainForces.Release()
}

// Release frees everything the solver owns. Borrowed particle sets and
// objects are left to their owners.
func (s *Solver) Release() {
	s.releaseMain()
	for _, o := range s.objects {
		o.grid.Release()
	}
	if s.terrain != nil {
		s.terrain.samples.Release()
	}
}
