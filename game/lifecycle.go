package game

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/pthm-cable/sand/components"
	"github.com/pthm-cable/sand/config"
	"github.com/pthm-cable/sand/geometry"
	"github.com/pthm-cable/sand/particle"
	"github.com/pthm-cable/sand/solver"
	"github.com/pthm-cable/sand/telemetry"
	"github.com/pthm-cable/sand/terrain"
)

// objectDensity only feeds the sample substance's inertia, which the
// solver never integrates.
const objectDensity = 1000

// buildScene creates the substance, the main set, the objects and terrain.
func (g *Game) buildScene() error {
	p := g.cfg.Particles

	var restored *telemetry.Snapshot
	if g.opts.RestorePath != "" {
		snap, err := telemetry.LoadSnapshot(g.opts.RestorePath)
		if err != nil {
			return err
		}
		restored = snap
	}

	var err error
	if restored != nil {
		g.substance, err = restored.Substance()
	} else {
		var layout particle.Layout
		layout, err = particle.ParseLayout(p.Layout)
		if err == nil {
			g.substance, err = particle.NewSubstance(layout, float32(p.Radius), float32(p.Density), float32(p.Mu))
		}
	}
	if err != nil {
		return fmt.Errorf("building substance: %w", err)
	}

	// Objects before particles so the solver checks cell sizes once
	if err := g.buildObjects(); err != nil {
		return err
	}

	var set *particle.Set
	if restored != nil {
		set = particle.NewSet("main", restored.States(), g.substance)
		g.stepBase = restored.Step
		g.step = restored.Step
		g.simTime = float32(restored.SimTime)
		slog.Info("restored snapshot", "path", g.opts.RestorePath, "step", restored.Step, "particles", set.Len())
	} else {
		set, err = g.spawnParticles(g.substance)
		if err != nil {
			return err
		}
	}
	if err := g.solver.SetMainParticles(set); err != nil {
		set.Release()
		return err
	}
	g.set = set

	return g.buildTerrain()
}

// particleCount rounds the configured count up to a whole number of blocks.
func (g *Game) particleCount(n int) int {
	block := g.cfg.Solver.BlockSize
	if rem := n % block; rem != 0 {
		rounded := n + block - rem
		slog.Warn("particle count rounded to block size", "requested", n, "count", rounded, "block_size", block)
		return rounded
	}
	return n
}

// spawnParticles generates a fresh main set from the particle config.
func (g *Game) spawnParticles(sub *particle.Substance) (*particle.Set, error) {
	p := g.cfg.Particles
	center := g.cfg.Derived.ParticleCenter
	n := g.particleCount(p.Count)

	var states []particle.State
	switch strings.ToLower(p.Generator) {
	case "sphere":
		states = particle.GenerateSphere(n, center, float32(p.Extent), g.rng)
	case "cube":
		states = particle.GenerateCube(n, center, float32(p.Extent), g.rng)
	case "point":
		states = particle.GeneratePoint(n, center)
	case "mesh":
		shape, err := geometry.New(p.Mesh, p.MeshSize.Mgl())
		if err != nil {
			return nil, fmt.Errorf("particle mesh: %w", err)
		}
		samples := shape.SampleSurface(geometry.ResolutionFor(shape, 2*sub.BoundingRadius))
		block := g.cfg.Solver.BlockSize
		keep := len(samples) / block * block
		if keep == 0 {
			return nil, fmt.Errorf("particle mesh %q: %d samples: %w", p.Mesh, len(samples), solver.ErrNoParticles)
		}
		if keep != len(samples) {
			slog.Warn("mesh samples truncated to block size", "samples", len(samples), "count", keep)
		}
		states = particle.GenerateFromSamples(samples[:keep], mgl32.Translate3D(center[0], center[1], center[2]))
	default:
		return nil, fmt.Errorf("particle generator %q: %w", p.Generator, config.ErrInvalid)
	}
	return particle.NewSet("main", states, sub), nil
}

// buildObjects registers every configured object with the solver and
// spawns its kinematic entity.
func (g *Game) buildObjects() error {
	for _, oc := range g.cfg.Objects {
		shape, err := geometry.New(oc.Shape, oc.Size.Mgl())
		if err != nil {
			return fmt.Errorf("object %q: %w", oc.Name, err)
		}
		sub, err := particle.NewSubstance(particle.LayoutSimple, float32(oc.SampleRadius), objectDensity, g.substance.Mu)
		if err != nil {
			return fmt.Errorf("object %q: %w", oc.Name, err)
		}
		g.objectSubs = append(g.objectSubs, sub)

		local := shape.SampleSurface(geometry.ResolutionFor(shape, float32(oc.SampleSpacing)))
		obj, err := solver.NewObject(oc.Name, local, sub)
		if err != nil {
			return err
		}

		anchor := components.Anchor{Position: oc.Position.Mgl(), Rotation: mgl32.QuatIdent()}
		slot, err := g.solver.AddObject(obj, solver.Pose{Position: anchor.Position, Rotation: anchor.Rotation})
		if err != nil {
			obj.Release()
			return err
		}
		g.objects = append(g.objects, obj)

		var spin *components.Spin
		if oc.SpinRate != 0 {
			spin = &components.Spin{Axis: oc.SpinAxis.Mgl(), Rate: float32(oc.SpinRate)}
		}
		var sway *components.Sway
		if oc.SwayAmplitude != 0 && oc.SwayFrequency != 0 {
			sway = &components.Sway{Axis: oc.SwayAxis.Mgl(), Amplitude: float32(oc.SwayAmplitude), Frequency: float32(oc.SwayFrequency)}
		}
		g.kinematics.Spawn(components.Collider{Slot: slot, Name: oc.Name}, anchor, spin, sway)

		slog.Debug("object registered", "name", oc.Name, "shape", oc.Shape, "samples", obj.Len(), "slot", slot)
	}
	return nil
}

// buildTerrain uploads the configured height field, if any.
func (g *Game) buildTerrain() error {
	tc := g.cfg.Terrain
	if !tc.Enabled {
		return nil
	}

	size := g.cfg.Derived.TerrainSize
	var (
		field *terrain.Field
		err   error
	)
	switch strings.ToLower(tc.Kind) {
	case "flat":
		field, err = terrain.Flat(tc.Resolution, size, float32(tc.Height))
	default:
		field, err = terrain.NewNoise(tc.Resolution, size, terrain.NoiseParams{
			Seed:       tc.Seed,
			Scale:      float32(tc.Scale),
			Octaves:    tc.Octaves,
			Lacunarity: float32(tc.Lacunarity),
			Gain:       float32(tc.Gain),
			Amplitude:  float32(tc.Amplitude),
		})
	}
	if err != nil {
		return fmt.Errorf("building terrain: %w", err)
	}

	origin := g.cfg.Derived.TerrainOrigin
	if err := g.solver.SetTerrain(field, origin); err != nil {
		return err
	}
	g.terrain = field
	g.terrainOrigin = origin
	return nil
}
