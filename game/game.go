// Package game wires the solver, the kinematic scene, telemetry and the
// frame bridges into a runnable sand box.
package game

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/sand/camera"
	"github.com/pthm-cable/sand/compute"
	"github.com/pthm-cable/sand/config"
	"github.com/pthm-cable/sand/inspector"
	"github.com/pthm-cable/sand/particle"
	"github.com/pthm-cable/sand/renderer"
	"github.com/pthm-cable/sand/solver"
	"github.com/pthm-cable/sand/stream"
	"github.com/pthm-cable/sand/systems"
	"github.com/pthm-cable/sand/telemetry"
	"github.com/pthm-cable/sand/terrain"
	"github.com/pthm-cable/sand/ui"
)

// Options configures a Game beyond what the config file holds.
type Options struct {
	Seed        int64
	Headless    bool
	LogStats    bool
	OutputDir   string
	SnapshotDir string
	RestorePath string  // snapshot to take the initial particles from
	FrameTime   float32 // fixed frame time for headless runs, 0 = config
	StreamAddr  string  // overrides stream.addr when set
}

// Bridge receives particle frames for presentation.
type Bridge interface {
	Present(states []particle.State, size float32) error
}

// Game holds the complete simulation state.
type Game struct {
	cfg  *config.Config
	opts Options
	rng  *rand.Rand

	dev       *compute.Device
	solver    *solver.Solver
	substance *particle.Substance
	set       *particle.Set

	objects       []*solver.Object
	objectSubs    []*particle.Substance
	terrain       *terrain.Field
	terrainOrigin mgl32.Vec3

	// Kinematic scene
	world      *ecs.World
	kinematics *systems.KinematicSystem

	// Telemetry
	collector        *telemetry.Collector
	perfCollector    *telemetry.PerfCollector
	bookmarkDetector *telemetry.BookmarkDetector
	outputManager    *telemetry.OutputManager

	// Presentation
	hub         *stream.Hub
	controlCh   <-chan stream.Control
	stopStream  context.CancelFunc
	streamEvery int
	bridges     []Bridge
	viewer      *renderer.Viewer
	cam         *camera.Camera
	hud         *ui.HUD
	controls    *ui.ControlsPanel
	perfPanel   *ui.PerfPanel
	statsPanel  *ui.StatsPanel
	inspector   *inspector.Inspector
	lastStats   telemetry.WindowStats
	hasStats    bool

	// State
	step     uint64
	stepBase uint64 // step of a restored snapshot
	simTime  float32
	paused   bool
	speed    int // solver steps per viewer frame
	lastInfo solver.StepInfo

	// Readback cache, valid for readStep
	states   []particle.State
	readStep uint64
	hasRead  bool
}

// NewGame builds the scene described by the global config.
func NewGame(opts Options) (*Game, error) {
	return NewGameWithConfig(config.Cfg(), opts)
}

// NewGameWithConfig builds the scene described by cfg.
func NewGameWithConfig(cfg *config.Config, opts Options) (*Game, error) {
	if opts.FrameTime <= 0 {
		opts.FrameTime = cfg.Derived.FrameTime32
	}
	g := &Game{
		cfg:         cfg,
		opts:        opts,
		rng:         rand.New(rand.NewSource(opts.Seed)),
		dev:         compute.NewDevice(cfg.Solver.Workers),
		world:       ecs.NewWorld(),
		speed:       max(1, cfg.Viewer.StepsPerFrame),
		streamEvery: max(1, cfg.Stream.Every),
	}
	g.kinematics = systems.NewKinematicSystem(g.world)

	s, err := solver.New(g.dev, cfg.Pipeline())
	if err != nil {
		g.dev.Close()
		return nil, err
	}
	g.solver = s

	if err := g.buildScene(); err != nil {
		g.Unload()
		return nil, err
	}
	if err := g.setupTelemetry(); err != nil {
		g.Unload()
		return nil, err
	}
	g.setupStream()

	if !opts.Headless {
		g.setupViewer()
	}

	slog.Info("scene ready",
		"particles", g.set.Len(),
		"layout", g.substance.Layout.String(),
		"objects", len(g.objects),
		"terrain", g.terrain != nil,
		"workers", g.dev.Workers(),
		"seed", opts.Seed,
	)
	return g, nil
}

// AddBridge registers an extra frame consumer. It receives a frame every
// stream.every steps.
func (g *Game) AddBridge(b Bridge) { g.bridges = append(g.bridges, b) }

// Step returns the number of completed solver steps.
func (g *Game) Step() uint64 { return g.step }

// SimTime returns the simulated seconds.
func (g *Game) SimTime() float32 { return g.simTime }

// Solver exposes the pipeline for inspection.
func (g *Game) Solver() *solver.Solver { return g.solver }

// States returns the particle states after the last step. The slice is
// shared until the next step.
func (g *Game) States() []particle.State {
	if !g.hasRead || g.readStep != g.step {
		g.states = g.set.States()
		g.readStep = g.step
		g.hasRead = true
	}
	return g.states
}

// advance runs one solver step with the given frame time.
func (g *Game) advance(frameTime float32) {
	g.perfCollector.StartStep()

	g.perfCollector.StartPhase(telemetry.PhaseKinematic)
	dt := g.solver.Timestep(frameTime)
	poses := g.kinematics.Update(g.simTime + dt)

	info := g.solver.Step(solver.Frame{Time: frameTime, Poses: poses})
	g.lastInfo = info
	if info.Dt > 0 {
		g.step = g.stepBase + info.Step
		g.simTime += info.Dt
	}
	g.collector.RecordStep(info)

	g.perfCollector.StartPhase(telemetry.PhaseTelemetry)
	g.flushTelemetry()

	g.perfCollector.StartPhase(telemetry.PhaseStream)
	g.present()

	g.perfCollector.EndStep()
}

// present sends the current frame to every bridge on its cadence.
func (g *Game) present() {
	if len(g.bridges) == 0 || g.step%uint64(g.streamEvery) != 0 {
		return
	}
	states := g.States()
	for _, b := range g.bridges {
		if err := b.Present(states, g.substance.Radius); err != nil {
			slog.Warn("frame bridge failed", "step", g.step, "error", err)
		}
	}
}

// UpdateHeadless runs one step at the fixed frame time.
func (g *Game) UpdateHeadless() {
	g.applyControls()
	if g.paused {
		return
	}
	g.advance(g.opts.FrameTime)
}

// RunHeadless steps until ctx is done or maxSteps steps have completed
// (0 = unlimited). While paused it blocks until a viewer control arrives.
func (g *Game) RunHeadless(ctx context.Context, maxSteps int) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if g.paused {
			if err := g.waitControl(ctx); err != nil {
				return err
			}
			continue
		}
		g.UpdateHeadless()
		if maxSteps > 0 && g.step >= uint64(maxSteps) {
			slog.Info("max steps reached", "step", g.step, "sim_time", g.simTime)
			return nil
		}
	}
}

// waitControl blocks until the next viewer control or ctx is done. Without a
// control source only ctx can end the wait.
func (g *Game) waitControl(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case c := <-g.controlCh:
		g.applyControl(c)
		return nil
	}
}

// applyControls drains viewer controls from the stream hub.
func (g *Game) applyControls() {
	if g.controlCh == nil {
		return
	}
	for {
		select {
		case c := <-g.controlCh:
			g.applyControl(c)
		default:
			return
		}
	}
}

func (g *Game) applyControl(c stream.Control) {
	if c.Paused != nil {
		g.paused = *c.Paused
	}
	if c.Speed != nil && *c.Speed > 0 {
		g.speed = *c.Speed
	}
	if c.Reset {
		if err := g.Reset(); err != nil {
			slog.Error("reset failed", "error", err)
		}
	}
}

// Reset regenerates the main particle set. The clock keeps running so
// kinematic objects carry on from their current pose.
func (g *Game) Reset() error {
	set, err := g.spawnParticles(g.substance)
	if err != nil {
		return err
	}
	if err := g.solver.SetMainParticles(set); err != nil {
		set.Release()
		return fmt.Errorf("reset: %w", err)
	}
	g.set.Release()
	g.set = set
	g.hasRead = false
	slog.Info("particles reset", "step", g.step, "particles", set.Len())
	return nil
}

// Unload releases everything the game owns.
func (g *Game) Unload() {
	if g.stopStream != nil {
		g.stopStream()
	}
	if g.outputManager != nil {
		if g.set != nil {
			if path, err := g.outputManager.WriteParticles(g.step, g.States()); err != nil {
				slog.Error("failed to write final particles", "error", err)
			} else {
				slog.Info("final particles written", "path", path)
			}
		}
		if err := g.outputManager.Close(); err != nil {
			slog.Error("failed to close output", "error", err)
		}
	}
	if g.viewer != nil {
		g.viewer.Unload()
	}
	if g.solver != nil {
		g.solver.Release()
	}
	for _, o := range g.objects {
		o.Release()
	}
	for _, sub := range g.objectSubs {
		sub.Release()
	}
	if g.set != nil {
		g.set.Release()
	}
	if g.substance != nil {
		g.substance.Release()
	}
	g.dev.Close()
}
