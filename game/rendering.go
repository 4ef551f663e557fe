package game

import (
	"log/slog"

	rl "github.com/gen2brain/raylib-go/raylib"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/pthm-cable/sand/camera"
	"github.com/pthm-cable/sand/inspector"
	"github.com/pthm-cable/sand/renderer"
	"github.com/pthm-cable/sand/ui"
)

const controlsLegend = "[Space] pause  [R] reset  [C] colors  [H] panel  [<>] speed  " +
	"[LMB] orbit  [RMB] pan  [Wheel] zoom  [Shift+LMB] inspect  [Arrows/PgUp/PgDn/Q/E] move object"

// setupViewer creates the camera, the 3D viewer and the panels. The raylib
// window must already be open.
func (g *Game) setupViewer() {
	vc := g.cfg.Viewer
	mode, err := renderer.ParseColorMode(vc.ColorMode)
	if err != nil {
		slog.Warn("falling back to sand colors", "error", err)
	}

	w, h := float32(g.cfg.Screen.Width), float32(g.cfg.Screen.Height)
	g.cam = camera.New(
		w, h,
		g.cfg.Derived.ParticleCenter.Sub(mgl32.Vec3{0, float32(g.cfg.Particles.Extent), 0}),
		float32(vc.CameraDistance), float32(vc.CameraPitch),
	)
	g.viewer = renderer.NewViewer(g.cam, renderer.NewParticleRenderer(mode, float32(vc.MaxSpeedColor)))
	if g.terrain != nil {
		g.viewer.SetTerrain(g.terrain, g.terrainOrigin)
	}

	g.hud = ui.NewHUD()
	g.controls = ui.NewControlsPanel(10, 100, 250)
	g.perfPanel = ui.NewPerfPanel(int32(w)-260, 10)
	g.statsPanel = ui.NewStatsPanel(int32(w)-260, 170, 250)

	g.inspector = inspector.NewInspector(int32(w)-270-inspector.PanelWidth, 10)
	g.viewer.Overlay = func() {
		g.inspector.DrawHighlight(g.States(), g.substance.BoundingRadius)
	}
}

// Update handles input and advances the simulation by up to speed steps.
// Each step covers an equal share of the frame time.
func (g *Game) Update() {
	g.handleInput()
	g.applyControls()
	if g.paused {
		return
	}

	frameTime := rl.GetFrameTime()
	if frameTime <= 0 {
		frameTime = g.opts.FrameTime
	}
	share := frameTime / float32(g.speed)
	for i := 0; i < g.speed; i++ {
		g.advance(share)
	}
	g.inspector.Update(g.States(), g.substance.BoundingRadius*2)
}

// reset restarts the particles, logging failures.
func (g *Game) reset() {
	if err := g.Reset(); err != nil {
		slog.Error("reset failed", "error", err)
	}
}

// Draw renders the game.
func (g *Game) Draw() {
	g.perfCollector.RecordFrame()
	if err := g.viewer.Present(g.States(), g.substance.Radius); err != nil {
		slog.Warn("viewer present failed", "error", err)
	}

	objects := make([][]mgl32.Vec3, len(g.objects))
	radii := make([]float32, len(g.objects))
	for k, o := range g.objects {
		samples := o.Samples().States()
		pts := make([]mgl32.Vec3, len(samples))
		for i := range samples {
			pts[i] = samples[i].Position
		}
		objects[k] = pts
		radii[k] = o.SampleRadius()
	}

	rl.BeginDrawing()
	rl.ClearBackground(rl.Color{R: 24, G: 26, B: 32, A: 255})

	g.viewer.Draw(objects, radii)
	g.drawPanels()

	rl.EndDrawing()
}

// drawPanels renders the 2D overlay and applies control panel changes.
func (g *Game) drawPanels() {
	g.hud.Draw(ui.HUDData{
		Title:     "Sand",
		Step:      g.step,
		SimTime:   g.simTime,
		Dt:        g.lastInfo.Dt,
		Particles: g.set.Len(),
		Objects:   len(g.objects),
		Terrain:   g.terrain != nil,
		Speed:     g.speed,
		FPS:       rl.GetFPS(),
		Paused:    g.paused,
	})
	g.hud.DrawControls(int32(rl.GetScreenHeight()), controlsLegend)

	w := int32(rl.GetScreenWidth())
	g.perfPanel.SetPosition(w-260, 10)
	g.perfPanel.Draw(g.perfCollector.Stats())
	pr := g.viewer.Particles
	if g.hasStats {
		g.statsPanel.SetPosition(w-260, 170)
		g.statsPanel.Draw(g.lastStats, pr.MaxSpeed)
	}
	g.inspector.SetPosition(w-270-inspector.PanelWidth, 10)
	g.inspector.Draw(g.States(), g.substance, inspector.Forces{
		Particle: g.solver.ParticleForces(),
		Object:   g.solver.ObjectForces(),
		Terrain:  g.solver.TerrainForces(),
	})

	act := g.controls.Draw(ui.ControlsState{
		Paused:    g.paused,
		Speed:     g.speed,
		MaxSpeed:  maxSpeed,
		VMax:      pr.MaxSpeed,
		ColorMode: pr.Mode.String(),
	})
	g.speed = act.Speed
	pr.MaxSpeed = act.VMax
	if act.TogglePause {
		g.paused = !g.paused
	}
	if act.CycleColor {
		pr.Mode = pr.Mode.Next()
	}
	if act.Snapshot {
		g.saveSnapshot(nil)
	}
	if act.Reset {
		g.reset()
	}
}
