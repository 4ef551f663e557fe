package game

import (
	rl "github.com/gen2brain/raylib-go/raylib"
	"github.com/go-gl/mathgl/mgl32"
)

const (
	orbitSpeed = 0.005 // radians per pixel
	nudgeStep  = 0.02  // world units per frame
	yawStep    = 0.02  // radians per frame
	maxSpeed   = 20
)

// handleInput processes keyboard and mouse input.
func (g *Game) handleInput() {
	g.handleResize()

	if rl.IsKeyPressed(rl.KeyF11) {
		rl.ToggleFullscreen()
	}
	if rl.IsKeyPressed(rl.KeySpace) {
		g.paused = !g.paused
	}
	if rl.IsKeyPressed(rl.KeyR) {
		g.reset()
	}
	if rl.IsKeyPressed(rl.KeyC) {
		g.viewer.Particles.Mode = g.viewer.Particles.Mode.Next()
	}
	if rl.IsKeyPressed(rl.KeyH) {
		g.controls.Toggle()
	}

	// Steps-per-frame control with < > keys (comma and period)
	if rl.IsKeyPressed(rl.KeyComma) && g.speed > 1 {
		g.speed--
	}
	if rl.IsKeyPressed(rl.KeyPeriod) && g.speed < maxSpeed {
		g.speed++
	}

	g.handleCameraInput()
	g.handleObjectInput()
}

// handleResize checks for window resize and propagates new dimensions.
func (g *Game) handleResize() {
	if !rl.IsWindowResized() {
		return
	}
	g.cam.Resize(float32(rl.GetScreenWidth()), float32(rl.GetScreenHeight()))
}

// handleCameraInput orbits with the left mouse button, pans with the right
// and zooms with the wheel.
func (g *Game) handleCameraInput() {
	if g.controls.Contains(rl.GetMousePosition()) {
		return
	}

	g.inspector.HandleInput(g.cam, g.States(), g.substance.BoundingRadius)
	shift := rl.IsKeyDown(rl.KeyLeftShift) || rl.IsKeyDown(rl.KeyRightShift)

	delta := rl.GetMouseDelta()
	if rl.IsMouseButtonDown(rl.MouseButtonLeft) && !shift {
		g.cam.Orbit(-delta.X*orbitSpeed, delta.Y*orbitSpeed)
	}
	if rl.IsMouseButtonDown(rl.MouseButtonRight) {
		g.cam.Pan(delta.X, delta.Y)
	}

	if wheel := rl.GetMouseWheelMove(); wheel != 0 {
		g.cam.ZoomBy(1 + wheel*0.1)
	}
	if rl.IsKeyPressed(rl.KeyEqual) || rl.IsKeyPressed(rl.KeyKpAdd) {
		g.cam.ZoomBy(1.25)
	}
	if rl.IsKeyPressed(rl.KeyMinus) || rl.IsKeyPressed(rl.KeyKpSubtract) {
		g.cam.ZoomBy(0.8)
	}

	if rl.IsKeyPressed(rl.KeyHome) {
		g.cam.Reset()
	}
}

// handleObjectInput drives the first object: arrows move it in the ground
// plane, Page Up/Down raise and lower it, Q/E turn it.
func (g *Game) handleObjectInput() {
	if len(g.objects) == 0 {
		return
	}

	var offset mgl32.Vec3
	if rl.IsKeyDown(rl.KeyRight) {
		offset[0] += nudgeStep
	}
	if rl.IsKeyDown(rl.KeyLeft) {
		offset[0] -= nudgeStep
	}
	if rl.IsKeyDown(rl.KeyDown) {
		offset[2] += nudgeStep
	}
	if rl.IsKeyDown(rl.KeyUp) {
		offset[2] -= nudgeStep
	}
	if rl.IsKeyDown(rl.KeyPageUp) {
		offset[1] += nudgeStep
	}
	if rl.IsKeyDown(rl.KeyPageDown) {
		offset[1] -= nudgeStep
	}

	var yaw float32
	if rl.IsKeyDown(rl.KeyQ) {
		yaw += yawStep
	}
	if rl.IsKeyDown(rl.KeyE) {
		yaw -= yawStep
	}

	if offset.Len() > 0 || yaw != 0 {
		g.kinematics.Nudge(0, offset, yaw)
	}
}
