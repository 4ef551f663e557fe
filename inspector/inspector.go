// Package inspector selects a single particle in the viewer and shows its
// state and the forces acting on it.
package inspector

import (
	"fmt"
	"math"

	rl "github.com/gen2brain/raylib-go/raylib"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/pthm-cable/sand/camera"
	"github.com/pthm-cable/sand/particle"
	"github.com/pthm-cable/sand/solver"
)

// Panel dimensions
const (
	PanelWidth   = 300
	PanelPadding = 10
	HeaderHeight = 30
)

// Panel colors
var (
	ColorPanelBg     = rl.Color{R: 30, G: 30, B: 35, A: 240}
	ColorPanelHeader = rl.Color{R: 45, G: 45, B: 55, A: 255}
	ColorPanelBorder = rl.Color{R: 70, G: 70, B: 80, A: 255}
	ColorHeaderText  = rl.Color{R: 255, G: 255, B: 255, A: 255}
	ColorText        = rl.Color{R: 220, G: 220, B: 220, A: 255}
	ColorTextDim     = rl.Color{R: 150, G: 150, B: 150, A: 255}
	ColorHighlight   = rl.Color{R: 255, G: 220, B: 60, A: 255}
)

// Forces holds the per-phase force readbacks for the current step.
type Forces struct {
	Particle, Object, Terrain []solver.Force
}

// Inspector manages particle selection and panel rendering. The field grid
// reorders particles every step, so the selection follows the particle's
// last known position rather than its index.
type Inspector struct {
	selected    int
	hasSelected bool
	tracked     mgl32.Vec3

	panelX, panelY int32
}

// NewInspector creates an inspector whose panel sits at (x, y).
func NewInspector(x, y int32) *Inspector {
	return &Inspector{panelX: x, panelY: y}
}

// SetPosition moves the panel.
func (ins *Inspector) SetPosition(x, y int32) {
	ins.panelX, ins.panelY = x, y
}

// HandleInput selects the particle under the mouse on Shift+click and
// deselects on Escape.
func (ins *Inspector) HandleInput(cam *camera.Camera, states []particle.State, radius float32) {
	if rl.IsKeyPressed(rl.KeyEscape) {
		ins.Deselect()
		return
	}
	shift := rl.IsKeyDown(rl.KeyLeftShift) || rl.IsKeyDown(rl.KeyRightShift)
	if !shift || !rl.IsMouseButtonPressed(rl.MouseButtonLeft) {
		return
	}
	mouse := rl.GetMousePosition()
	origin, dir := cam.ScreenRay(mouse.X, mouse.Y)
	if i, ok := Pick(states, origin, dir, radius); ok {
		ins.Select(i, states[i].Position)
	}
}

// Select marks particle i at position p.
func (ins *Inspector) Select(i int, p mgl32.Vec3) {
	ins.selected = i
	ins.tracked = p
	ins.hasSelected = true
}

// Deselect clears the current selection.
func (ins *Inspector) Deselect() {
	ins.hasSelected = false
}

// Selected returns the index of the selected particle in the current
// ordering.
func (ins *Inspector) Selected() (int, bool) {
	return ins.selected, ins.hasSelected
}

// Update re-finds the selected particle after a step. It deselects when
// nothing lies within reach of the last known position.
func (ins *Inspector) Update(states []particle.State, reach float32) {
	if !ins.hasSelected {
		return
	}
	i, ok := Track(states, ins.tracked, reach)
	if !ok {
		ins.Deselect()
		return
	}
	ins.selected = i
	ins.tracked = states[i].Position
}

// Pick returns the particle whose bounding sphere the ray hits first.
func Pick(states []particle.State, origin, dir mgl32.Vec3, radius float32) (int, bool) {
	best := -1
	bestT := float32(math.MaxFloat32)
	r2 := radius * radius
	for i := range states {
		oc := states[i].Position.Sub(origin)
		t := oc.Dot(dir)
		if t < 0 {
			continue
		}
		if d2 := oc.Dot(oc) - t*t; d2 <= r2 && t < bestT {
			best, bestT = i, t
		}
	}
	return best, best >= 0
}

// Track returns the particle nearest to p, if one lies within reach.
func Track(states []particle.State, p mgl32.Vec3, reach float32) (int, bool) {
	best := -1
	bestD := reach * reach
	for i := range states {
		d := states[i].Position.Sub(p)
		if d2 := d.Dot(d); d2 <= bestD {
			best, bestD = i, d2
		}
	}
	return best, best >= 0
}

// DrawHighlight outlines the selected particle. Must be called inside
// BeginMode3D.
func (ins *Inspector) DrawHighlight(states []particle.State, radius float32) {
	if !ins.hasSelected || ins.selected >= len(states) {
		return
	}
	p := states[ins.selected].Position
	rl.DrawSphereWires(rl.Vector3{X: p[0], Y: p[1], Z: p[2]}, radius*1.6, 6, 8, ColorHighlight)
}

// Draw renders the inspector panel if a particle is selected.
func (ins *Inspector) Draw(states []particle.State, sub *particle.Substance, forces Forces) {
	if !ins.hasSelected || ins.selected >= len(states) {
		return
	}
	i := ins.selected
	s := states[i]

	panelHeight := int32(HeaderHeight + PanelPadding*2 + 20*11)
	rl.DrawRectangle(ins.panelX, ins.panelY, PanelWidth, panelHeight, ColorPanelBg)
	rl.DrawRectangleLinesEx(
		rl.Rectangle{X: float32(ins.panelX), Y: float32(ins.panelY), Width: PanelWidth, Height: float32(panelHeight)},
		1,
		ColorPanelBorder,
	)
	rl.DrawRectangle(ins.panelX, ins.panelY, PanelWidth, HeaderHeight, ColorPanelHeader)
	rl.DrawText("INSPECTOR [Esc]", ins.panelX+PanelPadding, ins.panelY+7, 16, ColorHeaderText)

	x := ins.panelX + PanelPadding
	y := ins.panelY + HeaderHeight + PanelPadding

	y += DrawLabel(x, y, "Index", fmt.Sprintf("%d", i))
	y += DrawLabel(x, y, "Position", fmtVec(s.Position))
	y += DrawLabel(x, y, "Velocity", fmtVec(s.Velocity))
	y += DrawLabel(x, y, "Speed", fmt.Sprintf("%.3f m/s", s.Velocity.Len()))
	y += DrawLabel(x, y, "Spin", fmtVec(s.AngularVelocity))
	if sub != nil {
		ke := 0.5 * sub.TotalMass * s.Velocity.Dot(s.Velocity)
		y += DrawLabel(x, y, "Kinetic", fmt.Sprintf("%.4g J", ke))
	}

	y += 4
	rl.DrawLine(x, y, ins.panelX+PanelWidth-PanelPadding, y, ColorPanelBorder)
	y += 8

	for _, f := range []struct {
		name   string
		forces []solver.Force
	}{
		{"F particle", forces.Particle},
		{"F object", forces.Object},
		{"F terrain", forces.Terrain},
	} {
		if i < len(f.forces) {
			y += DrawLabel(x, y, f.name, fmtVec(f.forces[i].Force))
		}
	}
}

func fmtVec(v mgl32.Vec3) string {
	return fmt.Sprintf("(%.2f, %.2f, %.2f)", v[0], v[1], v[2])
}
