package ui

import (
	"fmt"

	gui "github.com/gen2brain/raylib-go/raygui"
	rl "github.com/gen2brain/raylib-go/raylib"
)

// ControlsState is what the controls panel displays.
type ControlsState struct {
	Paused    bool
	Speed     int
	MaxSpeed  int
	VMax      float32 // speed mapped to the hottest color
	ColorMode string
}

// ControlsAction reports what the user changed this frame.
type ControlsAction struct {
	TogglePause bool
	Reset       bool
	CycleColor  bool
	Snapshot    bool
	Speed       int
	VMax        float32
}

// ControlsPanel renders the raygui control panel.
type ControlsPanel struct {
	renderer *Renderer
	bounds   rl.Rectangle
	visible  bool
}

// NewControlsPanel creates a new controls panel.
func NewControlsPanel(x, y, width float32) *ControlsPanel {
	return &ControlsPanel{
		renderer: NewRenderer(),
		bounds:   rl.Rectangle{X: x, Y: y, Width: width, Height: 190},
		visible:  true,
	}
}

// Bounds returns the screen area the panel occupies.
func (c *ControlsPanel) Bounds() rl.Rectangle { return c.bounds }

// IsVisible returns whether the panel is shown.
func (c *ControlsPanel) IsVisible() bool {
	return c.visible
}

// Toggle switches panel visibility.
func (c *ControlsPanel) Toggle() bool {
	c.visible = !c.visible
	return c.visible
}

// Contains reports whether a screen point lies on the visible panel.
func (c *ControlsPanel) Contains(p rl.Vector2) bool {
	return c.visible && rl.CheckCollisionPointRec(p, c.bounds)
}

// Draw renders the panel and returns the user's changes.
func (c *ControlsPanel) Draw(s ControlsState) ControlsAction {
	act := ControlsAction{Speed: s.Speed, VMax: s.VMax}
	if !c.visible {
		return act
	}

	b := c.bounds
	c.renderer.DrawPanel(int32(b.X), int32(b.Y), int32(b.Width), int32(b.Height))
	rl.DrawText("Controls [H to hide]", int32(b.X)+10, int32(b.Y)+8, 14, c.renderer.Theme.SectionHeader)

	x := b.X + 10
	y := b.Y + 30
	half := (b.Width - 30) / 2

	if gui.Button(rl.Rectangle{X: x, Y: y, Width: half, Height: 30}, toggleText(s.Paused, "Resume", "Pause")) {
		act.TogglePause = true
	}
	if gui.Button(rl.Rectangle{X: x + half + 10, Y: y, Width: half, Height: 30}, "Reset") {
		act.Reset = true
	}

	y += 45
	speed := gui.SliderBar(
		rl.Rectangle{X: x + 40, Y: y, Width: b.Width - 90, Height: 20},
		"Speed", fmt.Sprintf("%d", s.Speed),
		float32(s.Speed), 1, float32(s.MaxSpeed),
	)
	act.Speed = max(1, int(speed+0.5))

	y += 30
	act.VMax = gui.SliderBar(
		rl.Rectangle{X: x + 40, Y: y, Width: b.Width - 90, Height: 20},
		"Vmax", fmt.Sprintf("%.1f", s.VMax),
		s.VMax, 0.5, 20,
	)

	y += 35
	if gui.Button(rl.Rectangle{X: x, Y: y, Width: half, Height: 30}, "Color: "+s.ColorMode) {
		act.CycleColor = true
	}
	if gui.Button(rl.Rectangle{X: x + half + 10, Y: y, Width: half, Height: 30}, "Snapshot") {
		act.Snapshot = true
	}
	return act
}

func toggleText(on bool, onText, offText string) string {
	if on {
		return onText
	}
	return offText
}
