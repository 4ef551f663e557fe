package ui

import (
	"testing"

	rl "github.com/gen2brain/raylib-go/raylib"
)

func TestBarRatio(t *testing.T) {
	tests := []struct {
		value, limit, want float32
	}{
		{0.5, 1, 0.5},
		{2, 1, 1},
		{-1, 1, 0},
		{1, 0, 0},
		{3, 4, 0.75},
	}
	for _, tt := range tests {
		if got := BarRatio(tt.value, tt.limit); got != tt.want {
			t.Errorf("BarRatio(%v, %v) = %v, want %v", tt.value, tt.limit, got, tt.want)
		}
	}
}

func TestControlsPanelToggle(t *testing.T) {
	c := NewControlsPanel(10, 120, 250)
	if !c.IsVisible() {
		t.Fatal("panel should start visible")
	}
	b0 := c.Bounds()
	if !c.Contains(rl.Vector2{X: b0.X + 1, Y: b0.Y + 1}) {
		t.Error("visible panel should contain its corner")
	}
	if c.Toggle() {
		t.Error("Toggle should hide a visible panel")
	}
	b := c.Bounds()
	inside := rl.Vector2{X: b.X + 1, Y: b.Y + 1}
	if c.Contains(inside) {
		t.Error("hidden panel should not capture the mouse")
	}
}
