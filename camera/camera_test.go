package camera

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestNew(t *testing.T) {
	cam := New(1280, 720, mgl32.Vec3{0, 1, 0}, 10, 0)

	// Zero yaw and pitch looks down -Z from +Z
	pos := cam.Position()
	if pos.Sub(mgl32.Vec3{0, 1, 10}).Len() > 1e-5 {
		t.Errorf("expected eye at (0, 1, 10), got %v", pos)
	}

	if got := New(1280, 720, mgl32.Vec3{}, 10, 3).Pitch; got != maxPitch {
		t.Errorf("pitch not clamped: %v", got)
	}
}

func TestWorldToScreenCentered(t *testing.T) {
	cam := New(1280, 720, mgl32.Vec3{2, 3, 4}, 10, 0.4)

	// Target should map to screen center
	sx, sy, ok := cam.WorldToScreen(cam.Target)
	if !ok {
		t.Fatal("target reported behind camera")
	}
	if math.Abs(float64(sx-640)) > 0.01 || math.Abs(float64(sy-360)) > 0.01 {
		t.Errorf("expected screen center (640, 360), got (%f, %f)", sx, sy)
	}

	// Up in the world is up on screen
	_, syUp, _ := cam.WorldToScreen(cam.Target.Add(mgl32.Vec3{0, 1, 0}))
	if syUp >= sy {
		t.Errorf("world up projected below center: %v >= %v", syUp, sy)
	}

	// Behind the eye
	behind := cam.Position().Add(cam.Position().Sub(cam.Target))
	if _, _, ok := cam.WorldToScreen(behind); ok {
		t.Error("point behind the camera reported visible")
	}
}

func TestScreenRayRoundtrip(t *testing.T) {
	cam := New(1280, 720, mgl32.Vec3{}, 8, 0.3)
	cam.Orbit(0.7, 0)

	testCases := []struct{ sx, sy float32 }{
		{640, 360},
		{100, 100},
		{1200, 600},
	}

	for _, tc := range testCases {
		origin, dir := cam.ScreenRay(tc.sx, tc.sy)
		p := origin.Add(dir.Mul(5))
		sx, sy, ok := cam.WorldToScreen(p)
		if !ok || math.Abs(float64(sx-tc.sx)) > 0.5 || math.Abs(float64(sy-tc.sy)) > 0.5 {
			t.Errorf("roundtrip failed: (%f,%f) -> %v -> (%f,%f)", tc.sx, tc.sy, p, sx, sy)
		}
	}
}

func TestOrbitAndZoom(t *testing.T) {
	cam := New(800, 600, mgl32.Vec3{}, 10, 0)

	cam.Orbit(math.Pi/2, 10)
	if cam.Pitch != maxPitch {
		t.Errorf("pitch = %v, want clamp to %v", cam.Pitch, maxPitch)
	}

	tests := []struct {
		factor float32
		want   float32
	}{
		{2, 5},
		{0, 5},       // ignored
		{0.001, 200}, // clamped to MaxDistance
		{10000, 0.5}, // clamped to MinDistance
	}
	for _, tt := range tests {
		cam.ZoomBy(tt.factor)
		if math.Abs(float64(cam.Distance-tt.want)) > 1e-4 {
			t.Errorf("ZoomBy(%v): distance = %v, want %v", tt.factor, cam.Distance, tt.want)
		}
	}

	cam.Reset()
	if cam.Distance != 10 || cam.Yaw != 0 || cam.Pitch != 0 {
		t.Errorf("reset = %v/%v/%v", cam.Distance, cam.Yaw, cam.Pitch)
	}
}

func TestPanKeepsDistance(t *testing.T) {
	cam := New(800, 600, mgl32.Vec3{}, 10, 0.5)
	before := cam.Position().Sub(cam.Target)

	cam.Pan(100, -50)
	if cam.Target.Len() == 0 {
		t.Fatal("pan did not move the target")
	}
	after := cam.Position().Sub(cam.Target)
	if before.Sub(after).Len() > 1e-4 {
		t.Errorf("pan changed the view offset: %v -> %v", before, after)
	}

	// Dragging right carries the old target right of center
	sx, _, _ := cam.WorldToScreen(mgl32.Vec3{})
	if sx <= 400 {
		t.Errorf("origin at sx=%v after panning right, want right of center", sx)
	}
}

func TestIsVisible(t *testing.T) {
	cam := New(1280, 720, mgl32.Vec3{}, 10, 0)

	tests := []struct {
		name string
		p    mgl32.Vec3
		want bool
	}{
		{"target", mgl32.Vec3{}, true},
		{"behind", mgl32.Vec3{0, 0, 20}, false},
		{"far left", mgl32.Vec3{-100, 0, 0}, false},
		{"edge", mgl32.Vec3{5, 0, 0}, true},
	}
	for _, tt := range tests {
		if got := cam.IsVisible(tt.p, 0.1); got != tt.want {
			t.Errorf("%s: IsVisible = %v, want %v", tt.name, got, tt.want)
		}
	}
}
