// Package camera provides an orbit camera for viewing the sand box.
package camera

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Camera orbits a target point at a given distance.
type Camera struct {
	// Target is the point the camera looks at
	Target mgl32.Vec3

	// Yaw about +Y and pitch above the horizon, radians
	Yaw, Pitch float32

	// Distance from the target
	Distance float32

	// Vertical field of view, radians
	FovY float32

	// Viewport dimensions (screen size)
	ViewportW, ViewportH float32

	// Distance constraints
	MinDistance, MaxDistance float32

	home struct {
		target           mgl32.Vec3
		yaw, pitch, dist float32
	}
}

// maxPitch keeps the view direction off the poles where LookAt degenerates.
const maxPitch = 1.5

// New creates a camera looking at target from distance at the given pitch.
func New(viewportW, viewportH float32, target mgl32.Vec3, distance, pitch float32) *Camera {
	c := &Camera{
		Target:      target,
		Yaw:         0,
		Pitch:       clamp(pitch, -maxPitch, maxPitch),
		Distance:    distance,
		FovY:        mgl32.DegToRad(45),
		ViewportW:   viewportW,
		ViewportH:   viewportH,
		MinDistance: 0.5,
		MaxDistance: 200,
	}
	c.home.target = c.Target
	c.home.yaw, c.home.pitch, c.home.dist = c.Yaw, c.Pitch, c.Distance
	return c
}

// Position returns the eye position in world coordinates.
func (c *Camera) Position() mgl32.Vec3 {
	cp := float32(math.Cos(float64(c.Pitch)))
	dir := mgl32.Vec3{
		cp * float32(math.Sin(float64(c.Yaw))),
		float32(math.Sin(float64(c.Pitch))),
		cp * float32(math.Cos(float64(c.Yaw))),
	}
	return c.Target.Add(dir.Mul(c.Distance))
}

// View returns the world-to-camera matrix.
func (c *Camera) View() mgl32.Mat4 {
	return mgl32.LookAtV(c.Position(), c.Target, mgl32.Vec3{0, 1, 0})
}

// Projection returns the camera-to-clip matrix.
func (c *Camera) Projection() mgl32.Mat4 {
	aspect := c.ViewportW / c.ViewportH
	return mgl32.Perspective(c.FovY, aspect, 0.05, 1000)
}

// WorldToScreen converts world coordinates to screen pixels with the
// origin at the top left. ok is false for points behind the camera.
func (c *Camera) WorldToScreen(p mgl32.Vec3) (sx, sy float32, ok bool) {
	clip := c.Projection().Mul4(c.View()).Mul4x1(p.Vec4(1))
	if clip.W() <= 0 {
		return 0, 0, false
	}
	ndc := clip.Vec3().Mul(1 / clip.W())
	sx = (ndc.X() + 1) / 2 * c.ViewportW
	sy = (1 - ndc.Y()) / 2 * c.ViewportH
	return sx, sy, true
}

// ScreenRay returns the world-space ray through a screen pixel.
func (c *Camera) ScreenRay(sx, sy float32) (origin, dir mgl32.Vec3) {
	inv := c.Projection().Mul4(c.View()).Inv()
	nx := sx/c.ViewportW*2 - 1
	ny := 1 - sy/c.ViewportH*2

	near := inv.Mul4x1(mgl32.Vec4{nx, ny, -1, 1})
	far := inv.Mul4x1(mgl32.Vec4{nx, ny, 1, 1})
	n := near.Vec3().Mul(1 / near.W())
	f := far.Vec3().Mul(1 / far.W())
	return n, f.Sub(n).Normalize()
}

// IsVisible returns true if a sphere at p could be on screen
// (conservative check for culling).
func (c *Camera) IsVisible(p mgl32.Vec3, radius float32) bool {
	v := c.View().Mul4x1(p.Vec4(1))
	depth := -v.Z()
	if depth+radius <= 0 {
		return false
	}
	halfH := float32(math.Tan(float64(c.FovY/2))) * max(depth, 0)
	halfW := halfH * c.ViewportW / c.ViewportH
	return absf(v.X()) <= halfW+radius*2 && absf(v.Y()) <= halfH+radius*2
}

// Resize updates viewport dimensions.
func (c *Camera) Resize(viewportW, viewportH float32) {
	if viewportH <= 0 {
		return
	}
	c.ViewportW = viewportW
	c.ViewportH = viewportH
}

// Orbit rotates the camera around the target by the given angles.
func (c *Camera) Orbit(dYaw, dPitch float32) {
	c.Yaw = float32(math.Mod(float64(c.Yaw+dYaw), 2*math.Pi))
	c.Pitch = clamp(c.Pitch+dPitch, -maxPitch, maxPitch)
}

// Pan moves the target in the camera plane by a screen-pixel delta.
func (c *Camera) Pan(dx, dy float32) {
	view := c.View()
	right := mgl32.Vec3{view.At(0, 0), view.At(0, 1), view.At(0, 2)}
	up := mgl32.Vec3{view.At(1, 0), view.At(1, 1), view.At(1, 2)}

	// World units per pixel at the target depth
	scale := 2 * c.Distance * float32(math.Tan(float64(c.FovY/2))) / c.ViewportH
	c.Target = c.Target.Add(right.Mul(-dx * scale)).Add(up.Mul(dy * scale))
}

// SetDistance sets the orbit distance, clamped to min/max.
func (c *Camera) SetDistance(d float32) {
	c.Distance = clamp(d, c.MinDistance, c.MaxDistance)
}

// ZoomBy divides the distance by factor (factor > 1 moves closer).
func (c *Camera) ZoomBy(factor float32) {
	if factor <= 0 {
		return
	}
	c.SetDistance(c.Distance / factor)
}

// Reset returns the camera to its initial pose.
func (c *Camera) Reset() {
	c.Target = c.home.target
	c.Yaw, c.Pitch, c.Distance = c.home.yaw, c.home.pitch, c.home.dist
}

// absf returns the absolute value of a float32.
func absf(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}

// clamp restricts a value to a range.
func clamp(x, min, max float32) float32 {
	if x < min {
		return min
	}
	if x > max {
		return max
	}
	return x
}
