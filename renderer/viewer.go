// Package renderer draws the sand box with raylib.
package renderer

import (
	rl "github.com/gen2brain/raylib-go/raylib"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/pthm-cable/sand/camera"
	"github.com/pthm-cable/sand/particle"
	"github.com/pthm-cable/sand/terrain"
)

var objectColor = rl.Color{R: 90, G: 200, B: 210, A: 255}

// Viewer holds the latest presented frame and draws it in 3D.
type Viewer struct {
	cam       *camera.Camera
	Particles *ParticleRenderer
	terrain   *TerrainRenderer

	states []particle.State
	size   float32

	// Overlay, if set, draws extra 3D content after the particles.
	Overlay func()
}

// NewViewer creates a viewer looking through cam.
func NewViewer(cam *camera.Camera, particles *ParticleRenderer) *Viewer {
	return &Viewer{cam: cam, Particles: particles}
}

// Present caches a copy of the frame for the next Draw.
func (v *Viewer) Present(states []particle.State, size float32) error {
	v.states = append(v.states[:0], states...)
	v.size = size
	return nil
}

// SetTerrain builds the terrain mesh. A nil provider clears it.
func (v *Viewer) SetTerrain(p terrain.Provider, origin mgl32.Vec3) {
	if p == nil {
		v.terrain = nil
		return
	}
	v.terrain = NewTerrainRenderer(p, origin)
}

// Camera3D converts the orbit camera to raylib's representation.
func Camera3D(c *camera.Camera) rl.Camera3D {
	return rl.Camera3D{
		Position:   vec(c.Position()),
		Target:     vec(c.Target),
		Up:         rl.Vector3{X: 0, Y: 1, Z: 0},
		Fovy:       mgl32.RadToDeg(c.FovY),
		Projection: rl.CameraPerspective,
	}
}

// Draw renders the terrain, the object samples and the cached particles.
// objects holds the world-space samples of each object.
func (v *Viewer) Draw(objects [][]mgl32.Vec3, sampleRadius []float32) {
	rl.BeginMode3D(Camera3D(v.cam))

	v.terrain.Draw()
	for k, samples := range objects {
		r := float32(0.05)
		if k < len(sampleRadius) {
			r = sampleRadius[k]
		}
		for _, p := range samples {
			rl.DrawSphereEx(vec(p), r, 4, 4, objectColor)
		}
	}
	v.Particles.Draw(v.states, v.size, v.cam)
	if v.Overlay != nil {
		v.Overlay()
	}

	rl.EndMode3D()
}

// Unload frees resources.
func (v *Viewer) Unload() {
	v.terrain = nil
	v.states = nil
}
