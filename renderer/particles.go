package renderer

import (
	"fmt"
	"strings"

	rl "github.com/gen2brain/raylib-go/raylib"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/pthm-cable/sand/camera"
	"github.com/pthm-cable/sand/particle"
)

// ColorMode selects how particles are tinted.
type ColorMode int

const (
	ColorSand     ColorMode = iota // per-particle grain tint
	ColorVelocity                  // blue (still) to red (MaxSpeed)
)

// ParseColorMode converts a config name to a ColorMode.
func ParseColorMode(s string) (ColorMode, error) {
	switch strings.ToLower(s) {
	case "", "sand":
		return ColorSand, nil
	case "velocity":
		return ColorVelocity, nil
	}
	return 0, fmt.Errorf("unknown color mode %q", s)
}

func (m ColorMode) String() string {
	if m == ColorVelocity {
		return "velocity"
	}
	return "sand"
}

// Next cycles to the following mode.
func (m ColorMode) Next() ColorMode { return (m + 1) % 2 }

var (
	sandLight = rl.Color{R: 222, G: 199, B: 140, A: 255}
	sandDark  = rl.Color{R: 168, G: 138, B: 86, A: 255}
	slow      = rl.Color{R: 40, G: 90, B: 220, A: 255}
	fast      = rl.Color{R: 235, G: 60, B: 40, A: 255}
)

// ParticleRenderer draws the main particle set as small cubes.
type ParticleRenderer struct {
	Mode     ColorMode
	MaxSpeed float32
}

// NewParticleRenderer creates a new particle renderer.
func NewParticleRenderer(mode ColorMode, maxSpeed float32) *ParticleRenderer {
	return &ParticleRenderer{Mode: mode, MaxSpeed: maxSpeed}
}

// Draw renders every visible particle. Must be called inside BeginMode3D.
func (r *ParticleRenderer) Draw(states []particle.State, size float32, cam *camera.Camera) {
	edge := 2 * size
	dims := rl.Vector3{X: edge, Y: edge, Z: edge}
	for i := range states {
		s := &states[i]
		if cam != nil && !cam.IsVisible(s.Position, size) {
			continue
		}
		rl.DrawCubeV(vec(s.Position), dims, ParticleColor(r.Mode, s.Velocity.Len(), r.MaxSpeed, i))
	}
}

// ParticleColor returns the tint of particle i.
func ParticleColor(mode ColorMode, speed, maxSpeed float32, i int) rl.Color {
	if mode == ColorVelocity {
		t := float32(0)
		if maxSpeed > 0 {
			t = mgl32.Clamp(speed/maxSpeed, 0, 1)
		}
		return lerpColor(slow, fast, t)
	}
	// Knuth multiplicative hash gives a stable grain shade per index
	h := uint32(i) * 2654435761
	return lerpColor(sandLight, sandDark, float32(h>>24)/255)
}

func lerpColor(a, b rl.Color, t float32) rl.Color {
	mix := func(x, y uint8) uint8 { return uint8(float32(x) + (float32(y)-float32(x))*t) }
	return rl.Color{R: mix(a.R, b.R), G: mix(a.G, b.G), B: mix(a.B, b.B), A: mix(a.A, b.A)}
}

func vec(v mgl32.Vec3) rl.Vector3 { return rl.Vector3{X: v[0], Y: v[1], Z: v[2]} }
