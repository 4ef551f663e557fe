package renderer

import (
	rl "github.com/gen2brain/raylib-go/raylib"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/pthm-cable/sand/terrain"
)

// TerrainRenderer draws a height field as a shaded triangle list.
type TerrainRenderer struct {
	verts  []mgl32.Vec3
	colors []rl.Color // one per triangle
}

// NewTerrainRenderer builds the triangle list for p placed at origin.
func NewTerrainRenderer(p terrain.Provider, origin mgl32.Vec3) *TerrainRenderer {
	r := &TerrainRenderer{verts: TerrainTriangles(p, origin)}

	// Shade by facing toward a fixed light
	light := mgl32.Vec3{0.4, 1, 0.3}.Normalize()
	for t := 0; t+2 < len(r.verts); t += 3 {
		a, b, c := r.verts[t], r.verts[t+1], r.verts[t+2]
		n := b.Sub(a).Cross(c.Sub(a)).Normalize()
		lum := 0.35 + 0.65*max(n.Dot(light), 0)
		r.colors = append(r.colors, rl.Color{
			R: uint8(120 * lum),
			G: uint8(110 * lum),
			B: uint8(95 * lum),
			A: 255,
		})
	}
	return r
}

// TerrainTriangles returns the field as counter-clockwise triangles viewed
// from above, three vertices each.
func TerrainTriangles(p terrain.Provider, origin mgl32.Vec3) []mgl32.Vec3 {
	res := p.Resolution()
	size := p.Size()
	samples := p.Samples()
	if res < 2 || len(samples) < res*res {
		return nil
	}
	dx := size[0] / float32(res-1)
	dz := size[2] / float32(res-1)
	at := func(i, j int) mgl32.Vec3 {
		return origin.Add(mgl32.Vec3{float32(i) * dx, samples[i+j*res].Height, float32(j) * dz})
	}

	verts := make([]mgl32.Vec3, 0, 6*(res-1)*(res-1))
	for j := 0; j < res-1; j++ {
		for i := 0; i < res-1; i++ {
			a, b, c, d := at(i, j), at(i, j+1), at(i+1, j), at(i+1, j+1)
			verts = append(verts, a, b, c, b, d, c)
		}
	}
	return verts
}

// Draw renders the terrain. Must be called inside BeginMode3D.
func (r *TerrainRenderer) Draw() {
	if r == nil {
		return
	}
	for t, col := range r.colors {
		v := r.verts[3*t:]
		rl.DrawTriangle3D(vec(v[0]), vec(v[1]), vec(v[2]), col)
	}
}
