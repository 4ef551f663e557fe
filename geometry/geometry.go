// Package geometry turns simple solid shapes into surface point clouds used
// as collision samples.
package geometry

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
)

var ErrUnknownShape = errors.New("unknown shape")

// Sampler produces surface points in the shape's local frame.
type Sampler interface {
	// SampleSurface returns points spaced so that about resolution
	// samples span the shape's longest edge.
	SampleSurface(resolution int) []mgl32.Vec3
	Bounds() (lo, hi mgl32.Vec3)
}

// Box is an axis-aligned box centered at the origin.
type Box struct {
	HalfExtents mgl32.Vec3
}

func (b Box) Bounds() (mgl32.Vec3, mgl32.Vec3) {
	return b.HalfExtents.Mul(-1), b.HalfExtents
}

// SampleSurface returns the lattice points on the box faces.
func (b Box) SampleSurface(resolution int) []mgl32.Vec3 {
	longest := max(b.HalfExtents[0], b.HalfExtents[1], b.HalfExtents[2]) * 2
	var n [3]int
	for i := range n {
		n[i] = max(2, int(math.Ceil(float64(b.HalfExtents[i]*2/longest*float32(resolution-1))))+1)
	}

	var out []mgl32.Vec3
	for z := 0; z < n[2]; z++ {
		for y := 0; y < n[1]; y++ {
			for x := 0; x < n[0]; x++ {
				onFace := x == 0 || x == n[0]-1 || y == 0 || y == n[1]-1 || z == 0 || z == n[2]-1
				if !onFace {
					continue
				}
				out = append(out, mgl32.Vec3{
					lerp(-b.HalfExtents[0], b.HalfExtents[0], x, n[0]),
					lerp(-b.HalfExtents[1], b.HalfExtents[1], y, n[1]),
					lerp(-b.HalfExtents[2], b.HalfExtents[2], z, n[2]),
				})
			}
		}
	}
	return out
}

// Sphere is centered at the origin.
type Sphere struct {
	Radius float32
}

func (s Sphere) Bounds() (mgl32.Vec3, mgl32.Vec3) {
	r := mgl32.Vec3{s.Radius, s.Radius, s.Radius}
	return r.Mul(-1), r
}

// SampleSurface spreads points on a Fibonacci spiral with roughly the
// spacing of a resolution-per-diameter lattice.
func (s Sphere) SampleSurface(resolution int) []mgl32.Vec3 {
	spacing := 2 / float64(max(resolution-1, 1))
	n := max(4, int(math.Ceil(4*math.Pi/(spacing*spacing))))
	golden := math.Pi * (3 - math.Sqrt(5))

	out := make([]mgl32.Vec3, n)
	for i := range out {
		y := 1 - 2*(float64(i)+0.5)/float64(n)
		r := math.Sqrt(1 - y*y)
		theta := golden * float64(i)
		out[i] = mgl32.Vec3{
			float32(r * math.Cos(theta)),
			float32(y),
			float32(r * math.Sin(theta)),
		}.Mul(s.Radius)
	}
	return out
}

// Plane is a flat rectangle in the local XZ plane.
type Plane struct {
	HalfX, HalfZ float32
}

func (p Plane) Bounds() (mgl32.Vec3, mgl32.Vec3) {
	return mgl32.Vec3{-p.HalfX, 0, -p.HalfZ}, mgl32.Vec3{p.HalfX, 0, p.HalfZ}
}

func (p Plane) SampleSurface(resolution int) []mgl32.Vec3 {
	longest := max(p.HalfX, p.HalfZ)
	nx := max(2, int(math.Ceil(float64(p.HalfX/longest*float32(resolution-1))))+1)
	nz := max(2, int(math.Ceil(float64(p.HalfZ/longest*float32(resolution-1))))+1)
	out := make([]mgl32.Vec3, 0, nx*nz)
	for z := 0; z < nz; z++ {
		for x := 0; x < nx; x++ {
			out = append(out, mgl32.Vec3{lerp(-p.HalfX, p.HalfX, x, nx), 0, lerp(-p.HalfZ, p.HalfZ, z, nz)})
		}
	}
	return out
}

// New builds a sampler from a shape name and its size (full extents for a
// box or plane, diameter on X for a sphere).
func New(shape string, size mgl32.Vec3) (Sampler, error) {
	switch strings.ToLower(shape) {
	case "box", "cube":
		return Box{HalfExtents: size.Mul(0.5)}, nil
	case "sphere":
		return Sphere{Radius: size[0] / 2}, nil
	case "plane":
		return Plane{HalfX: size[0] / 2, HalfZ: size[2] / 2}, nil
	}
	return nil, fmt.Errorf("geometry: %q: %w", shape, ErrUnknownShape)
}

// ResolutionFor picks a sample count per longest edge giving roughly the
// requested spacing.
func ResolutionFor(s Sampler, spacing float32) int {
	lo, hi := s.Bounds()
	ext := hi.Sub(lo)
	longest := max(ext[0], ext[1], ext[2])
	return max(2, int(math.Ceil(float64(longest/spacing)))+1)
}

func lerp(a, b float32, i, n int) float32 {
	return a + (b-a)*float32(i)/float32(n-1)
}
