// Package terrain provides static height fields for the terrain collision
// phase. A field is a square grid of height and normal samples covering
// Size.X() by Size.Z() world units.
package terrain

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/ojrac/opensimplex-go"
)

var ErrResolution = errors.New("terrain resolution must be at least 2")

// Sample is one height field node.
type Sample struct {
	Height float32
	Normal mgl32.Vec3
}

// Provider exposes a height field for upload. Samples are indexed i + j*Resolution,
// with i along X and j along Z.
type Provider interface {
	Resolution() int
	Size() mgl32.Vec3
	Samples() []Sample
}

// Field is an in-memory height field.
type Field struct {
	res     int
	size    mgl32.Vec3
	samples []Sample
}

// Resolution is the number of samples along each side.
func (f *Field) Resolution() int { return f.res }

// Size is the world extent of the field.
func (f *Field) Size() mgl32.Vec3 { return f.size }

// Samples returns the height field nodes, indexed i + j*Resolution.
func (f *Field) Samples() []Sample { return f.samples }

// NewField samples height(x, z) on a res x res grid and derives normals by
// central differences.
func NewField(res int, size mgl32.Vec3, height func(x, z float32) float32) (*Field, error) {
	if res < 2 {
		return nil, fmt.Errorf("terrain: %d: %w", res, ErrResolution)
	}
	dx := size[0] / float32(res-1)
	dz := size[2] / float32(res-1)

	h := make([]float32, res*res)
	for j := 0; j < res; j++ {
		for i := 0; i < res; i++ {
			h[i+j*res] = height(float32(i)*dx, float32(j)*dz)
		}
	}

	samples := make([]Sample, res*res)
	for j := 0; j < res; j++ {
		for i := 0; i < res; i++ {
			i0, i1 := max(i-1, 0), min(i+1, res-1)
			j0, j1 := max(j-1, 0), min(j+1, res-1)
			dhdx := (h[i1+j*res] - h[i0+j*res]) / (float32(i1-i0) * dx)
			dhdz := (h[i+j1*res] - h[i+j0*res]) / (float32(j1-j0) * dz)
			samples[i+j*res] = Sample{
				Height: h[i+j*res],
				Normal: mgl32.Vec3{-dhdx, 1, -dhdz}.Normalize(),
			}
		}
	}
	return &Field{res: res, size: size, samples: samples}, nil
}

// Flat returns a level field at height.
func Flat(res int, size mgl32.Vec3, height float32) (*Field, error) {
	return NewField(res, size, func(float32, float32) float32 { return height })
}

// NoiseParams configures fractal simplex terrain.
type NoiseParams struct {
	Seed       int64
	Scale      float32 // features per world unit at the first octave
	Octaves    int
	Lacunarity float32
	Gain       float32
	Amplitude  float32 // peak height
}

// NewNoise builds an fBm height field from OpenSimplex noise. Heights lie in
// [0, Amplitude].
func NewNoise(res int, size mgl32.Vec3, p NoiseParams) (*Field, error) {
	noise := opensimplex.NewNormalized(p.Seed)
	return NewField(res, size, func(x, z float32) float32 {
		return p.Amplitude * FBM(noise, float64(x), float64(z), p)
	})
}

// FBM sums octaves of noise, normalized to [0, 1].
func FBM(noise opensimplex.Noise, x, z float64, p NoiseParams) float32 {
	var sum, norm float64
	amp := 1.0
	freq := float64(p.Scale)
	for o := 0; o < max(p.Octaves, 1); o++ {
		sum += amp * noise.Eval2(x*freq, z*freq)
		norm += amp
		amp *= float64(p.Gain)
		freq *= float64(p.Lacunarity)
	}
	return float32(sum / norm)
}

// Lookup interpolates height and normal bilinearly between the four samples
// around (x, z), given relative to the field origin. ok is false outside the
// field.
func Lookup(samples []Sample, res int, size mgl32.Vec3, x, z float32) (Sample, bool) {
	if x < 0 || z < 0 || x > size[0] || z > size[2] {
		return Sample{}, false
	}
	u := x / size[0] * float32(res-1)
	v := z / size[2] * float32(res-1)
	i0 := min(int(u), res-1)
	j0 := min(int(v), res-1)
	i1 := min(i0+1, res-1)
	j1 := min(j0+1, res-1)
	fu := u - float32(i0)
	fv := v - float32(j0)

	s00, s10 := samples[i0+j0*res], samples[i1+j0*res]
	s01, s11 := samples[i0+j1*res], samples[i1+j1*res]
	w00 := (1 - fu) * (1 - fv)
	w10 := fu * (1 - fv)
	w01 := (1 - fu) * fv
	w11 := fu * fv

	n := s00.Normal.Mul(w00).Add(s10.Normal.Mul(w10)).Add(s01.Normal.Mul(w01)).Add(s11.Normal.Mul(w11))
	if l := n.Len(); l > 0 {
		n = n.Mul(1 / l)
	} else {
		n = mgl32.Vec3{0, 1, 0}
	}
	return Sample{
		Height: s00.Height*w00 + s10.Height*w10 + s01.Height*w01 + s11.Height*w11,
		Normal: n,
	}, true
}
