// Package particle holds granular material definitions: element layouts,
// the substance aggregates derived from them, per-particle state and the
// generators that seed it.
package particle

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
	"gonum.org/v1/gonum/mat"

	"github.com/pthm-cable/sand/compute"
)

// DefaultElementMu is the friction coefficient of a bare layout element.
const DefaultElementMu = 0.05

var (
	ErrUnknownLayout = errors.New("unknown particle layout")
	ErrBadMaterial   = errors.New("radius and density must be positive")
	ErrSingular      = errors.New("inertia tensor is singular")
)

// Element is one sub-sphere of a particle's rigid decomposition.
type Element struct {
	Radius float32
	Mass   float32
	Mu     float32
	Offset mgl32.Vec3 // from the particle center
}

// Layout selects an element arrangement.
type Layout uint8

const (
	LayoutSimple Layout = iota
	LayoutTetrahedron
	LayoutCube
)

var layoutNames = map[Layout]string{
	LayoutSimple:      "simple",
	LayoutTetrahedron: "tetrahedron",
	LayoutCube:        "cube",
}

func (l Layout) String() string {
	if s, ok := layoutNames[l]; ok {
		return s
	}
	return fmt.Sprintf("Layout(%d)", uint8(l))
}

// ParseLayout maps a config name to a Layout.
func ParseLayout(s string) (Layout, error) {
	for l, name := range layoutNames {
		if strings.EqualFold(s, name) {
			return l, nil
		}
	}
	return 0, fmt.Errorf("%q: %w", s, ErrUnknownLayout)
}

// ElementMass is the mass of a solid sphere.
func ElementMass(radius, density float32) float32 {
	r := float64(radius)
	return float32(4.0 / 3.0 * math.Pi * r * r * r * float64(density))
}

type elementTemplate struct {
	scale  float32 // element radius / particle radius
	offset mgl32.Vec3
}

var (
	invSqrt2 = float32(1 / math.Sqrt2)
	corner   = float32(1/math.Sqrt(3)) * 1.3
)

var layoutTemplates = map[Layout][]elementTemplate{
	LayoutSimple: {
		{1, mgl32.Vec3{}},
	},
	LayoutTetrahedron: {
		{0.5, mgl32.Vec3{1, 0, -invSqrt2}.Mul(0.5)},
		{0.5, mgl32.Vec3{-1, 0, -invSqrt2}.Mul(0.5)},
		{0.5, mgl32.Vec3{0, 1, invSqrt2}.Mul(0.5)},
		{0.5, mgl32.Vec3{0, -1, invSqrt2}.Mul(0.5)},
	},
	LayoutCube: {
		{1, mgl32.Vec3{}},
		{0.3, mgl32.Vec3{corner, corner, corner}},
		{0.3, mgl32.Vec3{corner, corner, -corner}},
		{0.3, mgl32.Vec3{-corner, corner, -corner}},
		{0.3, mgl32.Vec3{-corner, corner, corner}},
		{0.3, mgl32.Vec3{corner, -corner, corner}},
		{0.3, mgl32.Vec3{corner, -corner, -corner}},
		{0.3, mgl32.Vec3{-corner, -corner, -corner}},
		{0.3, mgl32.Vec3{-corner, -corner, corner}},
	},
}

// Elements instantiates the layout for a particle radius and density.
func (l Layout) Elements(radius, density float32) []Element {
	tmpl := layoutTemplates[l]
	out := make([]Element, len(tmpl))
	for i, e := range tmpl {
		r := radius * e.scale
		out[i] = Element{
			Radius: r,
			Mass:   ElementMass(r, density),
			Mu:     DefaultElementMu,
			Offset: e.offset.Mul(radius),
		}
	}
	return out
}

// Substance is the immutable material template shared by every particle
// of one type.
type Substance struct {
	Layout  Layout
	Radius  float32
	Density float32
	Mu      float32

	Elements       []Element
	TotalMass      float32
	CenterOfMass   mgl32.Vec3
	Inertia        mgl32.Mat3
	InverseInertia mgl32.Mat3
	BoundingRadius float32

	elements *compute.Buffer[Element]
}

// NewSubstance builds a substance from a layout preset.
func NewSubstance(layout Layout, radius, density, mu float32) (*Substance, error) {
	if _, ok := layoutTemplates[layout]; !ok {
		return nil, fmt.Errorf("particle: %v: %w", layout, ErrUnknownLayout)
	}
	if radius <= 0 || density <= 0 {
		return nil, fmt.Errorf("particle: radius %g density %g: %w", radius, density, ErrBadMaterial)
	}
	elems := layout.Elements(radius, density)
	for i := range elems {
		elems[i].Mu = mu
	}
	return NewSubstanceFromElements(layout, radius, density, mu, elems)
}

// NewSubstanceFromElements builds a substance from an explicit element list.
func NewSubstanceFromElements(layout Layout, radius, density, mu float32, elems []Element) (*Substance, error) {
	inertia := InertiaTensor(elems)
	inv, err := invert3(inertia)
	if err != nil {
		return nil, fmt.Errorf("particle: %v: %w", layout, err)
	}

	own := make([]Element, len(elems))
	copy(own, elems)

	return &Substance{
		Layout:         layout,
		Radius:         radius,
		Density:        density,
		Mu:             mu,
		Elements:       own,
		TotalMass:      TotalMass(own),
		CenterOfMass:   CenterOfMass(own),
		Inertia:        inertia,
		InverseInertia: inv,
		BoundingRadius: BoundingRadius(own),
		elements:       compute.NewBufferFrom("substance."+layout.String(), own),
	}, nil
}

// ElementBuffer returns the device copy of the element list.
func (s *Substance) ElementBuffer() *compute.Buffer[Element] { return s.elements }

// Release frees the device element buffer.
func (s *Substance) Release() { s.elements.Release() }

// TotalMass sums element masses.
func TotalMass(elems []Element) float32 {
	var m float32
	for _, e := range elems {
		m += e.Mass
	}
	return m
}

// CenterOfMass is the plain mean of element offsets. It is not mass
// weighted, so layouts with unequal elements must be symmetric for it to
// coincide with the true centroid.
func CenterOfMass(elems []Element) mgl32.Vec3 {
	if len(elems) == 0 {
		return mgl32.Vec3{}
	}
	var c mgl32.Vec3
	for _, e := range elems {
		c = c.Add(e.Offset)
	}
	return c.Mul(1 / float32(len(elems)))
}

// BoundingRadius is the farthest element surface from the particle center.
func BoundingRadius(elems []Element) float32 {
	var r float32
	for _, e := range elems {
		r = max(r, e.Offset.Len()+e.Radius)
	}
	return r
}

// InertiaTensor sums the solid-sphere inertia of each element with its
// parallel-axis term, then transposes the result.
func InertiaTensor(elems []Element) mgl32.Mat3 {
	sum := mat.NewDense(3, 3, nil)
	eye := mat.NewDiagDense(3, []float64{1, 1, 1})

	for _, e := range elems {
		m := float64(e.Mass)
		r := float64(e.Radius)
		o := mat.NewVecDense(3, []float64{float64(e.Offset[0]), float64(e.Offset[1]), float64(e.Offset[2])})

		var self mat.Dense
		self.Scale(2.0/5.0*m*r*r, eye)

		var outer, shift mat.Dense
		outer.Outer(1, o, o)
		shift.Scale(mat.Dot(o, o), eye)
		shift.Sub(&shift, &outer)
		shift.Scale(m, &shift)

		sum.Add(sum, &self)
		sum.Add(sum, &shift)
	}

	var t mat.Dense
	t.CloneFrom(sum.T())
	return toMat3(&t)
}

func invert3(m mgl32.Mat3) (mgl32.Mat3, error) {
	var inv mat.Dense
	if err := inv.Inverse(fromMat3(m)); err != nil {
		return mgl32.Mat3{}, fmt.Errorf("%w: %v", ErrSingular, err)
	}
	return toMat3(&inv), nil
}

// toMat3 converts a 3x3 gonum matrix to column-major mgl32 layout.
func toMat3(d mat.Matrix) mgl32.Mat3 {
	var out mgl32.Mat3
	for row := 0; row < 3; row++ {
		for col := 0; col < 3; col++ {
			out.Set(row, col, float32(d.At(row, col)))
		}
	}
	return out
}

func fromMat3(m mgl32.Mat3) *mat.Dense {
	d := mat.NewDense(3, 3, nil)
	for row := 0; row < 3; row++ {
		for col := 0; col < 3; col++ {
			d.Set(row, col, float64(m.At(row, col)))
		}
	}
	return d
}
