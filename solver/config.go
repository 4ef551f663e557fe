package solver

import "github.com/go-gl/mathgl/mgl32"

// Contact holds the soft-sphere contact coefficients.
type Contact struct {
	Stiffness         float32 // normal spring, N/m
	NormalDamping     float32 // N s/m along the contact normal
	TangentialDamping float32 // N s/m across it, capped by Coulomb friction
}

// Config parameterizes a Solver.
type Config struct {
	Gravity     mgl32.Vec3
	MaxTimestep float32
	BlockSize   int

	FieldCenter   mgl32.Vec3
	FieldSize     mgl32.Vec3
	FieldCellSize float32

	ObjectCellSize  float32
	TerrainFriction float32

	Contact Contact
}

// DefaultConfig returns the settings of the reference sand box.
func DefaultConfig() Config {
	return Config{
		Gravity:         mgl32.Vec3{0, -9.81, 0},
		MaxTimestep:     0.005,
		BlockSize:       256,
		FieldCenter:     mgl32.Vec3{0, 0, 0},
		FieldSize:       mgl32.Vec3{40, 30, 40},
		FieldCellSize:   0.4,
		ObjectCellSize:  0.5,
		TerrainFriction: 0.955,
		Contact: Contact{
			Stiffness:         5000,
			NormalDamping:     30,
			TangentialDamping: 10,
		},
	}
}
