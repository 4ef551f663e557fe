// Package components defines ECS components for kinematic scene objects.
package components

import "github.com/go-gl/mathgl/mgl32"

// Transform is an object's current world pose.
type Transform struct {
	Position mgl32.Vec3
	Rotation mgl32.Quat
}

// Anchor is the rest pose motion is applied on top of.
type Anchor struct {
	Position mgl32.Vec3
	Rotation mgl32.Quat
}

// Collider links an entity to its solver registration.
type Collider struct {
	Slot int // index returned by the solver on registration
	Name string
}

// Spin rotates an object about an axis through its anchor.
type Spin struct {
	Axis mgl32.Vec3 // unit length
	Rate float32    // radians per second
}

// Sway oscillates an object along an axis.
type Sway struct {
	Axis      mgl32.Vec3 // unit length
	Amplitude float32    // metres
	Frequency float32    // Hz
}

// Drive is a user-controlled offset applied after scripted motion.
type Drive struct {
	Offset mgl32.Vec3
	Yaw    float32 // radians about +Y
}
