// Package world holds the state shared between the episode controller, the
// accident scheduler and the observation encoder: mutable physical
// parameters and the agent's kinematic state.
package world

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"trackgym/internal/config"
)

// Up is the world vertical axis.
var Up = r3.Vec{Y: 1}

// Parameters are the physical and control parameters accidents mutate.
type Parameters struct {
	StaticFriction  float64
	DynamicFriction float64
	Wind            r3.Vec
	ControlX        float64
	ControlZ        float64
}

// Baseline returns the unmutated parameter set.
func Baseline() Parameters {
	return Parameters{
		StaticFriction:  1,
		DynamicFriction: 1,
		ControlX:        1,
		ControlZ:        1,
	}
}

// AgentState is the agent's kinematic state as reported by the physics body.
type AgentState struct {
	Position r3.Vec
	Velocity r3.Vec
	// Heading is the yaw in radians, measured from +Z towards +X.
	Heading float64
}

// Speed is the velocity magnitude.
func (s AgentState) Speed() float64 {
	return r3.Norm(s.Velocity)
}

// Forward is the unit horizontal vector the agent faces.
func (s AgentState) Forward() r3.Vec {
	return HeadingVector(s.Heading)
}

// HeadingVector converts a yaw angle into a horizontal unit vector.
func HeadingVector(yaw float64) r3.Vec {
	return r3.Vec{X: math.Sin(yaw), Z: math.Cos(yaw)}
}

// Yaw converts a direction into a yaw angle, ignoring its vertical component.
func Yaw(direction r3.Vec) float64 {
	return math.Atan2(direction.X, direction.Z)
}

// AppendProjected appends v to dst using the axes observed in space:
// x and z for planar tracks, x, y and z for full tracks.
func AppendProjected(dst []float64, v r3.Vec, space config.Space) []float64 {
	if space.Full() {
		return append(dst, v.X, v.Y, v.Z)
	}
	return append(dst, v.X, v.Z)
}

// Unit returns v scaled to unit length, or the zero vector when v has no
// length.
func Unit(v r3.Vec) r3.Vec {
	n := r3.Norm(v)
	if n == 0 || math.IsNaN(n) {
		return r3.Vec{}
	}
	return r3.Scale(1/n, v)
}

// Horizontal drops the vertical component of v.
func Horizontal(v r3.Vec) r3.Vec {
	return r3.Vec{X: v.X, Z: v.Z}
}
