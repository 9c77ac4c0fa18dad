package world

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

const (
	Gravity = 9.81

	// agentFriction is the body's own material friction, combined with the
	// track's by averaging.
	agentFriction = 1.0
	// rollingResistance scales combined friction into a rolling deceleration.
	rollingResistance = 0.05
	groundTolerance   = 1e-3
	restSpeed         = 1e-3
)

// Surface answers whether a point is supported by the track and at which
// height the supporting surface lies.
type Surface interface {
	SupportAt(p r3.Vec) (height float64, supported bool)
}

// Body is the physics engine boundary the episode controller drives.
type Body interface {
	State() AgentState
	Reset(state AgentState)
	ApplyForce(force r3.Vec)
	SetHeading(yaw float64)
	Integrate(dt float64, params *Parameters, surface Surface)
}

// PointMass is a minimal rigid body: a mass resting RestHeight above the
// supporting surface, driven by applied forces, gravity and rolling
// friction. It falls freely once it leaves the track.
type PointMass struct {
	Mass       float64
	RestHeight float64

	state AgentState
	force r3.Vec
}

func NewPointMass(mass, restHeight float64) *PointMass {
	return &PointMass{Mass: mass, RestHeight: restHeight}
}

func (b *PointMass) State() AgentState {
	return b.state
}

func (b *PointMass) Reset(state AgentState) {
	b.state = state
	b.force = r3.Vec{}
}

func (b *PointMass) ApplyForce(force r3.Vec) {
	b.force = r3.Add(b.force, force)
}

func (b *PointMass) SetHeading(yaw float64) {
	b.state.Heading = yaw
}

// Integrate advances the body by dt with semi-implicit Euler and clears the
// accumulated force.
func (b *PointMass) Integrate(dt float64, params *Parameters, surface Surface) {
	mass := b.Mass
	if mass <= 0 {
		mass = 1
	}
	accel := r3.Scale(1/mass, b.force)
	accel.Y -= Gravity
	b.force = r3.Vec{}

	s := b.state
	height, supported := 0.0, false
	if surface != nil {
		height, supported = surface.SupportAt(s.Position)
	}
	grounded := supported &&
		s.Position.Y >= height &&
		s.Position.Y <= height+b.RestHeight+groundTolerance &&
		accel.Y <= 0

	if grounded {
		accel.Y = 0
		s.Velocity.Y = 0
		staticMu := combine(params.StaticFriction)
		dynamicMu := combine(params.DynamicFriction)
		planar := Horizontal(accel)
		speed := r3.Norm(Horizontal(s.Velocity))

		if speed < restSpeed && r3.Norm(planar) <= staticMu*Gravity*rollingResistance {
			s.Velocity = r3.Vec{}
		} else {
			s.Velocity = r3.Add(s.Velocity, r3.Scale(dt, planar))
			decel := dynamicMu * Gravity * rollingResistance * dt
			horizontal := Horizontal(s.Velocity)
			if n := r3.Norm(horizontal); n <= decel {
				s.Velocity = r3.Vec{}
			} else {
				s.Velocity = r3.Scale((n-decel)/n, horizontal)
			}
		}
		s.Position = r3.Add(s.Position, r3.Scale(dt, s.Velocity))
		if h, ok := surface.SupportAt(s.Position); ok {
			s.Position.Y = h + b.RestHeight
		}
	} else {
		s.Velocity = r3.Add(s.Velocity, r3.Scale(dt, accel))
		s.Position = r3.Add(s.Position, r3.Scale(dt, s.Velocity))
		rest := height + b.RestHeight
		if supported && s.Velocity.Y <= 0 && s.Position.Y < rest && b.state.Position.Y >= rest-groundTolerance {
			// landed
			s.Position.Y = rest
			s.Velocity.Y = 0
		}
	}

	b.state = s
}

func combine(track float64) float64 {
	if math.IsNaN(track) || track < 0 {
		track = 0
	}
	return (track + agentFriction) / 2
}
