package env

import (
	"gonum.org/v1/gonum/spatial/r3"

	"trackgym/internal/config"
	"trackgym/internal/world"
)

const (
	// turnRate is the vehicle's yaw rate at full steering, radians per second.
	turnRate     = 2.0
	headingSpeed = 0.1
)

// apply dispatches the action to the handler of the configured agent type.
func (c *Controller) apply(a [ActionSize]float64, dt float64) {
	switch c.cfg.Agent.Type {
	case config.AgentVehicle:
		c.applyVehicle(a, dt)
	default:
		c.applyBall(a)
	}
}

// applyBall pushes along world X and Z.
func (c *Controller) applyBall(a [ActionSize]float64) {
	force := r3.Vec{
		X: a[0] * c.params.ControlX,
		Z: a[1] * c.params.ControlZ,
	}
	force = r3.Scale(c.cfg.Agent.ForceMultiplier, force)
	c.body.ApplyForce(r3.Add(force, c.params.Wind))
}

// applyVehicle steers with a[1] and throttles along the heading with a[0].
func (c *Controller) applyVehicle(a [ActionSize]float64, dt float64) {
	state := c.body.State()
	heading := state.Heading + a[1]*c.params.ControlX*turnRate*dt
	c.body.SetHeading(heading)
	throttle := a[0] * c.params.ControlZ * c.cfg.Agent.ForceMultiplier
	force := r3.Scale(throttle, world.HeadingVector(heading))
	c.body.ApplyForce(r3.Add(force, c.params.Wind))
}
