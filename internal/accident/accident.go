// Package accident schedules one-shot mutations of the shared physical
// parameters during an episode.
package accident

import (
	"fmt"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r3"

	"trackgym/internal/config"
	"trackgym/internal/logging"
	"trackgym/internal/world"
)

// Kind names which physical parameter an accident mutates.
type Kind string

const (
	KindFriction    Kind = "friction"
	KindWind        Kind = "wind"
	KindLossControl Kind = "loss_control"
)

// State tracks whether an accident is still pending for the episode.
type State int

const (
	Armed State = iota
	Fired
	Skipped
)

func (s State) String() string {
	switch s {
	case Armed:
		return "armed"
	case Fired:
		return "fired"
	case Skipped:
		return "skipped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Event is one scheduled mutation. Apply writes the event's magnitude into
// the parameter set.
type Event struct {
	Kind    Kind
	Delay   float64
	Enabled bool
	State   State
	Apply   func(*world.Parameters)
}

// Friction sets static and dynamic friction.
func Friction(cfg config.FrictionAccident) Event {
	static, dynamic := cfg.Static, cfg.Dynamic
	return Event{
		Kind:    KindFriction,
		Delay:   cfg.Delay,
		Enabled: cfg.Enabled,
		Apply: func(p *world.Parameters) {
			p.StaticFriction = static
			p.DynamicFriction = dynamic
		},
	}
}

// Wind sets the external wind force. Planar tracks never get vertical wind.
func Wind(cfg config.WindAccident, space config.Space) Event {
	force := r3.Vec{X: cfg.X, Y: cfg.Y, Z: cfg.Z}
	if !space.Full() {
		force.Y = 0
	}
	return Event{
		Kind:    KindWind,
		Delay:   cfg.Delay,
		Enabled: cfg.Enabled,
		Apply: func(p *world.Parameters) {
			p.Wind = force
		},
	}
}

// LossControl scales the agent's control authority per axis.
func LossControl(cfg config.LossControlAccident) Event {
	x, z := cfg.XRatio, cfg.ZRatio
	return Event{
		Kind:    KindLossControl,
		Delay:   cfg.Delay,
		Enabled: cfg.Enabled,
		Apply: func(p *world.Parameters) {
			p.ControlX = x
			p.ControlZ = z
		},
	}
}

// FromConfig returns the friction, wind and loss-of-control events.
func FromConfig(cfg config.Config) []Event {
	return []Event{
		Friction(cfg.Friction),
		Wind(cfg.Wind, cfg.Track.Space),
		LossControl(cfg.LossControl),
	}
}

// Scheduler polls its events against elapsed simulation time. It is not
// safe for concurrent use.
type Scheduler struct {
	events   []Event
	target   *world.Parameters
	baseline world.Parameters
	log      *zap.Logger
}

// NewScheduler arms events against target. The baseline restored by
// ResetAll is snapshotted from target now.
func NewScheduler(target *world.Parameters, events ...Event) *Scheduler {
	s := &Scheduler{
		events:   append([]Event(nil), events...),
		target:   target,
		baseline: *target,
		log:      logging.Named("accident"),
	}
	for i := range s.events {
		s.events[i].State = Armed
	}
	return s
}

// Check transitions every armed event whose delay has elapsed and returns
// copies of the events that changed state.
func (s *Scheduler) Check(elapsed float64) []Event {
	var changed []Event
	for i := range s.events {
		e := &s.events[i]
		if e.State != Armed || elapsed < e.Delay {
			continue
		}
		if !e.Enabled {
			e.State = Skipped
			changed = append(changed, *e)
			continue
		}
		if e.Apply != nil {
			e.Apply(s.target)
		}
		e.State = Fired
		changed = append(changed, *e)
		s.log.Info("accident fired",
			zap.String("kind", string(e.Kind)),
			zap.Float64("delay", e.Delay),
			zap.Float64("elapsed", elapsed),
		)
	}
	return changed
}

// ResetAll re-arms every event and restores the baseline parameters.
func (s *Scheduler) ResetAll() {
	for i := range s.events {
		s.events[i].State = Armed
	}
	*s.target = s.baseline
}

// Pending counts armed events.
func (s *Scheduler) Pending() int {
	n := 0
	for _, e := range s.events {
		if e.State == Armed {
			n++
		}
	}
	return n
}

// Events returns a snapshot of the schedule.
func (s *Scheduler) Events() []Event {
	return append([]Event(nil), s.events...)
}

// Baseline returns the parameters ResetAll restores.
func (s *Scheduler) Baseline() world.Parameters {
	return s.baseline
}
