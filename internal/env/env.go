// Package env runs episodes: it regenerates the track, places the agent,
// applies actions, polls accidents and shapes rewards.
package env

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r3"

	"trackgym/internal/accident"
	"trackgym/internal/config"
	"trackgym/internal/logging"
	"trackgym/internal/observe"
	"trackgym/internal/path"
	"trackgym/internal/track"
	"trackgym/internal/world"
)

// ActionSize is the number of control inputs per step.
const ActionSize = 2

var (
	ErrNotStarted  = errors.New("episode not started")
	ErrEpisodeOver = errors.New("episode is over")
)

// Status is the episode state reported after every step.
type Status int

const (
	StatusRunning Status = iota
	StatusSuccess
	StatusFailure
	StatusTruncated
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusSuccess:
		return "success"
	case StatusFailure:
		return "failure"
	case StatusTruncated:
		return "truncated"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Done reports whether the episode has ended.
func (s Status) Done() bool {
	return s != StatusRunning
}

// StepResult is what one Step hands back to the trainer.
type StepResult struct {
	Observation []float64
	Reward      float64
	Done        bool
	Status      Status
	// Fired lists accidents that changed state during this step.
	Fired []accident.Event
}

// Option customises a Controller at construction.
type Option func(*Controller)

// WithBuilder replaces the reference vertex path with an external curve
// builder.
func WithBuilder(b path.Builder) Option {
	return func(c *Controller) { c.builder = b }
}

// WithBody replaces the point-mass body.
func WithBody(b world.Body) Option {
	return func(c *Controller) { c.body = b }
}

// WithSeed fixes the layout and spawn generator's seed.
func WithSeed(seed int64) Option {
	return func(c *Controller) { c.rng = rand.New(rand.NewSource(seed)) }
}

// Controller owns one episode at a time: layout, curve, body, shared
// parameters and the accident schedule. It is not safe for concurrent use.
type Controller struct {
	cfg       config.Config
	generator track.Generator
	encoder   observe.Encoder
	builder   path.Builder
	body      world.Body
	rng       *rand.Rand
	log       *zap.Logger

	params    world.Parameters
	scheduler *accident.Scheduler

	layout   track.Layout
	curve    path.Adapter
	surface  world.Surface
	started  bool
	status   Status
	elapsed  float64
	steps    int
	progress float64
	lastDist float64
	obs      []float64
}

// New validates cfg and prepares a controller. No track exists until Begin.
func New(cfg config.Config, opts ...Option) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Controller{
		cfg:       cfg,
		generator: track.FromConfig(cfg.Track),
		encoder:   observe.FromConfig(cfg),
		builder:   path.NewBuilder(path.Options{}),
		log:       logging.Named("env"),
		params:    world.Baseline(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.generator.Validate(); err != nil {
		return nil, err
	}
	if err := c.encoder.Validate(); err != nil {
		return nil, err
	}
	if c.body == nil {
		c.body = world.NewPointMass(cfg.Agent.Mass, cfg.Agent.Type.SpawnOffset())
	}
	if c.rng == nil {
		c.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	c.scheduler = accident.NewScheduler(&c.params, accident.FromConfig(cfg)...)
	return c, nil
}

// Seed reseeds track generation and spawn selection.
func (c *Controller) Seed(seed int64) {
	c.rng = rand.New(rand.NewSource(seed))
}

// Begin starts a new episode. The track, curve, accident schedule and agent
// are all rebuilt before it returns.
func (c *Controller) Begin(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	layout, err := c.generator.Generate(c.rng)
	if err != nil {
		return err
	}
	curve, err := c.builder(layout)
	if err != nil {
		return fmt.Errorf("build path: %w", err)
	}

	anchor := layout.Anchors[c.rng.Intn(len(layout.Anchors))].Position
	spawn := r3.Add(anchor, r3.Scale(c.cfg.Agent.SpawnHeight, world.Up))
	dist := curve.ClosestDistance(anchor)
	heading := world.Yaw(curve.DirectionAt(dist))

	c.scheduler.ResetAll()
	c.body.Reset(world.AgentState{Position: spawn, Heading: heading})

	c.layout = layout
	c.curve = curve
	c.surface = path.Surface{Curve: curve, HalfWidth: layout.RoadWidth / 2}
	c.started = true
	c.status = StatusRunning
	c.elapsed = 0
	c.steps = 0
	c.progress = 0
	c.lastDist = dist

	c.log.Debug("episode begin",
		zap.Int("anchors", len(layout.Anchors)),
		zap.Float64("length", curve.Length()),
		zap.Float64("spawn_x", spawn.X),
		zap.Float64("spawn_z", spawn.Z),
	)
	return nil
}

// Observe encodes the current agent state.
func (c *Controller) Observe() ([]float64, error) {
	if !c.started {
		return nil, ErrNotStarted
	}
	obs, _, err := c.encode()
	return obs, err
}

// encode returns a copy of the observation and the agent's centre-line
// distance from the same adapter query.
func (c *Controller) encode() ([]float64, float64, error) {
	obs, center, err := c.encoder.EncodeAt(c.obs, c.body.State(), c.curve)
	if err != nil {
		return nil, 0, err
	}
	c.obs = obs
	return append([]float64(nil), obs...), center, nil
}

// Step applies action, advances the simulation by one time step and
// returns the reward and the episode status.
func (c *Controller) Step(action []float64) (StepResult, error) {
	if !c.started {
		return StepResult{}, ErrNotStarted
	}
	if c.status.Done() {
		return StepResult{}, ErrEpisodeOver
	}

	a := Sanitize(action)
	dt := c.cfg.TimeStep
	c.apply(a, dt)
	c.body.Integrate(dt, &c.params, c.surface)
	c.elapsed += dt
	c.steps++
	fired := c.scheduler.Check(c.elapsed)

	state := c.body.State()
	if c.cfg.Agent.Type == config.AgentBall {
		if h := world.Horizontal(state.Velocity); r3.Norm(h) > headingSpeed {
			c.body.SetHeading(world.Yaw(h))
		}
	}

	obs, center, err := c.encode()
	if err != nil {
		return StepResult{}, err
	}

	var reward float64
	switch {
	case state.Position.Y < c.cfg.Reward.FloorHeight:
		c.status = StatusFailure
		reward = c.cfg.Reward.FailurePenalty
	default:
		reward = c.speedReward(state.Speed()) + c.cfg.Reward.RunningPenalty
		c.trackProgress(center)
		switch {
		case c.cfg.TargetLaps > 0 && c.progress >= c.cfg.TargetLaps*c.curve.Length():
			c.status = StatusSuccess
		case c.cfg.MaxSteps > 0 && c.steps >= c.cfg.MaxSteps:
			c.status = StatusTruncated
		}
	}
	if c.status.Done() {
		c.log.Debug("episode end",
			zap.String("status", c.status.String()),
			zap.Int("steps", c.steps),
			zap.Float64("elapsed", c.elapsed),
		)
	}
	return StepResult{
		Observation: obs,
		Reward:      reward,
		Done:        c.status.Done(),
		Status:      c.status,
		Fired:       fired,
	}, nil
}

func (c *Controller) speedReward(speed float64) float64 {
	if c.cfg.Reward.Mode == config.RewardLinearSpeed {
		return speed
	}
	return speed * speed
}

// trackProgress accumulates signed arc length travelled along the curve
// given the agent's current centre-line distance d.
func (c *Controller) trackProgress(d float64) {
	length := c.curve.Length()
	if length <= 0 {
		return
	}
	delta := math.Remainder(d-c.lastDist, length)
	c.progress += delta
	c.lastDist = d
}

// Sanitize maps an action to exactly ActionSize finite components in
// [-1, 1]. Missing components are 0.
func Sanitize(action []float64) [ActionSize]float64 {
	var out [ActionSize]float64
	for i := 0; i < ActionSize && i < len(action); i++ {
		v := action[i]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out[i] = math.Max(-1, math.Min(1, v))
	}
	return out
}

func (c *Controller) Config() config.Config        { return c.cfg }
func (c *Controller) Status() Status               { return c.status }
func (c *Controller) Elapsed() float64             { return c.elapsed }
func (c *Controller) Steps() int                   { return c.steps }
func (c *Controller) Layout() track.Layout         { return c.layout }
func (c *Controller) Path() path.Adapter           { return c.curve }
func (c *Controller) Parameters() world.Parameters { return c.params }
func (c *Controller) State() world.AgentState      { return c.body.State() }
func (c *Controller) Accidents() []accident.Event  { return c.scheduler.Events() }

// Progress is the signed arc length covered this episode.
func (c *Controller) Progress() float64 { return c.progress }

// ObservationSize is the fixed observation length.
func (c *Controller) ObservationSize() int { return c.encoder.MaxSize }
