// Package policy provides the built-in agents: fixed baselines, a path
// follower and a feed-forward neural policy.
package policy

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"
	"sync"

	"trackgym/internal/config"
	"trackgym/internal/env"
	"trackgym/internal/observe"
	"trackgym/internal/scape"
)

// Constant always returns the same action.
type Constant struct {
	Name   string
	Action []float64
}

func (c Constant) ID() string { return c.Name }

func (c Constant) RunStep(context.Context, []float64) ([]float64, error) {
	return append([]float64(nil), c.Action...), nil
}

// Random samples every action component uniformly from [-1, 1].
type Random struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewRandom(seed int64) *Random {
	return &Random{rng: rand.New(rand.NewSource(seed))}
}

func (r *Random) ID() string { return "random" }

func (r *Random) RunStep(context.Context, []float64) ([]float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]float64, env.ActionSize)
	for i := range out {
		out[i] = 2*r.rng.Float64() - 1
	}
	return out, nil
}

// Follower steers towards the farthest path sample ahead of the agent and
// holds a target speed. It reads only the observation vector.
type Follower struct {
	Agent       config.AgentType
	Encoder     observe.Encoder
	TargetSpeed float64
	Gain        float64
}

func NewFollower(cfg config.Config) *Follower {
	return &Follower{
		Agent:       cfg.Agent.Type,
		Encoder:     observe.FromConfig(cfg),
		TargetSpeed: 4,
		Gain:        0.5,
	}
}

func (f *Follower) ID() string { return "follow" }

func (f *Follower) RunStep(_ context.Context, obs []float64) ([]float64, error) {
	axes := f.Encoder.Space.Axes()
	if len(obs) < f.Encoder.ContentSize() {
		return nil, fmt.Errorf("follower expects %d observation values, got %d", f.Encoder.ContentSize(), len(obs))
	}
	// horizontal components: x is the first axis, z the last
	planar := func(v []float64) (float64, float64) { return v[0], v[axes-1] }
	vx, vz := planar(obs[axes : 2*axes])
	speed := math.Hypot(vx, vz)

	samples := f.Encoder.Window.Samples()
	base := f.Encoder.KinematicSize()
	stride := 2 * axes
	tx, tz := planar(obs[base+(samples-1)*stride:])
	if speed > 1e-6 {
		best := math.Inf(-1)
		for i := 0; i < samples; i++ {
			px, pz := planar(obs[base+i*stride:])
			if d := (px*vx + pz*vz) / speed; d > best {
				best, tx, tz = d, px, pz
			}
		}
	}
	dist := math.Hypot(tx, tz)
	if dist < 1e-9 {
		return []float64{0, 0}, nil
	}
	ux, uz := tx/dist, tz/dist

	if f.Agent == config.AgentVehicle {
		throttle := clamp(f.Gain*(f.TargetSpeed-speed), -1, 1)
		if speed < 1e-6 {
			return []float64{throttle, 0}, nil
		}
		// positive steering turns from +Z towards +X
		cross := (vz*ux - vx*uz) / speed
		return []float64{throttle, clamp(2*cross, -1, 1)}, nil
	}
	return []float64{
		clamp(f.Gain*(ux*f.TargetSpeed-vx), -1, 1),
		clamp(f.Gain*(uz*f.TargetSpeed-vz), -1, 1),
	}, nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

var builtins = map[string]func(cfg config.Config, seed int64) (scape.StepAgent, error){
	"idle": func(config.Config, int64) (scape.StepAgent, error) {
		return Constant{Name: "idle", Action: []float64{0, 0}}, nil
	},
	"random": func(_ config.Config, seed int64) (scape.StepAgent, error) {
		return NewRandom(seed), nil
	},
	"follow": func(cfg config.Config, _ int64) (scape.StepAgent, error) {
		return NewFollower(cfg), nil
	},
	"neural": func(cfg config.Config, seed int64) (scape.StepAgent, error) {
		return NewRandomNeural(cfg, DefaultHiddenUnits, seed)
	},
}

// Names lists the built-in policies.
func Names() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New builds a built-in policy by name.
func New(name string, cfg config.Config, seed int64) (scape.StepAgent, error) {
	build, ok := builtins[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown policy %q (available: %s)", name, strings.Join(Names(), ", "))
	}
	return build(cfg, seed)
}
