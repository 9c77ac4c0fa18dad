// Package config turns the trainer's flat key/float parameters into a typed,
// validated environment configuration.
package config

import (
	"fmt"
	"math"
)

// Space selects the dimensionality of the track and of observations. Values
// follow the path-space enum used by trainer configurations (xyz=0, xz=2).
type Space int

const (
	SpaceXYZ Space = 0
	SpaceXY  Space = 1
	SpaceXZ  Space = 2
)

func (s Space) String() string {
	switch s {
	case SpaceXYZ:
		return "xyz"
	case SpaceXY:
		return "xy"
	case SpaceXZ:
		return "xz"
	default:
		return fmt.Sprintf("space(%d)", int(s))
	}
}

// Full reports whether all three axes are observed.
func (s Space) Full() bool {
	return s == SpaceXYZ
}

// Axes is the number of components per observed vector.
func (s Space) Axes() int {
	if s.Full() {
		return 3
	}
	return 2
}

// AgentType selects how actions are applied to the body.
type AgentType int

const (
	AgentBall AgentType = iota
	AgentVehicle
)

func (a AgentType) String() string {
	switch a {
	case AgentBall:
		return "ball"
	case AgentVehicle:
		return "vehicle"
	default:
		return fmt.Sprintf("agent(%d)", int(a))
	}
}

// SpawnOffset is the default height above the anchor the agent starts at.
func (a AgentType) SpawnOffset() float64 {
	if a == AgentVehicle {
		return 1.0
	}
	return 0.5
}

// RewardMode selects the per-step speed term.
type RewardMode int

const (
	RewardSquaredSpeed RewardMode = iota
	RewardLinearSpeed
)

func (m RewardMode) String() string {
	switch m {
	case RewardSquaredSpeed:
		return "squared"
	case RewardLinearSpeed:
		return "linear"
	default:
		return fmt.Sprintf("reward(%d)", int(m))
	}
}

// Track shapes the generated anchor ring and the road laid over it.
type Track struct {
	NumAnchors         int
	Radius             float64
	RadiusEpsilonRatio float64
	ThetaEpsilonRatio  float64
	MaxAnchorHeight    float64
	MaxAnchorAngle     float64
	Space              Space
	RoadWidth          float64
}

// Agent describes the controlled body and how actions drive it.
type Agent struct {
	Type               AgentType
	Mass               float64
	ForceMultiplier    float64
	SpawnHeight        float64
	IncludeOrientation bool
}

// Window is the look-ahead sample range along the curve, in ticker units.
type Window struct {
	Start int
	End   int
	Space float64
}

// Reward holds the per-step reward terms and the failure floor.
type Reward struct {
	Mode           RewardMode
	RunningPenalty float64
	FailurePenalty float64
	FloorHeight    float64
}

// FrictionAccident swaps the friction coefficients after Delay seconds.
type FrictionAccident struct {
	Enabled bool
	Delay   float64
	Static  float64
	Dynamic float64
}

// WindAccident applies a constant force after Delay seconds.
type WindAccident struct {
	Enabled bool
	Delay   float64
	X, Y, Z float64
}

// LossControlAccident scales the action axes after Delay seconds.
type LossControlAccident struct {
	Enabled bool
	Delay   float64
	XRatio  float64
	ZRatio  float64
}

// Config is the validated environment configuration.
type Config struct {
	Track              Track
	Agent              Agent
	Window             Window
	Reward             Reward
	Friction           FrictionAccident
	Wind               WindAccident
	LossControl        LossControlAccident
	MaxObservationSize int
	TimeStep           float64
	MaxSteps           int

	// TargetLaps ends the episode successfully once the agent has covered
	// that many laps of forward progress. Zero disables it.
	TargetLaps float64
}

// Default returns the configuration produced by an empty parameter map.
func Default() Config {
	cfg, err := Load(nil)
	if err != nil {
		panic(err)
	}
	return cfg
}

// integerKeys hold enum or count values that are truncated to int on load.
var integerKeys = map[string]bool{
	KeyNumAnchors:         true,
	KeyPathSpace:          true,
	KeyAgentType:          true,
	KeyTickerStart:        true,
	KeyTickerEnd:          true,
	KeyRewardMode:         true,
	KeyMaxObservationSize: true,
	KeyMaxSteps:           true,
}

// checkRange rejects values no key can hold before any int conversion.
func checkRange(params Parameters) error {
	for _, key := range Keys() {
		v := params.Get(key)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Errorf(key, "must be finite, got %g", v)
		}
		if integerKeys[key] && math.Abs(v) > math.MaxInt32 {
			return Errorf(key, "%g is out of range", v)
		}
	}
	return nil
}

// Load applies defaults for absent keys, converts and validates.
func Load(params Parameters) (Config, error) {
	if err := checkRange(params); err != nil {
		return Config{}, err
	}
	get := func(key string) float64 { return params.Get(key) }
	flag := func(key string) bool { return get(key) > 0 }

	spawn := get(KeySpawnHeight)
	agentType := AgentType(int(get(KeyAgentType)))
	if spawn < 0 {
		spawn = agentType.SpawnOffset()
	}

	cfg := Config{
		Track: Track{
			NumAnchors:         int(get(KeyNumAnchors)),
			Radius:             get(KeyRadiusAnchorCircle),
			RadiusEpsilonRatio: get(KeyRadiusEpsilonRatio),
			ThetaEpsilonRatio:  get(KeyThetaEpsilonRatio),
			MaxAnchorHeight:    get(KeyMaxAnchorHeight),
			MaxAnchorAngle:     get(KeyMaxAnchorAngle),
			Space:              Space(int(get(KeyPathSpace))),
			RoadWidth:          get(KeyRoadWidth),
		},
		Agent: Agent{
			Type:               agentType,
			Mass:               get(KeyAgentMass),
			ForceMultiplier:    get(KeyForceMultiplier),
			SpawnHeight:        spawn,
			IncludeOrientation: flag(KeyIncludeOrientation),
		},
		Window: Window{
			Start: int(get(KeyTickerStart)),
			End:   int(get(KeyTickerEnd)),
			Space: get(KeyTickerSpace),
		},
		Reward: Reward{
			Mode:           RewardMode(int(get(KeyRewardMode))),
			RunningPenalty: get(KeyRunningPenalty),
			FailurePenalty: get(KeyFailurePenalty),
			FloorHeight:    get(KeyFloorHeight),
		},
		Friction: FrictionAccident{
			Enabled: flag(KeyEnableFriction),
			Delay:   get(KeyFrictionTime),
			Static:  get(KeyStaticFriction),
			Dynamic: get(KeyDynamicFriction),
		},
		Wind: WindAccident{
			Enabled: flag(KeyEnableWind),
			Delay:   get(KeyWindTime),
			X:       get(KeyWindForceX),
			Y:       get(KeyWindForceY),
			Z:       get(KeyWindForceZ),
		},
		LossControl: LossControlAccident{
			Enabled: flag(KeyEnableLossControl),
			Delay:   get(KeyLossControlTime),
			XRatio:  get(KeyLossControlXRatio),
			ZRatio:  get(KeyLossControlZRatio),
		},
		MaxObservationSize: int(get(KeyMaxObservationSize)),
		TimeStep:           get(KeyTimeStep),
		MaxSteps:           int(get(KeyMaxSteps)),
		TargetLaps:         get(KeyTargetLaps),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations that cannot start an episode. Window size
// against MaxObservationSize is checked by the observation encoder.
func (c Config) Validate() error {
	for key, v := range map[string]float64{
		KeyRadiusAnchorCircle: c.Track.Radius,
		KeyRoadWidth:          c.Track.RoadWidth,
		KeyTickerSpace:        c.Window.Space,
		KeyTimeStep:           c.TimeStep,
		KeyForceMultiplier:    c.Agent.ForceMultiplier,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Errorf(key, "must be finite")
		}
	}

	switch {
	case c.Track.NumAnchors < 3:
		return Errorf(KeyNumAnchors, "need at least 3 anchors, got %d", c.Track.NumAnchors)
	case c.Track.Radius <= 0:
		return Errorf(KeyRadiusAnchorCircle, "must be positive, got %g", c.Track.Radius)
	case c.Track.RadiusEpsilonRatio < 0 || c.Track.RadiusEpsilonRatio > 1:
		return Errorf(KeyRadiusEpsilonRatio, "must be in [0, 1], got %g", c.Track.RadiusEpsilonRatio)
	case c.Track.ThetaEpsilonRatio < 0:
		return Errorf(KeyThetaEpsilonRatio, "must be non-negative, got %g", c.Track.ThetaEpsilonRatio)
	case c.Track.MaxAnchorHeight < 0:
		return Errorf(KeyMaxAnchorHeight, "must be non-negative, got %g", c.Track.MaxAnchorHeight)
	case c.Track.MaxAnchorAngle < 0:
		return Errorf(KeyMaxAnchorAngle, "must be non-negative, got %g", c.Track.MaxAnchorAngle)
	case c.Track.Space != SpaceXYZ && c.Track.Space != SpaceXZ:
		return Errorf(KeyPathSpace, "unsupported path space %s", c.Track.Space)
	case c.Track.RoadWidth <= 0:
		return Errorf(KeyRoadWidth, "must be positive, got %g", c.Track.RoadWidth)
	case c.Agent.Type != AgentBall && c.Agent.Type != AgentVehicle:
		return Errorf(KeyAgentType, "unsupported agent type %d", int(c.Agent.Type))
	case c.Agent.Mass <= 0:
		return Errorf(KeyAgentMass, "must be positive, got %g", c.Agent.Mass)
	case c.Window.Start > c.Window.End:
		return Errorf(KeyTickerStart, "ticker_start %d exceeds ticker_end %d", c.Window.Start, c.Window.End)
	case c.Window.Space <= 0:
		return Errorf(KeyTickerSpace, "must be positive, got %g", c.Window.Space)
	case c.Reward.Mode != RewardSquaredSpeed && c.Reward.Mode != RewardLinearSpeed:
		return Errorf(KeyRewardMode, "unsupported reward mode %d", int(c.Reward.Mode))
	case c.MaxObservationSize <= 0:
		return Errorf(KeyMaxObservationSize, "must be positive, got %d", c.MaxObservationSize)
	case c.TimeStep <= 0:
		return Errorf(KeyTimeStep, "must be positive, got %g", c.TimeStep)
	case c.MaxSteps < 0:
		return Errorf(KeyMaxSteps, "must be non-negative, got %d", c.MaxSteps)
	case c.TargetLaps < 0 || math.IsNaN(c.TargetLaps):
		return Errorf(KeyTargetLaps, "must be non-negative, got %g", c.TargetLaps)
	}
	return nil
}
