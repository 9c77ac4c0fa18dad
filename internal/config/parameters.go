package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// EnvPrefix marks environment variables that override configuration keys.
const EnvPrefix = "TRACKGYM_"

const (
	KeyNumAnchors         = "num_anchors"
	KeyRadiusAnchorCircle = "radius_anchor_circle"
	KeyRadiusEpsilonRatio = "radius_epsilon_ratio"
	KeyThetaEpsilonRatio  = "theta_epsilon_ratio"
	KeyMaxAnchorHeight    = "max_anchor_height"
	KeyMaxAnchorAngle     = "max_anchor_angle"
	KeyPathSpace          = "path_space"
	KeyRoadWidth          = "road_width"
	KeyAgentMass          = "agent_mass"
	KeyForceMultiplier    = "force_multiplier"
	KeyTickerStart        = "ticker_start"
	KeyTickerEnd          = "ticker_end"
	KeyTickerSpace        = "ticker_space"
	KeyRunningPenalty     = "running_penalty"
	KeyFailurePenalty     = "failure_penalty"
	KeyEnableFriction     = "enableFrictionAccident"
	KeyFrictionTime       = "frictionchanged_time"
	KeyStaticFriction     = "static_friction"
	KeyDynamicFriction    = "dynamic_friction"
	KeyEnableWind         = "enableWindAccident"
	KeyWindTime           = "wind_time"
	KeyWindForceX         = "wind_force_X"
	KeyWindForceY         = "wind_force_Y"
	KeyWindForceZ         = "wind_force_Z"
	KeyEnableLossControl  = "enableLossControlAccident"
	KeyLossControlTime    = "lossctrl_time"
	KeyLossControlXRatio  = "lossctrl_Xaxis_ratio"
	KeyLossControlZRatio  = "lossctrl_Zaxis_ratio"
	KeyMaxObservationSize = "max_observation_size"
	KeyAgentType          = "agent_type"
	KeyRewardMode         = "reward_mode"
	KeyFloorHeight        = "floor_height"
	KeySpawnHeight        = "spawn_height"
	KeyTimeStep           = "time_step"
	KeyMaxSteps           = "max_steps"
	KeyIncludeOrientation = "include_orientation"
	KeyTargetLaps         = "target_laps"
)

var defaults = map[string]float64{
	KeyNumAnchors:         10,
	KeyRadiusAnchorCircle: 20,
	KeyRadiusEpsilonRatio: 0.7,
	KeyThetaEpsilonRatio:  0.7,
	KeyMaxAnchorHeight:    3,
	KeyMaxAnchorAngle:     15,
	KeyPathSpace:          float64(SpaceXZ),
	KeyRoadWidth:          5,
	KeyAgentMass:          1,
	KeyForceMultiplier:    10,
	KeyTickerStart:        -3,
	KeyTickerEnd:          5,
	KeyTickerSpace:        0.2,
	KeyRunningPenalty:     -5,
	KeyFailurePenalty:     -100,
	KeyEnableFriction:     0,
	KeyFrictionTime:       3,
	KeyStaticFriction:     0,
	KeyDynamicFriction:    0,
	KeyEnableWind:         0,
	KeyWindTime:           3,
	KeyWindForceX:         0,
	KeyWindForceY:         0,
	KeyWindForceZ:         0,
	KeyEnableLossControl:  0,
	KeyLossControlTime:    3,
	KeyLossControlXRatio:  1,
	KeyLossControlZRatio:  1,
	KeyMaxObservationSize: 64,
	KeyAgentType:          float64(AgentBall),
	KeyRewardMode:         float64(RewardSquaredSpeed),
	KeyFloorHeight:        0,
	KeySpawnHeight:        -1,
	KeyTimeStep:           0.02,
	KeyMaxSteps:           0,
	KeyIncludeOrientation: 0,
	KeyTargetLaps:         0,
}

// canonical maps lower-cased keys to their canonical spelling.
var canonical = func() map[string]string {
	m := make(map[string]string, len(defaults))
	for key := range defaults {
		m[strings.ToLower(key)] = key
	}
	return m
}()

// Parameters is the flat key-to-float mapping supplied by a trainer.
type Parameters map[string]float64

// Defaults returns a fresh copy of every recognized key with its default.
func Defaults() Parameters {
	out := make(Parameters, len(defaults))
	for k, v := range defaults {
		out[k] = v
	}
	return out
}

// Keys lists recognized keys in sorted order.
func Keys() []string {
	keys := make([]string, 0, len(defaults))
	for k := range defaults {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Canonical resolves key case-insensitively to a recognized key.
func Canonical(key string) (string, bool) {
	k, ok := canonical[strings.ToLower(strings.TrimSpace(key))]
	return k, ok
}

// GetWithDefault returns the value stored for key, or def when absent.
func (p Parameters) GetWithDefault(key string, def float64) float64 {
	if p == nil {
		return def
	}
	if v, ok := p[key]; ok {
		return v
	}
	return def
}

// Get returns the value for a recognized key, falling back to its default.
func (p Parameters) Get(key string) float64 {
	return p.GetWithDefault(key, defaults[key])
}

// Set stores value under the canonical spelling of key.
func (p Parameters) Set(key string, value float64) error {
	k, ok := Canonical(key)
	if !ok {
		return Errorf(key, "unknown key")
	}
	p[k] = value
	return nil
}

// Merge copies every entry of overrides into p and returns p.
func (p Parameters) Merge(overrides Parameters) Parameters {
	for k, v := range overrides {
		p[k] = v
	}
	return p
}

// Clone returns a copy of p.
func (p Parameters) Clone() Parameters {
	out := make(Parameters, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// ReadFile loads a JSON object of key/number pairs. Unknown keys are rejected.
func ReadFile(path string) (Parameters, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	out := make(Parameters, len(raw))
	for key, value := range raw {
		f, ok := asFloat64(value)
		if !ok {
			return nil, Errorf(key, "expected number, got %T", value)
		}
		if err := out.Set(key, f); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ReadEnvFile loads TRACKGYM_-prefixed entries from a dotenv file.
func ReadEnvFile(path string) (Parameters, error) {
	entries, err := godotenv.Read(path)
	if err != nil {
		return nil, err
	}
	return fromPrefixed(entries)
}

// FromEnviron extracts TRACKGYM_-prefixed entries from KEY=VALUE pairs such
// as os.Environ().
func FromEnviron(environ []string) (Parameters, error) {
	entries := make(map[string]string)
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		entries[key] = value
	}
	return fromPrefixed(entries)
}

func fromPrefixed(entries map[string]string) (Parameters, error) {
	out := make(Parameters)
	for name, value := range entries {
		if !strings.HasPrefix(strings.ToUpper(name), EnvPrefix) {
			continue
		}
		key := name[len(EnvPrefix):]
		f, err := parseValue(value)
		if err != nil {
			return nil, Errorf(key, "%v", err)
		}
		if err := out.Set(key, f); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ParseAssignment parses a "key=value" override.
func ParseAssignment(assignment string) (string, float64, error) {
	key, value, ok := strings.Cut(assignment, "=")
	if !ok {
		return "", 0, fmt.Errorf("expected key=value, got %q", assignment)
	}
	k, known := Canonical(key)
	if !known {
		return "", 0, Errorf(key, "unknown key")
	}
	f, err := parseValue(value)
	if err != nil {
		return "", 0, Errorf(k, "%v", err)
	}
	return k, f, nil
}

func parseValue(value string) (float64, error) {
	value = strings.TrimSpace(value)
	switch strings.ToLower(value) {
	case "true", "yes", "on":
		return 1, nil
	case "false", "no", "off":
		return 0, nil
	}
	return strconv.ParseFloat(value, 64)
}

func asFloat64(v any) (float64, bool) {
	switch typed := v.(type) {
	case float64:
		return typed, true
	case bool:
		if typed {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}
