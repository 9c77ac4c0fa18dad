package config

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDefaultConfigMatchesDocumentedDefaults(t *testing.T) {
	cfg := Default()

	want := Config{
		Track: Track{
			NumAnchors:         10,
			Radius:             20,
			RadiusEpsilonRatio: 0.7,
			ThetaEpsilonRatio:  0.7,
			MaxAnchorHeight:    3,
			MaxAnchorAngle:     15,
			Space:              SpaceXZ,
			RoadWidth:          5,
		},
		Agent: Agent{
			Type:            AgentBall,
			Mass:            1,
			ForceMultiplier: 10,
			SpawnHeight:     0.5,
		},
		Window:             Window{Start: -3, End: 5, Space: 0.2},
		Reward:             Reward{Mode: RewardSquaredSpeed, RunningPenalty: -5, FailurePenalty: -100},
		Friction:           FrictionAccident{Delay: 3},
		Wind:               WindAccident{Delay: 3},
		LossControl:        LossControlAccident{Delay: 3, XRatio: 1, ZRatio: 1},
		MaxObservationSize: 64,
		TimeStep:           0.02,
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("default config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadRejectsTooFewAnchors(t *testing.T) {
	_, err := Load(Parameters{KeyNumAnchors: 2})
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	var cfgErr *Error
	if !errors.As(err, &cfgErr) || cfgErr.Key != KeyNumAnchors {
		t.Fatalf("expected error on %s, got %v", KeyNumAnchors, err)
	}
}

func TestLoadRejectsXYPathSpaceAndInvertedWindow(t *testing.T) {
	if _, err := Load(Parameters{KeyPathSpace: 1}); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected xy path space rejection, got %v", err)
	}
	if _, err := Load(Parameters{KeyTickerStart: 4, KeyTickerEnd: 2}); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected inverted window rejection, got %v", err)
	}
}

func TestLoadRejectsNonFiniteAndOversizedValues(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value float64
	}{
		{name: "nan ticker start", key: KeyTickerStart, value: math.NaN()},
		{name: "huge negative ticker start", key: KeyTickerStart, value: -3e18},
		{name: "huge ticker end", key: KeyTickerEnd, value: 1e12},
		{name: "infinite anchors", key: KeyNumAnchors, value: math.Inf(1)},
		{name: "nan penalty", key: KeyRunningPenalty, value: math.NaN()},
		{name: "infinite wind", key: KeyWindForceX, value: math.Inf(-1)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(Parameters{tc.key: tc.value})
			var cfgErr *Error
			if !errors.As(err, &cfgErr) || cfgErr.Key != tc.key {
				t.Fatalf("expected error on %s, got %v", tc.key, err)
			}
		})
	}

	if _, err := Load(Parameters{KeyTickerStart: -1000, KeyTickerEnd: 1000, KeyMaxObservationSize: 1 << 20}); err != nil {
		t.Fatalf("expected large but representable window to load, got %v", err)
	}
}

func TestLoadVehicleSpawnOffsetAndFlags(t *testing.T) {
	cfg, err := Load(Parameters{
		KeyAgentType:          float64(AgentVehicle),
		KeyEnableWind:         1,
		KeyEnableFriction:     0,
		KeyIncludeOrientation: 1,
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Agent.SpawnHeight != 1.0 {
		t.Fatalf("expected vehicle spawn offset 1.0, got %f", cfg.Agent.SpawnHeight)
	}
	if !cfg.Wind.Enabled || cfg.Friction.Enabled || !cfg.Agent.IncludeOrientation {
		t.Fatalf("unexpected flags: %+v", cfg)
	}
}

func TestGetWithDefaultOnNilParameters(t *testing.T) {
	var p Parameters
	if got := p.GetWithDefault("anything", 4.5); got != 4.5 {
		t.Fatalf("expected default, got %f", got)
	}
}

func TestReadFileAndEnvFileOverrides(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "env.json")
	if err := os.WriteFile(jsonPath, []byte(`{"num_anchors": 12, "ENABLEWINDACCIDENT": true}`), 0o644); err != nil {
		t.Fatalf("write json: %v", err)
	}
	fromJSON, err := ReadFile(jsonPath)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if fromJSON[KeyNumAnchors] != 12 || fromJSON[KeyEnableWind] != 1 {
		t.Fatalf("unexpected json parameters: %+v", fromJSON)
	}

	envPath := filepath.Join(dir, ".env")
	if err := os.WriteFile(envPath, []byte("TRACKGYM_NUM_ANCHORS=7\nTRACKGYM_WIND_FORCE_X=2.5\nOTHER=1\n"), 0o644); err != nil {
		t.Fatalf("write env: %v", err)
	}
	fromEnv, err := ReadEnvFile(envPath)
	if err != nil {
		t.Fatalf("read env file: %v", err)
	}

	merged := Defaults().Merge(fromJSON).Merge(fromEnv)
	if merged[KeyNumAnchors] != 7 || merged[KeyWindForceX] != 2.5 || merged[KeyEnableWind] != 1 {
		t.Fatalf("unexpected merged parameters: %+v", merged)
	}
	if _, ok := merged["OTHER"]; ok {
		t.Fatal("unprefixed env entries must be ignored")
	}
}

func TestReadFileRejectsUnknownKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte(`{"warp_drive": 1}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := ReadFile(path); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected unknown key rejection, got %v", err)
	}
}

func TestFromEnvironAndParseAssignment(t *testing.T) {
	params, err := FromEnviron([]string{"TRACKGYM_TICKER_END=9", "PATH=/bin", "TRACKGYM_ENABLEFRICTIONACCIDENT=yes"})
	if err != nil {
		t.Fatalf("from environ: %v", err)
	}
	if params[KeyTickerEnd] != 9 || params[KeyEnableFriction] != 1 {
		t.Fatalf("unexpected environ parameters: %+v", params)
	}

	key, value, err := ParseAssignment("Road_Width=3.5")
	if err != nil {
		t.Fatalf("parse assignment: %v", err)
	}
	if key != KeyRoadWidth || value != 3.5 {
		t.Fatalf("unexpected assignment %s=%f", key, value)
	}
	if _, _, err := ParseAssignment("road_width"); err == nil {
		t.Fatal("expected missing value error")
	}
}
