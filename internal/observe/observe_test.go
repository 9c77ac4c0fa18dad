package observe

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"gonum.org/v1/gonum/spatial/r3"

	"trackgym/internal/config"
	"trackgym/internal/path"
	"trackgym/internal/world"
)

// straightLine is a curve along +X at height 0 whose normal is +Z.
type straightLine struct {
	center      float64
	pointCalls  []float64
	normalCalls []float64
}

func (s *straightLine) Length() float64                { return 100 }
func (s *straightLine) ClosestDistance(r3.Vec) float64 { return s.center }
func (s *straightLine) DirectionAt(float64) r3.Vec     { return r3.Vec{X: 1} }

func (s *straightLine) PointAt(d float64, w path.Wrap) r3.Vec {
	s.pointCalls = append(s.pointCalls, d)
	return r3.Vec{X: path.Resolve(d, s.Length(), w)}
}

func (s *straightLine) NormalAt(d float64, _ path.Wrap) r3.Vec {
	s.normalCalls = append(s.normalCalls, d)
	return r3.Vec{Z: 1}
}

func TestEncodePlanarWindowProducesThirtyTwoSampleValues(t *testing.T) {
	enc := Encoder{Window: WindowSpec{Start: -3, End: 5, Space: 0.2}, Space: config.SpaceXZ, MaxSize: 64}
	curve := &straightLine{center: 10}
	state := world.AgentState{Position: r3.Vec{X: 10, Y: 0.5, Z: 1}, Velocity: r3.Vec{X: 2}}

	obs, err := enc.Encode(state, curve)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(obs) != 64 {
		t.Fatalf("expected 64 values, got %d", len(obs))
	}
	if enc.ContentSize() != 4+32 {
		t.Fatalf("expected content size 36, got %d", enc.ContentSize())
	}
	if diff := cmp.Diff([]float64{10, 1, 2, 0}, obs[:4]); diff != "" {
		t.Fatalf("kinematic block mismatch (-want +got):\n%s", diff)
	}
	// first sample is three spacings behind: point (9.4, 0, 0) relative to the agent
	want := []float64{-0.6, -1, 0, 1}
	if diff := cmp.Diff(want, obs[4:8], cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Fatalf("first sample mismatch (-want +got):\n%s", diff)
	}
	for i, v := range obs[36:] {
		if v != 0 {
			t.Fatalf("expected zero padding at %d, got %f", 36+i, v)
		}
	}
	if len(curve.pointCalls) != 9 || len(curve.normalCalls) != 9 {
		t.Fatalf("expected one point and one normal query per sample, got %d/%d", len(curve.pointCalls), len(curve.normalCalls))
	}
}

func TestEncodeMirrorsWindowWhenMovingBackwards(t *testing.T) {
	enc := Encoder{Window: WindowSpec{Start: -1, End: 3, Space: 0.5}, Space: config.SpaceXZ, MaxSize: 64}

	forward := &straightLine{center: 20}
	if _, err := enc.Encode(world.AgentState{Velocity: r3.Vec{X: 1}}, forward); err != nil {
		t.Fatalf("encode forward: %v", err)
	}
	backward := &straightLine{center: 20}
	if _, err := enc.Encode(world.AgentState{Velocity: r3.Vec{X: -1}}, backward); err != nil {
		t.Fatalf("encode backward: %v", err)
	}

	approx := cmpopts.EquateApprox(0, 1e-12)
	if diff := cmp.Diff([]float64{19.5, 20, 20.5, 21, 21.5}, forward.pointCalls, approx); diff != "" {
		t.Fatalf("forward window mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{18.5, 19, 19.5, 20, 20.5}, backward.pointCalls, approx); diff != "" {
		t.Fatalf("mirrored window mismatch (-want +got):\n%s", diff)
	}

	s, e := enc.ResolveWindow(false)
	if s != -3 || e != 1 {
		t.Fatalf("expected mirrored window [-3, 1], got [%d, %d]", s, e)
	}
}

func TestEncodeLengthIsConstantAcrossWindowsAndDirections(t *testing.T) {
	for _, space := range []config.Space{config.SpaceXZ, config.SpaceXYZ} {
		for start := -4; start <= 2; start++ {
			for end := start; end <= 4; end++ {
				for _, vx := range []float64{1, -1, 0} {
					enc := Encoder{Window: WindowSpec{Start: start, End: end, Space: 0.3}, Space: space, MaxSize: 80, IncludeOrientation: true}
					obs, err := enc.Encode(world.AgentState{Velocity: r3.Vec{X: vx}}, &straightLine{center: 1})
					if err != nil {
						t.Fatalf("space=%s window=[%d,%d]: %v", space, start, end, err)
					}
					if len(obs) != 80 {
						t.Fatalf("space=%s window=[%d,%d] vx=%f: length %d", space, start, end, vx, len(obs))
					}
				}
			}
		}
	}
}

func TestEncodeFullSpaceWithOrientation(t *testing.T) {
	enc := Encoder{Window: WindowSpec{Start: 0, End: 0, Space: 1}, Space: config.SpaceXYZ, MaxSize: 15, IncludeOrientation: true}
	state := world.AgentState{Position: r3.Vec{X: 1, Y: 2, Z: 3}, Velocity: r3.Vec{X: 4, Y: 5, Z: 6}, Heading: math.Pi / 2}
	obs, err := enc.Encode(state, &straightLine{center: 1})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := []float64{1, 2, 3, 4, 5, 6, 1, 0, 0, 0, -2, -3, 0, 0, 1}
	if diff := cmp.Diff(want, obs, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Fatalf("observation mismatch (-want +got):\n%s", diff)
	}
}

func TestValidateRejectsOverflowAndBadWindows(t *testing.T) {
	cases := []Encoder{
		{Window: WindowSpec{Start: -3, End: 5, Space: 0.2}, Space: config.SpaceXZ, MaxSize: 35},
		{Window: WindowSpec{Start: 2, End: 1, Space: 0.2}, Space: config.SpaceXZ, MaxSize: 64},
		{Window: WindowSpec{Start: 0, End: 1, Space: 0}, Space: config.SpaceXZ, MaxSize: 64},
		{Window: WindowSpec{Start: 0, End: 1, Space: 1}, Space: config.SpaceXZ},
	}
	for i, enc := range cases {
		if err := enc.Validate(); !errors.Is(err, config.ErrConfiguration) {
			t.Fatalf("case %d: expected configuration error, got %v", i, err)
		}
		if _, err := enc.Encode(world.AgentState{}, &straightLine{}); err == nil {
			t.Fatalf("case %d: expected encode to refuse invalid encoder", i)
		}
	}
}

func TestValidateRejectsWindowsThatOverflowSampleCount(t *testing.T) {
	cases := []WindowSpec{
		{Start: -3e18, End: 5, Space: 0.2},
		{Start: math.MinInt, End: 5, Space: 0.2},
		{Start: math.MinInt, End: math.MaxInt, Space: 0.2},
		{Start: 0, End: math.MaxInt / 2, Space: 0.2},
		{Start: -3, End: 5, Space: math.Inf(1)},
		{Start: -3, End: 5, Space: math.NaN()},
	}
	for i, w := range cases {
		enc := Encoder{Window: w, Space: config.SpaceXZ, MaxSize: 64}
		if err := enc.Validate(); !errors.Is(err, config.ErrConfiguration) {
			t.Fatalf("case %d %+v: expected configuration error, got %v", i, w, err)
		}
	}

	for i, w := range cases[:4] {
		enc := Encoder{Window: w, Space: config.SpaceXZ, MaxSize: 64}
		if got := enc.ContentSize(); got != math.MaxInt {
			t.Fatalf("case %d %+v: expected saturated content size, got %d", i, w, got)
		}
	}

	// 4 kinematic values + 15 samples * 4 values fills 64 exactly.
	exact := Encoder{Window: WindowSpec{Start: -7, End: 7, Space: 0.2}, Space: config.SpaceXZ, MaxSize: 64}
	if err := exact.Validate(); err != nil {
		t.Fatalf("expected exact fit to validate, got %v", err)
	}
	exact.Window.End = 8
	if err := exact.Validate(); !errors.Is(err, config.ErrConfiguration) {
		t.Fatalf("expected one sample too many to be rejected, got %v", err)
	}
}

func TestEncodeAtReturnsCenterDistance(t *testing.T) {
	enc := Encoder{Window: WindowSpec{Start: 0, End: 1, Space: 1}, Space: config.SpaceXZ, MaxSize: 16}
	line := &straightLine{center: 12.5}
	_, center, err := enc.EncodeAt(nil, world.AgentState{}, line)
	if err != nil {
		t.Fatalf("encode at: %v", err)
	}
	if center != 12.5 {
		t.Fatalf("expected center 12.5, got %f", center)
	}
}

func TestEncodeIntoReusesBuffer(t *testing.T) {
	enc := Encoder{Window: WindowSpec{Start: 0, End: 1, Space: 1}, Space: config.SpaceXZ, MaxSize: 16}
	buf := make([]float64, 0, 16)
	out, err := enc.EncodeInto(buf, world.AgentState{}, &straightLine{})
	if err != nil {
		t.Fatalf("encode into: %v", err)
	}
	if &out[0] != &buf[:1][0] {
		t.Fatal("expected encoder to reuse the caller's buffer")
	}
}

func TestFromConfigMatchesDefaults(t *testing.T) {
	enc := FromConfig(config.Default())
	if err := enc.Validate(); err != nil {
		t.Fatalf("default encoder invalid: %v", err)
	}
	if enc.ContentSize() != 36 || enc.MaxSize != 64 {
		t.Fatalf("unexpected default sizes: content=%d max=%d", enc.ContentSize(), enc.MaxSize)
	}
}
