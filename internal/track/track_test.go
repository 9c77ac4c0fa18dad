package track

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"trackgym/internal/config"
)

func TestGenerateJitterFreeDecagon(t *testing.T) {
	g := Generator{Radius: 8, Count: 10, Space: config.SpaceXZ, RoadWidth: 5}
	layout, err := g.Generate(rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(layout.Anchors) != 10 || !layout.Closed {
		t.Fatalf("unexpected layout: %+v", layout)
	}
	for i, a := range layout.Anchors {
		theta := float64(i) * 2 * math.Pi / 10
		wantX, wantZ := 8*math.Cos(theta), 8*math.Sin(theta)
		if math.Abs(a.Position.X-wantX) > 1e-12 || math.Abs(a.Position.Z-wantZ) > 1e-12 || a.Position.Y != 0 {
			t.Fatalf("anchor %d at %+v, want (%f, 0, %f)", i, a.Position, wantX, wantZ)
		}
		if a.Angle != 0 {
			t.Fatalf("anchor %d angle %f, want 0", i, a.Angle)
		}
	}
}

func TestGenerateStaysWithinBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for count := 3; count <= 24; count++ {
		g := Generator{
			Radius:             20,
			Count:              count,
			RadiusEpsilonRatio: 0.7,
			ThetaEpsilonRatio:  0.7,
			MaxHeight:          3,
			MaxAngle:           15,
			Space:              config.SpaceXYZ,
		}
		layout, err := g.Generate(rng)
		if err != nil {
			t.Fatalf("count=%d: %v", count, err)
		}
		if len(layout.Anchors) != count {
			t.Fatalf("count=%d: got %d anchors", count, len(layout.Anchors))
		}
		dTheta := g.SectorWidth()
		for i, a := range layout.Anchors {
			r := math.Hypot(a.Position.X, a.Position.Z)
			if r < 6-1e-9 || r > 34+1e-9 {
				t.Fatalf("count=%d anchor %d radius %f out of range", count, i, r)
			}
			if a.Position.Y < 0 || a.Position.Y > 3 {
				t.Fatalf("count=%d anchor %d height %f out of range", count, i, a.Position.Y)
			}
			if a.Angle < -15 || a.Angle > 15 {
				t.Fatalf("count=%d anchor %d angle %f out of range", count, i, a.Angle)
			}
			theta := math.Atan2(a.Position.Z, a.Position.X)
			centre := float64(i) * dTheta
			delta := math.Remainder(theta-centre, 2*math.Pi)
			if math.Abs(delta) > dTheta*0.7+1e-9 {
				t.Fatalf("count=%d anchor %d theta off sector by %f", count, i, delta)
			}
		}
	}
}

func TestGeneratePlanarKeepsZeroHeight(t *testing.T) {
	g := Generator{Radius: 10, Count: 6, RadiusEpsilonRatio: 0.5, ThetaEpsilonRatio: 0.5, MaxHeight: 5, Space: config.SpaceXZ}
	for _, p := range g.Anchors(rand.New(rand.NewSource(7))) {
		if p.Y != 0 {
			t.Fatalf("expected planar anchor height 0, got %f", p.Y)
		}
	}
}

func TestValidateRejectsTooFewAnchors(t *testing.T) {
	_, err := Generator{Radius: 10, Count: 2}.Generate(rand.New(rand.NewSource(1)))
	if !errors.Is(err, config.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestFromConfigCopiesTrackSettings(t *testing.T) {
	cfg := config.Default().Track
	g := FromConfig(cfg)
	if g.Count != cfg.NumAnchors || g.Radius != cfg.Radius || g.Space != cfg.Space || g.RoadWidth != cfg.RoadWidth {
		t.Fatalf("unexpected generator: %+v", g)
	}
}
