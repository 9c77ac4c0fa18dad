// Package track generates randomized closed-loop track layouts from noisy
// polar anchors.
package track

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/spatial/r3"

	"trackgym/internal/config"
)

// Anchor is a control point of the track with its banking angle in degrees.
type Anchor struct {
	Position r3.Vec
	Angle    float64
}

// Layout is one episode's track: ordered anchors plus how to build the curve
// through them.
type Layout struct {
	Anchors   []Anchor
	Closed    bool
	Space     config.Space
	RoadWidth float64
}

// Positions returns the anchor positions in order.
func (l Layout) Positions() []r3.Vec {
	out := make([]r3.Vec, len(l.Anchors))
	for i, a := range l.Anchors {
		out[i] = a.Position
	}
	return out
}

// Generator draws anchors around a circle. Each of Count equal angular
// sectors gets one anchor whose radius and angle are jittered by the
// epsilon ratios.
type Generator struct {
	Radius             float64
	Count              int
	RadiusEpsilonRatio float64
	ThetaEpsilonRatio  float64
	MaxHeight          float64
	MaxAngle           float64
	Space              config.Space
	RoadWidth          float64
}

// FromConfig builds a generator from validated track configuration.
func FromConfig(cfg config.Track) Generator {
	return Generator{
		Radius:             cfg.Radius,
		Count:              cfg.NumAnchors,
		RadiusEpsilonRatio: cfg.RadiusEpsilonRatio,
		ThetaEpsilonRatio:  cfg.ThetaEpsilonRatio,
		MaxHeight:          cfg.MaxAnchorHeight,
		MaxAngle:           cfg.MaxAnchorAngle,
		Space:              cfg.Space,
		RoadWidth:          cfg.RoadWidth,
	}
}

func (g Generator) Validate() error {
	switch {
	case g.Count < 3:
		return config.Errorf(config.KeyNumAnchors, "need at least 3 anchors, got %d", g.Count)
	case g.Radius < 0 || math.IsNaN(g.Radius):
		return config.Errorf(config.KeyRadiusAnchorCircle, "must be non-negative, got %g", g.Radius)
	case g.RadiusEpsilonRatio < 0:
		return config.Errorf(config.KeyRadiusEpsilonRatio, "must be non-negative, got %g", g.RadiusEpsilonRatio)
	case g.ThetaEpsilonRatio < 0:
		return config.Errorf(config.KeyThetaEpsilonRatio, "must be non-negative, got %g", g.ThetaEpsilonRatio)
	case g.MaxHeight < 0:
		return config.Errorf(config.KeyMaxAnchorHeight, "must be non-negative, got %g", g.MaxHeight)
	case g.MaxAngle < 0:
		return config.Errorf(config.KeyMaxAnchorAngle, "must be non-negative, got %g", g.MaxAngle)
	}
	return nil
}

// SectorWidth is the angular width of one sector in radians.
func (g Generator) SectorWidth() float64 {
	return 2 * math.Pi / float64(g.Count)
}

// Anchors draws Count anchor positions. Heights stay at zero on planar
// tracks.
func (g Generator) Anchors(rng *rand.Rand) []r3.Vec {
	dTheta := g.SectorWidth()
	out := make([]r3.Vec, g.Count)
	for i := range out {
		r := uniform(rng, g.Radius-g.Radius*g.RadiusEpsilonRatio, g.Radius+g.Radius*g.RadiusEpsilonRatio)
		centre := float64(i) * dTheta
		theta := uniform(rng, centre-dTheta*g.ThetaEpsilonRatio, centre+dTheta*g.ThetaEpsilonRatio)
		y := 0.0
		if g.Space.Full() {
			y = uniform(rng, 0, g.MaxHeight)
		}
		out[i] = r3.Vec{X: r * math.Cos(theta), Y: y, Z: r * math.Sin(theta)}
	}
	return out
}

// Angles draws Count banking angles in [-MaxAngle, MaxAngle].
func (g Generator) Angles(rng *rand.Rand) []float64 {
	out := make([]float64, g.Count)
	for i := range out {
		out[i] = uniform(rng, -g.MaxAngle, g.MaxAngle)
	}
	return out
}

// Generate validates the generator and draws a closed layout.
func (g Generator) Generate(rng *rand.Rand) (Layout, error) {
	if err := g.Validate(); err != nil {
		return Layout{}, err
	}
	positions := g.Anchors(rng)
	angles := g.Angles(rng)
	anchors := make([]Anchor, g.Count)
	for i := range anchors {
		anchors[i] = Anchor{Position: positions[i], Angle: angles[i]}
	}
	return Layout{
		Anchors:   anchors,
		Closed:    true,
		Space:     g.Space,
		RoadWidth: g.RoadWidth,
	}, nil
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	if hi <= lo {
		return lo
	}
	return lo + rng.Float64()*(hi-lo)
}
