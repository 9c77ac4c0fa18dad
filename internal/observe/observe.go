// Package observe encodes the agent's kinematic state and a window of path
// samples into a fixed-length observation vector.
package observe

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"trackgym/internal/config"
	"trackgym/internal/path"
	"trackgym/internal/world"
)

// WindowSpec is the range of sample offsets around the agent's projection
// onto the curve, in units of Space.
type WindowSpec struct {
	Start int
	End   int
	Space float64
}

// Samples is the number of offsets in the window. It is only meaningful
// for windows that passed Encoder.Validate.
func (w WindowSpec) Samples() int {
	return w.End - w.Start + 1
}

// span is End-Start+1 computed without overflow. ok is false for inverted
// windows and for a span that does not fit in a uint64.
func (w WindowSpec) span() (n uint64, ok bool) {
	if w.Start > w.End {
		return 0, false
	}
	n = uint64(w.End) - uint64(w.Start) + 1
	return n, n != 0
}

// Encoder turns agent state and path queries into observation vectors.
type Encoder struct {
	Window             WindowSpec
	Space              config.Space
	MaxSize            int
	IncludeOrientation bool
}

// FromConfig builds an encoder from validated configuration.
func FromConfig(cfg config.Config) Encoder {
	return Encoder{
		Window: WindowSpec{
			Start: cfg.Window.Start,
			End:   cfg.Window.End,
			Space: cfg.Window.Space,
		},
		Space:              cfg.Track.Space,
		MaxSize:            cfg.MaxObservationSize,
		IncludeOrientation: cfg.Agent.IncludeOrientation,
	}
}

// KinematicSize is the length of the position/velocity(/orientation) block.
func (e Encoder) KinematicSize() int {
	n := 2 * e.Space.Axes()
	if e.IncludeOrientation {
		n += e.Space.Axes()
	}
	return n
}

// ContentSize is the number of meaningful values before padding. It
// saturates at math.MaxInt for windows too wide to encode.
func (e Encoder) ContentSize() int {
	kinematic := uint64(e.KinematicSize())
	if e.Window.Start > e.Window.End {
		return int(kinematic)
	}
	perSample := uint64(2 * e.Space.Axes())
	samples, ok := e.Window.span()
	if !ok || samples > (math.MaxInt-kinematic)/perSample {
		return math.MaxInt
	}
	return int(kinematic + perSample*samples)
}

// Validate rejects windows and sizes that cannot produce a complete
// observation of MaxSize values.
func (e Encoder) Validate() error {
	switch {
	case e.Window.Start > e.Window.End:
		return config.Errorf(config.KeyTickerStart, "ticker_start %d exceeds ticker_end %d", e.Window.Start, e.Window.End)
	case !(e.Window.Space > 0) || math.IsInf(e.Window.Space, 0):
		return config.Errorf(config.KeyTickerSpace, "must be positive and finite, got %g", e.Window.Space)
	case e.MaxSize <= 0:
		return config.Errorf(config.KeyMaxObservationSize, "must be positive, got %d", e.MaxSize)
	}

	kinematic := e.KinematicSize()
	perSample := uint64(2 * e.Space.Axes())
	samples, ok := e.Window.span()
	if !ok || kinematic > e.MaxSize || samples > uint64(e.MaxSize-kinematic)/perSample {
		return config.Errorf(config.KeyMaxObservationSize,
			"window [%d, %d] does not fit in max_observation_size %d", e.Window.Start, e.Window.End, e.MaxSize)
	}
	return nil
}

// ResolveWindow returns the offsets to sample. Agents moving against the
// curve's parametrization read the mirrored window so samples always run in
// the agent's frame.
func (e Encoder) ResolveWindow(clockwise bool) (int, int) {
	if clockwise {
		return e.Window.Start, e.Window.End
	}
	return -e.Window.End, -e.Window.Start
}

// Encode returns a new observation of exactly MaxSize values.
func (e Encoder) Encode(state world.AgentState, curve path.Adapter) ([]float64, error) {
	return e.EncodeInto(nil, state, curve)
}

// EncodeInto writes the observation into dst, reusing its capacity.
func (e Encoder) EncodeInto(dst []float64, state world.AgentState, curve path.Adapter) ([]float64, error) {
	out, _, err := e.EncodeAt(dst, state, curve)
	return out, err
}

// EncodeAt is EncodeInto that also returns the arc-length distance of the
// agent's projection onto the curve, so callers need not query it again.
func (e Encoder) EncodeAt(dst []float64, state world.AgentState, curve path.Adapter) ([]float64, float64, error) {
	if err := e.Validate(); err != nil {
		return nil, 0, err
	}
	if cap(dst) < e.MaxSize {
		dst = make([]float64, 0, e.MaxSize)
	}
	out := dst[:0]

	out = world.AppendProjected(out, state.Position, e.Space)
	out = world.AppendProjected(out, state.Velocity, e.Space)
	if e.IncludeOrientation {
		out = world.AppendProjected(out, state.Forward(), e.Space)
	}

	center := curve.ClosestDistance(state.Position)
	tangent := curve.DirectionAt(center)
	clockwise := r3.Dot(state.Velocity, tangent) >= 0
	start, end := e.ResolveWindow(clockwise)
	for offset := start; offset <= end; offset++ {
		d := center + float64(offset)*e.Window.Space
		point := curve.PointAt(d, path.Loop)
		normal := curve.NormalAt(d, path.Loop)
		out = world.AppendProjected(out, r3.Sub(point, state.Position), e.Space)
		out = world.AppendProjected(out, normal, e.Space)
	}

	for len(out) < e.MaxSize {
		out = append(out, 0)
	}
	return out, center, nil
}
