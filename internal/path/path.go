// Package path answers arc-length queries against the continuous curve built
// through a track's anchors.
package path

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"trackgym/internal/track"
)

// Wrap selects how distances outside [0, Length] are resolved.
type Wrap int

const (
	Loop Wrap = iota
	Stop
	Reverse
)

func (w Wrap) String() string {
	switch w {
	case Loop:
		return "loop"
	case Stop:
		return "stop"
	case Reverse:
		return "reverse"
	default:
		return fmt.Sprintf("wrap(%d)", int(w))
	}
}

// Adapter is the query surface of a curve. Distances are arc lengths and
// may be negative or exceed Length; the wrap policy resolves them.
type Adapter interface {
	Length() float64
	ClosestDistance(p r3.Vec) float64
	PointAt(d float64, w Wrap) r3.Vec
	NormalAt(d float64, w Wrap) r3.Vec
	DirectionAt(d float64) r3.Vec
}

// Builder turns a layout into a queryable curve.
type Builder func(track.Layout) (Adapter, error)

// Resolve maps d into [0, length] according to w.
func Resolve(d, length float64, w Wrap) float64 {
	if length <= 0 || math.IsNaN(d) {
		return 0
	}
	switch w {
	case Stop:
		return math.Max(0, math.Min(length, d))
	case Reverse:
		t := math.Mod(d, 2*length)
		if t < 0 {
			t += 2 * length
		}
		if t > length {
			t = 2*length - t
		}
		return t
	default:
		t := math.Mod(d, length)
		if t < 0 {
			t += length
		}
		return t
	}
}
