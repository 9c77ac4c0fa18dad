package path

import (
	"gonum.org/v1/gonum/spatial/r3"

	"trackgym/internal/world"
)

// Surface supports points whose horizontal distance to the curve is within
// half the road width.
type Surface struct {
	Curve     Adapter
	HalfWidth float64
}

func (s Surface) SupportAt(p r3.Vec) (float64, bool) {
	if s.Curve == nil {
		return 0, false
	}
	c := s.Curve.PointAt(s.Curve.ClosestDistance(p), Loop)
	off := world.Horizontal(r3.Sub(p, c))
	return c.Y, r3.Norm(off) <= s.HalfWidth
}
