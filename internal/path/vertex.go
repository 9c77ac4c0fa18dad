package path

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"

	"trackgym/internal/config"
	"trackgym/internal/track"
	"trackgym/internal/world"
)

const DefaultSamplesPerSegment = 16

type Options struct {
	SamplesPerSegment int
}

// NewBuilder returns a Builder producing VertexPaths.
func NewBuilder(opts Options) Builder {
	return func(layout track.Layout) (Adapter, error) {
		return Build(layout, opts)
	}
}

// VertexPath is a polyline sampled from a centripetal Catmull-Rom spline
// through the layout anchors. A closed path repeats its first vertex at the
// end so every segment is explicit.
type VertexPath struct {
	space    config.Space
	vertices []r3.Vec
	angles   []float64 // banking per vertex, degrees
	cumul    []float64
	tangents []r3.Vec // per vertex, averaged over adjacent segments
}

// Build samples the curve through layout's anchors.
func Build(layout track.Layout, opts Options) (*VertexPath, error) {
	n := len(layout.Anchors)
	if n < 2 {
		return nil, config.Errorf(config.KeyNumAnchors, "path needs at least 2 anchors, got %d", n)
	}
	samples := opts.SamplesPerSegment
	if samples <= 0 {
		samples = DefaultSamplesPerSegment
	}

	point := func(i int) r3.Vec {
		if layout.Closed {
			return layout.Anchors[((i%n)+n)%n].Position
		}
		return layout.Anchors[max(0, min(n-1, i))].Position
	}
	angle := func(i int) float64 {
		if layout.Closed {
			return layout.Anchors[i%n].Angle
		}
		return layout.Anchors[min(n-1, i)].Angle
	}

	segments := n - 1
	if layout.Closed {
		segments = n
	}
	p := &VertexPath{space: layout.Space}
	for i := 0; i < segments; i++ {
		p0, p1, p2, p3 := point(i-1), point(i), point(i+1), point(i+2)
		a1, a2 := angle(i), angle(i+1)
		for s := 0; s < samples; s++ {
			u := float64(s) / float64(samples)
			p.vertices = append(p.vertices, catmullRom(p0, p1, p2, p3, u))
			p.angles = append(p.angles, a1+(a2-a1)*u)
		}
	}
	p.vertices = append(p.vertices, point(segments))
	p.angles = append(p.angles, angle(segments))

	p.cumul = make([]float64, len(p.vertices))
	for i := 1; i < len(p.vertices); i++ {
		p.cumul[i] = p.cumul[i-1] + r3.Norm(r3.Sub(p.vertices[i], p.vertices[i-1]))
	}
	p.buildTangents(layout.Closed)
	return p, nil
}

func (p *VertexPath) buildTangents(closed bool) {
	last := len(p.vertices) - 1
	seg := make([]r3.Vec, last)
	for i := range seg {
		seg[i] = world.Unit(r3.Sub(p.vertices[i+1], p.vertices[i]))
	}
	p.tangents = make([]r3.Vec, len(p.vertices))
	for i := range p.tangents {
		switch {
		case i == 0 || i == last:
			if closed {
				p.tangents[i] = world.Unit(r3.Add(seg[last-1], seg[0]))
			} else if i == 0 {
				p.tangents[i] = seg[0]
			} else {
				p.tangents[i] = seg[last-1]
			}
		default:
			p.tangents[i] = world.Unit(r3.Add(seg[i-1], seg[i]))
		}
	}
}

// catmullRom evaluates the centripetal spline segment between p1 and p2
// at u in [0, 1) using the Barry-Goldman pyramid.
func catmullRom(p0, p1, p2, p3 r3.Vec, u float64) r3.Vec {
	knot := func(a, b r3.Vec) float64 {
		d := math.Sqrt(r3.Norm(r3.Sub(b, a)))
		if d < 1e-9 {
			return 1
		}
		return d
	}
	t0 := 0.0
	t1 := t0 + knot(p0, p1)
	t2 := t1 + knot(p1, p2)
	t3 := t2 + knot(p2, p3)
	t := t1 + u*(t2-t1)

	lerp := func(a, b r3.Vec, ta, tb float64) r3.Vec {
		w := (t - ta) / (tb - ta)
		return r3.Add(r3.Scale(1-w, a), r3.Scale(w, b))
	}
	a1 := lerp(p0, p1, t0, t1)
	a2 := lerp(p1, p2, t1, t2)
	a3 := lerp(p2, p3, t2, t3)
	b1 := lerp(a1, a2, t0, t2)
	b2 := lerp(a2, a3, t1, t3)
	return lerp(b1, b2, t1, t2)
}

func (p *VertexPath) Length() float64 {
	return p.cumul[len(p.cumul)-1]
}

// Vertices returns a copy of the sampled polyline.
func (p *VertexPath) Vertices() []r3.Vec {
	return append([]r3.Vec(nil), p.vertices...)
}

// ClosestDistance projects p onto every segment and returns the arc length
// of the nearest projection.
func (p *VertexPath) ClosestDistance(q r3.Vec) float64 {
	best, bestDist := 0.0, math.Inf(1)
	for i := 0; i+1 < len(p.vertices); i++ {
		a, b := p.vertices[i], p.vertices[i+1]
		ab := r3.Sub(b, a)
		segLen2 := r3.Dot(ab, ab)
		t := 0.0
		if segLen2 > 0 {
			t = math.Max(0, math.Min(1, r3.Dot(r3.Sub(q, a), ab)/segLen2))
		}
		proj := r3.Add(a, r3.Scale(t, ab))
		diff := r3.Sub(q, proj)
		if d := r3.Dot(diff, diff); d < bestDist {
			bestDist = d
			best = p.cumul[i] + t*(p.cumul[i+1]-p.cumul[i])
		}
	}
	return best
}

// locate returns the segment index containing distance d and the fraction
// along it.
func (p *VertexPath) locate(d float64) (int, float64) {
	i := sort.SearchFloat64s(p.cumul, d)
	switch {
	case i <= 0:
		return 0, 0
	case i >= len(p.cumul):
		return len(p.cumul) - 2, 1
	}
	i--
	span := p.cumul[i+1] - p.cumul[i]
	if span <= 0 {
		return i, 0
	}
	return i, (d - p.cumul[i]) / span
}

func (p *VertexPath) PointAt(d float64, w Wrap) r3.Vec {
	i, f := p.locate(Resolve(d, p.Length(), w))
	a, b := p.vertices[i], p.vertices[i+1]
	return r3.Add(a, r3.Scale(f, r3.Sub(b, a)))
}

func (p *VertexPath) DirectionAt(d float64) r3.Vec {
	return p.directionAt(Resolve(d, p.Length(), Loop))
}

func (p *VertexPath) directionAt(resolved float64) r3.Vec {
	i, f := p.locate(resolved)
	a, b := p.tangents[i], p.tangents[i+1]
	dir := world.Unit(r3.Add(r3.Scale(1-f, a), r3.Scale(f, b)))
	if dir == (r3.Vec{}) {
		return world.Unit(r3.Sub(p.vertices[i+1], p.vertices[i]))
	}
	return dir
}

// NormalAt is the lateral vector across the road. On full 3D paths it is
// rotated about the tangent by the interpolated banking angle.
func (p *VertexPath) NormalAt(d float64, w Wrap) r3.Vec {
	resolved := Resolve(d, p.Length(), w)
	tangent := p.directionAt(resolved)
	lateral := world.Unit(r3.Cross(world.Up, tangent))
	if !p.space.Full() {
		return lateral
	}
	i, f := p.locate(resolved)
	bank := (p.angles[i] + (p.angles[i+1]-p.angles[i])*f) * math.Pi / 180
	return rotate(lateral, tangent, bank)
}

// rotate turns v about the unit axis k by theta radians (Rodrigues).
func rotate(v, k r3.Vec, theta float64) r3.Vec {
	cos, sin := math.Cos(theta), math.Sin(theta)
	out := r3.Scale(cos, v)
	out = r3.Add(out, r3.Scale(sin, r3.Cross(k, v)))
	return r3.Add(out, r3.Scale(r3.Dot(k, v)*(1-cos), k))
}
