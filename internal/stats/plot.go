package stats

import (
	"errors"
	"image/color"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"trackgym/internal/path"
	"trackgym/internal/track"
)

const plotSamplesPerAnchor = 24

var (
	curveColor  = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	edgeColor   = color.RGBA{R: 127, G: 127, B: 127, A: 255}
	anchorColor = color.RGBA{R: 214, G: 39, B: 40, A: 255}
)

// WriteTrackPlot renders a top-down view (x against z) of the layout, the
// curve through it and both road edges. The format follows the file
// extension.
func WriteTrackPlot(file string, layout track.Layout, curve path.Adapter) error {
	if len(layout.Anchors) == 0 {
		return errors.New("layout has no anchors")
	}
	if curve == nil || curve.Length() <= 0 {
		return errors.New("curve is empty")
	}

	p := plot.New()
	p.Title.Text = "Track layout"
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Z (m)"

	center, left, right := sampleRoad(layout, curve)

	centerLine, err := plotter.NewLine(center)
	if err != nil {
		return err
	}
	centerLine.Color = curveColor
	centerLine.Width = vg.Points(1.5)

	leftLine, err := plotter.NewLine(left)
	if err != nil {
		return err
	}
	leftLine.Color = edgeColor
	leftLine.Width = vg.Points(0.75)

	rightLine, err := plotter.NewLine(right)
	if err != nil {
		return err
	}
	rightLine.Color = edgeColor
	rightLine.Width = vg.Points(0.75)

	anchors := make(plotter.XYs, len(layout.Anchors))
	for i, anchor := range layout.Anchors {
		anchors[i] = plotter.XY{X: anchor.Position.X, Y: anchor.Position.Z}
	}
	anchorPoints, err := plotter.NewScatter(anchors)
	if err != nil {
		return err
	}
	anchorPoints.Color = anchorColor
	anchorPoints.Radius = vg.Points(3)

	p.Add(leftLine, rightLine, centerLine, anchorPoints)
	p.Legend.Add("path", centerLine)
	p.Legend.Add("road edge", leftLine)
	p.Legend.Add("anchors", anchorPoints)
	p.Legend.Top = true
	p.Legend.Left = false

	// Keep the aspect ratio square so the loop is not distorted.
	extent := math.Max(math.Abs(p.X.Min), math.Max(math.Abs(p.X.Max), math.Max(math.Abs(p.Y.Min), math.Abs(p.Y.Max))))
	p.X.Min, p.X.Max = -extent, extent
	p.Y.Min, p.Y.Max = -extent, extent

	return p.Save(8*vg.Inch, 8*vg.Inch, file)
}

func sampleRoad(layout track.Layout, curve path.Adapter) (center, left, right plotter.XYs) {
	n := plotSamplesPerAnchor * len(layout.Anchors)
	halfWidth := layout.RoadWidth / 2
	wrap := path.Stop
	if layout.Closed {
		wrap = path.Loop
	}

	length := curve.Length()
	center = make(plotter.XYs, 0, n+1)
	left = make(plotter.XYs, 0, n+1)
	right = make(plotter.XYs, 0, n+1)
	for i := 0; i <= n; i++ {
		d := length * float64(i) / float64(n)
		if layout.Closed && i == n {
			d = 0
		}
		point := curve.PointAt(d, wrap)
		normal := curve.NormalAt(d, wrap)
		center = append(center, plotter.XY{X: point.X, Y: point.Z})
		left = append(left, plotter.XY{X: point.X + normal.X*halfWidth, Y: point.Z + normal.Z*halfWidth})
		right = append(right, plotter.XY{X: point.X - normal.X*halfWidth, Y: point.Z - normal.Z*halfWidth})
	}
	return center, left, right
}
