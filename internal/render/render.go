// Package render draws flock frames: a top-down projection shared with the
// interactive viewer and an offline PNG renderer built on gg.
package render

import (
	"errors"
	"image/color"
	"io"
	"math"

	"github.com/fogleman/gg"
	"github.com/lao-tseu-is-alive/go-flock-simulation/internal/world"
	"github.com/lao-tseu-is-alive/go-flock-simulation/pkg/geometry"
	"github.com/lao-tseu-is-alive/go-flock-simulation/pkg/simulation"
)

var (
	Background = color.RGBA{R: 10, G: 10, B: 30, A: 255}
	BoidColor  = color.RGBA{R: 100, G: 200, B: 255, A: 255}
	WallColor  = color.RGBA{R: 100, G: 100, B: 110, A: 255}
)

// Projection maps the XY plane of the world box onto a width x height
// picture, keeping the aspect ratio. Screen Y grows downward.
type Projection struct {
	Width, Height float64
	Scale         float64
	cx, cy        float64
}

// NewProjection fits a box of the given half extents into width x height
// pixels with a small margin.
func NewProjection(bounds geometry.Vector3, width, height int) Projection {
	const margin = 0.95
	w, h := float64(width), float64(height)
	sx, sy := math.Inf(1), math.Inf(1)
	if bounds.X > 0 {
		sx = w / (2 * bounds.X)
	}
	if bounds.Y > 0 {
		sy = h / (2 * bounds.Y)
	}
	scale := math.Min(sx, sy)
	if math.IsInf(scale, 1) {
		scale = 1
	}
	return Projection{Width: w, Height: h, Scale: scale * margin, cx: w / 2, cy: h / 2}
}

// Point returns the screen position of a world position.
func (p Projection) Point(v geometry.Vector3) (x, y float64) {
	return p.cx + v.X*p.Scale, p.cy - v.Y*p.Scale
}

// Triangle returns the tip, right and left corners of the arrow drawn for an
// agent. The arrow points along the heading, or the velocity when the heading
// is degenerate.
func (p Projection) Triangle(a simulation.AgentState, size float64) [3][2]float64 {
	dir := a.Heading
	if dir.X == 0 && dir.Y == 0 {
		dir = a.Velocity
	}
	// screen Y is flipped
	angle := math.Atan2(-dir.Y, dir.X)
	x, y := p.Point(a.Position)
	tip, wing := size*1.2, size
	return [3][2]float64{
		{x + math.Cos(angle)*tip, y + math.Sin(angle)*tip},
		{x + math.Cos(angle+2.5)*wing, y + math.Sin(angle+2.5)*wing},
		{x + math.Cos(angle-2.5)*wing, y + math.Sin(angle-2.5)*wing},
	}
}

// Options tune RenderPNG.
type Options struct {
	Width, Height int
	BoidSize      float64 // pixels, 0 = 5
	DrawWalls     bool
}

// RenderPNG draws frame f top-down and writes it as a PNG image.
func RenderPNG(w io.Writer, f *world.Frame, opts Options) error {
	if f == nil {
		return errors.New("render: nil frame")
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		return errors.New("render: width and height must be positive")
	}
	size := opts.BoidSize
	if size <= 0 {
		size = 5
	}

	dc := gg.NewContext(opts.Width, opts.Height)
	dc.SetColor(Background)
	dc.DrawRectangle(0, 0, float64(opts.Width), float64(opts.Height))
	dc.Fill()

	proj := NewProjection(f.Bounds, opts.Width, opts.Height)
	if opts.DrawWalls {
		x0, y0 := proj.Point(geometry.Vector3{X: -f.Bounds.X, Y: f.Bounds.Y})
		x1, y1 := proj.Point(geometry.Vector3{X: f.Bounds.X, Y: -f.Bounds.Y})
		dc.SetColor(WallColor)
		dc.SetLineWidth(1)
		dc.DrawRectangle(x0, y0, x1-x0, y1-y0)
		dc.Stroke()
	}

	dc.SetColor(BoidColor)
	for _, a := range f.Agents {
		t := proj.Triangle(a, size)
		dc.MoveTo(t[0][0], t[0][1])
		dc.LineTo(t[1][0], t[1][1])
		dc.LineTo(t[2][0], t[2][1])
		dc.ClosePath()
		dc.Fill()
	}
	return dc.EncodePNG(w)
}
