package render

import (
	"bytes"
	"image/png"
	"math"
	"testing"

	"github.com/lao-tseu-is-alive/go-flock-simulation/internal/world"
	"github.com/lao-tseu-is-alive/go-flock-simulation/pkg/geometry"
	"github.com/lao-tseu-is-alive/go-flock-simulation/pkg/simulation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProjectionCentersAndFlipsY(t *testing.T) {
	p := NewProjection(geometry.Vector3{X: 10, Y: 10}, 200, 100)

	x, y := p.Point(geometry.Vector3{})
	assert.Equal(t, 100.0, x)
	assert.Equal(t, 50.0, y)

	// the box is limited by the height: 100px for 20 units
	assert.InDelta(t, 5*0.95, p.Scale, 1e-12)

	_, yUp := p.Point(geometry.Vector3{Y: 1})
	assert.Less(t, yUp, y, "world +Y is screen up")
}

func TestProjectionDegenerateBounds(t *testing.T) {
	p := NewProjection(geometry.Vector3{}, 100, 100)
	assert.False(t, math.IsInf(p.Scale, 0))
	assert.Greater(t, p.Scale, 0.0)
}

func TestTriangleFollowsHeading(t *testing.T) {
	p := NewProjection(geometry.Vector3{X: 10, Y: 10}, 100, 100)
	a := simulation.AgentState{Heading: geometry.Vector3{X: 1}}
	tri := p.Triangle(a, 5)

	cx, cy := p.Point(a.Position)
	assert.InDelta(t, cx+6, tri[0][0], 1e-9)
	assert.InDelta(t, cy, tri[0][1], 1e-9)
	// wings sit behind the tip
	assert.Less(t, tri[1][0], cx)
	assert.Less(t, tri[2][0], cx)
}

func TestTriangleFallsBackToVelocity(t *testing.T) {
	p := NewProjection(geometry.Vector3{X: 10, Y: 10}, 100, 100)
	a := simulation.AgentState{Velocity: geometry.Vector3{Y: 2}}
	tri := p.Triangle(a, 5)

	_, cy := p.Point(a.Position)
	assert.Less(t, tri[0][1], cy, "tip points up on screen")
}

func TestRenderPNG(t *testing.T) {
	f := &world.Frame{
		Tick:   3,
		Bounds: geometry.Vector3{X: 10, Y: 10},
		Agents: []simulation.AgentState{
			{Position: geometry.Vector3{}, Heading: geometry.Vector3{X: 1}},
			{Index: 1, Position: geometry.Vector3{X: 5, Y: -5}, Heading: geometry.Vector3{Y: 1}},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, RenderPNG(&buf, f, Options{Width: 64, Height: 48, DrawWalls: true}))

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, 64, img.Bounds().Dx())
	assert.Equal(t, 48, img.Bounds().Dy())

	// the corner stays background, the centre is covered by the first boid
	r, g, b, _ := img.At(0, 0).RGBA()
	assert.Equal(t, uint32(Background.R)*0x101, r)
	assert.Equal(t, uint32(Background.G)*0x101, g)
	assert.Equal(t, uint32(Background.B)*0x101, b)
	_, _, cb, _ := img.At(32, 24).RGBA()
	assert.Greater(t, cb, uint32(Background.B)*0x101)
}

func TestRenderPNGErrors(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, RenderPNG(&buf, nil, Options{Width: 10, Height: 10}))
	assert.Error(t, RenderPNG(&buf, &world.Frame{}, Options{}))
}
