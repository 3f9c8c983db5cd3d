// Package viewer is the interactive ebiten window of a flock: it drives the
// world one tick per frame and lets the user tune the kernel live.
package viewer

import (
	"context"
	"fmt"
	"image/color"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/vector"
	"github.com/lao-tseu-is-alive/go-flock-simulation/internal/render"
	"github.com/lao-tseu-is-alive/go-flock-simulation/internal/world"
	"github.com/lao-tseu-is-alive/go-flock-simulation/pkg/behavior"
	"github.com/lao-tseu-is-alive/go-flock-simulation/pkg/geometry"
	"github.com/lao-tseu-is-alive/go-flock-simulation/pkg/simulation"
	"github.com/lao-tseu-is-alive/go-flock-simulation/pkg/ui"
	"go.uber.org/zap"
)

// maxBatch keeps the vertex count of one DrawTriangles call under the uint16 index limit.
const maxBatch = 65535 / 3

// World is what the viewer needs from world.World.
type World interface {
	Advance(ctx context.Context) (*world.Frame, error)
	Latest() *world.Frame
	Config() simulation.Config
	UpdateConfig(ctx context.Context, next *simulation.Config) error
}

type Options struct {
	Width, Height int
	BoidSize      float64
	Logger        *zap.Logger
}

type controls struct {
	separationWeight *ui.Slider
	alignmentWeight  *ui.Slider
	cohesionWeight   *ui.Slider
	separationRadius *ui.Slider
	alignmentRadius  *ui.Slider
	cohesionRadius   *ui.Slider
	minSpeed         *ui.Slider
	maxSpeed         *ui.Slider
	rotationSpeed    *ui.Slider
	destinyInvert    *ui.Checkbox
	showWalls        *ui.Checkbox
}

type Game struct {
	ctx    context.Context
	world  World
	logger *zap.Logger
	opts   Options

	panel    *ui.UIPanel
	controls controls
	initial  simulation.Config
	paused   bool
	lastErr  error

	whiteImage *ebiten.Image
	vertices   []ebiten.Vertex
	indices    []uint16

	updateAvg float64 // rolling average in ms
	drawAvg   float64
}

// New builds the window state. It does not open the window, see Run.
func New(ctx context.Context, w World, opts Options) *Game {
	if opts.Width <= 0 {
		opts.Width = 1024
	}
	if opts.Height <= 0 {
		opts.Height = 768
	}
	if opts.BoidSize <= 0 {
		opts.BoidSize = 5
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	cfg := w.Config()
	g := &Game{
		ctx:     ctx,
		world:   w,
		logger:  opts.Logger,
		opts:    opts,
		initial: cfg,
	}
	g.buildPanel(&cfg)
	return g
}

func (g *Game) buildPanel(cfg *simulation.Config) {
	maxRadius := max(cfg.MapWidth, cfg.MapHeight, 1)
	p := ui.NewUIPanel(10, 10, 260, float64(g.opts.Height)-20)

	p.AddSection("Weights")
	g.controls.separationWeight = p.AddSlider("Separation", 0, 1, cfg.SeparationWeight)
	g.controls.alignmentWeight = p.AddSlider("Alignment", 0, 1, cfg.AlignmentWeight)
	g.controls.cohesionWeight = p.AddSlider("Cohesion", 0, 1, cfg.CohesionWeight)
	p.EndSection()

	p.AddSection("Radii")
	g.controls.separationRadius = p.AddSlider("Separation Radius", 0.1, maxRadius, cfg.SeparationRadius)
	g.controls.alignmentRadius = p.AddSlider("Alignment Radius", 0.1, maxRadius, cfg.AlignmentRadius)
	g.controls.cohesionRadius = p.AddSlider("Cohesion Radius", 0.1, maxRadius, cfg.CohesionRadius)
	p.EndSection()

	p.AddSection("Motion")
	g.controls.minSpeed = p.AddSlider("Min Speed", 0, 10, cfg.MinSpeed)
	g.controls.maxSpeed = p.AddSlider("Max Speed", 0.1, 10, cfg.MaxSpeed)
	g.controls.rotationSpeed = p.AddSlider("Rotation Speed", 0, 20, cfg.RotationSpeed)
	g.controls.destinyInvert = p.AddCheckbox("Destiny Invert Walls", cfg.BoundaryPolicy == behavior.BoundaryDestinyInvert)
	p.EndSection()

	p.AddSection("View")
	g.controls.showWalls = p.AddCheckbox("Show Walls", true)
	p.AddButton("Pause / Resume", func() { g.paused = !g.paused })
	p.AddButton("Reset Settings", g.reset)
	p.EndSection()

	g.panel = p
}

// apply copies the control values onto cfg.
func (c *controls) apply(cfg *simulation.Config) {
	cfg.SeparationWeight = c.separationWeight.Value
	cfg.AlignmentWeight = c.alignmentWeight.Value
	cfg.CohesionWeight = c.cohesionWeight.Value
	cfg.SeparationRadius = c.separationRadius.Value
	cfg.AlignmentRadius = c.alignmentRadius.Value
	cfg.CohesionRadius = c.cohesionRadius.Value
	cfg.MinSpeed = min(c.minSpeed.Value, c.maxSpeed.Value)
	cfg.MaxSpeed = c.maxSpeed.Value
	cfg.RotationSpeed = c.rotationSpeed.Value
	cfg.BoundaryPolicy = behavior.BoundaryReflectClamp
	if c.destinyInvert.Value {
		cfg.BoundaryPolicy = behavior.BoundaryDestinyInvert
	}
}

// sync moves the controls to cfg without reporting a change.
func (c *controls) sync(cfg *simulation.Config) {
	for s, v := range map[*ui.Slider]float64{
		c.separationWeight: cfg.SeparationWeight,
		c.alignmentWeight:  cfg.AlignmentWeight,
		c.cohesionWeight:   cfg.CohesionWeight,
		c.separationRadius: cfg.SeparationRadius,
		c.alignmentRadius:  cfg.AlignmentRadius,
		c.cohesionRadius:   cfg.CohesionRadius,
		c.minSpeed:         cfg.MinSpeed,
		c.maxSpeed:         cfg.MaxSpeed,
		c.rotationSpeed:    cfg.RotationSpeed,
	} {
		s.Set(v)
		s.Changed()
	}
	c.destinyInvert.Value = cfg.BoundaryPolicy == behavior.BoundaryDestinyInvert
	c.destinyInvert.Changed()
}

// pushSettings sends the panel values to the world. A rejected change puts
// the controls back on the active configuration.
func (g *Game) pushSettings() {
	cfg := g.world.Config()
	g.controls.apply(&cfg)
	if err := g.world.UpdateConfig(g.ctx, &cfg); err != nil {
		g.lastErr = err
		g.logger.Warn("viewer settings rejected", zap.Error(err))
		cur := g.world.Config()
		g.controls.sync(&cur)
		return
	}
	g.lastErr = nil
}

func (g *Game) reset() {
	cfg := g.initial
	if err := g.world.UpdateConfig(g.ctx, &cfg); err != nil {
		g.logger.Warn("viewer reset rejected", zap.Error(err))
		return
	}
	g.controls.sync(&cfg)
}

func (g *Game) Update() error {
	start := time.Now()
	defer func() {
		g.updateAvg = g.updateAvg*0.95 + float64(time.Since(start).Microseconds())/1000.0*0.05
	}()

	if err := g.ctx.Err(); err != nil {
		return ebiten.Termination
	}

	g.panel.Update()
	if g.panel.Changed() {
		g.pushSettings()
	}
	if ebiten.IsKeyPressed(ebiten.KeyEscape) {
		return ebiten.Termination
	}
	if g.paused {
		return nil
	}
	_, err := g.world.Advance(g.ctx)
	if err != nil && g.ctx.Err() != nil {
		return ebiten.Termination
	}
	return err
}

func (g *Game) Draw(screen *ebiten.Image) {
	start := time.Now()
	defer func() {
		g.drawAvg = g.drawAvg*0.95 + float64(time.Since(start).Microseconds())/1000.0*0.05
	}()

	screen.Fill(render.Background)
	f := g.world.Latest()
	if f != nil {
		proj := render.NewProjection(f.Bounds, g.opts.Width, g.opts.Height)
		if g.controls.showWalls.Value {
			drawWalls(screen, proj, f.Bounds)
		}
		g.drawFlock(screen, proj, f.Agents)
	}

	g.panel.Draw(screen)

	msg := fmt.Sprintf("FPS: %.2f\nTPS: %.2f\n\nUpdate: %.2fms\nDraw:   %.2fms",
		ebiten.ActualFPS(), ebiten.ActualTPS(), g.updateAvg, g.drawAvg)
	if f != nil {
		msg += fmt.Sprintf("\n\nTick:   %d\nAgents: %d", f.Tick, len(f.Agents))
	}
	if g.paused {
		msg += "\n\nPAUSED"
	}
	if g.lastErr != nil {
		msg += "\n\n" + g.lastErr.Error()
	}
	ebitenutil.DebugPrintAt(screen, msg, g.opts.Width-160, 10)
}

func drawWalls(screen *ebiten.Image, proj render.Projection, bounds geometry.Vector3) {
	x0, y0 := proj.Point(geometry.Vector3{X: -bounds.X, Y: bounds.Y})
	x1, y1 := proj.Point(geometry.Vector3{X: bounds.X, Y: -bounds.Y})
	vector.StrokeRect(screen, float32(x0), float32(y0), float32(x1-x0), float32(y1-y0), 1, render.WallColor, true)
}

// drawFlock batches every agent triangle into as few DrawTriangles calls as
// the index type allows.
func (g *Game) drawFlock(screen *ebiten.Image, proj render.Projection, agents []simulation.AgentState) {
	if g.whiteImage == nil {
		g.whiteImage = ebiten.NewImage(3, 3)
		g.whiteImage.Fill(color.White)
	}
	r, gr, b, a := colorFloats(render.BoidColor)

	for lo := 0; lo < len(agents); lo += maxBatch {
		hi := min(lo+maxBatch, len(agents))
		g.vertices = g.vertices[:0]
		g.indices = g.indices[:0]
		for i, agent := range agents[lo:hi] {
			for _, p := range proj.Triangle(agent, g.opts.BoidSize) {
				g.vertices = append(g.vertices, ebiten.Vertex{
					DstX: float32(p[0]), DstY: float32(p[1]),
					SrcX: 1, SrcY: 1,
					ColorR: r, ColorG: gr, ColorB: b, ColorA: a,
				})
			}
			base := uint16(i * 3)
			g.indices = append(g.indices, base, base+1, base+2)
		}
		screen.DrawTriangles(g.vertices, g.indices, g.whiteImage, &ebiten.DrawTrianglesOptions{})
	}
}

func colorFloats(c color.RGBA) (r, g, b, a float32) {
	return float32(c.R) / 255, float32(c.G) / 255, float32(c.B) / 255, float32(c.A) / 255
}

func (g *Game) Layout(int, int) (int, int) { return g.opts.Width, g.opts.Height }

// Run opens the window and blocks until it is closed or ctx is done. One
// world tick runs per ebiten update, so the tick rate sets the TPS.
func Run(ctx context.Context, w World, opts Options) error {
	g := New(ctx, w, opts)
	cfg := w.Config()

	ebiten.SetWindowSize(g.opts.Width, g.opts.Height)
	ebiten.SetWindowTitle(fmt.Sprintf("Flock: %d boids", cfg.Population))
	ebiten.SetTPS(max(int(cfg.TickRate), 1))
	return ebiten.RunGame(g)
}
