package viewer

import (
	"context"
	"errors"
	"testing"

	"github.com/lao-tseu-is-alive/go-flock-simulation/internal/world"
	"github.com/lao-tseu-is-alive/go-flock-simulation/pkg/behavior"
	"github.com/lao-tseu-is-alive/go-flock-simulation/pkg/simulation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubWorld struct {
	cfg     simulation.Config
	reject  error
	updates int
	ticks   uint64
}

func (s *stubWorld) Advance(context.Context) (*world.Frame, error) {
	s.ticks++
	return &world.Frame{Tick: s.ticks}, nil
}

func (s *stubWorld) Latest() *world.Frame { return &world.Frame{Tick: s.ticks} }

func (s *stubWorld) Config() simulation.Config { return s.cfg }

func (s *stubWorld) UpdateConfig(_ context.Context, next *simulation.Config) error {
	if s.reject != nil {
		return s.reject
	}
	if err := next.Validate(); err != nil {
		return err
	}
	s.updates++
	s.cfg = *next
	return nil
}

func TestControlsStartOnConfig(t *testing.T) {
	w := &stubWorld{cfg: *simulation.DefaultConfig()}
	g := New(context.Background(), w, Options{})

	assert.Equal(t, w.cfg.SeparationWeight, g.controls.separationWeight.Value)
	assert.Equal(t, w.cfg.CohesionRadius, g.controls.cohesionRadius.Value)
	assert.Equal(t, w.cfg.MaxSpeed, g.controls.maxSpeed.Value)
	assert.False(t, g.controls.destinyInvert.Value)
	assert.False(t, g.panel.Changed(), "building the panel is not a change")
}

func TestPushSettings(t *testing.T) {
	w := &stubWorld{cfg: *simulation.DefaultConfig()}
	g := New(context.Background(), w, Options{})

	g.controls.cohesionWeight.Set(0.8)
	g.controls.destinyInvert.Toggle()
	require.True(t, g.panel.Changed())
	g.pushSettings()

	assert.Equal(t, 1, w.updates)
	assert.Equal(t, 0.8, w.cfg.CohesionWeight)
	assert.Equal(t, behavior.BoundaryDestinyInvert, w.cfg.BoundaryPolicy)
	assert.NoError(t, g.lastErr)
}

func TestMinSpeedNeverExceedsMaxSpeed(t *testing.T) {
	w := &stubWorld{cfg: *simulation.DefaultConfig()}
	g := New(context.Background(), w, Options{})

	g.controls.maxSpeed.Set(1)
	g.controls.minSpeed.Set(5)
	g.pushSettings()

	require.NoError(t, g.lastErr)
	assert.Equal(t, 1.0, w.cfg.MinSpeed)
	assert.Equal(t, 1.0, w.cfg.MaxSpeed)
}

func TestRejectedSettingsResyncControls(t *testing.T) {
	w := &stubWorld{cfg: *simulation.DefaultConfig()}
	g := New(context.Background(), w, Options{})
	w.reject = errors.New("busy")

	g.controls.alignmentWeight.Set(0.9)
	g.pushSettings()

	assert.Error(t, g.lastErr)
	assert.Equal(t, w.cfg.AlignmentWeight, g.controls.alignmentWeight.Value)
	assert.False(t, g.panel.Changed())
}

func TestReset(t *testing.T) {
	w := &stubWorld{cfg: *simulation.DefaultConfig()}
	g := New(context.Background(), w, Options{})

	g.controls.separationWeight.Set(0.7)
	g.pushSettings()
	require.Equal(t, 0.7, w.cfg.SeparationWeight)

	g.reset()
	assert.Equal(t, simulation.DefaultConfig().SeparationWeight, w.cfg.SeparationWeight)
	assert.Equal(t, w.cfg.SeparationWeight, g.controls.separationWeight.Value)
}

func TestLayoutIsFixed(t *testing.T) {
	g := New(context.Background(), &stubWorld{cfg: *simulation.DefaultConfig()}, Options{Width: 640, Height: 480})
	w, h := g.Layout(1920, 1080)
	assert.Equal(t, 640, w)
	assert.Equal(t, 480, h)
}
