package behavior

import (
	"testing"

	"github.com/lao-tseu-is-alive/go-flock-simulation/pkg/geometry"
)

func TestConfine_ReflectClampScenario(t *testing.T) {
	// Agent just past the +X wall moving outward: one tick later it sits on
	// the wall with its X velocity negated.
	s := kernelSettings()
	s.SeparationRadius, s.AlignmentRadius, s.CohesionRadius = 0, 0, 0
	const eps = 0.01
	a := NewAgent(geometry.Vector3{X: s.MapWidth + eps}, geometry.Vector3{X: 2})

	Integrate(&a, Contribution{}, s, 0.1)
	Confine(&a, s)

	if a.Position.X != s.MapWidth {
		t.Errorf("position.X = %v; want %v", a.Position.X, s.MapWidth)
	}
	if a.Velocity.X != -2 {
		t.Errorf("velocity.X = %v; want -2", a.Velocity.X)
	}
}

func TestReflectClamp(t *testing.T) {
	half := geometry.Vector3{X: 10, Y: 5, Z: 2}
	tests := []struct {
		name             string
		pos, vel         geometry.Vector3
		wantPos, wantVel geometry.Vector3
	}{
		{
			"Inside untouched",
			geometry.Vector3{X: 1, Y: 1, Z: 1}, geometry.Vector3{X: 1, Y: -1, Z: 1},
			geometry.Vector3{X: 1, Y: 1, Z: 1}, geometry.Vector3{X: 1, Y: -1, Z: 1},
		},
		{
			"Below -Y bounces up",
			geometry.Vector3{Y: -7}, geometry.Vector3{Y: -3},
			geometry.Vector3{Y: -5}, geometry.Vector3{Y: 3},
		},
		{
			"Corner on two axes",
			geometry.Vector3{X: 12, Z: -3}, geometry.Vector3{X: 1, Z: -1},
			geometry.Vector3{X: 10, Z: -2}, geometry.Vector3{X: -1, Z: 1},
		},
		{
			"Already heading back keeps direction",
			geometry.Vector3{X: 11}, geometry.Vector3{X: -2},
			geometry.Vector3{X: 10}, geometry.Vector3{X: -2},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := Agent{Position: tt.pos, Velocity: tt.vel}
			ReflectClamp(&a, half, geometry.Axes[:])
			if !a.Position.Eq(tt.wantPos) || !a.Velocity.Eq(tt.wantVel) {
				t.Errorf("got pos %v vel %v; want pos %v vel %v", a.Position, a.Velocity, tt.wantPos, tt.wantVel)
			}
		})
	}
}

func TestDestinyInvert(t *testing.T) {
	half := geometry.Vector3{X: 10, Y: 10, Z: 10}

	a := Agent{Position: geometry.Vector3{X: 12, Y: -11}, Velocity: geometry.Vector3{X: 3, Y: -1}}
	DestinyInvert(&a, half, geometry.Axes[:])
	if !a.Position.Eq(geometry.Vector3{X: 12, Y: -11}) {
		t.Errorf("destiny invert must not clamp, got %v", a.Position)
	}
	if !a.Velocity.Eq(geometry.Vector3{X: -3, Y: 1}) {
		t.Errorf("velocity = %v; want (-3, 1, 0)", a.Velocity)
	}

	// already turned back: a second flip would push it out again
	DestinyInvert(&a, half, geometry.Axes[:])
	if !a.Velocity.Eq(geometry.Vector3{X: -3, Y: 1}) {
		t.Errorf("velocity flipped twice: %v", a.Velocity)
	}
}

func TestConfine_PlanarPinsZ(t *testing.T) {
	s := kernelSettings()
	s.MapDepth = 0
	a := Agent{Position: geometry.Vector3{X: 1, Z: 40}, Velocity: geometry.Vector3{X: 1, Z: 2}}
	Confine(&a, s)
	if a.Position.Z != 0 || a.Velocity.Z != 0 {
		t.Errorf("planar confine left Z: pos %v vel %v", a.Position, a.Velocity)
	}
}

func TestPolicyText(t *testing.T) {
	var b BoundaryPolicy
	if err := b.UnmarshalText([]byte("Destiny_Invert")); err != nil || b != BoundaryDestinyInvert {
		t.Errorf("UnmarshalText = %v, %v", b, err)
	}
	if err := b.UnmarshalText([]byte("bounce")); err == nil {
		t.Errorf("expected an error for an unknown policy")
	}
	txt, err := RadiusTiered.MarshalText()
	if err != nil || string(txt) != "tiered" {
		t.Errorf("MarshalText = %q, %v", txt, err)
	}
	if got := IsolationPolicy(9).String(); got != "unknown(9)" {
		t.Errorf("String() = %q", got)
	}
}
