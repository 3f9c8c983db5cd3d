package behavior

import (
	"math"

	"github.com/lao-tseu-is-alive/go-flock-simulation/pkg/geometry"
)

// Confine keeps the agent inside the world box using the configured
// boundary policy. Planar worlds also pin Z to zero.
func Confine(a *Agent, s *Settings) {
	half := s.HalfExtents()
	switch s.BoundaryPolicy {
	case BoundaryDestinyInvert:
		DestinyInvert(a, half, s.ActiveAxes())
	default:
		ReflectClamp(a, half, s.ActiveAxes())
	}
	if s.Planar() {
		a.Position.Z = 0
		a.Velocity.Z = 0
	}
}

// ReflectClamp clamps the position to [-half, half] on every given axis and
// bounces the velocity so it points back into the box. Agents can never end
// a tick outside the box.
func ReflectClamp(a *Agent, half geometry.Vector3, axes []geometry.Axis) {
	for _, axis := range axes {
		h := half.Component(axis)
		p := a.Position.Component(axis)
		v := a.Velocity.Component(axis)
		switch {
		case p > h:
			a.Position = a.Position.WithComponent(axis, h)
			a.Velocity = a.Velocity.WithComponent(axis, -math.Abs(v))
		case p < -h:
			a.Position = a.Position.WithComponent(axis, -h)
			a.Velocity = a.Velocity.WithComponent(axis, math.Abs(v))
		}
	}
}

// DestinyInvert flips the outward velocity component on every axis where
// the agent is out of bounds. The position is left alone: the agent drifts
// back in over the following ticks.
func DestinyInvert(a *Agent, half geometry.Vector3, axes []geometry.Axis) {
	for _, axis := range axes {
		h := half.Component(axis)
		p := a.Position.Component(axis)
		v := a.Velocity.Component(axis)
		if (p > h && v > 0) || (p < -h && v < 0) {
			a.Velocity = a.Velocity.WithComponent(axis, -v)
		}
	}
}
