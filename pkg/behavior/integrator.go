package behavior

import (
	"math"

	"github.com/lao-tseu-is-alive/go-flock-simulation/pkg/geometry"
)

// Integrate blends the rule contributions into the agent velocity, clamps
// the speed to [MinSpeed, MaxSpeed], advances the position by velocity*dt
// and smooths the heading toward the new direction of travel.
// dt is supplied by the caller and is never read from a clock.
func Integrate(a *Agent, c Contribution, s *Settings, dt float64) {
	forward := a.forward()

	var desired geometry.Vector3
	if c.Isolated() && s.IsolationPolicy == IsolationForward {
		// no net turn: keep going where we face
		desired = forward.Mul(a.Velocity.Len())
	} else {
		desired = a.Velocity.Add(c.Steering())
	}
	if s.Planar() {
		desired = desired.Planar()
	}

	dir := desired.Normalize()
	if dir.IsZero() {
		// degenerate blend, fall back to the previous heading
		dir = forward
	}
	speed := clamp(desired.Len(), s.MinSpeed, s.MaxSpeed)
	a.Velocity = dir.Mul(speed)
	a.Position = a.Position.Add(a.Velocity.Mul(dt))
	a.Heading = smoothHeading(forward, dir, s.RotationSpeed, dt)
}

// smoothHeading turns from toward target with an exponential approach at
// rate per second. A non positive rate snaps to the target.
func smoothHeading(from, target geometry.Vector3, rate, dt float64) geometry.Vector3 {
	if rate <= 0 {
		return target
	}
	alpha := 1 - math.Exp(-rate*dt)
	h := from.Lerp(target, alpha).Normalize()
	if h.IsZero() {
		// exactly opposite directions cancel out halfway
		return target
	}
	return h
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}
