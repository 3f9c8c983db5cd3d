package behavior

import "github.com/lao-tseu-is-alive/go-flock-simulation/pkg/geometry"

// Agent is the state of a single boid in the flock.
// Boids is an artificial life program, developed by Craig Reynolds in 1986,
// which simulates the flocking behaviour of birds, and related group motion.
// His paper on this topic was published in 1987 in the proceedings of the ACM SIGGRAPH
// conference. The name "boid" corresponds to a shortened version of "bird-oid object",
// which refers to a bird-like object. https://en.wikipedia.org/wiki/Boids
//
// An Agent is plain data: its identity is its index in the flock, and it is
// only ever written by the tick that owns it.
type Agent struct {
	Position geometry.Vector3 `json:"position"`
	Velocity geometry.Vector3 `json:"velocity"`
	// Heading is the unit forward direction, smoothed toward Velocity at the
	// configured turn rate. It never affects position.
	Heading geometry.Vector3 `json:"heading"`
}

// NewAgent creates an agent at pos moving with vel.
// The heading starts aligned with the velocity, or +X when vel is zero.
func NewAgent(pos, vel geometry.Vector3) Agent {
	a := Agent{Position: pos, Velocity: vel}
	a.Heading = a.forward()
	return a
}

// Speed returns the magnitude of the agent velocity.
func (a Agent) Speed() float64 {
	return a.Velocity.Len()
}

// forward returns a usable unit forward direction, falling back from the
// heading to the velocity and finally to +X.
func (a Agent) forward() geometry.Vector3 {
	if h := a.Heading.Normalize(); !h.IsZero() {
		return h
	}
	if v := a.Velocity.Normalize(); !v.IsZero() {
		return v
	}
	return geometry.Vector3{X: 1}
}
