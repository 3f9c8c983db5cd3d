package behavior

import (
	"github.com/lao-tseu-is-alive/go-flock-simulation/internal/enum"
	"github.com/lao-tseu-is-alive/go-flock-simulation/pkg/geometry"
)

// RadiusPolicy selects how neighbour membership is decided for each rule.
type RadiusPolicy int

const (
	// RadiusIndependent compares the separation, alignment and cohesion radii independently.
	RadiusIndependent RadiusPolicy = iota
	// RadiusTiered uses VisionRadius for alignment and cohesion and half of it for separation.
	RadiusTiered
)

var radiusPolicyNames = map[RadiusPolicy]string{
	RadiusIndependent: "independent",
	RadiusTiered:      "tiered",
}

func (p RadiusPolicy) String() string { return enum.String(radiusPolicyNames, p) }

func (p RadiusPolicy) MarshalText() ([]byte, error) { return enum.Marshal(radiusPolicyNames, p) }

func (p *RadiusPolicy) UnmarshalText(b []byte) error {
	return enum.Unmarshal(radiusPolicyNames, p, b, "radius policy")
}

// BoundaryPolicy selects what happens when an agent leaves the world box.
type BoundaryPolicy int

const (
	// BoundaryReflectClamp clamps the position on the wall and bounces the velocity.
	BoundaryReflectClamp BoundaryPolicy = iota
	// BoundaryDestinyInvert only flips the outward velocity component and lets the
	// next ticks steer the agent back, without clamping the position.
	BoundaryDestinyInvert
)

var boundaryPolicyNames = map[BoundaryPolicy]string{
	BoundaryReflectClamp:  "reflect_clamp",
	BoundaryDestinyInvert: "destiny_invert",
}

func (p BoundaryPolicy) String() string { return enum.String(boundaryPolicyNames, p) }

func (p BoundaryPolicy) MarshalText() ([]byte, error) { return enum.Marshal(boundaryPolicyNames, p) }

func (p *BoundaryPolicy) UnmarshalText(b []byte) error {
	return enum.Unmarshal(boundaryPolicyNames, p, b, "boundary policy")
}

// IsolationPolicy selects the velocity used when an agent has no neighbour for any rule.
type IsolationPolicy int

const (
	// IsolationKeepVelocity keeps the current velocity (the contributions are all zero).
	IsolationKeepVelocity IsolationPolicy = iota
	// IsolationForward steers along the current heading at the current speed.
	IsolationForward
)

var isolationPolicyNames = map[IsolationPolicy]string{
	IsolationKeepVelocity: "keep_velocity",
	IsolationForward:      "forward",
}

func (p IsolationPolicy) String() string { return enum.String(isolationPolicyNames, p) }

func (p IsolationPolicy) MarshalText() ([]byte, error) { return enum.Marshal(isolationPolicyNames, p) }

func (p *IsolationPolicy) UnmarshalText(b []byte) error {
	return enum.Unmarshal(isolationPolicyNames, p, b, "isolation policy")
}

// Settings holds the tuning constants of the flocking kernel.
// A tick works on its own copy, so changing rules at runtime only takes
// effect on the next tick.
type Settings struct {
	// World half-extents. MapDepth == 0 keeps the flock in the XY plane.
	MapWidth  float64 `json:"mapWidth"`
	MapHeight float64 `json:"mapHeight"`
	MapDepth  float64 `json:"mapDepth"`

	RadiusPolicy     RadiusPolicy `json:"radiusPolicy"`
	SeparationRadius float64      `json:"separationRadius"`
	AlignmentRadius  float64      `json:"alignmentRadius"`
	CohesionRadius   float64      `json:"cohesionRadius"`
	VisionRadius     float64      `json:"visionRadius"` // tiered policy only

	SeparationWeight float64 `json:"separationWeight"`
	AlignmentWeight  float64 `json:"alignmentWeight"`
	CohesionWeight   float64 `json:"cohesionWeight"`

	MinSpeed float64 `json:"minSpeed"`
	MaxSpeed float64 `json:"maxSpeed"`
	// RotationSpeed is the heading turn rate per second; 0 snaps the heading.
	RotationSpeed float64 `json:"rotationSpeed"`

	BoundaryPolicy  BoundaryPolicy  `json:"boundaryPolicy"`
	IsolationPolicy IsolationPolicy `json:"isolationPolicy"`
}

// Planar reports whether the simulation runs in the XY plane only.
func (s *Settings) Planar() bool {
	return s.MapDepth <= 0
}

// HalfExtents returns the world half-extents as a vector.
func (s *Settings) HalfExtents() geometry.Vector3 {
	h := geometry.Vector3{X: s.MapWidth, Y: s.MapHeight}
	if !s.Planar() {
		h.Z = s.MapDepth
	}
	return h
}

// ActiveAxes returns the axes the flock moves along.
func (s *Settings) ActiveAxes() []geometry.Axis {
	if s.Planar() {
		return geometry.Axes[:2]
	}
	return geometry.Axes[:]
}

// Radii returns the effective separation, alignment and cohesion radii for
// the active radius policy.
func (s *Settings) Radii() (separation, alignment, cohesion float64) {
	if s.RadiusPolicy == RadiusTiered {
		return s.VisionRadius / 2, s.VisionRadius, s.VisionRadius
	}
	return s.SeparationRadius, s.AlignmentRadius, s.CohesionRadius
}
