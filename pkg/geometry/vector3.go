package geometry

import (
	"errors"
	"fmt"
	"math"
)

// Epsilon is the tolerance used for float64 comparisons and for deciding
// that a vector is too short to carry a direction.
const (
	Epsilon = 1e-9
)

// Axis identifies one component of a Vector3.
type Axis int

const (
	AxisX Axis = iota
	AxisY
	AxisZ
)

// Axes lists the three axes in order, handy for per-axis loops.
var Axes = [3]Axis{AxisX, AxisY, AxisZ}

func (a Axis) String() string {
	switch a {
	case AxisX:
		return "x"
	case AxisY:
		return "y"
	case AxisZ:
		return "z"
	default:
		return "?"
	}
}

// ErrDivideByZero is returned by Div when the scalar is zero.
var ErrDivideByZero = errors.New("vector cannot be divided by zero")

// Vector3 is a 3D vector or point in cartesian space.
// Fields are public because they are plain data: v := Vector3{X: 1, Y: 2}.
// Planar simulations keep Z at zero.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Zero is the zero vector.
var Zero = Vector3{}

// NewVector creates a new Vector3.
func NewVector(x, y, z float64) Vector3 {
	return Vector3{X: x, Y: y, Z: z}
}

// NewVectorPolar creates a vector in the XY plane from polar coordinates.
// theta is in radians.
func NewVectorPolar(radius, theta float64) Vector3 {
	x := radius * math.Cos(theta)
	y := radius * math.Sin(theta)

	// Snap floating point noise near zero
	if math.Abs(x) < Epsilon {
		x = 0
	}
	if math.Abs(y) < Epsilon {
		y = 0
	}
	return Vector3{X: x, Y: y}
}

// NewVectorSpherical creates a vector from a radius, an azimuth in the XY
// plane and an inclination measured from the +Z axis (radians).
func NewVectorSpherical(radius, azimuth, inclination float64) Vector3 {
	s := math.Sin(inclination)
	return Vector3{
		X: radius * s * math.Cos(azimuth),
		Y: radius * s * math.Sin(azimuth),
		Z: radius * math.Cos(inclination),
	}
}

// String implements fmt.Stringer.
func (v Vector3) String() string {
	return fmt.Sprintf("(%.2f, %.2f, %.2f)", v.X, v.Y, v.Z)
}

// ---------------------------------------------------------------------
// Arithmetic Operations
// Value receivers returning new values: Vector3 is small and immutable.
// ---------------------------------------------------------------------

// Add adds two vectors and returns the result.
func (v Vector3) Add(other Vector3) Vector3 {
	return Vector3{v.X + other.X, v.Y + other.Y, v.Z + other.Z}
}

// Sub subtracts the other vector from the current vector.
func (v Vector3) Sub(other Vector3) Vector3 {
	return Vector3{v.X - other.X, v.Y - other.Y, v.Z - other.Z}
}

// Mul scales the vector by a scalar value.
func (v Vector3) Mul(scalar float64) Vector3 {
	return Vector3{v.X * scalar, v.Y * scalar, v.Z * scalar}
}

// Div scales the vector by 1/scalar.
// Dividing by zero returns an infinite vector together with ErrDivideByZero.
func (v Vector3) Div(scalar float64) (Vector3, error) {
	if scalar == 0 {
		return Vector3{math.Inf(1), math.Inf(1), math.Inf(1)}, ErrDivideByZero
	}
	return Vector3{v.X / scalar, v.Y / scalar, v.Z / scalar}, nil
}

// Neg returns the opposite vector.
func (v Vector3) Neg() Vector3 {
	return Vector3{-v.X, -v.Y, -v.Z}
}

// ---------------------------------------------------------------------
// Products
// ---------------------------------------------------------------------

// Dot calculates the dot product of two vectors.
func (v Vector3) Dot(other Vector3) float64 {
	return v.X*other.X + v.Y*other.Y + v.Z*other.Z
}

// Cross calculates the cross product v × other.
func (v Vector3) Cross(other Vector3) Vector3 {
	return Vector3{
		X: v.Y*other.Z - v.Z*other.Y,
		Y: v.Z*other.X - v.X*other.Z,
		Z: v.X*other.Y - v.Y*other.X,
	}
}

// ---------------------------------------------------------------------
// Magnitude and Normalization
// ---------------------------------------------------------------------

// LenSqr calculates the squared magnitude of the vector.
// Cheaper than Len, use it for comparisons.
func (v Vector3) LenSqr() float64 {
	return v.X*v.X + v.Y*v.Y + v.Z*v.Z
}

// Len calculates the magnitude (length) of the vector.
func (v Vector3) Len() float64 {
	return math.Sqrt(v.LenSqr())
}

// Normalize returns a unit vector in the same direction.
// Returns the zero vector if the length is effectively zero, never NaN.
func (v Vector3) Normalize() Vector3 {
	l := v.Len()
	if l < Epsilon {
		return Vector3{}
	}
	return v.Mul(1 / l)
}

// IsZero reports whether the vector is too short to carry a direction.
func (v Vector3) IsZero() bool {
	return v.LenSqr() < Epsilon*Epsilon
}

// IsFinite reports whether every component is a finite number.
func (v Vector3) IsFinite() bool {
	return !math.IsNaN(v.X) && !math.IsInf(v.X, 0) &&
		!math.IsNaN(v.Y) && !math.IsInf(v.Y, 0) &&
		!math.IsNaN(v.Z) && !math.IsInf(v.Z, 0)
}

// ---------------------------------------------------------------------
// Components
// ---------------------------------------------------------------------

// Component returns the value of v on the given axis.
func (v Vector3) Component(a Axis) float64 {
	switch a {
	case AxisX:
		return v.X
	case AxisY:
		return v.Y
	default:
		return v.Z
	}
}

// WithComponent returns a copy of v with the given axis set to value.
func (v Vector3) WithComponent(a Axis, value float64) Vector3 {
	switch a {
	case AxisX:
		v.X = value
	case AxisY:
		v.Y = value
	default:
		v.Z = value
	}
	return v
}

// Planar returns the projection of v on the XY plane.
func (v Vector3) Planar() Vector3 {
	return Vector3{X: v.X, Y: v.Y}
}

// ---------------------------------------------------------------------
// Geometric Utilities
// ---------------------------------------------------------------------

// DistanceTo calculates the Euclidean distance to another point.
func (v Vector3) DistanceTo(other Vector3) float64 {
	return v.Sub(other).Len()
}

// DistanceSquaredTo calculates the squared Euclidean distance to another point.
func (v Vector3) DistanceSquaredTo(other Vector3) float64 {
	return v.Sub(other).LenSqr()
}

// Heading returns the angle (radians) of the XY projection relative to the X axis.
// Range: [-Pi, Pi]
func (v Vector3) Heading() float64 {
	return math.Atan2(v.Y, v.X)
}

// Lerp linearly interpolates between v and target, t in [0, 1].
func (v Vector3) Lerp(target Vector3, t float64) Vector3 {
	return v.Add(target.Sub(v).Mul(t))
}

// Project projects v onto the vector on.
// Projecting onto a zero vector yields the zero vector.
func (v Vector3) Project(on Vector3) Vector3 {
	d := on.LenSqr()
	if d < Epsilon*Epsilon {
		return Vector3{}
	}
	return on.Mul(v.Dot(on) / d)
}

// ---------------------------------------------------------------------
// Comparison
// ---------------------------------------------------------------------

// Eq checks whether two vectors are equal within Epsilon.
func (v Vector3) Eq(other Vector3) bool {
	return v.EqTol(other, Epsilon)
}

// EqTol checks whether two vectors are equal within tol on every axis.
func (v Vector3) EqTol(other Vector3, tol float64) bool {
	return math.Abs(v.X-other.X) <= tol &&
		math.Abs(v.Y-other.Y) <= tol &&
		math.Abs(v.Z-other.Z) <= tol
}
