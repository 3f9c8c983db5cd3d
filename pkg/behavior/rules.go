package behavior

import "github.com/lao-tseu-is-alive/go-flock-simulation/pkg/geometry"

// Contribution is the per-tick output of the rule evaluation for one agent.
// It is a pure function of the snapshot and is discarded after blending.
type Contribution struct {
	Separation geometry.Vector3
	Alignment  geometry.Vector3
	Cohesion   geometry.Vector3

	SeparationCount int
	AlignmentCount  int
	CohesionCount   int
}

// Isolated reports whether no rule found any neighbour.
func (c Contribution) Isolated() bool {
	return c.SeparationCount == 0 && c.AlignmentCount == 0 && c.CohesionCount == 0
}

// Steering returns the sum of the three weighted rule vectors.
func (c Contribution) Steering() geometry.Vector3 {
	return c.Separation.Add(c.Alignment).Add(c.Cohesion)
}

// Evaluate runs the neighbour query and the three rules for agent self.
// It only reads the snapshot, so it is safe to call concurrently for
// different agents as long as each caller owns its scratch Neighborhood.
func Evaluate(self int, snapshot []Agent, s *Settings, scratch *Neighborhood) Contribution {
	QueryNeighbors(self, snapshot, s, scratch)
	return Contribution{
		Separation:      Separation(scratch.Separation, s.SeparationWeight),
		Alignment:       Alignment(scratch.Alignment, snapshot, s.AlignmentWeight),
		Cohesion:        Cohesion(snapshot[self], scratch.Cohesion, s.CohesionWeight),
		SeparationCount: len(scratch.Separation),
		AlignmentCount:  len(scratch.Alignment),
		CohesionCount:   len(scratch.Cohesion),
	}
}

// Separation steers away from close neighbours. Each neighbour pushes along
// the unit vector pointing from it to the agent, divided by the distance, so
// closer neighbours push harder. The pushes are averaged then weighted.
// Coincident neighbours have no direction and push with the zero vector.
func Separation(neighbors []Neighbor, weight float64) geometry.Vector3 {
	if len(neighbors) == 0 {
		return geometry.Vector3{}
	}
	var sum geometry.Vector3
	for _, n := range neighbors {
		if n.Distance < geometry.Epsilon {
			continue
		}
		sum = sum.Add(n.Offset.Normalize().Mul(1 / n.Distance))
	}
	return sum.Mul(weight / float64(len(neighbors)))
}

// Alignment steers toward the mean velocity of the neighbours.
func Alignment(neighbors []Neighbor, snapshot []Agent, weight float64) geometry.Vector3 {
	if len(neighbors) == 0 {
		return geometry.Vector3{}
	}
	var sum geometry.Vector3
	for _, n := range neighbors {
		sum = sum.Add(snapshot[n.Index].Velocity)
	}
	return sum.Mul(weight / float64(len(neighbors)))
}

// Cohesion steers toward the local centre of mass. Only the direction is
// kept: the result has length |weight| whenever the centroid differs from
// the agent position.
func Cohesion(self Agent, neighbors []Neighbor, weight float64) geometry.Vector3 {
	if len(neighbors) == 0 {
		return geometry.Vector3{}
	}
	var centroid geometry.Vector3
	for _, n := range neighbors {
		// self - offset recovers the (projected) neighbour position
		centroid = centroid.Add(self.Position.Sub(n.Offset))
	}
	centroid = centroid.Mul(1 / float64(len(neighbors)))
	return centroid.Sub(self.Position).Normalize().Mul(weight)
}
