package behavior

import "github.com/lao-tseu-is-alive/go-flock-simulation/pkg/geometry"

// Neighbor is one entry of a neighbour bucket.
type Neighbor struct {
	Index int
	// Offset points from the neighbour to the querying agent (self - other),
	// projected on the simulation plane when the world is planar.
	Offset   geometry.Vector3
	Distance float64
}

// Neighborhood holds the three per-rule neighbour buckets of one agent.
// It is scratch space: reuse it across queries to avoid allocations.
type Neighborhood struct {
	Separation []Neighbor
	Alignment  []Neighbor
	Cohesion   []Neighbor
}

// NewNeighborhood preallocates buckets for about capacity neighbours.
func NewNeighborhood(capacity int) *Neighborhood {
	return &Neighborhood{
		Separation: make([]Neighbor, 0, capacity),
		Alignment:  make([]Neighbor, 0, capacity),
		Cohesion:   make([]Neighbor, 0, capacity),
	}
}

// Reset empties the buckets but keeps their capacity.
func (n *Neighborhood) Reset() {
	n.Separation = n.Separation[:0]
	n.Alignment = n.Alignment[:0]
	n.Cohesion = n.Cohesion[:0]
}

// Empty reports whether no rule found any neighbour.
func (n *Neighborhood) Empty() bool {
	return len(n.Separation) == 0 && len(n.Alignment) == 0 && len(n.Cohesion) == 0
}

// QueryNeighbors scans every other agent of the snapshot and fills into with
// the neighbours of agent self, one bucket per rule.
// The scan is exhaustive: O(n) per agent, O(n²) per tick.
func QueryNeighbors(self int, snapshot []Agent, s *Settings, into *Neighborhood) {
	into.Reset()
	if self < 0 || self >= len(snapshot) {
		return
	}

	sepR, aliR, cohR := s.Radii()
	// Squared radii keep the Sqrt out of the rejection test
	sepSq, aliSq, cohSq := sepR*sepR, aliR*aliR, cohR*cohR
	maxSq := max(sepSq, aliSq, cohSq)
	planar := s.Planar()
	me := snapshot[self].Position

	for j := range snapshot {
		if j == self {
			continue
		}
		offset := me.Sub(snapshot[j].Position)
		if planar {
			offset = offset.Planar()
		}
		distSq := offset.LenSqr()
		if distSq >= maxSq {
			continue
		}

		n := Neighbor{Index: j, Offset: offset, Distance: offset.Len()}
		if distSq < sepSq {
			into.Separation = append(into.Separation, n)
		}
		if distSq < aliSq {
			into.Alignment = append(into.Alignment, n)
		}
		if distSq < cohSq {
			into.Cohesion = append(into.Cohesion, n)
		}
	}
}
