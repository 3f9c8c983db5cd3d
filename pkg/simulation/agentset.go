package simulation

import (
	"math"
	"math/rand/v2"

	"github.com/lao-tseu-is-alive/go-flock-simulation/pkg/behavior"
	"github.com/lao-tseu-is-alive/go-flock-simulation/pkg/geometry"
)

// AgentState is the read-only view of one agent handed to hosts.
type AgentState struct {
	Index    int              `json:"index"`
	Position geometry.Vector3 `json:"position"`
	Velocity geometry.Vector3 `json:"velocity"`
	Heading  geometry.Vector3 `json:"heading"`
}

// AgentSet owns the agents of one run. It keeps two buffers: the front one is
// the snapshot every tick reads, the back one is the write target. They are
// swapped once a tick has fully completed so the snapshot is never aliased
// with the agents being written.
type AgentSet struct {
	front []behavior.Agent
	back  []behavior.Agent
	ticks uint64
}

// NewAgentSet builds a set from a copy of agents.
func NewAgentSet(agents []behavior.Agent) *AgentSet {
	front := make([]behavior.Agent, len(agents))
	copy(front, agents)
	return &AgentSet{
		front: front,
		back:  make([]behavior.Agent, len(agents)),
	}
}

// Initialize scatters count agents inside the world bounds minus the spawn
// margin, each with a random heading and a random speed in [MinSpeed, MaxSpeed].
// The result only depends on cfg, count and seed.
func Initialize(cfg *Config, count int, seed uint64) (*AgentSet, error) {
	if cfg == nil {
		return nil, configErr("config", "is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if count < 0 {
		return nil, configErr("population", "must not be negative, got %d", count)
	}

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	half := cfg.HalfExtents()
	span := geometry.Vector3{
		X: math.Max(half.X-cfg.SpawnMargin, 0),
		Y: math.Max(half.Y-cfg.SpawnMargin, 0),
		Z: math.Max(half.Z-cfg.SpawnMargin, 0),
	}

	agents := make([]behavior.Agent, count)
	for i := range agents {
		pos := geometry.Vector3{
			X: uniform(rng, -span.X, span.X),
			Y: uniform(rng, -span.Y, span.Y),
		}
		var heading geometry.Vector3
		if cfg.Planar() {
			heading = geometry.NewVectorPolar(1, rng.Float64()*2*math.Pi)
		} else {
			pos.Z = uniform(rng, -span.Z, span.Z)
			// uniform on the sphere
			inclination := math.Acos(1 - 2*rng.Float64())
			heading = geometry.NewVectorSpherical(1, rng.Float64()*2*math.Pi, inclination)
		}
		speed := uniform(rng, cfg.MinSpeed, cfg.MaxSpeed)
		agents[i] = behavior.Agent{
			Position: pos,
			Velocity: heading.Mul(speed),
			Heading:  heading,
		}
	}
	return &AgentSet{front: agents, back: make([]behavior.Agent, count)}, nil
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

// Len returns the population size.
func (s *AgentSet) Len() int {
	return len(s.front)
}

// Ticks returns the number of completed ticks.
func (s *AgentSet) Ticks() uint64 {
	return s.ticks
}

// Snapshot returns the agents ordered by index.
func (s *AgentSet) Snapshot() []AgentState {
	out := make([]AgentState, len(s.front))
	for i, a := range s.front {
		out[i] = AgentState{Index: i, Position: a.Position, Velocity: a.Velocity, Heading: a.Heading}
	}
	return out
}

// Agents returns a copy of the current agents.
func (s *AgentSet) Agents() []behavior.Agent {
	out := make([]behavior.Agent, len(s.front))
	copy(out, s.front)
	return out
}

// Clone returns an independent copy of the set.
func (s *AgentSet) Clone() *AgentSet {
	c := NewAgentSet(s.front)
	c.ticks = s.ticks
	return c
}

// commit publishes the back buffer as the new snapshot.
func (s *AgentSet) commit() {
	s.front, s.back = s.back, s.front
	s.ticks++
}
