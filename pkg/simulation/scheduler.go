package simulation

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/lao-tseu-is-alive/go-flock-simulation/internal/enum"
	"github.com/lao-tseu-is-alive/go-flock-simulation/pkg/behavior"
	"go.uber.org/zap"
)

// ExecutionMode selects how a tick is scheduled.
type ExecutionMode int

const (
	// Sequential evaluates and applies agents one by one in index order.
	Sequential ExecutionMode = iota
	// Batch evaluates every agent on a BatchExecutor, waits for all of them,
	// then applies the contributions.
	Batch
)

var executionModeNames = map[ExecutionMode]string{
	Sequential: "sequential",
	Batch:      "batch",
}

func (m ExecutionMode) String() string { return enum.String(executionModeNames, m) }

func (m ExecutionMode) MarshalText() ([]byte, error) { return enum.Marshal(executionModeNames, m) }

func (m *ExecutionMode) UnmarshalText(b []byte) error {
	return enum.Unmarshal(executionModeNames, m, b, "execution mode")
}

// TickStats describes one completed tick.
type TickStats struct {
	Tick      uint64
	Mode      ExecutionMode
	Agents    int
	Isolated  int
	MeanSpeed float64
	Evaluate  time.Duration
	Apply     time.Duration
	Total     time.Duration
}

// TickObserver receives the statistics of every completed tick.
type TickObserver interface {
	ObserveTick(TickStats)
}

// TickObserverFunc adapts a function to TickObserver.
type TickObserverFunc func(TickStats)

func (f TickObserverFunc) ObserveTick(s TickStats) { f(s) }

// Scheduler advances an AgentSet one tick at a time.
// Every tick is the same two-phase pipeline: evaluate reads the snapshot only
// and produces one Contribution per agent, apply writes each agent's own slot
// of the back buffer. The buffers are swapped only when both phases finished,
// so an abandoned tick leaves the set untouched.
// A Scheduler is not safe for concurrent Step calls.
type Scheduler struct {
	executor BatchExecutor
	observer TickObserver
	logger   *zap.Logger

	contributions []behavior.Contribution
	scratch       sync.Pool
}

type Option func(*Scheduler)

// WithExecutor sets the executor used by the Batch mode.
func WithExecutor(e BatchExecutor) Option {
	return func(s *Scheduler) { s.executor = e }
}

func WithObserver(o TickObserver) Option {
	return func(s *Scheduler) { s.observer = o }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// NewScheduler returns a scheduler. Without WithExecutor the Batch mode uses a
// PoolExecutor sized to GOMAXPROCS.
func NewScheduler(opts ...Option) *Scheduler {
	s := &Scheduler{}
	for _, opt := range opts {
		opt(s)
	}
	if s.executor == nil {
		s.executor = NewPoolExecutor(0, 0)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	s.scratch.New = func() any { return behavior.NewNeighborhood(32) }
	return s
}

// Step advances every agent of set by dt using a fresh snapshot.
// An invalid cfg, dt or mode is rejected before anything runs. An empty set
// makes Step a no-op. If ctx is done before the tick completes the tick is
// abandoned and ctx.Err() is returned.
func (s *Scheduler) Step(ctx context.Context, set *AgentSet, cfg *Config, dt float64, mode ExecutionMode) error {
	if err := checkStep(cfg, dt, mode); err != nil {
		return err
	}
	if set == nil || set.Len() == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// the tick works on its own copy of the rules
	settings := cfg.Settings
	snapshot, out := set.front, set.back

	start := time.Now()
	stats := TickStats{Mode: mode, Agents: len(snapshot)}
	var err error
	switch mode {
	case Batch:
		err = s.stepBatch(ctx, snapshot, out, &settings, dt, &stats)
	default:
		err = s.stepSequential(ctx, snapshot, out, &settings, dt, &stats)
	}
	if err != nil {
		return err
	}

	var speed float64
	for i := range out {
		speed += out[i].Speed()
	}
	stats.MeanSpeed = speed / float64(len(out))

	set.commit()
	stats.Tick = set.Ticks()
	stats.Total = time.Since(start)
	s.report(stats)
	return nil
}

func (s *Scheduler) stepSequential(ctx context.Context, snapshot, out []behavior.Agent, settings *behavior.Settings, dt float64, stats *TickStats) error {
	nb := s.scratch.Get().(*behavior.Neighborhood)
	defer s.scratch.Put(nb)

	// evaluate and apply interleave here, the whole loop counts as evaluate
	t0 := time.Now()
	for i := range snapshot {
		if i%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		c := behavior.Evaluate(i, snapshot, settings, nb)
		if c.Isolated() {
			stats.Isolated++
		}
		out[i] = apply(snapshot[i], c, settings, dt)
	}
	stats.Evaluate = time.Since(t0)
	return ctx.Err()
}

const cancelCheckInterval = 256

func (s *Scheduler) stepBatch(ctx context.Context, snapshot, out []behavior.Agent, settings *behavior.Settings, dt float64, stats *TickStats) error {
	n := len(snapshot)
	if cap(s.contributions) < n {
		s.contributions = make([]behavior.Contribution, n)
	}
	contributions := s.contributions[:n]

	// Phase 1: evaluate, snapshot reads only.
	t0 := time.Now()
	err := s.executor.Dispatch(ctx, n, func(_, lo, hi int) {
		nb := s.scratch.Get().(*behavior.Neighborhood)
		for i := lo; i < hi; i++ {
			contributions[i] = behavior.Evaluate(i, snapshot, settings, nb)
		}
		s.scratch.Put(nb)
	})
	if err != nil {
		return fmt.Errorf("evaluate phase: %w", err)
	}
	stats.Evaluate = time.Since(t0)

	// Phase 2: apply, each agent writes its own slot.
	t1 := time.Now()
	err = s.executor.Dispatch(ctx, n, func(_, lo, hi int) {
		for i := lo; i < hi; i++ {
			out[i] = apply(snapshot[i], contributions[i], settings, dt)
		}
	})
	if err != nil {
		return fmt.Errorf("apply phase: %w", err)
	}
	stats.Apply = time.Since(t1)

	for i := range contributions {
		if contributions[i].Isolated() {
			stats.Isolated++
		}
	}
	return nil
}

// apply integrates one contribution into a copy of the agent and keeps it inside the world.
func apply(a behavior.Agent, c behavior.Contribution, settings *behavior.Settings, dt float64) behavior.Agent {
	behavior.Integrate(&a, c, settings, dt)
	behavior.Confine(&a, settings)
	return a
}

func (s *Scheduler) report(stats TickStats) {
	if s.observer != nil {
		s.observer.ObserveTick(stats)
	}
	if ce := s.logger.Check(zap.DebugLevel, "tick"); ce != nil {
		ce.Write(
			zap.Uint64("tick", stats.Tick),
			zap.Stringer("mode", stats.Mode),
			zap.Int("agents", stats.Agents),
			zap.Int("isolated", stats.Isolated),
			zap.Float64("meanSpeed", stats.MeanSpeed),
			zap.Duration("evaluate", stats.Evaluate),
			zap.Duration("apply", stats.Apply),
			zap.Duration("total", stats.Total),
		)
	}
}

// Close releases the executor.
func (s *Scheduler) Close(ctx context.Context) error {
	return s.executor.Close(ctx)
}

func checkStep(cfg *Config, dt float64, mode ExecutionMode) error {
	if cfg == nil {
		return configErr("config", "is nil")
	}
	if !(dt > 0) || math.IsInf(dt, 0) {
		return configErr("dt", "must be a positive finite number, got %v", dt)
	}
	if _, ok := executionModeNames[mode]; !ok {
		return configErr("executionMode", "has %s", mode)
	}
	return cfg.Validate()
}

// Step advances set by one tick without a context.
// Batch mode runs on a pool sized to GOMAXPROCS.
func Step(set *AgentSet, cfg *Config, dt float64, mode ExecutionMode) error {
	return NewScheduler().Step(context.Background(), set, cfg, dt, mode)
}
