// Package world drives a flock simulation tick after tick and publishes frames
// to hosts (HTTP, websocket, viewer, renderer).
package world

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/lao-tseu-is-alive/go-flock-simulation/pkg/geometry"
	"github.com/lao-tseu-is-alive/go-flock-simulation/pkg/simulation"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrPopulationFixed is returned when a reload tries to change the population
// of a running simulation.
var ErrPopulationFixed = errors.New("population is fixed for the run")

// Frame is the published state of the flock after one tick.
type Frame struct {
	RunID  string                  `json:"runId"`
	Tick   uint64                  `json:"tick"`
	Bounds geometry.Vector3        `json:"bounds"`
	Agents []simulation.AgentState `json:"agents"`
}

// World is the single cooperative tick driver of one run. Ticks never overlap;
// configuration changes land between two ticks.
type World struct {
	id     string
	logger *zap.Logger

	mu       sync.Mutex // serialises ticks and executor swaps
	set      *simulation.AgentSet
	sched    *simulation.Scheduler
	observer simulation.TickObserver
	cfg      atomic.Pointer[simulation.Config]
	limiter  *rate.Limiter
	onReload func(simulation.Config)

	latest atomic.Pointer[Frame]
	subsMu sync.Mutex
	subs   map[chan *Frame]struct{}

	// tick rate logging
	ticksSinceLog int
	lastLogTime   time.Time
}

type Option func(*World)

func WithLogger(l *zap.Logger) Option {
	return func(w *World) { w.logger = l }
}

// WithObserver forwards the statistics of every tick to o.
func WithObserver(o simulation.TickObserver) Option {
	return func(w *World) { w.observer = o }
}

// WithReloadHook calls fn after every applied configuration change.
func WithReloadHook(fn func(simulation.Config)) Option {
	return func(w *World) { w.onReload = fn }
}

// New scatters cfg.Population agents with cfg.Seed and prepares the executor.
func New(ctx context.Context, cfg *simulation.Config, opts ...Option) (*World, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil config", simulation.ErrInvalidConfig)
	}
	w := &World{
		id:          uuid.NewString(),
		subs:        make(map[chan *Frame]struct{}),
		lastLogTime: time.Now(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = zap.NewNop()
	}
	w.logger = w.logger.With(zap.String("run", w.id))

	set, err := simulation.Initialize(cfg, cfg.Population, cfg.Seed)
	if err != nil {
		return nil, err
	}
	sched, err := w.newScheduler(ctx, cfg)
	if err != nil {
		return nil, err
	}

	own := *cfg
	w.set = set
	w.sched = sched
	w.cfg.Store(&own)
	w.limiter = rate.NewLimiter(rate.Limit(cfg.TickRate), 1)
	w.publish(w.buildFrame(&own))

	w.logger.Info("flock ready",
		zap.Int("agents", set.Len()),
		zap.Uint64("seed", cfg.Seed),
		zap.Stringer("mode", cfg.ExecutionMode),
		zap.Stringer("executor", cfg.Executor),
		zap.Float64("tickRate", cfg.TickRate))
	return w, nil
}

func (w *World) newScheduler(ctx context.Context, cfg *simulation.Config) (*simulation.Scheduler, error) {
	exec, err := simulation.NewExecutor(ctx, cfg, w.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create executor: %w", err)
	}
	opts := []simulation.Option{
		simulation.WithExecutor(exec),
		simulation.WithLogger(w.logger),
	}
	if w.observer != nil {
		opts = append(opts, simulation.WithObserver(w.observer))
	}
	return simulation.NewScheduler(opts...), nil
}

// ID returns the run identifier.
func (w *World) ID() string {
	return w.id
}

// Config returns a copy of the active configuration.
func (w *World) Config() simulation.Config {
	return *w.cfg.Load()
}

// UpdateConfig replaces the configuration wholesale. It takes effect on the
// next tick. The population cannot change during a run; changing the executor
// settings rebuilds the executor.
func (w *World) UpdateConfig(ctx context.Context, next *simulation.Config) error {
	return w.ModifyConfig(ctx, func(simulation.Config) (*simulation.Config, error) {
		return next, nil
	})
}

// ModifyConfig applies the configuration fn derives from the active one.
// Reading the base and applying the result happen under the tick lock, so
// concurrent changes compose instead of overwriting each other. An error
// from fn is returned as is and changes nothing.
func (w *World) ModifyConfig(ctx context.Context, fn func(cur simulation.Config) (*simulation.Config, error)) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	cur := w.cfg.Load()
	next, err := fn(*cur)
	if err != nil {
		return err
	}
	if next == nil {
		return fmt.Errorf("%w: no configuration", simulation.ErrInvalidConfig)
	}
	if err := next.Validate(); err != nil {
		return err
	}
	if next.Population != cur.Population {
		return fmt.Errorf("%w: have %d, got %d", ErrPopulationFixed, cur.Population, next.Population)
	}
	if next.Executor != cur.Executor || next.Workers != cur.Workers || next.WorkgroupSize != cur.WorkgroupSize {
		sched, err := w.newScheduler(ctx, next)
		if err != nil {
			return err
		}
		if err := w.sched.Close(ctx); err != nil {
			w.logger.Warn("closing previous executor", zap.Error(err))
		}
		w.sched = sched
	}

	own := *next
	w.cfg.Store(&own)
	w.limiter.SetLimit(rate.Limit(own.TickRate))
	w.logger.Info("configuration reloaded",
		zap.Stringer("mode", own.ExecutionMode),
		zap.Stringer("boundary", own.BoundaryPolicy),
		zap.Stringer("radii", own.RadiusPolicy))
	if w.onReload != nil {
		w.onReload(own)
	}
	return nil
}

// Advance runs exactly one tick with dt = 1/TickRate and publishes its frame.
func (w *World) Advance(ctx context.Context) (*Frame, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	cfg := w.cfg.Load()
	if err := w.sched.Step(ctx, w.set, cfg, 1/cfg.TickRate, cfg.ExecutionMode); err != nil {
		return nil, err
	}
	frame := w.buildFrame(cfg)
	w.publish(frame)
	w.logTickRate()
	return frame, nil
}

// Run paces ticks at the configured tick rate until ctx is done or, when
// ticks > 0, that many ticks have run. A cancelled context is a normal stop.
func (w *World) Run(ctx context.Context, ticks int) error {
	for n := 0; ticks <= 0 || n < ticks; n++ {
		if err := w.limiter.Wait(ctx); err != nil {
			// ctx is done or the next tick would land past its deadline
			return nil
		}
		if _, err := w.Advance(ctx); err != nil {
			return stopErr(ctx, err)
		}
	}
	return nil
}

func stopErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// Latest returns the last published frame.
func (w *World) Latest() *Frame {
	return w.latest.Load()
}

// Subscribe returns a channel receiving every published frame. Slow readers
// skip frames rather than slow the simulation down. Call cancel to stop.
func (w *World) Subscribe(buffer int) (<-chan *Frame, func()) {
	ch := make(chan *Frame, max(buffer, 1))
	w.subsMu.Lock()
	w.subs[ch] = struct{}{}
	w.subsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			w.subsMu.Lock()
			if _, ok := w.subs[ch]; ok {
				delete(w.subs, ch)
				close(ch)
			}
			w.subsMu.Unlock()
		})
	}
}

// Subscribers returns the number of active subscriptions.
func (w *World) Subscribers() int {
	w.subsMu.Lock()
	defer w.subsMu.Unlock()
	return len(w.subs)
}

// Close releases the executor and ends every subscription.
func (w *World) Close(ctx context.Context) error {
	w.subsMu.Lock()
	for ch := range w.subs {
		delete(w.subs, ch)
		close(ch)
	}
	w.subsMu.Unlock()

	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sched.Close(ctx)
}

func (w *World) buildFrame(cfg *simulation.Config) *Frame {
	return &Frame{
		RunID:  w.id,
		Tick:   w.set.Ticks(),
		Bounds: cfg.HalfExtents(),
		Agents: w.set.Snapshot(),
	}
}

func (w *World) publish(f *Frame) {
	w.latest.Store(f)
	w.subsMu.Lock()
	defer w.subsMu.Unlock()
	for ch := range w.subs {
		select {
		case ch <- f:
		default:
			// subscriber busy, skip frame
		}
	}
}

func (w *World) logTickRate() {
	w.ticksSinceLog++
	if time.Since(w.lastLogTime) >= time.Second {
		w.logger.Sugar().Infof("📊 TICK RATE: %d/sec | Agents: %d | Tick: %d",
			w.ticksSinceLog, w.set.Len(), w.set.Ticks())
		w.ticksSinceLog = 0
		w.lastLogTime = time.Now()
	}
}
