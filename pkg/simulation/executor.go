package simulation

import (
	"context"
	"fmt"
	"runtime"

	"github.com/lao-tseu-is-alive/go-flock-simulation/internal/enum"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultWorkgroupSize is the number of agents per workgroup when the
// configuration leaves it at zero.
const DefaultWorkgroupSize = 64

// KernelFunc processes the agents [lo, hi) of one workgroup.
// Kernels never fail: numeric edge cases are recovered inside the kernel.
type KernelFunc func(group, lo, hi int)

// BatchExecutor runs a kernel over n agents split in fixed-size workgroups,
// in the manner of a compute dispatch. Dispatch returns only once every
// workgroup has finished (or the context is done).
type BatchExecutor interface {
	Dispatch(ctx context.Context, n int, kernel KernelFunc) error
	Close(ctx context.Context) error
}

// ExecutorKind names a BatchExecutor implementation.
type ExecutorKind int

const (
	ExecutorPool ExecutorKind = iota
	ExecutorActor
	ExecutorInline
)

var executorNames = map[ExecutorKind]string{
	ExecutorPool:   "pool",
	ExecutorActor:  "actor",
	ExecutorInline: "inline",
}

func (k ExecutorKind) String() string { return enum.String(executorNames, k) }

func (k ExecutorKind) MarshalText() ([]byte, error) { return enum.Marshal(executorNames, k) }

func (k *ExecutorKind) UnmarshalText(b []byte) error {
	return enum.Unmarshal(executorNames, k, b, "executor")
}

// NewExecutor builds the batch executor selected by cfg.
// The caller owns it and must Close it.
func NewExecutor(ctx context.Context, cfg *Config, logger *zap.Logger) (BatchExecutor, error) {
	switch cfg.Executor {
	case ExecutorInline:
		return NewInlineExecutor(cfg.WorkgroupSize), nil
	case ExecutorPool:
		return NewPoolExecutor(cfg.Workers, cfg.WorkgroupSize), nil
	case ExecutorActor:
		return NewActorExecutor(ctx, cfg.Workers, cfg.WorkgroupSize, logger)
	default:
		return nil, configErr("executor", "has %s", cfg.Executor)
	}
}

func groupSizeOrDefault(size int) int {
	if size <= 0 {
		return DefaultWorkgroupSize
	}
	return size
}

func workersOrDefault(workers int) int {
	if workers <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return workers
}

// workgroups returns the number of groups needed to cover n agents.
func workgroups(n, size int) int {
	return (n + size - 1) / size
}

func groupBounds(group, n, size int) (lo, hi int) {
	lo = group * size
	return lo, min(lo+size, n)
}

// InlineExecutor runs every workgroup on the calling goroutine.
type InlineExecutor struct {
	groupSize int
}

func NewInlineExecutor(groupSize int) *InlineExecutor {
	return &InlineExecutor{groupSize: groupSizeOrDefault(groupSize)}
}

func (e *InlineExecutor) Dispatch(ctx context.Context, n int, kernel KernelFunc) error {
	for g := range workgroups(n, e.groupSize) {
		if err := ctx.Err(); err != nil {
			return err
		}
		lo, hi := groupBounds(g, n, e.groupSize)
		kernel(g, lo, hi)
	}
	return ctx.Err()
}

func (e *InlineExecutor) Close(context.Context) error { return nil }

// PoolExecutor spreads workgroups over a bounded set of goroutines.
type PoolExecutor struct {
	workers   int
	groupSize int
}

func NewPoolExecutor(workers, groupSize int) *PoolExecutor {
	return &PoolExecutor{
		workers:   workersOrDefault(workers),
		groupSize: groupSizeOrDefault(groupSize),
	}
}

func (e *PoolExecutor) Dispatch(ctx context.Context, n int, kernel KernelFunc) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for group := range workgroups(n, e.groupSize) {
		if gctx.Err() != nil {
			break
		}
		lo, hi := groupBounds(group, n, e.groupSize)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			kernel(group, lo, hi)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (e *PoolExecutor) Close(context.Context) error { return nil }

func (e *PoolExecutor) String() string {
	return fmt.Sprintf("pool(workers=%d, workgroup=%d)", e.workers, e.groupSize)
}
