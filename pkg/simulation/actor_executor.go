package simulation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tochemey/goakt/v3/actor"
	"github.com/tochemey/goakt/v3/goaktpb"
	golog "github.com/tochemey/goakt/v3/log"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// DefaultLaneTimeout bounds how long one workgroup may take on an actor lane.
const DefaultLaneTimeout = 5 * time.Second

var errStaleBatch = errors.New("workgroup of a finished batch")

// batchJob is the dispatch currently served by the lanes. Kernels started for
// it are counted in running so the dispatch can outwait them.
type batchJob struct {
	epoch     uint32
	n         int
	groupSize int
	kernel    KernelFunc
	running   sync.WaitGroup
}

// workgroupMsg packs the batch epoch in the high word and the group index in
// the low word.
func workgroupMsg(epoch uint32, group int) *wrapperspb.UInt64Value {
	return wrapperspb.UInt64(uint64(epoch)<<32 | uint64(uint32(group)))
}

func parseWorkgroupMsg(v uint64) (epoch uint32, group int) {
	return uint32(v >> 32), int(uint32(v))
}

// ActorExecutor runs workgroups on a pool of goakt actors, one mailbox per
// lane. Each workgroup is an Ask carrying its index; the lane replies once the
// kernel returned, which gives the dispatch its barrier.
type ActorExecutor struct {
	system    actor.ActorSystem
	lanes     []*actor.PID
	groupSize int
	timeout   time.Duration
	logger    *zap.Logger

	mu    sync.Mutex
	job   *batchJob
	epoch uint32
}

// NewActorExecutor starts a private actor system with workers lanes.
func NewActorExecutor(ctx context.Context, workers, groupSize int, logger *zap.Logger) (*ActorExecutor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	name := "flock-" + uuid.NewString()
	system, err := actor.NewActorSystem(name,
		actor.WithLogger(golog.DiscardLogger),
		actor.WithActorInitMaxRetries(3))
	if err != nil {
		return nil, fmt.Errorf("failed to create actor system: %w", err)
	}
	if err := system.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start actor system: %w", err)
	}

	e := &ActorExecutor{
		system:    system,
		groupSize: groupSizeOrDefault(groupSize),
		timeout:   DefaultLaneTimeout,
		logger:    logger,
	}
	for i := range workersOrDefault(workers) {
		pid, err := system.Spawn(ctx, fmt.Sprintf("lane-%03d", i), &lane{exec: e})
		if err != nil {
			_ = system.Stop(ctx)
			return nil, fmt.Errorf("failed to spawn lane %d: %w", i, err)
		}
		e.lanes = append(e.lanes, pid)
	}
	logger.Info("actor executor started",
		zap.String("system", name),
		zap.Int("lanes", len(e.lanes)),
		zap.Int("workgroup", e.groupSize))
	return e, nil
}

// Dispatch sends workgroup g to lane g % lanes and waits for every reply.
// Dispatches must not overlap: the scheduler drives one tick at a time.
//
// When an Ask fails or ctx is done, Dispatch still returns only once every
// kernel a lane already started has returned. Workgroups still queued in a
// mailbox are dropped by the lane.
func (e *ActorExecutor) Dispatch(ctx context.Context, n int, kernel KernelFunc) error {
	job := e.begin(n, kernel)
	defer e.finish(job)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(len(e.lanes))
	for group := range workgroups(n, e.groupSize) {
		if gctx.Err() != nil {
			break
		}
		pid := e.lanes[group%len(e.lanes)]
		g.Go(func() error {
			if _, err := actor.Ask(gctx, pid, workgroupMsg(job.epoch, group), e.timeout); err != nil {
				return fmt.Errorf("workgroup %d on %s: %w", group, pid.Name(), err)
			}
			return nil
		})
	}
	err := g.Wait()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

func (e *ActorExecutor) begin(n int, kernel KernelFunc) *batchJob {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.epoch++
	e.job = &batchJob{epoch: e.epoch, n: n, groupSize: e.groupSize, kernel: kernel}
	return e.job
}

// finish retires job and waits for its running kernels.
func (e *ActorExecutor) finish(job *batchJob) {
	e.mu.Lock()
	if e.job == job {
		e.job = nil
	}
	e.mu.Unlock()
	job.running.Wait()
}

// acquire returns the job of epoch with one more running kernel, or nil when
// that batch is over.
func (e *ActorExecutor) acquire(epoch uint32) *batchJob {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.job == nil || e.job.epoch != epoch {
		return nil
	}
	e.job.running.Add(1)
	return e.job
}

// Close stops the actor system.
func (e *ActorExecutor) Close(ctx context.Context) error {
	return e.system.Stop(ctx)
}

// Lanes returns the number of worker actors.
func (e *ActorExecutor) Lanes() int {
	return len(e.lanes)
}

// lane is one worker actor of the ActorExecutor.
type lane struct {
	exec *ActorExecutor
}

var _ actor.Actor = (*lane)(nil)

func (l *lane) PreStart(*actor.Context) error {
	return nil
}

func (l *lane) Receive(ctx *actor.ReceiveContext) {
	switch msg := ctx.Message().(type) {
	case *goaktpb.PostStart:
		l.exec.logger.Debug("lane started", zap.String("lane", ctx.Self().Name()))
	case *wrapperspb.UInt64Value:
		epoch, group := parseWorkgroupMsg(msg.GetValue())
		job := l.exec.acquire(epoch)
		if job == nil {
			ctx.Err(errStaleBatch)
			return
		}
		l.run(job, group)
		ctx.Response(&emptypb.Empty{})
	default:
		ctx.Unhandled()
	}
}

func (l *lane) run(job *batchJob, group int) {
	defer job.running.Done()
	lo, hi := groupBounds(group, job.n, job.groupSize)
	job.kernel(group, lo, hi)
}

func (l *lane) PostStop(*actor.Context) error {
	return nil
}
