package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"firmforge/internal/board"
	"firmforge/internal/command"
	"firmforge/internal/spec"
)

// DefaultConcurrency caps how many node loops run at once for boards with
// a local emulator.
const DefaultConcurrency = 4

// SchedulerConfig shapes a whole run.
type SchedulerConfig struct {
	MaxIterations int
	SimTimeout    time.Duration
	Concurrency   int
	// WorkRoot is where per-node working directories are created; empty
	// means the system temp dir.
	WorkRoot string
}

// Scheduler fans the iteration loop out across a system's nodes. Nodes are
// independent: one node exhausting its budget never stops the others.
type Scheduler struct {
	boards *board.Registry
	gen    Generator
	comp   Compiler
	runner Runner
	bus    MessageBus
	cfg    SchedulerConfig
	logger *zap.Logger
}

// NewScheduler assembles a run scheduler. A nil bus gets NopBus.
func NewScheduler(boards *board.Registry, gen Generator, comp Compiler, runner Runner, bus MessageBus, cfg SchedulerConfig, logger *zap.Logger) *Scheduler {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if bus == nil {
		bus = NopBus{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{boards: boards, gen: gen, comp: comp, runner: runner, bus: bus, cfg: cfg, logger: logger}
}

// Run executes every node of the request and aggregates their results in
// request order. Remote-simulation boards share a quota-limited external
// service, so their nodes are forced to run one at a time.
func (s *Scheduler) Run(ctx context.Context, sys spec.SystemSpec, progress ProgressFunc) (*RunResult, error) {
	if err := sys.Validate(); err != nil {
		return nil, fmt.Errorf("invalid system spec: %w", err)
	}
	b, err := s.boards.Get(sys.BoardID)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	started := time.Now()
	log := s.logger.With(zap.String("run_id", runID), zap.String("board", b.ID))
	log.Info("run started", zap.Int("nodes", len(sys.Nodes)))

	limit := int64(s.cfg.Concurrency)
	if b.RemoteSim || s.runner.Remote() {
		limit = 1
	}
	sem := semaphore.NewWeighted(limit)

	// Progress callers run on node goroutines; serialize delivery so the
	// consumer never sees interleaved writes. Per-node ordering follows
	// from each node emitting from a single goroutine.
	var progressMu sync.Mutex
	orderedProgress := func(ev ProgressEvent) {
		if progress == nil {
			return
		}
		progressMu.Lock()
		defer progressMu.Unlock()
		progress(ev)
	}

	results := make([]NodeResult, len(sys.Nodes))
	g, gctx := errgroup.WithContext(ctx)

	for i, node := range sys.Nodes {
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				results[i] = NodeResult{NodeID: node.NodeID, State: StateCancelled, Err: err.Error()}
				return nil
			}
			defer sem.Release(1)

			res, err := s.runNode(gctx, runID, node, b, orderedProgress)
			if err != nil {
				return fmt.Errorf("node %s: %w", node.NodeID, err)
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &RunResult{
		RunID:    runID,
		BoardID:  b.ID,
		Nodes:    results,
		Duration: time.Since(started),
	}
	log.Info("run finished",
		zap.Bool("all_succeeded", result.AllSucceeded()),
		zap.Duration("duration", result.Duration))
	return result, nil
}

// runNode gives one node an isolated workdir and drives its loop. An error
// return means local infrastructure is broken (unwritable workdir,
// unstartable tools) and the whole run should stop; every domain outcome
// lands in the NodeResult.
func (s *Scheduler) runNode(ctx context.Context, runID string, node spec.NodeSpec, b board.Config, progress ProgressFunc) (NodeResult, error) {
	_ = s.bus.Publish(ctx, Notice{RunID: runID, NodeID: node.NodeID, Event: "node_started"})

	wd, err := command.NewWorkdir(s.cfg.WorkRoot, runID+"_"+node.NodeID)
	if err != nil {
		return NodeResult{}, err
	}
	defer wd.Release()

	ctrl := NewController(s.gen, s.comp, s.runner, ControllerConfig{
		MaxIterations: s.cfg.MaxIterations,
		SimTimeout:    s.cfg.SimTimeout,
	}, s.logger)

	result, err := ctrl.Run(ctx, node, b, wd.Path, progress)
	if err != nil {
		return NodeResult{}, err
	}
	return s.finish(ctx, runID, result), nil
}

func (s *Scheduler) finish(ctx context.Context, runID string, r NodeResult) NodeResult {
	_ = s.bus.Publish(ctx, Notice{RunID: runID, NodeID: r.NodeID, State: r.State, Event: "node_finished"})
	return r
}
