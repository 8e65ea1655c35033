package strategy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mcpgate/mcpgate/internal/connection"
	"github.com/mcpgate/mcpgate/internal/log"
	"github.com/mcpgate/mcpgate/internal/registry"
	"github.com/mcpgate/mcpgate/internal/routing"
	"github.com/mcpgate/mcpgate/internal/task"
)

// ErrFallbackExhausted reports that every server in a fallback chain failed.
var ErrFallbackExhausted = errors.New("all servers in fallback chain failed")

// maxConcurrentPerServer normalizes in-flight execution counts into the
// registry's [0,1] load fraction.
const maxConcurrentPerServer = 10

// Performance is per-execution timing.
type Performance struct {
	Duration time.Duration `json:"duration"`
}

// Result is the unified outcome of one executed routing decision.
type Result struct {
	Success     bool                       `json:"success"`
	Data        map[string]json.RawMessage `json:"data"`
	Error       string                     `json:"error,omitempty"`
	Performance Performance                `json:"performance"`
}

// Coordinator carries out routing decisions: it runs the chosen strategy,
// merges partial results, feeds telemetry back into the registry, and falls
// back once over the decision's fallback chain on top-level failure.
type Coordinator struct {
	registry   *registry.Registry
	supervisor *connection.Supervisor
	tasks      task.Service
	kinds      map[string]task.ServerKind // serverID -> payload mapping kind
	logger     *slog.Logger

	loadMu   sync.Mutex
	inflight map[string]int
}

func NewCoordinator(reg *registry.Registry, sup *connection.Supervisor, tasks task.Service, kinds map[string]task.ServerKind) *Coordinator {
	return &Coordinator{
		registry:   reg,
		supervisor: sup,
		tasks:      tasks,
		kinds:      kinds,
		logger:     log.WithComponent("strategy"),
		inflight:   make(map[string]int),
	}
}

// Execute runs one routing decision to completion. It always returns a
// result with an explicit success flag; it never panics or hangs past the
// decision's timeout.
func (c *Coordinator) Execute(ctx context.Context, decision routing.Decision, op routing.OperationContext) Result {
	ctx, cancel := context.WithTimeout(ctx, decision.Timeout)
	defer cancel()

	c.adjustLoad(decision.TargetServers, 1)
	defer c.adjustLoad(decision.TargetServers, -1)

	result := c.run(ctx, decision.Strategy, decision.TargetServers, op)

	if !result.Success && len(decision.FallbackServers) > 0 {
		c.logger.Warn("primary execution failed, retrying over fallback chain",
			"operation", op.Operation,
			"strategy", string(decision.Strategy),
			"fallbacks", decision.FallbackServers,
			"error", result.Error,
		)
		fallback := c.executePrimaryFallback(ctx, decision.FallbackServers, op)
		if fallback.Success {
			return fallback
		}
	}

	return result
}

func (c *Coordinator) run(ctx context.Context, strat routing.Strategy, targets []string, op routing.OperationContext) Result {
	switch strat {
	case routing.StrategyParallel:
		return c.executeParallel(ctx, targets, op)
	case routing.StrategyPrimaryFallback:
		return c.executePrimaryFallback(ctx, targets, op)
	case routing.StrategyConsensus:
		return c.executeConsensus(ctx, targets, op)
	case routing.StrategySequential:
		return c.executeSequential(ctx, targets, op)
	default:
		return c.executeSequential(ctx, targets, op)
	}
}

type serverOutcome struct {
	serverID string
	data     json.RawMessage
	err      error
	duration time.Duration
}

// executeParallel fans out to every target at once. An individual failure
// degrades that server's contribution without aborting the batch: overall
// success is the AND of per-server successes, duration the max.
func (c *Coordinator) executeParallel(ctx context.Context, targets []string, op routing.OperationContext) Result {
	internal, external := c.partition(targets)

	var (
		mu       sync.Mutex
		outcomes []serverOutcome
	)
	record := func(o serverOutcome) {
		mu.Lock()
		outcomes = append(outcomes, o)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)

	for _, serverID := range external {
		serverID := serverID
		g.Go(func() error {
			start := time.Now()
			data, err := c.callExternal(gctx, serverID, op)
			record(serverOutcome{
				serverID: serverID,
				data:     data,
				err:      err,
				duration: time.Since(start),
			})
			// Per-server failures are folded into the merged result,
			// never propagated through the group.
			return nil
		})
	}

	if len(internal) > 0 {
		g.Go(func() error {
			start := time.Now()
			res, err := c.tasks.ExecuteTask(gctx, task.KindProcessing, c.payload(op), task.Options{
				TargetServers: internal,
				Strategy:      string(routing.StrategyParallel),
			})
			elapsed := time.Since(start)
			if err != nil {
				for _, id := range internal {
					record(serverOutcome{serverID: id, err: err, duration: elapsed})
				}
				return nil
			}
			seen := make(map[string]struct{})
			for _, sr := range res.Results {
				seen[sr.ServerID] = struct{}{}
				record(serverOutcome{serverID: sr.ServerID, data: sr.Data, duration: elapsed})
			}
			if !res.Success {
				for _, id := range internal {
					if _, ok := seen[id]; !ok {
						record(serverOutcome{serverID: id, err: errors.New(res.Error), duration: elapsed})
					}
				}
			}
			return nil
		})
	}

	_ = g.Wait()

	return c.merge(outcomes)
}

// executeSequential delegates the ordered target list to the coordination
// service, which owns inter-server ordering.
func (c *Coordinator) executeSequential(ctx context.Context, targets []string, op routing.OperationContext) Result {
	return c.delegate(ctx, task.KindProcessing, routing.StrategySequential, targets, op)
}

// executeConsensus delegates to the coordination service's validation mode;
// agreement arbitration happens there.
func (c *Coordinator) executeConsensus(ctx context.Context, targets []string, op routing.OperationContext) Result {
	return c.delegate(ctx, task.KindValidation, routing.StrategyConsensus, targets, op)
}

// executePrimaryFallback contacts targets strictly in order; the first
// success wins and stops the loop.
func (c *Coordinator) executePrimaryFallback(ctx context.Context, targets []string, op routing.OperationContext) Result {
	start := time.Now()

	for _, serverID := range targets {
		attemptStart := time.Now()
		data, err := c.callServer(ctx, serverID, op)
		attemptDuration := time.Since(attemptStart)

		c.registry.UpdateAfterExecution([]string{serverID}, err == nil, attemptDuration)

		if err != nil {
			c.logger.Warn("fallback chain attempt failed",
				"server_id", serverID, "operation", op.Operation, "error", err)
			continue
		}

		return Result{
			Success:     true,
			Data:        map[string]json.RawMessage{serverID: data},
			Performance: Performance{Duration: time.Since(start)},
		}
	}

	return Result{
		Success:     false,
		Data:        map[string]json.RawMessage{},
		Error:       ErrFallbackExhausted.Error(),
		Performance: Performance{Duration: time.Since(start)},
	}
}

func (c *Coordinator) delegate(ctx context.Context, kind task.Kind, strat routing.Strategy, targets []string, op routing.OperationContext) Result {
	start := time.Now()

	res, err := c.tasks.ExecuteTask(ctx, kind, c.payload(op), task.Options{
		TargetServers: targets,
		Strategy:      string(strat),
	})
	duration := time.Since(start)

	if err != nil {
		c.registry.UpdateAfterExecution(targets, false, duration)
		return Result{
			Success:     false,
			Data:        map[string]json.RawMessage{},
			Error:       err.Error(),
			Performance: Performance{Duration: duration},
		}
	}

	c.registry.UpdateAfterExecution(targets, res.Success, duration)

	data := make(map[string]json.RawMessage, len(res.Results))
	for _, sr := range res.Results {
		data[sr.ServerID] = sr.Data
	}
	return Result{
		Success:     res.Success,
		Data:        data,
		Error:       res.Error,
		Performance: Performance{Duration: duration},
	}
}

// callServer routes one single-server attempt: external servers through the
// connection supervisor, internal ones through the coordination service.
func (c *Coordinator) callServer(ctx context.Context, serverID string, op routing.OperationContext) (json.RawMessage, error) {
	if c.supervisor != nil && c.supervisor.Has(serverID) {
		return c.callExternal(ctx, serverID, op)
	}

	res, err := c.tasks.ExecuteTask(ctx, task.KindProcessing, c.payload(op), task.Options{
		TargetServers: []string{serverID},
		Strategy:      string(routing.StrategySequential),
	})
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, fmt.Errorf("server %s failed: %s", serverID, res.Error)
	}
	for _, sr := range res.Results {
		if sr.ServerID == serverID {
			return sr.Data, nil
		}
	}
	return nil, fmt.Errorf("server %s returned no result", serverID)
}

func (c *Coordinator) callExternal(ctx context.Context, serverID string, op routing.OperationContext) (json.RawMessage, error) {
	kind, ok := c.kinds[serverID]
	if !ok {
		return nil, fmt.Errorf("%w: no kind for server %s", task.ErrUnknownKind, serverID)
	}
	params, err := task.BuildParams(kind, op)
	if err != nil {
		return nil, err
	}
	return c.supervisor.Execute(ctx, serverID, op.Operation, params)
}

func (c *Coordinator) partition(targets []string) (internal, external []string) {
	for _, id := range targets {
		if c.supervisor != nil && c.supervisor.Has(id) {
			external = append(external, id)
		} else {
			internal = append(internal, id)
		}
	}
	return internal, external
}

// merge folds per-server outcomes into the unified result and feeds each
// server's telemetry back into the registry.
func (c *Coordinator) merge(outcomes []serverOutcome) Result {
	result := Result{
		Success: true,
		Data:    make(map[string]json.RawMessage, len(outcomes)),
	}

	var firstErr string
	for _, o := range outcomes {
		c.registry.UpdateAfterExecution([]string{o.serverID}, o.err == nil, o.duration)

		if o.err != nil {
			result.Success = false
			if firstErr == "" {
				firstErr = fmt.Sprintf("server %s: %v", o.serverID, o.err)
			}
			continue
		}
		result.Data[o.serverID] = o.data
	}

	// Failed servers still count toward the batch duration.
	for _, o := range outcomes {
		if o.duration > result.Performance.Duration {
			result.Performance.Duration = o.duration
		}
	}

	result.Error = firstErr
	return result
}

// adjustLoad folds in-flight execution counts into the registry's load
// fraction, which drives the decision engine's load-balance sort.
func (c *Coordinator) adjustLoad(serverIDs []string, delta int) {
	c.loadMu.Lock()
	defer c.loadMu.Unlock()

	for _, id := range serverIDs {
		n := c.inflight[id] + delta
		if n < 0 {
			n = 0
		}
		c.inflight[id] = n
		_ = c.registry.SetLoad(id, float64(n)/maxConcurrentPerServer)
	}
}

func (c *Coordinator) payload(op routing.OperationContext) task.Payload {
	return task.Payload{
		RequestID: op.RequestID,
		Operation: op.Operation,
		Params:    op.Args,
		Priority:  string(op.Priority),
	}
}
