package routing

import (
	"encoding/json"
	"log/slog"
	"sort"
	"time"

	"github.com/mcpgate/mcpgate/internal/config"
	"github.com/mcpgate/mcpgate/internal/events"
	"github.com/mcpgate/mcpgate/internal/log"
	"github.com/mcpgate/mcpgate/internal/registry"
)

// fallbackTimeout is the fixed budget of the decision returned when the
// engine itself fails.
const fallbackTimeout = 10 * time.Second

// Engine turns an operation context plus a registry snapshot into a routing
// decision. It never returns an error: any internal failure yields the fixed
// fallback decision targeting the default orchestrator.
type Engine struct {
	registry *registry.Registry
	cache    *decisionCache
	hub      *events.Hub
	cfg      config.RoutingConfig
	logger   *slog.Logger
}

func NewEngine(reg *registry.Registry, hub *events.Hub, cfg config.RoutingConfig) *Engine {
	e := &Engine{
		registry: reg,
		cache:    newDecisionCache(cfg.CacheTTL),
		hub:      hub,
		cfg:      cfg,
		logger:   log.WithComponent("routing"),
	}

	// Cached decisions targeting a server whose health flipped are dropped
	// eagerly; the per-read online check remains the authoritative guard.
	if hub != nil {
		hub.Register(events.ObserverFunc(func(ev events.Event) {
			if ev.Type != events.TypeServerDisconnected {
				return
			}
			var se events.ServerEvent
			if err := json.Unmarshal(ev.Data, &se); err != nil || se.ServerID == "" {
				return
			}
			e.cache.evictServer(se.ServerID)
		}))
	}

	return e
}

// Decide computes the routing decision for one operation.
func (e *Engine) Decide(op OperationContext) (decision Decision) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("decision engine failure, using fallback decision",
				"operation", op.Operation, "panic", r)
			decision = e.fallbackDecision(op)
		}
		e.observeLatency(time.Since(start))
	}()

	req := Derive(op, e.cfg.DefaultTimeout)

	key := cacheKey(op.Operation, req.Complexity, req.Persona, op.Flags)
	if cached, ok := e.cache.get(key, e.serverOnline); ok {
		e.logger.Debug("decision cache hit", "operation", op.Operation)
		return cached
	}

	snapshot := e.registry.Snapshot()
	candidates := e.selectCandidates(req, snapshot)
	if len(candidates) == 0 {
		// Capability-match miss: route to the default orchestrator on the
		// fixed fallback decision. Not cached, so recovering servers are
		// reconsidered immediately.
		e.logger.Debug("no candidate server, using default orchestrator",
			"operation", op.Operation)
		return e.fallbackDecision(op)
	}
	candidates = balance(candidates, req.RequiresParallel)

	targets := make([]string, len(candidates))
	for i, c := range candidates {
		targets[i] = c.ServerID
	}

	decision = Decision{
		TargetServers:   targets,
		Strategy:        chooseStrategy(req, len(targets)),
		Timeout:         e.computeTimeout(req, candidates),
		Priority:        req.Priority,
		FallbackServers: e.fallbackList(targets),
	}

	e.cache.put(key, decision)
	e.logger.Debug("routing decision",
		"operation", op.Operation,
		"targets", decision.TargetServers,
		"strategy", string(decision.Strategy),
		"timeout", decision.Timeout,
	)
	return decision
}

// EvictServer drops cached decisions that target the given server.
func (e *Engine) EvictServer(serverID string) {
	e.cache.evictServer(serverID)
}

func (e *Engine) serverOnline(serverID string) bool {
	h, err := e.registry.Get(serverID)
	return err == nil && h.Status == registry.StatusOnline
}

// selectCandidates applies the inclusive-OR capability match: any one of
// tool-pattern, domain-hint, or complexity-range agreement qualifies an
// online server.
func (e *Engine) selectCandidates(req Requirements, snapshot []registry.Health) []registry.Health {
	score := req.Complexity.Score()

	var out []registry.Health
	forced := false
	for _, h := range snapshot {
		if h.Status != registry.StatusOnline {
			continue
		}
		if matches(h, req, score) {
			out = append(out, h)
			if h.ServerID == e.cfg.MonitorServer {
				forced = true
			}
			continue
		}
		// The monitoring server rides along on urgent operations even
		// without a capability match.
		if h.ServerID == e.cfg.MonitorServer && !forced &&
			(req.Priority == PriorityHigh || req.Priority == PriorityCritical) {
			out = append(out, h)
			forced = true
		}
	}

	return out
}

func matches(h registry.Health, req Requirements, score float64) bool {
	for _, cap := range h.Capabilities {
		if intersectsWithWildcard(cap.ToolPatterns, req.ToolPatterns) {
			return true
		}
		if intersects(cap.DomainHints, req.DomainHints) {
			return true
		}
		if score >= cap.ComplexityMin && score <= cap.ComplexityMax {
			return true
		}
	}
	return false
}

func intersectsWithWildcard(patterns, wanted []string) bool {
	for _, p := range patterns {
		if p == "*" {
			return len(wanted) > 0
		}
		for _, w := range wanted {
			if p == w {
				return true
			}
		}
	}
	return false
}

func intersects(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

// balance orders candidates by ascending load then ascending latency, and
// keeps the top 3 for parallel execution or the single best otherwise.
func balance(candidates []registry.Health, parallel bool) []registry.Health {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].CurrentLoad != candidates[j].CurrentLoad {
			return candidates[i].CurrentLoad < candidates[j].CurrentLoad
		}
		return candidates[i].ResponseTime < candidates[j].ResponseTime
	})

	keep := 1
	if parallel {
		keep = 3
	}
	if len(candidates) > keep {
		candidates = candidates[:keep]
	}
	return candidates
}

func chooseStrategy(req Requirements, targetCount int) Strategy {
	switch {
	case req.RequiresConsensus && targetCount >= 2:
		return StrategyConsensus
	case req.RequiresParallel && targetCount >= 2:
		return StrategyParallel
	case targetCount >= 2:
		return StrategyPrimaryFallback
	default:
		return StrategySequential
	}
}

// computeTimeout scales the budget with the candidates' observed latency:
// max(requested, 2*avgRT + 1s), capped at the configured maximum.
func (e *Engine) computeTimeout(req Requirements, candidates []registry.Health) time.Duration {
	timeout := req.MaxExecutionTime

	if len(candidates) > 0 {
		var sum float64
		for _, c := range candidates {
			sum += c.ResponseTime
		}
		avg := sum / float64(len(candidates))
		scaled := time.Duration(avg*2)*time.Millisecond + time.Second
		if scaled > timeout {
			timeout = scaled
		}
	}

	if timeout > e.cfg.MaxTimeout {
		timeout = e.cfg.MaxTimeout
	}
	return timeout
}

// fallbackList always carries the orchestrator and monitoring servers,
// minus any that are already primary targets.
func (e *Engine) fallbackList(targets []string) []string {
	inTargets := make(map[string]struct{}, len(targets))
	for _, id := range targets {
		inTargets[id] = struct{}{}
	}

	var out []string
	for _, id := range []string{e.cfg.DefaultServer, e.cfg.MonitorServer} {
		if id == "" {
			continue
		}
		if _, ok := inTargets[id]; ok {
			continue
		}
		out = append(out, id)
	}
	return out
}

func (e *Engine) fallbackDecision(op OperationContext) Decision {
	d := Decision{
		TargetServers: []string{e.cfg.DefaultServer},
		Strategy:      StrategySequential,
		Timeout:       fallbackTimeout,
		Priority:      op.Priority,
	}
	if d.Priority == "" {
		d.Priority = PriorityMedium
	}
	if e.cfg.MonitorServer != "" && e.cfg.MonitorServer != e.cfg.DefaultServer {
		d.FallbackServers = []string{e.cfg.MonitorServer}
	}
	return d
}

// observeLatency publishes the decision-latency metric and raises an alert
// when the computation blew its budget.
func (e *Engine) observeLatency(elapsed time.Duration) {
	if e.hub == nil {
		return
	}

	ms := float64(elapsed.Microseconds()) / 1000.0
	e.hub.Publish(events.TypePerfMetric, events.PerfMetric{
		Operation:  "routing_decision",
		DurationMS: ms,
	})

	if elapsed <= e.cfg.TargetLatency {
		return
	}

	severity := "warning"
	threshold := e.cfg.TargetLatency
	switch {
	case elapsed > e.cfg.CriticalLatency:
		severity = "critical"
		threshold = e.cfg.CriticalLatency
	case elapsed > e.cfg.WarnLatency:
		threshold = e.cfg.WarnLatency
	}

	e.hub.Publish(events.TypePerfAlert, events.PerfAlert{
		Severity:  severity,
		Metric:    "routing_decision_latency_ms",
		Value:     ms,
		Threshold: float64(threshold.Microseconds()) / 1000.0,
	})
	e.logger.Warn("routing decision exceeded latency budget",
		"elapsed_ms", ms, "severity", severity)
}
