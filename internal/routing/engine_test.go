package routing

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"github.com/mcpgate/mcpgate/internal/config"
	"github.com/mcpgate/mcpgate/internal/events"
	"github.com/mcpgate/mcpgate/internal/registry"
)

func testRoutingConfig() config.RoutingConfig {
	return config.RoutingConfig{
		DefaultServer:   "orchestrator",
		MonitorServer:   "monitor",
		TargetLatency:   50 * time.Millisecond,
		WarnLatency:     80 * time.Millisecond,
		CriticalLatency: 100 * time.Millisecond,
		DefaultTimeout:  5 * time.Second,
		MaxTimeout:      30 * time.Second,
		CacheTTL:        time.Minute,
	}
}

// newTestEngine builds a registry populated with the usual server fleet and
// an engine wired to it through a shared hub.
func newTestEngine(t *testing.T) (*Engine, *registry.Registry, *events.Hub) {
	t.Helper()

	hub := events.NewHub(64)
	reg := registry.New(hub)

	fleet := map[string][]registry.Capability{
		"context7": {{
			Name:          "documentation_lookup",
			ToolPatterns:  []string{"resolve-library-id", "get-library-docs"},
			DomainHints:   []string{"documentation"},
			ComplexityMin: 0.1,
			ComplexityMax: 0.6,
		}},
		"magic": {{
			Name:          "ui_generation",
			ToolPatterns:  []string{"create-component"},
			DomainHints:   []string{"frontend", "ui"},
			ComplexityMin: 0.3,
			ComplexityMax: 0.9,
		}},
		"sequential": {{
			Name:          "deep_reasoning",
			DomainHints:   []string{"reasoning", "analysis"},
			ComplexityMin: 0.5,
			ComplexityMax: 1.0,
		}},
		"orchestrator": {{
			Name:          "general_orchestration",
			ToolPatterns:  []string{"*"},
			ComplexityMin: 0,
			ComplexityMax: 1.0,
		}},
		"monitor": {{
			Name:          "system_monitoring",
			ToolPatterns:  []string{"health-report"},
			DomainHints:   []string{"monitoring"},
			ComplexityMin: 0,
			ComplexityMax: 0.1,
		}},
	}
	for id, caps := range fleet {
		if err := reg.Register(id, caps); err != nil {
			t.Fatalf("Register(%s): %v", id, err)
		}
	}

	return NewEngine(reg, hub, testRoutingConfig()), reg, hub
}

func TestDecideParallelForDelegatedComplexWork(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	d := eng.Decide(OperationContext{
		Operation:  "create-component",
		Args:       map[string]any{"component": "dashboard"},
		Complexity: ComplexityComplex,
		Flags:      []string{"--delegate"},
	})

	if d.Strategy != StrategyParallel {
		t.Fatalf("strategy = %s, want parallel", d.Strategy)
	}
	if len(d.TargetServers) != 3 {
		t.Fatalf("targets = %v, want 3 servers", d.TargetServers)
	}
	found := map[string]bool{}
	for _, id := range d.TargetServers {
		found[id] = true
	}
	if !found["magic"] {
		t.Fatalf("targets = %v, want magic included", d.TargetServers)
	}
}

func TestDecidePrefersLeastLoadedServer(t *testing.T) {
	eng, reg, _ := newTestEngine(t)

	// Simple documentation lookup: only context7 and the wildcard
	// orchestrator qualify; load decides between them.
	reg.SetLoad("orchestrator", 0.7)
	reg.SetLoad("context7", 0.1)

	d := eng.Decide(OperationContext{
		Operation:  "get-library-docs",
		Args:       map[string]any{"libraryName": "prisma"},
		Complexity: ComplexitySimple,
	})

	if !reflect.DeepEqual(d.TargetServers, []string{"context7"}) {
		t.Fatalf("targets = %v, want [context7]", d.TargetServers)
	}
	if d.Strategy != StrategySequential {
		t.Fatalf("strategy = %s, want sequential for one target", d.Strategy)
	}
	if !reflect.DeepEqual(d.FallbackServers, []string{"orchestrator", "monitor"}) {
		t.Fatalf("fallbacks = %v, want [orchestrator monitor]", d.FallbackServers)
	}
}

func TestDecideSelectsServerOnDomainHintAlone(t *testing.T) {
	eng, reg, _ := newTestEngine(t)

	// playwright advertises no matching tool pattern and a complexity range
	// that excludes simple work; the automation domain hint is its only way
	// into the candidate set.
	err := reg.Register("playwright", []registry.Capability{{
		Name:          "browser_control",
		ToolPatterns:  []string{"browser-click"},
		DomainHints:   []string{"automation"},
		ComplexityMin: 0.9,
		ComplexityMax: 1.0,
	}})
	if err != nil {
		t.Fatalf("Register(playwright): %v", err)
	}

	// Push the other qualifiers (wildcard orchestrator, context7 via its
	// complexity range) behind playwright on load.
	reg.SetLoad("orchestrator", 0.7)
	reg.SetLoad("context7", 0.5)

	d := eng.Decide(OperationContext{
		Operation:  "open-browser-session",
		Complexity: ComplexitySimple,
	})

	if !reflect.DeepEqual(d.TargetServers, []string{"playwright"}) {
		t.Fatalf("targets = %v, want [playwright]", d.TargetServers)
	}
}

func TestDecideMonitorRidesAlongOnCriticalPriority(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	d := eng.Decide(OperationContext{
		Operation:  "deploy-check",
		Complexity: ComplexitySimple,
		Priority:   PriorityCritical,
	})

	found := false
	for _, id := range d.TargetServers {
		if id == "monitor" {
			found = true
		}
	}
	if !found {
		t.Fatalf("targets = %v, want monitor force-included", d.TargetServers)
	}
	// Simple work at critical priority fans out but does not need agreement.
	if d.Strategy != StrategyParallel {
		t.Fatalf("strategy = %s, want parallel", d.Strategy)
	}
}

func TestDecideConsensusForCriticalHeavyWork(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	d := eng.Decide(OperationContext{
		Operation:  "release-gate",
		Complexity: ComplexityCritical,
		Priority:   PriorityCritical,
	})

	if d.Strategy != StrategyConsensus {
		t.Fatalf("strategy = %s, want consensus", d.Strategy)
	}
	if len(d.TargetServers) < 2 {
		t.Fatalf("targets = %v, want at least 2 for consensus", d.TargetServers)
	}
}

func TestDecideFallbackWhenNoCandidate(t *testing.T) {
	eng, reg, _ := newTestEngine(t)

	// Take the whole fleet offline; nothing can match.
	for _, h := range reg.Snapshot() {
		reg.SetAvailability(h.ServerID, false)
	}

	d := eng.Decide(OperationContext{Operation: "anything"})

	if !reflect.DeepEqual(d.TargetServers, []string{"orchestrator"}) {
		t.Fatalf("targets = %v, want [orchestrator]", d.TargetServers)
	}
	if d.Strategy != StrategySequential {
		t.Fatalf("strategy = %s, want sequential", d.Strategy)
	}
	if d.Timeout != 10*time.Second {
		t.Fatalf("timeout = %v, want fixed 10s", d.Timeout)
	}
	if d.Priority != PriorityMedium {
		t.Fatalf("priority = %s, want medium default", d.Priority)
	}
	if !reflect.DeepEqual(d.FallbackServers, []string{"monitor"}) {
		t.Fatalf("fallbacks = %v, want [monitor]", d.FallbackServers)
	}
	// Fallback decisions are never cached.
	if got := eng.cache.len(); got != 0 {
		t.Fatalf("cache len = %d, want 0", got)
	}
}

func TestDecideTimeoutScalesWithObservedLatency(t *testing.T) {
	eng, reg, _ := newTestEngine(t)
	reg.SetLoad("orchestrator", 0.7)

	// Default telemetry: 100ms response time, so 2*avg + 1s = 1.2s beats a
	// 500ms caller budget.
	d := eng.Decide(OperationContext{
		Operation:        "get-library-docs",
		Args:             map[string]any{"libraryName": "prisma"},
		Complexity:       ComplexitySimple,
		MaxExecutionTime: 500 * time.Millisecond,
	})
	if d.Timeout != 1200*time.Millisecond {
		t.Fatalf("timeout = %v, want 1.2s", d.Timeout)
	}

	// A caller budget above the scaled value wins. A different operation
	// avoids the decision cached above.
	d = eng.Decide(OperationContext{
		Operation:        "resolve-library-id",
		Args:             map[string]any{"libraryName": "prisma"},
		Complexity:       ComplexitySimple,
		MaxExecutionTime: 8 * time.Second,
	})
	if d.Timeout != 8*time.Second {
		t.Fatalf("timeout = %v, want 8s", d.Timeout)
	}
}

func TestDecideTimeoutCappedAtMaximum(t *testing.T) {
	eng, reg, _ := newTestEngine(t)
	reg.SetLoad("orchestrator", 0.7)

	// Drive context7's response time EMA up to ~50s.
	for i := 0; i < 100; i++ {
		reg.UpdateAfterExecution([]string{"context7"}, true, 50*time.Second)
	}

	d := eng.Decide(OperationContext{
		Operation:  "get-library-docs",
		Args:       map[string]any{"libraryName": "prisma"},
		Complexity: ComplexitySimple,
	})
	if d.Timeout != 30*time.Second {
		t.Fatalf("timeout = %v, want capped at 30s", d.Timeout)
	}
}

func TestDecideCachesAndEvictsOnDisconnect(t *testing.T) {
	eng, reg, _ := newTestEngine(t)
	reg.SetLoad("orchestrator", 0.7)

	op := OperationContext{
		Operation:  "get-library-docs",
		Args:       map[string]any{"libraryName": "prisma"},
		Complexity: ComplexitySimple,
	}

	first := eng.Decide(op)
	if got := eng.cache.len(); got != 1 {
		t.Fatalf("cache len = %d, want 1", got)
	}

	second := eng.Decide(op)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("cached decision differs: %+v vs %+v", first, second)
	}

	// The disconnect event evicts every decision targeting the server.
	reg.SetAvailability("context7", false)
	if got := eng.cache.len(); got != 0 {
		t.Fatalf("cache len after disconnect = %d, want 0", got)
	}

	// Recomputation now lands on the orchestrator.
	third := eng.Decide(op)
	if !reflect.DeepEqual(third.TargetServers, []string{"orchestrator"}) {
		t.Fatalf("targets after disconnect = %v, want [orchestrator]", third.TargetServers)
	}
}

func TestDecidePublishesLatencyMetric(t *testing.T) {
	eng, _, hub := newTestEngine(t)

	eng.Decide(OperationContext{Operation: "get-library-docs", Complexity: ComplexitySimple})

	var metric events.PerfMetric
	found := false
	for _, ev := range hub.SnapshotSince(0) {
		if ev.Type == events.TypePerfMetric {
			if err := json.Unmarshal(ev.Data, &metric); err != nil {
				t.Fatalf("unmarshal metric: %v", err)
			}
			found = true
		}
	}
	if !found {
		t.Fatal("no perf.metric event published")
	}
	if metric.Operation != "routing_decision" {
		t.Fatalf("metric operation = %q", metric.Operation)
	}
	if metric.DurationMS < 0 {
		t.Fatalf("metric duration = %v", metric.DurationMS)
	}
}
