package routing

import (
	"reflect"
	"testing"
	"time"
)

func TestDeriveDefaults(t *testing.T) {
	op := OperationContext{
		Operation: "Read",
		Args:      map[string]any{"file_path": "/tmp/x"},
	}
	req := Derive(op, 5*time.Second)

	if req.Complexity != ComplexitySimple {
		t.Errorf("complexity = %s, want simple", req.Complexity)
	}
	if req.Priority != PriorityMedium {
		t.Errorf("priority = %s, want medium", req.Priority)
	}
	if req.MaxExecutionTime != 5*time.Second {
		t.Errorf("max execution time = %v, want default 5s", req.MaxExecutionTime)
	}
	if req.RequiresParallel || req.RequiresConsensus {
		t.Errorf("parallel/consensus = %v/%v, want false/false", req.RequiresParallel, req.RequiresConsensus)
	}
	if !reflect.DeepEqual(req.ToolPatterns, []string{"Read"}) {
		t.Errorf("tool patterns = %v", req.ToolPatterns)
	}
}

func TestDeriveDelegationFlagForcesParallel(t *testing.T) {
	op := OperationContext{
		Operation: "build-dashboard",
		Flags:     []string{"--delegate"},
	}
	req := Derive(op, time.Second)
	if !req.RequiresParallel {
		t.Fatal("--delegate did not force parallel execution")
	}
	if req.RequiresConsensus {
		t.Fatal("delegation alone must not require consensus")
	}
}

func TestDeriveConsensusNeedsCriticalAndHeavy(t *testing.T) {
	op := OperationContext{
		Operation:  "release-gate",
		Complexity: ComplexityCritical,
		Priority:   PriorityCritical,
	}
	req := Derive(op, time.Second)
	if !req.RequiresConsensus {
		t.Fatal("critical priority + critical complexity must require consensus")
	}
	if !req.RequiresParallel {
		t.Fatal("critical priority must require parallel")
	}

	// Critical priority on light work: parallel yes, consensus no.
	op.Complexity = ComplexitySimple
	req = Derive(op, time.Second)
	if req.RequiresConsensus {
		t.Fatal("simple complexity must not require consensus")
	}
	if !req.RequiresParallel {
		t.Fatal("critical priority must still require parallel")
	}
}

func TestDerivePersonaDetection(t *testing.T) {
	cases := []struct {
		operation string
		args      map[string]any
		want      string
	}{
		{"create-component", map[string]any{"framework": "react"}, "frontend"},
		{"design-endpoint", map[string]any{"database": "postgres"}, "backend"},
		{"scan", map[string]any{"target": "auth flow vulnerability"}, "security"},
		{"investigate-failure", nil, "analyzer"},
		{"compress-logs", nil, ""},
	}
	for _, tc := range cases {
		req := Derive(OperationContext{Operation: tc.operation, Args: tc.args}, time.Second)
		if req.Persona != tc.want {
			t.Errorf("Derive(%q).Persona = %q, want %q", tc.operation, req.Persona, tc.want)
		}
	}
}

func TestDeriveExplicitPersonaWins(t *testing.T) {
	op := OperationContext{
		Operation: "create-component",
		Persona:   "architect",
	}
	req := Derive(op, time.Second)
	if req.Persona != "architect" {
		t.Fatalf("persona = %q, want caller-supplied architect", req.Persona)
	}
}

func TestDetectDomainsSortedAndDeduplicated(t *testing.T) {
	req := Derive(OperationContext{
		Operation: "analyze-component",
		Args:      map[string]any{"ui": true, "framework": "react"},
	}, time.Second)

	want := []string{"analysis", "frontend", "reasoning", "ui"}
	if !reflect.DeepEqual(req.DomainHints, want) {
		t.Fatalf("domain hints = %v, want %v", req.DomainHints, want)
	}
}

func TestAssessComplexity(t *testing.T) {
	cases := []struct {
		name string
		op   OperationContext
		want Complexity
	}{
		{"read single arg", OperationContext{Operation: "Read", Args: map[string]any{"file_path": "x"}}, ComplexitySimple},
		{"grep", OperationContext{Operation: "Grep", Args: map[string]any{"pattern": "x"}}, ComplexityModerate},
		{"multi edit", OperationContext{Operation: "MultiEdit"}, ComplexityComplex},
		{"task", OperationContext{Operation: "Task"}, ComplexityComplex},
		{"search text", OperationContext{Operation: "find", Args: map[string]any{"q": "search widgets"}}, ComplexityModerate},
		{"many args", OperationContext{Operation: "deploy", Args: map[string]any{"a": 1, "b": 2, "c": 3, "d": 4}}, ComplexityComplex},
		{"plain", OperationContext{Operation: "summarize"}, ComplexityModerate},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := assessComplexity(tc.op); got != tc.want {
				t.Fatalf("assessComplexity = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestComplexityScore(t *testing.T) {
	cases := map[Complexity]float64{
		ComplexitySimple:   0.2,
		ComplexityModerate: 0.5,
		ComplexityComplex:  0.8,
		ComplexityCritical: 1.0,
		Complexity("odd"):  0.5,
	}
	for c, want := range cases {
		if got := c.Score(); got != want {
			t.Errorf("Score(%s) = %v, want %v", c, got, want)
		}
	}
}
