package routing

import "time"

// Priority orders operations by urgency.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Complexity is the coarse label attached to an operation.
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
	ComplexityCritical Complexity = "critical"
)

// Score maps a complexity label onto the numeric scale matched against a
// capability's complexity range.
func (c Complexity) Score() float64 {
	switch c {
	case ComplexitySimple:
		return 0.2
	case ComplexityModerate:
		return 0.5
	case ComplexityComplex:
		return 0.8
	case ComplexityCritical:
		return 1.0
	default:
		return 0.5
	}
}

// Strategy selects how a routing decision is executed.
type Strategy string

const (
	StrategyParallel        Strategy = "parallel"
	StrategySequential      Strategy = "sequential"
	StrategyPrimaryFallback Strategy = "primary-fallback"
	StrategyConsensus       Strategy = "consensus"
)

// OperationContext is the raw incoming operation before requirements are
// derived. Args values are only inspected as text for keyword matching and
// forwarded untouched to the server boundary.
type OperationContext struct {
	RequestID  string
	Operation  string
	Args       map[string]any
	Complexity Complexity // optional; assessed heuristically when empty
	Priority   Priority   // defaults to medium
	Persona    string     // optional; detected when empty
	Flags      []string
	// MaxExecutionTime is the caller's execution budget; zero means the
	// configured default applies.
	MaxExecutionTime time.Duration
}

// Requirements is derived once per operation and drives candidate selection.
type Requirements struct {
	ToolPatterns      []string
	DomainHints       []string
	Complexity        Complexity
	Priority          Priority
	Persona           string
	MaxExecutionTime  time.Duration
	RequiresParallel  bool
	RequiresConsensus bool
}

// Decision is the routing outcome for one operation.
type Decision struct {
	TargetServers   []string
	Strategy        Strategy
	Timeout         time.Duration
	Priority        Priority
	FallbackServers []string
}
