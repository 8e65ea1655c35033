package task

import (
	"errors"
	"fmt"

	"github.com/mcpgate/mcpgate/internal/routing"
)

// ServerKind tags the parameter mapping a capability server expects.
type ServerKind string

const (
	KindDocumentation     ServerKind = "documentation"
	KindUIGeneration      ServerKind = "ui-generation"
	KindReasoning         ServerKind = "reasoning"
	KindBrowserAutomation ServerKind = "browser-automation"
	KindOrchestration     ServerKind = "orchestration"
	KindMonitoring        ServerKind = "monitoring"
)

var ErrUnknownKind = errors.New("unknown server kind")

// BuildParams shapes an operation context into the parameter set one kind of
// server expects. Unknown kinds are rejected at the boundary rather than
// forwarded as opaque maps.
func BuildParams(kind ServerKind, op routing.OperationContext) (map[string]any, error) {
	switch kind {
	case KindDocumentation:
		return map[string]any{
			"libraryName": argString(op, "libraryName", "library", "package"),
			"libraryId":   argString(op, "libraryId"),
			"tokens":      argOr(op, "tokens", 5000),
			"topic":       argString(op, "topic"),
		}, nil

	case KindUIGeneration:
		return map[string]any{
			"searchQuery": argString(op, "searchQuery", "component", "query"),
			"message":     argString(op, "message", "description"),
			"format":      argOr(op, "format", "tsx"),
		}, nil

	case KindReasoning:
		return map[string]any{
			"thought":       argString(op, "thought", "prompt", "target"),
			"thoughtNumber": argOr(op, "thoughtNumber", 1),
			"totalThoughts": argOr(op, "totalThoughts", 1),
		}, nil

	case KindBrowserAutomation:
		return map[string]any{
			"url":      argString(op, "url"),
			"action":   argOr(op, "action", "navigate"),
			"selector": argString(op, "selector"),
		}, nil

	case KindOrchestration, KindMonitoring:
		// Orchestrator and monitor take the raw operation untouched.
		return map[string]any{
			"operation": op.Operation,
			"args":      op.Args,
			"priority":  string(op.Priority),
		}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

func argString(op routing.OperationContext, keys ...string) string {
	for _, k := range keys {
		if v, ok := op.Args[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

func argOr(op routing.OperationContext, key string, fallback any) any {
	if v, ok := op.Args[key]; ok && v != nil {
		return v
	}
	return fallback
}
