package task

import (
	"errors"
	"testing"

	"github.com/mcpgate/mcpgate/internal/routing"
)

func TestBuildParamsDocumentation(t *testing.T) {
	op := routing.OperationContext{
		Operation: "get-library-docs",
		Args:      map[string]any{"libraryName": "react", "topic": "hooks"},
	}

	params, err := BuildParams(KindDocumentation, op)
	if err != nil {
		t.Fatalf("BuildParams: %v", err)
	}
	if params["libraryName"] != "react" {
		t.Errorf("libraryName = %v", params["libraryName"])
	}
	if params["topic"] != "hooks" {
		t.Errorf("topic = %v", params["topic"])
	}
	if params["tokens"] != 5000 {
		t.Errorf("tokens = %v, want default 5000", params["tokens"])
	}
}

func TestBuildParamsDocumentationAliases(t *testing.T) {
	// "library" and "package" feed libraryName when the canonical key is
	// absent.
	op := routing.OperationContext{Args: map[string]any{"package": "lodash"}}
	params, err := BuildParams(KindDocumentation, op)
	if err != nil {
		t.Fatalf("BuildParams: %v", err)
	}
	if params["libraryName"] != "lodash" {
		t.Errorf("libraryName = %v, want lodash via package alias", params["libraryName"])
	}
}

func TestBuildParamsUIGeneration(t *testing.T) {
	op := routing.OperationContext{
		Args: map[string]any{"component": "login form", "format": "jsx"},
	}
	params, err := BuildParams(KindUIGeneration, op)
	if err != nil {
		t.Fatalf("BuildParams: %v", err)
	}
	if params["searchQuery"] != "login form" {
		t.Errorf("searchQuery = %v", params["searchQuery"])
	}
	if params["format"] != "jsx" {
		t.Errorf("format = %v, want caller override", params["format"])
	}
}

func TestBuildParamsReasoningDefaults(t *testing.T) {
	op := routing.OperationContext{Args: map[string]any{"prompt": "why is the build slow"}}
	params, err := BuildParams(KindReasoning, op)
	if err != nil {
		t.Fatalf("BuildParams: %v", err)
	}
	if params["thought"] != "why is the build slow" {
		t.Errorf("thought = %v", params["thought"])
	}
	if params["thoughtNumber"] != 1 || params["totalThoughts"] != 1 {
		t.Errorf("thought counters = %v/%v, want 1/1", params["thoughtNumber"], params["totalThoughts"])
	}
}

func TestBuildParamsBrowserAutomation(t *testing.T) {
	op := routing.OperationContext{Args: map[string]any{"url": "https://example.com"}}
	params, err := BuildParams(KindBrowserAutomation, op)
	if err != nil {
		t.Fatalf("BuildParams: %v", err)
	}
	if params["url"] != "https://example.com" {
		t.Errorf("url = %v", params["url"])
	}
	if params["action"] != "navigate" {
		t.Errorf("action = %v, want navigate default", params["action"])
	}
}

func TestBuildParamsOrchestrationPassesRawOperation(t *testing.T) {
	op := routing.OperationContext{
		Operation: "deploy",
		Args:      map[string]any{"env": "staging"},
		Priority:  routing.PriorityHigh,
	}
	params, err := BuildParams(KindOrchestration, op)
	if err != nil {
		t.Fatalf("BuildParams: %v", err)
	}
	if params["operation"] != "deploy" || params["priority"] != "high" {
		t.Errorf("params = %v", params)
	}
}

func TestBuildParamsUnknownKind(t *testing.T) {
	_, err := BuildParams(ServerKind("mystery"), routing.OperationContext{})
	if !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("err = %v, want ErrUnknownKind", err)
	}
}
