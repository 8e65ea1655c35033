package routing

import (
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// domainKeywords maps substrings found in the operation or argument text to
// the domain hints a capability may declare.
var domainKeywords = map[string][]string{
	"component":     {"frontend", "ui"},
	"ui":            {"frontend", "ui"},
	"react":         {"frontend", "ui"},
	"vue":           {"frontend", "ui"},
	"css":           {"frontend", "ui"},
	"analyze":       {"analysis", "reasoning"},
	"investigate":   {"analysis", "reasoning"},
	"debug":         {"analysis", "reasoning"},
	"think":         {"reasoning"},
	"test":          {"testing", "qa"},
	"api":           {"backend"},
	"database":      {"backend"},
	"endpoint":      {"backend"},
	"security":      {"security"},
	"vulnerability": {"security"},
	"auth":          {"security"},
	"architecture":  {"architecture", "design"},
	"design":        {"architecture", "design"},
	"library":       {"documentation"},
	"docs":          {"documentation"},
	"documentation": {"documentation"},
	"browser":       {"automation"},
	"screenshot":    {"automation"},
	"navigate":      {"automation"},
}

// personaKeywords drives persona auto-detection when the caller supplies
// none. First match wins, in declaration order.
var personaKeywords = []struct {
	persona  string
	keywords []string
}{
	{"frontend", []string{"component", "ui", "react", "vue", "css"}},
	{"backend", []string{"api", "database", "server", "endpoint"}},
	{"security", []string{"security", "vulnerability", "auth"}},
	{"architect", []string{"architecture", "design", "system"}},
	{"analyzer", []string{"analyze", "investigate", "debug"}},
}

// delegationFlags force parallel execution when present on the operation.
var delegationFlags = map[string]struct{}{
	"delegate":   {},
	"--delegate": {},
}

// Derive computes the routable requirements for one operation context.
// defaultTimeout fills MaxExecutionTime when the caller has no budget.
func Derive(op OperationContext, defaultTimeout time.Duration) Requirements {
	text := searchText(op)

	complexity := op.Complexity
	if complexity == "" {
		complexity = assessComplexity(op)
	}

	priority := op.Priority
	if priority == "" {
		priority = PriorityMedium
	}

	persona := op.Persona
	if persona == "" {
		persona = detectPersona(text)
	}

	maxExec := op.MaxExecutionTime
	if maxExec <= 0 {
		maxExec = defaultTimeout
	}

	req := Requirements{
		ToolPatterns:     []string{op.Operation},
		DomainHints:      detectDomains(text),
		Complexity:       complexity,
		Priority:         priority,
		Persona:          persona,
		MaxExecutionTime: maxExec,
	}

	heavy := complexity == ComplexityComplex || complexity == ComplexityCritical
	req.RequiresParallel = hasDelegationFlag(op.Flags) || heavy || priority == PriorityCritical
	req.RequiresConsensus = priority == PriorityCritical && heavy

	return req
}

// searchText flattens the operation name and argument values into one
// lowercase string for keyword matching.
func searchText(op OperationContext) string {
	var b strings.Builder
	b.WriteString(strings.ToLower(op.Operation))
	if len(op.Args) > 0 {
		if raw, err := json.Marshal(op.Args); err == nil {
			b.WriteByte(' ')
			b.WriteString(strings.ToLower(string(raw)))
		}
	}
	return b.String()
}

func detectDomains(text string) []string {
	set := make(map[string]struct{})
	for keyword, domains := range domainKeywords {
		if strings.Contains(text, keyword) {
			for _, d := range domains {
				set[d] = struct{}{}
			}
		}
	}

	out := make([]string, 0, len(set))
	for d := range set {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

func detectPersona(text string) string {
	for _, entry := range personaKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(text, kw) {
				return entry.persona
			}
		}
	}
	return ""
}

// assessComplexity applies the coarse heuristics used when the caller gives
// no explicit label.
func assessComplexity(op OperationContext) Complexity {
	switch op.Operation {
	case "Read", "Write":
		if len(op.Args) <= 1 {
			return ComplexitySimple
		}
	case "Grep", "Glob":
		return ComplexityModerate
	case "MultiEdit", "Task":
		return ComplexityComplex
	}
	if strings.Contains(searchText(op), "search") {
		return ComplexityModerate
	}
	if len(op.Args) > 3 {
		return ComplexityComplex
	}
	return ComplexityModerate
}

func hasDelegationFlag(flags []string) bool {
	for _, f := range flags {
		if _, ok := delegationFlags[strings.ToLower(strings.TrimSpace(f))]; ok {
			return true
		}
	}
	return false
}
