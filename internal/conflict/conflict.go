// Package conflict statically analyses a law graph before it runs.
//
// Detect reports structural problems, circular dependencies, operator arity
// mistakes, and two heuristics (opposite-polarity conditions feeding the same
// operator, shape mismatches along edges). It never executes a law.
package conflict

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Type classifies a conflict.
type Type string

const (
	TypeLogical    Type = "logical-conflict"
	TypeDependency Type = "dependency-conflict"
	TypeValue      Type = "value-conflict"
)

// Check names the analysis that produced a conflict.
type Check string

const (
	CheckStructure Check = "structure"
	CheckCycle     Check = "cycle"
	CheckArity     Check = "arity"
	CheckPolarity  Check = "polarity"
	CheckShape     Check = "shape"
)

// Severity is ordered: SeverityLow < SeverityMedium < SeverityHigh < SeverityCritical.
type Severity int

const (
	SeverityLow Severity = iota + 1
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

var severityNames = map[Severity]string{
	SeverityLow:      "low",
	SeverityMedium:   "medium",
	SeverityHigh:     "high",
	SeverityCritical: "critical",
}

func (s Severity) String() string {
	if n, ok := severityNames[s]; ok {
		return n
	}
	return fmt.Sprintf("Severity(%d)", int(s))
}

// ParseSeverity parses low, medium, high or critical.
func ParseSeverity(s string) (Severity, error) {
	want := strings.ToLower(strings.TrimSpace(s))
	for sev, name := range severityNames {
		if name == want {
			return sev, nil
		}
	}
	return 0, fmt.Errorf("unknown severity %q (expected low|medium|high|critical)", s)
}

func (s Severity) MarshalText() ([]byte, error) {
	if _, ok := severityNames[s]; !ok {
		return nil, fmt.Errorf("invalid severity %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(b []byte) error {
	v, err := ParseSeverity(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// AtLeast reports whether s is as severe as threshold.
func (s Severity) AtLeast(threshold Severity) bool { return s >= threshold }

// Conflict is one finding of Detect.
type Conflict struct {
	// ID is derived from the finding itself, so the same graph always
	// yields the same IDs.
	ID       string   `json:"id"`
	Type     Type     `json:"type"`
	Check    Check    `json:"check"`
	Severity Severity `json:"severity"`
	// Nodes lists the nodes involved. For cycles it is the closed path
	// [first ... first].
	Nodes       []string `json:"nodes"`
	Description string   `json:"description"`
	Suggestion  string   `json:"suggestion"`
}

func (c Conflict) String() string {
	return fmt.Sprintf("[%s] %s: %s", c.Severity, c.Type, c.Description)
}

// IsCycle reports whether c is a circular dependency.
func (c Conflict) IsCycle() bool { return c.Check == CheckCycle }

var idNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("lawgraph.conflict"))

func newConflict(t Type, check Check, sev Severity, nodes []string, desc, suggestion string) Conflict {
	key := strings.Join([]string{string(t), string(check), strings.Join(nodes, "\x1f"), desc}, "\x1e")
	return Conflict{
		ID:          uuid.NewSHA1(idNamespace, []byte(key)).String(),
		Type:        t,
		Check:       check,
		Severity:    sev,
		Nodes:       nodes,
		Description: desc,
		Suggestion:  suggestion,
	}
}

// Blocking returns the conflicts at or above threshold, in report order.
func Blocking(conflicts []Conflict, threshold Severity) []Conflict {
	var out []Conflict
	for _, c := range conflicts {
		if c.Severity.AtLeast(threshold) {
			out = append(out, c)
		}
	}
	return out
}

// Summary counts conflicts per severity.
func Summary(conflicts []Conflict) map[Severity]int {
	out := make(map[Severity]int)
	for _, c := range conflicts {
		out[c.Severity]++
	}
	return out
}

// Cycles returns only the circular-dependency conflicts.
func Cycles(conflicts []Conflict) []Conflict {
	var out []Conflict
	for _, c := range conflicts {
		if c.IsCycle() {
			out = append(out, c)
		}
	}
	return out
}
