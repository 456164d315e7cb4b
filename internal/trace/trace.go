// Package trace records the logical decisions of a graph run in a canonical,
// timing-independent form.
//
// A trace never contains timestamps, error strings or durations. Two runs of
// the same graph with the same seeds produce byte-identical canonical JSON,
// whether they ran serially or in parallel.
package trace

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/gowebpki/jcs"
)

// ExecutionTrace is the canonical record of one graph run.
type ExecutionTrace struct {
	GraphHash string  `json:"graphHash"`
	Events    []Event `json:"events"`
}

// EventKind discriminates Event. The string values are part of the canonical
// bytes.
type EventKind string

const (
	EventRunBlocked      EventKind = "RunBlocked"
	EventNodeExecuted    EventKind = "NodeExecuted"
	EventOperatorVacuous EventKind = "OperatorVacuous"
	EventNodeFailed      EventKind = "NodeFailed"
	EventNodeSkipped     EventKind = "NodeSkipped"
)

// Stable reason codes.
const (
	ReasonPreconditionUnmet  = "PreconditionUnmet"
	ReasonPostconditionUnmet = "PostconditionUnmet"
	ReasonExecutionFailed    = "ExecutionFailed"
	ReasonUpstreamFailed     = "UpstreamFailed"
	ReasonBlockingConflicts  = "BlockingConflicts"
)

// Event is a single logical transition.
type Event struct {
	Kind EventKind `json:"kind"`
	// NodeID is required for every kind except RunBlocked.
	NodeID      string `json:"nodeId,omitempty"`
	Reason      string `json:"reason,omitempty"`
	CauseNodeID string `json:"causeNodeId,omitempty"`
	// ValueKey is the canonical key of the produced value.
	ValueKey string `json:"valueKey,omitempty"`
	// Conflicts lists conflict IDs for RunBlocked.
	Conflicts []string `json:"conflicts,omitempty"`
}

// Validate checks the structural invariants of the trace.
func (t *ExecutionTrace) Validate() error {
	if t == nil {
		return errors.New("trace is nil")
	}
	if t.GraphHash == "" {
		return errors.New("graphHash is required")
	}
	var errs []error
	for i, e := range t.Events {
		switch e.Kind {
		case EventRunBlocked:
			if len(e.Conflicts) == 0 {
				errs = append(errs, fmt.Errorf("events[%d]: %s requires conflicts", i, e.Kind))
			}
		case EventNodeExecuted, EventOperatorVacuous, EventNodeFailed, EventNodeSkipped:
			if e.NodeID == "" {
				errs = append(errs, fmt.Errorf("events[%d]: nodeId is required for %s", i, e.Kind))
			}
		case "":
			errs = append(errs, fmt.Errorf("events[%d]: kind is required", i))
		default:
			errs = append(errs, fmt.Errorf("events[%d]: unknown kind %q", i, e.Kind))
		}
	}
	return errors.Join(errs...)
}

// Canonicalize sorts events by (nodeId, kind, reason, causeNodeId, valueKey)
// and normalizes conflict lists.
func (t *ExecutionTrace) Canonicalize() {
	if t == nil {
		return
	}
	for i := range t.Events {
		if len(t.Events[i].Conflicts) == 0 {
			t.Events[i].Conflicts = nil
			continue
		}
		ids := append([]string(nil), t.Events[i].Conflicts...)
		sort.Strings(ids)
		t.Events[i].Conflicts = ids
	}
	sort.SliceStable(t.Events, func(i, j int) bool {
		a, b := t.Events[i], t.Events[j]
		if a.NodeID != b.NodeID {
			return a.NodeID < b.NodeID
		}
		if kindOrder(a.Kind) != kindOrder(b.Kind) {
			return kindOrder(a.Kind) < kindOrder(b.Kind)
		}
		if a.Reason != b.Reason {
			return a.Reason < b.Reason
		}
		if a.CauseNodeID != b.CauseNodeID {
			return a.CauseNodeID < b.CauseNodeID
		}
		return a.ValueKey < b.ValueKey
	})
}

func kindOrder(k EventKind) int {
	switch k {
	case EventRunBlocked:
		return 0
	case EventNodeExecuted:
		return 10
	case EventOperatorVacuous:
		return 20
	case EventNodeFailed:
		return 30
	case EventNodeSkipped:
		return 40
	default:
		return 1000
	}
}

// CanonicalJSON returns the RFC 8785 encoding of a canonicalized copy of t.
func (t ExecutionTrace) CanonicalJSON() ([]byte, error) {
	cp := ExecutionTrace{GraphHash: t.GraphHash, Events: make([]Event, len(t.Events))}
	copy(cp.Events, t.Events)
	cp.Canonicalize()
	if err := cp.Validate(); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(cp)
	if err != nil {
		return nil, err
	}
	return jcs.Transform(raw)
}

// Hash returns the sha256 hex digest of the canonical JSON.
func (t ExecutionTrace) Hash() (string, error) {
	b, err := t.CanonicalJSON()
	if err != nil {
		return "", err
	}
	return ComputeHash(b), nil
}
