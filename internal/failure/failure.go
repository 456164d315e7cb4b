// Package failure classifies the errors that end a run into four classes:
// construction (bad law or graph input), graph (structural conflicts),
// execution (a terminal node failed) and system (everything else).
//
// Law-level failures are reported as law.Result values and only become a
// Failure when a run ends without a value.
package failure

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"lawgraph/internal/dag"
	"lawgraph/internal/engine"
	"lawgraph/internal/law"
)

type Class string

const (
	ClassConstruction Class = "construction"
	ClassGraph        Class = "graph"
	ClassExecution    Class = "execution"
	ClassSystem       Class = "system"
)

// Failure is the classified reason a run ended.
type Failure struct {
	Class   Class  `json:"class"`
	NodeID  string `json:"nodeId,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (f Failure) Validate() error {
	var errs []error
	switch f.Class {
	case ClassConstruction, ClassGraph, ClassExecution, ClassSystem:
	default:
		errs = append(errs, fmt.Errorf("invalid class %q", f.Class))
	}
	if f.Class == ClassExecution && strings.TrimSpace(f.NodeID) == "" {
		errs = append(errs, errors.New("nodeId is required for execution failures"))
	}
	if strings.TrimSpace(f.Code) == "" {
		errs = append(errs, errors.New("code is required"))
	}
	if strings.TrimSpace(f.Message) == "" {
		errs = append(errs, errors.New("message is required"))
	}
	return errors.Join(errs...)
}

// ConstructionError reports invalid input: a law file, a law definition, an
// expression or a seed.
type ConstructionError struct {
	Code    string
	Source  string
	Message string
	Cause   error
}

func (e *ConstructionError) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if e.Source != "" {
		return fmt.Sprintf("construction failure %s (%s): %s", e.Source, nonEmptyOr(e.Code, "Invalid"), msg)
	}
	return fmt.Sprintf("construction failure (%s): %s", nonEmptyOr(e.Code, "Invalid"), msg)
}

func (e *ConstructionError) Unwrap() error { return e.Cause }

// ExecutionError reports a run that finished without a value because a
// terminal node failed.
type ExecutionError struct {
	NodeID  string
	Code    string
	Message string
}

func (e *ExecutionError) Error() string {
	if e == nil {
		return ""
	}
	if e.NodeID != "" {
		return fmt.Sprintf("execution failure node=%s (%s): %s", e.NodeID, nonEmptyOr(e.Code, "NodeFailed"), e.Message)
	}
	return fmt.Sprintf("execution failure: %s", e.Message)
}

// FromResult returns an *ExecutionError for the failed terminal of res with
// the smallest id, or nil when the run succeeded.
func FromResult(res *dag.GraphResult) error {
	if res == nil || res.Success {
		return nil
	}
	ids := make([]string, 0, len(res.Terminals))
	for id := range res.Terminals {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		r := res.Terminals[id]
		if r.Success {
			continue
		}
		code := "NodeFailed"
		if res.FinalState[id] == dag.NodeSkipped {
			code = "UpstreamFailed"
		} else if r.PreconditionMet == law.CheckUnmet {
			code = "PreconditionUnmet"
		} else if r.PostconditionMet == law.CheckUnmet {
			code = "PostconditionUnmet"
		}
		return &ExecutionError{NodeID: id, Code: code, Message: nonEmptyOr(r.Error, "node failed")}
	}
	return &ExecutionError{Code: "NodeFailed", Message: "graph run failed"}
}

// Classify maps err into the failure taxonomy. Unknown errors are system
// failures.
func Classify(err error) (Failure, error) {
	if err == nil {
		return Failure{}, errors.New("nil error")
	}

	var ce *ConstructionError
	if errors.As(err, &ce) && ce != nil {
		return Failure{
			Class:   ClassConstruction,
			Code:    nonEmptyOr(ce.Code, "Invalid"),
			Message: err.Error(),
		}, nil
	}

	var ee *ExecutionError
	if errors.As(err, &ee) && ee != nil {
		return Failure{
			Class:   ClassExecution,
			NodeID:  ee.NodeID,
			Code:    nonEmptyOr(ee.Code, "NodeFailed"),
			Message: nonEmptyOr(ee.Message, ee.Error()),
		}, nil
	}

	var be *engine.BlockedError
	if errors.As(err, &be) && be != nil {
		code := "BlockingConflicts"
		if len(be.Cycle()) > 0 {
			code = "CycleDetected"
		}
		return Failure{Class: ClassGraph, Code: code, Message: err.Error()}, nil
	}

	switch {
	case errors.Is(err, dag.ErrCycleFound):
		return Failure{Class: ClassGraph, Code: "CycleDetected", Message: err.Error()}, nil
	case errors.Is(err, dag.ErrInvalidGraph):
		return Failure{Class: ClassGraph, Code: "InvalidGraph", Message: err.Error()}, nil
	case errors.Is(err, engine.ErrInvalidSeed):
		return Failure{Class: ClassConstruction, Code: "InvalidSeed", Message: err.Error()}, nil
	case errors.Is(err, law.ErrInvalidDefinition):
		return Failure{Class: ClassConstruction, Code: "InvalidDefinition", Message: err.Error()}, nil
	case errors.Is(err, context.Canceled):
		return Failure{Class: ClassSystem, Code: "Cancelled", Message: err.Error()}, nil
	case errors.Is(err, context.DeadlineExceeded):
		return Failure{Class: ClassSystem, Code: "DeadlineExceeded", Message: err.Error()}, nil
	}

	return Failure{Class: ClassSystem, Code: "UnknownError", Message: err.Error()}, nil
}

func nonEmptyOr(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
