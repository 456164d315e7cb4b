package law

import (
	"fmt"
	"time"

	"lawgraph/internal/value"
)

// Check is the tri-state outcome of a guard condition.
type Check uint8

const (
	CheckUnevaluated Check = iota
	CheckMet
	CheckUnmet
)

func (c Check) String() string {
	switch c {
	case CheckUnevaluated:
		return "unevaluated"
	case CheckMet:
		return "met"
	case CheckUnmet:
		return "unmet"
	default:
		return fmt.Sprintf("check(%d)", uint8(c))
	}
}

func (c Check) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *Check) UnmarshalText(b []byte) error {
	switch string(b) {
	case "unevaluated", "":
		*c = CheckUnevaluated
	case "met":
		*c = CheckMet
	case "unmet":
		*c = CheckUnmet
	default:
		return fmt.Errorf("unknown check state %q", b)
	}
	return nil
}

func checkOf(ok bool) Check {
	if ok {
		return CheckMet
	}
	return CheckUnmet
}

// Result is the outcome of executing a Law or a MetaLaw.
//
// Value is meaningful only when Success is true; Error only when it is false.
// Failures are always reported here and never as Go errors.
type Result struct {
	Success          bool          `json:"success"`
	Value            value.Value   `json:"value"`
	Error            string        `json:"error,omitempty"`
	PreconditionMet  Check         `json:"precondition"`
	PostconditionMet Check         `json:"postcondition"`
	Vacuous          bool          `json:"vacuous,omitempty"`
	Duration         time.Duration `json:"duration_ns"`
}

const (
	msgPrecondition  = "Precondition failed"
	msgPostcondition = "Postcondition failed"
	msgExecution     = "Law execution failed: "
)

func failed(msg string) Result {
	return Result{Error: msg}
}

// Outcome is a named Result as seen by a composition.
type Outcome struct {
	Name     string
	Priority float64
	Result   Result
}
