package trace

import (
	"errors"
	"fmt"
	"slices"
)

// ErrDiverged is returned by Verify when a replayed run does not reproduce
// the recorded trace.
var ErrDiverged = errors.New("trace diverged")

// Verify checks that got reproduces want exactly. Both traces are
// canonicalized first; the error names the first differing event.
func Verify(want, got ExecutionTrace) error {
	if err := want.Validate(); err != nil {
		return fmt.Errorf("recorded trace: %w", err)
	}
	want.Events = append([]Event(nil), want.Events...)
	got.Events = append([]Event(nil), got.Events...)
	want.Canonicalize()
	got.Canonicalize()

	var errs []error
	if want.GraphHash != got.GraphHash {
		errs = append(errs, fmt.Errorf("graph hash %s, recorded %s", got.GraphHash, want.GraphHash))
	}
	n := min(len(want.Events), len(got.Events))
	for i := 0; i < n; i++ {
		if !sameEvent(want.Events[i], got.Events[i]) {
			errs = append(errs, fmt.Errorf("event %d is %s, recorded %s", i, describe(got.Events[i]), describe(want.Events[i])))
			break
		}
	}
	if len(want.Events) != len(got.Events) {
		errs = append(errs, fmt.Errorf("%d events, recorded %d", len(got.Events), len(want.Events)))
	}
	if len(errs) != 0 {
		return fmt.Errorf("%w: %w", ErrDiverged, errors.Join(errs...))
	}
	return nil
}

func sameEvent(a, b Event) bool {
	return a.Kind == b.Kind &&
		a.NodeID == b.NodeID &&
		a.Reason == b.Reason &&
		a.CauseNodeID == b.CauseNodeID &&
		a.ValueKey == b.ValueKey &&
		slices.Equal(a.Conflicts, b.Conflicts)
}

func describe(e Event) string {
	s := string(e.Kind)
	if e.NodeID != "" {
		s += " " + e.NodeID
	}
	if e.Reason != "" {
		s += " (" + e.Reason + ")"
	}
	return s
}
