// Package resolve picks a single value when several laws of a composition
// produce competing values for the same output.
//
// Candidates are always given in declaration order. Every strategy is a pure
// function of that order, so the result never depends on completion timing.
package resolve

import (
	"errors"
	"fmt"
	"strings"

	"lawgraph/internal/value"
)

// Strategy names a conflict resolution strategy.
type Strategy string

const (
	StrategyLastWins  Strategy = "last-wins"
	StrategyFirstWins Strategy = "first-wins"
	StrategyPriority  Strategy = "priority"
	StrategyVoting    Strategy = "voting"
	StrategyMerge     Strategy = "merge"
	StrategyError     Strategy = "error"
	StrategyCustom    Strategy = "custom"
)

var strategies = []Strategy{
	StrategyLastWins,
	StrategyFirstWins,
	StrategyPriority,
	StrategyVoting,
	StrategyMerge,
	StrategyError,
	StrategyCustom,
}

var (
	// ErrConflict matches *ConflictError.
	ErrConflict = errors.New("conflicting values")
	// ErrNoCandidates is returned when there is nothing to resolve.
	ErrNoCandidates = errors.New("no candidate values")
	// ErrNoCustomResolver is returned by the custom strategy without a Func.
	ErrNoCustomResolver = errors.New("custom resolution requires a resolver function")
)

// ParseStrategy parses a strategy name. The empty string means last-wins.
func ParseStrategy(s string) (Strategy, error) {
	if strings.TrimSpace(s) == "" {
		return StrategyLastWins, nil
	}
	want := Strategy(strings.ToLower(strings.TrimSpace(s)))
	for _, st := range strategies {
		if st == want {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown conflict resolution %q", s)
}

// Valid reports whether s names a known strategy.
func (s Strategy) Valid() bool {
	for _, st := range strategies {
		if st == s {
			return true
		}
	}
	return false
}

// Candidate is one successful value competing for the output.
type Candidate struct {
	Name     string
	Priority float64
	Value    value.Value
}

// Func is a caller-supplied resolver for StrategyCustom.
type Func func(candidates []Candidate) (value.Value, error)

// ConflictError reports that the error strategy met distinct values.
type ConflictError struct {
	Names []string
}

func (e *ConflictError) Error() string {
	return "conflicts detected between " + strings.Join(e.Names, ", ")
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// Resolver applies a Strategy. The zero Resolver resolves last-wins.
type Resolver struct {
	Strategy Strategy
	Custom   Func
}

// Resolve picks one value from candidates.
func (r Resolver) Resolve(candidates []Candidate) (value.Value, error) {
	if len(candidates) == 0 {
		return value.Value{}, ErrNoCandidates
	}
	switch r.Strategy {
	case "", StrategyLastWins:
		return candidates[len(candidates)-1].Value, nil
	case StrategyFirstWins:
		return candidates[0].Value, nil
	case StrategyPriority:
		return byPriority(candidates), nil
	case StrategyVoting:
		return byVote(candidates), nil
	case StrategyMerge:
		return merge(candidates), nil
	case StrategyError:
		return strict(candidates)
	case StrategyCustom:
		if r.Custom == nil {
			return value.Value{}, ErrNoCustomResolver
		}
		cp := make([]Candidate, len(candidates))
		copy(cp, candidates)
		return r.Custom(cp)
	default:
		return value.Value{}, fmt.Errorf("unknown conflict resolution %q", r.Strategy)
	}
}

// byPriority returns the highest priority value; the earliest declared wins ties.
func byPriority(candidates []Candidate) value.Value {
	best := 0
	for i := 1; i < len(candidates); i++ {
		if candidates[i].Priority > candidates[best].Priority {
			best = i
		}
	}
	return candidates[best].Value
}

// byVote groups deep-equal values and returns the largest group. Ties go to
// the group whose first member was declared earliest.
func byVote(candidates []Candidate) value.Value {
	counts := make(map[string]int, len(candidates))
	first := make(map[string]int, len(candidates))
	var order []string
	for i, c := range candidates {
		key := c.Value.CanonicalKey()
		if _, seen := first[key]; !seen {
			first[key] = i
			order = append(order, key)
		}
		counts[key]++
	}
	winner := order[0]
	for _, key := range order[1:] {
		if counts[key] > counts[winner] {
			winner = key
		}
	}
	return candidates[first[winner]].Value
}

func merge(candidates []Candidate) value.Value {
	vals := make([]value.Value, len(candidates))
	for i, c := range candidates {
		vals[i] = c.Value
	}
	merged, err := value.MergeRecords(vals...)
	if err != nil {
		return candidates[len(candidates)-1].Value
	}
	return merged
}

func strict(candidates []Candidate) (value.Value, error) {
	ref := candidates[0].Value
	for _, c := range candidates[1:] {
		if !value.Equal(ref, c.Value) {
			names := make([]string, len(candidates))
			for i, c := range candidates {
				names[i] = c.Name
			}
			return value.Value{}, &ConflictError{Names: names}
		}
	}
	return ref, nil
}
