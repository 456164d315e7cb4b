package value

import (
	"errors"
	"fmt"
	"strings"
)

// Shape is the coarse structure of a value, used for advisory compatibility
// checks between graph nodes.
type Shape string

const (
	ShapeAny    Shape = "any"
	ShapeScalar Shape = "scalar"
	ShapeList   Shape = "list"
	ShapeRecord Shape = "record"
)

// ErrNotRecord is returned when a merge meets a non-record value.
var ErrNotRecord = errors.New("value is not a record")

// ParseShape parses a shape name. The empty string means ShapeAny.
func ParseShape(s string) (Shape, error) {
	switch Shape(strings.ToLower(strings.TrimSpace(s))) {
	case "", ShapeAny:
		return ShapeAny, nil
	case ShapeScalar:
		return ShapeScalar, nil
	case ShapeList:
		return ShapeList, nil
	case ShapeRecord:
		return ShapeRecord, nil
	default:
		return "", fmt.Errorf("unknown shape %q (expected any|scalar|list|record)", s)
	}
}

// ShapeOf reports the shape of a concrete value.
func ShapeOf(v Value) Shape {
	switch v.kind {
	case KindList:
		return ShapeList
	case KindRecord:
		return ShapeRecord
	default:
		return ShapeScalar
	}
}

// Accepts reports whether a consumer expecting s can take a value of shape produced.
func (s Shape) Accepts(produced Shape) bool {
	if s == "" || s == ShapeAny || produced == "" || produced == ShapeAny {
		return true
	}
	return s == produced
}

// MergeRecords shallow-merges records left to right; later fields overwrite
// earlier ones.
func MergeRecords(vals ...Value) (Value, error) {
	out := make(map[string]Value)
	for i, v := range vals {
		if v.kind != KindRecord {
			return Value{}, fmt.Errorf("merge operand %d (%s): %w", i, v.kind, ErrNotRecord)
		}
		for k, f := range v.rec {
			out[k] = f
		}
	}
	return Value{kind: KindRecord, rec: out}, nil
}
