// Package grading implements the weighted grade computation pipeline:
// task scores are aggregated per category, categories are combined into a
// quarterly grade and quarters are averaged into an overall subject grade.
//
// Every function in this package is a pure computation over an immutable
// snapshot. Missing data never produces an error; it yields Undefined, which
// is distinct from a zero grade.
package grading

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
)

// Score is an optional grade value. The zero value is Undefined.
type Score struct {
	value   float64
	defined bool
}

// Undefined marks the absence of graded data.
var Undefined = Score{}

// Defined wraps a known value.
func Defined(v float64) Score {
	return Score{value: v, defined: true}
}

// IsDefined reports whether the score carries a value.
func (s Score) IsDefined() bool { return s.defined }

// Value returns the wrapped value and whether it is defined.
func (s Score) Value() (float64, bool) { return s.value, s.defined }

// Or returns the value or fallback when undefined.
func (s Score) Or(fallback float64) float64 {
	if !s.defined {
		return fallback
	}
	return s.value
}

// Ptr converts the score into a nullable float for persistence.
func (s Score) Ptr() *float64 {
	if !s.defined {
		return nil
	}
	v := s.value
	return &v
}

// FromPtr builds a score from a nullable float.
func FromPtr(v *float64) Score {
	if v == nil {
		return Undefined
	}
	return Defined(*v)
}

// Round returns the score rounded half-to-even at the given number of decimals.
func (s Score) Round(places int) Score {
	if !s.defined {
		return s
	}
	pow := math.Pow(10, float64(places))
	return Defined(math.RoundToEven(s.value*pow) / pow)
}

func (s Score) String() string {
	if !s.defined {
		return "undefined"
	}
	return strconv.FormatFloat(s.value, 'f', -1, 64)
}

// MarshalJSON encodes undefined scores as null.
func (s Score) MarshalJSON() ([]byte, error) {
	if !s.defined {
		return []byte("null"), nil
	}
	return json.Marshal(s.value)
}

// UnmarshalJSON accepts a number or null.
func (s *Score) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*s = Undefined
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*s = Defined(v)
	return nil
}
