package model

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Priority is the optional sitemap <priority> of a URL.
//
// Design decision: We carry an explicit Valid flag instead of treating the
// zero value as "absent". 0.0 is a legitimate sitemap priority and must be
// serialized when it was set on purpose.
type Priority struct {
	// Value is the priority in the range [0, 1].
	Value float64

	// Valid reports whether a priority was set at all.
	Valid bool
}

// NewPriority returns a set priority with the given value.
// The value is not clamped; use Clamp or Validate before serialization.
func NewPriority(v float64) Priority {
	return Priority{Value: v, Valid: true}
}

// Validate returns an error when a set priority is NaN or outside [0, 1].
func (p Priority) Validate() error {
	if !p.Valid {
		return nil
	}
	if math.IsNaN(p.Value) || p.Value < 0 || p.Value > 1 {
		return fmt.Errorf("priority %v out of range [0, 1]", p.Value)
	}
	return nil
}

// Clamp returns p with its value forced into [0, 1].
// An absent priority is returned unchanged and NaN becomes absent.
func (p Priority) Clamp() Priority {
	if !p.Valid {
		return p
	}
	switch {
	case math.IsNaN(p.Value):
		return Priority{}
	case p.Value < 0:
		p.Value = 0
	case p.Value > 1:
		p.Value = 1
	}
	return p
}

// String formats a set priority with the minimal number of digits
// ("0", "0.5", "1"). An absent priority formats as the empty string.
func (p Priority) String() string {
	if !p.Valid {
		return ""
	}
	return strconv.FormatFloat(p.Value, 'f', -1, 64)
}

// ParsePriority parses a priority from user input.
// An empty string yields an absent priority.
func ParsePriority(s string) (Priority, error) {
	if s == "" {
		return Priority{}, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Priority{}, fmt.Errorf("invalid priority %q: %w", s, err)
	}
	p := NewPriority(v)
	if err := p.Validate(); err != nil {
		return Priority{}, err
	}
	return p, nil
}

// MarshalJSON encodes an absent priority as null and a set one as a number.
func (p Priority) MarshalJSON() ([]byte, error) {
	if !p.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(p.Value)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (p *Priority) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*p = Priority{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*p = NewPriority(v)
	return nil
}
