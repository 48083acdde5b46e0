package frontier

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSeed is returned when the seed is not an absolute http(s) URL.
	ErrInvalidSeed = errors.New("invalid seed URL: must be an absolute http or https URL")

	// ErrNotInFlight is returned when marking an entry that is not being fetched.
	ErrNotInFlight = errors.New("entry is not in flight")
)

// FetchConditionError reports that an admission predicate panicked.
// The URL it was evaluating is treated as rejected.
type FetchConditionError struct {
	// URL is the candidate that was being evaluated.
	URL string

	// Value is the recovered panic value.
	Value any
}

// Error implements the error interface.
func (e *FetchConditionError) Error() string {
	return fmt.Sprintf("fetch condition panicked for %s: %v", e.URL, e.Value)
}
