package types

import "fmt"

// ValidationError represents a malformed field with details. It lives
// here rather than in the root package so domain packages can return it
// without an import cycle.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("telco: validation failed for %s: %s", e.Field, e.Message)
}
