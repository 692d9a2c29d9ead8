package schema

import (
	"fmt"
	"strings"
)

// FieldError is a single validation failure.
type FieldError struct {
	Field  string
	Reason string
}

func (e FieldError) String() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("field %q: %s", e.Field, e.Reason)
}

// ValidationError reports why a payload does not match a schema.
// It is returned for malformed JSON as well as for shape mismatches, so
// callers can tell a bad model reply apart from a transport failure.
type ValidationError struct {
	Schema string
	Raw    string
	Issues []FieldError
}

func (e *ValidationError) Error() string {
	name := e.Schema
	if name == "" {
		name = "payload"
	}
	if len(e.Issues) == 1 {
		return fmt.Sprintf("%s validation failed: %s", name, e.Issues[0])
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s validation failed: %d issues", name, len(e.Issues))
	for i, is := range e.Issues {
		fmt.Fprintf(&b, "\n  %d. %s", i+1, is)
	}
	return b.String()
}

func (e *ValidationError) add(field, format string, args ...interface{}) {
	e.Issues = append(e.Issues, FieldError{Field: field, Reason: fmt.Sprintf(format, args...)})
}
