package validator

import (
	"sort"
	"strings"
)

// ValidationError describes why a single record was rejected, keyed by field name.
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) add(field, reason string) {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], reason)
}

func (e *ValidationError) empty() bool {
	return len(e.Fields) == 0
}

// Error renders the field errors in a stable order.
func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+strings.Join(e.Fields[k], "; "))
	}
	return "invalid record: " + strings.Join(parts, ", ")
}

// SubmissionError is a structural problem with a whole batch. No job is created for it.
type SubmissionError struct {
	Message string
	Fields  map[string][]string
}

func (e *SubmissionError) Error() string {
	return e.Message
}
