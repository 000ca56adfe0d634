package validator

import (
	"fmt"
	"sort"

	"github.com/timmy/rollcall/internal/domain"
)

// DefaultMaxBatch is the largest accepted submission.
const DefaultMaxBatch = 1000

// CheckBatch performs the structural checks on a submission: the list must be non-empty,
// no longer than maxBatch, and free of duplicate student_id values.
// Per-record field problems are not checked here.
func CheckBatch(records []domain.RawRecord, maxBatch int) error {
	if maxBatch <= 0 {
		maxBatch = DefaultMaxBatch
	}

	if len(records) == 0 {
		return &SubmissionError{
			Message: "Records list cannot be empty",
			Fields:  map[string][]string{"records": {"Records list cannot be empty"}},
		}
	}
	if len(records) > maxBatch {
		msg := fmt.Sprintf("Ensure this field has no more than %d elements.", maxBatch)
		return &SubmissionError{
			Message: msg,
			Fields:  map[string][]string{"records": {msg}},
		}
	}

	seen := make(map[string]int, len(records))
	var dupes []string
	for i, rec := range records {
		id := rec.StudentID()
		if id == "" {
			continue
		}
		if first, ok := seen[id]; ok {
			dupes = append(dupes, fmt.Sprintf("student_id %q at indexes %d and %d", id, first, i))
			continue
		}
		seen[id] = i
	}
	if len(dupes) > 0 {
		sort.Strings(dupes)
		return &SubmissionError{
			Message: "Duplicate student_id found in the batch",
			Fields:  map[string][]string{"records": append([]string{"Duplicate student_id found in the batch"}, dupes...)},
		}
	}

	return nil
}
