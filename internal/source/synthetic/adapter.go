package synthetic

import (
	"context"
	"fmt"

	"github.com/timmy/rollcall/internal/domain"
	"github.com/timmy/rollcall/internal/source"
)

const SourceID = "synthetic"

var sections = []string{"A", "B", "C"}

// Adapter generates well-formed student records for load and smoke tests.
type Adapter struct {
	items []domain.RawRecord
}

// NewAdapter creates a generator for n records with ids STU000001.. .
// When invalidEvery > 0, every invalidEvery-th record gets a malformed email.
func NewAdapter(n, invalidEvery int) *Adapter {
	return &Adapter{items: Generate(n, invalidEvery)}
}

// GetSourceID returns the unique identifier for this source
func (a *Adapter) GetSourceID() string {
	return SourceID
}

// FetchBatch returns the next page of generated records
func (a *Adapter) FetchBatch(ctx context.Context, cursor string, limit int) ([]domain.RawRecord, string, error) {
	return source.Page(a.items, cursor, limit)
}

// Generate builds n student records. See NewAdapter.
func Generate(n, invalidEvery int) []domain.RawRecord {
	records := make([]domain.RawRecord, 0, n)
	for i := 1; i <= n; i++ {
		email := fmt.Sprintf("student%d@school.edu", i)
		if invalidEvery > 0 && i%invalidEvery == 0 {
			email = fmt.Sprintf("student%d-at-school", i)
		}
		records = append(records, domain.RawRecord{
			"student_id":    fmt.Sprintf("STU%06d", i),
			"first_name":    fmt.Sprintf("Student%d", i),
			"last_name":     fmt.Sprintf("LastName%d", i),
			"email":         email,
			"phone":         fmt.Sprintf("+91%d", 9000000000+i),
			"date_of_birth": "2010-05-15",
			"grade":         fmt.Sprint(i%12 + 1),
			"section":       sections[i%len(sections)],
			"roll_number":   fmt.Sprint(i%100 + 1),
			"address":       fmt.Sprintf("%d School Street, Block %d", i, i%10),
			"city":          "Mumbai",
			"state":         "Maharashtra",
			"postal_code":   "400001",
			"country":       "India",
		})
	}
	return records
}
