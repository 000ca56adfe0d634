package validator

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/rollcall/internal/domain"
)

var fixedNow = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }

func validRecord(id string) domain.RawRecord {
	return domain.RawRecord{
		"student_id":    id,
		"first_name":    "Asha",
		"last_name":     "Rao",
		"email":         "asha.rao@school.edu",
		"phone":         "+919000000001",
		"date_of_birth": "2010-05-15",
		"grade":         "10",
		"section":       "A",
		"roll_number":   "12",
		"address":       "1 School Street",
		"city":          "Mumbai",
		"state":         "Maharashtra",
		"postal_code":   "400001",
	}
}

func TestStudentValidatorAcceptsValidRecord(t *testing.T) {
	v := NewStudentValidator(fixedNow)

	rec, err := v.Validate(validRecord("STU001"))
	require.NoError(t, err)

	assert.Equal(t, "STU001", rec.StudentID)
	assert.Equal(t, "India", rec.Country, "country defaults when omitted")
	require.NotNil(t, rec.DateOfBirth)
	assert.Equal(t, 2010, rec.DateOfBirth.Year())
}

func TestStudentValidatorNormalizes(t *testing.T) {
	v := NewStudentValidator(fixedNow)

	raw := validRecord("  STU002 ")
	raw["grade"] = float64(7)
	raw["roll_number"] = float64(3)
	delete(raw, "date_of_birth")

	rec, err := v.Validate(raw)
	require.NoError(t, err)
	assert.Equal(t, "STU002", rec.StudentID)
	assert.Equal(t, "7", rec.Grade)
	assert.Equal(t, "3", rec.RollNumber)
	assert.Nil(t, rec.DateOfBirth)
}

func TestStudentValidatorRejections(t *testing.T) {
	v := NewStudentValidator(fixedNow)

	tests := []struct {
		name   string
		mutate func(r domain.RawRecord)
		field  string
		reason string
	}{
		{
			name:   "missing required field",
			mutate: func(r domain.RawRecord) { delete(r, "first_name") },
			field:  "first_name",
			reason: "This field is required.",
		},
		{
			name:   "blank required field",
			mutate: func(r domain.RawRecord) { r["last_name"] = "   " },
			field:  "last_name",
			reason: "This field is required.",
		},
		{
			name:   "student id too long",
			mutate: func(r domain.RawRecord) { r["student_id"] = fmt.Sprintf("%051d", 1) },
			field:  "student_id",
			reason: "Ensure this field has no more than 50 characters.",
		},
		{
			name:   "bad email",
			mutate: func(r domain.RawRecord) { r["email"] = "not-an-email" },
			field:  "email",
			reason: "Enter a valid email address.",
		},
		{
			name:   "unknown grade",
			mutate: func(r domain.RawRecord) { r["grade"] = "13" },
			field:  "grade",
		},
		{
			name:   "future birth date",
			mutate: func(r domain.RawRecord) { r["date_of_birth"] = "2030-01-01" },
			field:  "date_of_birth",
			reason: "Date of birth cannot be in the future",
		},
		{
			name:   "malformed birth date",
			mutate: func(r domain.RawRecord) { r["date_of_birth"] = "15/05/2010" },
			field:  "date_of_birth",
		},
		{
			name:   "nested value",
			mutate: func(r domain.RawRecord) { r["city"] = map[string]interface{}{"name": "Pune"} },
			field:  "city",
			reason: "Not a valid string.",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			raw := validRecord("STU100")
			tc.mutate(raw)

			rec, err := v.Validate(raw)
			require.Error(t, err)
			assert.Nil(t, rec)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			require.Contains(t, verr.Fields, tc.field)
			if tc.reason != "" {
				assert.Contains(t, verr.Fields[tc.field], tc.reason)
			}
		})
	}
}

func TestStudentValidatorReportsEveryBadField(t *testing.T) {
	v := NewStudentValidator(fixedNow)

	_, err := v.Validate(domain.RawRecord{"student_id": "INVALID", "invalid": "data"})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))

	for _, f := range []string{"first_name", "last_name", "email", "grade"} {
		assert.Contains(t, verr.Fields, f)
	}
	assert.NotContains(t, verr.Fields, "invalid")
	assert.Contains(t, verr.Error(), "email: This field is required.")
}

func TestStudentValidatorConcurrentUse(t *testing.T) {
	v := NewStudentValidator(fixedNow)

	var wg sync.WaitGroup
	errs := make(chan error, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := v.Validate(validRecord(fmt.Sprintf("STU%03d", i))); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("unexpected error: %v", err)
	}
}
