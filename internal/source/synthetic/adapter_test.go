package synthetic

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/rollcall/internal/validator"
)

func TestGenerate(t *testing.T) {
	records := Generate(30, 10)
	require.Len(t, records, 30)
	assert.Equal(t, "STU000001", records[0].StudentID())
	assert.Equal(t, "STU000030", records[29].StudentID())
	require.NoError(t, validator.CheckBatch(records, 1000), "ids are unique")

	invalid := 0
	for _, r := range records {
		if !strings.Contains(r["email"].(string), "@") {
			invalid++
		}
	}
	assert.Equal(t, 3, invalid)
}

func TestGeneratedRecordsPassValidation(t *testing.T) {
	v := validator.NewStudentValidator(func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) })

	for i, r := range Generate(24, 0) {
		_, err := v.Validate(r)
		assert.NoError(t, err, "record %d", i)
	}
}

func TestAdapterPages(t *testing.T) {
	a := NewAdapter(1500, 0)
	assert.Equal(t, SourceID, a.GetSourceID())

	first, next, err := a.FetchBatch(context.Background(), "", 1000)
	require.NoError(t, err)
	assert.Len(t, first, 1000)
	assert.Equal(t, "1000", next)

	rest, next, err := a.FetchBatch(context.Background(), next, 1000)
	require.NoError(t, err)
	assert.Len(t, rest, 500)
	assert.Empty(t, next)
}
