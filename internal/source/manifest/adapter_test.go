package manifest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "students.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFetchBatchReadsRecordsInOrder(t *testing.T) {
	path := writeManifest(t, `{"student_id":"STU001","first_name":"Ann"}
{"student_id":"STU002","first_name":"Ben"}

not json
null
[1,2]
{"student_id":"STU003","first_name":"Cat"}
`)
	a := NewAdapter(path)
	assert.Equal(t, "manifest:students.jsonl", a.GetSourceID())

	batch, next, err := a.FetchBatch(context.Background(), "", 2)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, "STU001", batch[0].StudentID())
	assert.Equal(t, "STU002", batch[1].StudentID())
	assert.Equal(t, "2", next)

	batch, next, err = a.FetchBatch(context.Background(), next, 2)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, "STU003", batch[0].StudentID())
	assert.Empty(t, next)

	assert.Equal(t, 3, a.Skipped())
}

func TestFetchBatchMissingFile(t *testing.T) {
	a := NewAdapter(filepath.Join(t.TempDir(), "missing.jsonl"))

	_, _, err := a.FetchBatch(context.Background(), "", 10)
	assert.Error(t, err)
}
