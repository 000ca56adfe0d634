package manifest

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/timmy/rollcall/internal/domain"
	"github.com/timmy/rollcall/internal/logger"
	"github.com/timmy/rollcall/internal/source"
)

// maxLineSize bounds a single JSON line.
const maxLineSize = 1 << 20

// Adapter implements the Source interface for a JSON Lines file with one student record per line.
type Adapter struct {
	path    string
	items   []domain.RawRecord
	skipped int
	loaded  bool
}

// NewAdapter creates a new manifest adapter.
// Parameters:
//   - path: path to the .jsonl file.
//
// Returns:
//   - *Adapter: initialized manifest adapter.
func NewAdapter(path string) *Adapter {
	return &Adapter{path: path}
}

// GetSourceID returns the unique identifier for this source.
// Parameters: none.
// Returns:
//   - string: source identifier with "manifest:" prefix.
func (a *Adapter) GetSourceID() string {
	return "manifest:" + filepath.Base(a.path)
}

// Skipped returns how many lines were not JSON objects.
func (a *Adapter) Skipped() int {
	return a.skipped
}

// FetchBatch fetches a batch of records from the manifest file.
// Parameters:
//   - ctx: context for cancellation and deadlines (used for logging only).
//   - cursor: pagination cursor as an index string.
//   - limit: maximum number of records to fetch.
//
// Returns:
//   - []domain.RawRecord: batch of records in file order.
//   - string: next cursor or empty if no more records.
//   - error: non-nil if loading fails.
func (a *Adapter) FetchBatch(ctx context.Context, cursor string, limit int) ([]domain.RawRecord, string, error) {
	// Load all records on first call
	if !a.loaded {
		if err := a.loadItems(ctx); err != nil {
			return nil, "", fmt.Errorf("failed to load manifest records: %w", err)
		}
		a.loaded = true
	}
	return source.Page(a.items, cursor, limit)
}

// loadItems loads all records from the manifest file
func (a *Adapter) loadItems(ctx context.Context) error {
	file, err := os.Open(a.path)
	if err != nil {
		return fmt.Errorf("failed to open manifest: %w", err)
	}
	defer file.Close()

	a.items = []domain.RawRecord{}

	// Read line by line (JSON Lines format)
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		var record domain.RawRecord
		if err := json.Unmarshal([]byte(text), &record); err != nil || record == nil {
			a.skipped++
			logger.CtxWarn(ctx, "Skipping malformed manifest line %d", line)
			continue
		}
		a.items = append(a.items, record)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading manifest: %w", err)
	}
	return nil
}
