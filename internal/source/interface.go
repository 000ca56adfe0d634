package source

import (
	"context"
	"fmt"
	"strconv"

	"github.com/timmy/rollcall/internal/domain"
)

// Source defines the interface for student record sources fed to the ingest API.
type Source interface {
	// GetSourceID returns the unique identifier for this source.
	// Parameters: none.
	// Returns:
	//   - string: stable source identifier.
	GetSourceID() string

	// FetchBatch fetches a batch of records starting from the given cursor.
	// Parameters:
	//   - ctx: context for cancellation and deadlines.
	//   - cursor: pagination cursor or empty for first page.
	//   - limit: maximum number of records to fetch.
	// Returns:
	//   - records: batch of raw records.
	//   - nextCursor: cursor for the next batch or empty if done.
	//   - err: non-nil if fetching fails.
	FetchBatch(ctx context.Context, cursor string, limit int) (records []domain.RawRecord, nextCursor string, err error)
}

// Page slices items by an index cursor the way FetchBatch implementations report it.
func Page(items []domain.RawRecord, cursor string, limit int) ([]domain.RawRecord, string, error) {
	if limit <= 0 {
		return nil, "", fmt.Errorf("invalid limit %d", limit)
	}

	startIndex := 0
	if cursor != "" {
		var err error
		startIndex, err = strconv.Atoi(cursor)
		if err != nil || startIndex < 0 {
			return nil, "", fmt.Errorf("invalid cursor %q", cursor)
		}
	}

	if startIndex >= len(items) {
		return []domain.RawRecord{}, "", nil
	}

	endIndex := startIndex + limit
	if endIndex > len(items) {
		endIndex = len(items)
	}

	nextCursor := ""
	if endIndex < len(items) {
		nextCursor = strconv.Itoa(endIndex)
	}
	return items[startIndex:endIndex], nextCursor, nil
}
