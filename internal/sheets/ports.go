package sheets

import (
	"context"
	"time"

	"markin/internal/core"
)

// FetchRecorder persists the outcome of one upstream stats fetch.
type FetchRecorder interface {
	// RecordFetch stores r and returns the assigned record id.
	RecordFetch(ctx context.Context, r core.FetchRecord) (int64, error)
}

// FetchLister lists recorded fetches, newest first.
type FetchLister interface {
	RecentFetches(ctx context.Context, limit int) ([]core.FetchRecord, error)
}

// ExportQueue exposes the records not yet exported to the spreadsheet.
type ExportQueue interface {
	GetFetch(ctx context.Context, id int64) (core.FetchRecord, error)
	// PendingExports returns up to limit un-exported records, oldest first.
	PendingExports(ctx context.Context, limit int) ([]core.FetchRecord, error)
	MarkExported(ctx context.Context, ids []int64, at time.Time) error
}

// FetchLogStore is the full fetch log backend.
type FetchLogStore interface {
	FetchRecorder
	FetchLister
	ExportQueue
	Close() error
}

// RowAppender appends fetch records as spreadsheet rows and returns the
// updated range reference.
type RowAppender interface {
	AppendFetchRecords(ctx context.Context, records []core.FetchRecord) (string, error)
}
