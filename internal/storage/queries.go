package storage

import (
	"context"
	"database/sql"
	"time"
)

// FetchRecord is one row of fetch_records.
type FetchRecord struct {
	ID           int64
	FetchedAt    time.Time
	Outcome      string
	DurationMs   int64
	Students     int64
	Colleges     int64
	Ngos         int64
	Events       int64
	MonthlyTotal int64
	Categories   int64
	RecentEvents int64
	Error        string
	ExportedAt   sql.NullTime
}

const fetchRecordColumns = `id, fetched_at, outcome, duration_ms, students, colleges, ngos, events,
       monthly_total, categories, recent_events, error, exported_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanFetchRecord(row rowScanner) (FetchRecord, error) {
	var i FetchRecord
	err := row.Scan(
		&i.ID,
		&i.FetchedAt,
		&i.Outcome,
		&i.DurationMs,
		&i.Students,
		&i.Colleges,
		&i.Ngos,
		&i.Events,
		&i.MonthlyTotal,
		&i.Categories,
		&i.RecentEvents,
		&i.Error,
		&i.ExportedAt,
	)
	return i, err
}

const createFetchRecord = `-- name: CreateFetchRecord :one
INSERT INTO fetch_records (
    fetched_at, outcome, duration_ms, students, colleges, ngos, events,
    monthly_total, categories, recent_events, error
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING ` + fetchRecordColumns

type CreateFetchRecordParams struct {
	FetchedAt    time.Time
	Outcome      string
	DurationMs   int64
	Students     int64
	Colleges     int64
	Ngos         int64
	Events       int64
	MonthlyTotal int64
	Categories   int64
	RecentEvents int64
	Error        string
}

func (q *Queries) CreateFetchRecord(ctx context.Context, arg CreateFetchRecordParams) (FetchRecord, error) {
	row := q.db.QueryRowContext(ctx, createFetchRecord,
		arg.FetchedAt,
		arg.Outcome,
		arg.DurationMs,
		arg.Students,
		arg.Colleges,
		arg.Ngos,
		arg.Events,
		arg.MonthlyTotal,
		arg.Categories,
		arg.RecentEvents,
		arg.Error,
	)
	return scanFetchRecord(row)
}

const getFetchRecord = `-- name: GetFetchRecord :one
SELECT ` + fetchRecordColumns + `
FROM fetch_records
WHERE id = ?`

func (q *Queries) GetFetchRecord(ctx context.Context, id int64) (FetchRecord, error) {
	row := q.db.QueryRowContext(ctx, getFetchRecord, id)
	return scanFetchRecord(row)
}

const listRecentFetchRecords = `-- name: ListRecentFetchRecords :many
SELECT ` + fetchRecordColumns + `
FROM fetch_records
ORDER BY id DESC
LIMIT ?`

func (q *Queries) ListRecentFetchRecords(ctx context.Context, limit int64) ([]FetchRecord, error) {
	return q.listFetchRecords(ctx, listRecentFetchRecords, limit)
}

const listPendingExportRecords = `-- name: ListPendingExportRecords :many
SELECT ` + fetchRecordColumns + `
FROM fetch_records
WHERE exported_at IS NULL
ORDER BY id ASC
LIMIT ?`

func (q *Queries) ListPendingExportRecords(ctx context.Context, limit int64) ([]FetchRecord, error) {
	return q.listFetchRecords(ctx, listPendingExportRecords, limit)
}

func (q *Queries) listFetchRecords(ctx context.Context, query string, limit int64) ([]FetchRecord, error) {
	rows, err := q.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []FetchRecord
	for rows.Next() {
		i, err := scanFetchRecord(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const markFetchRecordExported = `-- name: MarkFetchRecordExported :execrows
UPDATE fetch_records
SET exported_at = ?
WHERE id = ? AND exported_at IS NULL`

type MarkFetchRecordExportedParams struct {
	ExportedAt time.Time
	ID         int64
}

func (q *Queries) MarkFetchRecordExported(ctx context.Context, arg MarkFetchRecordExportedParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, markFetchRecordExported, arg.ExportedAt, arg.ID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const countPendingExportRecords = `-- name: CountPendingExportRecords :one
SELECT COUNT(*) FROM fetch_records WHERE exported_at IS NULL`

func (q *Queries) CountPendingExportRecords(ctx context.Context) (int64, error) {
	row := q.db.QueryRowContext(ctx, countPendingExportRecords)
	var count int64
	err := row.Scan(&count)
	return count, err
}
