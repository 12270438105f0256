package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"markin/internal/core"
	"markin/internal/sheets"

	_ "modernc.org/sqlite"
)

// Ensure interface conformance
var _ sheets.FetchLogStore = (*SQLiteRepository)(nil)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// RecordFetch implements sheets.FetchRecorder
func (r *SQLiteRepository) RecordFetch(ctx context.Context, rec core.FetchRecord) (int64, error) {
	if err := rec.Validate(); err != nil {
		return 0, fmt.Errorf("validation failed: %w", err)
	}

	row, err := r.queries.CreateFetchRecord(ctx, CreateFetchRecordParams{
		FetchedAt:    rec.FetchedAt.UTC(),
		Outcome:      string(rec.Outcome),
		DurationMs:   rec.Duration.Milliseconds(),
		Students:     rec.Counts.Students,
		Colleges:     rec.Counts.Colleges,
		Ngos:         rec.Counts.NGOs,
		Events:       rec.Counts.Events,
		MonthlyTotal: rec.MonthlyTotal,
		Categories:   int64(rec.Categories),
		RecentEvents: int64(rec.Events),
		Error:        rec.Error,
	})
	if err != nil {
		return 0, fmt.Errorf("create fetch record: %w", err)
	}

	slog.DebugContext(ctx, "Fetch record saved to SQLite",
		"id", row.ID,
		"outcome", row.Outcome,
		"duration_ms", row.DurationMs)

	return row.ID, nil
}

// GetFetch implements sheets.ExportQueue
func (r *SQLiteRepository) GetFetch(ctx context.Context, id int64) (core.FetchRecord, error) {
	row, err := r.queries.GetFetchRecord(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.FetchRecord{}, fmt.Errorf("fetch record %d: %w", id, core.ErrRecordNotFound)
	}
	if err != nil {
		return core.FetchRecord{}, fmt.Errorf("get fetch record %d: %w", id, err)
	}
	return toCoreRecord(row), nil
}

// RecentFetches implements sheets.FetchLister
func (r *SQLiteRepository) RecentFetches(ctx context.Context, limit int) ([]core.FetchRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := r.queries.ListRecentFetchRecords(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("list recent fetch records: %w", err)
	}
	return toCoreRecords(rows), nil
}

// PendingExports implements sheets.ExportQueue
func (r *SQLiteRepository) PendingExports(ctx context.Context, limit int) ([]core.FetchRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := r.queries.ListPendingExportRecords(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("list pending exports: %w", err)
	}
	return toCoreRecords(rows), nil
}

// MarkExported stamps every id in one transaction. Records already exported
// keep their original timestamp.
func (r *SQLiteRepository) MarkExported(ctx context.Context, ids []int64, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	qtx := r.queries.WithTx(tx)
	var updated int64
	for _, id := range ids {
		n, err := qtx.MarkFetchRecordExported(ctx, MarkFetchRecordExportedParams{
			ExportedAt: at.UTC(),
			ID:         id,
		})
		if err != nil {
			return fmt.Errorf("mark fetch record %d exported: %w", id, err)
		}
		updated += n
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	slog.InfoContext(ctx, "Fetch records marked as exported",
		"requested", len(ids),
		"updated", updated)
	return nil
}

// PendingExportCount returns how many records still wait for export.
func (r *SQLiteRepository) PendingExportCount(ctx context.Context) (int64, error) {
	n, err := r.queries.CountPendingExportRecords(ctx)
	if err != nil {
		return 0, fmt.Errorf("count pending exports: %w", err)
	}
	return n, nil
}

func toCoreRecords(rows []FetchRecord) []core.FetchRecord {
	out := make([]core.FetchRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, toCoreRecord(row))
	}
	return out
}

func toCoreRecord(row FetchRecord) core.FetchRecord {
	rec := core.FetchRecord{
		ID:        row.ID,
		FetchedAt: row.FetchedAt.UTC(),
		Outcome:   core.FetchOutcome(row.Outcome),
		Duration:  time.Duration(row.DurationMs) * time.Millisecond,
		Counts: core.CountTotals{
			Students: row.Students,
			Colleges: row.Colleges,
			NGOs:     row.Ngos,
			Events:   row.Events,
		},
		MonthlyTotal: row.MonthlyTotal,
		Categories:   int(row.Categories),
		Events:       int(row.RecentEvents),
		Error:        row.Error,
	}
	if row.ExportedAt.Valid {
		at := row.ExportedAt.Time.UTC()
		rec.ExportedAt = &at
	}
	return rec
}
