package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"markin/internal/core"
	"markin/internal/sheets"
)

var (
	_ sheets.FetchLogStore = (*Store)(nil)
	_ sheets.RowAppender   = (*Sheet)(nil)
)

// Store keeps the fetch log in process memory. Records are lost on restart.
type Store struct {
	mu     sync.Mutex
	nextID int64
	items  []core.FetchRecord
	// limit caps the number of retained records; the oldest are evicted first.
	limit int
}

// New returns an empty store retaining at most limit records. A limit of 0
// or less keeps everything.
func New(limit int) *Store {
	return &Store{limit: limit}
}

// RecordFetch stores r and returns its id.
func (s *Store) RecordFetch(_ context.Context, r core.FetchRecord) (int64, error) {
	if err := r.Validate(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	r.ID = s.nextID
	r.ExportedAt = nil
	s.items = append(s.items, r)
	if s.limit > 0 && len(s.items) > s.limit {
		s.items = slices.Delete(s.items, 0, len(s.items)-s.limit)
	}
	return r.ID, nil
}

func (s *Store) GetFetch(_ context.Context, id int64) (core.FetchRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.items {
		if r.ID == id {
			return clone(r), nil
		}
	}
	return core.FetchRecord{}, fmt.Errorf("fetch record %d: %w", id, core.ErrRecordNotFound)
}

// RecentFetches returns up to limit records, newest first.
func (s *Store) RecentFetches(_ context.Context, limit int) ([]core.FetchRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.FetchRecord
	for i := len(s.items) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, clone(s.items[i]))
	}
	return out, nil
}

// PendingExports returns up to limit un-exported records, oldest first.
func (s *Store) PendingExports(_ context.Context, limit int) ([]core.FetchRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.FetchRecord
	for _, r := range s.items {
		if len(out) >= limit {
			break
		}
		if r.ExportedAt == nil {
			out = append(out, clone(r))
		}
	}
	return out, nil
}

func (s *Store) MarkExported(_ context.Context, ids []int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ExportedAt == nil && slices.Contains(ids, s.items[i].ID) {
			stamp := at
			s.items[i].ExportedAt = &stamp
		}
	}
	return nil
}

func (s *Store) Close() error { return nil }

// Len reports the number of retained records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func clone(r core.FetchRecord) core.FetchRecord {
	if r.ExportedAt != nil {
		at := *r.ExportedAt
		r.ExportedAt = &at
	}
	return r
}

// Sheet is an in-memory RowAppender used when no spreadsheet is configured.
type Sheet struct {
	mu   sync.Mutex
	rows [][]any
}

func NewSheet() *Sheet {
	return &Sheet{}
}

func (s *Sheet) AppendFetchRecords(_ context.Context, records []core.FetchRecord) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	first := len(s.rows) + 1
	for _, r := range records {
		s.rows = append(s.rows, sheets.FetchRecordRow(r))
	}
	return fmt.Sprintf("mem:%d-%d", first, len(s.rows)), nil
}

// Rows returns a copy of the appended rows.
func (s *Sheet) Rows() [][]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.rows)
}
