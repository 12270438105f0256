package sheets

import (
	"time"

	"markin/internal/core"
)

// FetchRecordHeader names the exported columns in order.
var FetchRecordHeader = []any{
	"fetched_at", "outcome", "students", "colleges", "ngos", "events",
	"monthly_total", "categories", "recent_events", "error",
}

// FetchRecordRow flattens r into one spreadsheet row matching FetchRecordHeader.
func FetchRecordRow(r core.FetchRecord) []any {
	return []any{
		r.FetchedAt.UTC().Format(time.RFC3339),
		string(r.Outcome),
		r.Counts.Students,
		r.Counts.Colleges,
		r.Counts.NGOs,
		r.Counts.Events,
		r.MonthlyTotal,
		r.Categories,
		r.Events,
		r.Error,
	}
}
