package services

import (
	"context"
	"time"

	"markin/internal/core"
	applog "markin/internal/log"
	"markin/internal/stats"
)

const recordTimeout = 5 * time.Second

// Recorder persists one fetch record. *FetchLogService implements it.
type Recorder interface {
	Record(ctx context.Context, r core.FetchRecord) (int64, error)
}

// RecordingFetcher wraps a stats.Fetcher and records the outcome of every
// fetch it passes through. The snapshot and error reach the caller
// unchanged; recording problems are only logged.
type RecordingFetcher struct {
	next     stats.Fetcher
	recorder Recorder
	log      *applog.StructuredLogger
	logger   *applog.Logger
	now      func() time.Time
}

var _ stats.Fetcher = (*RecordingFetcher)(nil)

func NewRecordingFetcher(next stats.Fetcher, recorder Recorder, logger *applog.Logger) *RecordingFetcher {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &RecordingFetcher{
		next:     next,
		recorder: recorder,
		log:      applog.NewStructuredLogger(logger),
		logger:   logger.WithComponent(applog.ComponentFetchLog),
		now:      time.Now,
	}
}

func (f *RecordingFetcher) FetchStats(ctx context.Context) (core.StatsSnapshot, error) {
	start := f.now()
	snap, err := f.next.FetchStats(ctx)
	elapsed := f.now().Sub(start)

	rec := newFetchRecord(start, elapsed, snap, err)
	f.log.LogFetch(ctx, f.endpoint(), string(rec.Outcome), elapsed.Milliseconds(), err)

	if f.recorder != nil {
		// The page view may already be gone; the record is still wanted.
		recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
		if _, rerr := f.recorder.Record(recCtx, rec); rerr != nil {
			f.logger.WarnContext(ctx, "Failed to record stats fetch",
				applog.FieldOperation, applog.OpRecord,
				applog.FieldOutcome, string(rec.Outcome),
				applog.FieldError, rerr.Error())
		}
		cancel()
	}

	return snap, err
}

func (f *RecordingFetcher) endpoint() string {
	if e, ok := f.next.(interface{ Endpoint() string }); ok {
		return e.Endpoint()
	}
	return ""
}

func newFetchRecord(at time.Time, elapsed time.Duration, snap core.StatsSnapshot, err error) core.FetchRecord {
	rec := core.FetchRecord{
		FetchedAt: at.UTC(),
		Outcome:   stats.OutcomeOf(err),
		Duration:  elapsed,
	}
	if err != nil {
		rec.Error = err.Error()
		return rec
	}

	s := stats.ApplyDefaults(snap)
	rec.Counts = s.Counts
	for _, v := range s.Monthly {
		rec.MonthlyTotal += v
	}
	rec.Categories = len(s.TopCategories)
	rec.Events = len(s.RecentEvents)
	return rec
}
