package services

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"markin/internal/core"
	applog "markin/internal/log"
	"markin/internal/sheets/memory"
	"markin/internal/stats"
)

func quietLogger() *applog.Logger {
	return applog.New(applog.Config{Output: &bytes.Buffer{}})
}

type stubFetcher struct {
	snap core.StatsSnapshot
	err  error
}

func (s stubFetcher) FetchStats(context.Context) (core.StatsSnapshot, error) {
	return s.snap, s.err
}

type stubPublisher struct {
	mu        sync.Mutex
	published []int64
	err       error
	closed    bool
}

func (p *stubPublisher) PublishFetchRecorded(_ context.Context, id int64, _ core.FetchOutcome) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, id)
	return p.err
}

func (p *stubPublisher) Close() error {
	p.closed = true
	return nil
}

type ctxCheckingRecorder struct {
	records []core.FetchRecord
	ctxErr  error
}

func (r *ctxCheckingRecorder) Record(ctx context.Context, rec core.FetchRecord) (int64, error) {
	r.ctxErr = ctx.Err()
	r.records = append(r.records, rec)
	return int64(len(r.records)), nil
}

func TestFetchLogService_RecordPublishes(t *testing.T) {
	store := memory.New(0)
	pub := &stubPublisher{}
	svc := NewFetchLogService(store, pub, quietLogger())

	id, err := svc.Record(context.Background(), core.FetchRecord{FetchedAt: time.Now(), Outcome: core.OutcomeSuccess})
	require.NoError(t, err)
	assert.Equal(t, []int64{id}, pub.published)

	recent, err := svc.Recent(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, recent, 1)

	require.NoError(t, svc.Close())
	assert.True(t, pub.closed)
}

func TestFetchLogService_PublishFailureIsNotFatal(t *testing.T) {
	store := memory.New(0)
	svc := NewFetchLogService(store, &stubPublisher{err: errors.New("circuit breaker is open")}, quietLogger())

	_, err := svc.Record(context.Background(), core.FetchRecord{FetchedAt: time.Now(), Outcome: core.OutcomeSuccess})
	require.NoError(t, err)
	assert.Equal(t, 1, store.Len())
}

func TestFetchLogService_InvalidRecordNotPublished(t *testing.T) {
	pub := &stubPublisher{}
	svc := NewFetchLogService(memory.New(0), pub, quietLogger())

	_, err := svc.Record(context.Background(), core.FetchRecord{Outcome: core.OutcomeSuccess})
	assert.ErrorIs(t, err, core.ErrZeroFetchTime)
	assert.Empty(t, pub.published)
}

func TestRecordingFetcher_Success(t *testing.T) {
	snap := core.StatsSnapshot{
		Counts:        &core.Counts{Students: core.Int64(1520), Events: core.Int64(44)},
		MonthlyData:   []float64{5, 0, 10},
		TopCategories: []core.CategoryShare{{Name: "Education", Percentage: 40}, {Name: "Health", Percentage: 25}},
		RecentEvents:  []core.RecentEvent{{Title: "Blood drive"}},
	}
	rec := &ctxCheckingRecorder{}
	f := NewRecordingFetcher(stubFetcher{snap: snap}, rec, quietLogger())

	got, err := f.FetchStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, snap, got, "snapshot passes through unchanged")

	require.Len(t, rec.records, 1)
	r := rec.records[0]
	assert.Equal(t, core.OutcomeSuccess, r.Outcome)
	assert.Equal(t, core.CountTotals{Students: 1520, Events: 44}, r.Counts)
	assert.Equal(t, int64(15), r.MonthlyTotal)
	assert.Equal(t, 2, r.Categories)
	assert.Equal(t, 1, r.Events)
	assert.Empty(t, r.Error)
	require.NoError(t, r.Validate())
}

func TestRecordingFetcher_Failures(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		outcome core.FetchOutcome
	}{
		{"server reported", &stats.FetchError{Kind: stats.KindServerReported, Err: errors.New("success false")}, core.OutcomeStatsUnavailable},
		{"transport", errors.New("dial tcp: connection refused"), core.OutcomeServerUnreachable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &ctxCheckingRecorder{}
			f := NewRecordingFetcher(stubFetcher{err: tt.err}, rec, quietLogger())

			_, err := f.FetchStats(context.Background())
			assert.Equal(t, tt.err, err, "error passes through unchanged")

			require.Len(t, rec.records, 1)
			assert.Equal(t, tt.outcome, rec.records[0].Outcome)
			assert.Equal(t, tt.err.Error(), rec.records[0].Error)
			assert.Equal(t, core.CountTotals{}, rec.records[0].Counts)
		})
	}
}

func TestRecordingFetcher_RecordsAfterCancellation(t *testing.T) {
	rec := &ctxCheckingRecorder{}
	f := NewRecordingFetcher(stubFetcher{err: context.Canceled}, rec, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _ = f.FetchStats(ctx)

	require.Len(t, rec.records, 1)
	assert.NoError(t, rec.ctxErr, "recording outlives the page view")
	assert.Equal(t, core.OutcomeServerUnreachable, rec.records[0].Outcome)
}

type flakySheet struct {
	fail  atomic.Bool
	calls atomic.Int32
	sheet *memory.Sheet
}

func (f *flakySheet) AppendFetchRecords(ctx context.Context, records []core.FetchRecord) (string, error) {
	f.calls.Add(1)
	if f.fail.Load() {
		return "", errors.New("sheets unavailable")
	}
	return f.sheet.AppendFetchRecords(ctx, records)
}

func seed(t *testing.T, store *memory.Store, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := store.RecordFetch(context.Background(), core.FetchRecord{
			FetchedAt: time.Date(2025, 3, 14, 9, i, 0, 0, time.UTC),
			Outcome:   core.OutcomeSuccess,
		})
		require.NoError(t, err)
	}
}

func TestExportProcessor_ExportPendingInBatches(t *testing.T) {
	store := memory.New(0)
	seed(t, store, 5)
	sheet := &flakySheet{sheet: memory.NewSheet()}
	p := NewExportProcessor(store, sheet, ExportProcessorConfig{BatchSize: 2}, quietLogger())

	n, err := p.ExportPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, int32(3), sheet.calls.Load())
	assert.Len(t, sheet.sheet.Rows(), 5)

	pending, _ := store.PendingExports(context.Background(), 10)
	assert.Empty(t, pending)

	n, err = p.ExportPending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestExportProcessor_FailureLeavesRecordsPending(t *testing.T) {
	store := memory.New(0)
	seed(t, store, 3)
	sheet := &flakySheet{sheet: memory.NewSheet()}
	sheet.fail.Store(true)
	p := NewExportProcessor(store, sheet, ExportProcessorConfig{BatchSize: 10}, quietLogger())

	_, err := p.ExportPending(context.Background())
	require.Error(t, err)
	pending, _ := store.PendingExports(context.Background(), 10)
	assert.Len(t, pending, 3)

	sheet.fail.Store(false)
	n, err := p.ExportPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestExportProcessor_MaxBatchesPerRun(t *testing.T) {
	store := memory.New(0)
	seed(t, store, 6)
	sheet := &flakySheet{sheet: memory.NewSheet()}
	p := NewExportProcessor(store, sheet, ExportProcessorConfig{BatchSize: 2, MaxBatchesPerRun: 2}, quietLogger())

	n, err := p.ExportPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestExportProcessor_Lifecycle(t *testing.T) {
	store := memory.New(0)
	seed(t, store, 1)
	sheet := &flakySheet{sheet: memory.NewSheet()}
	p := NewExportProcessor(store, sheet, ExportProcessorConfig{PollInterval: 10 * time.Millisecond}, quietLogger())

	assert.False(t, p.IsRunning())
	require.NoError(t, p.Stop(context.Background()), "stop when not running")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, p.Start(ctx))
	assert.True(t, p.IsRunning())
	assert.Error(t, p.Start(ctx), "second start fails")

	require.Eventually(t, func() bool { return len(sheet.sheet.Rows()) == 1 }, time.Second, 5*time.Millisecond)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	require.NoError(t, p.Stop(stopCtx))
	assert.False(t, p.IsRunning())
}

func TestDefaultExportProcessorConfig(t *testing.T) {
	config := DefaultExportProcessorConfig()
	assert.Equal(t, time.Minute, config.PollInterval)
	assert.Equal(t, 50, config.BatchSize)
	assert.Equal(t, 20, config.MaxBatchesPerRun)
}
