package worker

import (
	"context"
	"errors"
	"fmt"

	"markin/internal/amqp"
	"markin/internal/core"
	applog "markin/internal/log"
	"markin/internal/sheets"
)

// Exporter runs one export pass. *services.ExportProcessor implements it.
type Exporter interface {
	ExportPending(ctx context.Context) (int, error)
}

// ExportWorker reacts to fetch recorded messages by exporting pending
// records to the spreadsheet. The processor's poll loop is the backup
// for lost messages.
type ExportWorker struct {
	queue    sheets.ExportQueue
	exporter Exporter
	logger   *applog.Logger
}

func NewExportWorker(queue sheets.ExportQueue, exporter Exporter, logger *applog.Logger) *ExportWorker {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &ExportWorker{
		queue:    queue,
		exporter: exporter,
		logger:   logger.WithComponent(applog.ComponentWorker),
	}
}

// HandleFetchRecorded processes a single fetch recorded message from AMQP.
// A message for an already exported record is acknowledged without work.
func (w *ExportWorker) HandleFetchRecorded(ctx context.Context, msg *amqp.FetchRecordedMessage) error {
	rec, err := w.queue.GetFetch(ctx, msg.ID)
	if errors.Is(err, core.ErrRecordNotFound) {
		// Dropped from the log (memory backend eviction); nothing to export.
		w.logger.WarnContext(ctx, "Fetch record not found, skipping",
			applog.FieldRecordID, msg.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get fetch record: %w", err)
	}
	if rec.ExportedAt != nil {
		w.logger.DebugContext(ctx, "Fetch record already exported",
			applog.FieldRecordID, msg.ID)
		return nil
	}

	n, err := w.exporter.ExportPending(ctx)
	if err != nil {
		return fmt.Errorf("export pending records: %w", err)
	}

	w.logger.InfoContext(ctx, "Handled fetch recorded message",
		applog.FieldRecordID, msg.ID,
		applog.FieldOutcome, string(msg.Outcome),
		"exported", n)
	return nil
}

// StartupExportCheck exports whatever accumulated while the worker was down.
func (w *ExportWorker) StartupExportCheck(ctx context.Context) error {
	n, err := w.exporter.ExportPending(ctx)
	if err != nil {
		return fmt.Errorf("startup export: %w", err)
	}
	if n == 0 {
		w.logger.InfoContext(ctx, "No pending fetch records found on startup")
		return nil
	}
	w.logger.InfoContext(ctx, "Startup export completed", "exported", n)
	return nil
}
