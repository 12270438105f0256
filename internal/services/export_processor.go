package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	applog "markin/internal/log"
	"markin/internal/sheets"
)

// ExportProcessorConfig holds configuration for the export processor
type ExportProcessorConfig struct {
	// PollInterval is how often to check for un-exported records (default: 1m)
	PollInterval time.Duration

	// BatchSize is the max number of records appended per sheet call (default: 50)
	BatchSize int

	// MaxBatchesPerRun bounds one export run so a large backlog does not
	// starve shutdown (default: 20)
	MaxBatchesPerRun int
}

// DefaultExportProcessorConfig returns sensible defaults
func DefaultExportProcessorConfig() ExportProcessorConfig {
	return ExportProcessorConfig{
		PollInterval:     time.Minute,
		BatchSize:        50,
		MaxBatchesPerRun: 20,
	}
}

// ExportProcessor appends un-exported fetch records to the spreadsheet.
// Records stay pending until the append succeeds, so a failed run is
// retried on the next poll.
type ExportProcessor struct {
	queue  sheets.ExportQueue
	sheet  sheets.RowAppender
	config ExportProcessorConfig
	logger *applog.Logger
	now    func() time.Time

	// exportMu serialises runs triggered by the poll loop and by AMQP.
	exportMu sync.Mutex

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewExportProcessor(queue sheets.ExportQueue, sheet sheets.RowAppender, config ExportProcessorConfig, logger *applog.Logger) *ExportProcessor {
	def := DefaultExportProcessorConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = def.PollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}
	if config.MaxBatchesPerRun <= 0 {
		config.MaxBatchesPerRun = def.MaxBatchesPerRun
	}
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &ExportProcessor{
		queue:  queue,
		sheet:  sheet,
		config: config,
		logger: logger.WithComponent(applog.ComponentWorker),
		now:    time.Now,
	}
}

// Start begins the polling loop. Returns an error if already running.
func (p *ExportProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("export processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	p.logger.InfoContext(ctx, "Export processor started",
		"poll_interval", p.config.PollInterval,
		applog.FieldBatchSize, p.config.BatchSize)

	return nil
}

// Stop gracefully stops the processor and waits for completion.
func (p *ExportProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()

	select {
	case <-stopCh:
	default:
		close(stopCh)
	}

	select {
	case <-doneCh:
		p.logger.InfoContext(ctx, "Export processor stopped gracefully")
	case <-ctx.Done():
		p.logger.WarnContext(ctx, "Export processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	return nil
}

// IsRunning returns whether the processor is currently running
func (p *ExportProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *ExportProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.runOnce(ctx)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.runOnce(ctx)
		}
	}
}

func (p *ExportProcessor) runOnce(ctx context.Context) {
	if _, err := p.ExportPending(ctx); err != nil {
		p.logger.ErrorContext(ctx, "Export run failed",
			applog.FieldOperation, applog.OpExport,
			applog.FieldError, err.Error())
	}
}

// ExportPending appends pending records in batches until none are left or
// MaxBatchesPerRun is reached, and returns how many were exported.
func (p *ExportProcessor) ExportPending(ctx context.Context) (int, error) {
	p.exportMu.Lock()
	defer p.exportMu.Unlock()

	total := 0
	for i := 0; i < p.config.MaxBatchesPerRun; i++ {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		records, err := p.queue.PendingExports(ctx, p.config.BatchSize)
		if err != nil {
			return total, fmt.Errorf("list pending exports: %w", err)
		}
		if len(records) == 0 {
			return total, nil
		}

		ref, err := p.sheet.AppendFetchRecords(ctx, records)
		if err != nil {
			return total, fmt.Errorf("append %d records: %w", len(records), err)
		}

		ids := make([]int64, 0, len(records))
		for _, r := range records {
			ids = append(ids, r.ID)
		}
		if err := p.queue.MarkExported(ctx, ids, p.now()); err != nil {
			// Rows are already in the sheet; the next run would append them again.
			return total, fmt.Errorf("mark %d records exported after append to %s: %w", len(ids), ref, err)
		}

		total += len(records)
		p.logger.InfoContext(ctx, "Exported fetch records",
			applog.FieldOperation, applog.OpExport,
			applog.FieldBatchSize, len(records),
			applog.FieldSheetsRef, ref)

		if len(records) < p.config.BatchSize {
			return total, nil
		}
	}
	return total, nil
}
