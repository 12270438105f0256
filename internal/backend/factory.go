package backend

import (
	"context"
	"fmt"

	"markin/internal/amqp"
	applog "markin/internal/log"
	"markin/internal/services"
	"markin/internal/sheets"
	gsheet "markin/internal/sheets/google"
	"markin/internal/sheets/memory"
	"markin/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *applog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *applog.Logger) Factory {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &DefaultFactory{
		logger: logger.WithComponent(applog.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var store sheets.FetchLogStore
	switch config.Type {
	case SQLiteBackend:
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		store = repo
		f.logger.InfoContext(ctx, "Initialized SQLite fetch log", "db_path", config.SQLiteDBPath)
	case MemoryBackend:
		retention := config.MemoryRetention
		if retention <= 0 {
			retention = DefaultMemoryRetention
		}
		store = memory.New(retention)
		f.logger.InfoContext(ctx, "Initialized memory fetch log", "retention", retention)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}

	// AMQP is optional; the export worker polls as a fallback.
	var publisher services.EventPublisher
	if config.AMQPURL != "" {
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without fetch events",
				applog.FieldError, err.Error())
		} else {
			publisher = client
			f.logger.InfoContext(ctx, "Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
		}
	}

	svc := services.NewFetchLogService(store, publisher, f.logger)
	return &BackendResult{
		Store:          store,
		Service:        svc,
		PublishEnabled: publisher != nil,
		Cleanup:        svc.Close,
	}, nil
}

// CreateRowAppender returns the Google Sheets client when a spreadsheet is
// configured and an in-memory sheet otherwise.
func (f *DefaultFactory) CreateRowAppender(ctx context.Context, config Config) (sheets.RowAppender, error) {
	if config.GoogleSpreadsheetID == "" {
		f.logger.WarnContext(ctx, "No spreadsheet configured, exporting to an in-memory sheet")
		return memory.NewSheet(), nil
	}

	cli, err := gsheet.New(ctx, config.GoogleSpreadsheetID, config.GoogleSheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}
	f.logger.InfoContext(ctx, "Initialized Google Sheets exporter", "sheet", config.GoogleSheetName)
	return cli, nil
}
