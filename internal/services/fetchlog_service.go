package services

import (
	"context"
	"errors"
	"fmt"

	"markin/internal/core"
	applog "markin/internal/log"
	"markin/internal/sheets"
)

// EventPublisher announces recorded fetches. *amqp.Client implements it.
type EventPublisher interface {
	PublishFetchRecorded(ctx context.Context, id int64, outcome core.FetchOutcome) error
	Close() error
}

// FetchLogService stores fetch records and announces each one on AMQP.
type FetchLogService struct {
	store     sheets.FetchLogStore
	publisher EventPublisher
	logger    *applog.Logger
}

// NewFetchLogService wires store and an optional publisher. A nil
// publisher disables announcements.
func NewFetchLogService(store sheets.FetchLogStore, publisher EventPublisher, logger *applog.Logger) *FetchLogService {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &FetchLogService{
		store:     store,
		publisher: publisher,
		logger:    logger.WithComponent(applog.ComponentFetchLog),
	}
}

// Record saves r locally first, then publishes. A publish failure is
// logged and does not fail the call; the export worker's poll picks the
// record up anyway.
func (s *FetchLogService) Record(ctx context.Context, r core.FetchRecord) (int64, error) {
	id, err := s.store.RecordFetch(ctx, r)
	if err != nil {
		return 0, fmt.Errorf("save fetch record: %w", err)
	}

	if s.publisher == nil {
		return id, nil
	}
	if err := s.publisher.PublishFetchRecorded(ctx, id, r.Outcome); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish fetch recorded message",
			applog.FieldRecordID, id,
			applog.FieldOperation, applog.OpPublish,
			applog.FieldError, err.Error())
	}
	return id, nil
}

// Recent lists the newest records for operators.
func (s *FetchLogService) Recent(ctx context.Context, limit int) ([]core.FetchRecord, error) {
	records, err := s.store.RecentFetches(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list fetch records: %w", err)
	}
	return records, nil
}

// Close closes both storage and AMQP connections
func (s *FetchLogService) Close() error {
	var errs []error

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("close fetch log service: %w", err)
	}
	return nil
}
