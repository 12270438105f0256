package backend

import (
	"context"

	"markin/internal/services"
	"markin/internal/sheets"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the fetch log and its cleanup function
type BackendResult struct {
	Store   sheets.FetchLogStore
	Service *services.FetchLogService
	// PublishEnabled reports whether records are announced on AMQP.
	PublishEnabled bool
	Cleanup        CleanupFunc
}

// Factory creates fetch log backends based on configuration
type Factory interface {
	// CreateBackend creates a fetch log backend based on the provided config
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
	// CreateRowAppender creates the spreadsheet exporter target
	CreateRowAppender(ctx context.Context, config Config) (sheets.RowAppender, error)
}

// Config holds configuration for backend creation
type Config struct {
	// Backend type
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// AMQP publishing (optional)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets export
	GoogleSpreadsheetID string
	GoogleSheetName     string

	// Memory backend specific
	MemoryRetention int
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
