//go:build integration

package google

import (
	"context"
	"os"
	"testing"
	"time"

	"markin/internal/core"
)

// Integration tests require real Google Sheets credentials and an existing
// "<year> <GOOGLE_SHEET_NAME>" tab.
// Run with: go test -tags=integration ./internal/sheets/google

func TestIntegration_AppendFetchRecords(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	spreadsheetID := os.Getenv("GOOGLE_SPREADSHEET_ID")
	if spreadsheetID == "" {
		t.Skip("GOOGLE_SPREADSHEET_ID not set, skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := New(ctx, spreadsheetID, os.Getenv("GOOGLE_SHEET_NAME"))
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	rec := core.FetchRecord{
		ID:        time.Now().Unix(),
		FetchedAt: time.Now().UTC(),
		Outcome:   core.OutcomeServerUnreachable,
		Error:     "integration test row",
	}
	ref, err := client.AppendFetchRecords(ctx, []core.FetchRecord{rec})
	if err != nil {
		t.Fatalf("Failed to append: %v", err)
	}
	t.Logf("Appended test row at %s (sheet %s)", ref, client.CurrentSheet(time.Now()))
}
