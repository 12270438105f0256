package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"markin/internal/core"
	ports "markin/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Client appends fetch records to a Google Sheet. Records land in one tab
// per year, named "<year> <base>" (for example "2025 Fetches"). Tabs must
// already exist in the spreadsheet.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetBase     string

	mu        sync.Mutex
	headerSet map[string]bool
}

// Ensure interface conformance
var _ ports.RowAppender = (*Client)(nil)

// New creates a Sheets client for spreadsheetID. Without options the
// service account credentials are read from the environment.
func New(ctx context.Context, spreadsheetID, sheetBase string, opts ...goption.ClientOption) (*Client, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	sheetBase = strings.TrimSpace(sheetBase)
	if sheetBase == "" {
		sheetBase = "Fetches"
	}

	var (
		svc *gsheet.Service
		err error
	)
	if len(opts) == 0 {
		svc, err = newSheetsService(ctx)
	} else {
		svc, err = gsheet.NewService(ctx, opts...)
	}
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetBase:     sheetBase,
		headerSet:     make(map[string]bool),
	}, nil
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
// Uses GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS.
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	credentialsJSON, err := serviceAccountCredentials(ctx)
	if err != nil {
		return nil, err
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	slog.InfoContext(ctx, "Google Sheets service created", "credentials_size", len(credentialsJSON))
	return service, nil
}

func serviceAccountCredentials(ctx context.Context) ([]byte, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case serviceAccountJSON != "":
		slog.DebugContext(ctx, "Using inline JSON credentials")
		return []byte(serviceAccountJSON), nil
	case serviceAccountFile != "":
		slog.DebugContext(ctx, "Reading credentials from file", "path", serviceAccountFile)
		b, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// AppendFetchRecords appends one row per record, grouped by the year tab
// of each record's fetch time. It returns the last updated range.
func (c *Client) AppendFetchRecords(ctx context.Context, records []core.FetchRecord) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	if len(records) == 0 {
		return "", nil
	}
	for _, r := range records {
		if err := r.Validate(); err != nil {
			return "", fmt.Errorf("validation failed for record %d: %w", r.ID, err)
		}
	}

	var ref string
	for _, group := range groupByYear(records) {
		sheet := yearPrefixedName(c.sheetBase, group.year)
		if err := c.ensureHeader(ctx, sheet); err != nil {
			return "", err
		}

		rows := make([][]any, 0, len(group.records))
		for _, r := range group.records {
			rows = append(rows, ports.FetchRecordRow(r))
		}

		rng := fmt.Sprintf("%s!A:J", sheet)
		resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, &gsheet.ValueRange{Values: rows}).
			ValueInputOption("RAW").
			InsertDataOption("INSERT_ROWS").
			Context(ctx).Do()
		if err != nil {
			return "", fmt.Errorf("failed to append rows to sheet %s: %w", sheet, err)
		}
		if resp.Updates != nil {
			ref = resp.Updates.UpdatedRange
		}
	}
	return ref, nil
}

// ensureHeader writes the header row into an empty tab, once per client.
func (c *Client) ensureHeader(ctx context.Context, sheet string) error {
	c.mu.Lock()
	done := c.headerSet[sheet]
	c.mu.Unlock()
	if done {
		return nil
	}

	rng := fmt.Sprintf("%s!A1:J1", sheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read header of sheet %s: %w", sheet, err)
	}
	if len(resp.Values) == 0 || len(toStrings(resp.Values[0])) == 0 {
		vr := &gsheet.ValueRange{Values: [][]any{ports.FetchRecordHeader}}
		if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
			ValueInputOption("RAW").Context(ctx).Do(); err != nil {
			return fmt.Errorf("write header of sheet %s: %w", sheet, err)
		}
		slog.InfoContext(ctx, "Wrote fetch log header", "sheet", sheet)
	}

	c.mu.Lock()
	c.headerSet[sheet] = true
	c.mu.Unlock()
	return nil
}

type yearGroup struct {
	year    int
	records []core.FetchRecord
}

// groupByYear keeps input order within and across groups.
func groupByYear(records []core.FetchRecord) []yearGroup {
	var groups []yearGroup
	index := map[int]int{}
	for _, r := range records {
		y := r.FetchedAt.UTC().Year()
		i, ok := index[y]
		if !ok {
			i = len(groups)
			index[y] = i
			groups = append(groups, yearGroup{year: y})
		}
		groups[i].records = append(groups[i].records, r)
	}
	return groups
}

func toStrings(in []interface{}) []string {
	var out []string
	for _, v := range in {
		if s := strings.TrimSpace(fmt.Sprint(v)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}

// CurrentSheet is the tab new records are appended to today.
func (c *Client) CurrentSheet(now time.Time) string {
	return yearPrefixedName(c.sheetBase, now.UTC().Year())
}
