package google

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	goption "google.golang.org/api/option"

	"markin/internal/core"
)

// fakeSheets records Values calls and answers like the v4 API.
type fakeSheets struct {
	mu       sync.Mutex
	header   []any
	appended [][]any
	calls    []string
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, r.Method+" "+r.URL.Path)
	w.Header().Set("Content-Type", "application/json")

	var body struct {
		Values [][]any `json:"values"`
	}
	if r.Body != nil {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
	}

	switch {
	case r.Method == http.MethodGet:
		values := [][]any{}
		if f.header != nil {
			values = append(values, f.header)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"range": "A1:J1", "values": values})
	case r.Method == http.MethodPut:
		f.header = body.Values[0]
		_ = json.NewEncoder(w).Encode(map[string]any{"updatedRows": 1})
	case strings.HasSuffix(r.URL.Path, ":append"):
		f.appended = append(f.appended, body.Values...)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"updates": map[string]any{"updatedRange": "'2025 Fetches'!A2:J3", "updatedRows": len(body.Values)},
		})
	default:
		http.NotFound(w, r)
	}
}

func newTestClient(t *testing.T, fake *fakeSheets) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	c, err := New(context.Background(), "sheet-id", "Fetches",
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithHTTPClient(srv.Client()),
		goption.WithoutAuthentication())
	require.NoError(t, err)
	return c
}

func fetchRecord(year int) core.FetchRecord {
	return core.FetchRecord{
		ID:           1,
		FetchedAt:    time.Date(year, 3, 14, 9, 30, 0, 0, time.UTC),
		Outcome:      core.OutcomeSuccess,
		Counts:       core.CountTotals{Students: 1520, Colleges: 12, NGOs: 7, Events: 44},
		MonthlyTotal: 15,
		Categories:   6,
		Events:       1,
	}
}

func TestNew_MissingSpreadsheetID(t *testing.T) {
	_, err := New(context.Background(), "  ", "Fetches")
	require.Error(t, err)
	assert.Equal(t, "missing GOOGLE_SPREADSHEET_ID", err.Error())
}

func TestNew_MissingCredentials(t *testing.T) {
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", "")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")

	_, err := New(context.Background(), "sheet-id", "Fetches")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing service account credentials")
}

func TestAppendFetchRecords_WritesHeaderOnceAndRows(t *testing.T) {
	fake := &fakeSheets{}
	c := newTestClient(t, fake)
	ctx := context.Background()

	ref, err := c.AppendFetchRecords(ctx, []core.FetchRecord{fetchRecord(2025), fetchRecord(2025)})
	require.NoError(t, err)
	assert.Equal(t, "'2025 Fetches'!A2:J3", ref)

	_, err = c.AppendFetchRecords(ctx, []core.FetchRecord{fetchRecord(2025)})
	require.NoError(t, err)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Len(t, fake.header, 10)
	assert.Equal(t, "fetched_at", fake.header[0])
	require.Len(t, fake.appended, 3)
	assert.Equal(t, "2025-03-14T09:30:00Z", fake.appended[0][0])
	assert.Equal(t, "success", fake.appended[0][1])
	assert.EqualValues(t, 1520, fake.appended[0][2])

	gets := 0
	for _, call := range fake.calls {
		if strings.HasPrefix(call, http.MethodGet) {
			gets++
			assert.Contains(t, call, "2025 Fetches!A1:J1")
		}
	}
	assert.Equal(t, 1, gets, "header is checked once per tab")
}

func TestAppendFetchRecords_Empty(t *testing.T) {
	fake := &fakeSheets{}
	c := newTestClient(t, fake)

	ref, err := c.AppendFetchRecords(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, ref)
	assert.Empty(t, fake.calls)
}

func TestAppendFetchRecords_RejectsInvalidRecord(t *testing.T) {
	c := newTestClient(t, &fakeSheets{})

	_, err := c.AppendFetchRecords(context.Background(), []core.FetchRecord{{Outcome: core.OutcomeSuccess}})
	assert.ErrorIs(t, err, core.ErrZeroFetchTime)
}

func TestGroupByYear(t *testing.T) {
	a, b, c := fetchRecord(2024), fetchRecord(2025), fetchRecord(2024)
	c.ID = 3

	groups := groupByYear([]core.FetchRecord{a, b, c})
	require.Len(t, groups, 2)
	assert.Equal(t, 2024, groups[0].year)
	assert.Len(t, groups[0].records, 2)
	assert.Equal(t, int64(3), groups[0].records[1].ID)
	assert.Equal(t, 2025, groups[1].year)
}

func TestYearPrefixedName(t *testing.T) {
	tests := []struct {
		base string
		year int
		want string
	}{
		{"Fetches", 2025, "2025 Fetches"},
		{"2024 Fetches", 2025, "2024 Fetches"},
		{"  Fetches  ", 2026, "2026 Fetches"},
		{"", 2025, ""},
		{"12345", 2025, "2025 12345"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, yearPrefixedName(tt.base, tt.year), tt.base)
	}
}
