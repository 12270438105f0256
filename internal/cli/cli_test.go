package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"markin/internal/core"
	"markin/internal/dashboard"
	"markin/internal/storage"
)

const upstreamOK = `{
	"success": true,
	"data": {
		"counts": {"students": 1520, "colleges": 12, "ngos": 7, "events": 44},
		"monthlyData": [5, 0, 10, 0, 0, 0, 0, 0, 0, 0, 0, 0],
		"topCategories": [{"name": "Education", "percentage": 40}],
		"recentEvents": [
			{"title": "Blood <b>drive</b>", "date": "2 days ago", "location": "Pune", "registeredStudents": 3, "eventDate": "2025-03-14"}
		]
	}
}`

func upstream(t *testing.T, status int, body string) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func TestStatsCommand_PrintsDashboard(t *testing.T) {
	url := upstream(t, http.StatusOK, upstreamOK)

	out, err := run(t, "stats", "--url", url, "--timeout", "5s")

	require.NoError(t, err)
	assert.Contains(t, out, "Total Students")
	assert.Contains(t, out, "1,520")
	assert.Contains(t, out, "Education")
	assert.Contains(t, out, "40%")
	assert.Contains(t, out, "Blood drive")
	assert.NotContains(t, out, "<b>")
	assert.Contains(t, out, "3 students")
	assert.Contains(t, out, minMarkerCell, "empty months get the marker")
}

func TestStatsCommand_JSON(t *testing.T) {
	url := upstream(t, http.StatusOK, upstreamOK)

	out, err := run(t, "stats", "--url", url, "--json")
	require.NoError(t, err)

	var got struct {
		Phase string `json:"phase"`
		Tiles []struct {
			Value string `json:"value"`
		} `json:"tiles"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "success", got.Phase)
	require.Len(t, got.Tiles, 4)
	assert.Equal(t, "1,520", got.Tiles[0].Value)
}

func TestStatsCommand_Failures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{"service reported failure", http.StatusOK, `{"success": false}`, "Failed to load stats."},
		{"not json", http.StatusBadGateway, `<html>bad gateway</html>`, "Could not reach server."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url := upstream(t, tt.status, tt.body)

			out, err := run(t, "stats", "--url", url)

			require.Error(t, err)
			assert.Equal(t, tt.message, err.Error())
			assert.Contains(t, out, "! "+tt.message)
			assert.Contains(t, out, dashboard.ErrorPlaceholder)
			assert.Contains(t, out, noCategoriesText)
			assert.Contains(t, out, noEventsText)
		})
	}
}

func TestMigrateCommand(t *testing.T) {
	db := filepath.Join(t.TempDir(), "data", "markin.db")

	out, err := run(t, "migrate", "--db", db)
	require.NoError(t, err)
	assert.Equal(t, "schema version 1 (migrated)\n", out)

	out, err = run(t, "migrate", "--db", db)
	require.NoError(t, err)
	assert.Equal(t, "schema version 1 (up to date)\n", out)
}

func TestFetchesCommand(t *testing.T) {
	db := filepath.Join(t.TempDir(), "markin.db")
	repo, err := storage.NewSQLiteRepository(db)
	require.NoError(t, err)
	ctx := context.Background()
	at := time.Now().Add(-time.Hour).UTC()
	_, err = repo.RecordFetch(ctx, core.FetchRecord{
		FetchedAt: at, Outcome: core.OutcomeSuccess, Duration: 120 * time.Millisecond,
		Counts: core.CountTotals{Students: 1520, Events: 44},
	})
	require.NoError(t, err)
	_, err = repo.RecordFetch(ctx, core.FetchRecord{
		FetchedAt: at.Add(time.Minute), Outcome: core.OutcomeServerUnreachable, Error: "connection refused",
	})
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	out, err := run(t, "fetches", "--db", db, "-n", "5")

	require.NoError(t, err)
	assert.Contains(t, out, "server_unreachable")
	assert.Contains(t, out, "connection refused")
	assert.Contains(t, out, "1,520")
	assert.Contains(t, out, "44 events")
	assert.Contains(t, out, "(2 rows)")
	assert.Contains(t, out, "2 pending export")
	assert.Less(t, strings.Index(out, "server_unreachable"), strings.Index(out, "success"), "newest first")
}

func TestFetchesCommand_RejectsBadLimit(t *testing.T) {
	_, err := run(t, "fetches", "--db", filepath.Join(t.TempDir(), "x.db"), "--limit", "0")
	assert.ErrorContains(t, err, "invalid --limit 0")
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "markinctl v"+Version))
}

func TestPrinter_LoadingState(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).Dashboard(dashboard.Loading(), 2025)

	out := buf.String()
	assert.NotContains(t, out, "! ")
	assert.Contains(t, out, dashboard.LoadingPlaceholder)
	assert.Contains(t, out, "Events per month (2025)")
	assert.Contains(t, out, noCategoriesText)
}

func TestPrinter_NoFetches(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).FetchRecords(nil, time.Now())
	assert.Equal(t, "(no fetches recorded)\n", buf.String())
}

func TestMonthBar(t *testing.T) {
	assert.Equal(t, minMarkerCell, monthBar(core.MonthBar{MinMarker: true}))
	assert.Equal(t, strings.Repeat(barCell, 20), monthBar(core.MonthBar{HeightPercent: 100}))
	assert.Equal(t, strings.Repeat(barCell, 10), monthBar(core.MonthBar{HeightPercent: 50}))
	assert.Equal(t, "", shareBar(-3))
	assert.Equal(t, strings.Repeat(barCell, 20), shareBar(140))
}
