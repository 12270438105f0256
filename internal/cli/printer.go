package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"markin/internal/core"
	"markin/internal/dashboard"
	"markin/internal/stats"
)

const (
	noCategoriesText = "No event data yet."
	noEventsText     = "No events found."
	barCell          = "█"
	minMarkerCell    = "▁"
)

// Printer renders dashboard states and fetch records as terminal tables.
type Printer struct {
	w         io.Writer
	sanitizer *dashboard.Sanitizer
}

func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w, sanitizer: dashboard.NewSanitizer()}
}

func (p *Printer) newTable(title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(p.w)
	t.SetStyle(table.StyleLight)
	if title != "" {
		t.SetTitle(title)
	}
	return t
}

// Dashboard prints the four tiles, the monthly chart, top categories and
// recent events of st. year is the chart subtitle.
func (p *Printer) Dashboard(st dashboard.State, year int) {
	if msg := st.Message(); msg != "" {
		_, _ = fmt.Fprintf(p.w, "! %s\n\n", msg)
	}
	m := p.sanitizer.Model(st.Model)

	tiles := p.newTable("")
	for _, tile := range st.Tiles() {
		tiles.AppendRow(table.Row{tile.Title, tile.Value})
	}
	tiles.SetColumnConfigs([]table.ColumnConfig{{Number: 2, Align: text.AlignRight}})
	tiles.Render()

	chart := p.newTable(fmt.Sprintf("Events per month (%d)", year))
	chart.AppendHeader(table.Row{"Month", "Events", ""})
	for _, b := range m.Months {
		chart.AppendRow(table.Row{b.Month, humanize.Comma(b.Count), monthBar(b)})
	}
	chart.Render()

	if len(m.TopCategories) == 0 {
		_, _ = fmt.Fprintln(p.w, noCategoriesText)
	} else {
		cats := p.newTable("Top categories")
		cats.AppendHeader(table.Row{"Category", "Share", ""})
		for _, c := range m.TopCategories {
			cats.AppendRow(table.Row{c.Name, humanize.FtoaWithDigits(c.Percentage, 1) + "%", shareBar(c.Percentage)})
		}
		cats.Render()
	}

	if len(m.RecentEvents) == 0 {
		_, _ = fmt.Fprintln(p.w, noEventsText)
		return
	}
	events := p.newTable("Recent events")
	events.AppendHeader(table.Row{"Event", "When", "Location", "Registered", "Date"})
	for _, e := range m.RecentEvents {
		events.AppendRow(table.Row{e.Title, e.Date, e.Location, e.RegisteredLabel, e.EventDate})
	}
	events.Render()
}

// FetchRecords prints recorded upstream fetches, newest first.
func (p *Printer) FetchRecords(records []core.FetchRecord, now time.Time) {
	if len(records) == 0 {
		_, _ = fmt.Fprintln(p.w, "(no fetches recorded)")
		return
	}
	t := p.newTable("Recent fetches")
	t.AppendHeader(table.Row{"ID", "Fetched", "Outcome", "Duration", "Students", "Events", "Exported", "Error"})
	for _, r := range records {
		exported := "pending"
		if r.ExportedAt != nil {
			exported = humanize.RelTime(*r.ExportedAt, now, "ago", "from now")
		}
		t.AppendRow(table.Row{
			r.ID,
			humanize.RelTime(r.FetchedAt, now, "ago", "from now"),
			string(r.Outcome),
			r.Duration.Round(time.Millisecond).String(),
			humanize.Comma(r.Counts.Students),
			stats.Plural(r.Counts.Events, "event"),
			exported,
			r.Error,
		})
	}
	t.Render()
	_, _ = fmt.Fprintf(p.w, "(%d rows)\n", len(records))
}

// monthBar draws one cell per 5% of height; an empty month gets the marker.
func monthBar(b core.MonthBar) string {
	if b.MinMarker {
		return minMarkerCell
	}
	return strings.Repeat(barCell, b.HeightPercent/5)
}

func shareBar(percent float64) string {
	switch {
	case percent < 0:
		percent = 0
	case percent > 100:
		percent = 100
	}
	return strings.Repeat(barCell, int(percent/5))
}
