package http

import (
	"github.com/dustin/go-humanize"

	"markin/internal/dashboard"
	"markin/internal/stats"
)

// categoryGradients are cycled through in category order.
var categoryGradients = [...]string{"gradient-1", "gradient-2", "gradient-3", "gradient-4", "gradient-5"}

const (
	noCategoriesText = "No event data yet."
	noEventsText     = "No events found."
)

type barView struct {
	Label     string
	Height    int
	MinMarker bool
	Tooltip   string
}

type categoryView struct {
	Name    string
	Percent string
	Width   float64
	Class   string
}

type eventView struct {
	Title      string
	Date       string
	Location   string
	Registered string
	EventDate  string
}

// dashboardPage is everything the dashboard templates read.
type dashboardPage struct {
	Phase        string
	Loading      bool
	Failed       bool
	Message      string
	Year         int
	Tiles        []dashboard.Tile
	Bars         []barView
	Categories   []categoryView
	Events       []eventView
	NoCategories string
	NoEvents     string
}

func newDashboardPage(st dashboard.State, year int, skeleton []int) dashboardPage {
	page := dashboardPage{
		Phase:        st.Phase.String(),
		Loading:      st.Phase == dashboard.PhaseLoading,
		Failed:       st.Phase == dashboard.PhaseError,
		Message:      st.Message(),
		Year:         year,
		Tiles:        st.Tiles(),
		NoCategories: noCategoriesText,
		NoEvents:     noEventsText,
	}

	for i, b := range st.Model.Months {
		bar := barView{
			Label:     b.Month,
			Height:    b.HeightPercent,
			MinMarker: b.MinMarker,
			Tooltip:   stats.Plural(b.Count, "event"),
		}
		if page.Loading && i < len(skeleton) {
			bar = barView{Label: b.Month, Height: skeleton[i]}
		}
		page.Bars = append(page.Bars, bar)
	}

	for i, c := range st.Model.TopCategories {
		page.Categories = append(page.Categories, categoryView{
			Name:    c.Name,
			Percent: humanize.FtoaWithDigits(c.Percentage, 1) + "%",
			Width:   min(max(c.Percentage, 0), 100),
			Class:   categoryGradients[i%len(categoryGradients)],
		})
	}

	for _, e := range st.Model.RecentEvents {
		page.Events = append(page.Events, eventView{
			Title:      e.Title,
			Date:       e.Date,
			Location:   e.Location,
			Registered: e.RegisteredLabel,
			EventDate:  e.EventDate,
		})
	}

	return page
}
