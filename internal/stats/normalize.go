package stats

import (
	"math"
	"strconv"
	"strings"
	"time"

	"markin/internal/core"
)

// EventDateLayout is how an event's calendar date is shown on its card.
const EventDateLayout = "2 Jan 2006"

// ApplyDefaults is the single place where absent snapshot fields get their
// defaults. Missing counts become 0, a missing monthly series becomes 12
// zeros (short series are zero-padded, long ones truncated), negative
// quantities are floored to 0 and nil lists become empty. The input is
// not modified.
func ApplyDefaults(s core.StatsSnapshot) core.Stats {
	out := core.Stats{
		TopCategories: make([]core.CategoryShare, len(s.TopCategories)),
		RecentEvents:  make([]core.RecentEvent, len(s.RecentEvents)),
	}

	if s.Counts != nil {
		out.Counts = core.CountTotals{
			Students: valueOrZero(s.Counts.Students),
			Colleges: valueOrZero(s.Counts.Colleges),
			NGOs:     valueOrZero(s.Counts.NGOs),
			Events:   valueOrZero(s.Counts.Events),
		}
	}

	for i := 0; i < core.MonthsPerYear && i < len(s.MonthlyData); i++ {
		out.Monthly[i] = monthlyCount(s.MonthlyData[i])
	}

	copy(out.TopCategories, s.TopCategories)

	copy(out.RecentEvents, s.RecentEvents)
	for i := range out.RecentEvents {
		out.RecentEvents[i].RegisteredStudents = max(out.RecentEvents[i].RegisteredStudents, 0)
	}

	return out
}

// monthlyCount rounds a monthly value to the nearest whole event.
// Fractional values come from upstream aggregation; negatives become 0.
func monthlyCount(v float64) int64 {
	switch {
	case !(v > 0):
		return 0
	case v >= math.MaxInt64:
		return math.MaxInt64
	default:
		return int64(math.Round(v))
	}
}

func valueOrZero(p *int64) int64 {
	if p == nil {
		return 0
	}
	return *p
}

// ScaleMonthly returns the chart scale and per-month bars. The scale is
// floored at 1 so an all-zero year yields uniform minimum markers.
func ScaleMonthly(monthly [core.MonthsPerYear]int64) (int64, [core.MonthsPerYear]core.MonthBar) {
	maxMonthly := int64(1)
	for _, v := range monthly {
		if v > maxMonthly {
			maxMonthly = v
		}
	}

	var bars [core.MonthsPerYear]core.MonthBar
	for i, v := range monthly {
		height := 0
		if v > 0 {
			height = int(math.Round(float64(v) * 100 / float64(maxMonthly)))
		}
		height = min(max(height, 0), 100)
		bars[i] = core.MonthBar{
			Month:         core.MonthLabels[i],
			Count:         v,
			HeightPercent: height,
			MinMarker:     height == 0,
		}
	}
	return maxMonthly, bars
}

// Normalize derives the display model from a snapshot. It performs no I/O
// and returns equal output for equal input.
func Normalize(s core.StatsSnapshot) core.DisplayModel {
	st := ApplyDefaults(s)
	maxMonthly, bars := ScaleMonthly(st.Monthly)

	events := make([]core.EventCard, 0, len(st.RecentEvents))
	for _, e := range st.RecentEvents {
		events = append(events, core.EventCard{
			Title:              e.Title,
			Date:               e.Date,
			Location:           e.Location,
			RegisteredStudents: e.RegisteredStudents,
			RegisteredLabel:    Plural(e.RegisteredStudents, "student") + " registered",
			EventDate:          FormatEventDate(e.EventDate),
		})
	}

	return core.DisplayModel{
		Counts:        st.Counts,
		MaxMonthly:    maxMonthly,
		Months:        bars,
		TopCategories: st.TopCategories,
		RecentEvents:  events,
	}
}

// DefaultDisplayModel is the all-default model used when no snapshot is
// available, with the failure reason attached.
func DefaultDisplayModel(reason string) core.DisplayModel {
	m := Normalize(core.StatsSnapshot{})
	m.Failure = reason
	return m
}

// FormatEventDate accepts RFC 3339 timestamps or plain YYYY-MM-DD dates.
// Anything else yields "" so the card omits the date line.
func FormatEventDate(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format(EventDateLayout)
		}
	}
	return ""
}

// Plural renders "1 event" / "3 events".
func Plural(n int64, noun string) string {
	s := strconv.FormatInt(n, 10) + " " + noun
	if n != 1 {
		s += "s"
	}
	return s
}
