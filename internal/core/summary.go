package core

// MonthBar is one column of the events-per-month chart.
type MonthBar struct {
	Month         string `json:"month"`
	Count         int64  `json:"count"`
	HeightPercent int    `json:"heightPercent"`
	// MinMarker is set when HeightPercent is 0; the bar is drawn as a
	// minimum-visible marker instead of being omitted.
	MinMarker bool `json:"minMarker"`
}

// EventCard is a recent event prepared for display.
type EventCard struct {
	Title              string `json:"title"`
	Date               string `json:"date"`
	Location           string `json:"location"`
	RegisteredStudents int64  `json:"registeredStudents"`
	RegisteredLabel    string `json:"registeredLabel"`
	// EventDate is empty when the upstream value was absent or unparsable.
	EventDate string `json:"eventDate,omitempty"`
}

// DisplayModel is the rendering-ready derivation of a snapshot. It is
// replaced wholesale on every state transition, never patched.
type DisplayModel struct {
	Counts        CountTotals             `json:"counts"`
	MaxMonthly    int64                   `json:"maxMonthly"`
	Months        [MonthsPerYear]MonthBar `json:"months"`
	TopCategories []CategoryShare         `json:"topCategories"`
	RecentEvents  []EventCard             `json:"recentEvents"`
	Failure       string                  `json:"failure,omitempty"`
}
