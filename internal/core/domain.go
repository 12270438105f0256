package core

import (
	"errors"
	"strings"
	"time"
)

// MonthsPerYear is the fixed length of the monthly series.
const MonthsPerYear = 12

// MonthLabels are the chart labels, index 0 = January.
var MonthLabels = [MonthsPerYear]string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}

type (
	// StatsEnvelope is the wire shape returned by the statistics endpoint.
	StatsEnvelope struct {
		Success bool           `json:"success"`
		Data    *StatsSnapshot `json:"data,omitempty"`
	}

	// StatsSnapshot is one fetched statistics payload. Every field is optional
	// on the wire; ApplyDefaults in the stats package turns it into Stats.
	StatsSnapshot struct {
		Counts        *Counts         `json:"counts,omitempty"`
		MonthlyData   []float64       `json:"monthlyData,omitempty"`
		TopCategories []CategoryShare `json:"topCategories,omitempty"`
		RecentEvents  []RecentEvent   `json:"recentEvents,omitempty"`
	}

	// Counts keeps absent keys distinguishable from zero.
	Counts struct {
		Students *int64 `json:"students,omitempty"`
		Colleges *int64 `json:"colleges,omitempty"`
		NGOs     *int64 `json:"ngos,omitempty"`
		Events   *int64 `json:"events,omitempty"`
	}

	CategoryShare struct {
		Name       string  `json:"name"`
		Percentage float64 `json:"percentage"`
	}

	RecentEvent struct {
		Title              string `json:"title"`
		Date               string `json:"date"`
		Location           string `json:"location"`
		RegisteredStudents int64  `json:"registeredStudents"`
		EventDate          string `json:"eventDate,omitempty"`
	}

	// CountTotals is the defaulted form of Counts.
	CountTotals struct {
		Students int64 `json:"students"`
		Colleges int64 `json:"colleges"`
		NGOs     int64 `json:"ngos"`
		Events   int64 `json:"events"`
	}

	// Stats is a snapshot with every field defaulted.
	Stats struct {
		Counts        CountTotals
		Monthly       [MonthsPerYear]int64
		TopCategories []CategoryShare
		RecentEvents  []RecentEvent
	}
)

// Int64 returns a pointer to v, for building Counts literals.
func Int64(v int64) *int64 {
	return &v
}

// FetchOutcome classifies how one upstream fetch ended.
type FetchOutcome string

const (
	OutcomeSuccess           FetchOutcome = "success"
	OutcomeStatsUnavailable  FetchOutcome = "stats_unavailable"
	OutcomeServerUnreachable FetchOutcome = "server_unreachable"
)

// IsValid reports whether o is a known outcome.
func (o FetchOutcome) IsValid() bool {
	switch o {
	case OutcomeSuccess, OutcomeStatsUnavailable, OutcomeServerUnreachable:
		return true
	default:
		return false
	}
}

// FetchRecord is an operator-facing log entry for one upstream fetch.
type FetchRecord struct {
	ID           int64
	FetchedAt    time.Time
	Outcome      FetchOutcome
	Duration     time.Duration
	Counts       CountTotals
	MonthlyTotal int64
	Categories   int
	Events       int
	Error        string
	ExportedAt   *time.Time
}

var (
	ErrInvalidOutcome = errors.New("invalid fetch outcome")
	ErrZeroFetchTime  = errors.New("fetch time cannot be zero")
	ErrMissingError   = errors.New("failed fetch must carry an error")
	ErrRecordNotFound = errors.New("fetch record not found")
)

func (r FetchRecord) Validate() error {
	if !r.Outcome.IsValid() {
		return ErrInvalidOutcome
	}
	if r.FetchedAt.IsZero() {
		return ErrZeroFetchTime
	}
	if r.Outcome != OutcomeSuccess && strings.TrimSpace(r.Error) == "" {
		return ErrMissingError
	}
	return nil
}
