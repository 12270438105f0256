package dashboard

import (
	"encoding/json"
	"math/rand"

	"github.com/dustin/go-humanize"

	"markin/internal/core"
	"markin/internal/stats"
)

type Phase int

const (
	PhaseLoading Phase = iota
	PhaseSuccess
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseLoading:
		return "loading"
	case PhaseSuccess:
		return "success"
	case PhaseError:
		return "error"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can happen.
func (p Phase) Terminal() bool {
	return p == PhaseSuccess || p == PhaseError
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Reason distinguishes the two failure kinds for user messaging.
type Reason string

const (
	ReasonStatsUnavailable  Reason = "stats unavailable"
	ReasonServerUnreachable Reason = "could not reach server"
)

// Message is the one-line banner shown for the reason.
func (r Reason) Message() string {
	switch r {
	case ReasonStatsUnavailable:
		return "Failed to load stats."
	case ReasonServerUnreachable:
		return "Could not reach server."
	default:
		return ""
	}
}

// Placeholders for count tiles outside Success.
const (
	LoadingPlaceholder = "..."
	ErrorPlaceholder   = "N/A"
)

// State is what the renderer reads. Model is always renderable: in
// Loading and Error it holds the all-default model.
type State struct {
	Phase  Phase
	Model  core.DisplayModel
	Reason Reason
}

func successState(m core.DisplayModel) State {
	return State{Phase: PhaseSuccess, Model: m}
}

func errorState(err error) State {
	reason := ReasonServerUnreachable
	if stats.KindOf(err) == stats.KindServerReported {
		reason = ReasonStatsUnavailable
	}
	return Failed(reason)
}

// Failed returns the Error state for reason without running a page view,
// for responses that never reach the stats service.
func Failed(reason Reason) State {
	return State{
		Phase:  PhaseError,
		Model:  stats.DefaultDisplayModel(reason.Message()),
		Reason: reason,
	}
}

// Message is the error banner text, empty unless Phase is PhaseError.
func (s State) Message() string {
	if s.Phase != PhaseError {
		return ""
	}
	return s.Reason.Message()
}

// TileValue formats a count tile for the current phase.
func (s State) TileValue(n int64) string {
	switch s.Phase {
	case PhaseLoading:
		return LoadingPlaceholder
	case PhaseError:
		return ErrorPlaceholder
	default:
		return humanize.Comma(n)
	}
}

// Tile is one headline count.
type Tile struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Color string `json:"color"`
}

// Tiles returns the four headline counts in display order.
func (s State) Tiles() []Tile {
	c := s.Model.Counts
	return []Tile{
		{Title: "Total Students", Value: s.TileValue(c.Students), Color: "blue"},
		{Title: "Colleges Registered", Value: s.TileValue(c.Colleges), Color: "purple"},
		{Title: "NGOs Registered", Value: s.TileValue(c.NGOs), Color: "green"},
		{Title: "Total Events", Value: s.TileValue(c.Events), Color: "orange"},
	}
}

func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Phase   Phase             `json:"phase"`
		Reason  Reason            `json:"reason,omitempty"`
		Message string            `json:"message,omitempty"`
		Tiles   []Tile            `json:"tiles"`
		Model   core.DisplayModel `json:"model"`
	}{
		Phase:   s.Phase,
		Reason:  s.Reason,
		Message: s.Message(),
		Tiles:   s.Tiles(),
		Model:   s.Model,
	})
}

// SkeletonBars returns twelve cosmetic bar heights in [20, 80) percent for
// the loading chart. They carry no data. A nil source uses math/rand.
func SkeletonBars(float64Source func() float64) []int {
	if float64Source == nil {
		float64Source = rand.Float64
	}
	out := make([]int, core.MonthsPerYear)
	for i := range out {
		out[i] = int(float64Source()*60 + 20)
	}
	return out
}
