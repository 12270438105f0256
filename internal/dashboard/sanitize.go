package dashboard

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"markin/internal/core"
)

// Sanitizer strips markup from upstream free text before it is shown.
type Sanitizer struct {
	policy *bluemonday.Policy
}

func NewSanitizer() *Sanitizer {
	return &Sanitizer{policy: bluemonday.StrictPolicy()}
}

// Text removes tags and control characters from s. Entities are decoded
// so the caller's own escaping applies exactly once.
func (s *Sanitizer) Text(in string) string {
	out := html.UnescapeString(s.policy.Sanitize(in))
	out = strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, out)
	return strings.TrimSpace(out)
}

// Model returns a copy of m with every upstream string cleaned.
func (s *Sanitizer) Model(m core.DisplayModel) core.DisplayModel {
	out := m
	out.TopCategories = make([]core.CategoryShare, len(m.TopCategories))
	for i, c := range m.TopCategories {
		out.TopCategories[i] = core.CategoryShare{Name: s.Text(c.Name), Percentage: c.Percentage}
	}
	out.RecentEvents = make([]core.EventCard, len(m.RecentEvents))
	for i, e := range m.RecentEvents {
		e.Title = s.Text(e.Title)
		e.Date = s.Text(e.Date)
		e.Location = s.Text(e.Location)
		out.RecentEvents[i] = e
	}
	return out
}
