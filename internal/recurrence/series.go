package recurrence

import (
	"github.com/nestorwheelock/diveops/internal/model"
)

// FromSeries rebuilds the pattern from the structured columns persisted on a
// series row.
func FromSeries(s *model.ExcursionSeries) (*Pattern, error) {
	byWeekday := make([]int, len(s.ByWeekday))
	for i, d := range s.ByWeekday {
		byWeekday[i] = int(d)
	}
	return New(s.Freq, s.RepeatInterval, byWeekday, s.RepeatCount, s.RepeatUntil, s.DTStart, s.DTEnd, s.Timezone, s.RRule)
}

// ApplyToSeries writes the structured parts of a parsed pattern onto a series
// row before it is persisted.
func ApplyToSeries(p *Pattern, s *model.ExcursionSeries) {
	s.RRule = p.Text
	s.Freq = p.Freq
	s.RepeatInterval = p.Interval
	s.ByWeekday = s.ByWeekday[:0]
	for _, d := range p.ByWeekday {
		s.ByWeekday = append(s.ByWeekday, int64(d))
	}
	s.RepeatCount = p.Count
	s.RepeatUntil = p.Until
	s.DTStart = p.DTStart
	s.DTEnd = p.DTEnd
}
