package recurrence

import (
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

// Supported rule frequencies. Anything else in an RRULE is rejected at
// series creation.
const (
	FreqDaily   = "daily"
	FreqWeekly  = "weekly"
	FreqMonthly = "monthly"
)

// InvalidPatternError is returned when rule text cannot be parsed or dtstart
// is not itself a valid first occurrence under the rule.
type InvalidPatternError struct {
	Rule   string
	Reason string
}

func (e *InvalidPatternError) Error() string {
	return fmt.Sprintf("invalid recurrence rule %q: %s", e.Rule, e.Reason)
}

// weekday table indexed by the RFC-5545 ordering persisted in by_weekday
// columns (0 = Monday .. 6 = Sunday).
var weekdays = []rrule.Weekday{rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA, rrule.SU}

// Pattern is the structured form of a recurrence rule. Rule text is parsed
// once at series creation; expansion works from these parts, the original
// text is carried for display and audit only.
type Pattern struct {
	DTStart   time.Time
	DTEnd     *time.Time // exclusive upper bound set by series split
	Freq      string
	Interval  int
	ByWeekday []int // 0 = Monday .. 6 = Sunday
	Count     int
	Until     *time.Time
	Text      string

	loc *time.Location
}

// Parse validates RRULE text against dtstart and returns the structured
// pattern. dtend, when set, is an exclusive upper bound on candidates.
func Parse(text string, dtstart time.Time, tz string, dtend *time.Time) (*Pattern, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, &InvalidPatternError{Rule: text, Reason: fmt.Sprintf("unknown timezone %q", tz)}
	}

	opt, err := rrule.StrToROption(strings.TrimPrefix(strings.TrimSpace(text), "RRULE:"))
	if err != nil {
		return nil, &InvalidPatternError{Rule: text, Reason: err.Error()}
	}
	// Components the structured pattern cannot persist are rejected outright:
	// an accepted rule must mean exactly what its stored parts say.
	if reason := unsupportedComponent(opt); reason != "" {
		return nil, &InvalidPatternError{Rule: text, Reason: reason}
	}

	p := &Pattern{
		DTStart:  dtstart.In(loc).Truncate(time.Second),
		DTEnd:    dtend,
		Interval: opt.Interval,
		Count:    opt.Count,
		Text:     strings.TrimSpace(text),
		loc:      loc,
	}
	if p.Interval == 0 {
		p.Interval = 1
	}

	switch opt.Freq {
	case rrule.DAILY:
		p.Freq = FreqDaily
	case rrule.WEEKLY:
		p.Freq = FreqWeekly
	case rrule.MONTHLY:
		p.Freq = FreqMonthly
	default:
		return nil, &InvalidPatternError{Rule: text, Reason: "frequency must be DAILY, WEEKLY or MONTHLY"}
	}

	for _, wd := range opt.Byweekday {
		p.ByWeekday = append(p.ByWeekday, wd.Day())
	}
	if !opt.Until.IsZero() {
		u := opt.Until.In(loc)
		p.Until = &u
	}

	return p, p.validate()
}

// unsupportedComponent returns a rejection reason when the parsed options
// carry anything beyond FREQ, INTERVAL, BYDAY, COUNT and UNTIL.
func unsupportedComponent(opt *rrule.ROption) string {
	extras := []struct {
		name string
		n    int
	}{
		{"BYSETPOS", len(opt.Bysetpos)},
		{"BYMONTH", len(opt.Bymonth)},
		{"BYMONTHDAY", len(opt.Bymonthday)},
		{"BYYEARDAY", len(opt.Byyearday)},
		{"BYWEEKNO", len(opt.Byweekno)},
		{"BYHOUR", len(opt.Byhour)},
		{"BYMINUTE", len(opt.Byminute)},
		{"BYSECOND", len(opt.Bysecond)},
		{"BYEASTER", len(opt.Byeaster)},
	}
	for _, e := range extras {
		if e.n > 0 {
			return fmt.Sprintf("%s is not supported; only FREQ, INTERVAL, BYDAY, COUNT and UNTIL are accepted", e.name)
		}
	}
	if opt.Wkst != rrule.MO {
		return "WKST is not supported"
	}
	for _, wd := range opt.Byweekday {
		if wd.N() != 0 {
			return "ordinal BYDAY values are not supported"
		}
	}
	return ""
}

// New builds a pattern from already-structured parts, e.g. the persisted
// columns of a series row.
func New(freq string, interval int, byWeekday []int, count int, until *time.Time, dtstart time.Time, dtend *time.Time, tz string, text string) (*Pattern, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, &InvalidPatternError{Rule: text, Reason: fmt.Sprintf("unknown timezone %q", tz)}
	}
	if interval <= 0 {
		interval = 1
	}
	p := &Pattern{
		DTStart:   dtstart.In(loc).Truncate(time.Second),
		DTEnd:     dtend,
		Freq:      freq,
		Interval:  interval,
		ByWeekday: byWeekday,
		Count:     count,
		Until:     until,
		Text:      text,
		loc:       loc,
	}
	return p, p.validate()
}

// validate compiles the rule once and checks the dtstart-is-first-occurrence
// invariant.
func (p *Pattern) validate() error {
	r, err := p.rule()
	if err != nil {
		return &InvalidPatternError{Rule: p.Text, Reason: err.Error()}
	}
	first := r.After(p.DTStart, true)
	if !first.Equal(p.DTStart) {
		return &InvalidPatternError{Rule: p.Text, Reason: "dtstart is not a valid first occurrence of the rule"}
	}
	return nil
}

func (p *Pattern) rule() (*rrule.RRule, error) {
	opt := rrule.ROption{
		Dtstart:  p.DTStart,
		Interval: p.Interval,
		Count:    p.Count,
	}
	switch p.Freq {
	case FreqDaily:
		opt.Freq = rrule.DAILY
	case FreqWeekly:
		opt.Freq = rrule.WEEKLY
	case FreqMonthly:
		opt.Freq = rrule.MONTHLY
	default:
		return nil, fmt.Errorf("unsupported frequency %q", p.Freq)
	}
	for _, d := range p.ByWeekday {
		if d < 0 || d >= len(weekdays) {
			return nil, fmt.Errorf("weekday index %d out of range", d)
		}
		opt.Byweekday = append(opt.Byweekday, weekdays[d])
	}
	if p.Until != nil {
		opt.Until = *p.Until
	}
	return rrule.NewRRule(opt)
}

// Location returns the pattern's timezone.
func (p *Pattern) Location() *time.Location { return p.loc }

// Expand returns every candidate instant in [rangeStart, rangeEnd], both
// edges inclusive, normalized to the pattern's timezone. It is a pure
// function of its inputs; the rule is recompiled per call so concurrent
// expansions never share iterator state.
func (p *Pattern) Expand(rangeStart, rangeEnd time.Time) ([]time.Time, error) {
	r, err := p.rule()
	if err != nil {
		return nil, &InvalidPatternError{Rule: p.Text, Reason: err.Error()}
	}
	raw := r.Between(rangeStart, rangeEnd, true)
	out := make([]time.Time, 0, len(raw))
	for _, t := range raw {
		if p.DTEnd != nil && !t.Before(*p.DTEnd) {
			continue
		}
		out = append(out, t.In(p.loc))
	}
	return out, nil
}

// Matches reports whether instant is a canonical occurrence of the pattern.
func (p *Pattern) Matches(instant time.Time) bool {
	if instant.Before(p.DTStart) {
		return false
	}
	if p.DTEnd != nil && !instant.Before(*p.DTEnd) {
		return false
	}
	r, err := p.rule()
	if err != nil {
		return false
	}
	next := r.After(instant, true)
	return !next.IsZero() && next.Equal(instant)
}

// NextAfter returns the first occurrence at or after t (inclusive when inc is
// set), or the zero time when the rule is exhausted before t.
func (p *Pattern) NextAfter(t time.Time, inc bool) time.Time {
	r, err := p.rule()
	if err != nil {
		return time.Time{}
	}
	next := r.After(t, inc)
	if next.IsZero() {
		return next
	}
	if p.DTEnd != nil && !next.Before(*p.DTEnd) {
		return time.Time{}
	}
	return next.In(p.loc)
}

// RewriteCount replaces the COUNT component of rule text, or drops it when
// count is zero, so stored text stays in step with a structured count that
// changed, e.g. the remainder kept by a split.
func RewriteCount(text string, count int) string {
	trimmed := strings.TrimPrefix(text, "RRULE:")
	parts := strings.Split(trimmed, ";")
	kept := parts[:0]
	for _, part := range parts {
		if strings.HasPrefix(strings.ToUpper(part), "COUNT=") {
			continue
		}
		kept = append(kept, part)
	}
	if count > 0 {
		kept = append(kept, fmt.Sprintf("COUNT=%d", count))
	}
	out := strings.Join(kept, ";")
	if strings.HasPrefix(text, "RRULE:") {
		return "RRULE:" + out
	}
	return out
}

// OccurrencesBefore counts occurrences strictly before t. Used when splitting
// a count-bounded rule so the split-off series keeps only the remainder.
func (p *Pattern) OccurrencesBefore(t time.Time) (int, error) {
	if p.Count == 0 {
		return 0, nil
	}
	r, err := p.rule()
	if err != nil {
		return 0, &InvalidPatternError{Rule: p.Text, Reason: err.Error()}
	}
	n := 0
	for _, occ := range r.All() {
		if !occ.Before(t) {
			break
		}
		n++
	}
	return n, nil
}
