package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustLoc(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	require.NoError(t, err)
	return loc
}

func TestParse_WeeklySaturday(t *testing.T) {
	loc := mustLoc(t, "America/Cancun")
	dtstart := time.Date(2026, 1, 3, 9, 0, 0, 0, loc) // a Saturday

	p, err := Parse("RRULE:FREQ=WEEKLY;BYDAY=SA", dtstart, "America/Cancun", nil)
	require.NoError(t, err)
	assert.Equal(t, FreqWeekly, p.Freq)
	assert.Equal(t, 1, p.Interval)
	assert.Equal(t, []int{5}, p.ByWeekday)

	occs, err := p.Expand(dtstart, time.Date(2026, 1, 31, 23, 59, 59, 0, loc))
	require.NoError(t, err)
	require.Len(t, occs, 5)
	for i, day := range []int{3, 10, 17, 24, 31} {
		assert.Equal(t, time.Date(2026, 1, day, 9, 0, 0, 0, loc), occs[i])
		assert.Equal(t, loc, occs[i].Location())
	}
}

func TestParse_Rejects(t *testing.T) {
	loc := mustLoc(t, "America/Cancun")
	saturday := time.Date(2026, 1, 3, 9, 0, 0, 0, loc)

	t.Run("garbage text", func(t *testing.T) {
		_, err := Parse("FREQ=SOMETIMES", saturday, "America/Cancun", nil)
		var perr *InvalidPatternError
		assert.ErrorAs(t, err, &perr)
	})

	t.Run("unsupported frequency", func(t *testing.T) {
		_, err := Parse("RRULE:FREQ=YEARLY", saturday, "America/Cancun", nil)
		var perr *InvalidPatternError
		require.ErrorAs(t, err, &perr)
		assert.Contains(t, perr.Reason, "DAILY, WEEKLY or MONTHLY")
	})

	t.Run("unknown timezone", func(t *testing.T) {
		_, err := Parse("RRULE:FREQ=WEEKLY;BYDAY=SA", saturday, "Atlantis/Lost", nil)
		var perr *InvalidPatternError
		assert.ErrorAs(t, err, &perr)
	})

	t.Run("dtstart off pattern", func(t *testing.T) {
		sunday := time.Date(2026, 1, 4, 9, 0, 0, 0, loc)
		_, err := Parse("RRULE:FREQ=WEEKLY;BYDAY=SA", sunday, "America/Cancun", nil)
		var perr *InvalidPatternError
		require.ErrorAs(t, err, &perr)
		assert.Contains(t, perr.Reason, "first occurrence")
	})

	// Components the structured pattern does not persist must fail loudly:
	// silently dropping BYMONTHDAY=1,15 would accept a rule that runs trips
	// on different days than staff wrote.
	t.Run("unsupported components", func(t *testing.T) {
		for name, rule := range map[string]string{
			"bymonthday": "RRULE:FREQ=MONTHLY;BYMONTHDAY=1,15",
			"bysetpos":   "RRULE:FREQ=MONTHLY;BYDAY=SA;BYSETPOS=1",
			"byhour":     "RRULE:FREQ=DAILY;BYHOUR=9,14",
			"bymonth":    "RRULE:FREQ=WEEKLY;BYDAY=SA;BYMONTH=6",
			"wkst":       "RRULE:FREQ=WEEKLY;BYDAY=SA;WKST=SU",
		} {
			t.Run(name, func(t *testing.T) {
				_, err := Parse(rule, saturday, "America/Cancun", nil)
				var perr *InvalidPatternError
				require.ErrorAs(t, err, &perr)
				assert.Contains(t, perr.Reason, "not supported")
			})
		}
	})

	t.Run("ordinal byday", func(t *testing.T) {
		_, err := Parse("RRULE:FREQ=MONTHLY;BYDAY=2MO", saturday, "America/Cancun", nil)
		var perr *InvalidPatternError
		require.ErrorAs(t, err, &perr)
		assert.Contains(t, perr.Reason, "ordinal BYDAY")
	})
}

func TestRewriteCount(t *testing.T) {
	assert.Equal(t, "RRULE:FREQ=WEEKLY;BYDAY=SA;COUNT=8", RewriteCount("RRULE:FREQ=WEEKLY;BYDAY=SA;COUNT=10", 8))
	assert.Equal(t, "RRULE:FREQ=WEEKLY;BYDAY=SA", RewriteCount("RRULE:FREQ=WEEKLY;COUNT=10;BYDAY=SA", 0))
	assert.Equal(t, "FREQ=DAILY;COUNT=3", RewriteCount("FREQ=DAILY", 3))
}

func TestExpand_CountAndUntil(t *testing.T) {
	loc := mustLoc(t, "UTC")
	dtstart := time.Date(2026, 3, 2, 8, 0, 0, 0, loc)

	t.Run("count bounded", func(t *testing.T) {
		p, err := Parse("RRULE:FREQ=DAILY;COUNT=3", dtstart, "UTC", nil)
		require.NoError(t, err)
		occs, err := p.Expand(dtstart, dtstart.AddDate(0, 1, 0))
		require.NoError(t, err)
		assert.Len(t, occs, 3)
	})

	t.Run("until bounded", func(t *testing.T) {
		p, err := Parse("RRULE:FREQ=DAILY;UNTIL=20260305T080000Z", dtstart, "UTC", nil)
		require.NoError(t, err)
		occs, err := p.Expand(dtstart, dtstart.AddDate(0, 1, 0))
		require.NoError(t, err)
		assert.Len(t, occs, 4) // Mar 2, 3, 4, 5
	})
}

func TestExpand_DTEndExclusive(t *testing.T) {
	loc := mustLoc(t, "UTC")
	dtstart := time.Date(2026, 1, 3, 9, 0, 0, 0, loc)
	dtend := time.Date(2026, 1, 17, 9, 0, 0, 0, loc)

	p, err := Parse("RRULE:FREQ=WEEKLY;BYDAY=SA", dtstart, "UTC", &dtend)
	require.NoError(t, err)

	occs, err := p.Expand(dtstart, dtstart.AddDate(0, 2, 0))
	require.NoError(t, err)
	// Jan 17 falls exactly on the exclusive bound and is dropped.
	require.Len(t, occs, 2)
	assert.Equal(t, time.Date(2026, 1, 3, 9, 0, 0, 0, loc), occs[0])
	assert.Equal(t, time.Date(2026, 1, 10, 9, 0, 0, 0, loc), occs[1])

	assert.False(t, p.Matches(dtend))
	assert.True(t, p.Matches(occs[1]))
}

func TestMatchesAndNextAfter(t *testing.T) {
	loc := mustLoc(t, "UTC")
	dtstart := time.Date(2026, 1, 3, 9, 0, 0, 0, loc)
	p, err := Parse("RRULE:FREQ=WEEKLY;BYDAY=SA", dtstart, "UTC", nil)
	require.NoError(t, err)

	assert.True(t, p.Matches(dtstart))
	assert.True(t, p.Matches(time.Date(2026, 1, 10, 9, 0, 0, 0, loc)))
	assert.False(t, p.Matches(time.Date(2026, 1, 10, 10, 0, 0, 0, loc)))
	assert.False(t, p.Matches(dtstart.AddDate(0, 0, -7)))

	next := p.NextAfter(time.Date(2026, 1, 5, 0, 0, 0, 0, loc), true)
	assert.Equal(t, time.Date(2026, 1, 10, 9, 0, 0, 0, loc), next)

	// inclusive flag keeps an exact hit
	assert.Equal(t, dtstart, p.NextAfter(dtstart, true))
	assert.Equal(t, dtstart.AddDate(0, 0, 7), p.NextAfter(dtstart, false))
}

func TestNextAfter_ExhaustedRule(t *testing.T) {
	loc := mustLoc(t, "UTC")
	dtstart := time.Date(2026, 1, 3, 9, 0, 0, 0, loc)
	p, err := Parse("RRULE:FREQ=WEEKLY;BYDAY=SA;COUNT=2", dtstart, "UTC", nil)
	require.NoError(t, err)

	assert.True(t, p.NextAfter(time.Date(2026, 2, 1, 0, 0, 0, 0, loc), true).IsZero())
}

func TestOccurrencesBefore(t *testing.T) {
	loc := mustLoc(t, "UTC")
	dtstart := time.Date(2026, 1, 3, 9, 0, 0, 0, loc)
	p, err := Parse("RRULE:FREQ=WEEKLY;BYDAY=SA;COUNT=10", dtstart, "UTC", nil)
	require.NoError(t, err)

	n, err := p.OccurrencesBefore(time.Date(2026, 1, 17, 9, 0, 0, 0, loc))
	require.NoError(t, err)
	assert.Equal(t, 2, n) // Jan 3 and Jan 10

	// unbounded rules report zero consumed
	unbounded, err := Parse("RRULE:FREQ=WEEKLY;BYDAY=SA", dtstart, "UTC", nil)
	require.NoError(t, err)
	n, err = unbounded.OccurrencesBefore(time.Date(2026, 6, 1, 0, 0, 0, 0, loc))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
