package model

import (
	"time"

	"github.com/lib/pq"
)

type SeriesStatus string

const (
	SeriesActive   SeriesStatus = "active"
	SeriesPaused   SeriesStatus = "paused"
	SeriesArchived SeriesStatus = "archived"
)

// Template is the reusable attribute set a materialized excursion inherits
// from its series unless overridden per occurrence.
type Template struct {
	DurationMin   int    `db:"duration_min" json:"duration_min"`
	Capacity      int    `db:"capacity" json:"capacity"`
	PriceCents    int    `db:"price_cents" json:"price_cents"`
	Currency      string `db:"currency" json:"currency"`
	DiveSite      string `db:"dive_site" json:"dive_site"`
	ExcursionType string `db:"excursion_type" json:"excursion_type"`
	MeetingPoint  string `db:"meeting_point" json:"meeting_point"`
	Notes         string `db:"notes" json:"notes"`
}

// ExcursionSeries owns one recurrence pattern. The rule is parsed once at
// creation and persisted structured (freq, interval, weekdays, bounds); the
// raw RRULE text is kept for display and audit only.
type ExcursionSeries struct {
	ID       int          `db:"id" json:"id"`
	PublicID string       `db:"public_id" json:"public_id"`
	Title    string       `db:"title" json:"title"`
	Status   SeriesStatus `db:"status" json:"status"`
	Timezone string       `db:"timezone" json:"timezone"`

	RRule          string        `db:"rrule" json:"rrule"`
	Freq           string        `db:"freq" json:"freq"`
	RepeatInterval int           `db:"repeat_interval" json:"repeat_interval"`
	ByWeekday      pq.Int64Array `db:"by_weekday" json:"by_weekday"`
	RepeatCount    int           `db:"repeat_count" json:"repeat_count"`
	RepeatUntil    *time.Time    `db:"repeat_until" json:"repeat_until"`
	DTStart        time.Time     `db:"dtstart" json:"dtstart"`
	DTEnd          *time.Time    `db:"dtend" json:"dtend"`

	// WindowDays is how far ahead materialization must reach; LastSyncedAt is
	// the watermark up to which occurrences are guaranteed materialized.
	WindowDays   int        `db:"window_days" json:"window_days"`
	LastSyncedAt *time.Time `db:"last_synced_at" json:"last_synced_at"`

	Template

	CreatedBy int       `db:"created_by" json:"created_by"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
