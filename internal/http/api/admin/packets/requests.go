package packets

import (
	"time"

	"github.com/nestorwheelock/diveops/internal/model"
)

// body for creating a recurring series
type CreateSeriesRequest struct {
	Title    string    `json:"title" binding:"required"`
	Timezone string    `json:"timezone" binding:"required"`
	RRule    string    `json:"rrule" binding:"required"`
	DTStart  time.Time `json:"dtstart" binding:"required"`

	WindowDays int `json:"window_days"`

	DurationMin   int    `json:"duration_min" binding:"required"`
	Capacity      int    `json:"capacity" binding:"required"`
	PriceCents    int    `json:"price_cents" binding:"required"`
	Currency      string `json:"currency" binding:"required"`
	DiveSite      string `json:"dive_site" binding:"required"`
	ExcursionType string `json:"excursion_type" binding:"required"`
	MeetingPoint  string `json:"meeting_point"`
	Notes         string `json:"notes"`
}

type SetSeriesStatusRequest struct {
	Status model.SeriesStatus `json:"status" binding:"required,oneof=active paused archived"`
}

// body for cancelling one occurrence of a series
type CancelOccurrenceRequest struct {
	OccurrenceStart time.Time `json:"occurrence_start" binding:"required"`
	Reason          string    `json:"reason"`
	Force           bool      `json:"force"`
}

// body for editing one occurrence. Changes holds sparse template field
// updates; NewStart reschedules the departure without changing the key.
type EditOccurrenceRequest struct {
	OccurrenceStart time.Time      `json:"occurrence_start" binding:"required"`
	Changes         model.FieldMap `json:"changes"`
	NewStart        *time.Time     `json:"new_start"`
}

type RevertOccurrenceRequest struct {
	OccurrenceStart time.Time `json:"occurrence_start" binding:"required"`
}

// body for adding an extra occurrence outside the pattern
type AddOccurrenceRequest struct {
	NewStart time.Time `json:"new_start" binding:"required"`
	Reason   string    `json:"reason"`
}

// body for editing the series template, either for every future occurrence
// or splitting the series at the current instant first
type EditSeriesRequest struct {
	Changes model.FieldMap `json:"changes" binding:"required"`
	Scope   string         `json:"scope" binding:"required,oneof=all this_and_following"`
}

type SplitSeriesRequest struct {
	SplitAt time.Time `json:"split_at" binding:"required"`
}
