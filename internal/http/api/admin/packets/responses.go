package packets

import (
	"time"

	"github.com/nestorwheelock/diveops/internal/model"
)

type SeriesResponse struct {
	ID           int                `json:"id"`
	PublicID     string             `json:"public_id"`
	Title        string             `json:"title"`
	Status       model.SeriesStatus `json:"status"`
	Timezone     string             `json:"timezone"`
	RRule        string             `json:"rrule"`
	DTStart      time.Time          `json:"dtstart"`
	DTEnd        *time.Time         `json:"dtend,omitempty"`
	WindowDays   int                `json:"window_days"`
	LastSyncedAt *time.Time         `json:"last_synced_at,omitempty"`
	Template     model.Template     `json:"template"`
}

func ToSeriesResponse(s *model.ExcursionSeries) SeriesResponse {
	return SeriesResponse{
		ID:           s.ID,
		PublicID:     s.PublicID,
		Title:        s.Title,
		Status:       s.Status,
		Timezone:     s.Timezone,
		RRule:        s.RRule,
		DTStart:      s.DTStart,
		DTEnd:        s.DTEnd,
		WindowDays:   s.WindowDays,
		LastSyncedAt: s.LastSyncedAt,
		Template:     s.Template,
	}
}

type OccurrenceResponse struct {
	ID              int                   `json:"id"`
	PublicID        string                `json:"public_id"`
	SeriesID        *int                  `json:"series_id,omitempty"`
	OccurrenceStart *time.Time            `json:"occurrence_start,omitempty"`
	DepartureTime   time.Time             `json:"departure_time"`
	Status          model.ExcursionStatus `json:"status"`
	IsOverride      bool                  `json:"is_override"`
	OverrideFields  model.FieldMap        `json:"override_fields,omitempty"`
	Template        model.Template        `json:"template"`
}

func ToOccurrenceResponse(x *model.Excursion) OccurrenceResponse {
	return OccurrenceResponse{
		ID:              x.ID,
		PublicID:        x.PublicID,
		SeriesID:        x.SeriesID,
		OccurrenceStart: x.OccurrenceStart,
		DepartureTime:   x.DepartureTime,
		Status:          x.Status,
		IsOverride:      x.IsOverride,
		OverrideFields:  x.OverrideFields,
		Template:        x.Template,
	}
}
