package packets

import (
	"time"

	"github.com/nestorwheelock/diveops/internal/model"
)

// UpcomingExcursionResponse is the customer-facing shape: public ids only,
// no override bookkeeping.
type UpcomingExcursionResponse struct {
	PublicID      string    `json:"public_id"`
	DepartureTime time.Time `json:"departure_time"`
	DurationMin   int       `json:"duration_min"`
	Capacity      int       `json:"capacity"`
	PriceCents    int       `json:"price_cents"`
	Currency      string    `json:"currency"`
	DiveSite      string    `json:"dive_site"`
	ExcursionType string    `json:"excursion_type"`
	MeetingPoint  string    `json:"meeting_point"`
}

func ToUpcomingExcursionResponse(x *model.Excursion) UpcomingExcursionResponse {
	return UpcomingExcursionResponse{
		PublicID:      x.PublicID,
		DepartureTime: x.DepartureTime,
		DurationMin:   x.DurationMin,
		Capacity:      x.Capacity,
		PriceCents:    x.PriceCents,
		Currency:      x.Currency,
		DiveSite:      x.DiveSite,
		ExcursionType: x.ExcursionType,
		MeetingPoint:  x.MeetingPoint,
	}
}
