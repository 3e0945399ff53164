package model

import "time"

type BookingStatus string

const (
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
)

// Booking is owned by the booking subsystem; the recurrence engine only ever
// asks "does this excursion have active bookings".
type Booking struct {
	ID          int           `db:"id" json:"id"`
	ExcursionID int           `db:"excursion_id" json:"excursion_id"`
	DiverName   string        `db:"diver_name" json:"diver_name"`
	DiverEmail  string        `db:"diver_email" json:"diver_email"`
	Status      BookingStatus `db:"status" json:"status"`
	CreatedAt   time.Time     `db:"created_at" json:"created_at"`
}
