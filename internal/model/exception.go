package model

import "time"

type ExceptionType string

const (
	ExceptionCancelled   ExceptionType = "cancelled"
	ExceptionRescheduled ExceptionType = "rescheduled"
	ExceptionAdded       ExceptionType = "added"
)

// SeriesException records one deviation from what the base pattern would
// produce, keyed by the canonical occurrence instant. At most one non-retired
// row exists per (series, original_start); superseded rows are soft-retired.
type SeriesException struct {
	ID            int           `db:"id" json:"id"`
	SeriesID      int           `db:"series_id" json:"series_id"`
	OriginalStart time.Time     `db:"original_start" json:"original_start"`
	Type          ExceptionType `db:"exception_type" json:"exception_type"`
	NewStart      *time.Time    `db:"new_start" json:"new_start"`
	Reason        string        `db:"reason" json:"reason"`
	RetiredAt     *time.Time    `db:"retired_at" json:"retired_at"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
}

// Retired reports whether the row has been superseded by a later write.
func (e *SeriesException) Retired() bool {
	return e != nil && e.RetiredAt != nil
}
