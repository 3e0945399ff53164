package series

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnknownOccurrence is returned when an edit targets an instant the
// pattern never produced and no exception or materialized row exists for.
var ErrUnknownOccurrence = errors.New("no occurrence at that instant")

// SyncError wraps any failure during a sync pass. Sync is idempotent and the
// watermark only advances on full success, so the caller may retry.
type SyncError struct {
	SeriesID int
	Err      error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync series %d: %v", e.SeriesID, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

// OccurrenceHasBookingsError is returned by cancel paths when active bookings
// exist and no force flag was supplied. The caller may force or back off;
// notifying booked customers is not this engine's job.
type OccurrenceHasBookingsError struct {
	ExcursionID int
	Bookings    int
}

func (e *OccurrenceHasBookingsError) Error() string {
	return fmt.Sprintf("excursion %d has %d active booking(s)", e.ExcursionID, e.Bookings)
}

// SplitBoundaryError is returned when a series cannot be split at the
// requested instant.
type SplitBoundaryError struct {
	SeriesID int
	SplitAt  time.Time
	Reason   string
}

func (e *SplitBoundaryError) Error() string {
	return fmt.Sprintf("cannot split series %d at %s: %s", e.SeriesID, e.SplitAt.Format(time.RFC3339), e.Reason)
}

// DuplicateExceptionError is returned when an added occurrence collides with
// an instant the series already accounts for.
type DuplicateExceptionError struct {
	SeriesID      int
	OriginalStart time.Time
}

func (e *DuplicateExceptionError) Error() string {
	return fmt.Sprintf("series %d already has an occurrence or exception at %s", e.SeriesID, e.OriginalStart.Format(time.RFC3339))
}
