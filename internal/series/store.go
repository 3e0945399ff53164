package series

import (
	"context"
	"time"

	"github.com/nestorwheelock/diveops/internal/model"
)

// Store is the engine's view of the backing store. WithSeriesLock runs fn in
// one atomic transaction holding an exclusive lock scoped to the series id,
// so overlapping syncs or a sync racing an edit on the same series serialize;
// different series proceed in parallel. The unique key on
// (series, occurrence_start) is the backstop underneath the lock.
type Store interface {
	WithSeriesLock(ctx context.Context, seriesID int, fn func(tx Tx) error) error
	CreateSeries(ctx context.Context, s *model.ExcursionSeries) (int, error)
}

// Tx is the transactional surface the engine works against. Getters return
// (nil, nil) when no row exists.
type Tx interface {
	GetSeries(id int) (*model.ExcursionSeries, error)
	CreateSeries(s *model.ExcursionSeries) (int, error)
	UpdateSeriesTemplate(id int, tpl model.Template) error
	SetSeriesWatermark(id int, t time.Time) error
	BoundSeriesPattern(id int, dtend time.Time) error

	GetException(seriesID int, originalStart time.Time) (*model.SeriesException, error)
	UpsertException(seriesID int, originalStart time.Time, kind model.ExceptionType, newStart *time.Time, reason string) error
	ListAddedExceptions(seriesID int, from, to time.Time) ([]model.SeriesException, error)
	ListExceptionsFrom(seriesID int, from time.Time) ([]model.SeriesException, error)
	ReassignException(id, newSeriesID int) error

	GetOccurrence(seriesID int, occurrenceStart time.Time) (*model.Excursion, error)
	UpsertOccurrence(x *model.Excursion) (int, error)
	SetOccurrenceStatus(id int, status model.ExcursionStatus) error
	ReassignOccurrence(id, newSeriesID int) error
	ListOccurrencesFrom(seriesID int, from time.Time) ([]model.Excursion, error)

	ActiveBookingCount(excursionID int) (int, error)
}

type EventKind string

const (
	EventCreated    EventKind = "created"
	EventRefreshed  EventKind = "refreshed"
	EventCancelled  EventKind = "cancelled"
	EventReassigned EventKind = "reassigned"
)

// OccurrenceEvent is emitted after a committed state change so external
// collaborators (notifications, mobile push) can consume it.
type OccurrenceEvent struct {
	Kind            EventKind `json:"kind"`
	SeriesID        int       `json:"series_id"`
	ExcursionID     int       `json:"excursion_id"`
	OccurrenceStart time.Time `json:"occurrence_start"`
	DepartureTime   time.Time `json:"departure_time"`
}

type EventPublisher interface {
	Publish(ev OccurrenceEvent)
}

type noopPublisher struct{}

func (noopPublisher) Publish(OccurrenceEvent) {}
