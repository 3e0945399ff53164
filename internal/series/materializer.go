package series

import (
	"time"

	"github.com/google/uuid"

	"github.com/nestorwheelock/diveops/internal/model"
)

// Materializer decides, for one candidate instant, whether a concrete
// excursion record should exist and what its fields should be, then performs
// an idempotent create/refresh keyed by (series, occurrence_start).
type Materializer struct {
	events EventPublisher
}

func NewMaterializer(events EventPublisher) *Materializer {
	if events == nil {
		events = noopPublisher{}
	}
	return &Materializer{events: events}
}

type matResult struct {
	ID        int
	Created   bool
	Changed   bool
	Cancelled bool
	Skipped   bool
}

// materializeOne applies the decision table for a single canonical instant.
// exc is the non-retired exception at that instant, or nil.
//
//	none        -> create/refresh with template defaults, departure = instant
//	cancelled   -> skip if nothing exists, else status-transition (never delete)
//	rescheduled -> create/refresh with departure = new_start, key unchanged
//	added       -> create/refresh keyed by the added instant, departure = new_start
func (m *Materializer) materializeOne(tx Tx, s *model.ExcursionSeries, instant time.Time, exc *model.SeriesException) (matResult, error) {
	if exc.Retired() {
		exc = nil
	}

	existing, err := tx.GetOccurrence(s.ID, instant)
	if err != nil {
		return matResult{}, err
	}

	if exc != nil && exc.Type == model.ExceptionCancelled {
		if existing == nil {
			return matResult{Skipped: true}, nil
		}
		if existing.Status == model.ExcursionCancelled {
			return matResult{ID: existing.ID, Cancelled: true}, nil
		}
		if err := tx.SetOccurrenceStatus(existing.ID, model.ExcursionCancelled); err != nil {
			return matResult{}, err
		}
		m.events.Publish(OccurrenceEvent{
			Kind:            EventCancelled,
			SeriesID:        s.ID,
			ExcursionID:     existing.ID,
			OccurrenceStart: instant,
			DepartureTime:   existing.DepartureTime,
		})
		return matResult{ID: existing.ID, Cancelled: true, Changed: true}, nil
	}

	departure := instant
	if exc != nil && exc.NewStart != nil &&
		(exc.Type == model.ExceptionRescheduled || exc.Type == model.ExceptionAdded) {
		departure = *exc.NewStart
	}

	if existing == nil {
		// New occurrences copy the full template snapshot at creation time.
		x := &model.Excursion{
			PublicID:        uuid.NewString(),
			SeriesID:        &s.ID,
			OccurrenceStart: &instant,
			DepartureTime:   departure,
			Status:          model.ExcursionScheduled,
			Template:        s.Template,
		}
		id, err := tx.UpsertOccurrence(x)
		if err != nil {
			return matResult{}, err
		}
		m.events.Publish(OccurrenceEvent{
			Kind:            EventCreated,
			SeriesID:        s.ID,
			ExcursionID:     id,
			OccurrenceStart: instant,
			DepartureTime:   departure,
		})
		return matResult{ID: id, Created: true, Changed: true}, nil
	}

	if existing.Status == model.ExcursionArchived {
		// Archived rows belong to a deactivated series lifecycle; leave them.
		return matResult{ID: existing.ID}, nil
	}

	// Refresh: overwrite template-sourced fields except override keys; the
	// is_override flag and override_fields map are never touched here.
	merged := mergeTemplate(existing.Template, s.Template, existing.OverrideFields)
	status := existing.Status
	if status == model.ExcursionCancelled {
		// The cancelled exception no longer stands, reinstate.
		status = model.ExcursionScheduled
	}
	if merged == existing.Template && departure.Equal(existing.DepartureTime) && status == existing.Status {
		return matResult{ID: existing.ID}, nil
	}

	upd := *existing
	upd.Template = merged
	upd.DepartureTime = departure
	upd.Status = status
	if _, err := tx.UpsertOccurrence(&upd); err != nil {
		return matResult{}, err
	}
	m.events.Publish(OccurrenceEvent{
		Kind:            EventRefreshed,
		SeriesID:        s.ID,
		ExcursionID:     existing.ID,
		OccurrenceStart: instant,
		DepartureTime:   departure,
	})
	return matResult{ID: existing.ID, Changed: true}, nil
}
