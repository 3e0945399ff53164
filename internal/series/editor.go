package series

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/nestorwheelock/diveops/internal/model"
	"github.com/nestorwheelock/diveops/internal/recurrence"
)

type EditScope string

const (
	ScopeAll              EditScope = "all"
	ScopeThisAndFollowing EditScope = "this_and_following"
)

// Editor implements occurrence-level and series-level edits, including series
// splitting, on top of the materializer. All operations run under the
// per-series lock.
type Editor struct {
	store Store
	mat   *Materializer

	Now func() time.Time
}

func NewEditor(store Store, mat *Materializer) *Editor {
	return &Editor{store: store, mat: mat, Now: time.Now}
}

// EditResult reports the occurrence an edit touched.
type EditResult struct {
	SeriesID        int       `json:"series_id"`
	ExcursionID     int       `json:"excursion_id"`
	OccurrenceStart time.Time `json:"occurrence_start"`
}

// SplitResult reports what a split did with already-materialized occurrences.
type SplitResult struct {
	SeriesID    int       `json:"series_id"`
	NewSeriesID int       `json:"new_series_id"`
	SplitAt     time.Time `json:"split_at"`
	Reassigned  []int     `json:"reassigned"`
	Pinned      []int     `json:"pinned"`
	Cancelled   []int     `json:"cancelled"`
}

// SeriesEditResult reports a template edit; Split is set for
// scope=this_and_following.
type SeriesEditResult struct {
	SeriesID int          `json:"series_id"`
	Split    *SplitResult `json:"split,omitempty"`
}

// CreateSeries validates the recurrence rule, fills in the structured pattern
// columns and persists the series. An InvalidPatternError leaves nothing
// behind.
func (e *Editor) CreateSeries(ctx context.Context, s *model.ExcursionSeries) (int, error) {
	p, err := recurrence.Parse(s.RRule, s.DTStart, s.Timezone, nil)
	if err != nil {
		return 0, err
	}
	recurrence.ApplyToSeries(p, s)
	if s.PublicID == "" {
		s.PublicID = uuid.NewString()
	}
	if s.Status == "" {
		s.Status = model.SeriesActive
	}
	if s.WindowDays <= 0 {
		s.WindowDays = 30
	}
	id, err := e.store.CreateSeries(ctx, s)
	if err != nil {
		return 0, err
	}
	s.ID = id
	log.Info().Int("series_id", id).Str("rrule", s.RRule).Msg("series created")
	return id, nil
}

// CancelOccurrence records a cancelled exception at the canonical instant and
// status-transitions any materialized occurrence; the row is never deleted.
// With active bookings and no force flag it fails soft. Instants the pattern
// never produces, with nothing materialized and no live exception, are
// rejected rather than left as dangling exceptions.
func (e *Editor) CancelOccurrence(ctx context.Context, seriesID int, occurrenceStart time.Time, reason string, force bool) (*EditResult, error) {
	res := &EditResult{SeriesID: seriesID}
	err := e.store.WithSeriesLock(ctx, seriesID, func(tx Tx) error {
		s, err := e.loadSeries(tx, seriesID)
		if err != nil {
			return err
		}
		pattern, err := recurrence.FromSeries(s)
		if err != nil {
			return err
		}
		instant := occurrenceStart.In(pattern.Location()).Truncate(time.Second)
		res.OccurrenceStart = instant

		exc, err := tx.GetException(seriesID, instant)
		if err != nil {
			return err
		}
		if exc.Retired() {
			exc = nil
		}
		existing, err := tx.GetOccurrence(seriesID, instant)
		if err != nil {
			return err
		}
		if existing == nil && exc == nil && !pattern.Matches(instant) {
			return fmt.Errorf("%w: series %d at %s", ErrUnknownOccurrence, seriesID, instant.Format(time.RFC3339))
		}
		if existing != nil && !force {
			n, err := tx.ActiveBookingCount(existing.ID)
			if err != nil {
				return err
			}
			if n > 0 {
				return &OccurrenceHasBookingsError{ExcursionID: existing.ID, Bookings: n}
			}
		}

		if err := tx.UpsertException(seriesID, instant, model.ExceptionCancelled, nil, reason); err != nil {
			return err
		}
		if existing == nil {
			return nil
		}
		res.ExcursionID = existing.ID
		if existing.Status == model.ExcursionCancelled {
			return nil
		}
		if err := tx.SetOccurrenceStatus(existing.ID, model.ExcursionCancelled); err != nil {
			return err
		}
		e.mat.events.Publish(OccurrenceEvent{
			Kind:            EventCancelled,
			SeriesID:        seriesID,
			ExcursionID:     existing.ID,
			OccurrenceStart: instant,
			DepartureTime:   existing.DepartureTime,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// EditOccurrence merges field changes into the occurrence's override set,
// materializing it first if the pattern has not reached it yet. A newStart
// differing from the canonical instant records a rescheduled exception; the
// occurrence key never moves. Overridden fields survive every future refresh
// until RevertOccurrence clears them.
func (e *Editor) EditOccurrence(ctx context.Context, seriesID int, occurrenceStart time.Time, changes model.FieldMap, newStart *time.Time) (*EditResult, error) {
	res := &EditResult{SeriesID: seriesID}
	err := e.store.WithSeriesLock(ctx, seriesID, func(tx Tx) error {
		s, err := e.loadSeries(tx, seriesID)
		if err != nil {
			return err
		}
		pattern, err := recurrence.FromSeries(s)
		if err != nil {
			return err
		}
		instant := occurrenceStart.In(pattern.Location()).Truncate(time.Second)
		res.OccurrenceStart = instant

		exc, err := tx.GetException(seriesID, instant)
		if err != nil {
			return err
		}
		if exc.Retired() {
			exc = nil
		}
		existing, err := tx.GetOccurrence(seriesID, instant)
		if err != nil {
			return err
		}
		if existing == nil && exc == nil && !pattern.Matches(instant) {
			return fmt.Errorf("%w: series %d at %s", ErrUnknownOccurrence, seriesID, instant.Format(time.RFC3339))
		}

		if newStart != nil && !newStart.Equal(instant) {
			ns := newStart.In(pattern.Location()).Truncate(time.Second)
			kind, reason := model.ExceptionRescheduled, ""
			if exc != nil && exc.Type == model.ExceptionAdded {
				// An added occurrence only exists through its exception;
				// keeping the type moves its departure without detaching the
				// instant from the sync sweep.
				kind, reason = model.ExceptionAdded, exc.Reason
			}
			if err := tx.UpsertException(seriesID, instant, kind, &ns, reason); err != nil {
				return err
			}
			exc, err = tx.GetException(seriesID, instant)
			if err != nil {
				return err
			}
		}

		if _, err := e.mat.materializeOne(tx, s, instant, exc); err != nil {
			return err
		}
		x, err := tx.GetOccurrence(seriesID, instant)
		if err != nil {
			return err
		}
		if x == nil {
			return fmt.Errorf("%w: series %d at %s", ErrUnknownOccurrence, seriesID, instant.Format(time.RFC3339))
		}

		tpl, err := applyChanges(x.Template, changes)
		if err != nil {
			return err
		}
		of := make(model.FieldMap, len(x.OverrideFields)+len(changes))
		for k, v := range x.OverrideFields {
			of[k] = v
		}
		for k, v := range changes {
			of[k] = v
		}
		x.Template = tpl
		x.OverrideFields = of
		x.IsOverride = true
		if _, err := tx.UpsertOccurrence(x); err != nil {
			return err
		}
		res.ExcursionID = x.ID
		e.mat.events.Publish(OccurrenceEvent{
			Kind:            EventRefreshed,
			SeriesID:        seriesID,
			ExcursionID:     x.ID,
			OccurrenceStart: instant,
			DepartureTime:   x.DepartureTime,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// RevertOccurrence clears the override set and refreshes every template
// field from the series, putting the occurrence back under sync control.
func (e *Editor) RevertOccurrence(ctx context.Context, seriesID int, occurrenceStart time.Time) (*EditResult, error) {
	res := &EditResult{SeriesID: seriesID}
	err := e.store.WithSeriesLock(ctx, seriesID, func(tx Tx) error {
		s, err := e.loadSeries(tx, seriesID)
		if err != nil {
			return err
		}
		instant, err := canonical(s, occurrenceStart)
		if err != nil {
			return err
		}
		res.OccurrenceStart = instant

		x, err := tx.GetOccurrence(seriesID, instant)
		if err != nil {
			return err
		}
		if x == nil {
			return fmt.Errorf("%w: series %d at %s", ErrUnknownOccurrence, seriesID, instant.Format(time.RFC3339))
		}
		x.Template = s.Template
		x.OverrideFields = nil
		x.IsOverride = false
		if _, err := tx.UpsertOccurrence(x); err != nil {
			return err
		}
		res.ExcursionID = x.ID
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// AddOccurrence records an added exception and materializes an extra
// occurrence the base pattern never produces, keyed by its own instant.
func (e *Editor) AddOccurrence(ctx context.Context, seriesID int, newStart time.Time, reason string) (*EditResult, error) {
	res := &EditResult{SeriesID: seriesID}
	err := e.store.WithSeriesLock(ctx, seriesID, func(tx Tx) error {
		s, err := e.loadSeries(tx, seriesID)
		if err != nil {
			return err
		}
		pattern, err := recurrence.FromSeries(s)
		if err != nil {
			return err
		}
		instant := newStart.In(pattern.Location()).Truncate(time.Second)
		res.OccurrenceStart = instant

		if pattern.Matches(instant) {
			return &DuplicateExceptionError{SeriesID: seriesID, OriginalStart: instant}
		}
		exc, err := tx.GetException(seriesID, instant)
		if err != nil {
			return err
		}
		if exc != nil && !exc.Retired() {
			return &DuplicateExceptionError{SeriesID: seriesID, OriginalStart: instant}
		}
		existing, err := tx.GetOccurrence(seriesID, instant)
		if err != nil {
			return err
		}
		if existing != nil {
			return &DuplicateExceptionError{SeriesID: seriesID, OriginalStart: instant}
		}

		if err := tx.UpsertException(seriesID, instant, model.ExceptionAdded, &instant, reason); err != nil {
			return err
		}
		exc, err = tx.GetException(seriesID, instant)
		if err != nil {
			return err
		}
		r, err := e.mat.materializeOne(tx, s, instant, exc)
		if err != nil {
			return err
		}
		res.ExcursionID = r.ID
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// EditSeries applies template changes. scope=all mutates the template in
// place so the next sync refreshes every non-overridden future occurrence;
// scope=this_and_following splits at now and applies the changes only to the
// split-off series, preserving the historical template.
func (e *Editor) EditSeries(ctx context.Context, seriesID int, changes model.FieldMap, scope EditScope) (*SeriesEditResult, error) {
	res := &SeriesEditResult{SeriesID: seriesID}
	err := e.store.WithSeriesLock(ctx, seriesID, func(tx Tx) error {
		s, err := e.loadSeries(tx, seriesID)
		if err != nil {
			return err
		}
		switch scope {
		case ScopeAll:
			tpl, err := applyChanges(s.Template, changes)
			if err != nil {
				return err
			}
			return tx.UpdateSeriesTemplate(seriesID, tpl)
		case ScopeThisAndFollowing:
			split, err := e.splitInTx(tx, s, e.Now())
			if err != nil {
				return err
			}
			res.Split = split
			tpl, err := applyChanges(s.Template, changes)
			if err != nil {
				return err
			}
			return tx.UpdateSeriesTemplate(split.NewSeriesID, tpl)
		default:
			return fmt.Errorf("unknown edit scope %q", scope)
		}
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// SplitSeries forks the series at splitAt: the original pattern is bounded so
// it produces no candidates at or after the boundary, and a new series with
// the same rule shape picks up from there.
func (e *Editor) SplitSeries(ctx context.Context, seriesID int, splitAt time.Time) (*SplitResult, error) {
	var res *SplitResult
	err := e.store.WithSeriesLock(ctx, seriesID, func(tx Tx) error {
		s, err := e.loadSeries(tx, seriesID)
		if err != nil {
			return err
		}
		res, err = e.splitInTx(tx, s, splitAt)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// splitInTx does the structural surgery inside the caller's transaction.
// Materialized occurrences at or after the boundary move to the new series
// unless they carry bookings or overrides; those stay pinned on the original
// and the new series gets a cancelled exception at their instant so its sync
// cannot double-materialize the same trip.
func (e *Editor) splitInTx(tx Tx, s *model.ExcursionSeries, splitAt time.Time) (*SplitResult, error) {
	origPattern, err := recurrence.FromSeries(s)
	if err != nil {
		return nil, err
	}
	splitAt = splitAt.In(origPattern.Location()).Truncate(time.Second)
	if splitAt.Before(s.DTStart) {
		return nil, &SplitBoundaryError{SeriesID: s.ID, SplitAt: splitAt, Reason: "split point precedes the pattern start"}
	}

	newStart := origPattern.NextAfter(splitAt, true)
	if newStart.IsZero() {
		return nil, &SplitBoundaryError{SeriesID: s.ID, SplitAt: splitAt, Reason: "rule produces no occurrences at or after the split point"}
	}

	clone := *s
	clone.ID = 0
	clone.PublicID = uuid.NewString()
	clone.DTStart = newStart
	clone.DTEnd = nil
	clone.LastSyncedAt = nil
	clone.ByWeekday = append(clone.ByWeekday[:0:0], s.ByWeekday...)
	if s.RepeatCount > 0 {
		consumed, err := origPattern.OccurrencesBefore(newStart)
		if err != nil {
			return nil, err
		}
		clone.RepeatCount = s.RepeatCount - consumed
		// Keep the stored text honest about the remainder.
		clone.RRule = recurrence.RewriteCount(clone.RRule, clone.RepeatCount)
	}

	newID, err := tx.CreateSeries(&clone)
	if err != nil {
		return nil, err
	}
	if err := tx.BoundSeriesPattern(s.ID, splitAt); err != nil {
		return nil, err
	}

	newPattern, err := recurrence.New(clone.Freq, clone.RepeatInterval, origPattern.ByWeekday, clone.RepeatCount, clone.RepeatUntil, clone.DTStart, nil, s.Timezone, clone.RRule)
	if err != nil {
		return nil, err
	}

	res := &SplitResult{SeriesID: s.ID, NewSeriesID: newID, SplitAt: splitAt}
	pinned := make(map[int64]bool)

	occs, err := tx.ListOccurrencesFrom(s.ID, splitAt)
	if err != nil {
		return nil, err
	}
	for i := range occs {
		occ := &occs[i]
		instant := *occ.OccurrenceStart
		n, err := tx.ActiveBookingCount(occ.ID)
		if err != nil {
			return nil, err
		}
		switch {
		case n > 0 || occ.IsOverride:
			if err := tx.UpsertException(newID, instant, model.ExceptionCancelled, nil, "pinned to original series at split"); err != nil {
				return nil, err
			}
			pinned[instant.Unix()] = true
			res.Pinned = append(res.Pinned, occ.ID)
		case newPattern.Matches(instant):
			if err := tx.ReassignOccurrence(occ.ID, newID); err != nil {
				return nil, err
			}
			e.mat.events.Publish(OccurrenceEvent{
				Kind:            EventReassigned,
				SeriesID:        newID,
				ExcursionID:     occ.ID,
				OccurrenceStart: instant,
				DepartureTime:   occ.DepartureTime,
			})
			res.Reassigned = append(res.Reassigned, occ.ID)
		default:
			// Phase no longer matches; cancel the stale row and let the new
			// series re-materialize on its next sync.
			if err := tx.SetOccurrenceStatus(occ.ID, model.ExcursionCancelled); err != nil {
				return nil, err
			}
			res.Cancelled = append(res.Cancelled, occ.ID)
		}
	}

	excs, err := tx.ListExceptionsFrom(s.ID, splitAt)
	if err != nil {
		return nil, err
	}
	for _, exc := range excs {
		if pinned[exc.OriginalStart.Unix()] {
			continue
		}
		if err := tx.ReassignException(exc.ID, newID); err != nil {
			return nil, err
		}
	}

	log.Info().
		Int("series_id", s.ID).
		Int("new_series_id", newID).
		Time("split_at", splitAt).
		Int("reassigned", len(res.Reassigned)).
		Int("pinned", len(res.Pinned)).
		Msg("series split")
	return res, nil
}

func (e *Editor) loadSeries(tx Tx, seriesID int) (*model.ExcursionSeries, error) {
	s, err := tx.GetSeries(seriesID)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, fmt.Errorf("series %d not found", seriesID)
	}
	return s, nil
}

// canonical normalizes a caller-supplied instant to the pattern's timezone
// and second precision, matching how occurrence keys are produced.
func canonical(s *model.ExcursionSeries, t time.Time) (time.Time, error) {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.Time{}, fmt.Errorf("series %d: unknown timezone %q", s.ID, s.Timezone)
	}
	return t.In(loc).Truncate(time.Second), nil
}
