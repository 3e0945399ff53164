package series

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nestorwheelock/diveops/internal/model"
)

var testNow = time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)

// newSaturdayFixture creates a weekly Saturday 09:00 series starting
// 2026-01-03 with a 21 day window, so a sync at testNow covers Jan 3, 10
// and 17.
func newSaturdayFixture(t *testing.T) (*memStore, *Editor, *Syncer, int, *eventRecorder) {
	t.Helper()
	store := newMemStore()
	rec := &eventRecorder{}
	mat := NewMaterializer(rec)
	editor := NewEditor(store, mat)
	editor.Now = func() time.Time { return testNow }
	syncer := NewSyncer(store, mat)
	syncer.Now = func() time.Time { return testNow }

	s := &model.ExcursionSeries{
		Title:      "Saturday Reef Trip",
		Timezone:   "UTC",
		RRule:      "RRULE:FREQ=WEEKLY;BYDAY=SA",
		DTStart:    time.Date(2026, 1, 3, 9, 0, 0, 0, time.UTC),
		WindowDays: 21,
		Template: model.Template{
			DurationMin:   180,
			Capacity:      12,
			PriceCents:    10000,
			Currency:      "USD",
			DiveSite:      "Palancar Reef",
			ExcursionType: "reef",
			MeetingPoint:  "Dock B",
		},
		CreatedBy: 1,
	}
	id, err := editor.CreateSeries(context.Background(), s)
	require.NoError(t, err)
	return store, editor, syncer, id, rec
}

func occAt(day int) time.Time {
	return time.Date(2026, 1, day, 9, 0, 0, 0, time.UTC)
}

func TestSync_FirstPassMaterializes(t *testing.T) {
	store, _, syncer, id, rec := newSaturdayFixture(t)

	res, err := syncer.Sync(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, res.Created, 3)
	assert.Empty(t, res.Refreshed)

	for _, day := range []int{3, 10, 17} {
		x := store.getOccurrence(id, occAt(day))
		require.NotNil(t, x, "occurrence on Jan %d", day)
		assert.Equal(t, model.ExcursionScheduled, x.Status)
		assert.True(t, x.DepartureTime.Equal(occAt(day)))
		assert.Equal(t, 10000, x.PriceCents)
		assert.Equal(t, "Palancar Reef", x.DiveSite)
		assert.False(t, x.IsOverride)
		assert.NotEmpty(t, x.PublicID)
	}
	// Jan 24 09:00 is past the window end of Jan 23 12:00.
	assert.Nil(t, store.getOccurrence(id, occAt(24)))

	s := store.getSeries(id)
	require.NotNil(t, s.LastSyncedAt)
	assert.True(t, s.LastSyncedAt.Equal(res.WindowEnd))

	assert.Equal(t, []EventKind{EventCreated, EventCreated, EventCreated}, rec.kinds())
}

func TestSync_Idempotent(t *testing.T) {
	store, _, syncer, id, _ := newSaturdayFixture(t)

	_, err := syncer.Sync(context.Background(), id)
	require.NoError(t, err)
	before := store.seriesOccurrences(id)

	res, err := syncer.Sync(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, res.Created)
	assert.Empty(t, res.Refreshed)
	assert.Equal(t, before, store.seriesOccurrences(id))
}

func TestSync_SkipsPausedAndArchived(t *testing.T) {
	store, _, syncer, id, _ := newSaturdayFixture(t)

	for _, status := range []model.SeriesStatus{model.SeriesPaused, model.SeriesArchived} {
		store.setSeriesStatus(id, status)

		res, err := syncer.Sync(context.Background(), id)
		require.NoError(t, err)
		assert.True(t, res.Skipped)
		assert.Empty(t, store.seriesOccurrences(id))
	}
}

func TestSync_WatermarkHeldOnFailure(t *testing.T) {
	store, _, syncer, id, _ := newSaturdayFixture(t)

	store.upsertErr = errors.New("disk full")
	_, err := syncer.Sync(context.Background(), id)
	var serr *SyncError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, id, serr.SeriesID)

	// nothing committed, watermark untouched
	assert.Empty(t, store.seriesOccurrences(id))
	assert.Nil(t, store.getSeries(id).LastSyncedAt)

	// the retry completes normally
	res, err := syncer.Sync(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, res.Created, 3)
	require.NotNil(t, store.getSeries(id).LastSyncedAt)
}

func TestSync_WatermarkNeverRegresses(t *testing.T) {
	store, _, syncer, id, _ := newSaturdayFixture(t)

	_, err := syncer.Sync(context.Background(), id)
	require.NoError(t, err)
	first := *store.getSeries(id).LastSyncedAt

	// a pass with an earlier clock must not pull the watermark back
	syncer.Now = func() time.Time { return testNow.AddDate(0, 0, -7) }
	_, err = syncer.Sync(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, store.getSeries(id).LastSyncedAt.Equal(first))
}

func TestCancelThenSync(t *testing.T) {
	store, editor, syncer, id, _ := newSaturdayFixture(t)

	_, err := syncer.Sync(context.Background(), id)
	require.NoError(t, err)

	res, err := editor.CancelOccurrence(context.Background(), id, occAt(10), "boat maintenance", false)
	require.NoError(t, err)
	assert.True(t, res.OccurrenceStart.Equal(occAt(10)))

	x := store.getOccurrence(id, occAt(10))
	require.NotNil(t, x)
	assert.Equal(t, model.ExcursionCancelled, x.Status)

	// the row survives subsequent syncs as cancelled, never deleted and
	// never resurrected
	_, err = syncer.Sync(context.Background(), id)
	require.NoError(t, err)
	x = store.getOccurrence(id, occAt(10))
	require.NotNil(t, x)
	assert.Equal(t, model.ExcursionCancelled, x.Status)
}

func TestCancelBeforeMaterialization(t *testing.T) {
	store, editor, syncer, id, _ := newSaturdayFixture(t)

	// cancel an instant the sweep has not reached yet
	_, err := editor.CancelOccurrence(context.Background(), id, occAt(10), "weather", false)
	require.NoError(t, err)
	assert.Nil(t, store.getOccurrence(id, occAt(10)))

	res, err := syncer.Sync(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, res.Created, 2)
	assert.Nil(t, store.getOccurrence(id, occAt(10)), "cancelled instant must not materialize")
}

func TestCancel_ActiveBookingsBlock(t *testing.T) {
	store, editor, syncer, id, _ := newSaturdayFixture(t)

	_, err := syncer.Sync(context.Background(), id)
	require.NoError(t, err)
	x := store.getOccurrence(id, occAt(10))
	require.NotNil(t, x)
	store.addBooking(x.ID)

	_, err = editor.CancelOccurrence(context.Background(), id, occAt(10), "", false)
	var berr *OccurrenceHasBookingsError
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, x.ID, berr.ExcursionID)
	assert.Equal(t, 1, berr.Bookings)
	assert.Equal(t, model.ExcursionScheduled, store.getOccurrence(id, occAt(10)).Status)

	// force pushes through
	_, err = editor.CancelOccurrence(context.Background(), id, occAt(10), "hurricane", true)
	require.NoError(t, err)
	assert.Equal(t, model.ExcursionCancelled, store.getOccurrence(id, occAt(10)).Status)
}

func TestReinstateAfterCancelRetired(t *testing.T) {
	store, editor, syncer, id, _ := newSaturdayFixture(t)

	_, err := syncer.Sync(context.Background(), id)
	require.NoError(t, err)
	_, err = editor.CancelOccurrence(context.Background(), id, occAt(10), "", false)
	require.NoError(t, err)

	// a later reschedule at the same instant supersedes the cancellation
	ns := occAt(10).Add(2 * time.Hour)
	_, err = editor.EditOccurrence(context.Background(), id, occAt(10), nil, &ns)
	require.NoError(t, err)

	x := store.getOccurrence(id, occAt(10))
	require.NotNil(t, x)
	assert.Equal(t, model.ExcursionScheduled, x.Status)
	assert.True(t, x.DepartureTime.Equal(ns))
	assert.True(t, x.OccurrenceStart.Equal(occAt(10)), "key must not move on reschedule")

	exc := store.liveException(id, occAt(10))
	require.NotNil(t, exc)
	assert.Equal(t, model.ExceptionRescheduled, exc.Type)
}

func TestOverrideSurvivesTemplateEdit(t *testing.T) {
	store, editor, syncer, id, _ := newSaturdayFixture(t)

	_, err := syncer.Sync(context.Background(), id)
	require.NoError(t, err)

	// staff shrink one trip to a private charter
	_, err = editor.EditOccurrence(context.Background(), id, occAt(10), model.FieldMap{FieldCapacity: 6}, nil)
	require.NoError(t, err)

	// then the whole series gets a price bump
	_, err = editor.EditSeries(context.Background(), id, model.FieldMap{FieldPriceCents: 15000}, ScopeAll)
	require.NoError(t, err)

	res, err := syncer.Sync(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, res.Refreshed, 3)

	for _, day := range []int{3, 17} {
		x := store.getOccurrence(id, occAt(day))
		assert.Equal(t, 15000, x.PriceCents)
		assert.Equal(t, 12, x.Capacity)
		assert.False(t, x.IsOverride)
	}
	x := store.getOccurrence(id, occAt(10))
	assert.Equal(t, 15000, x.PriceCents, "non-overridden field refreshes")
	assert.Equal(t, 6, x.Capacity, "overridden field survives")
	assert.True(t, x.IsOverride)
	assert.Equal(t, model.FieldMap{FieldCapacity: float64(6)}, normalizeFieldMap(x.OverrideFields))
}

// normalizeFieldMap maps ints to float64 the way a JSONB round trip would, so
// assertions hold for both the fake and a real store.
func normalizeFieldMap(m model.FieldMap) model.FieldMap {
	out := make(model.FieldMap, len(m))
	for k, v := range m {
		switch n := v.(type) {
		case int:
			out[k] = float64(n)
		case int64:
			out[k] = float64(n)
		default:
			out[k] = v
		}
	}
	return out
}

func TestAddedOccurrenceSyncs(t *testing.T) {
	store, editor, syncer, id, _ := newSaturdayFixture(t)

	extra := time.Date(2026, 1, 7, 9, 0, 0, 0, time.UTC) // a Wednesday
	_, err := editor.AddOccurrence(context.Background(), id, extra, "cruise ship group")
	require.NoError(t, err)

	x := store.getOccurrence(id, extra)
	require.NotNil(t, x)
	assert.Equal(t, model.ExcursionScheduled, x.Status)

	// sync unions the added instant in and leaves it untouched
	res, err := syncer.Sync(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, res.Created, 3)
	assert.Len(t, store.seriesOccurrences(id), 4)
}

func TestAddedOccurrence_RescheduleStaysInSweep(t *testing.T) {
	store, editor, syncer, id, _ := newSaturdayFixture(t)

	extra := time.Date(2026, 1, 7, 9, 0, 0, 0, time.UTC)
	_, err := editor.AddOccurrence(context.Background(), id, extra, "cruise ship group")
	require.NoError(t, err)

	// push the departure two hours later; the occurrence key stays put
	moved := extra.Add(2 * time.Hour)
	_, err = editor.EditOccurrence(context.Background(), id, extra, nil, &moved)
	require.NoError(t, err)

	exc := store.liveException(id, extra)
	require.NotNil(t, exc)
	assert.Equal(t, model.ExceptionAdded, exc.Type, "reschedule must not retype the exception")
	require.NotNil(t, exc.NewStart)
	assert.True(t, exc.NewStart.Equal(moved))

	x := store.getOccurrence(id, extra)
	require.NotNil(t, x)
	assert.True(t, x.DepartureTime.Equal(moved))

	// a later template edit still reaches the added trip through sync
	_, err = editor.EditSeries(context.Background(), id, model.FieldMap{FieldPriceCents: 15000}, ScopeAll)
	require.NoError(t, err)
	_, err = syncer.Sync(context.Background(), id)
	require.NoError(t, err)

	x = store.getOccurrence(id, extra)
	assert.Equal(t, 15000, x.PriceCents)
	assert.True(t, x.DepartureTime.Equal(moved), "sync keeps the rescheduled departure")
}

func TestAddOccurrence_Duplicates(t *testing.T) {
	_, editor, syncer, id, _ := newSaturdayFixture(t)

	_, err := syncer.Sync(context.Background(), id)
	require.NoError(t, err)

	var dup *DuplicateExceptionError

	// an instant the pattern already produces
	_, err = editor.AddOccurrence(context.Background(), id, occAt(10), "")
	require.ErrorAs(t, err, &dup)

	// the same extra twice
	extra := time.Date(2026, 1, 7, 9, 0, 0, 0, time.UTC)
	_, err = editor.AddOccurrence(context.Background(), id, extra, "")
	require.NoError(t, err)
	_, err = editor.AddOccurrence(context.Background(), id, extra, "")
	require.ErrorAs(t, err, &dup)
}

func TestEditOccurrence_UnknownInstant(t *testing.T) {
	_, editor, _, id, _ := newSaturdayFixture(t)

	// a Tuesday the pattern never produces
	_, err := editor.EditOccurrence(context.Background(), id, time.Date(2026, 1, 6, 9, 0, 0, 0, time.UTC), model.FieldMap{FieldNotes: "x"}, nil)
	assert.ErrorIs(t, err, ErrUnknownOccurrence)

	_, err = editor.RevertOccurrence(context.Background(), id, time.Date(2026, 1, 6, 9, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, err, ErrUnknownOccurrence)
}

func TestCancelOccurrence_UnknownInstant(t *testing.T) {
	store, editor, _, id, _ := newSaturdayFixture(t)

	// a Tuesday the pattern never produces and nothing materialized
	tuesday := time.Date(2026, 1, 6, 9, 0, 0, 0, time.UTC)
	_, err := editor.CancelOccurrence(context.Background(), id, tuesday, "boat repair", false)
	assert.ErrorIs(t, err, ErrUnknownOccurrence)
	assert.Nil(t, store.liveException(id, tuesday), "no exception left behind")

	// an added occurrence at an off-pattern instant still cancels
	_, err = editor.AddOccurrence(context.Background(), id, tuesday, "charter")
	require.NoError(t, err)
	_, err = editor.CancelOccurrence(context.Background(), id, tuesday, "charter fell through", false)
	require.NoError(t, err)
	assert.Equal(t, model.ExcursionCancelled, store.getOccurrence(id, tuesday).Status)
}

func TestEditOccurrence_MaterializesLazily(t *testing.T) {
	store, editor, _, id, _ := newSaturdayFixture(t)

	// no sync has run; editing a future pattern instant materializes it
	res, err := editor.EditOccurrence(context.Background(), id, occAt(17), model.FieldMap{FieldNotes: "bring lights"}, nil)
	require.NoError(t, err)

	x := store.getOccurrence(id, occAt(17))
	require.NotNil(t, x)
	assert.Equal(t, res.ExcursionID, x.ID)
	assert.Equal(t, "bring lights", x.Notes)
	assert.True(t, x.IsOverride)
}

func TestRevertOccurrence(t *testing.T) {
	store, editor, syncer, id, _ := newSaturdayFixture(t)

	_, err := syncer.Sync(context.Background(), id)
	require.NoError(t, err)
	_, err = editor.EditOccurrence(context.Background(), id, occAt(10), model.FieldMap{FieldCapacity: 6, FieldNotes: "charter"}, nil)
	require.NoError(t, err)

	_, err = editor.RevertOccurrence(context.Background(), id, occAt(10))
	require.NoError(t, err)

	x := store.getOccurrence(id, occAt(10))
	assert.False(t, x.IsOverride)
	assert.Nil(t, x.OverrideFields)
	assert.Equal(t, 12, x.Capacity)
	assert.Equal(t, "", x.Notes)

	// the next template edit reaches it again
	_, err = editor.EditSeries(context.Background(), id, model.FieldMap{FieldCapacity: 8}, ScopeAll)
	require.NoError(t, err)
	_, err = syncer.Sync(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 8, store.getOccurrence(id, occAt(10)).Capacity)
}

func TestEditSeries_RejectsUnknownField(t *testing.T) {
	_, editor, _, id, _ := newSaturdayFixture(t)

	_, err := editor.EditSeries(context.Background(), id, model.FieldMap{"boat_name": "Siren"}, ScopeAll)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown template field")
}
