package series

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nestorwheelock/diveops/internal/model"
)

// memStore is an in-memory Store with real transaction semantics: each
// WithSeriesLock call works on a deep copy of the state and commits it only
// when fn returns nil, mirroring what the postgres store does.
type memStore struct {
	mu   sync.Mutex
	data *memData

	// upsertErr, when set, fails the next occurrence upsert once.
	upsertErr error
}

type memData struct {
	nextSeriesID int
	nextExcID    int
	nextOccID    int

	series     map[int]*model.ExcursionSeries
	exceptions []*model.SeriesException
	occs       map[int]*model.Excursion
	bookings   map[int]int // excursion id -> confirmed bookings
}

func newMemStore() *memStore {
	return &memStore{data: &memData{
		nextSeriesID: 1,
		nextExcID:    1,
		nextOccID:    1,
		series:       make(map[int]*model.ExcursionSeries),
		occs:         make(map[int]*model.Excursion),
		bookings:     make(map[int]int),
	}}
}

func (d *memData) clone() *memData {
	out := &memData{
		nextSeriesID: d.nextSeriesID,
		nextExcID:    d.nextExcID,
		nextOccID:    d.nextOccID,
		series:       make(map[int]*model.ExcursionSeries, len(d.series)),
		occs:         make(map[int]*model.Excursion, len(d.occs)),
		bookings:     make(map[int]int, len(d.bookings)),
	}
	for id, s := range d.series {
		cp := *s
		out.series[id] = &cp
	}
	for _, e := range d.exceptions {
		cp := *e
		out.exceptions = append(out.exceptions, &cp)
	}
	for id, x := range d.occs {
		cp := *x
		out.occs[id] = &cp
	}
	for id, n := range d.bookings {
		out.bookings[id] = n
	}
	return out
}

func (m *memStore) WithSeriesLock(_ context.Context, _ int, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	work := m.data.clone()
	if err := fn(&memTx{store: m, data: work}); err != nil {
		return err
	}
	m.data = work
	return nil
}

func (m *memStore) CreateSeries(_ context.Context, s *model.ExcursionSeries) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memTx{store: m, data: m.data}).CreateSeries(s)
}

func (m *memStore) setSeriesStatus(id int, status model.SeriesStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.series[id].Status = status
}

// addBooking seeds a confirmed booking outside any engine transaction.
func (m *memStore) addBooking(excursionID int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.bookings[excursionID]++
}

func (m *memStore) getSeries(id int) *model.ExcursionSeries {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.data.series[id]
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}

func (m *memStore) getOccurrence(seriesID int, at time.Time) *model.Excursion {
	m.mu.Lock()
	defer m.mu.Unlock()
	x, _ := (&memTx{store: m, data: m.data}).GetOccurrence(seriesID, at)
	return x
}

func (m *memStore) liveException(seriesID int, at time.Time) *model.SeriesException {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, _ := (&memTx{store: m, data: m.data}).GetException(seriesID, at)
	return e
}

func (m *memStore) seriesOccurrences(seriesID int) []model.Excursion {
	m.mu.Lock()
	defer m.mu.Unlock()
	out, _ := (&memTx{store: m, data: m.data}).ListOccurrencesFrom(seriesID, time.Time{})
	return out
}

type memTx struct {
	store *memStore
	data  *memData
}

func (t *memTx) GetSeries(id int) (*model.ExcursionSeries, error) {
	s := t.data.series[id]
	if s == nil {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (t *memTx) CreateSeries(s *model.ExcursionSeries) (int, error) {
	cp := *s
	cp.ID = t.data.nextSeriesID
	t.data.nextSeriesID++
	t.data.series[cp.ID] = &cp
	s.ID = cp.ID
	return cp.ID, nil
}

func (t *memTx) UpdateSeriesTemplate(id int, tpl model.Template) error {
	t.data.series[id].Template = tpl
	return nil
}

func (t *memTx) SetSeriesWatermark(id int, at time.Time) error {
	w := at
	t.data.series[id].LastSyncedAt = &w
	return nil
}

func (t *memTx) BoundSeriesPattern(id int, dtend time.Time) error {
	d := dtend
	t.data.series[id].DTEnd = &d
	return nil
}

func (t *memTx) GetException(seriesID int, originalStart time.Time) (*model.SeriesException, error) {
	for i := len(t.data.exceptions) - 1; i >= 0; i-- {
		e := t.data.exceptions[i]
		if e.SeriesID == seriesID && e.OriginalStart.Unix() == originalStart.Unix() && e.RetiredAt == nil {
			cp := *e
			return &cp, nil
		}
	}
	return nil, nil
}

func (t *memTx) UpsertException(seriesID int, originalStart time.Time, kind model.ExceptionType, newStart *time.Time, reason string) error {
	now := time.Now()
	for _, e := range t.data.exceptions {
		if e.SeriesID == seriesID && e.OriginalStart.Unix() == originalStart.Unix() && e.RetiredAt == nil {
			retired := now
			e.RetiredAt = &retired
		}
	}
	e := &model.SeriesException{
		ID:            t.data.nextExcID,
		SeriesID:      seriesID,
		OriginalStart: originalStart,
		Type:          kind,
		NewStart:      newStart,
		Reason:        reason,
		CreatedAt:     now,
	}
	t.data.nextExcID++
	t.data.exceptions = append(t.data.exceptions, e)
	return nil
}

func (t *memTx) ListAddedExceptions(seriesID int, from, to time.Time) ([]model.SeriesException, error) {
	var out []model.SeriesException
	for _, e := range t.data.exceptions {
		if e.SeriesID != seriesID || e.RetiredAt != nil || e.Type != model.ExceptionAdded || e.NewStart == nil {
			continue
		}
		if e.NewStart.Before(from) || e.NewStart.After(to) {
			continue
		}
		out = append(out, *e)
	}
	return out, nil
}

func (t *memTx) ListExceptionsFrom(seriesID int, from time.Time) ([]model.SeriesException, error) {
	var out []model.SeriesException
	for _, e := range t.data.exceptions {
		if e.SeriesID == seriesID && e.RetiredAt == nil && !e.OriginalStart.Before(from) {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (t *memTx) ReassignException(id, newSeriesID int) error {
	for _, e := range t.data.exceptions {
		if e.ID == id {
			e.SeriesID = newSeriesID
		}
	}
	return nil
}

func (t *memTx) GetOccurrence(seriesID int, occurrenceStart time.Time) (*model.Excursion, error) {
	for _, x := range t.data.occs {
		if x.SeriesID != nil && *x.SeriesID == seriesID &&
			x.OccurrenceStart != nil && x.OccurrenceStart.Unix() == occurrenceStart.Unix() {
			cp := *x
			return &cp, nil
		}
	}
	return nil, nil
}

func (t *memTx) UpsertOccurrence(x *model.Excursion) (int, error) {
	if err := t.store.upsertErr; err != nil {
		t.store.upsertErr = nil
		return 0, err
	}
	if x.ID == 0 && x.SeriesID != nil && x.OccurrenceStart != nil {
		if existing, _ := t.GetOccurrence(*x.SeriesID, *x.OccurrenceStart); existing != nil {
			x.ID = existing.ID
		}
	}
	if x.ID == 0 {
		x.ID = t.data.nextOccID
		t.data.nextOccID++
	}
	cp := *x
	t.data.occs[cp.ID] = &cp
	return cp.ID, nil
}

func (t *memTx) SetOccurrenceStatus(id int, status model.ExcursionStatus) error {
	t.data.occs[id].Status = status
	return nil
}

func (t *memTx) ReassignOccurrence(id, newSeriesID int) error {
	sid := newSeriesID
	t.data.occs[id].SeriesID = &sid
	return nil
}

func (t *memTx) ListOccurrencesFrom(seriesID int, from time.Time) ([]model.Excursion, error) {
	var out []model.Excursion
	for _, x := range t.data.occs {
		if x.SeriesID != nil && *x.SeriesID == seriesID &&
			x.OccurrenceStart != nil && !x.OccurrenceStart.Before(from) {
			out = append(out, *x)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OccurrenceStart.Before(*out[j].OccurrenceStart) })
	return out, nil
}

func (t *memTx) ActiveBookingCount(excursionID int) (int, error) {
	return t.data.bookings[excursionID], nil
}

// eventRecorder captures events for assertions.
type eventRecorder struct {
	mu     sync.Mutex
	events []OccurrenceEvent
}

func (r *eventRecorder) Publish(ev OccurrenceEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventKind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}
