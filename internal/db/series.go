package db

import (
	"database/sql"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nestorwheelock/diveops/internal/model"
)

const seriesCols = `
	id, public_id, title, status, timezone,
	rrule, freq, repeat_interval, by_weekday, repeat_count, repeat_until, dtstart, dtend,
	window_days, last_synced_at,
	duration_min, capacity, price_cents, currency, dive_site, excursion_type, meeting_point, notes,
	created_by, created_at, updated_at`

func insertSeries(q queryer, s *model.ExcursionSeries) (int, error) {
	const query = `
	INSERT INTO excursion_series
	  (public_id, title, status, timezone,
	   rrule, freq, repeat_interval, by_weekday, repeat_count, repeat_until, dtstart, dtend,
	   window_days, last_synced_at,
	   duration_min, capacity, price_cents, currency, dive_site, excursion_type, meeting_point, notes,
	   created_by, created_at, updated_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,now(),now())
	RETURNING id;`
	var id int
	err := q.Get(&id, query,
		s.PublicID, s.Title, s.Status, s.Timezone,
		s.RRule, s.Freq, s.RepeatInterval, s.ByWeekday, s.RepeatCount, s.RepeatUntil, s.DTStart, s.DTEnd,
		s.WindowDays, s.LastSyncedAt,
		s.DurationMin, s.Capacity, s.PriceCents, s.Currency, s.DiveSite, s.ExcursionType, s.MeetingPoint, s.Notes,
		s.CreatedBy)
	if err != nil {
		log.Error().Err(err).Msg("insertSeries failed")
		return 0, err
	}
	return id, nil
}

func getSeries(q queryer, id int) (*model.ExcursionSeries, error) {
	var s model.ExcursionSeries
	err := q.Get(&s, `SELECT `+seriesCols+` FROM excursion_series WHERE id = $1;`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		logQueryErr("GetSeries", id, err)
		return nil, err
	}
	return &s, nil
}

func (t *storeTx) GetSeries(id int) (*model.ExcursionSeries, error) {
	return getSeries(t.tx, id)
}

func (t *storeTx) CreateSeries(s *model.ExcursionSeries) (int, error) {
	return insertSeries(t.tx, s)
}

func (t *storeTx) UpdateSeriesTemplate(id int, tpl model.Template) error {
	_, err := t.tx.Exec(`
	UPDATE excursion_series
	SET duration_min = $2, capacity = $3, price_cents = $4, currency = $5,
	    dive_site = $6, excursion_type = $7, meeting_point = $8, notes = $9,
	    updated_at = now()
	WHERE id = $1;`,
		id, tpl.DurationMin, tpl.Capacity, tpl.PriceCents, tpl.Currency,
		tpl.DiveSite, tpl.ExcursionType, tpl.MeetingPoint, tpl.Notes)
	if err != nil {
		logQueryErr("UpdateSeriesTemplate", id, err)
	}
	return err
}

func (t *storeTx) SetSeriesWatermark(id int, mark time.Time) error {
	_, err := t.tx.Exec(`
	UPDATE excursion_series
	SET last_synced_at = $2, updated_at = now()
	WHERE id = $1;`, id, mark)
	if err != nil {
		logQueryErr("SetSeriesWatermark", id, err)
	}
	return err
}

func (t *storeTx) BoundSeriesPattern(id int, dtend time.Time) error {
	_, err := t.tx.Exec(`
	UPDATE excursion_series
	SET dtend = $2, updated_at = now()
	WHERE id = $1;`, id, dtend)
	if err != nil {
		logQueryErr("BoundSeriesPattern", id, err)
	}
	return err
}

// plain reads used by the HTTP layer and the periodic sync trigger.

func GetSeriesByID(id int) (*model.ExcursionSeries, error) {
	return getSeries(DB, id)
}

func ListSeries() ([]model.ExcursionSeries, error) {
	var out []model.ExcursionSeries
	err := DB.Select(&out, `SELECT `+seriesCols+` FROM excursion_series ORDER BY id;`)
	if err != nil {
		log.Error().Err(err).Msg("ListSeries failed")
		return nil, err
	}
	return out, nil
}

func ListActiveSeriesIDs() ([]int, error) {
	var ids []int
	err := DB.Select(&ids, `SELECT id FROM excursion_series WHERE status = 'active' ORDER BY id;`)
	if err != nil {
		log.Error().Err(err).Msg("ListActiveSeriesIDs failed")
		return nil, err
	}
	return ids, nil
}

func SetSeriesStatus(id int, status model.SeriesStatus) error {
	_, err := DB.Exec(`
	UPDATE excursion_series
	SET status = $2, updated_at = now()
	WHERE id = $1;`, id, status)
	if err != nil {
		logQueryErr("SetSeriesStatus", id, err)
	}
	return err
}
