package db

import (
	"database/sql"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nestorwheelock/diveops/internal/model"
)

const excursionCols = `
	id, public_id, series_id, occurrence_start, departure_time, status,
	is_override, override_fields,
	duration_min, capacity, price_cents, currency, dive_site, excursion_type, meeting_point, notes,
	created_at, updated_at`

func (t *storeTx) GetOccurrence(seriesID int, occurrenceStart time.Time) (*model.Excursion, error) {
	var x model.Excursion
	err := t.tx.Get(&x, `
	SELECT `+excursionCols+`
	FROM excursions
	WHERE series_id = $1 AND occurrence_start = $2;`, seriesID, occurrenceStart)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		logQueryErr("GetOccurrence", seriesID, err)
		return nil, err
	}
	return &x, nil
}

// UpsertOccurrence is the single atomic write keyed by
// (series_id, occurrence_start); concurrent writers for the same key resolve
// through the partial unique index instead of producing duplicates. Rows that
// already carry an id update in place so the public_id key stays out of
// conflict arbitration.
func (t *storeTx) UpsertOccurrence(x *model.Excursion) (int, error) {
	if x.ID != 0 {
		_, err := t.tx.Exec(`
	UPDATE excursions
	SET departure_time = $2, status = $3, is_override = $4, override_fields = $5,
	    duration_min = $6, capacity = $7, price_cents = $8, currency = $9,
	    dive_site = $10, excursion_type = $11, meeting_point = $12, notes = $13,
	    updated_at = now()
	WHERE id = $1;`,
			x.ID, x.DepartureTime, x.Status, x.IsOverride, x.OverrideFields,
			x.DurationMin, x.Capacity, x.PriceCents, x.Currency,
			x.DiveSite, x.ExcursionType, x.MeetingPoint, x.Notes)
		if err != nil {
			log.Error().Err(err).Int("excursion_id", x.ID).Msg("UpsertOccurrence update failed")
			return 0, err
		}
		return x.ID, nil
	}

	const query = `
	INSERT INTO excursions
	  (public_id, series_id, occurrence_start, departure_time, status,
	   is_override, override_fields,
	   duration_min, capacity, price_cents, currency, dive_site, excursion_type, meeting_point, notes,
	   created_at, updated_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,now(),now())
	ON CONFLICT (series_id, occurrence_start) WHERE series_id IS NOT NULL
	DO UPDATE SET
	   departure_time = EXCLUDED.departure_time,
	   status = EXCLUDED.status,
	   is_override = EXCLUDED.is_override,
	   override_fields = EXCLUDED.override_fields,
	   duration_min = EXCLUDED.duration_min,
	   capacity = EXCLUDED.capacity,
	   price_cents = EXCLUDED.price_cents,
	   currency = EXCLUDED.currency,
	   dive_site = EXCLUDED.dive_site,
	   excursion_type = EXCLUDED.excursion_type,
	   meeting_point = EXCLUDED.meeting_point,
	   notes = EXCLUDED.notes,
	   updated_at = now()
	RETURNING id;`
	var id int
	err := t.tx.Get(&id, query,
		x.PublicID, x.SeriesID, x.OccurrenceStart, x.DepartureTime, x.Status,
		x.IsOverride, x.OverrideFields,
		x.DurationMin, x.Capacity, x.PriceCents, x.Currency, x.DiveSite, x.ExcursionType, x.MeetingPoint, x.Notes)
	if err != nil {
		log.Error().Err(err).Msg("UpsertOccurrence failed")
		return 0, err
	}
	x.ID = id
	return id, nil
}

func (t *storeTx) SetOccurrenceStatus(id int, status model.ExcursionStatus) error {
	_, err := t.tx.Exec(`
	UPDATE excursions
	SET status = $2, updated_at = now()
	WHERE id = $1;`, id, status)
	if err != nil {
		log.Error().Err(err).Int("excursion_id", id).Msg("SetOccurrenceStatus failed")
	}
	return err
}

func (t *storeTx) ReassignOccurrence(id, newSeriesID int) error {
	_, err := t.tx.Exec(`
	UPDATE excursions
	SET series_id = $2, updated_at = now()
	WHERE id = $1;`, id, newSeriesID)
	if err != nil {
		log.Error().Err(err).Int("excursion_id", id).Msg("ReassignOccurrence failed")
	}
	return err
}

func (t *storeTx) ListOccurrencesFrom(seriesID int, from time.Time) ([]model.Excursion, error) {
	var out []model.Excursion
	err := t.tx.Select(&out, `
	SELECT `+excursionCols+`
	FROM excursions
	WHERE series_id = $1 AND occurrence_start >= $2
	ORDER BY occurrence_start;`, seriesID, from)
	if err != nil {
		logQueryErr("ListOccurrencesFrom", seriesID, err)
		return nil, err
	}
	return out, nil
}

// plain reads used by the HTTP layer.

func ListSeriesExcursions(seriesID int, from, to time.Time) ([]model.Excursion, error) {
	var out []model.Excursion
	err := DB.Select(&out, `
	SELECT `+excursionCols+`
	FROM excursions
	WHERE series_id = $1 AND occurrence_start >= $2 AND occurrence_start <= $3
	ORDER BY occurrence_start;`, seriesID, from, to)
	if err != nil {
		logQueryErr("ListSeriesExcursions", seriesID, err)
		return nil, err
	}
	return out, nil
}

func ListUpcomingExcursions(limit int) ([]model.Excursion, error) {
	var out []model.Excursion
	err := DB.Select(&out, `
	SELECT `+excursionCols+`
	FROM excursions
	WHERE status = 'scheduled' AND departure_time >= now()
	ORDER BY departure_time
	LIMIT $1;`, limit)
	if err != nil {
		log.Error().Err(err).Msg("ListUpcomingExcursions failed")
		return nil, err
	}
	return out, nil
}

func GetExcursionByID(id int) (*model.Excursion, error) {
	var x model.Excursion
	err := DB.Get(&x, `SELECT `+excursionCols+` FROM excursions WHERE id = $1;`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		log.Error().Err(err).Int("excursion_id", id).Msg("GetExcursionByID failed")
		return nil, err
	}
	return &x, nil
}
