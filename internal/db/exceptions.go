package db

import (
	"database/sql"
	"errors"
	"time"

	"github.com/nestorwheelock/diveops/internal/model"
)

const exceptionCols = `id, series_id, original_start, exception_type, new_start, reason, retired_at, created_at`

func (t *storeTx) GetException(seriesID int, originalStart time.Time) (*model.SeriesException, error) {
	var e model.SeriesException
	err := t.tx.Get(&e, `
	SELECT `+exceptionCols+`
	FROM series_exceptions
	WHERE series_id = $1 AND original_start = $2 AND retired_at IS NULL;`,
		seriesID, originalStart)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		logQueryErr("GetException", seriesID, err)
		return nil, err
	}
	return &e, nil
}

// UpsertException enforces one live exception per (series, original_start):
// the previous row is soft-retired, the new one wins. The partial unique
// index backs this up should two writers ever slip past the series lock.
func (t *storeTx) UpsertException(seriesID int, originalStart time.Time, kind model.ExceptionType, newStart *time.Time, reason string) error {
	if _, err := t.tx.Exec(`
	UPDATE series_exceptions
	SET retired_at = now()
	WHERE series_id = $1 AND original_start = $2 AND retired_at IS NULL;`,
		seriesID, originalStart); err != nil {
		logQueryErr("UpsertException retire", seriesID, err)
		return err
	}
	if _, err := t.tx.Exec(`
	INSERT INTO series_exceptions (series_id, original_start, exception_type, new_start, reason, created_at)
	VALUES ($1, $2, $3, $4, $5, now());`,
		seriesID, originalStart, kind, newStart, reason); err != nil {
		logQueryErr("UpsertException insert", seriesID, err)
		return err
	}
	return nil
}

func (t *storeTx) ListAddedExceptions(seriesID int, from, to time.Time) ([]model.SeriesException, error) {
	var out []model.SeriesException
	err := t.tx.Select(&out, `
	SELECT `+exceptionCols+`
	FROM series_exceptions
	WHERE series_id = $1 AND exception_type = 'added' AND retired_at IS NULL
	  AND new_start >= $2 AND new_start <= $3
	ORDER BY new_start;`, seriesID, from, to)
	if err != nil {
		logQueryErr("ListAddedExceptions", seriesID, err)
		return nil, err
	}
	return out, nil
}

func (t *storeTx) ListExceptionsFrom(seriesID int, from time.Time) ([]model.SeriesException, error) {
	var out []model.SeriesException
	err := t.tx.Select(&out, `
	SELECT `+exceptionCols+`
	FROM series_exceptions
	WHERE series_id = $1 AND retired_at IS NULL AND original_start >= $2
	ORDER BY original_start;`, seriesID, from)
	if err != nil {
		logQueryErr("ListExceptionsFrom", seriesID, err)
		return nil, err
	}
	return out, nil
}

func (t *storeTx) ReassignException(id, newSeriesID int) error {
	_, err := t.tx.Exec(`
	UPDATE series_exceptions
	SET series_id = $2
	WHERE id = $1;`, id, newSeriesID)
	if err != nil {
		logQueryErr("ReassignException", newSeriesID, err)
	}
	return err
}
