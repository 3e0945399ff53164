// exposes the engine-facing Store backed by PostgreSQL.
package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/nestorwheelock/diveops/internal/model"
	"github.com/nestorwheelock/diveops/internal/series"
)

// Store implements series.Store. Every engine operation runs inside a
// transaction holding pg_advisory_xact_lock on the series id, so overlapping
// syncs or a sync racing an edit on the same series serialize; the partial
// unique index on (series_id, occurrence_start) is the backstop underneath.
type Store struct {
	db *sqlx.DB
}

// compile-time check that Store implements the engine contract
var _ series.Store = (*Store)(nil)

func NewStore(d *sqlx.DB) *Store {
	if d == nil {
		d = DB
	}
	return &Store{db: d}
}

func (s *Store) WithSeriesLock(ctx context.Context, seriesID int, fn func(tx series.Tx) error) error {
	txx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin series tx: %w", err)
	}
	if _, err := txx.Exec(`SELECT pg_advisory_xact_lock($1);`, int64(seriesID)); err != nil {
		_ = txx.Rollback()
		return fmt.Errorf("acquire series lock: %w", err)
	}
	if err := fn(&storeTx{tx: txx}); err != nil {
		_ = txx.Rollback()
		return err
	}
	return txx.Commit()
}

func (s *Store) CreateSeries(ctx context.Context, sr *model.ExcursionSeries) (int, error) {
	return insertSeries(s.db, sr)
}

// storeTx adapts one sqlx transaction to the engine's Tx surface.
type storeTx struct {
	tx *sqlx.Tx
}

var _ series.Tx = (*storeTx)(nil)

// queryer is satisfied by both *sqlx.DB and *sqlx.Tx so the per-entity query
// helpers can serve the engine transaction and plain handler reads alike.
type queryer interface {
	Get(dest interface{}, query string, args ...interface{}) error
	Select(dest interface{}, query string, args ...interface{}) error
	Exec(query string, args ...interface{}) (sql.Result, error)
}

func logQueryErr(op string, seriesID int, err error) {
	log.Error().Err(err).Int("series_id", seriesID).Msgf("%s failed", op)
}
