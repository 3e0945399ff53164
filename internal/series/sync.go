package series

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nestorwheelock/diveops/internal/model"
	"github.com/nestorwheelock/diveops/internal/recurrence"
)

// Syncer drives the materializer over a rolling forward window per series.
// Safe to run concurrently and repeatedly: each pass holds the per-series
// lock, materialization is idempotent, and the watermark advances only when
// the whole window completed without error.
type Syncer struct {
	store Store
	mat   *Materializer

	// Now is the engine's clock; tests pin it.
	Now func() time.Time
}

func NewSyncer(store Store, mat *Materializer) *Syncer {
	return &Syncer{store: store, mat: mat, Now: time.Now}
}

// SyncResult reports what one pass did.
type SyncResult struct {
	SeriesID    int         `json:"series_id"`
	WindowStart time.Time   `json:"window_start"`
	WindowEnd   time.Time   `json:"window_end"`
	Created     []int       `json:"created"`
	Refreshed   []int       `json:"refreshed"`
	Cancelled   []int       `json:"cancelled"`
	Skipped     bool        `json:"skipped"`
}

// Sync expands the series pattern over [now, now + window_days], unions in
// the keys of added exceptions departing in that range, and materializes
// every candidate. Paused and archived series
// are skipped. Any failure aborts the pass before the watermark moves.
func (sy *Syncer) Sync(ctx context.Context, seriesID int) (*SyncResult, error) {
	res := &SyncResult{SeriesID: seriesID}

	err := sy.store.WithSeriesLock(ctx, seriesID, func(tx Tx) error {
		s, err := tx.GetSeries(seriesID)
		if err != nil {
			return err
		}
		if s == nil {
			return fmt.Errorf("series %d not found", seriesID)
		}
		if s.Status != model.SeriesActive {
			res.Skipped = true
			return nil
		}

		pattern, err := recurrence.FromSeries(s)
		if err != nil {
			return err
		}

		// The sweep always starts at now: a lagging watermark never drags the
		// window into the past, and re-covering instants under a watermark
		// that is ahead is what propagates template edits and fresh
		// exceptions to already-materialized occurrences. Idempotent either
		// way.
		now := sy.Now().In(pattern.Location()).Truncate(time.Second)
		windowStart := now
		windowEnd := now.AddDate(0, 0, s.WindowDays)
		res.WindowStart, res.WindowEnd = windowStart, windowEnd
		if !windowEnd.After(windowStart) {
			return nil
		}

		candidates, err := pattern.Expand(windowStart, windowEnd)
		if err != nil {
			return err
		}
		added, err := tx.ListAddedExceptions(seriesID, windowStart, windowEnd)
		if err != nil {
			return err
		}
		instants := unionInstants(candidates, added)

		for _, instant := range instants {
			exc, err := tx.GetException(seriesID, instant)
			if err != nil {
				return err
			}
			r, err := sy.mat.materializeOne(tx, s, instant, exc)
			if err != nil {
				return err
			}
			switch {
			case r.Created:
				res.Created = append(res.Created, r.ID)
			case r.Cancelled && r.Changed:
				res.Cancelled = append(res.Cancelled, r.ID)
			case r.Changed:
				res.Refreshed = append(res.Refreshed, r.ID)
			}
		}

		// The watermark only ever moves forward, and only after the whole
		// window completed.
		if s.LastSyncedAt == nil || windowEnd.After(*s.LastSyncedAt) {
			return tx.SetSeriesWatermark(seriesID, windowEnd)
		}
		return nil
	})
	if err != nil {
		log.Error().Err(err).Int("series_id", seriesID).Msg("sync pass failed")
		return nil, &SyncError{SeriesID: seriesID, Err: err}
	}

	if !res.Skipped {
		log.Info().
			Int("series_id", seriesID).
			Time("window_end", res.WindowEnd).
			Int("created", len(res.Created)).
			Int("refreshed", len(res.Refreshed)).
			Msg("series synced")
	}
	return res, nil
}

// unionInstants merges base-pattern candidates with added-exception keys,
// deduplicated and in ascending order. Added exceptions contribute their
// original start, the occurrence key, since a later reschedule can move the
// departure away from it.
func unionInstants(candidates []time.Time, added []model.SeriesException) []time.Time {
	seen := make(map[int64]time.Time, len(candidates)+len(added))
	for _, t := range candidates {
		seen[t.Unix()] = t
	}
	for _, e := range added {
		t := e.OriginalStart.Truncate(time.Second)
		if _, ok := seen[t.Unix()]; !ok {
			seen[t.Unix()] = t
		}
	}
	out := make([]time.Time, 0, len(seen))
	for _, t := range seen {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
