package endpoints

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/nestorwheelock/diveops/internal/db"
	"github.com/nestorwheelock/diveops/internal/http/api"
	"github.com/nestorwheelock/diveops/internal/http/api/admin/packets"
	"github.com/nestorwheelock/diveops/internal/model"
	"github.com/nestorwheelock/diveops/internal/recurrence"
	"github.com/nestorwheelock/diveops/internal/redis"
	"github.com/nestorwheelock/diveops/internal/series"
)

// SeriesModule mounts the recurring-excursion endpoints (JWT required)
func SeriesModule(editor *series.Editor, syncer *series.Syncer) api.Module {
	ctl := &seriesManager{editor: editor, syncer: syncer}
	return api.ModuleFunc(func(c *api.Controller) {
		c.POST("/series", ctl.createSeries)
		c.GET("/series", ctl.listSeries)
		c.GET("/series/:id", ctl.getSeries)
		c.PATCH("/series/:id", ctl.editSeries)
		c.PUT("/series/:id/status", ctl.setSeriesStatus)
		c.POST("/series/:id/sync", ctl.syncSeries)
		c.POST("/series/:id/split", ctl.splitSeries)
		c.GET("/series/:id/occurrences", ctl.listOccurrences)
		c.POST("/series/:id/occurrences", ctl.addOccurrence)
		c.PATCH("/series/:id/occurrences", ctl.editOccurrence)
		c.POST("/series/:id/occurrences/cancel", ctl.cancelOccurrence)
		c.POST("/series/:id/occurrences/revert", ctl.revertOccurrence)
	})
}

type seriesManager struct {
	editor *series.Editor
	syncer *series.Syncer
}

// maps engine errors onto HTTP status codes
func mapEngineError(err error) *api.APIError {
	var (
		patternErr  *recurrence.InvalidPatternError
		bookingsErr *series.OccurrenceHasBookingsError
		boundaryErr *series.SplitBoundaryError
		dupErr      *series.DuplicateExceptionError
		syncErr     *series.SyncError
	)
	switch {
	case errors.As(err, &patternErr):
		return &api.APIError{Code: http.StatusUnprocessableEntity, Message: patternErr.Error()}
	case errors.As(err, &bookingsErr):
		return &api.APIError{Code: http.StatusConflict, Message: bookingsErr.Error()}
	case errors.As(err, &dupErr):
		return &api.APIError{Code: http.StatusConflict, Message: dupErr.Error()}
	case errors.As(err, &boundaryErr):
		return &api.APIError{Code: http.StatusBadRequest, Message: boundaryErr.Error()}
	case errors.Is(err, series.ErrUnknownOccurrence):
		return &api.APIError{Code: http.StatusNotFound, Message: err.Error()}
	case errors.As(err, &syncErr):
		return &api.APIError{Code: http.StatusInternalServerError, Message: syncErr.Error()}
	default:
		return &api.APIError{Code: http.StatusInternalServerError, Message: err.Error()}
	}
}

func seriesID(ctx *gin.Context) (int, *api.APIError) {
	id, err := strconv.Atoi(ctx.Param("id"))
	if err != nil {
		return 0, &api.APIError{Code: http.StatusBadRequest, Message: "invalid series id"}
	}
	return id, nil
}

// POST /api/admin/series
func (m *seriesManager) createSeries(ctx *gin.Context, user *model.User) (any, *api.APIError) {
	var request packets.CreateSeriesRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		return nil, &api.APIError{Code: http.StatusBadRequest, Message: err.Error()}
	}

	s := &model.ExcursionSeries{
		Title:      request.Title,
		Timezone:   request.Timezone,
		RRule:      request.RRule,
		DTStart:    request.DTStart,
		WindowDays: request.WindowDays,
		Template: model.Template{
			DurationMin:   request.DurationMin,
			Capacity:      request.Capacity,
			PriceCents:    request.PriceCents,
			Currency:      request.Currency,
			DiveSite:      request.DiveSite,
			ExcursionType: request.ExcursionType,
			MeetingPoint:  request.MeetingPoint,
			Notes:         request.Notes,
		},
		CreatedBy: user.ID,
	}

	id, err := m.editor.CreateSeries(ctx.Request.Context(), s)
	if err != nil {
		return nil, mapEngineError(err)
	}

	created, err := db.GetSeriesByID(id)
	if err != nil {
		return nil, &api.APIError{Code: http.StatusInternalServerError, Message: "could not fetch created series"}
	}
	return packets.ToSeriesResponse(created), nil
}

// GET /api/admin/series
func (m *seriesManager) listSeries(ctx *gin.Context, user *model.User) (any, *api.APIError) {
	all, err := db.ListSeries()
	if err != nil {
		return nil, &api.APIError{Code: http.StatusInternalServerError, Message: "could not list series"}
	}
	out := make([]packets.SeriesResponse, 0, len(all))
	for i := range all {
		out = append(out, packets.ToSeriesResponse(&all[i]))
	}
	return out, nil
}

// GET /api/admin/series/:id
func (m *seriesManager) getSeries(ctx *gin.Context, user *model.User) (any, *api.APIError) {
	id, apiErr := seriesID(ctx)
	if apiErr != nil {
		return nil, apiErr
	}
	s, err := db.GetSeriesByID(id)
	if err != nil {
		return nil, &api.APIError{Code: http.StatusInternalServerError, Message: "could not fetch series"}
	}
	if s == nil {
		return nil, &api.APIError{Code: http.StatusNotFound, Message: "series not found"}
	}
	return packets.ToSeriesResponse(s), nil
}

// PATCH /api/admin/series/:id
func (m *seriesManager) editSeries(ctx *gin.Context, user *model.User) (any, *api.APIError) {
	id, apiErr := seriesID(ctx)
	if apiErr != nil {
		return nil, apiErr
	}
	var request packets.EditSeriesRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		return nil, &api.APIError{Code: http.StatusBadRequest, Message: err.Error()}
	}

	res, err := m.editor.EditSeries(ctx.Request.Context(), id, request.Changes, series.EditScope(request.Scope))
	if err != nil {
		return nil, mapEngineError(err)
	}
	redis.InvalidateUpcoming(ctx.Request.Context())
	return res, nil
}

// PUT /api/admin/series/:id/status
func (m *seriesManager) setSeriesStatus(ctx *gin.Context, user *model.User) (any, *api.APIError) {
	id, apiErr := seriesID(ctx)
	if apiErr != nil {
		return nil, apiErr
	}
	var request packets.SetSeriesStatusRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		return nil, &api.APIError{Code: http.StatusBadRequest, Message: err.Error()}
	}
	if err := db.SetSeriesStatus(id, request.Status); err != nil {
		return nil, &api.APIError{Code: http.StatusInternalServerError, Message: "could not update series status"}
	}
	redis.InvalidateUpcoming(ctx.Request.Context())
	return gin.H{"id": id, "status": request.Status}, nil
}

// POST /api/admin/series/:id/sync
func (m *seriesManager) syncSeries(ctx *gin.Context, user *model.User) (any, *api.APIError) {
	id, apiErr := seriesID(ctx)
	if apiErr != nil {
		return nil, apiErr
	}
	res, err := m.syncer.Sync(ctx.Request.Context(), id)
	if err != nil {
		log.Error().Err(err).Int("series_id", id).Msg("manual sync failed")
		return nil, mapEngineError(err)
	}
	redis.InvalidateUpcoming(ctx.Request.Context())
	return res, nil
}

// POST /api/admin/series/:id/split
func (m *seriesManager) splitSeries(ctx *gin.Context, user *model.User) (any, *api.APIError) {
	id, apiErr := seriesID(ctx)
	if apiErr != nil {
		return nil, apiErr
	}
	var request packets.SplitSeriesRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		return nil, &api.APIError{Code: http.StatusBadRequest, Message: err.Error()}
	}
	res, err := m.editor.SplitSeries(ctx.Request.Context(), id, request.SplitAt)
	if err != nil {
		return nil, mapEngineError(err)
	}
	redis.InvalidateUpcoming(ctx.Request.Context())
	return res, nil
}

// GET /api/admin/series/:id/occurrences?from=...&to=...
func (m *seriesManager) listOccurrences(ctx *gin.Context, user *model.User) (any, *api.APIError) {
	id, apiErr := seriesID(ctx)
	if apiErr != nil {
		return nil, apiErr
	}
	from, err := time.Parse(time.RFC3339, ctx.Query("from"))
	if err != nil {
		return nil, &api.APIError{Code: http.StatusBadRequest, Message: "from must be RFC 3339"}
	}
	to, err := time.Parse(time.RFC3339, ctx.Query("to"))
	if err != nil {
		return nil, &api.APIError{Code: http.StatusBadRequest, Message: "to must be RFC 3339"}
	}

	rows, err := db.ListSeriesExcursions(id, from, to)
	if err != nil {
		return nil, &api.APIError{Code: http.StatusInternalServerError, Message: "could not list occurrences"}
	}
	out := make([]packets.OccurrenceResponse, 0, len(rows))
	for i := range rows {
		out = append(out, packets.ToOccurrenceResponse(&rows[i]))
	}
	return out, nil
}

// POST /api/admin/series/:id/occurrences
func (m *seriesManager) addOccurrence(ctx *gin.Context, user *model.User) (any, *api.APIError) {
	id, apiErr := seriesID(ctx)
	if apiErr != nil {
		return nil, apiErr
	}
	var request packets.AddOccurrenceRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		return nil, &api.APIError{Code: http.StatusBadRequest, Message: err.Error()}
	}
	res, err := m.editor.AddOccurrence(ctx.Request.Context(), id, request.NewStart, request.Reason)
	if err != nil {
		return nil, mapEngineError(err)
	}
	redis.InvalidateUpcoming(ctx.Request.Context())
	return res, nil
}

// PATCH /api/admin/series/:id/occurrences
func (m *seriesManager) editOccurrence(ctx *gin.Context, user *model.User) (any, *api.APIError) {
	id, apiErr := seriesID(ctx)
	if apiErr != nil {
		return nil, apiErr
	}
	var request packets.EditOccurrenceRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		return nil, &api.APIError{Code: http.StatusBadRequest, Message: err.Error()}
	}
	res, err := m.editor.EditOccurrence(ctx.Request.Context(), id, request.OccurrenceStart, request.Changes, request.NewStart)
	if err != nil {
		return nil, mapEngineError(err)
	}
	redis.InvalidateUpcoming(ctx.Request.Context())
	return res, nil
}

// POST /api/admin/series/:id/occurrences/cancel
func (m *seriesManager) cancelOccurrence(ctx *gin.Context, user *model.User) (any, *api.APIError) {
	id, apiErr := seriesID(ctx)
	if apiErr != nil {
		return nil, apiErr
	}
	var request packets.CancelOccurrenceRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		return nil, &api.APIError{Code: http.StatusBadRequest, Message: err.Error()}
	}
	res, err := m.editor.CancelOccurrence(ctx.Request.Context(), id, request.OccurrenceStart, request.Reason, request.Force)
	if err != nil {
		return nil, mapEngineError(err)
	}
	redis.InvalidateUpcoming(ctx.Request.Context())
	return res, nil
}

// POST /api/admin/series/:id/occurrences/revert
func (m *seriesManager) revertOccurrence(ctx *gin.Context, user *model.User) (any, *api.APIError) {
	id, apiErr := seriesID(ctx)
	if apiErr != nil {
		return nil, apiErr
	}
	var request packets.RevertOccurrenceRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		return nil, &api.APIError{Code: http.StatusBadRequest, Message: err.Error()}
	}
	res, err := m.editor.RevertOccurrence(ctx.Request.Context(), id, request.OccurrenceStart)
	if err != nil {
		return nil, mapEngineError(err)
	}
	redis.InvalidateUpcoming(ctx.Request.Context())
	return res, nil
}
