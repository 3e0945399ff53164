package endpoints

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/nestorwheelock/diveops/internal/db"
	"github.com/nestorwheelock/diveops/internal/http/api"
	"github.com/nestorwheelock/diveops/internal/http/api/mobile/packets"
	"github.com/nestorwheelock/diveops/internal/redis"
)

const (
	upcomingLimit    = 50
	upcomingCacheTTL = 60 * time.Second
)

// ExcursionsModule mounts the public upcoming-excursions feed
func ExcursionsModule() api.Module {
	return api.ModuleFunc(func(c *api.Controller) {
		c.PUBLIC_GET("/excursions/upcoming", getUpcomingExcursions)
	})
}

// GET /api/excursions/upcoming
//
// Read-through cache: the feed is cached in redis and dropped whenever a
// sync or an edit commits, so a short TTL is only a backstop.
func getUpcomingExcursions(ctx *gin.Context) (any, *api.APIError) {
	if redis.Rdb != nil {
		if cached := redis.Get(ctx.Request.Context(), redis.UpcomingFeedKey); cached != "" {
			return json.RawMessage(cached), nil
		}
	}

	rows, err := db.ListUpcomingExcursions(upcomingLimit)
	if err != nil {
		return nil, &api.APIError{Code: http.StatusInternalServerError, Message: "could not list upcoming excursions"}
	}

	out := make([]packets.UpcomingExcursionResponse, 0, len(rows))
	for i := range rows {
		out = append(out, packets.ToUpcomingExcursionResponse(&rows[i]))
	}

	if redis.Rdb != nil {
		if raw, err := json.Marshal(out); err == nil {
			redis.Set(ctx.Request.Context(), redis.UpcomingFeedKey, string(raw), upcomingCacheTTL)
		} else {
			log.Error().Err(err).Msg("failed to encode upcoming feed for cache")
		}
	}

	return out, nil
}
