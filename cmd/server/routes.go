package main

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/nestorwheelock/diveops/internal/http/api"
	seriesapi "github.com/nestorwheelock/diveops/internal/http/api/admin/endpoints"
	authapi "github.com/nestorwheelock/diveops/internal/http/api/admin/auth/endpoints"
	mobileapi "github.com/nestorwheelock/diveops/internal/http/api/mobile/endpoints"
	"github.com/nestorwheelock/diveops/internal/series"
)

// RegisterRoutes sets up all application routes
func RegisterRoutes(r *gin.Engine, env Environment, editor *series.Editor, syncer *series.Syncer) {
	// CORS
	r.Use(cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool { return true },
		AllowMethods: []string{
			"GET",
			"POST",
			"PUT",
			"PATCH",
			"DELETE",
			"OPTIONS",
			"HEAD",
		},
		AllowHeaders: []string{
			"Origin",
			"Content-Type",
			"Authorization",
			"Accept",
		},
		ExposeHeaders: []string{
			"Content-Length",
		},
		AllowCredentials: false,
	}))

	api.MountGroup(r, api.GroupConfig{
		Prefix: "/api/admin",
		Auth:   false,
	},
		authapi.AuthPublicModule(env.SecretKey),
	)

	api.MountGroup(r, api.GroupConfig{
		Prefix:    "/api/admin",
		Auth:      true,
		SecretKey: env.SecretKey,
	},
		seriesapi.SeriesModule(editor, syncer),
		// session endpoints that require auth
		authapi.AuthSessionModule(env.SecretKey),
	)

	api.MountGroup(r, api.GroupConfig{
		Prefix: "/api",
	},
		mobileapi.ExcursionsModule(),
	)
}
