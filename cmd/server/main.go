package main

import (
	"context"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/nestorwheelock/diveops/internal/db"
	"github.com/nestorwheelock/diveops/internal/events"
	"github.com/nestorwheelock/diveops/internal/redis"
	"github.com/nestorwheelock/diveops/internal/series"
)

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	env := LoadEnvironment()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if env.Environment == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	// initialize PostgreSQL
	if err := db.Init(env.DatabaseURL); err != nil {
		log.Fatal().Err(err).Msg("db init failed")
	}

	// run pending migrations
	if err := db.RunMigrations(env.MigrationsPath); err != nil {
		log.Fatal().Err(err).Msg("db migrate failed")
	}

	if env.RedisAddress != "" {
		redis.InitRedis(env.RedisAddress, env.RedisUsername, env.RedisPassword)
	}

	// occurrence change events are best effort; the engine runs without a broker
	var publisher series.EventPublisher
	if env.MQTTBrokerURL != "" {
		p, err := events.NewPublisher(env.MQTTBrokerURL, env.MQTTClientID)
		if err != nil {
			log.Error().Err(err).Msg("mqtt connect failed, occurrence events disabled")
		} else {
			publisher = p
			defer p.Close()
		}
	}

	store := db.NewStore(nil)
	materializer := series.NewMaterializer(publisher)
	syncer := series.NewSyncer(store, materializer)
	editor := series.NewEditor(store, materializer)

	startSyncCron(env.SyncEvery, syncer)

	if env.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()
	RegisterRoutes(r, env, editor, syncer)

	log.Info().Str("address", env.ServerAddress).Msg("listening")
	if err := r.Run(env.ServerAddress); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}

// startSyncCron sweeps every active series on a fixed interval so the
// materialization horizon keeps rolling forward without manual syncs.
func startSyncCron(every string, syncer *series.Syncer) {
	c := cron.New()
	spec := "@every " + every
	_, err := c.AddFunc(spec, func() {
		syncAllSeries(syncer)
	})
	if err != nil {
		log.Fatal().Err(err).Str("spec", spec).Msg("invalid sync interval")
	}
	c.Start()
	log.Info().Str("spec", spec).Msg("sync cron started")
}

func syncAllSeries(syncer *series.Syncer) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	ids, err := db.ListActiveSeriesIDs()
	if err != nil {
		log.Error().Err(err).Msg("failed to list active series for sync")
		return
	}

	var failed int
	for _, id := range ids {
		if _, err := syncer.Sync(ctx, id); err != nil {
			// one bad series must not stall the sweep
			log.Error().Err(err).Int("series_id", id).Msg("scheduled sync failed")
			failed++
		}
	}
	if len(ids) > 0 {
		redis.InvalidateUpcoming(ctx)
	}
	log.Info().Int("series", len(ids)).Int("failed", failed).Msg("scheduled sync pass finished")
}
