package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

var Rdb *redis.Client

// key for the cached public upcoming-excursions feed; any engine write that
// can change the feed deletes it.
const UpcomingFeedKey = "excursions:upcoming"

func InitRedis(redisAddress string, redisUsername string, redisPassword string) {
	Rdb = redis.NewClient(&redis.Options{
		Addr:     redisAddress,
		Username: redisUsername,
		Password: redisPassword,
		DB:       0,
	})
}

func Set(ctx context.Context, key string, value interface{}, expiration time.Duration) {
	if err := Rdb.Set(ctx, key, value, expiration).Err(); err != nil {
		log.Error().Err(err).Str("key", key).Msg("failed to set redis key")
	}
}

// Get returns the cached value, or "" on miss or error.
func Get(ctx context.Context, key string) string {
	val, err := Rdb.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			log.Error().Err(err).Str("key", key).Msg("failed to get redis key")
		}
		return ""
	}
	return val
}

func Delete(ctx context.Context, key string) {
	if err := Rdb.Del(ctx, key).Err(); err != nil {
		log.Error().Err(err).Str("key", key).Msg("failed to delete redis key")
	}
}

// InvalidateUpcoming drops the cached feed after a sync or edit commits.
func InvalidateUpcoming(ctx context.Context) {
	if Rdb == nil {
		return
	}
	Delete(ctx, UpcomingFeedKey)
}
