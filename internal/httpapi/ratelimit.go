package httpapi

import (
	"net/http"

	redis "github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	limiterstdlib "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	limitermemory "github.com/ulule/limiter/v3/drivers/store/memory"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// NewRateLimitMiddleware builds a per-client-IP rate limit middleware from a
// formatted rate like "120-M". Counters live in Redis when a client is
// provided so limits hold across instances; otherwise they stay in memory.
func NewRateLimitMiddleware(rdb *redis.Client, formatted string) (func(http.Handler) http.Handler, error) {
	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		return nil, err
	}

	var store limiter.Store
	if rdb != nil {
		store, err = limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{Prefix: "promo:ratelimit"})
		if err != nil {
			return nil, err
		}
	} else {
		store = limitermemory.NewStore()
	}

	middleware := limiterstdlib.NewMiddleware(limiter.New(store, rate))
	return middleware.Handler, nil
}
