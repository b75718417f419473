package ratelimit

import (
	"context"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// Result is the outcome of one rate-limit check.
type Result struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	ResetUnix int64
}

// CallbackLimiter throttles gateway callback endpoints per client key.
type CallbackLimiter struct {
	limiter *limiter.Limiter
}

// NewCallbackLimiter parses a formatted rate such as "60-M". Counters live in
// redis when a client is given, in process memory otherwise.
func NewCallbackLimiter(formatted string, client redis.UniversalClient) (*CallbackLimiter, error) {
	formatted = strings.TrimSpace(formatted)
	if formatted == "" {
		formatted = "60-M"
	}
	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		return nil, err
	}

	var store limiter.Store
	if client != nil {
		store, err = sredis.NewStoreWithOptions(client, limiter.StoreOptions{
			Prefix: "pharmasettle:ratelimit",
		})
		if err != nil {
			return nil, err
		}
	} else {
		store = memory.NewStoreWithOptions(limiter.StoreOptions{
			Prefix:          "pharmasettle:ratelimit",
			CleanUpInterval: limiter.DefaultCleanUpInterval,
		})
	}

	return &CallbackLimiter{limiter: limiter.New(store, rate)}, nil
}

// Allow consumes one unit for key. A nil limiter allows everything.
func (l *CallbackLimiter) Allow(ctx context.Context, key string) (Result, error) {
	if l == nil || l.limiter == nil {
		return Result{Allowed: true}, nil
	}
	lctx, err := l.limiter.Get(ctx, key)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Allowed:   !lctx.Reached,
		Limit:     lctx.Limit,
		Remaining: lctx.Remaining,
		ResetUnix: lctx.Reset,
	}, nil
}
