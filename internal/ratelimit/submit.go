package ratelimit

import (
	"context"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/meterbill/internal/config"
	"go.uber.org/zap"
)

const keySubmitVendor = "meterbill:submit:"

// SubmitLimiter paces vendor submissions. It fails open: a redis error
// never blocks billing, it only loses pacing.
type SubmitLimiter struct {
	client *redis.Client
	bucket *TokenBucket
	rate   float64
	burst  int
	log    *zap.Logger
}

func NewSubmitLimiter(cfg config.Config, log *zap.Logger) *SubmitLimiter {
	if !cfg.Redis.Enabled {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     strings.TrimSpace(cfg.Redis.Addr),
		Password: strings.TrimSpace(cfg.Redis.Password),
		DB:       cfg.Redis.DB,
	})
	return &SubmitLimiter{
		client: client,
		bucket: NewTokenBucket(client),
		rate:   cfg.Redis.SubmitRate,
		burst:  cfg.Redis.SubmitBurst,
		log:    log.Named("ratelimit"),
	}
}

// Close releases the redis connection. Safe on a nil receiver.
func (l *SubmitLimiter) Close() error {
	if l == nil {
		return nil
	}
	return l.client.Close()
}

// Wait blocks until a token is available, the context ends, or redis
// misbehaves. A nil receiver is a disabled limiter and admits
// everything.
func (l *SubmitLimiter) Wait(ctx context.Context, vendor string) error {
	if l == nil {
		return nil
	}
	key := keySubmitVendor + vendor
	for {
		res, err := l.bucket.Allow(ctx, key, l.rate, l.burst)
		if err != nil {
			l.log.Warn("rate limiter unavailable, failing open", zap.Error(err))
			return nil
		}
		if res.Allowed {
			return nil
		}

		delay := res.RetryAfter
		if delay <= 0 {
			delay = 50 * time.Millisecond
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}
