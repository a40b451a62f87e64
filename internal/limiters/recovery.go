// Package limiters provides fixed-window redis counters that blunt flooding
// of the recovery endpoints. The OTP attempt ceiling itself lives in the
// challenge store; these windows cap how often new challenges can be
// requested per identifier and per client IP.
package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrRateLimited      = errors.New("recovery rate limited")
	ErrRedisUnavailable = errors.New("recovery redis unavailable")
)

type RecoveryConfig struct {
	EnableIdentifierThrottle bool
	EnableIPThrottle         bool
	Window                   time.Duration
	MaxRequests              int
}

type RecoveryLimiter struct {
	redis  redis.UniversalClient
	config RecoveryConfig
}

func NewRecoveryLimiter(redisClient redis.UniversalClient, cfg RecoveryConfig) *RecoveryLimiter {
	return &RecoveryLimiter{
		redis:  redisClient,
		config: cfg,
	}
}

// CheckRequest enforces the request budget for a forgot-password or resend
// call. The identifier is throttled even when it maps to no account, so the
// limiter cannot be used as an existence oracle.
func (l *RecoveryLimiter) CheckRequest(ctx context.Context, identifier, ip string) error {
	if l.config.EnableIdentifierThrottle && identifier != "" {
		if err := l.enforceFixedWindow(ctx, requestIdentifierKey(identifier)); err != nil {
			return err
		}
	}
	if l.config.EnableIPThrottle && ip != "" {
		if err := l.enforceFixedWindow(ctx, requestIPKey(ip)); err != nil {
			return err
		}
	}
	return nil
}

func (l *RecoveryLimiter) enforceFixedWindow(ctx context.Context, key string) error {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: TTL set only on the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.config.Window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	if count > int64(l.config.MaxRequests) {
		return ErrRateLimited
	}

	return nil
}

func requestIdentifierKey(identifier string) string {
	return "rcvi:" + identifier
}

func requestIPKey(ip string) string {
	return "rcvip:" + ip
}
