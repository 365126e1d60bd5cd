package ratelimit

import (
	"context"

	"github.com/kursadbilgin/notification-service/internal/domain"
)

// RateLimiter bounds provider throughput per delivery channel.
type RateLimiter interface {
	Allow(ctx context.Context, channel domain.Channel) (bool, error)
	Wait(ctx context.Context, channel domain.Channel) error
}
