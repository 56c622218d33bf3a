package ratelimit

import "context"

// RateLimiter caps outbound sends per key, e.g. per SMS gateway.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Wait(ctx context.Context, key string) error
}
