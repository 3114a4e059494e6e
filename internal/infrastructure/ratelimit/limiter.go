// Package ratelimit provides request limiters keyed by client identity.
package ratelimit

import "context"

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
}

// Limiter decides whether a request identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// Backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)
