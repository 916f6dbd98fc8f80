// Package cache provides the short-lived coordination state used around
// M-Pesa callbacks: per-event locks and a query throttle.
package cache

import (
	"context"
	"time"
)

// Coordinator serializes work on one external event and rate-limits
// status queries.
type Coordinator interface {
	// TryLock acquires key for ttl. ok is false when another holder has it.
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
	// Allow reports whether an action on key may run now, and if so blocks
	// further runs for every.
	Allow(ctx context.Context, key string, every time.Duration) (bool, error)
}

func LockKey(kind, id string) string     { return "welfare:lock:" + kind + ":" + id }
func ThrottleKey(kind, id string) string { return "welfare:throttle:" + kind + ":" + id }
