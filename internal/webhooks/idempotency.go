package webhooks

import (
	"context"
	"time"

	"github.com/taskhive/taskhive-backend/pkg/redis"
)

const guardScope = "stripe_event"

// IdempotencyGuard is the fast-path dedupe in front of the database
// constraint on subscription_events.stripe_event_id. It is advisory only:
// if Redis is down the reconciler proceeds and lets the constraint decide.
type IdempotencyGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

// NewIdempotencyGuard builds a guard over the provided store. The TTL bounds
// how long a processed event id stays claimed; Stripe retries deliveries for
// up to three days, so the default covers the retry window.
func NewIdempotencyGuard(store redis.IdempotencyStore, ttl time.Duration) *IdempotencyGuard {
	if store == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &IdempotencyGuard{store: store, ttl: ttl}
}

// CheckAndMark claims the event id. It returns false when another delivery
// already holds the claim.
func (g *IdempotencyGuard) CheckAndMark(ctx context.Context, eventID string) (bool, error) {
	if g == nil {
		return true, nil
	}
	return g.store.SetNX(ctx, g.store.IdempotencyKey(guardScope, eventID), 1, g.ttl)
}

// Release frees the claim after a processing failure so the processor's
// redelivery gets another attempt.
func (g *IdempotencyGuard) Release(ctx context.Context, eventID string) error {
	if g == nil {
		return nil
	}
	return g.store.Del(ctx, g.store.IdempotencyKey(guardScope, eventID))
}
