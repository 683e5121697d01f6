package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SubscriptionEvent is the append-only audit log of billing transitions.
// The unique index on StripeEventID is the idempotency guard against
// duplicate webhook delivery: inserting the same external event id twice
// fails, and the caller treats that as already-processed.
type SubscriptionEvent struct {
	ID                   uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID               uuid.UUID       `gorm:"column:user_id;type:uuid;not null;index"`
	EventType            string          `gorm:"column:event_type;not null;index"`
	StripeEventID        string          `gorm:"column:stripe_event_id;not null;uniqueIndex:idx_subscription_events_stripe_event_id"`
	StripeSubscriptionID *string         `gorm:"column:stripe_subscription_id"`
	EventData            json.RawMessage `gorm:"column:event_data;type:jsonb"`
	CreatedAt            time.Time       `gorm:"column:created_at;autoCreateTime"`
}
