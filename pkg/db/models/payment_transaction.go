package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/taskhive/taskhive-backend/pkg/enums"
)

// PaymentTransaction is an append-only ledger row per processor-reported
// charge attempt. Rows are never updated or deleted.
type PaymentTransaction struct {
	ID                    uuid.UUID           `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID                uuid.UUID           `gorm:"column:user_id;type:uuid;not null;index"`
	StripePaymentIntentID string              `gorm:"column:stripe_payment_intent_id;not null;uniqueIndex"`
	AmountCents           int64               `gorm:"column:amount_cents;not null"`
	Currency              string              `gorm:"column:currency;not null;default:'usd'"`
	Status                enums.PaymentStatus `gorm:"column:status;not null;index"`
	PaymentMethod         *string             `gorm:"column:payment_method"`
	CreatedAt             time.Time           `gorm:"column:created_at;autoCreateTime"`
}
