package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/taskhive/taskhive-backend/pkg/enums"
)

// User is the canonical identity entity. The subscription fields are a local
// cache of the payment processor's state, refreshed by webhook push and
// supplemented on read by live gateway queries.
type User struct {
	ID           uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Email        string    `gorm:"type:text;not null;uniqueIndex"`
	Username     string    `gorm:"type:text;not null;uniqueIndex"`
	PasswordHash string    `gorm:"column:password_hash;not null"`
	IsActive     bool      `gorm:"column:is_active;not null;default:true"`

	SubscriptionTier      enums.SubscriptionTier   `gorm:"column:subscription_tier;not null;default:'free'"`
	SubscriptionStatus    enums.SubscriptionStatus `gorm:"column:subscription_status;not null;default:'free';index"`
	StripeCustomerID      *string                  `gorm:"column:stripe_customer_id;uniqueIndex"`
	StripeSubscriptionID  *string                  `gorm:"column:stripe_subscription_id;index"`
	SubscriptionStartDate *time.Time               `gorm:"column:subscription_start_date"`
	SubscriptionEndDate   *time.Time               `gorm:"column:subscription_end_date"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
