package subscriptions

import (
	"time"

	"github.com/taskhive/taskhive-backend/pkg/db/models"
	"github.com/taskhive/taskhive-backend/pkg/enums"
)

// The transition helpers below are the only places the cached subscription
// fields on a user are mutated. Both the webhook reconciler and the
// checkout verification path go through them so the two entry points can
// never disagree on what "premium" looks like.

// ActivatePremium moves the user onto the premium tier with a fresh billing
// anchor. Any previously scheduled end date is discarded.
func ActivatePremium(user *models.User, subscriptionID string, start time.Time) {
	user.SubscriptionTier = enums.SubscriptionTierPremium
	user.SubscriptionStatus = enums.SubscriptionStatusActive
	if subscriptionID != "" {
		user.StripeSubscriptionID = &subscriptionID
	}
	startAt := start.UTC()
	user.SubscriptionStartDate = &startAt
	user.SubscriptionEndDate = nil
}

// RestoreActive clears a delinquency or scheduled cancellation without
// touching the original start date.
func RestoreActive(user *models.User) {
	user.SubscriptionTier = enums.SubscriptionTierPremium
	user.SubscriptionStatus = enums.SubscriptionStatusActive
	user.SubscriptionEndDate = nil
}

// ScheduleCancellation records that the processor will end the subscription
// at periodEnd. The user keeps premium access until that date.
func ScheduleCancellation(user *models.User, periodEnd time.Time) {
	user.SubscriptionStatus = enums.SubscriptionStatusCanceled
	endAt := periodEnd.UTC()
	user.SubscriptionEndDate = &endAt
}

// MarkPastDue flags a delinquent subscription. Tier is left as-is; access
// is only revoked once the processor reports the subscription gone.
func MarkPastDue(user *models.User) {
	user.SubscriptionStatus = enums.SubscriptionStatusPastDue
}

// DeactivateToFree drops the user back to the free tier after the
// subscription has terminally ended.
func DeactivateToFree(user *models.User, endedAt time.Time) {
	user.SubscriptionTier = enums.SubscriptionTierFree
	user.SubscriptionStatus = enums.SubscriptionStatusCanceled
	user.StripeSubscriptionID = nil
	endAt := endedAt.UTC()
	user.SubscriptionEndDate = &endAt
}
