package quota

import "github.com/taskhive/taskhive-backend/pkg/enums"

// CanCreate reports whether a user on the given tier may create another todo.
// Premium is unlimited. Free is capped at freeLimit. Unrecognized tiers are
// allowed through: availability is preferred over strict enforcement when
// the tier value is out of band.
func CanCreate(tier enums.SubscriptionTier, currentCount int64, freeLimit int) bool {
	switch tier {
	case enums.SubscriptionTierPremium:
		return true
	case enums.SubscriptionTierFree:
		return currentCount < int64(freeLimit)
	default:
		return true
	}
}
