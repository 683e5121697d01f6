package enums

// SubscriptionTier classifies a user for quota purposes.
type SubscriptionTier string

const (
	SubscriptionTierFree    SubscriptionTier = "free"
	SubscriptionTierPremium SubscriptionTier = "premium"
)

func (t SubscriptionTier) IsValid() bool {
	switch t {
	case SubscriptionTierFree, SubscriptionTierPremium:
		return true
	}
	return false
}

func (t SubscriptionTier) String() string {
	return string(t)
}
