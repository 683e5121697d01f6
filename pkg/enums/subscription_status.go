package enums

// SubscriptionStatus mirrors the billing state cached on the user record.
type SubscriptionStatus string

const (
	SubscriptionStatusFree     SubscriptionStatus = "free"
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
	SubscriptionStatusPastDue  SubscriptionStatus = "past_due"
)

func (s SubscriptionStatus) IsValid() bool {
	switch s {
	case SubscriptionStatusFree, SubscriptionStatusActive, SubscriptionStatusCanceled, SubscriptionStatusPastDue:
		return true
	}
	return false
}

func (s SubscriptionStatus) String() string {
	return string(s)
}
