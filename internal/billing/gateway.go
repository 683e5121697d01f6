package billing

import (
	"context"
	"time"
)

// Gateway wraps the payment processor operations the platform depends on.
// All identifiers exchanged with the processor are opaque strings. Calls are
// never retried here; callers surface failures as dependency errors.
type Gateway interface {
	CreateCustomer(ctx context.Context, params CustomerParams) (*Customer, error)
	GetCustomer(ctx context.Context, customerID string) (*Customer, error)
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error)
	GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)
	CancelSubscription(ctx context.Context, subscriptionID string, mode CancelMode) (*Subscription, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (*PortalSession, error)
}

// CancelMode selects between scheduling a cancellation and tearing the
// subscription down immediately.
type CancelMode string

const (
	CancelAtPeriodEnd CancelMode = "at_period_end"
	CancelImmediately CancelMode = "immediately"
)

// CustomerParams captures the data sent when creating a gateway customer.
type CustomerParams struct {
	Email    string
	Name     string
	Metadata map[string]string
}

// Customer is the adapter-level view of a gateway customer.
type Customer struct {
	ID    string
	Email string
}

// CheckoutParams configures a subscription-mode checkout session.
type CheckoutParams struct {
	CustomerID string
	PriceID    string
	SuccessURL string
	CancelURL  string
	Metadata   map[string]string
}

// CheckoutSession is the adapter-level view of a checkout session.
type CheckoutSession struct {
	ID             string
	URL            string
	CustomerID     string
	SubscriptionID string
	PaymentStatus  string
}

// Paid reports whether the session's payment completed.
func (s *CheckoutSession) Paid() bool {
	return s != nil && s.PaymentStatus == "paid"
}

// Subscription is the adapter-level view of a gateway subscription, carrying
// only the fields the reconciler and projector read.
type Subscription struct {
	ID                 string
	CustomerID         string
	Status             string
	CancelAtPeriodEnd  bool
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	UnitAmountCents    int64
	Currency           string
}

// PortalSession points the customer at the gateway's self-service portal.
type PortalSession struct {
	URL string
}
