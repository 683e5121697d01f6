package billing

import (
	"context"
	"time"

	"github.com/stripe/stripe-go/v84"
	portalsession "github.com/stripe/stripe-go/v84/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v84/checkout/session"
	"github.com/stripe/stripe-go/v84/customer"
	"github.com/stripe/stripe-go/v84/subscription"

	pkgstripe "github.com/taskhive/taskhive-backend/pkg/stripe"
)

type stripeGateway struct{}

// NewStripeGateway wraps the initialized Stripe client behind the Gateway
// interface so services and tests never touch the SDK directly.
func NewStripeGateway(api *pkgstripe.Client) Gateway {
	if api == nil {
		return nil
	}
	return &stripeGateway{}
}

func (g *stripeGateway) CreateCustomer(ctx context.Context, params CustomerParams) (*Customer, error) {
	p := &stripe.CustomerParams{
		Email: stripe.String(params.Email),
		Name:  stripe.String(params.Name),
	}
	p.Context = ctx
	for k, v := range params.Metadata {
		p.AddMetadata(k, v)
	}
	cust, err := customer.New(p)
	if err != nil {
		return nil, err
	}
	return customerFromStripe(cust), nil
}

func (g *stripeGateway) GetCustomer(ctx context.Context, customerID string) (*Customer, error) {
	p := &stripe.CustomerParams{}
	p.Context = ctx
	cust, err := customer.Get(customerID, p)
	if err != nil {
		return nil, err
	}
	return customerFromStripe(cust), nil
}

func (g *stripeGateway) CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error) {
	p := &stripe.CheckoutSessionParams{
		Customer: stripe.String(params.CustomerID),
		Mode:     stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Price:    stripe.String(params.PriceID),
			Quantity: stripe.Int64(1),
		}},
		SuccessURL:          stripe.String(params.SuccessURL),
		CancelURL:           stripe.String(params.CancelURL),
		AllowPromotionCodes: stripe.Bool(true),
	}
	p.Context = ctx
	for k, v := range params.Metadata {
		p.AddMetadata(k, v)
	}
	sess, err := checkoutsession.New(p)
	if err != nil {
		return nil, err
	}
	return checkoutSessionFromStripe(sess), nil
}

func (g *stripeGateway) GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	p := &stripe.CheckoutSessionParams{}
	p.Context = ctx
	sess, err := checkoutsession.Get(sessionID, p)
	if err != nil {
		return nil, err
	}
	return checkoutSessionFromStripe(sess), nil
}

func (g *stripeGateway) GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	p := &stripe.SubscriptionParams{}
	p.Context = ctx
	sub, err := subscription.Get(subscriptionID, p)
	if err != nil {
		return nil, err
	}
	return subscriptionFromStripe(sub), nil
}

func (g *stripeGateway) CancelSubscription(ctx context.Context, subscriptionID string, mode CancelMode) (*Subscription, error) {
	if mode == CancelImmediately {
		p := &stripe.SubscriptionCancelParams{}
		p.Context = ctx
		sub, err := subscription.Cancel(subscriptionID, p)
		if err != nil {
			return nil, err
		}
		return subscriptionFromStripe(sub), nil
	}

	p := &stripe.SubscriptionParams{CancelAtPeriodEnd: stripe.Bool(true)}
	p.Context = ctx
	sub, err := subscription.Update(subscriptionID, p)
	if err != nil {
		return nil, err
	}
	return subscriptionFromStripe(sub), nil
}

func (g *stripeGateway) CreatePortalSession(ctx context.Context, customerID, returnURL string) (*PortalSession, error) {
	p := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	p.Context = ctx
	sess, err := portalsession.New(p)
	if err != nil {
		return nil, err
	}
	return &PortalSession{URL: sess.URL}, nil
}

func customerFromStripe(cust *stripe.Customer) *Customer {
	if cust == nil {
		return nil
	}
	return &Customer{ID: cust.ID, Email: cust.Email}
}

func checkoutSessionFromStripe(sess *stripe.CheckoutSession) *CheckoutSession {
	if sess == nil {
		return nil
	}
	out := &CheckoutSession{
		ID:            sess.ID,
		URL:           sess.URL,
		PaymentStatus: string(sess.PaymentStatus),
	}
	if sess.Customer != nil {
		out.CustomerID = sess.Customer.ID
	}
	if sess.Subscription != nil {
		out.SubscriptionID = sess.Subscription.ID
	}
	return out
}

func subscriptionFromStripe(sub *stripe.Subscription) *Subscription {
	if sub == nil {
		return nil
	}
	out := &Subscription{
		ID:                sub.ID,
		Status:            string(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}
	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
	}
	// Billing periods and price live on the subscription item since the
	// flexible-billing API versions.
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		if item.CurrentPeriodStart > 0 {
			out.CurrentPeriodStart = time.Unix(item.CurrentPeriodStart, 0).UTC()
		}
		if item.CurrentPeriodEnd > 0 {
			out.CurrentPeriodEnd = time.Unix(item.CurrentPeriodEnd, 0).UTC()
		}
		if item.Price != nil {
			out.UnitAmountCents = item.Price.UnitAmount
			out.Currency = string(item.Price.Currency)
		}
	}
	return out
}
