package webhooks

import "time"

// The reconciler decodes event payloads itself instead of leaning on the
// SDK's typed structs: webhook bodies arrive pinned to the account's API
// version, which may not match the SDK's, and only a handful of fields are
// needed per event type.

type checkoutSessionPayload struct {
	ID           string `json:"id"`
	Customer     string `json:"customer"`
	Subscription string `json:"subscription"`
}

type subscriptionPayload struct {
	ID                string `json:"id"`
	Customer          string `json:"customer"`
	Status            string `json:"status"`
	CancelAtPeriodEnd bool   `json:"cancel_at_period_end"`

	// Current API versions report billing periods on the subscription item;
	// older ones carry them at the top level. Accept both.
	CurrentPeriodStart int64 `json:"current_period_start"`
	CurrentPeriodEnd   int64 `json:"current_period_end"`
	Items              struct {
		Data []struct {
			CurrentPeriodStart int64 `json:"current_period_start"`
			CurrentPeriodEnd   int64 `json:"current_period_end"`
		} `json:"data"`
	} `json:"items"`
}

func (p subscriptionPayload) periodStart() time.Time {
	if len(p.Items.Data) > 0 && p.Items.Data[0].CurrentPeriodStart > 0 {
		return time.Unix(p.Items.Data[0].CurrentPeriodStart, 0).UTC()
	}
	if p.CurrentPeriodStart > 0 {
		return time.Unix(p.CurrentPeriodStart, 0).UTC()
	}
	return time.Time{}
}

func (p subscriptionPayload) periodEnd() time.Time {
	if len(p.Items.Data) > 0 && p.Items.Data[0].CurrentPeriodEnd > 0 {
		return time.Unix(p.Items.Data[0].CurrentPeriodEnd, 0).UTC()
	}
	if p.CurrentPeriodEnd > 0 {
		return time.Unix(p.CurrentPeriodEnd, 0).UTC()
	}
	return time.Time{}
}

type invoicePayload struct {
	ID            string `json:"id"`
	Customer      string `json:"customer"`
	PaymentIntent string `json:"payment_intent"`
	Subscription  string `json:"subscription"`
	AmountPaid    int64  `json:"amount_paid"`
	AmountDue     int64  `json:"amount_due"`
	Currency      string `json:"currency"`
}

// ledgerRef returns the identifier a successful payment is keyed on in the
// ledger. Invoices settled from a customer balance carry no payment intent,
// so the invoice id stands in.
func (p invoicePayload) ledgerRef() string {
	if p.PaymentIntent != "" {
		return p.PaymentIntent
	}
	return p.ID
}
