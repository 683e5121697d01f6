package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/taskhive/taskhive-backend/internal/billing"
	"github.com/taskhive/taskhive-backend/internal/subscriptions"
	"github.com/taskhive/taskhive-backend/internal/users"
	"github.com/taskhive/taskhive-backend/pkg/db"
	"github.com/taskhive/taskhive-backend/pkg/db/models"
	"github.com/taskhive/taskhive-backend/pkg/enums"
	apperrors "github.com/taskhive/taskhive-backend/pkg/errors"
	"github.com/taskhive/taskhive-backend/pkg/logger"
	"github.com/taskhive/taskhive-backend/pkg/metrics"
)

// Outcome classifies what the reconciler did with a delivery. Every outcome
// maps to an HTTP 200 at the transport layer; only infrastructure failures
// bubble up as errors so the processor retries.
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeDuplicate Outcome = "duplicate"
)

// Result reports how a verified event was reconciled.
type Result struct {
	Outcome Outcome
	Message string
}

// TxRunner executes a function inside a database transaction. *db.Client
// satisfies it.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams collects the reconciler's dependencies.
type ServiceParams struct {
	Logger  *logger.Logger
	Users   users.Repository
	Billing billing.Repository
	Tx      TxRunner
	Guard   *IdempotencyGuard
	Metrics *metrics.WebhookMetrics
	Clock   func() time.Time
}

// Service applies verified processor events to the local subscription cache
// and audit trail. It trusts the webhook payload as the source of truth and
// never calls back out to the processor.
type Service struct {
	logger  *logger.Logger
	users   users.Repository
	billing billing.Repository
	tx      TxRunner
	guard   *IdempotencyGuard
	metrics *metrics.WebhookMetrics
	now     func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("webhooks service requires a logger")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("webhooks service requires a user repository")
	}
	if params.Billing == nil {
		return nil, fmt.Errorf("webhooks service requires a billing repository")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("webhooks service requires a transaction runner")
	}
	now := params.Clock
	if now == nil {
		now = time.Now
	}
	return &Service{
		logger:  params.Logger,
		users:   params.Users,
		billing: params.Billing,
		tx:      params.Tx,
		guard:   params.Guard,
		metrics: params.Metrics,
		now:     now,
	}, nil
}

// HandleEvent reconciles a single verified event. Unknown event types and
// events referencing users this system does not know are acknowledged as
// ignored; a returned error means the delivery should be retried.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) (*Result, error) {
	if event == nil || event.ID == "" {
		return nil, apperrors.New(apperrors.CodeValidation, "event is missing an id")
	}
	ctx = s.logger.WithFields(ctx, map[string]any{
		"event_id":   event.ID,
		"event_type": string(event.Type),
	})
	s.metrics.IncReceived(string(event.Type))

	guarded := false
	if s.guard != nil {
		first, err := s.guard.CheckAndMark(ctx, event.ID)
		switch {
		case err != nil:
			s.logger.Warn(ctx, "dedupe guard unavailable, relying on database constraint")
		case !first:
			s.logger.Info(ctx, "event already claimed, skipping")
			s.metrics.IncDuplicate()
			s.metrics.IncOutcome(string(event.Type), string(OutcomeDuplicate))
			return &Result{Outcome: OutcomeDuplicate, Message: "event already processed"}, nil
		default:
			guarded = true
		}
	}

	result, err := s.dispatch(ctx, event)
	if err != nil {
		if guarded {
			if relErr := s.guard.Release(ctx, event.ID); relErr != nil {
				s.logger.Warn(ctx, "failed to release dedupe claim")
			}
		}
		s.metrics.IncOutcome(string(event.Type), "error")
		return nil, err
	}

	if result.Outcome == OutcomeDuplicate {
		s.metrics.IncDuplicate()
	}
	s.metrics.IncOutcome(string(event.Type), string(result.Outcome))
	s.logger.Info(ctx, fmt.Sprintf("webhook event %s: %s", result.Outcome, result.Message))
	return result, nil
}

func (s *Service) dispatch(ctx context.Context, event *stripe.Event) (*Result, error) {
	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		return s.handleCheckoutCompleted(ctx, event)
	case stripe.EventTypeCustomerSubscriptionCreated:
		return s.handleSubscriptionCreated(ctx, event)
	case stripe.EventTypeCustomerSubscriptionUpdated:
		return s.handleSubscriptionUpdated(ctx, event)
	case stripe.EventTypeCustomerSubscriptionDeleted:
		return s.handleSubscriptionDeleted(ctx, event)
	case stripe.EventTypeInvoicePaymentSucceeded:
		return s.handleInvoicePaymentSucceeded(ctx, event)
	case stripe.EventTypeInvoicePaymentFailed:
		return s.handleInvoicePaymentFailed(ctx, event)
	default:
		return &Result{Outcome: OutcomeIgnored, Message: "unhandled event type"}, nil
	}
}

func (s *Service) handleCheckoutCompleted(ctx context.Context, event *stripe.Event) (*Result, error) {
	var payload checkoutSessionPayload
	if err := json.Unmarshal(event.Data.Raw, &payload); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeValidation, err, "decoding checkout session payload")
	}
	if payload.Subscription == "" {
		return &Result{Outcome: OutcomeIgnored, Message: "checkout session is not a subscription"}, nil
	}
	user, result, err := s.findUser(ctx, payload.Customer, "")
	if user == nil {
		return result, err
	}
	return s.record(ctx, event, user, optional(payload.Subscription), "premium activated from checkout", func(tx *gorm.DB) error {
		subscriptions.ActivatePremium(user, payload.Subscription, s.now())
		return s.users.WithTx(tx).Update(ctx, user)
	})
}

func (s *Service) handleSubscriptionCreated(ctx context.Context, event *stripe.Event) (*Result, error) {
	payload, err := decodeSubscription(event)
	if err != nil {
		return nil, err
	}
	user, result, err := s.findUser(ctx, payload.Customer, payload.ID)
	if user == nil {
		return result, err
	}
	start := payload.periodStart()
	if start.IsZero() {
		start = s.now()
	}
	return s.record(ctx, event, user, optional(payload.ID), "premium activated from subscription", func(tx *gorm.DB) error {
		subscriptions.ActivatePremium(user, payload.ID, start)
		return s.users.WithTx(tx).Update(ctx, user)
	})
}

func (s *Service) handleSubscriptionUpdated(ctx context.Context, event *stripe.Event) (*Result, error) {
	payload, err := decodeSubscription(event)
	if err != nil {
		return nil, err
	}
	user, result, err := s.findUserBySubscription(ctx, payload.ID, payload.Customer)
	if user == nil {
		return result, err
	}

	var message string
	switch {
	case payload.CancelAtPeriodEnd:
		// Scheduled cancellation takes precedence over the status field,
		// which still reads "active" until the period runs out.
		end := payload.periodEnd()
		if end.IsZero() {
			end = s.now()
		}
		subscriptions.ScheduleCancellation(user, end)
		message = "cancellation scheduled"
	default:
		switch payload.Status {
		case "active", "trialing":
			subscriptions.RestoreActive(user)
			if user.StripeSubscriptionID == nil && payload.ID != "" {
				user.StripeSubscriptionID = optional(payload.ID)
			}
			message = "subscription active"
		case "past_due", "unpaid":
			// Delinquency keeps the tier: access is only revoked once the
			// processor reports the subscription gone.
			subscriptions.MarkPastDue(user)
			message = "subscription past due"
		case "canceled":
			subscriptions.DeactivateToFree(user, s.now())
			message = "subscription ended"
		default:
			message = fmt.Sprintf("status %q left local state unchanged", payload.Status)
		}
	}

	return s.record(ctx, event, user, optional(payload.ID), message, func(tx *gorm.DB) error {
		return s.users.WithTx(tx).Update(ctx, user)
	})
}

func (s *Service) handleSubscriptionDeleted(ctx context.Context, event *stripe.Event) (*Result, error) {
	payload, err := decodeSubscription(event)
	if err != nil {
		return nil, err
	}
	user, result, err := s.findUserBySubscription(ctx, payload.ID, payload.Customer)
	if user == nil {
		return result, err
	}
	return s.record(ctx, event, user, optional(payload.ID), "subscription deleted, user downgraded", func(tx *gorm.DB) error {
		subscriptions.DeactivateToFree(user, s.now())
		return s.users.WithTx(tx).Update(ctx, user)
	})
}

func (s *Service) handleInvoicePaymentSucceeded(ctx context.Context, event *stripe.Event) (*Result, error) {
	payload, err := decodeInvoice(event)
	if err != nil {
		return nil, err
	}
	user, result, err := s.findUser(ctx, payload.Customer, payload.Subscription)
	if user == nil {
		return result, err
	}
	return s.record(ctx, event, user, optional(payload.Subscription), "payment recorded", func(tx *gorm.DB) error {
		txn := &models.PaymentTransaction{
			UserID:                user.ID,
			StripePaymentIntentID: payload.ledgerRef(),
			AmountCents:           payload.AmountPaid,
			Currency:              currencyOrDefault(payload.Currency),
			Status:                enums.PaymentStatusSucceeded,
		}
		if err := s.billing.WithTx(tx).CreatePaymentTransaction(ctx, txn); err != nil {
			return err
		}
		// A successful charge clears delinquency.
		if user.SubscriptionStatus == enums.SubscriptionStatusPastDue {
			subscriptions.RestoreActive(user)
			return s.users.WithTx(tx).Update(ctx, user)
		}
		return nil
	})
}

func (s *Service) handleInvoicePaymentFailed(ctx context.Context, event *stripe.Event) (*Result, error) {
	payload, err := decodeInvoice(event)
	if err != nil {
		return nil, err
	}
	user, result, err := s.findUser(ctx, payload.Customer, payload.Subscription)
	if user == nil {
		return result, err
	}
	// Failed invoices often carry no payment intent, and the invoice id may
	// later key the successful retry. Namespace the fallback by event so the
	// two ledger rows never collide.
	ledgerRef := payload.PaymentIntent
	if ledgerRef == "" {
		ledgerRef = "failed_" + event.ID
	}
	return s.record(ctx, event, user, optional(payload.Subscription), "payment failure recorded", func(tx *gorm.DB) error {
		txn := &models.PaymentTransaction{
			UserID:                user.ID,
			StripePaymentIntentID: ledgerRef,
			AmountCents:           payload.AmountDue,
			Currency:              currencyOrDefault(payload.Currency),
			Status:                enums.PaymentStatusFailed,
		}
		if err := s.billing.WithTx(tx).CreatePaymentTransaction(ctx, txn); err != nil {
			return err
		}
		subscriptions.MarkPastDue(user)
		return s.users.WithTx(tx).Update(ctx, user)
	})
}

// findUser resolves the event to a local user by processor customer id,
// falling back to the subscription id. A miss is not an error: the event may
// belong to a customer created outside this system, so it is acknowledged as
// ignored to stop the processor from retrying forever.
func (s *Service) findUser(ctx context.Context, customerID, subscriptionID string) (*models.User, *Result, error) {
	user, err := s.lookupByCustomer(ctx, customerID)
	if err != nil || user != nil {
		return user, nil, err
	}
	user, err = s.lookupBySubscription(ctx, subscriptionID)
	if err != nil || user != nil {
		return user, nil, err
	}
	s.logger.Warn(ctx, fmt.Sprintf("no user for customer %q, ignoring event", customerID))
	return nil, &Result{Outcome: OutcomeIgnored, Message: "no matching user"}, nil
}

// findUserBySubscription is the lookup for subscription lifecycle events,
// which are keyed on the subscription ref the user record caches. The
// customer id is only a fallback for users created before the ref landed.
func (s *Service) findUserBySubscription(ctx context.Context, subscriptionID, customerID string) (*models.User, *Result, error) {
	user, err := s.lookupBySubscription(ctx, subscriptionID)
	if err != nil || user != nil {
		return user, nil, err
	}
	user, err = s.lookupByCustomer(ctx, customerID)
	if err != nil || user != nil {
		return user, nil, err
	}
	s.logger.Warn(ctx, fmt.Sprintf("no user for subscription %q, ignoring event", subscriptionID))
	return nil, &Result{Outcome: OutcomeIgnored, Message: "no matching user"}, nil
}

func (s *Service) lookupByCustomer(ctx context.Context, customerID string) (*models.User, error) {
	if customerID == "" {
		return nil, nil
	}
	user, err := s.users.FindByStripeCustomerID(ctx, customerID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "looking up user by customer id")
	}
	return user, nil
}

func (s *Service) lookupBySubscription(ctx context.Context, subscriptionID string) (*models.User, error) {
	if subscriptionID == "" {
		return nil, nil
	}
	user, err := s.users.FindByStripeSubscriptionID(ctx, subscriptionID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "looking up user by subscription id")
	}
	return user, nil
}

// record runs the state mutation and the audit insert in one transaction.
// The audit row goes in first so a duplicate event id aborts the transaction
// before any user state is written; the unique violation is then reported as
// a duplicate rather than an error. Only a violation of the event-id index
// counts: any other constraint is a genuine failure and must surface so the
// processor retries the delivery.
func (s *Service) record(ctx context.Context, event *stripe.Event, user *models.User, subscriptionID *string, message string, ops func(tx *gorm.DB) error) (*Result, error) {
	ctx = s.logger.WithUserID(ctx, user.ID.String())
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		audit := &models.SubscriptionEvent{
			UserID:               user.ID,
			EventType:            string(event.Type),
			StripeEventID:        event.ID,
			StripeSubscriptionID: subscriptionID,
			EventData:            json.RawMessage(event.Data.Raw),
		}
		if err := s.billing.WithTx(tx).CreateSubscriptionEvent(ctx, audit); err != nil {
			return err
		}
		return ops(tx)
	})
	if err != nil {
		if db.IsUniqueViolation(err, "idx_subscription_events_stripe_event_id", "subscription_events.stripe_event_id") {
			s.logger.Info(ctx, "event already recorded, skipping")
			return &Result{Outcome: OutcomeDuplicate, Message: "event already processed"}, nil
		}
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "persisting webhook transition")
	}
	return &Result{Outcome: OutcomeProcessed, Message: message}, nil
}

func decodeSubscription(event *stripe.Event) (subscriptionPayload, error) {
	var payload subscriptionPayload
	if err := json.Unmarshal(event.Data.Raw, &payload); err != nil {
		return payload, apperrors.Wrap(apperrors.CodeValidation, err, "decoding subscription payload")
	}
	return payload, nil
}

func decodeInvoice(event *stripe.Event) (invoicePayload, error) {
	var payload invoicePayload
	if err := json.Unmarshal(event.Data.Raw, &payload); err != nil {
		return payload, apperrors.Wrap(apperrors.CodeValidation, err, "decoding invoice payload")
	}
	return payload, nil
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func currencyOrDefault(currency string) string {
	if currency == "" {
		return "usd"
	}
	return currency
}
