package subscriptions

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/taskhive/taskhive-backend/internal/billing"
	"github.com/taskhive/taskhive-backend/internal/quota"
	"github.com/taskhive/taskhive-backend/internal/users"
	"github.com/taskhive/taskhive-backend/pkg/config"
	"github.com/taskhive/taskhive-backend/pkg/db/models"
	"github.com/taskhive/taskhive-backend/pkg/enums"
	apperrors "github.com/taskhive/taskhive-backend/pkg/errors"
	"github.com/taskhive/taskhive-backend/pkg/logger"
)

// TodoCounter supplies the live todo count used by the status projection.
type TodoCounter interface {
	CountByUser(ctx context.Context, userID uuid.UUID) (int64, error)
}

// ServiceParams collects the subscription service dependencies.
type ServiceParams struct {
	Logger       *logger.Logger
	Users        users.Repository
	Todos        TodoCounter
	Gateway      billing.Gateway
	Stripe       config.StripeConfig
	Subscription config.SubscriptionConfig
	FrontendURL  string
	Clock        func() time.Time
}

// Service owns the user-facing subscription lifecycle: the status
// projection, checkout initiation, cancellation, the billing portal, and
// post-checkout verification.
type Service struct {
	logger      *logger.Logger
	users       users.Repository
	todos       TodoCounter
	gateway     billing.Gateway
	priceID     string
	callTimeout time.Duration
	todoLimit   int
	frontendURL string
	now         func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("subscription service requires a logger")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("subscription service requires a user repository")
	}
	if params.Todos == nil {
		return nil, fmt.Errorf("subscription service requires a todo counter")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("subscription service requires a billing gateway")
	}
	callTimeout := params.Stripe.CallTimeout
	if callTimeout <= 0 {
		callTimeout = 10 * time.Second
	}
	now := params.Clock
	if now == nil {
		now = time.Now
	}
	return &Service{
		logger:      params.Logger,
		users:       params.Users,
		todos:       params.Todos,
		gateway:     params.Gateway,
		priceID:     params.Stripe.PremiumPriceID,
		callTimeout: callTimeout,
		todoLimit:   params.Subscription.FreeTierTodoLimit,
		frontendURL: params.FrontendURL,
		now:         now,
	}, nil
}

// StatusView is the subscription snapshot returned to clients. Quota fields
// are always computed from local state; the billing fields are best-effort
// enrichment from the gateway and degrade to nulls when it is unreachable.
type StatusView struct {
	Tier          enums.SubscriptionTier   `json:"tier"`
	Status        enums.SubscriptionStatus `json:"status"`
	IsPremium     bool                     `json:"is_premium"`
	TodoCount     int64                    `json:"todo_count"`
	TodoLimit     *int                     `json:"todo_limit"`
	CanCreateTodo bool                     `json:"can_create_todo"`

	SubscriptionStartDate *time.Time `json:"subscription_start_date,omitempty"`
	SubscriptionEndDate   *time.Time `json:"subscription_end_date,omitempty"`

	MonthlyAmountCents *int64     `json:"monthly_amount_cents,omitempty"`
	Currency           *string    `json:"currency,omitempty"`
	NextBillingDate    *time.Time `json:"next_billing_date,omitempty"`
	CancelAtPeriodEnd  *bool      `json:"cancel_at_period_end,omitempty"`
	BillingUnavailable bool       `json:"billing_unavailable,omitempty"`
}

// CheckoutView is returned when a checkout session has been created.
type CheckoutView struct {
	SessionID   string `json:"session_id"`
	CheckoutURL string `json:"checkout_url"`
}

// CancelView reports a scheduled cancellation.
type CancelView struct {
	Status            enums.SubscriptionStatus `json:"status"`
	CancelAtPeriodEnd bool                     `json:"cancel_at_period_end"`
	AccessUntil       *time.Time               `json:"access_until,omitempty"`
}

// Status projects the user's subscription state. The todo count is read live
// so webhook-driven tier changes are reflected immediately; gateway
// enrichment failures never fail the request.
func (s *Service) Status(ctx context.Context, userID uuid.UUID) (*StatusView, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	count, err := s.todos.CountByUser(ctx, userID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "counting todos")
	}

	view := &StatusView{
		Tier:                  user.SubscriptionTier,
		Status:                user.SubscriptionStatus,
		IsPremium:             user.SubscriptionTier == enums.SubscriptionTierPremium,
		TodoCount:             count,
		CanCreateTodo:         quota.CanCreate(user.SubscriptionTier, count, s.todoLimit),
		SubscriptionStartDate: user.SubscriptionStartDate,
		SubscriptionEndDate:   user.SubscriptionEndDate,
	}
	if user.SubscriptionTier == enums.SubscriptionTierFree {
		limit := s.todoLimit
		view.TodoLimit = &limit
	}

	if view.IsPremium && user.StripeSubscriptionID != nil {
		s.enrich(ctx, view, *user.StripeSubscriptionID)
	}
	return view, nil
}

// enrich fills the billing fields from the gateway, bounded by the call
// timeout. On failure the view stays usable and flags the gap.
func (s *Service) enrich(ctx context.Context, view *StatusView, subscriptionID string) {
	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	sub, err := s.gateway.GetSubscription(callCtx, subscriptionID)
	if err != nil || sub == nil {
		s.logger.Warn(ctx, fmt.Sprintf("billing enrichment unavailable for subscription %s", subscriptionID))
		view.BillingUnavailable = true
		return
	}
	if sub.UnitAmountCents > 0 {
		amount := sub.UnitAmountCents
		view.MonthlyAmountCents = &amount
	}
	if sub.Currency != "" {
		currency := sub.Currency
		view.Currency = &currency
	}
	if !sub.CurrentPeriodEnd.IsZero() {
		next := sub.CurrentPeriodEnd
		view.NextBillingDate = &next
	}
	cancelAtPeriodEnd := sub.CancelAtPeriodEnd
	view.CancelAtPeriodEnd = &cancelAtPeriodEnd
}

// Checkout opens a subscription checkout session for the user, creating the
// gateway customer on first use.
func (s *Service) Checkout(ctx context.Context, userID uuid.UUID) (*CheckoutView, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	// Tier alone gates checkout: a delinquent or cancellation-scheduled
	// premium user still holds a live gateway subscription, and a second
	// checkout would double-bill. Remediation happens through the portal.
	if user.SubscriptionTier == enums.SubscriptionTierPremium {
		return nil, apperrors.New(apperrors.CodeStateConflict, "subscription is already active")
	}

	customerID, err := s.ensureCustomer(ctx, user)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	session, err := s.gateway.CreateCheckoutSession(callCtx, billing.CheckoutParams{
		CustomerID: customerID,
		PriceID:    s.priceID,
		SuccessURL: s.frontendURL + "/subscription/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  s.frontendURL + "/subscription/cancel",
		Metadata:   map[string]string{"user_id": user.ID.String()},
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDependency, err, "creating checkout session")
	}
	return &CheckoutView{SessionID: session.ID, CheckoutURL: session.URL}, nil
}

// ensureCustomer returns the user's gateway customer id, creating and
// persisting one when missing.
func (s *Service) ensureCustomer(ctx context.Context, user *models.User) (string, error) {
	if user.StripeCustomerID != nil && *user.StripeCustomerID != "" {
		return *user.StripeCustomerID, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	customer, err := s.gateway.CreateCustomer(callCtx, billing.CustomerParams{
		Email:    user.Email,
		Name:     user.Username,
		Metadata: map[string]string{"user_id": user.ID.String()},
	})
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeDependency, err, "creating gateway customer")
	}

	user.StripeCustomerID = &customer.ID
	if err := s.users.Update(ctx, user); err != nil {
		return "", apperrors.Wrap(apperrors.CodeInternal, err, "persisting customer reference")
	}
	return customer.ID, nil
}

// Cancel schedules the subscription to end at the current period boundary.
// The user keeps premium access until then; the final downgrade arrives via
// the processor's deletion webhook.
func (s *Service) Cancel(ctx context.Context, userID uuid.UUID) (*CancelView, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.StripeSubscriptionID == nil || *user.StripeSubscriptionID == "" {
		return nil, apperrors.New(apperrors.CodeStateConflict, "no active subscription to cancel")
	}

	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	sub, err := s.gateway.CancelSubscription(callCtx, *user.StripeSubscriptionID, billing.CancelAtPeriodEnd)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDependency, err, "cancelling subscription")
	}

	end := sub.CurrentPeriodEnd
	if end.IsZero() {
		end = s.now()
	}
	ScheduleCancellation(user, end)
	if err := s.users.Update(ctx, user); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "persisting cancellation")
	}

	return &CancelView{
		Status:            user.SubscriptionStatus,
		CancelAtPeriodEnd: true,
		AccessUntil:       user.SubscriptionEndDate,
	}, nil
}

// PortalURL opens a billing portal session for self-service payment
// management.
func (s *Service) PortalURL(ctx context.Context, userID uuid.UUID) (string, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return "", err
	}
	if user.StripeCustomerID == nil || *user.StripeCustomerID == "" {
		return "", apperrors.New(apperrors.CodeStateConflict, "no billing profile for this account")
	}

	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	session, err := s.gateway.CreatePortalSession(callCtx, *user.StripeCustomerID, s.frontendURL+"/subscription")
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeDependency, err, "creating portal session")
	}
	return session.URL, nil
}

// VerifySession activates premium from a completed checkout session. It is
// the synchronous fallback for the checkout webhook: whichever path runs
// first wins and the other becomes a no-op.
func (s *Service) VerifySession(ctx context.Context, userID uuid.UUID, sessionID string) (*StatusView, error) {
	if sessionID == "" {
		return nil, apperrors.New(apperrors.CodeValidation, "session id is required")
	}
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	session, err := s.gateway.GetCheckoutSession(callCtx, sessionID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDependency, err, "fetching checkout session")
	}
	if user.StripeCustomerID == nil || session.CustomerID != *user.StripeCustomerID {
		return nil, apperrors.New(apperrors.CodeForbidden, "checkout session belongs to another account")
	}
	if !session.Paid() {
		return nil, apperrors.New(apperrors.CodeStateConflict, "checkout session is not paid")
	}
	if session.SubscriptionID == "" {
		return nil, apperrors.New(apperrors.CodeStateConflict, "checkout session carries no subscription")
	}

	alreadyActive := user.SubscriptionTier == enums.SubscriptionTierPremium &&
		user.StripeSubscriptionID != nil &&
		*user.StripeSubscriptionID == session.SubscriptionID
	if !alreadyActive {
		start := s.now()
		if sub, subErr := s.gateway.GetSubscription(callCtx, session.SubscriptionID); subErr == nil && sub != nil && !sub.CurrentPeriodStart.IsZero() {
			start = sub.CurrentPeriodStart
		}
		ActivatePremium(user, session.SubscriptionID, start)
		if err := s.users.Update(ctx, user); err != nil {
			return nil, apperrors.Wrap(apperrors.CodeInternal, err, "persisting premium activation")
		}
		s.logger.Info(s.logger.WithUserID(ctx, user.ID.String()), "premium activated from checkout verification")
	}

	return s.Status(ctx, userID)
}

func (s *Service) loadUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "loading user")
	}
	if user == nil {
		return nil, apperrors.New(apperrors.CodeNotFound, "user not found")
	}
	return user, nil
}
