package webhooks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/taskhive/taskhive-backend/internal/billing"
	"github.com/taskhive/taskhive-backend/internal/users"
	"github.com/taskhive/taskhive-backend/pkg/db/models"
	"github.com/taskhive/taskhive-backend/pkg/enums"
	"github.com/taskhive/taskhive-backend/pkg/logger"
)

var testClock = func() time.Time {
	return time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
}

type stubUserRepo struct {
	byCustomer map[string]*models.User
	bySub      map[string]*models.User
	updated    []*models.User
	updateErr  error
}

func newStubUserRepo(list ...*models.User) *stubUserRepo {
	repo := &stubUserRepo{
		byCustomer: map[string]*models.User{},
		bySub:      map[string]*models.User{},
	}
	for _, u := range list {
		if u.StripeCustomerID != nil {
			repo.byCustomer[*u.StripeCustomerID] = u
		}
		if u.StripeSubscriptionID != nil {
			repo.bySub[*u.StripeSubscriptionID] = u
		}
	}
	return repo
}

func (r *stubUserRepo) WithTx(*gorm.DB) users.Repository { return r }

func (r *stubUserRepo) Create(_ context.Context, _ *models.User) error { return nil }

func (r *stubUserRepo) Update(_ context.Context, user *models.User) error {
	if r.updateErr != nil {
		return r.updateErr
	}
	r.updated = append(r.updated, user)
	return nil
}

func (r *stubUserRepo) FindByID(_ context.Context, _ uuid.UUID) (*models.User, error) {
	return nil, nil
}

func (r *stubUserRepo) FindByEmail(_ context.Context, _ string) (*models.User, error) {
	return nil, nil
}

func (r *stubUserRepo) FindByUsername(_ context.Context, _ string) (*models.User, error) {
	return nil, nil
}

func (r *stubUserRepo) FindByStripeCustomerID(_ context.Context, customerID string) (*models.User, error) {
	return r.byCustomer[customerID], nil
}

func (r *stubUserRepo) FindByStripeSubscriptionID(_ context.Context, subscriptionID string) (*models.User, error) {
	return r.bySub[subscriptionID], nil
}

type stubBillingRepo struct {
	events   []*models.SubscriptionEvent
	txns     []*models.PaymentTransaction
	eventErr error
	txnErr   error
}

func (r *stubBillingRepo) WithTx(*gorm.DB) billing.Repository { return r }

func (r *stubBillingRepo) CreateSubscriptionEvent(_ context.Context, event *models.SubscriptionEvent) error {
	if r.eventErr != nil {
		return r.eventErr
	}
	r.events = append(r.events, event)
	return nil
}

func (r *stubBillingRepo) CreatePaymentTransaction(_ context.Context, txn *models.PaymentTransaction) error {
	if r.txnErr != nil {
		return r.txnErr
	}
	r.txns = append(r.txns, txn)
	return nil
}

func (r *stubBillingRepo) ListPaymentTransactionsByUser(_ context.Context, _ uuid.UUID) ([]models.PaymentTransaction, error) {
	return nil, nil
}

func (r *stubBillingRepo) ListSubscriptionEventsByUser(_ context.Context, _ uuid.UUID) ([]models.SubscriptionEvent, error) {
	return nil, nil
}

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type memStore struct {
	keys   map[string]bool
	setErr error
}

func newMemStore() *memStore {
	return &memStore{keys: map[string]bool{}}
}

func (m *memStore) SetNX(_ context.Context, key string, _ any, _ time.Duration) (bool, error) {
	if m.setErr != nil {
		return false, m.setErr
	}
	if m.keys[key] {
		return false, nil
	}
	m.keys[key] = true
	return true, nil
}

func (m *memStore) IdempotencyKey(scope, id string) string {
	return scope + ":" + id
}

func (m *memStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.keys, k)
	}
	return nil
}

func newTestService(t *testing.T, userRepo *stubUserRepo, billingRepo *stubBillingRepo, store *memStore) *Service {
	t.Helper()
	var guard *IdempotencyGuard
	if store != nil {
		guard = NewIdempotencyGuard(store, time.Hour)
	}
	svc, err := NewService(ServiceParams{
		Logger:  logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		Users:   userRepo,
		Billing: billingRepo,
		Tx:      stubTxRunner{},
		Guard:   guard,
		Clock:   testClock,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func makeUser(customerID string) *models.User {
	cust := customerID
	return &models.User{
		ID:                 uuid.New(),
		Email:              "u@example.com",
		Username:           "u",
		SubscriptionTier:   enums.SubscriptionTierFree,
		SubscriptionStatus: enums.SubscriptionStatusFree,
		StripeCustomerID:   &cust,
	}
}

func makeEvent(id, eventType, payload string) *stripe.Event {
	return &stripe.Event{
		ID:   id,
		Type: stripe.EventType(eventType),
		Data: &stripe.EventData{Raw: []byte(payload)},
	}
}

func TestHandleEventUnknownTypeIgnored(t *testing.T) {
	svc := newTestService(t, newStubUserRepo(), &stubBillingRepo{}, nil)

	result, err := svc.HandleEvent(context.Background(), makeEvent("evt_1", "charge.refunded", `{}`))
	if err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if result.Outcome != OutcomeIgnored {
		t.Fatalf("outcome = %s, want %s", result.Outcome, OutcomeIgnored)
	}
}

func TestHandleEventCheckoutCompletedActivatesPremium(t *testing.T) {
	user := makeUser("cus_1")
	userRepo := newStubUserRepo(user)
	billingRepo := &stubBillingRepo{}
	svc := newTestService(t, userRepo, billingRepo, nil)

	event := makeEvent("evt_1", "checkout.session.completed",
		`{"id":"cs_1","customer":"cus_1","subscription":"sub_1"}`)
	result, err := svc.HandleEvent(context.Background(), event)
	if err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if result.Outcome != OutcomeProcessed {
		t.Fatalf("outcome = %s, want %s", result.Outcome, OutcomeProcessed)
	}
	if user.SubscriptionTier != enums.SubscriptionTierPremium {
		t.Errorf("tier = %s, want premium", user.SubscriptionTier)
	}
	if user.SubscriptionStatus != enums.SubscriptionStatusActive {
		t.Errorf("status = %s, want active", user.SubscriptionStatus)
	}
	if user.StripeSubscriptionID == nil || *user.StripeSubscriptionID != "sub_1" {
		t.Errorf("subscription id not cached")
	}
	if user.SubscriptionStartDate == nil || !user.SubscriptionStartDate.Equal(testClock()) {
		t.Errorf("start date = %v, want %v", user.SubscriptionStartDate, testClock())
	}
	if len(billingRepo.events) != 1 || billingRepo.events[0].StripeEventID != "evt_1" {
		t.Fatalf("audit event not recorded: %+v", billingRepo.events)
	}
	if len(userRepo.updated) != 1 {
		t.Fatalf("user not persisted")
	}
}

func TestHandleEventCheckoutWithoutSubscriptionIgnored(t *testing.T) {
	user := makeUser("cus_1")
	svc := newTestService(t, newStubUserRepo(user), &stubBillingRepo{}, nil)

	event := makeEvent("evt_1", "checkout.session.completed",
		`{"id":"cs_1","customer":"cus_1","subscription":""}`)
	result, err := svc.HandleEvent(context.Background(), event)
	if err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if result.Outcome != OutcomeIgnored {
		t.Fatalf("outcome = %s, want %s", result.Outcome, OutcomeIgnored)
	}
	if user.SubscriptionTier != enums.SubscriptionTierFree {
		t.Errorf("tier changed on one-off payment session")
	}
}

func TestHandleEventSubscriptionCreatedUsesPeriodStart(t *testing.T) {
	user := makeUser("cus_1")
	svc := newTestService(t, newStubUserRepo(user), &stubBillingRepo{}, nil)

	start := time.Date(2026, time.February, 15, 0, 0, 0, 0, time.UTC)
	event := makeEvent("evt_1", "customer.subscription.created", fmt.Sprintf(
		`{"id":"sub_1","customer":"cus_1","status":"active","items":{"data":[{"current_period_start":%d,"current_period_end":%d}]}}`,
		start.Unix(), start.AddDate(0, 1, 0).Unix()))
	result, err := svc.HandleEvent(context.Background(), event)
	if err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if result.Outcome != OutcomeProcessed {
		t.Fatalf("outcome = %s", result.Outcome)
	}
	if user.SubscriptionStartDate == nil || !user.SubscriptionStartDate.Equal(start) {
		t.Errorf("start date = %v, want %v", user.SubscriptionStartDate, start)
	}
}

func TestHandleEventSubscriptionUpdatedCancelAtPeriodEnd(t *testing.T) {
	user := makeUser("cus_1")
	subID := "sub_1"
	user.StripeSubscriptionID = &subID
	user.SubscriptionTier = enums.SubscriptionTierPremium
	user.SubscriptionStatus = enums.SubscriptionStatusActive
	svc := newTestService(t, newStubUserRepo(user), &stubBillingRepo{}, nil)

	periodEnd := time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)
	event := makeEvent("evt_1", "customer.subscription.updated", fmt.Sprintf(
		`{"id":"sub_1","customer":"cus_1","status":"active","cancel_at_period_end":true,"items":{"data":[{"current_period_end":%d}]}}`,
		periodEnd.Unix()))
	if _, err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if user.SubscriptionStatus != enums.SubscriptionStatusCanceled {
		t.Errorf("status = %s, want canceled", user.SubscriptionStatus)
	}
	// Access is kept until the paid-for period runs out.
	if user.SubscriptionTier != enums.SubscriptionTierPremium {
		t.Errorf("tier = %s, want premium until period end", user.SubscriptionTier)
	}
	if user.SubscriptionEndDate == nil || !user.SubscriptionEndDate.Equal(periodEnd) {
		t.Errorf("end date = %v, want %v", user.SubscriptionEndDate, periodEnd)
	}
}

func TestHandleEventSubscriptionUpdatedStatusMapping(t *testing.T) {
	cases := []struct {
		stripeStatus string
		wantStatus   enums.SubscriptionStatus
		wantTier     enums.SubscriptionTier
	}{
		{"active", enums.SubscriptionStatusActive, enums.SubscriptionTierPremium},
		// Delinquency never touches the tier; access is only revoked by the
		// deletion event or a terminal "canceled" status.
		{"past_due", enums.SubscriptionStatusPastDue, enums.SubscriptionTierPremium},
		{"unpaid", enums.SubscriptionStatusPastDue, enums.SubscriptionTierPremium},
		{"canceled", enums.SubscriptionStatusCanceled, enums.SubscriptionTierFree},
		// Statuses outside the mapping leave local state as it was.
		{"incomplete_expired", enums.SubscriptionStatusActive, enums.SubscriptionTierPremium},
	}
	for _, tc := range cases {
		t.Run(tc.stripeStatus, func(t *testing.T) {
			user := makeUser("cus_1")
			subID := "sub_1"
			user.StripeSubscriptionID = &subID
			user.SubscriptionTier = enums.SubscriptionTierPremium
			user.SubscriptionStatus = enums.SubscriptionStatusActive
			svc := newTestService(t, newStubUserRepo(user), &stubBillingRepo{}, nil)

			event := makeEvent("evt_1", "customer.subscription.updated", fmt.Sprintf(
				`{"id":"sub_1","customer":"cus_1","status":%q}`, tc.stripeStatus))
			if _, err := svc.HandleEvent(context.Background(), event); err != nil {
				t.Fatalf("HandleEvent: %v", err)
			}
			if user.SubscriptionStatus != tc.wantStatus {
				t.Errorf("status = %s, want %s", user.SubscriptionStatus, tc.wantStatus)
			}
			if user.SubscriptionTier != tc.wantTier {
				t.Errorf("tier = %s, want %s", user.SubscriptionTier, tc.wantTier)
			}
		})
	}
}

func TestHandleEventSubscriptionDeletedDowngrades(t *testing.T) {
	user := makeUser("cus_1")
	subID := "sub_1"
	user.StripeSubscriptionID = &subID
	user.SubscriptionTier = enums.SubscriptionTierPremium
	user.SubscriptionStatus = enums.SubscriptionStatusActive
	svc := newTestService(t, newStubUserRepo(user), &stubBillingRepo{}, nil)

	event := makeEvent("evt_1", "customer.subscription.deleted",
		`{"id":"sub_1","customer":"cus_1","status":"canceled"}`)
	if _, err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if user.SubscriptionTier != enums.SubscriptionTierFree {
		t.Errorf("tier = %s, want free", user.SubscriptionTier)
	}
	if user.SubscriptionStatus != enums.SubscriptionStatusCanceled {
		t.Errorf("status = %s, want canceled", user.SubscriptionStatus)
	}
	if user.StripeSubscriptionID != nil {
		t.Errorf("subscription ref not cleared")
	}
	if user.SubscriptionEndDate == nil || !user.SubscriptionEndDate.Equal(testClock()) {
		t.Errorf("end date = %v, want %v", user.SubscriptionEndDate, testClock())
	}
}

func TestHandleEventInvoicePaymentSucceededRestoresActive(t *testing.T) {
	user := makeUser("cus_1")
	user.SubscriptionTier = enums.SubscriptionTierPremium
	user.SubscriptionStatus = enums.SubscriptionStatusPastDue
	billingRepo := &stubBillingRepo{}
	svc := newTestService(t, newStubUserRepo(user), billingRepo, nil)

	event := makeEvent("evt_1", "invoice.payment_succeeded",
		`{"id":"in_1","customer":"cus_1","payment_intent":"pi_1","subscription":"sub_1","amount_paid":999,"currency":"usd"}`)
	if _, err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if len(billingRepo.txns) != 1 {
		t.Fatalf("ledger rows = %d, want 1", len(billingRepo.txns))
	}
	txn := billingRepo.txns[0]
	if txn.StripePaymentIntentID != "pi_1" || txn.AmountCents != 999 || txn.Status != enums.PaymentStatusSucceeded {
		t.Errorf("unexpected ledger row: %+v", txn)
	}
	if user.SubscriptionStatus != enums.SubscriptionStatusActive {
		t.Errorf("status = %s, want active after successful charge", user.SubscriptionStatus)
	}
}

func TestHandleEventInvoicePaymentFailedMarksPastDue(t *testing.T) {
	user := makeUser("cus_1")
	user.SubscriptionTier = enums.SubscriptionTierPremium
	user.SubscriptionStatus = enums.SubscriptionStatusActive
	billingRepo := &stubBillingRepo{}
	svc := newTestService(t, newStubUserRepo(user), billingRepo, nil)

	event := makeEvent("evt_1", "invoice.payment_failed",
		`{"id":"in_1","customer":"cus_1","amount_due":999,"currency":"eur"}`)
	if _, err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if len(billingRepo.txns) != 1 {
		t.Fatalf("ledger rows = %d, want 1", len(billingRepo.txns))
	}
	txn := billingRepo.txns[0]
	if txn.Status != enums.PaymentStatusFailed || txn.AmountCents != 999 || txn.Currency != "eur" {
		t.Errorf("unexpected ledger row: %+v", txn)
	}
	// Failures without a payment intent must not reuse the bare invoice id:
	// the successful retry will claim it.
	if txn.StripePaymentIntentID != "failed_evt_1" {
		t.Errorf("ledger ref = %s, want failed_evt_1", txn.StripePaymentIntentID)
	}
	if user.SubscriptionStatus != enums.SubscriptionStatusPastDue {
		t.Errorf("status = %s, want past_due", user.SubscriptionStatus)
	}
}

func TestHandleEventUnknownCustomerIgnored(t *testing.T) {
	billingRepo := &stubBillingRepo{}
	svc := newTestService(t, newStubUserRepo(), billingRepo, nil)

	event := makeEvent("evt_1", "customer.subscription.deleted",
		`{"id":"sub_x","customer":"cus_x","status":"canceled"}`)
	result, err := svc.HandleEvent(context.Background(), event)
	if err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if result.Outcome != OutcomeIgnored {
		t.Fatalf("outcome = %s, want %s", result.Outcome, OutcomeIgnored)
	}
	if len(billingRepo.events) != 0 {
		t.Errorf("audit rows written for unknown customer")
	}
}

func TestHandleEventGuardDeduplicates(t *testing.T) {
	user := makeUser("cus_1")
	userRepo := newStubUserRepo(user)
	store := newMemStore()
	svc := newTestService(t, userRepo, &stubBillingRepo{}, store)

	event := makeEvent("evt_1", "checkout.session.completed",
		`{"id":"cs_1","customer":"cus_1","subscription":"sub_1"}`)
	if _, err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	result, err := svc.HandleEvent(context.Background(), event)
	if err != nil {
		t.Fatalf("second delivery: %v", err)
	}
	if result.Outcome != OutcomeDuplicate {
		t.Fatalf("outcome = %s, want %s", result.Outcome, OutcomeDuplicate)
	}
	if len(userRepo.updated) != 1 {
		t.Errorf("user persisted %d times, want 1", len(userRepo.updated))
	}
}

func TestHandleEventGuardFailureFallsThrough(t *testing.T) {
	user := makeUser("cus_1")
	store := newMemStore()
	store.setErr = errors.New("connection refused")
	svc := newTestService(t, newStubUserRepo(user), &stubBillingRepo{}, store)

	event := makeEvent("evt_1", "checkout.session.completed",
		`{"id":"cs_1","customer":"cus_1","subscription":"sub_1"}`)
	result, err := svc.HandleEvent(context.Background(), event)
	if err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if result.Outcome != OutcomeProcessed {
		t.Fatalf("outcome = %s, want %s when guard is down", result.Outcome, OutcomeProcessed)
	}
}

func TestHandleEventDatabaseDuplicateReportedAsDuplicate(t *testing.T) {
	user := makeUser("cus_1")
	userRepo := newStubUserRepo(user)
	billingRepo := &stubBillingRepo{
		eventErr: errors.New(`duplicate key value violates unique constraint "idx_subscription_events_stripe_event_id"`),
	}
	svc := newTestService(t, userRepo, billingRepo, nil)

	event := makeEvent("evt_1", "checkout.session.completed",
		`{"id":"cs_1","customer":"cus_1","subscription":"sub_1"}`)
	result, err := svc.HandleEvent(context.Background(), event)
	if err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if result.Outcome != OutcomeDuplicate {
		t.Fatalf("outcome = %s, want %s", result.Outcome, OutcomeDuplicate)
	}
	if len(userRepo.updated) != 0 {
		t.Errorf("user persisted on duplicate event")
	}
}

func TestHandleEventLedgerCollisionIsNotADuplicate(t *testing.T) {
	user := makeUser("cus_1")
	user.SubscriptionTier = enums.SubscriptionTierPremium
	user.SubscriptionStatus = enums.SubscriptionStatusPastDue
	userRepo := newStubUserRepo(user)
	billingRepo := &stubBillingRepo{
		txnErr: errors.New(`duplicate key value violates unique constraint "idx_payment_transactions_stripe_payment_intent_id"`),
	}
	svc := newTestService(t, userRepo, billingRepo, nil)

	// A unique violation on anything other than the event-id index is a real
	// failure: swallowing it as a duplicate would drop a distinct event.
	event := makeEvent("evt_new", "invoice.payment_succeeded",
		`{"id":"in_1","customer":"cus_1","subscription":"sub_1","amount_paid":999,"currency":"usd"}`)
	if _, err := svc.HandleEvent(context.Background(), event); err == nil {
		t.Fatal("expected error so the delivery is retried")
	}
	if user.SubscriptionStatus != enums.SubscriptionStatusPastDue {
		t.Errorf("status = %s, want past_due preserved for the retry", user.SubscriptionStatus)
	}
	if len(userRepo.updated) != 0 {
		t.Errorf("user persisted despite failed transaction")
	}
}

func TestHandleEventSubscriptionUpdatedPrefersSubscriptionLookup(t *testing.T) {
	// The customer id on a subscription event can point at a different local
	// user than the cached subscription ref; the ref wins for lifecycle events.
	bystander := makeUser("cus_1")
	owner := makeUser("cus_other")
	subID := "sub_1"
	owner.StripeSubscriptionID = &subID
	owner.SubscriptionTier = enums.SubscriptionTierPremium
	owner.SubscriptionStatus = enums.SubscriptionStatusActive
	svc := newTestService(t, newStubUserRepo(bystander, owner), &stubBillingRepo{}, nil)

	event := makeEvent("evt_1", "customer.subscription.updated",
		`{"id":"sub_1","customer":"cus_1","status":"past_due"}`)
	if _, err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if owner.SubscriptionStatus != enums.SubscriptionStatusPastDue {
		t.Errorf("owner status = %s, want past_due", owner.SubscriptionStatus)
	}
	if bystander.SubscriptionStatus != enums.SubscriptionStatusFree {
		t.Errorf("bystander status = %s, want untouched", bystander.SubscriptionStatus)
	}
}

func TestHandleEventFailureReleasesGuard(t *testing.T) {
	user := makeUser("cus_1")
	userRepo := newStubUserRepo(user)
	userRepo.updateErr = errors.New("connection reset")
	store := newMemStore()
	svc := newTestService(t, userRepo, &stubBillingRepo{}, store)

	event := makeEvent("evt_1", "checkout.session.completed",
		`{"id":"cs_1","customer":"cus_1","subscription":"sub_1"}`)
	if _, err := svc.HandleEvent(context.Background(), event); err == nil {
		t.Fatal("expected error from failed persist")
	}
	if len(store.keys) != 0 {
		t.Errorf("guard claim not released after failure: %v", store.keys)
	}

	// A redelivery after the transient failure clears must succeed.
	userRepo.updateErr = nil
	result, err := svc.HandleEvent(context.Background(), event)
	if err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if result.Outcome != OutcomeProcessed {
		t.Fatalf("redelivery outcome = %s, want %s", result.Outcome, OutcomeProcessed)
	}
}
