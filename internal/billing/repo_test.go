package billing

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/taskhive/taskhive-backend/pkg/db"
	"github.com/taskhive/taskhive-backend/pkg/db/models"
	"github.com/taskhive/taskhive-backend/pkg/enums"
)

func setupBillingTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	paymentTransactions := `
CREATE TABLE IF NOT EXISTS payment_transactions (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  stripe_payment_intent_id TEXT NOT NULL UNIQUE,
  amount_cents INTEGER NOT NULL,
  currency TEXT NOT NULL DEFAULT 'usd',
  status TEXT NOT NULL,
  payment_method TEXT,
  created_at DATETIME
);`
	subscriptionEvents := `
CREATE TABLE IF NOT EXISTS subscription_events (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  event_type TEXT NOT NULL,
  stripe_event_id TEXT NOT NULL,
  stripe_subscription_id TEXT,
  event_data TEXT,
  created_at DATETIME
);`
	eventIndex := `
CREATE UNIQUE INDEX IF NOT EXISTS idx_subscription_events_stripe_event_id
  ON subscription_events (stripe_event_id);`
	require.NoError(t, gdb.Exec(paymentTransactions).Error)
	require.NoError(t, gdb.Exec(subscriptionEvents).Error)
	require.NoError(t, gdb.Exec(eventIndex).Error)
	return gdb
}

func newSubscriptionEvent(userID uuid.UUID, stripeEventID string) *models.SubscriptionEvent {
	subID := "sub_" + uuid.NewString()
	return &models.SubscriptionEvent{
		ID:                   uuid.New(),
		UserID:               userID,
		EventType:            "customer.subscription.updated",
		StripeEventID:        stripeEventID,
		StripeSubscriptionID: &subID,
		EventData:            json.RawMessage(`{"status":"active"}`),
		CreatedAt:            time.Now().UTC(),
	}
}

func TestCreateSubscriptionEventRejectsDuplicateStripeEventID(t *testing.T) {
	gdb := setupBillingTestDB(t)
	repo := NewRepository(gdb)
	ctx := context.Background()

	userID := uuid.New()
	eventID := "evt_" + uuid.NewString()

	require.NoError(t, repo.CreateSubscriptionEvent(ctx, newSubscriptionEvent(userID, eventID)))

	err := repo.CreateSubscriptionEvent(ctx, newSubscriptionEvent(userID, eventID))
	require.Error(t, err)
	assert.True(t, db.IsUniqueViolation(err, "idx_subscription_events_stripe_event_id", "subscription_events.stripe_event_id"))
	// A violation must only match its own constraint, never a sibling index.
	assert.False(t, db.IsUniqueViolation(err, "idx_payment_transactions_stripe_payment_intent_id", "payment_transactions.stripe_payment_intent_id"))
}

func TestPaymentLedgerCollisionDoesNotMatchEventIndex(t *testing.T) {
	gdb := setupBillingTestDB(t)
	repo := NewRepository(gdb)
	ctx := context.Background()

	userID := uuid.New()
	ref := "pi_" + uuid.NewString()
	first := &models.PaymentTransaction{
		ID:                    uuid.New(),
		UserID:                userID,
		StripePaymentIntentID: ref,
		AmountCents:           999,
		Currency:              "usd",
		Status:                enums.PaymentStatusSucceeded,
	}
	require.NoError(t, repo.CreatePaymentTransaction(ctx, first))

	dup := &models.PaymentTransaction{
		ID:                    uuid.New(),
		UserID:                userID,
		StripePaymentIntentID: ref,
		AmountCents:           999,
		Currency:              "usd",
		Status:                enums.PaymentStatusFailed,
	}
	err := repo.CreatePaymentTransaction(ctx, dup)
	require.Error(t, err)
	assert.True(t, db.IsUniqueViolation(err, "payment_transactions.stripe_payment_intent_id"))
	assert.False(t, db.IsUniqueViolation(err, "idx_subscription_events_stripe_event_id", "subscription_events.stripe_event_id"))
}

func TestCreateSubscriptionEventAllowsDistinctEventIDs(t *testing.T) {
	gdb := setupBillingTestDB(t)
	repo := NewRepository(gdb)
	ctx := context.Background()

	userID := uuid.New()
	require.NoError(t, repo.CreateSubscriptionEvent(ctx, newSubscriptionEvent(userID, "evt_"+uuid.NewString())))
	require.NoError(t, repo.CreateSubscriptionEvent(ctx, newSubscriptionEvent(userID, "evt_"+uuid.NewString())))

	rows, err := repo.ListSubscriptionEventsByUser(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestListPaymentTransactionsByUserNewestFirst(t *testing.T) {
	gdb := setupBillingTestDB(t)
	repo := NewRepository(gdb)
	ctx := context.Background()

	userID := uuid.New()
	otherID := uuid.New()
	base := time.Now().UTC().Add(-time.Hour)

	createTxn := func(owner uuid.UUID, ref string, at time.Time) {
		txn := &models.PaymentTransaction{
			ID:                    uuid.New(),
			UserID:                owner,
			StripePaymentIntentID: ref,
			AmountCents:           999,
			Currency:              "usd",
			Status:                enums.PaymentStatusSucceeded,
			CreatedAt:             at,
		}
		require.NoError(t, repo.CreatePaymentTransaction(ctx, txn))
	}

	createTxn(userID, "pi_"+uuid.NewString(), base)
	newest := "pi_" + uuid.NewString()
	createTxn(userID, newest, base.Add(10*time.Minute))
	createTxn(otherID, "pi_"+uuid.NewString(), base.Add(20*time.Minute))

	rows, err := repo.ListPaymentTransactionsByUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, newest, rows[0].StripePaymentIntentID)
	for _, row := range rows {
		assert.Equal(t, userID, row.UserID)
	}
}

func TestBillingWithTxSharesTransaction(t *testing.T) {
	gdb := setupBillingTestDB(t)
	repo := NewRepository(gdb)
	ctx := context.Background()

	userID := uuid.New()
	err := gdb.Transaction(func(tx *gorm.DB) error {
		return repo.WithTx(tx).CreateSubscriptionEvent(ctx, newSubscriptionEvent(userID, "evt_"+uuid.NewString()))
	})
	require.NoError(t, err)

	rows, err := repo.ListSubscriptionEventsByUser(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
