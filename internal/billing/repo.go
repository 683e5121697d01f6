package billing

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/taskhive/taskhive-backend/pkg/db/models"
)

// Repository persists the billing audit trail: payment ledger rows and
// subscription events. Both tables are append-only.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreatePaymentTransaction(ctx context.Context, txn *models.PaymentTransaction) error
	CreateSubscriptionEvent(ctx context.Context, event *models.SubscriptionEvent) error
	ListPaymentTransactionsByUser(ctx context.Context, userID uuid.UUID) ([]models.PaymentTransaction, error)
	ListSubscriptionEventsByUser(ctx context.Context, userID uuid.UUID) ([]models.SubscriptionEvent, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a billing repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreatePaymentTransaction(ctx context.Context, txn *models.PaymentTransaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *repository) CreateSubscriptionEvent(ctx context.Context, event *models.SubscriptionEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *repository) ListPaymentTransactionsByUser(ctx context.Context, userID uuid.UUID) ([]models.PaymentTransaction, error) {
	var rows []models.PaymentTransaction
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListSubscriptionEventsByUser(ctx context.Context, userID uuid.UUID) ([]models.SubscriptionEvent, error) {
	var rows []models.SubscriptionEvent
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
