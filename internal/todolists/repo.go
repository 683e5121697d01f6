package todolists

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/taskhive/taskhive-backend/pkg/db/models"
)

// Repository handles todo list persistence.
type Repository interface {
	Create(ctx context.Context, list *models.TodoList) error
	Update(ctx context.Context, list *models.TodoList) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.TodoList, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.TodoList, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a todo list repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, list *models.TodoList) error {
	return r.db.WithContext(ctx).Create(list).Error
}

func (r *repository) Update(ctx context.Context, list *models.TodoList) error {
	return r.db.WithContext(ctx).Save(list).Error
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.TodoList{}, "id = ?", id).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.TodoList, error) {
	var list models.TodoList
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&list).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &list, nil
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.TodoList, error) {
	var lists []models.TodoList
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&lists).Error; err != nil {
		return nil, err
	}
	return lists, nil
}
