package models

import (
	"time"

	"github.com/google/uuid"
)

// Todo is a single item inside a list.
type Todo struct {
	ID          uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	TodoListID  uuid.UUID  `gorm:"column:todo_list_id;type:uuid;not null;index"`
	Description string     `gorm:"type:text;not null"`
	Complete    bool       `gorm:"column:complete;not null;default:false"`
	DueDate     *time.Time `gorm:"column:due_date"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
