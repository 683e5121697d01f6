package todos

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/taskhive/taskhive-backend/internal/quota"
	"github.com/taskhive/taskhive-backend/internal/todolists"
	"github.com/taskhive/taskhive-backend/internal/users"
	"github.com/taskhive/taskhive-backend/pkg/config"
	"github.com/taskhive/taskhive-backend/pkg/db/models"
	apperrors "github.com/taskhive/taskhive-backend/pkg/errors"
	"github.com/taskhive/taskhive-backend/pkg/logger"
)

// ServiceParams collects the todo service dependencies.
type ServiceParams struct {
	Logger       *logger.Logger
	Todos        Repository
	Lists        todolists.Repository
	Users        users.Repository
	Subscription config.SubscriptionConfig
}

// Service implements todo CRUD. Creation is the quota enforcement point:
// the user's tier and live todo count are read at request time, so a tier
// change landed by a webhook a moment earlier is honored immediately.
type Service struct {
	logger    *logger.Logger
	todos     Repository
	lists     todolists.Repository
	users     users.Repository
	todoLimit int
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("todo service requires a logger")
	}
	if params.Todos == nil {
		return nil, fmt.Errorf("todo service requires a todo repository")
	}
	if params.Lists == nil {
		return nil, fmt.Errorf("todo service requires a list repository")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("todo service requires a user repository")
	}
	return &Service{
		logger:    params.Logger,
		todos:     params.Todos,
		lists:     params.Lists,
		users:     params.Users,
		todoLimit: params.Subscription.FreeTierTodoLimit,
	}, nil
}

// CreateInput carries validated todo creation fields.
type CreateInput struct {
	Description string
	DueDate     *time.Time
}

// UpdateInput carries the mutable todo fields; nil means unchanged.
type UpdateInput struct {
	Description *string
	Complete    *bool
	DueDate     *time.Time
	ClearDue    bool
}

// QuotaDetails is attached to quota rejections so clients can render the
// upgrade prompt without a second request.
type QuotaDetails struct {
	Reason       string `json:"reason"`
	CurrentCount int64  `json:"current_count"`
	Limit        int    `json:"limit"`
}

// Create adds a todo to the list after the quota check passes. The count is
// read live across all of the user's lists.
func (s *Service) Create(ctx context.Context, userID, listID uuid.UUID, input CreateInput) (*models.Todo, error) {
	description := strings.TrimSpace(input.Description)
	if description == "" {
		return nil, apperrors.New(apperrors.CodeValidation, "description is required")
	}

	if _, err := s.ownedList(ctx, userID, listID); err != nil {
		return nil, err
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "loading user")
	}
	if user == nil {
		return nil, apperrors.New(apperrors.CodeNotFound, "user not found")
	}

	count, err := s.todos.CountByUser(ctx, userID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "counting todos")
	}
	if !quota.CanCreate(user.SubscriptionTier, count, s.todoLimit) {
		return nil, apperrors.New(apperrors.CodeQuotaExceeded, "todo limit reached").WithDetails(QuotaDetails{
			Reason:       "todo_limit_reached",
			CurrentCount: count,
			Limit:        s.todoLimit,
		})
	}

	todo := &models.Todo{
		TodoListID:  listID,
		Description: description,
		DueDate:     input.DueDate,
	}
	if err := s.todos.Create(ctx, todo); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "creating todo")
	}
	return todo, nil
}

func (s *Service) List(ctx context.Context, userID, listID uuid.UUID) ([]models.Todo, error) {
	if _, err := s.ownedList(ctx, userID, listID); err != nil {
		return nil, err
	}
	items, err := s.todos.ListByList(ctx, listID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "listing todos")
	}
	return items, nil
}

func (s *Service) Get(ctx context.Context, userID, todoID uuid.UUID) (*models.Todo, error) {
	return s.ownedTodo(ctx, userID, todoID)
}

// Update mutates a todo. Completing or editing an existing todo is never
// quota-gated; only creation counts against the limit.
func (s *Service) Update(ctx context.Context, userID, todoID uuid.UUID, input UpdateInput) (*models.Todo, error) {
	todo, err := s.ownedTodo(ctx, userID, todoID)
	if err != nil {
		return nil, err
	}

	if input.Description != nil {
		description := strings.TrimSpace(*input.Description)
		if description == "" {
			return nil, apperrors.New(apperrors.CodeValidation, "description is required")
		}
		todo.Description = description
	}
	if input.Complete != nil {
		todo.Complete = *input.Complete
	}
	if input.ClearDue {
		todo.DueDate = nil
	} else if input.DueDate != nil {
		todo.DueDate = input.DueDate
	}

	if err := s.todos.Update(ctx, todo); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "updating todo")
	}
	return todo, nil
}

// Delete removes a todo, freeing a quota slot for free-tier users.
func (s *Service) Delete(ctx context.Context, userID, todoID uuid.UUID) error {
	if _, err := s.ownedTodo(ctx, userID, todoID); err != nil {
		return err
	}
	if err := s.todos.Delete(ctx, todoID); err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, err, "deleting todo")
	}
	return nil
}

func (s *Service) ownedList(ctx context.Context, userID, listID uuid.UUID) (*models.TodoList, error) {
	list, err := s.lists.FindByID(ctx, listID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "loading list")
	}
	if list == nil || list.UserID != userID {
		return nil, apperrors.New(apperrors.CodeNotFound, "list not found")
	}
	return list, nil
}

func (s *Service) ownedTodo(ctx context.Context, userID, todoID uuid.UUID) (*models.Todo, error) {
	todo, err := s.todos.FindByID(ctx, todoID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "loading todo")
	}
	if todo == nil {
		return nil, apperrors.New(apperrors.CodeNotFound, "todo not found")
	}
	if _, err := s.ownedList(ctx, userID, todo.TodoListID); err != nil {
		return nil, apperrors.New(apperrors.CodeNotFound, "todo not found")
	}
	return todo, nil
}
