package todolists

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/taskhive/taskhive-backend/pkg/db/models"
	apperrors "github.com/taskhive/taskhive-backend/pkg/errors"
	"github.com/taskhive/taskhive-backend/pkg/logger"
)

// ServiceParams collects the todo list service dependencies.
type ServiceParams struct {
	Logger *logger.Logger
	Lists  Repository
}

// Service implements todo list CRUD scoped to the owning user. Lists owned
// by other users are reported as not found rather than forbidden.
type Service struct {
	logger *logger.Logger
	lists  Repository
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("todo list service requires a logger")
	}
	if params.Lists == nil {
		return nil, fmt.Errorf("todo list service requires a repository")
	}
	return &Service{logger: params.Logger, lists: params.Lists}, nil
}

func (s *Service) Create(ctx context.Context, userID uuid.UUID, name string) (*models.TodoList, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.New(apperrors.CodeValidation, "list name is required")
	}
	list := &models.TodoList{UserID: userID, Name: name}
	if err := s.lists.Create(ctx, list); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "creating list")
	}
	return list, nil
}

func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]models.TodoList, error) {
	lists, err := s.lists.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "listing lists")
	}
	return lists, nil
}

func (s *Service) Get(ctx context.Context, userID, listID uuid.UUID) (*models.TodoList, error) {
	return s.owned(ctx, userID, listID)
}

func (s *Service) Rename(ctx context.Context, userID, listID uuid.UUID, name string) (*models.TodoList, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.New(apperrors.CodeValidation, "list name is required")
	}
	list, err := s.owned(ctx, userID, listID)
	if err != nil {
		return nil, err
	}
	list.Name = name
	if err := s.lists.Update(ctx, list); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "updating list")
	}
	return list, nil
}

// Delete removes the list. Contained todos go with it via the database's
// cascade rule.
func (s *Service) Delete(ctx context.Context, userID, listID uuid.UUID) error {
	if _, err := s.owned(ctx, userID, listID); err != nil {
		return err
	}
	if err := s.lists.Delete(ctx, listID); err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, err, "deleting list")
	}
	return nil
}

func (s *Service) owned(ctx context.Context, userID, listID uuid.UUID) (*models.TodoList, error) {
	list, err := s.lists.FindByID(ctx, listID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "loading list")
	}
	if list == nil || list.UserID != userID {
		return nil, apperrors.New(apperrors.CodeNotFound, "list not found")
	}
	return list, nil
}
