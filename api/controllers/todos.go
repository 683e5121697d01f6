package controllers

import (
	"net/http"
	"time"

	"github.com/taskhive/taskhive-backend/api/responses"
	"github.com/taskhive/taskhive-backend/api/validators"
	"github.com/taskhive/taskhive-backend/internal/todos"
	"github.com/taskhive/taskhive-backend/pkg/logger"
)

type todoCreateRequest struct {
	Description string     `json:"description" validate:"required,min=1,max=1024"`
	DueDate     *time.Time `json:"due_date"`
}

type todoUpdateRequest struct {
	Description *string    `json:"description" validate:"omitempty,min=1,max=1024"`
	Complete    *bool      `json:"complete"`
	DueDate     *time.Time `json:"due_date"`
	ClearDue    bool       `json:"clear_due_date"`
}

func TodoCreate(svc *todos.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		userID, err := requireUserID(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		listID, err := pathUUID(r, "listID")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var req todoCreateRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		todo, err := svc.Create(ctx, userID, listID, todos.CreateInput{
			Description: req.Description,
			DueDate:     req.DueDate,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, todo)
	}
}

func TodoIndex(svc *todos.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		userID, err := requireUserID(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		listID, err := pathUUID(r, "listID")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		items, err := svc.List(ctx, userID, listID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, items)
	}
}

func TodoGet(svc *todos.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		userID, err := requireUserID(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		todoID, err := pathUUID(r, "todoID")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		todo, err := svc.Get(ctx, userID, todoID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, todo)
	}
}

func TodoUpdate(svc *todos.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		userID, err := requireUserID(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		todoID, err := pathUUID(r, "todoID")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var req todoUpdateRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		todo, err := svc.Update(ctx, userID, todoID, todos.UpdateInput{
			Description: req.Description,
			Complete:    req.Complete,
			DueDate:     req.DueDate,
			ClearDue:    req.ClearDue,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, todo)
	}
}

func TodoDelete(svc *todos.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		userID, err := requireUserID(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		todoID, err := pathUUID(r, "todoID")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if err := svc.Delete(ctx, userID, todoID); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}
