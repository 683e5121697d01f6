package todos

import (
	"context"
	"io"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/taskhive/taskhive-backend/internal/users"
	"github.com/taskhive/taskhive-backend/pkg/config"
	"github.com/taskhive/taskhive-backend/pkg/db/models"
	"github.com/taskhive/taskhive-backend/pkg/enums"
	apperrors "github.com/taskhive/taskhive-backend/pkg/errors"
	"github.com/taskhive/taskhive-backend/pkg/logger"
)

type stubTodoRepo struct {
	byID    map[uuid.UUID]*models.Todo
	count   int64
	created []*models.Todo
}

func newStubTodoRepo() *stubTodoRepo {
	return &stubTodoRepo{byID: map[uuid.UUID]*models.Todo{}}
}

func (r *stubTodoRepo) Create(_ context.Context, todo *models.Todo) error {
	todo.ID = uuid.New()
	r.byID[todo.ID] = todo
	r.created = append(r.created, todo)
	r.count++
	return nil
}

func (r *stubTodoRepo) Update(_ context.Context, todo *models.Todo) error {
	r.byID[todo.ID] = todo
	return nil
}

func (r *stubTodoRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(r.byID, id)
	r.count--
	return nil
}

func (r *stubTodoRepo) FindByID(_ context.Context, id uuid.UUID) (*models.Todo, error) {
	return r.byID[id], nil
}

func (r *stubTodoRepo) ListByList(_ context.Context, listID uuid.UUID) ([]models.Todo, error) {
	var items []models.Todo
	for _, todo := range r.byID {
		if todo.TodoListID == listID {
			items = append(items, *todo)
		}
	}
	return items, nil
}

func (r *stubTodoRepo) CountByUser(_ context.Context, _ uuid.UUID) (int64, error) {
	return r.count, nil
}

type stubListRepo struct {
	byID map[uuid.UUID]*models.TodoList
}

func newStubListRepo(lists ...*models.TodoList) *stubListRepo {
	repo := &stubListRepo{byID: map[uuid.UUID]*models.TodoList{}}
	for _, list := range lists {
		repo.byID[list.ID] = list
	}
	return repo
}

func (r *stubListRepo) Create(_ context.Context, list *models.TodoList) error {
	list.ID = uuid.New()
	r.byID[list.ID] = list
	return nil
}

func (r *stubListRepo) Update(_ context.Context, list *models.TodoList) error {
	r.byID[list.ID] = list
	return nil
}

func (r *stubListRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(r.byID, id)
	return nil
}

func (r *stubListRepo) FindByID(_ context.Context, id uuid.UUID) (*models.TodoList, error) {
	return r.byID[id], nil
}

func (r *stubListRepo) ListByUser(_ context.Context, userID uuid.UUID) ([]models.TodoList, error) {
	var lists []models.TodoList
	for _, list := range r.byID {
		if list.UserID == userID {
			lists = append(lists, *list)
		}
	}
	return lists, nil
}

type stubUserRepo struct {
	user *models.User
}

func (r *stubUserRepo) WithTx(*gorm.DB) users.Repository               { return r }
func (r *stubUserRepo) Create(_ context.Context, _ *models.User) error { return nil }
func (r *stubUserRepo) Update(_ context.Context, _ *models.User) error { return nil }

func (r *stubUserRepo) FindByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	if r.user != nil && r.user.ID == id {
		return r.user, nil
	}
	return nil, nil
}

func (r *stubUserRepo) FindByEmail(_ context.Context, _ string) (*models.User, error) {
	return nil, nil
}

func (r *stubUserRepo) FindByUsername(_ context.Context, _ string) (*models.User, error) {
	return nil, nil
}

func (r *stubUserRepo) FindByStripeCustomerID(_ context.Context, _ string) (*models.User, error) {
	return nil, nil
}

func (r *stubUserRepo) FindByStripeSubscriptionID(_ context.Context, _ string) (*models.User, error) {
	return nil, nil
}

type fixture struct {
	svc   *Service
	todos *stubTodoRepo
	lists *stubListRepo
	user  *models.User
	list  *models.TodoList
}

func newFixture(t *testing.T, tier enums.SubscriptionTier) *fixture {
	t.Helper()
	user := &models.User{
		ID:               uuid.New(),
		SubscriptionTier: tier,
	}
	list := &models.TodoList{ID: uuid.New(), UserID: user.ID, Name: "inbox"}
	todoRepo := newStubTodoRepo()
	listRepo := newStubListRepo(list)
	svc, err := NewService(ServiceParams{
		Logger:       logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		Todos:        todoRepo,
		Lists:        listRepo,
		Users:        &stubUserRepo{user: user},
		Subscription: config.SubscriptionConfig{FreeTierTodoLimit: 3},
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return &fixture{svc: svc, todos: todoRepo, lists: listRepo, user: user, list: list}
}

func assertCode(t *testing.T, err error, want apperrors.Code) {
	t.Helper()
	typed := apperrors.As(err)
	if typed == nil {
		t.Fatalf("error = %v, want coded error %s", err, want)
	}
	if typed.Code() != want {
		t.Fatalf("code = %s, want %s", typed.Code(), want)
	}
}

func TestCreateUnderLimit(t *testing.T) {
	f := newFixture(t, enums.SubscriptionTierFree)

	todo, err := f.svc.Create(context.Background(), f.user.ID, f.list.ID, CreateInput{Description: "write tests"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if todo.Description != "write tests" {
		t.Errorf("description = %s", todo.Description)
	}
}

func TestCreateAtLimitRejected(t *testing.T) {
	f := newFixture(t, enums.SubscriptionTierFree)
	f.todos.count = 3

	_, err := f.svc.Create(context.Background(), f.user.ID, f.list.ID, CreateInput{Description: "one too many"})
	assertCode(t, err, apperrors.CodeQuotaExceeded)

	details, ok := apperrors.As(err).Details().(QuotaDetails)
	if !ok {
		t.Fatalf("details = %T, want QuotaDetails", apperrors.As(err).Details())
	}
	if details.Reason != "todo_limit_reached" || details.CurrentCount != 3 || details.Limit != 3 {
		t.Errorf("details = %+v", details)
	}
	if len(f.todos.created) != 0 {
		t.Error("todo persisted despite quota rejection")
	}
}

func TestCreatePremiumUnlimited(t *testing.T) {
	f := newFixture(t, enums.SubscriptionTierPremium)
	f.todos.count = 1000

	if _, err := f.svc.Create(context.Background(), f.user.ID, f.list.ID, CreateInput{Description: "no ceiling"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
}

func TestCreateCountsAcrossLists(t *testing.T) {
	// The limit is per user, not per list: the stub count stands in for
	// todos spread over several lists.
	f := newFixture(t, enums.SubscriptionTierFree)
	second := &models.TodoList{ID: uuid.New(), UserID: f.user.ID, Name: "work"}
	f.lists.byID[second.ID] = second
	f.todos.count = 3

	_, err := f.svc.Create(context.Background(), f.user.ID, second.ID, CreateInput{Description: "x"})
	assertCode(t, err, apperrors.CodeQuotaExceeded)
}

func TestCreateDeleteFreesSlot(t *testing.T) {
	f := newFixture(t, enums.SubscriptionTierFree)
	f.todos.count = 2

	todo, err := f.svc.Create(context.Background(), f.user.ID, f.list.ID, CreateInput{Description: "third"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	_, err = f.svc.Create(context.Background(), f.user.ID, f.list.ID, CreateInput{Description: "fourth"})
	assertCode(t, err, apperrors.CodeQuotaExceeded)

	if err := f.svc.Delete(context.Background(), f.user.ID, todo.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := f.svc.Create(context.Background(), f.user.ID, f.list.ID, CreateInput{Description: "fourth again"}); err != nil {
		t.Fatalf("Create after delete: %v", err)
	}
}

func TestCreateForeignListNotFound(t *testing.T) {
	f := newFixture(t, enums.SubscriptionTierFree)
	foreign := &models.TodoList{ID: uuid.New(), UserID: uuid.New(), Name: "theirs"}
	f.lists.byID[foreign.ID] = foreign

	_, err := f.svc.Create(context.Background(), f.user.ID, foreign.ID, CreateInput{Description: "x"})
	assertCode(t, err, apperrors.CodeNotFound)
}

func TestUpdateNotQuotaGated(t *testing.T) {
	f := newFixture(t, enums.SubscriptionTierFree)
	todo, err := f.svc.Create(context.Background(), f.user.ID, f.list.ID, CreateInput{Description: "task"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	f.todos.count = 99 // over the limit, updates must still work

	done := true
	updated, err := f.svc.Update(context.Background(), f.user.ID, todo.ID, UpdateInput{Complete: &done})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !updated.Complete {
		t.Error("todo not completed")
	}
}

func TestUpdateForeignTodoNotFound(t *testing.T) {
	f := newFixture(t, enums.SubscriptionTierFree)
	foreignList := &models.TodoList{ID: uuid.New(), UserID: uuid.New()}
	f.lists.byID[foreignList.ID] = foreignList
	foreignTodo := &models.Todo{ID: uuid.New(), TodoListID: foreignList.ID, Description: "theirs"}
	f.todos.byID[foreignTodo.ID] = foreignTodo

	done := true
	_, err := f.svc.Update(context.Background(), f.user.ID, foreignTodo.ID, UpdateInput{Complete: &done})
	assertCode(t, err, apperrors.CodeNotFound)
}
