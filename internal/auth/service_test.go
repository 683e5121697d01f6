package auth

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/taskhive/taskhive-backend/internal/users"
	"github.com/taskhive/taskhive-backend/pkg/config"
	"github.com/taskhive/taskhive-backend/pkg/db/models"
	"github.com/taskhive/taskhive-backend/pkg/enums"
	apperrors "github.com/taskhive/taskhive-backend/pkg/errors"
	"github.com/taskhive/taskhive-backend/pkg/logger"
)

type stubUserRepo struct {
	byEmail    map[string]*models.User
	byUsername map[string]*models.User
	byID       map[uuid.UUID]*models.User
	created    []*models.User
}

func newStubUserRepo() *stubUserRepo {
	return &stubUserRepo{
		byEmail:    map[string]*models.User{},
		byUsername: map[string]*models.User{},
		byID:       map[uuid.UUID]*models.User{},
	}
}

func (r *stubUserRepo) add(user *models.User) {
	r.byEmail[user.Email] = user
	r.byUsername[user.Username] = user
	r.byID[user.ID] = user
}

func (r *stubUserRepo) WithTx(*gorm.DB) users.Repository { return r }

func (r *stubUserRepo) Create(_ context.Context, user *models.User) error {
	user.ID = uuid.New()
	r.created = append(r.created, user)
	r.add(user)
	return nil
}

func (r *stubUserRepo) Update(_ context.Context, _ *models.User) error { return nil }

func (r *stubUserRepo) FindByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	return r.byID[id], nil
}

func (r *stubUserRepo) FindByEmail(_ context.Context, email string) (*models.User, error) {
	return r.byEmail[email], nil
}

func (r *stubUserRepo) FindByUsername(_ context.Context, username string) (*models.User, error) {
	return r.byUsername[username], nil
}

func (r *stubUserRepo) FindByStripeCustomerID(_ context.Context, _ string) (*models.User, error) {
	return nil, nil
}

func (r *stubUserRepo) FindByStripeSubscriptionID(_ context.Context, _ string) (*models.User, error) {
	return nil, nil
}

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{Secret: "test-secret", Issuer: "taskhive-test", ExpirationMinutes: 30}
}

func testPasswordConfig() config.PasswordConfig {
	// Minimal parameters keep hashing fast in tests.
	return config.PasswordConfig{
		ArgonMemoryKB:    8,
		ArgonTime:        1,
		ArgonParallelism: 1,
		ArgonSaltLen:     8,
		ArgonKeyLen:      16,
	}
}

func newTestService(t *testing.T, repo *stubUserRepo) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Logger:   logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		Users:    repo,
		JWT:      testJWTConfig(),
		Password: testPasswordConfig(),
		Clock:    func() time.Time { return time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
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

func TestRegisterCreatesFreeTierUser(t *testing.T) {
	repo := newStubUserRepo()
	svc := newTestService(t, repo)

	view, err := svc.Register(context.Background(), RegisterInput{
		Email:    "New@Example.com",
		Username: "newbie",
		Password: "s3cret-pass",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if view.Email != "new@example.com" {
		t.Errorf("email = %s, want lowercased", view.Email)
	}
	if view.SubscriptionTier != enums.SubscriptionTierFree {
		t.Errorf("tier = %s, want free", view.SubscriptionTier)
	}
	if len(repo.created) != 1 {
		t.Fatal("user not persisted")
	}
	if repo.created[0].PasswordHash == "s3cret-pass" || repo.created[0].PasswordHash == "" {
		t.Error("password stored without hashing")
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	repo := newStubUserRepo()
	repo.add(&models.User{ID: uuid.New(), Email: "taken@example.com", Username: "taken"})
	svc := newTestService(t, repo)

	_, err := svc.Register(context.Background(), RegisterInput{
		Email:    "taken@example.com",
		Username: "other",
		Password: "s3cret-pass",
	})
	assertCode(t, err, apperrors.CodeConflict)
}

func TestLoginRoundTrip(t *testing.T) {
	repo := newStubUserRepo()
	svc := newTestService(t, repo)

	if _, err := svc.Register(context.Background(), RegisterInput{
		Email:    "u@example.com",
		Username: "u",
		Password: "s3cret-pass",
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	token, err := svc.Login(context.Background(), "u@example.com", "s3cret-pass")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if token.AccessToken == "" || token.TokenType != "bearer" {
		t.Errorf("unexpected token view: %+v", token)
	}
	if token.User.Username != "u" {
		t.Errorf("user = %+v", token.User)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	repo := newStubUserRepo()
	svc := newTestService(t, repo)

	if _, err := svc.Register(context.Background(), RegisterInput{
		Email:    "u@example.com",
		Username: "u",
		Password: "s3cret-pass",
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	_, err := svc.Login(context.Background(), "u@example.com", "wrong")
	assertCode(t, err, apperrors.CodeUnauthorized)
}

func TestLoginUnknownAccount(t *testing.T) {
	svc := newTestService(t, newStubUserRepo())
	_, err := svc.Login(context.Background(), "nobody@example.com", "whatever")
	assertCode(t, err, apperrors.CodeUnauthorized)
}

func TestLoginInactiveAccount(t *testing.T) {
	repo := newStubUserRepo()
	svc := newTestService(t, repo)

	if _, err := svc.Register(context.Background(), RegisterInput{
		Email:    "u@example.com",
		Username: "u",
		Password: "s3cret-pass",
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	repo.byEmail["u@example.com"].IsActive = false

	_, err := svc.Login(context.Background(), "u@example.com", "s3cret-pass")
	assertCode(t, err, apperrors.CodeUnauthorized)
}

func TestMeUnknownUser(t *testing.T) {
	svc := newTestService(t, newStubUserRepo())
	_, err := svc.Me(context.Background(), uuid.New())
	assertCode(t, err, apperrors.CodeNotFound)
}
