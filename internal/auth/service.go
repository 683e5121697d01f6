package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/taskhive/taskhive-backend/internal/users"
	pkgauth "github.com/taskhive/taskhive-backend/pkg/auth"
	"github.com/taskhive/taskhive-backend/pkg/config"
	"github.com/taskhive/taskhive-backend/pkg/db/models"
	"github.com/taskhive/taskhive-backend/pkg/enums"
	apperrors "github.com/taskhive/taskhive-backend/pkg/errors"
	"github.com/taskhive/taskhive-backend/pkg/logger"
	"github.com/taskhive/taskhive-backend/pkg/security"
)

// ServiceParams collects the auth service dependencies.
type ServiceParams struct {
	Logger   *logger.Logger
	Users    users.Repository
	JWT      config.JWTConfig
	Password config.PasswordConfig
	Clock    func() time.Time
}

// Service implements registration and credential login. New accounts always
// start on the free tier.
type Service struct {
	logger   *logger.Logger
	users    users.Repository
	jwt      config.JWTConfig
	password config.PasswordConfig
	now      func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("auth service requires a logger")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("auth service requires a user repository")
	}
	if params.JWT.Secret == "" {
		return nil, fmt.Errorf("auth service requires a jwt secret")
	}
	now := params.Clock
	if now == nil {
		now = time.Now
	}
	return &Service{
		logger:   params.Logger,
		users:    params.Users,
		jwt:      params.JWT,
		password: params.Password,
		now:      now,
	}, nil
}

// RegisterInput carries validated registration fields.
type RegisterInput struct {
	Email    string
	Username string
	Password string
}

// UserView is the public projection of a user record.
type UserView struct {
	ID                 uuid.UUID                `json:"id"`
	Email              string                   `json:"email"`
	Username           string                   `json:"username"`
	SubscriptionTier   enums.SubscriptionTier   `json:"subscription_tier"`
	SubscriptionStatus enums.SubscriptionStatus `json:"subscription_status"`
	CreatedAt          time.Time                `json:"created_at"`
}

// TokenView carries a freshly minted access token.
type TokenView struct {
	AccessToken string   `json:"access_token"`
	TokenType   string   `json:"token_type"`
	ExpiresIn   int      `json:"expires_in"`
	User        UserView `json:"user"`
}

// Register creates a free-tier account. Email and username collisions are
// reported as conflicts without leaking which existing account matched.
func (s *Service) Register(ctx context.Context, input RegisterInput) (*UserView, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	username := strings.TrimSpace(input.Username)

	if existing, err := s.users.FindByEmail(ctx, email); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "checking email")
	} else if existing != nil {
		return nil, apperrors.New(apperrors.CodeConflict, "account already exists")
	}
	if existing, err := s.users.FindByUsername(ctx, username); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "checking username")
	} else if existing != nil {
		return nil, apperrors.New(apperrors.CodeConflict, "account already exists")
	}

	hash, err := security.HashPassword(input.Password, s.password)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "hashing password")
	}

	user := &models.User{
		Email:              email,
		Username:           username,
		PasswordHash:       hash,
		IsActive:           true,
		SubscriptionTier:   enums.SubscriptionTierFree,
		SubscriptionStatus: enums.SubscriptionStatusFree,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "creating user")
	}

	s.logger.Info(s.logger.WithUserID(ctx, user.ID.String()), "user registered")
	view := viewFromUser(user)
	return &view, nil
}

// Login verifies credentials and mints an access token. Unknown accounts and
// wrong passwords produce the same error.
func (s *Service) Login(ctx context.Context, email, password string) (*TokenView, error) {
	user, err := s.users.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "loading user")
	}
	if user == nil || !user.IsActive {
		return nil, apperrors.New(apperrors.CodeUnauthorized, "invalid credentials")
	}

	ok, err := security.VerifyPassword(password, user.PasswordHash)
	if err != nil || !ok {
		return nil, apperrors.New(apperrors.CodeUnauthorized, "invalid credentials")
	}

	token, err := pkgauth.MintAccessToken(s.jwt, s.now(), pkgauth.AccessTokenPayload{
		UserID:   user.ID,
		Username: user.Username,
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "minting access token")
	}

	return &TokenView{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   s.jwt.ExpirationMinutes * 60,
		User:        viewFromUser(user),
	}, nil
}

// Me returns the authenticated user's profile.
func (s *Service) Me(ctx context.Context, userID uuid.UUID) (*UserView, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "loading user")
	}
	if user == nil {
		return nil, apperrors.New(apperrors.CodeNotFound, "user not found")
	}
	view := viewFromUser(user)
	return &view, nil
}

func viewFromUser(user *models.User) UserView {
	return UserView{
		ID:                 user.ID,
		Email:              user.Email,
		Username:           user.Username,
		SubscriptionTier:   user.SubscriptionTier,
		SubscriptionStatus: user.SubscriptionStatus,
		CreatedAt:          user.CreatedAt,
	}
}
