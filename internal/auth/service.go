package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/sweetshop-backend/pkg/config"
	"github.com/angelmondragon/sweetshop-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/sweetshop-backend/pkg/errors"
	"github.com/angelmondragon/sweetshop-backend/pkg/logger"
	"github.com/angelmondragon/sweetshop-backend/pkg/security"
)

// Service logs existing users in.
type Service interface {
	Login(ctx context.Context, req LoginRequest) (*AuthResponse, error)
}

type userRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error
}

type ServiceParams struct {
	UserRepo       userRepository
	JWTConfig      config.JWTConfig
	PasswordConfig config.PasswordConfig
	Logger         *logger.Logger
}

type loginService struct {
	users     userRepository
	jwt       config.JWTConfig
	passwords config.PasswordConfig
	logg      *logger.Logger
	now       func() time.Time

	// decoy is verified against when the email is unknown so both paths cost one argon2 run.
	decoy func() string
}

func NewService(params ServiceParams) (Service, error) {
	if params.UserRepo == nil {
		return nil, errors.New("user repository is required")
	}
	cfg := params.PasswordConfig
	return &loginService{
		users:     params.UserRepo,
		jwt:       params.JWTConfig,
		passwords: cfg,
		logg:      params.Logger,
		now:       func() time.Time { return time.Now().UTC() },
		decoy: sync.OnceValue(func() string {
			hash, _ := security.HashPassword(uuid.NewString(), cfg)
			return hash
		}),
	}, nil
}

func invalidCredentials() error {
	return pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid credentials")
}

func (s *loginService) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		return nil, invalidCredentials()
	}

	user, err := s.users.FindByEmail(ctx, email)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		_, _ = security.VerifyPassword(req.Password, s.decoy())
		return nil, invalidCredentials()
	case err != nil:
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup user")
	}

	ok, err := security.VerifyPassword(req.Password, user.PasswordHash)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify password")
	}
	if !ok || !user.Role.IsValid() {
		return nil, invalidCredentials()
	}

	s.upgradeHash(ctx, user, req.Password)

	now := s.now()
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update last login")
	}
	user.LastLoginAt = &now
	return issueToken(s.jwt, now, user)
}

// upgradeHash rewrites hashes made with weaker argon2 settings than the current config.
// A failed upgrade is logged and the login still succeeds.
func (s *loginService) upgradeHash(ctx context.Context, user *models.User, password string) {
	if !security.NeedsRehash(user.PasswordHash, s.passwords) {
		return
	}
	hash, err := security.HashPassword(password, s.passwords)
	if err == nil {
		err = s.users.UpdatePasswordHash(ctx, user.ID, hash)
	}
	if err != nil {
		if s.logg != nil {
			s.logg.Error(s.logg.WithUserID(ctx, user.ID.String()), "password rehash failed", err)
		}
		return
	}
	user.PasswordHash = hash
}
