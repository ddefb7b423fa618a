package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/sweetshop-backend/internal/users"
	"github.com/angelmondragon/sweetshop-backend/pkg/config"
	"github.com/angelmondragon/sweetshop-backend/pkg/db"
	"github.com/angelmondragon/sweetshop-backend/pkg/db/models"
	"github.com/angelmondragon/sweetshop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/sweetshop-backend/pkg/errors"
	"github.com/angelmondragon/sweetshop-backend/pkg/security"
)

// RegisterService signs up a customer and logs them straight in.
type RegisterService interface {
	Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error)
}

// AdminRegisterService creates admin accounts. The route is only mounted outside prod.
type AdminRegisterService interface {
	Register(ctx context.Context, req AdminRegisterRequest) (*users.UserDTO, error)
}

type AdminRegisterRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

type RegisterServiceParams struct {
	DB             *db.Client
	PasswordConfig config.PasswordConfig
	JWTConfig      config.JWTConfig
}

type AdminRegisterServiceParams struct {
	DB             *db.Client
	PasswordConfig config.PasswordConfig
}

// accounts creates users with a fixed role.
type accounts struct {
	repo      *users.Repository
	passwords config.PasswordConfig
	role      enums.UserRole
}

func newAccounts(client *db.Client, passwords config.PasswordConfig, role enums.UserRole) (accounts, error) {
	if client == nil {
		return accounts{}, errors.New("database client required")
	}
	return accounts{repo: users.NewRepository(client.DB()), passwords: passwords, role: role}, nil
}

// create relies on the unique email index to catch duplicates, including concurrent sign-ups.
func (a accounts) create(ctx context.Context, name, email, password string) (*models.User, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))
	switch {
	case email == "":
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	case name == "":
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	case len(password) < security.MinPasswordLength:
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("password must be at least %d characters", security.MinPasswordLength))
	}

	hash, err := security.HashPassword(password, a.passwords)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}
	user, err := a.repo.Create(ctx, users.CreateUserDTO{Name: name, Email: email, PasswordHash: hash, Role: a.role})
	switch {
	case db.IsUniqueViolation(err, ""):
		return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "email already registered")
	case err != nil:
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create user")
	}
	return user, nil
}

type customerRegistration struct {
	accounts
	jwt config.JWTConfig
}

func NewRegisterService(params RegisterServiceParams) (RegisterService, error) {
	a, err := newAccounts(params.DB, params.PasswordConfig, enums.UserRoleUser)
	if err != nil {
		return nil, err
	}
	return &customerRegistration{accounts: a, jwt: params.JWTConfig}, nil
}

func (s *customerRegistration) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	user, err := s.create(ctx, req.Name, req.Email, req.Password)
	if err != nil {
		return nil, err
	}
	return issueToken(s.jwt, time.Now().UTC(), user)
}

type adminRegistration struct {
	accounts
}

func NewAdminRegisterService(params AdminRegisterServiceParams) (AdminRegisterService, error) {
	a, err := newAccounts(params.DB, params.PasswordConfig, enums.UserRoleAdmin)
	if err != nil {
		return nil, err
	}
	return &adminRegistration{accounts: a}, nil
}

func (s *adminRegistration) Register(ctx context.Context, req AdminRegisterRequest) (*users.UserDTO, error) {
	user, err := s.create(ctx, req.Name, req.Email, req.Password)
	if err != nil {
		return nil, err
	}
	return users.FromModel(user), nil
}
