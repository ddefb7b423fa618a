package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	pkgAuth "github.com/angelmondragon/sweetshop-backend/pkg/auth"
	"github.com/angelmondragon/sweetshop-backend/pkg/config"
	"github.com/angelmondragon/sweetshop-backend/pkg/db/models"
	"github.com/angelmondragon/sweetshop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/sweetshop-backend/pkg/errors"
	"github.com/angelmondragon/sweetshop-backend/pkg/security"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:            "secret",
		Issuer:            "sweetshop",
		ExpirationMinutes: 30,
	}
}

func TestServiceLoginIssuesRoleClaim(t *testing.T) {
	password := "admin-secret"
	user := &models.User{
		ID:           uuid.New(),
		Name:         "Admin",
		Email:        "admin@example.com",
		PasswordHash: mustHashPassword(t, password),
		Role:         enums.UserRoleAdmin,
	}
	cfg := testJWTConfig()
	repo := &stubUserRepo{user: user}

	svc, err := NewService(ServiceParams{UserRepo: repo, JWTConfig: cfg})
	if err != nil {
		t.Fatalf("build service: %v", err)
	}

	resp, err := svc.Login(context.Background(), LoginRequest{Email: " Admin@Example.com ", Password: password})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	claims, err := pkgAuth.ParseAccessToken(cfg, resp.AccessToken)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	if claims.Role != enums.UserRoleAdmin {
		t.Fatalf("expected admin role claim, got %s", claims.Role)
	}
	if claims.UserID != user.ID {
		t.Fatalf("expected user id %s, got %s", user.ID, claims.UserID)
	}
	if resp.TokenType != "Bearer" {
		t.Fatalf("unexpected token type %q", resp.TokenType)
	}
	if resp.User == nil || resp.User.LastLoginAt == nil {
		t.Fatalf("expected last login to be recorded")
	}
	if repo.lookedUp != "admin@example.com" {
		t.Fatalf("expected normalized email lookup, got %q", repo.lookedUp)
	}
}

func TestServiceLoginRejectsBadCredentials(t *testing.T) {
	user := &models.User{
		ID:           uuid.New(),
		Email:        "jane@example.com",
		PasswordHash: mustHashPassword(t, "correct-password"),
		Role:         enums.UserRoleUser,
	}

	cases := map[string]struct {
		repo *stubUserRepo
		req  LoginRequest
		code pkgerrors.Code
	}{
		"wrongPassword": {
			repo: &stubUserRepo{user: user},
			req:  LoginRequest{Email: user.Email, Password: "nope-nope"},
			code: pkgerrors.CodeUnauthorized,
		},
		"unknownEmail": {
			repo: &stubUserRepo{err: gorm.ErrRecordNotFound},
			req:  LoginRequest{Email: "ghost@example.com", Password: "whatever"},
			code: pkgerrors.CodeUnauthorized,
		},
		"blankEmail": {
			repo: &stubUserRepo{user: user},
			req:  LoginRequest{Email: "  ", Password: "whatever"},
			code: pkgerrors.CodeUnauthorized,
		},
		"storeFailure": {
			repo: &stubUserRepo{err: errors.New("connection reset")},
			req:  LoginRequest{Email: user.Email, Password: "correct-password"},
			code: pkgerrors.CodeInternal,
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			svc, err := NewService(ServiceParams{UserRepo: tc.repo, JWTConfig: testJWTConfig()})
			if err != nil {
				t.Fatalf("build service: %v", err)
			}
			_, err = svc.Login(context.Background(), tc.req)
			typed := pkgerrors.As(err)
			if typed == nil || typed.Code() != tc.code {
				t.Fatalf("expected %s, got %v", tc.code, err)
			}
		})
	}
}

func TestServiceLoginRehashesWeakHash(t *testing.T) {
	password := "rehash-me"
	weak, err := security.HashPassword(password, config.PasswordConfig{ArgonMemoryKB: 8, ArgonTime: 1})
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	user := &models.User{ID: uuid.New(), Email: "weak@example.com", PasswordHash: weak, Role: enums.UserRoleUser}
	repo := &stubUserRepo{user: user}

	svc, err := NewService(ServiceParams{
		UserRepo:       repo,
		JWTConfig:      testJWTConfig(),
		PasswordConfig: config.PasswordConfig{ArgonMemoryKB: 64, ArgonTime: 2},
	})
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	if _, err := svc.Login(context.Background(), LoginRequest{Email: user.Email, Password: password}); err != nil {
		t.Fatalf("login: %v", err)
	}
	if repo.rehashed == "" || repo.rehashed == weak {
		t.Fatalf("expected password hash to be upgraded")
	}
	ok, err := security.VerifyPassword(password, repo.rehashed)
	if err != nil || !ok {
		t.Fatalf("expected upgraded hash to verify, ok=%v err=%v", ok, err)
	}
}

func TestServiceLoginChecksDecoyForUnknownEmail(t *testing.T) {
	svc, err := NewService(ServiceParams{UserRepo: &stubUserRepo{}, JWTConfig: testJWTConfig()})
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	calls := 0
	decoy := mustHashPassword(t, "decoy")
	svc.(*loginService).decoy = func() string {
		calls++
		return decoy
	}

	if _, err := svc.Login(context.Background(), LoginRequest{Email: "ghost@example.com", Password: "decoy"}); err == nil {
		t.Fatal("expected unknown email to fail even when the password matches the decoy")
	}
	if calls != 1 {
		t.Fatalf("expected one decoy verification, got %d", calls)
	}
}

func TestNewServiceRequiresRepo(t *testing.T) {
	if _, err := NewService(ServiceParams{}); err == nil {
		t.Fatal("expected error without user repository")
	}
}

func mustHashPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := security.HashPassword(password, config.PasswordConfig{})
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return hash
}

type stubUserRepo struct {
	user     *models.User
	err      error
	lookedUp string
	rehashed string
}

func (s *stubUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	s.lookedUp = email
	if s.err != nil {
		return nil, s.err
	}
	if s.user == nil || s.user.Email != email {
		return nil, gorm.ErrRecordNotFound
	}
	return s.user, nil
}

func (s *stubUserRepo) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return nil
}

func (s *stubUserRepo) UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error {
	s.rehashed = hash
	return nil
}
