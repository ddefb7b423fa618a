package auth

import (
	"context"
	"testing"

	"github.com/angelmondragon/sweetshop-backend/internal/users"
	pkgAuth "github.com/angelmondragon/sweetshop-backend/pkg/auth"
	"github.com/angelmondragon/sweetshop-backend/pkg/config"
	"github.com/angelmondragon/sweetshop-backend/pkg/db/dbtest"
	"github.com/angelmondragon/sweetshop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/sweetshop-backend/pkg/errors"
	"github.com/angelmondragon/sweetshop-backend/pkg/security"
)

func TestRegisterCreatesUserAndToken(t *testing.T) {
	client := dbtest.New(t)
	cfg := testJWTConfig()
	svc, err := NewRegisterService(RegisterServiceParams{DB: client, JWTConfig: cfg})
	if err != nil {
		t.Fatalf("build register service: %v", err)
	}

	resp, err := svc.Register(context.Background(), RegisterRequest{
		Name:     "  Jane Doe ",
		Email:    "Jane@Example.com",
		Password: "sugarrush",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if resp.User.Email != "jane@example.com" {
		t.Fatalf("expected normalized email, got %q", resp.User.Email)
	}
	if resp.User.Name != "Jane Doe" {
		t.Fatalf("expected trimmed name, got %q", resp.User.Name)
	}
	if resp.User.Role != enums.UserRoleUser {
		t.Fatalf("expected user role, got %s", resp.User.Role)
	}

	claims, err := pkgAuth.ParseAccessToken(cfg, resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.UserID != resp.User.ID {
		t.Fatalf("token subject mismatch")
	}

	stored, err := users.NewRepository(client.DB()).FindByEmail(context.Background(), "jane@example.com")
	if err != nil {
		t.Fatalf("find user: %v", err)
	}
	ok, err := security.VerifyPassword("sugarrush", stored.PasswordHash)
	if err != nil || !ok {
		t.Fatalf("stored hash does not verify: ok=%v err=%v", ok, err)
	}
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	client := dbtest.New(t)
	svc, err := NewRegisterService(RegisterServiceParams{DB: client, JWTConfig: testJWTConfig()})
	if err != nil {
		t.Fatalf("build register service: %v", err)
	}
	req := RegisterRequest{Name: "Jane", Email: "jane@example.com", Password: "sugarrush"}
	if _, err := svc.Register(context.Background(), req); err != nil {
		t.Fatalf("first register: %v", err)
	}

	req.Email = "JANE@example.com"
	_, err = svc.Register(context.Background(), req)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestRegisterValidatesInput(t *testing.T) {
	client := dbtest.New(t)
	svc, err := NewRegisterService(RegisterServiceParams{DB: client, JWTConfig: testJWTConfig()})
	if err != nil {
		t.Fatalf("build register service: %v", err)
	}

	cases := []RegisterRequest{
		{Name: "Jane", Email: " ", Password: "sugarrush"},
		{Name: " ", Email: "jane@example.com", Password: "sugarrush"},
		{Name: "Jane", Email: "jane@example.com", Password: "abc"},
	}
	for _, req := range cases {
		_, err := svc.Register(context.Background(), req)
		if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
			t.Fatalf("expected validation error for %+v, got %v", req, err)
		}
	}
}

func TestAdminRegisterAssignsAdminRole(t *testing.T) {
	client := dbtest.New(t)
	svc, err := NewAdminRegisterService(AdminRegisterServiceParams{DB: client, PasswordConfig: config.PasswordConfig{}})
	if err != nil {
		t.Fatalf("build admin register service: %v", err)
	}
	user, err := svc.Register(context.Background(), AdminRegisterRequest{
		Name:     "Owner",
		Email:    "owner@example.com",
		Password: "candyland",
	})
	if err != nil {
		t.Fatalf("register admin: %v", err)
	}
	if user.Role != enums.UserRoleAdmin {
		t.Fatalf("expected admin role, got %s", user.Role)
	}
}
