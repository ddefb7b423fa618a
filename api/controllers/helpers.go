package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/sweetshop-backend/api/middleware"
	"github.com/angelmondragon/sweetshop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/sweetshop-backend/pkg/errors"
)

type caller struct {
	UserID uuid.UUID
	Role   enums.UserRole
}

func callerFromRequest(r *http.Request) (caller, error) {
	userID, ok := middleware.UserUUIDFromContext(r.Context())
	if !ok {
		return caller{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	role, err := enums.ParseUserRole(middleware.RoleFromContext(r.Context()))
	if err != nil {
		return caller{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid role")
	}
	return caller{UserID: userID, Role: role}, nil
}

func unavailable(name string) error {
	return pkgerrors.New(pkgerrors.CodeInternal, name+" unavailable")
}
