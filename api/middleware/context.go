package middleware

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey int

const (
	ctxUserID ctxKey = iota
	ctxRole
	ctxEmail
)

func stringValue(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return v
}

func withString(ctx context.Context, key ctxKey, v string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, key, v)
}

// UserIDFromContext returns the authenticated user id, or "" before Auth has run.
func UserIDFromContext(ctx context.Context) string { return stringValue(ctx, ctxUserID) }

func RoleFromContext(ctx context.Context) string { return stringValue(ctx, ctxRole) }

func EmailFromContext(ctx context.Context) string { return stringValue(ctx, ctxEmail) }

func WithUserID(ctx context.Context, userID string) context.Context {
	return withString(ctx, ctxUserID, userID)
}

func WithRole(ctx context.Context, role string) context.Context {
	return withString(ctx, ctxRole, role)
}

func withEmail(ctx context.Context, email string) context.Context {
	return withString(ctx, ctxEmail, email)
}

// UserUUIDFromContext is UserIDFromContext parsed. ok is false when absent or malformed.
func UserUUIDFromContext(ctx context.Context) (id uuid.UUID, ok bool) {
	id, err := uuid.Parse(UserIDFromContext(ctx))
	return id, err == nil
}
