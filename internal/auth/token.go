package auth

import (
	"time"

	"github.com/angelmondragon/sweetshop-backend/internal/users"
	pkgAuth "github.com/angelmondragon/sweetshop-backend/pkg/auth"
	"github.com/angelmondragon/sweetshop-backend/pkg/config"
	"github.com/angelmondragon/sweetshop-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/sweetshop-backend/pkg/errors"
)

const bearerTokenType = "Bearer"

func issueToken(cfg config.JWTConfig, now time.Time, user *models.User) (*AuthResponse, error) {
	token, err := pkgAuth.MintAccessToken(cfg, now, pkgAuth.AccessTokenPayload{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint jwt")
	}
	return &AuthResponse{
		AccessToken: token,
		TokenType:   bearerTokenType,
		ExpiresAt:   now.Add(cfg.TTL()),
		User:        users.FromModel(user),
	}, nil
}
