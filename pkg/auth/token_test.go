package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/sweetshop-backend/pkg/config"
	"github.com/angelmondragon/sweetshop-backend/pkg/enums"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{Secret: "secret", Issuer: "sweetshop", ExpirationMinutes: 30}
}

func mint(t *testing.T, cfg config.JWTConfig, now time.Time, role enums.UserRole) string {
	t.Helper()
	token, err := MintAccessToken(cfg, now, AccessTokenPayload{UserID: uuid.New(), Email: "jane@example.com", Role: role})
	require.NoError(t, err)
	return token
}

func TestMintAndParseAccessToken(t *testing.T) {
	cfg := testJWTConfig()
	now := time.Now().UTC().Truncate(time.Second)
	userID := uuid.New()

	token, err := MintAccessToken(cfg, now, AccessTokenPayload{UserID: userID, Role: enums.UserRoleAdmin, JTI: " fixed "})
	require.NoError(t, err)

	claims, err := ParseAccessToken(cfg, token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, userID.String(), claims.Subject)
	assert.True(t, claims.IsAdmin())
	assert.Equal(t, "fixed", claims.ID)
	assert.WithinDuration(t, now.Add(30*time.Minute), claims.ExpiresAt.Time, time.Second)
}

func TestParseAccessTokenFailures(t *testing.T) {
	cfg := testJWTConfig()
	valid := mint(t, cfg, time.Now(), enums.UserRoleUser)

	otherSecret := cfg
	otherSecret.Secret = "different"
	otherIssuer := cfg
	otherIssuer.Issuer = "elsewhere"

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"iss": cfg.Issuer}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	cases := []struct {
		name  string
		cfg   config.JWTConfig
		token string
		want  error
	}{
		{"wrong secret", otherSecret, valid, ErrTokenInvalid},
		{"wrong issuer", otherIssuer, valid, ErrTokenInvalid},
		{"alg none", cfg, unsigned, ErrTokenInvalid},
		{"garbage", cfg, "not.a.token", ErrTokenInvalid},
		{"expired", cfg, mint(t, cfg, time.Now().Add(-2*time.Hour), enums.UserRoleUser), ErrTokenExpired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseAccessToken(tc.cfg, tc.token)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestParseAccessTokenToleratesSkew(t *testing.T) {
	cfg := testJWTConfig()
	token := mint(t, cfg, time.Now().Add(10*time.Second), enums.UserRoleUser)
	_, err := ParseAccessToken(cfg, token)
	assert.NoError(t, err)
}

func TestMintAccessTokenRejects(t *testing.T) {
	cfg := testJWTConfig()
	_, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{UserID: uuid.New(), Role: "owner"})
	assert.ErrorContains(t, err, "unknown role")

	_, err = MintAccessToken(cfg, time.Now(), AccessTokenPayload{Role: enums.UserRoleUser})
	assert.ErrorContains(t, err, "missing user id")

	noTTL := cfg
	noTTL.ExpirationMinutes = 0
	_, err = MintAccessToken(noTTL, time.Now(), AccessTokenPayload{UserID: uuid.New(), Role: enums.UserRoleUser})
	assert.Error(t, err)

	_, err = MintAccessToken(config.JWTConfig{}, time.Now(), AccessTokenPayload{})
	assert.EqualError(t, err, "jwt secret is required")
}
