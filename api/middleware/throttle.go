package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/sweetshop-backend/api/responses"
	"github.com/angelmondragon/sweetshop-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/sweetshop-backend/pkg/errors"
	"github.com/angelmondragon/sweetshop-backend/pkg/logger"
	"github.com/angelmondragon/sweetshop-backend/pkg/redis"
)

const maxThrottledBody = 64 << 10

// Limiter records one hit in a named window.
type Limiter interface {
	Allow(ctx context.Context, scope string, limit int64, window time.Duration) (redis.Quota, error)
}

// ThrottlePolicy caps attempts per client IP and per submitted email within one window.
// A zero limit disables that dimension.
type ThrottlePolicy struct {
	Name     string
	Window   time.Duration
	PerIP    int64
	PerEmail int64
}

func LoginThrottle(cfg config.AuthRateLimitConfig) ThrottlePolicy {
	return ThrottlePolicy{Name: "login", Window: cfg.LoginWindow, PerIP: int64(cfg.LoginIPLimit), PerEmail: int64(cfg.LoginEmailLimit)}
}

func RegisterThrottle(cfg config.AuthRateLimitConfig) ThrottlePolicy {
	return ThrottlePolicy{Name: "register", Window: cfg.RegisterWindow, PerIP: int64(cfg.RegisterIPLimit), PerEmail: int64(cfg.RegisterEmailLimit)}
}

func (p ThrottlePolicy) active() bool {
	return p.Window > 0 && (p.PerIP > 0 || p.PerEmail > 0)
}

func (p ThrottlePolicy) scope(dimension, value string) string {
	name := strings.ToLower(strings.TrimSpace(p.Name))
	if name == "" {
		name = "auth"
	}
	return "auth:" + name + ":" + dimension + ":" + value
}

type throttleCheck struct {
	dimension string
	value     string
	limit     int64
}

// Throttle rejects auth attempts over the policy's limits with 429 and a Retry-After header.
// Emails are hashed before they reach Redis or the logs.
func Throttle(policy ThrottlePolicy, limiter Limiter, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil || !policy.active() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			var checks []throttleCheck
			if policy.PerIP > 0 {
				if ip := clientIP(r); ip != "" {
					checks = append(checks, throttleCheck{"ip", ip, policy.PerIP})
				}
			}
			if policy.PerEmail > 0 {
				body, err := io.ReadAll(io.LimitReader(r.Body, maxThrottledBody))
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request"))
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(body))
				if email := emailFrom(body); email != "" {
					checks = append(checks, throttleCheck{"email", digest(email), policy.PerEmail})
				}
			}

			for _, c := range checks {
				quota, err := limiter.Allow(ctx, policy.scope(c.dimension, c.value), c.limit, policy.Window)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
					return
				}
				if !quota.Allowed {
					rejectThrottled(ctx, logg, w, policy, c, quota)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func rejectThrottled(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, policy ThrottlePolicy, c throttleCheck, quota redis.Quota) {
	if logg != nil {
		logg.Warn(logg.WithFields(ctx, map[string]any{
			"policy":    policy.Name,
			"dimension": c.dimension,
			"key":       c.value,
			"attempts":  quota.Count,
			"limit":     quota.Limit,
		}), "auth attempt throttled")
	}
	if quota.RetryAfter > 0 {
		secs := int64((quota.RetryAfter + time.Second - 1) / time.Second)
		w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
	}
	responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "too many attempts, try again later"))
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the socket peer.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func emailFrom(body []byte) string {
	var payload struct {
		Email string `json:"email"`
	}
	if json.Unmarshal(body, &payload) != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(payload.Email))
}

func digest(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
